package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/sheetlog/sheetlog/internal/config"
	"github.com/sheetlog/sheetlog/internal/handlers"
	"github.com/sheetlog/sheetlog/internal/middleware"
	"github.com/sheetlog/sheetlog/internal/provider"
	"github.com/sheetlog/sheetlog/internal/repository"
	"github.com/sheetlog/sheetlog/internal/service"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	repo, err := initCredentialStore(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize credential store")
	}

	googleProvider := provider.NewGoogleProvider(&cfg.Google, logger)
	tokenManager := service.NewTokenManager(googleProvider, repo, cfg.Token.RefreshBuffer, logger)

	authHandlers := handlers.NewAuthHandlers(tokenManager, googleProvider, cfg.Server.AuthSuccessURL, logger)
	router := setupRouter(authHandlers, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

func initCredentialStore(cfg *config.Config, logger *logrus.Logger) (repository.CredentialRepository, error) {
	var repo repository.CredentialRepository

	switch cfg.Store.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Endpoint,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		logger.Info("Redis credential store initialized")
		repo = repository.NewRedisCredentialRepository(client, logger)
	default:
		dynamoClient, err := initDynamoDB(cfg, logger)
		if err != nil {
			return nil, err
		}
		repo = repository.NewDynamoDBCredentialRepository(dynamoClient, cfg.DynamoDB.TableName, logger)
	}

	if len(cfg.Store.SealKey) > 0 {
		sealed, err := repository.NewSealedCredentialRepository(repo, cfg.Store.SealKey)
		if err != nil {
			return nil, err
		}
		logger.Info("Credential sealing enabled")
		repo = sealed
	}

	return repo, nil
}

func initDynamoDB(cfg *config.Config, logger *logrus.Logger) (*dynamodb.Client, error) {
	var awsCfg aws.Config
	var err error

	if cfg.DynamoDB.Endpoint != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.TODO(),
			awsconfig.WithRegion(cfg.DynamoDB.Region),
			awsconfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
				func(service, region string, options ...interface{}) (aws.Endpoint, error) {
					return aws.Endpoint{
						URL:           cfg.DynamoDB.Endpoint,
						SigningRegion: cfg.DynamoDB.Region,
					}, nil
				})),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.TODO())
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg)
	logger.Info("DynamoDB client initialized")
	return client, nil
}

func setupRouter(authHandlers *handlers.AuthHandlers, logger *logrus.Logger) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.LoggingMiddleware(logger))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	auth := router.PathPrefix("/auth/google").Subrouter()
	auth.HandleFunc("", authHandlers.Start).Methods("GET")
	auth.HandleFunc("/callback", authHandlers.Callback).Methods("GET")
	auth.HandleFunc("/status", authHandlers.Status).Methods("GET")

	return router
}
