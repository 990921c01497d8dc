package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sheetlog/sheetlog/internal/models"
	"github.com/sirupsen/logrus"
)

type RedisCredentialRepository struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedisCredentialRepository(client *redis.Client, logger *logrus.Logger) *RedisCredentialRepository {
	return &RedisCredentialRepository{
		client: client,
		logger: logger,
	}
}

func credentialKey(identity string) string {
	return fmt.Sprintf("credential:%s", identity)
}

// Upsert merges inside a WATCH transaction so a concurrent write between the
// read and the SET restarts the merge instead of dropping the stored refresh
// token. Records carry no TTL: refresh tokens outlive any access token expiry.
func (r *RedisCredentialRepository) Upsert(ctx context.Context, cred *models.Credential) error {
	key := credentialKey(cred.Identity)

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		merged := *cred

		dataJSON, err := tx.Get(ctx, key).Result()
		if err != nil && err != redis.Nil {
			return fmt.Errorf("failed to read existing credential: %w", err)
		}
		if err == nil {
			var prev models.Credential
			if err := json.Unmarshal([]byte(dataJSON), &prev); err != nil {
				return fmt.Errorf("failed to unmarshal existing credential: %w", err)
			}
			merged.MergeRefreshToken(&prev)
		}

		out, err := json.Marshal(&merged)
		if err != nil {
			return fmt.Errorf("failed to marshal credential: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		return err
	}, key)

	if err != nil {
		r.logger.WithError(err).Error("Failed to upsert credential in Redis")
		return fmt.Errorf("failed to upsert credential: %w", err)
	}

	return nil
}

func (r *RedisCredentialRepository) Get(ctx context.Context, identity string) (*models.Credential, error) {
	dataJSON, err := r.client.Get(ctx, credentialKey(identity)).Result()
	if err == redis.Nil {
		return nil, nil // No credential stored
	}
	if err != nil {
		r.logger.WithError(err).Error("Failed to get credential from Redis")
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	var cred models.Credential
	if err := json.Unmarshal([]byte(dataJSON), &cred); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential: %w", err)
	}

	return &cred, nil
}
