package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sheetlog/sheetlog/internal/models"
	"github.com/sirupsen/logrus"
)

type DynamoDBCredentialRepository struct {
	client    *dynamodb.Client
	tableName string
	logger    *logrus.Logger
}

func NewDynamoDBCredentialRepository(client *dynamodb.Client, tableName string, logger *logrus.Logger) *DynamoDBCredentialRepository {
	return &DynamoDBCredentialRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// Upsert writes the credential as a single UpdateItem so the record is never
// observable half-written. The refresh token attribute is only touched when
// the incoming value is non-empty, which keeps the stored one on refresh.
func (r *DynamoDBCredentialRepository) Upsert(ctx context.Context, cred *models.Credential) error {
	updateExpression := "SET #identity = :identity, #access_token = :access_token, #expiry = :expiry, #last_used = :last_used"
	expressionAttributeNames := map[string]string{
		"#identity":     "identity",
		"#access_token": "access_token",
		"#expiry":       "expiry",
		"#last_used":    "last_used",
	}
	expressionAttributeValues := map[string]types.AttributeValue{
		":identity":     &types.AttributeValueMemberS{Value: cred.Identity},
		":access_token": &types.AttributeValueMemberS{Value: cred.AccessToken},
		":expiry":       &types.AttributeValueMemberS{Value: cred.Expiry.Format(time.RFC3339Nano)},
		":last_used":    &types.AttributeValueMemberS{Value: cred.LastUsed.Format(time.RFC3339Nano)},
	}

	if cred.RefreshToken != "" {
		updateExpression += ", #refresh_token = :refresh_token"
		expressionAttributeNames["#refresh_token"] = "refresh_token"
		expressionAttributeValues[":refresh_token"] = &types.AttributeValueMemberS{Value: cred.RefreshToken}
	}

	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: cred.GetPK()},
			"SK": &types.AttributeValueMemberS{Value: cred.GetSK()},
		},
		UpdateExpression:          aws.String(updateExpression),
		ExpressionAttributeNames:  expressionAttributeNames,
		ExpressionAttributeValues: expressionAttributeValues,
	})

	if err != nil {
		r.logger.WithError(err).Error("Failed to upsert credential in DynamoDB")
		return fmt.Errorf("failed to upsert credential: %w", err)
	}

	return nil
}

func (r *DynamoDBCredentialRepository) Get(ctx context.Context, identity string) (*models.Credential, error) {
	probe := &models.Credential{Identity: identity}

	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: probe.GetPK()},
			"SK": &types.AttributeValueMemberS{Value: probe.GetSK()},
		},
	})

	if err != nil {
		r.logger.WithError(err).Error("Failed to get credential from DynamoDB")
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	if result.Item == nil {
		return nil, nil // No credential stored
	}

	var cred models.Credential
	if err := unmarshalCredential(result.Item, &cred); err != nil {
		r.logger.WithError(err).Error("Failed to unmarshal credential from DynamoDB")
		return nil, err
	}

	return &cred, nil
}

func unmarshalCredential(item map[string]types.AttributeValue, cred *models.Credential) error {
	var row struct {
		Identity     string `dynamodbav:"identity"`
		AccessToken  string `dynamodbav:"access_token"`
		RefreshToken string `dynamodbav:"refresh_token"`
		Expiry       string `dynamodbav:"expiry"`
		LastUsed     string `dynamodbav:"last_used"`
	}

	if err := attributevalue.UnmarshalMap(item, &row); err != nil {
		return fmt.Errorf("failed to unmarshal credential: %w", err)
	}

	expiry, err := time.Parse(time.RFC3339Nano, row.Expiry)
	if err != nil {
		return fmt.Errorf("failed to parse credential expiry: %w", err)
	}

	lastUsed, err := time.Parse(time.RFC3339Nano, row.LastUsed)
	if err != nil {
		return fmt.Errorf("failed to parse credential last_used: %w", err)
	}

	cred.Identity = row.Identity
	cred.AccessToken = row.AccessToken
	cred.RefreshToken = row.RefreshToken
	cred.Expiry = expiry
	cred.LastUsed = lastUsed
	return nil
}
