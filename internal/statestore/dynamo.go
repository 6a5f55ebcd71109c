package statestore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/shaiso/Outpost/internal/domain"
)

// DynamoAPI — подмножество клиента DynamoDB, которое использует DynamoStore.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoStore — Store поверх таблицы DynamoDB.
//
// Схема: partition key "task_key" (S), атрибут "expires_at" (N) для TTL.
type DynamoStore struct {
	db    DynamoAPI
	table string
	ttl   time.Duration
}

// dynamoItem — строка таблицы.
type dynamoItem struct {
	TaskKey    string            `dynamodbav:"task_key"`
	Status     domain.TaskStatus `dynamodbav:"status"`
	ReturnCode *int              `dynamodbav:"return_code"`
	StdoutTail string            `dynamodbav:"stdout_tail,omitempty"`
	StderrTail string            `dynamodbav:"stderr_tail,omitempty"`
	Error      string            `dynamodbav:"error,omitempty"`
	UpdatedAt  time.Time         `dynamodbav:"updated_at"`
	ExpiresAt  int64             `dynamodbav:"expires_at"`
}

// NewDynamoStore создаёт DynamoStore. ttl <= 0 — DefaultStateTTL.
func NewDynamoStore(db DynamoAPI, table string, ttl time.Duration) *DynamoStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &DynamoStore{db: db, table: table, ttl: ttl}
}

// NewDynamoClient создаёт клиента из стандартной цепочки AWS конфигурации.
// endpoint — для локального DynamoDB (пустой — AWS по умолчанию).
func NewDynamoClient(cfg aws.Config, endpoint string) *dynamodb.Client {
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

func (s *DynamoStore) keyAttr(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"task_key": &types.AttributeValueMemberS{Value: key},
	}
}

func (s *DynamoStore) Get(ctx context.Context, key string) (*domain.StatusRecord, error) {
	out, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.keyAttr(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb get %s: %w", key, err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}

	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal state %s: %w", key, err)
	}

	return &domain.StatusRecord{
		Status:     item.Status,
		ReturnCode: item.ReturnCode,
		StdoutTail: item.StdoutTail,
		StderrTail: item.StderrTail,
		Error:      item.Error,
		UpdatedAt:  item.UpdatedAt,
	}, nil
}

func (s *DynamoStore) Set(ctx context.Context, key string, rec *domain.StatusRecord) error {
	item, err := attributevalue.MarshalMap(dynamoItem{
		TaskKey:    key,
		Status:     rec.Status,
		ReturnCode: rec.ReturnCode,
		StdoutTail: rec.StdoutTail,
		StderrTail: rec.StderrTail,
		Error:      rec.Error,
		UpdatedAt:  rec.UpdatedAt,
		ExpiresAt:  time.Now().Add(s.ttl).Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("dynamodb put %s: %w", key, err)
	}
	return nil
}

func (s *DynamoStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       s.keyAttr(key),
	})
	if err != nil {
		return fmt.Errorf("dynamodb delete %s: %w", key, err)
	}
	return nil
}

// expiresAt читает TTL атрибут из сырого item (для тестов и отладки).
func expiresAt(item map[string]types.AttributeValue) (int64, bool) {
	n, ok := item["expires_at"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
