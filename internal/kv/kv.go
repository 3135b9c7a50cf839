// Package kv provides the minimal key-value contract the gateway needs from
// DynamoDB: point reads and writes of single records keyed by one string
// attribute. Two logical tables are used — the active service configuration
// and the per-(provider,region) circuit health records.
package kv

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Store reads and writes single records. Get unmarshals the record into out
// and reports whether it was found. Put writes item under the given key,
// overwriting any existing record (last writer wins).
type Store interface {
	Get(ctx context.Context, table, key string, out any) (bool, error)
	Put(ctx context.Context, table, key string, item any) error
}

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoStore implements Store on DynamoDB. Each table has a single string
// partition key; keyAttrs maps table name to that attribute name.
type DynamoStore struct {
	client   DynamoAPI
	keyAttrs map[string]string
}

// NewDynamoStore creates a DynamoStore. keyAttrs must contain an entry for
// every table the store will touch, e.g. {"ProviderConfig": "configId",
// "ProviderHealth": "providerRegion"}.
func NewDynamoStore(client DynamoAPI, keyAttrs map[string]string) *DynamoStore {
	return &DynamoStore{client: client, keyAttrs: keyAttrs}
}

func (s *DynamoStore) keyAttr(table string) (string, error) {
	attr, ok := s.keyAttrs[table]
	if !ok {
		return "", fmt.Errorf("kv: no key attribute registered for table %q", table)
	}
	return attr, nil
}

// Get performs a strongly consistent point read.
func (s *DynamoStore) Get(ctx context.Context, table, key string, out any) (bool, error) {
	attr, err := s.keyAttr(table)
	if err != nil {
		return false, err
	}
	resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(table),
		Key:            map[string]types.AttributeValue{attr: &types.AttributeValueMemberS{Value: key}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, fmt.Errorf("kv: get %s/%s: %w", table, key, err)
	}
	if len(resp.Item) == 0 {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(resp.Item, out); err != nil {
		return false, fmt.Errorf("kv: unmarshal %s/%s: %w", table, key, err)
	}
	return true, nil
}

// Put marshals item and writes it under key. The key attribute is always set
// from the key argument, so item structs need not carry it themselves.
func (s *DynamoStore) Put(ctx context.Context, table, key string, item any) error {
	attr, err := s.keyAttr(table)
	if err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("kv: marshal %s/%s: %w", table, key, err)
	}
	av[attr] = &types.AttributeValueMemberS{Value: key}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      av,
	}); err != nil {
		return fmt.Errorf("kv: put %s/%s: %w", table, key, err)
	}
	return nil
}
