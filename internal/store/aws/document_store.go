package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/deskbook/internal/models"
	"github.com/wolfeidau/deskbook/internal/store"
)

// DynamoDBAPI is the subset of the DynamoDB client used by DocumentStore.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// TableNames maps each collection to its DynamoDB table.
type TableNames map[models.Collection]string

// DocumentStore is a DynamoDB implementation of store.DocumentStore with one
// table per collection, keyed by "id". Declared indexes are GSIs named after
// the indexed attribute.
type DocumentStore struct {
	client DynamoDBAPI
	tables TableNames
}

// NewDocumentStore creates a new DynamoDB document store
func NewDocumentStore(client DynamoDBAPI, tables TableNames) *DocumentStore {
	return &DocumentStore{
		client: client,
		tables: tables,
	}
}

func (s *DocumentStore) table(coll models.Collection) (*string, error) {
	name, ok := s.tables[coll]
	if !ok || name == "" {
		return nil, fmt.Errorf("no table configured for collection %q", coll)
	}
	return aws.String(name), nil
}

func itemKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		string(models.FieldID): &types.AttributeValueMemberS{Value: id},
	}
}

// Scan reads every document of the collection
func (s *DocumentStore) Scan(ctx context.Context, coll models.Collection, out any) error {
	table, err := s.table(coll)
	if err != nil {
		return err
	}

	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:      table,
		ConsistentRead: aws.Bool(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return wrapAWSError(err, fmt.Sprintf("failed to scan %s", coll))
		}
		items = append(items, page.Items...)
	}

	if err := attributevalue.UnmarshalListOfMaps(items, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", coll, err)
	}
	return nil
}

// Get reads one document with a strongly consistent read
func (s *DocumentStore) Get(ctx context.Context, coll models.Collection, id string, out any) error {
	table, err := s.table(coll)
	if err != nil {
		return err
	}

	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      table,
		Key:            itemKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return wrapAWSError(err, fmt.Sprintf("failed to get %s", coll))
	}

	if result.Item == nil {
		return store.ErrNotFound
	}

	if err := attributevalue.UnmarshalMap(result.Item, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", coll, err)
	}
	return nil
}

// QueryByIndex queries the GSI named after field. GSI reads are eventually
// consistent.
func (s *DocumentStore) QueryByIndex(ctx context.Context, coll models.Collection, field models.Field, value string, out any) error {
	if !models.HasIndex(coll, field) {
		return fmt.Errorf("%w: %s.%s", store.ErrInvalidIndex, coll, field)
	}
	table, err := s.table(coll)
	if err != nil {
		return err
	}

	keyCond := expression.Key(string(field)).Equal(expression.Value(value))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:                 table,
		IndexName:                 aws.String(string(field)),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return wrapAWSError(err, fmt.Sprintf("failed to query %s by %s", coll, field))
		}
		items = append(items, page.Items...)
	}

	if err := attributevalue.UnmarshalListOfMaps(items, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", coll, err)
	}
	return nil
}

// Put writes a whole document. A failed condition returns store.ErrConflict.
func (s *DocumentStore) Put(ctx context.Context, coll models.Collection, item models.Document, conds ...store.Condition) error {
	table, err := s.table(coll)
	if err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", coll, err)
	}
	expr, err := compile(conds, nil)
	if err != nil {
		return err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 table,
		Item:                      av,
		ConditionExpression:       expr.condition,
		ExpressionAttributeNames:  expr.names,
		ExpressionAttributeValues: expr.values,
	})
	if err != nil {
		return wrapAWSError(err, fmt.Sprintf("failed to put %s", coll))
	}

	log.Debug().Str("collection", string(coll)).Str("id", item.DocumentID()).Msg("document stored")
	return nil
}

// Update applies assignments to an existing document and returns the new
// document in out.
func (s *DocumentStore) Update(ctx context.Context, coll models.Collection, id string, assignments []store.Assignment, out any) error {
	table, err := s.table(coll)
	if err != nil {
		return err
	}
	expr, err := compile([]store.Condition{store.ItemExists{}}, assignments)
	if err != nil {
		return err
	}

	result, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 table,
		Key:                       itemKey(id),
		UpdateExpression:          expr.update,
		ConditionExpression:       expr.condition,
		ExpressionAttributeNames:  expr.names,
		ExpressionAttributeValues: expr.values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return store.ErrNotFound
		}
		return wrapAWSError(err, fmt.Sprintf("failed to update %s", coll))
	}

	if out == nil {
		return nil
	}
	if err := attributevalue.UnmarshalMap(result.Attributes, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", coll, err)
	}
	return nil
}

// Delete removes a document
func (s *DocumentStore) Delete(ctx context.Context, coll models.Collection, id string) error {
	table, err := s.table(coll)
	if err != nil {
		return err
	}

	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: table,
		Key:       itemKey(id),
	})
	if err != nil {
		return wrapAWSError(err, fmt.Sprintf("failed to delete %s", coll))
	}
	return nil
}

// AtomicBatch submits the writes as a single TransactWriteItems call.
func (s *DocumentStore) AtomicBatch(ctx context.Context, writes []store.Write) error {
	if err := store.ValidateBatch(writes); err != nil {
		return err
	}

	items := make([]types.TransactWriteItem, 0, len(writes))
	for i, w := range writes {
		item, err := s.transactItem(w)
		if err != nil {
			return fmt.Errorf("write %d (%s %s/%s): %w", i, w.Kind, w.Collection, w.Key, err)
		}
		items = append(items, item)
	}

	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		return wrapAWSError(err, "failed to commit batch")
	}

	log.Debug().Int("items", len(items)).Msg("batch committed")
	return nil
}

func (s *DocumentStore) transactItem(w store.Write) (types.TransactWriteItem, error) {
	table, err := s.table(w.Collection)
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	expr, err := compile(w.Conditions, w.Assignments)
	if err != nil {
		return types.TransactWriteItem{}, err
	}

	switch w.Kind {
	case store.WritePut:
		av, err := attributevalue.MarshalMap(w.Item)
		if err != nil {
			return types.TransactWriteItem{}, fmt.Errorf("failed to marshal item: %w", err)
		}
		return types.TransactWriteItem{Put: &types.Put{
			TableName:                 table,
			Item:                      av,
			ConditionExpression:       expr.condition,
			ExpressionAttributeNames:  expr.names,
			ExpressionAttributeValues: expr.values,
		}}, nil
	case store.WriteUpdate:
		return types.TransactWriteItem{Update: &types.Update{
			TableName:                 table,
			Key:                       itemKey(w.Key),
			UpdateExpression:          expr.update,
			ConditionExpression:       expr.condition,
			ExpressionAttributeNames:  expr.names,
			ExpressionAttributeValues: expr.values,
		}}, nil
	case store.WriteDelete:
		return types.TransactWriteItem{Delete: &types.Delete{
			TableName:                 table,
			Key:                       itemKey(w.Key),
			ConditionExpression:       expr.condition,
			ExpressionAttributeNames:  expr.names,
			ExpressionAttributeValues: expr.values,
		}}, nil
	default:
		return types.TransactWriteItem{}, fmt.Errorf("%w: unknown write kind %s", store.ErrInvalidBatch, w.Kind)
	}
}
