package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/deskbook/internal/models"
)

// TableName returns the table used for a collection in an environment.
func TableName(env string, coll models.Collection) string {
	return fmt.Sprintf("%s_%s", env, coll)
}

// CreateTables creates one table per collection.
// If cleanResources is true, deletes existing tables first to ensure clean state
// If cleanResources is false, reuses existing tables (preserves data)
func CreateTables(ctx context.Context, client *dynamodb.Client, env string, cleanResources bool) (map[models.Collection]string, error) {
	tables := make(map[models.Collection]string, len(models.Collections))
	for _, coll := range models.Collections {
		name := TableName(env, coll)
		if err := createCollectionTable(ctx, client, name, coll, cleanResources); err != nil {
			return nil, fmt.Errorf("failed to create %s table: %w", coll, err)
		}
		tables[coll] = name
	}
	return tables, nil
}

// CreateCollectionTable creates a single collection table (exported for test usage)
// Always deletes existing table first to ensure clean state for tests
func CreateCollectionTable(ctx context.Context, client *dynamodb.Client, tableName string, coll models.Collection) error {
	return createCollectionTable(ctx, client, tableName, coll, true)
}

// CollectionTableInput describes a collection table: the hash key is the
// document id and every declared index becomes a GSI named after its
// attribute, projecting whole documents.
func CollectionTableInput(tableName string, coll models.Collection) *dynamodb.CreateTableInput {
	input := &dynamodb.CreateTableInput{
		TableName: aws.String(tableName),
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String(string(models.FieldID)),
				KeyType:       types.KeyTypeHash,
			},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String(string(models.FieldID)),
				AttributeType: types.ScalarAttributeTypeS,
			},
		},
		BillingMode: types.BillingModePayPerRequest,
	}

	for _, field := range models.Indexes(coll) {
		input.AttributeDefinitions = append(input.AttributeDefinitions, types.AttributeDefinition{
			AttributeName: aws.String(string(field)),
			AttributeType: types.ScalarAttributeTypeS,
		})
		input.GlobalSecondaryIndexes = append(input.GlobalSecondaryIndexes, types.GlobalSecondaryIndex{
			IndexName: aws.String(string(field)),
			KeySchema: []types.KeySchemaElement{
				{
					AttributeName: aws.String(string(field)),
					KeyType:       types.KeyTypeHash,
				},
			},
			Projection: &types.Projection{
				ProjectionType: types.ProjectionTypeAll,
			},
		})
	}

	return input
}

func createCollectionTable(ctx context.Context, client *dynamodb.Client, tableName string, coll models.Collection, cleanResources bool) error {
	// Delete existing table if cleanResources is true
	if cleanResources {
		if err := deleteTableIfExists(ctx, client, tableName); err != nil {
			return err
		}
	}

	_, err := client.CreateTable(ctx, CollectionTableInput(tableName, coll))
	if err != nil {
		// If table already exists and we're not cleaning, that's OK
		var resourceInUse *types.ResourceInUseException
		if !cleanResources && errors.As(err, &resourceInUse) {
			log.Debug().Str("table", tableName).Msg("reusing existing table")
			return nil
		}
		return err
	}

	// Wait for table to be active
	waiter := dynamodb.NewTableExistsWaiter(client)
	return waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	}, 30*time.Second)
}

// deleteTableIfExists attempts to delete a table if it exists
func deleteTableIfExists(ctx context.Context, client *dynamodb.Client, tableName string) error {
	_, err := client.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(tableName),
	})
	if err != nil {
		var resourceNotFound *types.ResourceNotFoundException
		if errors.As(err, &resourceNotFound) {
			return nil
		}
		return err
	}

	waiter := dynamodb.NewTableNotExistsWaiter(client)
	return waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	}, 30*time.Second)
}

// DeleteTables removes the given collection tables
func DeleteTables(ctx context.Context, client *dynamodb.Client, tables map[models.Collection]string) error {
	for coll, name := range tables {
		if err := deleteTableIfExists(ctx, client, name); err != nil {
			return fmt.Errorf("failed to delete %s table: %w", coll, err)
		}
	}
	return nil
}
