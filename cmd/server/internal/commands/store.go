package commands

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/deskbook/internal/bootstrap"
	"github.com/wolfeidau/deskbook/internal/models"
	"github.com/wolfeidau/deskbook/internal/store"
	awsstore "github.com/wolfeidau/deskbook/internal/store/aws"
	memorystore "github.com/wolfeidau/deskbook/internal/store/memory"
	postgresstore "github.com/wolfeidau/deskbook/internal/store/postgres"
)

// openStore creates the document store selected by --store-type. The returned
// close function releases backend resources.
func (c *ServerCmd) openStore(ctx context.Context, log zerolog.Logger) (store.DocumentStore, func(), error) {
	switch c.StoreType {
	case "aws":
		docs, err := c.openDynamoDB(ctx, log)
		if err != nil {
			return nil, nil, err
		}
		return docs, func() {}, nil

	case "postgres":
		docs, err := postgresstore.Open(ctx, &postgresstore.StoreConfig{
			Pool: postgresstore.PoolConfig{
				ConnString:      c.Postgres.ConnString,
				MaxConns:        c.Postgres.MaxConns,
				MinConns:        c.Postgres.MinConns,
				MaxConnLifetime: c.Postgres.MaxConnLifetime,
				MaxConnIdleTime: c.Postgres.MaxConnIdleTime,
			},
			AutoMigrate:         c.Postgres.AutoMigrate,
			QueryTimeoutSeconds: c.Postgres.QueryTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		if err := docs.Start(); err != nil {
			return nil, nil, err
		}
		log.Info().Msg("Using PostgreSQL document store")
		return docs, func() {
			if err := docs.Stop(); err != nil {
				log.Error().Err(err).Msg("Failed to stop postgres store")
			}
		}, nil

	default:
		log.Info().Msg("Using in-memory document store")
		return memorystore.NewDocumentStore(), func() {}, nil
	}
}

func (c *ServerCmd) loadAWSConfig(ctx context.Context) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(c.AWS.Region),
	}
	if c.AWS.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AWS.AccessKeyID, c.AWS.SecretAccessKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

func (c *ServerCmd) openDynamoDB(ctx context.Context, log zerolog.Logger) (*awsstore.DocumentStore, error) {
	cfg, err := c.loadAWSConfig(ctx)
	if err != nil {
		return nil, err
	}

	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if c.AWS.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.AWS.Endpoint)
		}
	})

	tables := make(awsstore.TableNames, len(models.Collections))
	for _, coll := range models.Collections {
		tables[coll] = bootstrap.TableName(c.AWS.Environment, coll)
	}

	if c.Development {
		res, err := bootstrap.Bootstrap(ctx, bootstrap.Config{
			DynamoClient:   client,
			Environment:    c.AWS.Environment,
			CleanResources: c.DevelopmentClean,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to bootstrap tables: %w", err)
		}
		tables = res.TableNames
		log.Info().
			Str("endpoint", c.AWS.Endpoint).
			Bool("clean", c.DevelopmentClean).
			Msg("Development tables ready")
	}

	log.Info().Str("region", c.AWS.Region).Str("environment", c.AWS.Environment).Msg("Using DynamoDB document store")
	return awsstore.NewDocumentStore(client, tables), nil
}
