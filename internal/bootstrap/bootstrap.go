package bootstrap

import (
	"context"
	"fmt"
)

// Bootstrap creates the DynamoDB tables backing every collection.
// If CleanResources is true, deletes existing resources first to ensure clean state
// If CleanResources is false, creates resources only if they don't exist (preserves data)
func Bootstrap(ctx context.Context, cfg Config) (*Resources, error) {
	if cfg.DynamoClient == nil {
		return nil, fmt.Errorf("DynamoClient is required")
	}
	if cfg.Environment == "" {
		cfg.Environment = "dev" // Default environment
	}

	tables, err := CreateTables(ctx, cfg.DynamoClient, cfg.Environment, cfg.CleanResources)
	if err != nil {
		return nil, fmt.Errorf("failed to create DynamoDB tables: %w", err)
	}

	return &Resources{TableNames: tables}, nil
}

// Cleanup deletes all resources created by Bootstrap
func Cleanup(ctx context.Context, cfg Config, res *Resources) error {
	if err := DeleteTables(ctx, cfg.DynamoClient, res.TableNames); err != nil {
		return fmt.Errorf("failed to delete tables: %w", err)
	}
	return nil
}
