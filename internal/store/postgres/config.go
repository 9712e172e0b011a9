package postgres

import "fmt"

// StoreConfig holds configuration for the PostgreSQL document store.
type StoreConfig struct {
	// Pool configures the shared connection pool.
	Pool PoolConfig

	// AutoMigrate runs the embedded migrations on open.
	AutoMigrate bool

	// QueryTimeoutSeconds is the maximum time a query or batch can run before timing out.
	// Default: 10 seconds
	// Set to 0 to use context timeouts only (no additional timeout)
	QueryTimeoutSeconds int32
}

// Validate checks that the configuration is valid.
func (c *StoreConfig) Validate() error {
	if err := c.Pool.Validate(); err != nil {
		return err
	}
	if c.QueryTimeoutSeconds < 0 {
		return fmt.Errorf("query timeout must not be negative")
	}
	return nil
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *StoreConfig) ApplyDefaults() {
	c.Pool.ApplyDefaults()
	if c.QueryTimeoutSeconds == 0 {
		c.QueryTimeoutSeconds = 10 // 10 seconds
	}
}
