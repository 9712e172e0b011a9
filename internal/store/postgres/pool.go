package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// defaultApplicationName tags document store sessions in pg_stat_activity.
const defaultApplicationName = "deskbook-documents"

// PoolConfig sizes the connection pool behind the document store. Durations
// are whole seconds so they map directly onto CLI flags and env vars.
type PoolConfig struct {
	// ConnString is a postgres:// URL or key=value DSN.
	ConnString string

	// ApplicationName is reported to the server unless the connection
	// string already sets one. Default: deskbook-documents
	ApplicationName string

	// Default: 20
	MaxConns int32
	// Default: 5, clamped to MaxConns
	MinConns int32

	// Default: 3600
	MaxConnLifetime int32
	// Default: 1800
	MaxConnIdleTime int32
	// Default: 60
	HealthCheckPeriod int32
	// Default: 10
	ConnectTimeout int32
}

// Validate checks that the pool configuration is usable.
func (c *PoolConfig) Validate() error {
	if c.ConnString == "" {
		return fmt.Errorf("connection string is required")
	}
	if c.MaxConns < 0 || c.MinConns < 0 {
		return fmt.Errorf("pool sizes must not be negative")
	}
	if c.MaxConns > 0 && c.MinConns > c.MaxConns {
		return fmt.Errorf("min conns %d exceeds max conns %d", c.MinConns, c.MaxConns)
	}
	return nil
}

// ApplyDefaults fills unset fields.
func (c *PoolConfig) ApplyDefaults() {
	if c.ApplicationName == "" {
		c.ApplicationName = defaultApplicationName
	}
	if c.MaxConns == 0 {
		c.MaxConns = 20
	}
	if c.MinConns == 0 {
		c.MinConns = min(5, c.MaxConns)
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = 3600
	}
	if c.MaxConnIdleTime == 0 {
		c.MaxConnIdleTime = 1800
	}
	if c.HealthCheckPeriod == 0 {
		c.HealthCheckPeriod = 60
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10
	}
}

func seconds(n int32) time.Duration {
	return time.Duration(n) * time.Second
}

// pgxConfig translates the pool settings into a pgxpool config.
func (c *PoolConfig) pgxConfig() (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(c.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	pc.MaxConns = c.MaxConns
	pc.MinConns = c.MinConns
	pc.MaxConnLifetime = seconds(c.MaxConnLifetime)
	pc.MaxConnIdleTime = seconds(c.MaxConnIdleTime)
	pc.HealthCheckPeriod = seconds(c.HealthCheckPeriod)
	pc.ConnConfig.ConnectTimeout = seconds(c.ConnectTimeout)

	// an application_name in the DSN wins
	if _, ok := pc.ConnConfig.RuntimeParams["application_name"]; !ok && c.ApplicationName != "" {
		pc.ConnConfig.RuntimeParams["application_name"] = c.ApplicationName
	}

	return pc, nil
}

// NewPool opens the document store pool and pings it once.
func NewPool(ctx context.Context, cfg *PoolConfig) (*pgxpool.Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("pool config is required")
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pool config: %w", err)
	}

	pc, err := cfg.pgxConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("database", pc.ConnConfig.Database).
		Str("host", pc.ConnConfig.Host).
		Str("application_name", pc.ConnConfig.RuntimeParams["application_name"]).
		Int32("min_conns", pc.MinConns).
		Int32("max_conns", pc.MaxConns).
		Msg("Document store pool connected")

	return pool, nil
}
