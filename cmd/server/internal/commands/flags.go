package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/wolfeidau/deskbook/internal/client"
)

// CognitoFlags configures the user pool that issues bearer tokens.
type CognitoFlags struct {
	Region       string `help:"AWS region of the user pool" env:"DESKBOOK_COGNITO_REGION"`
	UserPoolID   string `help:"user pool id, used to derive the JWKS URL" env:"DESKBOOK_COGNITO_USER_POOL_ID"`
	ClientID     string `help:"app client id, enables the /auth routes" env:"DESKBOOK_COGNITO_CLIENT_ID"`
	ClientSecret string `help:"app client secret, if the client has one" env:"DESKBOOK_COGNITO_CLIENT_SECRET"`
}

// JWKSURL returns the well-known key set location of the user pool.
func (c *CognitoFlags) JWKSURL() string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s/.well-known/jwks.json", c.Region, c.UserPoolID)
}

// KeyFlags configures how signing keys are fetched and refreshed.
type KeyFlags struct {
	JWKSURL         string        `help:"JWKS URL, overrides the user pool derived URL" env:"DESKBOOK_JWKS_URL"`
	RefreshInterval time.Duration `help:"interval between scheduled key refreshes" default:"1h" env:"DESKBOOK_KEYS_REFRESH_INTERVAL"`
	RefreshLimit    time.Duration `help:"minimum time between refreshes triggered by unknown key ids" default:"30s" env:"DESKBOOK_KEYS_REFRESH_LIMIT"`
	FetchAttempts   uint          `help:"attempts per key set fetch" default:"3" env:"DESKBOOK_KEYS_FETCH_ATTEMPTS"`
	CacheDir        string        `help:"directory for the HTTP cache of the key set, in memory when empty" env:"DESKBOOK_KEYS_CACHE_DIR"`
	Timeout         time.Duration `help:"HTTP timeout for key set fetches" default:"10s" env:"DESKBOOK_KEYS_TIMEOUT"`
}

func (k *KeyFlags) clientConfig() client.Config {
	cfg := client.DefaultConfig()
	cfg.CacheDir = k.CacheDir
	if k.Timeout > 0 {
		cfg.Timeout = k.Timeout
	}
	return cfg
}

// AWSFlags configures the DynamoDB store.
type AWSFlags struct {
	Region          string `help:"AWS region" default:"us-east-1" env:"DESKBOOK_AWS_REGION"`
	Endpoint        string `help:"DynamoDB endpoint override, for DynamoDB Local or LocalStack" env:"DESKBOOK_AWS_ENDPOINT"`
	AccessKeyID     string `help:"static access key id, the default credential chain is used when empty" env:"DESKBOOK_AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `help:"static secret access key" env:"DESKBOOK_AWS_SECRET_ACCESS_KEY"`
	Environment     string `help:"environment name used as the table name prefix" default:"dev" env:"DESKBOOK_AWS_ENVIRONMENT"`
}

func (a *AWSFlags) Validate() error {
	if a.Region == "" {
		return errors.New("AWS region is required (--aws-region or DESKBOOK_AWS_REGION)")
	}
	if (a.AccessKeyID == "") != (a.SecretAccessKey == "") {
		return errors.New("--aws-access-key-id and --aws-secret-access-key must be set together")
	}
	if a.Environment == "" {
		return errors.New("environment is required (--aws-environment or DESKBOOK_AWS_ENVIRONMENT)")
	}
	return nil
}

// PostgresFlags configures the PostgreSQL store.
type PostgresFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32 `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"5"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800"`
	QueryTimeout    int32 `help:"query and batch timeout in seconds" default:"10"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"DESKBOOK_POSTGRES_AUTO_MIGRATE"`
}

func (p *PostgresFlags) Validate() error {
	if p.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	if p.MinConns > p.MaxConns {
		return fmt.Errorf("--postgres-min-conns (%d) must not exceed --postgres-max-conns (%d)", p.MinConns, p.MaxConns)
	}
	return nil
}
