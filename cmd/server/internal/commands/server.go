package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/deskbook/internal/auth"
	"github.com/wolfeidau/deskbook/internal/client"
	"github.com/wolfeidau/deskbook/internal/cognito"
	"github.com/wolfeidau/deskbook/internal/logger"
	"github.com/wolfeidau/deskbook/internal/server"
	"github.com/wolfeidau/deskbook/internal/telemetry"
)

type ServerCmd struct {
	// Server configuration
	Listen       string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"DESKBOOK_LISTEN"`
	Cert         string `help:"path to TLS cert file, serves plain HTTP when empty" default:"" env:"DESKBOOK_TLS_CERT"`
	Key          string `help:"path to TLS key file" default:"" env:"DESKBOOK_TLS_KEY"`
	MaxBodyBytes int64  `help:"maximum request body size in bytes" default:"1048576" env:"DESKBOOK_MAX_BODY_BYTES"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"http://localhost:3000" env:"DESKBOOK_CORS_ORIGINS"`

	// Identity provider configuration
	Keys    KeyFlags     `embed:"" prefix:"keys-"`
	Cognito CognitoFlags `embed:"" prefix:"cognito-"`

	// Development and operational modes
	Development      bool    `help:"create DynamoDB tables on startup against the configured endpoint" default:"false" env:"DESKBOOK_DEVELOPMENT"`
	DevelopmentClean bool    `help:"drop existing DynamoDB tables before creating them" default:"false" env:"DESKBOOK_DEVELOPMENT_CLEAN"`
	Tracing          bool    `help:"enable tracing" default:"false" env:"DESKBOOK_TRACING"`
	TraceSampleRatio float64 `help:"fraction of requests traced" default:"1" env:"DESKBOOK_TRACE_SAMPLE_RATIO"`

	// Store configuration
	StoreType string        `help:"store type (memory, aws or postgres)" default:"memory" env:"DESKBOOK_STORE_TYPE" enum:"memory,aws,postgres"`
	AWS       AWSFlags      `embed:"" prefix:"aws-"`
	Postgres  PostgresFlags `embed:"" prefix:"postgres-"`
}

// Validate is called by kong after parsing.
func (c *ServerCmd) Validate() error {
	if c.jwksURL() == "" {
		return errors.New("a JWKS URL is required (--keys-jwks-url, or --cognito-region with --cognito-user-pool-id)")
	}
	if (c.Cert == "") != (c.Key == "") {
		return errors.New("--cert and --key must be set together")
	}
	if c.Cognito.ClientID != "" && c.Cognito.Region == "" {
		return errors.New("--cognito-region is required when --cognito-client-id is set")
	}
	if c.DevelopmentClean && !c.Development {
		return errors.New("--development-clean requires --development")
	}

	switch c.StoreType {
	case "aws":
		return c.AWS.Validate()
	case "postgres":
		return c.Postgres.Validate()
	}
	return nil
}

func (c *ServerCmd) jwksURL() string {
	if c.Keys.JWKSURL != "" {
		return c.Keys.JWKSURL
	}
	if c.Cognito.Region != "" && c.Cognito.UserPoolID != "" {
		return c.Cognito.JWKSURL()
	}
	return ""
}

func (c *ServerCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	zerolog.DefaultContextLogger = &log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
			ServiceName:    "deskbook",
			ServiceVersion: globals.Version,
			SampleRatio:    c.TraceSampleRatio,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	docs, closeStore, err := c.openStore(ctx, log)
	if err != nil {
		return err
	}
	defer closeStore()

	jwksURL := c.jwksURL()
	keys := auth.NewKeyRing(ctx, jwksURL, client.NewCachingHTTPClient(c.Keys.clientConfig()),
		auth.WithFetchAttempts(c.Keys.FetchAttempts),
		auth.WithRefreshLimit(c.Keys.RefreshLimit),
	)
	keys.Start(ctx, c.Keys.RefreshInterval)
	defer keys.Stop()

	log.Info().
		Str("jwks_url", jwksURL).
		Int("keys", keys.Len()).
		Dur("refresh_interval", c.Keys.RefreshInterval).
		Msg("Key ring initialized")

	cfg := server.Config{
		Docs:         docs,
		Verifier:     auth.NewTokenVerifier(keys),
		Refresher:    keys,
		CORSOrigins:  c.CORSOrigins,
		Tracing:      c.Tracing,
		MaxBodyBytes: c.MaxBodyBytes,
	}

	if c.Cognito.ClientID != "" {
		awsCfg, err := c.loadCognitoConfig(ctx)
		if err != nil {
			return err
		}
		cfg.Accounts = cognito.NewIdentityProvider(
			cognitoidentityprovider.NewFromConfig(awsCfg),
			c.Cognito.ClientID,
			c.Cognito.ClientSecret,
		)
		log.Info().Str("client_id", c.Cognito.ClientID).Msg("Account routes enabled")
	}

	httpServer := configureHTTPServer(c.Listen, server.NewServer(cfg).Handler(log))

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", c.Listen).Bool("tls", c.Cert != "").Str("store", c.StoreType).Msg("Starting HTTP server")
		if c.Cert != "" {
			errCh <- httpServer.ListenAndServeTLS(c.Cert, c.Key)
			return
		}
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// loadCognitoConfig reuses the AWS credential settings with the user pool region.
func (c *ServerCmd) loadCognitoConfig(ctx context.Context) (aws.Config, error) {
	awsCfg, err := c.loadAWSConfig(ctx)
	if err != nil {
		return awsCfg, err
	}
	awsCfg.Region = c.Cognito.Region
	return awsCfg, nil
}
