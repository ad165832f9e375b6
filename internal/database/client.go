package database

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/config"
)

//go:embed schema.sql
var schema string

// Client wraps the sqlx handle shared by all postgres repositories
type Client struct {
	*sqlx.DB
}

// NewClient connects to postgres, retrying with exponential backoff until
// ctx is done or the retry budget runs out.
func NewClient(ctx context.Context, cfg config.DatabaseConfig) (*Client, error) {
	var db *sqlx.DB

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxElapsedTime = 30 * time.Second

	connect := func() error {
		conn, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
		if err != nil {
			log.Warn().Err(err).Str("component", "Database").Str("host", cfg.Host).Msg("database not reachable, retrying")
			return err
		}
		db = conn
		return nil
	}
	if err := backoff.Retry(connect, backoff.WithContext(policy, ctx)); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Client{DB: db}, nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (c *Client) Migrate(ctx context.Context) error {
	if _, err := c.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
