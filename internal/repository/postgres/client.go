// Package postgres provides the pgx-backed store for the control plane:
// experiments, variants and assignments.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	"go.uber.org/zap"

	"github.com/jeetkatariya/experimentation-platform/internal/config"
)

// Client wraps the Postgres connection pool
type Client struct {
	db     *sql.DB
	config *config.Postgres
	log    *zap.Logger
}

// NewClient opens a Postgres connection pool with the given configuration
func NewClient(ctx context.Context, config *config.Postgres, log *zap.Logger) (*Client, error) {
	log.Info("Connecting to Postgres")

	db, err := sql.Open("pgx", config.DSN)
	if err != nil {
		log.Error("Failed to open Postgres connection", zap.Error(err))
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(config.ConnMaxLifetime) * time.Second)

	if err := db.PingContext(ctx); err != nil {
		log.Error("Failed to ping Postgres", zap.Error(err))
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	log.Info("Postgres connection established successfully")

	return &Client{db: db, config: config, log: log}, nil
}

// DB returns the underlying connection pool
func (c *Client) DB() *sql.DB {
	return c.db
}

// Ping checks if the Postgres connection is alive
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the Postgres connection pool
func (c *Client) Close() error {
	c.log.Info("Closing Postgres connection")
	if err := c.db.Close(); err != nil {
		c.log.Error("Error closing Postgres connection", zap.Error(err))
		return err
	}
	return nil
}
