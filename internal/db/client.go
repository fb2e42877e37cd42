package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/hfjohn123/Anthuria-sub001/internal/circuitbreaker"
)

// Config holds database configuration
type Config struct {
	Driver          string // postgres or sqlite3
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	Path            string // sqlite3 file, ":memory:" for tests
	MaxConnections  int
	IdleConnections int
	MaxLifetime     time.Duration
}

// DSN builds the driver connection string
func (c Config) DSN() (string, error) {
	switch c.Driver {
	case "postgres":
		sslmode := c.SSLMode
		if sslmode == "" {
			sslmode = "require"
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Database, sslmode), nil
	case "sqlite3":
		if c.Path == "" {
			return "", errors.New("sqlite3 requires a path")
		}
		return "file:" + c.Path + "?_foreign_keys=on", nil
	default:
		return "", fmt.Errorf("unsupported driver %q", c.Driver)
	}
}

// Client owns the connection pool and the breaker guarding it
type Client struct {
	db      *sqlx.DB
	breaker *circuitbreaker.Breaker
	logger  *zap.Logger
}

// NewClient opens and pings the database
func NewClient(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = 10
	}
	if cfg.IdleConnections == 0 {
		cfg.IdleConnections = 2
	}
	if cfg.MaxLifetime == 0 {
		cfg.MaxLifetime = 5 * time.Minute
	}
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	dbx, err := sqlx.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	dbx.SetMaxOpenConns(cfg.MaxConnections)
	dbx.SetMaxIdleConns(cfg.IdleConnections)
	dbx.SetConnMaxLifetime(cfg.MaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := dbx.PingContext(pingCtx); err != nil {
		_ = dbx.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database client initialized",
		zap.String("driver", cfg.Driver),
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
		zap.Int("max_connections", cfg.MaxConnections),
	)
	return NewClientFromDB(dbx, logger), nil
}

// NewClientFromDB wraps an already open pool
func NewClientFromDB(dbx *sqlx.DB, logger *zap.Logger) *Client {
	settings := circuitbreaker.DatabaseSettings()
	settings.IsFailure = func(err error) bool {
		return !errors.Is(err, ErrNotFound) && !errors.Is(err, context.Canceled)
	}
	return &Client{
		db:      dbx,
		breaker: circuitbreaker.New("assessment-db", settings, logger),
		logger:  logger,
	}
}

// DB exposes the pool
func (c *Client) DB() *sqlx.DB { return c.db }

// Ping checks connectivity through the breaker
func (c *Client) Ping(ctx context.Context) error {
	return c.breaker.Execute(ctx, c.db.PingContext)
}

// Close closes the pool
func (c *Client) Close() error {
	c.logger.Info("Closing database client")
	return c.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS mds_items (
	id            TEXT PRIMARY KEY,
	assessment_id TEXT NOT NULL,
	domain        TEXT NOT NULL,
	variant       TEXT NOT NULL DEFAULT 'default',
	label         TEXT NOT NULL,
	axis          TEXT NOT NULL DEFAULT 'primary',
	score         DOUBLE PRECISION NOT NULL DEFAULT 0,
	recorded      BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_mds_items_assessment ON mds_items (assessment_id, domain, variant);
CREATE TABLE IF NOT EXISTS ai_suggestions (
	item_id   TEXT NOT NULL REFERENCES mds_items (id) ON DELETE CASCADE,
	note_id   TEXT NOT NULL,
	excerpt   TEXT NOT NULL,
	note_date TIMESTAMP,
	PRIMARY KEY (item_id, note_id)
);`

// EnsureSchema creates the assessment tables when they do not exist. Production
// Postgres schemas are managed by migrations; this is used for sqlite3 runs.
func (c *Client) EnsureSchema(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}
