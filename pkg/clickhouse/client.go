package clickhouse

import (
	"context"
	"fmt"
	"strings"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/creasty/defaults"
)

// Client owns a native ClickHouse connection pool.
type Client struct {
	conn     driver.Conn
	database string
}

// NewClient opens the pool against the "default" database, since the
// configured one may not exist before InitSchema runs, and pings it.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("clickhouse defaults: %w", err)
	}
	opts, err := cfg.options()
	if err != nil {
		return nil, err
	}
	opts.Auth.Database = "default"

	conn, err := ch.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("clickhouse ping %s: %w", cfg.addr(), err)
	}
	return &Client{conn: conn, database: cfg.Database}, nil
}

// Conn exposes the pool to repositories.
func (c *Client) Conn() driver.Conn { return c.conn }

func (c *Client) Database() string { return c.database }

func (c *Client) Health(ctx context.Context) error { return c.conn.Ping(ctx) }

// Stats reports pool usage.
func (c *Client) Stats() driver.Stats { return c.conn.Stats() }

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// InitSchema applies idempotent DDL in order. Tables are named with their
// database, so this works on the bootstrap connection.
func (c *Client) InitSchema(ctx context.Context, stmts []string) error {
	for i, stmt := range stmts {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if err := c.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: statement %d: %w", i, err)
		}
	}
	return nil
}
