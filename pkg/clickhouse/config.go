package clickhouse

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
)

// Config is a ClickHouse connection. NewClient fills zero fields from the
// default tags; Port 0 picks 9000, or 8123 over HTTP.
type Config struct {
	Host            string `default:"localhost"`
	Port            int
	Database        string `default:"default"`
	User            string `default:"default"`
	Password        string
	UseHTTP         bool
	MaxOpenConns    int           `default:"10"`
	MaxIdleConns    int           `default:"5"`
	ConnMaxLifetime time.Duration `default:"5m"`
	DialTimeout     time.Duration `default:"5s"`
	ReadTimeout     time.Duration `default:"10s"`
	// MaxExecTime becomes the max_execution_time setting when positive.
	MaxExecTime time.Duration
	// AsyncInsert buffers single-row inserts server side. Samples arrive
	// one per tick, so it is on in the shipped config.
	AsyncInsert  bool
	WaitForAsync bool
	Compression  string
}

func (c Config) addr() string {
	port := c.Port
	switch {
	case port != 0:
	case c.UseHTTP:
		port = 8123
	default:
		port = 9000
	}
	return c.Host + ":" + strconv.Itoa(port)
}

func (c Config) settings() ch.Settings {
	s := ch.Settings{}
	if c.MaxExecTime > 0 {
		s["max_execution_time"] = int(c.MaxExecTime / time.Second)
	}
	if c.AsyncInsert {
		s["async_insert"] = 1
		if c.WaitForAsync {
			s["wait_for_async_insert"] = 1
		}
	}
	return s
}

func compression(name string) (*ch.Compression, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return nil, nil
	case "lz4":
		return &ch.Compression{Method: ch.CompressionLZ4}, nil
	case "zstd":
		return &ch.Compression{Method: ch.CompressionZSTD}, nil
	}
	return nil, fmt.Errorf("unknown compression %q", name)
}

// options maps c onto driver options.
func (c Config) options() (*ch.Options, error) {
	if c.Host == "" {
		return nil, fmt.Errorf("clickhouse: host is required")
	}
	comp, err := compression(c.Compression)
	if err != nil {
		return nil, fmt.Errorf("clickhouse: %w", err)
	}
	opts := &ch.Options{
		Addr: []string{c.addr()},
		Auth: ch.Auth{
			Database: c.Database,
			Username: c.User,
			Password: c.Password,
		},
		Settings:        c.settings(),
		Compression:     comp,
		DialTimeout:     c.DialTimeout,
		ReadTimeout:     c.ReadTimeout,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}
	if c.UseHTTP {
		opts.Protocol = ch.HTTP
	}
	return opts, nil
}
