// Package postgres stores content layers in PostgreSQL using pgx v5.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/dungeonforge/internal/config"
)

// contentTables are the tables LayerRepository reads and writes, in the
// order the schema creates them.
var contentTables = []string{"content_configs", "content_records", "content_lines"}

// SchemaError reports a content table missing from the connected database.
type SchemaError struct {
	Table string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("content table %s does not exist; run cmd/migrate first", e.Table)
}

// Pool is a connection pool on the content store.
type Pool struct {
	pool *pgxpool.Pool
	addr string
}

// NewPool connects to the content store described by cfg.
//
// Precondition: cfg must contain valid database connection parameters.
// Postcondition: Returns a connected Pool or a non-nil error naming the
// store's address. The schema is not checked; see Ready.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	addr := fmt.Sprintf("%s:%d/%s", cfg.Host, cfg.Port, cfg.Name)
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing content store config for %s: %w", addr, err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("opening content store %s: %w", addr, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("reaching content store %s: %w", addr, err)
	}

	return &Pool{pool: pool, addr: addr}, nil
}

// Ready checks within timeout that the store answers and that every content
// table exists. A missing table yields a *SchemaError.
func (p *Pool) Ready(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("reaching content store %s: %w", p.addr, err)
	}
	for _, table := range contentTables {
		var exists bool
		if err := p.pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, table).Scan(&exists); err != nil {
			return fmt.Errorf("checking content table %s on %s: %w", table, p.addr, err)
		}
		if !exists {
			return &SchemaError{Table: table}
		}
	}
	return nil
}

// Close releases all pool resources.
func (p *Pool) Close() {
	p.pool.Close()
}

// DB returns the underlying pgxpool.Pool for LayerRepository.
func (p *Pool) DB() *pgxpool.Pool {
	return p.pool
}
