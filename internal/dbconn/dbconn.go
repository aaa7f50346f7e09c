// Package dbconn owns the pgx connection pool and the engine-side
// primitives the pipeline needs: the syntax probe and plan collection.
// Every statement runs inside a transaction that is always rolled back.
package dbconn

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aviciot/queryscope/internal/qerror"
)

// Options bounds the pool and per-statement work.
type Options struct {
	MinConns         int32
	MaxConns         int32
	ConnectTimeout   time.Duration
	StatementTimeout time.Duration
}

// DefaultOptions keeps the pool small; analysis is bursty, not throughput
// bound.
var DefaultOptions = Options{
	MinConns:         0,
	MaxConns:         4,
	ConnectTimeout:   10 * time.Second,
	StatementTimeout: 30 * time.Second,
}

// Conn wraps a pool for one target database.
type Conn struct {
	pool *pgxpool.Pool
	opts Options
}

// Open parses the DSN and establishes the pool. The pool itself connects
// lazily; Ping forces one round trip so connection problems surface here
// with the right error kind instead of mid-analysis.
func Open(ctx context.Context, dsn string, opts Options) (*Conn, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, qerror.Wrap(qerror.ConnectionError, err,
			"invalid connection string",
			"check the dsn in the profile for this database")
	}
	cfg.MinConns = opts.MinConns
	cfg.MaxConns = opts.MaxConns
	if opts.ConnectTimeout > 0 {
		cfg.ConnConfig.ConnectTimeout = opts.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, connErr(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, connErr(err)
	}
	return &Conn{pool: pool, opts: opts}, nil
}

func (c *Conn) Close() { c.pool.Close() }

// Pool exposes the underlying pool for the history store when it shares the
// target database.
func (c *Conn) Pool() *pgxpool.Pool { return c.pool }

var probeSeq atomic.Uint64

// probeName returns a name no other probe in this process uses, so pooled
// connections can never see a colliding PREPARE.
func probeName() string {
	return fmt.Sprintf("queryscope_probe_%d", probeSeq.Add(1))
}

// Probe asks the engine to parse the statement without planning or running
// it. Server-side prepared statements are session objects that survive
// rollback, so the probe pins one connection, names the statement uniquely,
// and deallocates it before releasing the connection back to the pool.
func (c *Conn) Probe(ctx context.Context, sql string) error {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return connErr(err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return connErr(err)
	}

	name := probeName()
	_, prepErr := tx.Exec(ctx, "PREPARE "+name+" AS "+sql)
	_ = tx.Rollback(ctx)

	if prepErr == nil {
		// A failed PREPARE creates nothing; only the success path leaves a
		// statement behind in the session.
		_, _ = conn.Exec(ctx, "DEALLOCATE "+name)
	}
	return prepErr
}

// Explain retrieves the estimated plan as JSON. ANALYZE is never requested;
// the statement is planned, not executed.
func (c *Conn) Explain(ctx context.Context, sql string) ([]byte, error) {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return nil, connErr(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if c.opts.StatementTimeout > 0 {
		timeout := fmt.Sprintf("SET LOCAL statement_timeout = %d", c.opts.StatementTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, timeout); err != nil {
			return nil, connErr(err)
		}
	}

	var raw string
	err = tx.QueryRow(ctx, "EXPLAIN (VERBOSE, COSTS, FORMAT JSON) "+sql).Scan(&raw)
	if err != nil {
		return nil, qerror.Wrap(qerror.CollectorError, err,
			"explain failed",
			"verify the statement is explainable by the analysis role")
	}
	return []byte(raw), nil
}

func connErr(err error) error {
	return qerror.Wrap(qerror.ConnectionError, err,
		"database unreachable",
		"check host, port, credentials and network; connection errors are retryable")
}
