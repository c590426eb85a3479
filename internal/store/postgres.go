// Package store implements the off-chain pipeline's durable state: the
// Deduplicator's seen-set, the Submitter's NonceState and transaction log,
// and the sample-history read surface — the only state that needs to
// survive a process restart, per the pipeline's nearly-stateless design.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/sentibridge/oracle/internal/config"
	"github.com/sentibridge/oracle/internal/domain"
	"github.com/sentibridge/oracle/internal/ingest"
)

// DB wraps the SQL database connection pool backing the Deduplicator,
// NonceState, tx log and sample-history stores.
type DB struct {
	*sql.DB
	logger *slog.Logger
}

// New creates a new database connection pool. The daemon's own store is on
// the startup critical path alongside the chain RPC dial: Postgres commonly
// isn't accepting connections yet when the oracle container starts ahead of
// its database sidecar, so the initial ping is retried with the same
// exponential-backoff discipline the Collector uses for transient source
// errors, rather than failing on the first refused connection.
func New(cfg config.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	backoffCfg := ingest.DefaultBackoffConfig()
	dialCtx, cancel := context.WithTimeout(context.Background(), backoffCfg.Cap*time.Duration(backoffCfg.MaxAttempts))
	defer cancel()

	attempt := 0
	err = ingest.RetryTransient(dialCtx, backoffCfg, func() error {
		attempt++
		pingCtx, pingCancel := context.WithTimeout(dialCtx, 5*time.Second)
		defer pingCancel()
		if pingErr := db.PingContext(pingCtx); pingErr != nil {
			logger.Warn("database ping failed, retrying", "attempt", attempt, "error", pingErr)
			return fmt.Errorf("%w: %v", domain.ErrTransientSource, pingErr)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database after %d attempts: %w", attempt, err)
	}

	logger.Info("database connection established",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.Database,
		"attempts", attempt,
	)

	return &DB{DB: db, logger: logger}, nil
}

// PoolStats reports the connection pool's current utilization for the
// status surface, without exposing database/sql types across the package
// boundary.
func (db *DB) PoolStats() (open, inUse, idle int) {
	stats := db.DB.Stats()
	return stats.OpenConnections, stats.InUse, stats.Idle
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck verifies the database connection is healthy.
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.PingContext(ctx)
}

// Transaction executes a function within a database transaction.
func (db *DB) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error("failed to rollback transaction",
				"error", rbErr,
				"original_error", err,
			)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Migrate creates the tables backing the dedup, nonce, tx-log and
// sample-history stores if they do not already exist.
func (db *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS dedup_entries (
			item_id TEXT PRIMARY KEY,
			first_seen_ts TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dedup_entries_first_seen ON dedup_entries(first_seen_ts)`,
		`CREATE TABLE IF NOT EXISTS nonce_state (
			chain_id BIGINT NOT NULL,
			signer_address TEXT NOT NULL,
			next_nonce BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (chain_id, signer_address)
		)`,
		`CREATE TABLE IF NOT EXISTS tx_log (
			hash TEXT PRIMARY KEY,
			chain_id BIGINT NOT NULL,
			signer_address TEXT NOT NULL,
			nonce BIGINT NOT NULL,
			status TEXT NOT NULL,
			assets TEXT NOT NULL,
			scores_fp TEXT NOT NULL DEFAULT '',
			confidences_bp TEXT NOT NULL DEFAULT '',
			sample_sizes TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tx_log_signer_nonce ON tx_log(chain_id, signer_address, nonce)`,
		`CREATE TABLE IF NOT EXISTS sample_history (
			asset TEXT NOT NULL,
			score BIGINT NOT NULL,
			"timestamp" BIGINT NOT NULL,
			sample_size INTEGER NOT NULL,
			confidence INTEGER NOT NULL,
			PRIMARY KEY (asset, "timestamp")
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
