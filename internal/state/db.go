// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS cycle_snapshots (
			snapshot_id SERIAL PRIMARY KEY,
			cycle_id VARCHAR(64) NOT NULL,
			pool_id BIGINT NOT NULL,
			snapshot_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,

			total_assets NUMERIC(30, 0) NOT NULL,
			total_shares NUMERIC(30, 0) NOT NULL,
			share_price NUMERIC(30, 0) NOT NULL,
			total_yield NUMERIC(30, 0) NOT NULL,
			accumulated_fees NUMERIC(30, 0) NOT NULL,
			num_users BIGINT NOT NULL,

			current_opportunity SMALLINT NOT NULL,
			best_opportunity SMALLINT NOT NULL,
			current_score INTEGER NOT NULL,
			best_score INTEGER NOT NULL,
			harvested_yield NUMERIC(30, 0) NOT NULL,
			rebalanced BOOLEAN NOT NULL DEFAULT FALSE
		);
		CREATE INDEX IF NOT EXISTS idx_cycle_snapshots_timestamp ON cycle_snapshots(snapshot_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_cycle_snapshots_pool ON cycle_snapshots(pool_id);

		CREATE TABLE IF NOT EXISTS rebalance_decisions (
			record_id SERIAL PRIMARY KEY,
			cycle_id VARCHAR(64) NOT NULL,
			pool_id BIGINT NOT NULL,
			from_index SMALLINT NOT NULL,
			to_index SMALLINT NOT NULL,
			from_protocol VARCHAR(255) NOT NULL,
			to_protocol VARCHAR(255) NOT NULL,
			from_score INTEGER NOT NULL,
			to_score INTEGER NOT NULL,
			decided_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_rebalance_decisions_decided_at ON rebalance_decisions(decided_at DESC);
		CREATE INDEX IF NOT EXISTS idx_rebalance_decisions_pool ON rebalance_decisions(pool_id);

		CREATE TABLE IF NOT EXISTS role_audit (
			entry_id SERIAL PRIMARY KEY,
			pool_id BIGINT NOT NULL,
			actor VARCHAR(255) NOT NULL,
			subject VARCHAR(255) NOT NULL,
			role SMALLINT NOT NULL,
			action VARCHAR(32) NOT NULL,
			audit_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_role_audit_timestamp ON role_audit(audit_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_role_audit_pool ON role_audit(pool_id);
	`
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
