package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

func (db *DB) Close() {
	db.pool.Close()
}

// Ping reports whether the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// RunMigrations creates the tables the service reads and writes.
func (db *DB) RunMigrations(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS parks (
			park_id TEXT PRIMARY KEY,
			park_name TEXT NOT NULL,
			park_city TEXT NOT NULL DEFAULT '',
			park_state TEXT NOT NULL DEFAULT '',
			park_zip TEXT NOT NULL DEFAULT '',
			park_acres DOUBLE PRECISION NOT NULL DEFAULT 0,
			geometry JSONB,
			ndvi DOUBLE PRECISION,
			pm25 DOUBLE PRECISION,
			stats JSONB NOT NULL DEFAULT '{}'::jsonb,
			description TEXT NOT NULL DEFAULT '',
			year_established INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_parks_zip ON parks(park_zip);
		CREATE INDEX IF NOT EXISTS idx_parks_state ON parks(park_state);
		CREATE INDEX IF NOT EXISTS idx_parks_city ON parks(lower(park_city));

		CREATE TABLE IF NOT EXISTS hedera_users (
			wallet_address TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			zip_code TEXT NOT NULL DEFAULT '',
			is_government_employee BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_hedera_users_zip ON hedera_users(zip_code);

		CREATE TABLE IF NOT EXISTS local_proposals (
			id BIGSERIAL PRIMARY KEY,
			park_id TEXT NOT NULL,
			park_name TEXT NOT NULL,
			creator TEXT NOT NULL DEFAULT '',
			deadline TIMESTAMPTZ NOT NULL,
			fundraising_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			funding_goal_tinybar BIGINT NOT NULL DEFAULT 0,
			description TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			analysis JSONB,
			status TEXT NOT NULL,
			ledger_proposal_id BIGINT,
			transaction_id TEXT,
			error TEXT,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_local_proposals_park ON local_proposals(park_id);
	`)
	return err
}
