package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureArchiveSchema creates the exchange archive tables when missing.
func EnsureArchiveSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS rag_ingestions (
			id UUID PRIMARY KEY,
			generation BIGINT NOT NULL,
			urls TEXT[] NOT NULL,
			outcome TEXT NOT NULL,
			passages_indexed INT NOT NULL DEFAULT 0,
			warning TEXT NOT NULL DEFAULT '',
			failure_kind TEXT,
			message TEXT,
			applied BOOLEAN NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS rag_queries (
			id UUID PRIMARY KEY,
			generation BIGINT NOT NULL,
			question TEXT NOT NULL,
			outcome TEXT NOT NULL,
			answer TEXT NOT NULL DEFAULT '',
			failure_kind TEXT,
			message TEXT,
			applied BOOLEAN NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS rag_evidence (
			query_id UUID NOT NULL REFERENCES rag_queries(id) ON DELETE CASCADE,
			rank INT NOT NULL,
			url TEXT NOT NULL,
			passage_id TEXT NOT NULL DEFAULT '',
			score DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (query_id, rank)
		)`,
		"CREATE INDEX IF NOT EXISTS idx_rag_queries_finished ON rag_queries(finished_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_rag_ingestions_finished ON rag_ingestions(finished_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_rag_evidence_url ON rag_evidence(url)",
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}

	return nil
}
