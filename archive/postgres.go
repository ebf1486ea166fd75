package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/fabfab/ragconsole/session"
)

type PostgresRecorder struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgresRecorder(pool *pgxpool.Pool, logger *zap.Logger) *PostgresRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresRecorder{pool: pool, logger: logger}
}

func (r *PostgresRecorder) RecordIngestion(ctx context.Context, rec IngestionRecord) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	var failureKind, message *string
	if f := rec.Status.Failure; f != nil {
		kind := string(f.Kind)
		failureKind, message = &kind, &f.Message
	}

	if _, err := r.pool.Exec(ctx, `
		INSERT INTO rag_ingestions (id, generation, urls, outcome, passages_indexed, warning, failure_kind, message, applied, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, rec.ID, int64(rec.Generation), rec.URLs, Outcome(rec.Status.Failure), rec.Status.PassagesIndexed,
		rec.Status.Warning, failureKind, message, rec.Applied, rec.StartedAt, rec.FinishedAt); err != nil {
		return fmt.Errorf("insert ingestion: %w", err)
	}

	r.logger.Debug("archived ingestion", zap.String("id", rec.ID.String()))
	return nil
}

func (r *PostgresRecorder) RecordQuery(ctx context.Context, rec QueryRecord) (err error) {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				r.logger.Warn("archive rollback failed", zap.Error(rbErr))
			}
		}
	}()

	var failureKind, message *string
	if f := rec.Answer.Failure; f != nil {
		kind := string(f.Kind)
		failureKind, message = &kind, &f.Message
	}

	if _, err = tx.Exec(ctx, `
		INSERT INTO rag_queries (id, generation, question, outcome, answer, failure_kind, message, applied, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, rec.ID, int64(rec.Generation), rec.Question, Outcome(rec.Answer.Failure), rec.Answer.Text,
		failureKind, message, rec.Applied, rec.StartedAt, rec.FinishedAt); err != nil {
		return fmt.Errorf("insert query: %w", err)
	}

	for rank, item := range rec.Evidence {
		if _, err = tx.Exec(ctx, `
			INSERT INTO rag_evidence (query_id, rank, url, passage_id, score)
			VALUES ($1, $2, $3, $4, $5)
		`, rec.ID, rank, item.URL, item.ID, item.Score); err != nil {
			return fmt.Errorf("insert evidence %d: %w", rank, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	r.logger.Debug("archived query", zap.String("id", rec.ID.String()), zap.Int("evidence", len(rec.Evidence)))
	return nil
}

// Exchange is an archived query with its evidence, as listed by Recent.
type Exchange struct {
	ID         uuid.UUID
	Question   string
	Outcome    string
	Answer     string
	Message    string
	Applied    bool
	FinishedAt time.Time
	Evidence   []session.EvidenceItem
}

// Recent returns the latest archived queries, newest first.
func (r *PostgresRecorder) Recent(ctx context.Context, limit int) ([]Exchange, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, question, outcome, answer, COALESCE(message, ''), applied, finished_at
		FROM rag_queries
		ORDER BY finished_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent exchanges: %w", err)
	}

	exchanges := make([]Exchange, 0, limit)
	index := make(map[uuid.UUID]int, limit)
	for rows.Next() {
		var ex Exchange
		if scanErr := rows.Scan(&ex.ID, &ex.Question, &ex.Outcome, &ex.Answer, &ex.Message, &ex.Applied, &ex.FinishedAt); scanErr != nil {
			rows.Close()
			return nil, fmt.Errorf("scan exchange: %w", scanErr)
		}
		index[ex.ID] = len(exchanges)
		exchanges = append(exchanges, ex)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(exchanges) == 0 {
		return exchanges, nil
	}

	ids := make([]string, 0, len(exchanges))
	for _, ex := range exchanges {
		ids = append(ids, ex.ID.String())
	}

	evRows, err := r.pool.Query(ctx, `
		SELECT query_id, url, passage_id, score
		FROM rag_evidence
		WHERE query_id = ANY($1::uuid[])
		ORDER BY query_id, rank
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("query evidence: %w", err)
	}
	defer evRows.Close()

	for evRows.Next() {
		var (
			queryID uuid.UUID
			item    session.EvidenceItem
		)
		if scanErr := evRows.Scan(&queryID, &item.URL, &item.ID, &item.Score); scanErr != nil {
			return nil, fmt.Errorf("scan evidence: %w", scanErr)
		}
		if i, ok := index[queryID]; ok {
			exchanges[i].Evidence = append(exchanges[i].Evidence, item)
		}
	}
	if err := evRows.Err(); err != nil {
		return nil, err
	}

	return exchanges, nil
}

// Truncate removes every archived exchange.
func (r *PostgresRecorder) Truncate(ctx context.Context) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if _, err := r.pool.Exec(ctx, "TRUNCATE rag_evidence, rag_queries, rag_ingestions"); err != nil {
		return fmt.Errorf("truncate archive tables: %w", err)
	}
	return nil
}

var _ Recorder = (*PostgresRecorder)(nil)
