// Package archive keeps an optional record of every ingestion and query
// exchange. Recording never influences session state.
package archive

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/fabfab/ragconsole/session"
)

type IngestionRecord struct {
	ID         uuid.UUID
	Generation uint64
	URLs       []string
	Status     session.IngestionStatus
	Applied    bool
	StartedAt  time.Time
	FinishedAt time.Time
}

type QueryRecord struct {
	ID         uuid.UUID
	Generation uint64
	Question   string
	Answer     session.AnswerState
	Evidence   []session.EvidenceItem
	Applied    bool
	StartedAt  time.Time
	FinishedAt time.Time
}

type Recorder interface {
	RecordIngestion(ctx context.Context, rec IngestionRecord) error
	RecordQuery(ctx context.Context, rec QueryRecord) error
}

// Nop discards every record.
type Nop struct{}

func (Nop) RecordIngestion(context.Context, IngestionRecord) error { return nil }
func (Nop) RecordQuery(context.Context, QueryRecord) error         { return nil }

// Multi fans records out to every recorder and joins their errors.
type Multi []Recorder

func (m Multi) RecordIngestion(ctx context.Context, rec IngestionRecord) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.RecordIngestion(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) RecordQuery(ctx context.Context, rec QueryRecord) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.RecordQuery(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Recorder = Nop{}
	_ Recorder = Multi(nil)
)

// Outcome labels an attempt by its failure, nil meaning success.
func Outcome(f *session.Failure) string {
	if f == nil {
		return "succeeded"
	}
	if f.Kind == session.FailureTransport {
		return "transport_error"
	}
	return "backend_error"
}
