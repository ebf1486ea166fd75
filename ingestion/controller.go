// Package ingestion submits the session's source list to the backend and
// records the outcome in the session.
package ingestion

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fabfab/ragconsole/archive"
	"github.com/fabfab/ragconsole/backend"
	"github.com/fabfab/ragconsole/metrics"
	"github.com/fabfab/ragconsole/session"
)

type Backend interface {
	Ingest(ctx context.Context, urls []string) (backend.IngestResult, error)
}

type Controller struct {
	backend  Backend
	session  *session.Session
	recorder archive.Recorder
	metrics  *metrics.Collector
	logger   *zap.Logger
}

type Option func(*Controller)

func WithRecorder(r archive.Recorder) Option {
	return func(c *Controller) {
		if r != nil {
			c.recorder = r
		}
	}
}

func WithMetrics(m *metrics.Collector) Option {
	return func(c *Controller) { c.metrics = m }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewController(b Backend, s *session.Session, opts ...Option) *Controller {
	c := &Controller{
		backend:  b,
		session:  s,
		recorder: archive.Nop{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit runs one ingestion attempt to completion and returns its outcome.
// The returned status may differ from the session's if a newer attempt
// superseded this one.
func (c *Controller) Submit(ctx context.Context) session.IngestionStatus {
	return c.complete(ctx, c.session.BeginIngestion())
}

// Start marks ingestion in progress, then completes the attempt in the
// background. The snapshot is the session as of that transition and the
// channel yields the outcome once.
func (c *Controller) Start(ctx context.Context) (session.Snapshot, <-chan session.IngestionStatus) {
	ticket := c.session.BeginIngestion()
	out := make(chan session.IngestionStatus, 1)
	go func() {
		defer close(out)
		out <- c.complete(ctx, ticket)
	}()
	return ticket.Began, out
}

func (c *Controller) complete(ctx context.Context, ticket session.IngestionTicket) session.IngestionStatus {
	id := uuid.New()
	urls := ticket.Sources.Slice()
	logger := c.logger.With(
		zap.String("request_id", id.String()),
		zap.Uint64("generation", ticket.Generation),
	)
	logger.Info("ingestion submitted", zap.Strings("urls", urls))

	started := time.Now()
	c.metrics.Started(metrics.OpIngest)
	result, err := c.backend.Ingest(backend.WithRequestID(ctx, id.String()), urls)
	finished := time.Now()

	var status session.IngestionStatus
	if err != nil {
		status = session.IngestionFailedWith(backend.Failure(err))
	} else {
		status = session.IngestionSucceededWith(result.PassagesIndexed, result.Warning)
	}

	applied := c.session.CompleteIngestion(ticket, status)
	outcome := archive.Outcome(status.Failure)
	c.metrics.Finished(metrics.OpIngest, outcome, finished.Sub(started))

	switch {
	case !applied:
		c.metrics.Discarded(metrics.OpIngest)
		logger.Debug("discarded stale ingestion response", zap.String("outcome", outcome))
	case status.Failure != nil && status.Failure.Kind == session.FailureTransport:
		logger.Warn("ingestion transport failure", zap.Error(err))
	case status.Failure != nil:
		logger.Info("ingestion rejected by backend", zap.String("message", status.Failure.Message))
	default:
		logger.Info("ingestion complete",
			zap.Int("passages_indexed", status.PassagesIndexed),
			zap.Duration("elapsed", finished.Sub(started)))
	}

	rec := archive.IngestionRecord{
		ID:         id,
		Generation: ticket.Generation,
		URLs:       urls,
		Status:     status,
		Applied:    applied,
		StartedAt:  started,
		FinishedAt: finished,
	}
	if recErr := c.recorder.RecordIngestion(context.WithoutCancel(ctx), rec); recErr != nil {
		logger.Warn("archive ingestion failed", zap.Error(recErr))
	}

	return status
}
