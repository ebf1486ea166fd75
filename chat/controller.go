package chat

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
	Query(ctx context.Context, question string) (backend.QueryResult, error)
}

// Result is the outcome of one query attempt.
type Result struct {
	Answer   session.AnswerState
	Evidence []session.EvidenceItem
	Applied  bool
}

// Controller sends the session's question to the backend and writes the
// answer and evidence back into the session.
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

// Submit asks the current question and blocks until the backend answers.
func (c *Controller) Submit(ctx context.Context) Result {
	return c.complete(ctx, c.session.BeginQuery())
}

// Start marks the answer pending and clears evidence, then completes the
// attempt in the background. The returned snapshot shows the pending state
// even if the backend answers first.
func (c *Controller) Start(ctx context.Context) (session.Snapshot, <-chan Result) {
	ticket := c.session.BeginQuery()
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		out <- c.complete(ctx, ticket)
	}()
	return ticket.Began, out
}

func (c *Controller) complete(ctx context.Context, ticket session.QueryTicket) Result {
	id := uuid.New()
	logger := c.logger.With(
		zap.String("request_id", id.String()),
		zap.Uint64("generation", ticket.Generation),
	)
	logger.Info("query submitted", zap.Int("question_len", len(ticket.Question)))

	started := time.Now()
	c.metrics.Started(metrics.OpQuery)
	resp, err := c.backend.Query(backend.WithRequestID(ctx, id.String()), ticket.Question)
	finished := time.Now()

	var res Result
	if err != nil {
		res.Answer = session.AnswerFailedWith(backend.Failure(err))
		res.Evidence = []session.EvidenceItem{}
	} else {
		res.Answer = session.Answered(resp.Answer)
		res.Evidence = toEvidence(resp.Evidence)
	}

	res.Applied = c.session.CompleteQuery(ticket, res.Answer, res.Evidence)
	outcome := archive.Outcome(res.Answer.Failure)
	c.metrics.Finished(metrics.OpQuery, outcome, finished.Sub(started))

	switch {
	case !res.Applied:
		c.metrics.Discarded(metrics.OpQuery)
		logger.Debug("discarded stale query response", zap.String("outcome", outcome))
	case res.Answer.Failure != nil && res.Answer.Failure.Kind == session.FailureTransport:
		logger.Warn("query transport failure", zap.Error(err))
	case res.Answer.Failure != nil:
		logger.Info("query rejected by backend", zap.String("message", res.Answer.Failure.Message))
	default:
		logger.Info("query answered",
			zap.Int("evidence", len(res.Evidence)),
			zap.Duration("elapsed", finished.Sub(started)))
	}

	rec := archive.QueryRecord{
		ID:         id,
		Generation: ticket.Generation,
		Question:   ticket.Question,
		Answer:     res.Answer,
		Evidence:   res.Evidence,
		Applied:    res.Applied,
		StartedAt:  started,
		FinishedAt: finished,
	}
	if recErr := c.recorder.RecordQuery(context.WithoutCancel(ctx), rec); recErr != nil {
		logger.Warn("archive query failed", zap.Error(recErr))
	}

	return res
}

func toEvidence(items []backend.Evidence) []session.EvidenceItem {
	evidence := make([]session.EvidenceItem, len(items))
	for i, item := range items {
		evidence[i] = session.EvidenceItem{URL: item.URL, ID: item.ID, Score: item.Score}
	}
	return evidence
}
