package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fabfab/ragconsole/chat"
	"github.com/fabfab/ragconsole/ingestion"
	"github.com/fabfab/ragconsole/session"
)

// Truncater empties the relational archive.
type Truncater interface {
	Truncate(ctx context.Context) error
}

// Purger empties the citation graph.
type Purger interface {
	Purge(ctx context.Context) error
}

// Dependencies are the components the HTTP API drives. Archive and Graph are
// optional; leave them nil when the store is not configured.
type Dependencies struct {
	Session   *session.Session
	Ingestion *ingestion.Controller
	Query     *chat.Controller
	Archive   Truncater
	Graph     Purger
	Gatherer  prometheus.Gatherer
	Logger    *zap.Logger
}

// Server exposes the session state and its two submissions over HTTP.
type Server struct {
	ctx       context.Context
	session   *session.Session
	ingestion *ingestion.Controller
	query     *chat.Controller
	archive   Truncater
	graph     Purger
	gatherer  prometheus.Gatherer
	logger    *zap.Logger
	handler   http.Handler
	inflight  sync.WaitGroup
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type sourceRequest struct {
	Index *int   `json:"index"`
	URL   string `json:"url"`
}

type questionRequest struct {
	Question string `json:"question"`
}

type clearRequest struct {
	Confirm bool `json:"confirm"`
}

// New constructs a Server. Submissions started over HTTP outlive the request
// that started them and are bound to ctx instead.
func New(ctx context.Context, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		ctx:       ctx,
		session:   deps.Session,
		ingestion: deps.Ingestion,
		query:     deps.Query,
		archive:   deps.Archive,
		graph:     deps.Graph,
		gatherer:  deps.Gatherer,
		logger:    logger,
	}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Wait blocks until every submission started through the API has completed.
func (s *Server) Wait() {
	s.inflight.Wait()
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/session", s.handleSession)
	mux.HandleFunc("/v1/session/stream", s.handleStream)
	mux.HandleFunc("/v1/sources", s.handleSources)
	mux.HandleFunc("/v1/question", s.handleQuestion)
	mux.HandleFunc("/v1/ingest", s.handleIngest)
	mux.HandleFunc("/v1/query", s.handleQuery)
	mux.HandleFunc("/v1/clear", s.handleClear)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	s.writeJSON(w, http.StatusOK, newSnapshotResponse(s.session.Snapshot()))
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		s.methodNotAllowed(w, http.MethodPut)
		return
	}

	var req sourceRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.Index == nil {
		s.writeError(w, http.StatusBadRequest, errors.New("index is required"))
		return
	}

	if err := s.session.SetSource(*req.Index, req.URL); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	s.writeJSON(w, http.StatusOK, newSnapshotResponse(s.session.Snapshot()))
}

func (s *Server) handleQuestion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		s.methodNotAllowed(w, http.MethodPut)
		return
	}

	var req questionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	// The question is sent verbatim; an empty one is the backend's to reject.
	s.session.SetQuestion(req.Question)
	s.writeJSON(w, http.StatusOK, newSnapshotResponse(s.session.Snapshot()))
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	began, done := s.ingestion.Start(s.ctx)
	s.track(func() { <-done })
	s.writeJSON(w, http.StatusAccepted, newSnapshotResponse(began))
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	began, done := s.query.Start(s.ctx)
	s.track(func() { <-done })
	s.writeJSON(w, http.StatusAccepted, newSnapshotResponse(began))
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req clearRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if !req.Confirm {
		s.writeError(w, http.StatusBadRequest, errors.New("confirm must be true to clear data"))
		return
	}

	if s.archive == nil && s.graph == nil {
		s.writeJSON(w, http.StatusOK, messageResponse{Message: "no archive configured"})
		return
	}

	ctx := r.Context()
	if s.archive != nil {
		if err := s.archive.Truncate(ctx); err != nil {
			s.writeError(w, http.StatusInternalServerError, fmt.Errorf("truncate archive: %w", err))
			return
		}
		s.logger.Info("cleared Postgres archive")
	}
	if s.graph != nil {
		if err := s.graph.Purge(ctx); err != nil {
			s.writeError(w, http.StatusInternalServerError, fmt.Errorf("clear neo4j: %w", err))
			return
		}
		s.logger.Info("cleared Neo4j citation graph")
	}

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "archive cleared"})
}

func (s *Server) track(wait func()) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		wait()
	}()
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed, use %s", allowed))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Info("api error", zap.Int("status", status), zap.Error(err))
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}

	return nil
}
