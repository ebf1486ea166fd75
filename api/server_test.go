package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/ragconsole/backend"
	"github.com/fabfab/ragconsole/chat"
	"github.com/fabfab/ragconsole/ingestion"
	"github.com/fabfab/ragconsole/metrics"
	"github.com/fabfab/ragconsole/session"
)

type fixture struct {
	server  *Server
	http    *httptest.Server
	session *session.Session
}

// newFixture wires the API to a fake RAG backend answering with handler.
func newFixture(t *testing.T, handler http.HandlerFunc, opts ...func(*Dependencies)) *fixture {
	t.Helper()

	fake := httptest.NewServer(handler)
	t.Cleanup(fake.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	client := backend.NewClient(fake.URL)
	sess := session.New()

	deps := Dependencies{
		Session:   sess,
		Ingestion: ingestion.NewController(client, sess, ingestion.WithMetrics(m)),
		Query:     chat.NewController(client, sess, chat.WithMetrics(m)),
		Gatherer:  reg,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	srv := New(ctx, deps)
	front := httptest.NewServer(srv)
	t.Cleanup(front.Close)

	return &fixture{server: srv, http: front, session: sess}
}

type stubStore struct {
	calls int
	err   error
}

func (s *stubStore) Truncate(context.Context) error {
	s.calls++
	return s.err
}

func (s *stubStore) Purge(context.Context) error {
	s.calls++
	return s.err
}

func ragBackend(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ingest":
		_, _ = w.Write([]byte(`{"status":"ok","passages_indexed":42}`))
	case "/query":
		_, _ = w.Write([]byte(`{"answer":"X","evidence":[{"url":"u1","id":"abc","score":0.5}]}`))
	default:
		http.NotFound(w, r)
	}
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, snapshotResponse) {
	t.Helper()

	req, err := http.NewRequest(method, f.http.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var snap snapshotResponse
	if resp.StatusCode < 300 {
		require.NoError(t, json.Unmarshal(data, &snap), string(data))
	}
	return resp.StatusCode, snap
}

func TestIngestThenQueryEndToEnd(t *testing.T) {
	f := newFixture(t, ragBackend)

	for i, url := range []string{"https://a", "https://b", "https://c"} {
		status, _ := f.do(t, http.MethodPut, "/v1/sources", fmt.Sprintf(`{"index":%d,"url":%q}`, i, url))
		require.Equal(t, http.StatusOK, status)
	}

	status, _ := f.do(t, http.MethodPost, "/v1/ingest", "")
	require.Equal(t, http.StatusAccepted, status)
	f.server.Wait()

	_, snap := f.do(t, http.MethodGet, "/v1/session", "")
	assert.Equal(t, []string{"https://a", "https://b", "https://c"}, snap.Sources)
	assert.Equal(t, "succeeded", snap.Ingestion.Phase)
	assert.Equal(t, "Indexed 42 passages", snap.Ingestion.Display)
	assert.Equal(t, "empty", snap.Answer.Phase)

	status, _ = f.do(t, http.MethodPut, "/v1/question", `{"question":"what?"}`)
	require.Equal(t, http.StatusOK, status)
	status, _ = f.do(t, http.MethodPost, "/v1/query", "")
	require.Equal(t, http.StatusAccepted, status)
	f.server.Wait()

	_, snap = f.do(t, http.MethodGet, "/v1/session", "")
	assert.Equal(t, "what?", snap.Question)
	assert.Equal(t, "answered", snap.Answer.Phase)
	assert.Equal(t, "X", snap.Answer.Display)
	require.Len(t, snap.Evidence, 1)
	assert.Equal(t, "u1 (score: 0.500)", snap.Evidence[0].Display)
	assert.Equal(t, "abc", snap.Evidence[0].ID)
}

func TestBackendFailureIsReportedInSnapshot(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Please provide exactly 3 URLs"}`))
	})

	f.do(t, http.MethodPost, "/v1/ingest", "")
	f.server.Wait()

	_, snap := f.do(t, http.MethodGet, "/v1/session", "")
	assert.Equal(t, "failed", snap.Ingestion.Phase)
	require.NotNil(t, snap.Ingestion.Failure)
	assert.Equal(t, "backend", snap.Ingestion.Failure.Kind)
	assert.Equal(t, "Error: Please provide exactly 3 URLs", snap.Ingestion.Display)
}

func TestSetSourceRejectsBadIndex(t *testing.T) {
	f := newFixture(t, ragBackend)

	for _, body := range []string{`{"index":3,"url":"x"}`, `{"index":-1,"url":"x"}`, `{"url":"x"}`, `{"index":"0"}`} {
		status, _ := f.do(t, http.MethodPut, "/v1/sources", body)
		assert.Equal(t, http.StatusBadRequest, status, body)
	}
	assert.Equal(t, session.SourceList{}, f.session.Sources())
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t, ragBackend)

	resp, err := http.Post(f.http.URL+"/v1/session", "application/json", bytes.NewReader(nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, http.MethodGet, resp.Header.Get("Allow"))

	var body errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body.Error, "method not allowed")
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, ragBackend)

	resp, err := http.Get(f.http.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	f.do(t, http.MethodPost, "/v1/query", "")
	f.server.Wait()

	resp, err = http.Get(f.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `ragconsole_submissions_total{operation="query",outcome="succeeded"} 1`)
}

func TestStreamSendsSnapshotsOnChange(t *testing.T) {
	f := newFixture(t, ragBackend)

	wsURL := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/v1/session/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var snap snapshotResponse
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, "idle", snap.Ingestion.Phase)
	assert.Equal(t, "", snap.Question)

	status, _ := f.do(t, http.MethodPut, "/v1/question", `{"question":"why?"}`)
	require.Equal(t, http.StatusOK, status)

	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, "why?", snap.Question)
}

func TestAcceptedBodyShowsAttemptInFlight(t *testing.T) {
	f := newFixture(t, ragBackend)

	for i := 0; i < 10; i++ {
		status, snap := f.do(t, http.MethodPost, "/v1/ingest", "")
		require.Equal(t, http.StatusAccepted, status)
		assert.Equal(t, "in_progress", snap.Ingestion.Phase)
		assert.Equal(t, "Ingesting...", snap.Ingestion.Display)

		status, snap = f.do(t, http.MethodPost, "/v1/query", "")
		require.Equal(t, http.StatusAccepted, status)
		assert.Equal(t, "pending", snap.Answer.Phase)
		assert.Equal(t, "Thinking...", snap.Answer.Display)
		assert.Empty(t, snap.Evidence)

		f.server.Wait()
	}
}

func clearMessage(t *testing.T, f *fixture, body string) (int, string) {
	t.Helper()

	resp, err := http.Post(f.http.URL+"/v1/clear", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	if payload.Error != "" {
		return resp.StatusCode, payload.Error
	}
	return resp.StatusCode, payload.Message
}

func TestClearEmptiesConfiguredStores(t *testing.T) {
	archive, graph := &stubStore{}, &stubStore{}
	f := newFixture(t, ragBackend, func(d *Dependencies) {
		d.Archive = archive
		d.Graph = graph
	})

	status, msg := clearMessage(t, f, `{"confirm":true}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "archive cleared", msg)
	assert.Equal(t, 1, archive.calls)
	assert.Equal(t, 1, graph.calls)
}

func TestClearRequiresConfirmation(t *testing.T) {
	archive, graph := &stubStore{}, &stubStore{}
	f := newFixture(t, ragBackend, func(d *Dependencies) {
		d.Archive = archive
		d.Graph = graph
	})

	for _, body := range []string{"", `{}`, `{"confirm":false}`} {
		status, msg := clearMessage(t, f, body)
		assert.Equal(t, http.StatusBadRequest, status, body)
		assert.Equal(t, "confirm must be true to clear data", msg)
	}
	assert.Zero(t, archive.calls)
	assert.Zero(t, graph.calls)

	resp, err := http.Get(f.http.URL + "/v1/clear")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestClearWithoutStores(t *testing.T) {
	f := newFixture(t, ragBackend)

	status, msg := clearMessage(t, f, `{"confirm":true}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "no archive configured", msg)
}

func TestClearReportsStoreFailure(t *testing.T) {
	archive := &stubStore{err: fmt.Errorf("connection reset")}
	graph := &stubStore{}
	f := newFixture(t, ragBackend, func(d *Dependencies) {
		d.Archive = archive
		d.Graph = graph
	})

	status, msg := clearMessage(t, f, `{"confirm":true}`)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "truncate archive: connection reset", msg)
	assert.Zero(t, graph.calls)
}
