package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("NEO4J_URI", "")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOG_FILE", "")
	t.Setenv("RAG_STALE_POLICY", "")
}

func fakeBackend(t *testing.T, handler http.HandlerFunc) string {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv.URL
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := buildRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, name := range []string{"ingest", "ask", "status", "shell", "serve", "history", "clear"} {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestIngestCommand(t *testing.T) {
	isolateEnv(t)
	var urls []string
	backendURL := fakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			URLs []string `json:"urls"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		urls = req.URLs
		_, _ = w.Write([]byte(`{"status":"ok","passages_indexed":42}`))
	})

	out, err := execute(t, "", "--backend", backendURL, "ingest", "https://a", "https://b")
	require.NoError(t, err)
	assert.Equal(t, "Indexed 42 passages\n", out)
	assert.Equal(t, []string{"https://a", "https://b", ""}, urls)
}

func TestFlagsOverrideInvalidEnvironment(t *testing.T) {
	isolateEnv(t)
	t.Setenv("LOG_LEVEL", "verbose")
	t.Setenv("RAG_BACKEND_URL", "not a url")
	backendURL := fakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","passages_indexed":1}`))
	})

	out, err := execute(t, "", "--backend", backendURL, "--log-level", "error", "ingest", "https://a")
	require.NoError(t, err)
	assert.Equal(t, "Indexed 1 passages\n", out)

	_, err = execute(t, "", "--backend", backendURL, "ingest", "https://a")
	assert.ErrorContains(t, err, "LogLevel")
}

func TestIngestCommandRejectsFourURLs(t *testing.T) {
	isolateEnv(t)
	_, err := execute(t, "", "ingest", "a", "b", "c", "d")
	assert.Error(t, err)
}

func TestAskCommandPrintsAnswerAndEvidence(t *testing.T) {
	isolateEnv(t)
	backendURL := fakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"answer":"X","evidence":[{"url":"u1","score":0.5},{"url":"u2","score":1.25}]}`))
	})

	out, err := execute(t, "", "--backend", backendURL, "ask", "what", "happened?")
	require.NoError(t, err)
	assert.Equal(t, "X\n\nEvidence:\n1. u1 (score: 0.500)\n2. u2 (score: 1.250)\n", out)
}

func TestAskCommandPromptsForQuestion(t *testing.T) {
	isolateEnv(t)
	var question string
	backendURL := fakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Question string `json:"question"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		question = req.Question
		_, _ = w.Write([]byte(`{"answer":"ok"}`))
	})

	out, err := execute(t, "from stdin\n", "--backend", backendURL, "ask")
	require.NoError(t, err)
	assert.Equal(t, "from stdin", question)
	assert.Equal(t, "Enter your question: ok\n", out)
}

func TestAskCommandReportsBackendError(t *testing.T) {
	isolateEnv(t)
	backendURL := fakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"X"}`))
	})

	out, err := execute(t, "", "--backend", backendURL, "ask", "q")
	assert.ErrorIs(t, err, errAttemptFailed)
	assert.Equal(t, "Error: X\n", out)
}

func TestAskCommandReportsNetworkError(t *testing.T) {
	isolateEnv(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	backendURL := srv.URL
	srv.Close()

	out, err := execute(t, "", "--backend", backendURL, "ask", "q")
	assert.ErrorIs(t, err, errAttemptFailed)
	assert.True(t, strings.HasPrefix(out, "Network error: "), out)
}

func TestClearWithoutConfirmationAborts(t *testing.T) {
	isolateEnv(t)
	out, err := execute(t, "n\n", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "clear aborted")
}

func TestShellSession(t *testing.T) {
	isolateEnv(t)
	backendURL := fakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ingest":
			_, _ = w.Write([]byte(`{"status":"ok","passages_indexed":0,"warning":"Ingestion produced no passages (check URLs)."}`))
		case "/query":
			_, _ = w.Write([]byte(`{"answer":"X","evidence":[{"url":"u1","score":0.5}]}`))
		}
	})

	ctx := context.Background()
	a, err := newApp(ctx, &rootOptions{backendURL: backendURL})
	require.NoError(t, err)
	defer a.Close(ctx)

	input := strings.Join([]string{
		"source 1 https://a",
		"source 4 https://d",
		"ingest",
		"ask what?",
		"show",
		"quit",
	}, "\n")
	var out bytes.Buffer
	require.NoError(t, runShell(ctx, a, strings.NewReader(input), &out))

	text := out.String()
	assert.Contains(t, text, "source index out of range")
	assert.Contains(t, text, "Indexed 0 passages (Ingestion produced no passages (check URLs).)")
	assert.Contains(t, text, "Source 1: https://a")
	assert.Contains(t, text, "Question: what?")
	assert.Contains(t, text, "Answer: X")
	assert.Contains(t, text, "  - u1 (score: 0.500)")
}
