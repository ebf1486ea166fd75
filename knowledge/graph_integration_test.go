package knowledge_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/ragconsole/archive"
	"github.com/fabfab/ragconsole/database"
	"github.com/fabfab/ragconsole/knowledge"
	"github.com/fabfab/ragconsole/session"
)

// Purge removes every Question, Ingestion and Source node, so point NEO4J_URI
// at a disposable database.
func TestGraphRecorderCountsCitations(t *testing.T) {
	if os.Getenv("RUN_DB_INTEGRATION_TESTS") != "1" {
		t.Skip("set RUN_DB_INTEGRATION_TESTS=1 to run graph integration tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	driver, err := database.NewNeo4jDriver(ctx, os.Getenv("NEO4J_URI"), os.Getenv("NEO4J_USERNAME"), os.Getenv("NEO4J_PASSWORD"))
	if err != nil {
		t.Fatalf("connect neo4j: %v", err)
	}
	defer driver.Close(ctx)

	graph := knowledge.NewGraphRecorder(driver)
	require.NoError(t, graph.Purge(ctx))

	now := time.Now()
	require.NoError(t, graph.RecordIngestion(ctx, archive.IngestionRecord{
		ID:         uuid.New(),
		URLs:       []string{"https://a.example", "", "https://b.example"},
		Status:     session.IngestionSucceededWith(12, ""),
		Applied:    true,
		StartedAt:  now,
		FinishedAt: now,
	}))
	for _, evidence := range [][]session.EvidenceItem{
		{{URL: "https://a.example", Score: 0.9}, {URL: "https://b.example", Score: 0.4}},
		{{URL: "https://a.example", Score: 0.7}, {URL: "https://c.example", Score: 0.1}},
	} {
		require.NoError(t, graph.RecordQuery(ctx, archive.QueryRecord{
			ID:         uuid.New(),
			Question:   "q",
			Answer:     session.Answered("a"),
			Evidence:   evidence,
			Applied:    true,
			StartedAt:  now,
			FinishedAt: now,
		}))
	}

	top, err := graph.TopSources(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []knowledge.SourceCitation{
		{URL: "https://a.example", Citations: 2, Ingested: 1},
		{URL: "https://b.example", Citations: 1, Ingested: 1},
		{URL: "https://c.example", Citations: 1, Ingested: 0},
	}, top)

	require.NoError(t, graph.Purge(ctx))
	top, err = graph.TopSources(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, top)
}
