// Package knowledge mirrors archived exchanges into a Neo4j graph linking
// ingestions and questions to the source URLs they touched.
package knowledge

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/fabfab/ragconsole/archive"
)

type GraphRecorder struct {
	driver neo4j.DriverWithContext
}

func NewGraphRecorder(driver neo4j.DriverWithContext) *GraphRecorder {
	return &GraphRecorder{driver: driver}
}

func (g *GraphRecorder) RecordIngestion(ctx context.Context, rec archive.IngestionRecord) error {
	if g.driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			MERGE (i:Ingestion {id: $id})
			SET i.outcome = $outcome,
			    i.passages_indexed = $passages,
			    i.applied = $applied,
			    i.finished_at = datetime($finished_at)
		`, map[string]any{
			"id":          rec.ID.String(),
			"outcome":     archive.Outcome(rec.Status.Failure),
			"passages":    rec.Status.PassagesIndexed,
			"applied":     rec.Applied,
			"finished_at": rec.FinishedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
		}); err != nil {
			return nil, fmt.Errorf("upsert ingestion node: %w", err)
		}

		for position, url := range rec.URLs {
			if url == "" {
				continue
			}
			if _, err := tx.Run(ctx, `
				MATCH (i:Ingestion {id: $id})
				MERGE (s:Source {url: $url})
				MERGE (i)-[:INCLUDED {position: $position}]->(s)
			`, map[string]any{
				"id":       rec.ID.String(),
				"url":      url,
				"position": position,
			}); err != nil {
				return nil, fmt.Errorf("link ingestion source: %w", err)
			}
		}
		return nil, nil
	})
	return err
}

func (g *GraphRecorder) RecordQuery(ctx context.Context, rec archive.QueryRecord) error {
	if g.driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			MERGE (q:Question {id: $id})
			SET q.text = $question,
			    q.answer = $answer,
			    q.outcome = $outcome,
			    q.applied = $applied
		`, map[string]any{
			"id":       rec.ID.String(),
			"question": rec.Question,
			"answer":   rec.Answer.Text,
			"outcome":  archive.Outcome(rec.Answer.Failure),
			"applied":  rec.Applied,
		}); err != nil {
			return nil, fmt.Errorf("upsert question node: %w", err)
		}

		for rank, item := range rec.Evidence {
			if _, err := tx.Run(ctx, `
				MATCH (q:Question {id: $id})
				MERGE (s:Source {url: $url})
				MERGE (q)-[c:CITED {rank: $rank}]->(s)
				SET c.score = $score,
				    c.passage_id = $passage_id
			`, map[string]any{
				"id":         rec.ID.String(),
				"url":        item.URL,
				"rank":       rank,
				"score":      item.Score,
				"passage_id": item.ID,
			}); err != nil {
				return nil, fmt.Errorf("link cited source: %w", err)
			}
		}
		return nil, nil
	})
	return err
}

// SourceCitation counts how often a source URL was cited.
type SourceCitation struct {
	URL       string
	Citations int
	Ingested  int
}

// TopSources returns the most cited source URLs.
func (g *GraphRecorder) TopSources(ctx context.Context, limit int) ([]SourceCitation, error) {
	if g.driver == nil {
		return nil, fmt.Errorf("neo4j driver is nil")
	}
	if limit <= 0 {
		limit = 10
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (s:Source)
		OPTIONAL MATCH (:Question)-[c:CITED]->(s)
		WITH s, count(c) AS citations
		OPTIONAL MATCH (:Ingestion)-[i:INCLUDED]->(s)
		RETURN s.url AS url, citations, count(i) AS ingested
		ORDER BY citations DESC, url
		LIMIT $limit
	`, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("run top sources query: %w", err)
	}

	sources := make([]SourceCitation, 0, limit)
	for result.Next(ctx) {
		record := result.Record()
		url, _ := record.Get("url")
		citations, _ := record.Get("citations")
		ingested, _ := record.Get("ingested")

		u, ok := url.(string)
		if !ok {
			continue
		}
		sources = append(sources, SourceCitation{
			URL:       u,
			Citations: toInt(citations),
			Ingested:  toInt(ingested),
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("top sources result error: %w", err)
	}

	return sources, nil
}

// Purge deletes every node the recorder created.
func (g *GraphRecorder) Purge(ctx context.Context) error {
	if g.driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	queries := []string{
		"MATCH (q:Question) DETACH DELETE q",
		"MATCH (i:Ingestion) DETACH DELETE i",
		"MATCH (s:Source) DETACH DELETE s",
	}

	for _, query := range queries {
		result, err := session.Run(ctx, query, nil)
		if err != nil {
			return err
		}
		if _, err := result.Consume(ctx); err != nil {
			return err
		}
	}
	return nil
}

func toInt(value any) int {
	switch v := value.(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

var _ archive.Recorder = (*GraphRecorder)(nil)
