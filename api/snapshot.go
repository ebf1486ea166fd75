package api

import "github.com/fabfab/ragconsole/session"

type snapshotResponse struct {
	Sources   []string           `json:"sources"`
	Ingestion ingestionResponse  `json:"ingestion"`
	Question  string             `json:"question"`
	Answer    answerResponse     `json:"answer"`
	Evidence  []evidenceResponse `json:"evidence"`
}

type failureResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type ingestionResponse struct {
	Phase           string           `json:"phase"`
	PassagesIndexed int              `json:"passages_indexed"`
	Warning         string           `json:"warning,omitempty"`
	Failure         *failureResponse `json:"failure,omitempty"`
	Display         string           `json:"display"`
}

type answerResponse struct {
	Phase   string           `json:"phase"`
	Text    string           `json:"text"`
	Failure *failureResponse `json:"failure,omitempty"`
	Display string           `json:"display"`
}

type evidenceResponse struct {
	URL     string  `json:"url"`
	ID      string  `json:"id,omitempty"`
	Score   float64 `json:"score"`
	Display string  `json:"display"`
}

func newSnapshotResponse(snap session.Snapshot) snapshotResponse {
	evidence := make([]evidenceResponse, len(snap.Evidence))
	for i, item := range snap.Evidence {
		evidence[i] = evidenceResponse{
			URL:     item.URL,
			ID:      item.ID,
			Score:   item.Score,
			Display: item.String(),
		}
	}

	return snapshotResponse{
		Sources: snap.Sources.Slice(),
		Ingestion: ingestionResponse{
			Phase:           string(snap.Ingestion.Phase),
			PassagesIndexed: snap.Ingestion.PassagesIndexed,
			Warning:         snap.Ingestion.Warning,
			Failure:         newFailureResponse(snap.Ingestion.Failure),
			Display:         snap.Ingestion.String(),
		},
		Question: snap.Question,
		Answer: answerResponse{
			Phase:   string(snap.Answer.Phase),
			Text:    snap.Answer.Text,
			Failure: newFailureResponse(snap.Answer.Failure),
			Display: snap.Answer.String(),
		},
		Evidence: evidence,
	}
}

func newFailureResponse(f *session.Failure) *failureResponse {
	if f == nil {
		return nil
	}
	return &failureResponse{Kind: string(f.Kind), Message: f.Message}
}
