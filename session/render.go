package session

import (
	"fmt"
	"strconv"
)

// FormatScore renders a relevance score with exactly three decimals.
func FormatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', 3, 64)
}

func (e EvidenceItem) String() string {
	return fmt.Sprintf("%s (score: %s)", e.URL, FormatScore(e.Score))
}

func (f *Failure) String() string {
	if f == nil {
		return ""
	}
	if f.Kind == FailureTransport {
		return f.Message
	}
	return "Error: " + f.Message
}

func (s IngestionStatus) String() string {
	switch s.Phase {
	case IngestionInProgress:
		return "Ingesting..."
	case IngestionSucceeded:
		line := fmt.Sprintf("Indexed %d passages", s.PassagesIndexed)
		if s.Warning != "" {
			line += " (" + s.Warning + ")"
		}
		return line
	case IngestionFailed:
		return s.Failure.String()
	default:
		return ""
	}
}

func (a AnswerState) String() string {
	switch a.Phase {
	case AnswerPending:
		return "Thinking..."
	case AnswerAnswered:
		return a.Text
	case AnswerFailed:
		return a.Failure.String()
	default:
		return ""
	}
}
