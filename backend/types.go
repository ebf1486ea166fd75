package backend

type ingestRequest struct {
	URLs []string `json:"urls"`
}

type ingestResponse struct {
	PassagesIndexed *int   `json:"passages_indexed"`
	Warning         string `json:"warning"`
}

type queryRequest struct {
	Question string `json:"question"`
}

type queryResponse struct {
	Answer   string             `json:"answer"`
	Evidence []evidenceResponse `json:"evidence"`
}

type evidenceResponse struct {
	URL   string  `json:"url"`
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// IngestResult is a successful ingest reply.
type IngestResult struct {
	PassagesIndexed int
	Warning         string
}

// QueryResult is a successful query reply. Evidence keeps backend order and
// is never nil.
type QueryResult struct {
	Answer   string
	Evidence []Evidence
}

type Evidence struct {
	URL   string
	ID    string
	Score float64
}
