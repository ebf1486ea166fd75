// Package session holds the observable client state that the ingestion and
// query controllers mutate and that a presentation layer reads.
package session

// FailureKind separates failures the backend reported from exchanges that
// never produced a usable response.
type FailureKind string

const (
	FailureBackend   FailureKind = "backend"
	FailureTransport FailureKind = "transport"
)

const (
	// UnknownError is used when a backend error response carries no message.
	UnknownError = "unknown"
	// TransportPrefix starts every transport failure message.
	TransportPrefix = "Network error: "
)

type Failure struct {
	Kind    FailureKind
	Message string
}

// BackendFailure builds a failure from a backend-reported message, falling
// back to UnknownError when the message is empty.
func BackendFailure(message string) *Failure {
	if message == "" {
		message = UnknownError
	}
	return &Failure{Kind: FailureBackend, Message: message}
}

// TransportFailure builds a failure for an exchange that did not complete.
func TransportFailure(err error) *Failure {
	description := "request failed"
	if err != nil {
		description = err.Error()
	}
	return &Failure{Kind: FailureTransport, Message: TransportPrefix + description}
}

type IngestionPhase string

const (
	IngestionIdle       IngestionPhase = "idle"
	IngestionInProgress IngestionPhase = "in_progress"
	IngestionSucceeded  IngestionPhase = "succeeded"
	IngestionFailed     IngestionPhase = "failed"
)

// IngestionStatus is the current outcome of the latest ingestion attempt.
// PassagesIndexed and Warning are set only when Phase is IngestionSucceeded;
// Failure only when Phase is IngestionFailed.
type IngestionStatus struct {
	Phase           IngestionPhase
	PassagesIndexed int
	Warning         string
	Failure         *Failure
}

func IngestionSucceededWith(passages int, warning string) IngestionStatus {
	return IngestionStatus{Phase: IngestionSucceeded, PassagesIndexed: passages, Warning: warning}
}

func IngestionFailedWith(f *Failure) IngestionStatus {
	return IngestionStatus{Phase: IngestionFailed, Failure: f}
}

type AnswerPhase string

const (
	AnswerEmpty    AnswerPhase = "empty"
	AnswerPending  AnswerPhase = "pending"
	AnswerAnswered AnswerPhase = "answered"
	AnswerFailed   AnswerPhase = "failed"
)

// AnswerState is the current outcome of the latest query attempt.
type AnswerState struct {
	Phase   AnswerPhase
	Text    string
	Failure *Failure
}

func Answered(text string) AnswerState {
	return AnswerState{Phase: AnswerAnswered, Text: text}
}

func AnswerFailedWith(f *Failure) AnswerState {
	return AnswerState{Phase: AnswerFailed, Failure: f}
}

// EvidenceItem is one cited source, in backend order. Score is the backend's
// relevance measure and is not normalised.
type EvidenceItem struct {
	URL   string
	ID    string
	Score float64
}

// Snapshot is a copy of the session state at one point in time.
type Snapshot struct {
	Sources   SourceList
	Ingestion IngestionStatus
	Question  string
	Answer    AnswerState
	Evidence  []EvidenceItem
}
