package session

import (
	"sync"
)

// StalePolicy decides what happens to a completion whose ticket is no longer
// the latest for its slot.
type StalePolicy string

const (
	// DiscardStale drops completions from superseded submissions.
	DiscardStale StalePolicy = "discard"
	// LastWriteWins applies every completion in arrival order.
	LastWriteWins StalePolicy = "last-write-wins"
)

// Ticket identifies one submission. Generation increases per slot on every
// Begin call. Began is the session as it stood right after the Begin
// transition.
type Ticket struct {
	Generation uint64
	Began      Snapshot
}

// IngestionTicket also carries the sources captured when the submission began.
type IngestionTicket struct {
	Ticket
	Sources SourceList
}

// QueryTicket also carries the question captured when the submission began.
type QueryTicket struct {
	Ticket
	Question string
}

type Option func(*Session)

func WithStalePolicy(policy StalePolicy) Option {
	return func(s *Session) {
		if policy != "" {
			s.policy = policy
		}
	}
}

// Session is the aggregate state container. All methods are safe for
// concurrent use; each write is published to subscribers as a Snapshot.
type Session struct {
	mu sync.Mutex

	sources   SourceList
	question  string
	ingestion IngestionStatus
	answer    AnswerState
	evidence  []EvidenceItem

	ingestGen uint64
	queryGen  uint64
	policy    StalePolicy

	subscribers map[int]chan Snapshot
	nextSubID   int
}

func New(opts ...Option) *Session {
	s := &Session{
		ingestion:   IngestionStatus{Phase: IngestionIdle},
		answer:      AnswerState{Phase: AnswerEmpty},
		evidence:    []EvidenceItem{},
		policy:      DiscardStale,
		subscribers: make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) Policy() StalePolicy {
	return s.policy
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) Sources() SourceList {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sources
}

// SetSource replaces one source entry; the other entries are untouched.
func (s *Session) SetSource(index int, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.sources.Set(index, value)
	if err != nil {
		return err
	}
	s.sources = next
	s.publishLocked()
	return nil
}

func (s *Session) Question() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.question
}

func (s *Session) SetQuestion(question string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.question = question
	s.publishLocked()
}

// BeginIngestion marks ingestion in progress and clears the answer slot.
func (s *Session) BeginIngestion() IngestionTicket {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ingestGen++
	s.ingestion = IngestionStatus{Phase: IngestionInProgress}
	s.resetAnswerLocked()
	s.publishLocked()
	return IngestionTicket{
		Ticket:  Ticket{Generation: s.ingestGen, Began: s.snapshotLocked()},
		Sources: s.sources,
	}
}

// CompleteIngestion writes the outcome of the ticket's attempt. It reports
// false when the outcome was discarded as stale.
func (s *Session) CompleteIngestion(t IngestionTicket, status IngestionStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.policy == DiscardStale && t.Generation != s.ingestGen {
		return false
	}
	s.ingestion = status
	s.publishLocked()
	return true
}

// BeginQuery marks the answer pending and empties the evidence list.
func (s *Session) BeginQuery() QueryTicket {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queryGen++
	s.answer = AnswerState{Phase: AnswerPending}
	s.evidence = []EvidenceItem{}
	s.publishLocked()
	return QueryTicket{
		Ticket:   Ticket{Generation: s.queryGen, Began: s.snapshotLocked()},
		Question: s.question,
	}
}

// CompleteQuery writes the answer and evidence of the ticket's attempt. A nil
// evidence slice is stored as empty.
func (s *Session) CompleteQuery(t QueryTicket, answer AnswerState, evidence []EvidenceItem) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.policy == DiscardStale && t.Generation != s.queryGen {
		return false
	}
	s.answer = answer
	s.evidence = make([]EvidenceItem, len(evidence))
	copy(s.evidence, evidence)
	s.publishLocked()
	return true
}

// resetAnswerLocked is the ingestion-driven answer reset. It leaves the
// query generation alone, so an in-flight query still writes its result
// after the reset.
func (s *Session) resetAnswerLocked() {
	s.answer = AnswerState{Phase: AnswerEmpty}
}

// Subscribe returns a channel that receives the latest snapshot after every
// change. The channel holds one pending snapshot; a slow reader only sees the
// newest. Call the returned func to unsubscribe.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	ch := make(chan Snapshot, 1)
	s.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subscribers, id)
			close(ch)
		})
	}
}

func (s *Session) publishLocked() {
	if len(s.subscribers) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for _, ch := range s.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

func (s *Session) snapshotLocked() Snapshot {
	evidence := make([]EvidenceItem, len(s.evidence))
	copy(evidence, s.evidence)
	return Snapshot{
		Sources:   s.sources,
		Ingestion: s.ingestion,
		Question:  s.question,
		Answer:    s.answer,
		Evidence:  evidence,
	}
}
