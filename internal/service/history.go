package service

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/symptom-assessment-server/internal/domain"
)

// DefaultReplayWindow is the number of prior turns replayed into a new prompt.
const DefaultReplayWindow = 6

// Session bounds used when the pipeline config leaves them unset.
const (
	DefaultMaxSessions = 1000
	DefaultSessionTTL  = 30 * time.Minute
)

// ConversationLog is the insertion-ordered turn history of one session.
// A positive limit keeps only the most recent turns.
type ConversationLog struct {
	mu    sync.RWMutex
	turns []domain.ConversationTurn
	limit int
}

// NewConversationLog creates an empty log retaining at most limit turns; zero is unbounded.
func NewConversationLog(limit int) *ConversationLog {
	return &ConversationLog{limit: limit}
}

// Append adds turns atomically, in order.
func (l *ConversationLog) Append(turns ...domain.ConversationTurn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = append(l.turns, turns...)
	if l.limit > 0 && len(l.turns) > l.limit {
		kept := make([]domain.ConversationTurn, l.limit)
		copy(kept, l.turns[len(l.turns)-l.limit:])
		l.turns = kept
	}
}

// Window returns a copy of the last n turns, oldest first.
func (l *ConversationLog) Window(n int) []domain.ConversationTurn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n <= 0 || len(l.turns) == 0 {
		return nil
	}
	start := len(l.turns) - n
	if start < 0 {
		start = 0
	}
	out := make([]domain.ConversationTurn, len(l.turns)-start)
	copy(out, l.turns[start:])
	return out
}

// All returns a copy of the retained history.
func (l *ConversationLog) All() []domain.ConversationTurn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.ConversationTurn, len(l.turns))
	copy(out, l.turns)
	return out
}

// Len returns the number of retained turns.
func (l *ConversationLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}

// SessionHistory keeps one bounded ConversationLog per session key.
// Sessions idle longer than the TTL expire and the least recently written
// session is evicted once the capacity is reached. An empty key is stateless.
type SessionHistory struct {
	mu       sync.Mutex
	sessions *expirable.LRU[string, *ConversationLog]
	maxTurns int
}

// NewSessionHistory creates a store for up to maxSessions sessions, each
// retaining its last maxTurns turns.
func NewSessionHistory(maxSessions int, ttl time.Duration, maxTurns int) *SessionHistory {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionHistory{
		sessions: expirable.NewLRU[string, *ConversationLog](maxSessions, nil, ttl),
		maxTurns: maxTurns,
	}
}

// Window returns the last n turns of session, or nil for an unknown or empty key.
func (h *SessionHistory) Window(session string, n int) []domain.ConversationTurn {
	if session == "" {
		return nil
	}
	log, ok := h.sessions.Get(session)
	if !ok {
		return nil
	}
	return log.Window(n)
}

// Append records turns for session and refreshes its expiry. Empty keys are ignored.
func (h *SessionHistory) Append(session string, turns ...domain.ConversationTurn) {
	if session == "" || len(turns) == 0 {
		return
	}
	h.mu.Lock()
	log, ok := h.sessions.Get(session)
	if !ok {
		log = NewConversationLog(h.maxTurns)
	}
	h.sessions.Add(session, log)
	h.mu.Unlock()

	log.Append(turns...)
}

// Turns returns a copy of the retained turns of session.
func (h *SessionHistory) Turns(session string) []domain.ConversationTurn {
	if session == "" {
		return []domain.ConversationTurn{}
	}
	log, ok := h.sessions.Get(session)
	if !ok {
		return []domain.ConversationTurn{}
	}
	return log.All()
}

// Len returns the number of live sessions.
func (h *SessionHistory) Len() int {
	return h.sessions.Len()
}
