package coach

import (
	"sync"

	"github.com/chris/nudge/internal/db"
)

// session is one user's conversational state. An empty awaiting category
// means idle: no free-text reply is expected.
type session struct {
	mu       sync.Mutex
	awaiting db.Category
}

// sessions is the in-memory table of per-user state. It is not persisted; a
// restart forgets every pending reply.
type sessions struct {
	mu    sync.Mutex
	users map[string]*session
}

func newSessions() *sessions {
	return &sessions{users: make(map[string]*session)}
}

// lock returns the user's session with its mutex held. The caller must unlock
// it once the whole read-transition-write sequence is done.
func (t *sessions) lock(userID string) *session {
	t.mu.Lock()
	s, ok := t.users[userID]
	if !ok {
		s = &session{}
		t.users[userID] = s
	}
	t.mu.Unlock()

	s.mu.Lock()
	return s
}

func (t *sessions) awaiting(userID string) (db.Category, bool) {
	t.mu.Lock()
	s, ok := t.users[userID]
	t.mu.Unlock()
	if !ok {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.awaiting, s.awaiting != ""
}
