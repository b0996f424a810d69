package reports

import (
	"sync"
	"time"
)

// DefaultSessionIdleTTL is how long a reveal session survives without the
// consumer requesting another batch.
const DefaultSessionIdleTTL = 30 * time.Minute

type sessionEntry struct {
	session    *Session
	lastAccess time.Time
}

// SessionStore holds live reveal sessions by ID. The store tracks access
// times itself and sweeps stale sessions opportunistically on every
// access; there is no background janitor.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
	idleTTL  time.Duration
}

func NewSessionStore(idleTTL time.Duration) *SessionStore {
	if idleTTL <= 0 {
		idleTTL = DefaultSessionIdleTTL
	}
	return &SessionStore{
		sessions: make(map[string]*sessionEntry),
		idleTTL:  idleTTL,
	}
}

// Put registers a session.
func (st *SessionStore) Put(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sweepLocked()
	st.sessions[s.ID] = &sessionEntry{session: s, lastAccess: time.Now()}
}

// Get returns the session for id, or nil when it is unknown or has idled
// out. A successful lookup refreshes the idle clock.
func (st *SessionStore) Get(id string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sweepLocked()

	entry, ok := st.sessions[id]
	if !ok {
		return nil
	}
	entry.lastAccess = time.Now()
	return entry.session
}

// Delete removes a session, ending its reveal sequence.
func (st *SessionStore) Delete(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}

// Len reports the number of live sessions, stale ones included until the
// next sweep.
func (st *SessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

func (st *SessionStore) sweepLocked() {
	cutoff := time.Now().Add(-st.idleTTL)
	for id, entry := range st.sessions {
		if entry.lastAccess.Before(cutoff) {
			delete(st.sessions, id)
		}
	}
}
