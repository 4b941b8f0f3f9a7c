package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/0xcro3dile/neuroscholar/internal/domain/ports"
	"github.com/0xcro3dile/neuroscholar/internal/domain/usecases"
)

const (
	sessionCookie = "neuroscholar_session"
	sessionIdle   = 12 * time.Hour
)

// session is the per-browser state: the provider built from the entered
// key and the conversation. Neither is persisted.
type session struct {
	id   string
	conv *usecases.Conversation

	mu       sync.RWMutex
	provider *ports.Provider
	lastSeen time.Time
}

func (s *session) Provider() *ports.Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.provider
}

func (s *session) SetProvider(p *ports.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provider = p
}

type sessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*session
	welcome  string
	now      func() time.Time
}

func newSessionStore(welcome string) *sessionStore {
	return &sessionStore{
		sessions: make(map[string]*session),
		welcome:  welcome,
		now:      time.Now,
	}
}

// get returns the session named by the request cookie, creating one (and
// setting the cookie) when it is missing or unknown.
func (st *sessionStore) get(w http.ResponseWriter, r *http.Request) *session {
	if c, err := r.Cookie(sessionCookie); err == nil {
		st.mu.RLock()
		sess, ok := st.sessions[c.Value]
		st.mu.RUnlock()
		if ok {
			sess.mu.Lock()
			sess.lastSeen = st.now()
			sess.mu.Unlock()
			return sess
		}
	}

	sess := &session{
		id:       uuid.NewString(),
		conv:     usecases.NewConversation(st.welcome),
		lastSeen: st.now(),
	}

	st.mu.Lock()
	st.pruneLocked()
	st.sessions[sess.id] = sess
	st.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return sess
}

func (st *sessionStore) pruneLocked() {
	cutoff := st.now().Add(-sessionIdle)
	for id, sess := range st.sessions {
		sess.mu.RLock()
		idle := sess.lastSeen.Before(cutoff)
		sess.mu.RUnlock()
		if idle {
			delete(st.sessions, id)
		}
	}
}

func (st *sessionStore) len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
