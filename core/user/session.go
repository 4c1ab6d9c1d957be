package user

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

type AuthEventKind int

const (
	SignedIn AuthEventKind = iota + 1
	SignedOut
	TokenRefreshed
)

func (k AuthEventKind) String() string {
	switch k {
	case SignedIn:
		return "SIGNED_IN"
	case SignedOut:
		return "SIGNED_OUT"
	case TokenRefreshed:
		return "TOKEN_REFRESHED"
	}
	return "UNKNOWN"
}

// Session is one login of a User. Its ID travels as the `jti` claim of the access token.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s Session) Expired(now time.Time) bool { return !now.Before(s.ExpiresAt) }

// AuthEvent is emitted on every session state change.
// Remaining is the number of sessions the User still holds after the change.
type AuthEvent struct {
	Kind      AuthEventKind
	Session   Session
	Remaining int
}

// Sessions is the identity provider of the API: it issues sessions on login,
// resolves them on every authenticated request and notifies listeners of changes.
type Sessions struct {
	mu        sync.RWMutex
	sessions  map[string]Session
	listeners map[int]func(AuthEvent)
	nextID    int
	now       func() time.Time
}

func NewSessions() *Sessions {
	return &Sessions{
		sessions:  make(map[string]Session),
		listeners: make(map[int]func(AuthEvent)),
		now:       time.Now,
	}
}

// OnAuthStateChange registers fn and returns a func removing it.
// Listeners are called synchronously, outside of any lock.
func (s *Sessions) OnAuthStateChange(fn func(AuthEvent)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *Sessions) emit(ev AuthEvent) {
	s.mu.RLock()
	fns := make([]func(AuthEvent), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// countLocked must be called with s.mu held.
func (s *Sessions) countLocked(userID string) int {
	var n int
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			n++
		}
	}
	return n
}

// Start opens a new session for usr, valid for ttl.
func (s *Sessions) Start(usr User, ttl time.Duration) Session {
	now := s.now().UTC()
	sess := Session{
		ID:        uuid.New().String(),
		UserID:    usr.ID,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	remaining := s.countLocked(usr.ID)
	s.mu.Unlock()

	s.emit(AuthEvent{Kind: SignedIn, Session: sess, Remaining: remaining})
	return sess
}

// Get returns the live session with the given id.
// An expired session is removed and reported as signed out.
func (s *Sessions) Get(id string) (Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if sess.Expired(s.now()) {
		s.remove(sess)
		return Session{}, ErrSessionExpired
	}
	return sess, nil
}

// Refresh extends the session by ttl from now.
func (s *Sessions) Refresh(id string, ttl time.Duration) (Session, error) {
	sess, err := s.Get(id)
	if err != nil {
		return Session{}, err
	}

	s.mu.Lock()
	if _, ok := s.sessions[id]; !ok { // signed out meanwhile
		s.mu.Unlock()
		return Session{}, ErrSessionNotFound
	}
	sess.ExpiresAt = s.now().UTC().Add(ttl)
	s.sessions[id] = sess
	remaining := s.countLocked(sess.UserID)
	s.mu.Unlock()

	s.emit(AuthEvent{Kind: TokenRefreshed, Session: sess, Remaining: remaining})
	return sess, nil
}

// SignOut ends the session with the given id.
func (s *Sessions) SignOut(id string) error {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.remove(sess)
	return nil
}

func (s *Sessions) remove(sess Session) {
	s.mu.Lock()
	if _, ok := s.sessions[sess.ID]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.sessions, sess.ID)
	remaining := s.countLocked(sess.UserID)
	s.mu.Unlock()

	s.emit(AuthEvent{Kind: SignedOut, Session: sess, Remaining: remaining})
}

// ActiveCount returns the number of sessions held by the User, expired ones included until they are looked up.
func (s *Sessions) ActiveCount(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countLocked(userID)
}
