// Package session implements the in-memory session table described by
// spec.md §3/§5: a mutex-protected map of live sessions with idle and
// absolute timeouts, periodically swept by a background job grounded on
// the teacher's ledger/local/ledger.go use of github.com/claudiu/gocron.
package session

import (
	"sync"
	"time"

	"github.com/claudiu/gocron"

	"kstor/internal/crypto"
	"kstor/internal/kerr"
	"kstor/internal/model"
)

// Store is a thread-safe table of live sessions.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*model.Session

	idleTimeout time.Duration
	lifeTimeout time.Duration

	scheduler *gocron.Scheduler
	// Now is the clock used for timestamps and expiry checks; tests
	// override it to simulate idle/absolute timeout without sleeping.
	Now func() time.Time
}

// New builds a session store with the given timeouts (spec.md §6's
// session_idle_timeout / session_life_timeout configuration keys).
func New(idleTimeout, lifeTimeout time.Duration) *Store {
	return &Store{
		sessions:    map[string]*model.Session{},
		idleTimeout: idleTimeout,
		lifeTimeout: lifeTimeout,
		Now:         time.Now,
	}
}

// StartSweeper runs a periodic background sweep that evicts expired
// sessions, the same scheduler.Every(n).Seconds().Do(fn).Start() shape
// the teacher uses to run its block-check job.
func (s *Store) StartSweeper(intervalSeconds uint64) {
	s.scheduler = gocron.NewScheduler()
	s.scheduler.Every(intervalSeconds).Seconds().Do(s.sweep)
	s.scheduler.Start()
}

func (s *Store) StopSweeper() {
	if s.scheduler != nil {
		s.scheduler.Clear()
	}
}

func (s *Store) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Now()
	for id, sess := range s.sessions {
		if s.expiredLocked(sess, now) {
			delete(s.sessions, id)
		}
	}
}

func (s *Store) expiredLocked(sess *model.Session, now time.Time) bool {
	n := now.Unix()
	if sess.CreatedAt+int64(s.lifeTimeout.Seconds()) < n {
		return true
	}
	if sess.UpdatedAt+int64(s.idleTimeout.Seconds()) < n {
		return true
	}
	return false
}

// Create registers a new session for userID with the given cached secret
// key and returns it.
func (s *Store) Create(userID string, secretKey *crypto.SecretKey) *model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Now().Unix()
	sess := &model.Session{
		ID:        model.NewSessionID(),
		UserID:    userID,
		SecretKey: secretKey,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions[sess.ID] = sess
	return sess
}

// Get looks up a session by id, failing AUTH/BADSESSION if it is absent
// or expired (spec.md §4.3), and bumps its idle timer (best-effort,
// read-then-write under the store lock per spec.md §5).
func (s *Store) Get(id string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, kerr.New(kerr.AuthBadSession)
	}
	if s.expiredLocked(sess, s.Now()) {
		delete(s.sessions, id)
		return nil, kerr.New(kerr.AuthBadSession)
	}
	sess.UpdatedAt = s.Now().Unix()
	cp := *sess
	return &cp, nil
}

// Delete discards a session, e.g. on logout or when it is rotated out by
// a password change (spec.md §4.3).
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Rotate atomically replaces oldID's session with a fresh one carrying
// newSecretKey, implementing the password-change session rotation
// (spec.md §4.3's "discards the old session, creates a new one").
func (s *Store) Rotate(oldID, userID string, newSecretKey *crypto.SecretKey) *model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, oldID)
	now := s.Now().Unix()
	sess := &model.Session{
		ID:        model.NewSessionID(),
		UserID:    userID,
		SecretKey: newSecretKey,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions[sess.ID] = sess
	return sess
}
