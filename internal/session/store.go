package session

import (
	"sync"
	"time"

	"github.com/catscratch/catbot/internal/domain"
	"github.com/catscratch/catbot/pkg/logger"
)

// Store holds per-user message drafts while the form flow is in progress.
// Drafts are transient by design: they expire after the configured TTL and a
// janitor goroutine sweeps them, so abandoned forms never accumulate.
type Store struct {
	ttl time.Duration

	mu     sync.Mutex
	drafts map[string]entry

	stopChan chan struct{}
	doneChan chan struct{}
}

type entry struct {
	draft     domain.ScheduledMessage
	expiresAt time.Time
}

func NewStore(ttl time.Duration) *Store {
	s := &Store{
		ttl:      ttl,
		drafts:   make(map[string]entry),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}

	go s.janitor()

	return s
}

// Put stores or replaces the user's draft and restarts its TTL.
func (s *Store) Put(userID string, draft domain.ScheduledMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drafts[userID] = entry{
		draft:     draft,
		expiresAt: time.Now().Add(s.ttl),
	}
}

// Get returns the user's draft if it exists and has not expired.
func (s *Store) Get(userID string) (domain.ScheduledMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.drafts[userID]
	if !ok {
		return domain.ScheduledMessage{}, false
	}
	if time.Now().After(e.expiresAt) {
		delete(s.drafts, userID)
		return domain.ScheduledMessage{}, false
	}

	return e.draft, true
}

// Delete drops the user's draft, typically after a successful submit.
func (s *Store) Delete(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.drafts, userID)
}

// Len reports the number of live drafts (expired ones included until swept).
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.drafts)
}

// Close stops the janitor.
func (s *Store) Close() {
	close(s.stopChan)
	<-s.doneChan
}

func (s *Store) janitor() {
	defer close(s.doneChan)

	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopChan:
			return
		}
	}
}

func (s *Store) sweep() {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for userID, e := range s.drafts {
		if now.After(e.expiresAt) {
			delete(s.drafts, userID)
			removed++
		}
	}

	if removed > 0 {
		logger.Debugf("Session janitor removed %d expired drafts", removed)
	}
}
