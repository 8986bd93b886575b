package session

import (
	"sync"
	"time"

	"pdfmaster/internal/workflow"
)

// Session is one tool page opened by a client.
type Session struct {
	ID        string
	CreatedAt time.Time

	*workflow.Controller

	mu       sync.Mutex
	lastUsed time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastUsed = now
	s.mu.Unlock()
}

// LastUsed is the last time the session was looked up.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

type Options struct {
	MaxConcurrentSubmissions int
	IdleTTL                  time.Duration
	RequestTimeout           time.Duration
}

const (
	defaultMaxConcurrent = 3
	defaultIdleTTL       = 30 * time.Minute
)
