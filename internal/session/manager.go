package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"pdfmaster/internal/artifact"
	"pdfmaster/internal/tool"
	"pdfmaster/internal/workflow"
)

// Manager keeps the live tool sessions in memory and bounds how many
// submissions run against the backend at once.
type Manager struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	client    workflow.Processor
	store     artifact.Store
	opts      Options
	semaphore chan struct{}
	workersWG sync.WaitGroup
	baseCtx   context.Context
	closed    bool
	now       func() time.Time
}

// NewManager creates a manager that sends submissions through client and
// keeps results in store.
func NewManager(client workflow.Processor, store artifact.Store, opts Options) *Manager {
	if opts.MaxConcurrentSubmissions <= 0 {
		opts.MaxConcurrentSubmissions = defaultMaxConcurrent
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = defaultIdleTTL
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = workflow.DefaultTimeout
	}
	return &Manager{
		sessions:  make(map[string]*Session),
		client:    client,
		store:     store,
		opts:      opts,
		semaphore: make(chan struct{}, opts.MaxConcurrentSubmissions),
		baseCtx:   context.Background(),
		now:       time.Now,
	}
}

// IsBusy reports whether every submission slot is taken.
func (m *Manager) IsBusy() bool {
	return len(m.semaphore) >= cap(m.semaphore)
}

// SetBaseContext sets the parent context of every submission. Cancelling it
// cancels all in-flight requests, which is how shutdown drains the backend.
func (m *Manager) SetBaseContext(ctx context.Context) {
	m.mu.Lock()
	m.baseCtx = ctx
	m.mu.Unlock()
}

// Create opens a session bound to the tool named by key.
func (m *Manager) Create(key string) (*Session, error) {
	desc, err := tool.Lookup(key)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	logger := log.With().Str("session_id", id).Str("tool", string(desc.Key)).Logger()
	ctrl, err := workflow.New(desc, m.client, m.store,
		workflow.WithTimeout(m.opts.RequestTimeout),
		workflow.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	now := m.now()
	s := &Session{ID: id, CreatedAt: now, Controller: ctrl, lastUsed: now}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		ctrl.Close()
		return nil, ErrShuttingDown
	}
	m.sessions[id] = s
	m.mu.Unlock()

	logger.Info().Msg("session created")
	return s, nil
}

// Get returns a session by ID and marks it as recently used.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.touch(m.now())
	return s, nil
}

// List returns all sessions, oldest first.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Submit starts a submission for the session if a slot is free. The slot is
// held until the submission settles.
func (m *Manager) Submit(id string, opts tool.Options) (workflow.Snapshot, error) {
	s, err := m.Get(id)
	if err != nil {
		return workflow.Snapshot{}, err
	}
	// A session already in flight is busy on its own; it must not be
	// reported as a full server.
	if snap := s.Snapshot(); snap.State == workflow.StateProcessing {
		return snap, workflow.ErrBusy
	}

	select {
	case m.semaphore <- struct{}{}:
	default:
		return s.Snapshot(), ErrServerBusy
	}

	m.mu.RLock()
	ctx := m.baseCtx
	m.mu.RUnlock()

	snap, err := s.Controller.Submit(ctx, opts)
	if err != nil {
		<-m.semaphore
		return snap, err
	}

	m.workersWG.Add(1)
	go func() {
		defer m.workersWG.Done()
		defer func() { <-m.semaphore }()
		// Controllers always settle: the request carries a deadline.
		final, _ := s.Wait(context.Background())
		log.Debug().Str("session_id", id).Str("state", string(final.State)).Msg("submission settled")
	}()
	return snap, nil
}

// Delete closes a session and drops it.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.Close()
	log.Info().Str("session_id", id).Msg("session closed")
	return nil
}

// Reap closes sessions that have been idle longer than the TTL. Sessions
// with a submission in flight are kept. Returns the number closed.
func (m *Manager) Reap() int {
	cutoff := m.now().Add(-m.opts.IdleTTL)
	var expired []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if s.LastUsed().After(cutoff) || s.State() == workflow.StateProcessing {
			continue
		}
		expired = append(expired, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.Close()
		log.Info().Str("session_id", s.ID).Msg("idle session expired")
	}
	return len(expired)
}

// RunReaper calls Reap every interval until ctx is done.
func (m *Manager) RunReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Reap()
		}
	}
}

// WaitAll blocks until all in-flight submissions settle or the context is done.
// Returns true if all settled, false if timed out.
func (m *Manager) WaitAll(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		m.workersWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// CloseAll closes every session and refuses new ones.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
