package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"pdfmaster/internal/artifact"
	"pdfmaster/internal/backend"
	"pdfmaster/internal/tool"
	"pdfmaster/internal/workflow"
)

// gatedProcessor answers every request once gate is closed.
type gatedProcessor struct {
	gate chan struct{}
}

func (p *gatedProcessor) Process(ctx context.Context, req backend.Request) (*backend.Response, error) {
	select {
	case <-p.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &backend.Response{
		Body:        io.NopCloser(strings.NewReader("%PDF-ok")),
		ContentType: "application/pdf",
	}, nil
}

func newTestManager(t *testing.T, maxConcurrent int) (*Manager, *gatedProcessor) {
	t.Helper()
	store, err := artifact.NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("disk store: %v", err)
	}
	proc := &gatedProcessor{gate: make(chan struct{})}
	m := NewManager(proc, store, Options{
		MaxConcurrentSubmissions: maxConcurrent,
		IdleTTL:                  time.Minute,
		RequestTimeout:           5 * time.Second,
	})
	t.Cleanup(m.CloseAll)
	return m, proc
}

func readySession(t *testing.T, m *Manager, key tool.Key) *Session {
	t.Helper()
	s, err := m.Create(string(key))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	files := []workflow.FileHandle{{Name: "a.pdf", ContentType: "application/pdf", Data: []byte("%PDF")}}
	if _, err := s.SelectFiles(files, workflow.SourcePicker); err != nil {
		t.Fatalf("select: %v", err)
	}
	return s
}

func TestCreateAndGet(t *testing.T) {
	m, _ := newTestManager(t, 1)

	if _, err := m.Create("rotate"); !errors.Is(err, tool.ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}

	s, err := m.Create(" Merge ")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.Descriptor().Key != tool.Merge {
		t.Fatalf("expected merge, got %s", s.Descriptor().Key)
	}
	got, err := m.Get(s.ID)
	if err != nil || got != s {
		t.Fatalf("get returned %v, %v", got, err)
	}
	if _, err := m.Get("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if n := len(m.List()); n != 1 {
		t.Fatalf("expected 1 session, got %d", n)
	}
}

func TestSubmitHoldsSlotUntilSettled(t *testing.T) {
	m, proc := newTestManager(t, 1)
	first := readySession(t, m, tool.Compress)
	second := readySession(t, m, tool.Compress)

	if _, err := m.Submit(first.ID, nil); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !m.IsBusy() {
		t.Fatalf("expected manager to be busy")
	}
	snap, err := m.Submit(second.ID, nil)
	if !errors.Is(err, ErrServerBusy) {
		t.Fatalf("expected ErrServerBusy, got %v", err)
	}
	if snap.State != workflow.StateReady {
		t.Fatalf("rejected session should stay ready, got %s", snap.State)
	}

	close(proc.gate)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if !m.WaitAll(ctx) {
		t.Fatalf("submission did not settle")
	}
	if m.IsBusy() {
		t.Fatalf("slot should be released after settle")
	}
	if st := first.State(); st != workflow.StateSucceeded {
		t.Fatalf("expected succeeded, got %s", st)
	}

	if _, err := m.Submit(second.ID, nil); err != nil {
		t.Fatalf("second submit after release: %v", err)
	}
	if !m.WaitAll(ctx) {
		t.Fatalf("second submission did not settle")
	}
}

func TestResubmitWhileProcessingIsBusyNotServerBusy(t *testing.T) {
	m, proc := newTestManager(t, 1)
	s := readySession(t, m, tool.Compress)

	if _, err := m.Submit(s.ID, nil); err != nil {
		t.Fatalf("submit: %v", err)
	}
	snap, err := m.Submit(s.ID, nil)
	if !errors.Is(err, workflow.ErrBusy) {
		t.Fatalf("expected workflow.ErrBusy for a session in flight, got %v", err)
	}
	if snap.State != workflow.StateProcessing {
		t.Fatalf("expected processing, got %s", snap.State)
	}

	close(proc.gate)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if !m.WaitAll(ctx) {
		t.Fatalf("submission did not settle")
	}
	if m.IsBusy() {
		t.Fatalf("busy rejection must not leak a slot")
	}
}

func TestRejectedSubmitReleasesSlot(t *testing.T) {
	m, _ := newTestManager(t, 1)
	s, err := m.Create(string(tool.Merge))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := m.Submit(s.ID, nil); !errors.Is(err, workflow.ErrNoFiles) {
		t.Fatalf("expected ErrNoFiles, got %v", err)
	}
	if m.IsBusy() {
		t.Fatalf("failed submit must not keep a slot")
	}
}

func TestCancelBaseContextCancelsSubmissions(t *testing.T) {
	m, _ := newTestManager(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	m.SetBaseContext(ctx)

	s := readySession(t, m, tool.Unlock)
	if _, err := m.Submit(s.ID, tool.UnlockOptions{Password: "secret"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	if !m.WaitAll(waitCtx) {
		t.Fatalf("workers did not drain")
	}
	snap := s.Snapshot()
	if snap.State != workflow.StateFailed || snap.ErrorKind != workflow.KindCanceled {
		t.Fatalf("expected canceled failure, got %s/%s", snap.State, snap.ErrorKind)
	}
}

func TestDelete(t *testing.T) {
	m, _ := newTestManager(t, 1)
	s := readySession(t, m, tool.Split)
	if err := m.Delete(s.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.Get(s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := m.Delete(s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	if _, err := s.SelectFiles(nil, workflow.SourceDrop); !errors.Is(err, workflow.ErrClosed) {
		t.Fatalf("deleted session should be closed, got %v", err)
	}
}

func TestReapSkipsActiveAndProcessing(t *testing.T) {
	m, proc := newTestManager(t, 2)
	clock := time.Now()
	m.now = func() time.Time { return clock }

	idle := readySession(t, m, tool.Merge)
	busy := readySession(t, m, tool.Merge)
	if _, err := m.Submit(busy.ID, nil); err != nil {
		t.Fatalf("submit: %v", err)
	}

	clock = clock.Add(2 * time.Minute)
	fresh := readySession(t, m, tool.Merge)

	if n := m.Reap(); n != 1 {
		t.Fatalf("expected 1 reaped session, got %d", n)
	}
	if _, err := m.Get(idle.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("idle session should be reaped")
	}
	if _, err := m.Get(busy.ID); err != nil {
		t.Fatalf("processing session should survive: %v", err)
	}
	if _, err := m.Get(fresh.ID); err != nil {
		t.Fatalf("fresh session should survive: %v", err)
	}
	close(proc.gate)
}

func TestCloseAllRefusesNewSessions(t *testing.T) {
	m, _ := newTestManager(t, 1)
	readySession(t, m, tool.Merge)
	m.CloseAll()
	if n := len(m.List()); n != 0 {
		t.Fatalf("expected no sessions, got %d", n)
	}
	if _, err := m.Create(string(tool.Merge)); !errors.Is(err, ErrShuttingDown) {
		t.Fatalf("expected ErrShuttingDown, got %v", err)
	}
}
