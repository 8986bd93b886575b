// Package workflow implements the upload-and-process lifecycle of one tool
// session: file selection, submission to the backend, cancellation and
// timeout, and ownership of the resulting artifact.
package workflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pdfmaster/internal/artifact"
	"pdfmaster/internal/backend"
	"pdfmaster/internal/tool"
)

// DefaultTimeout bounds a submission from Submit until the artifact is stored.
const DefaultTimeout = 120 * time.Second

// Progress checkpoints. The transport exposes no byte-level progress, so the
// estimate only ever advances through these values.
const (
	progressSent     = 5
	progressHeaders  = 85
	progressBodyRead = 95
	progressDone     = 100
)

// Processor sends one submission to the backend.
type Processor interface {
	Process(ctx context.Context, req backend.Request) (*backend.Response, error)
}

// Controller owns one tool session. All methods are safe for concurrent use;
// Submit returns immediately and the outcome is applied asynchronously.
type Controller struct {
	mu sync.Mutex

	desc    tool.Descriptor
	client  Processor
	store   artifact.Store
	timeout time.Duration
	logger  zerolog.Logger
	machine *machine

	files         []FileHandle
	progress      int
	result        *artifact.Artifact
	suggestedName string
	failure       *Error

	attempt uint64
	cancel  context.CancelFunc
	settled chan struct{}
	closed  bool
}

// Option customises a Controller.
type Option func(*Controller)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger used for transitions and outcomes.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// New starts a session for desc in the Idle state.
func New(desc tool.Descriptor, client Processor, store artifact.Store, opts ...Option) (*Controller, error) {
	if client == nil || store == nil {
		return nil, fmt.Errorf("workflow %s: nil processor or artifact store", desc.Key)
	}
	c := &Controller{
		desc:    desc,
		client:  client,
		store:   store,
		timeout: DefaultTimeout,
		logger:  log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("tool", string(desc.Key)).Logger()

	m, err := newMachine(c.logger)
	if err != nil {
		return nil, err
	}
	c.machine = m
	return c, nil
}

// Descriptor returns the tool this session is bound to.
func (c *Controller) Descriptor() tool.Descriptor { return c.desc }

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.state()
}

// Snapshot returns a consistent view of the session.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// SelectFiles replaces the selection with the candidates that pass the tool's
// accept filter, truncated to one file for single-file tools. Rejected
// candidates are dropped silently. An empty result returns the session to Idle.
func (c *Controller) SelectFiles(candidates []FileHandle, source Source) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editableLocked(); err != nil {
		return c.snapshotLocked(), err
	}

	selected := make([]FileHandle, 0, len(candidates))
	for _, f := range candidates {
		if !c.desc.Accepts(f.Name, f.ContentType) {
			c.logger.Debug().Str("file", f.Name).Str("content_type", f.ContentType).Str("source", string(source)).Msg("file filtered by accept")
			continue
		}
		selected = append(selected, f)
		if !c.desc.Multiple {
			break
		}
	}
	c.files = selected

	if err := c.syncSelectionLocked(); err != nil {
		return c.snapshotLocked(), err
	}
	c.logger.Debug().Int("offered", len(candidates)).Int("selected", len(selected)).Str("source", string(source)).Msg("files selected")
	return c.snapshotLocked(), nil
}

// RemoveFile drops the file at index. Out-of-range indexes are ignored.
func (c *Controller) RemoveFile(index int) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editableLocked(); err != nil {
		return c.snapshotLocked(), err
	}
	if index < 0 || index >= len(c.files) {
		return c.snapshotLocked(), nil
	}
	c.files = append(c.files[:index:index], c.files[index+1:]...)
	if err := c.syncSelectionLocked(); err != nil {
		return c.snapshotLocked(), err
	}
	return c.snapshotLocked(), nil
}

// Submit sends the selection with opts to the tool's endpoint. A nil opts
// uses the tool defaults. ctx bounds the whole submission, not just this call;
// the request is additionally limited by the controller timeout.
func (c *Controller) Submit(ctx context.Context, opts tool.Options) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return c.snapshotLocked(), ErrClosed
	}
	switch c.machine.state() {
	case StateProcessing:
		return c.snapshotLocked(), ErrBusy
	case StateIdle:
		return c.snapshotLocked(), ErrNoFiles
	case StateSucceeded, StateFailed:
		return c.snapshotLocked(), ErrNotReady
	}
	if opts == nil {
		opts = tool.DefaultOptions(c.desc.Key)
	}
	if err := tool.CheckOptions(c.desc, opts); err != nil {
		return c.snapshotLocked(), err
	}

	c.releaseLocked()
	if err := c.machine.move(StateProcessing); err != nil {
		return c.snapshotLocked(), err
	}
	c.failure = nil
	c.progress = progressSent
	c.suggestedName = tool.SuggestedFileName(c.desc.Key, opts)
	c.attempt++
	attempt := c.attempt

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	c.cancel = cancel
	c.settled = make(chan struct{})

	req := backend.Request{
		Endpoint:  c.desc.Endpoint,
		FileField: c.desc.FileField(),
		Files:     make([]backend.Upload, 0, len(c.files)),
		Fields:    opts.Fields(),
	}
	for _, f := range c.files {
		req.Files = append(req.Files, backend.Upload{Name: f.Name, ContentType: f.ContentType, Data: f.Data})
	}

	// The deadline is enforced here as well as by the transport, so a reply
	// that arrives late can never flip the session to Succeeded.
	name := c.suggestedName
	stop := context.AfterFunc(reqCtx, func() { c.expire(reqCtx, attempt) })
	go func() {
		defer cancel()
		defer stop()
		c.run(reqCtx, attempt, req, name)
	}()

	c.logger.Info().Int("files", len(c.files)).Str("endpoint", c.desc.Endpoint).Msg("submission started")
	return c.snapshotLocked(), nil
}

// Cancel aborts the in-flight request. It is a no-op outside Processing.
func (c *Controller) Cancel() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.machine.state() != StateProcessing {
		return c.snapshotLocked()
	}
	c.failLocked(canceledError())
	return c.snapshotLocked()
}

// Reset releases any held artifact, clears the selection and returns to Idle.
// It is rejected while a request is in flight; Cancel first.
func (c *Controller) Reset() (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.machine.state() == StateProcessing {
		return c.snapshotLocked(), ErrBusy
	}
	c.releaseLocked()
	c.files = nil
	c.progress = 0
	c.failure = nil
	c.suggestedName = ""

	if c.machine.state() != StateIdle {
		if err := c.machine.move(StateIdle); err != nil {
			return c.snapshotLocked(), err
		}
	}
	return c.snapshotLocked(), nil
}

// Wait blocks until the current submission settles or ctx is done.
func (c *Controller) Wait(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	settled := c.settled
	processing := c.machine.state() == StateProcessing
	c.mu.Unlock()

	if processing && settled != nil {
		select {
		case <-settled:
		case <-ctx.Done():
			return c.Snapshot(), ctx.Err()
		}
	}
	return c.Snapshot(), nil
}

// OpenResult opens the artifact of a Succeeded session for reading.
func (c *Controller) OpenResult(ctx context.Context) (io.ReadCloser, artifact.Artifact, string, error) {
	c.mu.Lock()
	if c.machine.state() != StateSucceeded || c.result == nil {
		c.mu.Unlock()
		return nil, artifact.Artifact{}, "", ErrNoResult
	}
	a, name := *c.result, c.suggestedName
	c.mu.Unlock()

	rc, err := c.store.Open(ctx, a)
	if err != nil {
		return nil, artifact.Artifact{}, "", err
	}
	return rc, a, name, nil
}

// Close ends the session: any request is cancelled and the artifact released.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.machine.state() == StateProcessing {
		c.failLocked(canceledError())
	}
	c.releaseLocked()
	c.files = nil
	c.closed = true
}

func (c *Controller) run(ctx context.Context, attempt uint64, req backend.Request, name string) {
	resp, err := c.client.Process(ctx, req)
	if err != nil {
		c.complete(attempt, nil, classify(ctx, err, c.timeout))
		return
	}
	defer func() { _ = resp.Body.Close() }()
	if !c.advance(attempt, progressHeaders) {
		return
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			c.complete(attempt, nil, classify(ctx, err, c.timeout))
			return
		}
		c.complete(attempt, nil, newError(KindUnexpected, err.Error(), err))
		return
	}
	if !c.advance(attempt, progressBodyRead) {
		return
	}

	a, err := c.store.Put(ctx, name, resp.ContentType, bytes.NewReader(data))
	if err != nil {
		c.complete(attempt, nil, newError(KindUnexpected, err.Error(), err))
		return
	}
	if !c.complete(attempt, &a, nil) {
		// the attempt was abandoned while storing; nobody owns this artifact
		if relErr := c.store.Release(context.Background(), a); relErr != nil {
			c.logger.Warn().Str("artifact_id", a.ID).Err(relErr).Msg("release of late artifact failed")
		}
	}
}

// advance moves progress forward while attempt is still current.
func (c *Controller) advance(attempt uint64, progress int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(attempt) {
		return false
	}
	if progress > c.progress {
		c.progress = progress
	}
	return true
}

// complete applies the outcome of attempt. It reports false when the attempt
// was already settled by cancel, timeout or Close.
func (c *Controller) complete(attempt uint64, a *artifact.Artifact, failure *Error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(attempt) {
		return false
	}
	if failure != nil {
		c.failLocked(failure)
		return true
	}
	if err := c.machine.move(StateSucceeded); err != nil {
		c.logger.Error().Err(err).Msg("state machine rejected success")
		return false
	}
	c.result = a
	c.progress = progressDone
	c.cancel = nil
	c.settleLocked()
	c.logger.Info().Str("artifact_id", a.ID).Int64("bytes", a.Size).Str("name", c.suggestedName).Msg("submission succeeded")
	return true
}

func (c *Controller) expire(ctx context.Context, attempt uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(attempt) {
		return
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		c.failLocked(timeoutError(c.timeout))
		return
	}
	c.failLocked(canceledError())
}

func (c *Controller) currentLocked(attempt uint64) bool {
	return attempt == c.attempt && c.machine.state() == StateProcessing
}

func (c *Controller) failLocked(failure *Error) {
	if err := c.machine.move(StateFailed); err != nil {
		c.logger.Error().Err(err).Msg("state machine rejected failure")
		return
	}
	c.failure = failure
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.settleLocked()
	c.logger.Warn().Str("kind", string(failure.Kind)).Str("error", failure.Message).Msg("submission failed")
}

func (c *Controller) settleLocked() {
	if c.settled != nil {
		close(c.settled)
		c.settled = nil
	}
}

func (c *Controller) releaseLocked() {
	if c.result == nil {
		return
	}
	a := *c.result
	c.result = nil
	if err := c.store.Release(context.Background(), a); err != nil {
		c.logger.Warn().Str("artifact_id", a.ID).Err(err).Msg("release artifact failed")
		return
	}
	c.logger.Debug().Str("artifact_id", a.ID).Msg("artifact released")
}

func (c *Controller) editableLocked() error {
	if c.closed {
		return ErrClosed
	}
	switch c.machine.state() {
	case StateProcessing:
		return ErrBusy
	case StateSucceeded, StateFailed:
		return ErrNotReady
	}
	return nil
}

// syncSelectionLocked flips Idle and Ready to match the selection size.
func (c *Controller) syncSelectionLocked() error {
	state := c.machine.state()
	switch {
	case len(c.files) > 0 && state == StateIdle:
		return c.machine.move(StateReady)
	case len(c.files) == 0 && state == StateReady:
		return c.machine.move(StateIdle)
	}
	return nil
}

func (c *Controller) snapshotLocked() Snapshot {
	state := c.machine.state()
	s := Snapshot{
		Tool:      c.desc.Key,
		State:     state,
		Files:     make([]FileInfo, 0, len(c.files)),
		Progress:  c.progress,
		CanSubmit: state == StateReady && len(c.files) > 0 && !c.closed,
	}
	for _, f := range c.files {
		s.Files = append(s.Files, FileInfo{Name: f.Name, Size: f.Size(), ContentType: f.ContentType})
	}
	if c.failure != nil {
		s.Error = c.failure.Message
		s.ErrorKind = c.failure.Kind
	}
	if c.result != nil {
		a := *c.result
		s.Artifact = &a
		s.SuggestedName = c.suggestedName
	}
	return s
}
