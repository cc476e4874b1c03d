package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"pointtbridge/internal/auth"
	"pointtbridge/internal/pointt"
)

// State describes the coordinator lifecycle.
type State int

const (
	StateIdle State = iota
	StatePolling
	StateDegraded
	StateAuthFailed
)

// String returns the state name for logging and the status API.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateDegraded:
		return "degraded"
	case StateAuthFailed:
		return "auth_failed"
	default:
		return "unknown"
	}
}

// Walker runs one resource graph walk. Implemented by pointt.Walker.
type Walker interface {
	Walk(ctx context.Context, roots []string) pointt.WalkResult
}

// Listener receives snapshot and state updates. Snapshots are immutable;
// listeners must not block for long and must never mutate shared state.
type Listener interface {
	SnapshotUpdated(snapshot *Snapshot)
	StateChanged(old, new State)
}

// Config contains polling settings.
type Config struct {
	Roots            []string
	Interval         time.Duration
	CycleTimeout     time.Duration
	FailureThreshold int
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 60 * time.Second
	}
	if c.CycleTimeout <= 0 {
		// Generous enough to cover the extra fetches from reference expansion.
		c.CycleTimeout = 120 * time.Second
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
}

// Status is the coordinator state exposed to consumers.
type Status struct {
	State               State
	ConsecutiveFailures int
	LastError           string
	SnapshotAsOf        time.Time
	SnapshotPaths       int
}

// Coordinator polls the resource graph on a fixed cadence and publishes
// immutable snapshots. Cycles never overlap; a tick that arrives while a
// cycle is running is dropped, not queued.
type Coordinator struct {
	cfg    Config
	walker Walker
	logger *slog.Logger

	mu                  sync.Mutex
	state               State
	snapshot            *Snapshot
	consecutiveFailures int
	lastErr             error
	listeners           []Listener

	stopOnce    sync.Once
	stopChan    chan struct{}
	refreshChan chan struct{}
}

// NewCoordinator creates a coordinator over the given walker.
func NewCoordinator(cfg Config, walker Walker, logger *slog.Logger) *Coordinator {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		cfg:         cfg,
		walker:      walker,
		logger:      logger,
		state:       StateIdle,
		stopChan:    make(chan struct{}),
		refreshChan: make(chan struct{}, 1),
	}
}

// AddListener registers a listener for snapshot and state updates.
func (c *Coordinator) AddListener(listener Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, listener)
}

// Start runs the polling loop until Stop is called or ctx is cancelled. One
// cycle runs immediately so consumers do not wait a full interval for data.
func (c *Coordinator) Start(ctx context.Context) {
	c.logger.Info("Polling coordinator started",
		"component", "engine",
		"interval", c.cfg.Interval.String(),
		"roots", len(c.cfg.Roots))

	c.runCycle(ctx)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCycle(ctx)
		case <-c.refreshChan:
			c.runCycle(ctx)
		case <-ctx.Done():
			c.logger.Info("Polling coordinator stopped", "component", "engine", "reason", "context cancelled")
			return
		case <-c.stopChan:
			c.logger.Info("Polling coordinator stopped", "component", "engine")
			return
		}
	}
}

// Stop ends the polling loop. The active cycle's requests are cancelled via
// the Start context by the caller; a cancelled cycle publishes nothing.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

// RequestRefresh asks for an immediate cycle without waiting for the next
// tick, e.g. after a write so the snapshot reflects it promptly. Non-blocking;
// a request during an active cycle collapses into one pending refresh.
func (c *Coordinator) RequestRefresh() {
	select {
	case c.refreshChan <- struct{}{}:
	default:
	}
}

// Resume returns the coordinator to Idle after a successful re-authentication
// and schedules an immediate cycle. No-op unless the state is AuthFailed.
func (c *Coordinator) Resume() {
	c.mu.Lock()
	if c.state != StateAuthFailed {
		c.mu.Unlock()
		return
	}
	c.state = StateIdle
	c.consecutiveFailures = 0
	c.lastErr = nil
	listeners := c.snapshotListeners()
	c.mu.Unlock()

	c.logger.Info("Re-authenticated, resuming poll cycles", "component", "engine")
	for _, l := range listeners {
		l.StateChanged(StateAuthFailed, StateIdle)
	}
	c.RequestRefresh()
}

// Latest returns the most recently published snapshot, or nil before the
// first successful cycle.
func (c *Coordinator) Latest() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Status returns the current coordinator state for the status API.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := Status{
		State:               c.state,
		ConsecutiveFailures: c.consecutiveFailures,
		SnapshotPaths:       c.snapshot.Len(),
	}
	if c.lastErr != nil {
		status.LastError = c.lastErr.Error()
	}
	if c.snapshot != nil {
		status.SnapshotAsOf = c.snapshot.AsOf
	}
	return status
}

// runCycle performs one poll cycle: walk, classify, publish.
func (c *Coordinator) runCycle(ctx context.Context) {
	c.mu.Lock()
	if c.state == StateAuthFailed || c.state == StatePolling {
		// Scheduling is halted until re-authentication, and cycles never
		// overlap.
		c.mu.Unlock()
		return
	}
	steady := c.state
	c.state = StatePolling
	c.mu.Unlock()

	cycleCtx, cancel := context.WithTimeout(ctx, c.cfg.CycleTimeout)
	defer cancel()

	started := time.Now()
	result := c.walker.Walk(cycleCtx, c.cfg.Roots)

	if ctx.Err() != nil {
		// Engine is stopping; nothing from a cancelled cycle is published.
		c.mu.Lock()
		c.state = steady
		c.mu.Unlock()
		return
	}

	switch {
	case result.AuthFailed():
		c.finishAuthFailed(steady, result)
	case result.Complete():
		c.finishSuccess(steady, result, started)
	default:
		c.finishTransient(steady, result, started)
	}
}

// finishSuccess publishes a fresh snapshot and returns to Idle.
func (c *Coordinator) finishSuccess(steady State, result pointt.WalkResult, started time.Time) {
	snapshot := &Snapshot{
		Values:    result.Values,
		AsOf:      time.Now(),
		LastError: ErrorNone,
	}

	c.mu.Lock()
	c.snapshot = snapshot
	c.consecutiveFailures = 0
	c.lastErr = nil
	c.state = StateIdle
	listeners := c.snapshotListeners()
	c.mu.Unlock()

	c.logger.Debug("Poll cycle complete",
		"component", "engine",
		"paths", len(result.Values),
		"duration", time.Since(started).String())

	for _, l := range listeners {
		l.SnapshotUpdated(snapshot)
	}
	if steady != StateIdle {
		c.logger.Info("Recovered, serving fresh data", "component", "engine")
		for _, l := range listeners {
			l.StateChanged(steady, StateIdle)
		}
	}
}

// finishTransient keeps the previous snapshot, counts the failure, and
// degrades once failures persist past the threshold.
func (c *Coordinator) finishTransient(steady State, result pointt.WalkResult, started time.Time) {
	kind := ErrorTransient
	if len(result.Values) > 0 {
		kind = ErrorPartial
	}
	walkErr := summarizeErrors(result)

	c.mu.Lock()
	c.consecutiveFailures++
	failures := c.consecutiveFailures
	c.lastErr = walkErr
	next := StateIdle
	if failures >= c.cfg.FailureThreshold {
		next = StateDegraded
	}
	c.state = next
	c.snapshot = c.snapshot.withError(kind)
	listeners := c.snapshotListeners()
	c.mu.Unlock()

	c.logger.Warn("Poll cycle failed",
		"component", "engine",
		"kind", kind.String(),
		"consecutive_failures", failures,
		"duration", time.Since(started).String(),
		"error", walkErr)

	if next != steady {
		for _, l := range listeners {
			l.StateChanged(steady, next)
		}
	}
}

// finishAuthFailed halts scheduling until re-authentication. This is never
// absorbed into a partial result: consumers must trigger a new login rather
// than display stale data indefinitely.
func (c *Coordinator) finishAuthFailed(steady State, result pointt.WalkResult) {
	walkErr := firstAuthError(result)

	c.mu.Lock()
	c.state = StateAuthFailed
	c.lastErr = walkErr
	c.snapshot = c.snapshot.withError(ErrorAuth)
	listeners := c.snapshotListeners()
	c.mu.Unlock()

	c.logger.Error("Session dead, halting poll cycles until re-authentication",
		"component", "engine",
		"error", walkErr)

	for _, l := range listeners {
		l.StateChanged(steady, StateAuthFailed)
	}
}

// snapshotListeners copies the listener slice; callers invoke outside the lock.
func (c *Coordinator) snapshotListeners() []Listener {
	out := make([]Listener, len(c.listeners))
	copy(out, c.listeners)
	return out
}

// summarizeErrors folds per-path failures into one error, paths sorted for
// stable messages.
func summarizeErrors(result pointt.WalkResult) error {
	if len(result.Errors) == 0 {
		return nil
	}

	paths := make([]string, 0, len(result.Errors))
	for path := range result.Errors {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	return fmt.Errorf("%d of %d paths failed, first: %s: %w",
		len(result.Errors), len(result.Errors)+len(result.Values),
		paths[0], result.Errors[paths[0]])
}

// firstAuthError returns the error that killed the session.
func firstAuthError(result pointt.WalkResult) error {
	paths := make([]string, 0, len(result.Errors))
	for path := range result.Errors {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if errors.Is(result.Errors[path], auth.ErrReauthRequired) {
			return fmt.Errorf("%s: %w", path, result.Errors[path])
		}
	}
	return auth.ErrReauthRequired
}
