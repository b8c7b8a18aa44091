// Package lifecycle provides the generic job state machine shared by
// analysis runs, autofix sessions, and query executions.
//
// Each orchestrator supplies a work function and transition hooks
// backed by its repository; the manager owns the cancellation registry,
// the soft timeout, and the push-based completion signal that the
// bounded-attempt polling endpoints consume. Cancellation is always
// cooperative: Cancel releases the job's context and the worker
// observes it at its next checkpoint.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"modelsentry/internal/domain"
)

// Hooks are the persistence transitions a job's worker drives. Each
// hook maps to one conditional repository update; a hook returning
// *InvalidTransitionError means another transition (usually a cancel)
// already won, and the worker stops quietly.
type Hooks[R any] struct {
	OnRunning   func(ctx context.Context) error
	OnCompleted func(ctx context.Context, result R) error
	OnFailed    func(ctx context.Context, reason string) error
}

// Manager tracks in-flight jobs: their cancel functions and completion
// channels. Status itself lives in the store; the manager only holds
// what cannot be persisted.
type Manager struct {
	logger *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	done    map[string]chan struct{}
}

// NewManager creates a Manager.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		logger:  logger,
		cancels: make(map[string]context.CancelFunc),
		done:    make(map[string]chan struct{}),
	}
}

// Launch runs work in a background goroutine under the manager's
// supervision. timeout <= 0 disables the soft timeout. Hook failures
// from losing a terminal-transition race are expected and logged at
// debug; any other hook failure is logged as an error.
func Launch[R any](m *Manager, id string, timeout time.Duration, work func(ctx context.Context) (R, error), hooks Hooks[R]) {
	ctx := context.Background()
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	done := make(chan struct{})
	m.mu.Lock()
	m.cancels[id] = cancel
	m.done[id] = done
	m.mu.Unlock()

	logger := m.logger.With("job_id", id)

	go func() {
		defer func() {
			m.mu.Lock()
			delete(m.cancels, id)
			delete(m.done, id)
			m.mu.Unlock()
			cancel()
			close(done)
		}()

		defer func() {
			if r := recover(); r != nil {
				logger.Error("job panicked", "error", fmt.Sprintf("%v", r))
				m.applyHook(logger, func() error {
					return hooks.OnFailed(context.Background(), fmt.Sprintf("panic: %v", r))
				})
			}
		}()

		if err := hooks.OnRunning(ctx); err != nil {
			// Cancelled before start, or a duplicate launch.
			var invalid *domain.InvalidTransitionError
			if errors.As(err, &invalid) {
				logger.Debug("job not started", "reason", err.Error())
			} else {
				logger.Error("failed to mark job running", "error", err)
			}
			return
		}

		result, err := work(ctx)

		// Terminal hooks run on a fresh context: the job's own context
		// may already be cancelled or expired.
		switch {
		case ctx.Err() != nil:
			m.applyHook(logger, func() error {
				return hooks.OnFailed(context.Background(), domain.CancelReasonCancelled)
			})
		case err != nil:
			m.applyHook(logger, func() error {
				return hooks.OnFailed(context.Background(), err.Error())
			})
		default:
			m.applyHook(logger, func() error {
				return hooks.OnCompleted(context.Background(), result)
			})
		}
	}()
}

// Cancel requests cooperative cancellation of an in-flight job. It is
// idempotent and a no-op for unknown or already-finished jobs.
func (m *Manager) Cancel(id string) {
	m.mu.Lock()
	cancel, ok := m.cancels[id]
	m.mu.Unlock()
	if ok {
		cancel()
	}
}

// Wait blocks until the job's worker finishes or d elapses. It returns
// true when the job is no longer in flight. Waiting never affects the
// job's lifecycle.
func (m *Manager) Wait(id string, d time.Duration) bool {
	m.mu.Lock()
	done, ok := m.done[id]
	m.mu.Unlock()
	if !ok {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// InFlight reports whether the job's worker is still running.
func (m *Manager) InFlight(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.done[id]
	return ok
}

// applyHook runs a terminal transition hook, demoting lost-race errors
// to debug logs: the other transition's outcome stands.
func (m *Manager) applyHook(logger *slog.Logger, fn func() error) {
	err := fn()
	if err == nil {
		return
	}
	var invalid *domain.InvalidTransitionError
	if errors.As(err, &invalid) {
		logger.Debug("terminal transition already applied", "error", err)
		return
	}
	logger.Error("terminal transition failed", "error", err)
}
