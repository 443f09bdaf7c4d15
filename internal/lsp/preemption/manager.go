// Package preemption manages the single task that may preempt a slow-path
// typecheck.
//
// While a slow path runs, other threads may want to squeeze in a short piece
// of work (an incremental typecheck for a hover request, say) the moment the
// slow path stops running. At most one such task can be pending at a time;
// it is drained by the epoch coordinator exactly once per slow-path attempt,
// right after the attempt commits or rolls back.
//
// The manager deliberately knows nothing about epochs. It satisfies the
// coordinator's PreemptionHook contract and is handed to TryCommitEpoch by
// the driver.
package preemption

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// TaskID names a scheduled task so its scheduler can cancel it later.
type TaskID string

// Manager holds at most one scheduled preemption task.
//
// Thread Safety: TrySchedule, TryCancelScheduled, and
// TryRunScheduledPreemptionTask are safe to call from different goroutines.
// The task itself runs outside the manager's lock, so it may take other
// locks (Status on the coordinator, in particular), but it must not call
// back into TryRunScheduledPreemptionTask.
type Manager struct {
	mu        sync.Mutex
	scheduled *task

	// running flags an in-flight task so that reentrant draining is caught
	// instead of deadlocking or double-running.
	running atomic.Bool
}

type task struct {
	id TaskID
	fn func()
}

// TrySchedule registers fn as the pending preemption task.
//
// Returns the task's ID and true on success, or "" and false when another
// task is already pending. The returned ID is the handle for
// TryCancelScheduled.
func (m *Manager) TrySchedule(fn func()) (TaskID, bool) {
	if fn == nil {
		panic("preemption: TrySchedule called with nil task")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scheduled != nil {
		return "", false
	}
	id := TaskID(uuid.NewString())
	m.scheduled = &task{id: id, fn: fn}
	return id, true
}

// TryCancelScheduled removes the pending task if it is still the one
// identified by id. Returns true if the task was removed, false if it
// already ran, was already canceled, or was replaced by a newer task.
func (m *Manager) TryCancelScheduled(id TaskID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scheduled == nil || m.scheduled.id != id {
		return false
	}
	m.scheduled = nil
	return true
}

// Scheduled reports whether a task is currently pending.
func (m *Manager) Scheduled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scheduled != nil
}

// TryRunScheduledPreemptionTask runs the pending task, if any, and reports
// whether one ran.
//
// The task is detached under the lock and executed outside it. Reentrancy
// is a fatal error: the epoch coordinator guarantees one drain per
// slow-path attempt, so a task that schedules a drain of itself indicates a
// wiring bug.
func (m *Manager) TryRunScheduledPreemptionTask() bool {
	if m.running.Load() {
		panic("preemption: TryRunScheduledPreemptionTask called reentrantly from a running task")
	}

	m.mu.Lock()
	t := m.scheduled
	m.scheduled = nil
	m.mu.Unlock()

	if t == nil {
		return false
	}

	m.running.Store(true)
	defer m.running.Store(false)
	t.fn()
	return true
}

// String describes the manager's state for logs.
func (m *Manager) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scheduled == nil {
		return "preemption{idle}"
	}
	return fmt.Sprintf("preemption{pending %s}", m.scheduled.id)
}
