// Package epoch implements the typecheck epoch coordinator for the language
// server's cancellation protocol.
//
// A whole-workspace typecheck (the "slow path") can run for seconds. While it
// runs, new edits keep arriving, and short incremental typechecks (the "fast
// path") must be able to preempt it. The coordinator encodes that protocol in
// three wrapping 32-bit counters:
//
//   - committed:   the epoch of the last published typecheck result
//   - processing:  the epoch the in-flight slow path is trying to reach
//   - invalidator: the epoch that cancellation wants to jump to instead
//
// Derived state:
//
//	slowPathRunning  == (processing != committed)
//	slowPathCanceled == (processing != invalidator)
//
// Exactly three roles interact with a Manager:
//
//   - The typechecking thread calls StartCommitEpoch and TryCommitEpoch.
//   - The preprocess thread calls TryCancelSlowPath.
//   - Worker threads call WasTypecheckingCanceled, and nothing else.
//
// The first goroutine to act in a pinned role owns it for the life of the
// process; calling a pinned method from any other goroutine is a fatal
// programming error, not a runtime condition.
//
// Epochs are compared ONLY by equality. They are monotone in intent but
// stored as wrapping counters, so an ordering comparison would misbehave
// near overflow; monotonicity is the epoch allocator's job, not ours.
package epoch

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Epoch identifies a single slow- or fast-path typecheck attempt.
//
// Epochs wrap on overflow. Never compare them with < or >.
type Epoch uint32

// PreemptionHook runs a task that was scheduled while a slow path was in
// flight. The coordinator invokes it exactly once per cancelable
// TryCommitEpoch, after the epoch mutex is released, so the hook itself may
// call Status. It must not call back into any mutating coordinator method.
type PreemptionHook interface {
	TryRunScheduledPreemptionTask() bool
}

// Manager coordinates slow-path typechecking epochs between the
// typechecking thread, the preprocess thread, and worker threads.
//
// The zero value is ready to use: all counters are zero (no slow path in
// flight) and the thread-identity slots are empty.
//
// Thread Safety: all methods are safe for concurrent use, subject to the
// role pinning documented on each method. Counter writes happen only under
// mu; WasTypecheckingCanceled reads the counters lock-free.
type Manager struct {
	// committed holds the epoch of the most recently committed slow path,
	// updated to the last fast-path epoch at StartCommitEpoch time.
	committed atomic.Uint32

	// processing holds the epoch the current slow path is attempting.
	// processing == committed means no slow path is in flight.
	processing atomic.Uint32

	// invalidator holds the epoch the slow path is supposed to reach.
	// invalidator != processing means the in-flight slow path is canceled.
	invalidator atomic.Uint32

	// mu serializes all counter writes and status snapshots. The typecheck
	// work itself never runs under mu; only the short commit/cancel critical
	// sections do.
	mu sync.Mutex

	// preprocessGID and typecheckGID pin the preprocess and typechecking
	// roles to the first goroutine that exercised them. 0 means unset
	// (goroutine IDs start at 1). Guarded by mu.
	preprocessGID int64
	typecheckGID  int64
}

// assertConsistentThread pins method calls to a single goroutine.
//
// On first use the calling goroutine's ID is stored into slot; afterwards a
// call from any other goroutine is a fatal error naming the method and the
// role that owns it. Callers must hold mu.
func assertConsistentThread(slot *int64, method, threadName string) {
	gid := currentGoroutineID()
	if *slot == 0 {
		*slot = gid
		return
	}
	if *slot != gid {
		panic(fmt.Sprintf("%s can only be called by the %s thread (goroutine %d, called from %d)",
			method, threadName, *slot, gid))
	}
}

// StartCommitEpoch opens a slow-path attempt at epoch to.
//
// from is the epoch of the most recent fast path: committed is rewritten to
// it so that the half-open range (from, to] retroactively acknowledges every
// fast-path commit since the last slow path. Keeping committed stale between
// slow paths and settling it here keeps the bookkeeping in one place and
// makes the range explicit at the call site.
//
// Preconditions (fatal on violation): from != to, to != processing,
// to != committed. Epochs wrap, so there is nothing useful to assert about
// moving "forward" in time; the caller's allocator owns monotonicity.
func (m *Manager) StartCommitEpoch(from, to Epoch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if from == to {
		panic(fmt.Sprintf("StartCommitEpoch: from and to epochs must differ (both %d)", from))
	}
	if uint32(to) == m.processing.Load() {
		panic(fmt.Sprintf("StartCommitEpoch: epoch %d is already being processed", to))
	}
	if uint32(to) == m.committed.Load() {
		panic(fmt.Sprintf("StartCommitEpoch: epoch %d is already committed", to))
	}
	m.processing.Store(uint32(to))
	m.invalidator.Store(uint32(to))
	m.committed.Store(uint32(from))
}

// TryCancelSlowPath requests cancellation of the in-flight slow path by
// bumping the invalidator to newEpoch.
//
// Only the preprocess thread may call this (pinned on first use). Returns
// true if a running slow path was marked canceled. true does NOT mean the
// typechecking thread has observed the cancellation yet; observation is
// cooperative via WasTypecheckingCanceled.
//
// Requesting cancellation with newEpoch equal to the epoch currently being
// processed is fatal: it would make the cancellation indistinguishable from
// the slow path completing normally.
//
// Repeated cancellations while the same slow path is still running simply
// overwrite the invalidator; the last newEpoch wins.
func (m *Manager) TryCancelSlowPath(newEpoch Epoch) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	assertConsistentThread(&m.preprocessGID, "TryCancelSlowPath", "preprocess")
	processing := m.processing.Load()
	if uint32(newEpoch) == processing {
		panic(fmt.Sprintf("TryCancelSlowPath: epoch %d is currently being processed; cancelling with it would prevent the cancellation", newEpoch))
	}
	committed := m.committed.Load()
	// The second condition is unreachable given the check above, but guard
	// against it anyway: returning false is strictly safer than corrupting
	// the invalidator.
	if processing == committed || uint32(newEpoch) == processing {
		return false
	}
	m.invalidator.Store(uint32(newEpoch))
	return true
}

// WasTypecheckingCanceled reports whether the in-flight slow path has been
// requested-canceled.
//
// This is the worker-thread hot path, called from inner typechecking loops,
// so it reads the counters without taking mu. The answer can be transiently
// stale in either direction; workers re-poll. When no slow path is in
// flight both counters are equal and the result is false.
//
// Performance: two atomic loads, no locking, no allocation.
func (m *Manager) WasTypecheckingCanceled() bool {
	return m.invalidator.Load() != m.processing.Load()
}

// TryCommitEpoch runs typecheck and, in cancelable mode, publishes its
// result by advancing committed to processing.
//
// Only the typechecking thread may call this (pinned on first use).
//
// Non-cancelable mode (isCancelable == false) exists for the initial
// compile and for command-line use: typecheck runs and true is returned
// without any epoch-state interaction. Calling it while a slow path is in
// flight (i.e. after StartCommitEpoch, before its commit) is fatal; the two
// modes must not be interleaved.
//
// Cancelable mode requires that StartCommitEpoch(_, epoch) already ran.
// typecheck executes OUTSIDE the epoch mutex; holding mu across a
// multi-second typecheck would turn TryCancelSlowPath into a deadlock.
// After typecheck returns:
//
//   - processing == invalidator: nobody canceled us. committed := processing
//     and the result is true. Committing an epoch twice is fatal.
//   - processing != invalidator: the work was canceled. Both processing and
//     invalidator roll back to committed, restoring the idle state with the
//     previous result still published, and the result is false.
//
// If hook is non-nil it is invoked exactly once after the mutex is
// released, on both outcomes: the instant the slow path is no longer
// running, a preemption task that snuck in during it becomes safe to drain,
// and no further slow path can begin until this thread calls
// StartCommitEpoch again.
//
// A false return is not an error. It tells the caller to discard partial
// work and wait for the next slow-path request.
func (m *Manager) TryCommitEpoch(epoch Epoch, isCancelable bool, hook PreemptionHook, typecheck func()) bool {
	m.mu.Lock()
	assertConsistentThread(&m.typecheckGID, "TryCommitEpoch", "typechecking")
	if !isCancelable {
		if m.processing.Load() != m.committed.Load() {
			m.mu.Unlock()
			panic("TryCommitEpoch: non-cancelable commit while a slow path is in flight; StartCommitEpoch must be paired with a cancelable commit")
		}
		m.mu.Unlock()
		typecheck()
		return true
	}
	if m.processing.Load() != uint32(epoch) {
		processing := m.processing.Load()
		m.mu.Unlock()
		panic(fmt.Sprintf("TryCommitEpoch: epoch %d is not being processed (processing %d); call StartCommitEpoch first", epoch, processing))
	}
	m.mu.Unlock()

	typecheck()

	committed := false
	m.mu.Lock()
	processing := m.processing.Load()
	invalidator := m.invalidator.Load()
	if processing == invalidator {
		if m.committed.Load() == processing {
			m.mu.Unlock()
			panic(fmt.Sprintf("TryCommitEpoch: epoch %d is already committed", processing))
		}
		m.committed.Store(processing)
		committed = true
	} else {
		// Canceled. Roll everything back to the last committed epoch.
		lastCommitted := m.committed.Load()
		m.processing.Store(lastCommitted)
		m.invalidator.Store(lastCommitted)
	}
	m.mu.Unlock()

	if hook != nil {
		hook.TryRunScheduledPreemptionTask()
	}
	return committed
}

// WithEpochLock calls fn with a consistent status snapshot while holding
// the epoch mutex.
//
// Use it for compound read-then-decide logic that must not interleave with
// a commit or cancel. fn must not call any Manager method that takes the
// mutex (the mutex is not reentrant).
func (m *Manager) WithEpochLock(fn func(TypecheckingStatus)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.statusLocked())
}

// Status returns a consistent snapshot of the coordinator's state.
func (m *Manager) Status() TypecheckingStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

// statusLocked derives the status record. Callers must hold mu; that is
// what makes the three loads a consistent snapshot.
func (m *Manager) statusLocked() TypecheckingStatus {
	return Derive(
		Epoch(m.committed.Load()),
		Epoch(m.processing.Load()),
		Epoch(m.invalidator.Load()),
	)
}
