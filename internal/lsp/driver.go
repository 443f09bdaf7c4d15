// Package lsp drives typecheck runs through the epoch coordinator.
//
// The driver owns the coordinator, the preemption task manager, and the
// workspace file store, and exposes one entry point per role:
//
//   - RunSlowPath and Check belong to the typechecking thread.
//   - RunFastPath and CancelIfRunning belong to the preprocess thread.
//   - The worker goroutines RunSlowPath fans out poll
//     WasTypecheckingCanceled between files and nothing else.
//
// The typechecking work itself is injected as a per-file callback; the
// driver only decides when it runs, on how many workers, and whether its
// result gets published.
package lsp

import (
	"runtime"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/che-burashco/sorbet/internal/counters"
	"github.com/che-burashco/sorbet/internal/lsp/epoch"
	"github.com/che-burashco/sorbet/internal/lsp/preemption"
	"github.com/che-burashco/sorbet/internal/workspace"
)

// CheckFunc typechecks a single file. An error marks the file failed but
// never aborts the run; cancellation is the coordinator's job.
type CheckFunc func(path string) error

// Options configures a Driver. Zero values get sensible defaults.
type Options struct {
	// Logger receives structured progress and outcome events.
	Logger hclog.Logger

	// Workers is the slow-path fan-out width. Defaults to NumCPU.
	Workers int

	// Counters receives per-run metrics. Defaults to a private registry.
	Counters *counters.State

	// CheckFile is the per-file typecheck callback. Defaults to a no-op.
	CheckFile CheckFunc
}

// Driver coordinates slow-path and fast-path typecheck runs.
type Driver struct {
	log       hclog.Logger
	epochs    *epoch.Manager
	tasks     *preemption.Manager
	files     *workspace.Store
	stats     *counters.State
	workers   int
	checkFile CheckFunc
}

// NewDriver builds a driver from opts.
func NewDriver(opts Options) *Driver {
	log := opts.Logger
	if log == nil {
		log = hclog.NewNullLogger()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	stats := opts.Counters
	if stats == nil {
		stats = counters.New()
	}
	checkFile := opts.CheckFile
	if checkFile == nil {
		checkFile = func(string) error { return nil }
	}
	return &Driver{
		log:       log.Named("typecheck"),
		epochs:    &epoch.Manager{},
		tasks:     &preemption.Manager{},
		files:     workspace.NewStore(0),
		stats:     stats,
		workers:   workers,
		checkFile: checkFile,
	}
}

// Epochs exposes the coordinator, primarily for status queries.
func (d *Driver) Epochs() *epoch.Manager { return d.epochs }

// Preemption exposes the task manager so request handlers can schedule
// work to run between slow-path attempts.
func (d *Driver) Preemption() *preemption.Manager { return d.tasks }

// Workspace exposes the file store.
func (d *Driver) Workspace() *workspace.Store { return d.files }

// RunSlowPath runs a cancelable whole-workspace typecheck at epoch to.
//
// from is the epoch of the last committed fast path; the range (from, to]
// acknowledges every fast-path commit since the previous slow path. Returns
// true when the result was committed, false when the run was canceled and
// rolled back. Must be called from the typechecking thread.
func (d *Driver) RunSlowPath(from, to epoch.Epoch, paths []string) bool {
	d.log.Debug("slow path starting", "from", from, "to", to, "files", len(paths))
	start := time.Now()

	d.epochs.StartCommitEpoch(from, to)
	committed := d.epochs.TryCommitEpoch(to, true, d.tasks, func() {
		d.typecheckAll(paths)
	})

	d.stats.Timing("run.slow_path", time.Since(start))
	if committed {
		d.stats.Inc("run.slow_path.committed")
		d.log.Debug("slow path committed", "epoch", to)
	} else {
		d.stats.Inc("run.slow_path.canceled")
		d.log.Debug("slow path canceled", "epoch", to)
	}
	return committed
}

// RunFastPath folds a batch of edits into the workspace and typechecks the
// changed files inline. Fast paths are not cancelable and do not involve
// the coordinator; their epoch is acknowledged by the from argument of the
// next RunSlowPath. Must be called from the preprocess thread.
//
// Returns the workspace epoch after the batch and the changed paths (nil
// when the batch was a no-op).
func (d *Driver) RunFastPath(edits []workspace.Edit) (epoch.Epoch, []string) {
	start := time.Now()
	next, changed := d.files.Apply(edits)
	if changed == nil {
		d.log.Debug("fast path skipped, no effective change")
		return next, nil
	}
	for _, path := range changed {
		d.checkOne(path)
	}
	d.stats.Timing("run.fast_path", time.Since(start))
	d.stats.Inc("run.fast_path.committed")
	d.log.Debug("fast path committed", "epoch", next, "files", len(changed))
	return next, changed
}

// CancelIfRunning asks the coordinator to cancel an in-flight slow path in
// favor of newEpoch. Returns true if a running slow path was marked
// canceled. Must be called from the preprocess thread.
func (d *Driver) CancelIfRunning(newEpoch epoch.Epoch) bool {
	canceled := d.epochs.TryCancelSlowPath(newEpoch)
	if canceled {
		d.stats.Inc("run.slow_path.cancel_requested")
		d.log.Debug("slow path cancel requested", "newEpoch", newEpoch)
	}
	return canceled
}

// Check runs a non-cancelable typecheck over paths, for the initial
// compile and command-line use. Always returns true. Must be called from
// the typechecking thread.
func (d *Driver) Check(paths []string) bool {
	start := time.Now()
	ok := d.epochs.TryCommitEpoch(0, false, nil, func() {
		d.typecheckAll(paths)
	})
	d.stats.Timing("run.check", time.Since(start))
	return ok
}

// typecheckAll fans paths out over the worker pool. Workers drain the
// shared queue and stop picking up new files once cancellation is
// observed; files already being checked run to completion.
func (d *Driver) typecheckAll(paths []string) {
	queue := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range queue {
				if d.epochs.WasTypecheckingCanceled() {
					continue // keep draining so the feeder never blocks
				}
				d.checkOne(path)
			}
		}()
	}
	for _, path := range paths {
		queue <- path
	}
	close(queue)
	wg.Wait()
}

// checkOne typechecks a single file and records its outcome.
func (d *Driver) checkOne(path string) {
	d.stats.Inc("types.input.files")
	if err := d.checkFile(path); err != nil {
		d.stats.CategoryInc("types.errors", "files_with_errors")
		d.log.Debug("typecheck error", "path", path, "error", err)
	}
}
