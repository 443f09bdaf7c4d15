package lsp

import (
	"sort"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/che-burashco/sorbet/internal/workspace"
)

// recorder is a CheckFunc that remembers every path it was handed.
type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) check(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	return nil
}

func (r *recorder) sorted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string(nil), r.paths...)
	sort.Strings(out)
	return out
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.paths)
}

func TestRunSlowPathCommits(t *testing.T) {
	rec := &recorder{}
	d := NewDriver(Options{Workers: 4, CheckFile: rec.check})

	paths := []string{"a.rb", "b.rb", "c.rb"}
	if !d.RunSlowPath(0, 1, paths) {
		t.Fatal("RunSlowPath() = false, want committed")
	}

	if diff := cmp.Diff(paths, rec.sorted()); diff != "" {
		t.Errorf("checked paths mismatch (-want +got):\n%s", diff)
	}
	status := d.Epochs().Status()
	if status.SlowPathRunning || status.CommittedEpoch != 1 {
		t.Errorf("status after commit = %+v", status)
	}
}

func TestRunSlowPathCanceledByPreprocess(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	rec := &recorder{}

	d := NewDriver(Options{
		Workers: 2,
		CheckFile: func(path string) error {
			once.Do(func() { close(started) })
			<-release
			return rec.check(path)
		},
	})

	paths := make([]string, 64)
	for i := range paths {
		paths[i] = string(rune('a'+i%26)) + ".rb"
	}

	// The preprocess goroutine cancels as soon as the first file is being
	// checked, then lets the blocked workers finish that file.
	cancelResult := make(chan bool)
	go func() {
		<-started
		canceled := d.CancelIfRunning(2)
		close(release)
		cancelResult <- canceled
	}()

	committed := d.RunSlowPath(0, 1, paths)

	if !<-cancelResult {
		t.Fatal("CancelIfRunning(2) = false, want true")
	}
	if committed {
		t.Fatal("RunSlowPath() = true after cancellation, want rollback")
	}
	if got := rec.count(); got >= len(paths) {
		t.Errorf("canceled run checked %d of %d files, want fewer", got, len(paths))
	}
	status := d.Epochs().Status()
	if status.SlowPathRunning || status.CommittedEpoch != 0 {
		t.Errorf("status after rollback = %+v", status)
	}
}

func TestScheduledPreemptionTaskRunsAfterSlowPath(t *testing.T) {
	d := NewDriver(Options{Workers: 1})

	ran := false
	if _, ok := d.Preemption().TrySchedule(func() { ran = true }); !ok {
		t.Fatal("TrySchedule() = false")
	}

	if !d.RunSlowPath(0, 1, []string{"a.rb"}) {
		t.Fatal("RunSlowPath() = false, want committed")
	}
	if !ran {
		t.Error("preemption task did not run after the slow path")
	}
	if d.Preemption().Scheduled() {
		t.Error("task still pending after drain")
	}
}

func TestRunFastPath(t *testing.T) {
	rec := &recorder{}
	d := NewDriver(Options{CheckFile: rec.check})

	edits := []workspace.Edit{
		{Path: "a.rb", Contents: []byte("a = 1")},
		{Path: "b.rb", Contents: []byte("b = 2")},
	}
	next, changed := d.RunFastPath(edits)
	if next != 1 {
		t.Errorf("RunFastPath() epoch = %d, want 1", next)
	}
	if diff := cmp.Diff([]string{"a.rb", "b.rb"}, changed); diff != "" {
		t.Errorf("changed mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a.rb", "b.rb"}, rec.sorted()); diff != "" {
		t.Errorf("checked mismatch (-want +got):\n%s", diff)
	}

	// Replaying the same contents is a no-op: no epoch, no checks.
	next, changed = d.RunFastPath(edits)
	if next != 1 || changed != nil {
		t.Errorf("no-op replay = (%d, %v), want (1, nil)", next, changed)
	}
	if rec.count() != 2 {
		t.Errorf("no-op replay ran checks, total %d", rec.count())
	}
}

func TestFastPathAcknowledgedBySlowPath(t *testing.T) {
	d := NewDriver(Options{Workers: 1})

	fastEpoch, _ := d.RunFastPath([]workspace.Edit{{Path: "a.rb", Contents: []byte("x")}})
	slowEpoch := fastEpoch + 1

	if !d.RunSlowPath(fastEpoch, slowEpoch, d.Workspace().Paths()) {
		t.Fatal("RunSlowPath() = false, want committed")
	}
	status := d.Epochs().Status()
	if status.CommittedEpoch != slowEpoch {
		t.Errorf("CommittedEpoch = %d, want %d", status.CommittedEpoch, slowEpoch)
	}
}

func TestCheckNonCancelable(t *testing.T) {
	rec := &recorder{}
	d := NewDriver(Options{Workers: 2, CheckFile: rec.check})

	if !d.Check([]string{"a.rb", "b.rb"}) {
		t.Fatal("Check() = false, want true")
	}
	if rec.count() != 2 {
		t.Errorf("Check() ran %d files, want 2", rec.count())
	}
	// Non-cancelable runs never touch the epoch counters.
	status := d.Epochs().Status()
	if status.SlowPathRunning || status.CommittedEpoch != 0 || status.ProcessingEpoch != 0 {
		t.Errorf("status after Check = %+v, want untouched", status)
	}
}
