// Package workspace tracks the file state the preprocess thread feeds into
// epoch allocation.
//
// The store answers two questions: did this batch of edits actually change
// anything, and which epoch number does the resulting typecheck attempt
// get. File contents are never retained; only a content digest per path, so
// no-op saves and editor churn do not burn epochs.
package workspace

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/tidwall/btree"

	"github.com/che-burashco/sorbet/internal/lsp/epoch"
)

// Edit is one changed file in a batch. Delete marks a removal; Contents is
// ignored for deletes.
type Edit struct {
	Path     string
	Contents []byte
	Delete   bool
}

// FileState is the stored record for one path.
type FileState struct {
	// Path is the workspace-relative file path, the store's sort key.
	Path string

	// Digest is the xxhash64 of the last seen contents.
	Digest uint64

	// Epoch is the epoch in which the file last changed.
	Epoch epoch.Epoch
}

// Store is an ordered path → FileState table plus the epoch allocator.
//
// Epoch numbers are handed out in arrival order and wrap through zero;
// consumers compare them only by equality, so the wrap needs no special
// casing here. External monotonicity — never reusing a live epoch — holds
// because a uint32 of edits must arrive between two uses of the same value.
//
// Thread Safety: all methods are safe for concurrent use. In the intended
// wiring only the preprocess thread mutates the store, but status queries
// may come from anywhere.
type Store struct {
	mu      sync.Mutex
	files   *btree.BTreeG[FileState]
	current uint32
}

// NewStore creates an empty store whose next allocated epoch follows start.
func NewStore(start epoch.Epoch) *Store {
	return &Store{
		files: btree.NewBTreeG(func(a, b FileState) bool {
			return a.Path < b.Path
		}),
		current: uint32(start),
	}
}

// Apply folds a batch of edits into the store.
//
// Unchanged files (same digest as last seen) are dropped from the batch. If
// anything remains, a fresh epoch is allocated, every surviving edit is
// stamped with it, and the changed paths are returned in batch order. If
// the whole batch is a no-op the current epoch is returned with a nil slice
// and no epoch is spent.
func (s *Store) Apply(edits []Edit) (epoch.Epoch, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []string
	for _, e := range edits {
		prev, exists := s.files.Get(FileState{Path: e.Path})
		if e.Delete {
			if exists {
				changed = append(changed, e.Path)
			}
			continue
		}
		digest := xxhash.Sum64(e.Contents)
		if exists && prev.Digest == digest {
			continue
		}
		changed = append(changed, e.Path)
	}
	if len(changed) == 0 {
		return epoch.Epoch(s.current), nil
	}

	s.current++ // wraps through 0; equality-only semantics downstream
	next := epoch.Epoch(s.current)
	for _, e := range edits {
		if e.Delete {
			s.files.Delete(FileState{Path: e.Path})
			continue
		}
		digest := xxhash.Sum64(e.Contents)
		if prev, exists := s.files.Get(FileState{Path: e.Path}); exists && prev.Digest == digest {
			continue
		}
		s.files.Set(FileState{
			Path:   e.Path,
			Digest: digest,
			Epoch:  next,
		})
	}
	return next, changed
}

// Epoch returns the most recently allocated epoch.
func (s *Store) Epoch() epoch.Epoch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return epoch.Epoch(s.current)
}

// Lookup returns the state recorded for path.
func (s *Store) Lookup(path string) (FileState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.files.Get(FileState{Path: path})
}

// Len returns the number of tracked files.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.files.Len()
}

// Paths returns every tracked path in ascending order. This is the slow
// path's work list.
func (s *Store) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, s.files.Len())
	s.files.Scan(func(f FileState) bool {
		paths = append(paths, f.Path)
		return true
	})
	return paths
}
