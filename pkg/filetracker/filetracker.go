// Package filetracker reconstructs per-file state while the scanner walks
// a repository's history backwards, one commit at a time.
package filetracker

import (
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/codefang/pkg/message"
)

// ErrLineCountUnderflow is returned when reverse-applying a commit would
// drive a file's line count below zero, indicating the diff and the
// tracked state have disagreed. This halts the scan.
var ErrLineCountUnderflow = errors.New("filetracker: line count underflow")

// FileState is the tracker's knowledge of one path at the current point
// in the backwards walk. It reflects the file as it existed immediately
// before the most recently reverse-applied commit.
type FileState struct {
	LineCount   int
	IsBinary    bool
	BinarySize  int64
	Exists      bool
	CurrentPath string
}

// Tracker owns a path -> FileState map. It is not safe for concurrent
// use; only the scanner goroutine mutates it, per the ownership rule in
// SPEC_FULL.md section 3.
type Tracker struct {
	states map[string]FileState
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{states: make(map[string]FileState)}
}

// Seed initialises the tracker from a starting-tree listing (HEAD or the
// chosen tip), one call per file, establishing the "current" line counts
// the backwards walk will adjust from.
func (t *Tracker) Seed(path string, lines int, isBinary bool, binarySize int64) {
	t.states[path] = FileState{
		LineCount:   lines,
		IsBinary:    isBinary,
		BinarySize:  binarySize,
		Exists:      true,
		CurrentPath: path,
	}
}

// Snapshot returns a read-only copy of the current state map.
func (t *Tracker) Snapshot() map[string]FileState {
	out := make(map[string]FileState, len(t.states))
	for k, v := range t.states {
		out[k] = v
	}

	return out
}

// ApplyReverse updates tracked state to reflect the world immediately
// before the commit that produced changes was applied. Changes must be
// supplied in the order the Diff Analyser emitted them.
func (t *Tracker) ApplyReverse(changes []message.FileChange) error {
	for _, change := range changes {
		if err := t.applyOne(change); err != nil {
			return err
		}
	}

	return nil
}

func (t *Tracker) applyOne(change message.FileChange) error {
	switch change.Kind {
	case message.Added:
		delete(t.states, change.Path)
	case message.Deleted:
		preLines := change.Insertions
		t.states[change.Path] = FileState{
			LineCount:   preLines,
			IsBinary:    change.IsBinary,
			BinarySize:  change.BinarySize,
			Exists:      true,
			CurrentPath: change.Path,
		}
	case message.Modified:
		return t.applyModified(change)
	case message.Renamed, message.Copied:
		return t.applyRenamed(change)
	}

	return nil
}

func (t *Tracker) applyModified(change message.FileChange) error {
	cur, ok := t.states[change.Path]
	if !ok {
		cur = FileState{Exists: true, CurrentPath: change.Path}
	}

	if change.IsBinary {
		cur.IsBinary = true
		cur.BinarySize = change.BinarySize
		t.states[change.Path] = cur

		return nil
	}

	newLines := cur.LineCount + change.Deletions - change.Insertions
	if newLines < 0 {
		return fmt.Errorf("%w: path=%s current=%d insertions=%d deletions=%d",
			ErrLineCountUnderflow, change.Path, cur.LineCount, change.Insertions, change.Deletions)
	}

	cur.LineCount = newLines
	t.states[change.Path] = cur

	return nil
}

func (t *Tracker) applyRenamed(change message.FileChange) error {
	state, ok := t.states[change.Path]
	if !ok {
		state = FileState{Exists: true}
	}

	delete(t.states, change.Path)

	if !change.IsBinary {
		newLines := state.LineCount + change.Deletions - change.Insertions
		if newLines < 0 {
			return fmt.Errorf("%w: path=%s current=%d insertions=%d deletions=%d",
				ErrLineCountUnderflow, change.OldPath, state.LineCount, change.Insertions, change.Deletions)
		}

		state.LineCount = newLines
	}

	state.Exists = true
	state.CurrentPath = change.OldPath
	t.states[change.OldPath] = state

	return nil
}
