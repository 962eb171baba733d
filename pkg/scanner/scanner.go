// Package scanner implements the Event-Driven Scanner described in
// SPEC_FULL.md section 4.4: a single-pass, reverse-chronological
// traversal that reconstructs file state and emits an ordered message
// stream for one repository scan.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Sumatoshi-tech/codefang/pkg/checkout"
	"github.com/Sumatoshi-tech/codefang/pkg/diffanalyser"
	"github.com/Sumatoshi-tech/codefang/pkg/filetracker"
	"github.com/Sumatoshi-tech/codefang/pkg/gitlib"
	"github.com/Sumatoshi-tech/codefang/pkg/message"
)

// ErrRepositoryAccess is fatal: the scan cannot read a commit or its
// tree.
var ErrRepositoryAccess = errors.New("scanner: repository access error")

// Profile is the immutable Runtime scan profile for one scan, derived
// once at pipeline start from the union of active plugins' declared
// requirements.
type Profile struct {
	CheckoutEnabled     bool
	CheckoutCurrentOnly bool
	CheckoutHistorical  bool
	MaxFileSize         int64
}

// Sink receives messages and warnings in emission order. Implementations
// must not block indefinitely; the scanner never re-orders messages to
// accommodate backpressure — it blocks on the sink instead.
type Sink interface {
	Emit(ctx context.Context, msg message.Message) error
	Warn(ctx context.Context, text string)
}

// Result summarises a completed scan.
type Result struct {
	CommitsVisited int
	FilesChanged   int
	Warnings       int
	Duration       time.Duration
}

// Scanner owns the File Tracker and (if enabled) the Checkout Manager
// for the duration of one scan; neither is shared with any other task.
type Scanner struct {
	repo     *gitlib.Repository
	tracker  *filetracker.Tracker
	checkout *checkout.Manager
	seq      uint64
}

// New creates a Scanner. checkoutMgr may be nil when profile.CheckoutEnabled
// is false.
func New(repo *gitlib.Repository, checkoutMgr *checkout.Manager) *Scanner {
	return &Scanner{repo: repo, tracker: filetracker.New(), checkout: checkoutMgr}
}

// Scan resolves the starting commit (HEAD), seeds the File Tracker from
// its tree, then walks ancestors in reverse-chronological order, emitting
// one CommitInfo message followed by one FileChange message per changed
// file for each commit, updating the File Tracker in reverse as it goes.
// Cancellation is checked at each commit boundary.
func (s *Scanner) Scan(ctx context.Context, profile Profile, sink Sink) (Result, error) {
	start := time.Now()

	headHash, err := s.repo.Head()
	if err != nil {
		return Result{}, fmt.Errorf("%w: resolve HEAD: %v", ErrRepositoryAccess, err)
	}

	headCommit, err := s.repo.LookupCommit(ctx, headHash)
	if err != nil {
		return Result{}, fmt.Errorf("%w: lookup HEAD commit: %v", ErrRepositoryAccess, err)
	}

	if err := s.seedFromTree(headCommit); err != nil {
		return Result{}, err
	}

	iter, err := s.repo.Log(&gitlib.LogOptions{FirstParent: true})
	if err != nil {
		return Result{}, fmt.Errorf("%w: open revwalk: %v", ErrRepositoryAccess, err)
	}
	defer iter.Close()

	result := Result{}

	for {
		if err := ctx.Err(); err != nil {
			break
		}

		commit, nextErr := iter.Next()
		if errors.Is(nextErr, io.EOF) {
			break
		}

		if nextErr != nil {
			return result, fmt.Errorf("%w: walk ancestors: %v", ErrRepositoryAccess, nextErr)
		}

		changed, werr := s.processCommit(ctx, commit, profile, sink)
		if werr != nil {
			return result, werr
		}

		result.CommitsVisited++
		result.FilesChanged += changed
	}

	result.Duration = time.Since(start)

	return result, nil
}

// processCommit diffs commit against its first parent (merges: first
// parent only), emits CommitInfo then one FileChange per changed file,
// and updates the File Tracker with the reverse-application rules.
func (s *Scanner) processCommit(ctx context.Context, commit *gitlib.Commit, profile Profile, sink Sink) (int, error) {
	newTree, err := commit.Tree()
	if err != nil {
		return 0, fmt.Errorf("%w: read tree for %s: %v", ErrRepositoryAccess, commit.Hash(), err)
	}
	defer newTree.Free()

	var oldTree *gitlib.Tree

	if commit.NumParents() > 0 {
		parent, perr := commit.Parent(0)
		if perr != nil {
			return 0, fmt.Errorf("%w: read parent for %s: %v", ErrRepositoryAccess, commit.Hash(), perr)
		}
		defer parent.Free()

		oldTree, err = parent.Tree()
		if err != nil {
			return 0, fmt.Errorf("%w: read parent tree for %s: %v", ErrRepositoryAccess, commit.Hash(), err)
		}
		defer oldTree.Free()
	}

	diff, err := s.repo.DiffTreeToTree(oldTree, newTree)
	if err != nil {
		return 0, fmt.Errorf("%w: diff for %s: %v", ErrRepositoryAccess, commit.Hash(), err)
	}
	defer diff.Free()

	diffText, err := diff.Text()
	if err != nil {
		sink.Warn(ctx, fmt.Sprintf("diff text render failed for %s: %v", commit.Hash(), err))

		return 0, nil
	}

	records, err := diffanalyser.Parse(diffText, s.blobSizer(commit))
	if err != nil {
		sink.Warn(ctx, fmt.Sprintf("diff parse failed for %s: %v", commit.Hash(), err))

		return 0, nil
	}

	commitMsg := message.NewCommitInfo(s.nextSeq(), time.Now(), message.CommitInfo{
		Hash:      commit.Hash().String(),
		Author:    commit.Author().Name,
		Message:   commit.Message(),
		Timestamp: commit.Author().When,
	})

	if err := sink.Emit(ctx, commitMsg); err != nil {
		return 0, err
	}

	changes := make([]message.FileChange, 0, len(records))

	var checkoutHandle *checkout.Handle

	if profile.CheckoutEnabled {
		paths := make([]string, 0, len(records))
		for _, r := range records {
			if !r.IsBinary {
				paths = append(paths, r.Path)
			}
		}

		h, skipped, cerr := s.checkout.Prepare(commit, paths)
		if cerr != nil {
			sink.Warn(ctx, fmt.Sprintf("checkout failed for %s: %v", commit.Hash(), cerr))
		} else {
			checkoutHandle = h

			for _, p := range skipped {
				sink.Warn(ctx, fmt.Sprintf("%s exceeds max file size, skipping checkout", p))
			}
		}
	}

	for _, rec := range records {
		change := message.FileChange{
			Path:       rec.Path,
			Kind:       rec.Kind,
			OldPath:    rec.OldPath,
			Insertions: rec.Insertions,
			Deletions:  rec.Deletions,
			IsBinary:   rec.IsBinary,
			BinarySize: rec.BinarySize,
		}

		if checkoutHandle != nil && !rec.IsBinary {
			change.CheckoutPath = s.checkout.PathOf(checkoutHandle, rec.Path)
		}

		changes = append(changes, change)

		if err := sink.Emit(ctx, message.NewFileChange(s.nextSeq(), time.Now(), change)); err != nil {
			return 0, err
		}
	}

	if err := s.tracker.ApplyReverse(changes); err != nil {
		return 0, fmt.Errorf("scanner: %w", err)
	}

	return len(changes), nil
}

// blobSizer resolves a binary file's size from the commit's tree, for
// the Diff Analyser's binary_size population.
func (s *Scanner) blobSizer(commit *gitlib.Commit) diffanalyser.BlobSizer {
	return func(path string) (int64, error) {
		f, err := commit.File(path)
		if err != nil {
			return 0, err
		}

		contents, err := f.Contents()
		if err != nil {
			return 0, err
		}

		return int64(len(contents)), nil
	}
}

// seedFromTree learns the set of files from the starting tree, seeding
// the File Tracker's line counts from an initial pass so that the first
// reverse-application has a baseline to subtract from.
func (s *Scanner) seedFromTree(commit *gitlib.Commit) error {
	files, err := commit.Files()
	if err != nil {
		return fmt.Errorf("%w: list files at HEAD: %v", ErrRepositoryAccess, err)
	}

	return files.ForEach(func(f *gitlib.File) error {
		contents, cerr := f.Contents()
		if cerr != nil {
			// Unreadable individual blob at seed time is a warning-class
			// condition in spirit, but Seed has no sink; skip the file.
			return nil
		}

		isBinary := isBinaryContent(contents)
		if isBinary {
			s.tracker.Seed(f.Name, 0, true, int64(len(contents)))
		} else {
			s.tracker.Seed(f.Name, countLines(contents), false, 0)
		}

		return nil
	})
}

func (s *Scanner) nextSeq() uint64 {
	s.seq++

	return s.seq
}

func isBinaryContent(data []byte) bool {
	for _, b := range data {
		if b == 0 {
			return true
		}
	}

	return false
}

func countLines(data []byte) int {
	if len(data) == 0 {
		return 0
	}

	count := 0

	for _, b := range data {
		if b == '\n' {
			count++
		}
	}

	if data[len(data)-1] != '\n' {
		count++
	}

	return count
}
