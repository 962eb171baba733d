// Package checkout implements the Checkout Manager described in
// SPEC_FULL.md section 4.3: scoped, per-commit materialisation of file
// blobs into a temporary directory, created only when the Runtime scan
// profile enables it.
package checkout

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pierrec/lz4/v4"

	"github.com/Sumatoshi-tech/codefang/pkg/gitlib"
)

// ErrFileTooLarge is surfaced (as a warning, not a fatal error) when a
// file exceeds the profile's MaxFileSize and is skipped.
var ErrFileTooLarge = errors.New("checkout: file exceeds max file size")

// compressThreshold is the blob size above which Manager stores a
// lz4-compressed copy instead of the raw bytes, bounding the checkout
// root's disk footprint the way pkg/budget bounds memory.
const compressThreshold = 1 << 20 // 1 MiB

// Handle identifies one commit's checkout scope.
type Handle struct {
	dir string
}

// Manager materialises file blobs at a given commit into a scoped
// temporary directory. Thread-safe via a per-commit lock on the
// preparation path; concurrent Prepare calls for the same commit
// deduplicate.
type Manager struct {
	repo        *gitlib.Repository
	root        string
	maxFileSize int64

	mu      sync.Mutex
	inflight map[string]*sync.Once
	handles  map[string]*Handle
}

// New creates a Manager rooted at root (the effective checkout root from
// the Runtime scan profile). The caller must ensure root exists.
func New(repo *gitlib.Repository, root string, maxFileSize int64) *Manager {
	return &Manager{
		repo:        repo,
		root:        root,
		maxFileSize: maxFileSize,
		inflight:    make(map[string]*sync.Once),
		handles:     make(map[string]*Handle),
	}
}

// Prepare materialises the requested files' blobs at commit hash into a
// per-commit subdirectory, idempotently: concurrent calls for the same
// commit deduplicate and return the same Handle. Files exceeding
// maxFileSize are skipped; only the call that performed the preparation
// receives them in the skipped slice, later calls for the same commit
// get nil.
func (m *Manager) Prepare(commit *gitlib.Commit, paths []string) (*Handle, []string, error) {
	hashHex := commit.Hash().String()

	m.mu.Lock()
	once, ok := m.inflight[hashHex]
	if !ok {
		once = &sync.Once{}
		m.inflight[hashHex] = once
	}
	m.mu.Unlock()

	var prepErr error

	var skipped []string

	once.Do(func() {
		skipped, prepErr = m.prepareOnce(commit, hashHex, paths)
	})

	if prepErr != nil {
		return nil, nil, prepErr
	}

	m.mu.Lock()
	h := m.handles[hashHex]
	m.mu.Unlock()

	return h, skipped, nil
}

func (m *Manager) prepareOnce(commit *gitlib.Commit, hashHex string, paths []string) ([]string, error) {
	dir := filepath.Join(m.root, hashHex)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("checkout: mkdir %s: %w", dir, err)
	}

	var skipped []string

	for _, p := range paths {
		file, err := commit.File(p)
		if err != nil {
			continue // unreadable individual blob: caller surfaces as a ScanWarning
		}

		contents, err := file.Contents()
		if err != nil {
			continue
		}

		if m.maxFileSize > 0 && int64(len(contents)) > m.maxFileSize {
			skipped = append(skipped, p)

			continue
		}

		if err := m.writeBlob(dir, p, contents); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	m.handles[hashHex] = &Handle{dir: dir}
	m.mu.Unlock()

	return skipped, nil
}

func (m *Manager) writeBlob(dir, relPath string, contents []byte) error {
	dest := filepath.Join(dir, relPath)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("checkout: mkdir for %s: %w", relPath, err)
	}

	if len(contents) < compressThreshold {
		if err := os.WriteFile(dest, contents, 0o644); err != nil {
			return fmt.Errorf("checkout: write %s: %w", relPath, err)
		}

		return nil
	}

	f, err := os.Create(dest + ".lz4")
	if err != nil {
		return fmt.Errorf("checkout: create %s: %w", dest, err)
	}
	defer f.Close()

	writer := lz4.NewWriter(f)

	if _, err := writer.Write(contents); err != nil {
		return fmt.Errorf("checkout: lz4 write %s: %w", relPath, err)
	}

	return writer.Close()
}

// PathOf returns the local absolute path for a checked-out file under
// handle's scope. Blobs of compressThreshold bytes or more are stored
// lz4-compressed, and for those the returned path carries the ".lz4"
// suffix.
func (m *Manager) PathOf(h *Handle, filePath string) string {
	p := filepath.Join(h.dir, filePath)
	if _, err := os.Stat(p + ".lz4"); err == nil {
		return p + ".lz4"
	}

	return p
}

// Release deletes the subdirectory and its contents. Must be invoked on
// every scope exit, including error paths, typically via defer.
func (m *Manager) Release(h *Handle) error {
	if h == nil {
		return nil
	}

	if err := os.RemoveAll(h.dir); err != nil {
		return fmt.Errorf("checkout: release %s: %w", h.dir, err)
	}

	return nil
}

// ReleaseAll deletes the entire checkout root, invoked on pipeline
// shutdown.
func (m *Manager) ReleaseAll() error {
	if err := os.RemoveAll(m.root); err != nil {
		return fmt.Errorf("checkout: release root %s: %w", m.root, err)
	}

	return nil
}
