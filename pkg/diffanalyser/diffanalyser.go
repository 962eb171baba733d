// Package diffanalyser parses unified-diff text for a single commit into
// per-file change records with insertion/deletion counts and binary
// detection. It has no side effects and is deterministic.
package diffanalyser

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/Sumatoshi-tech/codefang/pkg/message"
)

// ErrMalformedHeader is returned when a file header cannot be parsed.
var ErrMalformedHeader = errors.New("diffanalyser: malformed diff header")

const (
	prefixDiffGit    = "diff --git "
	prefixOldFile    = "--- "
	prefixNewFile    = "+++ "
	prefixRename     = "rename from "
	prefixRenameTo   = "rename to "
	prefixCopy       = "copy from "
	prefixCopyTo     = "copy to "
	prefixDeletedLn  = "deleted file mode"
	prefixNewFileLn  = "new file mode"
	prefixBinaryDiff = "Binary files "
	prefixHunk       = "@@"
)

// Record is one file's change within a commit, the Diff Analyser's output
// unit before it is wrapped into a message.FileChange.
type Record struct {
	Path       string
	OldPath    string
	Kind       message.ChangeKind
	Insertions int
	Deletions  int
	IsBinary   bool
	BinarySize int64
}

// BlobSizer resolves the byte size of a blob given its path, used to
// populate BinarySize for binary file changes (the diff text itself
// carries no size information).
type BlobSizer func(path string) (int64, error)

// Parse parses unified-diff text for a single commit into an ordered
// sequence of Records, one per file header encountered, preserving the
// order the diff text presents them in.
func Parse(diffText string, sizer BlobSizer) ([]Record, error) {
	var records []Record

	scanner := bufio.NewScanner(strings.NewReader(diffText))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var cur *Record

	offset := 0

	for scanner.Scan() {
		line := scanner.Text()
		lineStart := offset
		offset += len(line) + 1

		switch {
		case strings.HasPrefix(line, prefixDiffGit):
			if cur != nil {
				records = append(records, *cur)
			}

			rec, err := parseDiffGitLine(line, lineStart)
			if err != nil {
				return nil, err
			}

			cur = rec
		case cur == nil:
			// Lines before the first "diff --git" header are ignored for
			// forward compatibility.
			continue
		case strings.HasPrefix(line, prefixRename):
			cur.OldPath = strings.TrimPrefix(line, prefixRename)
			cur.Kind = message.Renamed
		case strings.HasPrefix(line, prefixRenameTo):
			cur.Path = strings.TrimPrefix(line, prefixRenameTo)
		case strings.HasPrefix(line, prefixCopy):
			cur.OldPath = strings.TrimPrefix(line, prefixCopy)
			cur.Kind = message.Copied
		case strings.HasPrefix(line, prefixCopyTo):
			cur.Path = strings.TrimPrefix(line, prefixCopyTo)
		case strings.HasPrefix(line, prefixDeletedLn):
			cur.Kind = message.Deleted
		case strings.HasPrefix(line, prefixNewFileLn):
			cur.Kind = message.Added
		case strings.HasPrefix(line, prefixBinaryDiff):
			cur.IsBinary = true
			cur.Insertions, cur.Deletions = 0, 0

			if sizer != nil {
				size, err := sizer(cur.Path)
				if err == nil {
					cur.BinarySize = size
				}
			}
		case strings.HasPrefix(line, prefixOldFile), strings.HasPrefix(line, prefixNewFile):
			// File-name header lines; the authoritative path came from the
			// "diff --git" line, so these are informational only.
			continue
		case strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++"):
			cur.Insertions++
		case strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---"):
			cur.Deletions++
		default:
			// Hunk headers ("@@"), context lines and unknown prefixes carry
			// no count.
			continue
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("diffanalyser: scan diff text: %w", err)
	}

	if cur != nil {
		records = append(records, *cur)
	}

	return records, nil
}

// parseDiffGitLine extracts the a/ and b/ paths from a "diff --git"
// header and seeds a Record defaulting to Modified (refined by later
// lines such as "new file mode" or "deleted file mode").
func parseDiffGitLine(line string, offset int) (*Record, error) {
	rest := strings.TrimPrefix(line, prefixDiffGit)

	idx := strings.Index(rest, " b/")
	if !strings.HasPrefix(rest, "a/") || idx < 0 {
		return nil, fmt.Errorf("%w at byte offset %d: %q", ErrMalformedHeader, offset, line)
	}

	path := rest[idx+len(" b/"):]

	return &Record{Path: path, Kind: message.Modified}, nil
}
