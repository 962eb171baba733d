package checkout_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	git2go "github.com/libgit2/git2go/v34"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codefang/pkg/checkout"
	"github.com/Sumatoshi-tech/codefang/pkg/gitlib"
)

// newTestRepo creates a one-commit repository with a single file, the
// minimal fixture the Checkout Manager needs: a *gitlib.Commit with real
// blob content behind it.
func newTestRepo(t *testing.T, fileName, content string) (*gitlib.Repository, *gitlib.Commit) {
	t.Helper()

	dir := t.TempDir()

	native, err := git2go.InitRepository(dir, false)
	require.NoError(t, err)

	path := filepath.Join(dir, fileName)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	index, err := native.Index()
	require.NoError(t, err)
	defer index.Free()

	require.NoError(t, index.AddAll([]string{"*"}, git2go.IndexAddDefault, nil))
	require.NoError(t, index.Write())

	treeID, err := index.WriteTree()
	require.NoError(t, err)

	tree, err := native.LookupTree(treeID)
	require.NoError(t, err)
	defer tree.Free()

	sig := &git2go.Signature{Name: "Test", Email: "test@example.com", When: time.Now()}

	_, err = native.CreateCommit("HEAD", sig, sig, "init", tree)
	require.NoError(t, err)

	native.Free()

	repo, err := gitlib.OpenRepository(dir)
	require.NoError(t, err)

	headHash, err := repo.Head()
	require.NoError(t, err)

	commit, err := repo.LookupCommit(context.Background(), headHash)
	require.NoError(t, err)

	return repo, commit
}

func TestPrepareMaterialisesBlob(t *testing.T) {
	repo, commit := newTestRepo(t, "a.txt", "hello\n")

	root := t.TempDir()
	mgr := checkout.New(repo, root, 0)

	handle, skipped, err := mgr.Prepare(commit, []string{"a.txt"})
	require.NoError(t, err)
	require.Empty(t, skipped)

	contents, err := os.ReadFile(mgr.PathOf(handle, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello\n", string(contents))

	require.NoError(t, mgr.Release(handle))
	_, statErr := os.Stat(mgr.PathOf(handle, "a.txt"))
	require.True(t, os.IsNotExist(statErr))
}

func TestPrepareSkipsOversizedFile(t *testing.T) {
	repo, commit := newTestRepo(t, "big.txt", "0123456789")

	root := t.TempDir()
	mgr := checkout.New(repo, root, 5)

	_, skipped, err := mgr.Prepare(commit, []string{"big.txt"})
	require.NoError(t, err)
	require.Equal(t, []string{"big.txt"}, skipped)
}

func TestPrepareIsIdempotentPerCommit(t *testing.T) {
	repo, commit := newTestRepo(t, "a.txt", "hello\n")

	root := t.TempDir()
	mgr := checkout.New(repo, root, 0)

	h1, _, err := mgr.Prepare(commit, []string{"a.txt"})
	require.NoError(t, err)

	h2, _, err := mgr.Prepare(commit, []string{"a.txt"})
	require.NoError(t, err)

	require.Equal(t, mgr.PathOf(h1, "a.txt"), mgr.PathOf(h2, "a.txt"))
}
