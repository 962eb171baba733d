package diffanalyser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codefang/pkg/diffanalyser"
	"github.com/Sumatoshi-tech/codefang/pkg/message"
)

const addedFileDiff = `diff --git a/x.txt b/x.txt
new file mode 100644
index 0000000..abc1234
--- /dev/null
+++ b/x.txt
@@ -0,0 +1,3 @@
+a
+b
+c
`

func TestParseAddedFile(t *testing.T) {
	records, err := diffanalyser.Parse(addedFileDiff, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "x.txt", rec.Path)
	assert.Equal(t, message.Added, rec.Kind)
	assert.Equal(t, 3, rec.Insertions)
	assert.Equal(t, 0, rec.Deletions)
	assert.False(t, rec.IsBinary)
}

const renamedAndModifiedDiff = `diff --git a/a.txt b/b.txt
similarity index 80%
rename from a.txt
rename to b.txt
index abc..def 100644
--- a/a.txt
+++ b/b.txt
@@ -1,3 +1,4 @@
 unchanged
-removed
+added1
+added2
`

func TestParseRenameAndModify(t *testing.T) {
	records, err := diffanalyser.Parse(renamedAndModifiedDiff, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "b.txt", rec.Path)
	assert.Equal(t, "a.txt", rec.OldPath)
	assert.Equal(t, message.Renamed, rec.Kind)
	assert.Equal(t, 2, rec.Insertions)
	assert.Equal(t, 1, rec.Deletions)
}

const binaryDiff = `diff --git a/logo.png b/logo.png
new file mode 100644
index 0000000..fff0000
Binary files /dev/null and b/logo.png differ
`

func TestParseBinaryFile(t *testing.T) {
	records, err := diffanalyser.Parse(binaryDiff, func(path string) (int64, error) {
		assert.Equal(t, "logo.png", path)

		return 4096, nil
	})
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.True(t, rec.IsBinary)
	assert.Equal(t, int64(4096), rec.BinarySize)
	assert.Equal(t, 0, rec.Insertions)
	assert.Equal(t, 0, rec.Deletions)
}

func TestParseMalformedHeader(t *testing.T) {
	_, err := diffanalyser.Parse("diff --git garbage\n", nil)
	require.ErrorIs(t, err, diffanalyser.ErrMalformedHeader)
}

func TestParseMultipleFiles(t *testing.T) {
	combined := addedFileDiff + binaryDiff

	records, err := diffanalyser.Parse(combined, func(string) (int64, error) { return 4096, nil })
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "x.txt", records[0].Path)
	assert.Equal(t, "logo.png", records[1].Path)
}
