package export_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codefang/pkg/message"
	"github.com/Sumatoshi-tech/codefang/pkg/plugin"
	"github.com/Sumatoshi-tech/codefang/pkg/plugins/export"
)

func TestExportTableRendersCounts(t *testing.T) {
	var buf bytes.Buffer

	p := export.New(export.FormatTable, &buf, true)
	require.NoError(t, p.Initialise(context.Background(), plugin.Context{}))

	_, err := p.ProcessMessage(context.Background(), message.NewFileChange(1, time.Now(), message.FileChange{
		Path: "a.go", Kind: message.Added,
	}))
	require.NoError(t, err)

	report, err := p.Finalize(context.Background())
	require.NoError(t, err)

	byKind, ok := report["files_by_kind"].(map[string]int)
	require.True(t, ok)
	assert.Equal(t, 1, byKind["added"])
	assert.Contains(t, buf.String(), "added")
}

func TestExportYAMLIncludesMergedUpstream(t *testing.T) {
	var buf bytes.Buffer

	p := export.New(export.FormatYAML, &buf, true)
	require.NoError(t, p.Initialise(context.Background(), plugin.Context{}))
	p.Merge(map[string]plugin.Report{"commitstats": {"authors": []string{"alice"}}})

	_, err := p.Finalize(context.Background())
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "commitstats")
	assert.Contains(t, buf.String(), "alice")
}
