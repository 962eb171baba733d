package commands_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codefang/pkg/plugins/commitstats"
	"github.com/Sumatoshi-tech/codefang/pkg/plugins/export"
)

// These tests exercise the package through the public commands built on
// top of factory.go, since the factory's internals are unexported.

func TestScanCommand_UnknownPlugin_ReturnsError(t *testing.T) {
	cmd := buildTestScanCommand(t)
	cmd.SetArgs([]string{"--plugins", "nonexistent-plugin", "."})

	err := cmd.Execute()
	require.Error(t, err)
	assert.ErrorContains(t, err, "unknown plugin")
}

func TestScanCommand_NoPlugins_ReturnsError(t *testing.T) {
	cmd := buildTestScanCommand(t)
	cmd.SetArgs([]string{"."})

	err := cmd.Execute()
	require.Error(t, err)
	assert.ErrorContains(t, err, "no plugins selected")
}

func TestPluginsListCommand_IncludesKnownPlugins(t *testing.T) {
	cmd := buildTestPluginsCommand(t)

	var out bytes.Buffer

	cmd.SetOut(&out)
	cmd.SetArgs([]string{"list"})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, out.String(), commitstats.ID)
	assert.Contains(t, out.String(), export.ID)
}

func TestPluginsInfoCommand_UnknownID_ReturnsError(t *testing.T) {
	cmd := buildTestPluginsCommand(t)
	cmd.SetArgs([]string{"info", "does-not-exist"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.ErrorContains(t, err, "unknown plugin")
}
