package commands_test

import (
	"testing"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/codefang/cmd/codefang/commands"
)

func buildTestScanCommand(t *testing.T) *cobra.Command {
	t.Helper()

	return commands.NewScanCommand()
}

func buildTestPluginsCommand(t *testing.T) *cobra.Command {
	t.Helper()

	return commands.NewPluginsCommand()
}
