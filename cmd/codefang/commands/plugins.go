package commands

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/codefang/pkg/plugin"
)

// NewPluginsCommand builds the "plugins" command group: introspection
// over the plugins buildable from the command line.
func NewPluginsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Inspect available plugins",
	}

	cmd.AddCommand(newPluginsListCommand())
	cmd.AddCommand(newPluginsInfoCommand())
	cmd.AddCommand(newPluginsByKindCommand())

	return cmd
}

func newPluginsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every registered plugin ID",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.AppendHeader(table.Row{"ID", "Version", "Kind", "Capabilities"})

			for _, id := range availablePluginIDs() {
				desc, err := descriptorFor(id)
				if err != nil {
					return err
				}

				tw.AppendRow(table.Row{desc.ID, desc.Version, kindLabel(desc.Kind), strings.Join(desc.Capabilities, ", ")})
			}

			tw.Render()

			return nil
		},
	}
}

func newPluginsInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info <id>",
		Short: "Show the descriptor for a single plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			desc, err := descriptorFor(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "id:              %s\n", desc.ID)
			fmt.Fprintf(out, "version:         %s\n", desc.Version)
			fmt.Fprintf(out, "min api version: %d\n", desc.MinAPIVersion)
			fmt.Fprintf(out, "kind:            %s\n", kindLabel(desc.Kind))
			fmt.Fprintf(out, "capabilities:    %s\n", strings.Join(desc.Capabilities, ", "))
			fmt.Fprintf(out, "requirements:\n")
			fmt.Fprintf(out, "  needs current content:    %t\n", desc.Requirements.NeedsCurrentContent)
			fmt.Fprintf(out, "  needs historical content: %t\n", desc.Requirements.NeedsHistoricalContent)
			fmt.Fprintf(out, "  handles binary:           %t\n", desc.Requirements.HandlesBinary)
			fmt.Fprintf(out, "  max file size:            %d\n", desc.Requirements.MaxFileSize)
			fmt.Fprintf(out, "  preferred buffer:         %d\n", desc.Requirements.PreferredBuffer)

			return nil
		},
	}
}

func newPluginsByKindCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list-by-kind <stream|aggregator>",
		Short: "List plugins of a single dispatch kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseDispatchKind(args[0])
			if err != nil {
				return err
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.AppendHeader(table.Row{"ID", "Version", "Capabilities"})

			for _, id := range availablePluginIDs() {
				desc, descErr := descriptorFor(id)
				if descErr != nil {
					return descErr
				}

				if desc.Kind != kind {
					continue
				}

				tw.AppendRow(table.Row{desc.ID, desc.Version, strings.Join(desc.Capabilities, ", ")})
			}

			tw.Render()

			return nil
		},
	}
}

func kindLabel(kind plugin.DispatchKind) string {
	switch kind {
	case plugin.StreamProcessor:
		return "stream"
	case plugin.TerminalAggregator:
		return "aggregator"
	default:
		return "unknown"
	}
}

func parseDispatchKind(raw string) (plugin.DispatchKind, error) {
	switch raw {
	case "stream":
		return plugin.StreamProcessor, nil
	case "aggregator":
		return plugin.TerminalAggregator, nil
	default:
		return 0, fmt.Errorf("%w: unknown dispatch kind %q", ErrUnknownPlugin, raw)
	}
}
