// Package export is a reference terminal-aggregator plugin: it tallies file
// changes by kind and renders them as a table, YAML, or a standalone HTML
// bar-chart page. The table and YAML renderings also include any reports
// handed to it through Merge; it does not collect other plugins' reports
// on its own.
package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/codefang/pkg/message"
	"github.com/Sumatoshi-tech/codefang/pkg/plugin"
)

// ID is the plugin's registry identity.
const ID = "export"

// Format selects the rendering produced by Write.
type Format int

const (
	// FormatTable renders a go-pretty table to the terminal.
	FormatTable Format = iota
	// FormatYAML renders the raw report as YAML.
	FormatYAML
	// FormatHTML renders a standalone go-echarts bar chart page.
	FormatHTML
)

// Plugin accumulates file-change counts observed in the message stream and,
// on Finalize, can additionally render any upstream plugin.Report values
// it is handed via Merge.
type Plugin struct {
	format Format
	writer io.Writer
	noColor bool

	filesByKind map[string]int
	upstream    map[string]plugin.Report
}

// New creates an export Plugin. writer defaults to os.Stdout when nil.
func New(format Format, writer io.Writer, noColor bool) *Plugin {
	if writer == nil {
		writer = os.Stdout
	}

	return &Plugin{format: format, writer: writer, noColor: noColor, filesByKind: make(map[string]int)}
}

// Merge hands export another plugin's finalized report, keyed by plugin ID,
// so a single export render can cover the whole run's output.
func (p *Plugin) Merge(reports map[string]plugin.Report) {
	p.upstream = reports
}

// Descriptor implements plugin.Plugin.
func (p *Plugin) Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		ID:            ID,
		Version:       "1.0.0",
		MinAPIVersion: plugin.APIVersion,
		Kind:          plugin.TerminalAggregator,
		Capabilities:  []string{"export"},
	}
}

// Initialise implements plugin.Plugin.
func (p *Plugin) Initialise(context.Context, plugin.Context) error {
	p.filesByKind = make(map[string]int)

	return nil
}

// Cleanup implements plugin.Plugin.
func (p *Plugin) Cleanup(context.Context) error {
	return nil
}

// ProcessMessage implements plugin.StreamHandler: it tallies file changes
// by change kind so the summary table has at least one row even when no
// other plugin is registered.
func (p *Plugin) ProcessMessage(_ context.Context, msg message.Message) ([]message.Message, error) {
	if msg.Kind == message.KindFileChange {
		p.filesByKind[msg.FileChange.Kind.String()]++
	}

	return nil, nil
}

// Finalize implements plugin.Aggregator: it writes the selected rendering
// to the configured writer and returns the raw counts as its own report.
func (p *Plugin) Finalize(context.Context) (plugin.Report, error) {
	report := plugin.Report{"files_by_kind": p.filesByKind}

	var err error

	switch p.format {
	case FormatTable:
		err = p.renderTable()
	case FormatYAML:
		err = p.renderYAML(report)
	case FormatHTML:
		err = p.renderHTML()
	}

	if err != nil {
		return nil, fmt.Errorf("export: render: %w", err)
	}

	return report, nil
}

func (p *Plugin) renderTable() error {
	heading := color.New(color.FgCyan, color.Bold)
	if p.noColor {
		heading.DisableColor()
	}

	fmt.Fprintln(p.writer, heading.Sprint("File changes by kind"))

	tw := table.NewWriter()
	tw.SetOutputMirror(p.writer)
	tw.AppendHeader(table.Row{"Kind", "Count"})

	for _, kind := range sortedKeys(p.filesByKind) {
		tw.AppendRow(table.Row{kind, p.filesByKind[kind]})
	}

	tw.Render()

	for _, id := range sortedReportKeys(p.upstream) {
		fmt.Fprintln(p.writer)
		fmt.Fprintln(p.writer, heading.Sprintf("%s report", id))
		renderReportTable(p.writer, p.upstream[id])
	}

	return nil
}

func renderReportTable(w io.Writer, report plugin.Report) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Field", "Value"})

	for _, key := range sortedMapKeys(report) {
		tw.AppendRow(table.Row{key, fmt.Sprintf("%v", report[key])})
	}

	tw.Render()
}

func (p *Plugin) renderYAML(report plugin.Report) error {
	full := map[string]any{"export": report, "plugins": p.upstream}

	enc := yaml.NewEncoder(p.writer)
	defer enc.Close()

	return enc.Encode(full)
}

func (p *Plugin) renderHTML() error {
	bar := charts.NewBar()
	bar.SetGlobalOptions(charts.WithTitleOpts(opts.Title{Title: "Files changed by kind"}))

	kinds := sortedKeys(p.filesByKind)

	items := make([]opts.BarData, 0, len(kinds))
	for _, kind := range kinds {
		items = append(items, opts.BarData{Value: p.filesByKind[kind]})
	}

	bar.SetXAxis(kinds).AddSeries("files", items)

	return bar.Render(p.writer)
}

func sortedKeys(m map[string]int) []string {
	return sortedMapKeys(m)
}

func sortedReportKeys(m map[string]plugin.Report) []string {
	return sortedMapKeys(m)
}

func sortedMapKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
