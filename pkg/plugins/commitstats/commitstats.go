// Package commitstats is a reference terminal-aggregator plugin: it tallies
// commits and changed lines per author as the Pipeline Engine's message
// stream flows past and reports the totals from Finalize.
package commitstats

import (
	"context"
	"sort"

	"github.com/Sumatoshi-tech/codefang/pkg/identity"
	"github.com/Sumatoshi-tech/codefang/pkg/message"
	"github.com/Sumatoshi-tech/codefang/pkg/plugin"
)

// ID is the plugin's registry identity.
const ID = "commitstats"

// authorTotals accumulates one author's activity across the scan.
type authorTotals struct {
	Commits    int
	Insertions int
	Deletions  int
	FilesTouched int
}

// Plugin tallies per-author commit and line-change counts. It declares no
// content requirements: it only needs the CommitInfo/FileChange messages
// the scanner always emits, never checked-out file content.
type Plugin struct {
	totals      map[string]*authorTotals
	currentAuthor string
}

// New creates a commitstats Plugin.
func New() *Plugin {
	return &Plugin{totals: make(map[string]*authorTotals)}
}

// Descriptor implements plugin.Plugin.
func (p *Plugin) Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		ID:            ID,
		Version:       "1.0.0",
		MinAPIVersion: plugin.APIVersion,
		Kind:          plugin.TerminalAggregator,
		Capabilities:  []string{"commit-stats"},
	}
}

// Initialise implements plugin.Plugin.
func (p *Plugin) Initialise(context.Context, plugin.Context) error {
	p.totals = make(map[string]*authorTotals)

	return nil
}

// Cleanup implements plugin.Plugin.
func (p *Plugin) Cleanup(context.Context) error {
	return nil
}

// ProcessMessage implements plugin.StreamHandler. Each CommitInfo message
// sets the author context for the FileChange messages that follow it, per
// the scanner's per-commit emission order.
func (p *Plugin) ProcessMessage(_ context.Context, msg message.Message) ([]message.Message, error) {
	switch msg.Kind {
	case message.KindCommitInfo:
		author := msg.CommitInfo.Author
		if author == "" {
			author = identity.AuthorMissingName
		}

		p.currentAuthor = author
		p.authorEntry(author).Commits++
	case message.KindFileChange:
		if p.currentAuthor == "" {
			break
		}

		entry := p.authorEntry(p.currentAuthor)
		entry.Insertions += msg.FileChange.Insertions
		entry.Deletions += msg.FileChange.Deletions
		entry.FilesTouched++
	case message.KindFileInfo, message.KindMetricInfo, message.None:
	}

	return nil, nil
}

func (p *Plugin) authorEntry(author string) *authorTotals {
	entry, ok := p.totals[author]
	if !ok {
		entry = &authorTotals{}
		p.totals[author] = entry
	}

	return entry
}

// Finalize implements plugin.Aggregator: it renders the accumulated
// per-author totals, sorted by commit count descending then author name,
// into a plugin.Report.
func (p *Plugin) Finalize(context.Context) (plugin.Report, error) {
	authors := make([]string, 0, len(p.totals))
	for author := range p.totals {
		authors = append(authors, author)
	}

	sort.Slice(authors, func(i, j int) bool {
		ti, tj := p.totals[authors[i]], p.totals[authors[j]]
		if ti.Commits != tj.Commits {
			return ti.Commits > tj.Commits
		}

		return authors[i] < authors[j]
	})

	rows := make([]map[string]any, 0, len(authors))
	for _, author := range authors {
		t := p.totals[author]
		rows = append(rows, map[string]any{
			"author":        author,
			"commits":       t.Commits,
			"insertions":    t.Insertions,
			"deletions":     t.Deletions,
			"files_touched": t.FilesTouched,
		})
	}

	return plugin.Report{"authors": rows}, nil
}
