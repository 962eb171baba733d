// Package commands implements CLI command handlers for codefang.
package commands

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/Sumatoshi-tech/codefang/pkg/plugin"
	"github.com/Sumatoshi-tech/codefang/pkg/plugins/commitstats"
	"github.com/Sumatoshi-tech/codefang/pkg/plugins/export"
)

// ErrUnknownPlugin indicates a requested plugin ID is not in the factory.
var ErrUnknownPlugin = errors.New("unknown plugin")

// pluginOptions carries the settings a factory needs to construct a plugin,
// populated from CLI flags and config.Settings.
type pluginOptions struct {
	writer  io.Writer
	noColor bool
	format  export.Format
}

type pluginFactory func(opts pluginOptions) plugin.Plugin

// pluginFactories lists every plugin buildable from the command line, keyed
// by plugin ID. Adding a plugin means adding one entry here.
var pluginFactories = map[string]pluginFactory{
	commitstats.ID: func(pluginOptions) plugin.Plugin { return commitstats.New() },
	export.ID: func(opts pluginOptions) plugin.Plugin {
		return export.New(opts.format, opts.writer, opts.noColor)
	},
}

// availablePluginIDs returns every known plugin ID, sorted.
func availablePluginIDs() []string {
	ids := make([]string, 0, len(pluginFactories))
	for id := range pluginFactories {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// buildPlugins instantiates one plugin per requested ID, in the order given.
func buildPlugins(ids []string, opts pluginOptions) ([]plugin.Plugin, error) {
	plugins := make([]plugin.Plugin, 0, len(ids))

	for _, id := range ids {
		factory, ok := pluginFactories[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPlugin, id)
		}

		plugins = append(plugins, factory(opts))
	}

	return plugins, nil
}

// descriptorFor builds a throwaway instance of the named plugin purely to
// read its Descriptor, for CLI introspection commands.
func descriptorFor(id string) (plugin.Descriptor, error) {
	factory, ok := pluginFactories[id]
	if !ok {
		return plugin.Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownPlugin, id)
	}

	return factory(pluginOptions{}).Descriptor(), nil
}
