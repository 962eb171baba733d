// Package registry implements the Plugin Registry described in
// SPEC_FULL.md section 4.7: plugin storage, lifecycle state machine, and
// ID-pattern lookup over registered plugins.
package registry

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"sync"

	"github.com/Sumatoshi-tech/codefang/pkg/message"
	"github.com/Sumatoshi-tech/codefang/pkg/notify"
	"github.com/Sumatoshi-tech/codefang/pkg/plugin"
)

// ErrUnknownPlugin indicates no plugin with the given ID is registered.
var ErrUnknownPlugin = errors.New("registry: unknown plugin")

// ErrAPIVersionTooLow indicates a plugin's MinAPIVersion exceeds the
// runtime's compiled API version.
var ErrAPIVersionTooLow = errors.New("registry: runtime API version too low for plugin")

// ErrMissingCapability indicates a plugin declares a required capability
// the runtime does not provide.
var ErrMissingCapability = errors.New("registry: missing required capability")

// entry bundles a plugin instance with its lifecycle state.
type entry struct {
	mu    sync.Mutex
	p     plugin.Plugin
	state plugin.State
	err   error
}

// Registry stores plugin instances, their declared data requirements,
// lifecycle state, and routes notifications to them. Shared via a
// single-writer/multi-reader lock per SPEC_FULL.md section 5.
type Registry struct {
	mu      sync.RWMutex
	ordered []string
	index   map[string]*entry
	caps    map[string]bool
}

// New creates an empty Registry. caps lists the capability identifiers
// the runtime provides, used to validate a plugin's declared
// dependencies at Register time.
func New(caps []string) *Registry {
	capSet := make(map[string]bool, len(caps))
	for _, c := range caps {
		capSet[c] = true
	}

	return &Registry{index: make(map[string]*entry), caps: capSet}
}

// Register validates API compatibility and required capabilities, then
// inserts the plugin's descriptor in the Registered state.
func (r *Registry) Register(p plugin.Plugin) error {
	desc := p.Descriptor()

	if desc.MinAPIVersion > plugin.APIVersion {
		return fmt.Errorf("%w: plugin=%s requires>=%d runtime=%d",
			ErrAPIVersionTooLow, desc.ID, desc.MinAPIVersion, plugin.APIVersion)
	}

	for _, capability := range desc.Capabilities {
		if !r.caps[capability] {
			return fmt.Errorf("%w: plugin=%s capability=%s", ErrMissingCapability, desc.ID, capability)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.index[desc.ID] = &entry{p: p, state: plugin.Registered}
	r.ordered = append(r.ordered, desc.ID)

	return nil
}

// InitialiseAll transitions every registered plugin to Initialised,
// providing the runtime context. A plugin whose Initialise call errors
// moves to Error instead and is reported in the returned map.
func (r *Registry) InitialiseAll(ctx context.Context, rc plugin.Context) map[string]error {
	r.mu.RLock()
	ids := append([]string(nil), r.ordered...)
	r.mu.RUnlock()

	errs := make(map[string]error)

	for _, id := range ids {
		e := r.mustEntry(id)

		e.mu.Lock()
		initErr := e.p.Initialise(ctx, rc)

		if initErr != nil {
			e.state = plugin.Error
			e.err = initErr
			errs[id] = initErr
		} else {
			e.state = plugin.Initialised
		}

		e.mu.Unlock()
	}

	return errs
}

// Requirements returns the logical-or/min-of union of declared data
// requirements across every plugin not in the Error state, used to
// derive the Runtime scan profile.
func (r *Registry) Requirements() plugin.Requirements {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var union plugin.Requirements

	var minSize int64

	for _, id := range r.ordered {
		e := r.index[id]

		e.mu.Lock()
		state := e.state
		desc := e.p.Descriptor()
		e.mu.Unlock()

		if state == plugin.Error {
			continue
		}

		req := desc.Requirements
		union.NeedsCurrentContent = union.NeedsCurrentContent || req.NeedsCurrentContent
		union.NeedsHistoricalContent = union.NeedsHistoricalContent || req.NeedsHistoricalContent
		union.HandlesBinary = union.HandlesBinary || req.HandlesBinary

		if req.MaxFileSize > 0 && (minSize == 0 || req.MaxFileSize < minSize) {
			minSize = req.MaxFileSize
		}
	}

	union.MaxFileSize = minSize

	return union
}

// Transition applies the lifecycle state machine guard, failing with
// ErrIllegalTransition if the move from the current state is not
// permitted.
func (r *Registry) Transition(id string, newState plugin.State) error {
	e := r.mustEntry(id)

	e.mu.Lock()
	defer e.mu.Unlock()

	if !legalTransition(e.state, newState) {
		return fmt.Errorf("%w: plugin=%s from=%s to=%s", plugin.ErrIllegalTransition, id, e.state, newState)
	}

	e.state = newState

	return nil
}

func legalTransition(from, to plugin.State) bool {
	if to == plugin.Error {
		return true
	}

	switch from {
	case plugin.Registered:
		return to == plugin.Initialised
	case plugin.Initialised:
		return to == plugin.Processing || to == plugin.Terminating
	case plugin.Processing:
		return to == plugin.Initialised
	case plugin.Terminating:
		return to == plugin.Finalised
	case plugin.Error, plugin.Finalised:
		return false
	default:
		return false
	}
}

// SubscribeAll attaches each plugin's NotificationAware handler (when
// implemented) to the bus with its declared preferences.
func (r *Registry) SubscribeAll(bus *notify.Bus) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.ordered {
		e := r.index[id]

		e.mu.Lock()
		p := e.p
		e.mu.Unlock()

		na, ok := p.(plugin.NotificationAware)
		if !ok {
			continue
		}

		sub := bus.Subscribe(p.Descriptor().Preferences, nil)

		go func(na plugin.NotificationAware, sub *notify.Subscription) {
			for ev := range sub.C {
				na.HandleEvent(ev)
			}
		}(na, sub)
	}
}

// Dispatch feeds msg to every Initialised plugin implementing
// StreamHandler, transitioning each to Processing for the duration of
// its ProcessMessage call and back to Initialised afterward. A plugin
// whose ProcessMessage call errors moves to Error and is excluded from
// future dispatches; its error is reported in the returned map. Derived
// messages from all plugins are concatenated in registration order.
func (r *Registry) Dispatch(ctx context.Context, msg message.Message) ([]message.Message, map[string]error) {
	r.mu.RLock()
	ids := append([]string(nil), r.ordered...)
	r.mu.RUnlock()

	var derived []message.Message

	errs := make(map[string]error)

	for _, id := range ids {
		e := r.mustEntry(id)

		e.mu.Lock()

		if e.state != plugin.Initialised {
			e.mu.Unlock()

			continue
		}

		handler, ok := e.p.(plugin.StreamHandler)
		if !ok {
			e.mu.Unlock()

			continue
		}

		e.state = plugin.Processing

		out, err := handler.ProcessMessage(ctx, msg)
		if err != nil {
			e.state = plugin.Error
			e.err = err
			errs[id] = err
		} else {
			e.state = plugin.Initialised
			derived = append(derived, out...)
		}

		e.mu.Unlock()
	}

	return derived, errs
}

// FinalizeAggregators calls Finalize on every Initialised plugin
// implementing Aggregator, collecting one Report per plugin ID. A
// plugin whose Finalize call errors moves to Error and is reported in
// the returned error map instead of contributing a report.
func (r *Registry) FinalizeAggregators(ctx context.Context) (map[string]plugin.Report, map[string]error) {
	r.mu.RLock()
	ids := append([]string(nil), r.ordered...)
	r.mu.RUnlock()

	reports := make(map[string]plugin.Report)
	errs := make(map[string]error)

	for _, id := range ids {
		e := r.mustEntry(id)

		e.mu.Lock()

		if e.state != plugin.Initialised {
			e.mu.Unlock()

			continue
		}

		aggregator, ok := e.p.(plugin.Aggregator)
		if !ok {
			e.mu.Unlock()

			continue
		}

		report, err := aggregator.Finalize(ctx)
		if err != nil {
			e.state = plugin.Error
			e.err = err
			errs[id] = err
		} else {
			reports[id] = report
		}

		e.mu.Unlock()
	}

	return reports, errs
}

// ActiveIDs returns IDs of plugins not in Finalised state.
func (r *Registry) ActiveIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.ordered))

	for _, id := range r.ordered {
		e := r.index[id]

		e.mu.Lock()
		active := e.state != plugin.Finalised
		e.mu.Unlock()

		if active {
			out = append(out, id)
		}
	}

	return out
}

// Idle reports whether every active plugin is Initialised or Error,
// i.e. the "Shutdown completeness" testable property.
func (r *Registry) Idle() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.ordered {
		e := r.index[id]

		e.mu.Lock()
		idle := e.state.Idle()
		e.mu.Unlock()

		if !idle {
			return false
		}
	}

	return true
}

// FinaliseAll transitions every plugin to Finalised and releases its
// resources via Cleanup.
func (r *Registry) FinaliseAll(ctx context.Context) map[string]error {
	r.mu.RLock()
	ids := append([]string(nil), r.ordered...)
	r.mu.RUnlock()

	errs := make(map[string]error)

	for _, id := range ids {
		e := r.mustEntry(id)

		e.mu.Lock()
		if e.state != plugin.Error {
			e.state = plugin.Terminating
		}

		cleanupErr := e.p.Cleanup(ctx)
		e.state = plugin.Finalised

		if cleanupErr != nil {
			errs[id] = cleanupErr
		}

		e.mu.Unlock()
	}

	return errs
}

// Descriptor returns the descriptor for id.
func (r *Registry) Descriptor(id string) (plugin.Descriptor, error) {
	e := r.entry(id)
	if e == nil {
		return plugin.Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownPlugin, id)
	}

	return e.p.Descriptor(), nil
}

// All returns every registered descriptor, in registration order.
func (r *Registry) All() []plugin.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]plugin.Descriptor, 0, len(r.ordered))
	for _, id := range r.ordered {
		out = append(out, r.index[id].p.Descriptor())
	}

	return out
}

// ByKind returns descriptors filtered to the given DispatchKind, sorted
// by ID for stable CLI output.
func (r *Registry) ByKind(kind plugin.DispatchKind) []plugin.Descriptor {
	all := r.All()

	out := make([]plugin.Descriptor, 0, len(all))

	for _, d := range all {
		if d.Kind == kind {
			out = append(out, d)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// ExpandPatterns expands a mixed list of plain IDs and glob patterns
// (matched with path.Match semantics) against the registered plugin IDs.
func (r *Registry) ExpandPatterns(patterns []string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)

	var out []string

	for _, pat := range patterns {
		matched := false

		for _, id := range r.ordered {
			ok, err := path.Match(pat, id)
			if err != nil {
				return nil, fmt.Errorf("registry: bad pattern %q: %w", pat, err)
			}

			if ok && !seen[id] {
				seen[id] = true

				out = append(out, id)
				matched = true
			}
		}

		if !matched {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPlugin, pat)
		}
	}

	return out, nil
}

func (r *Registry) entry(id string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.index[id]
}

func (r *Registry) mustEntry(id string) *entry {
	e := r.entry(id)
	if e == nil {
		panic(fmt.Sprintf("registry: internal error, unknown plugin id %q", id))
	}

	return e
}
