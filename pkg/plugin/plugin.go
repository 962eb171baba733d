// Package plugin defines the narrow base capability plugins implement,
// plus optional mix-in interfaces detected by type assertion, per the
// Design Notes in SPEC_FULL.md section 9.
package plugin

import (
	"context"
	"errors"

	"github.com/Sumatoshi-tech/codefang/pkg/message"
	"github.com/Sumatoshi-tech/codefang/pkg/notify"
	"github.com/Sumatoshi-tech/codefang/pkg/pipeline"
)

// APIVersion is the runtime's compiled API version, in YYYYMMDD form.
// A plugin whose MinAPIVersion exceeds this value is refused at
// registration.
const APIVersion = 20260101

// State is a plugin's position in the lifecycle state machine:
// Registered -> Initialised -> Processing <-> Initialised -> Terminating
// -> Finalised, with any state able to move to Error.
type State int

const (
	// Registered is the initial state after Register succeeds.
	Registered State = iota
	// Initialised means the plugin has received its runtime Context.
	Initialised
	// Processing means the plugin is actively handling a message or request.
	Processing
	// Terminating means shutdown has begun for this plugin.
	Terminating
	// Finalised means the plugin has released its resources.
	Finalised
	// Error means the plugin failed; it is idle for shutdown purposes but
	// no longer receives ProcessMessage calls.
	Error
)

// String renders a State for logging.
func (s State) String() string {
	switch s {
	case Registered:
		return "registered"
	case Initialised:
		return "initialised"
	case Processing:
		return "processing"
	case Terminating:
		return "terminating"
	case Finalised:
		return "finalised"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Idle reports whether a plugin in this state counts as idle for
// shutdown-completeness purposes.
func (s State) Idle() bool {
	return s == Initialised || s == Error
}

// ErrIllegalTransition is returned by a state-machine guard when a
// transition is not permitted from the current state.
var ErrIllegalTransition = errors.New("plugin: illegal state transition")

// DispatchKind declares how the Pipeline Engine feeds a plugin messages.
type DispatchKind int

const (
	// StreamProcessor plugins handle messages per-message, low-latency,
	// and may emit derived messages.
	StreamProcessor DispatchKind = iota
	// TerminalAggregator plugins accumulate state and return a single
	// Report from Finalize after the scan; no DataReady event is
	// published for them.
	TerminalAggregator
)

// Requirements is a plugin's declared data-requirements contract. The
// Pipeline Engine unions these across all active plugins to derive the
// Runtime scan profile.
type Requirements struct {
	NeedsCurrentContent    bool
	NeedsHistoricalContent bool
	HandlesBinary          bool
	MaxFileSize            int64
	PreferredBuffer        int
}

// Descriptor is a plugin's static identity, independent of lifecycle.
type Descriptor struct {
	ID             string
	Version        string
	MinAPIVersion  int
	Kind           DispatchKind
	Capabilities   []string
	Requirements   Requirements
	Preferences    notify.Preferences
}

// Context is the runtime context handed to Initialise: repository
// reference, runtime scan profile, and plugin-specific configuration.
// RepoPath and Profile are declared here as weak references; Plugin
// implementations must not retain them past Cleanup.
type Context struct {
	RepoPath string
	Profile  ScanProfile
	Config   map[string]any
	Options  []pipeline.ConfigurationOption
}

// ScanProfile is the immutable runtime scan profile derived once at
// pipeline start, per SPEC_FULL.md section 3.
type ScanProfile struct {
	CheckoutEnabled      bool
	CheckoutCurrentOnly  bool
	CheckoutHistorical   bool
	EffectiveCheckoutRoot string
	MaxFileSize          int64
}

// Plugin is the narrow base interface every plugin implements.
type Plugin interface {
	Descriptor() Descriptor
	Initialise(ctx context.Context, rc Context) error
	Cleanup(ctx context.Context) error
}

// StreamHandler is an optional mix-in: every Initialised plugin that
// implements it receives each message as it flows through the pipeline,
// whatever its DispatchKind, and may emit derived messages.
type StreamHandler interface {
	ProcessMessage(ctx context.Context, msg message.Message) ([]message.Message, error)
}

// Aggregator is an optional mix-in for plugins that declare
// DispatchKind == TerminalAggregator: they accumulate state across the
// whole scan and produce a single report at the end.
type Aggregator interface {
	Finalize(ctx context.Context) (Report, error)
}

// NotificationAware is an optional mix-in for plugins that subscribe to
// the Notification Bus directly (beyond the lifecycle events the
// Registry delivers automatically).
type NotificationAware interface {
	HandleEvent(ev notify.Event)
}

// Report is the arbitrary structured output of a TerminalAggregator.
type Report = map[string]any
