package observability

import "log/slog"

// defaultShutdownTimeoutSec bounds how long Providers.Shutdown waits for
// pending spans/metrics to flush.
const defaultShutdownTimeoutSec = 5

// AppMode tags which surface codefang is running as, attached to every log
// line and OTel resource so CLI and MCP-server telemetry stay distinguishable.
type AppMode string

const (
	// ModeCLI marks telemetry produced by the codefang CLI.
	ModeCLI AppMode = "cli"
	// ModeMCP marks telemetry produced by the MCP server surface.
	ModeMCP AppMode = "mcp"
)

// Config controls Init's tracing, metrics, and logging setup.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Mode           AppMode

	// OTLPEndpoint is the OTLP/gRPC collector address. Empty disables export
	// and falls back to no-op tracer/meter providers.
	OTLPEndpoint string
	OTLPInsecure bool
	OTLPHeaders  map[string]string

	// SampleRatio is used when OTEL_TRACES_SAMPLER is unset and DebugTrace
	// is false. Zero falls back to parent-based-always-on.
	SampleRatio float64
	// DebugTrace forces the always-on sampler regardless of env/SampleRatio.
	DebugTrace bool

	LogLevel slog.Level
	LogJSON  bool

	ShutdownTimeoutSec int
}

// DefaultConfig returns codefang's default observability configuration: no
// OTLP export, info-level text logging to stderr, parent-based-always-on
// sampling.
func DefaultConfig() Config {
	return Config{
		ServiceName:        "codefang",
		Mode:               ModeCLI,
		LogLevel:           slog.LevelInfo,
		ShutdownTimeoutSec: defaultShutdownTimeoutSec,
	}
}
