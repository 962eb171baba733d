package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricCommitsTotal   = "codefang.pipeline.commits.total"
	metricFilesTotal     = "codefang.pipeline.files.total"
	metricWarningsTotal  = "codefang.pipeline.warnings.total"
	metricPluginDuration = "codefang.pipeline.plugin.duration.seconds"

	attrPlugin = "plugin"
)

// AnalysisMetrics holds OTel instruments for Pipeline Engine run metrics.
type AnalysisMetrics struct {
	commitsTotal   metric.Int64Counter
	filesTotal     metric.Int64Counter
	warningsTotal  metric.Int64Counter
	pluginDuration metric.Float64Histogram
}

// AnalysisStats holds the statistics for a single Pipeline Engine run.
type AnalysisStats struct {
	Commits         int64
	Files           int64
	Warnings        int64
	PluginDurations map[string]time.Duration
}

// NewAnalysisMetrics creates analysis metric instruments from the given meter.
func NewAnalysisMetrics(mt metric.Meter) (*AnalysisMetrics, error) {
	commits, err := mt.Int64Counter(metricCommitsTotal,
		metric.WithDescription("Total commits visited"),
		metric.WithUnit("{commit}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCommitsTotal, err)
	}

	files, err := mt.Int64Counter(metricFilesTotal,
		metric.WithDescription("Total file changes observed"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricFilesTotal, err)
	}

	warnings, err := mt.Int64Counter(metricWarningsTotal,
		metric.WithDescription("Total scan warnings emitted"),
		metric.WithUnit("{warning}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricWarningsTotal, err)
	}

	pluginDur, err := mt.Float64Histogram(metricPluginDuration,
		metric.WithDescription("Per-plugin Finalize duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricPluginDuration, err)
	}

	return &AnalysisMetrics{
		commitsTotal:   commits,
		filesTotal:     files,
		warningsTotal:  warnings,
		pluginDuration: pluginDur,
	}, nil
}

// RecordRun records run statistics for a completed Pipeline Engine scan.
// Safe to call on a nil receiver (no-op).
func (am *AnalysisMetrics) RecordRun(ctx context.Context, stats AnalysisStats) {
	if am == nil {
		return
	}

	am.commitsTotal.Add(ctx, stats.Commits)
	am.filesTotal.Add(ctx, stats.Files)
	am.warningsTotal.Add(ctx, stats.Warnings)

	for pluginID, d := range stats.PluginDurations {
		am.pluginDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String(attrPlugin, pluginID)))
	}
}
