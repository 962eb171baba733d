package observability

import (
	"context"

	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ProbeBuildResource exposes buildResource to black-box tests.
func ProbeBuildResource(cfg Config) (*resource.Resource, error) {
	return buildResource(cfg)
}

// ProbeSamplerSpan exposes selectSampler to black-box tests by reporting
// whether a root span created under the resulting sampler is recorded.
func ProbeSamplerSpan(cfg Config) bool {
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(selectSampler(cfg)))
	defer tp.Shutdown(context.Background())

	_, span := tp.Tracer("probe").Start(context.Background(), "probe-span")
	defer span.End()

	return span.SpanContext().IsSampled()
}
