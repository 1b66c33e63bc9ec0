package tracing

import (
	"fmt"
	"strings"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Sampler strategies accepted in telemetry.tracing.sampler.
const (
	SamplerAlways = "always"
	SamplerNever  = "never"
	SamplerRatio  = "ratio"
)

// alwaysSampledPrefixes name spans recorded whatever the ratio. Dumps and
// restores are rare and each one changes or copies whole databases.
var alwaysSampledPrefixes = []string{"backup."}

// createSampler builds the sampler for strategy. Every strategy respects
// the parent's decision for remote parents. Under "ratio", spans named by
// alwaysSampledPrefixes are sampled regardless of the ratio:
//
//	telemetry:
//	  tracing:
//	    sampler: ratio
//	    sample_ratio: 0.1  # 10% of exports, every backup and restore
func createSampler(strategy string, ratio float64) (sdktrace.Sampler, error) {
	switch strategy {
	case SamplerAlways:
		return sdktrace.ParentBased(sdktrace.AlwaysSample()), nil
	case SamplerNever:
		return sdktrace.ParentBased(sdktrace.NeverSample()), nil
	case SamplerRatio:
		if ratio < 0.0 || ratio > 1.0 {
			return nil, fmt.Errorf("sample ratio must be between 0.0 and 1.0, got %f", ratio)
		}
		return &operationSampler{
			base:   sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio)),
			always: alwaysSampledPrefixes,
		}, nil
	default:
		return nil, fmt.Errorf("unknown sampler strategy: %s (valid: always, never, ratio)", strategy)
	}
}

// operationSampler samples spans whose name has one of the always
// prefixes and defers everything else to base.
type operationSampler struct {
	base   sdktrace.Sampler
	always []string
}

func (s *operationSampler) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	for _, prefix := range s.always {
		if strings.HasPrefix(p.Name, prefix) {
			return sdktrace.SamplingResult{
				Decision:   sdktrace.RecordAndSample,
				Tracestate: trace.SpanContextFromContext(p.ParentContext).TraceState(),
			}
		}
	}
	return s.base.ShouldSample(p)
}

func (s *operationSampler) Description() string {
	return fmt.Sprintf("OperationSampler{always=%v,base=%s}", s.always, s.base.Description())
}
