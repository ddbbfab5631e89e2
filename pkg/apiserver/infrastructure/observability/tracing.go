package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"k8s.io/klog/v2"
)

// TracingTuning holds exporter knobs that are only read from the environment.
type TracingTuning struct {
	SampleRatio   float64       `env:"CALCBRIDGE_TRACE_SAMPLE_RATIO" envDefault:"1"`
	ExportTimeout time.Duration `env:"CALCBRIDGE_TRACE_EXPORT_TIMEOUT" envDefault:"10s"`
	Insecure      bool          `env:"CALCBRIDGE_TRACE_INSECURE" envDefault:"true"`
}

// LoadTracingTuning parses TracingTuning from the process environment.
func LoadTracingTuning() (TracingTuning, error) {
	var t TracingTuning
	if err := env.Parse(&t); err != nil {
		return t, fmt.Errorf("parse tracing env: %w", err)
	}
	if t.SampleRatio < 0 || t.SampleRatio > 1 {
		return t, fmt.Errorf("CALCBRIDGE_TRACE_SAMPLE_RATIO must be within [0,1], got %v", t.SampleRatio)
	}
	return t, nil
}

func sampler(ratio float64) sdktrace.Sampler {
	if ratio >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// InitTracerProvider initializes a tracer provider, exporting over OTLP/HTTP when endpoint is set,
// and wires it and the W3C propagator as globals.
// The returned shutdown function must be invoked during graceful termination.
func InitTracerProvider(ctx context.Context, serviceName, endpoint string) (func(context.Context) error, error) {
	tuning, err := LoadTracingTuning()
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sampler(tuning.SampleRatio)),
		sdktrace.WithResource(res),
	}
	if endpoint != "" {
		exporterOpts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithTimeout(tuning.ExportTimeout),
		}
		if tuning.Insecure {
			exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
		klog.InfoS("Tracing enabled with OTLP exporter", "endpoint", endpoint, "sampleRatio", tuning.SampleRatio)
	} else {
		klog.InfoS("Tracing enabled without an exporter. TraceIDs available in logs only")
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return tp.Shutdown, nil
}
