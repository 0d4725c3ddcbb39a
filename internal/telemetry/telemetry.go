// ABOUTME: OpenTelemetry setup with file-based exporters plus gateway instruments
// ABOUTME: Traces and metrics rotate via lumberjack so long-running daemons stay bounded

package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const serviceName = "atomix-gateway"

// Telemetry bundles the tracer and the gateway's metric instruments.
// All methods are safe on an instance built by Noop.
type Telemetry struct {
	Tracer trace.Tracer
	meter  metric.Meter

	runsStarted   metric.Int64Counter
	runsCompleted metric.Int64Counter
	stageDuration metric.Float64Histogram

	activeSessions atomic.Int64

	shutdown func()
}

// Init wires tracing and metrics to rotated files under dir. The returned
// cleanup flushes and shuts down both providers.
func Init(ctx context.Context, dir string, version string) (*Telemetry, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating telemetry directory: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	traceFile := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "gateway_traces.log"),
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
	traceExporter, err := stdouttrace.New(
		stdouttrace.WithWriter(traceFile),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricsFile := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "gateway_metrics.log"),
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
	metricExporter, err := stdoutmetric.New(
		stdoutmetric.WithWriter(metricsFile),
		stdoutmetric.WithPrettyPrint(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(
				metricExporter,
				sdkmetric.WithInterval(10*time.Second),
			),
		),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	t := &Telemetry{
		Tracer: tp.Tracer(serviceName),
		meter:  mp.Meter(serviceName),
	}
	if err := t.initInstruments(); err != nil {
		return nil, err
	}

	t.shutdown = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown tracer provider", "error", err)
		}
		if err := mp.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown meter provider", "error", err)
		}
		if err := traceFile.Close(); err != nil {
			slog.Error("failed to close trace file", "error", err)
		}
		if err := metricsFile.Close(); err != nil {
			slog.Error("failed to close metrics file", "error", err)
		}
	}
	return t, nil
}

// Noop returns a Telemetry whose instruments record nothing. Used when
// telemetry is disabled and in tests.
func Noop() *Telemetry {
	t := &Telemetry{
		Tracer: tracenoop.NewTracerProvider().Tracer(serviceName),
		meter:  metricnoop.NewMeterProvider().Meter(serviceName),
	}
	// noop meter never errors
	_ = t.initInstruments()
	t.shutdown = func() {}
	return t
}

func (t *Telemetry) initInstruments() error {
	var err error
	t.runsStarted, err = t.meter.Int64Counter("gateway.workflow.runs_started",
		metric.WithDescription("Workflow runs accepted for execution"))
	if err != nil {
		return fmt.Errorf("creating runs_started counter: %w", err)
	}
	t.runsCompleted, err = t.meter.Int64Counter("gateway.workflow.runs_completed",
		metric.WithDescription("Workflow runs finished, by outcome"))
	if err != nil {
		return fmt.Errorf("creating runs_completed counter: %w", err)
	}
	t.stageDuration, err = t.meter.Float64Histogram("gateway.workflow.stage_duration_seconds",
		metric.WithDescription("Wall time per workflow stage"),
		metric.WithUnit("s"))
	if err != nil {
		return fmt.Errorf("creating stage_duration histogram: %w", err)
	}
	_, err = t.meter.Int64ObservableGauge("gateway.sessions.active",
		metric.WithDescription("Currently connected WebSocket sessions"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(t.activeSessions.Load())
			return nil
		}))
	if err != nil {
		return fmt.Errorf("creating active sessions gauge: %w", err)
	}
	return nil
}

// SetActiveSessions records the current session count for the gauge.
// Wired to the registry's count-change callback.
func (t *Telemetry) SetActiveSessions(n int) {
	t.activeSessions.Store(int64(n))
}

// RunStarted counts a workflow run accepted for execution.
func (t *Telemetry) RunStarted(ctx context.Context) {
	t.runsStarted.Add(ctx, 1)
}

// RunCompleted counts a finished run. outcome is "completed" or "errored".
func (t *Telemetry) RunCompleted(ctx context.Context, outcome string) {
	t.runsCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// StageCompleted records one stage's wall time for the named agent.
func (t *Telemetry) StageCompleted(ctx context.Context, agentName string, elapsed time.Duration) {
	t.stageDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.String("agent", agentName)))
}

// Shutdown flushes exporters and releases file handles.
func (t *Telemetry) Shutdown() {
	t.shutdown()
}
