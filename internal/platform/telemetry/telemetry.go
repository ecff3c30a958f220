// Package telemetry wires OpenTelemetry tracing and metrics. With no OTLP
// endpoint configured the global no-op providers stay in place, so spans and
// instruments are always safe to use.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/clinic/clinic"

// Config holds telemetry settings.
type Config struct {
	ServiceName     string
	ServiceVersion  string
	Environment     string
	OTLPEndpoint    string
	MetricsInterval time.Duration
	SampleRate      float64
}

func (c *Config) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "clinic-server"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "0.0.0"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.SampleRate <= 0 || c.SampleRate > 1 {
		c.SampleRate = 1.0
	}
	if c.MetricsInterval == 0 {
		c.MetricsInterval = 15 * time.Second
	}
}

// Provider owns the installed SDK providers.
type Provider struct {
	shutdowns []func(context.Context) error
}

// Setup installs OTLP/gRPC trace and metric exporters as the global
// providers. An empty endpoint leaves the no-op providers installed.
func Setup(ctx context.Context, cfg Config) (*Provider, error) {
	cfg.applyDefaults()
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if cfg.OTLPEndpoint == "" {
		return &Provider{}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(cfg.MetricsInterval))),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return &Provider{shutdowns: []func(context.Context) error{tp.Shutdown, mp.Shutdown}}, nil
}

// Shutdown flushes and stops the exporters.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range p.shutdowns {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StartSpan starts a span on the global tracer.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// End records err on span, if any, and ends it. Typical use:
//
//	ctx, span := telemetry.StartSpan(ctx, "appointment.Book")
//	defer func() { telemetry.End(span, err) }()
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Metrics holds the service's instruments.
type Metrics struct {
	RequestCount      metric.Int64Counter
	RequestDuration   metric.Float64Histogram
	Bookings          metric.Int64Counter
	BookingConflicts  metric.Int64Counter
	StatusTransitions metric.Int64Counter
	PrescriptionItems metric.Int64Counter
	InvoicedAmount    metric.Float64Counter
}

// NewMetrics creates instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var m Metrics
	var err error
	build := func(f func() error) {
		if err == nil {
			err = f()
		}
	}

	build(func() (e error) {
		m.RequestCount, e = meter.Int64Counter("http.server.request.count",
			metric.WithDescription("Number of HTTP requests"))
		return
	})
	build(func() (e error) {
		m.RequestDuration, e = meter.Float64Histogram("http.server.request.duration",
			metric.WithDescription("HTTP request duration"), metric.WithUnit("ms"))
		return
	})
	build(func() (e error) {
		m.Bookings, e = meter.Int64Counter("clinic.appointment.bookings",
			metric.WithDescription("Appointments booked"))
		return
	})
	build(func() (e error) {
		m.BookingConflicts, e = meter.Int64Counter("clinic.appointment.booking_conflicts",
			metric.WithDescription("Bookings rejected because the slot was taken"))
		return
	})
	build(func() (e error) {
		m.StatusTransitions, e = meter.Int64Counter("clinic.appointment.status_transitions",
			metric.WithDescription("Appointment status changes"))
		return
	})
	build(func() (e error) {
		m.PrescriptionItems, e = meter.Int64Counter("clinic.prescription.items",
			metric.WithDescription("Prescription items dispensed"))
		return
	})
	build(func() (e error) {
		m.InvoicedAmount, e = meter.Float64Counter("clinic.invoice.amount",
			metric.WithDescription("Total amount invoiced"))
		return
	})
	if err != nil {
		return nil, fmt.Errorf("create instruments: %w", err)
	}
	return &m, nil
}

var (
	globalOnce    sync.Once
	globalMetrics *Metrics
)

// Global returns instruments on the global meter. The global meter delegates
// to whatever provider Setup installs, so this may be called before Setup.
func Global() *Metrics {
	globalOnce.Do(func() {
		m, err := NewMetrics(otel.Meter(instrumentationName))
		if err != nil {
			otel.Handle(err)
			m, _ = NewMetrics(noopMeter())
		}
		globalMetrics = m
	})
	return globalMetrics
}

// Middleware starts a server span per request, continuing any propagated
// trace, and records request count and duration.
func Middleware(m *Metrics) echo.MiddlewareFunc {
	propagator := otel.GetTextMapPropagator()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := propagator.Extract(req.Context(), propagation.HeaderCarrier(req.Header))

			route := c.Path()
			if route == "" {
				route = req.URL.Path
			}
			ctx, span := otel.Tracer(instrumentationName).Start(ctx, req.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPMethod(req.Method),
					semconv.HTTPRoute(route),
				),
			)
			defer span.End()
			c.SetRequest(req.WithContext(ctx))

			start := time.Now()
			err := next(c)
			if err != nil {
				// Render now so the recorded status is final.
				c.Error(err)
				span.RecordError(err)
			}

			status := c.Response().Status
			span.SetAttributes(semconv.HTTPStatusCode(status))
			if status >= 500 {
				span.SetStatus(codes.Error, "server error")
			}

			attrs := metric.WithAttributes(
				attribute.String("http.method", req.Method),
				attribute.String("http.route", route),
				attribute.Int("http.status_code", status),
			)
			m.RequestCount.Add(ctx, 1, attrs)
			m.RequestDuration.Record(ctx, float64(time.Since(start).Microseconds())/1000, attrs)

			return nil
		}
	}
}
