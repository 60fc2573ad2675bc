package observability

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

type TracingConfig struct {
	Enabled      bool           `yaml:"enabled"`
	OTLPEndpoint string         `yaml:"otlp_endpoint"`
	Insecure     bool           `yaml:"insecure"`
	SampleRatio  float64        `yaml:"sample_ratio"`
	Resource     ResourceConfig `yaml:"resource"`
}

type ResourceConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	Environment    string `yaml:"environment"`
}

type Config struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

func (c *Config) SetDefaults() {
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Tracing.SampleRatio == 0 {
		c.Tracing.SampleRatio = 1
	}
	if c.Tracing.Resource.ServiceName == "" {
		c.Tracing.Resource.ServiceName = "ackd"
	}
}

func (c *Config) Validate() error {
	if c.Tracing.Enabled && c.Tracing.OTLPEndpoint == "" {
		return errors.New("tracing: otlp_endpoint is required")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return errors.New("tracing: sample_ratio must be in [0, 1]")
	}
	return nil
}

var (
	metricsEnabled atomic.Bool
	tracingEnabled atomic.Bool

	defaultTracer trace.Tracer

	registry *prometheus.Registry

	enqueuedTotal      *prometheus.CounterVec
	sealedTotal        *prometheus.CounterVec
	outcomesTotal      *prometheus.CounterVec
	retriesTotal       *prometheus.CounterVec
	dispatchLatencySec *prometheus.HistogramVec
	pendingTokens      prometheus.Gauge

	opsTotal                  *prometheus.CounterVec
	errorsTotal               *prometheus.CounterVec
	transportLatencySec       *prometheus.HistogramVec
	messagesDeliveredTotal    *prometheus.CounterVec
	subscriptionsActiveGauges prometheus.Gauge

	httpSrv *http.Server
)

func MetricsEnabled() bool {
	return metricsEnabled.Load()
}

func TracingEnabled() bool {
	return tracingEnabled.Load()
}

func Tracer() trace.Tracer {
	if defaultTracer != nil {
		return defaultTracer
	}
	return otel.Tracer("ackd")
}

// Handler serves the metrics registered by Init.
func Handler() http.Handler {
	if registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

func Init(ctx context.Context, cfg Config, l *slog.Logger) (func(context.Context) error, error) {
	shutdownFns := []func(context.Context) error{}

	if cfg.Metrics.Enabled {
		initMetrics()
		metricsEnabled.Store(true)

		if cfg.Metrics.Addr != "" {
			mux := http.NewServeMux()
			path := cfg.Metrics.Path
			if path == "" {
				path = "/metrics"
			}
			mux.Handle(path, Handler())
			httpSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
			go func() {
				if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					l.Error("metrics http server", "err", err)
				}
			}()
			l.Info("metrics server started", "addr", cfg.Metrics.Addr)
			shutdownFns = append(shutdownFns, func(ctx context.Context) error { return httpSrv.Shutdown(ctx) })
		}
	}

	if cfg.Tracing.Enabled {
		tracingEnabled.Store(true)
		var opts []otlptracegrpc.Option
		opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Tracing.OTLPEndpoint))
		if cfg.Tracing.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exp, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			l.Error("init otlp exporter", "err", err)
		} else {
			sampler := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Tracing.SampleRatio))
			res, _ := resource.Merge(resource.Default(), resource.NewWithAttributes(
				"",
				attribute.String("service.name", cfg.Tracing.Resource.ServiceName),
				attribute.String("service.version", cfg.Tracing.Resource.ServiceVersion),
				attribute.String("deployment.environment", cfg.Tracing.Resource.Environment),
			))
			tp := sdktrace.NewTracerProvider(
				sdktrace.WithBatcher(exp),
				sdktrace.WithSampler(sampler),
				sdktrace.WithResource(res),
			)
			otel.SetTracerProvider(tp)
			defaultTracer = tp.Tracer("ackd")
			shutdownFns = append(shutdownFns, func(ctx context.Context) error { return tp.Shutdown(ctx) })
		}
	}

	return func(ctx context.Context) error {
		var errs []error
		for i := len(shutdownFns) - 1; i >= 0; i-- {
			errs = append(errs, shutdownFns[i](ctx))
		}
		metricsEnabled.Store(false)
		tracingEnabled.Store(false)
		return errors.Join(errs...)
	}, nil
}

func initMetrics() {
	registry = prometheus.NewRegistry()

	enqueuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ackd_enqueued_total",
		Help: "Acknowledgements enqueued by kind and subscription",
	}, []string{"kind", "subscription"})
	sealedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ackd_batches_sealed_total",
		Help: "Sealed batches by reason and subscription",
	}, []string{"reason", "subscription"})
	outcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ackd_outcomes_total",
		Help: "Terminal token outcomes by status and subscription",
	}, []string{"status", "subscription"})
	retriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ackd_retries_total",
		Help: "Retry batches scheduled by subscription",
	}, []string{"subscription"})
	dispatchLatencySec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ackd_dispatch_latency_seconds",
		Help:    "Batch dispatch latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"subscription"})
	pendingTokens = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ackd_pending_tokens",
		Help: "Tokens enqueued and not resolved yet",
	})

	opsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ackd_connector_ops_total",
		Help: "Connector operations",
	}, []string{"op", "connector"})
	errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ackd_connector_errors_total",
		Help: "Connector errors by stage",
	}, []string{"stage", "connector"})
	transportLatencySec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ackd_connector_latency_seconds",
		Help:    "Connector acknowledge latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"op", "connector"})
	messagesDeliveredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ackd_connector_messages_total",
		Help: "Messages delivered by connector",
	}, []string{"connector"})
	subscriptionsActiveGauges = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ackd_subscriptions_active",
		Help: "Running subscribe loops",
	})

	registry.MustRegister(
		enqueuedTotal, sealedTotal, outcomesTotal, retriesTotal, dispatchLatencySec, pendingTokens,
		opsTotal, errorsTotal, transportLatencySec, messagesDeliveredTotal, subscriptionsActiveGauges,
	)
}

func IncEnqueued(kind, subscription string) {
	if !MetricsEnabled() {
		return
	}
	enqueuedTotal.WithLabelValues(kind, subscription).Inc()
}

func IncSealed(reason, subscription string) {
	if !MetricsEnabled() {
		return
	}
	sealedTotal.WithLabelValues(reason, subscription).Inc()
}

func IncOutcome(status, subscription string) {
	if !MetricsEnabled() {
		return
	}
	outcomesTotal.WithLabelValues(status, subscription).Inc()
}

func IncRetry(subscription string) {
	if !MetricsEnabled() {
		return
	}
	retriesTotal.WithLabelValues(subscription).Inc()
}

func ObserveDispatchLatency(subscription string, d time.Duration) {
	if !MetricsEnabled() {
		return
	}
	dispatchLatencySec.WithLabelValues(subscription).Observe(d.Seconds())
}

func AddPending(delta float64) {
	if !MetricsEnabled() {
		return
	}
	pendingTokens.Add(delta)
}

func IncOp(op, connector string) {
	opsTotal.WithLabelValues(op, connector).Inc()
}

func IncError(stage, connector string) {
	errorsTotal.WithLabelValues(stage, connector).Inc()
}

func ObserveTransportLatency(op, connector string, d time.Duration) {
	transportLatencySec.WithLabelValues(op, connector).Observe(d.Seconds())
}

func IncDelivered(connector string) {
	messagesDeliveredTotal.WithLabelValues(connector).Inc()
}

func IncSubscriptions(delta float64) {
	subscriptionsActiveGauges.Add(delta)
}
