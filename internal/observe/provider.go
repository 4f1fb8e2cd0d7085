package observe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/go-voicerelay/internal/config"
)

// Module provides the meter provider, the metric instruments and, when
// enabled, the scrape endpoint.
var Module = fx.Module("observe",
	fx.Provide(
		NewMeterProvider,
		NewMetrics,
	),
)

// NewMeterProviderParams holds dependencies for NewMeterProvider.
type NewMeterProviderParams struct {
	fx.In
	Cfg    *config.Config
	Logger *zap.Logger
	LC     fx.Lifecycle
}

// NewMeterProvider returns a no-op provider when metrics are disabled.
// Otherwise it bridges OpenTelemetry into a dedicated Prometheus registry and
// serves it on the configured address for the application lifetime.
func NewMeterProvider(params NewMeterProviderParams) (metric.MeterProvider, error) {
	if !params.Cfg.Metrics.Enabled {
		return noop.NewMeterProvider(), nil
	}

	registry := prometheus.NewRegistry()
	exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))

	srv := NewServer(params.Cfg.Metrics.Address, registry)

	params.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return fmt.Errorf("failed to listen for metrics: %w", err)
			}
			params.Logger.Info("Serving metrics", zap.String("address", ln.Addr().String()))

			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					params.Logger.Error("Metrics server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return errors.Join(srv.Shutdown(ctx), mp.Shutdown(ctx))
		},
	})

	return mp, nil
}

// NewServer returns an HTTP server exposing gatherer on /metrics.
func NewServer(addr string, gatherer prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
