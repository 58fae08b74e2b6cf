// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sengine/sekernel/cfg"
	"github.com/sengine/sekernel/common"
	"github.com/sengine/sekernel/internal/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const serviceName = "sekernel"

// SetupOTelMetricExporters installs the global meter provider. When
// metrics.prometheus-port is set, the provider is read by a Prometheus
// exporter served at :port/metrics.
func SetupOTelMetricExporters(ctx context.Context, c *cfg.Config) (shutdownFn common.ShutdownFn) {
	shutdownFns := make([]common.ShutdownFn, 0)
	options := make([]metric.Option, 0)

	opts, shutdownFn := setupPrometheus(c.Metrics.PrometheusPort)
	options = append(options, opts...)
	shutdownFns = append(shutdownFns, shutdownFn)

	res, err := getResource(ctx, c.AppName)
	if err != nil {
		logger.Errorf("Error while fetching resource: %v", err)
	} else {
		options = append(options, metric.WithResource(res))
	}

	meterProvider := metric.NewMeterProvider(options...)
	shutdownFns = append(shutdownFns, meterProvider.Shutdown)

	otel.SetMeterProvider(meterProvider)

	return common.JoinShutdownFunc(shutdownFns...)
}

// setupPrometheus returns the reader option for a Prometheus exporter served
// on port, and the function stopping its HTTP server. Both are nil when port
// is not positive or the exporter cannot be created.
func setupPrometheus(port int64) ([]metric.Option, common.ShutdownFn) {
	if port <= 0 {
		return nil, nil
	}
	exporter, err := prometheus.New(
		prometheus.WithoutUnits(),
		prometheus.WithoutCounterSuffixes(),
		prometheus.WithoutScopeInfo(),
		prometheus.WithoutTargetInfo())
	if err != nil {
		logger.Errorf("Error while creating prometheus exporter: %v", err)
		return nil, nil
	}

	srv := newMetricsServer(port)
	go srv.serve()
	return []metric.Option{metric.WithReader(exporter)}, srv.shutdown
}

// metricsServer exposes the default Prometheus registry at /metrics.
type metricsServer struct {
	http *http.Server
}

func newMetricsServer(port int64) *metricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &metricsServer{
		http: &http.Server{
			Addr:           fmt.Sprintf(":%d", port),
			Handler:        mux,
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   10 * time.Second,
			MaxHeaderBytes: 1 << 20,
		},
	}
}

func (s *metricsServer) serve() {
	logger.Infof("Serving metrics at localhost%s/metrics", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf("Prometheus server stopped: %v", err)
	}
}

func (s *metricsServer) shutdown(ctx context.Context) error {
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown prometheus server: %w", err)
	}
	logger.Infof("Prometheus exporter shutdown")
	return nil
}

func getResource(ctx context.Context, appName string) (*resource.Resource, error) {
	name := serviceName
	if appName != "" {
		name = appName
	}
	return resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithProcessPID(),
		resource.WithAttributes(
			semconv.ServiceName(name),
			semconv.ServiceVersion(common.GetVersion()),
		),
	)
}
