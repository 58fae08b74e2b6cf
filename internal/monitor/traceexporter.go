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

	"github.com/sengine/sekernel/cfg"
	"github.com/sengine/sekernel/common"
	"github.com/sengine/sekernel/internal/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func initPropagators() {
	props := propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
	otel.SetTextMapPropagator(props)
}

// SetupTracing bootstraps the OpenTelemetry tracing pipeline. It returns nil
// when tracing is disabled.
func SetupTracing(ctx context.Context, c *cfg.Config) common.ShutdownFn {
	tp, err := newTraceProvider(ctx, c)
	if err != nil {
		logger.Errorf("error occurred while setting up tracing: %v", err)
		return nil
	}
	if tp == nil {
		return nil
	}

	otel.SetTracerProvider(tp)
	initPropagators()
	return tp.Shutdown
}

func newTraceProvider(ctx context.Context, c *cfg.Config) (*sdktrace.TracerProvider, error) {
	switch c.Tracing.Exporter {
	case cfg.StdoutTraceExporter:
		return newStdoutTraceProvider(ctx, c)
	default:
		return nil, nil
	}
}

func newStdoutTraceProvider(ctx context.Context, c *cfg.Config) (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(
		stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	options := []sdktrace.TracerProviderOption{
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(c.Tracing.SamplingRatio)),
	}
	res, err := getResource(ctx, c.AppName)
	if err != nil {
		logger.Warnf("Tracing without a resource: %v", err)
	} else {
		options = append(options, sdktrace.WithResource(res))
	}

	return sdktrace.NewTracerProvider(options...), nil
}
