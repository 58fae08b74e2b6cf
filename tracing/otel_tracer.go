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

package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const name = "github.com/sengine/sekernel"

const (
	threadIDAttr   = "sekernel.thread.id"
	threadNameAttr = "sekernel.thread.name"
	positionAttr   = "sekernel.job.position"
)

type otelTracer struct {
	tracer trace.Tracer
}

func (o *otelTracer) StartSpan(ctx context.Context, traceName string) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, traceName, trace.WithSpanKind(trace.SpanKindInternal))
}

func (o *otelTracer) EndSpan(span trace.Span) {
	span.End()
}

func (o *otelTracer) RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func (o *otelTracer) SetJobAttributes(span trace.Span, threadID string, threadName string, position uint64) {
	span.SetAttributes(
		attribute.String(threadIDAttr, threadID),
		attribute.String(threadNameAttr, threadName),
		attribute.Int64(positionAttr, int64(position)),
	)
}

// NewOTelTracer returns a TraceHandle that records spans on the global
// tracer provider. Spans are only exported once a provider has been
// installed, see monitor.SetupTracing.
func NewOTelTracer() TraceHandle {
	return &otelTracer{tracer: otel.Tracer(name)}
}
