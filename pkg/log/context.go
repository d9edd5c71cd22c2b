// Copyright 2018 ETH Zurich
// Copyright 2019 ETH Zurich, Anapaya Systems
// Copyright 2025 The lispmap Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and

package log

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"
)

type ctxKey struct{}

// CtxWith returns a copy of ctx carrying logger. FromCtx recovers it.
func CtxWith(ctx context.Context, logger Logger) context.Context {
	if ctx == nil {
		panic("nil context")
	}
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromCtx returns the logger of ctx or the root logger. If ctx carries a
// tracing span, log entries are also recorded on the span. The result is never
// nil.
func FromCtx(ctx context.Context) Logger {
	l := Root()
	if ctx == nil {
		return l
	}
	if v, ok := ctx.Value(ctxKey{}).(Logger); ok {
		if s, ok := v.(Span); ok {
			return s
		}
		l = v
	}
	if l == nil {
		panic("no root logger")
	}
	span := opentracing.SpanFromContext(ctx)
	if span == nil {
		return l
	}
	// Skip the Span wrapper frame in caller annotations.
	if o, ok := l.(interface{ WithOptions(...zap.Option) Logger }); ok {
		l = o.WithOptions(zap.AddCallerSkip(1))
	}
	return Span{Logger: l, Span: span}
}

// WithLabels returns a context whose logger carries labels, and that logger.
func WithLabels(ctx context.Context, labels ...any) (context.Context, Logger) {
	logger := FromCtx(ctx).New(labels...)
	return CtxWith(ctx, logger), logger
}
