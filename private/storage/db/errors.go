// Copyright 2019 Anapaya Systems
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
// limitations under the License.

package db

import (
	"context"
	"errors"

	"github.com/lispmap/lispmap/pkg/private/prom"
	"github.com/lispmap/lispmap/pkg/private/serrors"
)

// Error classes of the storage backends. Use errors.Is to test for them.
var (
	ErrInvalidInputData = serrors.New("db: input data invalid")
	ErrDataInvalid      = serrors.New("db: db data invalid")
	ErrReadFailed       = serrors.New("db: read failed")
	ErrWriteFailed      = serrors.New("db: write failed")
)

func classify(class error, msg string, err error, logCtx []any) error {
	return serrors.JoinNoStack(class, err, append([]any{"detailMsg", msg}, logCtx...)...)
}

// NewInputDataError reports data rejected before it reached the database.
func NewInputDataError(msg string, err error, logCtx ...any) error {
	return classify(ErrInvalidInputData, msg, err, logCtx)
}

// NewDataError reports stored data that cannot be decoded.
func NewDataError(msg string, err error, logCtx ...any) error {
	return classify(ErrDataInvalid, msg, err, logCtx)
}

func NewReadError(msg string, err error, logCtx ...any) error {
	return classify(ErrReadFailed, msg, err, logCtx)
}

func NewWriteError(msg string, err error, logCtx ...any) error {
	return classify(ErrWriteFailed, msg, err, logCtx)
}

// LimitSetter allows setting the connection limits of a database.
type LimitSetter interface {
	SetMaxOpenConns(n int)
	SetMaxIdleConns(n int)
}

// ErrToMetricLabel maps an error of this package to a prometheus result label.
func ErrToMetricLabel(err error) string {
	switch {
	case err == nil:
		return prom.Success
	case errors.Is(err, context.DeadlineExceeded), serrors.IsTimeout(err):
		return prom.ErrTimeout
	case errors.Is(err, ErrInvalidInputData):
		return prom.ErrInvalidReq
	case errors.Is(err, ErrReadFailed), errors.Is(err, ErrWriteFailed),
		errors.Is(err, ErrDataInvalid):
		return prom.ErrDB
	}
	return prom.ErrNotClassified
}
