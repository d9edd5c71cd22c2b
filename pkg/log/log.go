// Copyright 2020 Anapaya Systems
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

// Package log is a thin wrapper around zap that provides key/value style
// logging, a per-context logger and span-aware logging.
//
// Log context is passed as alternating keys and values:
//
//	log.Info("mapping added", "eid", eid, "vni", vni)
package log

import (
	"fmt"
	"net/http"
	"os"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lispmap/lispmap/pkg/private/serrors"
)

// Level is the log level.
type Level zapcore.Level

// The log levels supported by the library.
const (
	DebugLevel = Level(zapcore.DebugLevel)
	InfoLevel  = Level(zapcore.InfoLevel)
	ErrorLevel = Level(zapcore.ErrorLevel)
)

// Logger describes the logger interface.
type Logger interface {
	New(ctx ...any) Logger
	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Error(msg string, ctx ...any)
	Enabled(lvl Level) bool
}

// ConsoleLevel allows interacting with the console log level at runtime. It
// is only usable after Setup has been called.
var ConsoleLevel httpLevel

type httpLevel struct {
	a zap.AtomicLevel
}

// ServeHTTP serves a handler that reports the current level on GET and
// changes it on PUT.
func (l httpLevel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l.a.ServeHTTP(w, r)
}

// SetLevel changes the console level.
func (l httpLevel) SetLevel(lvl Level) {
	l.a.SetLevel(zapcore.Level(lvl))
}

// Setup configures the logging library with the given config.
func Setup(cfg Config, opts ...Option) error {
	o := applyOptions(opts)
	cfg.InitDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	return setupConsole(cfg.Console, o)
}

func setupConsole(cfg ConsoleConfig, opts options) error {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return serrors.Wrap("unable to parse log.console.level", err, "level", cfg.Level)
	}
	var stacktraceLevel zapcore.Level
	if cfg.StacktraceLevel != "none" {
		if err := stacktraceLevel.UnmarshalText([]byte(cfg.StacktraceLevel)); err != nil {
			return serrors.Wrap("unable to parse log.console.stacktrace_level", err,
				"level", cfg.StacktraceLevel)
		}
	}
	encoding := "console"
	if cfg.Format == "json" {
		encoding = "json"
	}
	zCfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		DisableStacktrace: cfg.StacktraceLevel == "none",
		Encoding:          encoding,
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	zapOpts := append(opts.zapOptions(), zap.AddCallerSkip(1))
	if cfg.StacktraceLevel != "none" {
		zapOpts = append(zapOpts, zap.AddStacktrace(stacktraceLevel))
	}
	logger, err := zCfg.Build(zapOpts...)
	if err != nil {
		return serrors.Wrap("creating logger", err)
	}
	zap.ReplaceGlobals(logger)
	ConsoleLevel = httpLevel{a: zCfg.Level}
	return nil
}

// HandlePanic catches panics and logs them. It re-panics afterwards so that
// the process terminates with the original stack.
func HandlePanic() {
	if msg := recover(); msg != nil {
		zap.L().Error("Panic", zap.Any("msg", msg), zap.String("stack", string(debug.Stack())))
		zap.L().Error("=====================> Service panicked!")
		Flush()
		fmt.Fprintf(os.Stderr, "panic: %v\n", msg)
		panic(msg)
	}
}

// Flush writes the logs to the underlying buffer.
func Flush() {
	// Errors on stderr sync are expected on some platforms and are ignored.
	_ = zap.L().Sync()
}

// New creates a logger with the given context.
func New(ctx ...any) Logger {
	return &logger{logger: zap.L().With(convertCtx(ctx)...)}
}

// Root returns the root logger. It's a logger without any context.
func Root() Logger {
	return &logger{logger: zap.L()}
}

// Discard sets the logger up to discard all log entries. This is useful for
// testing.
func Discard() {
	zap.ReplaceGlobals(zap.NewNop())
}

// Debug logs at debug level.
func Debug(msg string, ctx ...any) {
	zap.L().Debug(msg, convertCtx(ctx)...)
}

// Info logs at info level.
func Info(msg string, ctx ...any) {
	zap.L().Info(msg, convertCtx(ctx)...)
}

// Error logs at error level.
func Error(msg string, ctx ...any) {
	zap.L().Error(msg, convertCtx(ctx)...)
}

type logger struct {
	logger *zap.Logger
}

func (l *logger) New(ctx ...any) Logger {
	return &logger{logger: l.logger.With(convertCtx(ctx)...)}
}

func (l *logger) Debug(msg string, ctx ...any) {
	l.logger.Debug(msg, convertCtx(ctx)...)
}

func (l *logger) Info(msg string, ctx ...any) {
	l.logger.Info(msg, convertCtx(ctx)...)
}

func (l *logger) Error(msg string, ctx ...any) {
	l.logger.Error(msg, convertCtx(ctx)...)
}

func (l *logger) Enabled(lvl Level) bool {
	return l.logger.Core().Enabled(zapcore.Level(lvl))
}

func (l *logger) WithOptions(opts ...zap.Option) Logger {
	return &logger{logger: l.logger.WithOptions(opts...)}
}

func convertCtx(ctx []any) []zap.Field {
	fields := make([]zap.Field, 0, len(ctx)/2)
	for i := 0; i+1 < len(ctx); i += 2 {
		key, ok := ctx[i].(string)
		if !ok {
			key = fmt.Sprint(ctx[i])
		}
		fields = append(fields, zap.Any(key, ctx[i+1]))
	}
	return fields
}

// levelFromString is used for config validation.
func levelFromString(lvl string) (zapcore.Level, error) {
	var l zapcore.Level
	err := l.UnmarshalText([]byte(strings.ToLower(lvl)))
	return l, err
}
