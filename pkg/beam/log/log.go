// Licensed to the Apache Software Foundation (ASF) under one or more
// contributor license agreements.  See the NOTICE file distributed with
// this work for additional information regarding copyright ownership.
// The ASF licenses this file to You under the Apache License, Version 2.0
// (the "License"); you may not use this file except in compliance with
// the License.  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log is a context-aware logging facade for the harness. The bundle
// being processed travels in the context, so every line logged on behalf of
// a bundle can be attributed to its instruction and transform.
package log

import (
	"context"
	"fmt"
)

// Severity is the severity of the log message.
type Severity int

const (
	SevUnspecified Severity = iota
	SevDebug
	SevInfo
	SevWarn
	SevError
	SevFatal
)

func (s Severity) String() string {
	switch s {
	case SevDebug:
		return "DEBUG"
	case SevInfo:
		return "INFO"
	case SevWarn:
		return "WARN"
	case SevError:
		return "ERROR"
	case SevFatal:
		return "FATAL"
	default:
		return "UNSPECIFIED"
	}
}

// Logger is a context-aware logging backend. Must be concurrency safe.
type Logger interface {
	// Log logs the message in some implementation-dependent way. Log should
	// always return regardless of the severity.
	Log(ctx context.Context, sev Severity, calldepth int, msg string)
}

var logger Logger = &Structural{}

// SetLogger sets the global Logger. Intended to be called during initialization
// only.
func SetLogger(l Logger) {
	if l == nil {
		panic("Logger cannot be nil")
	}
	logger = l
}

// Output logs the given message to the global logger. Calldepth is the count
// of the number of frames to skip when computing the file name and line number.
func Output(ctx context.Context, sev Severity, calldepth int, msg string) {
	logger.Log(ctx, sev, calldepth+1, msg)
}

type ctxKey int

const (
	instKey ctxKey = iota
	transformKey
)

// WithInstruction returns a context that attributes log lines to the
// given instruction.
func WithInstruction(ctx context.Context, instID string) context.Context {
	return context.WithValue(ctx, instKey, instID)
}

// WithTransform returns a context that attributes log lines to the
// given transform.
func WithTransform(ctx context.Context, transformID string) context.Context {
	return context.WithValue(ctx, transformKey, transformID)
}

// Instruction returns the instruction id attached to ctx, if any.
func Instruction(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(instKey).(string)
	return id, ok
}

// Transform returns the transform id attached to ctx, if any.
func Transform(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(transformKey).(string)
	return id, ok
}

// Debugf writes the fmt.Sprintf-formatted arguments to the global logger with
// debug severity.
func Debugf(ctx context.Context, format string, v ...any) {
	Output(ctx, SevDebug, 1, fmt.Sprintf(format, v...))
}

// Info writes the fmt.Sprint-formatted arguments with info severity.
func Info(ctx context.Context, v ...any) {
	Output(ctx, SevInfo, 1, fmt.Sprint(v...))
}

// Infof writes the fmt.Sprintf-formatted arguments to the global logger with
// info severity.
func Infof(ctx context.Context, format string, v ...any) {
	Output(ctx, SevInfo, 1, fmt.Sprintf(format, v...))
}

// Warnf writes the fmt.Sprintf-formatted arguments to the global logger with
// warn severity.
func Warnf(ctx context.Context, format string, v ...any) {
	Output(ctx, SevWarn, 1, fmt.Sprintf(format, v...))
}

// Error writes the fmt.Sprint-formatted arguments with error severity.
func Error(ctx context.Context, v ...any) {
	Output(ctx, SevError, 1, fmt.Sprint(v...))
}

// Errorf writes the fmt.Sprintf-formatted arguments to the global logger with
// error severity.
func Errorf(ctx context.Context, format string, v ...any) {
	Output(ctx, SevError, 1, fmt.Sprintf(format, v...))
}

// Fatalf writes the fmt.Sprintf-formatted arguments to the global logger with
// fatal severity. It then panics.
func Fatalf(ctx context.Context, format string, v ...any) {
	msg := fmt.Sprintf(format, v...)
	Output(ctx, SevFatal, 1, msg)
	panic(msg)
}
