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

// Package errors creates and annotates harness errors. Annotations are
// layered: a wrapped message, a context line (usually the transform or
// instruction being processed) and an optional top level message that is
// shown first to the runner.
package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"strings"
)

// New returns an error with the given message.
func New(message string) error {
	return stderrors.New(message)
}

// Errorf returns an error with a message formatted according to the format
// specifier. The %w verb is supported.
func Errorf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Wrap annotates err with a message. Wrapping a nil error returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &harnessError{cause: err, msg: message, top: topOf(err)}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &harnessError{cause: err, msg: fmt.Sprintf(format, args...), top: topOf(err)}
}

// WithContext attaches a context line to err, such as the transform that
// produced it.
func WithContext(err error, context string) error {
	if err == nil {
		return nil
	}
	return &harnessError{cause: err, context: context, top: topOf(err)}
}

// WithContextf is WithContext with a formatted context line.
func WithContextf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &harnessError{cause: err, context: fmt.Sprintf(format, args...), top: topOf(err)}
}

// SetTopLevelMsg sets the message printed first by Error on err and on any
// error that later wraps it.
func SetTopLevelMsg(err error, top string) error {
	if err == nil {
		return nil
	}
	return &harnessError{cause: err, top: top}
}

// SetTopLevelMsgf is SetTopLevelMsg with a formatted message.
func SetTopLevelMsgf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &harnessError{cause: err, top: fmt.Sprintf(format, args...)}
}

func topOf(err error) string {
	if he, ok := err.(*harnessError); ok {
		return he.top
	}
	return ""
}

// harnessError is one layer of annotation around a cause.
//
// A layer with a context but no message describes everything beneath it.
// The top message is copied upward from the cause so that the outermost
// layer can print it without walking the chain.
type harnessError struct {
	cause   error
	context string
	msg     string
	top     string
}

func (e *harnessError) Error() string {
	var sb strings.Builder
	if e.top != "" {
		fmt.Fprintf(&sb, "%s\nFull error:\n", e.top)
	}
	e.write(&sb)
	return sb.String()
}

func (e *harnessError) write(sb *strings.Builder) {
	if e.context != "" {
		fmt.Fprintf(sb, "\t%s\n", strings.ReplaceAll(e.context, "\n", "\n\t"))
	}
	if e.msg != "" {
		sb.WriteString(e.msg)
		if e.cause != nil {
			sb.WriteString("\n\tcaused by:\n")
		}
	}
	switch c := e.cause.(type) {
	case nil:
	case *harnessError:
		c.write(sb)
	default:
		sb.WriteString(c.Error())
	}
}

// Format implements fmt.Formatter.
func (e *harnessError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v', 's':
		io.WriteString(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}

// Unwrap returns the wrapped cause.
func (e *harnessError) Unwrap() error {
	return e.cause
}
