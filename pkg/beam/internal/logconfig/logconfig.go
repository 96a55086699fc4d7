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

// Package logconfig sets up the slog handler used by the harness.
package logconfig

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-cz/devslog"
)

// NewHandler returns a slog handler writing to w at the given level
// ("debug", "info", "warn" or "error") in the given kind ("dev", "json" or
// "text").
func NewHandler(w io.Writer, level, kind string) (slog.Handler, error) {
	lvl := new(slog.LevelVar)
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(level) {
	case "debug":
		lvl.Set(slog.LevelDebug)
		opts.AddSource = true
	case "", "info":
		lvl.Set(slog.LevelInfo)
	case "warn":
		lvl.Set(slog.LevelWarn)
	case "error":
		lvl.Set(slog.LevelError)
	default:
		return nil, fmt.Errorf("invalid log level %q, must be 'debug', 'info', 'warn', or 'error'", level)
	}

	switch strings.ToLower(kind) {
	case "dev":
		return devslog.NewHandler(w, &devslog.Options{
			TimeFormat:         "[" + time.RFC3339Nano + "]",
			StringerFormatter:  true,
			HandlerOptions:     opts,
			NewLineAfterLog:    true,
			MaxErrorStackTrace: 3,
		}), nil
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	case "", "text":
		return slog.NewTextHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("invalid log kind %q, must be 'dev', 'json', or 'text'", kind)
	}
}

// Configure installs a handler built by NewHandler as the slog default.
func Configure(w io.Writer, level, kind string) error {
	h, err := NewHandler(w, level, kind)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(h))
	return nil
}
