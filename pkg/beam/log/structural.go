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

package log

import (
	"context"
	"log/slog"
)

// Structural forwards log lines to the default slog logger. The instruction
// and transform carried by the context become attributes.
type Structural struct{}

var levels = map[Severity]slog.Level{
	SevUnspecified: slog.LevelInfo,
	SevDebug:       slog.LevelDebug,
	SevInfo:        slog.LevelInfo,
	SevWarn:        slog.LevelWarn,
	SevError:       slog.LevelError,
	SevFatal:       slog.LevelError,
}

// Log logs the message to slog. For SevFatal it does not exit, and defers to
// the caller in this package.
func (s *Structural) Log(ctx context.Context, sev Severity, _ int, msg string) {
	var attrs []slog.Attr
	if id, ok := Instruction(ctx); ok {
		attrs = append(attrs, slog.String("instruction", id))
	}
	if id, ok := Transform(ctx); ok {
		attrs = append(attrs, slog.String("transform", id))
	}
	slog.Default().LogAttrs(ctx, levels[sev], msg, attrs...)
}
