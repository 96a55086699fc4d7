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
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestStructuralAttributes(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer slog.SetDefault(prev)

	ctx := WithTransform(WithInstruction(context.Background(), "inst7"), "pardo1")
	Warnf(ctx, "dropped %d elements", 2)

	got := buf.String()
	for _, want := range []string{"level=WARN", "msg=\"dropped 2 elements\"", "instruction=inst7", "transform=pardo1"} {
		if !strings.Contains(got, want) {
			t.Errorf("log line %q missing %q", got, want)
		}
	}
}

type recordingLogger struct {
	sevs []Severity
}

func (r *recordingLogger) Log(_ context.Context, sev Severity, _ int, _ string) {
	r.sevs = append(r.sevs, sev)
}

func TestFatalfPanics(t *testing.T) {
	rec := &recordingLogger{}
	SetLogger(rec)
	defer SetLogger(&Structural{})

	defer func() {
		if recover() == nil {
			t.Error("Fatalf did not panic")
		}
		if len(rec.sevs) != 1 || rec.sevs[0] != SevFatal {
			t.Errorf("logged severities = %v, want [FATAL]", rec.sevs)
		}
	}()
	Fatalf(context.Background(), "boom")
}
