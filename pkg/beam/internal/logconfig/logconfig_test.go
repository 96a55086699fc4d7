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

package logconfig

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNewHandler(t *testing.T) {
	tests := []struct {
		level, kind string
		wantErr     bool
	}{
		{"info", "text", false},
		{"DEBUG", "json", false},
		{"warn", "dev", false},
		{"", "", false},
		{"verbose", "text", true},
		{"info", "xml", true},
	}
	for _, test := range tests {
		var buf bytes.Buffer
		_, err := NewHandler(&buf, test.level, test.kind)
		if (err != nil) != test.wantErr {
			t.Errorf("NewHandler(%q, %q) error = %v, wantErr %v", test.level, test.kind, err, test.wantErr)
		}
	}
}

func TestNewHandlerLevel(t *testing.T) {
	var buf bytes.Buffer
	h, err := NewHandler(&buf, "warn", "json")
	if err != nil {
		t.Fatal(err)
	}
	l := slog.New(h)
	l.Info("hidden")
	l.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("unexpected output for warn level: %q", buf.String())
	}
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info enabled at warn level")
	}
}
