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


package harnessopts

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want Options
	}{
		{
			name: "empty",
			yaml: "",
			want: Default(),
		},
		{
			name: "overrides",
			yaml: `
worker_id: w1
control_endpoint: localhost:8099
dial_timeout: 5s
chunk_size: 1024
log_kind: json
`,
			want: func() Options {
				o := Default()
				o.WorkerID = "w1"
				o.ControlEndpoint = "localhost:8099"
				o.DialTimeout = 5 * time.Second
				o.ChunkSize = 1024
				o.LogKind = "json"
				return o
			}(),
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := Parse([]byte(test.yaml))
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if diff := cmp.Diff(test.want, got); diff != "" {
				t.Errorf("Parse (-want, +got):\n%v", diff)
			}
		})
	}
}

func TestParse_unknownField(t *testing.T) {
	if _, err := Parse([]byte("chunk_sise: 10\n")); err == nil {
		t.Error("Parse succeeded with a misspelled field, want error")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harness.yaml")
	if err := os.WriteFile(path, []byte("control_endpoint: localhost:1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.ControlEndpoint != "localhost:1" {
		t.Errorf("ControlEndpoint = %q, want %q", got.ControlEndpoint, "localhost:1")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load succeeded on a missing file, want error")
	}
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.ControlEndpoint = "localhost:1"
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate(%+v) = %v, want nil", valid, err)
	}

	tests := []struct {
		name   string
		modify func(*Options)
	}{
		{"no endpoint", func(o *Options) { o.ControlEndpoint = "" }},
		{"zero chunk", func(o *Options) { o.ChunkSize = 0 }},
		{"negative buffer", func(o *Options) { o.ReadBuffer = -1 }},
		{"zero timeout", func(o *Options) { o.DialTimeout = 0 }},
		{"bad log kind", func(o *Options) { o.LogKind = "xml" }},
		{"bad log level", func(o *Options) { o.LogLevel = "loud" }},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			o := valid
			test.modify(&o)
			if err := o.Validate(); err == nil {
				t.Errorf("Validate(%+v) succeeded, want error", o)
			}
		})
	}
}
