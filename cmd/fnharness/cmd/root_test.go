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


package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/beamfn/harness/pkg/beam/util/harnessopts"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
)

func TestRootPreE(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harness.yaml")
	config := "control_endpoint: runner:8099\nchunk_size: 1024\nlog_level: warn\n"
	if err := os.WriteFile(path, []byte(config), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Root.ParseFlags([]string{"--config", path, "--chunk_size", "2048", "--dial_timeout", "5s"}); err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}
	if err := rootPreE(Root, nil); err != nil {
		t.Fatalf("rootPreE failed: %v", err)
	}

	want := harnessopts.Default()
	want.ControlEndpoint = "runner:8099"
	want.ChunkSize = 2048
	want.DialTimeout = 5 * time.Second
	want.LogLevel = "warn"
	if diff := cmp.Diff(want, opts, cmpopts.IgnoreFields(harnessopts.Options{}, "WorkerID")); diff != "" {
		t.Errorf("options (-want, +got):\n%v", diff)
	}
	if _, err := uuid.Parse(opts.WorkerID); err != nil {
		t.Errorf("generated worker id %q is not a uuid: %v", opts.WorkerID, err)
	}
}
