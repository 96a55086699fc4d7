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

package coderx

import (
	"bytes"
	"testing"

	"github.com/beamfn/harness/pkg/beam/core/graph/coder"
	"github.com/beamfn/harness/pkg/beam/core/runtime/graphx"
	"github.com/google/go-cmp/cmp"
)

const userSchema = `{
	"type": "record",
	"name": "User",
	"fields": [
		{"name": "name", "type": "string"},
		{"name": "visits", "type": "long"}
	]
}`

func TestAvroRoundTrip(t *testing.T) {
	c, err := coder.NewCoder(URNAvroGeneric, []byte(userSchema), nil)
	if err != nil {
		t.Fatalf("NewCoder(%v) failed: %v", URNAvroGeneric, err)
	}
	users := []any{
		map[string]any{"name": "ada", "visits": int64(3)},
		map[string]any{"name": "grace", "visits": int64(0)},
	}
	for _, ctx := range []coder.Context{coder.Delimited, coder.WholeStream} {
		for _, u := range users {
			var buf bytes.Buffer
			if _, err := c.Encode(u, &buf, ctx); err != nil {
				t.Fatalf("Encode(%v) failed: %v", u, err)
			}
			got, err := c.Decode(&buf, ctx)
			if err != nil {
				t.Fatalf("Decode() failed: %v", err)
			}
			if d := cmp.Diff(u, got); d != "" {
				t.Errorf("Decode() diff (-want, +got):\n%v", d)
			}
		}
	}
}

func TestAvroInKV(t *testing.T) {
	avro, err := NewAvro(userSchema)
	if err != nil {
		t.Fatal(err)
	}
	b := graphx.NewCoderMarshaller()
	id := b.Add(coder.NewKV(coder.StringUTF8Coder{}, avro))
	kv, err := graphx.NewCoderUnmarshaller(nil, b.Build()).Coder(id)
	if err != nil {
		t.Fatalf("Coder(%v) failed: %v", id, err)
	}

	want := coder.KV{Key: "k", Value: map[string]any{"name": "linus", "visits": int64(12)}}
	var buf bytes.Buffer
	kv.Encode(want, &buf, coder.Delimited)
	kv.Encode(want, &buf, coder.Delimited)
	for i := 0; i < 2; i++ {
		got, err := kv.Decode(&buf, coder.Delimited)
		if err != nil {
			t.Fatalf("Decode() failed: %v", err)
		}
		if d := cmp.Diff(want, got); d != "" {
			t.Errorf("Decode() diff (-want, +got):\n%v", d)
		}
	}
}

func TestAvroBadSchema(t *testing.T) {
	if _, err := coder.NewCoder(URNAvroGeneric, []byte(`{"type": "nope"}`), nil); err == nil {
		t.Error("NewCoder(bad schema) succeeded, want error")
	}
}

func TestAvroMismatchPanics(t *testing.T) {
	c, err := NewAvro(userSchema)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if _, ok := recover().(*coder.KindError); !ok {
			t.Error("Encode(string) did not panic with *KindError")
		}
	}()
	c.Encode("not a record", &bytes.Buffer{}, coder.Delimited)
}
