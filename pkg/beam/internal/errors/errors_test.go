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

package errors

import (
	"io"
	"strings"
	"testing"
)

func TestWrapNil(t *testing.T) {
	if err := Wrap(nil, "msg"); err != nil {
		t.Errorf("Wrap(nil) = %v, want nil", err)
	}
	if err := WithContextf(nil, "ctx %d", 1); err != nil {
		t.Errorf("WithContextf(nil) = %v, want nil", err)
	}
	if err := SetTopLevelMsg(nil, "top"); err != nil {
		t.Errorf("SetTopLevelMsg(nil) = %v, want nil", err)
	}
}

func TestError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "wrap",
			err:  Wrap(New("base"), "decoding element"),
			want: "decoding element\n\tcaused by:\nbase",
		}, {
			name: "context",
			err:  WithContext(New("base"), "transform t1"),
			want: "\ttransform t1\nbase",
		}, {
			name: "context and wrap",
			err:  Wrapf(WithContextf(New("base"), "instruction %v", "inst1"), "bundle %d failed", 3),
			want: "bundle 3 failed\n\tcaused by:\n\tinstruction inst1\nbase",
		}, {
			name: "top level message survives wrapping",
			err:  Wrap(SetTopLevelMsg(New("base"), "user code failed"), "outer"),
			want: "user code failed\nFull error:\nouter\n\tcaused by:\nbase",
		}, {
			name: "multiline context is indented",
			err:  WithContext(New("base"), "line1\nline2"),
			want: "\tline1\n\tline2\nbase",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := test.err.Error(); got != test.want {
				t.Errorf("Error() = %q, want %q", got, test.want)
			}
		})
	}
}

func TestIsThroughLayers(t *testing.T) {
	err := Wrap(WithContext(Wrapf(io.ErrUnexpectedEOF, "reading %v", "length"), "ctx"), "outer")
	if !Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Is(%v, io.ErrUnexpectedEOF) = false, want true", err)
	}
	var he *harnessError
	if !As(err, &he) {
		t.Fatalf("As(%v, *harnessError) = false, want true", err)
	}
	if !strings.Contains(he.Error(), "outer") {
		t.Errorf("As returned %q, want the outermost layer", he.Error())
	}
}
