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

package coder

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestRoundTrip encodes and decodes representative values of every standard
// coder in every context, followed by a second value to catch coders that
// read past their own encoding.
func TestRoundTrip(t *testing.T) {
	strs := StringUTF8Coder{}
	tests := []struct {
		name string
		c    Coder
		v    any
	}{
		{"bytes", BytesCoder{}, []byte("bytes")},
		{"string", strs, "string"},
		{"varint", VarIntCoder{}, int64(-12345)},
		{"bool", BoolCoder{}, true},
		{"nullable absent", NewNullable(strs), nil},
		{"nullable present", NewNullable(strs), "present"},
		{"nullable of varint", NewNullable(VarInt16Coder{}), int16(-7)},
		{"kv", NewKV(strs, VarIntCoder{}), KV{Key: "k", Value: int64(9)}},
		{"kv with nullable value", NewKV(BytesCoder{}, NewNullable(strs)), KV{Key: []byte{1}, Value: nil}},
		{"iterable", NewIterable(strs), []any{"a", "", "ccc"}},
		{"empty iterable", NewIterable(VarIntCoder{}), []any{}},
		{"length prefix", NewLengthPrefix(BytesCoder{}), []byte("framed")},
		{"length prefix of kv", NewLengthPrefix(NewKV(strs, strs)), KV{Key: "a", Value: "b"}},
		{"global window", GlobalWindowCoder{}, GlobalWindow{}},
		{"windowed value", NewWindowedValue(strs, GlobalWindowCoder{}), GlobalValue("elm")},
		{"windowed kv", NewWindowedValue(NewKV(strs, NewIterable(VarIntCoder{})), GlobalWindowCoder{}),
			WindowedValue{
				Value:     KV{Key: "k", Value: []any{int64(1), int64(2)}},
				Timestamp: 1234,
				Windows:   []any{GlobalWindow{}},
				Pane:      PaneInfo{Timing: PaneLate, Index: 3, NonSpeculativeIndex: 2},
			}},
	}
	for _, test := range tests {
		for _, ctx := range []Context{Delimited, WholeStream} {
			t.Run(test.name+"/"+ctx.String(), func(t *testing.T) {
				var buf bytes.Buffer
				n, err := test.c.Encode(test.v, &buf, ctx)
				if err != nil {
					t.Fatalf("Encode(%v) failed: %v", test.v, err)
				}
				if n != buf.Len() {
					t.Errorf("Encode(%v) reported %d bytes, wrote %d", test.v, n, buf.Len())
				}
				if ctx == Delimited {
					test.c.Encode(test.v, &buf, ctx)
				}
				got, err := test.c.Decode(&buf, ctx)
				if err != nil {
					t.Fatalf("Decode() failed: %v", err)
				}
				if d := cmp.Diff(test.v, got); d != "" {
					t.Errorf("Decode() diff (-want, +got):\n%v", d)
				}
				if ctx == Delimited {
					got, err := test.c.Decode(&buf, ctx)
					if err != nil {
						t.Fatalf("second Decode() failed: %v", err)
					}
					if d := cmp.Diff(test.v, got); d != "" {
						t.Errorf("second Decode() diff (-want, +got):\n%v", d)
					}
				}
				if buf.Len() != 0 {
					t.Errorf("%d bytes left unread", buf.Len())
				}
			})
		}
	}
}

func TestNullableCoder(t *testing.T) {
	c := NewNullable(StringUTF8Coder{})
	tests := []struct {
		v       any
		encoded []byte
	}{
		{nil, []byte{0}},
		{"ab", []byte{1, 2, 'a', 'b'}},
	}
	for _, test := range tests {
		var buf bytes.Buffer
		if _, err := c.Encode(test.v, &buf, Delimited); err != nil {
			t.Fatalf("Encode(%v) failed: %v", test.v, err)
		}
		if !bytes.Equal(buf.Bytes(), test.encoded) {
			t.Errorf("Encode(%v) = %v, want %v", test.v, buf.Bytes(), test.encoded)
		}
	}

	if _, err := c.Decode(bytes.NewReader([]byte{2, 'x'}), Delimited); !errors.Is(err, ErrInvalidPresence) {
		t.Errorf("Decode(presence 2) error = %v, want ErrInvalidPresence", err)
	}
	if _, err := c.Decode(bytes.NewReader([]byte{1}), Delimited); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Decode(present, no value) error = %v, want io.ErrUnexpectedEOF", err)
	}
	if _, err := c.Decode(bytes.NewReader(nil), Delimited); err != io.EOF {
		t.Errorf("Decode(empty) error = %v, want io.EOF", err)
	}
	if got := c.ComponentURNs(); !cmp.Equal(got, []string{URNStringUTF8}) {
		t.Errorf("ComponentURNs() = %v, want [%v]", got, URNStringUTF8)
	}
}

func TestKVCoderLayout(t *testing.T) {
	c := NewKV(StringUTF8Coder{}, StringUTF8Coder{})
	var buf bytes.Buffer
	c.Encode(KV{Key: "k", Value: "vv"}, &buf, WholeStream)
	if want := []byte{1, 'k', 'v', 'v'}; !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("Encode(whole stream) = %v, want %v", buf.Bytes(), want)
	}
	if got, want := c.ComponentURNs(), []string{URNStringUTF8, URNStringUTF8}; !cmp.Equal(got, want) {
		t.Errorf("ComponentURNs() = %v, want %v", got, want)
	}
}

func TestIterableCoderBlocks(t *testing.T) {
	// Two blocks of sizes 2 and 1, then the terminating empty block.
	input := []byte{0xff, 0xff, 0xff, 0xff, 2, 1, 'a', 1, 'b', 1, 1, 'c', 0}
	got, err := NewIterable(StringUTF8Coder{}).Decode(bytes.NewReader(input), Delimited)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if d := cmp.Diff([]any{"a", "b", "c"}, got); d != "" {
		t.Errorf("Decode() diff (-want, +got):\n%v", d)
	}

	truncated := []byte{0, 0, 0, 2, 1, 'a'}
	if _, err := NewIterable(StringUTF8Coder{}).Decode(bytes.NewReader(truncated), Delimited); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Decode(truncated) error = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestWindowedValueLayout(t *testing.T) {
	c := NewWindowedValue(BytesCoder{}, GlobalWindowCoder{})
	var buf bytes.Buffer
	if _, err := c.Encode(GlobalValue([]byte("x")), &buf, Delimited); err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	want := []byte{
		0x7f, 0xdf, 0x3b, 0x64, 0x5a, 0x1c, 0xac, 0x09, // minimum timestamp
		0, 0, 0, 1, // one window, the global window encodes as nothing
		0x0f,   // no firing pane
		1, 'x', // value
	}
	if d := cmp.Diff(want, buf.Bytes()); d != "" {
		t.Errorf("Encode() diff (-want, +got):\n%v", d)
	}
}

func TestPaneRoundTrip(t *testing.T) {
	panes := []PaneInfo{
		NoFiringPane(),
		{Timing: PaneEarly, IsFirst: true},
		{Timing: PaneEarly, Index: 2, NonSpeculativeIndex: -1},
		{Timing: PaneOnTime, IsLast: true, Index: 4, NonSpeculativeIndex: 4},
		{Timing: PaneLate, Index: 5, NonSpeculativeIndex: 3},
	}
	for _, p := range panes {
		var buf bytes.Buffer
		if _, err := EncodePane(p, &buf); err != nil {
			t.Fatalf("EncodePane(%+v) failed: %v", p, err)
		}
		got, err := DecodePane(&buf)
		if err != nil {
			t.Fatalf("DecodePane(%+v) failed: %v", p, err)
		}
		if got != p {
			t.Errorf("DecodePane(EncodePane(%+v)) = %+v", p, got)
		}
	}
}
