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
	"math"
	"testing"
)

func TestEncodeDecodeVarUint64(t *testing.T) {
	tests := []struct {
		value  uint64
		length int
	}{
		{0, 1},
		{1, 1},
		{127, 1},
		{128, 2},
		{1000000, 3},
		{12345678901234, 7},
		{math.MaxUint64, 10},
	}

	for _, test := range tests {
		var buf bytes.Buffer
		n, err := EncodeVarUint64(test.value, &buf)
		if err != nil {
			t.Fatalf("EncodeVarUint64(%v) failed: %v", test.value, err)
		}
		if n != test.length || buf.Len() != test.length {
			t.Errorf("EncodeVarUint64(%v) = %v bytes (buffer %v), want %v", test.value, n, buf.Len(), test.length)
		}

		actual, err := DecodeVarUint64(&buf)
		if err != nil {
			t.Fatalf("DecodeVarUint64(<%v>) failed: %v", test.value, err)
		}
		if actual != test.value {
			t.Errorf("DecodeVarUint64(<%v>) = %v, want %v", test.value, actual, test.value)
		}
	}
}

func TestVarIntSelfDelimiting(t *testing.T) {
	values := []int64{0, 1, -1, 300, math.MinInt64, math.MaxInt64, 42}
	var buf bytes.Buffer
	for _, v := range values {
		if _, err := (VarIntCoder{}).Encode(v, &buf, Delimited); err != nil {
			t.Fatalf("Encode(%v) failed: %v", v, err)
		}
	}
	for _, want := range values {
		got, err := (VarIntCoder{}).Decode(&buf, Delimited)
		if err != nil {
			t.Fatalf("Decode() failed: %v", err)
		}
		if got != want {
			t.Errorf("Decode() = %v, want %v", got, want)
		}
	}
	if _, err := (VarIntCoder{}).Decode(&buf, Delimited); err != io.EOF {
		t.Errorf("Decode() at end of input error = %v, want io.EOF", err)
	}
}

// TestVarIntWidths checks -1 and the maximum unsigned value for each width,
// and that a value encoded for one width is rejected by a narrower one.
func TestVarIntWidths(t *testing.T) {
	tests := []struct {
		name   string
		c      Coder
		v      any
		length int
	}{
		{"int64 -1", VarIntCoder{}, int64(-1), 10},
		{"int32 -1", VarInt32Coder{}, int32(-1), 10},
		{"int16 -1", VarInt16Coder{}, int16(-1), 10},
		{"int8 -1", VarInt8Coder{}, int8(-1), 10},
		{"int32 min", VarInt32Coder{}, int32(math.MinInt32), 10},
		{"int8 max", VarInt8Coder{}, int8(math.MaxInt8), 1},
		{"uint64 max", VarUint64Coder{}, uint64(math.MaxUint64), 10},
		{"uint32 max", VarUint32Coder{}, uint32(math.MaxUint32), 5},
		{"uint16 max", VarUint16Coder{}, uint16(math.MaxUint16), 3},
		{"uint8 max", VarUint8Coder{}, uint8(math.MaxUint8), 2},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var buf bytes.Buffer
			n, err := test.c.Encode(test.v, &buf, Delimited)
			if err != nil {
				t.Fatalf("Encode(%v) failed: %v", test.v, err)
			}
			if n != test.length {
				t.Errorf("Encode(%v) wrote %d bytes, want %d", test.v, n, test.length)
			}
			got, err := test.c.Decode(&buf, Delimited)
			if err != nil {
				t.Fatalf("Decode() failed: %v", err)
			}
			if got != test.v {
				t.Errorf("Decode() = %v (%T), want %v (%T)", got, got, test.v, test.v)
			}
		})
	}
}

func TestVarIntCrossWidth(t *testing.T) {
	tests := []struct {
		name string
		enc  Coder
		v    any
		dec  Coder
		want any
		err  error
	}{
		{"uint64 max as int64", VarUint64Coder{}, uint64(math.MaxUint64), VarIntCoder{}, int64(-1), nil},
		{"int64 -1 as uint64", VarIntCoder{}, int64(-1), VarUint64Coder{}, uint64(math.MaxUint64), nil},
		{"uint32 max as int32", VarUint32Coder{}, uint32(math.MaxUint32), VarInt32Coder{}, nil, ErrVarIntOutOfRange},
		{"int32 -1 as uint32", VarInt32Coder{}, int32(-1), VarUint32Coder{}, nil, ErrVarIntOutOfRange},
		{"uint16 max as int16", VarUint16Coder{}, uint16(math.MaxUint16), VarInt16Coder{}, nil, ErrVarIntOutOfRange},
		{"int8 -1 as uint8", VarInt8Coder{}, int8(-1), VarUint8Coder{}, nil, ErrVarIntOutOfRange},
		{"int8 100 as int16", VarInt8Coder{}, int8(100), VarInt16Coder{}, int16(100), nil},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var buf bytes.Buffer
			if _, err := test.enc.Encode(test.v, &buf, Delimited); err != nil {
				t.Fatalf("Encode(%v) failed: %v", test.v, err)
			}
			got, err := test.dec.Decode(&buf, Delimited)
			if !errors.Is(err, test.err) {
				t.Fatalf("Decode() error = %v, want %v", err, test.err)
			}
			if test.err == nil && got != test.want {
				t.Errorf("Decode() = %v (%T), want %v (%T)", got, got, test.want, test.want)
			}
		})
	}
}

func TestDecodeVarUint64Errors(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  error
	}{
		{"empty", nil, io.EOF},
		{"truncated", []byte{0x80, 0x80}, io.ErrUnexpectedEOF},
		{"eleven bytes", []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01}, ErrVarIntTooLong},
		{"tenth byte overflows", []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x02}, ErrVarIntTooLong},
	}
	for _, test := range tests {
		if _, err := DecodeVarUint64(bytes.NewReader(test.input)); err != test.want {
			t.Errorf("DecodeVarUint64(%q) error = %v, want %v", test.name, err, test.want)
		}
	}
}

func TestVarIntKindMismatchPanics(t *testing.T) {
	defer func() {
		r := recover()
		ke, ok := r.(*KindError)
		if !ok {
			t.Fatalf("recovered %v, want *KindError", r)
		}
		if ke.URN != URNVarInt {
			t.Errorf("KindError.URN = %v, want %v", ke.URN, URNVarInt)
		}
	}()
	(VarInt32Coder{}).Encode(int64(3), io.Discard, Delimited)
}
