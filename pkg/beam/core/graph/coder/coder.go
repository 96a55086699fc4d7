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

// Package coder contains the Beam standard coders and the registry that
// resolves coder URNs to them. The byte layout produced here is shared with
// the runner and every other SDK harness, so encodings must match the
// standard coder definitions exactly.
//
// Elements are plain Go values: []byte, string, the sized integer types,
// bool, nil for an absent nullable, KV, []any for iterables and
// WindowedValue.
package coder

import (
	"fmt"
	"io"

	"github.com/beamfn/harness/pkg/beam/internal/errors"
)

// Standard coder URNs.
const (
	URNBytes         = "beam:coder:bytes:v1"
	URNStringUTF8    = "beam:coder:string_utf8:v1"
	URNVarInt        = "beam:coder:varint:v1"
	URNNullable      = "beam:coder:nullable:v1"
	URNBool          = "beam:coder:bool:v1"
	URNKV            = "beam:coder:kv:v1"
	URNIterable      = "beam:coder:iterable:v1"
	URNLengthPrefix  = "beam:coder:length_prefix:v1"
	URNGlobalWindow  = "beam:coder:global_window:v1"
	URNWindowedValue = "beam:coder:windowed_value:v1"
)

// Context is the encoding mode of a value.
type Context int

const (
	// Delimited encodings are self-terminating, so several values can be
	// concatenated and read back one at a time.
	Delimited Context = iota
	// WholeStream encodings may assume the reader consumes to end of input.
	WholeStream
)

func (c Context) String() string {
	switch c {
	case Delimited:
		return "delimited"
	case WholeStream:
		return "whole-stream"
	default:
		return fmt.Sprintf("Context(%d)", int(c))
	}
}

// Coder encodes and decodes elements of one kind.
//
// Decode consumes exactly the bytes Encode produced for the same context. If
// the reader is exhausted before the first byte of a value, Decode returns
// io.EOF; a value that is cut short returns io.ErrUnexpectedEOF.
//
// Encode panics with a *KindError when elm is not of the coder's kind.
type Coder interface {
	URN() string
	// ComponentURNs returns the URNs of the component coders in order.
	ComponentURNs() []string
	// Encode writes elm to w and returns the number of bytes written.
	Encode(elm any, w io.Writer, ctx Context) (int, error)
	Decode(r io.Reader, ctx Context) (any, error)
}

var (
	// ErrVarIntTooLong indicates a varint that overflows 64 bits.
	ErrVarIntTooLong = errors.New("varint too long")
	// ErrVarIntOutOfRange indicates a varint that does not fit the width of
	// the decoding coder.
	ErrVarIntOutOfRange = errors.New("varint out of range")
	// ErrInvalidUTF8 indicates string bytes that are not valid UTF-8.
	ErrInvalidUTF8 = errors.New("invalid UTF-8")
	// ErrInvalidPresence indicates a nullable presence byte other than 0 or 1.
	ErrInvalidPresence = errors.New("invalid nullable presence byte")
	// ErrUnknownCoder indicates a URN with no registered factory.
	ErrUnknownCoder = errors.New("unknown coder urn")
)

// KindError is the panic value of Encode when an element does not match the
// coder. It is a programming error in the caller, not bad data.
type KindError struct {
	URN  string
	Want string
	Elm  any
}

func (e *KindError) Error() string {
	return fmt.Sprintf("coder %v: cannot encode %T, want %v", e.URN, e.Elm, e.Want)
}

func mismatch(urn, want string, elm any) *KindError {
	return &KindError{URN: urn, Want: want, Elm: elm}
}

func urns(cs ...Coder) []string {
	ret := make([]string, len(cs))
	for i, c := range cs {
		ret[i] = c.URN()
	}
	return ret
}
