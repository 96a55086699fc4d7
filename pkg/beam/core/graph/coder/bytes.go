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
	"io"
	"math"

	"github.com/beamfn/harness/pkg/beam/core/util/ioutilx"
	"github.com/beamfn/harness/pkg/beam/internal/errors"
)

// EncodeBytes encodes a []byte with a varint length prefix.
func EncodeBytes(v []byte, w io.Writer) (int, error) {
	n, err := EncodeVarInt(int64(len(v)), w)
	if err != nil {
		return n, err
	}
	m, err := w.Write(v)
	return n + m, err
}

// DecodeBytes decodes a length prefixed []byte.
func DecodeBytes(r io.Reader) ([]byte, error) {
	size, err := DecodeVarInt(r)
	if err != nil {
		return nil, err
	}
	if size < 0 || size > math.MaxInt32 {
		return nil, errors.Errorf("invalid byte length %d", size)
	}
	b, err := ioutilx.ReadN(r, int(size))
	if err != nil {
		return nil, ioutilx.Unexpected(err)
	}
	return b, nil
}

// EncodeBool encodes a bool as a single byte.
func EncodeBool(v bool, w io.Writer) (int, error) {
	if v {
		return ioutilx.WriteByte(w, 1)
	}
	return ioutilx.WriteByte(w, 0)
}

// DecodeBool decodes a single byte bool.
func DecodeBool(r io.Reader) (bool, error) {
	b, err := ioutilx.ReadByte(r)
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, errors.Errorf("invalid bool byte %#x", b)
}

// BytesCoder encodes []byte. Delimited encodings carry a varint length
// prefix; whole stream encodings are the raw bytes.
type BytesCoder struct{}

func (BytesCoder) URN() string             { return URNBytes }
func (BytesCoder) ComponentURNs() []string { return nil }

func (BytesCoder) Encode(elm any, w io.Writer, ctx Context) (int, error) {
	v, ok := elm.([]byte)
	if !ok {
		panic(mismatch(URNBytes, "[]byte", elm))
	}
	if ctx == WholeStream {
		return w.Write(v)
	}
	return EncodeBytes(v, w)
}

func (BytesCoder) Decode(r io.Reader, ctx Context) (any, error) {
	if ctx == WholeStream {
		return io.ReadAll(r)
	}
	return DecodeBytes(r)
}

// BoolCoder encodes bool as one byte.
type BoolCoder struct{}

func (BoolCoder) URN() string             { return URNBool }
func (BoolCoder) ComponentURNs() []string { return nil }

func (BoolCoder) Encode(elm any, w io.Writer, _ Context) (int, error) {
	v, ok := elm.(bool)
	if !ok {
		panic(mismatch(URNBool, "bool", elm))
	}
	return EncodeBool(v, w)
}

func (BoolCoder) Decode(r io.Reader, _ Context) (any, error) {
	return DecodeBool(r)
}
