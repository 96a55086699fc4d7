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
)

// Variable-length encoding for integers.
//
// Takes between 1 and 10 bytes. Signed values are sign extended to 64 bits
// before encoding, so every negative value takes 10 bytes regardless of the
// width it came from. Decoding checks the result against the width of the
// coder instead of truncating.

// EncodeVarUint64 encodes an uint64 and returns the number of bytes written.
func EncodeVarUint64(value uint64, w io.Writer) (int, error) {
	var buf [10]byte
	n := 0
	for {
		b := byte(value & 0x7f)
		value >>= 7
		if value != 0 {
			b |= 0x80
		}
		buf[n] = b
		n++
		if value == 0 {
			return w.Write(buf[:n])
		}
	}
}

// DecodeVarUint64 decodes an uint64.
func DecodeVarUint64(r io.Reader) (uint64, error) {
	var ret uint64
	var shift uint
	for {
		b, err := ioutilx.ReadByte(r)
		if err != nil {
			if shift > 0 {
				return 0, ioutilx.Unexpected(err)
			}
			return 0, err
		}
		bits := uint64(b & 0x7f)
		if shift >= 64 || (shift == 63 && bits > 1) {
			return 0, ErrVarIntTooLong
		}
		ret |= bits << shift
		shift += 7
		if b&0x80 == 0 {
			return ret, nil
		}
	}
}

// EncodeVarInt encodes an int64.
func EncodeVarInt(value int64, w io.Writer) (int, error) {
	return EncodeVarUint64(uint64(value), w)
}

// DecodeVarInt decodes an int64.
func DecodeVarInt(r io.Reader) (int64, error) {
	ret, err := DecodeVarUint64(r)
	if err != nil {
		return 0, err
	}
	return int64(ret), nil
}

func decodeSigned(r io.Reader, min, max int64) (int64, error) {
	v, err := DecodeVarInt(r)
	if err != nil {
		return 0, err
	}
	if v < min || v > max {
		return 0, ErrVarIntOutOfRange
	}
	return v, nil
}

func decodeUnsigned(r io.Reader, max uint64) (uint64, error) {
	v, err := DecodeVarUint64(r)
	if err != nil {
		return 0, err
	}
	if v > max {
		return 0, ErrVarIntOutOfRange
	}
	return v, nil
}

// VarIntCoder is the varint coder for int64. It is the coder the registry
// returns for URNVarInt.
type VarIntCoder struct{}

func (VarIntCoder) URN() string             { return URNVarInt }
func (VarIntCoder) ComponentURNs() []string { return nil }

func (VarIntCoder) Encode(elm any, w io.Writer, _ Context) (int, error) {
	v, ok := elm.(int64)
	if !ok {
		panic(mismatch(URNVarInt, "int64", elm))
	}
	return EncodeVarInt(v, w)
}

func (VarIntCoder) Decode(r io.Reader, _ Context) (any, error) {
	return DecodeVarInt(r)
}

// VarInt32Coder is the varint coder for int32.
type VarInt32Coder struct{}

func (VarInt32Coder) URN() string             { return URNVarInt }
func (VarInt32Coder) ComponentURNs() []string { return nil }

func (VarInt32Coder) Encode(elm any, w io.Writer, _ Context) (int, error) {
	v, ok := elm.(int32)
	if !ok {
		panic(mismatch(URNVarInt, "int32", elm))
	}
	return EncodeVarInt(int64(v), w)
}

func (VarInt32Coder) Decode(r io.Reader, _ Context) (any, error) {
	v, err := decodeSigned(r, math.MinInt32, math.MaxInt32)
	if err != nil {
		return nil, err
	}
	return int32(v), nil
}

// VarInt16Coder is the varint coder for int16.
type VarInt16Coder struct{}

func (VarInt16Coder) URN() string             { return URNVarInt }
func (VarInt16Coder) ComponentURNs() []string { return nil }

func (VarInt16Coder) Encode(elm any, w io.Writer, _ Context) (int, error) {
	v, ok := elm.(int16)
	if !ok {
		panic(mismatch(URNVarInt, "int16", elm))
	}
	return EncodeVarInt(int64(v), w)
}

func (VarInt16Coder) Decode(r io.Reader, _ Context) (any, error) {
	v, err := decodeSigned(r, math.MinInt16, math.MaxInt16)
	if err != nil {
		return nil, err
	}
	return int16(v), nil
}

// VarInt8Coder is the varint coder for int8.
type VarInt8Coder struct{}

func (VarInt8Coder) URN() string             { return URNVarInt }
func (VarInt8Coder) ComponentURNs() []string { return nil }

func (VarInt8Coder) Encode(elm any, w io.Writer, _ Context) (int, error) {
	v, ok := elm.(int8)
	if !ok {
		panic(mismatch(URNVarInt, "int8", elm))
	}
	return EncodeVarInt(int64(v), w)
}

func (VarInt8Coder) Decode(r io.Reader, _ Context) (any, error) {
	v, err := decodeSigned(r, math.MinInt8, math.MaxInt8)
	if err != nil {
		return nil, err
	}
	return int8(v), nil
}

// VarUint64Coder is the varint coder for uint64.
type VarUint64Coder struct{}

func (VarUint64Coder) URN() string             { return URNVarInt }
func (VarUint64Coder) ComponentURNs() []string { return nil }

func (VarUint64Coder) Encode(elm any, w io.Writer, _ Context) (int, error) {
	v, ok := elm.(uint64)
	if !ok {
		panic(mismatch(URNVarInt, "uint64", elm))
	}
	return EncodeVarUint64(v, w)
}

func (VarUint64Coder) Decode(r io.Reader, _ Context) (any, error) {
	return DecodeVarUint64(r)
}

// VarUint32Coder is the varint coder for uint32.
type VarUint32Coder struct{}

func (VarUint32Coder) URN() string             { return URNVarInt }
func (VarUint32Coder) ComponentURNs() []string { return nil }

func (VarUint32Coder) Encode(elm any, w io.Writer, _ Context) (int, error) {
	v, ok := elm.(uint32)
	if !ok {
		panic(mismatch(URNVarInt, "uint32", elm))
	}
	return EncodeVarUint64(uint64(v), w)
}

func (VarUint32Coder) Decode(r io.Reader, _ Context) (any, error) {
	v, err := decodeUnsigned(r, math.MaxUint32)
	if err != nil {
		return nil, err
	}
	return uint32(v), nil
}

// VarUint16Coder is the varint coder for uint16.
type VarUint16Coder struct{}

func (VarUint16Coder) URN() string             { return URNVarInt }
func (VarUint16Coder) ComponentURNs() []string { return nil }

func (VarUint16Coder) Encode(elm any, w io.Writer, _ Context) (int, error) {
	v, ok := elm.(uint16)
	if !ok {
		panic(mismatch(URNVarInt, "uint16", elm))
	}
	return EncodeVarUint64(uint64(v), w)
}

func (VarUint16Coder) Decode(r io.Reader, _ Context) (any, error) {
	v, err := decodeUnsigned(r, math.MaxUint16)
	if err != nil {
		return nil, err
	}
	return uint16(v), nil
}

// VarUint8Coder is the varint coder for uint8.
type VarUint8Coder struct{}

func (VarUint8Coder) URN() string             { return URNVarInt }
func (VarUint8Coder) ComponentURNs() []string { return nil }

func (VarUint8Coder) Encode(elm any, w io.Writer, _ Context) (int, error) {
	v, ok := elm.(uint8)
	if !ok {
		panic(mismatch(URNVarInt, "uint8", elm))
	}
	return EncodeVarUint64(uint64(v), w)
}

func (VarUint8Coder) Decode(r io.Reader, _ Context) (any, error) {
	v, err := decodeUnsigned(r, math.MaxUint8)
	if err != nil {
		return nil, err
	}
	return uint8(v), nil
}
