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
	"encoding/binary"
	"io"

	"github.com/beamfn/harness/pkg/beam/core/util/ioutilx"
	"github.com/beamfn/harness/pkg/beam/internal/errors"
)

// KV is a key-value element.
type KV struct {
	Key   any
	Value any
}

// KVCoder encodes KV. The key is always delimited; the value uses the
// context of the pair.
type KVCoder struct {
	Key, Value Coder
}

// NewKV returns a KV coder.
func NewKV(key, value Coder) *KVCoder {
	return &KVCoder{Key: key, Value: value}
}

func (c *KVCoder) URN() string             { return URNKV }
func (c *KVCoder) ComponentURNs() []string { return urns(c.Key, c.Value) }

func (c *KVCoder) Encode(elm any, w io.Writer, ctx Context) (int, error) {
	kv, ok := elm.(KV)
	if !ok {
		panic(mismatch(URNKV, "coder.KV", elm))
	}
	n, err := c.Key.Encode(kv.Key, w, Delimited)
	if err != nil {
		return n, err
	}
	m, err := c.Value.Encode(kv.Value, w, ctx)
	return n + m, err
}

func (c *KVCoder) Decode(r io.Reader, ctx Context) (any, error) {
	k, err := c.Key.Decode(r, Delimited)
	if err != nil {
		return nil, err
	}
	v, err := c.Value.Decode(r, ctx)
	if err != nil {
		return nil, errors.Wrap(ioutilx.Unexpected(err), "decoding kv value")
	}
	return KV{Key: k, Value: v}, nil
}

// IterableCoder encodes []any as a big endian int32 count followed by the
// delimited elements. Decode also accepts the block form used for streams of
// unknown size: a count of -1 followed by varint counted blocks, terminated
// by an empty block.
type IterableCoder struct {
	Elem Coder
}

// NewIterable returns an iterable coder over elem.
func NewIterable(elem Coder) *IterableCoder {
	return &IterableCoder{Elem: elem}
}

func (c *IterableCoder) URN() string             { return URNIterable }
func (c *IterableCoder) ComponentURNs() []string { return urns(c.Elem) }

func (c *IterableCoder) Encode(elm any, w io.Writer, _ Context) (int, error) {
	vs, ok := elm.([]any)
	if !ok {
		panic(mismatch(URNIterable, "[]any", elm))
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(vs)))
	n, err := w.Write(hdr[:])
	if err != nil {
		return n, err
	}
	for _, v := range vs {
		m, err := c.Elem.Encode(v, w, Delimited)
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func (c *IterableCoder) Decode(r io.Reader, _ Context) (any, error) {
	var hdr [4]byte
	if err := ioutilx.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	size := int32(binary.BigEndian.Uint32(hdr[:]))
	switch {
	case size >= 0:
		return c.decodeN(r, int64(size), make([]any, 0, min(size, 1024)))
	case size == -1:
		var ret []any
		for {
			block, err := DecodeVarInt(r)
			if err != nil {
				return nil, ioutilx.Unexpected(err)
			}
			if block == 0 {
				if ret == nil {
					ret = []any{}
				}
				return ret, nil
			}
			if block < 0 {
				return nil, errors.Errorf("invalid iterable block size %d", block)
			}
			if ret, err = c.decodeN(r, block, ret); err != nil {
				return nil, err
			}
		}
	}
	return nil, errors.Errorf("invalid iterable size %d", size)
}

func (c *IterableCoder) decodeN(r io.Reader, n int64, ret []any) ([]any, error) {
	for i := int64(0); i < n; i++ {
		v, err := c.Elem.Decode(r, Delimited)
		if err != nil {
			return nil, errors.Wrapf(ioutilx.Unexpected(err), "decoding iterable element %d", i)
		}
		ret = append(ret, v)
	}
	return ret, nil
}

// LengthPrefixCoder frames the whole stream encoding of its component with a
// varint length, making any coder safe to nest.
type LengthPrefixCoder struct {
	Elem Coder
}

// NewLengthPrefix returns a length prefix coder over elem.
func NewLengthPrefix(elem Coder) *LengthPrefixCoder {
	return &LengthPrefixCoder{Elem: elem}
}

func (c *LengthPrefixCoder) URN() string             { return URNLengthPrefix }
func (c *LengthPrefixCoder) ComponentURNs() []string { return urns(c.Elem) }

func (c *LengthPrefixCoder) Encode(elm any, w io.Writer, _ Context) (int, error) {
	var buf bytes.Buffer
	if _, err := c.Elem.Encode(elm, &buf, WholeStream); err != nil {
		return 0, err
	}
	return EncodeBytes(buf.Bytes(), w)
}

func (c *LengthPrefixCoder) Decode(r io.Reader, _ Context) (any, error) {
	b, err := DecodeBytes(r)
	if err != nil {
		return nil, err
	}
	v, err := c.Elem.Decode(bytes.NewReader(b), WholeStream)
	if err != nil {
		return nil, errors.Wrapf(ioutilx.Unexpected(err), "decoding %d length prefixed bytes", len(b))
	}
	return v, nil
}
