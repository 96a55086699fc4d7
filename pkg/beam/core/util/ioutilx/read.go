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

// Package ioutilx contains additional io utilities.
package ioutilx

import (
	"bytes"
	"io"
)

// maxEagerRead is the largest read allocated up front. Longer reads grow
// their buffer as the bytes arrive, so a corrupt length cannot commit
// memory the input never backs.
const maxEagerRead = 64 << 10

// ReadN reads exactly n bytes from the reader. If no bytes are available it
// returns io.EOF; if the input ends part way it returns io.ErrUnexpectedEOF.
func ReadN(r io.Reader, n int) ([]byte, error) {
	if n <= maxEagerRead {
		ret := make([]byte, n)
		if err := ReadFull(r, ret); err != nil {
			return nil, err
		}
		return ret, nil
	}

	var buf bytes.Buffer
	buf.Grow(maxEagerRead)
	m, err := io.CopyN(&buf, r, int64(n))
	if err != nil {
		if err == io.EOF && m > 0 {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadFull fills b from the reader with the same error contract as ReadN.
func ReadFull(r io.Reader, b []byte) error {
	_, err := io.ReadFull(r, b)
	return err
}

// ReadByte reads a single byte. A reader that implements io.ByteReader is
// used directly.
func ReadByte(r io.Reader) (byte, error) {
	if br, ok := r.(io.ByteReader); ok {
		return br.ReadByte()
	}
	var b [1]byte
	if err := ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// Unexpected turns io.EOF into io.ErrUnexpectedEOF. It is used once the first
// byte of a value has been consumed, when running out of input means the
// value was truncated.
func Unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
