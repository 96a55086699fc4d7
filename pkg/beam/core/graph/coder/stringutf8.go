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
	"unicode/utf8"

	"github.com/beamfn/harness/pkg/beam/internal/errors"
)

// StringUTF8Coder encodes string as its UTF-8 bytes, framed the same way
// as BytesCoder.
type StringUTF8Coder struct{}

func (StringUTF8Coder) URN() string             { return URNStringUTF8 }
func (StringUTF8Coder) ComponentURNs() []string { return nil }

func (StringUTF8Coder) Encode(elm any, w io.Writer, ctx Context) (int, error) {
	s, ok := elm.(string)
	if !ok {
		panic(mismatch(URNStringUTF8, "string", elm))
	}
	return BytesCoder{}.Encode([]byte(s), w, ctx)
}

func (StringUTF8Coder) Decode(r io.Reader, ctx Context) (any, error) {
	v, err := BytesCoder{}.Decode(r, ctx)
	if err != nil {
		return nil, err
	}
	b := v.([]byte)
	if !utf8.Valid(b) {
		return nil, errors.Wrapf(ErrInvalidUTF8, "decoding %d byte string", len(b))
	}
	return string(b), nil
}
