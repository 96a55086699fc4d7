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

	"github.com/beamfn/harness/pkg/beam/core/util/ioutilx"
	"github.com/beamfn/harness/pkg/beam/internal/errors"
)

// NullableCoder wraps a component coder so that nil can be encoded. A
// presence byte (0 absent, 1 present) precedes the component encoding, which
// uses the same context as the nullable value.
type NullableCoder struct {
	Elem Coder
}

// NewNullable returns a nullable coder over elem.
func NewNullable(elem Coder) *NullableCoder {
	return &NullableCoder{Elem: elem}
}

func (c *NullableCoder) URN() string             { return URNNullable }
func (c *NullableCoder) ComponentURNs() []string { return urns(c.Elem) }

func (c *NullableCoder) Encode(elm any, w io.Writer, ctx Context) (int, error) {
	if elm == nil {
		return ioutilx.WriteByte(w, 0)
	}
	n, err := ioutilx.WriteByte(w, 1)
	if err != nil {
		return n, err
	}
	m, err := c.Elem.Encode(elm, w, ctx)
	return n + m, err
}

func (c *NullableCoder) Decode(r io.Reader, ctx Context) (any, error) {
	b, err := ioutilx.ReadByte(r)
	if err != nil {
		return nil, err
	}
	switch b {
	case 0:
		return nil, nil
	case 1:
		v, err := c.Elem.Decode(r, ctx)
		if err != nil {
			return nil, ioutilx.Unexpected(err)
		}
		return v, nil
	}
	return nil, errors.Wrapf(ErrInvalidPresence, "got %#x", b)
}
