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


package exec

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/beamfn/harness/pkg/beam/core/graph/coder"
	"github.com/beamfn/harness/pkg/beam/internal/errors"
)

// impulseValue is the single element emitted by Impulse.
var impulseValue = []byte("impulse")

// Impulse is a Root that emits a single element per bundle.
type Impulse struct {
	UID   UnitID
	Value []byte
	Out   Node
}

func (n *Impulse) ID() UnitID {
	return n.UID
}

func (n *Impulse) Up(ctx context.Context) error {
	return nil
}

func (n *Impulse) StartBundle(ctx context.Context, id string, data DataContext) error {
	return n.Out.StartBundle(ctx, id, data)
}

// Process emits a fresh copy of Value, since downstream DoFns own the
// elements they receive.
func (n *Impulse) Process(ctx context.Context) error {
	return n.Out.ProcessElement(ctx, globalValue(append([]byte(nil), n.Value...)))
}

func (n *Impulse) FinishBundle(ctx context.Context) error {
	return n.Out.FinishBundle(ctx)
}

func (n *Impulse) Down(ctx context.Context) error {
	return nil
}

func (n *Impulse) String() string {
	return fmt.Sprintf("Impulse[%q] Out:%v", n.Value, n.Out.ID())
}

// Create is a Root that emits a fixed list of elements per bundle, each in
// the global window.
type Create struct {
	UID    UnitID
	Values []any
	Out    Node
}

func (n *Create) ID() UnitID {
	return n.UID
}

func (n *Create) Up(ctx context.Context) error {
	return nil
}

func (n *Create) StartBundle(ctx context.Context, id string, data DataContext) error {
	return n.Out.StartBundle(ctx, id, data)
}

func (n *Create) Process(ctx context.Context) error {
	for _, v := range n.Values {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := n.Out.ProcessElement(ctx, globalValue(v)); err != nil {
			return err
		}
	}
	return nil
}

func (n *Create) FinishBundle(ctx context.Context) error {
	return n.Out.FinishBundle(ctx)
}

func (n *Create) Down(ctx context.Context) error {
	return nil
}

func (n *Create) String() string {
	return fmt.Sprintf("Create[%d] Out:%v", len(n.Values), n.Out.ID())
}

// DecodeAll decodes a concatenation of delimited encodings.
func DecodeAll(c coder.Coder, data []byte) ([]any, error) {
	var ret []any
	r := bytes.NewReader(data)
	for r.Len() > 0 {
		v, err := c.Decode(r, coder.Delimited)
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, errors.Wrapf(err, "decoding element %d", len(ret))
		}
		ret = append(ret, v)
	}
	return ret, nil
}

// EncodeAll is the inverse of DecodeAll.
func EncodeAll(c coder.Coder, values ...any) ([]byte, error) {
	var b bytes.Buffer
	for _, v := range values {
		if _, err := c.Encode(v, &b, coder.Delimited); err != nil {
			return nil, err
		}
	}
	return b.Bytes(), nil
}

func init() {
	RegisterTransform(URNImpulse, func(tc *TransformContext) (UnitMaker, error) {
		if len(tc.Outputs) != 1 {
			return nil, errors.Errorf("impulse %v has %d outputs, want 1", tc.ID, len(tc.Outputs))
		}
		return func(uid UnitID, out []Node) (Unit, error) {
			return &Impulse{UID: uid, Value: impulseValue, Out: out[0]}, nil
		}, nil
	})
	RegisterTransform(URNCreate, func(tc *TransformContext) (UnitMaker, error) {
		if len(tc.Outputs) != 1 {
			return nil, errors.Errorf("create %v has %d outputs, want 1", tc.ID, len(tc.Outputs))
		}
		c := elementCoder(tc.OutputCoder(0))
		payload := tc.Payload()
		if _, err := DecodeAll(c, payload); err != nil {
			return nil, errors.Wrapf(err, "invalid create payload for %v", tc.ID)
		}
		return func(uid UnitID, out []Node) (Unit, error) {
			// Decoded per plan, so plans never share element values.
			values, err := DecodeAll(c, payload)
			if err != nil {
				return nil, err
			}
			return &Create{UID: uid, Values: values, Out: out[0]}, nil
		}, nil
	})
}
