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

// DataSink is a Node that writes element data to the data service.
type DataSink struct {
	UID   UnitID
	SID   StreamID
	Coder coder.Coder

	windowed bool
	w        io.WriteCloser
}

// ID returns the debug ID.
func (n *DataSink) ID() UnitID {
	return n.UID
}

// Up checks whether elements are written with their windowing.
func (n *DataSink) Up(ctx context.Context) error {
	_, n.windowed = n.Coder.(*coder.WindowedValueCoder)
	return nil
}

// StartBundle opens the writer to the data service.
func (n *DataSink) StartBundle(ctx context.Context, id string, data DataContext) error {
	w, err := data.Data.OpenWrite(ctx, n.SID)
	if err != nil {
		return errors.Wrapf(err, "opening %v", n.SID)
	}
	n.w = w
	return nil
}

// ProcessElement encodes the element and emits it to the data service.
func (n *DataSink) ProcessElement(ctx context.Context, value *FullValue) error {
	// Marshal the pieces into a temporary buffer since they must be transmitted on FnAPI as a single
	// unit.
	var b bytes.Buffer

	var elm any = value.Elm
	if n.windowed {
		elm = value.windowed()
	}
	if _, err := n.Coder.Encode(elm, &b, coder.Delimited); err != nil {
		return errors.WithContextf(err, "encoding element %v with coder %v", value, n.Coder.URN())
	}
	_, err := n.w.Write(b.Bytes())
	return err
}

// FinishBundle closes the write to the data channel.
func (n *DataSink) FinishBundle(ctx context.Context) error {
	w := n.w
	n.w = nil
	if w == nil {
		return nil
	}
	return w.Close()
}

// Down drops a writer left open by a failed bundle. The data manager of the
// bundle owns its release.
func (n *DataSink) Down(ctx context.Context) error {
	n.w = nil
	return nil
}

func (n *DataSink) String() string {
	return fmt.Sprintf("DataSink[%v] Coder:%v", n.SID, n.Coder.URN())
}

func init() {
	RegisterTransform(URNDataSink, func(tc *TransformContext) (UnitMaker, error) {
		if len(tc.Inputs) != 1 {
			return nil, errors.Errorf("expected one input to DataSink, got %v", tc.Inputs)
		}
		port, cid, err := unmarshalPort(tc.Payload())
		if err != nil {
			return nil, errors.Wrap(err, "invalid DataSink port")
		}
		c, err := tc.Coder(cid)
		if err != nil {
			return nil, err
		}
		sid := StreamID{Port: port, PtransformID: tc.ID}
		return func(uid UnitID, out []Node) (Unit, error) {
			return &DataSink{UID: uid, SID: sid, Coder: c}, nil
		}, nil
	})
}
