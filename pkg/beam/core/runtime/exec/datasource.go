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
	"bufio"
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/beamfn/harness/pkg/beam/core/graph/coder"
	"github.com/beamfn/harness/pkg/beam/internal/errors"
	"github.com/beamfn/harness/pkg/beam/log"
)

// DataSource is a Root execution unit that reads the elements sent by the
// runner for one transform and pushes them downstream.
type DataSource struct {
	UID   UnitID
	SID   StreamID
	Name  string
	Coder coder.Coder
	Out   Node

	source DataManager
	start  time.Time
	count  atomic.Int64
}

// ID returns the UnitID for this node.
func (n *DataSource) ID() UnitID {
	return n.UID
}

// Up is a no-op.
func (n *DataSource) Up(ctx context.Context) error {
	return nil
}

// StartBundle records the data manager of the bundle and starts downstream.
func (n *DataSource) StartBundle(ctx context.Context, id string, data DataContext) error {
	n.source = data.Data
	n.start = time.Now()
	n.count.Store(0)
	return n.Out.StartBundle(ctx, id, data)
}

// Process opens the data source, reads and decodes data, kicking off element processing.
func (n *DataSource) Process(ctx context.Context) error {
	if n.source == nil {
		return errors.Errorf("%v: no data manager for bundle", n)
	}
	r, err := n.source.OpenRead(ctx, n.SID)
	if err != nil {
		return errors.Wrapf(err, "opening %v", n.SID)
	}
	defer r.Close()

	br := bufio.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		v, err := n.Coder.Decode(br, coder.Delimited)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return errors.Wrapf(err, "source %v failed to decode element %d", n.SID, n.count.Load())
		}
		n.count.Add(1)

		var fv *FullValue
		if wv, ok := v.(coder.WindowedValue); ok {
			fv = fromWindowed(wv)
		} else {
			fv = globalValue(v)
		}
		if err := n.Out.ProcessElement(ctx, fv); err != nil {
			return err
		}
	}
}

// FinishBundle finishes downstream.
func (n *DataSource) FinishBundle(ctx context.Context) error {
	log.Debugf(ctx, "DataSource: %d elements in %v", n.count.Load(), time.Since(n.start))
	n.source = nil
	return n.Out.FinishBundle(ctx)
}

// Down resets the source.
func (n *DataSource) Down(ctx context.Context) error {
	n.source = nil
	return nil
}

// Progress returns the number of elements read so far in the current bundle.
// It is safe to call concurrently with processing.
func (n *DataSource) Progress() ProgressReportSnapshot {
	return ProgressReportSnapshot{ID: n.SID.PtransformID, Name: n.Name, Count: n.count.Load()}
}

func (n *DataSource) String() string {
	return fmt.Sprintf("DataSource[%v, %v] Coder:%v Out:%v", n.SID, n.Name, n.Coder.URN(), n.Out.ID())
}

// ProgressReportSnapshot captures the progress reading an input source.
type ProgressReportSnapshot struct {
	ID, Name string
	Count    int64
}

func init() {
	RegisterTransform(URNDataSource, func(tc *TransformContext) (UnitMaker, error) {
		if len(tc.Outputs) != 1 {
			return nil, errors.Errorf("expected one output from DataSource, got %v", tc.Outputs)
		}
		port, cid, err := unmarshalPort(tc.Payload())
		if err != nil {
			return nil, errors.Wrap(err, "invalid DataSource port")
		}
		c, err := tc.Coder(cid)
		if err != nil {
			return nil, err
		}
		var name string
		for key := range tc.Transform.GetOutputs() {
			name = key
		}
		sid := StreamID{Port: port, PtransformID: tc.ID}
		return func(uid UnitID, out []Node) (Unit, error) {
			return &DataSource{UID: uid, SID: sid, Name: name, Coder: c, Out: out[0]}, nil
		}, nil
	})
}
