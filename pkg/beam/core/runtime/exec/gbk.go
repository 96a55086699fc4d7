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

	"github.com/beamfn/harness/pkg/beam/core/graph/coder"
	"github.com/beamfn/harness/pkg/beam/internal/errors"
	"github.com/beamfn/harness/pkg/beam/log"
	"github.com/dustin/go-humanize"
)

// GroupByKey buffers the KVs of a bundle and, when the bundle finishes,
// emits one KV{Key, []any} per distinct key. Keys are compared by their
// encoding.
type GroupByKey struct {
	UID UnitID
	PID string
	// KeyCoder encodes keys for grouping.
	KeyCoder coder.Coder
	Out      Node

	arena *Arena
	buf   bytes.Buffer
	size  int
}

func (n *GroupByKey) ID() UnitID {
	return n.UID
}

func (n *GroupByKey) Up(ctx context.Context) error {
	n.arena = NewArena()
	return nil
}

func (n *GroupByKey) StartBundle(ctx context.Context, id string, data DataContext) error {
	n.arena.Release()
	n.size = 0
	return n.Out.StartBundle(ctx, id, data)
}

func (n *GroupByKey) ProcessElement(ctx context.Context, elm *FullValue) error {
	kv, ok := elm.Elm.(coder.KV)
	if !ok {
		return errors.Errorf("%v: element %v is not a KV", n, elm.Elm)
	}
	n.buf.Reset()
	if _, err := n.KeyCoder.Encode(kv.Key, &n.buf, coder.Delimited); err != nil {
		return errors.WithContextf(err, "encoding key of %v", n.PID)
	}
	n.size += n.buf.Len()
	n.arena.Add(n.buf.String(), kv.Key, kv.Value)
	return nil
}

func (n *GroupByKey) FinishBundle(ctx context.Context) error {
	log.Debugf(log.WithTransform(ctx, n.PID), "GroupByKey: %d keys, %s of keys", n.arena.Len(), humanize.Bytes(uint64(n.size)))

	pane := coder.PaneInfo{Timing: coder.PaneOnTime, IsFirst: true, IsLast: true}
	err := n.arena.Each(func(key any, values []any) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		v := &FullValue{
			Elm:       coder.KV{Key: key, Value: values},
			Timestamp: endOfGlobalWindow,
			Windows:   []any{coder.GlobalWindow{}},
			Pane:      pane,
		}
		return n.Out.ProcessElement(ctx, v)
	})
	n.arena.Release()
	if err != nil {
		return err
	}
	return n.Out.FinishBundle(ctx)
}

func (n *GroupByKey) Down(ctx context.Context) error {
	if n.arena != nil {
		n.arena.Release()
	}
	return nil
}

func (n *GroupByKey) String() string {
	return fmt.Sprintf("GroupByKey[%v] Out:%v", n.PID, n.Out.ID())
}

func init() {
	gbk := func(tc *TransformContext) (UnitMaker, error) {
		if len(tc.Inputs) != 1 || len(tc.Outputs) != 1 {
			return nil, errors.Errorf("group by key %v has %d inputs and %d outputs, want 1 and 1", tc.ID, len(tc.Inputs), len(tc.Outputs))
		}
		kvc, ok := elementCoder(tc.InputCoder(0)).(*coder.KVCoder)
		if !ok {
			return nil, errors.Errorf("group by key %v input coder is %v, want %v", tc.ID, tc.InputCoder(0).URN(), coder.URNKV)
		}
		pid := tc.ID
		return func(uid UnitID, out []Node) (Unit, error) {
			return &GroupByKey{UID: uid, PID: pid, KeyCoder: kvc.Key, Out: out[0]}, nil
		}, nil
	}
	RegisterTransform(URNGBK, gbk)
	RegisterTransform(URNLegacyGBK, gbk)
}
