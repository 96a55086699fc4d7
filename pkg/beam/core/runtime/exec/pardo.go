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
	"context"
	"fmt"
	"sync/atomic"

	pipepb "github.com/apache/beam/sdks/v2/go/pkg/beam/model/pipeline_v1"
	"github.com/beamfn/harness/pkg/beam/internal/errors"
	"github.com/beamfn/harness/pkg/beam/log"
	"github.com/beamfn/harness/pkg/beam/util/errorx"
	"google.golang.org/protobuf/proto"
)

// ParDo is a DoFn executor.
type ParDo struct {
	UID UnitID
	PID string
	Fn  DoFn
	Out []Node

	// Tolerant ParDos log and skip elements the DoFn fails on.
	Tolerant bool

	status   Status
	err      errorx.GuardedError
	inst     string
	emitters []Emitter
	dropped  atomic.Int64

	// Per element invocation state read by the emitters.
	ctx        context.Context
	current    *FullValue
	downstream error
}

func (n *ParDo) ID() UnitID {
	return n.UID
}

func (n *ParDo) Up(ctx context.Context) error {
	if n.status != Initializing {
		return errors.Errorf("invalid status for pardo %v: %v, want Initializing", n.UID, n.status)
	}
	n.status = Up

	n.emitters = make([]Emitter, len(n.Out))
	for i, out := range n.Out {
		n.emitters[i] = n.makeEmitter(out)
	}
	if fn, ok := n.Fn.(SetupFn); ok {
		if err := fn.Setup(ctx); err != nil {
			return n.fail(errors.Wrapf(err, "setup of %v", n.PID))
		}
	}
	return nil
}

func (n *ParDo) makeEmitter(out Node) Emitter {
	return func(elm any) error {
		if n.current == nil {
			return errors.Errorf("%v: emit outside of element processing", n.PID)
		}
		v := n.current.derive(elm)
		err := callNoPanic(n.ctx, func(ctx context.Context) error {
			return out.ProcessElement(ctx, v)
		})
		if err != nil && n.downstream == nil {
			n.downstream = err
		}
		return err
	}
}

func (n *ParDo) StartBundle(ctx context.Context, id string, data DataContext) error {
	if n.status != Up {
		return errors.Errorf("invalid status for pardo %v: %v, want Up", n.UID, n.status)
	}
	n.status = Active
	n.inst = id
	n.dropped.Store(0)

	if fn, ok := n.Fn.(StartBundleFn); ok {
		if err := fn.StartBundle(ctx); err != nil {
			return n.fail(n.userError(nil, err))
		}
	}
	if err := MultiStartBundle(ctx, id, data, n.Out...); err != nil {
		return n.fail(err)
	}
	return nil
}

func (n *ParDo) ProcessElement(ctx context.Context, elm *FullValue) error {
	if n.status != Active {
		return errors.Errorf("invalid status for pardo %v: %v, want Active", n.UID, n.status)
	}
	if err := ctx.Err(); err != nil {
		return n.fail(err)
	}

	err := n.invoke(ctx, elm, func(ctx context.Context) error {
		return n.Fn.ProcessElement(ctx, elm.Elm, n.emitters)
	})
	if n.downstream != nil {
		// Receiver failures are never tolerated here; they belong to the receiver.
		return n.fail(n.downstream)
	}
	if err != nil {
		if n.Tolerant {
			n.dropped.Add(1)
			log.Warnf(log.WithTransform(ctx, n.PID), "dropping element %v: %v", elm.Elm, err)
			return nil
		}
		return n.fail(n.userError(elm.Elm, err))
	}
	return nil
}

// invoke runs fn with the emitters bound to the context of elm.
func (n *ParDo) invoke(ctx context.Context, elm *FullValue, fn func(context.Context) error) error {
	n.ctx, n.current, n.downstream = ctx, elm, nil
	defer func() {
		n.ctx, n.current = nil, nil
	}()
	return callNoPanic(ctx, fn)
}

func (n *ParDo) FinishBundle(ctx context.Context) error {
	if n.status != Active {
		return errors.Errorf("invalid status for pardo %v: %v, want Active", n.UID, n.status)
	}
	n.status = Up

	if fn, ok := n.Fn.(FinishBundleFn); ok {
		err := n.invoke(ctx, globalValue(nil), func(ctx context.Context) error {
			return fn.FinishBundle(ctx, n.emitters)
		})
		if n.downstream != nil {
			return n.fail(n.downstream)
		}
		if err != nil {
			return n.fail(n.userError(nil, err))
		}
	}
	if d := n.dropped.Load(); d > 0 {
		log.Warnf(log.WithTransform(ctx, n.PID), "dropped %d elements in bundle %v", d, n.inst)
	}
	if err := MultiFinishBundle(ctx, n.Out...); err != nil {
		return n.fail(err)
	}
	return nil
}

func (n *ParDo) Down(ctx context.Context) error {
	if n.status == Down {
		return n.err.Error()
	}
	n.status = Down

	if fn, ok := n.Fn.(TeardownFn); ok {
		if err := callNoPanic(ctx, fn.Teardown); err != nil {
			n.err.TrySetError(err)
		}
	}
	return n.err.Error()
}

// Dropped returns the number of elements skipped in the current or last
// bundle.
func (n *ParDo) Dropped() int64 {
	return n.dropped.Load()
}

func (n *ParDo) userError(elm any, err error) error {
	return &DoFnError{Transform: n.PID, Instruction: n.inst, Element: elm, Err: err}
}

func (n *ParDo) fail(err error) error {
	n.status = Broken
	n.err.TrySetError(err)
	return err
}

func (n *ParDo) String() string {
	return fmt.Sprintf("ParDo[%v] Out:%v", n.PID, IDs(n.Out...))
}

func init() {
	pardo := func(tc *TransformContext) (UnitMaker, error) {
		var payload pipepb.ParDoPayload
		if err := proto.Unmarshal(tc.Payload(), &payload); err != nil {
			return nil, errors.Wrapf(err, "invalid ParDo payload for %v", tc.ID)
		}
		urn := payload.GetDoFn().GetUrn()
		factory, ok := lookupDoFn(urn)
		if !ok {
			return nil, errors.Wrapf(ErrUnknownDoFn, "transform %v: %v", tc.ID, urn)
		}
		data := payload.GetDoFn().GetPayload()
		if _, err := factory(data); err != nil {
			return nil, errors.Wrapf(err, "invalid DoFn payload for %v", tc.ID)
		}
		tolerant := tc.Annotation(URNTolerantAnnotation)
		pid := tc.ID

		return func(uid UnitID, out []Node) (Unit, error) {
			fn, err := factory(data)
			if err != nil {
				return nil, err
			}
			return &ParDo{UID: uid, PID: pid, Fn: fn, Out: out, Tolerant: tolerant}, nil
		}, nil
	}
	RegisterTransform(URNParDo, pardo)
	RegisterTransform(URNLegacyParDo, pardo)
}
