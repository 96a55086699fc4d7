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
	"sync"

	"github.com/beamfn/harness/pkg/beam/internal/errors"
)

// URNIdentityDoFn is the DoFn that outputs every input element unchanged.
const URNIdentityDoFn = "beam:dofn:identity:0.1"

// ErrUnknownDoFn is returned when no DoFn is registered for a URN.
var ErrUnknownDoFn = errors.New("unknown dofn urn")

// Emitter outputs an element to one output of a ParDo, in the window and at
// the timestamp of the element being processed.
type Emitter func(elm any) error

// DoFn is a user function applied to every element of a ParDo. Outputs are
// indexed in output local name order. A DoFn instance is used by a single
// plan and is never called concurrently.
type DoFn interface {
	ProcessElement(ctx context.Context, elm any, emit []Emitter) error
}

// SetupFn is implemented by DoFns that acquire resources when the plan is
// brought up.
type SetupFn interface {
	Setup(ctx context.Context) error
}

// StartBundleFn is implemented by DoFns with per bundle initialization.
type StartBundleFn interface {
	StartBundle(ctx context.Context) error
}

// FinishBundleFn is implemented by DoFns that flush output at the end of a
// bundle.
type FinishBundleFn interface {
	FinishBundle(ctx context.Context, emit []Emitter) error
}

// TeardownFn is implemented by DoFns that release resources when the plan
// is torn down.
type TeardownFn interface {
	Teardown(ctx context.Context) error
}

// DoFnFactory creates a DoFn from its serialized payload.
type DoFnFactory func(payload []byte) (DoFn, error)

var (
	dofnsMu sync.RWMutex
	dofns   = make(map[string]DoFnFactory)
)

// RegisterDoFn registers the DoFn for the given URN, replacing any previous
// registration. Expected to be called during init.
func RegisterDoFn(urn string, f DoFnFactory) {
	dofnsMu.Lock()
	defer dofnsMu.Unlock()
	dofns[urn] = f
}

func lookupDoFn(urn string) (DoFnFactory, bool) {
	dofnsMu.RLock()
	defer dofnsMu.RUnlock()
	f, ok := dofns[urn]
	return f, ok
}

// FlatMap is a DoFn that outputs zero or more elements to its main output.
type FlatMap func(ctx context.Context, elm any) ([]any, error)

func (fn FlatMap) ProcessElement(ctx context.Context, elm any, emit []Emitter) error {
	out, err := fn(ctx, elm)
	if err != nil {
		return err
	}
	for _, v := range out {
		if err := emit[0](v); err != nil {
			return err
		}
	}
	return nil
}

// Map is a DoFn that outputs exactly one element to its main output.
type Map func(ctx context.Context, elm any) (any, error)

func (fn Map) ProcessElement(ctx context.Context, elm any, emit []Emitter) error {
	out, err := fn(ctx, elm)
	if err != nil {
		return err
	}
	return emit[0](out)
}

func init() {
	RegisterDoFn(URNIdentityDoFn, func([]byte) (DoFn, error) {
		return Map(func(_ context.Context, elm any) (any, error) {
			return elm, nil
		}), nil
	})
}
