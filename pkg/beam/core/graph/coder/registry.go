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
	"sync"

	"github.com/beamfn/harness/pkg/beam/internal/errors"
)

// Factory builds a coder from its serialized payload and its already
// resolved component coders.
type Factory func(payload []byte, components []Coder) (Coder, error)

// Registry maps coder URNs to factories. It is safe for concurrent use and
// is expected to be written rarely, typically from init functions.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	standard  map[string]bool
}

// NewRegistry returns a registry holding the standard coders.
func NewRegistry() *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
		standard:  make(map[string]bool),
	}
	leaf := func(c Coder) Factory {
		return func(_ []byte, cs []Coder) (Coder, error) {
			if err := arity(c.URN(), cs, 0); err != nil {
				return nil, err
			}
			return c, nil
		}
	}
	for _, c := range []Coder{BytesCoder{}, StringUTF8Coder{}, VarIntCoder{}, BoolCoder{}, GlobalWindowCoder{}} {
		r.addStandard(c.URN(), leaf(c))
	}
	r.addStandard(URNNullable, func(_ []byte, cs []Coder) (Coder, error) {
		if err := arity(URNNullable, cs, 1); err != nil {
			return nil, err
		}
		return NewNullable(cs[0]), nil
	})
	r.addStandard(URNKV, func(_ []byte, cs []Coder) (Coder, error) {
		if err := arity(URNKV, cs, 2); err != nil {
			return nil, err
		}
		return NewKV(cs[0], cs[1]), nil
	})
	r.addStandard(URNIterable, func(_ []byte, cs []Coder) (Coder, error) {
		if err := arity(URNIterable, cs, 1); err != nil {
			return nil, err
		}
		return NewIterable(cs[0]), nil
	})
	r.addStandard(URNLengthPrefix, func(_ []byte, cs []Coder) (Coder, error) {
		if err := arity(URNLengthPrefix, cs, 1); err != nil {
			return nil, err
		}
		return NewLengthPrefix(cs[0]), nil
	})
	r.addStandard(URNWindowedValue, func(_ []byte, cs []Coder) (Coder, error) {
		if err := arity(URNWindowedValue, cs, 2); err != nil {
			return nil, err
		}
		return NewWindowedValue(cs[0], cs[1]), nil
	})
	return r
}

func (r *Registry) addStandard(urn string, f Factory) {
	r.factories[urn] = f
	r.standard[urn] = true
}

func arity(urn string, cs []Coder, want int) error {
	if len(cs) != want {
		return errors.Errorf("coder %v takes %d components, got %d", urn, want, len(cs))
	}
	return nil
}

// Register adds a factory for a custom coder URN. Standard URNs and URNs
// that are already registered are rejected.
func (r *Registry) Register(urn string, f Factory) error {
	if urn == "" || f == nil {
		return errors.New("coder registration needs a urn and a factory")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.standard[urn] {
		return errors.Errorf("cannot replace standard coder %v", urn)
	}
	if _, ok := r.factories[urn]; ok {
		return errors.Errorf("coder %v already registered", urn)
	}
	r.factories[urn] = f
	return nil
}

// New builds the coder for urn. It fails with ErrUnknownCoder if nothing is
// registered for urn.
func (r *Registry) New(urn string, payload []byte, components []Coder) (Coder, error) {
	r.mu.RLock()
	f, ok := r.factories[urn]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrUnknownCoder, "urn %q", urn)
	}
	c, err := f(payload, components)
	if err != nil {
		return nil, errors.WithContextf(err, "building coder %v", urn)
	}
	return c, nil
}

// Known reports whether urn has a registered factory.
func (r *Registry) Known(urn string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[urn]
	return ok
}

var defaultRegistry = NewRegistry()

// Default returns the process wide registry.
func Default() *Registry {
	return defaultRegistry
}

// RegisterCoder adds a custom coder factory to the process wide registry.
// Intended to be called from init functions.
func RegisterCoder(urn string, f Factory) error {
	return defaultRegistry.Register(urn, f)
}

// NewCoder builds a coder from the process wide registry.
func NewCoder(urn string, payload []byte, components []Coder) (Coder, error) {
	return defaultRegistry.New(urn, payload, components)
}
