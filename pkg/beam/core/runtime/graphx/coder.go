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

// Package graphx converts between coders and their model representation
// in a process bundle descriptor.
package graphx

import (
	"fmt"

	pipepb "github.com/apache/beam/sdks/v2/go/pkg/beam/model/pipeline_v1"
	"github.com/beamfn/harness/pkg/beam/core/graph/coder"
	"github.com/beamfn/harness/pkg/beam/internal/errors"
	"google.golang.org/protobuf/proto"
)

// CoderUnmarshaller resolves coder ids of a descriptor to coders, building
// component coders first. Results are memoized per id. Not safe for
// concurrent use.
type CoderUnmarshaller struct {
	reg       *coder.Registry
	models    map[string]*pipepb.Coder
	coders    map[string]coder.Coder
	resolving map[string]bool
}

// NewCoderUnmarshaller returns a CoderUnmarshaller over the model coders m,
// using reg to build each coder. A nil registry means the process default.
func NewCoderUnmarshaller(reg *coder.Registry, m map[string]*pipepb.Coder) *CoderUnmarshaller {
	if reg == nil {
		reg = coder.Default()
	}
	return &CoderUnmarshaller{
		reg:       reg,
		models:    m,
		coders:    make(map[string]coder.Coder),
		resolving: make(map[string]bool),
	}
}

// Coder unmarshals the coder with the given id.
func (b *CoderUnmarshaller) Coder(id string) (coder.Coder, error) {
	if c, ok := b.coders[id]; ok {
		return c, nil
	}
	m, ok := b.models[id]
	if !ok {
		return nil, errors.Errorf("coder with id %v not found", id)
	}
	if b.resolving[id] {
		return nil, errors.Errorf("coder %v refers to itself", id)
	}
	b.resolving[id] = true
	defer delete(b.resolving, id)

	components, err := b.Coders(m.GetComponentCoderIds())
	if err != nil {
		return nil, errors.WithContextf(err, "resolving components of coder %v", id)
	}
	c, err := b.reg.New(m.GetSpec().GetUrn(), m.GetSpec().GetPayload(), components)
	if err != nil {
		return nil, errors.WithContextf(err, "resolving coder %v", id)
	}
	b.coders[id] = c
	return c, nil
}

// Coders unmarshals the coders with the given ids, in order.
func (b *CoderUnmarshaller) Coders(ids []string) ([]coder.Coder, error) {
	var ret []coder.Coder
	for _, id := range ids {
		c, err := b.Coder(id)
		if err != nil {
			return nil, err
		}
		ret = append(ret, c)
	}
	return ret, nil
}

// PayloadCoder is implemented by custom coders whose model form carries a
// payload, such as a schema.
type PayloadCoder interface {
	coder.Coder
	Payload() []byte
}

// CoderMarshaller builds a compact model representation of a set of coders.
// Identical coders share an id. It is the inverse of CoderUnmarshaller and
// is used to assemble bundle descriptors outside a runner, as tests do.
type CoderMarshaller struct {
	coders   map[string]*pipepb.Coder
	coder2id map[string]string
}

// NewCoderMarshaller returns a new CoderMarshaller.
func NewCoderMarshaller() *CoderMarshaller {
	return &CoderMarshaller{
		coders:   make(map[string]*pipepb.Coder),
		coder2id: make(map[string]string),
	}
}

// Add adds the given coder and its components and returns its id.
// Idempotent.
func (b *CoderMarshaller) Add(c coder.Coder) string {
	var comps []coder.Coder
	switch c := c.(type) {
	case *coder.NullableCoder:
		comps = []coder.Coder{c.Elem}
	case *coder.KVCoder:
		comps = []coder.Coder{c.Key, c.Value}
	case *coder.IterableCoder:
		comps = []coder.Coder{c.Elem}
	case *coder.LengthPrefixCoder:
		comps = []coder.Coder{c.Elem}
	case *coder.WindowedValueCoder:
		comps = []coder.Coder{c.Elem, c.Window}
	}
	var ids []string
	for _, comp := range comps {
		ids = append(ids, b.Add(comp))
	}
	m := &pipepb.Coder{
		Spec:              &pipepb.FunctionSpec{Urn: c.URN()},
		ComponentCoderIds: ids,
	}
	if pc, ok := c.(PayloadCoder); ok {
		m.Spec.Payload = pc.Payload()
	}
	return b.intern(m)
}

// Build returns the model coders by id, including every component.
func (b *CoderMarshaller) Build() map[string]*pipepb.Coder {
	return b.coders
}

func (b *CoderMarshaller) intern(m *pipepb.Coder) string {
	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(m)
	if err != nil {
		panic(fmt.Sprintf("failed to marshal coder %v: %v", m, err))
	}
	key := string(data)
	if id, ok := b.coder2id[key]; ok {
		return id
	}
	id := fmt.Sprintf("c%v", len(b.coder2id))
	b.coder2id[key] = id
	b.coders[id] = m
	return id
}
