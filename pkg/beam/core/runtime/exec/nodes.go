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
)

// Discard silently discards all elements. It is implicitly inserted for any
// output that has no consumer in the plan.
type Discard struct {
	// UID is the unit identifier.
	UID UnitID
}

func (d *Discard) ID() UnitID {
	return d.UID
}

func (d *Discard) Up(ctx context.Context) error {
	return nil
}

func (d *Discard) StartBundle(ctx context.Context, id string, data DataContext) error {
	return nil
}

func (d *Discard) ProcessElement(ctx context.Context, value *FullValue) error {
	return nil
}

func (d *Discard) FinishBundle(ctx context.Context) error {
	return nil
}

func (d *Discard) Down(ctx context.Context) error {
	return nil
}

func (d *Discard) String() string {
	return "Discard"
}

// Multiplex is a fan-out node. Every receiver gets every element.
type Multiplex struct {
	// UID is the unit identifier.
	UID UnitID
	// Out is a list of output nodes.
	Out []Node
}

func (m *Multiplex) ID() UnitID {
	return m.UID
}

func (m *Multiplex) Up(ctx context.Context) error {
	return nil
}

func (m *Multiplex) StartBundle(ctx context.Context, id string, data DataContext) error {
	return MultiStartBundle(ctx, id, data, m.Out...)
}

func (m *Multiplex) ProcessElement(ctx context.Context, elm *FullValue) error {
	for _, out := range m.Out {
		if err := out.ProcessElement(ctx, elm); err != nil {
			return err
		}
	}
	return nil
}

func (m *Multiplex) FinishBundle(ctx context.Context) error {
	return MultiFinishBundle(ctx, m.Out...)
}

func (m *Multiplex) Down(ctx context.Context) error {
	return nil
}

func (m *Multiplex) String() string {
	return fmt.Sprintf("Multiplex. Out:%v", IDs(m.Out...))
}

// PCollection counts the elements passing along one edge of the plan.
type PCollection struct {
	UID    UnitID
	PColID string
	Out    Node

	count atomic.Int64
}

// PCollectionSnapshot is the element count of a PCollection in the current
// or last bundle.
type PCollectionSnapshot struct {
	ID           string
	ElementCount int64
}

func (p *PCollection) ID() UnitID {
	return p.UID
}

func (p *PCollection) Up(ctx context.Context) error {
	return nil
}

func (p *PCollection) StartBundle(ctx context.Context, id string, data DataContext) error {
	p.count.Store(0)
	return p.Out.StartBundle(ctx, id, data)
}

func (p *PCollection) ProcessElement(ctx context.Context, elm *FullValue) error {
	p.count.Add(1)
	return p.Out.ProcessElement(ctx, elm)
}

func (p *PCollection) FinishBundle(ctx context.Context) error {
	return p.Out.FinishBundle(ctx)
}

func (p *PCollection) Down(ctx context.Context) error {
	return nil
}

func (p *PCollection) snapshot() PCollectionSnapshot {
	return PCollectionSnapshot{ID: p.PColID, ElementCount: p.count.Load()}
}

func (p *PCollection) String() string {
	return fmt.Sprintf("PCollection[%v] Out:%v", p.PColID, IDs(p.Out))
}
