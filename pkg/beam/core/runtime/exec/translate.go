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
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	fnpb "github.com/apache/beam/sdks/v2/go/pkg/beam/model/fnexecution_v1"
	pipepb "github.com/apache/beam/sdks/v2/go/pkg/beam/model/pipeline_v1"
	"github.com/beamfn/harness/pkg/beam/core/graph/coder"
	"github.com/beamfn/harness/pkg/beam/core/runtime/graphx"
	"github.com/beamfn/harness/pkg/beam/internal/errors"
	"google.golang.org/protobuf/proto"
)

const (
	URNDataSource = "beam:runner:source:v1"
	URNDataSink   = "beam:runner:sink:v1"
	URNImpulse    = "beam:transform:impulse:v1"
	URNParDo      = "beam:transform:pardo:v1"
	URNGBK        = "beam:transform:group_by_key:v1"
	URNFlatten    = "beam:transform:flatten:v1"
	URNCreate     = "create"

	URNLegacyParDo   = "beam:beam:pardo:v1"
	URNLegacyGBK     = "beam:beam:group_by_key:v1"
	URNLegacyFlatten = "beam:beam:flatten:v1"

	// URNTolerantAnnotation marks a ParDo whose per-element failures are
	// logged and skipped instead of failing the bundle.
	URNTolerantAnnotation = "beam:annotation:tolerant:v1"
)

// ErrUnknownTransform is returned when no operator is registered for a
// transform URN.
var ErrUnknownTransform = errors.New("unknown transform urn")

// UnitMaker creates a fresh unit for one plan, given the nodes its ordered
// outputs are wired to. It must be safe to call concurrently.
type UnitMaker func(uid UnitID, out []Node) (Unit, error)

// TransformMaker validates a transform once per descriptor and returns the
// maker of its units.
type TransformMaker func(tc *TransformContext) (UnitMaker, error)

var (
	transformsMu sync.RWMutex
	transforms   = make(map[string]TransformMaker)
)

// RegisterTransform registers the operator for the given transform URN,
// replacing any previous registration. Expected to be called during init.
func RegisterTransform(urn string, maker TransformMaker) {
	transformsMu.Lock()
	defer transformsMu.Unlock()
	transforms[urn] = maker
}

func lookupTransform(urn string) (TransformMaker, bool) {
	transformsMu.RLock()
	defer transformsMu.RUnlock()
	m, ok := transforms[urn]
	return m, ok
}

// TransformContext is the construction view of a single primitive transform.
type TransformContext struct {
	ID        string
	Transform *pipepb.PTransform
	// Inputs and Outputs are the PCollection ids in local name order.
	Inputs  []string
	Outputs []string

	pcols  map[string]coder.Coder
	coders *graphx.CoderUnmarshaller
}

// URN returns the transform URN.
func (tc *TransformContext) URN() string {
	return tc.Transform.GetSpec().GetUrn()
}

// Payload returns the transform payload.
func (tc *TransformContext) Payload() []byte {
	return tc.Transform.GetSpec().GetPayload()
}

// InputCoder returns the coder of the i'th input PCollection.
func (tc *TransformContext) InputCoder(i int) coder.Coder {
	return tc.pcols[tc.Inputs[i]]
}

// OutputCoder returns the coder of the i'th output PCollection.
func (tc *TransformContext) OutputCoder(i int) coder.Coder {
	return tc.pcols[tc.Outputs[i]]
}

// Coder resolves a coder of the descriptor by id.
func (tc *TransformContext) Coder(id string) (coder.Coder, error) {
	return tc.coders.Coder(id)
}

// Annotation reports whether the transform carries the given annotation.
func (tc *TransformContext) Annotation(key string) bool {
	_, ok := tc.Transform.GetAnnotations()[key]
	return ok
}

// PlanTemplate is a validated bundle descriptor. It is immutable and
// instantiates any number of independent plans.
type PlanTemplate struct {
	id    string
	order []string // topological order of primitive transforms

	transforms map[string]*pipepb.PTransform
	makers     map[string]UnitMaker
	inputs     map[string][]string

	prev map[string]int      // PCollectionID -> #incoming
	succ map[string][]string // PCollectionID -> consuming transform ids
}

// CompilePlan validates the descriptor and resolves the operator of every
// primitive transform and the coder of every PCollection it touches.
func CompilePlan(desc *fnpb.ProcessBundleDescriptor) (*PlanTemplate, error) {
	return CompilePlanWithRegistry(desc, nil)
}

// CompilePlanWithRegistry is CompilePlan with coders resolved against the
// given registry. A nil registry means the default one.
func CompilePlanWithRegistry(desc *fnpb.ProcessBundleDescriptor, reg *coder.Registry) (*PlanTemplate, error) {
	t := &PlanTemplate{
		id:         desc.GetId(),
		transforms: make(map[string]*pipepb.PTransform),
		makers:     make(map[string]UnitMaker),
		inputs:     make(map[string][]string),
		prev:       make(map[string]int),
		succ:       make(map[string][]string),
	}
	coders := graphx.NewCoderUnmarshaller(reg, desc.GetCoders())
	pcols := make(map[string]coder.Coder)

	var ids []string
	for id, transform := range desc.GetTransforms() {
		if len(transform.GetSubtransforms()) > 0 {
			continue // ignore composites
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		transform := desc.GetTransforms()[id]
		in := unmarshalKeyedValues(transform.GetInputs())
		out := unmarshalKeyedValues(transform.GetOutputs())
		for _, pid := range append(append([]string(nil), in...), out...) {
			if _, ok := pcols[pid]; ok {
				continue
			}
			col, ok := desc.GetPcollections()[pid]
			if !ok {
				return nil, errors.Errorf("pcollection %v of transform %v not found", pid, id)
			}
			c, err := coders.Coder(col.GetCoderId())
			if err != nil {
				return nil, errors.Wrapf(err, "invalid coder for pcollection %v", pid)
			}
			pcols[pid] = c
		}
		for _, pid := range out {
			t.prev[pid]++
		}
		urn := transform.GetSpec().GetUrn()
		for i, pid := range in {
			// Only the main input and Flatten inputs carry elements.
			if i == 0 || isFlatten(urn) {
				t.succ[pid] = append(t.succ[pid], id)
			}
		}
		t.transforms[id] = transform
		t.inputs[id] = in
	}

	order, err := topoSort(ids, t.inputs, t.transforms)
	if err != nil {
		return nil, err
	}
	t.order = order

	for _, id := range order {
		transform := t.transforms[id]
		urn := transform.GetSpec().GetUrn()
		maker, ok := lookupTransform(urn)
		if !ok {
			return nil, errors.Wrapf(ErrUnknownTransform, "transform %v: %v", id, urn)
		}
		tc := &TransformContext{
			ID:        id,
			Transform: transform,
			Inputs:    t.inputs[id],
			Outputs:   unmarshalKeyedValues(transform.GetOutputs()),
			pcols:     pcols,
			coders:    coders,
		}
		um, err := maker(tc)
		if err != nil {
			return nil, errors.WithContextf(err, "building transform %v (%v)", id, urn)
		}
		t.makers[id] = um
	}
	if len(order) == 0 {
		return nil, errors.Errorf("descriptor %v has no primitive transforms", t.id)
	}
	return t, nil
}

func isFlatten(urn string) bool {
	return urn == URNFlatten || urn == URNLegacyFlatten
}

// topoSort orders the transforms with Kahn's algorithm over the PCollection
// edges. Ties are broken by transform id so construction is deterministic.
func topoSort(ids []string, inputs map[string][]string, transforms map[string]*pipepb.PTransform) ([]string, error) {
	producers := make(map[string][]string) // PCollectionID -> transform ids
	for _, id := range ids {
		for _, pid := range transforms[id].GetOutputs() {
			producers[pid] = append(producers[pid], id)
		}
	}
	indegree := make(map[string]int)
	next := make(map[string][]string)
	for _, id := range ids {
		for _, pid := range inputs[id] {
			ps, ok := producers[pid]
			if !ok {
				return nil, errors.Errorf("input %v of transform %v has no producer", pid, id)
			}
			for _, p := range ps {
				indegree[id]++
				next[p] = append(next[p], id)
			}
		}
	}

	var ready, order []string
	for _, id := range ids {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	for len(ready) > 0 {
		sort.Strings(ready)
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, n := range next[id] {
			indegree[n]--
			if indegree[n] == 0 {
				ready = append(ready, n)
			}
		}
	}
	if len(order) != len(ids) {
		var cyclic []string
		for _, id := range ids {
			if indegree[id] > 0 {
				cyclic = append(cyclic, id)
			}
		}
		return nil, errors.Errorf("transforms form a cycle: %v", cyclic)
	}
	return order, nil
}

// ID returns the descriptor id of the template.
func (t *PlanTemplate) ID() string {
	return t.id
}

func (t *PlanTemplate) String() string {
	return fmt.Sprintf("PlanTemplate[%v]: %v", t.id, strings.Join(t.order, " -> "))
}

// Instantiate builds a fresh, independent plan.
func (t *PlanTemplate) Instantiate() (*Plan, error) {
	b := &builder{
		t:     t,
		nodes: make(map[string]*PCollection),
		links: make(map[string]Node),
		idgen: &GenID{},
	}
	for _, id := range t.order {
		if len(t.inputs[id]) > 0 {
			continue
		}
		u, err := b.makeUnit(id)
		if err != nil {
			return nil, err
		}
		if _, ok := u.(Root); !ok {
			return nil, errors.Errorf("transform %v has no inputs but is not a root: %v", id, u)
		}
	}
	return NewPlan(t.id, b.units)
}

type builder struct {
	t *PlanTemplate

	nodes map[string]*PCollection // PCollectionID -> Node (cache)
	links map[string]Node         // TransformID -> Node (cache)

	units []Unit // result, leaves first
	idgen *GenID
}

func (b *builder) makeUnit(id string) (Unit, error) {
	transform := b.t.transforms[id]
	out, err := b.makePCollections(unmarshalKeyedValues(transform.GetOutputs()))
	if err != nil {
		return nil, err
	}
	u, err := b.t.makers[id](b.idgen.New(), out)
	if err != nil {
		return nil, errors.WithContextf(err, "instantiating transform %v", id)
	}
	b.units = append(b.units, u)
	return u, nil
}

func (b *builder) makePCollections(out []string) ([]Node, error) {
	var ret []Node
	for _, o := range out {
		n, err := b.makePCollection(o)
		if err != nil {
			return nil, err
		}
		ret = append(ret, n)
	}
	return ret, nil
}

func (b *builder) makePCollection(id string) (*PCollection, error) {
	if n, exists := b.nodes[id]; exists {
		return n, nil
	}

	list := b.t.succ[id]

	var u Node
	switch len(list) {
	case 0:
		// Discard.

		u = &Discard{UID: b.idgen.New()}
		b.units = append(b.units, u)

	case 1:
		out, err := b.makeLink(list[0])
		if err != nil {
			return nil, err
		}
		u = out

	default:
		// Multiplex.

		var out []Node
		for _, to := range list {
			n, err := b.makeLink(to)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		u = &Multiplex{UID: b.idgen.New(), Out: out}
		b.units = append(b.units, u)
	}

	if count := b.t.prev[id]; count > 1 {
		// Guard node with Flatten, if needed.

		u = &Flatten{UID: b.idgen.New(), N: count, Out: u}
		b.units = append(b.units, u)
	}

	p := &PCollection{UID: b.idgen.New(), PColID: id, Out: u}
	b.nodes[id] = p
	b.units = append(b.units, p)
	return p, nil
}

func (b *builder) makeLink(to string) (Node, error) {
	if n, ok := b.links[to]; ok {
		return n, nil
	}
	u, err := b.makeUnit(to)
	if err != nil {
		return nil, err
	}
	n, ok := u.(Node)
	if !ok {
		return nil, errors.Errorf("transform %v consumes input but is not a node: %v", to, u)
	}
	b.links[to] = n
	return n, nil
}

// unmarshalKeyedValues orders the values of a local name map. Names of the
// form "iN" or "oN" are placed at position N; the rest fill the remaining
// positions in name order.
func unmarshalKeyedValues(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}

	ordered := make(map[int]string)
	var unordered []string

	for key := range m {
		if i, err := localIndex(key); err == nil && i < len(m) {
			if _, dup := ordered[i]; !dup {
				ordered[i] = key
				continue
			}
		}
		unordered = append(unordered, key)
	}
	sort.Strings(unordered)

	ret := make([]string, len(m))
	k := 0
	for i := 0; i < len(ret); i++ {
		if key, ok := ordered[i]; ok {
			ret[i] = m[key]
		} else {
			ret[i] = m[unordered[k]]
			k++
		}
	}
	return ret
}

// localIndex converts a local input or output name such as "i2" or "o0"
// into its index.
func localIndex(key string) (int, error) {
	if len(key) < 2 || (key[0] != 'i' && key[0] != 'o') {
		return 0, errors.Errorf("invalid local name: %v", key)
	}
	return strconv.Atoi(key[1:])
}

func unmarshalPort(data []byte) (Port, string, error) {
	var port fnpb.RemoteGrpcPort
	if err := proto.Unmarshal(data, &port); err != nil {
		return Port{}, "", err
	}
	return Port{
		URL: port.GetApiServiceDescriptor().GetUrl(),
	}, port.GetCoderId(), nil
}

// elementCoder strips a windowed value coder down to its element coder.
func elementCoder(c coder.Coder) coder.Coder {
	if wc, ok := c.(*coder.WindowedValueCoder); ok {
		return wc.Elem
	}
	return c
}
