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


package harness

import (
	"context"
	"sync"

	fnpb "github.com/apache/beam/sdks/v2/go/pkg/beam/model/fnexecution_v1"
	"github.com/beamfn/harness/pkg/beam/core/runtime/exec"
	"github.com/beamfn/harness/pkg/beam/internal/errors"
	"github.com/beamfn/harness/pkg/beam/log"
	"golang.org/x/sync/singleflight"
)

type bundleDescriptorID string
type instructionID string

// BundleInstruction asks for one bundle to be processed with the plan of a
// bundle descriptor.
type BundleInstruction struct {
	InstructionID string
	DescriptorID  string
}

// BundleResult is the outcome of a processed bundle.
type BundleResult struct {
	InstructionID string
	DescriptorID  string
	// State is Completed on success and Failed otherwise.
	State exec.BundleState
	Err   error
	// Counts holds the element count of each PCollection of the bundle.
	Counts []exec.PCollectionSnapshot
	// Progress holds the read progress of each data source of the bundle.
	Progress []exec.ProgressReportSnapshot
}

// Reporter is notified of the result of every processed bundle.
type Reporter interface {
	Report(ctx context.Context, res BundleResult)
}

// ReporterFunc adapts a function to a Reporter.
type ReporterFunc func(ctx context.Context, res BundleResult)

func (f ReporterFunc) Report(ctx context.Context, res BundleResult) {
	f(ctx, res)
}

// DescriptorLookup fetches a bundle descriptor that was not registered.
type DescriptorLookup func(ctx context.Context, id string) (*fnpb.ProcessBundleDescriptor, error)

type activeBundle struct {
	plan   *exec.Plan
	cancel context.CancelFunc
}

// BundleProcessor runs bundles. Plan templates are compiled once per
// descriptor and instantiated into plans that are pooled for reuse. Bundles
// run concurrently on independent plans. Thread-safe.
type BundleProcessor struct {
	data     *DataChannelManager
	reporter Reporter
	lookup   DescriptorLookup
	compile  func(*fnpb.ProcessBundleDescriptor) (*exec.PlanTemplate, error)

	building singleflight.Group

	mu          sync.Mutex
	descriptors map[bundleDescriptorID]*fnpb.ProcessBundleDescriptor
	templates   map[bundleDescriptorID]*exec.PlanTemplate
	// plans that are candidates for execution.
	plans map[bundleDescriptorID][]*exec.Plan
	// plans that are actively being executed.
	// a plan can only be in one of these maps at any time.
	active map[instructionID]*activeBundle
	// instructions that have failed during execution
	failed failedInstructions
	// down is set once the processor is torn down.
	down bool
}

// failedInstructions keeps the errors of a bounded number of recently
// failed instructions.
type failedInstructions struct {
	errs  map[instructionID]error
	order []instructionID
}

const failedInstructionsCap = 128

func (f *failedInstructions) add(id instructionID, err error) {
	if f.errs == nil {
		f.errs = make(map[instructionID]error)
	}
	if _, ok := f.errs[id]; !ok {
		if len(f.order) >= failedInstructionsCap {
			delete(f.errs, f.order[0])
			f.order = f.order[1:]
		}
		f.order = append(f.order, id)
	}
	f.errs[id] = err
}

func (f *failedInstructions) get(id instructionID) error {
	return f.errs[id]
}

// NewBundleProcessor returns a processor reading and writing data through the
// given manager. The lookup and the reporter may be nil.
func NewBundleProcessor(data *DataChannelManager, lookup DescriptorLookup, reporter Reporter) *BundleProcessor {
	if reporter == nil {
		reporter = ReporterFunc(func(context.Context, BundleResult) {})
	}
	return &BundleProcessor{
		data:        data,
		reporter:    reporter,
		lookup:      lookup,
		compile:     exec.CompilePlan,
		descriptors: make(map[bundleDescriptorID]*fnpb.ProcessBundleDescriptor),
		templates:   make(map[bundleDescriptorID]*exec.PlanTemplate),
		plans:       make(map[bundleDescriptorID][]*exec.Plan),
		active:      make(map[instructionID]*activeBundle),
	}
}

// Register adds bundle descriptors. A descriptor id that is already
// registered keeps its first descriptor.
func (p *BundleProcessor) Register(descs ...*fnpb.ProcessBundleDescriptor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, desc := range descs {
		id := bundleDescriptorID(desc.GetId())
		if _, ok := p.descriptors[id]; !ok {
			p.descriptors[id] = desc
		}
	}
}

func (p *BundleProcessor) descriptor(ctx context.Context, id bundleDescriptorID) (*fnpb.ProcessBundleDescriptor, error) {
	p.mu.Lock()
	desc, ok := p.descriptors[id]
	p.mu.Unlock()
	if ok {
		return desc, nil
	}
	if p.lookup == nil {
		return nil, errors.Errorf("bundle descriptor %v not registered", id)
	}
	desc, err := p.lookup(ctx, string(id)) // Unlocked to make the lookup.
	if err != nil {
		return nil, errors.WithContextf(err, "looking up bundle descriptor %v", id)
	}
	if desc.GetId() == "" {
		desc.Id = string(id)
	}
	p.Register(desc)
	return desc, nil
}

// template returns the plan template of the descriptor. Concurrent calls for
// a descriptor without a template share a single compilation.
func (p *BundleProcessor) template(ctx context.Context, id bundleDescriptorID) (*exec.PlanTemplate, error) {
	p.mu.Lock()
	t, ok := p.templates[id]
	p.mu.Unlock()
	if ok {
		return t, nil
	}

	v, err, _ := p.building.Do(string(id), func() (any, error) {
		p.mu.Lock()
		t, ok := p.templates[id]
		p.mu.Unlock()
		if ok {
			return t, nil
		}

		desc, err := p.descriptor(ctx, id)
		if err != nil {
			return nil, err
		}
		t, err = p.compile(desc)
		if err != nil {
			return nil, errors.WithContextf(err, "invalid bundle descriptor %v", id)
		}
		p.mu.Lock()
		p.templates[id] = t
		p.mu.Unlock()
		log.Debugf(ctx, "compiled %v", t)
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*exec.PlanTemplate), nil
}

func (p *BundleProcessor) getOrCreatePlan(ctx context.Context, id bundleDescriptorID) (*exec.Plan, error) {
	p.mu.Lock()
	if plans := p.plans[id]; len(plans) > 0 {
		plan := plans[len(plans)-1]
		p.plans[id] = plans[:len(plans)-1]
		p.mu.Unlock()
		return plan, nil
	}
	p.mu.Unlock()

	t, err := p.template(ctx, id)
	if err != nil {
		return nil, err
	}
	return t.Instantiate()
}

// ProcessBundle executes one bundle and reports its result. It blocks until
// the bundle has completed or failed.
func (p *BundleProcessor) ProcessBundle(ctx context.Context, inst BundleInstruction) BundleResult {
	instID := instructionID(inst.InstructionID)
	bdID := bundleDescriptorID(inst.DescriptorID)
	ctx = log.WithInstruction(ctx, inst.InstructionID)

	res := BundleResult{InstructionID: inst.InstructionID, DescriptorID: inst.DescriptorID, State: exec.Failed}

	plan, err := p.getOrCreatePlan(ctx, bdID)
	if err != nil {
		res.Err = err
		p.finish(ctx, instID, res)
		return res
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Make the plan active.
	p.mu.Lock()
	if _, ok := p.active[instID]; ok {
		p.mu.Unlock()
		res.Err = errors.Errorf("instruction %v already active", instID)
		p.release(bdID, plan)
		p.finish(ctx, instID, res)
		return res
	}
	p.active[instID] = &activeBundle{plan: plan, cancel: cancel}
	p.mu.Unlock()

	data := NewScopedDataManager(p.data, instID)
	err = plan.Execute(ctx, inst.InstructionID, exec.DataContext{Data: data})
	data.Close()

	res.State = plan.State()
	res.Counts = plan.Snapshot()
	res.Progress = plan.Progress()
	if err != nil {
		res.State = exec.Failed
		res.Err = errors.WithContextf(err, "process bundle failed for instruction %v using plan %v", instID, bdID)
	}

	p.mu.Lock()
	delete(p.active, instID)
	p.mu.Unlock()
	p.release(bdID, plan)

	p.finish(ctx, instID, res)
	return res
}

// release returns a plan to the idle pool. Broken plans were already torn
// down and are dropped. Once the processor is down, plans are torn down
// instead.
func (p *BundleProcessor) release(id bundleDescriptorID, plan *exec.Plan) {
	if plan.Status() == exec.Broken {
		return
	}
	p.mu.Lock()
	if !p.down {
		p.plans[id] = append(p.plans[id], plan)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	if err := plan.Down(context.Background()); err != nil {
		log.Warnf(context.Background(), "tearing down plan %v: %v", id, err)
	}
}

// Down tears down every idle plan. Plans of bundles still running are torn
// down when their bundle ends.
func (p *BundleProcessor) Down(ctx context.Context) error {
	p.mu.Lock()
	p.down = true
	pools := p.plans
	p.plans = make(map[bundleDescriptorID][]*exec.Plan)
	p.mu.Unlock()

	var errs []error
	for id, plans := range pools {
		for _, plan := range plans {
			if err := plan.Down(ctx); err != nil {
				log.Warnf(ctx, "tearing down plan %v: %v", id, err)
				errs = append(errs, err)
			}
		}
	}
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return errors.Errorf("%d plans failed teardown: %v", len(errs), errs)
	}
}

func (p *BundleProcessor) finish(ctx context.Context, instID instructionID, res BundleResult) {
	if res.Err != nil {
		p.mu.Lock()
		p.failed.add(instID, res.Err)
		p.mu.Unlock()
	}
	p.reporter.Report(ctx, res)
}

// Cancel cancels the active bundle of the given instruction. The bundle ends
// Failed and releases any blocked data channel call.
func (p *BundleProcessor) Cancel(instID string) error {
	p.mu.Lock()
	b, ok := p.active[instructionID(instID)]
	p.mu.Unlock()
	if !ok {
		return errors.Errorf("instruction %v not active", instID)
	}
	b.cancel()
	return nil
}

// activePlan returns the plan executing the given instruction.
func (p *BundleProcessor) activePlan(instID instructionID) (*exec.Plan, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failed.get(instID); err != nil {
		return nil, errors.Wrapf(err, "instruction %v failed", instID)
	}
	b, ok := p.active[instID]
	if !ok {
		return nil, errors.Errorf("instruction %v not active", instID)
	}
	return b.plan, nil
}
