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


// Package exec contains runtime plan representation and execution. A bundle
// descriptor is compiled once into a PlanTemplate, which instantiates plans
// that each process bundles serially.
package exec

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/beamfn/harness/pkg/beam/internal/errors"
	"github.com/beamfn/harness/pkg/beam/log"
)

// Plan represents the bundle execution plan. A plan can be used to process
// multiple bundles serially, until a bundle fails.
type Plan struct {
	id      string // id of the bundle descriptor for this plan
	roots   []Root
	units   []Unit // leaves first
	pcols   []*PCollection
	sources []*DataSource

	status atomic.Int32
	state  atomic.Int32
}

// NewPlan returns a new bundle execution plan from the given units, listed
// leaves first.
func NewPlan(id string, units []Unit) (*Plan, error) {
	p := &Plan{id: id, units: units}
	for _, u := range units {
		if u == nil {
			return nil, errors.Errorf("no <nil> units")
		}
		if r, ok := u.(Root); ok {
			p.roots = append(p.roots, r)
		}
		if s, ok := u.(*DataSource); ok {
			p.sources = append(p.sources, s)
		}
		if pc, ok := u.(*PCollection); ok {
			p.pcols = append(p.pcols, pc)
		}
	}
	if len(p.roots) == 0 {
		return nil, errors.Errorf("no root units")
	}
	p.setStatus(Initializing)
	p.setState(Created)
	return p, nil
}

func (p *Plan) getStatus() Status {
	return Status(p.status.Load())
}

func (p *Plan) setStatus(s Status) {
	p.status.Store(int32(s))
}

func (p *Plan) setState(s BundleState) {
	p.state.Store(int32(s))
}

// ID returns the plan identifier.
func (p *Plan) ID() string {
	return p.id
}

// Status returns the lifecycle status of the plan.
func (p *Plan) Status() Status {
	return p.getStatus()
}

// State returns the state of the current or last bundle.
func (p *Plan) State() BundleState {
	return BundleState(p.state.Load())
}

// Execute executes the plan with the given data context and bundle id. Units
// are brought up on the first execution. If a bundle fails or its context is
// cancelled, the plan is torn down and cannot be reused for further bundles.
// Does not panic. Blocking.
func (p *Plan) Execute(ctx context.Context, id string, manager DataContext) error {
	if p.getStatus() == Initializing {
		for _, u := range p.units {
			if err := callNoPanic(ctx, u.Up); err != nil {
				return p.fail(ctx, errors.Wrapf(err, "while executing Up for %v", p))
			}
		}
		p.setStatus(Up)
	}
	if s := p.getStatus(); s != Up {
		return errors.Errorf("invalid status for plan %v: %v", p.id, s)
	}

	// Process bundle. If there are any kinds of failures, we bail and mark the plan broken.

	p.setStatus(Active)
	p.setState(Created)
	for _, root := range p.roots {
		if err := callNoPanic(ctx, func(ctx context.Context) error { return root.StartBundle(ctx, id, manager) }); err != nil {
			return p.fail(ctx, errors.Wrapf(err, "while executing StartBundle for %v", p))
		}
	}
	p.setState(Started)

	p.setState(Processing)
	for _, root := range p.roots {
		if err := callNoPanic(ctx, root.Process); err != nil {
			return p.fail(ctx, errors.Wrapf(err, "while executing Process for %v", p))
		}
		if err := ctx.Err(); err != nil {
			return p.fail(ctx, errors.Wrapf(err, "bundle %v cancelled", id))
		}
	}

	p.setState(Finishing)
	for _, root := range p.roots {
		if err := callNoPanic(ctx, root.FinishBundle); err != nil {
			return p.fail(ctx, errors.Wrapf(err, "while executing FinishBundle for %v", p))
		}
	}
	if err := ctx.Err(); err != nil {
		return p.fail(ctx, errors.Wrapf(err, "bundle %v cancelled", id))
	}
	p.setState(Completed)
	p.setStatus(Up)
	return nil
}

// fail tears the plan down after a failed bundle and returns err. Teardown
// errors are logged, never returned.
func (p *Plan) fail(ctx context.Context, err error) error {
	p.setState(Finishing)
	p.setStatus(Broken)
	for _, u := range p.units {
		if derr := callNoPanic(ctx, u.Down); derr != nil {
			log.Warnf(ctx, "teardown of %v after failure: %v", u.ID(), derr)
		}
	}
	p.setState(Failed)
	return err
}

// Down takes the plan and its units down. Does not panic.
func (p *Plan) Down(ctx context.Context) error {
	if p.getStatus() == Down {
		return nil // ok: already down
	}
	p.setStatus(Down)

	var errs []error
	for _, u := range p.units {
		if err := callNoPanic(ctx, u.Down); err != nil {
			errs = append(errs, err)
		}
	}

	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errors.Wrapf(errs[0], "plan %v failed", p.id)
	default:
		return errors.Errorf("plan %v failed with multiple errors: %v", p.id, errs)
	}
}

// Snapshot returns the element counts of every PCollection of the plan in
// the current or last bundle.
func (p *Plan) Snapshot() []PCollectionSnapshot {
	var ret []PCollectionSnapshot
	for _, pc := range p.pcols {
		ret = append(ret, pc.snapshot())
	}
	return ret
}

// Progress returns the read progress of every DataSource of the plan.
func (p *Plan) Progress() []ProgressReportSnapshot {
	var ret []ProgressReportSnapshot
	for _, s := range p.sources {
		ret = append(ret, s.Progress())
	}
	return ret
}

func (p *Plan) String() string {
	var units []string
	for _, u := range p.units {
		units = append(units, fmt.Sprintf("%v: %v", u.ID(), u))
	}
	return fmt.Sprintf("Plan[%v]:\n%v", p.ID(), strings.Join(units, "\n"))
}
