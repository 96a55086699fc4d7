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


// Package harness implements the SDK side of the Beam FnAPI: the control
// loop, bundle processing and the data channels to the runner.
package harness

import (
	"context"
	"fmt"
	"io"
	"sync"

	fnpb "github.com/apache/beam/sdks/v2/go/pkg/beam/model/fnexecution_v1"
	_ "github.com/beamfn/harness/pkg/beam/core/runtime/coderx" // Registers the custom coders.
	"github.com/beamfn/harness/pkg/beam/internal/errors"
	"github.com/beamfn/harness/pkg/beam/log"
	"github.com/beamfn/harness/pkg/beam/util/grpcx"
	"github.com/beamfn/harness/pkg/beam/util/harnessopts"
	"golang.org/x/sync/errgroup"
	"google.golang.org/protobuf/encoding/prototext"
)

// Main is the main entrypoint for the harness. It is a FnAPI client and
// ultimately responsible for correctly executing the bundles the runner
// sends. It returns when the control stream ends.
func Main(ctx context.Context, opts harnessopts.Options) error {
	if err := opts.Validate(); err != nil {
		return errors.WithContext(err, "invalid harness options")
	}
	ctx = grpcx.WriteWorkerID(ctx, opts.WorkerID)

	// Connect to FnAPI control server. Receive and execute work.
	log.Infof(ctx, "Connecting via grpc @ %s ...", opts.ControlEndpoint)
	conn, err := grpcx.Dial(ctx, opts.ControlEndpoint, opts.DialTimeout)
	if err != nil {
		return errors.Wrap(err, "failed to connect")
	}
	defer conn.Close()

	return serve(ctx, fnpb.NewBeamFnControlClient(conn), opts)
}

func serve(ctx context.Context, client fnpb.BeamFnControlClient, opts harnessopts.Options) error {
	g, gctx := errgroup.WithContext(ctx)

	stub, err := client.Control(gctx)
	if err != nil {
		return errors.Wrapf(err, "failed to connect to control service")
	}
	log.Debugf(ctx, "Successfully connected to control @ %v", opts.ControlEndpoint)

	lookupDesc := func(ctx context.Context, id string) (*fnpb.ProcessBundleDescriptor, error) {
		pbd, err := client.GetProcessBundleDescriptor(ctx, &fnpb.GetProcessBundleDescriptorRequest{ProcessBundleDescriptorId: id})
		log.Debugf(ctx, "GPBD RESP [%v]: %v, err %v", id, pbd, err)
		return pbd, err
	}
	data := &DataChannelManager{ChunkSize: opts.ChunkSize, ReadBuffer: opts.ReadBuffer}
	ctrl := &control{
		bundles:  NewBundleProcessor(data, lookupDesc, ReporterFunc(logResult)),
		monitors: newShortIDCache(),
	}

	respc := make(chan *fnpb.InstructionResponse, 100)
	recvDone := make(chan struct{})
	respond := func(resp *fnpb.InstructionResponse) {
		select {
		case respc <- resp:
		case <-recvDone:
			log.Warnf(ctx, "control stream closed; dropping response for %v", resp.GetInstructionId())
		case <-gctx.Done():
		}
	}

	// gRPC requires all writers to a stream be the same goroutine, so this is the
	// goroutine for managing responses back to the control service.
	g.Go(func() error {
		send := func(resp *fnpb.InstructionResponse) error {
			log.Debugf(ctx, "RESP: %v", prototext.Format(resp))
			if err := stub.Send(resp); err != nil {
				return errors.Wrap(err, "control.Send: failed to respond")
			}
			return nil
		}
		for {
			select {
			case resp := <-respc:
				if err := send(resp); err != nil {
					return err
				}
			case <-recvDone:
				for {
					select {
					case resp := <-respc:
						if err := send(resp); err != nil {
							return err
						}
					default:
						log.Debugf(ctx, "control response channel closed")
						return nil
					}
				}
			case <-gctx.Done():
				return nil
			}
		}
	})

	// gRPC requires all readers of a stream be the same goroutine, so this goroutine
	// is responsible for managing the network data. All it does is pull data from
	// the stream, and hand off bundles to goroutines to actually be handled,
	// so as to avoid blocking the underlying network channel.
	var inflight sync.WaitGroup
	g.Go(func() error {
		defer close(recvDone)
		for {
			req, err := stub.Recv()
			if err != nil {
				if err == io.EOF || gctx.Err() != nil {
					return nil
				}
				return errors.Wrapf(err, "control.Recv failed")
			}
			log.Debugf(ctx, "RECV: %v", prototext.Format(req))

			if req.GetProcessBundle() != nil {
				inflight.Add(1)
				go func() {
					defer inflight.Done()
					respond(ctrl.handleInstruction(gctx, req))
				}()
				continue
			}
			respond(ctrl.handleInstruction(gctx, req))
		}
	})

	err = g.Wait()
	// gctx is done, which cancels the bundles still running.
	inflight.Wait()
	if derr := ctrl.bundles.Down(context.WithoutCancel(ctx)); derr != nil {
		log.Warnf(ctx, "tearing down idle plans: %v", derr)
	}
	return err
}

func logResult(ctx context.Context, res BundleResult) {
	log.Debugf(ctx, "bundle %v of %v ended %v", res.InstructionID, res.DescriptorID, res.State)
}

type control struct {
	bundles  *BundleProcessor
	monitors *shortIDCache
}

func (c *control) handleInstruction(ctx context.Context, req *fnpb.InstructionRequest) *fnpb.InstructionResponse {
	instID := instructionID(req.GetInstructionId())
	ctx = log.WithInstruction(ctx, string(instID))

	switch {
	case req.GetRegister() != nil:
		msg := req.GetRegister()
		c.bundles.Register(msg.GetProcessBundleDescriptor()...)

		return &fnpb.InstructionResponse{
			InstructionId: string(instID),
			Response: &fnpb.InstructionResponse_Register{
				Register: &fnpb.RegisterResponse{},
			},
		}

	case req.GetProcessBundle() != nil:
		msg := req.GetProcessBundle()
		log.Debugf(ctx, "PB [%v]: %v", instID, msg)

		res := c.bundles.ProcessBundle(ctx, BundleInstruction{
			InstructionID: string(instID),
			DescriptorID:  msg.GetProcessBundleDescriptorId(),
		})
		if res.Err != nil {
			return fail(ctx, instID, "%v", res.Err)
		}
		mons, pylds := c.monitors.monitoring(res.Counts, res.Progress)

		return &fnpb.InstructionResponse{
			InstructionId: string(instID),
			Response: &fnpb.InstructionResponse_ProcessBundle{
				ProcessBundle: &fnpb.ProcessBundleResponse{
					MonitoringData:  pylds,
					MonitoringInfos: mons,
				},
			},
		}

	case req.GetProcessBundleProgress() != nil:
		msg := req.GetProcessBundleProgress()

		ref := instructionID(msg.GetInstructionId())
		plan, err := c.bundles.activePlan(ref)
		if err != nil {
			return fail(ctx, instID, "failed to return progress: %v", err)
		}
		mons, pylds := c.monitors.monitoring(plan.Snapshot(), plan.Progress())

		return &fnpb.InstructionResponse{
			InstructionId: string(instID),
			Response: &fnpb.InstructionResponse_ProcessBundleProgress{
				ProcessBundleProgress: &fnpb.ProcessBundleProgressResponse{
					MonitoringData:  pylds,
					MonitoringInfos: mons,
				},
			},
		}

	case req.GetMonitoringInfos() != nil:
		msg := req.GetMonitoringInfos()
		return &fnpb.InstructionResponse{
			InstructionId: string(instID),
			Response: &fnpb.InstructionResponse_MonitoringInfos{
				MonitoringInfos: &fnpb.MonitoringInfosMetadataResponse{
					MonitoringInfo: c.monitors.shortIdsToInfos(msg.GetMonitoringInfoId()),
				},
			},
		}

	case req.GetProcessBundleSplit() != nil:
		return fail(ctx, instID, "failed to split instruction %v: splitting is not supported", req.GetProcessBundleSplit().GetInstructionId())

	default:
		return fail(ctx, instID, "Unexpected request: %v", req)
	}
}

func fail(ctx context.Context, id instructionID, format string, args ...any) *fnpb.InstructionResponse {
	log.Output(ctx, log.SevError, 1, fmt.Sprintf(format, args...))
	dummy := &fnpb.InstructionResponse_Register{Register: &fnpb.RegisterResponse{}}

	return &fnpb.InstructionResponse{
		InstructionId: string(id),
		Error:         fmt.Sprintf(format, args...),
		Response:      dummy,
	}
}
