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


package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/beamfn/harness/pkg/beam/core/runtime/harness"
	"github.com/beamfn/harness/pkg/beam/util/harnessopts"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	configPath string
	// flags holds the flag values. Only flags set on the command line
	// override the options file.
	flags harnessopts.Options
	opts  harnessopts.Options

	Root = &cobra.Command{
		Use:          "fnharness",
		Short:        "fnharness executes bundles for a Beam runner over the Fn API",
		Args:         cobra.NoArgs,
		PreRunE:      rootPreE,
		RunE:         rootE,
		SilenceUsage: true,
	}
)

func init() {
	d := harnessopts.Default()
	f := Root.Flags()
	f.StringVar(&configPath, "config", "", "YAML file of harness options")
	f.StringVar(&flags.WorkerID, "worker_id", "", "worker id sent to the runner; generated when empty")
	f.StringVar(&flags.ControlEndpoint, "control_endpoint", "", "address of the runner control service")
	f.DurationVar(&flags.DialTimeout, "dial_timeout", d.DialTimeout, "timeout connecting to the control service")
	f.IntVar(&flags.ChunkSize, "chunk_size", d.ChunkSize, "bytes buffered per data stream before sending")
	f.IntVar(&flags.ReadBuffer, "read_buffer", d.ReadBuffer, "data messages buffered per reader")
	f.StringVar(&flags.LogLevel, "log_level", d.LogLevel, "one of debug, info, warn or error")
	f.StringVar(&flags.LogKind, "log_kind", d.LogKind, "one of text, json or dev")
}

func rootPreE(cmd *cobra.Command, _ []string) error {
	o := harnessopts.Default()
	if configPath != "" {
		var err error
		if o, err = harnessopts.Load(configPath); err != nil {
			return err
		}
	}

	f := cmd.Flags()
	if f.Changed("worker_id") {
		o.WorkerID = flags.WorkerID
	}
	if f.Changed("control_endpoint") {
		o.ControlEndpoint = flags.ControlEndpoint
	}
	if f.Changed("dial_timeout") {
		o.DialTimeout = flags.DialTimeout
	}
	if f.Changed("chunk_size") {
		o.ChunkSize = flags.ChunkSize
	}
	if f.Changed("read_buffer") {
		o.ReadBuffer = flags.ReadBuffer
	}
	if f.Changed("log_level") {
		o.LogLevel = flags.LogLevel
	}
	if f.Changed("log_kind") {
		o.LogKind = flags.LogKind
	}
	if o.WorkerID == "" {
		o.WorkerID = uuid.NewString()
	}

	if err := o.Validate(); err != nil {
		return err
	}
	opts = o
	return opts.ConfigureLogging(os.Stderr)
}

func rootE(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return harness.Main(ctx, opts)
}
