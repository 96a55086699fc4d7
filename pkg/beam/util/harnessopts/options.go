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


// Package harnessopts defines the configuration of a worker harness process.
// Options have useful defaults, may be loaded from a YAML file and are
// overridden by command line flags.
package harnessopts

import (
	"bytes"
	"io"
	"os"
	"time"

	"github.com/beamfn/harness/pkg/beam/internal/errors"
	"github.com/beamfn/harness/pkg/beam/internal/logconfig"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultChunkSize is the number of element bytes put in a single data
	// message.
	DefaultChunkSize = int(4e6)
	// DefaultReadBuffer is the number of data messages buffered per reader.
	DefaultReadBuffer = 20
	// DefaultDialTimeout bounds connecting to the control service.
	DefaultDialTimeout = 60 * time.Second
)

// Options configures the harness.
type Options struct {
	WorkerID        string        `yaml:"worker_id"`
	ControlEndpoint string        `yaml:"control_endpoint"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
	// ChunkSize is the number of bytes a data writer buffers before sending.
	ChunkSize int `yaml:"chunk_size"`
	// ReadBuffer is the number of data messages a reader buffers before the
	// data stream blocks.
	ReadBuffer int `yaml:"read_buffer"`

	LogLevel string `yaml:"log_level"`
	LogKind  string `yaml:"log_kind"`
}

// Default returns the default options.
func Default() Options {
	return Options{
		DialTimeout: DefaultDialTimeout,
		ChunkSize:   DefaultChunkSize,
		ReadBuffer:  DefaultReadBuffer,
		LogLevel:    "info",
		LogKind:     "text",
	}
}

// Load reads options from a YAML file on top of the defaults. Unknown
// fields are an error.
func Load(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, errors.Wrapf(err, "reading options file %v", path)
	}
	return Parse(data)
}

// Parse decodes YAML options on top of the defaults.
func Parse(data []byte) (Options, error) {
	opts := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		return Options{}, errors.Wrap(err, "invalid options")
	}
	return opts, nil
}

// Validate checks that the options are usable.
func (o Options) Validate() error {
	if o.ControlEndpoint == "" {
		return errors.New("no control endpoint provided")
	}
	if o.ChunkSize <= 0 {
		return errors.Errorf("chunk size must be positive, got %v", o.ChunkSize)
	}
	if o.ReadBuffer <= 0 {
		return errors.Errorf("read buffer must be positive, got %v", o.ReadBuffer)
	}
	if o.DialTimeout <= 0 {
		return errors.Errorf("dial timeout must be positive, got %v", o.DialTimeout)
	}
	if _, err := logconfig.NewHandler(io.Discard, o.LogLevel, o.LogKind); err != nil {
		return errors.Wrap(err, "invalid logging options")
	}
	return nil
}

// ConfigureLogging installs the logging handler the options ask for as the
// default slog handler, writing to w.
func (o Options) ConfigureLogging(w io.Writer) error {
	return logconfig.Configure(w, o.LogLevel, o.LogKind)
}
