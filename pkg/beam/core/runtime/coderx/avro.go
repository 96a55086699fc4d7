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

// Package coderx contains custom coders registered with the process wide
// coder registry at init.
package coderx

import (
	"io"

	"github.com/beamfn/harness/pkg/beam/core/graph/coder"
	"github.com/beamfn/harness/pkg/beam/internal/errors"
	"github.com/linkedin/goavro"
)

// URNAvroGeneric is the URN of the Avro coder. Its payload is the Avro
// schema as JSON.
const URNAvroGeneric = "beam:coder:avro:generic:v1"

func init() {
	if err := coder.RegisterCoder(URNAvroGeneric, func(payload []byte, components []coder.Coder) (coder.Coder, error) {
		if len(components) != 0 {
			return nil, errors.Errorf("avro coder takes no components, got %d", len(components))
		}
		return NewAvro(string(payload))
	}); err != nil {
		panic(err)
	}
}

// Avro encodes the native Go form of Avro data, as produced by goavro:
// map[string]any for records, []any for arrays and so on. The binary Avro
// encoding is length prefixed in delimited contexts.
type Avro struct {
	codec *goavro.Codec
}

// NewAvro returns an Avro coder for the given JSON schema.
func NewAvro(schema string) (*Avro, error) {
	codec, err := goavro.NewCodec(schema)
	if err != nil {
		return nil, errors.Wrap(err, "parsing avro schema")
	}
	return &Avro{codec: codec}, nil
}

func (c *Avro) URN() string             { return URNAvroGeneric }
func (c *Avro) ComponentURNs() []string { return nil }

// Payload returns the schema of the coder.
func (c *Avro) Payload() []byte { return []byte(c.codec.Schema()) }

func (c *Avro) Encode(elm any, w io.Writer, ctx coder.Context) (int, error) {
	b, err := c.codec.BinaryFromNative(nil, elm)
	if err != nil {
		panic(&coder.KindError{URN: URNAvroGeneric, Want: "datum matching " + c.codec.Schema(), Elm: elm})
	}
	if ctx == coder.WholeStream {
		return w.Write(b)
	}
	return coder.EncodeBytes(b, w)
}

func (c *Avro) Decode(r io.Reader, ctx coder.Context) (any, error) {
	var b []byte
	var err error
	if ctx == coder.WholeStream {
		b, err = io.ReadAll(r)
	} else {
		b, err = coder.DecodeBytes(r)
	}
	if err != nil {
		return nil, err
	}
	v, rest, err := c.codec.NativeFromBinary(b)
	if err != nil {
		return nil, errors.Wrap(err, "decoding avro datum")
	}
	if len(rest) != 0 {
		return nil, errors.Errorf("decoding avro datum: %d trailing bytes", len(rest))
	}
	return v, nil
}
