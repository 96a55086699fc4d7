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

package ioutilx

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestReadN(t *testing.T) {
	testString := "hello world!"
	r := strings.NewReader(testString)

	data, err := ReadN(r, len(testString))
	if err != nil {
		t.Fatalf("failed to read data, got error: %v", err)
	}
	if got, want := string(data), testString; got != want {
		t.Errorf("got string %q, wanted %q", got, want)
	}
}

func TestReadN_Bad(t *testing.T) {
	tests := []struct {
		input string
		n     int
		want  error
	}{
		{"", 3, io.EOF},
		{"he", 3, io.ErrUnexpectedEOF},
		{"", maxEagerRead + 1, io.EOF},
		{"he", 1 << 30, io.ErrUnexpectedEOF},
	}
	for _, test := range tests {
		if _, err := ReadN(strings.NewReader(test.input), test.n); err != test.want {
			t.Errorf("ReadN(%q, %d) error = %v, want %v", test.input, test.n, err, test.want)
		}
	}
}

func TestReadN_Large(t *testing.T) {
	want := bytes.Repeat([]byte("beam"), maxEagerRead)
	data, err := ReadN(plainReader{bytes.NewReader(want)}, len(want))
	if err != nil {
		t.Fatalf("ReadN(%d) failed: %v", len(want), err)
	}
	if !bytes.Equal(data, want) {
		t.Errorf("ReadN(%d) returned %d different bytes", len(want), len(data))
	}
}

// plainReader hides the io.ByteReader of its embedded reader.
type plainReader struct{ r io.Reader }

func (p plainReader) Read(b []byte) (int, error) { return p.r.Read(b) }

func TestReadByte(t *testing.T) {
	for _, r := range []io.Reader{bytes.NewReader([]byte{7}), plainReader{bytes.NewReader([]byte{7})}} {
		b, err := ReadByte(r)
		if err != nil || b != 7 {
			t.Errorf("ReadByte(%T) = %v, %v, want 7, nil", r, b, err)
		}
		if _, err := ReadByte(r); err != io.EOF {
			t.Errorf("ReadByte(%T) at end error = %v, want io.EOF", r, err)
		}
	}
}

func TestCountingWriter(t *testing.T) {
	var buf bytes.Buffer
	cw := &CountingWriter{W: &buf}
	cw.Write([]byte("abc"))
	WriteByte(cw, 'd')
	if cw.N != 4 || buf.String() != "abcd" {
		t.Errorf("CountingWriter = %d, %q, want 4, \"abcd\"", cw.N, buf.String())
	}
}
