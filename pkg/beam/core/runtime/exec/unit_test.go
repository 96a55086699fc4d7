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
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// CaptureNode is a test Node that captures all elements for verification. It also
// validates that it is invoked correctly.
type CaptureNode struct {
	UID      UnitID
	Elements []FullValue

	status Status
}

func (n *CaptureNode) ID() UnitID {
	return n.UID
}

func (n *CaptureNode) Up(ctx context.Context) error {
	if n.status != Initializing {
		return fmt.Errorf("invalid status for %v: %v, want Initializing", n.UID, n.status)
	}
	n.status = Up
	return nil
}

func (n *CaptureNode) StartBundle(ctx context.Context, id string, data DataContext) error {
	if n.status != Up {
		return fmt.Errorf("invalid status for %v: %v, want Up", n.UID, n.status)
	}
	n.status = Active
	return nil
}

func (n *CaptureNode) ProcessElement(ctx context.Context, elm *FullValue) error {
	if n.status != Active {
		return fmt.Errorf("invalid status for pardo %v: %v, want Active", n.UID, n.status)
	}

	n.Elements = append(n.Elements, *elm)
	return nil
}

func (n *CaptureNode) FinishBundle(ctx context.Context) error {
	if n.status != Active {
		return fmt.Errorf("invalid status for %v: %v, want Active", n.UID, n.status)
	}
	n.status = Up
	return nil
}

func (n *CaptureNode) Down(ctx context.Context) error {
	n.status = Down
	return nil
}

// FixedRoot is a test Root that emits a fixed number of elements.
type FixedRoot struct {
	UID      UnitID
	Elements []FullValue
	Out      Node
}

func (n *FixedRoot) ID() UnitID {
	return n.UID
}

func (n *FixedRoot) Up(ctx context.Context) error {
	return nil
}

func (n *FixedRoot) StartBundle(ctx context.Context, id string, data DataContext) error {
	return n.Out.StartBundle(ctx, id, data)
}

func (n *FixedRoot) Process(ctx context.Context) error {
	for i := range n.Elements {
		if err := n.Out.ProcessElement(ctx, &n.Elements[i]); err != nil {
			return err
		}
	}
	return nil
}

func (n *FixedRoot) FinishBundle(ctx context.Context) error {
	return n.Out.FinishBundle(ctx)
}

func (n *FixedRoot) Down(ctx context.Context) error {
	return nil
}

func makeValues(vs ...any) []FullValue {
	var ret []FullValue
	for _, v := range vs {
		ret = append(ret, *globalValue(v))
	}
	return ret
}

func extractValues(vs ...FullValue) []any {
	var ret []any
	for _, v := range vs {
		ret = append(ret, v.Elm)
	}
	return ret
}

// testDataManager serves reads from fixed buffers and records writes.
type testDataManager struct {
	mu     sync.Mutex
	reads  map[string][]byte
	writes map[string]*closeBuffer
}

func newTestDataManager() *testDataManager {
	return &testDataManager{reads: make(map[string][]byte), writes: make(map[string]*closeBuffer)}
}

func (m *testDataManager) OpenRead(ctx context.Context, id StreamID) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.reads[id.PtransformID]
	if !ok {
		return nil, fmt.Errorf("no input for %v", id)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *testDataManager) OpenWrite(ctx context.Context, id StreamID) (io.WriteCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := &closeBuffer{}
	m.writes[id.PtransformID] = w
	return w, nil
}

func (m *testDataManager) written(transform string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.writes[transform]
	if !ok {
		return nil, false
	}
	return w.Bytes(), w.closed
}

type closeBuffer struct {
	bytes.Buffer
	closed bool
}

func (b *closeBuffer) Close() error {
	b.closed = true
	return nil
}

// blockingDataManager serves reads that block until the context is done.
type blockingDataManager struct {
	opened chan struct{}
}

func (m *blockingDataManager) OpenRead(ctx context.Context, id StreamID) (io.ReadCloser, error) {
	return &blockingReader{ctx: ctx, opened: m.opened}, nil
}

func (m *blockingDataManager) OpenWrite(ctx context.Context, id StreamID) (io.WriteCloser, error) {
	return &closeBuffer{}, nil
}

type blockingReader struct {
	ctx    context.Context
	opened chan struct{}
	once   sync.Once
}

func (r *blockingReader) Read(b []byte) (int, error) {
	r.once.Do(func() { close(r.opened) })
	<-r.ctx.Done()
	return 0, r.ctx.Err()
}

func (r *blockingReader) Close() error {
	return nil
}
