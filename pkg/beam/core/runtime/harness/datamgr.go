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
	"io"
	"sync"
	"time"

	fnpb "github.com/apache/beam/sdks/v2/go/pkg/beam/model/fnexecution_v1"
	"github.com/beamfn/harness/pkg/beam/core/runtime/exec"
	"github.com/beamfn/harness/pkg/beam/internal/errors"
	"github.com/beamfn/harness/pkg/beam/log"
	"github.com/beamfn/harness/pkg/beam/util/grpcx"
	"github.com/beamfn/harness/pkg/beam/util/harnessopts"
	"github.com/dustin/go-humanize"
)

const dataDialTimeout = 15 * time.Second

// ScopedDataManager is the data manager of a single instruction. Closing it
// ends every stream the instruction opened and refuses new ones.
type ScopedDataManager struct {
	mu     sync.Mutex
	mgr    *DataChannelManager // nil once closed
	instID instructionID
}

// NewScopedDataManager returns a ScopedDataManager for the given instruction.
func NewScopedDataManager(mgr *DataChannelManager, instID instructionID) *ScopedDataManager {
	return &ScopedDataManager{mgr: mgr, instID: instID}
}

// OpenRead opens the inbound stream of the given transform.
func (s *ScopedDataManager) OpenRead(ctx context.Context, id exec.StreamID) (io.ReadCloser, error) {
	ch, err := s.channel(ctx, id.Port)
	if err != nil {
		return nil, err
	}
	return ch.OpenRead(ctx, id.PtransformID, s.instID), nil
}

// OpenWrite opens the outbound stream of the given transform.
func (s *ScopedDataManager) OpenWrite(ctx context.Context, id exec.StreamID) (io.WriteCloser, error) {
	ch, err := s.channel(ctx, id.Port)
	if err != nil {
		return nil, err
	}
	return ch.OpenWrite(ctx, id.PtransformID, s.instID), nil
}

func (s *ScopedDataManager) channel(ctx context.Context, port exec.Port) (*DataChannel, error) {
	s.mu.Lock()
	mgr := s.mgr
	s.mu.Unlock()
	if mgr == nil {
		return nil, errors.Errorf("instruction %v no longer processing", s.instID)
	}
	// Dialing may be slow, so it happens outside the lock.
	return mgr.Open(ctx, port)
}

// Close ends the instruction's streams. It is idempotent.
func (s *ScopedDataManager) Close() error {
	s.mu.Lock()
	mgr := s.mgr
	s.mgr = nil
	s.mu.Unlock()
	if mgr != nil {
		mgr.closeInstruction(s.instID)
	}
	return nil
}

// DataChannelManager keeps one DataChannel per data port. Each channel
// multiplexes the streams of every bundle using the port. Thread-safe.
type DataChannelManager struct {
	// ChunkSize and ReadBuffer configure new channels. Zero values mean the
	// harnessopts defaults.
	ChunkSize  int
	ReadBuffer int

	mu    sync.Mutex
	ports map[string]*DataChannel
}

// Open returns the channel of the given port, connecting it if needed.
func (m *DataChannelManager) Open(ctx context.Context, port exec.Port) (*DataChannel, error) {
	if port.URL == "" {
		return nil, errors.New("empty data port")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.ports[port.URL]; ok {
		return ch, nil
	}
	if m.ports == nil {
		m.ports = make(map[string]*DataChannel)
	}

	ch, err := m.connect(ctx, port)
	if err != nil {
		return nil, err
	}
	ch.onBroken = func(err error) {
		log.Warnf(ctx, "data channel %v broken, reconnecting on next use: %v", port.URL, err)
		m.mu.Lock()
		if m.ports[port.URL] == ch {
			delete(m.ports, port.URL)
		}
		m.mu.Unlock()
	}
	m.ports[port.URL] = ch
	return ch, nil
}

func (m *DataChannelManager) connect(ctx context.Context, port exec.Port) (*DataChannel, error) {
	// The channel serves later bundles too, so it must outlive this one.
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cc, err := grpcx.Dial(ctx, port.URL, dataDialTimeout)
	if err != nil {
		cancel()
		return nil, errors.Wrapf(err, "failed to connect to data service at %v", port.URL)
	}
	stream, err := fnpb.NewBeamFnDataClient(cc).Data(ctx)
	if err != nil {
		cc.Close()
		cancel()
		return nil, errors.Wrapf(err, "failed to open data stream on %v", port.URL)
	}
	chunk, buf := m.ChunkSize, m.ReadBuffer
	if chunk <= 0 {
		chunk = harnessopts.DefaultChunkSize
	}
	if buf <= 0 {
		buf = harnessopts.DefaultReadBuffer
	}
	return makeDataChannel(ctx, port.URL, stream, cancel, chunk, buf), nil
}

func (m *DataChannelManager) closeInstruction(instID instructionID) {
	m.mu.Lock()
	chs := make([]*DataChannel, 0, len(m.ports))
	for _, ch := range m.ports {
		chs = append(chs, ch)
	}
	m.mu.Unlock()

	for _, ch := range chs {
		ch.removeInstruction(instID)
	}
}

// dataClient is the part of the gRPC data stream the channel uses.
type dataClient interface {
	Send(*fnpb.Elements) error
	Recv() (*fnpb.Elements, error)
}

var _ dataClient = fnpb.BeamFnData_DataClient(nil)

// streamKey identifies one logical stream of a channel.
type streamKey struct {
	instID    instructionID
	transform string
}

func (k streamKey) String() string {
	return string(k.instID) + "/" + k.transform
}

// recentInstructions remembers a bounded number of ended instructions, so
// data arriving late for them can be dropped.
type recentInstructions struct {
	set   map[instructionID]struct{}
	order []instructionID
}

const recentInstructionsCap = 32

func (r *recentInstructions) add(id instructionID) {
	if r.set == nil {
		r.set = make(map[instructionID]struct{})
	}
	if len(r.order) >= recentInstructionsCap {
		delete(r.set, r.order[0])
		r.order = r.order[1:]
	}
	r.set[id] = struct{}{}
	r.order = append(r.order, id)
}

func (r *recentInstructions) has(id instructionID) bool {
	_, ok := r.set[id]
	return ok
}

// DataChannel multiplexes the streams of many bundles over one gRPC data
// stream. A single goroutine receives inbound messages and routes them by
// instruction and transform. Data may arrive before its reader is opened.
// Outbound messages are queued to a single sender goroutine, so a stalled
// send never holds the channel lock. Thread-safe.
type DataChannel struct {
	id         string
	client     dataClient
	chunkSize  int
	readBuffer int

	// onBroken tells the manager to drop this channel. Called at most once.
	onBroken func(err error)
	cancel   context.CancelFunc
	done     <-chan struct{} // closed once the channel is broken

	sendq chan sendRequest

	mu      sync.Mutex
	readers map[instructionID]map[string]*dataReader
	writers map[instructionID]map[string]*dataWriter
	ended   recentInstructions
	recvErr error // fails readers opened after the inbound stream broke
	sendErr error // fails every write after a send failed
}

func makeDataChannel(ctx context.Context, id string, client dataClient, cancel context.CancelFunc, chunkSize, readBuffer int) *DataChannel {
	c := &DataChannel{
		id:         id,
		client:     client,
		chunkSize:  chunkSize,
		readBuffer: readBuffer,
		cancel:     cancel,
		done:       ctx.Done(),
		sendq:      make(chan sendRequest),
		readers:    make(map[instructionID]map[string]*dataReader),
		writers:    make(map[instructionID]map[string]*dataWriter),
	}
	go c.receive(ctx)
	go c.sendLoop(ctx)
	return c
}

// OpenRead returns a reader of the data sent to the given transform and
// instruction. Reads end with io.EOF at the end marker, fail with the error
// of ctx once it is done and with the transport error if the stream breaks.
func (c *DataChannel) OpenRead(ctx context.Context, transform string, instID instructionID) io.ReadCloser {
	key := streamKey{instID: instID, transform: transform}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recvErr != nil {
		log.Errorf(ctx, "opening reader %v on broken data channel %v", key, c.id)
		return &errReader{c.recvErr}
	}
	return &ctxReader{ctx: ctx, r: c.readerLocked(key)}
}

// OpenWrite returns a chunking writer to the given transform and
// instruction. Close flushes and sends the end marker.
func (c *DataChannel) OpenWrite(ctx context.Context, transform string, instID instructionID) io.WriteCloser {
	key := streamKey{instID: instID, transform: transform}
	c.mu.Lock()
	defer c.mu.Unlock()

	ws, ok := c.writers[instID]
	if !ok {
		ws = make(map[string]*dataWriter)
		c.writers[instID] = ws
	}
	w, ok := ws[transform]
	if !ok {
		w = &dataWriter{ch: c, key: key, ctx: ctx}
		ws[transform] = w
	}
	return w
}

// receive routes inbound data until the stream fails. Only this goroutine
// sends on or closes reader buffers.
func (c *DataChannel) receive(ctx context.Context) {
	// Local lookups avoid taking the lock for every message.
	local := make(map[streamKey]*dataReader)
	for {
		msg, err := c.client.Recv()
		if err != nil {
			c.failReaders(ctx, err)
			return
		}
		for _, d := range msg.GetData() {
			key := streamKey{instID: instructionID(d.GetInstructionId()), transform: d.GetTransformId()}
			r, ok := local[key]
			if !ok {
				c.mu.Lock()
				r = c.readerLocked(key)
				c.mu.Unlock()
				local[key] = r
			}
			r.deliver(d.GetData())
			if d.GetIsLast() {
				r.finish(nil)
				// Nothing more arrives for this key; the reader itself stays
				// registered for a late OpenRead.
				delete(local, key)
			}
		}
	}
}

func (c *DataChannel) failReaders(ctx context.Context, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recvErr = err
	for _, rs := range c.readers {
		for _, r := range rs {
			r.finish(err)
		}
	}
	c.breakLocked(err)

	if err == io.EOF {
		log.Warnf(ctx, "data channel %v closed", c.id)
		return
	}
	log.Errorf(ctx, "data channel %v failed: %v", c.id, err)
}

// breakLocked cancels the stream and detaches the channel from its manager.
func (c *DataChannel) breakLocked(err error) {
	c.cancel()
	if c.onBroken != nil {
		c.onBroken(err)
		c.onBroken = nil
	}
}

// readerLocked returns the reader of key, creating it if needed. Requires
// c.mu.
func (c *DataChannel) readerLocked(key streamKey) *dataReader {
	if r, ok := c.readers[key.instID][key.transform]; ok {
		return r
	}
	r := &dataReader{
		key:  key,
		buf:  make(chan []byte, c.readBuffer),
		done: make(chan struct{}),
		ch:   c,
	}
	if c.ended.has(key.instID) {
		// The instruction is over: the reader is born finished and is not
		// registered, so late data is dropped.
		r.finish(nil)
		return r
	}
	rs, ok := c.readers[key.instID]
	if !ok {
		rs = make(map[string]*dataReader)
		c.readers[key.instID] = rs
	}
	rs[key.transform] = r
	return r
}

func (c *DataChannel) dropReader(r *dataReader) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rs := c.readers[r.key.instID]; rs[r.key.transform] == r {
		delete(rs, r.key.transform)
	}
}

// removeInstruction ends every stream of the instruction. Data that
// arrives for it later is dropped. Writers still open are abandoned
// without flushing, so a stalled runner cannot block the caller.
func (c *DataChannel) removeInstruction(instID instructionID) {
	c.mu.Lock()
	c.ended.add(instID)
	rs := c.readers[instID]
	for _, w := range c.writers[instID] {
		w.closed = true
	}
	delete(c.readers, instID)
	delete(c.writers, instID)
	c.mu.Unlock()

	// Close takes the lock.
	for _, r := range rs {
		r.Close()
	}
}

type errReader struct {
	err error
}

func (r *errReader) Read([]byte) (int, error) {
	return 0, r.err
}

func (r *errReader) Close() error {
	return r.err
}

// dataReader buffers the inbound data of one stream. finished and err are
// written by the receive goroutine; readers look at err only once buf is
// closed.
type dataReader struct {
	key       streamKey
	ch        *DataChannel
	buf       chan []byte
	done      chan struct{} // closed when the local side stops reading
	closeOnce sync.Once

	finished bool
	err      error

	cur []byte // unread rest of the current chunk; reader side only
}

// deliver hands a chunk to the reader, blocking while its buffer is full.
// Data for a reader that stopped reading is dropped.
func (r *dataReader) deliver(data []byte) {
	if len(data) == 0 || r.finished {
		return
	}
	select {
	case r.buf <- data:
	case <-r.done:
		r.finish(nil)
	}
}

// finish ends the stream with err, or io.EOF if nil.
func (r *dataReader) finish(err error) {
	if r.finished {
		return
	}
	r.finished = true
	r.err = err
	close(r.buf)
}

func (r *dataReader) read(ctx context.Context, p []byte) (int, error) {
	if len(r.cur) == 0 {
		var ok bool
		select {
		case r.cur, ok = <-r.buf:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
		if !ok {
			if r.err != nil {
				return 0, r.err
			}
			return 0, io.EOF
		}
	}
	n := copy(p, r.cur)
	r.cur = r.cur[n:]
	return n, nil
}

func (r *dataReader) Close() error {
	r.closeOnce.Do(func() {
		close(r.done)
		r.ch.dropReader(r)
	})
	return nil
}

// ctxReader binds a dataReader to the context of the bundle reading it.
type ctxReader struct {
	ctx context.Context
	r   *dataReader
}

func (r *ctxReader) Read(p []byte) (int, error) {
	return r.r.read(r.ctx, p)
}

func (r *ctxReader) Close() error {
	return r.r.Close()
}

const largeBufferThreshold = 1 << 30

// dataWriter batches the outbound data of one stream into messages of at
// most chunkSize bytes, unless a single write is larger. A writer is used by
// one goroutine; only closed is shared with the channel.
type dataWriter struct {
	ch  *DataChannel
	key streamKey
	ctx context.Context

	buf    []byte
	closed bool // guarded by ch.mu
}

func (w *dataWriter) Write(p []byte) (int, error) {
	w.ch.mu.Lock()
	closed, serr := w.closed, w.ch.sendErr
	w.ch.mu.Unlock()
	switch {
	case closed:
		return 0, errors.Errorf("data stream %v: write after close", w.key)
	case serr != nil:
		return 0, errors.Wrapf(serr, "data stream %v: channel %v failed", w.key, w.ch.id)
	}

	if len(w.buf)+len(p) > w.ch.chunkSize {
		if err := w.Flush(); err != nil {
			return 0, err
		}
	}
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// Flush sends the buffered data, if any.
func (w *dataWriter) Flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	if w.isClosed() {
		w.buf = nil
		return errors.Errorf("data stream %v: flush after close", w.key)
	}
	if n := len(w.buf); n > largeBufferThreshold {
		log.Infof(w.ctx, "data stream %v flushing a large buffer of %s", w.key, humanize.Bytes(uint64(n)))
	}
	data := w.buf
	w.buf = nil
	if err := w.send(data, false); err != nil {
		return errors.Wrapf(err, "data stream %v: flushing %d bytes", w.key, len(data))
	}
	return nil
}

// Close flushes the buffer and sends the end marker. It is idempotent. A
// writer abandoned by its instruction closes without an end marker.
func (w *dataWriter) Close() error {
	if w.isClosed() {
		return nil
	}
	if err := w.Flush(); err != nil {
		return err
	}

	c := w.ch
	c.mu.Lock()
	if w.closed {
		c.mu.Unlock()
		return nil
	}
	w.closed = true
	if ws := c.writers[w.key.instID]; ws[w.key.transform] == w {
		delete(ws, w.key.transform)
	}
	c.mu.Unlock()

	if err := w.send(nil, true); err != nil {
		return errors.Wrapf(err, "data stream %v: sending end marker", w.key)
	}
	return nil
}

func (w *dataWriter) isClosed() bool {
	w.ch.mu.Lock()
	defer w.ch.mu.Unlock()
	return w.closed
}

// send hands one message to the channel's sender and waits for the result.
// It gives up once the writer's context is done or the channel breaks.
func (w *dataWriter) send(data []byte, last bool) error {
	c := w.ch
	req := sendRequest{
		msg: &fnpb.Elements{
			Data: []*fnpb.Elements_Data{{
				InstructionId: string(w.key.instID),
				TransformId:   w.key.transform,
				Data:          data,
				IsLast:        last,
			}},
		},
		errc: make(chan error, 1),
	}
	select {
	case c.sendq <- req:
	case <-w.ctx.Done():
		return c.writeErr(w.ctx)
	case <-c.done:
		return c.writeErr(w.ctx)
	}

	select {
	case err := <-req.errc:
		return err
	case <-w.ctx.Done():
	case <-c.done:
	}
	select {
	case err := <-req.errc:
		return err
	default:
		return c.writeErr(w.ctx)
	}
}

// sendRequest is one outbound message and where to report its result.
type sendRequest struct {
	msg  *fnpb.Elements
	errc chan error // buffered
}

// sendLoop sends queued messages in order until the channel is done. It is
// the only caller of client.Send.
func (c *DataChannel) sendLoop(ctx context.Context) {
	for {
		select {
		case req := <-c.sendq:
			err := c.client.Send(req.msg)
			if err != nil {
				err = c.failSend(ctx, err)
			}
			req.errc <- err
		case <-ctx.Done():
			return
		}
	}
}

// failSend poisons the channel after a failed send.
func (c *DataChannel) failSend(ctx context.Context, err error) error {
	if err == io.EOF {
		// The real status surfaces on the receiving side.
		err = errors.Wrap(err, "data stream closed by runner")
	}
	log.Warnf(ctx, "data channel %v: send failed: %v", c.id, err)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr == nil {
		c.sendErr = err
	}
	c.breakLocked(err)
	return errors.Wrapf(err, "channel %v failed", c.id)
}

// writeErr is the error of a write that could not complete.
func (c *DataChannel) writeErr(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.sendErr != nil:
		return errors.Wrapf(c.sendErr, "channel %v failed", c.id)
	case ctx.Err() != nil:
		return errors.Wrapf(ctx.Err(), "channel %v: write abandoned", c.id)
	case c.recvErr != nil:
		return errors.Wrapf(c.recvErr, "channel %v closed", c.id)
	default:
		return errors.Errorf("channel %v closed", c.id)
	}
}
