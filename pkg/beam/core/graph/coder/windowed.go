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

package coder

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/beamfn/harness/pkg/beam/core/util/ioutilx"
	"github.com/beamfn/harness/pkg/beam/internal/errors"
)

// EventTime is a timestamp in milliseconds since the Unix epoch.
type EventTime int64

const (
	// MinTimestamp is the smallest event time the model represents.
	MinTimestamp EventTime = math.MinInt64 / 1000
	// MaxTimestamp is the largest event time the model represents.
	MaxTimestamp EventTime = math.MaxInt64 / 1000
)

// EncodeEventTime writes t as a big endian uint64 shifted so that the byte
// order matches the time order.
func EncodeEventTime(t EventTime, w io.Writer) (int, error) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(int64(t)-math.MinInt64))
	return w.Write(b[:])
}

// DecodeEventTime reads a timestamp written by EncodeEventTime.
func DecodeEventTime(r io.Reader) (EventTime, error) {
	var b [8]byte
	if err := ioutilx.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return EventTime(int64(binary.BigEndian.Uint64(b[:])) + math.MinInt64), nil
}

// PaneTiming is the relation of a pane firing to the watermark.
type PaneTiming byte

const (
	PaneEarly   PaneTiming = 0
	PaneOnTime  PaneTiming = 1
	PaneLate    PaneTiming = 2
	PaneUnknown PaneTiming = 3
)

// PaneInfo describes the trigger firing that produced an element.
type PaneInfo struct {
	Timing                     PaneTiming
	IsFirst, IsLast            bool
	Index, NonSpeculativeIndex int64
}

// NoFiringPane is the pane of elements not produced by a trigger.
func NoFiringPane() PaneInfo {
	return PaneInfo{Timing: PaneUnknown, IsFirst: true, IsLast: true}
}

const (
	paneFirst    = 0
	paneOneIndex = 1
	paneTwoIndex = 2
)

func paneEncoding(p PaneInfo) byte {
	switch {
	case p.Index == 0 || p.NonSpeculativeIndex == 0 || p.Timing == PaneUnknown:
		return paneFirst
	case p.Index == p.NonSpeculativeIndex || p.Timing == PaneEarly:
		return paneOneIndex
	default:
		return paneTwoIndex
	}
}

// EncodePane writes the pane header byte followed by the indexes its
// encoding form needs.
func EncodePane(p PaneInfo, w io.Writer) (int, error) {
	var b byte
	if p.IsFirst {
		b |= 0x01
	}
	if p.IsLast {
		b |= 0x02
	}
	b |= byte(p.Timing&0x03) << 2
	enc := paneEncoding(p)
	b |= enc << 4

	n, err := ioutilx.WriteByte(w, b)
	if err != nil || enc == paneFirst {
		return n, err
	}
	m, err := EncodeVarInt(p.Index, w)
	n += m
	if err != nil || enc == paneOneIndex {
		return n, err
	}
	m, err = EncodeVarInt(p.NonSpeculativeIndex, w)
	return n + m, err
}

// DecodePane reads a pane written by EncodePane.
func DecodePane(r io.Reader) (PaneInfo, error) {
	b, err := ioutilx.ReadByte(r)
	if err != nil {
		return PaneInfo{}, err
	}
	p := PaneInfo{
		IsFirst: b&0x01 != 0,
		IsLast:  b&0x02 != 0,
		Timing:  PaneTiming((b >> 2) & 0x03),
	}
	switch b >> 4 {
	case paneFirst:
		return p, nil
	case paneOneIndex:
		if p.Index, err = DecodeVarInt(r); err != nil {
			return PaneInfo{}, ioutilx.Unexpected(err)
		}
		if p.Timing == PaneEarly {
			p.NonSpeculativeIndex = -1
		} else {
			p.NonSpeculativeIndex = p.Index
		}
		return p, nil
	case paneTwoIndex:
		if p.Index, err = DecodeVarInt(r); err != nil {
			return PaneInfo{}, ioutilx.Unexpected(err)
		}
		if p.NonSpeculativeIndex, err = DecodeVarInt(r); err != nil {
			return PaneInfo{}, ioutilx.Unexpected(err)
		}
		return p, nil
	}
	return PaneInfo{}, errors.Errorf("invalid pane encoding %#x", b)
}

// GlobalWindow is the single window of the global windowing strategy.
type GlobalWindow struct{}

// GlobalWindowCoder encodes GlobalWindow as zero bytes.
type GlobalWindowCoder struct{}

func (GlobalWindowCoder) URN() string             { return URNGlobalWindow }
func (GlobalWindowCoder) ComponentURNs() []string { return nil }

func (GlobalWindowCoder) Encode(elm any, _ io.Writer, _ Context) (int, error) {
	if _, ok := elm.(GlobalWindow); !ok {
		panic(mismatch(URNGlobalWindow, "coder.GlobalWindow", elm))
	}
	return 0, nil
}

func (GlobalWindowCoder) Decode(io.Reader, Context) (any, error) {
	return GlobalWindow{}, nil
}

// WindowedValue is an element together with its timestamp, windows and
// pane. This is the shape of every element on a data port.
type WindowedValue struct {
	Value     any
	Timestamp EventTime
	Windows   []any
	Pane      PaneInfo
}

// GlobalValue wraps v in the global window at the minimum timestamp.
func GlobalValue(v any) WindowedValue {
	return WindowedValue{
		Value:     v,
		Timestamp: MinTimestamp,
		Windows:   []any{GlobalWindow{}},
		Pane:      NoFiringPane(),
	}
}

// WindowedValueCoder encodes WindowedValue: timestamp, window count and
// windows, pane, then the value in the context of the whole.
type WindowedValueCoder struct {
	Elem, Window Coder
}

// NewWindowedValue returns a windowed value coder.
func NewWindowedValue(elem, window Coder) *WindowedValueCoder {
	return &WindowedValueCoder{Elem: elem, Window: window}
}

func (c *WindowedValueCoder) URN() string             { return URNWindowedValue }
func (c *WindowedValueCoder) ComponentURNs() []string { return urns(c.Elem, c.Window) }

func (c *WindowedValueCoder) Encode(elm any, w io.Writer, ctx Context) (int, error) {
	wv, ok := elm.(WindowedValue)
	if !ok {
		panic(mismatch(URNWindowedValue, "coder.WindowedValue", elm))
	}
	cw := &ioutilx.CountingWriter{W: w}
	if _, err := EncodeEventTime(wv.Timestamp, cw); err != nil {
		return cw.N, err
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(wv.Windows)))
	if _, err := cw.Write(hdr[:]); err != nil {
		return cw.N, err
	}
	for _, win := range wv.Windows {
		if _, err := c.Window.Encode(win, cw, Delimited); err != nil {
			return cw.N, err
		}
	}
	if _, err := EncodePane(wv.Pane, cw); err != nil {
		return cw.N, err
	}
	_, err := c.Elem.Encode(wv.Value, cw, ctx)
	return cw.N, err
}

func (c *WindowedValueCoder) Decode(r io.Reader, ctx Context) (any, error) {
	t, err := DecodeEventTime(r)
	if err != nil {
		return nil, err
	}
	var hdr [4]byte
	if err := ioutilx.ReadFull(r, hdr[:]); err != nil {
		return nil, ioutilx.Unexpected(err)
	}
	count := int32(binary.BigEndian.Uint32(hdr[:]))
	if count < 0 {
		return nil, errors.Errorf("invalid window count %d", count)
	}
	wv := WindowedValue{Timestamp: t, Windows: make([]any, 0, min(count, 8))}
	for i := int32(0); i < count; i++ {
		win, err := c.Window.Decode(r, Delimited)
		if err != nil {
			return nil, errors.Wrap(ioutilx.Unexpected(err), "decoding window")
		}
		wv.Windows = append(wv.Windows, win)
	}
	if wv.Pane, err = DecodePane(r); err != nil {
		return nil, errors.Wrap(ioutilx.Unexpected(err), "decoding pane")
	}
	if wv.Value, err = c.Elem.Decode(r, ctx); err != nil {
		return nil, errors.Wrap(ioutilx.Unexpected(err), "decoding windowed value")
	}
	return wv, nil
}
