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
	"fmt"
	"time"

	"github.com/beamfn/harness/pkg/beam/core/graph/coder"
)

// endOfGlobalWindow is the timestamp of elements grouped in the global
// window.
const endOfGlobalWindow = coder.MaxTimestamp - coder.EventTime(24*time.Hour/time.Millisecond)

// FullValue is an element together with its implicit context.
type FullValue struct {
	Elm any

	Timestamp coder.EventTime
	Windows   []any
	Pane      coder.PaneInfo
}

func (v *FullValue) String() string {
	return fmt.Sprintf("%v@(%v,%v)", v.Elm, v.Timestamp, v.Windows)
}

// globalValue returns elm in the global window at the minimum timestamp.
func globalValue(elm any) *FullValue {
	return fromWindowed(coder.GlobalValue(elm))
}

func fromWindowed(wv coder.WindowedValue) *FullValue {
	return &FullValue{Elm: wv.Value, Timestamp: wv.Timestamp, Windows: wv.Windows, Pane: wv.Pane}
}

func (v *FullValue) windowed() coder.WindowedValue {
	return coder.WindowedValue{Value: v.Elm, Timestamp: v.Timestamp, Windows: v.Windows, Pane: v.Pane}
}

// derive returns elm in the context of v.
func (v *FullValue) derive(elm any) *FullValue {
	return &FullValue{Elm: elm, Timestamp: v.Timestamp, Windows: v.Windows, Pane: v.Pane}
}
