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
	"bytes"
	"strconv"
	"sync"

	pipepb "github.com/apache/beam/sdks/v2/go/pkg/beam/model/pipeline_v1"
	"github.com/beamfn/harness/pkg/beam/core/graph/coder"
	"github.com/beamfn/harness/pkg/beam/core/runtime/exec"
)

const (
	urnElementCount  = "beam:metric:element_count:v1"
	urnReadIndex     = "beam:metric:data_channel:read_index:v1"
	typeSumInt64     = "beam:metrics:sum_int64:v1"
	labelPCollection = "PCOLLECTION"
	labelPTransform  = "PTRANSFORM"
)

type shortKey struct {
	label, value string
	urn          string // Urns fully specify their type.
}

// shortIDCache retains lookup caches for short ids to the full monitoring
// info metadata.
type shortIDCache struct {
	mu              sync.Mutex
	labels2ShortIds map[shortKey]string
	shortIds2Infos  map[string]*pipepb.MonitoringInfo

	lastShortID int64
}

func newShortIDCache() *shortIDCache {
	return &shortIDCache{
		labels2ShortIds: make(map[shortKey]string),
		shortIds2Infos:  make(map[string]*pipepb.MonitoringInfo),
	}
}

// getShortID returns the short id for the given metric, and if
// it doesn't exist yet, stores the metadata.
// Assumes c.mu lock is held.
func (c *shortIDCache) getShortID(k shortKey) string {
	s, ok := c.labels2ShortIds[k]
	if ok {
		return s
	}
	c.lastShortID++
	// No reason not to use the smallest string short ids possible.
	s = strconv.FormatInt(c.lastShortID, 36)
	c.labels2ShortIds[k] = s
	c.shortIds2Infos[s] = &pipepb.MonitoringInfo{
		Urn:    k.urn,
		Type:   typeSumInt64,
		Labels: map[string]string{k.label: k.value},
	}
	return s
}

func (c *shortIDCache) shortIdsToInfos(shortids []string) map[string]*pipepb.MonitoringInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := make(map[string]*pipepb.MonitoringInfo, len(shortids))
	for _, s := range shortids {
		if info, ok := c.shortIds2Infos[s]; ok {
			m[s] = info
		}
	}
	return m
}

// monitoring returns the full monitoring infos of the given counts, and the
// same values keyed by short id.
func (c *shortIDCache) monitoring(counts []exec.PCollectionSnapshot, progress []exec.ProgressReportSnapshot) ([]*pipepb.MonitoringInfo, map[string][]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var infos []*pipepb.MonitoringInfo
	payloads := make(map[string][]byte)
	add := func(k shortKey, v int64) {
		payload := int64Counter(v)
		payloads[c.getShortID(k)] = payload
		infos = append(infos, &pipepb.MonitoringInfo{
			Urn:     k.urn,
			Type:    typeSumInt64,
			Labels:  map[string]string{k.label: k.value},
			Payload: payload,
		})
	}

	for _, snap := range counts {
		add(shortKey{label: labelPCollection, value: snap.ID, urn: urnElementCount}, snap.ElementCount)
	}
	for _, prog := range progress {
		// The read index is the index of the last element read.
		add(shortKey{label: labelPTransform, value: prog.ID, urn: urnReadIndex}, prog.Count-1)
	}
	return infos, payloads
}

func int64Counter(v int64) []byte {
	var buf bytes.Buffer
	coder.EncodeVarInt(v, &buf) // writes to a bytes.Buffer never fail
	return buf.Bytes()
}
