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

// Arena holds the groups of one bundle of a GroupByKey. Groups keep the order
// in which their keys were first seen. All groups are released together.
type Arena struct {
	index  map[string]int
	groups []group
}

type group struct {
	key    any
	values []any
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{index: make(map[string]int)}
}

// Add appends value to the group of the key with the given encoding.
func (a *Arena) Add(encodedKey string, key, value any) {
	i, ok := a.index[encodedKey]
	if !ok {
		i = len(a.groups)
		a.index[encodedKey] = i
		a.groups = append(a.groups, group{key: key})
	}
	a.groups[i].values = append(a.groups[i].values, value)
}

// Len returns the number of distinct keys.
func (a *Arena) Len() int {
	return len(a.groups)
}

// Each calls fn for every group in first seen order, stopping at the first
// error.
func (a *Arena) Each(fn func(key any, values []any) error) error {
	for _, g := range a.groups {
		if err := fn(g.key, g.values); err != nil {
			return err
		}
	}
	return nil
}

// Release drops every group at once.
func (a *Arena) Release() {
	clear(a.index)
	clear(a.groups)
	a.groups = a.groups[:0]
}
