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


// Package errorx contains utilities for handling errors.
package errorx

import "sync"

// GuardedError is a concurrency-safe holder of the first error set.
type GuardedError struct {
	mu  sync.Mutex
	err error
}

// Error returns the held error, or nil.
func (g *GuardedError) Error() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

// TrySetError sets the error if none is held and reports whether it did.
func (g *GuardedError) TrySetError(err error) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return false
	}
	g.err = err
	return true
}
