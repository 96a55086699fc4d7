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

import "fmt"

// Status is the lifecycle status of a plan across bundles.
type Status int32

const (
	// Initializing plans have not yet brought their units up.
	Initializing Status = iota
	// Up plans are idle and ready for a bundle.
	Up
	// Active plans are processing a bundle.
	Active
	// Broken plans failed a bundle and must not be reused.
	Broken
	// Down plans have been torn down.
	Down
)

func (s Status) String() string {
	switch s {
	case Initializing:
		return "Initializing"
	case Up:
		return "Up"
	case Active:
		return "Active"
	case Broken:
		return "Broken"
	case Down:
		return "Down"
	default:
		return fmt.Sprintf("Status(%d)", int32(s))
	}
}

// BundleState is the state of the bundle a plan is executing.
//
//	Created -> Started -> Processing -> Finishing -> Completed
//
// A failure or cancellation in any state moves through Finishing, where the
// plan is torn down, and ends in Failed.
type BundleState int32

const (
	Created BundleState = iota
	Started
	Processing
	Finishing
	Completed
	Failed
)

func (s BundleState) String() string {
	switch s {
	case Created:
		return "Created"
	case Started:
		return "Started"
	case Processing:
		return "Processing"
	case Finishing:
		return "Finishing"
	case Completed:
		return "Completed"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("BundleState(%d)", int32(s))
	}
}
