/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package engine

// State is the connection's high-level lifecycle state.
type State int

// Connection states.
const (
	StateDown State = iota
	StateUp
	StateData
)

func (s State) String() string {
	switch s {
	case StateDown:
		return "DOWN"
	case StateUp:
		return "UP"
	case StateData:
		return "DATA"
	default:
		return "UNKNOWN"
	}
}

// QueryMode tracks what kind of INFO request, if any, is currently in
// flight.
type QueryMode int

// Query modes.
const (
	QueryNone QueryMode = iota
	QueryInfo
	QueryKeepAlive
)

func (m QueryMode) String() string {
	switch m {
	case QueryNone:
		return "none"
	case QueryInfo:
		return "info"
	case QueryKeepAlive:
		return "keepalive"
	default:
		return "unknown"
	}
}

// BatchMode preserves the source implementation's two-level "batch"
// integer (0 = off, 1 = requested, 2 = activated) as an explicit enum,
// per the Open Question in spec.md §9.
type BatchMode int

// Batch modes.
const (
	BatchNone BatchMode = iota
	BatchRequested
	BatchActivated
)

// StepResult is what one invocation of Step/StepNB returns.
type StepResult int

// Step results.
const (
	// ResultPacket means a data record or a completed, caller-requested
	// INFO response was just decoded; call Packet() to retrieve it.
	ResultPacket StepResult = iota
	// ResultNoPacket means nothing was ready this tick. Both Step and
	// StepNB return it; Collect keeps stepping instead.
	ResultNoPacket
	// ResultTerminated means the engine has shut down and will not
	// produce more packets; call Err() for the reason, if any.
	ResultTerminated
)

func (r StepResult) String() string {
	switch r {
	case ResultPacket:
		return "PACKET"
	case ResultNoPacket:
		return "NO_PACKET"
	case ResultTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}
