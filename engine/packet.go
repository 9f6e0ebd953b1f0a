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

import "github.com/geoseis/slink/protocol"

// Packet is one fully-framed record delivered to the caller: the raw
// miniSEED bytes plus the header/fields the engine already had to
// parse to route and persist it, so callers don't need to re-parse.
type Packet struct {
	Seqnum  int32
	Raw     []byte
	Fields  protocol.RecordFields
	IsInfo  bool
	InfoEnd bool // true on the record that terminates an INFO response
}

// infoAccumulator collects the (possibly multi-record) response to an
// INFO request until the terminator frame arrives.
type infoAccumulator struct {
	active bool
	buf    []byte
}

func (a *infoAccumulator) begin() {
	a.active = true
	a.buf = a.buf[:0]
}

func (a *infoAccumulator) append(b []byte) {
	a.buf = append(a.buf, b...)
}

func (a *infoAccumulator) reset() {
	a.active = false
	a.buf = nil
}
