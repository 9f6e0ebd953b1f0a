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

// Package protocol implements the SeedLink wire codec: ASCII command
// encoding, the 8-byte frame header, and miniSEED record-boundary
// detection. It has no knowledge of sockets, timers or subscription
// state - those live in the engine and registry packages.
package protocol

import (
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the wire format used by DATA/FETCH/TIME arguments and
// by the state file: YYYY,MM,DD,HH,MM,SS.
const TimeLayout = "2006,01,02,15,04,05"

// FormatTime renders t in the wire time format.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses the wire time format.
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time string")
	}
	return time.Parse(TimeLayout, s)
}

// crlf terminates every ASCII command.
const crlf = "\r\n"

// HelloCmd requests server and site identification.
func HelloCmd() []byte { return []byte("HELLO" + crlf) }

// CatCmd requests the server's full stream list.
func CatCmd() []byte { return []byte("CAT" + crlf) }

// ByeCmd politely ends the session.
func ByeCmd() []byte { return []byte("BYE" + crlf) }

// BatchCmd requests batch mode (suppressed per-command acks), protocol >= 3.0.
func BatchCmd() []byte { return []byte("BATCH" + crlf) }

// EndCmd closes out a negotiation sequence and starts streaming.
func EndCmd() []byte { return []byte("END" + crlf) }

// StationCmd selects a station for multi-station mode.
func StationCmd(sta, net string) []byte {
	return []byte(fmt.Sprintf("STATION %s %s%s", sta, net, crlf))
}

// SelectCmd applies a selector to the most recently selected station
// (or, in uni-station mode, to the whole session). An empty selector
// clears all previously applied selectors, per the wire protocol.
func SelectCmd(selector string) []byte {
	if selector == "" {
		return []byte("SELECT" + crlf)
	}
	return []byte(fmt.Sprintf("SELECT %s%s", selector, crlf))
}

// DataCmd requests streaming resumption, optionally from a sequence
// number. startTime is sent only together with a sequence number; it
// is dropped when seqnum is SeqUnset.
func DataCmd(seqnum int32, startTime string) []byte {
	return dataLikeCmd("DATA", seqnum, startTime)
}

// FetchCmd is DATA's dial-up sibling: the server streams what it has
// buffered and then closes with an END sentinel.
func FetchCmd(seqnum int32, startTime string) []byte {
	return dataLikeCmd("FETCH", seqnum, startTime)
}

func dataLikeCmd(verb string, seqnum int32, startTime string) []byte {
	var b strings.Builder
	b.WriteString(verb)
	if seqnum >= 0 {
		fmt.Fprintf(&b, " %06X", seqnum&0xFFFFFF)
		if startTime != "" {
			fmt.Fprintf(&b, " %s", startTime)
		}
	}
	b.WriteString(crlf)
	return []byte(b.String())
}

// TimeCmd requests server-side time-windowed delivery.
func TimeCmd(start, end string) []byte {
	var b strings.Builder
	b.WriteString("TIME")
	if start != "" {
		fmt.Fprintf(&b, " %s", start)
		if end != "" {
			fmt.Fprintf(&b, " %s", end)
		}
	}
	b.WriteString(crlf)
	return []byte(b.String())
}

// InfoCmd requests an INFO level ("ID", "STATIONS", "STREAMS", "GAPS",
// "CONNECTIONS", ...).
func InfoCmd(level string) []byte {
	return []byte(fmt.Sprintf("INFO %s%s", level, crlf))
}
