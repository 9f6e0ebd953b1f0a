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

package protocol

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

// RecordFields is the subset of a miniSEED record's header that the
// registry and the archive router need: identity, start time, and a
// single-letter "type" used by archive path templates.
type RecordFields struct {
	Net, Sta, Loc, Chan string
	Year                int
	DayOfYear           int
	Hour, Minute, Second int
	FracSec             int // ten-thousandths of a second, 0-9999
	TypeCode            byte
}

// validTypeCodes mirrors the archive router's %t token set.
const validTypeCodes = "DECTLOIU?"

// ParseRecordFields extracts identity/time fields from a raw miniSEED
// record (not including the 8-byte SeedLink frame header). raw must
// be at least MinRecordLength bytes, as already guaranteed by
// DetectRecord having confirmed the record boundary.
func ParseRecordFields(raw []byte) (RecordFields, error) {
	if len(raw) < MinRecordLength {
		return RecordFields{}, fmt.Errorf("record too short to hold a fixed header: %d bytes", len(raw))
	}
	if looksLikeMS3(raw) {
		return parseMS3Fields(raw)
	}
	return parseMS2Fields(raw)
}

func parseMS2Fields(raw []byte) (RecordFields, error) {
	bigEndian, ok := ms2Endianness(raw)
	if !ok {
		return RecordFields{}, fmt.Errorf("not a recognizable miniSEED 2.x fixed header")
	}
	order := binary.ByteOrder(binary.BigEndian)
	if !bigEndian {
		order = binary.LittleEndian
	}
	f := RecordFields{
		Sta:     strings.TrimSpace(string(raw[8:13])),
		Loc:     strings.TrimSpace(string(raw[13:15])),
		Chan:    strings.TrimSpace(string(raw[15:18])),
		Net:     strings.TrimSpace(string(raw[18:20])),
		Year:    int(order.Uint16(raw[ms2YearOff:])),
		DayOfYear: int(order.Uint16(raw[ms2DayOff:])),
		Hour:    int(raw[24]),
		Minute:  int(raw[25]),
		Second:  int(raw[26]),
		FracSec: int(order.Uint16(raw[28:])),
	}
	f.TypeCode = typeCodeFromByte(raw[ms2QualityOff])
	return f, nil
}

func parseMS3Fields(raw []byte) (RecordFields, error) {
	sidLen := int(raw[ms3SIDLenOff])
	if ms3FixedHdrLen+sidLen > len(raw) {
		return RecordFields{}, fmt.Errorf("source identifier runs past buffer")
	}
	sid := string(raw[ms3FixedHdrLen : ms3FixedHdrLen+sidLen])
	net, sta, loc, chn := parseFDSNSourceID(sid)
	ns := binary.LittleEndian.Uint32(raw[4:8])
	f := RecordFields{
		Net:       net,
		Sta:       sta,
		Loc:       loc,
		Chan:      chn,
		Year:      int(binary.LittleEndian.Uint16(raw[8:10])),
		DayOfYear: int(binary.LittleEndian.Uint16(raw[10:12])),
		Hour:      int(raw[12]),
		Minute:    int(raw[13]),
		Second:    int(raw[14]),
		FracSec:   int(ns / 100000),
		TypeCode:  'D', // miniSEED 3.x has no legacy type-code concept
	}
	return f, nil
}

// parseFDSNSourceID splits a "FDSN:NET_STA_LOC_CHAN" source identifier
// into its four components. Missing components are returned empty.
func parseFDSNSourceID(sid string) (net, sta, loc, chn string) {
	sid = strings.TrimPrefix(sid, "FDSN:")
	parts := strings.Split(sid, "_")
	if len(parts) > 0 {
		net = parts[0]
	}
	if len(parts) > 1 {
		sta = parts[1]
	}
	if len(parts) > 2 {
		loc = parts[2]
	}
	if len(parts) > 3 {
		chn = parts[3]
	}
	return
}

// StartTime returns the record's start time as a UTC time.Time,
// accurate to the second; FracSec has no place in the wire time
// format (TimeLayout) and is dropped.
func (f RecordFields) StartTime() time.Time {
	return time.Date(f.Year, time.January, 1, f.Hour, f.Minute, f.Second, 0, time.UTC).
		AddDate(0, 0, f.DayOfYear-1)
}

func typeCodeFromByte(b byte) byte {
	for _, c := range []byte(validTypeCodes) {
		if b == c {
			return c
		}
	}
	return 'D'
}
