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

import "encoding/binary"

// Record length bounds, per the miniSEED 2.x/3.x specifications.
const (
	MinRecordLength = 48
	MaxRecordLength = 4096
)

// Sentinel return values of DetectRecord.
const (
	// Invalid means the buffer can never become a valid record no
	// matter how many more bytes arrive; this is fatal mid-stream.
	Invalid = -1
	// Incomplete means the detector needs more bytes before it can
	// decide.
	Incomplete = 0
)

// fixed-section offsets, miniSEED 2.x (FSDH), all big-or-little per
// the endianness this detector infers from content.
const (
	ms2SeqOff        = 0  // 6 ASCII digits
	ms2QualityOff    = 6  // 1 byte
	ms2YearOff       = 20 // uint16
	ms2DayOff        = 22 // uint16
	ms2NumBlkOff     = 39 // uint8, number of blockettes that follow
	ms2FirstBlkOff   = 46 // uint16, offset to first blockette from record start
	ms2FixedHdrBytes = 48
)

// miniSEED 3.x fixed header, always little-endian.
const (
	ms3VersionOff  = 2
	ms3SIDLenOff   = 29 // uint8
	ms3ExtraLenOff = 30 // uint16
	ms3DataLenOff  = 32 // uint32
	ms3FixedHdrLen = 40
)

const blocketteHdrLen = 4 // type(2) + next-offset(2)
const b1000Type = 1000
const b1000ReclenOff = 6 // offset, from the start of the B1000, of the record-length exponent byte

// DetectRecord inspects buf (the bytes that follow the 8-byte SeedLink
// frame header) and returns Invalid, Incomplete, or the confirmed
// length in bytes of the miniSEED record at the front of buf.
func DetectRecord(buf []byte) int {
	if len(buf) < MinRecordLength {
		return Incomplete
	}

	if looksLikeMS3(buf) {
		return detectMS3(buf)
	}

	bigEndian, ok := ms2Endianness(buf)
	if !ok {
		return Invalid
	}
	if n := detectMS2(buf, bigEndian); n != Incomplete {
		return n
	}
	return Incomplete
}

func looksLikeMS3(buf []byte) bool {
	return buf[0] == 'M' && buf[1] == 'S' && buf[ms3VersionOff] == 3
}

func detectMS3(buf []byte) int {
	sidLen := int(buf[ms3SIDLenOff])
	extraLen := int(binary.LittleEndian.Uint16(buf[ms3ExtraLenOff:]))
	dataLen := int(binary.LittleEndian.Uint32(buf[ms3DataLenOff:]))
	length := ms3FixedHdrLen + sidLen + extraLen + dataLen
	if length < MinRecordLength || length > MaxRecordLength {
		return Invalid
	}
	return length
}

// ms2Endianness decides, from the plausibility of the year/day-of-year
// fields, whether the record's multi-byte fields are big- or
// little-endian. It also validates the sequence-number and
// data-quality fields that are endian-independent (they're bytes, not
// multi-byte integers).
func ms2Endianness(buf []byte) (bigEndian bool, ok bool) {
	for _, c := range buf[ms2SeqOff : ms2SeqOff+6] {
		if c < '0' || c > '9' {
			if c != ' ' {
				return false, false
			}
		}
	}
	if !validQualityIndicator(buf[ms2QualityOff]) {
		return false, false
	}
	beYear := binary.BigEndian.Uint16(buf[ms2YearOff:])
	beDay := binary.BigEndian.Uint16(buf[ms2DayOff:])
	if plausibleYearDay(beYear, beDay) {
		return true, true
	}
	leYear := binary.LittleEndian.Uint16(buf[ms2YearOff:])
	leDay := binary.LittleEndian.Uint16(buf[ms2DayOff:])
	if plausibleYearDay(leYear, leDay) {
		return false, true
	}
	return false, false
}

func validQualityIndicator(q byte) bool {
	switch q {
	case 'D', 'R', 'Q', 'M':
		return true
	default:
		return false
	}
}

func plausibleYearDay(year, day uint16) bool {
	return year >= 1900 && year <= 2050 && day >= 1 && day <= 366
}

// detectMS2 walks the blockette chain of a recognized 2.x record
// looking for blockette 1000, falling back to a 64-byte resync scan
// when none is present.
func detectMS2(buf []byte, bigEndian bool) int {
	order := binary.ByteOrder(binary.BigEndian)
	if !bigEndian {
		order = binary.LittleEndian
	}

	numBlockettes := int(buf[ms2NumBlkOff])
	offset := int(order.Uint16(buf[ms2FirstBlkOff:]))

	if numBlockettes > 0 && offset != 0 {
		n, stalledAt, done := walkBlockettes(buf, order, offset)
		if done {
			return n
		}
		// chain walk needed more bytes than we have, at stalledAt -
		// not necessarily the first blockette's offset.
		if stalledAt+blocketteHdrLen > len(buf) {
			return Incomplete
		}
	}

	return resync(buf)
}

// walkBlockettes returns (length, _, true) if it reaches a conclusive
// answer (found B1000, or detected a structural error), and
// (_, stalledAt, false) if it ran out of buffer and needs more bytes -
// stalledAt is the offset it was examining when it ran out, which may
// be well past the chain's starting offset.
func walkBlockettes(buf []byte, order binary.ByteOrder, offset int) (int, int, bool) {
	seen := 0
	for offset != 0 {
		seen++
		if seen > 64 {
			// chain is absurdly long or looping; treat as invalid
			return Invalid, offset, true
		}
		if offset+blocketteHdrLen > len(buf) {
			return 0, offset, false
		}
		blkType := order.Uint16(buf[offset:])
		next := int(order.Uint16(buf[offset+2:]))
		if next != 0 && next <= offset+4 {
			return Invalid, offset, true
		}
		if blkType == b1000Type {
			reclenOff := offset + b1000ReclenOff
			if reclenOff >= len(buf) {
				return 0, offset, false
			}
			exp := buf[reclenOff]
			if exp < 6 || exp > 12 {
				return Invalid, offset, true
			}
			length := 1 << exp
			if length < MinRecordLength || length > MaxRecordLength {
				return Invalid, offset, true
			}
			return length, offset, true
		}
		offset = next
	}
	return 0, offset, true // chain ended (next==0) without a B1000: caller falls back to resync
}

// resync scans forward at 64-byte offsets for the next recognizable
// 2.x fixed-section header; the gap to it is this record's length.
func resync(buf []byte) int {
	for off := 64; off+MinRecordLength <= len(buf); off += 64 {
		if looksLikeMS2FixedHeader(buf[off:]) {
			return off
		}
	}
	return Incomplete
}

func looksLikeMS2FixedHeader(buf []byte) bool {
	_, ok := ms2Endianness(buf)
	return ok
}
