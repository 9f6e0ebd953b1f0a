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
	"testing"

	"github.com/stretchr/testify/require"
)

// buildMS2FixedHeader returns a minimal, otherwise-zeroed 2.x fixed
// section header of the given total size, with a B1000 describing
// that size appended right after the 48-byte FSDH.
func buildMS2Record(totalLen int, bigEndian bool, withB1000 bool) []byte {
	buf := make([]byte, totalLen)
	copy(buf[0:6], []byte("000001"))
	buf[6] = 'D'
	copy(buf[8:13], []byte("STA  "))
	copy(buf[13:15], []byte("00"))
	copy(buf[15:18], []byte("BHZ"))
	copy(buf[18:20], []byte("NL"))

	order := binary.ByteOrder(binary.BigEndian)
	if !bigEndian {
		order = binary.LittleEndian
	}
	order.PutUint16(buf[ms2YearOff:], 2024)
	order.PutUint16(buf[ms2DayOff:], 100)
	buf[24], buf[25], buf[26] = 12, 30, 0

	if withB1000 {
		buf[ms2NumBlkOff] = 1
		order.PutUint16(buf[ms2FirstBlkOff:], 48)
		order.PutUint16(buf[48:], b1000Type)
		order.PutUint16(buf[50:], 0) // next offset = 0, end of chain
		// exponent such that 1<<exp == totalLen
		exp := 0
		for n := totalLen; n > 1; n >>= 1 {
			exp++
		}
		buf[48+b1000ReclenOff] = byte(exp)
	}
	return buf
}

func TestDetectRecordIncompleteShortBuffer(t *testing.T) {
	require.Equal(t, Incomplete, DetectRecord(make([]byte, 47)))
}

func TestDetectRecordMS2WithB1000(t *testing.T) {
	for _, big := range []bool{true, false} {
		rec := buildMS2Record(512, big, true)
		require.Equal(t, 512, DetectRecord(rec), "bigEndian=%v", big)
	}
}

func TestDetectRecordB1000ReclenOutOfRange(t *testing.T) {
	rec := buildMS2Record(512, true, true)
	rec[48+b1000ReclenOff] = 12 // valid: 1<<12 = 4096, regardless of the buffer we happen to have on hand
	require.Equal(t, 4096, DetectRecord(rec))

	rec2 := buildMS2Record(512, true, true)
	rec2[48+b1000ReclenOff] = 13 // invalid: 1<<13 = 8192, out of range
	require.Equal(t, Invalid, DetectRecord(rec2))
}

func TestDetectRecordResyncWithoutB1000(t *testing.T) {
	first := buildMS2Record(256, true, false)
	second := buildMS2Record(256, true, true)
	buf := append(first, second...)
	require.Equal(t, 256, DetectRecord(buf))
}

// TestDetectMS2PartialBufferPastFirstBlockette constructs a blockette
// chain whose first (non-B1000) blockette is fully buffered but whose
// "next" pointer leads to a second blockette that is not: detectMS2
// must report Incomplete rather than reusing the first blockette's
// offset (which is well within the buffer) to wrongly decide the
// chain walk is conclusive and fall through to resync.
func TestDetectMS2PartialBufferPastFirstBlockette(t *testing.T) {
	const bufLen = 116
	buf := make([]byte, bufLen)
	copy(buf[0:6], []byte("000001"))
	buf[6] = 'D'
	copy(buf[8:13], []byte("STA  "))
	copy(buf[13:15], []byte("00"))
	copy(buf[15:18], []byte("BHZ"))
	copy(buf[18:20], []byte("NL"))

	order := binary.ByteOrder(binary.BigEndian)
	order.PutUint16(buf[ms2YearOff:], 2024)
	order.PutUint16(buf[ms2DayOff:], 100)
	buf[24], buf[25], buf[26] = 12, 30, 0

	buf[ms2NumBlkOff] = 2
	order.PutUint16(buf[ms2FirstBlkOff:], 48)

	// First blockette (not B1000), chaining to a second blockette at
	// offset 200 - well beyond bufLen, so the chain walk must stall
	// there, not at offset 48.
	order.PutUint16(buf[48:], 400)
	order.PutUint16(buf[50:], 200)

	// A header that would look like a plausible MS2 fixed section if
	// resync() were wrongly reached: proves the bug's consequence is
	// not just a wrong Incomplete/Invalid call but an actual false
	// positive record boundary.
	copy(buf[64:70], []byte("000002"))
	buf[70] = 'D'
	order.PutUint16(buf[84:], 2024)
	order.PutUint16(buf[86:], 100)

	require.Equal(t, Incomplete, DetectRecord(buf))
}

func TestDetectRecordMS3(t *testing.T) {
	sid := "FDSN:NL_HGN_00_BHZ"
	dataLen := 20
	total := ms3FixedHdrLen + len(sid) + dataLen

	buf := make([]byte, total)
	buf[0], buf[1] = 'M', 'S'
	buf[ms3VersionOff] = 3
	buf[ms3SIDLenOff] = byte(len(sid))
	binary.LittleEndian.PutUint16(buf[ms3ExtraLenOff:], 0)
	binary.LittleEndian.PutUint32(buf[ms3DataLenOff:], uint32(dataLen))
	copy(buf[ms3FixedHdrLen:], sid)

	require.Equal(t, total, DetectRecord(buf))
}

func TestDetectRecordInvalidMagic(t *testing.T) {
	buf := make([]byte, 64)
	copy(buf, []byte("@@@@@@"))
	require.Equal(t, Invalid, DetectRecord(buf))
}
