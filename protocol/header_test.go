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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeHeaderRoundTrip(t *testing.T) {
	for seq := int32(0); seq < SeqMod; seq += 104729 { // sample across the whole range
		b := EncodeDataHeader(seq)
		h, err := DecodeHeader(b)
		require.NoError(t, err)
		require.Equal(t, FrameData, h.Kind)
		require.Equal(t, seq, h.Seqnum)
	}
}

func TestDecodeHeaderInfo(t *testing.T) {
	h, err := DecodeHeader(EncodeInfoHeader(false))
	require.NoError(t, err)
	require.Equal(t, FrameInfo, h.Kind)
	require.False(t, h.Terminator)

	h, err = DecodeHeader(EncodeInfoHeader(true))
	require.NoError(t, err)
	require.True(t, h.Terminator)
}

func TestDecodeHeaderBadMagic(t *testing.T) {
	_, err := DecodeHeader([]byte("XXdeadbe"))
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestDecodeHeaderBadSeq(t *testing.T) {
	_, err := DecodeHeader([]byte("SLzzzzzz"))
	require.ErrorIs(t, err, ErrBadSeqnum)
}

func TestNextSeqWraps(t *testing.T) {
	require.Equal(t, int32(0), NextSeq(SeqMod-1))
	require.Equal(t, int32(5), NextSeq(4))
}
