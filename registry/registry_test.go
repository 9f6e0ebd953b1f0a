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

package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/geoseis/slink/protocol"
)

func TestAddAndFind(t *testing.T) {
	r := New()
	_, err := r.Add("NL", "HGN", []string{"BHZ.D"}, protocol.SeqUnset, "")
	require.NoError(t, err)
	_, err = r.Add("NL", "*", nil, protocol.SeqUnset, "")
	require.NoError(t, err)

	require.NotNil(t, r.Find("NL", "HGN"))
	require.Nil(t, r.Find("NL", "DBN"))
	require.Equal(t, 2, r.Len())
}

func TestUniModeConflict(t *testing.T) {
	r := New()
	_, err := r.Add("NL", "HGN", nil, protocol.SeqUnset, "")
	require.NoError(t, err)
	_, err = r.SetUni(nil, protocol.SeqUnset, "")
	require.ErrorIs(t, err, ErrModeConflict)
}

func TestOrdinaryConflictsWithUni(t *testing.T) {
	r := New()
	_, err := r.SetUni(nil, protocol.SeqUnset, "")
	require.NoError(t, err)
	_, err = r.Add("NL", "HGN", nil, protocol.SeqUnset, "")
	require.ErrorIs(t, err, ErrModeConflict)
}

func TestMatchAndUpdateUni(t *testing.T) {
	r := New()
	_, err := r.SetUni(nil, protocol.SeqUnset, "")
	require.NoError(t, err)

	n := r.MatchAndUpdate("NL", "HGN", 42, "2026,01,01,00,00,00")
	require.Equal(t, 1, n)
	require.Equal(t, int32(42), r.Iter()[0].Seqnum)
}

func TestMatchAndUpdateGlob(t *testing.T) {
	r := New()
	_, err := r.Add("NL", "*", nil, protocol.SeqUnset, "")
	require.NoError(t, err)
	_, err = r.Add("G?", "CAN", nil, protocol.SeqUnset, "")
	require.NoError(t, err)

	n := r.MatchAndUpdate("NL", "HGN", 7, "")
	require.Equal(t, 1, n)

	n = r.MatchAndUpdate("GE", "CAN", 8, "")
	require.Equal(t, 1, n)

	n = r.MatchAndUpdate("XX", "YYY", 9, "")
	require.Equal(t, 0, n)
}

func TestParseFormatSeqnumRoundTrip(t *testing.T) {
	for _, seq := range []int32{0, 1, 0xABCDEF, protocol.SeqMod - 1} {
		s := FormatSeqnum(seq)
		got, err := ParseSeqnum(s)
		require.NoError(t, err)
		require.Equal(t, seq, got)
	}
}

func TestParseSeqnumUnset(t *testing.T) {
	for _, s := range []string{"", "-1"} {
		got, err := ParseSeqnum(s)
		require.NoError(t, err)
		require.Equal(t, protocol.SeqUnset, got)
	}
}

func TestValidate(t *testing.T) {
	r := New()
	require.NoError(t, r.Validate())
	_, err := r.Add("NL", "HGN", nil, protocol.SeqUnset, "")
	require.NoError(t, err)
	require.NoError(t, r.Validate())
}
