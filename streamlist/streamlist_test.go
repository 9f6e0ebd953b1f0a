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

package streamlist

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSkipsCommentsAndBlanks(t *testing.T) {
	in := "# comment\n\nNL HGN BHZ.D\nG? CAN !LHZ\n"
	entries, err := Parse(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, Entry{Net: "NL", Sta: "HGN", Selectors: []string{"BHZ.D"}}, entries[0])
	require.Equal(t, Entry{Net: "G?", Sta: "CAN", Selectors: []string{"!LHZ"}}, entries[1])
}

func TestParseRejectsMissingSta(t *testing.T) {
	_, err := Parse(strings.NewReader("NL\n"))
	require.Error(t, err)
}

func TestParseRejectsBadSelector(t *testing.T) {
	_, err := Parse(strings.NewReader("NL HGN ZZZZZZZ\n"))
	require.Error(t, err)
}

func TestFormatRoundTrip(t *testing.T) {
	entries := []Entry{{Net: "NL", Sta: "HGN", Selectors: []string{"BHZ.D", "!LHZ"}}}
	out := Format(entries)
	reparsed, err := Parse(strings.NewReader(out))
	require.NoError(t, err)
	require.Equal(t, entries, reparsed)
}
