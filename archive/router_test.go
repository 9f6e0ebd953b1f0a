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

package archive

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/geoseis/slink/protocol"
)

func fields(net, sta, loc, chn string, year, day int) protocol.RecordFields {
	return protocol.RecordFields{Net: net, Sta: sta, Loc: loc, Chan: chn, Year: year, DayOfYear: day, TypeCode: 'D'}
}

func TestParseTemplateAndExpand(t *testing.T) {
	tokens, err := ParseTemplate(TemplateSDS)
	require.NoError(t, err)

	f := fields("NL", "HGN", "00", "BHZ", 2026, 45)
	require.Equal(t, "2026/NL/HGN/BHZ.D/NL.HGN.00.BHZ.D.2026.045", Expand(tokens, f))
	require.Equal(t, Expand(tokens, f), DefiningKey(tokens, f))
}

func TestParseTemplateNonDefining(t *testing.T) {
	tokens, err := ParseTemplate("%n/%s/#H/%c.%Y.%j")
	require.NoError(t, err)
	f := fields("NL", "HGN", "00", "BHZ", 2026, 45)
	f.Hour = 13

	require.Equal(t, "NL/HGN/13/BHZ.2026.045", Expand(tokens, f))
	require.Equal(t, "NL/HGN//BHZ.2026.045", DefiningKey(tokens, f))
}

func TestParseTemplateRejectsUnknownToken(t *testing.T) {
	_, err := ParseTemplate("%n/%z")
	require.Error(t, err)
}

func TestRouterAppendsAndReuses(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRouter(dir, "%n/%s/%c.%Y.%j", 4, time.Minute)
	require.NoError(t, err)
	defer r.Close()

	f := fields("NL", "HGN", "00", "BHZ", 2026, 45)
	require.NoError(t, r.Append([]byte("rec1"), f))
	require.NoError(t, r.Append([]byte("rec2"), f))
	require.Equal(t, 1, r.OpenCount())

	data, err := os.ReadFile(filepath.Join(dir, "NL/HGN/BHZ.2026.045"))
	require.NoError(t, err)
	require.Equal(t, "rec1rec2", string(data))
}

func TestRouterEvictsOverflow(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRouter(dir, "%n/%s/%c.%Y.%j", 1, time.Minute)
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Append([]byte("a"), fields("NL", "HGN", "00", "BHZ", 2026, 45)))
	require.Equal(t, 1, r.OpenCount())
	require.NoError(t, r.Append([]byte("b"), fields("NL", "DBN", "00", "BHZ", 2026, 45)))
	require.Equal(t, 1, r.OpenCount())
}

func TestRouterEvictsIdle(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRouter(dir, "%n/%s/%c.%Y.%j", 4, time.Nanosecond)
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Append([]byte("a"), fields("NL", "HGN", "00", "BHZ", 2026, 45)))
	time.Sleep(time.Millisecond)
	require.NoError(t, r.Append([]byte("b"), fields("NL", "DBN", "00", "BHZ", 2026, 45)))
	require.Equal(t, 1, r.OpenCount())
}
