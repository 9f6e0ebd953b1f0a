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

package statefile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	records, err := Load(filepath.Join(t.TempDir(), "nope.state"))
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slink.state")
	in := []Record{
		{Net: "NL", Sta: "HGN", Seqnum: 0xABCDEF, Timestamp: "2026,01,02,03,04,05"},
		{Net: "NL", Sta: "DBN", Seqnum: -1, Timestamp: "2026,01,02,03,04,05"},
	}
	require.NoError(t, Save(path, in))

	out, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestLoadRejectsMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.state")
	require.NoError(t, os.WriteFile(path, []byte("NL HGN\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
