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

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateRequiresAddress(t *testing.T) {
	cfg := DefaultConfig()
	require.ErrorIs(t, cfg.Validate(), ErrConfigInvalid)
}

func TestValidateRejectsMixedUniAndOrdinary(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Address = "host:18000"
	cfg.Streams = []StreamConfig{
		{Net: "XX", Sta: "UNI"},
		{Net: "NL", Sta: "HGN"},
	}
	require.ErrorIs(t, cfg.Validate(), ErrConfigInvalid)
}

func TestValidateAcceptsOrdinaryStreams(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Address = "host:18000"
	cfg.Streams = []StreamConfig{{Net: "NL", Sta: "HGN", Selectors: []string{"BHZ.D"}}}
	require.NoError(t, cfg.Validate())
}

func TestPrepareConfigAppliesOverrides(t *testing.T) {
	addr := "override:18000"
	cfg, err := PrepareConfig("", Overrides{Address: &addr})
	require.NoError(t, err)
	require.Equal(t, addr, cfg.Address)
}
