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
	"fmt"
	"strings"

	version "github.com/hashicorp/go-version"
)

// serverVersion wraps the server protocol version advertised in the
// HELLO response ("SeedLink v3.1 ..."). It's kept as a
// github.com/hashicorp/go-version.Version instead of a bare float so
// that the >= comparisons the negotiation step needs (batch mode
// requires >= 3.0, multi-station requires >= 2.5) read as version
// comparisons rather than ad hoc float arithmetic.
type serverVersion struct {
	v *version.Version
}

var (
	minBatchVersion        = version.Must(version.NewVersion("3.0"))
	minMultiStationVersion = version.Must(version.NewVersion("2.5"))
)

// parseServerVersion extracts the version token from a HELLO banner
// such as "SeedLink v3.1 Net_Ring_Server 2023.256...". Unparseable
// banners degrade to version "2.0", the protocol floor, rather than
// failing negotiation outright - an old or minimal server that omits
// its version is still usable in the most basic (uni-station, no
// batch) mode; multi-station negotiation is refused below 2.5.
func parseServerVersion(banner string) serverVersion {
	const marker = "SeedLink v"
	idx := strings.Index(banner, marker)
	if idx < 0 {
		return serverVersion{v: version.Must(version.NewVersion("2.0"))}
	}
	rest := banner[idx+len(marker):]
	end := strings.IndexAny(rest, " \t\r\n")
	if end >= 0 {
		rest = rest[:end]
	}
	v, err := version.NewVersion(rest)
	if err != nil {
		return serverVersion{v: version.Must(version.NewVersion("2.0"))}
	}
	return serverVersion{v: v}
}

func (s serverVersion) String() string {
	if s.v == nil {
		return "unknown"
	}
	return s.v.String()
}

func (s serverVersion) SupportsBatch() bool {
	return s.v != nil && s.v.GreaterThanOrEqual(minBatchVersion)
}

func (s serverVersion) SupportsMultiStation() bool {
	return s.v != nil && s.v.GreaterThanOrEqual(minMultiStationVersion)
}

func (s serverVersion) Float() float64 {
	if s.v == nil {
		return 0
	}
	segs := s.v.Segments()
	if len(segs) == 0 {
		return 0
	}
	minor := 0
	if len(segs) > 1 {
		minor = segs[1]
	}
	return float64(segs[0]) + float64(minor)/10
}

func (s serverVersion) Err() error {
	if s.v == nil {
		return fmt.Errorf("no server version available")
	}
	return nil
}
