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

// Package registry holds the ordered collection of stream
// subscriptions an engine is negotiating and keeping resume state for.
package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/geoseis/slink/protocol"
)

// UniNet and UniSta are the reserved network/station codes that mark
// uni-station mode: a single subscription whose selectors apply to
// every station the server sends.
const (
	UniNet = "XX"
	UniSta = "UNI"
)

// ErrModeConflict is returned when an operation would mix uni-station
// and multi-station entries in the same registry.
var ErrModeConflict = errors.New("registry: cannot mix uni-station and multi-station entries")

// Entry is one (net, sta) subscription and its resume state.
type Entry struct {
	Net       string
	Sta       string
	Selectors []string
	Seqnum    int32 // protocol.SeqUnset when there is no resume point
	Timestamp string
}

// IsUni reports whether e is the reserved uni-station entry.
func (e *Entry) IsUni() bool {
	return e.Net == UniNet && e.Sta == UniSta
}

// Registry is the ordered set of subscription entries. Insertion order
// is preserved because it dictates the order commands are emitted in
// during negotiation.
type Registry struct {
	entries      []*Entry
	multistation bool
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{}
}

// Add appends a new ordinary (net, sta) entry. It fails with
// ErrModeConflict if a uni-station entry already exists.
func (r *Registry) Add(net, sta string, selectors []string, seqnum int32, timestamp string) (*Entry, error) {
	if r.hasUni() {
		return nil, ErrModeConflict
	}
	e := &Entry{Net: net, Sta: sta, Selectors: selectors, Seqnum: seqnum, Timestamp: timestamp}
	r.entries = append(r.entries, e)
	r.multistation = true
	return e, nil
}

// SetUni installs (or overwrites) the sole uni-station entry. It fails
// with ErrModeConflict if any ordinary entry already exists.
func (r *Registry) SetUni(selectors []string, seqnum int32, timestamp string) (*Entry, error) {
	if r.multistation && len(r.entries) > 0 {
		return nil, ErrModeConflict
	}
	e := &Entry{Net: UniNet, Sta: UniSta, Selectors: selectors, Seqnum: seqnum, Timestamp: timestamp}
	r.entries = []*Entry{e}
	r.multistation = false
	return e, nil
}

func (r *Registry) hasUni() bool {
	return len(r.entries) == 1 && r.entries[0].IsUni()
}

// IsUniStation reports whether the registry is in uni-station mode.
func (r *Registry) IsUniStation() bool {
	return r.hasUni()
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Iter yields entries in insertion order.
func (r *Registry) Iter() []*Entry {
	out := make([]*Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Find returns the entry exactly matching net/sta, or nil.
func (r *Registry) Find(net, sta string) *Entry {
	for _, e := range r.entries {
		if e.Net == net && e.Sta == sta {
			return e
		}
	}
	return nil
}

// MatchAndUpdate applies a just-delivered record's (net, sta, seqnum,
// startTime) to every matching entry: the sole uni-station entry
// always matches; otherwise every entry whose Net/Sta glob-match the
// record's codes (case-sensitive, whitespace stripped) is updated. It
// returns the number of entries updated; zero means the caller should
// log "unexpected data".
func (r *Registry) MatchAndUpdate(net, sta string, seqnum int32, startTime string) int {
	net = strings.TrimSpace(net)
	sta = strings.TrimSpace(sta)
	if r.hasUni() {
		e := r.entries[0]
		e.Seqnum = seqnum
		e.Timestamp = startTime
		return 1
	}
	n := 0
	for _, e := range r.entries {
		if globMatch(e.Net, net) && globMatch(e.Sta, sta) {
			e.Seqnum = seqnum
			e.Timestamp = startTime
			n++
		}
	}
	return n
}

// globMatch matches value against a pattern that may contain '*' (any
// run, including empty) and '?' (exactly one character). Matching is
// case-sensitive.
func globMatch(pattern, value string) bool {
	return globMatchRunes([]rune(pattern), []rune(value))
}

func globMatchRunes(pattern, value []rune) bool {
	if len(pattern) == 0 {
		return len(value) == 0
	}
	switch pattern[0] {
	case '*':
		if globMatchRunes(pattern[1:], value) {
			return true
		}
		for i := 0; i < len(value); i++ {
			if globMatchRunes(pattern[1:], value[i+1:]) {
				return true
			}
		}
		return false
	case '?':
		if len(value) == 0 {
			return false
		}
		return globMatchRunes(pattern[1:], value[1:])
	default:
		if len(value) == 0 || value[0] != pattern[0] {
			return false
		}
		return globMatchRunes(pattern[1:], value[1:])
	}
}

// Validate checks the registry's mode invariant: it must be empty,
// hold exactly one uni-station entry, or hold only ordinary entries.
func (r *Registry) Validate() error {
	uniCount := 0
	ordinaryCount := 0
	for _, e := range r.entries {
		if e.IsUni() {
			uniCount++
		} else {
			ordinaryCount++
		}
	}
	if uniCount > 1 {
		return fmt.Errorf("%w: %d uni-station entries", ErrModeConflict, uniCount)
	}
	if uniCount == 1 && ordinaryCount > 0 {
		return ErrModeConflict
	}
	return nil
}

// ParseSeqnum parses a 6-hex-digit (or "-1"/"" for unset) string into
// the Seqnum representation used throughout this package.
func ParseSeqnum(s string) (int32, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-1" {
		return protocol.SeqUnset, nil
	}
	var v int64
	_, err := fmt.Sscanf(s, "%06X", &v)
	if err != nil {
		return 0, fmt.Errorf("parsing sequence number %q: %w", s, err)
	}
	if v < 0 || v >= protocol.SeqMod {
		return 0, fmt.Errorf("sequence number %q out of 24-bit range", s)
	}
	return int32(v), nil
}

// FormatSeqnum renders seq as it appears in the state file: 6 hex
// digits, or "-1" when unset.
func FormatSeqnum(seq int32) string {
	if seq == protocol.SeqUnset {
		return "-1"
	}
	return fmt.Sprintf("%06X", uint32(seq)&0xFFFFFF)
}
