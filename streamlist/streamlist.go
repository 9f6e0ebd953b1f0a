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

// Package streamlist parses the "-l" stream-list file format: one
// "NET STA [selector ...]" entry per line, blank lines and lines
// starting with '#' ignored.
package streamlist

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/geoseis/slink/protocol"
)

// Entry is one parsed stream-list line.
type Entry struct {
	Net       string
	Sta       string
	Selectors []string
}

// Parse reads a stream-list file from r.
func Parse(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "*") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("streamlist: line %d: expected at least NET STA, got %q", lineNo, line)
		}
		net, sta := fields[0], fields[1]
		if err := protocol.ValidateNetStaCode(net, 2); err != nil {
			return nil, fmt.Errorf("streamlist: line %d: net: %w", lineNo, err)
		}
		if err := protocol.ValidateNetStaCode(sta, 5); err != nil {
			return nil, fmt.Errorf("streamlist: line %d: sta: %w", lineNo, err)
		}
		var selectors []string
		for _, sel := range fields[2:] {
			tok := sel
			if strings.HasPrefix(tok, "!") {
				tok = tok[1:]
			}
			if err := protocol.ValidateSelector(tok); err != nil {
				return nil, fmt.Errorf("streamlist: line %d: selector %q: %w", lineNo, sel, err)
			}
			selectors = append(selectors, sel)
		}
		entries = append(entries, Entry{Net: net, Sta: sta, Selectors: selectors})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("streamlist: %w", err)
	}
	return entries, nil
}

// Format renders entries back into the stream-list file format, e.g.
// for "slink -l" round-tripping or writing out a discovered CAT list.
func Format(entries []Entry) string {
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s %s", e.Net, e.Sta)
		for _, sel := range e.Selectors {
			fmt.Fprintf(&b, " %s", sel)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
