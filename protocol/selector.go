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

import "fmt"

// ValidateSelector checks a single selector token against the grammar
// in §6: optional leading '!', optional 2-char location field, a
// mandatory 3-char channel field, and an optional ".T" type suffix.
// '?' is accepted as a single-character wildcard in the location and
// channel fields.
func ValidateSelector(tok string) error {
	if tok == "" {
		return fmt.Errorf("empty selector")
	}
	if tok[0] == '!' {
		tok = tok[1:]
		if tok == "" {
			return fmt.Errorf("bare negation selector")
		}
	}
	typ := ""
	if i := indexByte(tok, '.'); i >= 0 {
		typ = tok[i+1:]
		tok = tok[:i]
		if len(typ) != 1 {
			return fmt.Errorf("selector type suffix must be exactly one character, got %q", typ)
		}
	}
	var ccc string
	switch len(tok) {
	case 3:
		ccc = tok
	case 5:
		ccc = tok[2:]
	default:
		return fmt.Errorf("selector %q must be CCC or LLCCC before any .T suffix", tok)
	}
	for _, c := range ccc {
		if c == '?' {
			continue
		}
		if c < 'A' || c > 'Z' {
			if !(c >= '0' && c <= '9') {
				return fmt.Errorf("selector channel field %q has invalid character %q", ccc, c)
			}
		}
	}
	return nil
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// ValidateNetStaCode checks a network or station code: non-empty, up
// to maxLen bytes, and free of spaces and tabs. Glob wildcards '*'/'?'
// are allowed; no other character check is made.
func ValidateNetStaCode(code string, maxLen int) error {
	if code == "" {
		return fmt.Errorf("empty code")
	}
	if len(code) > maxLen {
		return fmt.Errorf("code %q exceeds maximum length %d", code, maxLen)
	}
	for _, c := range code {
		if c == ' ' || c == '\t' {
			return fmt.Errorf("code %q contains whitespace", code)
		}
	}
	return nil
}
