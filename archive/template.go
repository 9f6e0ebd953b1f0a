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

// Package archive routes delivered records into an LRU-bounded set of
// append-only files, named by expanding a path template against each
// record's defining fields.
package archive

import (
	"fmt"
	"strings"

	"github.com/geoseis/slink/protocol"
)

// A Token is one piece of a parsed path template: either literal text
// or a substitution.
type Token struct {
	Literal  string // set when Letter == 0
	Letter   byte
	Defining bool // true for '%' tokens, false for '#' tokens
}

// defining letters determine which archive file a record belongs to;
// the open-file table is keyed on their expansion alone. Non-defining
// ('#') letters may appear in the same template but are only expanded
// once, the first time a given key's file is created.
var knownLetters = map[byte]bool{
	'n': true, 's': true, 'l': true, 'c': true,
	'Y': true, 'y': true, 'j': true,
	'H': true, 'M': true, 'S': true, 'F': true, 't': true,
}

// ParseTemplate compiles a path template such as
// "%Y/%n/%s/%c.D/%n.%s.%l.%c.D.%Y.%j" into a token list. '%%' and '##'
// escape to a literal percent/hash sign.
func ParseTemplate(tmpl string) ([]Token, error) {
	var tokens []Token
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			tokens = append(tokens, Token{Literal: lit.String()})
			lit.Reset()
		}
	}
	runes := []rune(tmpl)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if c != '%' && c != '#' {
			lit.WriteRune(c)
			continue
		}
		if i+1 >= len(runes) {
			return nil, fmt.Errorf("archive: template %q ends with a dangling %q", tmpl, c)
		}
		next := runes[i+1]
		if byte(next) == byte(c) {
			lit.WriteRune(c)
			i++
			continue
		}
		if next > 127 || !knownLetters[byte(next)] {
			return nil, fmt.Errorf("archive: template %q has unknown token %q%c", tmpl, string(c), next)
		}
		flush()
		tokens = append(tokens, Token{Letter: byte(next), Defining: c == '%'})
		i++
	}
	flush()
	return tokens, nil
}

// fieldValue renders one token letter for a record.
func fieldValue(letter byte, f protocol.RecordFields) string {
	switch letter {
	case 'n':
		return f.Net
	case 's':
		return f.Sta
	case 'l':
		return f.Loc
	case 'c':
		return f.Chan
	case 'Y':
		return fmt.Sprintf("%04d", f.Year)
	case 'y':
		return fmt.Sprintf("%02d", f.Year%100)
	case 'j':
		return fmt.Sprintf("%03d", f.DayOfYear)
	case 'H':
		return fmt.Sprintf("%02d", f.Hour)
	case 'M':
		return fmt.Sprintf("%02d", f.Minute)
	case 'S':
		return fmt.Sprintf("%02d", f.Second)
	case 'F':
		return fmt.Sprintf("%04d", f.FracSec)
	case 't':
		return string(f.TypeCode)
	default:
		return "?"
	}
}

// Expand renders every token (defining and non-defining alike) against
// f, producing the actual file path.
func Expand(tokens []Token, f protocol.RecordFields) string {
	var b strings.Builder
	for _, tok := range tokens {
		if tok.Letter == 0 {
			b.WriteString(tok.Literal)
			continue
		}
		b.WriteString(fieldValue(tok.Letter, f))
	}
	return b.String()
}

// DefiningKey renders only the defining tokens (with their separating
// literal text) against f, producing the string that identifies which
// open file a record belongs to regardless of its non-defining fields.
func DefiningKey(tokens []Token, f protocol.RecordFields) string {
	var b strings.Builder
	for _, tok := range tokens {
		if tok.Letter == 0 {
			b.WriteString(tok.Literal)
			continue
		}
		if !tok.Defining {
			continue
		}
		b.WriteString(fieldValue(tok.Letter, f))
	}
	return b.String()
}

// HasToken reports whether tokens contains letter, defining or not -
// useful for validating a template names at least %n/%s/%c.
func HasToken(tokens []Token, letter byte) bool {
	for _, tok := range tokens {
		if tok.Letter == letter {
			return true
		}
	}
	return false
}
