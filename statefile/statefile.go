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

// Package statefile persists per-stream resume sequence numbers
// between runs: one "NET STA SEQHEX TIMESTAMP" line per stream, in an
// ASCII file written atomically (temp file + rename) so a crash mid
// write never leaves a truncated state file behind.
package statefile

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/geoseis/slink/protocol"
	"github.com/geoseis/slink/registry"
)

// Record is one line of the state file.
type Record struct {
	Net       string
	Sta       string
	Seqnum    int32
	Timestamp string
}

// Load parses path into a slice of Records. A missing file is not an
// error: it returns an empty slice, matching the first-run case.
func Load(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("statefile: opening %q: %w", path, err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			return nil, fmt.Errorf("statefile: %q line %d: expected at least 3 fields, got %d", path, lineNo, len(fields))
		}
		seq, err := registry.ParseSeqnum(fields[2])
		if err != nil {
			return nil, fmt.Errorf("statefile: %q line %d: %w", path, lineNo, err)
		}
		rec := Record{Net: fields[0], Sta: fields[1], Seqnum: seq}
		if len(fields) >= 4 {
			rec.Timestamp = fields[3]
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("statefile: reading %q: %w", path, err)
	}
	return records, nil
}

// Save writes records to path atomically: it builds the full content
// in memory, writes it to a sibling temp file, and renames it over
// path so a concurrent reader never observes a partial write.
func Save(path string, records []Record) error {
	var b strings.Builder
	for _, r := range records {
		ts := r.Timestamp
		if ts == "" {
			ts = protocol.FormatTime(time.Now())
		}
		fmt.Fprintf(&b, "%s %s %s %s\n", r.Net, r.Sta, registry.FormatSeqnum(r.Seqnum), ts)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("statefile: creating temp file in %q: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		return fmt.Errorf("statefile: writing %q: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("statefile: syncing %q: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("statefile: closing %q: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("statefile: renaming %q to %q: %w", tmpName, path, err)
	}
	return nil
}

// FromStreams builds the Record set Save expects directly from an
// engine's registry entries.
func FromStreams(entries []*registry.Entry) []Record {
	out := make([]Record, 0, len(entries))
	for _, e := range entries {
		out = append(out, Record{Net: e.Net, Sta: e.Sta, Seqnum: e.Seqnum, Timestamp: e.Timestamp})
	}
	return out
}
