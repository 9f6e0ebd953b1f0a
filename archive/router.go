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
	"container/list"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	log "github.com/sirupsen/logrus"

	"github.com/geoseis/slink/protocol"
)

// DefaultMaxOpenFiles bounds the router's open-file table when the
// caller doesn't specify one.
const DefaultMaxOpenFiles = 64

// DefaultIdleTimeout is how long an archive file may go unwritten
// before the router closes it to free the descriptor.
const DefaultIdleTimeout = 5 * time.Minute

type entry struct {
	key       uint64
	path      string
	file      *os.File
	lastWrite time.Time
	elem      *list.Element
}

// Router appends delivered records into files named by expanding a
// path template, keeping at most maxOpenFiles descriptors open at
// once and evicting whichever was least recently written to.
type Router struct {
	baseDir      string
	tokens       []Token
	maxOpenFiles int
	idleTimeout  time.Duration

	mu    sync.Mutex
	open  map[uint64]*entry
	order *list.List // front = most recently used
}

// NewRouter builds a Router rooted at baseDir using the given path
// template. maxOpenFiles <= 0 uses DefaultMaxOpenFiles; idleTimeout <=
// 0 uses DefaultIdleTimeout.
func NewRouter(baseDir, tmpl string, maxOpenFiles int, idleTimeout time.Duration) (*Router, error) {
	tokens, err := ParseTemplate(tmpl)
	if err != nil {
		return nil, err
	}
	if maxOpenFiles <= 0 {
		maxOpenFiles = DefaultMaxOpenFiles
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Router{
		baseDir:      baseDir,
		tokens:       tokens,
		maxOpenFiles: maxOpenFiles,
		idleTimeout:  idleTimeout,
		open:         make(map[uint64]*entry),
		order:        list.New(),
	}, nil
}

// Append writes raw to the file the record's defining fields route to,
// opening (and, if necessary, creating the containing directory for)
// that file on first use. It also evicts any file that has gone
// idleTimeout without a write.
func (r *Router) Append(raw []byte, fields protocol.RecordFields) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	definingKey := DefiningKey(r.tokens, fields)
	key := xxhash.Sum64String(definingKey)

	e, ok := r.open[key]
	if !ok {
		rel := Expand(r.tokens, fields)
		full := filepath.Join(r.baseDir, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return fmt.Errorf("archive: creating directory for %q: %w", full, err)
		}
		f, err := os.OpenFile(full, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("archive: opening %q: %w", full, err)
		}
		e = &entry{key: key, path: full}
		e.file = f
		e.elem = r.order.PushFront(e)
		r.open[key] = e
		r.evictOverflow()
	} else {
		r.order.MoveToFront(e.elem)
	}

	if _, err := e.file.Write(raw); err != nil {
		return fmt.Errorf("archive: writing %q: %w", e.path, err)
	}
	e.lastWrite = now
	r.evictIdle(now)
	return nil
}

// evictOverflow closes the least-recently-written file(s) until the
// open table is within maxOpenFiles. Caller must hold r.mu.
func (r *Router) evictOverflow() {
	for len(r.open) > r.maxOpenFiles {
		back := r.order.Back()
		if back == nil {
			return
		}
		r.closeEntry(back.Value.(*entry))
	}
}

// evictIdle closes every open file that has not been written to in
// idleTimeout. Caller must hold r.mu.
func (r *Router) evictIdle(now time.Time) {
	for e := r.order.Back(); e != nil; {
		prev := e.Prev()
		ent := e.Value.(*entry)
		if now.Sub(ent.lastWrite) <= r.idleTimeout {
			break
		}
		r.closeEntry(ent)
		e = prev
	}
}

func (r *Router) closeEntry(ent *entry) {
	if err := ent.file.Close(); err != nil {
		log.WithError(err).WithField("path", ent.path).Warn("archive: error closing file")
	}
	r.order.Remove(ent.elem)
	delete(r.open, ent.key)
}

// Close closes every currently open archive file.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for r.order.Len() > 0 {
		ent := r.order.Front().Value.(*entry)
		if err := ent.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.order.Remove(ent.elem)
		delete(r.open, ent.key)
	}
	return firstErr
}

// OpenCount reports how many files are currently open, for stats/tests.
func (r *Router) OpenCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.open)
}
