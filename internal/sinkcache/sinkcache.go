/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package sinkcache recognizes when two printers share the same
// incoming filter topology and lets the second one reuse the first's
// supported-source-type set instead of re-running the planner.
package sinkcache

import (
	"encoding/binary"
	"hash/fnv"
	"sync"

	"github.com/gravwell/printsched/internal/mimedb"
)

// Key identifies a sink topology: the number of incoming edges plus a
// 64-bit FNV-1a digest over their normalized, sorted contents.
// Equality of Key is assumed to imply equality of topology;
// collisions are an accepted, vanishingly unlikely trade-off.
type Key struct {
	EdgeCount int
	Signature uint64
}

// Entry is a cached supported-source-type set, keyed by Key.
type Entry struct {
	Key        Key
	SourceRefs map[mimedb.TypeRef]struct{}
}

// Cache stores sink-pattern entries. It is gated by an Enabled flag:
// when false, Reuse always misses and TryStore is a no-op, matching
// the CUPS_MIME_SINK_REUSE environment switch.
type Cache struct {
	mu      sync.RWMutex
	wmu     sync.Mutex
	entries map[Key]Entry
	Enabled bool
}

// New returns a Cache. enabled should come from
// config.SinkReuseEnabled() or an equivalent environment read.
func New(enabled bool) *Cache {
	return &Cache{entries: make(map[Key]Entry), Enabled: enabled}
}

// Signature computes the Key for a printer's sink by normalizing,
// sorting, and hashing its incoming edges, per the signature
// procedure: edges whose source is a printer/* sink are folded to the
// canonical ("printer","sink") pair before sorting and hashing so
// that two printers differing only by queue name collide on purpose.
func Signature(db *mimedb.Database, sink mimedb.TypeRef) Key {
	edges := db.IncomingEdges(sink)
	h := fnv.New64a()
	var buf [4]byte
	for _, e := range edges {
		super, typ := normalizedSource(db, e.Src)
		h.Write([]byte(super))
		h.Write([]byte{0xFF})
		h.Write([]byte(typ))
		h.Write([]byte{0xFE})
		binary.BigEndian.PutUint32(buf[:], uint32(e.Cost))
		h.Write(buf[:])
		binary.LittleEndian.PutUint32(buf[:], uint32(e.MaxInputSize))
		h.Write(buf[:])
		h.Write([]byte(e.Program))
		h.Write([]byte{0xFD})
	}
	return Key{EdgeCount: len(edges), Signature: h.Sum64()}
}

func normalizedSource(db *mimedb.Database, ref mimedb.TypeRef) (super, typ string) {
	if db.IsPrinterSink(ref) {
		return `printer`, `sink`
	}
	ct, ok := db.Type(ref)
	if !ok {
		return ``, ``
	}
	return ct.Super, ct.Type
}

// Reuse returns a copy of the cached supported-source-type set for
// key, if present and the cache is enabled.
func (c *Cache) Reuse(key Key) (map[mimedb.TypeRef]struct{}, bool) {
	if !c.Enabled {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return cloneSet(e.SourceRefs), true
}

// TryStore inserts set under key unless an entry already exists there
// or the cache is disabled.
func (c *Cache) TryStore(key Key, set map[mimedb.TypeRef]struct{}) {
	if !c.Enabled {
		return
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.mu.RLock()
	_, exists := c.entries[key]
	c.mu.RUnlock()
	if exists {
		return
	}
	c.mu.Lock()
	c.entries[key] = Entry{Key: key, SourceRefs: cloneSet(set)}
	c.mu.Unlock()
}

// Clear empties the cache; called on a full database reload.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]Entry)
}

func cloneSet(in map[mimedb.TypeRef]struct{}) map[mimedb.TypeRef]struct{} {
	out := make(map[mimedb.TypeRef]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}
