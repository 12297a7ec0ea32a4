/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package mimedb holds the content-type/typer/filter graph that the
// chain planner routes documents through: an arena of content types
// keyed by stable integer references, each with an ordered list of
// typer rules, plus the directed filter edges between them.
package mimedb

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// TypeRef is a stable index into a Database's type arena. It is only
// invalidated by a full database reload, never by individual
// add/remove operations.
type TypeRef int

// NoType is the zero value of a TypeRef lookup miss.
const NoType TypeRef = -1

var (
	ErrUnknownType   = errors.New("unknown content type")
	ErrNegativeCost  = errors.New("filter cost must be non-negative")
	ErrEmptyProgram  = errors.New("filter program must not be empty")
	ErrDuplicateType = errors.New("content type already exists")
)

// Typer is one named rule, in declaration order, attached to a
// content type. Priority is extracted from any priority() leaf in its
// rule tree; a typer with no such leaf defaults to priority 0.
type Typer struct {
	Rule     Node
	Priority int
	order    int
}

// ContentType is a (super, type) pair together with the typers that
// recognize it.
type ContentType struct {
	Super  string
	Type   string
	Typers []*Typer
}

func (c ContentType) String() string { return c.Super + "/" + c.Type }

func key(super, typ string) string { return lower(super) + "/" + lower(typ) }

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// FilterEdge is a directed conversion between two content types.
type FilterEdge struct {
	Src, Dst     TypeRef
	Cost         int
	MaxInputSize int64
	Program      string
}

type edgeKey struct {
	Src, Dst TypeRef
	Program  string
}

// ContentSniffer is consulted by TypeOf only when no declared typer
// matches; it augments the rule engine, it never overrides it.
type ContentSniffer func(firstBytes []byte) (super, typ string, ok bool)

// Database is the process-wide MIME type/typer/filter graph. All
// mutation happens through its methods, which are safe for concurrent
// use.
type Database struct {
	mu       sync.RWMutex
	types    []ContentType
	byKey    map[string]TypeRef
	edges    []FilterEdge
	edgeIdx  map[edgeKey]int
	declSeq  int
	sniffer  ContentSniffer
	onChange func() // invalidation hook for cached supported-source-type sets
}

// New returns an empty Database.
func New() *Database {
	return &Database{
		byKey:   make(map[string]TypeRef),
		edgeIdx: make(map[edgeKey]int),
	}
}

// SetContentSniffer installs the magic-number fallback used when
// type_of finds no matching typer.
func (d *Database) SetContentSniffer(s ContentSniffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sniffer = s
}

// OnChange installs a callback invoked whenever a type or filter edge
// is added, a filter edge is updated, or RemoveSink runs; the planner's supported-source-type cache uses this to
// invalidate itself.
func (d *Database) OnChange(f func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onChange = f
}

func (d *Database) notify() {
	if d.onChange != nil {
		d.onChange()
	}
}

// AddType inserts (super, type) if it doesn't already exist and
// returns its TypeRef either way.
func (d *Database) AddType(super, typ string) TypeRef {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := key(super, typ)
	if ref, ok := d.byKey[k]; ok {
		return ref
	}
	ref := TypeRef(len(d.types))
	d.types = append(d.types, ContentType{Super: super, Type: typ})
	d.byKey[k] = ref
	d.notify()
	return ref
}

// Lookup returns the TypeRef for (super, type) if it has been added.
func (d *Database) Lookup(super, typ string) (TypeRef, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ref, ok := d.byKey[key(super, typ)]
	return ref, ok
}

// Type returns the ContentType for ref.
func (d *Database) Type(ref TypeRef) (ContentType, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if ref < 0 || int(ref) >= len(d.types) {
		return ContentType{}, false
	}
	return d.types[ref], true
}

// AddTyper appends a typer rule to ref's type, in declaration order.
func (d *Database) AddTyper(ref TypeRef, rule Node) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ref < 0 || int(ref) >= len(d.types) {
		return ErrUnknownType
	}
	p, _ := extractPriority(rule)
	d.declSeq++
	d.types[ref].Typers = append(d.types[ref].Typers, &Typer{
		Rule:     rule,
		Priority: p,
		order:    d.declSeq,
	})
	return nil
}

// AddFilter inserts or, on a matching (src, dst, program), updates a
// filter edge.
func (d *Database) AddFilter(src, dst TypeRef, cost int, maxInputSize int64, program string) error {
	if cost < 0 {
		return ErrNegativeCost
	}
	if program == `` {
		return ErrEmptyProgram
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(src) >= len(d.types) || int(dst) >= len(d.types) || src < 0 || dst < 0 {
		return ErrUnknownType
	}
	ek := edgeKey{Src: src, Dst: dst, Program: program}
	if i, ok := d.edgeIdx[ek]; ok {
		d.edges[i].Cost = cost
		d.edges[i].MaxInputSize = maxInputSize
		d.notify()
		return nil
	}
	d.edges = append(d.edges, FilterEdge{Src: src, Dst: dst, Cost: cost, MaxInputSize: maxInputSize, Program: program})
	d.edgeIdx[ek] = len(d.edges) - 1
	d.notify()
	return nil
}

// EnumerateTypes returns a snapshot of every registered content type.
func (d *Database) EnumerateTypes() []ContentType {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]ContentType, len(d.types))
	copy(out, d.types)
	return out
}

// EnumerateFilters returns a snapshot of every filter edge.
func (d *Database) EnumerateFilters() []FilterEdge {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]FilterEdge, len(d.edges))
	copy(out, d.edges)
	return out
}

// edgesSnapshot returns a copy of every filter edge, taken through
// EnumerateFilters; it never exposes the live edge slice. The planner
// takes its own copy via EnumerateFilters directly.
func (d *Database) edgesSnapshot() []FilterEdge {
	return d.EnumerateFilters()
}

// FindFilter returns the lowest-cost edge from src to dst, if any.
func (d *Database) FindFilter(src, dst TypeRef) (FilterEdge, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var best FilterEdge
	found := false
	for _, e := range d.edges {
		if e.Src == src && e.Dst == dst {
			if !found || e.Cost < best.Cost {
				best = e
				found = true
			}
		}
	}
	return best, found
}

// TypeOf evaluates every type's typers against filename/firstBytes
// and returns the highest-priority match, breaking ties by
// declaration order. If no typer matches and a ContentSniffer is
// installed, its result is used as a fallback, consulted only if it
// names an already-registered type.
func (d *Database) TypeOf(filename string, firstBytes []byte) (TypeRef, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if len(firstBytes) > MaxSniffBytes {
		firstBytes = firstBytes[:MaxSniffBytes]
	}
	ctx := &EvalContext{Filename: filename, Bytes: firstBytes, Locale: localeEnv()}

	type candidate struct {
		ref      TypeRef
		priority int
		order    int
	}
	var best *candidate
	for i, ct := range d.types {
		for _, t := range ct.Typers {
			if !t.Rule.Eval(ctx) {
				continue
			}
			c := candidate{ref: TypeRef(i), priority: t.Priority, order: t.order}
			if best == nil || c.priority > best.priority || (c.priority == best.priority && c.order < best.order) {
				cc := c
				best = &cc
			}
			break // first matching typer per type is enough per type
		}
	}
	if best != nil {
		return best.ref, true
	}
	if d.sniffer != nil {
		if super, typ, ok := d.sniffer(firstBytes); ok {
			if ref, ok := d.byKey[key(super, typ)]; ok {
				return ref, true
			}
		}
	}
	return NoType, false
}

// IncomingEdges returns every edge whose Dst is sink, sorted the way
// the sink-pattern signature procedure requires: by
// (src.super, src.type, cost, max_input_size, program).
func (d *Database) IncomingEdges(sink TypeRef) []FilterEdge {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []FilterEdge
	for _, e := range d.edges {
		if e.Dst == sink {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		si, sj := d.types[out[i].Src], d.types[out[j].Src]
		if si.Super != sj.Super {
			return si.Super < sj.Super
		}
		if si.Type != sj.Type {
			return si.Type < sj.Type
		}
		if out[i].Cost != out[j].Cost {
			return out[i].Cost < out[j].Cost
		}
		if out[i].MaxInputSize != out[j].MaxInputSize {
			return out[i].MaxInputSize < out[j].MaxInputSize
		}
		return out[i].Program < out[j].Program
	})
	return out
}

// IsPrinterSink reports whether ref's super is the synthetic
// "printer" family used for per-printer sink types.
func (d *Database) IsPrinterSink(ref TypeRef) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if ref < 0 || int(ref) >= len(d.types) {
		return false
	}
	return d.types[ref].Super == `printer`
}

// RemoveSink deletes every edge whose Dst or Src is ref; the type
// entry for ref itself is left in place (TypeRefs are never reused,
// per the arena-of-indices design), used by deregister_printer.
func (d *Database) RemoveSink(ref TypeRef) {
	d.mu.Lock()
	defer d.mu.Unlock()
	kept := d.edges[:0]
	for _, e := range d.edges {
		if e.Dst == ref || e.Src == ref {
			delete(d.edgeIdx, edgeKey{Src: e.Src, Dst: e.Dst, Program: e.Program})
			continue
		}
		kept = append(kept, e)
	}
	d.edges = kept
	d.notify()
}

func (d *Database) String() string {
	return fmt.Sprintf("mimedb{types=%d edges=%d}", len(d.types), len(d.edges))
}
