/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package planner finds the minimum-cost filter chain between two
// content types in a mimedb.Database, via Dijkstra's algorithm over
// the filter graph with a lazy binary heap.
package planner

import (
	"container/heap"
	"strings"
	"sync"

	"github.com/gravwell/printsched/internal/mimedb"
)

// Step is one edge of a planned Chain.
type Step struct {
	Edge mimedb.FilterEdge
}

// Chain is the ordered sequence of filter edges a job travels through
// to reach its sink type.
type Chain struct {
	Steps []Step
	Cost  int
}

// Programs returns the ordered list of converter program names in the
// chain, the form every external caller actually cares about.
func (c Chain) Programs() []string {
	out := make([]string, len(c.Steps))
	for i, s := range c.Steps {
		out[i] = s.Edge.Program
	}
	return out
}

// Planner answers shortest-cost routing questions against a single
// mimedb.Database, caching each sink's supported-source-type set
// until the database reports a change.
type Planner struct {
	db *mimedb.Database

	mu        sync.Mutex
	supported map[mimedb.TypeRef]map[mimedb.TypeRef]struct{}

	// PlanCalls counts Plan invocations.
	PlanCalls int

	// ComputeSupportedCalls counts full supported-source-type
	// recomputations (one Dijkstra run per candidate source type). A
	// caller that reuses a sink-pattern cache hit instead of calling
	// SupportedSourceTypes should see this stay flat.
	ComputeSupportedCalls int
}

// New returns a Planner bound to db. It registers a change hook on db
// so that any edge mutation invalidates every cached supported-source
// set, per §4.2's "the whole set is invalidated" rule.
func New(db *mimedb.Database) *Planner {
	p := &Planner{db: db, supported: make(map[mimedb.TypeRef]map[mimedb.TypeRef]struct{})}
	db.OnChange(p.invalidateAll)
	return p
}

func (p *Planner) invalidateAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.supported = make(map[mimedb.TypeRef]map[mimedb.TypeRef]struct{})
}

// heap entry
type pqItem struct {
	ref  mimedb.TypeRef
	cost int
}

type priorityQueue []pqItem

func (q priorityQueue) Len() int            { return len(q) }
func (q priorityQueue) Less(i, j int) bool  { return q[i].cost < q[j].cost }
func (q priorityQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *priorityQueue) Push(x interface{}) { *q = append(*q, x.(pqItem)) }
func (q *priorityQueue) Pop() interface{} {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}

// Plan computes the minimum-cost chain from src to dst. Edges whose
// MaxInputSize is non-zero and smaller than sizeHint are excluded.
// Ties are broken first by fewer edges, then by lexicographic
// comparison of the concatenated program names, making repeated
// Plan calls against an unchanged database deterministic.
func (p *Planner) Plan(src, dst mimedb.TypeRef, sizeHint int64) (Chain, bool) {
	p.mu.Lock()
	p.PlanCalls++
	p.mu.Unlock()
	return p.plan(src, dst, sizeHint)
}

type distEntry struct {
	cost     int
	edges    int
	progs    string
	prevEdge mimedb.FilterEdge
	prevRef  mimedb.TypeRef
	hasPrev  bool
	settled  bool
}

func (p *Planner) plan(src, dst mimedb.TypeRef, sizeHint int64) (Chain, bool) {
	if src == dst {
		return Chain{}, true
	}
	edges := p.db.EnumerateFilters()
	byKey := make(map[mimedb.TypeRef][]mimedb.FilterEdge)
	for _, e := range edges {
		if e.MaxInputSize != 0 && e.MaxInputSize < sizeHint {
			continue
		}
		byKey[e.Src] = append(byKey[e.Src], e)
	}

	dist := make(map[mimedb.TypeRef]*distEntry)
	dist[src] = &distEntry{cost: 0, edges: 0, progs: ``}

	pq := &priorityQueue{{ref: src, cost: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(pqItem)
		de := dist[cur.ref]
		if de == nil || de.settled {
			continue
		}
		if de.cost != cur.cost {
			continue // stale heap entry
		}
		de.settled = true
		if cur.ref == dst {
			break
		}
		for _, e := range byKey[cur.ref] {
			nd := de.cost + e.Cost
			nedges := de.edges + 1
			nprogs := de.progs + e.Program
			existing, ok := dist[e.Dst]
			if !ok || better(nd, nedges, nprogs, existing) {
				entry := &distEntry{
					cost: nd, edges: nedges, progs: nprogs,
					prevEdge: e, prevRef: cur.ref, hasPrev: true,
				}
				dist[e.Dst] = entry
				heap.Push(pq, pqItem{ref: e.Dst, cost: nd})
			}
		}
	}

	final, ok := dist[dst]
	if !ok {
		return Chain{}, false
	}
	return Chain{Steps: reconstruct(dist, dst), Cost: final.cost}, true
}

// better reports whether a newly discovered path to the same node
// should replace the existing best one under the deterministic
// tie-break: lower cost wins; equal cost favors fewer edges; equal
// edges favors the lexicographically smaller concatenated program
// name string.
func better(cost, edges int, progs string, existing *distEntry) bool {
	if cost != existing.cost {
		return cost < existing.cost
	}
	if edges != existing.edges {
		return edges < existing.edges
	}
	return strings.Compare(progs, existing.progs) < 0
}

func reconstruct(dist map[mimedb.TypeRef]*distEntry, dst mimedb.TypeRef) []Step {
	var rev []Step
	cur := dst
	for {
		de := dist[cur]
		if de == nil || !de.hasPrev {
			break
		}
		rev = append(rev, Step{Edge: de.prevEdge})
		cur = de.prevRef
	}
	steps := make([]Step, len(rev))
	for i, s := range rev {
		steps[len(rev)-1-i] = s
	}
	return steps
}

// SupportedSourceTypes returns every src for which a path to sink
// exists, computing and caching the set on first use and reusing it
// on every subsequent call until the database changes.
func (p *Planner) SupportedSourceTypes(sink mimedb.TypeRef) map[mimedb.TypeRef]struct{} {
	p.mu.Lock()
	if set, ok := p.supported[sink]; ok {
		p.mu.Unlock()
		return cloneSet(set)
	}
	p.mu.Unlock()

	set := p.computeSupported(sink)

	p.mu.Lock()
	p.supported[sink] = set
	p.mu.Unlock()
	return cloneSet(set)
}

func (p *Planner) computeSupported(sink mimedb.TypeRef) map[mimedb.TypeRef]struct{} {
	p.mu.Lock()
	p.ComputeSupportedCalls++
	p.mu.Unlock()
	set := make(map[mimedb.TypeRef]struct{})
	for _, ct := range rangeTypes(p.db) {
		if ct.ref == sink {
			continue
		}
		if _, ok := p.plan(ct.ref, sink, 0); ok {
			set[ct.ref] = struct{}{}
		}
	}
	return set
}

type refType struct {
	ref mimedb.TypeRef
}

func rangeTypes(db *mimedb.Database) []refType {
	types := db.EnumerateTypes()
	out := make([]refType, len(types))
	for i := range types {
		out[i] = refType{ref: mimedb.TypeRef(i)}
	}
	return out
}

func cloneSet(in map[mimedb.TypeRef]struct{}) map[mimedb.TypeRef]struct{} {
	out := make(map[mimedb.TypeRef]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}
