/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package planner

import (
	"testing"

	"github.com/gravwell/printsched/internal/mimedb"
	"github.com/stretchr/testify/require"
)

// A single direct edge is the trivial chain.
func TestPlanTrivialChain(t *testing.T) {
	db := mimedb.New()
	src := db.AddType("application", "pdf")
	dst := db.AddType("printer", "q1")
	require.NoError(t, db.AddFilter(src, dst, 10, 0, "pdftops"))

	p := New(db)
	chain, ok := p.Plan(src, dst, 0)
	require.True(t, ok)
	require.Equal(t, 10, chain.Cost)
	require.Equal(t, []string{"pdftops"}, chain.Programs())
	require.Equal(t, 1, p.PlanCalls)
}

// Two equal-cost paths resolve deterministically by edge count, then
// lexicographic program-name order, and stay stable on repeat.
func TestPlanTieBreakDeterministic(t *testing.T) {
	db := mimedb.New()
	a := db.AddType("application", "pdf")
	b := db.AddType("image", "png")
	sink := db.AddType("printer", "q1")

	require.NoError(t, db.AddFilter(a, sink, 10, 0, "zfilter"))
	require.NoError(t, db.AddFilter(a, b, 5, 0, "afilter"))
	require.NoError(t, db.AddFilter(b, sink, 5, 0, "bfilter"))

	p := New(db)
	chain1, ok := p.Plan(a, sink, 0)
	require.True(t, ok)
	chain2, ok := p.Plan(a, sink, 0)
	require.True(t, ok)
	require.Equal(t, chain1, chain2)
	// both paths cost 10; the tie-break prefers fewer edges, so the
	// direct zfilter edge wins over (afilter,bfilter) on every call.
	require.Equal(t, 10, chain1.Cost)
	require.Equal(t, []string{"zfilter"}, chain1.Programs())
}

// An edge whose MaxInputSize is smaller than the size hint is excluded.
func TestPlanExcludesUndersizedEdge(t *testing.T) {
	db := mimedb.New()
	src := db.AddType("application", "pdf")
	sink := db.AddType("printer", "q1")
	require.NoError(t, db.AddFilter(src, sink, 1, 1024, "smallfilter"))

	p := New(db)
	_, ok := p.Plan(src, sink, 4096)
	require.False(t, ok)

	_, ok = p.Plan(src, sink, 512)
	require.True(t, ok)
}

func TestPlanNoPath(t *testing.T) {
	db := mimedb.New()
	src := db.AddType("application", "pdf")
	sink := db.AddType("printer", "q1")
	p := New(db)
	_, ok := p.Plan(src, sink, 0)
	require.False(t, ok)
}

// invariant 2: SupportedSourceTypes matches exactly the set of source
// types with a planned path to the sink.
func TestSupportedSourceTypesMatchesPlan(t *testing.T) {
	db := mimedb.New()
	a := db.AddType("application", "pdf")
	b := db.AddType("image", "png")
	c := db.AddType("text", "plain")
	sink := db.AddType("printer", "q1")

	require.NoError(t, db.AddFilter(a, sink, 1, 0, "f1"))
	require.NoError(t, db.AddFilter(b, a, 1, 0, "f2"))

	p := New(db)
	supported := p.SupportedSourceTypes(sink)
	require.Contains(t, supported, a)
	require.Contains(t, supported, b)
	require.NotContains(t, supported, c)
	require.NotContains(t, supported, sink)
}

func TestSupportedSourceTypesCachedUntilChange(t *testing.T) {
	db := mimedb.New()
	a := db.AddType("application", "pdf")
	sink := db.AddType("printer", "q1")
	require.NoError(t, db.AddFilter(a, sink, 1, 0, "f1"))

	p := New(db)
	_ = p.SupportedSourceTypes(sink)
	require.Equal(t, 1, p.ComputeSupportedCalls)
	_ = p.SupportedSourceTypes(sink)
	require.Equal(t, 1, p.ComputeSupportedCalls, "second call should reuse the cache")

	b := db.AddType("image", "png")
	require.NoError(t, db.AddFilter(b, sink, 1, 0, "f2"))
	_ = p.SupportedSourceTypes(sink)
	require.Equal(t, 2, p.ComputeSupportedCalls, "a database change invalidates the cache")
}
