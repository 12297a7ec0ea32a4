/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package discovery

import (
	"sort"
	"sync"
)

// domain is a service record's resolved DNS-SD domain.
type domain int

const (
	domainLocal domain = iota
	domainGlobal
)

// Record is one DNS-SD-advertised service, tracked until every
// transport advertising the same name has reported its TXT data (or
// the registry gives up waiting) and the best one is announced.
type Record struct {
	Name      string
	Domain    domain
	Transport Transport
	URI       string

	hasTXT    bool
	info      Info
	announced bool
}

// maxConcurrentTXTQueries bounds how many TXT lookups the registry
// lets a caller have outstanding at once, per §4.5's 50-query cap.
const maxConcurrentTXTQueries = 50

// Registry tracks every service add/resolve event, deduplicates by
// name across transports, and announces the winning record exactly
// once per name.
type Registry struct {
	mu       sync.Mutex
	byName   map[string][]*Record // every transport's record for a name, append-only
	sem      chan struct{}
	announce func(line string)
}

// NewRegistry returns a Registry that calls announce once per
// selected device, formatted per FormatLine.
func NewRegistry(announce func(line string)) *Registry {
	return &Registry{
		byName:   make(map[string][]*Record),
		sem:      make(chan struct{}, maxConcurrentTXTQueries),
		announce: announce,
	}
}

// AddService records a DNS-SD "add" event. If a record for name
// already exists and is currently local, an add on the global domain
// upgrades it in place rather than creating a duplicate, per §4.5.
func (r *Registry) AddService(name string, dom domain, t Transport, uri string) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.byName[name] {
		if rec.Transport == t {
			if rec.Domain == domainLocal && dom == domainGlobal {
				rec.Domain = domainGlobal
				rec.URI = uri
			}
			return rec
		}
	}
	rec := &Record{Name: name, Domain: dom, Transport: t, URI: uri}
	r.byName[name] = append(r.byName[name], rec)
	return rec
}

// AcquireTXTSlot blocks until fewer than maxConcurrentTXTQueries
// queries are outstanding, then reserves one. ReleaseTXTSlot must be
// called when the query completes.
func (r *Registry) AcquireTXTSlot() { r.sem <- struct{}{} }

// ReleaseTXTSlot frees a slot reserved by AcquireTXTSlot.
func (r *Registry) ReleaseTXTSlot() { <-r.sem }

// ResolveTXT attaches parsed TXT data to rec and, once every known
// record sharing rec's name has TXT data, selects and announces the
// winner.
func (r *Registry) ResolveTXT(rec *Record, info Info) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec.info = info
	rec.hasTXT = true

	group := r.byName[rec.Name]
	for _, g := range group {
		if !g.hasTXT {
			return // still waiting on a sibling transport
		}
	}
	r.selectAndAnnounceLocked(rec.Name, group)
}

// Finalize forces selection for every name that still has at least
// one resolved record but hasn't announced, used at shutdown so a
// slow sibling transport doesn't suppress an otherwise-ready record.
func (r *Registry) Finalize() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, group := range r.byName {
		r.selectAndAnnounceLocked(name, group)
	}
}

// selectAndAnnounceLocked picks the minimal record under
// (priority, transport ordinal) among group's TXT-resolved members
// and announces it, exactly once, if it hasn't been already.
func (r *Registry) selectAndAnnounceLocked(name string, group []*Record) {
	var best *Record
	for _, g := range group {
		if g.announced || !g.hasTXT {
			continue
		}
		if best == nil || better(g, best) {
			best = g
		}
	}
	if best == nil {
		return
	}
	for _, g := range group {
		g.announced = true
	}
	if r.announce != nil {
		r.announce(FormatLine(best))
	}
}

func better(a, b *Record) bool {
	if a.info.Priority != b.info.Priority {
		return a.info.Priority < b.info.Priority
	}
	return a.Transport.Ordinal() < b.Transport.Ordinal()
}

// Names returns every tracked service name in sorted order, matching
// §4.5's "records are kept in a sorted array by service name".
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.byName))
	for n := range r.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
