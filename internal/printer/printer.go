/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package printer owns the printer and job model: printers claim a
// sink type in the MIME database, jobs reference a printer and a
// document format, and the planner/sink-pattern cache are consulted
// to keep each printer's supported-source-type set current.
package printer

import (
	"errors"
	"sync"

	"github.com/gravwell/printsched/internal/mimedb"
	"github.com/gravwell/printsched/internal/planner"
	"github.com/gravwell/printsched/internal/reason"
	"github.com/gravwell/printsched/internal/sinkcache"
)

// State is a printer's run state, distinct from any job's state.
type State int

const (
	Idle State = iota
	Processing
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return `idle`
	case Processing:
		return `processing`
	case Stopped:
		return `stopped`
	}
	return `unknown`
}

// JobState is a job's position in the state machine described by
// register_printer/create_job/submit_document/cancel_job.
type JobState int

const (
	Pending JobState = iota
	Held
	JobProcessing
	Completed
	Canceled
	Aborted
)

func (s JobState) String() string {
	switch s {
	case Pending:
		return `pending`
	case Held:
		return `held`
	case JobProcessing:
		return `processing`
	case Completed:
		return `completed`
	case Canceled:
		return `canceled`
	case Aborted:
		return `aborted`
	}
	return `unknown`
}

func (s JobState) terminal() bool {
	return s == Completed || s == Canceled || s == Aborted
}

// Ref identifies a registered printer.
type Ref int

// EdgeDescriptor is one filter a printer declares on registration: an
// incoming conversion from srcSuper/srcType into the printer's sink.
type EdgeDescriptor struct {
	SrcSuper, SrcType string
	Cost              int
	MaxInputSize      int64
	Program           string
}

// Descriptor is the input to RegisterPrinter.
type Descriptor struct {
	Name       string
	Edges      []EdgeDescriptor
	Attributes map[string]string
	Shared     bool
	Accepting  bool
}

// Printer is the scheduler's view of a configured destination.
type Printer struct {
	Ref        Ref
	Name       string
	SinkType   mimedb.TypeRef
	State      State
	IsAccepting bool
	IsShared   bool
	Attributes map[string]string

	supported map[mimedb.TypeRef]struct{}
}

// Snapshot is a read-only copy of a printer's externally visible state.
type Snapshot struct {
	Name                string
	State               State
	IsAccepting         bool
	IsShared            bool
	SupportedSourceTypes []mimedb.TypeRef
}

// Document is one piece of a job's payload.
type Document struct {
	Format string
	Bytes  []byte
}

// Job is a scheduler-internal work item.
type Job struct {
	ID             uint64
	PrinterRef     Ref
	User           string
	Title          string
	DocumentFormat string
	Documents      []Document
	State          JobState
	Options        map[string]string

	restartOf uint64
	size      int64
}

var (
	ErrUnknownPrinter   = errors.New("unknown printer")
	ErrUnknownJob       = errors.New("unknown job")
	ErrPrinterRemoved   = errors.New("printer-removed")
	ErrNoChain          = errors.New("no filter chain to printer sink")
	ErrInvalidState     = errors.New("job is not in a state that allows this operation")
	ErrNotOwner         = errors.New("user does not own this job")
	ErrPrinterNotAccept = errors.New("printer is not accepting jobs")
)

// Model is the printer/job store for one scheduler instance.
type Model struct {
	mu       sync.Mutex
	db       *mimedb.Database
	planner  *planner.Planner
	cache    *sinkcache.Cache
	printers map[Ref]*Printer
	byName   map[string]Ref
	jobs     map[uint64]*Job
	nextRef  Ref
	nextJob  uint64
}

// New returns a Model bound to db, with planning backed by pl and
// sink-pattern reuse backed by cache (cache may be disabled; see
// sinkcache.New).
func New(db *mimedb.Database, pl *planner.Planner, cache *sinkcache.Cache) *Model {
	return &Model{
		db:       db,
		planner:  pl,
		cache:    cache,
		printers: make(map[Ref]*Printer),
		byName:   make(map[string]Ref),
		jobs:     make(map[uint64]*Job),
	}
}

// Resolve returns the Ref registered under name.
func (m *Model) Resolve(name string) (Ref, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref, ok := m.byName[name]
	return ref, ok
}

// RegisterPrinter inserts the printer's sink type and filter edges,
// then computes its supported-source-type set via the sink-pattern
// cache, falling back to the planner on a cache miss.
func (m *Model) RegisterPrinter(d Descriptor) (Ref, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sink := m.db.AddType(`printer`, d.Name)
	for _, e := range d.Edges {
		src := m.db.AddType(e.SrcSuper, e.SrcType)
		if err := m.db.AddFilter(src, sink, e.Cost, e.MaxInputSize, e.Program); err != nil {
			return 0, reason.Wrap("register_printer", reason.Validation, err)
		}
	}

	supported := m.resolveSupported(sink)

	m.nextRef++
	ref := m.nextRef
	attrs := make(map[string]string, len(d.Attributes))
	for k, v := range d.Attributes {
		attrs[k] = v
	}
	m.printers[ref] = &Printer{
		Ref:         ref,
		Name:        d.Name,
		SinkType:    sink,
		State:       Idle,
		IsAccepting: d.Accepting,
		IsShared:    d.Shared,
		Attributes:  attrs,
		supported:   supported,
	}
	m.byName[d.Name] = ref
	return ref, nil
}

// resolveSupported tries the sink-pattern cache before falling back
// to the planner, storing a freshly computed set back into the cache.
func (m *Model) resolveSupported(sink mimedb.TypeRef) map[mimedb.TypeRef]struct{} {
	key := sinkcache.Signature(m.db, sink)
	if set, ok := m.cache.Reuse(key); ok {
		return set
	}
	set := m.planner.SupportedSourceTypes(sink)
	m.cache.TryStore(key, set)
	return set
}

// DeregisterPrinter removes the printer and every filter edge into or
// out of its sink type (the sink's type entry stays in the database),
// then moves any of its jobs that have not already reached a terminal
// state to Aborted. The job records only that state; no separate
// printer-removed reason is stored on it.
func (m *Model) DeregisterPrinter(ref Ref) error {
	m.mu.Lock()
	p, ok := m.printers[ref]
	if !ok {
		m.mu.Unlock()
		return reason.Wrap("deregister_printer", reason.NotFound, ErrUnknownPrinter)
	}
	delete(m.printers, ref)
	delete(m.byName, p.Name)
	for _, j := range m.jobs {
		if j.PrinterRef == ref && !j.State.terminal() {
			j.State = Aborted
		}
	}
	m.mu.Unlock()

	m.db.RemoveSink(p.SinkType)
	return nil
}

// CreateJob allocates a new pending job against printerRef.
func (m *Model) CreateJob(printerRef Ref, user, title string, options map[string]string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.printers[printerRef]
	if !ok {
		return 0, reason.Wrap("create_job", reason.NotFound, ErrUnknownPrinter)
	}
	if !p.IsAccepting {
		return 0, reason.Wrap("create_job", reason.Validation, ErrPrinterNotAccept)
	}

	m.nextJob++
	id := m.nextJob
	opts := make(map[string]string, len(options))
	for k, v := range options {
		opts[k] = v
	}
	m.jobs[id] = &Job{
		ID:         id,
		PrinterRef: printerRef,
		User:       user,
		Title:      title,
		State:      Pending,
		Options:    opts,
	}
	return id, nil
}

// SubmitDocument appends a document's bytes to job jobID. Only when
// isLast is true is the planner consulted, for this document's format;
// a failed plan aborts the job, and a found chain moves a pending job
// to processing.
func (m *Model) SubmitDocument(jobID uint64, format string, isLast bool, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return reason.Wrap("submit_document", reason.NotFound, ErrUnknownJob)
	}
	if j.State != Pending && j.State != Held {
		return reason.Wrap("submit_document", reason.Validation, ErrInvalidState)
	}
	p, ok := m.printers[j.PrinterRef]
	if !ok {
		j.State = Aborted
		return reason.Wrap("submit_document", reason.NotFound, ErrPrinterRemoved)
	}

	j.Documents = append(j.Documents, Document{Format: format, Bytes: data})
	j.DocumentFormat = format
	j.size += int64(len(data))

	if !isLast {
		return nil
	}

	srcRef, ok := m.db.Lookup(superType(format))
	if !ok {
		j.State = Aborted
		return reason.Wrap("submit_document", reason.FilterError, ErrNoChain)
	}
	if _, ok := m.planner.Plan(srcRef, p.SinkType, j.size); !ok {
		j.State = Aborted
		return reason.Wrap("submit_document", reason.FilterError, ErrNoChain)
	}
	if j.State == Pending {
		j.State = JobProcessing
	}
	return nil
}

func superType(format string) (super, typ string) {
	for i := 0; i < len(format); i++ {
		if format[i] == '/' {
			return format[:i], format[i+1:]
		}
	}
	return format, ``
}

// CancelJob moves a job from any non-terminal state to canceled.
func (m *Model) CancelJob(jobID uint64, user string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return reason.Wrap("cancel_job", reason.NotFound, ErrUnknownJob)
	}
	if j.State.terminal() {
		return reason.Wrap("cancel_job", reason.Validation, ErrInvalidState)
	}
	if user != `` && j.User != user {
		return reason.Wrap("cancel_job", reason.Validation, ErrNotOwner)
	}
	j.State = Canceled
	return nil
}

// HoldJob moves a pending job to held.
func (m *Model) HoldJob(jobID uint64, user string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return reason.Wrap("hold_job", reason.NotFound, ErrUnknownJob)
	}
	if j.State != Pending {
		return reason.Wrap("hold_job", reason.Validation, ErrInvalidState)
	}
	j.State = Held
	return nil
}

// ReleaseJob moves a held job back to pending.
func (m *Model) ReleaseJob(jobID uint64, user string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return reason.Wrap("release_job", reason.NotFound, ErrUnknownJob)
	}
	if j.State != Held {
		return reason.Wrap("release_job", reason.Validation, ErrInvalidState)
	}
	j.State = Pending
	return nil
}

// RestartJob requeues a canceled or aborted job's documents as a new
// pending job; it never reopens the original, preserving the rule
// that terminal states are never left.
func (m *Model) RestartJob(jobID uint64, user string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	orig, ok := m.jobs[jobID]
	if !ok {
		return 0, reason.Wrap("restart_job", reason.NotFound, ErrUnknownJob)
	}
	if orig.State != Canceled && orig.State != Aborted {
		return 0, reason.Wrap("restart_job", reason.Validation, ErrInvalidState)
	}
	m.nextJob++
	id := m.nextJob
	docs := make([]Document, len(orig.Documents))
	copy(docs, orig.Documents)
	opts := make(map[string]string, len(orig.Options))
	for k, v := range orig.Options {
		opts[k] = v
	}
	m.jobs[id] = &Job{
		ID:             id,
		PrinterRef:     orig.PrinterRef,
		User:           user,
		Title:          orig.Title,
		DocumentFormat: orig.DocumentFormat,
		Documents:      docs,
		Options:        opts,
		State:          Pending,
		restartOf:      orig.ID,
		size:           orig.size,
	}
	return id, nil
}

// CompleteJob marks a processing job completed, the transition a
// successful backend exit drives.
func (m *Model) CompleteJob(jobID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return reason.Wrap("complete_job", reason.NotFound, ErrUnknownJob)
	}
	if j.State != JobProcessing {
		return reason.Wrap("complete_job", reason.Validation, ErrInvalidState)
	}
	j.State = Completed
	return nil
}

// FailJob aborts a processing job, the transition a non-zero backend
// or filter exit drives.
func (m *Model) FailJob(jobID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return reason.Wrap("fail_job", reason.NotFound, ErrUnknownJob)
	}
	if j.State != JobProcessing {
		return reason.Wrap("fail_job", reason.Validation, ErrInvalidState)
	}
	j.State = Aborted
	return nil
}

// SetPrinterAccepting toggles whether new jobs may be created against ref.
func (m *Model) SetPrinterAccepting(ref Ref, accepting bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.printers[ref]
	if !ok {
		return reason.Wrap("set_printer_accepting", reason.NotFound, ErrUnknownPrinter)
	}
	p.IsAccepting = accepting
	return nil
}

// SetPrinterShared toggles whether ref is advertised to other hosts.
func (m *Model) SetPrinterShared(ref Ref, shared bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.printers[ref]
	if !ok {
		return reason.Wrap("set_printer_shared", reason.NotFound, ErrUnknownPrinter)
	}
	p.IsShared = shared
	return nil
}

// PrinterState returns a read-only snapshot of ref's current state.
func (m *Model) PrinterState(ref Ref) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.printers[ref]
	if !ok {
		return Snapshot{}, reason.Wrap("printer_state", reason.NotFound, ErrUnknownPrinter)
	}
	refs := make([]mimedb.TypeRef, 0, len(p.supported))
	for r := range p.supported {
		refs = append(refs, r)
	}
	return Snapshot{
		Name:                p.Name,
		State:               p.State,
		IsAccepting:         p.IsAccepting,
		IsShared:            p.IsShared,
		SupportedSourceTypes: refs,
	}, nil
}

// Job returns a copy of the current state of job id.
func (m *Model) Job(id uint64) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return Job{}, reason.Wrap("job", reason.NotFound, ErrUnknownJob)
	}
	return *j, nil
}
