/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package printer

import (
	"github.com/gravwell/printsched/internal/ipp"
	"github.com/gravwell/printsched/internal/reason"
)

// Submitter adapts a Model to ipp.JobSubmitter, resolving printer
// names the way LPD's queue field and IPP's printer-uri address a
// printer, instead of the model's internal Ref.
type Submitter struct {
	Model *Model
}

// NewSubmitter wraps m for ingress paths that only know a printer by
// its registered name.
func NewSubmitter(m *Model) Submitter {
	return Submitter{Model: m}
}

func (s Submitter) CreateJob(printerName, user, title string) (uint64, error) {
	ref, ok := s.Model.Resolve(printerName)
	if !ok {
		return 0, reason.Wrap("create_job", reason.NotFound, ErrUnknownPrinter)
	}
	return s.Model.CreateJob(ref, user, title, nil)
}

func (s Submitter) SubmitDocument(jobID uint64, doc ipp.Document) error {
	return s.Model.SubmitDocument(jobID, doc.Format, doc.Last, doc.Data)
}

func (s Submitter) CancelJob(jobID uint64, user string) error {
	return s.Model.CancelJob(jobID, user)
}
