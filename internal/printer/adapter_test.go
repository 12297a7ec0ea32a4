/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package printer

import (
	"testing"

	"github.com/gravwell/printsched/internal/ipp"
	"github.com/stretchr/testify/require"
)

func TestSubmitterResolvesPrinterByName(t *testing.T) {
	m := newModel(t)
	registerPDFPrinter(t, m, "lp0", true)
	sub := NewSubmitter(m)

	jobID, err := sub.CreateJob("lp0", "alice", "report")
	require.NoError(t, err)

	err = sub.SubmitDocument(jobID, ipp.Document{Format: "application/pdf", Data: []byte("%PDF-1.4"), Last: true})
	require.NoError(t, err)

	j, err := m.Job(jobID)
	require.NoError(t, err)
	require.Equal(t, JobProcessing, j.State)
}

func TestSubmitterUnknownPrinterName(t *testing.T) {
	m := newModel(t)
	sub := NewSubmitter(m)

	_, err := sub.CreateJob("nonexistent", "alice", "report")
	require.ErrorIs(t, err, ErrUnknownPrinter)
}

func TestSubmitterCancelJob(t *testing.T) {
	m := newModel(t)
	registerPDFPrinter(t, m, "lp1", true)
	sub := NewSubmitter(m)

	jobID, err := sub.CreateJob("lp1", "alice", "report")
	require.NoError(t, err)

	require.NoError(t, sub.CancelJob(jobID, "alice"))

	j, err := m.Job(jobID)
	require.NoError(t, err)
	require.Equal(t, Canceled, j.State)
}
