/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package ipp defines the minimal vocabulary and interfaces other
// packages code against at the IPP wire boundary: operation/status
// identifiers and the JobSubmitter contract LPD ingress and the
// mini-daemon framing use to hand work to the scheduler without
// depending on its internal job model directly. The wire codec itself
// (attribute encoding, HTTP transport) is out of scope for this
// module.
package ipp

// Op is an IPP operation-id, RFC 8011 §5.2.
type Op uint16

const (
	OpPrintJob            Op = 0x0002
	OpValidateJob         Op = 0x0004
	OpCreateJob           Op = 0x0005
	OpSendDocument        Op = 0x0006
	OpCancelJob           Op = 0x0008
	OpGetJobAttributes    Op = 0x0009
	OpGetJobs             Op = 0x000A
	OpGetPrinterAttributes Op = 0x000B
)

// Status is an IPP status-code, RFC 8011 §5.3.
type Status uint16

const (
	StatusSuccessfulOK             Status = 0x0000
	StatusClientErrorBadRequest    Status = 0x0400
	StatusClientErrorNotFound      Status = 0x0406
	StatusServerErrorInternalError Status = 0x0500
)

// StatusForKeyword maps an RFC 8011 status keyword, as produced by
// reason.Reason.IPPStatus, to its numeric Status.
func StatusForKeyword(keyword string) Status {
	switch keyword {
	case `successful-ok`:
		return StatusSuccessfulOK
	case `client-error-bad-request`:
		return StatusClientErrorBadRequest
	case `client-error-not-found`:
		return StatusClientErrorNotFound
	default:
		return StatusServerErrorInternalError
	}
}

// Document is one piece of job payload data, already read into
// memory by the caller (LPD staging, a mini-daemon body).
type Document struct {
	Format string
	Data   []byte
	Last   bool
}

// JobSubmitter is the narrow interface LPD ingress and any other
// wire-facing ingress use to create and feed a job without depending
// on the scheduler's concrete printer/job model.
type JobSubmitter interface {
	CreateJob(printerName, user, title string) (jobID uint64, err error)
	SubmitDocument(jobID uint64, doc Document) error
	CancelJob(jobID uint64, user string) error
}
