/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package reason carries the scheduler's error taxonomy: every
// component boundary converts its internal failures into a Reason
// before returning, so the outermost caller (an IPP handler, an LPD
// connection, a mini-daemon) can map it to its own wire vocabulary
// without inspecting error strings.
package reason

import "fmt"

// Reason classifies why an operation failed, independent of which
// component raised it.
type Reason int

const (
	None Reason = iota
	Validation
	NotFound
	Protocol
	FilterError
	BackendError
	Resource
)

func (r Reason) String() string {
	switch r {
	case None:
		return `none`
	case Validation:
		return `validation`
	case NotFound:
		return `not-found`
	case Protocol:
		return `protocol`
	case FilterError:
		return `filter-error`
	case BackendError:
		return `backend-error`
	case Resource:
		return `resource`
	}
	return `unknown`
}

// IPPStatus returns the RFC 8011 status keyword an IPP handler should
// report for r.
func (r Reason) IPPStatus() string {
	switch r {
	case None:
		return `successful-ok`
	case Validation:
		return `client-error-bad-request`
	case NotFound:
		return `client-error-not-found`
	case Protocol:
		return `client-error-bad-request`
	case FilterError, BackendError:
		return `server-error-internal-error`
	case Resource:
		return `server-error-internal-error`
	}
	return `server-error-internal-error`
}

// LPDReply returns the single reply byte RFC 1179 expects: 0 for
// success, 1 for anything else.
func (r Reason) LPDReply() byte {
	if r == None {
		return 0
	}
	return 1
}

// Error wraps an underlying error with its Reason classification.
type Error struct {
	Reason Reason
	Op     string
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap builds an *Error for op/r, attaching err as its cause.
func Wrap(op string, r Reason, err error) *Error {
	return &Error{Reason: r, Op: op, Err: err}
}

// Of returns the Reason carried by err, or None if err does not carry
// one (including err == nil).
func Of(err error) Reason {
	var e *Error
	if err == nil {
		return None
	}
	if asError(err, &e) {
		return e.Reason
	}
	return None
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
