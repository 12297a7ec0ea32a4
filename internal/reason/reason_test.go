/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package reason

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIPPStatusMapping(t *testing.T) {
	cases := map[Reason]string{
		None:         `successful-ok`,
		Validation:   `client-error-bad-request`,
		NotFound:     `client-error-not-found`,
		Protocol:     `client-error-bad-request`,
		FilterError:  `server-error-internal-error`,
		BackendError: `server-error-internal-error`,
		Resource:     `server-error-internal-error`,
	}
	for r, want := range cases {
		require.Equal(t, want, r.IPPStatus(), r.String())
	}
}

func TestLPDReply(t *testing.T) {
	require.Equal(t, byte(0), None.LPDReply())
	for _, r := range []Reason{Validation, NotFound, Protocol, FilterError, BackendError, Resource} {
		require.Equal(t, byte(1), r.LPDReply(), r.String())
	}
}

func TestWrapAndOf(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap("create_job", Resource, cause)
	require.Equal(t, Resource, Of(err))
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "create_job")
	require.Contains(t, err.Error(), "resource")
}

func TestOfUnwrapsChain(t *testing.T) {
	cause := Wrap("submit_document", FilterError, errors.New("no chain"))
	wrapped := fmt.Errorf("while processing: %w", cause)
	require.Equal(t, FilterError, Of(wrapped))
}

func TestOfNone(t *testing.T) {
	require.Equal(t, None, Of(nil))
	require.Equal(t, None, Of(errors.New("plain")))
}
