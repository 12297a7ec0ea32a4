/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package ipp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusForKeyword(t *testing.T) {
	require.Equal(t, StatusSuccessfulOK, StatusForKeyword("successful-ok"))
	require.Equal(t, StatusClientErrorBadRequest, StatusForKeyword("client-error-bad-request"))
	require.Equal(t, StatusClientErrorNotFound, StatusForKeyword("client-error-not-found"))
	require.Equal(t, StatusServerErrorInternalError, StatusForKeyword("client-error-not-possible"))
	require.Equal(t, StatusServerErrorInternalError, StatusForKeyword(""))
}
