/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCancel(t *testing.T) {
	defer canceled.Store(false)
	require.False(t, Canceled())
	Cancel()
	require.True(t, Canceled())
}
