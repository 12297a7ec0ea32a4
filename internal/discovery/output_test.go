/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package discovery

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQuoteEscapesSpecialBytes(t *testing.T) {
	require.Equal(t, `"plain"`, quote("plain"))
	require.Equal(t, `"a\"b"`, quote(`a"b`))
	require.Equal(t, `"a\\b"`, quote(`a\b`))
	require.Equal(t, `"a\200b"`, quote("a\x80b"))
}

func TestFormatLineShape(t *testing.T) {
	rec := &Record{
		Name: "Laser",
		URI:  "dnssd://host/?port=631",
		info: Info{Manufacturer: "HP", Model: "LaserJet 4000", Location: "Room 204", DeviceID: "MFG:HP;MDL:LaserJet 4000;"},
	}
	line := FormatLine(rec)
	require.Contains(t, line, "network")
	require.Contains(t, line, rec.URI)
	require.Contains(t, line, `"HP LaserJet 4000"`)
	require.Contains(t, line, `"Laser"`)
	require.Contains(t, line, `"MFG:HP;MDL:LaserJet 4000;"`)
	require.Contains(t, line, `"Room 204"`)
}

func TestMakeModelForFallsBackToUnknown(t *testing.T) {
	require.Equal(t, "Unknown", makeModelFor(Info{}))
}
