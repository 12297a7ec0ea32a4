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

func TestParseTXTRecognizedKeys(t *testing.T) {
	info := ParseTXT(map[string]string{
		"usb_MFG":      "Hewlett-Packard",
		"usb_MDL":      "LaserJet 4000",
		"product":      "(LaserJet 4000)",
		"ty":           "HP LaserJet 4000,extra",
		"pdl":          "application/pdf",
		"priority":     "30",
		"printer-type": "0x1234",
		"note":         "Room 204",
		"UUID":         "abc-123",
	})
	require.Equal(t, "Hewlett-Packard", info.Manufacturer)
	require.Equal(t, "LaserJet 4000", info.Model)
	require.Equal(t, "LaserJet 4000", info.Product)
	require.Equal(t, "HP LaserJet 4000", info.Type)
	require.Equal(t, "application/pdf", info.PDL)
	require.Equal(t, 30, info.Priority)
	require.True(t, info.CUPSShared)
	require.Equal(t, "Room 204", info.Location)
	require.Equal(t, "abc-123", info.UUID)
	require.Equal(t, "MFG:Hewlett-Packard;MDL:LaserJet 4000;", info.DeviceID)
}

func TestSynthesizeDeviceIDHeuristic(t *testing.T) {
	info := ParseTXT(map[string]string{"ty": "HP DesignJet T520"})
	require.Equal(t, "MFG:HP;MDL:HP DesignJet T520;", info.DeviceID)

	info = ParseTXT(map[string]string{"ty": "EPSON Stylus Photo R3000"})
	require.Equal(t, "MFG:EPSON;MDL:EPSON Stylus Photo R3000;", info.DeviceID)
}

func TestSynthesizeDeviceIDUnknownHeuristicYieldsEmpty(t *testing.T) {
	info := ParseTXT(map[string]string{"ty": "Generic Thing"})
	require.Empty(t, info.DeviceID)
}

func TestParseTXTNormalizesValidUUID(t *testing.T) {
	info := ParseTXT(map[string]string{"UUID": "urn:uuid:4F6076D1-0B5B-4A4B-8F9B-3E6E6A6B7C8D"})
	require.Equal(t, "4f6076d1-0b5b-4a4b-8f9b-3e6e6a6b7c8d", info.UUID)
}

func TestParseTXTPassesThroughNonUUIDValue(t *testing.T) {
	info := ParseTXT(map[string]string{"UUID": "not-a-real-uuid"})
	require.Equal(t, "not-a-real-uuid", info.UUID)
}

func TestNormalizeMakeModel(t *testing.T) {
	require.Equal(t, "EPSON Stylus C80", NormalizeMakeModel("EPSON EPSON Stylus C80"))
	require.Equal(t, "HP LaserJet 4000", NormalizeMakeModel("HP HP LaserJet 4000"))
	require.Equal(t, "Lexmark X6675", NormalizeMakeModel("Lexmark International Lexmark X6675"))
	require.Equal(t, "Canon PIXMA", NormalizeMakeModel("Canon PIXMA"))
}
