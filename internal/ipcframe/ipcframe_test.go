/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package ipcframe

import (
	"bytes"
	"os"
	"testing"

	"github.com/gravwell/printsched/internal/ipp"
	"github.com/stretchr/testify/require"
)

func TestRoundTripHeaderAndGroups(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.WriteHeader(ResponseHeader{
		Operation: ipp.OpGetPrinterAttributes,
		Status:    ipp.StatusSuccessfulOK,
		RequestID: 42,
	}))
	require.NoError(t, w.WriteGroup(Group{Tag: GroupOperation, Attributes: map[string]string{"attributes-charset": "utf-8"}}))
	require.NoError(t, w.WriteGroup(Group{Tag: GroupPrinter, Attributes: map[string]string{"printer-name": "lp0", "printer-state": "idle"}}))
	require.NoError(t, w.WriteEnd())

	r := NewReader(&buf)
	hdr, err := r.ReadHeader()
	require.NoError(t, err)
	require.Equal(t, ipp.OpGetPrinterAttributes, hdr.Operation)
	require.Equal(t, ipp.StatusSuccessfulOK, hdr.Status)
	require.EqualValues(t, 42, hdr.RequestID)

	g1, ok, err := r.ReadGroup()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, GroupOperation, g1.Tag)
	require.Equal(t, "utf-8", g1.Attributes["attributes-charset"])

	g2, ok, err := r.ReadGroup()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, GroupPrinter, g2.Tag)
	require.Equal(t, "lp0", g2.Attributes["printer-name"])
	require.Equal(t, "idle", g2.Attributes["printer-state"])

	_, ok, err = r.ReadGroup()
	require.NoError(t, err)
	require.False(t, ok, "terminator must end the group sequence")
}

func TestWriteCGIHeaderIfNeededRespectsEnvironment(t *testing.T) {
	os.Unsetenv("GATEWAY_INTERFACE")
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteCGIHeaderIfNeeded())
	require.Empty(t, buf.Bytes())

	t.Setenv("GATEWAY_INTERFACE", "CGI/1.1")
	buf.Reset()
	w2 := NewWriter(&buf)
	require.NoError(t, w2.WriteCGIHeaderIfNeeded())
	require.Equal(t, "Content-Type: application/ipp\n\n", buf.String())
}

func TestReadGroupRejectsUnknownTag(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(0x7F)
	buf.Write([]byte{0, 0})
	r := NewReader(&buf)
	_, _, err := r.ReadGroup()
	require.ErrorIs(t, err, ErrBadTag)
}

func TestWriterSurfacesUnderlyingWriteError(t *testing.T) {
	w := NewWriter(failingWriter{})
	err := w.WriteHeader(ResponseHeader{})
	require.Error(t, err)
	// once failed, subsequent calls short-circuit with the same error
	require.Error(t, w.WriteEnd())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, bytes.ErrTooLarge
}
