/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package ppdcache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	c, err := New(filepath.Join(t.TempDir(), "ppds.cache"), 0660, nil)
	require.NoError(t, err)

	want := []Record{
		{PrinterName: "lp0", SinkType: "printer/lp0", MakeAndModel: "HP LaserJet 4000", FilePath: "/etc/cups/ppd/lp0.ppd"},
		{PrinterName: "lp1", SinkType: "printer/lp1", MakeAndModel: "EPSON Stylus C80", FilePath: "/etc/cups/ppd/lp1.ppd"},
	}
	require.NoError(t, c.Save(want))

	got, err := c.Load()
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestLoadMissingFileYieldsEmpty(t *testing.T) {
	c, err := New(filepath.Join(t.TempDir(), "missing.cache"), 0660, nil)
	require.NoError(t, err)

	records, err := c.Load()
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestLoadSkipsMalformedRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ppds.cache")
	contents := "#CUPS-PPD-CACHE-1\n" +
		"lp0\tprinter/lp0\tHP LaserJet 4000\t/etc/cups/ppd/lp0.ppd\n" +
		"this-line-has-no-tabs\n" +
		"lp1\tprinter/lp1\tEPSON Stylus C80\n" + // missing fourth field
		"lp2\tprinter/lp2\tCanon PIXMA\t/etc/cups/ppd/lp2.ppd\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0660))

	c, err := New(path, 0660, nil)
	require.NoError(t, err)

	records, err := c.Load()
	require.NoError(t, err)
	require.Equal(t, []Record{
		{PrinterName: "lp0", SinkType: "printer/lp0", MakeAndModel: "HP LaserJet 4000", FilePath: "/etc/cups/ppd/lp0.ppd"},
		{PrinterName: "lp2", SinkType: "printer/lp2", MakeAndModel: "Canon PIXMA", FilePath: "/etc/cups/ppd/lp2.ppd"},
	}, records)
}

func TestLoadWarnsOnUnrecognizedHeaderButContinues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ppds.cache")
	contents := "#SOMETHING-ELSE-9\n" +
		"lp0\tprinter/lp0\tHP LaserJet 4000\t/etc/cups/ppd/lp0.ppd\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0660))

	c, err := New(path, 0660, nil)
	require.NoError(t, err)

	records, err := c.Load()
	require.NoError(t, err)
	require.Equal(t, []Record{
		{PrinterName: "lp0", SinkType: "printer/lp0", MakeAndModel: "HP LaserJet 4000", FilePath: "/etc/cups/ppd/lp0.ppd"},
	}, records)
}

func TestNewRejectsInvalidPath(t *testing.T) {
	_, err := New(".", 0660, nil)
	require.ErrorIs(t, err, ErrInvalidPath)
}

func TestSaveOverwritesPreviousGeneration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ppds.cache")
	c, err := New(path, 0660, nil)
	require.NoError(t, err)

	require.NoError(t, c.Save([]Record{{PrinterName: "lp0", SinkType: "printer/lp0", MakeAndModel: "A", FilePath: "/a"}}))
	require.NoError(t, c.Save([]Record{{PrinterName: "lp1", SinkType: "printer/lp1", MakeAndModel: "B", FilePath: "/b"}}))

	records, err := c.Load()
	require.NoError(t, err)
	require.Equal(t, []Record{{PrinterName: "lp1", SinkType: "printer/lp1", MakeAndModel: "B", FilePath: "/b"}}, records)
}
