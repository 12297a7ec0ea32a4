/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package lpd

import (
	"bufio"
	"bytes"
	"fmt"
)

// printCommand is one "print this data file" line from a control
// file: a format-hint letter and the name of the data file it refers
// to (matched against the names declared by receive-data-file
// sub-commands).
type printCommand struct {
	Letter       byte
	DataFileName string
}

// controlFile is the parsed form of an RFC 1179 control file.
type controlFile struct {
	Title         string
	DocName       string
	User          string
	Banner        bool
	PrintCommands []printCommand
}

// printDataLetters is the set of control-file command letters that
// reference a data file to be printed, mapped to the format hint they
// carry.
var printDataLetters = map[byte]string{
	'c': "application/octet-stream", // cifplot
	'd': "application/x-dvi",        // TeX DVI
	'f': "text/plain",               // formatted text
	'g': "application/octet-stream", // plot
	'l': "application/octet-stream", // already formatted, print raw
	'n': "application/octet-stream", // ditroff
	'o': "application/postscript",   // PostScript
	'p': "text/plain",               // text, filter through pr
	'r': "text/plain",               // FORTRAN text
	't': "application/octet-stream", // troff
	'v': "application/octet-stream", // raster
}

func formatForLetter(letter byte) string {
	if f, ok := printDataLetters[letter]; ok {
		return f
	}
	return "application/octet-stream"
}

// parseControlFile walks the accumulated control-file bytes line by
// line. Text fields are transcoded per the UTF-8-with-ISO-8859-1
// fallback rule before being stored.
func parseControlFile(b []byte) (controlFile, error) {
	var cf controlFile
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		letter := raw[0]
		arg := transcode(raw[1:])
		switch letter {
		case 'J':
			cf.Title = arg
		case 'N':
			cf.DocName = arg
		case 'P':
			cf.User = arg
		case 'L':
			cf.Banner = true
		default:
			if _, ok := printDataLetters[letter]; ok {
				cf.PrintCommands = append(cf.PrintCommands, printCommand{Letter: letter, DataFileName: arg})
			} else {
				return controlFile{}, fmt.Errorf("malformed control file line: unknown command %q", letter)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return controlFile{}, err
	}
	return cf, nil
}
