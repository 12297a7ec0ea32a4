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
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/gravwell/printsched/internal/ipp"
	"github.com/gravwell/printsched/internal/lifecycle"
)

const maxDataFiles = 100

type stagedFile struct {
	name string
	path string
}

// handleReceiveJob drives the STAGING sub-state: the queue name line,
// then a loop of sub-command lines that accumulate a control file and
// up to maxDataFiles data files, then materializes the job.
func (s *Server) handleReceiveJob(conn net.Conn, r *bufio.Reader) {
	line, err := readLine(r)
	if err != nil {
		return
	}
	queue := strings.TrimSpace(line)
	if queue == "" {
		conn.Write([]byte{replyErr})
		return
	}

	if _, err := conn.Write([]byte{replyOK}); err != nil {
		return
	}

	var control bytes.Buffer
	var dataFiles []stagedFile
	aborted := false

loop:
	for {
		if lifecycle.Canceled() {
			aborted = true
			break
		}
		sub, err := r.ReadByte()
		if err != nil {
			break loop
		}
		switch sub {
		case subAbort:
			aborted = true
			break loop
		case subReceiveControl:
			if !s.receiveCounted(conn, r, &control, nil) {
				aborted = true
				break loop
			}
		case subReceiveData:
			if len(dataFiles) >= maxDataFiles {
				conn.Write([]byte{replyErr})
				aborted = true
				break loop
			}
			f, ok := s.receiveDataFile(conn, r)
			if !ok {
				aborted = true
				break loop
			}
			dataFiles = append(dataFiles, f)
		default:
			aborted = true
			break loop
		}
	}

	cleanup := func() {
		for _, f := range dataFiles {
			os.Remove(f.path)
		}
	}

	if aborted {
		cleanup()
		return
	}

	if err := s.materialize(queue, control.Bytes(), dataFiles); err != nil {
		s.Logger.Errorf("lpd job materialize failed for %s: %v", queue, err)
		conn.Write([]byte{replyErr})
		cleanup()
		return
	}

	cleanup()
}

// receiveCounted reads a "<count> <name>\n" sub-command line followed
// by exactly count bytes and a trailing NUL, appending the payload to
// dst. name, when non-nil, receives the declared filename.
func (s *Server) receiveCounted(conn net.Conn, r *bufio.Reader, dst *bytes.Buffer, name *string) bool {
	line, err := readLine(r)
	if err != nil {
		return false
	}
	count, fname, ok := parseCountedLine(line)
	if !ok {
		conn.Write([]byte{replyErr})
		return false
	}
	if name != nil {
		*name = fname
	}
	if _, err := io.CopyN(dst, r, count); err != nil {
		conn.Write([]byte{replyErr})
		return false
	}
	if _, err := r.ReadByte(); err != nil { // trailing NUL
		return false
	}
	_, err = conn.Write([]byte{replyOK})
	return err == nil
}

func (s *Server) receiveDataFile(conn net.Conn, r *bufio.Reader) (stagedFile, bool) {
	line, err := readLine(r)
	if err != nil {
		return stagedFile{}, false
	}
	count, fname, ok := parseCountedLine(line)
	if !ok {
		conn.Write([]byte{replyErr})
		return stagedFile{}, false
	}
	f, err := os.CreateTemp(s.TempDir, "lpd-data-*")
	if err != nil {
		conn.Write([]byte{replyErr})
		return stagedFile{}, false
	}
	defer f.Close()
	if err := f.Chmod(0600); err != nil {
		os.Remove(f.Name())
		conn.Write([]byte{replyErr})
		return stagedFile{}, false
	}
	if _, err := io.CopyN(f, r, count); err != nil {
		os.Remove(f.Name())
		conn.Write([]byte{replyErr})
		return stagedFile{}, false
	}
	if _, err := r.ReadByte(); err != nil { // trailing NUL
		os.Remove(f.Name())
		return stagedFile{}, false
	}
	if _, err := conn.Write([]byte{replyOK}); err != nil {
		os.Remove(f.Name())
		return stagedFile{}, false
	}
	return stagedFile{name: fname, path: f.Name()}, true
}

// parseCountedLine splits "<count> <name>" as sent ahead of a counted
// data block.
func parseCountedLine(line string) (count int64, name string, ok bool) {
	line = strings.TrimRight(line, "\r\n")
	idx := strings.IndexByte(line, ' ')
	if idx < 0 {
		return 0, "", false
	}
	n, err := strconv.ParseInt(line[:idx], 10, 64)
	if err != nil || n < 0 {
		return 0, "", false
	}
	return n, line[idx+1:], true
}

// materialize parses the accumulated control file and creates the job
// it describes, submitting each referenced data file in control-file
// order.
func (s *Server) materialize(queue string, controlBytes []byte, dataFiles []stagedFile) error {
	cf, err := parseControlFile(controlBytes)
	if err != nil {
		return err
	}

	byName := make(map[string]stagedFile, len(dataFiles))
	for _, f := range dataFiles {
		byName[f.name] = f
	}

	jobID, err := s.Submitter.CreateJob(queue, cf.User, cf.Title)
	if err != nil {
		return err
	}

	if len(cf.PrintCommands) == 0 {
		return s.Submitter.SubmitDocument(jobID, ipp.Document{Last: true})
	}

	for i, pc := range cf.PrintCommands {
		f, ok := byName[pc.DataFileName]
		if !ok {
			return fmt.Errorf("control file references unknown data file %q", pc.DataFileName)
		}
		data, err := os.ReadFile(f.path)
		if err != nil {
			return err
		}
		last := i == len(cf.PrintCommands)-1
		doc := ipp.Document{Format: formatForLetter(pc.Letter), Data: data, Last: last}
		if err := s.Submitter.SubmitDocument(jobID, doc); err != nil {
			return err
		}
	}
	return nil
}

func parseJobID(s string) (uint64, bool) {
	n, err := strconv.ParseUint(s, 10, 64)
	return n, err == nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && len(line) == 0 {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
