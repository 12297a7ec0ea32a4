/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package lpd implements the RFC 1179 Line Printer Daemon ingress: one
// command per TCP connection, materializing a print job from staged
// control and data files and handing it to the scheduler through
// ipp.JobSubmitter. Each connection runs in its own goroutine with no
// shared mutable state beyond the submitter and a temp directory.
package lpd

import (
	"bufio"
	"net"
	"strings"

	"github.com/gravwell/printsched/internal/ipp"
	"github.com/gravwell/printsched/internal/lifecycle"
	"github.com/gravwell/printsched/internal/log"
)

const (
	cmdPrintAnyWaiting byte = 0x01
	cmdReceiveJob      byte = 0x02
	cmdShortState      byte = 0x03
	cmdLongState       byte = 0x04
	cmdRemoveJobs      byte = 0x05
)

const (
	replyOK  byte = 0x00
	replyErr byte = 0x01
)

// QueueStatusProvider answers the short and long queue-state requests
// (RFC 1179 commands 03 and 04). A nil provider yields empty status.
type QueueStatusProvider interface {
	ShortQueueStatus(queue string, args []string) string
	LongQueueStatus(queue string, args []string) string
}

// Server accepts LPD connections and drives the per-connection state
// machine against Submitter.
type Server struct {
	Submitter ipp.JobSubmitter
	TempDir   string
	Status    QueueStatusProvider
	Logger    *log.Logger
}

// NewServer builds a Server ready to Serve. lg may be nil, in which
// case a discard logger is used.
func NewServer(sub ipp.JobSubmitter, tempDir string, status QueueStatusProvider, lg *log.Logger) *Server {
	if lg == nil {
		lg = log.NewDiscardLogger()
	}
	return &Server{Submitter: sub, TempDir: tempDir, Status: status, Logger: lg}
}

// Serve accepts connections on lst until lst is closed or the
// process-wide cancellation flag is set, spawning one goroutine per
// connection. It does not return an error for a clean shutdown.
func (s *Server) Serve(lst net.Listener) error {
	var failCount int
	for {
		if lifecycle.Canceled() {
			return nil
		}
		conn, err := lst.Accept()
		if err != nil {
			if lifecycle.Canceled() || strings.Contains(err.Error(), "closed") {
				return nil
			}
			failCount++
			s.Logger.Errorf("lpd accept failure: %v", err)
			if failCount > 3 {
				return err
			}
			continue
		}
		failCount = 0
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)

	cmd, err := r.ReadByte()
	if err != nil {
		return
	}

	switch cmd {
	case cmdPrintAnyWaiting:
		s.handlePrintAnyWaiting(conn, r)
	case cmdReceiveJob:
		s.handleReceiveJob(conn, r)
	case cmdShortState:
		s.handleQueueState(conn, r, false)
	case cmdLongState:
		s.handleQueueState(conn, r, true)
	case cmdRemoveJobs:
		s.handleRemoveJobs(conn, r)
	default:
		conn.Write([]byte{replyErr})
	}
}

// handlePrintAnyWaiting is the intentional no-op deviation: the
// scheduler has no separate spool-kick step, so the request is
// acknowledged without action.
func (s *Server) handlePrintAnyWaiting(conn net.Conn, r *bufio.Reader) {
	if _, err := readLine(r); err != nil {
		return
	}
	conn.Write([]byte{replyOK})
}

func (s *Server) handleQueueState(conn net.Conn, r *bufio.Reader, long bool) {
	line, err := readLine(r)
	if err != nil {
		return
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		conn.Write([]byte{replyErr})
		return
	}
	queue, args := fields[0], fields[1:]
	if s.Status == nil {
		return
	}
	var out string
	if long {
		out = s.Status.LongQueueStatus(queue, args)
	} else {
		out = s.Status.ShortQueueStatus(queue, args)
	}
	conn.Write([]byte(out))
}

func (s *Server) handleRemoveJobs(conn net.Conn, r *bufio.Reader) {
	line, err := readLine(r)
	if err != nil {
		return
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		conn.Write([]byte{replyErr})
		return
	}
	user := fields[1]
	for _, idField := range fields[2:] {
		jobID, ok := parseJobID(idField)
		if !ok {
			continue
		}
		if err := s.Submitter.CancelJob(jobID, user); err != nil {
			s.Logger.Infof("lpd remove job %d: %v", jobID, err)
		}
	}
	conn.Write([]byte{replyOK})
}
