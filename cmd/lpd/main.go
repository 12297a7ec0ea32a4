/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Command lpd is a standalone RFC 1179 ingress listener: it accepts
// one connection per print job and logs each job and document it
// receives; it does not forward them to a printsched instance.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"runtime/debug"

	"github.com/gravwell/printsched/internal/ipp"
	"github.com/gravwell/printsched/internal/lifecycle"
	"github.com/gravwell/printsched/internal/lpd"
	"github.com/gravwell/printsched/internal/log"
	"github.com/gravwell/printsched/internal/version"
)

var (
	listen     = flag.String("listen", ":515", "address to accept LPD connections on")
	tempDir    = flag.String("tmp", os.TempDir(), "directory for staged control/data files")
	logPath    = flag.String("log", "", "log file path, empty for stderr")
	logLevel   = flag.String("log-level", "INFO", "log level: OFF, DEBUG, INFO, WARN, ERROR, CRITICAL, FATAL")
	logMaxSize = flag.Int64("log-max-size", 4*1024*1024, "rotate the log file once it exceeds this many bytes")
	logHistory = flag.Uint("log-history", 3, "number of rotated log generations to keep")
	ver        = flag.Bool("version", false, "print version and exit")
)

func main() {
	debug.SetTraceback("all")
	flag.Parse()
	if *ver {
		version.PrintVersion(os.Stdout)
		os.Exit(0)
	}

	lg, err := openLogger(*logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log: %v\n", err)
		os.Exit(1)
	}
	if err := lg.SetLevelString(*logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %q: %v\n", *logLevel, err)
		os.Exit(1)
	}

	lst, err := net.Listen("tcp", *listen)
	if err != nil {
		lg.Fatalf("lpd: listen on %s: %v", *listen, err)
	}
	lg.Infof("lpd: listening on %s", *listen)

	srv := lpd.NewServer(&loggingSubmitter{lg: lg}, *tempDir, nil, lg)

	go func() {
		<-lifecycle.Watch()
		lst.Close()
	}()

	if err := srv.Serve(lst); err != nil {
		lg.Fatalf("lpd: serve: %v", err)
	}
}

func openLogger(path string) (*log.Logger, error) {
	if path == `` {
		return log.New(os.Stderr), nil
	}
	return log.NewRotatingFile(path, *logMaxSize, *logHistory)
}

// loggingSubmitter is the standalone binary's ipp.JobSubmitter: with
// no scheduler model wired in it only logs what it received, which is
// enough to smoke-test a queue's control/data flow without a full
// printsched instance running alongside it.
type loggingSubmitter struct {
	lg      *log.Logger
	nextJob uint64
}

func (s *loggingSubmitter) CreateJob(printerName, user, title string) (uint64, error) {
	s.nextJob++
	s.lg.Infof("lpd: job %d for printer %q from user %q: %q", s.nextJob, printerName, user, title)
	return s.nextJob, nil
}

func (s *loggingSubmitter) SubmitDocument(jobID uint64, doc ipp.Document) error {
	s.lg.Infof("lpd: job %d received %d bytes as %s (last=%v)", jobID, len(doc.Data), doc.Format, doc.Last)
	return nil
}

func (s *loggingSubmitter) CancelJob(jobID uint64, user string) error {
	s.lg.Infof("lpd: job %d canceled by %q", jobID, user)
	return nil
}
