/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Command device-discoveryd browses DNS-SD for the transports listed
// in internal/discovery. Run with no positional arguments it is a
// standalone backend that prints one "network ..." line per selected
// device to stdout. Run with the five positional arguments of the
// mini-daemon ABI (request-id limit timeout user-id options) it
// instead behaves as the scheduler's spawned mini-daemon, framing the
// same discoveries as an IPP response on stdout via internal/ipcframe.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gravwell/printsched/internal/discovery"
	"github.com/gravwell/printsched/internal/ipcframe"
	"github.com/gravwell/printsched/internal/ipp"
	"github.com/gravwell/printsched/internal/lifecycle"
	"github.com/gravwell/printsched/internal/version"
)

var (
	timeoutSeconds = flag.Int("timeout", 10, "seconds to browse before exiting")
	ver            = flag.Bool("version", false, "print version and exit")
)

func main() {
	flag.Parse()
	if *ver {
		version.PrintVersion(os.Stdout)
		os.Exit(0)
	}

	if args := flag.Args(); len(args) == 5 {
		os.Exit(runMiniDaemon(args))
	}

	if *timeoutSeconds <= 0 {
		fmt.Fprintln(os.Stderr, "ERROR: timeout must be positive")
		os.Exit(1)
	}
	if err := runStandalone(time.Duration(*timeoutSeconds) * time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: device discovery failed: %v\n", err)
		os.Exit(1)
	}
}

func runStandalone(timeout time.Duration) error {
	done := lifecycle.Watch()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	go func() {
		<-done
		cancel()
	}()

	runner := discovery.NewRunner(func(line string) {
		fmt.Println(line)
	})
	return runner.Run(ctx)
}

// runMiniDaemon implements the "cups-deviced request-id limit timeout
// user-id options" ABI: it runs discovery in-process, collects up to
// limit announced devices, and frames them as an IPP
// Get-Printer-Attributes response on stdout.
func runMiniDaemon(args []string) int {
	requestID, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: bad request-id %q: %v\n", args[0], err)
		return 1
	}
	limit, err := strconv.Atoi(args[1])
	if err != nil || limit < 0 {
		fmt.Fprintf(os.Stderr, "ERROR: bad limit %q\n", args[1])
		return 1
	}
	if limit == 0 {
		limit = 1 << 30
	}
	timeoutSecs, err := strconv.Atoi(args[2])
	if err != nil || timeoutSecs <= 0 {
		fmt.Fprintf(os.Stderr, "ERROR: bad timeout %q\n", args[2])
		return 1
	}
	// args[3] is the requesting user-id, args[4] is the options string;
	// neither constrains discovery, they are only logged for the admin.
	fmt.Fprintf(os.Stderr, "DEBUG: discovering devices for user %s, options %q\n", args[3], args[4])

	var lines []string
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSecs)*time.Second)
	defer cancel()

	runner := discovery.NewRunner(func(line string) {
		if len(lines) < limit {
			lines = append(lines, line)
		}
	})
	if err := runner.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return 1
	}

	w := ipcframe.NewWriter(os.Stdout)
	if err := w.WriteCGIHeaderIfNeeded(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return 1
	}
	if err := w.WriteHeader(ipcframe.ResponseHeader{
		Operation: ipp.OpGetPrinterAttributes,
		Status:    ipp.StatusSuccessfulOK,
		RequestID: uint32(requestID),
	}); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return 1
	}
	if err := w.WriteGroup(ipcframe.Group{
		Tag:        ipcframe.GroupOperation,
		Attributes: map[string]string{"attributes-charset": "utf-8", "attributes-natural-language": "en"},
	}); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return 1
	}
	for _, line := range lines {
		attrs, ok := parseNetworkLine(line)
		if !ok {
			continue
		}
		if err := w.WriteGroup(ipcframe.Group{Tag: ipcframe.GroupPrinter, Attributes: attrs}); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			return 1
		}
	}
	if err := w.WriteEnd(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return 1
	}
	fmt.Fprintf(os.Stderr, "INFO: announced %d device(s)\n", len(lines))
	return 0
}

// parseNetworkLine inverts discovery.FormatLine's two-space-joined,
// quoted-field layout well enough to re-express a backend's own
// output as IPP attributes; it is not a general RFC 1179 or shell
// quoting parser.
func parseNetworkLine(line string) (map[string]string, bool) {
	fields := strings.Split(line, `  `)
	if len(fields) != 6 || fields[0] != `network` {
		return nil, false
	}
	return map[string]string{
		"device-uri":            fields[1],
		"device-make-and-model": unquote(fields[2]),
		"device-info":           unquote(fields[3]),
		"device-id":             unquote(fields[4]),
		"device-location":       unquote(fields[5]),
	}, true
}

func unquote(s string) string {
	s = strings.TrimPrefix(s, `"`)
	s = strings.TrimSuffix(s, `"`)
	s = strings.ReplaceAll(s, `\"`, `"`)
	s = strings.ReplaceAll(s, `\\`, `\`)
	return s
}
