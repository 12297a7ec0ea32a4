/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Command printsched is the scheduler daemon: it loads the MIME
// database and filter rules, builds the printer/job model, and serves
// LPD ingress over the listener named in its configuration until
// signaled to stop.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"runtime/debug"
	"time"

	"github.com/gravwell/printsched/internal/config"
	"github.com/gravwell/printsched/internal/lifecycle"
	"github.com/gravwell/printsched/internal/lpd"
	"github.com/gravwell/printsched/internal/log"
	"github.com/gravwell/printsched/internal/mimedb"
	"github.com/gravwell/printsched/internal/planner"
	"github.com/gravwell/printsched/internal/ppdcache"
	"github.com/gravwell/printsched/internal/printer"
	"github.com/gravwell/printsched/internal/procmgr"
	"github.com/gravwell/printsched/internal/sinkcache"
	"github.com/gravwell/printsched/internal/version"
)

var (
	confPath         = flag.String("config", "/etc/cups/cupsd.conf", "path to the server configuration file")
	ppdPath          = flag.String("ppd-cache", "/var/cache/cups/ppds.cache", "path to the persisted printer/PPD cache")
	discoveryExec    = flag.String("discovery-backend", "", "command line of a device-discoveryd instance to keep running in the background, empty to run none")
	discoveryRestart = flag.Duration("discovery-restart-delay", 5*time.Second, "delay before restarting the discovery backend after an unexpected exit")
	discoveryMaxTry  = flag.Int("discovery-max-restarts", 5, "consecutive unexpected exits the discovery backend is allowed before printsched stops restarting it")
	logPath          = flag.String("log", "", "log file path, empty for stderr")
	logLevel         = flag.String("log-level", "INFO", "log level: OFF, DEBUG, INFO, WARN, ERROR, CRITICAL, FATAL")
	logMaxSize       = flag.Int64("log-max-size", 4*1024*1024, "rotate the log file once it exceeds this many bytes")
	logHistory       = flag.Uint("log-history", 3, "number of rotated log generations to keep")
	ver              = flag.Bool("version", false, "print version and exit")
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

	var sc config.ServerConfig
	if err := config.LoadConfigFile(&sc, *confPath); err != nil {
		lg.Warnf("printsched: could not load %s: %v, proceeding with defaults", *confPath, err)
	}

	env, err := config.LoadEnv(config.Env{
		ServerBin: sc.Global.ServerBin,
		User:      sc.Global.User,
		SinkReuse: sc.Global.SinkReuse,
		TmpDir:    sc.Global.TempDir,
	})
	if err != nil {
		lg.Fatalf("printsched: %v", err)
	}

	db := mimedb.New()
	if err := mimedb.Bootstrap(db); err != nil {
		lg.Fatalf("printsched: bootstrap mime database: %v", err)
	}

	pl := planner.New(db)
	cache := sinkcache.New(env.SinkReuse)
	model := printer.New(db, pl, cache)

	cacheFile, err := ppdcache.New(*ppdPath, 0640, lg)
	if err != nil {
		lg.Fatalf("printsched: %v", err)
	}
	records, err := cacheFile.Load()
	if err != nil {
		lg.Warnf("printsched: could not load ppd cache: %v", err)
	}
	for _, r := range records {
		lg.Infof("printsched: restoring cached printer %s (%s)", r.PrinterName, r.MakeAndModel)
	}

	discovery := startDiscoveryBackend(lg)

	done := lifecycle.Watch()
	go func() {
		<-done
		if discovery != nil {
			if err := discovery.Close(); err != nil {
				lg.Warnf("printsched: stopping discovery backend: %v", err)
			}
		}
		if err := cacheFile.Save(records); err != nil {
			lg.Warnf("printsched: could not persist ppd cache on shutdown: %v", err)
		}
	}()

	listen := sc.Global.Listen
	if listen == `` {
		listen = fmt.Sprintf(":%d", env.IPPPort)
	}
	lst, err := net.Listen("tcp", listen)
	if err != nil {
		lg.Fatalf("printsched: listen on %s: %v", listen, err)
	}
	lg.Infof("printsched: listening on %s", listen)

	sub := printer.NewSubmitter(model)
	lpdSrv := lpd.NewServer(sub, env.TmpDir, nil, lg)

	if err := lpdSrv.Serve(lst); err != nil {
		lg.Fatalf("printsched: serve: %v", err)
	}
}

func openLogger(path string) (*log.Logger, error) {
	if path == `` {
		return log.New(os.Stderr), nil
	}
	return log.NewRotatingFile(path, *logMaxSize, *logHistory)
}

// startDiscoveryBackend starts the configured device-discoveryd
// instance under supervision, or returns nil if -discovery-backend is
// empty.
func startDiscoveryBackend(lg *log.Logger) *procmgr.Supervisor {
	if *discoveryExec == `` {
		return nil
	}
	sv, err := procmgr.NewSupervisor(procmgr.BackendConfig{
		Name:         "device-discoveryd",
		Exec:         *discoveryExec,
		RestartDelay: *discoveryRestart,
		MaxRestarts:  *discoveryMaxTry,
	}, lg)
	if err != nil {
		lg.Warnf("printsched: discovery backend: %v", err)
		return nil
	}
	if err := sv.Start(); err != nil {
		lg.Warnf("printsched: discovery backend: %v", err)
		return nil
	}
	lg.Infof("printsched: supervising discovery backend (%s)", *discoveryExec)
	return sv
}
