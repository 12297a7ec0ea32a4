/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package procmgr keeps a single backend binary running for the life
// of the scheduler. printsched uses it to supervise a device-discoveryd
// instance run as a detached background process rather than invoked
// per-request: start it once, restart it after a fixed delay if it
// exits unexpectedly, and stop trying once it has failed too many
// times in a row.
package procmgr

import (
	"errors"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/gravwell/printsched/internal/log"
)

const (
	defaultRestartDelay = 5 * time.Second
	defaultMaxRestarts  = 5
)

// BackendConfig describes the backend binary a Supervisor keeps
// running.
type BackendConfig struct {
	Name       string // for logging only
	Exec       string // command line, split on whitespace
	WorkingDir string // working directory for the child process, empty for inherited

	// RestartDelay is how long a Supervisor waits after an unexpected
	// exit before trying again. Zero selects a 5 second default.
	RestartDelay time.Duration

	// MaxRestarts caps consecutive unexpected exits before a
	// Supervisor gives up and stops retrying. Zero selects a default
	// of 5.
	MaxRestarts int
}

func (bc BackendConfig) validate() (BackendConfig, error) {
	if strings.TrimSpace(bc.Exec) == `` {
		return bc, errors.New("procmgr: empty exec statement")
	}
	if bc.RestartDelay <= 0 {
		bc.RestartDelay = defaultRestartDelay
	}
	if bc.MaxRestarts <= 0 {
		bc.MaxRestarts = defaultMaxRestarts
	}
	return bc, nil
}

// Supervisor keeps one backend process running according to its
// BackendConfig's restart policy.
type Supervisor struct {
	cfg BackendConfig
	lg  *log.Logger

	mu   sync.Mutex
	die  chan struct{}
	done chan struct{}
}

// NewSupervisor builds a Supervisor for cfg. lg may be nil, in which
// case the Supervisor's own log lines are discarded.
func NewSupervisor(cfg BackendConfig, lg *log.Logger) (*Supervisor, error) {
	cfg, err := cfg.validate()
	if err != nil {
		return nil, err
	}
	if lg == nil {
		lg = log.NewDiscardLogger()
	}
	return &Supervisor{cfg: cfg, lg: lg}, nil
}

// Start launches the backend and supervises it in the background.
// Calling Start on an already-running Supervisor returns an error.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.die != nil {
		return errors.New("procmgr: already running")
	}
	s.die = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(s.die, s.done)
	return nil
}

// Close signals the supervised backend to stop and waits for its
// supervising goroutine to exit. Calling Close on a Supervisor that
// isn't running returns an error.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	die, done := s.die, s.done
	s.die, s.done = nil, nil
	s.mu.Unlock()
	if die == nil {
		return errors.New("procmgr: not running")
	}
	close(die)
	<-done
	return nil
}

// run owns the child process for the Supervisor's lifetime: start it,
// wait for it to exit or for die to close, and restart it with a
// delay until either die closes or the restart budget runs out.
func (s *Supervisor) run(die, done chan struct{}) {
	defer close(done)

	args := strings.Fields(s.cfg.Exec)
	if len(args) == 0 {
		s.lg.Warnf("procmgr: %s: empty exec statement", s.cfg.Name)
		return
	}

	for restarts := 0; ; restarts++ {
		cmd := exec.Command(args[0], args[1:]...)
		cmd.Dir = s.cfg.WorkingDir
		s.lg.Infof("procmgr: starting %s (%s)", s.cfg.Name, s.cfg.Exec)

		exitCh := make(chan error, 1)
		if err := cmd.Start(); err != nil {
			s.lg.Warnf("procmgr: %s failed to start: %v", s.cfg.Name, err)
			exitCh <- err
		} else {
			go func() { exitCh <- cmd.Wait() }()
		}

		select {
		case <-die:
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
				<-exitCh
			}
			return
		case err := <-exitCh:
			s.lg.Infof("procmgr: %s exited: %v", s.cfg.Name, err)
		}

		if restarts+1 >= s.cfg.MaxRestarts {
			s.lg.Warnf("procmgr: %s failed %d times in a row, giving up", s.cfg.Name, restarts+1)
			return
		}
		select {
		case <-die:
			return
		case <-time.After(s.cfg.RestartDelay):
		}
	}
}
