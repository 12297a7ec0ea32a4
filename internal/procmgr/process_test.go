/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package procmgr

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func bytesCount(data []byte, b byte) int { return bytes.Count(data, []byte{b}) }

func TestNewSupervisorRejectsEmptyExec(t *testing.T) {
	_, err := NewSupervisor(BackendConfig{Name: "empty"}, nil)
	require.Error(t, err)
}

// A backend that exits immediately is restarted after RestartDelay
// until MaxRestarts consecutive failures are reached, at which point
// the Supervisor gives up without being told to stop.
func TestSupervisorRestartsThenGivesUp(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "runs")
	script := filepath.Join(dir, "crash.sh")
	require.NoError(t, os.WriteFile(script, []byte(fmt.Sprintf("#!/bin/sh\necho x >> %s\nexit 1\n", marker)), 0700))

	sv, err := NewSupervisor(BackendConfig{
		Name:         "crasher",
		Exec:         "sh " + script,
		RestartDelay: 5 * time.Millisecond,
		MaxRestarts:  3,
	}, nil)
	require.NoError(t, err)
	require.NoError(t, sv.Start())

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(marker)
		return err == nil && bytesCount(data, '\n') == 3
	}, time.Second, 5*time.Millisecond, "expected exactly 3 attempts before giving up")

	// give the goroutine a moment past its last write to finish the
	// give-up path, then confirm no further attempts ever land.
	time.Sleep(50 * time.Millisecond)
	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	require.Equal(t, 3, bytesCount(data, '\n'))

	// the run loop has already returned on its own; Close still
	// succeeds since its done channel is already closed.
	require.NoError(t, sv.Close())
}

// Close kills a running backend immediately rather than waiting for
// it to exit on its own.
func TestSupervisorCloseKillsRunningBackend(t *testing.T) {
	sv, err := NewSupervisor(BackendConfig{
		Name:         "sleeper",
		Exec:         "sleep 30",
		RestartDelay: time.Second,
		MaxRestarts:  1,
	}, nil)
	require.NoError(t, err)
	require.NoError(t, sv.Start())

	done := make(chan error, 1)
	go func() { done <- sv.Close() }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return promptly")
	}
}

func TestSupervisorStartTwiceErrors(t *testing.T) {
	sv, err := NewSupervisor(BackendConfig{Name: "sleeper", Exec: "sleep 30"}, nil)
	require.NoError(t, err)
	require.NoError(t, sv.Start())
	require.Error(t, sv.Start())
	require.NoError(t, sv.Close())
}
