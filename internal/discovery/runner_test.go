/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunnerAnnouncesFromInjectedBrowse(t *testing.T) {
	var lines []string
	r := NewRunner(func(line string) { lines = append(lines, line) })
	r.browse = func(ctx context.Context, t Transport, onEvent EventFunc) error {
		if t == IPP {
			onEvent(Event{Name: "Laser", Domain: domainLocal, Target: "host.local", Port: 631, TXT: map[string]string{"priority": "10"}})
		}
		<-ctx.Done()
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = r.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(lines) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestHandleEventIgnoresBarePTR(t *testing.T) {
	r := NewRunner(nil)
	r.handleEvent(IPP, Event{Name: "Laser", Domain: domainLocal})
	require.Equal(t, []string{"Laser"}, r.registry.Names())
	require.False(t, r.registry.byName["Laser"][0].hasTXT, "a bare PTR must not resolve TXT data")
}

func TestHandleEventResolvesOnTXT(t *testing.T) {
	r := NewRunner(nil)
	r.handleEvent(IPP, Event{Name: "Laser", Domain: domainLocal, Target: "host.local", Port: 631, TXT: map[string]string{"priority": "5"}})
	require.Equal(t, []string{"Laser"}, r.registry.Names())
}
