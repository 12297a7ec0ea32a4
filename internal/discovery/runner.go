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
	"fmt"
	"sync"
	"time"

	"github.com/gravwell/printsched/internal/lifecycle"
)

// minWallClock is the shortest time the backend runs before it may
// exit, per §4.5's "no fewer than 5 seconds of wall-clock activity".
const minWallClock = 5 * time.Second

// Runner drives one Registry from every transport's Browse loop until
// the process-wide cancellation flag is set and the minimum wall
// clock has elapsed, or until the caller's context is done.
type Runner struct {
	registry *Registry
	browse   func(ctx context.Context, t Transport, onEvent EventFunc) error
}

// NewRunner returns a Runner that announces selected devices through
// announce, one line per call.
func NewRunner(announce func(line string)) *Runner {
	return &Runner{registry: NewRegistry(announce), browse: Browse}
}

// Run spawns one browse loop per transport and blocks until the
// cancellation flag is observed set and at least minWallClock has
// elapsed since Run started, or until ctx is done (which ends Run at
// once, with no minimum wall-clock wait), then finalizes any
// still-pending selections and returns.
func (r *Runner) Run(ctx context.Context) error {
	start := time.Now()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, len(AllTransports()))
	for _, t := range AllTransports() {
		wg.Add(1)
		go func(t Transport) {
			defer wg.Done()
			if err := r.browse(runCtx, t, func(e Event) { r.handleEvent(t, e) }); err != nil {
				errCh <- fmt.Errorf("discovery: transport %s: %w", t, err)
			}
		}(t)
	}

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			cancel()
			wg.Wait()
			r.registry.Finalize()
			return nil
		case <-ticker.C:
			if lifecycle.Canceled() && time.Since(start) >= minWallClock {
				cancel()
				wg.Wait()
				r.registry.Finalize()
				return nil
			}
		}
	}
}

func (r *Runner) handleEvent(t Transport, e Event) {
	dev := r.registry.AddService(e.Name, e.Domain, t, deviceURI(t, e))
	if e.Target == `` && len(e.TXT) == 0 {
		return // a bare PTR add; TXT/SRV still pending
	}
	r.registry.AcquireTXTSlot()
	defer r.registry.ReleaseTXTSlot()
	info := ParseTXT(e.TXT)
	r.registry.ResolveTXT(dev, info)
}

// deviceURI builds the dnssd:// URI a resolved record announces.
func deviceURI(t Transport, e Event) string {
	if e.Target == `` {
		return ``
	}
	return fmt.Sprintf(`dnssd://%s._%s._tcp.local/?host=%s&port=%d`, e.Name, t, e.Target, e.Port)
}
