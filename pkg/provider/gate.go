// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package provider

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// gate is a cooperative rate limiter for outbound provider calls.
//
// It enforces two bounds: at most Concurrency calls inflight at once, and
// at most RequestsPerMinute admissions inside any sliding 60-second
// window. The window slot is claimed atomically at admission, so a
// concurrent burst cannot pass while earlier admitted calls are still
// inflight. Acquire blocks (never spins) until both bounds admit the call
// or the context is done.
//
// A nil gate admits everything.
type gate struct {
	sem       *semaphore.Weighted
	perMinute int

	mu     sync.Mutex
	starts []time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// newGate builds a gate from a RateLimit. A nil or zeroed config yields a
// nil gate.
func newGate(rl *RateLimit) *gate {
	if rl == nil || (rl.RequestsPerMinute <= 0 && rl.Concurrency <= 0) {
		return nil
	}
	g := &gate{
		perMinute: rl.RequestsPerMinute,
		now:       time.Now,
		sleep:     sleepCtx,
	}
	if rl.Concurrency > 0 {
		g.sem = semaphore.NewWeighted(int64(rl.Concurrency))
	}
	return g
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// acquire blocks until the call may start.
func (g *gate) acquire(ctx context.Context) error {
	if g == nil {
		return nil
	}

	if g.sem != nil {
		if err := g.sem.Acquire(ctx, 1); err != nil {
			return err
		}
	}

	if err := g.waitForWindow(ctx); err != nil {
		if g.sem != nil {
			g.sem.Release(1)
		}
		return err
	}
	return nil
}

// waitForWindow blocks until fewer than perMinute admissions fall inside
// the trailing 60 seconds, then claims a slot under the same lock. The
// check and the claim are one critical section, so concurrent acquirers
// cannot all observe a free slot and be admitted past the bound.
func (g *gate) waitForWindow(ctx context.Context) error {
	if g.perMinute <= 0 {
		return nil
	}

	for {
		g.mu.Lock()
		now := g.now()
		g.prune(now)

		if len(g.starts) < g.perMinute {
			g.starts = append(g.starts, now)
			g.mu.Unlock()
			return nil
		}
		// The oldest admission still in the window decides when a slot
		// frees up.
		oldest := g.starts[len(g.starts)-g.perMinute]
		wait := oldest.Add(time.Minute).Sub(now)
		g.mu.Unlock()

		if wait <= 0 {
			continue
		}
		if err := g.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// release frees the inflight slot. The window slot is not returned; it
// expires on its own 60 seconds after admission.
func (g *gate) release() {
	if g == nil {
		return
	}
	if g.sem != nil {
		g.sem.Release(1)
	}
}

// prune drops admissions older than the window. Callers hold mu.
func (g *gate) prune(now time.Time) {
	cutoff := now.Add(-time.Minute)
	i := 0
	for i < len(g.starts) && !g.starts[i].After(cutoff) {
		i++
	}
	if i > 0 {
		g.starts = append(g.starts[:0], g.starts[i:]...)
	}
}
