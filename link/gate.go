// SPDX-FileCopyrightText: 2025, 2026 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package link

import (
	"sync"
	"time"
)

// gate is a settable, clearable, waitable readiness signal. Sessions raise
// their gate once their broker connection is usable and clear it on every
// teardown; caller goroutines block on await.
type gate struct {
	mutex  sync.Mutex
	raised bool
	ch     chan struct{}
}

func newGate() *gate {
	return &gate{ch: make(chan struct{})}
}

// raise the gate, waking all waiters.
func (g *gate) raise() {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if !g.raised {
		g.raised = true
		close(g.ch)
	}
}

// clear the gate; subsequent awaits block again.
func (g *gate) clear() {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.raised {
		g.raised = false
		g.ch = make(chan struct{})
	}
}

func (g *gate) isRaised() bool {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	return g.raised
}

// await blocks until the gate is raised, the timeout expired or cancel was
// closed. A negative timeout blocks without bound; a nil cancel channel is
// ignored. Returns true iff the gate was raised.
func (g *gate) await(timeout time.Duration, cancel <-chan struct{}) bool {
	g.mutex.Lock()
	if g.raised {
		g.mutex.Unlock()
		return true
	}
	ch := g.ch
	g.mutex.Unlock()

	var timer <-chan time.Time
	if timeout >= 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case <-ch:
		return true
	case <-timer:
		return false
	case <-cancel:
		return false
	}
}
