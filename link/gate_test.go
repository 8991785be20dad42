// SPDX-FileCopyrightText: 2025, 2026 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package link

import (
	"testing"
	"time"
)

func TestGateRaiseClear(t *testing.T) {
	g := newGate()

	if g.isRaised() {
		t.Fatal("new gate is raised")
	}
	if g.await(10*time.Millisecond, nil) {
		t.Fatal("await succeeded on a lowered gate")
	}

	g.raise()
	g.raise()

	if !g.isRaised() {
		t.Fatal("gate is not raised")
	}
	if !g.await(0, nil) {
		t.Fatal("await failed on a raised gate")
	}

	g.clear()
	if g.isRaised() {
		t.Fatal("gate is still raised after clear")
	}
	if g.await(10*time.Millisecond, nil) {
		t.Fatal("await succeeded after clear")
	}
}

func TestGateAwaitWakeup(t *testing.T) {
	g := newGate()

	go func() {
		time.Sleep(50 * time.Millisecond)
		g.raise()
	}()

	if !g.await(time.Second, nil) {
		t.Fatal("await missed the raise")
	}
}

func TestGateAwaitCancel(t *testing.T) {
	g := newGate()
	cancel := make(chan struct{})

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(cancel)
	}()

	start := time.Now()
	if g.await(-1, cancel) {
		t.Fatal("await succeeded on a lowered gate")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("cancellation did not unblock the unbounded await")
	}
}

func TestGateAwaitTimeout(t *testing.T) {
	g := newGate()

	timeout := 100 * time.Millisecond
	start := time.Now()
	if g.await(timeout, nil) {
		t.Fatal("await succeeded on a lowered gate")
	}

	elapsed := time.Since(start)
	if elapsed < timeout {
		t.Fatalf("await returned after %v, before the %v timeout", elapsed, timeout)
	}
	if elapsed > timeout+250*time.Millisecond {
		t.Fatalf("await blocked way past its timeout: %v", elapsed)
	}
}
