// SPDX-FileCopyrightText: 2025, 2026 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package link

import (
	"time"
)

// ackBatcher is the receiver session's bookkeeping for cumulative
// acknowledgments. It counts delivered but unacknowledged messages and
// decides when a flush is due: at the threshold for bursty traffic, on an
// elapsed poll slice or the interval cap for low traffic.
//
// It is not safe for concurrent use; the receiver's drain loop owns it.
type ackBatcher struct {
	threshold int
	interval  time.Duration

	count     int
	lastTag   uint64
	lastFlush time.Time
}

// newAckBatcher with threshold = floor(prefetch * fraction).
func newAckBatcher(prefetch int, fraction float64, interval time.Duration, now time.Time) *ackBatcher {
	threshold := int(float64(prefetch) * fraction)
	if threshold < 1 {
		threshold = 1
	}

	return &ackBatcher{
		threshold: threshold,
		interval:  interval,
		lastFlush: now,
	}
}

// record a delivered message's tag.
func (b *ackBatcher) record(tag uint64) {
	b.count++
	b.lastTag = tag
}

func (b *ackBatcher) pending() bool {
	return b.count > 0
}

// shouldFlush reports whether a cumulative acknowledgment is due. The
// pollElapsed flag marks the end of a drain poll slice.
func (b *ackBatcher) shouldFlush(now time.Time, pollElapsed bool) bool {
	if b.count == 0 {
		return false
	}

	return pollElapsed || b.count >= b.threshold || now.Sub(b.lastFlush) >= b.interval
}

// reset the counter after a flush covering everything up to lastTag.
func (b *ackBatcher) reset(now time.Time) {
	b.count = 0
	b.lastFlush = now
}
