// SPDX-FileCopyrightText: 2025, 2026 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package link implements the session substrate between an agent and the
// broker hosted platform: a dual channel connection manager owning
// independent send and receive sessions with their own reconnect loops,
// plus the request correlation primitive joining asynchronous replies back
// to their blocked callers.
package link

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// startTimeout bounds each session's readiness wait during Start.
const startTimeout = 2500 * time.Millisecond

// Link composes one sender and one receiver session over two independent
// broker connections. Use it under a structured scope: Start, use, Stop.
// Stop must be called to release the broker connections.
type Link struct {
	conf Config

	snd *sender
	rcv *receiver

	mutex   sync.Mutex
	started bool
	end     chan struct{}
	wg      sync.WaitGroup
}

// NewLink for the given Config. The message callback receives every decoded
// data message in broker delivery order; the keepalive callback is invoked
// after every answered keepalive. Both run on the receiver's goroutine.
func NewLink(conf Config, msgCallback MessageFunc, kaCallback KeepaliveFunc) (*Link, error) {
	conf = conf.withDefaults()
	if err := conf.check(); err != nil {
		return nil, err
	}

	l := &Link{conf: conf}
	l.snd = newSender(&l.conf)
	l.rcv = newReceiver(&l.conf, msgCallback, kaCallback)

	return l, nil
}

// Start both sessions, sender first, and block until both are ready. If
// either session misses its readiness bound, everything is torn down again
// and the failure is surfaced: the receiver's recorded error takes
// precedence as the more diagnostic one, e.g., for denied access.
func (l *Link) Start() error {
	l.mutex.Lock()
	if l.started {
		l.mutex.Unlock()
		return ErrAlreadyStarted
	}
	l.started = true
	l.end = make(chan struct{})
	end := l.end
	l.mutex.Unlock()

	l.snd.reset(end)
	l.rcv.reset(end)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.snd.run(l.snd.cycle)
	}()

	ok := l.snd.ready.await(startTimeout, end)
	if ok {
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.rcv.run(l.rcv.cycle)
		}()

		ok = l.rcv.ready.await(startTimeout, end)
	}

	if !ok {
		log.Warn("link failed to start, giving up")
		l.Stop()

		return l.startFailure()
	}

	return nil
}

// startFailure composes Start's error from the sessions' recorded state.
func (l *Link) startFailure() error {
	if err := l.rcv.lastError(); err != nil {
		return fmt.Errorf("receive session failure: %w", err)
	}
	if err := l.snd.lastError(); err != nil {
		return fmt.Errorf("send session failure: %w", err)
	}

	return ErrStartTimeout
}

// Stop signals both sessions to shut down and blocks until they finished.
// Calling Stop on a stopped Link is a no-op.
func (l *Link) Stop() {
	l.mutex.Lock()
	if !l.started {
		l.mutex.Unlock()
		return
	}
	l.started = false
	close(l.end)
	l.mutex.Unlock()

	l.wg.Wait()
}

// IsAlive reports whether both sessions are ready and their reconnect loops
// are still running.
func (l *Link) IsAlive() bool {
	return l.snd.ready.isRaised() && l.rcv.ready.isRaised() &&
		l.snd.running.Load() && l.rcv.running.Load()
}

// Send an encoded frame, waiting up to the configured SendTimeout for the
// sender session to be ready.
func (l *Link) Send(body []byte) error {
	return l.SendTimeout(body, l.conf.SendTimeout)
}

// SendTimeout sends an encoded frame, waiting up to timeout for the sender
// session to be ready. A negative timeout blocks without bound, but a Stop
// still unblocks the wait. A sender not becoming ready in time surfaces its
// last recorded error behind ErrNotReady.
func (l *Link) SendTimeout(body []byte, timeout time.Duration) error {
	l.mutex.Lock()
	started, end := l.started, l.end
	l.mutex.Unlock()

	if !started {
		return fmt.Errorf("%w: link is not started", ErrNotReady)
	}

	if !l.snd.ready.await(timeout, end) {
		if err := l.snd.lastError(); err != nil {
			return fmt.Errorf("%w: %v", ErrNotReady, err)
		}
		return ErrNotReady
	}

	return l.snd.publish(body)
}
