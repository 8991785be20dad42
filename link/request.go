// SPDX-FileCopyrightText: 2025, 2026 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package link

import (
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/qlink/qlink-go/qapi"
)

// Request is a single use future joining an asynchronous QAPI reply back to
// its blocked caller. It is created by the caller issuing a request and
// fulfilled exactly once by the receive path; later fulfilment attempts are
// no-ops.
//
// A failure is captured as data and handed to the waiter as the error return
// of Wait or IsSet, so it crosses goroutines verbatim instead of being
// logged somewhere on the receive path.
type Request struct {
	// ID is the caller chosen identifier, unique among outstanding requests.
	ID string

	// Ordered marks that this request's completion must be serialized
	// relative to other ordered completions at the delivery point. The owner
	// of the RequestTable enforces this; the flag is only carried here.
	Ordered bool

	mutex     sync.Mutex
	done      chan struct{}
	fulfilled bool
	success   bool
	payload   []byte
	err       error
	messages  []*qapi.Message
}

func newRequest(id string, ordered bool) *Request {
	return &Request{
		ID:      id,
		Ordered: ordered,
		done:    make(chan struct{}),
	}
}

// fulfil performs the single allowed pending transition and wakes all
// waiters. Returns false if this Request was already fulfilled.
func (req *Request) fulfil(success bool, payload []byte, err error) bool {
	req.mutex.Lock()
	defer req.mutex.Unlock()

	if req.fulfilled {
		return false
	}

	req.fulfilled = true
	req.success = success
	req.payload = payload
	req.err = err
	close(req.done)

	return true
}

// addMessage appends a raw message for multi-message replies.
func (req *Request) addMessage(msg *qapi.Message) {
	req.mutex.Lock()
	defer req.mutex.Unlock()

	req.messages = append(req.messages, msg)
}

// outcome after the done channel was closed.
func (req *Request) outcome() (bool, error) {
	req.mutex.Lock()
	defer req.mutex.Unlock()

	return true, req.err
}

// Wait for this Request to be fulfilled. A negative timeout blocks without
// bound. Returns true iff the Request was fulfilled within the timeout; a
// captured failure is returned as the error, identically on every call.
func (req *Request) Wait(timeout time.Duration) (bool, error) {
	var timer <-chan time.Time
	if timeout >= 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case <-req.done:
		return req.outcome()
	case <-timer:
		return false, nil
	}
}

// IsSet is the non-blocking variant of Wait with identical error semantics.
func (req *Request) IsSet() (bool, error) {
	select {
	case <-req.done:
		return req.outcome()
	default:
		return false, nil
	}
}

// Success reports whether a fulfilled Request succeeded.
func (req *Request) Success() bool {
	req.mutex.Lock()
	defer req.mutex.Unlock()

	return req.fulfilled && req.success
}

// Payload of a fulfilled Request, nil before fulfilment.
func (req *Request) Payload() []byte {
	req.mutex.Lock()
	defer req.mutex.Unlock()

	return req.payload
}

// Messages returns a copy of the buffered raw messages.
func (req *Request) Messages() []*qapi.Message {
	req.mutex.Lock()
	defer req.mutex.Unlock()

	msgs := make([]*qapi.Message, len(req.messages))
	copy(msgs, req.messages)

	return msgs
}

// RequestIDSource generates request identifiers of the form prefix_n, with a
// random per-source prefix and a strictly increasing counter.
type RequestIDSource struct {
	prefix string
	n      atomic.Uint64
}

func NewRequestIDSource() *RequestIDSource {
	id := uuid.New()

	return &RequestIDSource{prefix: hex.EncodeToString(id[:])}
}

// Next request identifier.
func (src *RequestIDSource) Next() string {
	return fmt.Sprintf("%s_%d", src.prefix, src.n.Add(1))
}
