// SPDX-FileCopyrightText: 2025, 2026 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package link

import (
	"fmt"
	"sync"

	"github.com/qlink/qlink-go/qapi"
)

// RequestTable is the lookup table of outstanding Requests, keyed by their
// identifier. The owning application layer creates an entry per outgoing
// request, fulfils it from its message callback and removes it once the
// waiter is done with it.
type RequestTable struct {
	mutex    sync.Mutex
	requests map[string]*Request
}

func NewRequestTable() *RequestTable {
	return &RequestTable{requests: make(map[string]*Request)}
}

// Create a new outstanding Request. An identifier colliding with another
// outstanding Request is a programming error and rejected.
func (rt *RequestTable) Create(id string, ordered bool) (*Request, error) {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()

	if _, exists := rt.requests[id]; exists {
		return nil, fmt.Errorf("request %s does already exist", id)
	}

	req := newRequest(id, ordered)
	rt.requests[id] = req

	return req, nil
}

// Get an outstanding Request, nil for an unknown identifier.
func (rt *RequestTable) Get(id string) *Request {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()

	return rt.requests[id]
}

// Fulfil the Request with the given identifier. Returns false for an unknown
// identifier or a repeated fulfilment.
func (rt *RequestTable) Fulfil(id string, success bool, payload []byte, err error) bool {
	if req := rt.Get(id); req != nil {
		return req.fulfil(success, payload, err)
	}

	return false
}

// AddMessage appends a raw message to the Request's buffer for streaming
// replies. Returns false for an unknown identifier.
func (rt *RequestTable) AddMessage(id string, msg *qapi.Message) bool {
	if req := rt.Get(id); req != nil {
		req.addMessage(msg)
		return true
	}

	return false
}

// Remove the Request with the given identifier from the table.
func (rt *RequestTable) Remove(id string) {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()

	delete(rt.requests, id)
}
