// SPDX-FileCopyrightText: 2025, 2026 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qapi

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dtn7/cboring"
)

// Inner message map keys, as single character text strings.
const (
	msgKeyResource  = "r"
	msgKeyType      = "t"
	msgKeyClientRef = "c"
	msgKeyAction    = "a"
	msgKeyPayload   = "p"
	msgKeyRange     = "g"
)

// Range restricts a list-style request to a slice of the available data,
// e.g., for recent data samples.
type Range struct {
	Offset uint64
	Limit  uint64
}

// Message is the inner QAPI message carried by every Envelope, both for
// requests issued by an agent and for events sent by the remote platform.
//
// The Payload is opaque to the session layer; interpreting it, including the
// failure taxonomy of TypeFailed messages, is the owning application layer's
// job. FailurePayload covers the one shape this package defines itself.
type Message struct {
	// Resource is the addressed resource's type code.
	Resource ResourceType

	// Type classifies this Message, request or event class.
	Type MessageType

	// ClientRef correlates a response to an outstanding request. It is empty
	// for unsolicited messages, e.g., feed data.
	ClientRef string

	// Action is the requested operation.
	Action ActionType

	// Payload is the opaque, application-defined payload.
	Payload []byte

	// Range is an optional data range, nil if absent.
	Range *Range
}

func (m Message) String() string {
	return fmt.Sprintf("Message(resource=%v, type=%v, ref=%s, action=%v)",
		m.Resource, m.Type, m.ClientRef, m.Action)
}

// MarshalCbor writes this Message as a CBOR map with single character keys.
// The range key is only present for a non-nil Range.
func (m *Message) MarshalCbor(w io.Writer) (err error) {
	pairs := uint64(5)
	if m.Range != nil {
		pairs++
	}

	if err = cboring.WriteMapPairLength(pairs, w); err != nil {
		return
	}

	fields := []struct {
		key   string
		write func() error
	}{
		{msgKeyResource, func() error { return cboring.WriteUInt(uint64(m.Resource), w) }},
		{msgKeyType, func() error { return cboring.WriteUInt(uint64(m.Type), w) }},
		{msgKeyClientRef, func() error { return cboring.WriteTextString(m.ClientRef, w) }},
		{msgKeyAction, func() error { return cboring.WriteUInt(uint64(m.Action), w) }},
		{msgKeyPayload, func() error { return cboring.WriteByteString(m.Payload, w) }},
	}

	for _, field := range fields {
		if err = cboring.WriteTextString(field.key, w); err != nil {
			return
		}
		if err = field.write(); err != nil {
			return
		}
	}

	if m.Range != nil {
		if err = cboring.WriteTextString(msgKeyRange, w); err != nil {
			return
		}
		if err = cboring.WriteArrayLength(2, w); err != nil {
			return
		}
		if err = cboring.WriteUInt(m.Range.Offset, w); err != nil {
			return
		}
		if err = cboring.WriteUInt(m.Range.Limit, w); err != nil {
			return
		}
	}

	return
}

// UnmarshalCbor reads a CBOR map back into this Message.
func (m *Message) UnmarshalCbor(r io.Reader) (err error) {
	var pairs uint64
	if pairs, err = cboring.ReadMapPairLength(r); err != nil {
		return
	}

	for i := uint64(0); i < pairs; i++ {
		var key string
		if key, err = cboring.ReadTextString(r); err != nil {
			return
		}

		switch key {
		case msgKeyResource:
			var n uint64
			if n, err = cboring.ReadUInt(r); err != nil {
				return
			}
			m.Resource = ResourceType(n)

		case msgKeyType:
			var n uint64
			if n, err = cboring.ReadUInt(r); err != nil {
				return
			}
			m.Type = MessageType(n)

		case msgKeyClientRef:
			if m.ClientRef, err = cboring.ReadTextString(r); err != nil {
				return
			}

		case msgKeyAction:
			var n uint64
			if n, err = cboring.ReadUInt(r); err != nil {
				return
			}
			m.Action = ActionType(n)

		case msgKeyPayload:
			if m.Payload, err = cboring.ReadByteString(r); err != nil {
				return
			}

		case msgKeyRange:
			var n uint64
			if n, err = cboring.ReadArrayLength(r); err != nil {
				return
			} else if n != 2 {
				return fmt.Errorf("message range expected array of length 2, got %d", n)
			}

			m.Range = new(Range)
			if m.Range.Offset, err = cboring.ReadUInt(r); err != nil {
				return
			}
			if m.Range.Limit, err = cboring.ReadUInt(r); err != nil {
				return
			}

		default:
			return fmt.Errorf("message key %q is undefined", key)
		}
	}

	return
}

// Failure payload map keys.
const (
	failKeyCode    = "c"
	failKeyMessage = "m"
)

// FailurePayload is the payload shape of a TypeFailed Message: a code from
// the closed failure taxonomy plus a human readable text.
type FailurePayload struct {
	Code FailureCode
	Text string
}

func (fp FailurePayload) String() string {
	return fmt.Sprintf("%v: %s", fp.Code, fp.Text)
}

func (fp *FailurePayload) MarshalCbor(w io.Writer) (err error) {
	if err = cboring.WriteMapPairLength(2, w); err != nil {
		return
	}

	if err = cboring.WriteTextString(failKeyCode, w); err != nil {
		return
	}
	if err = cboring.WriteUInt(uint64(fp.Code), w); err != nil {
		return
	}

	if err = cboring.WriteTextString(failKeyMessage, w); err != nil {
		return
	}
	if err = cboring.WriteTextString(fp.Text, w); err != nil {
		return
	}

	return
}

func (fp *FailurePayload) UnmarshalCbor(r io.Reader) (err error) {
	var pairs uint64
	if pairs, err = cboring.ReadMapPairLength(r); err != nil {
		return
	}

	for i := uint64(0); i < pairs; i++ {
		var key string
		if key, err = cboring.ReadTextString(r); err != nil {
			return
		}

		switch key {
		case failKeyCode:
			var n uint64
			if n, err = cboring.ReadUInt(r); err != nil {
				return
			}
			fp.Code = FailureCode(n)

		case failKeyMessage:
			if fp.Text, err = cboring.ReadTextString(r); err != nil {
				return
			}

		default:
			return fmt.Errorf("failure payload key %q is undefined", key)
		}
	}

	return
}

// DecodeFailure parses a TypeFailed Message's payload.
func DecodeFailure(payload []byte) (*FailurePayload, error) {
	fp := new(FailurePayload)
	if err := cboring.Unmarshal(fp, bytes.NewReader(payload)); err != nil {
		return nil, err
	}

	return fp, nil
}
