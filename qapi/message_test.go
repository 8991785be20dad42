// SPDX-FileCopyrightText: 2025, 2026 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qapi

import (
	"bytes"
	"testing"

	"github.com/dtn7/cboring"
)

func TestMessageCborRange(t *testing.T) {
	tests := []*Message{
		{
			Resource:  ResourcePing,
			Type:      TypeComplete,
			ClientRef: "ref_0",
			Action:    ActionList,
			Payload:   []byte{},
		},
		{
			Resource:  ResourceFeed,
			Type:      TypeRecentData,
			ClientRef: "ref_1",
			Action:    ActionList,
			Payload:   []byte{0x01, 0x02},
			Range:     &Range{Offset: 10, Limit: 50},
		},
		{
			Resource: ResourceControl,
			Type:     TypeControlRequest,
			Action:   ActionUpdate,
			Payload:  []byte("unsolicited"),
		},
	}

	for _, m1 := range tests {
		var buff bytes.Buffer
		if err := cboring.Marshal(m1, &buff); err != nil {
			t.Fatal(err)
		}

		m2 := new(Message)
		if err := cboring.Unmarshal(m2, &buff); err != nil {
			t.Fatal(err)
		}

		if m2.Resource != m1.Resource || m2.Type != m1.Type ||
			m2.ClientRef != m1.ClientRef || m2.Action != m1.Action {
			t.Fatalf("expected %v, got %v", m1, m2)
		}
		if !bytes.Equal(m2.Payload, m1.Payload) {
			t.Fatalf("payload differs for %v", m1)
		}

		switch {
		case m1.Range == nil && m2.Range != nil:
			t.Fatalf("expected no range, got %v", m2.Range)
		case m1.Range != nil && m2.Range == nil:
			t.Fatalf("range is missing for %v", m1)
		case m1.Range != nil && *m1.Range != *m2.Range:
			t.Fatalf("expected range %v, got %v", m1.Range, m2.Range)
		}
	}
}

func TestFailurePayload(t *testing.T) {
	fp1 := &FailurePayload{Code: FailureAccessDenied, Text: "no such grant"}

	var buff bytes.Buffer
	if err := cboring.Marshal(fp1, &buff); err != nil {
		t.Fatal(err)
	}

	fp2, err := DecodeFailure(buff.Bytes())
	if err != nil {
		t.Fatal(err)
	}

	if *fp2 != *fp1 {
		t.Fatalf("expected %v, got %v", fp1, fp2)
	}
}
