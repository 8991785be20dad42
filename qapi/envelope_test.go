// SPDX-FileCopyrightText: 2025, 2026 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qapi

import (
	"bytes"
	"testing"
)

func testMessage(payloadLen int) *Message {
	payload := make([]byte, payloadLen)
	for i := range payload {
		payload[i] = byte(i % 7)
	}

	return &Message{
		Resource:  ResourceFeed,
		Type:      TypeFeedData,
		ClientRef: "23dc465a700b4a2cb1f3e0beede8f038_1",
		Action:    ActionList,
		Payload:   payload,
	}
}

func TestEncodeDecodeRoundtrip(t *testing.T) {
	tests := []struct {
		compression CompressionType
		payloadLen  int
		compressed  bool
	}{
		{CompressionNone, 16, false},
		{CompressionNone, 4096, false},
		{CompressionZlib, 16, false},
		{CompressionZlib, 4096, true},
		{CompressionLZ4F, 16, false},
		{CompressionLZ4F, 4096, true},
	}

	for _, test := range tests {
		enc := NewEncoder()
		enc.SetCompression(test.compression)

		m1 := testMessage(test.payloadLen)
		data, err := enc.Encode(m1)
		if err != nil {
			t.Fatal(err)
		}

		env, err := DecodeEnvelope(data)
		if err != nil {
			t.Fatal(err)
		}

		expected := CompressionNone
		if test.compressed {
			expected = test.compression
		}
		if env.Compression != expected {
			t.Fatalf("payload of %d bytes with %v: expected compression %v, got %v",
				test.payloadLen, test.compression, expected, env.Compression)
		}

		m2, err := Decode(data)
		if err != nil {
			t.Fatal(err)
		}

		if m2.Resource != m1.Resource || m2.Type != m1.Type ||
			m2.ClientRef != m1.ClientRef || m2.Action != m1.Action {
			t.Fatalf("expected %v, got %v", m1, m2)
		}
		if !bytes.Equal(m2.Payload, m1.Payload) {
			t.Fatalf("payload differs after roundtrip")
		}
	}
}

func TestEncodeSequenceMonotonic(t *testing.T) {
	enc := NewEncoder()

	var last uint64
	for i := 0; i < 10; i++ {
		data, err := enc.Encode(testMessage(16))
		if err != nil {
			t.Fatal(err)
		}

		env, err := DecodeEnvelope(data)
		if err != nil {
			t.Fatal(err)
		}

		if env.Sequence <= last {
			t.Fatalf("sequence %d is not greater than %d", env.Sequence, last)
		}
		last = env.Sequence
	}
}

func TestDecodeHonorsCompressionTag(t *testing.T) {
	// A compressed envelope below the size threshold must still be
	// decompressed based on its tag.
	inner := []byte("short")
	wire, err := compress(inner, CompressionLZ4F)
	if err != nil {
		t.Fatal(err)
	}

	env := &Envelope{
		Sequence:    1,
		Integrity:   checksum(inner),
		Compression: CompressionLZ4F,
		Message:     wire,
	}

	got, err := env.Inner()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, inner) {
		t.Fatalf("expected %v, got %v", inner, got)
	}
}

func TestDecodeIntegrityMismatch(t *testing.T) {
	inner := []byte("some inner message bytes")

	env := &Envelope{
		Sequence:    1,
		Integrity:   checksum([]byte("different bytes")),
		Compression: CompressionNone,
		Message:     inner,
	}

	if _, err := env.Inner(); err == nil {
		t.Fatal("expected an integrity error")
	}
}

func TestDecodeUnknownCompression(t *testing.T) {
	inner := []byte("inner")

	env := &Envelope{
		Sequence:    1,
		Integrity:   checksum(inner),
		Compression: CompressionType(23),
		Message:     inner,
	}

	if _, err := env.Inner(); err == nil {
		t.Fatal("expected an error for an undefined compression type")
	}
}
