// SPDX-FileCopyrightText: 2025, 2026 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package qapi implements the QAPI wire protocol: the outer Envelope every
// frame crosses the broker in, the inner Message it carries, and the closed
// code taxonomies both use.
package qapi

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"sync/atomic"

	"github.com/dtn7/cboring"
)

// Envelope map keys, as single character text strings.
const (
	envKeySequence    = "s"
	envKeyIntegrity   = "h"
	envKeyCompression = "c"
	envKeyMessage     = "m"
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// checksum calculates the CRC-32C value over the serialized inner message.
func checksum(inner []byte) []byte {
	data := make([]byte, 4)
	binary.BigEndian.PutUint32(data, crc32.Checksum(inner, crc32cTable))

	return data
}

// Envelope is the outer wire structure wrapping every frame.
//
// The Integrity checksum always covers the uncompressed inner message bytes,
// so a successful verification also proves a correct decompression.
type Envelope struct {
	// Sequence number, monotonically increasing per connection.
	Sequence uint64

	// Integrity is the CRC-32C over the uncompressed inner message bytes.
	Integrity []byte

	// Compression applied to the Message field.
	Compression CompressionType

	// Message holds the serialized, possibly compressed, inner Message.
	Message []byte
}

func (e Envelope) String() string {
	return fmt.Sprintf("Envelope(seq=%d, compression=%v, len=%d)",
		e.Sequence, e.Compression, len(e.Message))
}

// MarshalCbor writes this Envelope as a CBOR map of its four fields.
func (e *Envelope) MarshalCbor(w io.Writer) (err error) {
	if err = cboring.WriteMapPairLength(4, w); err != nil {
		return
	}

	if err = cboring.WriteTextString(envKeySequence, w); err != nil {
		return
	}
	if err = cboring.WriteUInt(e.Sequence, w); err != nil {
		return
	}

	if err = cboring.WriteTextString(envKeyIntegrity, w); err != nil {
		return
	}
	if err = cboring.WriteByteString(e.Integrity, w); err != nil {
		return
	}

	if err = cboring.WriteTextString(envKeyCompression, w); err != nil {
		return
	}
	if err = cboring.WriteUInt(uint64(e.Compression), w); err != nil {
		return
	}

	if err = cboring.WriteTextString(envKeyMessage, w); err != nil {
		return
	}
	if err = cboring.WriteByteString(e.Message, w); err != nil {
		return
	}

	return
}

// UnmarshalCbor reads a CBOR map back into this Envelope.
func (e *Envelope) UnmarshalCbor(r io.Reader) (err error) {
	var pairs uint64
	if pairs, err = cboring.ReadMapPairLength(r); err != nil {
		return
	} else if pairs != 4 {
		return fmt.Errorf("envelope expected map of 4 pairs, got %d", pairs)
	}

	for i := uint64(0); i < pairs; i++ {
		var key string
		if key, err = cboring.ReadTextString(r); err != nil {
			return
		}

		switch key {
		case envKeySequence:
			if e.Sequence, err = cboring.ReadUInt(r); err != nil {
				return
			}

		case envKeyIntegrity:
			if e.Integrity, err = cboring.ReadByteString(r); err != nil {
				return
			}

		case envKeyCompression:
			var n uint64
			if n, err = cboring.ReadUInt(r); err != nil {
				return
			}
			e.Compression = CompressionType(n)

		case envKeyMessage:
			if e.Message, err = cboring.ReadByteString(r); err != nil {
				return
			}

		default:
			return fmt.Errorf("envelope key %q is undefined", key)
		}
	}

	return
}

// Inner returns the uncompressed inner message bytes. The compression tag is
// honored independently of the message's size. An integrity mismatch after
// decompression is an error.
func (e *Envelope) Inner() ([]byte, error) {
	inner, err := decompress(e.Message, e.Compression)
	if err != nil {
		return nil, err
	}

	if !bytes.Equal(checksum(inner), e.Integrity) {
		return nil, fmt.Errorf("envelope seq %d failed its integrity check", e.Sequence)
	}

	return inner, nil
}

// Encoder creates Envelopes for outgoing Messages. It owns the connection
// scoped sequence counter and the default compression choice and is safe for
// concurrent use.
type Encoder struct {
	seq         atomic.Uint64
	compression atomic.Uint64
}

// NewEncoder with DefaultCompression.
func NewEncoder() *Encoder {
	enc := new(Encoder)
	enc.compression.Store(uint64(DefaultCompression))

	return enc
}

// SetCompression overrides the compression applied above the threshold.
// CompressionNone disables compression altogether.
func (enc *Encoder) SetCompression(ct CompressionType) {
	enc.compression.Store(uint64(ct))
}

// Encode a Message into serialized Envelope bytes, compressing the inner
// message iff it exceeds CompressionThreshold.
func (enc *Encoder) Encode(m *Message) ([]byte, error) {
	var innerBuff bytes.Buffer
	if err := cboring.Marshal(m, &innerBuff); err != nil {
		return nil, err
	}
	inner := innerBuff.Bytes()

	ct := CompressionNone
	if len(inner) > CompressionThreshold {
		ct = CompressionType(enc.compression.Load())
	}

	wire, err := compress(inner, ct)
	if err != nil {
		return nil, err
	}

	env := Envelope{
		Sequence:    enc.seq.Add(1),
		Integrity:   checksum(inner),
		Compression: ct,
		Message:     wire,
	}

	var buff bytes.Buffer
	if err := cboring.Marshal(&env, &buff); err != nil {
		return nil, err
	}

	return buff.Bytes(), nil
}

// DecodeEnvelope parses serialized Envelope bytes without touching the inner
// message.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	env := new(Envelope)
	if err := cboring.Unmarshal(env, bytes.NewReader(data)); err != nil {
		return nil, err
	}

	return env, nil
}

// Decode parses serialized Envelope bytes down to the inner Message,
// decompressing and verifying integrity on the way.
func Decode(data []byte) (*Message, error) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		return nil, err
	}

	inner, err := env.Inner()
	if err != nil {
		return nil, err
	}

	m := new(Message)
	if err := cboring.Unmarshal(m, bytes.NewReader(inner)); err != nil {
		return nil, err
	}

	return m, nil
}
