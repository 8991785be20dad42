// SPDX-FileCopyrightText: 2025, 2026 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qapi

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

// CompressionType indicates how an Envelope's inner message bytes are
// compressed. Only the three defined consts are valid wire values.
type CompressionType uint64

const (
	// CompressionNone leaves the inner message bytes untouched.
	CompressionNone CompressionType = 0

	// CompressionZlib is RFC 1950 zlib.
	CompressionZlib CompressionType = 1

	// CompressionLZ4F is the LZ4 frame format.
	CompressionLZ4F CompressionType = 2
)

func (ct CompressionType) String() string {
	switch ct {
	case CompressionNone:
		return "none"
	case CompressionZlib:
		return "zlib"
	case CompressionLZ4F:
		return "lz4f"
	default:
		return "unknown"
	}
}

const (
	// CompressionThreshold is the inner message size in bytes above which an
	// Encoder applies its configured compression.
	CompressionThreshold = 768

	// DefaultCompression is used by NewEncoder unless overridden.
	DefaultCompression = CompressionZlib
)

// compress data with the given CompressionType.
func compress(data []byte, ct CompressionType) ([]byte, error) {
	switch ct {
	case CompressionNone:
		return data, nil

	case CompressionZlib:
		var buff bytes.Buffer
		w := zlib.NewWriter(&buff)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buff.Bytes(), nil

	case CompressionLZ4F:
		var buff bytes.Buffer
		w := lz4.NewWriter(&buff)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buff.Bytes(), nil

	default:
		return nil, fmt.Errorf("unknown CompressionType %d", ct)
	}
}

// decompress data compressed with the given CompressionType.
func decompress(data []byte, ct CompressionType) ([]byte, error) {
	switch ct {
	case CompressionNone:
		return data, nil

	case CompressionZlib:
		r, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer func() { _ = r.Close() }()

		return io.ReadAll(r)

	case CompressionLZ4F:
		return io.ReadAll(lz4.NewReader(bytes.NewReader(data)))

	default:
		return nil, fmt.Errorf("unknown CompressionType %d", ct)
	}
}
