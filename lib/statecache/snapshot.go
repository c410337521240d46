// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package statecache

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Timeline snapshots are always zstd-compressed. CBOR event arrays are
// repetitive (event types, user IDs, server names) and compress well;
// probing for incompressible input, as the media cache does, buys
// nothing here.

// zstdEncoder and zstdDecoder are reused across calls. Both are safe
// for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("statecache: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("statecache: zstd decoder initialization failed: " + err.Error())
	}
}

func compressSnapshot(blob []byte) []byte {
	return zstdEncoder.EncodeAll(blob, nil)
}

func decompressSnapshot(compressed []byte, uncompressedSize int) ([]byte, error) {
	result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, uncompressedSize))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(result) != uncompressedSize {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), uncompressedSize)
	}
	return result, nil
}
