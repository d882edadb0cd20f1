// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"
)

// DigestSize is the number of BLAKE3 output bytes kept in a frame.
const DigestSize = 16

// minCompressSize is the payload size below which frames are never
// compressed.
const minCompressSize = 256

var (
	// ErrDigestMismatch is returned by Frame.Open when the payload does
	// not hash to the digest carried in the frame.
	ErrDigestMismatch = errors.New("codec: frame digest mismatch")

	// ErrUnknownCompression is returned for compression names or tags
	// this package does not implement.
	ErrUnknownCompression = errors.New("codec: unknown compression")

	errIncompressible = errors.New("codec: payload does not compress")
)

// Compression identifies how a frame payload is compressed. The values
// are wire constants.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZstd Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression maps a configuration name to a Compression. The
// empty string means none.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCompression, name)
	}
}

// Frame is one message on the wire.
type Frame struct {
	Kind        uint8       `cbor:"kind"`
	Compression Compression `cbor:"compression,omitempty"`
	Size        int         `cbor:"size"`
	Payload     []byte      `cbor:"payload"`
	Digest      []byte      `cbor:"digest"`
}

// SealFrame builds a frame around payload. The payload is compressed
// with the requested algorithm when it is large enough and actually
// shrinks; otherwise it is stored as is and the frame says so.
func SealFrame(kind uint8, payload []byte, compression Compression) (Frame, error) {
	frame := Frame{
		Kind:    kind,
		Size:    len(payload),
		Payload: payload,
		Digest:  digest(payload),
	}
	if compression == CompressionNone || len(payload) < minCompressSize {
		return frame, nil
	}

	var compressed []byte
	var err error
	switch compression {
	case CompressionLZ4:
		compressed, err = compressLZ4(payload)
	case CompressionZstd:
		compressed, err = compressZstd(payload)
	default:
		return Frame{}, fmt.Errorf("%w: %d", ErrUnknownCompression, uint8(compression))
	}
	if errors.Is(err, errIncompressible) {
		return frame, nil
	}
	if err != nil {
		return Frame{}, err
	}
	frame.Compression = compression
	frame.Payload = compressed
	return frame, nil
}

// Open decompresses the payload and checks its digest.
func (f Frame) Open() ([]byte, error) {
	var payload []byte
	var err error
	switch f.Compression {
	case CompressionNone:
		payload = f.Payload
	case CompressionLZ4:
		payload, err = decompressLZ4(f.Payload, f.Size)
	case CompressionZstd:
		payload, err = decompressZstd(f.Payload, f.Size)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCompression, uint8(f.Compression))
	}
	if err != nil {
		return nil, err
	}
	if len(payload) != f.Size {
		return nil, fmt.Errorf("codec: frame payload is %d bytes, header says %d", len(payload), f.Size)
	}
	if !bytes.Equal(digest(payload), f.Digest) {
		return nil, ErrDigestMismatch
	}
	return payload, nil
}

func digest(payload []byte) []byte {
	sum := blake3.Sum256(payload)
	return sum[:DigestSize]
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(compressed []byte, size int) ([]byte, error) {
	destination := make([]byte, size)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	return destination[:read], nil
}

// zstd encoders and decoders are safe for concurrent use and expensive
// to build, so one of each serves every link.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		panic("codec: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(64<<20))
	if err != nil {
		panic("codec: zstd decoder initialization failed: " + err.Error())
	}
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, size int) ([]byte, error) {
	payload, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return payload, nil
}
