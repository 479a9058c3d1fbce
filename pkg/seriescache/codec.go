package seriescache

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pierrec/lz4/v4"

	"github.com/Sumatoshi-tech/trendscope/pkg/condense"
)

// ErrCorrupt is returned when a cached payload cannot be decoded.
var ErrCorrupt = errors.New("corrupt cache entry")

// Payload format tags.
const (
	tagJSON byte = 'j'
	tagLZ4  byte = 'z'
)

// maxDecodedSize bounds the length header of compressed payloads.
const maxDecodedSize = 1 << 30

// Encode serializes series as JSON, LZ4 block compressed when compress is set
// and compression actually saves space.
func Encode(series []condense.Series, compress bool) ([]byte, error) {
	raw, err := json.Marshal(series)
	if err != nil {
		return nil, fmt.Errorf("encode series: %w", err)
	}

	if compress {
		packed := make([]byte, binary.MaxVarintLen64+lz4.CompressBlockBound(len(raw)))
		n := binary.PutUvarint(packed, uint64(len(raw)))

		written, cerr := lz4.CompressBlock(raw, packed[n:], nil)
		if cerr == nil && written > 0 && n+written+1 < len(raw) {
			return append([]byte{tagLZ4}, packed[:n+written]...), nil
		}
	}

	return append([]byte{tagJSON}, raw...), nil
}

// Decode is the inverse of Encode.
func Decode(data []byte) ([]condense.Series, error) {
	if len(data) == 0 {
		return nil, ErrCorrupt
	}

	raw := data[1:]

	switch data[0] {
	case tagJSON:
	case tagLZ4:
		size, n := binary.Uvarint(raw)
		if n <= 0 || size > maxDecodedSize {
			return nil, fmt.Errorf("%w: bad length header", ErrCorrupt)
		}

		out := make([]byte, size)

		written, err := lz4.UncompressBlock(raw[n:], out)
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %w", ErrCorrupt, err)
		}

		if uint64(written) != size {
			return nil, fmt.Errorf("%w: short payload", ErrCorrupt)
		}

		raw = out
	default:
		return nil, fmt.Errorf("%w: unknown tag %q", ErrCorrupt, data[0])
	}

	var series []condense.Series

	err := json.Unmarshal(raw, &series)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	return series, nil
}
