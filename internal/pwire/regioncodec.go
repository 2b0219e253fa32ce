package pwire

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/golang/snappy"
	"github.com/prism-engine/prism"
)

// Region encoding headers.
const (
	rawRegion    byte = 0
	snappyRegion byte = 1
)

const rectSize = 16

// snappyRegionThreshold is the raw size past which the snappy form
// is attempted. Small regions never compress well enough to pay
// for the decode.
const snappyRegionThreshold = 4 * rectSize

// AppendRegion appends the adaptive encoding of region:
// a 1-byte header, a uint16 rectangle count, then either the raw
// rectangles or a snappy block of them, whichever is smaller.
//
// Regions with more rectangles than the count prefix can carry fail
// rather than encode a wrapped count.
func AppendRegion(b []byte, region prism.Region) ([]byte, error) {
	if len(region) > math.MaxUint16 {
		return b, fmt.Errorf(
			"region has too many rectangles to encode: %d", len(region),
		)
	}

	raw := make([]byte, 0, len(region)*rectSize)
	for _, r := range region {
		raw = appendRect(raw, r)
	}

	if len(raw) > snappyRegionThreshold {
		enc := snappy.Encode(nil, raw)
		if len(enc) < len(raw) {
			b = append(b, snappyRegion)
			b = binary.BigEndian.AppendUint16(b, uint16(len(region)))
			return append(b, enc...), nil
		}
	}

	b = append(b, rawRegion)
	b = binary.BigEndian.AppendUint16(b, uint16(len(region)))
	return append(b, raw...), nil
}

// DecodeRegion decodes an encoding produced by [AppendRegion],
// consuming all of b.
func DecodeRegion(b []byte) (prism.Region, error) {
	if len(b) < 3 {
		return nil, fmt.Errorf("region encoding too short: %d bytes", len(b))
	}
	header := b[0]
	count := int(binary.BigEndian.Uint16(b[1:3]))
	body := b[3:]

	switch header {
	case rawRegion:
		// Keep body as is.
	case snappyRegion:
		raw, err := snappy.Decode(nil, body)
		if err != nil {
			return nil, fmt.Errorf("decoding snappy region: %w", err)
		}
		body = raw
	default:
		return nil, fmt.Errorf("unknown region encoding header %#x", header)
	}

	if len(body) != count*rectSize {
		return nil, fmt.Errorf(
			"region claims %d rectangles but carries %d bytes",
			count, len(body),
		)
	}

	region := make(prism.Region, count)
	for i := range region {
		off := i * rectSize
		region[i] = prism.Rect{
			Left:   int32(binary.BigEndian.Uint32(body[off:])),
			Top:    int32(binary.BigEndian.Uint32(body[off+4:])),
			Right:  int32(binary.BigEndian.Uint32(body[off+8:])),
			Bottom: int32(binary.BigEndian.Uint32(body[off+12:])),
		}
	}
	return region, nil
}
