package pwire

import (
	"encoding/binary"
	"fmt"

	"github.com/prism-engine/prism"
)

// AppendFrameStats appends the wire form of a frame stats record:
// refresh period, a frame count, then the three parallel time
// arrays.
func AppendFrameStats(b []byte, s *prism.FrameStats) []byte {
	b = binary.BigEndian.AppendUint64(b, uint64(s.RefreshPeriodNanos))
	b = binary.BigEndian.AppendUint32(b, uint32(len(s.DesiredPresentTimesNanos)))
	for _, arr := range [][]int64{
		s.DesiredPresentTimesNanos,
		s.ActualPresentTimesNanos,
		s.FrameReadyTimesNanos,
	} {
		for _, t := range arr {
			b = binary.BigEndian.AppendUint64(b, uint64(t))
		}
	}
	return b
}

// ParseFrameStats decodes b into out, replacing its contents.
func ParseFrameStats(b []byte, out *prism.FrameStats) error {
	if len(b) < 12 {
		return fmt.Errorf("frame stats record too short: %d bytes", len(b))
	}

	refresh := int64(binary.BigEndian.Uint64(b))
	n := int(binary.BigEndian.Uint32(b[8:12]))
	body := b[12:]

	if len(body) != 3*8*n {
		return fmt.Errorf(
			"frame stats record claims %d frames but carries %d bytes",
			n, len(body),
		)
	}

	out.Clear()
	out.RefreshPeriodNanos = refresh

	read := func(dst []int64) []int64 {
		for i := 0; i < n; i++ {
			dst = append(dst, int64(binary.BigEndian.Uint64(body)))
			body = body[8:]
		}
		return dst
	}
	out.DesiredPresentTimesNanos = read(out.DesiredPresentTimesNanos)
	out.ActualPresentTimesNanos = read(out.ActualPresentTimesNanos)
	out.FrameReadyTimesNanos = read(out.FrameReadyTimesNanos)

	return nil
}
