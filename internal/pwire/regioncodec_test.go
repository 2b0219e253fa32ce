package pwire_test

import (
	"math"
	"testing"

	"github.com/prism-engine/prism"
	"github.com/prism-engine/prism/internal/pwire"
	"github.com/stretchr/testify/require"
)

func TestRegionCodec_smallStaysRaw(t *testing.T) {
	t.Parallel()

	region := prism.Region{
		{Left: 0, Top: 0, Right: 100, Bottom: 50},
		{Left: 10, Top: 60, Right: 90, Bottom: 120},
	}

	b, err := pwire.AppendRegion(nil, region)
	require.NoError(t, err)

	// Header byte 0 is the raw form.
	require.Equal(t, byte(0), b[0])

	got, err := pwire.DecodeRegion(b)
	require.NoError(t, err)
	require.Equal(t, region, got)
}

func TestRegionCodec_largeRepetitiveGoesSnappy(t *testing.T) {
	t.Parallel()

	// Many identical rectangles compress extremely well.
	region := make(prism.Region, 200)
	for i := range region {
		region[i] = prism.Rect{Left: 8, Top: 8, Right: 16, Bottom: 16}
	}

	b, err := pwire.AppendRegion(nil, region)
	require.NoError(t, err)
	require.Equal(t, byte(1), b[0])
	require.Less(t, len(b), len(region)*16)

	got, err := pwire.DecodeRegion(b)
	require.NoError(t, err)
	require.Equal(t, region, got)
}

func TestRegionCodec_emptyRegion(t *testing.T) {
	t.Parallel()

	b, err := pwire.AppendRegion(nil, nil)
	require.NoError(t, err)

	got, err := pwire.DecodeRegion(b)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestRegionCodec_tooManyRectsRejected(t *testing.T) {
	t.Parallel()

	// Identical rectangles would compress under the record limit,
	// but the rectangle count no longer fits its prefix.
	region := make(prism.Region, math.MaxUint16+1)
	for i := range region {
		region[i] = prism.Rect{Left: 8, Top: 8, Right: 16, Bottom: 16}
	}

	_, err := pwire.AppendRegion(nil, region)
	require.Error(t, err)
}

func TestDecodeRegion_rejectsMalformed(t *testing.T) {
	t.Parallel()

	_, err := pwire.DecodeRegion([]byte{0})
	require.Error(t, err)

	// Count claims one rectangle, body carries none.
	_, err = pwire.DecodeRegion([]byte{0, 0, 1})
	require.Error(t, err)

	// Unknown header.
	_, err = pwire.DecodeRegion([]byte{9, 0, 0})
	require.Error(t, err)
}
