package prism

// Rect is a layer-space rectangle.
// Edges follow the compositor's convention:
// Left/Top inclusive, Right/Bottom exclusive.
type Rect struct {
	Left   int32
	Top    int32
	Right  int32
	Bottom int32
}

// Width returns the horizontal extent of r.
func (r Rect) Width() int32 {
	return r.Right - r.Left
}

// Height returns the vertical extent of r.
func (r Rect) Height() int32 {
	return r.Bottom - r.Top
}

// Empty reports whether r covers no pixels.
func (r Rect) Empty() bool {
	return r.Width() <= 0 || r.Height() <= 0
}

// Region is a set of rectangles, used for transparency hints.
// The compositor does not require the rectangles to be disjoint.
type Region []Rect

// Flags are per-layer state bits changed through [Control.SetFlags].
type Flags uint32

const (
	// LayerHidden keeps the layer out of composition entirely.
	LayerHidden Flags = 0x01

	// LayerOpaque tells the compositor the layer has no
	// translucent pixels, enabling overdraw elimination.
	LayerOpaque Flags = 0x02

	// LayerSecure excludes the layer's content from
	// screenshots and non-secure displays.
	LayerSecure Flags = 0x80
)

// ScalingMode overrides how queued buffers are scaled to the layer bounds.
type ScalingMode int32

const (
	ScalingModeFreeze ScalingMode = iota
	ScalingModeScaleToWindow
	ScalingModeScaleCrop
	ScalingModeNoScaleCrop
)

// FrameStats is the accumulated frame timing record for one layer.
//
// The three slices are parallel: index i of each refers to the
// same frame. Times are in nanoseconds on the compositor's clock.
type FrameStats struct {
	RefreshPeriodNanos int64

	DesiredPresentTimesNanos []int64
	ActualPresentTimesNanos  []int64
	FrameReadyTimesNanos     []int64
}

// Clear resets s to the empty record, keeping allocated capacity.
func (s *FrameStats) Clear() {
	s.RefreshPeriodNanos = 0
	s.DesiredPresentTimesNanos = s.DesiredPresentTimesNanos[:0]
	s.ActualPresentTimesNanos = s.ActualPresentTimesNanos[:0]
	s.FrameReadyTimesNanos = s.FrameReadyTimesNanos[:0]
}
