// Package prismtest contains test doubles for the prism client
// types: a recording session, a recording buffer producer, and a
// datagram recorder for producer endpoints.
package prismtest

import (
	"sync"

	"github.com/prism-engine/prism"
	"github.com/prism-engine/prism/pbuf"
)

// Call is one operation a [RecordingConn] observed,
// in delivery order. Flushes record as a Call with Method "Flush"
// and a nil Handle, so ordering against commands is visible.
type Call struct {
	Method string
	Handle *prism.Handle
	Args   []any
}

// RecordingConn is a prism.Conn that records every forwarded call
// instead of delivering it.
type RecordingConn struct {
	// When set, every forwarded call returns Err after recording.
	// Flush is unaffected.
	Err error

	// When set, GetLayerFrameStats copies Stats into the
	// caller's record.
	Stats prism.FrameStats

	mu    sync.Mutex
	calls []Call
}

var _ prism.Conn = (*RecordingConn)(nil)

// Calls returns a snapshot of everything recorded so far.
func (c *RecordingConn) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}

// FlushCount returns how many flushes have been recorded.
func (c *RecordingConn) FlushCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, call := range c.calls {
		if call.Method == "Flush" {
			n++
		}
	}
	return n
}

func (c *RecordingConn) record(method string, h *prism.Handle, args ...any) error {
	c.mu.Lock()
	c.calls = append(c.calls, Call{Method: method, Handle: h, Args: args})
	c.mu.Unlock()
	return c.Err
}

func (c *RecordingConn) DestroySurface(h *prism.Handle) error {
	return c.record("DestroySurface", h)
}

func (c *RecordingConn) SetLayerStack(h *prism.Handle, stack uint32) error {
	return c.record("SetLayerStack", h, stack)
}

func (c *RecordingConn) SetLayer(h *prism.Handle, z int32) error {
	return c.record("SetLayer", h, z)
}

func (c *RecordingConn) SetRelativeLayer(h, relativeTo *prism.Handle, z int32) error {
	return c.record("SetRelativeLayer", h, relativeTo, z)
}

func (c *RecordingConn) SetPosition(h *prism.Handle, x, y float32) error {
	return c.record("SetPosition", h, x, y)
}

func (c *RecordingConn) SetSize(h *prism.Handle, w, hgt uint32) error {
	return c.record("SetSize", h, w, hgt)
}

func (c *RecordingConn) SetGeometryAppliesWithResize(h *prism.Handle) error {
	return c.record("SetGeometryAppliesWithResize", h)
}

func (c *RecordingConn) Show(h *prism.Handle) error {
	return c.record("Show", h)
}

func (c *RecordingConn) Hide(h *prism.Handle) error {
	return c.record("Hide", h)
}

func (c *RecordingConn) SetFlags(h *prism.Handle, flags, mask prism.Flags) error {
	return c.record("SetFlags", h, flags, mask)
}

func (c *RecordingConn) SetTransparentRegionHint(h *prism.Handle, region prism.Region) error {
	return c.record("SetTransparentRegionHint", h, region)
}

func (c *RecordingConn) SetAlpha(h *prism.Handle, alpha float32) error {
	return c.record("SetAlpha", h, alpha)
}

func (c *RecordingConn) SetMatrix(h *prism.Handle, dsdx, dtdx, dtdy, dsdy float32) error {
	return c.record("SetMatrix", h, dsdx, dtdx, dtdy, dsdy)
}

func (c *RecordingConn) SetCrop(h *prism.Handle, crop prism.Rect) error {
	return c.record("SetCrop", h, crop)
}

func (c *RecordingConn) SetFinalCrop(h *prism.Handle, crop prism.Rect) error {
	return c.record("SetFinalCrop", h, crop)
}

func (c *RecordingConn) DeferTransactionUntil(h, barrier *prism.Handle, frameNumber uint64) error {
	return c.record("DeferTransactionUntil", h, barrier, frameNumber)
}

func (c *RecordingConn) DeferTransactionUntilSurface(h *prism.Handle, barrier *pbuf.Surface, frameNumber uint64) error {
	return c.record("DeferTransactionUntilSurface", h, barrier, frameNumber)
}

func (c *RecordingConn) ReparentChildren(h, newParent *prism.Handle) error {
	return c.record("ReparentChildren", h, newParent)
}

func (c *RecordingConn) DetachChildren(h *prism.Handle) error {
	return c.record("DetachChildren", h)
}

func (c *RecordingConn) SetOverrideScalingMode(h *prism.Handle, mode prism.ScalingMode) error {
	return c.record("SetOverrideScalingMode", h, mode)
}

func (c *RecordingConn) ClearLayerFrameStats(h *prism.Handle) error {
	return c.record("ClearLayerFrameStats", h)
}

func (c *RecordingConn) GetLayerFrameStats(h *prism.Handle, out *prism.FrameStats) error {
	if err := c.record("GetLayerFrameStats", h); err != nil {
		return err
	}

	out.Clear()
	out.RefreshPeriodNanos = c.Stats.RefreshPeriodNanos
	out.DesiredPresentTimesNanos = append(out.DesiredPresentTimesNanos, c.Stats.DesiredPresentTimesNanos...)
	out.ActualPresentTimesNanos = append(out.ActualPresentTimesNanos, c.Stats.ActualPresentTimesNanos...)
	out.FrameReadyTimesNanos = append(out.FrameReadyTimesNanos, c.Stats.FrameReadyTimesNanos...)
	return nil
}

func (c *RecordingConn) Flush() {
	c.mu.Lock()
	c.calls = append(c.calls, Call{Method: "Flush"})
	c.mu.Unlock()
}
