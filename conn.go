package prism

import (
	"github.com/prism-engine/prism/pbuf"
)

// Conn is a session with the remote compositor.
//
// One Conn is typically shared by many [Control] values.
// Each per-layer method forwards exactly one property change,
// keyed by the layer's handle; whether changes are delivered
// immediately or gathered into a batch is the implementation's
// concern, except that Flush must force delivery of everything
// accepted so far.
//
// Implementations must be safe for concurrent use:
// controls forward from whatever goroutine their caller is on.
type Conn interface {
	// DestroySurface releases the remote layer behind h.
	// Other processes holding their own references to the layer
	// may keep its resources alive a little longer;
	// the call makes release prompt, not instantaneous.
	DestroySurface(h *Handle) error

	// SetLayerStack moves the layer to a different layer stack
	// (roughly: a different display).
	SetLayerStack(h *Handle, stack uint32) error

	// SetLayer sets the layer's absolute Z order within its stack.
	SetLayer(h *Handle, z int32) error

	// SetRelativeLayer sets the layer's Z order relative to
	// another layer.
	SetRelativeLayer(h, relativeTo *Handle, z int32) error

	SetPosition(h *Handle, x, y float32) error
	SetSize(h *Handle, w, hgt uint32) error

	// SetGeometryAppliesWithResize defers pending geometry changes
	// so they latch together with the next buffer of the new size.
	SetGeometryAppliesWithResize(h *Handle) error

	Show(h *Handle) error
	Hide(h *Handle) error
	SetFlags(h *Handle, flags, mask Flags) error

	SetTransparentRegionHint(h *Handle, region Region) error
	SetAlpha(h *Handle, alpha float32) error

	// SetMatrix sets the layer's 2x2 transform.
	// Argument order matches the compositor's row-major layout.
	SetMatrix(h *Handle, dsdx, dtdx, dtdy, dsdy float32) error

	SetCrop(h *Handle, crop Rect) error
	SetFinalCrop(h *Handle, crop Rect) error

	// DeferTransactionUntil gates the layer's next transaction
	// until the barrier layer has presented the given frame.
	DeferTransactionUntil(h, barrier *Handle, frameNumber uint64) error

	// DeferTransactionUntilSurface is DeferTransactionUntil keyed by
	// a drawable surface instead of a handle; the implementation
	// resolves the barrier layer from the surface's producer.
	DeferTransactionUntilSurface(h *Handle, barrier *pbuf.Surface, frameNumber uint64) error

	// ReparentChildren moves all of the layer's children under
	// a new parent layer.
	ReparentChildren(h, newParent *Handle) error

	// DetachChildren severs the layer's children from it,
	// leaving them where they are in the scene until their owners
	// reparent or destroy them.
	DetachChildren(h *Handle) error

	SetOverrideScalingMode(h *Handle, mode ScalingMode) error

	ClearLayerFrameStats(h *Handle) error

	// GetLayerFrameStats fills out with the layer's accumulated
	// frame timing record. Unlike the property setters this is a
	// synchronous read from the compositor.
	GetLayerFrameStats(h *Handle, out *FrameStats) error

	// Flush forces delivery of every command accepted so far.
	// It is the only ordering guarantee the session offers:
	// after Flush returns, nothing accepted before the call
	// is still sitting in a local batch.
	Flush()
}
