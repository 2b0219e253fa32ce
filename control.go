package prism

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/prism-engine/prism/pbuf"
)

// Control is a client-side handle to one layer owned by the remote
// compositor. It forwards property changes through its session,
// validating its own liveness before every call, and hands out the
// layer's drawable surface.
//
// A Control is safe for concurrent use. Teardown is idempotent and
// deliberately not serialized against in-flight forwarded calls:
// a call racing [Control.Destroy] fails validation with
// [UninitializedError] rather than reaching the session.
type Control struct {
	log *slog.Logger

	// mu guards every field read and write below. Forwarding
	// methods snapshot handle and conn under the lock, then call
	// the session outside it, so a slow remote never serializes
	// against teardown.
	mu       sync.Mutex
	handle   *Handle
	conn     Conn
	producer pbuf.Producer
	surface  *pbuf.Surface
}

// NewControl returns a Control for the layer behind handle,
// forwarding through conn and drawing through producer.
//
// All three references must be non-nil; the session's surface
// factory is the normal caller. NewControl panics otherwise.
//
// If the last reference to the returned Control is dropped without
// an explicit [Control.Destroy], the runtime eventually routes it
// through the same teardown. Holders wanting the remote layer
// released promptly must not rely on that and call Destroy
// themselves; remote layers are heavy.
func NewControl(log *slog.Logger, conn Conn, handle *Handle, producer pbuf.Producer) *Control {
	var panicErrs error
	if conn == nil {
		panicErrs = errors.Join(panicErrs, errors.New("NewControl: conn may not be nil"))
	}
	if handle == nil {
		panicErrs = errors.Join(panicErrs, errors.New("NewControl: handle may not be nil"))
	}
	if producer == nil {
		panicErrs = errors.Join(panicErrs, errors.New("NewControl: producer may not be nil"))
	}
	if panicErrs != nil {
		panic(panicErrs)
	}

	c := &Control{
		log: log,

		handle:   handle,
		conn:     conn,
		producer: producer,
	}

	runtime.SetFinalizer(c, (*Control).Destroy)

	return c
}

// Destroy releases the remote layer and clears the control's
// references. The release request and a flush of any batched
// commands happen first, so destruction is never silently delayed
// behind an unflushed batch.
//
// Destroy is idempotent: second and later calls observe cleared
// references and do nothing further. The outcome of the remote
// release is not surfaced, since the local clear must proceed
// regardless.
func (c *Control) Destroy() {
	// Snapshots, not c.validate: a repeat Destroy is ordinary,
	// not a reportable invalid state.
	c.mu.Lock()
	h, conn := c.handle, c.conn
	c.mu.Unlock()
	if h != nil && conn != nil {
		if err := conn.DestroySurface(h); err != nil {
			c.log.Info(
				"Remote layer release failed during teardown",
				"handle", h,
				"err", err,
			)
		}
	}

	if conn != nil {
		conn.Flush()
	}

	// The remote layer and its buffer queue are heavy, so the
	// references clear eagerly rather than waiting out any other
	// local holders. Handle and conn clear together under the
	// lock so readers never observe a half-torn-down control.
	c.mu.Lock()
	c.handle = nil
	c.conn = nil
	c.producer = nil
	c.mu.Unlock()

	// Explicit teardown happened; the runtime no longer needs to
	// force it.
	runtime.SetFinalizer(c, nil)
}

// Clear releases the remote layer on behalf of an external
// authority, such as a window manager revoking the surface.
// The authority drops its own reference soon after, but other
// local holders may keep this Control alive; Clear guarantees
// the remote resource is released promptly regardless.
func (c *Control) Clear() {
	c.Destroy()
}

// Disconnect severs the buffer producer's current connection,
// whichever API holds it. It does not tear the control down.
// After teardown has cleared the producer, Disconnect is a no-op.
func (c *Control) Disconnect() {
	c.mu.Lock()
	p := c.producer
	c.mu.Unlock()
	if p == nil {
		return
	}
	if err := p.Disconnect(pbuf.CurrentlyConnectedAPI); err != nil {
		c.log.Info("Producer disconnect failed", "err", err)
	}
}

// validate snapshots the handle and session references,
// failing with [UninitializedError] if either is gone.
// Forwarding methods use the returned snapshot, not the fields,
// so a concurrent teardown cannot yield a nil dereference.
func (c *Control) validate() (*Handle, Conn, error) {
	c.mu.Lock()
	h, conn := c.handle, c.conn
	c.mu.Unlock()
	if h == nil || conn == nil {
		connRepr := "conn(nil)"
		if conn != nil {
			connRepr = fmt.Sprintf("conn(%p)", conn)
		}
		c.log.Error(
			"Operation on uninitialized surface control",
			"handle", h,
			"conn", connRepr,
		)
		return nil, nil, UninitializedError{
			HaveHandle: h != nil,
			HaveConn:   conn != nil,
		}
	}
	return h, conn, nil
}

// SetLayerStack moves the layer to a different layer stack.
func (c *Control) SetLayerStack(stack uint32) error {
	h, conn, err := c.validate()
	if err != nil {
		return err
	}
	return conn.SetLayerStack(h, stack)
}

// SetLayer sets the layer's absolute Z order within its stack.
func (c *Control) SetLayer(z int32) error {
	h, conn, err := c.validate()
	if err != nil {
		return err
	}
	return conn.SetLayer(h, z)
}

// SetRelativeLayer sets the layer's Z order relative to the layer
// behind relativeTo.
func (c *Control) SetRelativeLayer(relativeTo *Handle, z int32) error {
	h, conn, err := c.validate()
	if err != nil {
		return err
	}
	return conn.SetRelativeLayer(h, relativeTo, z)
}

// SetPosition moves the layer's top-left corner.
func (c *Control) SetPosition(x, y float32) error {
	h, conn, err := c.validate()
	if err != nil {
		return err
	}
	return conn.SetPosition(h, x, y)
}

// SetGeometryAppliesWithResize defers pending geometry changes so
// they latch together with the next buffer of the new size.
func (c *Control) SetGeometryAppliesWithResize() error {
	h, conn, err := c.validate()
	if err != nil {
		return err
	}
	return conn.SetGeometryAppliesWithResize(h)
}

// SetSize resizes the layer.
func (c *Control) SetSize(w, hgt uint32) error {
	h, conn, err := c.validate()
	if err != nil {
		return err
	}
	return conn.SetSize(h, w, hgt)
}

// Hide removes the layer from composition.
func (c *Control) Hide() error {
	h, conn, err := c.validate()
	if err != nil {
		return err
	}
	return conn.Hide(h)
}

// Show makes the layer visible again.
func (c *Control) Show() error {
	h, conn, err := c.validate()
	if err != nil {
		return err
	}
	return conn.Show(h)
}

// SetFlags changes the layer state bits selected by mask to flags.
func (c *Control) SetFlags(flags, mask Flags) error {
	h, conn, err := c.validate()
	if err != nil {
		return err
	}
	return conn.SetFlags(h, flags, mask)
}

// SetTransparentRegionHint tells the compositor which parts of the
// layer are fully transparent.
func (c *Control) SetTransparentRegionHint(region Region) error {
	h, conn, err := c.validate()
	if err != nil {
		return err
	}
	return conn.SetTransparentRegionHint(h, region)
}

// SetAlpha sets the layer's plane alpha, in [0, 1].
func (c *Control) SetAlpha(alpha float32) error {
	h, conn, err := c.validate()
	if err != nil {
		return err
	}
	return conn.SetAlpha(h, alpha)
}

// SetMatrix sets the layer's 2x2 transform.
func (c *Control) SetMatrix(dsdx, dtdx, dtdy, dsdy float32) error {
	h, conn, err := c.validate()
	if err != nil {
		return err
	}
	return conn.SetMatrix(h, dsdx, dtdx, dtdy, dsdy)
}

// SetCrop limits composition to the given layer-space rectangle.
func (c *Control) SetCrop(crop Rect) error {
	h, conn, err := c.validate()
	if err != nil {
		return err
	}
	return conn.SetCrop(h, crop)
}

// SetFinalCrop limits the layer in display space, after the
// transform is applied.
func (c *Control) SetFinalCrop(crop Rect) error {
	h, conn, err := c.validate()
	if err != nil {
		return err
	}
	return conn.SetFinalCrop(h, crop)
}

// DeferTransactionUntil gates this layer's next transaction until
// the barrier layer has presented the given frame.
func (c *Control) DeferTransactionUntil(barrier *Handle, frameNumber uint64) error {
	h, conn, err := c.validate()
	if err != nil {
		return err
	}
	return conn.DeferTransactionUntil(h, barrier, frameNumber)
}

// DeferTransactionUntilSurface is DeferTransactionUntil keyed by a
// drawable surface instead of a handle.
func (c *Control) DeferTransactionUntilSurface(barrier *pbuf.Surface, frameNumber uint64) error {
	h, conn, err := c.validate()
	if err != nil {
		return err
	}
	return conn.DeferTransactionUntilSurface(h, barrier, frameNumber)
}

// ReparentChildren moves all of this layer's children under the
// layer behind newParent.
func (c *Control) ReparentChildren(newParent *Handle) error {
	h, conn, err := c.validate()
	if err != nil {
		return err
	}
	return conn.ReparentChildren(h, newParent)
}

// DetachChildren severs this layer's children from it.
func (c *Control) DetachChildren() error {
	h, conn, err := c.validate()
	if err != nil {
		return err
	}
	return conn.DetachChildren(h)
}

// SetOverrideScalingMode overrides how queued buffers scale to the
// layer bounds.
func (c *Control) SetOverrideScalingMode(mode ScalingMode) error {
	h, conn, err := c.validate()
	if err != nil {
		return err
	}
	return conn.SetOverrideScalingMode(h, mode)
}

// ClearLayerFrameStats resets the layer's accumulated frame timing
// record.
func (c *Control) ClearLayerFrameStats() error {
	h, conn, err := c.validate()
	if err != nil {
		return err
	}
	return conn.ClearLayerFrameStats(h)
}

// GetLayerFrameStats fills out with the layer's accumulated frame
// timing record.
func (c *Control) GetLayerFrameStats(out *FrameStats) error {
	h, conn, err := c.validate()
	if err != nil {
		return err
	}
	return conn.GetLayerFrameStats(h, out)
}

// GetSurface returns the layer's drawable surface, materializing
// it on first use. Every later call returns the same surface,
// regardless of intervening property changes.
func (c *Control) GetSurface() *pbuf.Surface {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.materializeSurfaceLocked(true)
}

// CreateSurface materializes a fresh drawable surface, discarding
// whatever [Control.GetSurface] had cached.
func (c *Control) CreateSurface() *pbuf.Surface {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.materializeSurfaceLocked(false)
}

// materializeSurfaceLocked returns the drawable surface, creating
// one when reuse is false or nothing is cached yet. The compositor
// is always the effective consumer of the wrapped producer, so the
// surface is never marked producer-controlled by the application.
func (c *Control) materializeSurfaceLocked(reuse bool) *pbuf.Surface {
	if reuse && c.surface != nil {
		return c.surface
	}
	c.surface = pbuf.NewSurface(c.producer, false)
	return c.surface
}

// GetHandle returns the layer handle, or nil after teardown.
func (c *Control) GetHandle() *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle
}

// SameSurface reports whether a and b refer to the same remote
// layer: both non-nil and holding the identical handle. Distinct
// handles are distinct layers even if their controls look alike.
func SameSurface(a, b *Control) bool {
	if a == nil || b == nil {
		return false
	}
	return a.GetHandle() == b.GetHandle()
}
