package pconn

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prism-engine/prism"
	"github.com/prism-engine/prism/internal/pwire"
	"github.com/prism-engine/prism/pbuf"
)

// ProtocolID is the first byte written on every stream the session
// opens, so the compositor can route accepted streams to its
// client protocol handler.
const ProtocolID byte = 0x90

// Barrier kinds for deferred transactions.
const (
	barrierByHandle byte = 0
	barrierByQueue  byte = 1
)

// Config is the configuration for [New].
type Config struct {
	Transport Transport

	// Deadline applied to each batch delivery and each
	// request/response exchange. Zero means one second.
	IOTimeout time.Duration

	// Datagram sizing for the buffer producer endpoints minted
	// by CreateSurface. Zero values get reasonable defaults.
	DatagramBudget int
	DataShards     int
	ParityShards   int
}

// validate panics if there are any illegal settings in the configuration.
func (c Config) validate() {
	var panicErrs error

	if c.Transport == nil {
		panicErrs = errors.Join(
			panicErrs,
			errors.New("Config.Transport may not be nil"),
		)
	}

	if c.DatagramBudget < 0 || c.DataShards < 0 || c.ParityShards < 0 {
		panicErrs = errors.Join(
			panicErrs,
			errors.New("Config sizing fields may not be negative"),
		)
	}

	if panicErrs != nil {
		panic(panicErrs)
	}
}

// Conn is a session with the remote compositor, shared by every
// layer control created through it. Property commands gather into
// a pending batch; Flush delivers the batch on a unidirectional
// stream.
//
// Conn is safe for concurrent use.
type Conn struct {
	log *slog.Logger

	transport Transport

	ioTimeout time.Duration

	datagramBudget int
	dataShards     int
	parityShards   int

	mu      sync.Mutex
	closed  bool
	pending []byte
	handles map[*prism.Handle]uint64
}

var _ prism.Conn = (*Conn)(nil)

// New returns a Conn forwarding through the configured transport.
func New(log *slog.Logger, cfg Config) *Conn {
	cfg.validate()

	if cfg.IOTimeout == 0 {
		cfg.IOTimeout = time.Second
	}
	if cfg.DatagramBudget == 0 {
		// Conservative against common path MTUs.
		cfg.DatagramBudget = 1200
	}
	if cfg.DataShards == 0 {
		cfg.DataShards = 4
	}
	if cfg.ParityShards == 0 {
		cfg.ParityShards = 2
	}

	return &Conn{
		log: log,

		transport: cfg.Transport,

		ioTimeout: cfg.IOTimeout,

		datagramBudget: cfg.DatagramBudget,
		dataShards:     cfg.DataShards,
		parityShards:   cfg.ParityShards,

		handles: make(map[*prism.Handle]uint64),
	}
}

// SurfaceSpec describes the layer requested from the compositor.
type SurfaceSpec struct {
	Name string

	Width, Height uint32

	// Pixel format and initial layer flags,
	// passed through to the compositor uninterpreted.
	Format uint32
	Flags  prism.Flags
}

// CreateSurface asks the compositor for a new layer and returns
// the control for it. The returned control holds this session,
// a fresh handle bound to the layer's wire ID, and a producer
// endpoint for the layer's buffer queue.
func (c *Conn) CreateSurface(ctx context.Context, spec SurfaceSpec) (*prism.Control, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, SessionClosedError{}
	}

	req, err := pwire.AppendCommand(
		[]byte{ProtocolID}, pwire.OpCreateSurface, 0,
		pwire.Bytes([]byte(spec.Name)),
		pwire.U32(spec.Width),
		pwire.U32(spec.Height),
		pwire.U32(spec.Format),
		pwire.U32(uint32(spec.Flags)),
	)
	if err != nil {
		return nil, fmt.Errorf("create-surface %q: %w", spec.Name, err)
	}

	resp, err := c.roundTrip(ctx, pwire.OpCreateSurface, req)
	if err != nil {
		return nil, fmt.Errorf("create-surface %q: %w", spec.Name, err)
	}
	if len(resp) != 20 {
		return nil, fmt.Errorf(
			"create-surface response wrong size: %d bytes", len(resp),
		)
	}

	layerID := binary.BigEndian.Uint64(resp[0:8])
	token := binary.BigEndian.Uint64(resp[8:16])
	slots := binary.BigEndian.Uint32(resp[16:20])
	if slots == 0 {
		return nil, fmt.Errorf("create-surface response granted zero buffer slots")
	}

	ep, err := pbuf.NewEndpoint(
		c.log.With("queue", fmt.Sprintf("%#x", token)),
		pbuf.EndpointConfig{
			Token:     token,
			Transport: c.transport,

			Slots: uint(slots),

			MaxShardSize: c.datagramBudget,
			DataShards:   c.dataShards,
			ParityShards: c.parityShards,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("building producer endpoint: %w", err)
	}

	h := prism.NewHandle()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, SessionClosedError{}
	}
	c.handles[h] = layerID
	c.mu.Unlock()

	return prism.NewControl(c.log.With("layer", h), c, h, ep), nil
}

// RegisterHandle adopts a handle minted elsewhere, binding it to a
// wire layer ID. Window management authorities hand layers across
// sessions this way.
func (c *Conn) RegisterHandle(h *prism.Handle, wireID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handles[h] = wireID
}

// Close flushes pending commands and closes the transport.
// The reason is sent to the compositor.
// Further forwarded commands fail with [SessionClosedError].
func (c *Conn) Close(code uint64, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.Flush()
	return c.transport.CloseWithError(code, reason)
}

// enqueue appends one command for a single layer to the pending batch.
func (c *Conn) enqueue(op pwire.Op, h *prism.Handle, args ...pwire.Arg) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return SessionClosedError{}
	}
	id, ok := c.handles[h]
	if !ok {
		return UnknownHandleError{Handle: h}
	}

	batch, err := pwire.AppendCommand(c.pending, op, id, args...)
	if err != nil {
		return err
	}
	c.pending = batch
	commandsEnqueued.WithLabelValues(op.String()).Inc()
	return nil
}

// enqueue2 is enqueue for commands referencing a second layer.
// Both handles must be registered; args receives the second
// layer's wire ID.
func (c *Conn) enqueue2(op pwire.Op, h, other *prism.Handle, args func(otherID uint64) []pwire.Arg) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return SessionClosedError{}
	}
	id, ok := c.handles[h]
	if !ok {
		return UnknownHandleError{Handle: h}
	}
	otherID, ok := c.handles[other]
	if !ok {
		return UnknownHandleError{Handle: other}
	}

	batch, err := pwire.AppendCommand(c.pending, op, id, args(otherID)...)
	if err != nil {
		return err
	}
	c.pending = batch
	commandsEnqueued.WithLabelValues(op.String()).Inc()
	return nil
}

func (c *Conn) DestroySurface(h *prism.Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return SessionClosedError{}
	}
	id, ok := c.handles[h]
	if !ok {
		return UnknownHandleError{Handle: h}
	}

	batch, err := pwire.AppendCommand(c.pending, pwire.OpDestroySurface, id)
	if err != nil {
		return err
	}
	c.pending = batch
	commandsEnqueued.WithLabelValues(pwire.OpDestroySurface.String()).Inc()

	// The wire ID is dead once the destroy delivers;
	// dropping the registration now makes any further use of the
	// handle an UnknownHandleError instead of a remote failure.
	delete(c.handles, h)
	return nil
}

func (c *Conn) SetLayerStack(h *prism.Handle, stack uint32) error {
	return c.enqueue(pwire.OpSetLayerStack, h, pwire.U32(stack))
}

func (c *Conn) SetLayer(h *prism.Handle, z int32) error {
	return c.enqueue(pwire.OpSetLayer, h, pwire.I32(z))
}

func (c *Conn) SetRelativeLayer(h, relativeTo *prism.Handle, z int32) error {
	return c.enqueue2(pwire.OpSetRelativeLayer, h, relativeTo,
		func(otherID uint64) []pwire.Arg {
			return []pwire.Arg{pwire.U64(otherID), pwire.I32(z)}
		})
}

func (c *Conn) SetPosition(h *prism.Handle, x, y float32) error {
	return c.enqueue(pwire.OpSetPosition, h, pwire.F32(x), pwire.F32(y))
}

func (c *Conn) SetSize(h *prism.Handle, w, hgt uint32) error {
	return c.enqueue(pwire.OpSetSize, h, pwire.U32(w), pwire.U32(hgt))
}

func (c *Conn) SetGeometryAppliesWithResize(h *prism.Handle) error {
	return c.enqueue(pwire.OpSetGeometryAppliesWithResize, h)
}

func (c *Conn) Show(h *prism.Handle) error {
	return c.enqueue(pwire.OpShow, h)
}

func (c *Conn) Hide(h *prism.Handle) error {
	return c.enqueue(pwire.OpHide, h)
}

func (c *Conn) SetFlags(h *prism.Handle, flags, mask prism.Flags) error {
	return c.enqueue(pwire.OpSetFlags, h,
		pwire.U32(uint32(flags)), pwire.U32(uint32(mask)))
}

func (c *Conn) SetTransparentRegionHint(h *prism.Handle, region prism.Region) error {
	return c.enqueue(pwire.OpSetTransparentRegionHint, h, pwire.RegionArg(region))
}

func (c *Conn) SetAlpha(h *prism.Handle, alpha float32) error {
	return c.enqueue(pwire.OpSetAlpha, h, pwire.F32(alpha))
}

func (c *Conn) SetMatrix(h *prism.Handle, dsdx, dtdx, dtdy, dsdy float32) error {
	return c.enqueue(pwire.OpSetMatrix, h,
		pwire.F32(dsdx), pwire.F32(dtdx), pwire.F32(dtdy), pwire.F32(dsdy))
}

func (c *Conn) SetCrop(h *prism.Handle, crop prism.Rect) error {
	return c.enqueue(pwire.OpSetCrop, h, pwire.RectArg(crop))
}

func (c *Conn) SetFinalCrop(h *prism.Handle, crop prism.Rect) error {
	return c.enqueue(pwire.OpSetFinalCrop, h, pwire.RectArg(crop))
}

func (c *Conn) DeferTransactionUntil(h, barrier *prism.Handle, frameNumber uint64) error {
	return c.enqueue2(pwire.OpDeferTransaction, h, barrier,
		func(otherID uint64) []pwire.Arg {
			return []pwire.Arg{
				pwire.Byte(barrierByHandle),
				pwire.U64(otherID),
				pwire.U64(frameNumber),
			}
		})
}

func (c *Conn) DeferTransactionUntilSurface(h *prism.Handle, barrier *pbuf.Surface, frameNumber uint64) error {
	if barrier == nil || barrier.Producer() == nil {
		return fmt.Errorf("defer-transaction: barrier surface has no producer")
	}
	return c.enqueue(pwire.OpDeferTransaction, h,
		pwire.Byte(barrierByQueue),
		pwire.U64(barrier.Producer().Token()),
		pwire.U64(frameNumber),
	)
}

func (c *Conn) ReparentChildren(h, newParent *prism.Handle) error {
	return c.enqueue2(pwire.OpReparentChildren, h, newParent,
		func(otherID uint64) []pwire.Arg {
			return []pwire.Arg{pwire.U64(otherID)}
		})
}

func (c *Conn) DetachChildren(h *prism.Handle) error {
	return c.enqueue(pwire.OpDetachChildren, h)
}

func (c *Conn) SetOverrideScalingMode(h *prism.Handle, mode prism.ScalingMode) error {
	return c.enqueue(pwire.OpSetOverrideScalingMode, h, pwire.I32(int32(mode)))
}

func (c *Conn) ClearLayerFrameStats(h *prism.Handle) error {
	return c.enqueue(pwire.OpClearFrameStats, h)
}

// GetLayerFrameStats reads the layer's frame timing record from
// the compositor. The pending batch flushes first, so a batched
// clear-stats lands before the read.
func (c *Conn) GetLayerFrameStats(h *prism.Handle, out *prism.FrameStats) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return SessionClosedError{}
	}
	id, ok := c.handles[h]
	c.mu.Unlock()
	if !ok {
		return UnknownHandleError{Handle: h}
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.ioTimeout)
	defer cancel()

	if err := c.flush(ctx); err != nil {
		return fmt.Errorf("flushing before stats read: %w", err)
	}

	req, err := pwire.AppendCommand([]byte{ProtocolID}, pwire.OpGetFrameStats, id)
	if err != nil {
		return fmt.Errorf("get-frame-stats: %w", err)
	}
	resp, err := c.roundTrip(ctx, pwire.OpGetFrameStats, req)
	if err != nil {
		return fmt.Errorf("get-frame-stats: %w", err)
	}

	if err := pwire.ParseFrameStats(resp, out); err != nil {
		return fmt.Errorf("get-frame-stats: %w", err)
	}
	return nil
}

// Flush delivers the pending batch now.
//
// Errors are logged rather than returned: Flush's callers are
// commonly teardown paths that must proceed regardless, and a
// batch lost to a dying transport has nowhere better to go.
func (c *Conn) Flush() {
	ctx, cancel := context.WithTimeout(context.Background(), c.ioTimeout)
	defer cancel()

	if err := c.flush(ctx); err != nil {
		c.log.Warn("Failed to deliver command batch", "err", err)
	}
}

func (c *Conn) flush(ctx context.Context) error {
	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	c.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	s, err := c.transport.OpenUniStreamSync(ctx)
	if err != nil {
		return fmt.Errorf("opening batch stream: %w", err)
	}

	defer func() {
		if err := s.Close(); err != nil {
			c.log.Info("Error closing batch stream", "err", err)
		}
	}()

	// This is a reliable stream, so set a write deadline.
	// The upcoming write will block,
	// so setting the deadline avoids having to run another goroutine to manage this.
	if err := s.SetWriteDeadline(time.Now().Add(c.ioTimeout)); err != nil {
		return fmt.Errorf("setting batch stream deadline: %w", err)
	}

	if _, err := s.Write([]byte{ProtocolID}); err != nil {
		return fmt.Errorf("writing protocol ID: %w", err)
	}
	if _, err := s.Write(batch); err != nil {
		return fmt.Errorf("writing batch: %w", err)
	}

	flushesTotal.Inc()
	flushedBatchBytes.Observe(float64(len(batch)))
	return nil
}

// abandonedExchange is the cancel code an abandoned request/response
// stream reports to the compositor.
const abandonedExchange StreamErrorCode = 1

// roundTrip performs one request/response exchange on a fresh
// bidirectional stream. A leading zero status byte in the response
// means success; anything else comes back as a [RemoteError].
//
// A failed exchange cancels both stream sides, so the stream is
// released instead of lingering until the connection dies.
func (c *Conn) roundTrip(ctx context.Context, op pwire.Op, req []byte) ([]byte, error) {
	s, err := c.transport.OpenStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening stream: %w", err)
	}

	if dl, ok := ctx.Deadline(); ok {
		if err := s.SetDeadline(dl); err != nil {
			s.CancelWrite(abandonedExchange)
			s.CancelRead(abandonedExchange)
			return nil, fmt.Errorf("setting stream deadline: %w", err)
		}
	}

	if _, err := s.Write(req); err != nil {
		s.CancelWrite(abandonedExchange)
		s.CancelRead(abandonedExchange)
		return nil, fmt.Errorf("writing request: %w", err)
	}
	// Closing the send side signals the end of the request;
	// the response side stays readable.
	if err := s.Close(); err != nil {
		s.CancelWrite(abandonedExchange)
		s.CancelRead(abandonedExchange)
		return nil, fmt.Errorf("closing request side: %w", err)
	}

	resp, err := io.ReadAll(s)
	if err != nil {
		s.CancelRead(abandonedExchange)
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if len(resp) == 0 {
		return nil, fmt.Errorf("empty response")
	}
	if resp[0] != 0 {
		return nil, RemoteError{Op: op.String(), Code: uint32(resp[0])}
	}
	return resp[1:], nil
}
