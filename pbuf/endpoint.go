package pbuf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/klauspost/reedsolomon"
)

// Transport is the datagram path from a producer endpoint to the
// compositor process. A *quic.Conn satisfies it directly.
type Transport interface {
	SendDatagram([]byte) error
}

// EndpointConfig is the configuration for [NewEndpoint].
type EndpointConfig struct {
	// The remote buffer queue this endpoint produces into.
	Token uint64

	Transport Transport

	// Number of buffer slots the queue granted this producer.
	// At most this many frames may be in flight at once.
	Slots uint

	// Largest shard payload that fits in one datagram,
	// excluding the shard header.
	MaxShardSize int

	// Reed-solomon geometry for frames too large for one datagram.
	DataShards   int
	ParityShards int
}

// validate panics if there are any illegal settings in the configuration.
func (c EndpointConfig) validate() {
	var panicErrs error

	if c.Transport == nil {
		panicErrs = errors.Join(
			panicErrs,
			errors.New("EndpointConfig.Transport may not be nil"),
		)
	}

	if c.Slots == 0 {
		panicErrs = errors.Join(
			panicErrs,
			errors.New("EndpointConfig.Slots must be positive"),
		)
	}

	if c.MaxShardSize <= 0 {
		panicErrs = errors.Join(
			panicErrs,
			errors.New("EndpointConfig.MaxShardSize must be positive"),
		)
	}

	if c.DataShards <= 0 || c.ParityShards < 0 {
		panicErrs = errors.Join(
			panicErrs,
			errors.New("EndpointConfig shard counts must be positive data, non-negative parity"),
		)
	}

	if panicErrs != nil {
		panic(panicErrs)
	}
}

// Endpoint is the concrete [Producer]:
// a client-side reference to one remote buffer queue,
// delivering frames to the compositor over a datagram transport.
type Endpoint struct {
	log *slog.Logger

	token     uint64
	transport Transport

	maxShardSize int
	enc          reedsolomon.Encoder
	dataShards   int
	parityShards int

	mu        sync.Mutex
	connected API // Zero when no API is connected.
	slots     *bitset.BitSet
	inFlight  map[uint64]uint // Frame number to held slot.
	frameSeq  uint64
}

var _ Producer = (*Endpoint)(nil)

// NewEndpoint returns an Endpoint for the given configuration.
// It panics on illegal configuration and errors only if the
// reed-solomon encoder cannot be built from the shard counts.
func NewEndpoint(log *slog.Logger, cfg EndpointConfig) (*Endpoint, error) {
	cfg.validate()

	enc, err := reedsolomon.New(cfg.DataShards, cfg.ParityShards)
	if err != nil {
		return nil, fmt.Errorf(
			"building frame encoder (%d data, %d parity): %w",
			cfg.DataShards, cfg.ParityShards, err,
		)
	}

	return &Endpoint{
		log: log,

		token:     cfg.Token,
		transport: cfg.Transport,

		maxShardSize: cfg.MaxShardSize,
		enc:          enc,
		dataShards:   cfg.DataShards,
		parityShards: cfg.ParityShards,

		slots:    bitset.New(cfg.Slots),
		inFlight: make(map[uint64]uint, cfg.Slots),
	}, nil
}

// Token identifies the remote buffer queue backing this endpoint.
func (e *Endpoint) Token() uint64 {
	return e.token
}

// Connect attaches the given producer API to the buffer queue.
// Only one API may be connected at a time.
func (e *Endpoint) Connect(api API) error {
	if api <= 0 {
		return fmt.Errorf("connect: invalid producer API %v", api)
	}

	e.mu.Lock()
	if e.connected != 0 {
		err := AlreadyConnectedError{Connected: e.connected, Requested: api}
		e.mu.Unlock()
		return err
	}
	e.connected = api
	e.mu.Unlock()

	return e.sendControl(ControlMessage{Token: e.token, API: api})
}

// Disconnect severs the producer's connection for the given API.
// Passing [CurrentlyConnectedAPI] severs whichever API is connected,
// and is a no-op when none is.
// Any in-flight frames are dropped with their slots released.
func (e *Endpoint) Disconnect(api API) error {
	e.mu.Lock()
	cur := e.connected
	if api == CurrentlyConnectedAPI {
		if cur == 0 {
			e.mu.Unlock()
			return nil
		}
		api = cur
	} else if api != cur {
		e.mu.Unlock()
		return DisconnectMismatchError{Connected: cur, Requested: api}
	}

	e.connected = 0
	e.slots.ClearAll()
	clear(e.inFlight)
	e.mu.Unlock()

	return e.sendControl(ControlMessage{
		Token:      e.token,
		Disconnect: true,
		API:        api,
	})
}

// QueueFrame submits one frame of drawn content.
// The frame holds a buffer slot until [Endpoint.CompleteFrame]
// is called with the returned frame number.
func (e *Endpoint) QueueFrame(ctx context.Context, payload []byte) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	e.mu.Lock()
	slot, ok := e.acquireSlotLocked()
	if !ok {
		n := e.slots.Len()
		e.mu.Unlock()
		return 0, SlotsExhaustedError{Slots: n}
	}
	e.frameSeq++
	frame := e.frameSeq
	e.inFlight[frame] = slot
	e.mu.Unlock()

	if err := e.sendFrame(frame, payload); err != nil {
		// The frame never left, so its slot frees immediately.
		e.CompleteFrame(frame)
		return 0, fmt.Errorf("queueing frame %d: %w", frame, err)
	}

	return frame, nil
}

// CompleteFrame releases the buffer slot held by an in-flight frame.
// The session calls this when the compositor acknowledges the frame.
// Completing an unknown frame number is a no-op.
func (e *Endpoint) CompleteFrame(frame uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	slot, ok := e.inFlight[frame]
	if !ok {
		return
	}
	delete(e.inFlight, frame)
	e.slots.Clear(slot)
}

// InFlight returns the number of frames holding buffer slots.
func (e *Endpoint) InFlight() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.inFlight)
}

func (e *Endpoint) acquireSlotLocked() (uint, bool) {
	slot, ok := e.slots.NextClear(0)
	if !ok || slot >= e.slots.Len() {
		return 0, false
	}
	e.slots.Set(slot)
	return slot, true
}

func (e *Endpoint) sendFrame(frame uint64, payload []byte) error {
	if len(payload) <= e.maxShardSize {
		// Fits in one datagram: skip the encoder entirely.
		d := appendFrameShard(nil, FrameShard{
			Token:      e.token,
			Frame:      frame,
			DataShards: 1,
			OrigLen:    uint32(len(payload)),
			Payload:    payload,
		})
		return e.transport.SendDatagram(d)
	}

	shards, err := e.enc.Split(payload)
	if err != nil {
		return fmt.Errorf("splitting payload: %w", err)
	}
	if len(shards[0]) > e.maxShardSize {
		return fmt.Errorf(
			"frame of %d bytes shards to %d bytes, over the %d byte datagram budget",
			len(payload), len(shards[0]), e.maxShardSize,
		)
	}
	if err := e.enc.Encode(shards); err != nil {
		return fmt.Errorf("encoding parity: %w", err)
	}

	for i, shard := range shards {
		d := appendFrameShard(nil, FrameShard{
			Token:        e.token,
			Frame:        frame,
			Index:        uint16(i),
			DataShards:   uint16(e.dataShards),
			ParityShards: uint16(e.parityShards),
			OrigLen:      uint32(len(payload)),
			Payload:      shard,
		})
		if err := e.transport.SendDatagram(d); err != nil {
			return fmt.Errorf("sending shard %d: %w", i, err)
		}
	}

	return nil
}

func (e *Endpoint) sendControl(m ControlMessage) error {
	if err := e.transport.SendDatagram(appendControl(nil, m)); err != nil {
		// Not fatal to the endpoint; the compositor reconciles
		// connection state from the frame stream as well.
		e.log.Warn(
			"Failed to send buffer queue control message",
			"token", fmt.Sprintf("%#x", m.Token),
			"disconnect", m.Disconnect,
			"err", err,
		)
		return err
	}
	return nil
}
