package pbuf

import (
	"context"
	"sync"
)

// Surface is the local drawable for one remote layer.
// Applications and rendering libraries draw frames and post them
// through the surface; the wrapped producer carries them to the
// compositor, which is always the effective consumer.
type Surface struct {
	producer Producer

	// Whether an application-level producer drives the queue
	// directly. Surfaces handed out by a layer control always
	// pass false, since the compositor consumes either way.
	controlledByApp bool

	mu        sync.Mutex
	lastFrame uint64
}

// NewSurface returns a Surface posting frames through p.
func NewSurface(p Producer, controlledByApp bool) *Surface {
	return &Surface{
		producer:        p,
		controlledByApp: controlledByApp,
	}
}

// Producer returns the buffer queue producer backing s.
// It may be nil if the surface was materialized after its
// owning control was torn down.
func (s *Surface) Producer() Producer {
	return s.producer
}

// Post submits one frame of drawn content,
// returning the frame number the producer assigned.
func (s *Surface) Post(ctx context.Context, payload []byte) (uint64, error) {
	frame, err := s.producer.QueueFrame(ctx, payload)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.lastFrame = frame
	s.mu.Unlock()

	return frame, nil
}

// LastFrameNumber returns the frame number of the most recently
// posted frame, or zero if nothing has been posted.
// Transaction barriers keyed by a surface resolve to this number.
func (s *Surface) LastFrameNumber() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFrame
}
