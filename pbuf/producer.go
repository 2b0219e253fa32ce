package pbuf

import "context"

// API identifies which producer-side API a buffer queue is
// connected to. A queue accepts frames from at most one API
// at a time.
type API int32

const (
	// CurrentlyConnectedAPI is a selector, not an API:
	// it means whichever API is connected at the time of the call.
	CurrentlyConnectedAPI API = -1

	APIEGL    API = 1
	APICPU    API = 2
	APIMedia  API = 3
	APICamera API = 4
)

func (a API) String() string {
	switch a {
	case CurrentlyConnectedAPI:
		return "currently-connected"
	case APIEGL:
		return "egl"
	case APICPU:
		return "cpu"
	case APIMedia:
		return "media"
	case APICamera:
		return "camera"
	default:
		return "unknown"
	}
}

// Producer is a reference to the remote producer side of a
// layer's buffer queue.
type Producer interface {
	// Token identifies the remote buffer queue backing this
	// producer. The token is the only part of a producer
	// reference that crosses the wire.
	Token() uint64

	// Disconnect severs the producer's connection for the given
	// API. Passing [CurrentlyConnectedAPI] severs whichever API
	// is connected; if none is, the call is a no-op.
	Disconnect(api API) error

	// QueueFrame submits one frame of drawn content,
	// returning the frame number assigned to it.
	QueueFrame(ctx context.Context, payload []byte) (uint64, error)
}
