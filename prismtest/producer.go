package prismtest

import (
	"context"
	"sync"

	"github.com/prism-engine/prism/pbuf"
)

// RecordingProducer is a pbuf.Producer that records disconnects
// and queued frames instead of delivering them.
type RecordingProducer struct {
	// Reported from Token.
	QueueToken uint64

	// When set, Disconnect and QueueFrame return Err
	// after recording.
	Err error

	mu          sync.Mutex
	disconnects []pbuf.API
	frames      [][]byte
}

var _ pbuf.Producer = (*RecordingProducer)(nil)

func (p *RecordingProducer) Token() uint64 {
	return p.QueueToken
}

func (p *RecordingProducer) Disconnect(api pbuf.API) error {
	p.mu.Lock()
	p.disconnects = append(p.disconnects, api)
	p.mu.Unlock()
	return p.Err
}

func (p *RecordingProducer) QueueFrame(_ context.Context, payload []byte) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Err != nil {
		return 0, p.Err
	}
	p.frames = append(p.frames, payload)
	return uint64(len(p.frames)), nil
}

// Disconnects returns the API selectors passed to Disconnect,
// in call order.
func (p *RecordingProducer) Disconnects() []pbuf.API {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]pbuf.API, len(p.disconnects))
	copy(out, p.disconnects)
	return out
}

// Frames returns the queued frame payloads, in call order.
func (p *RecordingProducer) Frames() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([][]byte, len(p.frames))
	copy(out, p.frames)
	return out
}

// DatagramRecorder is a pbuf.Transport capturing sent datagrams.
type DatagramRecorder struct {
	// When set, SendDatagram returns Err without recording.
	Err error

	mu        sync.Mutex
	datagrams [][]byte
}

var _ pbuf.Transport = (*DatagramRecorder)(nil)

func (r *DatagramRecorder) SendDatagram(p []byte) error {
	if r.Err != nil {
		return r.Err
	}

	// Keep our own copy; senders may reuse the buffer.
	d := make([]byte, len(p))
	copy(d, p)

	r.mu.Lock()
	r.datagrams = append(r.datagrams, d)
	r.mu.Unlock()
	return nil
}

// Datagrams returns the captured datagrams, in send order.
func (r *DatagramRecorder) Datagrams() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([][]byte, len(r.datagrams))
	copy(out, r.datagrams)
	return out
}
