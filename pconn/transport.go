package pconn

import (
	"context"
	"fmt"
	"time"

	"github.com/quic-go/quic-go"
)

// StreamErrorCode is used for [Stream.CancelRead] and
// [Stream.CancelWrite], to inform the compositor of why the stream
// is canceled.
type StreamErrorCode uint64

// SendStream is the write-only stream a flushed batch travels on.
type SendStream interface {
	Write([]byte) (int, error)
	Close() error

	SetWriteDeadline(time.Time) error
}

// Stream is a bidirectional stream used for request/response
// exchanges with the compositor.
type Stream interface {
	Read([]byte) (int, error)
	Write([]byte) (int, error)

	// Close closes the send side; the response remains readable.
	Close() error

	// CancelRead and CancelWrite abandon an exchange partway,
	// releasing the stream instead of leaving it open until the
	// connection dies.
	CancelRead(StreamErrorCode)
	CancelWrite(StreamErrorCode)

	SetDeadline(time.Time) error
}

// Transport is the interface representing the session's link to
// the compositor process.
//
// This is mostly a subset of the methods on [*quic.Conn],
// only referencing the methods the session uses.
type Transport interface {
	OpenStreamSync(context.Context) (Stream, error)
	OpenUniStreamSync(context.Context) (SendStream, error)

	SendDatagram([]byte) error

	CloseWithError(code uint64, reason string) error
}

var _ Transport = ConnAdapter{}

// ConnAdapter wraps a [*quic.Conn], implementing the [Transport]
// interface.
//
// Create an instance with [WrapConn].
type ConnAdapter struct {
	qc *quic.Conn
}

// WrapConn wraps the given connection,
// returning a value implementing [Transport].
func WrapConn(qc *quic.Conn) ConnAdapter {
	return ConnAdapter{qc: qc}
}

func (c ConnAdapter) OpenStreamSync(ctx context.Context) (Stream, error) {
	s, err := c.qc.OpenStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return StreamAdapter{s: s}, nil
}

func (c ConnAdapter) OpenUniStreamSync(ctx context.Context) (SendStream, error) {
	s, err := c.qc.OpenUniStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (c ConnAdapter) SendDatagram(p []byte) error {
	return c.qc.SendDatagram(p)
}

func (c ConnAdapter) CloseWithError(code uint64, reason string) error {
	return c.qc.CloseWithError(quic.ApplicationErrorCode(code), reason)
}

// StreamAdapter wraps a [*quic.Stream] to satisfy the [Stream]
// interface.
type StreamAdapter struct {
	s *quic.Stream
}

func (a StreamAdapter) Read(p []byte) (int, error) {
	return a.s.Read(p)
}

func (a StreamAdapter) Write(p []byte) (int, error) {
	return a.s.Write(p)
}

func (a StreamAdapter) Close() error {
	return a.s.Close()
}

func (a StreamAdapter) CancelRead(code StreamErrorCode) {
	if (code >> 62) > 0 {
		panic(fmt.Errorf(
			"BUG: stream error code must fit in 62 bits (got 0x%x)", code,
		))
	}
	a.s.CancelRead(quic.StreamErrorCode(code))
}

func (a StreamAdapter) CancelWrite(code StreamErrorCode) {
	if (code >> 62) > 0 {
		panic(fmt.Errorf(
			"BUG: stream error code must fit in 62 bits (got 0x%x)", code,
		))
	}
	a.s.CancelWrite(quic.StreamErrorCode(code))
}

func (a StreamAdapter) SetDeadline(t time.Time) error {
	return a.s.SetDeadline(t)
}
