package pbuf

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/klauspost/reedsolomon"
)

// Datagram kinds, the first byte of every outgoing datagram.
const (
	kindFrameShard byte = 0x01
	kindControl    byte = 0x02
)

// Control operations.
const (
	ctlConnect    byte = 0x01
	ctlDisconnect byte = 0x02
)

// frameShardHeaderSize is the fixed prefix of a frame shard datagram:
// kind, queue token, frame number, shard index,
// data shard count, parity shard count, original payload length.
const frameShardHeaderSize = 1 + 8 + 8 + 2 + 2 + 2 + 4

// FrameShard is the structured content of one frame shard datagram.
//
// The compositor side parses incoming datagrams into this form and
// reassembles frames with [JoinFrame] once enough shards arrive.
type FrameShard struct {
	Token uint64
	Frame uint64

	Index        uint16
	DataShards   uint16
	ParityShards uint16

	// Length of the frame payload before splitting and padding.
	OrigLen uint32

	// Payload retains a reference into the parsed datagram,
	// so the datagram must not be reused while the shard is held.
	Payload []byte
}

func appendFrameShard(b []byte, s FrameShard) []byte {
	b = append(b, kindFrameShard)
	b = binary.BigEndian.AppendUint64(b, s.Token)
	b = binary.BigEndian.AppendUint64(b, s.Frame)
	b = binary.BigEndian.AppendUint16(b, s.Index)
	b = binary.BigEndian.AppendUint16(b, s.DataShards)
	b = binary.BigEndian.AppendUint16(b, s.ParityShards)
	b = binary.BigEndian.AppendUint32(b, s.OrigLen)
	return append(b, s.Payload...)
}

// ParseFrameShard extracts the FrameShard from datagram b.
func ParseFrameShard(b []byte) (FrameShard, error) {
	if len(b) < frameShardHeaderSize {
		return FrameShard{}, fmt.Errorf(
			"frame shard datagram too short: %d bytes", len(b),
		)
	}
	if b[0] != kindFrameShard {
		return FrameShard{}, fmt.Errorf(
			"not a frame shard datagram: kind %#x", b[0],
		)
	}

	return FrameShard{
		Token:        binary.BigEndian.Uint64(b[1:9]),
		Frame:        binary.BigEndian.Uint64(b[9:17]),
		Index:        binary.BigEndian.Uint16(b[17:19]),
		DataShards:   binary.BigEndian.Uint16(b[19:21]),
		ParityShards: binary.BigEndian.Uint16(b[21:23]),
		OrigLen:      binary.BigEndian.Uint32(b[23:27]),
		Payload:      b[27:],
	}, nil
}

// controlMessageSize is kind, queue token, operation, API.
const controlMessageSize = 1 + 8 + 1 + 4

// ControlMessage is the structured content of a control datagram:
// a producer connect or disconnect notice for one buffer queue.
type ControlMessage struct {
	Token      uint64
	Disconnect bool
	API        API
}

func appendControl(b []byte, m ControlMessage) []byte {
	b = append(b, kindControl)
	b = binary.BigEndian.AppendUint64(b, m.Token)
	op := ctlConnect
	if m.Disconnect {
		op = ctlDisconnect
	}
	b = append(b, op)
	return binary.BigEndian.AppendUint32(b, uint32(m.API))
}

// ParseControl extracts the ControlMessage from datagram b.
func ParseControl(b []byte) (ControlMessage, error) {
	if len(b) != controlMessageSize {
		return ControlMessage{}, fmt.Errorf(
			"control datagram wrong size: %d bytes", len(b),
		)
	}
	if b[0] != kindControl {
		return ControlMessage{}, fmt.Errorf(
			"not a control datagram: kind %#x", b[0],
		)
	}
	op := b[9]
	if op != ctlConnect && op != ctlDisconnect {
		return ControlMessage{}, fmt.Errorf(
			"unknown control operation %#x", op,
		)
	}

	return ControlMessage{
		Token:      binary.BigEndian.Uint64(b[1:9]),
		Disconnect: op == ctlDisconnect,
		API:        API(binary.BigEndian.Uint32(b[10:14])),
	}, nil
}

// JoinFrame reassembles a frame from its shards, in index order.
// Missing shards may be nil; up to the parity shard count of them
// can be recovered.
func JoinFrame(shards [][]byte, dataShards, parityShards, origLen int) ([]byte, error) {
	if dataShards == 1 && parityShards == 0 {
		// Unsharded fast path, mirroring the send side.
		if len(shards) == 0 || shards[0] == nil || len(shards[0]) < origLen {
			return nil, fmt.Errorf("frame payload missing or truncated")
		}
		return shards[0][:origLen], nil
	}

	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, fmt.Errorf("building frame decoder: %w", err)
	}

	if err := enc.Reconstruct(shards); err != nil {
		return nil, fmt.Errorf("reconstructing frame: %w", err)
	}

	var buf bytes.Buffer
	if err := enc.Join(&buf, shards, origLen); err != nil {
		return nil, fmt.Errorf("joining frame shards: %w", err)
	}
	return buf.Bytes(), nil
}
