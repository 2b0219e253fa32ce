package prism

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/prism-engine/prism/pbuf"
)

// Wire forms for a serialized control reference.
const (
	refAbsent  byte = 0x00
	refPresent byte = 0x01
)

// EncodeRef writes the wire reference for c into w.
//
// A control crosses process boundaries as nothing but its buffer
// producer endpoint: one presence byte, then the producer's queue
// token. A nil or torn-down control encodes as the absent form,
// which is a valid reference, not an error.
func EncodeRef(c *Control, w io.Writer) error {
	var p pbuf.Producer
	if c != nil {
		p = c.producer
	}

	if p == nil {
		if _, err := w.Write([]byte{refAbsent}); err != nil {
			return fmt.Errorf("writing absent surface reference: %w", err)
		}
		return nil
	}

	var buf [9]byte
	buf[0] = refPresent
	binary.BigEndian.PutUint64(buf[1:], p.Token())
	if _, err := w.Write(buf[:]); err != nil {
		return fmt.Errorf("writing surface reference: %w", err)
	}
	return nil
}

// DecodeRef reads a reference written by [EncodeRef], returning
// the producer's queue token and whether a producer was present.
func DecodeRef(r io.Reader) (token uint64, present bool, err error) {
	var kind [1]byte
	if _, err := io.ReadFull(r, kind[:]); err != nil {
		return 0, false, fmt.Errorf("reading surface reference presence: %w", err)
	}

	switch kind[0] {
	case refAbsent:
		return 0, false, nil
	case refPresent:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, false, fmt.Errorf("reading surface reference token: %w", err)
		}
		return binary.BigEndian.Uint64(buf[:]), true, nil
	default:
		return 0, false, fmt.Errorf("invalid surface reference presence byte %#x", kind[0])
	}
}
