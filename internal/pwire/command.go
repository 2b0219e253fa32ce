package pwire

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/prism-engine/prism"
)

// Op identifies one compositor operation on the wire.
type Op byte

const (
	// Per-layer property commands, delivered in flushed batches.
	OpDestroySurface Op = iota + 1
	OpSetLayerStack
	OpSetLayer
	OpSetRelativeLayer
	OpSetPosition
	OpSetSize
	OpSetGeometryAppliesWithResize
	OpShow
	OpHide
	OpSetFlags
	OpSetTransparentRegionHint
	OpSetAlpha
	OpSetMatrix
	OpSetCrop
	OpSetFinalCrop
	OpDeferTransaction
	OpReparentChildren
	OpDetachChildren
	OpSetOverrideScalingMode
	OpClearFrameStats

	// Request/response operations, each on its own
	// bidirectional stream.
	OpCreateSurface
	OpGetFrameStats
)

func (o Op) String() string {
	switch o {
	case OpDestroySurface:
		return "destroy-surface"
	case OpSetLayerStack:
		return "set-layer-stack"
	case OpSetLayer:
		return "set-layer"
	case OpSetRelativeLayer:
		return "set-relative-layer"
	case OpSetPosition:
		return "set-position"
	case OpSetSize:
		return "set-size"
	case OpSetGeometryAppliesWithResize:
		return "set-geometry-applies-with-resize"
	case OpShow:
		return "show"
	case OpHide:
		return "hide"
	case OpSetFlags:
		return "set-flags"
	case OpSetTransparentRegionHint:
		return "set-transparent-region-hint"
	case OpSetAlpha:
		return "set-alpha"
	case OpSetMatrix:
		return "set-matrix"
	case OpSetCrop:
		return "set-crop"
	case OpSetFinalCrop:
		return "set-final-crop"
	case OpDeferTransaction:
		return "defer-transaction"
	case OpReparentChildren:
		return "reparent-children"
	case OpDetachChildren:
		return "detach-children"
	case OpSetOverrideScalingMode:
		return "set-override-scaling-mode"
	case OpClearFrameStats:
		return "clear-frame-stats"
	case OpCreateSurface:
		return "create-surface"
	case OpGetFrameStats:
		return "get-frame-stats"
	default:
		return fmt.Sprintf("op(%#x)", byte(o))
	}
}

// Arg appends one encoded command argument. An Arg fails when its
// value cannot be represented on the wire, such as a byte string
// longer than its length prefix can carry.
type Arg func([]byte) ([]byte, error)

// Byte encodes a single byte argument.
func Byte(v byte) Arg {
	return func(b []byte) ([]byte, error) {
		return append(b, v), nil
	}
}

// U32 encodes a big endian uint32 argument.
func U32(v uint32) Arg {
	return func(b []byte) ([]byte, error) {
		return binary.BigEndian.AppendUint32(b, v), nil
	}
}

// I32 encodes a big endian int32 argument.
func I32(v int32) Arg {
	return U32(uint32(v))
}

// U64 encodes a big endian uint64 argument.
func U64(v uint64) Arg {
	return func(b []byte) ([]byte, error) {
		return binary.BigEndian.AppendUint64(b, v), nil
	}
}

// F32 encodes a float32 argument as its IEEE 754 bits.
func F32(v float32) Arg {
	return U32(math.Float32bits(v))
}

func appendRect(b []byte, r prism.Rect) []byte {
	b = binary.BigEndian.AppendUint32(b, uint32(r.Left))
	b = binary.BigEndian.AppendUint32(b, uint32(r.Top))
	b = binary.BigEndian.AppendUint32(b, uint32(r.Right))
	return binary.BigEndian.AppendUint32(b, uint32(r.Bottom))
}

// RectArg encodes a layer rectangle as four big endian int32s.
func RectArg(r prism.Rect) Arg {
	return func(b []byte) ([]byte, error) {
		return appendRect(b, r), nil
	}
}

// RegionArg encodes a region with the adaptive region codec.
func RegionArg(region prism.Region) Arg {
	return func(b []byte) ([]byte, error) {
		return AppendRegion(b, region)
	}
}

// Bytes encodes a length-prefixed byte string argument.
func Bytes(v []byte) Arg {
	return func(b []byte) ([]byte, error) {
		if len(v) > math.MaxUint16 {
			return nil, fmt.Errorf(
				"byte string argument too long: %d bytes", len(v),
			)
		}
		b = binary.BigEndian.AppendUint16(b, uint16(len(v)))
		return append(b, v...), nil
	}
}

// commandHeaderSize is the record length prefix plus op byte plus
// layer ID.
const commandHeaderSize = 2 + 1 + 8

// AppendCommand appends one command record to b: a uint16 length
// of the remainder, the op, the wire layer ID, then the encoded
// arguments. Records are concatenated to form a flushed batch.
//
// A record whose body would overflow the length prefix fails rather
// than truncate, with b rolled back to its incoming length; a
// truncated prefix would corrupt every later record in the batch.
func AppendCommand(b []byte, op Op, layerID uint64, args ...Arg) ([]byte, error) {
	start := len(b)

	// Length placeholder, fixed up below.
	b = append(b, 0, 0)
	b = append(b, byte(op))
	b = binary.BigEndian.AppendUint64(b, layerID)
	for _, arg := range args {
		var err error
		b, err = arg(b)
		if err != nil {
			return b[:start], fmt.Errorf("encoding %v argument: %w", op, err)
		}
	}

	sz := len(b) - start - 2
	if sz > math.MaxUint16 {
		return b[:start], fmt.Errorf(
			"%v record body too large: %d bytes", op, sz,
		)
	}
	binary.BigEndian.PutUint16(b[start:], uint16(sz))
	return b, nil
}

// Command is a decoded command record.
type Command struct {
	Op      Op
	LayerID uint64

	// Encoded arguments, interpreted per Op.
	// Retains a reference into the parsed batch.
	Args []byte
}

// ParseBatch decodes a flushed batch into its command records.
func ParseBatch(b []byte) ([]Command, error) {
	var cmds []Command
	for len(b) > 0 {
		if len(b) < commandHeaderSize {
			return nil, fmt.Errorf(
				"truncated command record: %d bytes left", len(b),
			)
		}
		sz := int(binary.BigEndian.Uint16(b))
		if len(b)-2 < sz {
			return nil, fmt.Errorf(
				"command record claims %d bytes, %d left", sz, len(b)-2,
			)
		}

		cmds = append(cmds, Command{
			Op:      Op(b[2]),
			LayerID: binary.BigEndian.Uint64(b[3:11]),
			Args:    b[11 : 2+sz],
		})
		b = b[2+sz:]
	}
	return cmds, nil
}
