package host

import (
	"encoding/binary"
	"fmt"
	"math"

	bfloat16 "github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"

	"github.com/samcharles93/fmha/internal/dnn"
	"github.com/samcharles93/fmha/internal/shape"
)

// decodeFloats widens n little-endian elements of t to float32.
func decodeFloats(t shape.PrimitiveType, raw []byte, n int64) ([]float32, error) {
	size := int64(t.ByteSize())
	if size == 0 {
		return nil, fmt.Errorf("%w: element type %s", dnn.ErrUnsupported, t)
	}
	if int64(len(raw)) < n*size {
		return nil, fmt.Errorf("%w: buffer holds %d bytes, need %d", dnn.ErrInvalidArgument, len(raw), n*size)
	}
	raw = raw[:n*size]
	out := make([]float32, n)
	switch t {
	case shape.F32:
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
	case shape.F16:
		for i := range out {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[i*2:])).Float32()
		}
	case shape.BF16:
		copy(out, bfloat16.DecodeFloat32(raw))
	case shape.PRED:
		for i, b := range raw {
			if b != 0 {
				out[i] = 1
			}
		}
	default:
		return nil, fmt.Errorf("%w: element type %s", dnn.ErrUnsupported, t)
	}
	return out, nil
}

// encodeFloats narrows vals to t into dst.
func encodeFloats(t shape.PrimitiveType, dst []byte, vals []float32) error {
	size := t.ByteSize()
	if len(dst) < len(vals)*size {
		return fmt.Errorf("%w: buffer holds %d bytes, need %d", dnn.ErrInvalidArgument, len(dst), len(vals)*size)
	}
	switch t {
	case shape.F32:
		for i, v := range vals {
			binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
		}
	case shape.F16:
		for i, v := range vals {
			binary.LittleEndian.PutUint16(dst[i*2:], float16.Fromfloat32(v).Bits())
		}
	case shape.BF16:
		copy(dst, bfloat16.EncodeFloat32(vals))
	case shape.PRED:
		for i, v := range vals {
			dst[i] = 0
			if v != 0 {
				dst[i] = 1
			}
		}
	default:
		return fmt.Errorf("%w: element type %s", dnn.ErrUnsupported, t)
	}
	return nil
}
