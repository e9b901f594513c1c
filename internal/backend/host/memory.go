package host

import (
	"unsafe"

	"github.com/samcharles93/fmha/internal/dnn"
	"github.com/samcharles93/fmha/internal/shape"
)

// Alloc returns zeroed host memory usable as device memory on a host
// stream. A zero size returns the null buffer.
func Alloc(size uint64) dnn.DeviceMemory {
	if size == 0 {
		return dnn.DeviceMemory{}
	}
	b := make([]byte, size)
	return dnn.NewDeviceMemory(unsafe.Pointer(unsafe.SliceData(b)), size)
}

// Bytes views host-backed device memory. mem must come from this package.
func Bytes(mem dnn.DeviceMemory) []byte {
	if mem.IsNull() {
		return nil
	}
	return unsafe.Slice((*byte)(mem.Ptr()), mem.Size())
}

// FromFloats allocates a buffer holding vals converted to t.
func FromFloats(t shape.PrimitiveType, vals []float32) (dnn.DeviceMemory, error) {
	mem := Alloc(uint64(len(vals) * t.ByteSize()))
	if err := encodeFloats(t, Bytes(mem), vals); err != nil {
		return dnn.DeviceMemory{}, err
	}
	return mem, nil
}

// Floats reads every element of mem as t.
func Floats(mem dnn.DeviceMemory, t shape.PrimitiveType) ([]float32, error) {
	size := t.ByteSize()
	if size == 0 {
		return decodeFloats(t, nil, 0)
	}
	return decodeFloats(t, Bytes(mem), int64(mem.Size())/int64(size))
}
