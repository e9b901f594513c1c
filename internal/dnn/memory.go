package dnn

import (
	"fmt"
	"unsafe"
)

// DeviceMemory is a caller-owned device buffer. The zero value is the null
// buffer.
type DeviceMemory struct {
	ptr  unsafe.Pointer
	size uint64
}

func NewDeviceMemory(ptr unsafe.Pointer, size uint64) DeviceMemory {
	if ptr == nil {
		return DeviceMemory{}
	}
	return DeviceMemory{ptr: ptr, size: size}
}

func (m DeviceMemory) Ptr() unsafe.Pointer {
	return m.ptr
}

func (m DeviceMemory) Size() uint64 {
	return m.size
}

func (m DeviceMemory) IsNull() bool {
	return m.ptr == nil
}

// IsSameAs reports whether both handles refer to the same range.
func (m DeviceMemory) IsSameAs(o DeviceMemory) bool {
	return m.ptr == o.ptr && m.size == o.size
}

func (m DeviceMemory) String() string {
	if m.IsNull() {
		return "null"
	}
	return fmt.Sprintf("%p+%d", m.ptr, m.size)
}
