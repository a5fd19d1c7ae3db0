// Package arena provides a fixed-capacity scratch allocator for the
// clustering and patch algorithms.
//
// An Arena hands out typed, zeroed sub-slices of one byte buffer. Each
// algorithm call takes a Mark on entry and releases it on return, so repeated
// calls reuse the same memory without allocating in hot loops. An Arena must
// not be shared between concurrent calls.
package arena

import (
	"errors"
	"fmt"
	"reflect"
	"unsafe"
)

// ErrExhausted is returned when an allocation does not fit in the remaining
// capacity.
var ErrExhausted = errors.New("arena exhausted")

// Arena is a bump allocator over a single byte buffer.
type Arena struct {
	buf  []byte
	off  int
	peak int
}

// Mark is a position in an arena returned by Mark and consumed by Release.
type Mark int

// New creates an arena that owns a buffer of capacity bytes.
func New(capacity int) *Arena {
	if capacity < 0 {
		capacity = 0
	}
	return &Arena{buf: make([]byte, capacity)}
}

// FromBuffer creates an arena over a caller-supplied buffer. The caller must
// not use buf while the arena is alive.
func FromBuffer(buf []byte) *Arena {
	return &Arena{buf: buf}
}

// Alloc returns a zeroed slice of n values of T carved from the arena.
// T must not contain pointers; Alloc panics otherwise.
func Alloc[T any](a *Arena, n int) ([]T, error) {
	t := reflect.TypeFor[T]()
	if !pointerFree(t) {
		panic(fmt.Sprintf("arena: type %s contains pointers", t))
	}
	if n < 0 {
		return nil, fmt.Errorf("arena: negative count %d", n)
	}

	var zero T
	size := int(unsafe.Sizeof(zero))
	if n == 0 || size == 0 {
		return make([]T, n), nil
	}

	align := uintptr(unsafe.Alignof(zero))
	base := uintptr(unsafe.Pointer(unsafe.SliceData(a.buf)))
	start := int((base+uintptr(a.off)+align-1)&^(align-1) - base)
	end := start + n*size
	if end > len(a.buf) {
		return nil, fmt.Errorf("%w: need %d bytes of %s, %d free", ErrExhausted, n*size, t, len(a.buf)-a.off)
	}

	s := unsafe.Slice((*T)(unsafe.Pointer(&a.buf[start])), n)
	clear(s)
	a.off = end
	a.peak = max(a.peak, end)
	return s, nil
}

// Mark returns the current allocation position.
func (a *Arena) Mark() Mark {
	return Mark(a.off)
}

// Release frees everything allocated since m. Slices allocated after m must
// not be used afterwards.
func (a *Arena) Release(m Mark) {
	if int(m) < 0 || int(m) > a.off {
		return
	}
	a.off = int(m)
}

// Reset frees every allocation.
func (a *Arena) Reset() {
	a.off = 0
}

// Used returns the number of bytes currently allocated, padding included.
func (a *Arena) Used() int {
	return a.off
}

// Cap returns the arena capacity in bytes.
func (a *Arena) Cap() int {
	return len(a.buf)
}

// Peak returns the high-water mark in bytes.
func (a *Arena) Peak() int {
	return a.peak
}

// pointerFree reports whether values of t can live in untyped memory.
func pointerFree(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	case reflect.Array:
		return t.Len() == 0 || pointerFree(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if !pointerFree(t.Field(i).Type) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
