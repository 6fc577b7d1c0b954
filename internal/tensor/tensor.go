// Package tensor provides the contiguous host buffers the pipeline writes
// batches into, plus the Allocator capability used to obtain them.
package tensor

import (
	"fmt"

	"github.com/x448/float16"
)

type DType int

const (
	Float32 DType = iota
	Float16
	Int32
)

func (d DType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Float16:
		return "float16"
	case Int32:
		return "int32"
	default:
		return fmt.Sprintf("dtype(%d)", int(d))
	}
}

// ParseDType accepts the names used in pipeline specs ("float", "float16", ...).
func ParseDType(s string) (DType, error) {
	switch s {
	case "", "float", "float32", "FLOAT":
		return Float32, nil
	case "float16", "half", "FLOAT16":
		return Float16, nil
	case "int32", "INT32":
		return Int32, nil
	}
	return 0, fmt.Errorf("tensor: unknown dtype %q", s)
}

// Tensor is a dense row-major buffer. Exactly one of the typed backing
// slices is non-nil, matching DType.
type Tensor struct {
	shape []int
	dtype DType

	f32 []float32
	f16 []float16.Float16
	i32 []int32
}

func (t *Tensor) Shape() []int { return append([]int(nil), t.shape...) }
func (t *Tensor) DType() DType { return t.dtype }

// Len is the total element count.
func (t *Tensor) Len() int { return numel(t.shape) }

func (t *Tensor) Float32s() []float32         { return t.f32 }
func (t *Tensor) Float16s() []float16.Float16 { return t.f16 }
func (t *Tensor) Int32s() []int32             { return t.i32 }

// RowLen is the element count of one index along axis 0.
func (t *Tensor) RowLen() int {
	if len(t.shape) == 0 {
		return 0
	}
	return numel(t.shape[1:])
}

// WriteRow copies src into row i (axis 0), converting to the tensor dtype.
// Rows are disjoint, so concurrent writers on different rows need no lock.
func (t *Tensor) WriteRow(i int, src []float32) error {
	n := t.RowLen()
	if len(src) != n {
		return fmt.Errorf("tensor: row length %d, want %d", len(src), n)
	}
	if i < 0 || i >= t.shape[0] {
		return fmt.Errorf("tensor: row %d out of range [0,%d)", i, t.shape[0])
	}
	off := i * n
	switch t.dtype {
	case Float32:
		copy(t.f32[off:off+n], src)
	case Float16:
		dst := t.f16[off : off+n]
		for j, v := range src {
			dst[j] = float16.Fromfloat32(v)
		}
	default:
		return fmt.Errorf("tensor: WriteRow on %s tensor", t.dtype)
	}
	return nil
}

// Float32At reads element i of a floating point tensor.
func (t *Tensor) Float32At(i int) float32 {
	switch t.dtype {
	case Float16:
		return t.f16[i].Float32()
	case Int32:
		return float32(t.i32[i])
	default:
		return t.f32[i]
	}
}

func numel(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
