package tensor

import (
	"fmt"

	"github.com/x448/float16"
)

// Allocator hands out contiguous buffers of a given shape and dtype.
type Allocator interface {
	Alloc(dt DType, shape ...int) (*Tensor, error)
}

// Host allocates on the Go heap.
type Host struct{}

func (Host) Alloc(dt DType, shape ...int) (*Tensor, error) {
	if len(shape) == 0 {
		return nil, fmt.Errorf("tensor: empty shape")
	}
	for _, d := range shape {
		if d <= 0 {
			return nil, fmt.Errorf("tensor: invalid shape %v", shape)
		}
	}
	t := &Tensor{shape: append([]int(nil), shape...), dtype: dt}
	n := numel(shape)
	switch dt {
	case Float32:
		t.f32 = make([]float32, n)
	case Float16:
		t.f16 = make([]float16.Float16, n)
	case Int32:
		t.i32 = make([]int32, n)
	default:
		return nil, fmt.Errorf("tensor: unsupported dtype %s", dt)
	}
	return t, nil
}
