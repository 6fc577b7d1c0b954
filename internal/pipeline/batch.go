package pipeline

import "imagefeed/internal/tensor"

// Batch is one assembled output: Images is [N, crop, crop, C] in BGR order
// and Labels is [1, N]. The tensors are reused by the pipeline and are only
// valid until the next call to Run.
type Batch struct {
	ID     string
	Seq    uint64
	Images *tensor.Tensor
	Labels *tensor.Tensor
}

func (b *Batch) Size() int { return len(b.Labels.Int32s()) }

// LabelSlice returns a copy of the batch labels.
func (b *Batch) LabelSlice() []int32 { return append([]int32(nil), b.Labels.Int32s()...) }
