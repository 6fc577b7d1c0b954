// Package wire is the protobuf encoding of an assembled batch, shared by the
// control service and the kafka sink.
//
//	message Batch {
//	  string id = 1;
//	  uint64 seq = 2;
//	  repeated int64 shape = 3;  // images tensor
//	  int32 dtype = 4;           // tensor.DType
//	  bytes data = 5;            // little-endian elements
//	  repeated int32 labels = 6;
//	}
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/x448/float16"
	"google.golang.org/protobuf/encoding/protowire"

	"imagefeed/internal/pipeline"
	"imagefeed/internal/tensor"
)

var ErrMalformed = errors.New("wire: malformed batch")

const (
	fieldID     protowire.Number = 1
	fieldSeq    protowire.Number = 2
	fieldShape  protowire.Number = 3
	fieldDType  protowire.Number = 4
	fieldData   protowire.Number = 5
	fieldLabels protowire.Number = 6
)

func AppendBatch(b []byte, bt *pipeline.Batch) []byte {
	img := bt.Images
	b = protowire.AppendTag(b, fieldID, protowire.BytesType)
	b = protowire.AppendString(b, bt.ID)
	b = protowire.AppendTag(b, fieldSeq, protowire.VarintType)
	b = protowire.AppendVarint(b, bt.Seq)

	var shape []byte
	for _, d := range img.Shape() {
		shape = protowire.AppendVarint(shape, uint64(d))
	}
	b = protowire.AppendTag(b, fieldShape, protowire.BytesType)
	b = protowire.AppendBytes(b, shape)
	b = protowire.AppendTag(b, fieldDType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(img.DType()))

	b = protowire.AppendTag(b, fieldData, protowire.BytesType)
	b = protowire.AppendBytes(b, elementBytes(img))

	var labels []byte
	for _, l := range bt.Labels.Int32s() {
		labels = protowire.AppendVarint(labels, uint64(int64(l)))
	}
	b = protowire.AppendTag(b, fieldLabels, protowire.BytesType)
	return protowire.AppendBytes(b, labels)
}

func EncodeBatch(bt *pipeline.Batch) []byte { return AppendBatch(nil, bt) }

func elementBytes(t *tensor.Tensor) []byte {
	switch t.DType() {
	case tensor.Float16:
		out := make([]byte, 0, 2*t.Len())
		for _, v := range t.Float16s() {
			out = binary.LittleEndian.AppendUint16(out, v.Bits())
		}
		return out
	case tensor.Int32:
		out := make([]byte, 0, 4*t.Len())
		for _, v := range t.Int32s() {
			out = binary.LittleEndian.AppendUint32(out, uint32(v))
		}
		return out
	default:
		out := make([]byte, 0, 4*t.Len())
		for _, v := range t.Float32s() {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
		}
		return out
	}
}

// DecodeBatch parses an encoded batch into freshly allocated host tensors.
func DecodeBatch(b []byte) (*pipeline.Batch, error) {
	var (
		bt     pipeline.Batch
		shape  []int
		dtype  tensor.DType
		data   []byte
		labels []int32
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, malformed(protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == fieldID && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, malformed(protowire.ParseError(n))
			}
			bt.ID, b = v, b[n:]
		case num == fieldSeq && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, malformed(protowire.ParseError(n))
			}
			bt.Seq, b = v, b[n:]
		case num == fieldDType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, malformed(protowire.ParseError(n))
			}
			dtype, b = tensor.DType(v), b[n:]
		case num == fieldData && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, malformed(protowire.ParseError(n))
			}
			data, b = v, b[n:]
		case (num == fieldShape || num == fieldLabels) && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, malformed(protowire.ParseError(n))
			}
			b = b[n:]
			for len(v) > 0 {
				x, m := protowire.ConsumeVarint(v)
				if m < 0 {
					return nil, malformed(protowire.ParseError(m))
				}
				v = v[m:]
				if num == fieldShape {
					shape = append(shape, int(x))
				} else {
					labels = append(labels, int32(x))
				}
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, malformed(protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	img, err := tensor.Host{}.Alloc(dtype, shape...)
	if err != nil {
		return nil, malformed(err)
	}
	if err := fillElements(img, data); err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		return nil, malformed(errors.New("no labels"))
	}
	lbl, err := tensor.Host{}.Alloc(tensor.Int32, 1, len(labels))
	if err != nil {
		return nil, malformed(err)
	}
	copy(lbl.Int32s(), labels)
	bt.Images, bt.Labels = img, lbl
	return &bt, nil
}

func fillElements(t *tensor.Tensor, data []byte) error {
	size := 4
	if t.DType() == tensor.Float16 {
		size = 2
	}
	if len(data) != size*t.Len() {
		return malformed(fmt.Errorf("data holds %d bytes, want %d", len(data), size*t.Len()))
	}
	switch t.DType() {
	case tensor.Float16:
		dst := t.Float16s()
		for i := range dst {
			dst[i] = float16.Frombits(binary.LittleEndian.Uint16(data[2*i:]))
		}
	case tensor.Int32:
		dst := t.Int32s()
		for i := range dst {
			dst[i] = int32(binary.LittleEndian.Uint32(data[4*i:]))
		}
	default:
		dst := t.Float32s()
		for i := range dst {
			dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
		}
	}
	return nil
}

func malformed(err error) error { return fmt.Errorf("%w: %w", ErrMalformed, err) }
