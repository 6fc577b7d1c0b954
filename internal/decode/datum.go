package decode

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// Caffe Datum field numbers.
const (
	datumChannels protowire.Number = 1
	datumHeight   protowire.Number = 2
	datumWidth    protowire.Number = 3
	datumData     protowire.Number = 4
	datumLabel    protowire.Number = 5
	datumEncoded  protowire.Number = 7
)

// DatumMessage mirrors the subset of caffe.Datum the pipeline reads.
// Raw (non-encoded) data is stored CHW, BGR.
type DatumMessage struct {
	Channels int32
	Height   int32
	Width    int32
	Data     []byte
	Label    int32
	Encoded  bool
}

// Datum decodes records stored as serialized Caffe Datum messages.
type Datum struct {
	Channels int
}

func (d Datum) Decode(b []byte) (RawImage, error) {
	img, _, err := d.DecodeLabeled(b)
	return img, err
}

func (d Datum) DecodeLabeled(b []byte) (RawImage, int32, error) {
	m, err := ParseDatum(b)
	if err != nil {
		return RawImage{}, 0, err
	}
	if m.Encoded {
		img, err := Image{Channels: d.Channels}.Decode(m.Data)
		return img, m.Label, err
	}
	c, h, w := int(m.Channels), int(m.Height), int(m.Width)
	if c != d.Channels {
		return RawImage{}, 0, decodeErr("datum has %d channels, want %d", c, d.Channels)
	}
	if h <= 0 || w <= 0 || len(m.Data) != c*h*w {
		return RawImage{}, 0, decodeErr("datum %dx%dx%d with %d data bytes", c, h, w, len(m.Data))
	}
	out := RawImage{Width: w, Height: h, Channels: c, Pix: make([]byte, len(m.Data))}
	plane := h * w
	for ch := 0; ch < c; ch++ {
		src := m.Data[ch*plane : (ch+1)*plane]
		for i, v := range src {
			out.Pix[i*c+ch] = v
		}
	}
	return out, m.Label, nil
}

// ParseDatum reads the wire form of a caffe.Datum, skipping unknown fields.
func ParseDatum(b []byte) (DatumMessage, error) {
	var m DatumMessage
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return m, decodeErr("datum tag: %v", protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case typ == protowire.VarintType && num != datumData:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return m, decodeErr("datum field %d: %v", num, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case datumChannels:
				m.Channels = int32(v)
			case datumHeight:
				m.Height = int32(v)
			case datumWidth:
				m.Width = int32(v)
			case datumLabel:
				m.Label = int32(v)
			case datumEncoded:
				m.Encoded = protowire.DecodeBool(v)
			}
		case typ == protowire.BytesType && num == datumData:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return m, decodeErr("datum data: %v", protowire.ParseError(n))
			}
			m.Data = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return m, decodeErr("datum field %d: %v", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return m, nil
}

// AppendDatum appends the wire form of m to b.
func AppendDatum(b []byte, m DatumMessage) []byte {
	b = protowire.AppendTag(b, datumChannels, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(int64(m.Channels)))
	b = protowire.AppendTag(b, datumHeight, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(int64(m.Height)))
	b = protowire.AppendTag(b, datumWidth, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(int64(m.Width)))
	b = protowire.AppendTag(b, datumData, protowire.BytesType)
	b = protowire.AppendBytes(b, m.Data)
	b = protowire.AppendTag(b, datumLabel, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(int64(m.Label)))
	if m.Encoded {
		b = protowire.AppendTag(b, datumEncoded, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}
	return b
}
