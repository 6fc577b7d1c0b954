// Package decode turns encoded record payloads into raw pixel grids.
//
// Two payload conventions are supported: generic image bytes (JPEG, PNG,
// GIF, BMP, TIFF, WebP) and the legacy Caffe Datum message. Pixels are
// always produced row-major, interleaved, in BGR order for colour images.
package decode

import (
	"errors"
	"fmt"
)

// ErrDecode marks a payload that could not be turned into an image.
var ErrDecode = errors.New("decode: malformed image")

// RawImage is an uncompressed HWC pixel grid.
type RawImage struct {
	Width    int
	Height   int
	Channels int
	Pix      []byte
}

func (m RawImage) Stride() int { return m.Width * m.Channels }

// Check rejects an empty grid or one whose Pix does not hold exactly
// Width*Height*Channels bytes.
func (m RawImage) Check() error {
	if m.Width <= 0 || m.Height <= 0 || m.Channels <= 0 {
		return decodeErr("empty %dx%dx%d image", m.Width, m.Height, m.Channels)
	}
	if len(m.Pix) != m.Width*m.Height*m.Channels {
		return decodeErr("%dx%dx%d image with %d pixel bytes", m.Width, m.Height, m.Channels, len(m.Pix))
	}
	return nil
}

// At returns the byte of channel c at (x, y).
func (m RawImage) At(x, y, c int) byte { return m.Pix[y*m.Stride()+x*m.Channels+c] }

type Decoder interface {
	Decode(b []byte) (RawImage, error)
}

// LabelDecoder is optional; formats that carry their own label implement it
// and the pipeline prefers the embedded label over the record label.
type LabelDecoder interface {
	DecodeLabeled(b []byte) (RawImage, int32, error)
}

// New returns the decoder for the configured record convention.
func New(channels int, caffeDatum bool) (Decoder, error) {
	if channels != 1 && channels != 3 {
		return nil, fmt.Errorf("decode: unsupported channel count %d", channels)
	}
	if caffeDatum {
		return Datum{Channels: channels}, nil
	}
	return Image{Channels: channels}, nil
}

func decodeErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDecode, fmt.Sprintf(format, args...))
}
