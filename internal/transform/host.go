package transform

import (
	"fmt"
	"image"
	"math/rand/v2"

	"golang.org/x/image/draw"

	"imagefeed/internal/decode"
)

// Host runs the whole transform on the CPU.
type Host struct {
	cfg Config
}

func NewHost(cfg Config) *Host { return &Host{cfg: cfg} }

func (h *Host) Transform(img decode.RawImage, rng *rand.Rand, dst []float32) error {
	c := h.cfg
	if err := img.Check(); err != nil {
		return err
	}
	if img.Channels != c.Channels {
		return fmt.Errorf("transform: image has %d channels, want %d", img.Channels, c.Channels)
	}
	if len(dst) != c.SampleLen() {
		return fmt.Errorf("transform: output holds %d values, want %d", len(dst), c.SampleLen())
	}

	var err error
	if c.BoundingBox != nil {
		if img, err = cropBox(img, *c.BoundingBox); err != nil {
			return err
		}
	}
	if w, h := c.Rescale.Size(img.Width, img.Height); w != img.Width || h != img.Height {
		img = resize(img, w, h)
	}

	y0, err := c.Crop.Offset(img.Height, rng)
	if err != nil {
		return err
	}
	x0, err := c.Crop.Offset(img.Width, rng)
	if err != nil {
		return err
	}
	mirror := c.Mirror && rng.IntN(2) == 1

	n, ch := c.Crop.Size, c.Channels
	stride := img.Stride()
	for y := 0; y < n; y++ {
		row := img.Pix[(y0+y)*stride:]
		for x := 0; x < n; x++ {
			sx := x0 + x
			if mirror {
				sx = x0 + n - 1 - x
			}
			src := row[sx*ch : sx*ch+ch]
			out := dst[(y*n+x)*ch : (y*n+x)*ch+ch]
			for k, v := range src {
				out[k] = (float32(v) - c.Mean[k]) / c.Std[k]
			}
		}
	}
	return nil
}

func cropBox(img decode.RawImage, bb BoundingBox) (decode.RawImage, error) {
	if bb.YMin+bb.Height > img.Height || bb.XMin+bb.Width > img.Width {
		return img, fmt.Errorf("%w: box y=%d x=%d h=%d w=%d on %dx%d image",
			ErrInvalidBoundingBox, bb.YMin, bb.XMin, bb.Height, bb.Width, img.Width, img.Height)
	}
	out := decode.RawImage{Width: bb.Width, Height: bb.Height, Channels: img.Channels,
		Pix: make([]byte, bb.Width*bb.Height*img.Channels)}
	rowLen := out.Stride()
	for y := 0; y < bb.Height; y++ {
		off := (bb.YMin+y)*img.Stride() + bb.XMin*img.Channels
		copy(out.Pix[y*rowLen:], img.Pix[off:off+rowLen])
	}
	return out, nil
}

// resize scales bilinearly. Colour grids travel through image.RGBA with the
// BGR bytes in the RGB slots; channel meaning does not matter to the kernel.
func resize(img decode.RawImage, w, h int) decode.RawImage {
	srcRect := image.Rect(0, 0, img.Width, img.Height)
	dstRect := image.Rect(0, 0, w, h)
	if img.Channels == 1 {
		src := &image.Gray{Pix: img.Pix, Stride: img.Width, Rect: srcRect}
		dst := image.NewGray(dstRect)
		draw.BiLinear.Scale(dst, dstRect, src, srcRect, draw.Src, nil)
		return decode.RawImage{Width: w, Height: h, Channels: 1, Pix: dst.Pix}
	}

	src := image.NewRGBA(srcRect)
	for i, j := 0, 0; i < len(img.Pix); i, j = i+3, j+4 {
		src.Pix[j], src.Pix[j+1], src.Pix[j+2], src.Pix[j+3] = img.Pix[i], img.Pix[i+1], img.Pix[i+2], 0xff
	}
	dst := image.NewRGBA(dstRect)
	draw.BiLinear.Scale(dst, dstRect, src, srcRect, draw.Src, nil)

	out := decode.RawImage{Width: w, Height: h, Channels: 3, Pix: make([]byte, w*h*3)}
	for i, j := 0, 0; i < len(out.Pix); i, j = i+3, j+4 {
		out.Pix[i], out.Pix[i+1], out.Pix[i+2] = dst.Pix[j], dst.Pix[j+1], dst.Pix[j+2]
	}
	return out
}
