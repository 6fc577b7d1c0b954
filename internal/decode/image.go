package decode

import (
	"bytes"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Image decodes any format registered with the image package.
type Image struct {
	Channels int
}

func (d Image) Decode(b []byte) (RawImage, error) {
	if len(b) == 0 {
		return RawImage{}, decodeErr("empty payload")
	}
	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return RawImage{}, decodeErr("%v", err)
	}
	if r := img.Bounds(); r.Empty() {
		return RawImage{}, decodeErr("empty %dx%d image", r.Dx(), r.Dy())
	}
	return FromImage(img, d.Channels), nil
}

// FromImage converts img to a BGR (channels=3) or gray (channels=1) grid.
func FromImage(img image.Image, channels int) RawImage {
	r := img.Bounds()
	w, h := r.Dx(), r.Dy()
	out := RawImage{Width: w, Height: h, Channels: channels, Pix: make([]byte, w*h*channels)}

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < h; y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+w]
			if channels == 1 {
				copy(out.Pix[y*w:], row)
				continue
			}
			dst := out.Pix[y*w*3:]
			for x, v := range row {
				dst[3*x], dst[3*x+1], dst[3*x+2] = v, v, v
			}
		}
		return out
	case *image.NRGBA:
		if channels == 3 {
			for y := 0; y < h; y++ {
				row := src.Pix[y*src.Stride : y*src.Stride+4*w]
				dst := out.Pix[y*w*3:]
				for x := 0; x < w; x++ {
					dst[3*x], dst[3*x+1], dst[3*x+2] = row[4*x+2], row[4*x+1], row[4*x]
				}
			}
			return out
		}
	}

	i := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c := img.At(x, y)
			if channels == 1 {
				out.Pix[i] = color.GrayModel.Convert(c).(color.Gray).Y
				i++
				continue
			}
			n := color.NRGBAModel.Convert(c).(color.NRGBA)
			out.Pix[i], out.Pix[i+1], out.Pix[i+2] = n.B, n.G, n.R
			i += 3
		}
	}
	return out
}
