package transform

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

var (
	ErrInvalidBoundingBox = errors.New("transform: bounding box outside image")
	ErrDimensionTooSmall  = errors.New("transform: image smaller than crop")
)

type BoundingBox struct {
	YMin   int
	XMin   int
	Height int
	Width  int
}

type RescaleMode int

const (
	// RescaleAlways resizes so the short side equals Target (scale).
	RescaleAlways RescaleMode = iota
	// RescaleUpOnly resizes only when the short side is below Target (minsize).
	RescaleUpOnly
)

type RescalePolicy struct {
	Mode   RescaleMode
	Target int
	Warp   bool
}

// Size returns the post-rescale geometry for a w x h image.
func (p RescalePolicy) Size(w, h int) (int, int) {
	if p.Mode == RescaleUpOnly && min(w, h) >= p.Target {
		return w, h
	}
	if p.Warp {
		return p.Target, p.Target
	}
	if h > w {
		return p.Target, int(float64(h) * float64(p.Target) / float64(w))
	}
	return int(float64(w) * float64(p.Target) / float64(h)), p.Target
}

type CropPolicy struct {
	Size   int
	Center bool
}

// Offset picks the crop start along an axis of length dim. Random offsets
// are uniform over [0, dim-Size].
func (p CropPolicy) Offset(dim int, rng *rand.Rand) (int, error) {
	if dim < p.Size {
		return 0, fmt.Errorf("%w: %d < %d", ErrDimensionTooSmall, dim, p.Size)
	}
	if p.Center {
		return (dim - p.Size) / 2, nil
	}
	return rng.IntN(dim - p.Size + 1), nil
}

// Options is the raw, flag-shaped description of a transform.
type Options struct {
	Channels    int
	Crop        int
	Scale       int
	MinSize     int
	Warp        bool
	Mirror      bool
	IsTest      bool
	Mean        []float32
	Std         []float32
	BoundingBox *BoundingBox
}

// Config is Options resolved into the policies applied per sample.
type Config struct {
	Channels    int
	BoundingBox *BoundingBox
	Rescale     RescalePolicy
	Crop        CropPolicy
	Mirror      bool
	Mean        []float32
	Std         []float32
}

// SampleLen is the float count of one transformed sample.
func (c Config) SampleLen() int { return c.Crop.Size * c.Crop.Size * c.Channels }

func Resolve(o Options) (Config, error) {
	if o.Crop <= 0 {
		return Config{}, fmt.Errorf("transform: crop must be positive, got %d", o.Crop)
	}
	if (o.Scale > 0) == (o.MinSize > 0) {
		return Config{}, errors.New("transform: exactly one of scale and minsize must be set")
	}
	if len(o.Mean) != o.Channels || len(o.Std) != o.Channels {
		return Config{}, fmt.Errorf("transform: mean/std need %d values, got %d/%d", o.Channels, len(o.Mean), len(o.Std))
	}
	c := Config{
		Channels:    o.Channels,
		BoundingBox: o.BoundingBox,
		Crop:        CropPolicy{Size: o.Crop, Center: o.IsTest},
		Mirror:      o.Mirror && !o.IsTest,
		Mean:        append([]float32(nil), o.Mean...),
		Std:         append([]float32(nil), o.Std...),
	}
	if o.Scale > 0 {
		c.Rescale = RescalePolicy{Mode: RescaleAlways, Target: o.Scale, Warp: o.Warp}
	} else {
		c.Rescale = RescalePolicy{Mode: RescaleUpOnly, Target: o.MinSize, Warp: o.Warp}
	}
	return c, nil
}
