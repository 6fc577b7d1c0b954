package transform

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"imagefeed/internal/decode"
)

func constantBGR(w, h int, b, g, r byte) decode.RawImage {
	img := decode.RawImage{Width: w, Height: h, Channels: 3, Pix: make([]byte, w*h*3)}
	for i := 0; i < len(img.Pix); i += 3 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2] = b, g, r
	}
	return img
}

// gradient returns a gray image whose pixel at (x, y) is x + 10*y.
func gradient(w, h int) decode.RawImage {
	img := decode.RawImage{Width: w, Height: h, Channels: 1, Pix: make([]byte, w*h)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Pix[y*w+x] = byte(x + 10*y)
		}
	}
	return img
}

func mustResolve(t *testing.T, o Options) Config {
	t.Helper()
	c, err := Resolve(o)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return c
}

func TestHost_NormalizesConstantImageExactly(t *testing.T) {
	mean := []float32{1, 2, 3}
	std := []float32{2, 4, 8}
	cfg := mustResolve(t, Options{Channels: 3, Crop: 8, MinSize: 9, IsTest: true, Mean: mean, Std: std})
	out := make([]float32, cfg.SampleLen())
	if err := NewHost(cfg).Transform(constantBGR(10, 12, 50, 100, 150), nil, out); err != nil {
		t.Fatalf("Transform: %v", err)
	}
	px := []float32{50, 100, 150}
	for i, v := range out {
		c := i % 3
		if want := (px[c] - mean[c]) / std[c]; v != want {
			t.Fatalf("value %d channel %d: got %v want %v", i, c, v, want)
		}
	}
}

func TestHost_CenterCropIsDeterministic(t *testing.T) {
	cfg := mustResolve(t, Options{Channels: 1, Crop: 5, MinSize: 6, IsTest: true, Mean: []float32{0}, Std: []float32{1}})
	h := NewHost(cfg)
	a := make([]float32, cfg.SampleLen())
	b := make([]float32, cfg.SampleLen())
	img := gradient(9, 7)
	if err := h.Transform(img, nil, a); err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if err := h.Transform(img, nil, b); err != nil {
		t.Fatalf("Transform: %v", err)
	}
	// offsets: y = (7-5)/2 = 1, x = (9-5)/2 = 2
	if a[0] != float32(2+10*1) {
		t.Fatalf("top-left got %v want 12", a[0])
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("outputs differ at %d", i)
		}
	}
}

func TestRescalePolicy_Size(t *testing.T) {
	cases := []struct {
		name   string
		p      RescalePolicy
		w, h   int
		ww, wh int
	}{
		{"minsize leaves larger image", RescalePolicy{Mode: RescaleUpOnly, Target: 8}, 10, 12, 10, 12},
		{"minsize scales smaller image up", RescalePolicy{Mode: RescaleUpOnly, Target: 8}, 4, 6, 8, 12},
		{"minsize warp", RescalePolicy{Mode: RescaleUpOnly, Target: 8, Warp: true}, 4, 6, 8, 8},
		{"scale down proportional", RescalePolicy{Mode: RescaleAlways, Target: 8}, 20, 16, 10, 8},
		{"scale up proportional", RescalePolicy{Mode: RescaleAlways, Target: 8}, 4, 6, 8, 12},
		{"scale warp", RescalePolicy{Mode: RescaleAlways, Target: 8, Warp: true}, 20, 16, 8, 8},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, h := tc.p.Size(tc.w, tc.h)
			if w != tc.ww || h != tc.wh {
				t.Fatalf("got %dx%d want %dx%d", w, h, tc.ww, tc.wh)
			}
		})
	}
}

func TestHost_MinsizeUpscalesSmallImage(t *testing.T) {
	cfg := mustResolve(t, Options{Channels: 3, Crop: 5, MinSize: 6, IsTest: true, Mean: []float32{0, 0, 0}, Std: []float32{1, 1, 1}})
	out := make([]float32, cfg.SampleLen())
	if err := NewHost(cfg).Transform(constantBGR(3, 4, 9, 9, 9), nil, out); err != nil {
		t.Fatalf("Transform of upscaled image: %v", err)
	}
}

func TestHost_BoundingBox(t *testing.T) {
	base := Options{Channels: 1, Crop: 2, MinSize: 2, IsTest: true, Mean: []float32{0}, Std: []float32{1}}

	ok := base
	ok.BoundingBox = &BoundingBox{YMin: 3, XMin: 4, Height: 2, Width: 2}
	cfg := mustResolve(t, ok)
	out := make([]float32, cfg.SampleLen())
	if err := NewHost(cfg).Transform(gradient(8, 8), nil, out); err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if want := []float32{34, 35, 44, 45}; out[0] != want[0] || out[3] != want[3] {
		t.Fatalf("got %v want %v", out, want)
	}

	bad := base
	bad.BoundingBox = &BoundingBox{YMin: 5, XMin: 0, Height: 4, Width: 2}
	cfg = mustResolve(t, bad)
	err := NewHost(cfg).Transform(gradient(8, 8), nil, out)
	if !errors.Is(err, ErrInvalidBoundingBox) {
		t.Fatalf("want ErrInvalidBoundingBox, got %v", err)
	}
}

func TestHost_RejectsBadGeometry(t *testing.T) {
	cfg := mustResolve(t, Options{Channels: 3, Crop: 4, Scale: 6, Mean: []float32{0, 0, 0}, Std: []float32{1, 1, 1}})
	out := make([]float32, cfg.SampleLen())
	rng := rand.New(rand.NewPCG(1, 2))
	for name, img := range map[string]decode.RawImage{
		"zero width": {Width: 0, Height: 4, Channels: 3},
		"short pix":  {Width: 8, Height: 8, Channels: 3, Pix: make([]byte, 10)},
	} {
		if err := NewHost(cfg).Transform(img, rng, out); !errors.Is(err, decode.ErrDecode) {
			t.Fatalf("%s: want decode.ErrDecode, got %v", name, err)
		}
	}
}

func TestCropPolicy_TooSmall(t *testing.T) {
	_, err := CropPolicy{Size: 5, Center: true}.Offset(3, nil)
	if !errors.Is(err, ErrDimensionTooSmall) {
		t.Fatalf("want ErrDimensionTooSmall, got %v", err)
	}
}

func TestCropPolicy_RandomOffsetsAreUniform(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	p := CropPolicy{Size: 2}
	const draws = 10000
	counts := make([]int, 5) // dim 6, crop 2 -> offsets 0..4
	for i := 0; i < draws; i++ {
		off, err := p.Offset(6, rng)
		if err != nil {
			t.Fatalf("Offset: %v", err)
		}
		counts[off]++
	}
	expect := float64(draws) / float64(len(counts))
	for off, n := range counts {
		if math.Abs(float64(n)-expect) > 0.1*expect {
			t.Fatalf("offset %d drawn %d times, expected about %.0f (%v)", off, n, expect, counts)
		}
	}
}

func TestHost_MirrorProbability(t *testing.T) {
	cfg := mustResolve(t, Options{Channels: 1, Crop: 4, MinSize: 4, Mirror: true, Mean: []float32{0}, Std: []float32{1}})
	h := NewHost(cfg)
	img := gradient(4, 4)
	out := make([]float32, cfg.SampleLen())
	rng := rand.New(rand.NewPCG(3, 5))
	mirrored := 0
	const runs = 4000
	for i := 0; i < runs; i++ {
		if err := h.Transform(img, rng, out); err != nil {
			t.Fatalf("Transform: %v", err)
		}
		switch out[0] {
		case 3:
			mirrored++
		case 0:
		default:
			t.Fatalf("unexpected top-left %v", out[0])
		}
	}
	if frac := float64(mirrored) / runs; frac < 0.45 || frac > 0.55 {
		t.Fatalf("mirror fraction %.3f", frac)
	}
}

func TestResolve_TestModeNeverMirrors(t *testing.T) {
	cfg := mustResolve(t, Options{Channels: 1, Crop: 4, MinSize: 4, Mirror: true, IsTest: true, Mean: []float32{0}, Std: []float32{1}})
	if cfg.Mirror || !cfg.Crop.Center {
		t.Fatalf("test mode resolved to mirror=%v center=%v", cfg.Mirror, cfg.Crop.Center)
	}
}

func TestResolve_Rejects(t *testing.T) {
	one := []float32{0}
	cases := map[string]Options{
		"no crop":       {Channels: 1, Scale: 8, Mean: one, Std: one},
		"scale+minsize": {Channels: 1, Crop: 4, Scale: 8, MinSize: 8, Mean: one, Std: one},
		"neither":       {Channels: 1, Crop: 4, Mean: one, Std: one},
		"short mean":    {Channels: 3, Crop: 4, Scale: 8, Mean: one, Std: []float32{1, 1, 1}},
	}
	for name, o := range cases {
		if _, err := Resolve(o); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestRegistry(t *testing.T) {
	cfg := mustResolve(t, Options{Channels: 1, Crop: 4, Scale: 8, Mean: []float32{0}, Std: []float32{1}})
	if _, err := New(HostStage, cfg); err != nil {
		t.Fatalf("host stage: %v", err)
	}
	if Registered("no-such-stage") {
		t.Fatal("unexpected registration")
	}
	if _, err := New("no-such-stage", cfg); err == nil {
		t.Fatal("expected error for unknown stage")
	}
}
