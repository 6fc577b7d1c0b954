package pipeline

import (
	"imagefeed/internal/tensor"
	"imagefeed/internal/transform"
)

const (
	DefaultDecodeThreads = 4
	DefaultMaxRetries    = 4
)

// Config is the validated set of pipeline parameters. Start from
// DefaultConfig; the zero value is rejected by Validate.
type Config struct {
	BatchSize int
	Color     int // 1 (grayscale) or 3 (BGR)

	// Exactly one of Scale and MinSize is set, and it exceeds Crop.
	Scale   int
	MinSize int
	Warp    bool
	Crop    int
	Mirror  bool

	Mean           float32
	MeanPerChannel []float32
	Std            float32
	StdPerChannel  []float32

	BoundingBox *transform.BoundingBox

	IsTest          bool
	UseCaffeDatum   bool
	UseGPUTransform bool
	DecodeThreads   int
	OutputType      tensor.DType
	Seed            uint64
	MaxRetries      int
	Prefetch        bool
}

func DefaultConfig() Config {
	return Config{
		Color:         3,
		Std:           1,
		DecodeThreads: DefaultDecodeThreads,
		OutputType:    tensor.Float32,
		MaxRetries:    DefaultMaxRetries,
	}
}

// Validate returns a *ConfigError for the first rule the config breaks.
func (c Config) Validate() error {
	switch {
	case c.BatchSize < 1:
		return configErr("batch_size", "must be at least 1, got %d", c.BatchSize)
	case c.Color != 1 && c.Color != 3:
		return configErr("color", "must be 1 or 3, got %d", c.Color)
	case c.Crop <= 0:
		return configErr("crop", "must be positive, got %d", c.Crop)
	case c.Scale > 0 && c.MinSize > 0:
		return configErr("scale", "scale and minsize are mutually exclusive")
	case c.Scale <= 0 && c.MinSize <= 0:
		return configErr("scale", "one of scale or minsize is required")
	case c.Scale > 0 && c.Scale <= c.Crop:
		return configErr("scale", "must be larger than crop (%d <= %d)", c.Scale, c.Crop)
	case c.MinSize > 0 && c.MinSize <= c.Crop:
		return configErr("minsize", "must be larger than crop (%d <= %d)", c.MinSize, c.Crop)
	case len(c.MeanPerChannel) > 0 && len(c.MeanPerChannel) != c.Color:
		return configErr("mean_per_channel", "need %d values, got %d", c.Color, len(c.MeanPerChannel))
	case len(c.StdPerChannel) > 0 && len(c.StdPerChannel) != c.Color:
		return configErr("std_per_channel", "need %d values, got %d", c.Color, len(c.StdPerChannel))
	case c.DecodeThreads < 1:
		return configErr("decode_threads", "must be at least 1, got %d", c.DecodeThreads)
	case c.MaxRetries < 0:
		return configErr("max_retries", "must not be negative, got %d", c.MaxRetries)
	case c.OutputType != tensor.Float32 && c.OutputType != tensor.Float16:
		return configErr("output_type", "unsupported %s", c.OutputType)
	case c.OutputType == tensor.Float16 && !c.UseGPUTransform:
		return configErr("output_type", "float16 requires use_gpu_transform")
	case c.UseGPUTransform && !transform.Registered(transform.DeviceStage):
		return configErr("use_gpu_transform", "no %q transform stage registered", transform.DeviceStage)
	}
	for k, s := range c.stds() {
		if s == 0 {
			return configErr("std", "channel %d is zero", k)
		}
	}
	if bb := c.BoundingBox; bb != nil {
		if bb.YMin < 0 || bb.XMin < 0 || bb.Height <= 0 || bb.Width <= 0 {
			return configErr("bounding_box", "need ymin,xmin >= 0 and height,width > 0, got %+v", *bb)
		}
	}
	return nil
}

func (c Config) means() []float32 { return perChannel(c.MeanPerChannel, c.Mean, c.Color) }
func (c Config) stds() []float32  { return perChannel(c.StdPerChannel, c.Std, c.Color) }

func perChannel(v []float32, scalar float32, n int) []float32 {
	if len(v) > 0 {
		return append([]float32(nil), v...)
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = scalar
	}
	return out
}

func (c Config) transformOptions() transform.Options {
	return transform.Options{
		Channels:    c.Color,
		Crop:        c.Crop,
		Scale:       c.Scale,
		MinSize:     c.MinSize,
		Warp:        c.Warp,
		Mirror:      c.Mirror,
		IsTest:      c.IsTest,
		Mean:        c.means(),
		Std:         c.stds(),
		BoundingBox: c.BoundingBox,
	}
}

func (c Config) stageName() string {
	if c.UseGPUTransform {
		return transform.DeviceStage
	}
	return transform.HostStage
}
