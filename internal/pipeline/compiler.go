package pipeline

import (
	"fmt"

	"imagefeed/internal/config"
	"imagefeed/internal/spec"
	"imagefeed/internal/tensor"
	"imagefeed/internal/transform"
	"imagefeed/source"

	_ "imagefeed/source/folder"
	_ "imagefeed/source/kafka"
	_ "imagefeed/source/recordio"
)

// Compile loads a pipeline YAML, opens its record source and returns the
// running pipeline along with the parsed file for the caller's sinks.
func Compile(path string, opts ...Option) (*Pipeline, spec.File, error) {
	f, confPath, err := config.LoadPipelineSpec(path)
	if err != nil {
		return nil, f, err
	}
	cfg, err := ConfigFromSpec(f.Input)
	if err != nil {
		return nil, f, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, f, err
	}
	src, err := source.Open(f.Source.DBType, source.Options{DB: f.Source.DB, Config: confPath})
	if err != nil {
		return nil, f, fmt.Errorf("pipeline: open %s source: %w", f.Source.DBType, err)
	}
	p, err := New(cfg, src, opts...)
	if err != nil {
		_ = src.Close()
		return nil, f, err
	}
	return p, f, nil
}

// ConfigFromSpec overlays the YAML input section on DefaultConfig.
func ConfigFromSpec(in spec.Input) (Config, error) {
	cfg := DefaultConfig()
	cfg.BatchSize = in.BatchSize
	cfg.Color = in.Color
	if cfg.Color == 0 {
		cfg.Color = 1
	}
	cfg.Scale, cfg.MinSize, cfg.Warp = in.Scale, in.MinSize, in.Warp
	cfg.Crop, cfg.Mirror = in.Crop, in.Mirror
	cfg.Mean, cfg.MeanPerChannel = in.Mean, in.MeanPerChannel
	if in.Std != nil {
		cfg.Std = *in.Std
	}
	cfg.StdPerChannel = in.StdPerChannel
	cfg.IsTest = in.IsTest
	cfg.UseCaffeDatum = in.UseCaffeDatum
	cfg.UseGPUTransform = in.UseGPUTransform
	if in.DecodeThreads != 0 {
		cfg.DecodeThreads = in.DecodeThreads
	}
	if in.MaxRetries != nil {
		cfg.MaxRetries = *in.MaxRetries
	}
	cfg.Seed, cfg.Prefetch = in.Seed, in.Prefetch

	dt, err := tensor.ParseDType(in.OutputType)
	if err != nil {
		return cfg, configErr("output_type", "%v", err)
	}
	cfg.OutputType = dt

	bb, err := boundingBox(in)
	if err != nil {
		return cfg, err
	}
	cfg.BoundingBox = bb
	return cfg, nil
}

// boundingBox requires either all four bounding_* keys or none. A key set
// to -1 counts as unset.
func boundingBox(in spec.Input) (*transform.BoundingBox, error) {
	vals := []*int{in.BoundingYMin, in.BoundingXMin, in.BoundingHeight, in.BoundingWidth}
	set := 0
	for _, v := range vals {
		if v != nil && *v != -1 {
			set++
		}
	}
	switch set {
	case 0:
		return nil, nil
	case len(vals):
		return &transform.BoundingBox{
			YMin:   *in.BoundingYMin,
			XMin:   *in.BoundingXMin,
			Height: *in.BoundingHeight,
			Width:  *in.BoundingWidth,
		}, nil
	}
	return nil, configErr("bounding_box", "bounding_ymin, bounding_xmin, bounding_height and bounding_width must be set together")
}
