package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"imagefeed/internal/pipeline"
	"imagefeed/internal/spec"
	"imagefeed/internal/telemetry"
	"imagefeed/internal/transport"
	"imagefeed/sink"
	"imagefeed/sink/kafka"
	"imagefeed/sink/stdout"
)

type Config struct {
	GRPCPort    int // 0 disables the control server
	MetricsPort int // 0 disables /metrics
	PipelineYml string
}

func Bootstrap(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.PipelineYml == "" {
		return nil, errors.New("engine: pipeline spec path is required")
	}

	// 1. pipeline + metrics
	reg := telemetry.NewRegistry()
	pipe, f, err := pipeline.Compile(cfg.PipelineYml, pipeline.WithObserver(telemetry.NewMetrics(reg)))
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	// 2. sinks
	e := New(pipe, nil, Debug{
		MaxBatches:    f.Debug.MaxBatches,
		BatchDelay:    time.Duration(f.Debug.BatchDelayMS) * time.Millisecond,
		BatchesPerSec: f.Debug.BatchesPerSec,
		Burst:         f.Debug.Burst,
	})
	if e.sinks, err = compileSinks(f, e.delivered); err != nil {
		_ = pipe.Close()
		return nil, err
	}
	if len(e.sinks) == 0 && cfg.GRPCPort == 0 {
		_ = e.shutdown(ctx)
		return nil, errors.New("engine: no sinks and no control port; nothing would consume batches")
	}

	// 3. transport server
	if cfg.GRPCPort > 0 {
		if e.transport, err = transport.StartServer(cfg.GRPCPort, e); err != nil {
			_ = e.shutdown(ctx)
			return nil, fmt.Errorf("transport: %w", err)
		}
	}

	// 4. metrics
	if cfg.MetricsPort > 0 {
		e.metrics = telemetry.Expose(cfg.MetricsPort, reg)
	}
	return e, nil
}

func compileSinks(f spec.File, ack sink.EmitFn) ([]sink.Adapter, error) {
	var out []sink.Adapter
	closeAll := func() {
		for _, s := range out {
			_ = s.Close()
		}
	}
	for _, name := range f.Sinks {
		a, err := sink.NewAdapter(name)
		if err != nil {
			closeAll()
			return nil, err
		}
		var conf any
		switch name {
		case "stdout":
			c := f.SinkConfigs.Stdout
			conf = stdout.Config{MaxLabels: c.MaxLabels, BatchSize: c.AckBatchSize, FlushMS: c.AckFlushMS}
		case "kafka":
			c := f.SinkConfigs.Kafka
			conf = kafka.Config{
				Brokers:         c.Brokers,
				Topic:           c.Topic,
				Acks:            c.RequiredAcks,
				Version:         c.Version,
				Compression:     c.Compression,
				MaxMessageBytes: c.MaxMessageBytes,
			}
		}
		if err := a.Configure(conf); err != nil {
			closeAll()
			return nil, fmt.Errorf("sink %s: %w", name, err)
		}
		if aa, ok := a.(sink.AckAware); ok {
			aa.BindAck(ack)
		}
		out = append(out, a)
	}
	return out, nil
}
