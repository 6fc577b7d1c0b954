// Package stdout prints a one-line summary per batch.
package stdout

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"imagefeed/internal/pipeline"
	"imagefeed/sink"
)

type Config struct {
	DelayMS   int `yaml:"delay_ms"`       // artificial per-batch delay
	MaxLabels int `yaml:"max_labels"`     // labels echoed per line, 0 = none
	BatchSize int `yaml:"ack_batch_size"` // 0 = ack every batch
	FlushMS   int `yaml:"ack_flush_ms"`   // 0 = disabled
}

type pendingAck struct {
	id  string
	seq uint64
}

type driver struct {
	cfg Config
	out io.Writer
	ack sink.EmitFn
	seq atomic.Uint64

	mu      sync.Mutex // guards pending+timer
	pending []pendingAck
	timer   *time.Timer // nil → no timer armed
}

func (d *driver) Configure(raw any) error {
	c, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("stdout-sink: expected Config, got %T", raw)
	}
	d.cfg = c
	return nil
}

func (d *driver) Push(b *pipeline.Batch) error {
	if d.cfg.DelayMS > 0 {
		time.Sleep(time.Duration(d.cfg.DelayMS) * time.Millisecond)
	}
	if _, err := fmt.Fprintln(d.out, d.summary(b)); err != nil {
		return fmt.Errorf("stdout-sink: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = append(d.pending, pendingAck{id: b.ID, seq: b.Seq})

	// flush on batch size
	if d.cfg.BatchSize <= 1 || len(d.pending) >= d.cfg.BatchSize {
		d.flushLocked()
		return nil
	}
	// (re)arm the one-shot timer
	if d.cfg.FlushMS > 0 && d.timer == nil {
		d.timer = time.AfterFunc(time.Duration(d.cfg.FlushMS)*time.Millisecond, d.timerFlush)
	}
	return nil
}

func (d *driver) summary(b *pipeline.Batch) string {
	img := b.Images
	var sum float64
	for i := 0; i < img.Len(); i++ {
		sum += float64(img.Float32At(i))
	}
	line := fmt.Sprintf("[sink %06d] batch %d id=%s images=%v %s mean=%.4f",
		d.seq.Add(1), b.Seq, b.ID, img.Shape(), img.DType(), sum/float64(img.Len()))
	if n := min(d.cfg.MaxLabels, b.Size()); n > 0 {
		line += fmt.Sprintf(" labels=%v", b.Labels.Int32s()[:n])
		if n < b.Size() {
			line += "..."
		}
	}
	return line
}

func (d *driver) Close() error {
	d.mu.Lock()
	d.flushLocked()
	d.mu.Unlock()
	return nil
}

func (d *driver) BindAck(fn sink.EmitFn) { d.ack = fn }

// called by the background timer goroutine
func (d *driver) timerFlush() {
	d.mu.Lock()
	d.flushLocked()
	d.mu.Unlock()
}

// must be called with d.mu held
func (d *driver) flushLocked() {
	if d.ack != nil {
		for _, p := range d.pending {
			d.ack(p.id, p.seq)
		}
	}
	d.pending = d.pending[:0]
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func init() {
	sink.Register("stdout", func() sink.Adapter { return &driver{out: os.Stdout} })
}
