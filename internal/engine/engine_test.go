package engine

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"imagefeed/internal/pipeline"
	"imagefeed/internal/wire"
	"imagefeed/sink"
	"imagefeed/source"
	"imagefeed/source/memory"
)

func pngBytes(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 12, 12))
	for i := range img.Pix {
		img.Pix[i] = shade + uint8(i%7)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newPipe(t *testing.T, n int, wrap bool) *pipeline.Pipeline {
	t.Helper()
	recs := make([]source.Record, n)
	for i := range recs {
		recs[i] = source.Record{Data: pngBytes(t, uint8(10*i)), Label: int32(i)}
	}
	cfg := pipeline.DefaultConfig()
	cfg.BatchSize, cfg.Color, cfg.MinSize, cfg.Crop = 2, 1, 10, 8
	p, err := pipeline.New(cfg, memory.New(recs, wrap))
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	return p
}

type captureSink struct {
	mu     sync.Mutex
	labels [][]int32
	seqs   []uint64
	closed bool
	ack    sink.EmitFn
}

func (c *captureSink) Configure(any) error { return nil }
func (c *captureSink) Push(b *pipeline.Batch) error {
	c.mu.Lock()
	c.labels = append(c.labels, b.LabelSlice())
	c.seqs = append(c.seqs, b.Seq)
	c.mu.Unlock()
	if c.ack != nil {
		c.ack(b.ID, b.Seq)
	}
	return nil
}
func (c *captureSink) Close() error           { c.closed = true; return nil }
func (c *captureSink) BindAck(fn sink.EmitFn) { c.ack = fn }

func TestEngine_PumpStopsAtMaxBatches(t *testing.T) {
	cs := &captureSink{}
	e := New(newPipe(t, 5, true), []sink.Adapter{cs}, Debug{MaxBatches: 3})
	cs.BindAck(e.delivered)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !slices.Equal(cs.seqs, []uint64{0, 1, 2}) {
		t.Fatalf("seqs %v", cs.seqs)
	}
	want := [][]int32{{0, 1}, {2, 3}, {4, 0}}
	for i := range want {
		if !slices.Equal(cs.labels[i], want[i]) {
			t.Fatalf("batch %d labels %v, want %v", i, cs.labels[i], want[i])
		}
	}
	if e.Pushed() != 3 || e.Acked() != 3 {
		t.Fatalf("pushed=%d acked=%d", e.Pushed(), e.Acked())
	}
	if !cs.closed || e.Stats().State != pipeline.StateStopped {
		t.Fatalf("not shut down: closed=%v state=%s", cs.closed, e.Stats().State)
	}
}

func TestEngine_PumpEndsOnExhaustedSource(t *testing.T) {
	cs := &captureSink{}
	e := New(newPipe(t, 5, false), []sink.Adapter{cs}, Debug{})
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(cs.seqs) != 2 {
		t.Fatalf("want 2 full batches before exhaustion, got %d", len(cs.seqs))
	}
}

func TestEngine_NextBatchIsWireEncoded(t *testing.T) {
	e := New(newPipe(t, 4, true), nil, Debug{})
	defer e.shutdown(context.Background())

	raw, err := e.NextBatch(context.Background())
	if err != nil {
		t.Fatalf("NextBatch: %v", err)
	}
	b, err := wire.DecodeBatch(raw)
	if err != nil {
		t.Fatalf("DecodeBatch: %v", err)
	}
	if !slices.Equal(b.LabelSlice(), []int32{0, 1}) || !slices.Equal(b.Images.Shape(), []int{2, 8, 8, 1}) {
		t.Fatalf("batch labels=%v shape=%v", b.LabelSlice(), b.Images.Shape())
	}
}

func TestBootstrap_StdoutPipeline(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "images", "only")
	if err := os.MkdirAll(img, 0o755); err != nil {
		t.Fatal(err)
	}
	for i := range 3 {
		if err := os.WriteFile(filepath.Join(img, fmt.Sprintf("%d.png", i)), pngBytes(t, uint8(i)), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	yml := fmt.Sprintf(`source: {db_type: folder, db: %s}
input: {batch_size: 2, minsize: 10, crop: 8, is_test: true}
sinks: [stdout]
debug: {max_batches: 2}
`, filepath.Join(dir, "images"))
	path := filepath.Join(dir, "pipeline.yml")
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}

	e, err := Bootstrap(context.Background(), Config{PipelineYml: path})
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if e.Pushed() != 2 || e.Acked() != 2 {
		t.Fatalf("pushed=%d acked=%d", e.Pushed(), e.Acked())
	}
}

func TestBootstrap_Rejects(t *testing.T) {
	if _, err := Bootstrap(context.Background(), Config{}); err == nil {
		t.Fatal("expected error without a pipeline spec")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yml")
	yml := fmt.Sprintf("source: {db_type: folder, db: %s}\ninput: {batch_size: 1, minsize: 10, crop: 8}\nsinks: [carrier-pigeon]\n", dir)
	if err := os.MkdirAll(filepath.Join(dir, "c"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "c", "x.png"), pngBytes(t, 1), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Bootstrap(context.Background(), Config{PipelineYml: path}); err == nil {
		t.Fatal("expected unknown sink error")
	}
}
