package stdout

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"imagefeed/internal/pipeline"
	"imagefeed/internal/tensor"
	"imagefeed/sink"
)

func testBatch(t *testing.T, seq uint64) *pipeline.Batch {
	t.Helper()
	img, err := tensor.Host{}.Alloc(tensor.Float32, 3, 1, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	copy(img.Float32s(), []float32{1, 2, 3})
	lbl, _ := tensor.Host{}.Alloc(tensor.Int32, 1, 3)
	copy(lbl.Int32s(), []int32{7, 8, 9})
	return &pipeline.Batch{ID: "abc", Seq: seq, Images: img, Labels: lbl}
}

type ackRecorder struct {
	mu   sync.Mutex
	seqs []uint64
}

func (a *ackRecorder) emit(_ string, seq uint64) {
	a.mu.Lock()
	a.seqs = append(a.seqs, seq)
	a.mu.Unlock()
}

func (a *ackRecorder) len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.seqs)
}

func TestStdout_PrintsSummary(t *testing.T) {
	var buf bytes.Buffer
	d := &driver{out: &buf}
	if err := d.Configure(Config{MaxLabels: 2}); err != nil {
		t.Fatal(err)
	}
	if err := d.Push(testBatch(t, 5)); err != nil {
		t.Fatal(err)
	}
	line := buf.String()
	for _, want := range []string{"[sink 000001]", "batch 5", "id=abc", "images=[3 1 1 1] float32", "mean=2.0000", "labels=[7 8]..."} {
		if !strings.Contains(line, want) {
			t.Fatalf("line %q missing %q", line, want)
		}
	}
}

func TestStdout_ConfigureRejectsWrongType(t *testing.T) {
	if err := (&driver{}).Configure("nope"); err == nil {
		t.Fatal("expected error")
	}
}

func TestStdout_AcksEveryBatchByDefault(t *testing.T) {
	var buf bytes.Buffer
	rec := &ackRecorder{}
	d := &driver{out: &buf}
	_ = d.Configure(Config{})
	d.BindAck(rec.emit)
	for i := range 3 {
		if err := d.Push(testBatch(t, uint64(i))); err != nil {
			t.Fatal(err)
		}
	}
	if rec.len() != 3 {
		t.Fatalf("acks %d", rec.len())
	}
}

func TestStdout_AckBatchingAndTimerFlush(t *testing.T) {
	var buf bytes.Buffer
	rec := &ackRecorder{}
	d := &driver{out: &buf}
	_ = d.Configure(Config{BatchSize: 3, FlushMS: 20})
	d.BindAck(rec.emit)

	_ = d.Push(testBatch(t, 0))
	_ = d.Push(testBatch(t, 1))
	if rec.len() != 0 {
		t.Fatalf("acked early: %d", rec.len())
	}
	_ = d.Push(testBatch(t, 2))
	if rec.len() != 3 {
		t.Fatalf("size flush: %d", rec.len())
	}

	_ = d.Push(testBatch(t, 3))
	deadline := time.Now().Add(2 * time.Second)
	for rec.len() != 4 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if rec.len() != 4 {
		t.Fatalf("timer flush: %d", rec.len())
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestStdout_Registered(t *testing.T) {
	a, err := sink.NewAdapter("stdout")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := a.(sink.AckAware); !ok {
		t.Fatal("stdout sink should be AckAware")
	}
}
