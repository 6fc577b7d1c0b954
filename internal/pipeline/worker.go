package pipeline

import (
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"imagefeed/internal/decode"
	"imagefeed/internal/transform"
	"imagefeed/source"
)

type workItem struct {
	asm   *assembler
	round *round
	slot  int
	rec   source.Record
}

// worker drains the queue until it is closed. scratch holds one
// transformed sample in float32 before it is written to the batch.
func (p *Pipeline) worker(id int) {
	defer p.wg.Done()
	scratch := make([]float32, p.tcfg.SampleLen())
	log := p.log.With("worker", id)
	for it := range p.queue {
		p.process(it, scratch, log)
	}
}

func (p *Pipeline) process(it workItem, scratch []float32, log *slog.Logger) {
	a := it.asm
	if a.ctx.Err() != nil {
		a.markSkipped(it.round, 1)
		return
	}
	start := time.Now()
	label, err := p.sample(a.seq, it.slot, it.rec, scratch)
	if err == nil {
		err = a.batch.Images.WriteRow(it.slot, scratch)
	}
	if err != nil {
		p.stats.sampleErrors.Add(1)
		p.obs.SampleFailed(failureReason(err))
		log.Debug("sample failed", "batch", a.seq, "slot", it.slot, "key", it.rec.Key, "err", err)
		a.markFailed(it.round, it.slot, err)
		return
	}
	a.batch.Labels.Int32s()[it.slot] = label
	p.stats.samples.Add(1)
	p.obs.SampleProcessed(time.Since(start))
	a.markFilled(it.round)
}

// sample decodes and transforms one record. The rng stream depends only on
// the seed, batch and slot, never on which worker runs it.
func (p *Pipeline) sample(seq uint64, slot int, rec source.Record, dst []float32) (int32, error) {
	var (
		img   decode.RawImage
		label = rec.Label
		err   error
	)
	if ld, ok := p.dec.(decode.LabelDecoder); ok {
		img, label, err = ld.DecodeLabeled(rec.Data)
	} else {
		img, err = p.dec.Decode(rec.Data)
	}
	if err != nil {
		return 0, err
	}
	rng := rand.New(rand.NewPCG(p.cfg.Seed, seq<<32|uint64(slot)))
	return label, p.stage.Transform(img, rng, dst)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, decode.ErrDecode):
		return "decode"
	case errors.Is(err, transform.ErrInvalidBoundingBox):
		return "bounding_box"
	case errors.Is(err, transform.ErrDimensionTooSmall):
		return "too_small"
	default:
		return "transform"
	}
}
