// Package kafka publishes wire-encoded batches to a Kafka topic.
package kafka

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/IBM/sarama"

	"imagefeed/internal/logging"
	"imagefeed/internal/pipeline"
	"imagefeed/internal/wire"
	"imagefeed/sink"
)

type Config struct {
	Brokers         []string `yaml:"brokers"`
	Topic           string   `yaml:"topic"`
	Acks            int16    `yaml:"required_acks"` // 0,1,-1
	Version         string   `yaml:"version"`
	Compression     string   `yaml:"compression"`       // none|gzip|snappy|lz4|zstd
	MaxMessageBytes int      `yaml:"max_message_bytes"` // batches are large; default 64MiB
}

const defaultMaxMessageBytes = 64 << 20

type batchRef struct {
	id  string
	seq uint64
}

type driver struct {
	cfg Config
	p   sarama.AsyncProducer
	ack sink.EmitFn

	wg   sync.WaitGroup
	once sync.Once
	err  error
}

func saramaConfig(cfg Config) (*sarama.Config, error) {
	sc := sarama.NewConfig()
	sc.ClientID = "imagefeed"
	sc.Producer.RequiredAcks = sarama.RequiredAcks(cfg.Acks)
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.MaxMessageBytes = cfg.MaxMessageBytes
	if sc.Producer.MaxMessageBytes <= 0 {
		sc.Producer.MaxMessageBytes = defaultMaxMessageBytes
	}
	if cfg.Version != "" {
		v, err := sarama.ParseKafkaVersion(cfg.Version)
		if err != nil {
			return nil, fmt.Errorf("kafka-sink: %w", err)
		}
		sc.Version = v
	}
	if cfg.Compression != "" {
		if err := sc.Producer.Compression.UnmarshalText([]byte(cfg.Compression)); err != nil {
			return nil, fmt.Errorf("kafka-sink: %w", err)
		}
	}
	return sc, sc.Validate()
}

func (d *driver) Configure(c any) error {
	cfg, ok := c.(Config)
	if !ok {
		return fmt.Errorf("kafka-sink: want Config, got %T", c)
	}
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return fmt.Errorf("kafka-sink: brokers and topic are required")
	}
	sc, err := saramaConfig(cfg)
	if err != nil {
		return err
	}
	p, err := sarama.NewAsyncProducer(cfg.Brokers, sc)
	if err != nil {
		return fmt.Errorf("kafka-sink: %w", err)
	}
	d.start(cfg, p)
	return nil
}

// start takes over p and drains its result channels.
func (d *driver) start(cfg Config, p sarama.AsyncProducer) {
	d.cfg, d.p = cfg, p
	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		for m := range p.Successes() {
			if ref, ok := m.Metadata.(batchRef); ok && d.ack != nil {
				d.ack(ref.id, ref.seq)
			}
		}
	}()
	go func() {
		defer d.wg.Done()
		for e := range p.Errors() {
			logging.L().Error("kafka-sink: produce failed", "topic", d.cfg.Topic, "err", e.Err)
		}
	}()
}

func (d *driver) Push(b *pipeline.Batch) error {
	d.p.Input() <- &sarama.ProducerMessage{
		Topic: d.cfg.Topic,
		Key:   sarama.StringEncoder(b.ID),
		Value: sarama.ByteEncoder(wire.EncodeBatch(b)),
		Headers: []sarama.RecordHeader{
			{Key: []byte("seq"), Value: []byte(strconv.FormatUint(b.Seq, 10))},
		},
		Metadata: batchRef{id: b.ID, seq: b.Seq},
	}
	return nil
}

func (d *driver) BindAck(fn sink.EmitFn) { d.ack = fn }

func (d *driver) Close() error {
	d.once.Do(func() {
		if d.p == nil {
			return
		}
		d.err = d.p.Close()
		d.wg.Wait()
	})
	return d.err
}

func init() { sink.Register("kafka", func() sink.Adapter { return &driver{} }) }
