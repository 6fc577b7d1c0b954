package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/IBM/sarama"

	"imagefeed/internal/logging"
	"imagefeed/source"
)

// ErrNoLabel is returned for messages without a parsable label header.
var ErrNoLabel = errors.New("kafka: message has no label header")

// SaramaDriver serves one topic partition as a record source, in offset
// order. It never wraps; Next blocks until a message arrives.
type SaramaDriver struct {
	cfg      Config
	cl       sarama.Client
	consumer sarama.Consumer
	pc       sarama.PartitionConsumer
}

func saramaConfig(c Config) (*sarama.Config, error) {
	ver, err := sarama.ParseKafkaVersion(c.Version)
	if err != nil {
		return nil, err
	}
	sc := sarama.NewConfig()
	sc.Version = ver
	sc.ClientID = c.ClientID
	sc.Consumer.Return.Errors = true
	if c.TLSEn {
		sc.Net.TLS.Enable = true
	}
	if c.SASLUser != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User, sc.Net.SASL.Password = c.SASLUser, c.SASLPass
	}
	return sc, nil
}

// NewSource dials the brokers and starts consuming cfg.Topic/cfg.Partition.
func NewSource(cfg Config) (*SaramaDriver, error) {
	sc, err := saramaConfig(cfg)
	if err != nil {
		return nil, err
	}
	cl, err := sarama.NewClient(cfg.Brokers, sc)
	if err != nil {
		return nil, err
	}
	consumer, err := sarama.NewConsumerFromClient(cl)
	if err != nil {
		_ = cl.Close()
		return nil, err
	}
	d, err := NewSourceFromConsumer(cfg, consumer)
	if err != nil {
		_ = consumer.Close()
		_ = cl.Close()
		return nil, err
	}
	d.cl = cl
	return d, nil
}

// NewSourceFromConsumer wraps an existing consumer (tests use sarama/mocks).
func NewSourceFromConsumer(cfg Config, consumer sarama.Consumer) (*SaramaDriver, error) {
	offset := sarama.OffsetOldest
	if cfg.StartFrom == StartNewest {
		offset = sarama.OffsetNewest
	}
	pc, err := consumer.ConsumePartition(cfg.Topic, cfg.Partition, offset)
	if err != nil {
		return nil, fmt.Errorf("kafka: consume %s/%d: %w", cfg.Topic, cfg.Partition, err)
	}
	logging.L().Info("kafka source consuming", "topic", cfg.Topic, "partition", cfg.Partition, "start", cfg.StartFrom)
	return &SaramaDriver{cfg: cfg, consumer: consumer, pc: pc}, nil
}

func (d *SaramaDriver) Next(ctx context.Context) (source.Record, error) {
	select {
	case <-ctx.Done():
		return source.Record{}, ctx.Err()
	case msg, ok := <-d.pc.Messages():
		if !ok {
			return source.Record{}, source.ErrEndOfStream
		}
		return d.toRecord(msg)
	case cerr, ok := <-d.pc.Errors():
		if !ok {
			return source.Record{}, source.ErrEndOfStream
		}
		return source.Record{}, fmt.Errorf("kafka: %w", cerr)
	}
}

func (d *SaramaDriver) toRecord(msg *sarama.ConsumerMessage) (source.Record, error) {
	key := string(msg.Key)
	if key == "" {
		key = fmt.Sprintf("%s/%d@%d", msg.Topic, msg.Partition, msg.Offset)
	}
	for _, h := range msg.Headers {
		if h == nil || string(h.Key) != d.cfg.LabelHeader {
			continue
		}
		v, err := strconv.ParseInt(string(h.Value), 10, 32)
		if err != nil {
			return source.Record{}, fmt.Errorf("%w: %s: %v", ErrNoLabel, key, err)
		}
		return source.Record{Key: key, Data: msg.Value, Label: int32(v)}, nil
	}
	return source.Record{}, fmt.Errorf("%w: %s", ErrNoLabel, key)
}

func (d *SaramaDriver) Close() error {
	err := d.pc.Close()
	if cerr := d.consumer.Close(); err == nil {
		err = cerr
	}
	if d.cl != nil {
		if cerr := d.cl.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func init() {
	source.Register("kafka", func(o source.Options) (source.Source, error) {
		cfg, err := load(o.Config)
		if err != nil {
			return nil, err
		}
		if o.DB != "" {
			cfg.Topic = o.DB
		}
		if err := cfg.validate(); err != nil {
			return nil, err
		}
		return NewSource(cfg)
	})
}
