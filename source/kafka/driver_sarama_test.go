package kafka

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
)

func labelled(value, label string) *sarama.ConsumerMessage {
	m := &sarama.ConsumerMessage{Value: []byte(value)}
	if label != "" {
		m.Headers = []*sarama.RecordHeader{{Key: []byte("label"), Value: []byte(label)}}
	}
	return m
}

func TestSaramaDriver_NextReadsLabelHeader(t *testing.T) {
	consumer := mocks.NewConsumer(t, nil)
	pc := consumer.ExpectConsumePartition("images", 0, sarama.OffsetOldest)
	pc.YieldMessage(labelled("jpeg-0", "42"))
	pc.YieldMessage(labelled("jpeg-1", ""))
	pc.YieldMessage(labelled("jpeg-2", "x"))

	d, err := NewSourceFromConsumer(Config{Topic: "images", StartFrom: StartOldest, LabelHeader: "label"}, consumer)
	if err != nil {
		t.Fatalf("NewSourceFromConsumer: %v", err)
	}
	defer d.Close()

	ctx := context.Background()
	rec, err := d.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if rec.Label != 42 || string(rec.Data) != "jpeg-0" || rec.Key == "" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if _, err := d.Next(ctx); !errors.Is(err, ErrNoLabel) {
		t.Fatalf("missing header: want ErrNoLabel, got %v", err)
	}
	if _, err := d.Next(ctx); !errors.Is(err, ErrNoLabel) {
		t.Fatalf("bad header: want ErrNoLabel, got %v", err)
	}
}

func TestSaramaDriver_NextHonoursContext(t *testing.T) {
	consumer := mocks.NewConsumer(t, nil)
	consumer.ExpectConsumePartition("images", 2, sarama.OffsetNewest)

	d, err := NewSourceFromConsumer(Config{Topic: "images", Partition: 2, StartFrom: StartNewest, LabelHeader: "label"}, consumer)
	if err != nil {
		t.Fatalf("NewSourceFromConsumer: %v", err)
	}
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestLoadConfig_FileEnvAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kafka_source.yml")
	body := []byte(`schema_version: v1
brokers: [localhost:9092]
topic: images
partition: 3
`)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("IMAGEFEED_KAFKA__LABEL_HEADER", "class")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Topic != "images" || cfg.Partition != 3 || len(cfg.Brokers) != 1 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.LabelHeader != "class" {
		t.Fatalf("env override not applied: %q", cfg.LabelHeader)
	}
	if cfg.StartFrom != StartOldest || cfg.Version == "" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadConfig_Rejects(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "v9.yml")
	if err := os.WriteFile(bad, []byte("schema_version: v9\nbrokers: [b]\ntopic: t\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(bad); err == nil {
		t.Fatal("expected schema_version error")
	}
	if _, err := LoadConfig(filepath.Join(dir, "missing.yml")); err == nil {
		t.Fatal("expected error for config without brokers")
	}
}
