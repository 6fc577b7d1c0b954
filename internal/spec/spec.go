// Package spec holds the YAML shape of a pipeline spec file.
package spec

type KafkaSink struct {
	Brokers         []string `yaml:"brokers"`
	Topic           string   `yaml:"topic"`
	RequiredAcks    int16    `yaml:"required_acks"` // 0,1,-1
	Version         string   `yaml:"version"`
	Compression     string   `yaml:"compression"`
	MaxMessageBytes int      `yaml:"max_message_bytes"`
}

type StdoutSink struct {
	MaxLabels    int `yaml:"max_labels"` // labels echoed per batch line, 0 = none
	AckBatchSize int `yaml:"ack_batch_size"`
	AckFlushMS   int `yaml:"ack_flush_ms"`
}

type sinkConfigs struct {
	Kafka  KafkaSink  `yaml:"kafka"`
	Stdout StdoutSink `yaml:"stdout"`
}

type debugSection struct {
	MaxBatches    int     `yaml:"max_batches"`     // stop pumping after N batches (0 = unbounded)
	BatchDelayMS  int     `yaml:"batch_delay_ms"`  // artificial consumer delay per batch
	BatchesPerSec float64 `yaml:"batches_per_sec"` // token-bucket pump rate (0 = unthrottled)
	Burst         int64   `yaml:"burst"`
}

// Input mirrors the ImageInput arguments. Pointer fields distinguish
// "unset" from a zero value.
type Input struct {
	BatchSize      int       `yaml:"batch_size"`
	Color          int       `yaml:"color"` // 1 or 3, default 1
	Scale          int       `yaml:"scale"`
	MinSize        int       `yaml:"minsize"`
	Warp           bool      `yaml:"warp"`
	Crop           int       `yaml:"crop"`
	Mirror         bool      `yaml:"mirror"`
	Mean           float32   `yaml:"mean"`
	MeanPerChannel []float32 `yaml:"mean_per_channel"` // BGR order
	Std            *float32  `yaml:"std"`              // default 1
	StdPerChannel  []float32 `yaml:"std_per_channel"`  // BGR order

	BoundingYMin   *int `yaml:"bounding_ymin"`
	BoundingXMin   *int `yaml:"bounding_xmin"`
	BoundingHeight *int `yaml:"bounding_height"`
	BoundingWidth  *int `yaml:"bounding_width"`

	IsTest          bool   `yaml:"is_test"`
	UseCaffeDatum   bool   `yaml:"use_caffe_datum"`
	UseGPUTransform bool   `yaml:"use_gpu_transform"`
	DecodeThreads   int    `yaml:"decode_threads"`
	OutputType      string `yaml:"output_type"` // float | float16
	Seed            uint64 `yaml:"seed"`
	MaxRetries      *int   `yaml:"max_retries"`
	Prefetch        bool   `yaml:"prefetch"`
}

type File struct {
	SchemaVersion string `yaml:"schema_version"`

	Source struct {
		DBType string `yaml:"db_type"` // folder | recordio | kafka
		DB     string `yaml:"db"`
		Config string `yaml:"config"`
	} `yaml:"source"`

	Input Input `yaml:"input"`

	Sinks       []string     `yaml:"sinks"`
	SinkConfigs sinkConfigs  `yaml:"sink_configs"`
	Debug       debugSection `yaml:"debug"`
}
