package kafka

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	StartOldest = "oldest"
	StartNewest = "newest"
)

type Config struct {
	Brokers     []string `koanf:"brokers"`
	Topic       string   `koanf:"topic"`
	Partition   int32    `koanf:"partition"`
	StartFrom   string   `koanf:"start_from"` // oldest|newest (default oldest)
	Version     string   `koanf:"version"`
	ClientID    string   `koanf:"client_id"`
	TLSEn       bool     `koanf:"tls_enabled"`
	SASLUser    string   `koanf:"sasl_user"`
	SASLPass    string   `koanf:"sasl_pass"`
	LabelHeader string   `koanf:"label_header"` // header carrying the decimal label
}

// ---------------------------------------------------------------------------
// Loader
// ---------------------------------------------------------------------------

const envPrefix = "IMAGEFEED_KAFKA__"

// LoadConfig merges YAML (if present) with env-vars
// (prefix `IMAGEFEED_KAFKA__`, delimiter `__`) and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg, err := load(path)
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.validate()
}

func load(path string) (Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}
	// schema version check (only when YAML is present)
	sv := k.String("schema_version")
	if sv != "" && sv != "v1" {
		return Config{}, fmt.Errorf("kafka schema_version %q not supported (want v1)", sv)
	}

	_ = k.Load(env.Provider(envPrefix, "__", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	return cfg, nil
}

// ---------------------------------------------------------------------------
// defaults
// ---------------------------------------------------------------------------

func applyDefaults(c *Config) {
	if c.StartFrom != StartNewest {
		c.StartFrom = StartOldest
	}
	if c.Version == "" {
		c.Version = "2.1.0"
	}
	if c.ClientID == "" {
		c.ClientID = "imagefeed"
	}
	if c.LabelHeader == "" {
		c.LabelHeader = "label"
	}
}

func (c Config) validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("kafka: no brokers configured")
	}
	if c.Topic == "" {
		return errors.New("kafka: no topic configured")
	}
	return nil
}
