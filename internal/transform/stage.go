package transform

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"imagefeed/internal/decode"
)

// Stage transforms one decoded image into a [crop, crop, channels] float
// sample written to dst. Implementations must be safe for concurrent use by
// several workers, each passing its own rng and dst.
type Stage interface {
	Transform(img decode.RawImage, rng *rand.Rand, dst []float32) error
}

// Factory builds a Stage for a resolved config.
type Factory func(Config) (Stage, error)

const (
	HostStage   = "host"
	DeviceStage = "device"
)

var (
	regMu    sync.RWMutex
	registry = map[string]Factory{}
)

// Register makes a stage available by name; accelerator builds register
// DeviceStage from their init().
func Register(name string, f Factory) {
	regMu.Lock()
	registry[name] = f
	regMu.Unlock()
}

func Registered(name string) bool {
	regMu.RLock()
	defer regMu.RUnlock()
	_, ok := registry[name]
	return ok
}

// New returns the stage registered under name.
func New(name string, cfg Config) (Stage, error) {
	regMu.RLock()
	f, ok := registry[name]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("transform: no %q stage registered", name)
	}
	return f(cfg)
}

func init() {
	Register(HostStage, func(c Config) (Stage, error) { return NewHost(c), nil })
}
