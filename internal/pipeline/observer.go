package pipeline

import "time"

// Observer receives pipeline events. Implementations must be safe for
// concurrent use; sample events arrive from decode workers.
type Observer interface {
	BatchStarted(size int)
	BatchCompleted(size int, d time.Duration, err error)
	SampleProcessed(d time.Duration)
	SampleFailed(reason string)
	SlotsRetried(n int)
}

// NoopObserver discards every event.
type NoopObserver struct{}

func (NoopObserver) BatchStarted(int)                         {}
func (NoopObserver) BatchCompleted(int, time.Duration, error) {}
func (NoopObserver) SampleProcessed(time.Duration)            {}
func (NoopObserver) SampleFailed(string)                      {}
func (NoopObserver) SlotsRetried(int)                         {}
