package compute

import (
	"context"
	"runtime"
	"time"
)

const (
	defaultWatchInitial = 10 * time.Millisecond
	defaultWatchMax     = time.Second
)

// Options configure a Device.
//
// All zero values are replaced with sensible defaults in FillDefaults.
type Options struct {
	// Workers is the population of the device. Zero means one worker per
	// usable CPU. Negative values are rejected by NewDevice.
	Workers int

	// PinWorkers pins each worker thread to one CPU where supported.
	PinWorkers bool

	// Ctx is the parent of every operation context. Loggers are taken from it.
	Ctx context.Context

	// Metrics receives device level counters.
	Metrics MetricsPolicy

	// OnPayloadError is called when a worker aborts on a payload error.
	OnPayloadError func(error)

	// OnInternalError is called for failures that are not caused by an
	// operation, such as a worker that could not be pinned.
	OnInternalError func(error)

	// WatchInitial and WatchMax bound the polling interval of Device.Watch.
	WatchInitial time.Duration
	WatchMax     time.Duration
}

// FillDefaults replaces zero and out of range values with defaults.
func (o *Options) FillDefaults() {
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.Ctx == nil {
		o.Ctx = context.Background()
	}
	if o.Metrics == nil {
		o.Metrics = &NoopMetrics{}
	}
	if o.WatchInitial <= 0 {
		o.WatchInitial = defaultWatchInitial
	}
	if o.WatchMax < o.WatchInitial {
		o.WatchMax = max(defaultWatchMax, o.WatchInitial)
	}
}
