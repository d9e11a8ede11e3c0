package coro

import (
	"log/slog"
	"time"

	"github.com/me/gocoro/internal/logging"
)

// DefaultTickLength is the logical length of one tick when none is configured.
const DefaultTickLength = time.Second

// Option configures a Scheduler.
type Option func(*options)

type options struct {
	tickLength     time.Duration
	sampleInterval time.Duration
	killOnSuccess  bool
	logger         *slog.Logger
	onFault        func(h Handle, tag string, err error)
	onPurge        func(TaskInfo)
	now            func() time.Time
}

func defaultOptions() options {
	return options{
		tickLength:    DefaultTickLength,
		killOnSuccess: true,
		logger:        logging.Discard(),
		now:           time.Now,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.tickLength <= 0 {
		o.tickLength = DefaultTickLength
	}
	if o.sampleInterval <= 0 {
		o.sampleInterval = max(o.tickLength/2, 500*time.Microsecond)
	}
	return o
}

// WithTickLength sets the fixed logical length of one tick. It is read once
// when the scheduler is created.
func WithTickLength(d time.Duration) Option {
	return func(o *options) {
		o.tickLength = d
	}
}

// WithSampleInterval sets how often the background loop samples the wall
// clock. Defaults to half a tick.
func WithSampleInterval(d time.Duration) Option {
	return func(o *options) {
		o.sampleInterval = d
	}
}

// WithKillOnSuccess controls whether tasks that finish are purged at the
// next sweep (the default) or stay in the live set with Success set.
func WithKillOnSuccess(kill bool) Option {
	return func(o *options) {
		o.killOnSuccess = kill
	}
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = logging.Discard()
		}
		o.logger = logger
	}
}

// WithFaultHandler registers a callback invoked on the tick goroutine when a
// task's sequence fails.
func WithFaultHandler(fn func(h Handle, tag string, err error)) Option {
	return func(o *options) {
		o.onFault = fn
	}
}

// WithPurgeHandler registers a callback invoked with a task's final state
// when it is removed from the live set.
func WithPurgeHandler(fn func(TaskInfo)) Option {
	return func(o *options) {
		o.onPurge = fn
	}
}
