// Package backend wraps candidate logging libraries behind a uniform
// emit/shutdown surface so the harness can drive them interchangeably.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Backend names understood by New.
const (
	Null         = "null"
	Slog         = "slog"
	Zap          = "zap"
	ZapBuffered  = "zap-buffered"
	Zerolog      = "zerolog"
	ZerologDiode = "zerolog-diode"
	Logrus       = "logrus"
)

// Adapter is one candidate logging backend.
//
// Emit must be safe for concurrent use. Shutdown flushes and releases every
// resource the backend owns; callers must not invoke it while Emit calls are
// in flight. Calling Shutdown more than once returns the first result.
type Adapter interface {
	Name() string
	Emit(template string, arg int64) error
	Shutdown(ctx context.Context) error
}

// Options configures the sink and the tuning knobs of asynchronous backends.
type Options struct {
	// Output is "discard", "stdout", "stderr" or a file path.
	Output string
	// MaxFileSizeMB is the rotation threshold for file outputs.
	MaxFileSizeMB int
	// BufferSize is the byte size of the zap-buffered write buffer.
	BufferSize int
	// FlushInterval is how often zap-buffered flushes in the background.
	FlushInterval time.Duration
	// QueueSize is the record capacity of the zerolog-diode ring buffer.
	QueueSize int
	// PollInterval is how often the zerolog-diode poller drains the queue.
	PollInterval time.Duration
	Logger       *slog.Logger
}

// DefaultOptions returns options that discard all output.
func DefaultOptions() Options {
	return Options{
		Output:        "discard",
		MaxFileSizeMB: 100,
		BufferSize:    256 * 1024,
		FlushInterval: 30 * time.Second,
		QueueSize:     1000,
		PollInterval:  10 * time.Millisecond,
		Logger:        slog.Default(),
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()

	if o.Output == "" {
		o.Output = def.Output
	}
	if o.MaxFileSizeMB <= 0 {
		o.MaxFileSizeMB = def.MaxFileSizeMB
	}
	if o.BufferSize <= 0 {
		o.BufferSize = def.BufferSize
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = def.FlushInterval
	}
	if o.QueueSize <= 0 {
		o.QueueSize = def.QueueSize
	}
	if o.PollInterval <= 0 {
		o.PollInterval = def.PollInterval
	}
	if o.Logger == nil {
		o.Logger = def.Logger
	}

	return o
}

type factory func(opts Options) (Adapter, error)

var registry = []struct {
	name string
	new  factory
}{
	{Null, newNull},
	{Slog, newSlog},
	{Zap, newZap},
	{ZapBuffered, newZapBuffered},
	{Zerolog, newZerolog},
	{ZerologDiode, newZerologDiode},
	{Logrus, newLogrus},
}

// Known returns the supported backend names in their default run order.
func Known() []string {
	names := make([]string, 0, len(registry))
	for _, r := range registry {
		names = append(names, r.name)
	}

	return names
}

// New constructs the named backend.
func New(name string, opts Options) (Adapter, error) {
	for _, r := range registry {
		if r.name == name {
			a, err := r.new(opts.withDefaults())
			if err != nil {
				return nil, fmt.Errorf("create backend %s: %w", name, err)
			}

			return a, nil
		}
	}

	return nil, fmt.Errorf("unknown backend %q", name)
}

// lifecycle runs a shutdown function at most once and remembers its result.
type lifecycle struct {
	once sync.Once
	err  error
}

func (l *lifecycle) shutdown(ctx context.Context, fn func() error) error {
	l.once.Do(func() {
		l.err = runWithContext(ctx, fn)
	})

	return l.err
}

// runWithContext runs fn but stops waiting for it once ctx is done.
// fn keeps running in the background in that case.
func runWithContext(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("shutdown abandoned: %w", ctx.Err())
	}
}
