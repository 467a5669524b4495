package backend

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/diode"
)

type zerologAdapter struct {
	name    string
	logger  zerolog.Logger
	queue   *diode.Writer
	dropped atomic.Int64
	sink    *sink
	log     *slog.Logger
	lc      lifecycle
}

func newZerolog(opts Options) (Adapter, error) {
	s := openSink(opts)

	return &zerologAdapter{
		name:   Zerolog,
		logger: newZerologLogger(zerolog.SyncWriter(s.w)),
		sink:   s,
		log:    opts.Logger,
	}, nil
}

// newZerologDiode queues records in a lock-free ring buffer drained by a
// poller goroutine. A full ring overwrites the oldest records.
func newZerologDiode(opts Options) (Adapter, error) {
	s := openSink(opts)

	a := &zerologAdapter{
		name: ZerologDiode,
		sink: s,
		log:  opts.Logger,
	}

	queue := diode.NewWriter(s.w, opts.QueueSize, opts.PollInterval, func(missed int) {
		a.dropped.Add(int64(missed))
	})
	a.queue = &queue
	a.logger = newZerologLogger(queue)

	return a, nil
}

func newZerologLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).Level(zerolog.WarnLevel).With().Timestamp().Logger()
}

func (a *zerologAdapter) Name() string { return a.name }

func (a *zerologAdapter) Emit(template string, arg int64) error {
	a.logger.Warn().Msgf(template, arg)

	return nil
}

func (a *zerologAdapter) Shutdown(ctx context.Context) error {
	return a.lc.shutdown(ctx, func() error {
		var result *multierror.Error

		if a.queue != nil {
			result = multierror.Append(result, a.queue.Close())

			if n := a.dropped.Load(); n > 0 {
				a.log.Warn("diode dropped records",
					slog.String("backend", a.name),
					slog.Int64("dropped", n),
				)
			}
		}

		result = multierror.Append(result, a.sink.close())

		return result.ErrorOrNil()
	})
}
