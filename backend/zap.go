package backend

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type zapAdapter struct {
	name     string
	logger   *zap.SugaredLogger
	buffered *zapcore.BufferedWriteSyncer
	sink     *sink
	lc       lifecycle
}

func newZap(opts Options) (Adapter, error) {
	s := openSink(opts)

	return buildZap(Zap, s, zapcore.Lock(zapcore.AddSync(s.w)), nil), nil
}

// newZapBuffered writes through a BufferedWriteSyncer, which owns a
// background goroutine flushing every FlushInterval.
func newZapBuffered(opts Options) (Adapter, error) {
	s := openSink(opts)

	buffered := &zapcore.BufferedWriteSyncer{
		WS:            zapcore.AddSync(s.w),
		Size:          opts.BufferSize,
		FlushInterval: opts.FlushInterval,
	}

	return buildZap(ZapBuffered, s, buffered, buffered), nil
}

func buildZap(
	name string,
	s *sink,
	ws zapcore.WriteSyncer,
	buffered *zapcore.BufferedWriteSyncer,
) *zapAdapter {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		ws,
		zapcore.WarnLevel,
	)

	return &zapAdapter{
		name:     name,
		logger:   zap.New(core, zap.WithCaller(false)).Sugar(),
		buffered: buffered,
		sink:     s,
	}
}

func (a *zapAdapter) Name() string { return a.name }

func (a *zapAdapter) Emit(template string, arg int64) error {
	a.logger.Warnf(template, arg)

	return nil
}

func (a *zapAdapter) Shutdown(ctx context.Context) error {
	return a.lc.shutdown(ctx, func() error {
		var result *multierror.Error

		result = multierror.Append(result, a.logger.Sync())

		if a.buffered != nil {
			result = multierror.Append(result, a.buffered.Stop())
		}

		result = multierror.Append(result, a.sink.close())

		return result.ErrorOrNil()
	})
}
