package backend

import (
	"context"
	"fmt"
	"log/slog"
)

type slogAdapter struct {
	logger *slog.Logger
	sink   *sink
	lc     lifecycle
}

func newSlog(opts Options) (Adapter, error) {
	s := openSink(opts)

	handler := slog.NewTextHandler(s.w, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})

	return &slogAdapter{
		logger: slog.New(handler),
		sink:   s,
	}, nil
}

func (*slogAdapter) Name() string { return Slog }

func (a *slogAdapter) Emit(template string, arg int64) error {
	a.logger.Warn(fmt.Sprintf(template, arg))

	return nil
}

func (a *slogAdapter) Shutdown(ctx context.Context) error {
	return a.lc.shutdown(ctx, a.sink.close)
}
