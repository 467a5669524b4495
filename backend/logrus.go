package backend

import (
	"context"

	"github.com/sirupsen/logrus"
)

type logrusAdapter struct {
	logger *logrus.Logger
	sink   *sink
	lc     lifecycle
}

func newLogrus(opts Options) (Adapter, error) {
	s := openSink(opts)

	logger := logrus.New()
	logger.SetOutput(s.w)
	logger.SetLevel(logrus.WarnLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableColors: true,
		FullTimestamp: true,
	})

	return &logrusAdapter{logger: logger, sink: s}, nil
}

func (*logrusAdapter) Name() string { return Logrus }

func (a *logrusAdapter) Emit(template string, arg int64) error {
	a.logger.Warnf(template, arg)

	return nil
}

func (a *logrusAdapter) Shutdown(ctx context.Context) error {
	return a.lc.shutdown(ctx, a.sink.close)
}
