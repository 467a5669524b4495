package backend

import (
	"io"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// writerOnly hides every method but Write, so libraries neither fsync
// terminals nor close a sink they do not own.
type writerOnly struct {
	io.Writer
}

type sink struct {
	w     io.Writer
	close func() error
}

func nopClose() error { return nil }

func openSink(opts Options) *sink {
	switch opts.Output {
	case "discard":
		return &sink{w: io.Discard, close: nopClose}
	case "stdout":
		return &sink{w: writerOnly{os.Stdout}, close: nopClose}
	case "stderr":
		return &sink{w: writerOnly{os.Stderr}, close: nopClose}
	default:
		lj := &lumberjack.Logger{
			Filename: opts.Output,
			MaxSize:  opts.MaxFileSizeMB,
		}

		return &sink{w: writerOnly{lj}, close: lj.Close}
	}
}
