package backend

import "context"

// nullAdapter drops every record. Its throughput is the workload-only
// baseline.
type nullAdapter struct {
	lc lifecycle
}

func newNull(Options) (Adapter, error) {
	return &nullAdapter{}, nil
}

func (*nullAdapter) Name() string { return Null }

func (*nullAdapter) Emit(string, int64) error { return nil }

func (a *nullAdapter) Shutdown(ctx context.Context) error {
	return a.lc.shutdown(ctx, nopClose)
}
