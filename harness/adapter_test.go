package harness

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// journal records lifecycle events across adapters in the order they occur.
type journal struct {
	mu     sync.Mutex
	events []string
}

func (j *journal) add(event string) {
	if j == nil {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	j.events = append(j.events, event)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()

	return append([]string(nil), j.events...)
}

// testAdapter is an instrumented backend.Adapter.
type testAdapter struct {
	name    string
	journal *journal

	delay       time.Duration
	block       chan struct{}
	emitErr     func(arg int64) error
	panicOnEmit bool
	shutdownErr error

	started  sync.Once
	emits    atomic.Int64
	inflight atomic.Int64
	shutDown atomic.Bool

	emitAfterShutdown  atomic.Bool
	inflightAtShutdown atomic.Bool
	shutdownCalls      atomic.Int64
}

func newTestAdapter(name string, j *journal) *testAdapter {
	return &testAdapter{name: name, journal: j}
}

func (a *testAdapter) Name() string { return a.name }

func (a *testAdapter) Emit(_ string, arg int64) error {
	a.inflight.Add(1)
	defer a.inflight.Add(-1)

	a.started.Do(func() { a.journal.add("start:" + a.name) })

	if a.shutDown.Load() {
		a.emitAfterShutdown.Store(true)
	}

	a.emits.Add(1)

	if a.delay > 0 {
		time.Sleep(a.delay)
	}

	if a.block != nil {
		<-a.block
	}

	if a.panicOnEmit {
		panic("backend exploded")
	}

	if a.emitErr != nil {
		return a.emitErr(arg)
	}

	return nil
}

func (a *testAdapter) Shutdown(context.Context) error {
	a.shutdownCalls.Add(1)

	if a.inflight.Load() != 0 {
		a.inflightAtShutdown.Store(true)
	}

	a.shutDown.Store(true)
	a.journal.add("shutdown:" + a.name)

	return a.shutdownErr
}
