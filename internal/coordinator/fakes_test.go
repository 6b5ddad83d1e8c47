package coordinator

import (
	"errors"
	"slices"
	"sync"

	"github.com/conneroisu/scaffold/internal/bundler"
)

// eventLog records factory and context calls in order.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.events)
}

type fakeFactory struct {
	mu        sync.Mutex
	log       *eventLog
	createErr error
	contexts  []*fakeContext
	configure func(*fakeContext)
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{log: &eventLog{}}
}

func (f *fakeFactory) Create(entryPoints []string) (bundler.Context, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return nil, f.createErr
	}

	c := &fakeContext{
		id:          len(f.contexts),
		entryPoints: slices.Clone(entryPoints),
		log:         f.log,
		cancelled:   make(chan struct{}),
		port:        8000 + len(f.contexts),
	}
	if f.configure != nil {
		f.configure(c)
	}
	f.contexts = append(f.contexts, c)
	f.log.add("create")
	return c, nil
}

func (f *fakeFactory) created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.contexts)
}

func (f *fakeFactory) context(i int) *fakeContext {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contexts[i]
}

type fakeContext struct {
	id          int
	entryPoints []string
	log         *eventLog
	port        int

	mu         sync.Mutex
	cancelled  chan struct{}
	block      chan struct{}
	started    chan struct{}
	outcome    bundler.Outcome
	serveErr   error
	disposeErr error

	rebuilds  int
	completed int
	cancels   int
	disposes  int
	serves    int
}

func (c *fakeContext) EntryPoints() []string { return slices.Clone(c.entryPoints) }

func (c *fakeContext) Rebuild() bundler.Outcome {
	c.mu.Lock()
	c.rebuilds++
	cancelled := c.cancelled
	block := c.block
	started := c.started
	outcome := c.outcome
	c.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}

	if block != nil {
		select {
		case <-block:
		case <-cancelled:
			return bundler.Outcome{Status: bundler.Cancelled}
		}
	}

	c.mu.Lock()
	c.completed++
	c.mu.Unlock()
	return outcome
}

func (c *fakeContext) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancels++
	close(c.cancelled)
	c.cancelled = make(chan struct{})
}

func (c *fakeContext) Serve(opts bundler.ServeOptions) (bundler.ServeResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.serves++
	if c.serveErr != nil {
		return bundler.ServeResult{}, c.serveErr
	}
	return bundler.ServeResult{Host: opts.Host, Port: c.port}, nil
}

func (c *fakeContext) Dispose() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disposes++
	c.log.add("dispose")
	if c.disposes > 1 {
		return errors.New("disposed twice")
	}
	return c.disposeErr
}

func (c *fakeContext) counts() (rebuilds, completed, cancels, disposes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rebuilds, c.completed, c.cancels, c.disposes
}
