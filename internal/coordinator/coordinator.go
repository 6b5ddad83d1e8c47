// Package coordinator owns the bundler context for the current set of entry
// points. It recreates the context when the set changes and serializes
// rebuilds so that a newer request always supersedes an older one.
package coordinator

import (
	"context"
	"fmt"
	"sync"

	"github.com/conneroisu/scaffold/internal/bundler"
	"github.com/conneroisu/scaffold/internal/entrypoints"
	scaffolderrors "github.com/conneroisu/scaffold/internal/errors"
	"github.com/conneroisu/scaffold/internal/logging"
)

// ErrNoContext is returned by Rebuild before any context exists.
var ErrNoContext = scaffolderrors.NewInternalError(scaffolderrors.ErrCodeNoContext, "rebuild requested before a build context exists", nil)

// Coordinator manages the lifecycle of exactly one bundler context.
type Coordinator struct {
	factory bundler.Factory
	entries *entrypoints.Set
	logger  logging.Logger

	// mu guards the fields below. buildMu is held for the duration of a
	// build and of any context replacement; it is always taken before mu.
	mu          sync.Mutex
	buildMu     sync.Mutex
	current     bundler.Context
	last        []string
	serve       *bundler.ServeOptions
	onListen    func(url string)
	buildGen    uint64
	buildCancel context.CancelFunc
}

// New creates a coordinator building the members of entries.
func New(factory bundler.Factory, entries *entrypoints.Set, logger logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Coordinator{
		factory: factory,
		entries: entries,
		logger:  logger.WithComponent("coordinator"),
	}
}

// EnableServer makes every new context serve opts. onListen receives the
// local URL each time a server comes up. It can only be enabled once.
func (c *Coordinator) EnableServer(opts bundler.ServeOptions, onListen func(url string)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.serve != nil {
		return scaffolderrors.NewInternalError(scaffolderrors.ErrCodeServe, "server already enabled", nil)
	}
	if onListen == nil {
		onListen = func(string) {}
	}
	c.serve = &opts
	c.onListen = onListen
	return nil
}

// RecreateIfChanged replaces the context when the entry points differ from
// the ones it was created for. It reports whether a new context was made.
func (c *Coordinator) RecreateIfChanged(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if entrypoints.Equal(c.entries.Snapshot(), c.last) {
		c.mu.Unlock()
		return false, nil
	}
	c.cancelBuildLocked()
	c.mu.Unlock()

	c.buildMu.Lock()
	defer c.buildMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := c.entries.Snapshot()
	if entrypoints.Equal(snapshot, c.last) {
		return false, nil
	}

	if err := c.disposeLocked(); err != nil {
		return false, err
	}

	c.logger.Info(ctx, "Entry points detected:", "entry_points", snapshot)

	handle, err := c.factory.Create(snapshot)
	if err != nil {
		return false, err
	}
	c.current = handle

	if c.serve != nil {
		res, err := handle.Serve(*c.serve)
		if err != nil {
			// last stays unset so the next cycle starts over.
			return true, err
		}
		c.onListen(fmt.Sprintf("http://localhost:%d", res.Port))
	}

	c.last = snapshot
	return true, nil
}

// Rebuild runs one build on the current context. A build still running is
// cancelled first. Build errors are reported through the outcome, not the
// error, since esbuild has already printed them.
func (c *Coordinator) Rebuild(ctx context.Context) (bundler.Outcome, error) {
	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return bundler.Outcome{}, ErrNoContext
	}
	c.cancelBuildLocked()
	c.buildGen++
	gen := c.buildGen
	buildCtx, cancel := context.WithCancel(ctx)
	c.buildCancel = cancel
	c.mu.Unlock()
	defer cancel()

	c.buildMu.Lock()
	defer c.buildMu.Unlock()

	c.mu.Lock()
	handle := c.current
	superseded := gen != c.buildGen || buildCtx.Err() != nil
	c.mu.Unlock()

	if superseded {
		return bundler.Outcome{Status: bundler.Cancelled}, nil
	}
	if handle == nil {
		return bundler.Outcome{}, ErrNoContext
	}

	defer c.clearBuild(gen)

	handle.Cancel()

	perf := logging.StartOperation(c.logger, "rebuild")
	c.logger.Info(ctx, "Bundling")

	done := make(chan bundler.Outcome, 1)
	go func() {
		done <- handle.Rebuild()
	}()

	var out bundler.Outcome
	select {
	case out = <-done:
	case <-buildCtx.Done():
		handle.Cancel()
		out = <-done
		out.Status = bundler.Cancelled
	}

	switch out.Status {
	case bundler.Cancelled:
		c.logger.Debug(ctx, "Bundle cancelled")
	default:
		perf.End(ctx, "Bundle complete!", "status", out.Status.String(), "errors", out.Errors, "warnings", out.Warnings)
	}

	return out, nil
}

// Cycle brings the context up to date with the entry points and rebuilds.
func (c *Coordinator) Cycle(ctx context.Context) error {
	if _, err := c.RecreateIfChanged(ctx); err != nil {
		return err
	}
	_, err := c.Rebuild(ctx)
	return err
}

// Dispose cancels any build and releases the context. Further calls are
// no-ops.
func (c *Coordinator) Dispose() error {
	c.mu.Lock()
	c.cancelBuildLocked()
	c.mu.Unlock()

	c.buildMu.Lock()
	defer c.buildMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.disposeLocked()
}

// disposeLocked drops the current context before disposing it, so a failed
// dispose is never retried on the same handle.
func (c *Coordinator) disposeLocked() error {
	old := c.current
	c.current = nil
	c.last = nil

	if old == nil {
		return nil
	}
	if err := old.Dispose(); err != nil {
		return scaffolderrors.NewInternalError(scaffolderrors.ErrCodeDispose, "disposing build context", err)
	}
	return nil
}

func (c *Coordinator) cancelBuildLocked() {
	if c.buildCancel != nil {
		c.buildCancel()
		c.buildCancel = nil
	}
}

func (c *Coordinator) clearBuild(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.buildGen == gen {
		c.buildCancel = nil
	}
}
