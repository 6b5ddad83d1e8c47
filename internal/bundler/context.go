package bundler

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/evanw/esbuild/pkg/api"

	scaffolderrors "github.com/conneroisu/scaffold/internal/errors"
)

// ErrDisposed is returned by a context that has already been disposed.
var ErrDisposed = errors.New("bundler: context already disposed")

// Status is the result of one build.
type Status int

const (
	Succeeded Status = iota
	// Failed means esbuild reported errors. They have already been printed.
	Failed
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Outcome summarizes one build.
type Outcome struct {
	Status   Status
	Errors   int
	Warnings int
	Duration time.Duration
}

// ServeResult is where a served context listens.
type ServeResult struct {
	Host string
	Port int
}

// Context is a bundler configured for a fixed list of entry points.
type Context interface {
	EntryPoints() []string
	Rebuild() Outcome
	Cancel()
	Serve(opts ServeOptions) (ServeResult, error)
	Dispose() error
}

// Factory creates contexts for entry-point lists.
type Factory interface {
	Create(entryPoints []string) (Context, error)
}

type esbuildFactory struct {
	base api.BuildOptions
}

// NewFactory validates opts and returns a factory of esbuild contexts.
func NewFactory(opts Options) (Factory, error) {
	base, err := opts.BuildOptions()
	if err != nil {
		return nil, scaffolderrors.NewConfigError(scaffolderrors.ErrCodeConfigInvalid, "invalid build options", err)
	}
	return &esbuildFactory{base: base}, nil
}

func (f *esbuildFactory) Create(entryPoints []string) (Context, error) {
	opts := f.base
	opts.EntryPoints = slices.Clone(entryPoints)

	ctx, ctxErr := api.Context(opts)
	if ctxErr != nil {
		return nil, scaffolderrors.NewBuildError(scaffolderrors.ErrCodeContextCreate,
			"creating build context", messagesError(ctxErr.Errors))
	}

	return &esbuildContext{
		ctx:         ctx,
		entryPoints: opts.EntryPoints,
	}, nil
}

type esbuildContext struct {
	ctx         api.BuildContext
	entryPoints []string
	mu          sync.Mutex
	disposed    bool
}

func (c *esbuildContext) EntryPoints() []string {
	return slices.Clone(c.entryPoints)
}

func (c *esbuildContext) Rebuild() Outcome {
	start := time.Now()
	result := c.ctx.Rebuild()

	return outcomeOf(result, time.Since(start))
}

func (c *esbuildContext) Cancel() {
	c.mu.Lock()
	disposed := c.disposed
	c.mu.Unlock()

	if !disposed {
		c.ctx.Cancel()
	}
}

func (c *esbuildContext) Serve(opts ServeOptions) (ServeResult, error) {
	if opts.Port < 0 || opts.Port > 65535 {
		return ServeResult{}, fmt.Errorf("invalid port %d", opts.Port)
	}

	res, err := c.ctx.Serve(api.ServeOptions{
		Host:     opts.Host,
		Port:     uint16(opts.Port),
		Servedir: opts.ServeDir,
	})
	if err != nil {
		return ServeResult{}, scaffolderrors.NewIOError(scaffolderrors.ErrCodeServe, "starting server", err)
	}

	return ServeResult{Host: res.Host, Port: int(res.Port)}, nil
}

func (c *esbuildContext) Dispose() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return ErrDisposed
	}
	c.disposed = true
	c.ctx.Dispose()

	return nil
}

// canceledText is the message esbuild reports for a cancelled build.
const canceledText = "The build was canceled"

func outcomeOf(result api.BuildResult, d time.Duration) Outcome {
	out := Outcome{
		Status:   Succeeded,
		Errors:   len(result.Errors),
		Warnings: len(result.Warnings),
		Duration: d,
	}

	for _, msg := range result.Errors {
		if msg.Text == canceledText {
			out.Status = Cancelled
			return out
		}
	}
	if out.Errors > 0 {
		out.Status = Failed
	}

	return out
}

func messagesError(msgs []api.Message) error {
	if len(msgs) == 0 {
		return errors.New("unknown esbuild error")
	}

	texts := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		texts = append(texts, msg.Text)
	}
	return errors.New(strings.Join(texts, "; "))
}
