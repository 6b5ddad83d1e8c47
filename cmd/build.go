package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/scaffold/internal/bundler"
	"github.com/conneroisu/scaffold/internal/config"
	"github.com/conneroisu/scaffold/internal/coordinator"
	"github.com/conneroisu/scaffold/internal/diagnostics"
	"github.com/conneroisu/scaffold/internal/entrypoints"
	scaffolderrors "github.com/conneroisu/scaffold/internal/errors"
	"github.com/conneroisu/scaffold/internal/livereload"
	"github.com/conneroisu/scaffold/internal/logging"
	"github.com/conneroisu/scaffold/internal/typecheck"
	"github.com/conneroisu/scaffold/internal/watcher"
)

func runBuild(cmd *cobra.Command, args []string) error {
	if configErr != nil {
		return configErr
	}

	cfg, err := config.Load()
	if err != nil {
		return startupError(err)
	}

	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolving working directory: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := &builder{
		cfg:      cfg,
		flags:    *buildFlags,
		workDir:  workDir,
		logger:   logger,
		reporter: diagnostics.NewConsoleReporter(),
		stdout:   cmd.OutOrStdout(),
		debug:    strings.EqualFold(cfg.Log.Level, "debug"),
	}
	return startupError(b.run(ctx))
}

// startupError points configuration errors, which stop scaffold before
// anything runs, at the setting to fix.
func startupError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, typecheck.ErrConfigNotFound):
		return fmt.Errorf("%w (create a tsconfig.json or set typecheck.enabled: false)", err)
	case scaffolderrors.IsConfigError(err):
		return fmt.Errorf("invalid configuration: %w", err)
	default:
		return err
	}
}

func newLogger(cfg config.LogConfig, out io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, scaffolderrors.NewConfigError(scaffolderrors.ErrCodeConfigInvalid, "invalid log level", err)
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    cfg.Format,
		Output:    out,
		Component: "scaffold",
	}), nil
}

// builder runs one invocation of the root command.
type builder struct {
	cfg      *config.Config
	flags    BuildFlags
	workDir  string
	logger   logging.Logger
	reporter *diagnostics.Reporter
	stdout   io.Writer
	debug    bool

	// openURL opens the browser; replaced in tests.
	openURL func(ctx context.Context, url string) error
}

func (b *builder) abs(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(b.workDir, path)
}

func (b *builder) options() bundler.Options {
	return bundler.Options{
		WorkDir:          b.workDir,
		SourceDir:        b.abs(b.cfg.SourceDir),
		OutDir:           b.abs(b.cfg.OutDir),
		Sourcemap:        b.cfg.Build.Sourcemap,
		Target:           b.cfg.Build.Target,
		Define:           b.cfg.Build.Defines(),
		AssetNames:       b.cfg.Build.AssetNames,
		ChunkNames:       b.cfg.Build.ChunkNames,
		LogLevel:         b.cfg.Build.LogLevel,
		Minify:           b.cfg.Build.Minify,
		LiveReload:       b.flags.LiveReload(),
		InjectLiveReload: b.cfg.LiveReload.Inject,
	}
}

func (b *builder) filters() []watcher.FileFilter {
	return []watcher.FileFilter{
		watcher.NoHiddenFilter,
		watcher.NoNodeModulesFilter,
		watcher.NoEditorTempFilter,
		watcher.ExcludeFilter(b.abs(b.cfg.OutDir)),
	}
}

func (b *builder) run(ctx context.Context) (err error) {
	opts := b.options()

	if b.flags.Clean {
		if err := os.RemoveAll(opts.OutDir); err != nil {
			return scaffolderrors.NewIOError(scaffolderrors.ErrCodeClean, "removing output directory", err).WithFile(opts.OutDir)
		}
		b.logger.Info(ctx, "Cleaned output directory", "dir", opts.OutDir)
	}

	entries, err := b.discover(opts.SourceDir)
	if err != nil {
		return err
	}
	b.logger.Info(ctx, "Discovered entry points", "count", entries.Len(), "suffix", entries.Suffix())

	factory, err := bundler.NewFactory(opts)
	if err != nil {
		return err
	}

	coord := coordinator.New(factory, entries, b.logger)
	defer func() {
		if disposeErr := coord.Dispose(); disposeErr != nil {
			err = errors.Join(err, disposeErr)
		}
	}()

	listening := make(chan string, 1)
	if b.flags.Serve {
		serve := bundler.ServeOptions{
			Host:     b.cfg.Serve.Host,
			Port:     b.cfg.Serve.Port,
			ServeDir: opts.OutDir,
		}
		if err := coord.EnableServer(serve, func(url string) { b.listening(ctx, url, listening) }); err != nil {
			return err
		}
	}

	if !b.flags.Watch {
		return b.once(ctx, coord)
	}
	return b.watch(ctx, coord, entries, opts.SourceDir, listening)
}

func (b *builder) listening(ctx context.Context, url string, ch chan<- string) {
	fmt.Fprintf(b.stdout, "listening on %s\n", url)

	if b.flags.Open || b.cfg.Serve.Open {
		open := b.openURL
		if open == nil {
			open = openBrowser
		}
		if err := open(ctx, url); err != nil {
			b.logger.Warn(ctx, err, "Failed to open browser", "url", url)
		}
	}

	select {
	case ch <- url:
	default:
	}
}

// discover fills a fresh entry point set from the files already present.
func (b *builder) discover(sourceDir string) (*entrypoints.Set, error) {
	files, err := watcher.Scan(sourceDir, b.filters()...)
	if err != nil {
		return nil, scaffolderrors.NewIOError(scaffolderrors.ErrCodeWatch, "discovering entry points", err).WithFile(sourceDir)
	}

	entries := entrypoints.New(b.cfg.EntrySuffix)
	for _, file := range files {
		entries.Add(file)
	}
	return entries, nil
}

// rescan adds the entry points created since discover ran. It runs once the
// watches are in place so no page falls between the two.
func (b *builder) rescan(ctx context.Context, entries *entrypoints.Set, sourceDir string) error {
	files, err := watcher.Scan(sourceDir, b.filters()...)
	if err != nil {
		return scaffolderrors.NewIOError(scaffolderrors.ErrCodeWatch, "discovering entry points", err).WithFile(sourceDir)
	}

	for _, file := range files {
		if entries.Add(file) {
			b.logger.Debug(ctx, "Entry point appeared before watching started", "path", file)
		}
	}
	return nil
}

func (b *builder) once(ctx context.Context, coord *coordinator.Coordinator) error {
	outcome, err := b.cycle(ctx, coord)
	if err != nil {
		return err
	}

	if b.flags.Serve {
		<-ctx.Done()
		return nil
	}

	if outcome.Status != bundler.Succeeded {
		return scaffolderrors.NewBuildError(scaffolderrors.ErrCodeBuildFailed,
			fmt.Sprintf("build %s with %d errors", outcome.Status, outcome.Errors), nil)
	}
	return nil
}

func (b *builder) cycle(ctx context.Context, coord *coordinator.Coordinator) (bundler.Outcome, error) {
	if _, err := coord.RecreateIfChanged(ctx); err != nil {
		return bundler.Outcome{}, err
	}
	return coord.Rebuild(ctx)
}

func (b *builder) watch(ctx context.Context, coord *coordinator.Coordinator, entries *entrypoints.Set, sourceDir string, listening <-chan string) error {
	// A missing compiler configuration has to fail before anything starts.
	var sidecar *typecheck.Sidecar
	if b.cfg.TypeCheck.Enabled {
		s, err := typecheck.New(b.cfg.TypeCheck, b.workDir, b.logger)
		if err != nil {
			return err
		}
		sidecar = s
	}

	fw, err := watcher.NewFileWatcher(b.cfg.Watch.Debounce)
	if err != nil {
		return scaffolderrors.NewWatcherError(scaffolderrors.ErrCodeWatch, "creating file watcher", err)
	}
	for _, filter := range b.filters() {
		fw.AddFilter(filter)
	}
	fw.OnError(func(err error) {
		b.reporter.ReportException(diagnostics.SourceWatcher, err)
	})
	if err := fw.AddRecursive(sourceDir); err != nil {
		return scaffolderrors.NewWatcherError(scaffolderrors.ErrCodeWatch, "watching source directory", err).WithFile(sourceDir)
	}
	if err := b.rescan(ctx, entries, sourceDir); err != nil {
		return err
	}

	handler := scaffolderrors.NewErrorHandler(b.logger)
	queue := coordinator.NewQueue(func(err error) { handler.Handle(ctx, err) })
	fw.AddHandler(func(events []watcher.ChangeEvent) error {
		applyEvents(entries, events)
		queue.Submit(coord.Cycle)
		return nil
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return fw.Run(gctx) })
	g.Go(func() error { return queue.Run(gctx) })

	if sidecar != nil {
		diags := make(chan diagnostics.Diagnostic)
		g.Go(func() error {
			err := sidecar.Run(gctx, diags)
			switch {
			case err == nil:
			case scaffolderrors.IsBuildError(err):
				b.logger.Warn(gctx, err, "Type checker exited, type errors are no longer reported")
			default:
				b.logger.Error(gctx, err, "Type checker stopped")
			}
			return nil
		})
		g.Go(func() error {
			for d := range diags {
				b.reporter.Report(diagnostics.SourceTypeScript, d)
			}
			return nil
		})
		b.logger.Info(ctx, "Running typescript watcher in background...", "config", sidecar.ConfigPath())
	}

	if b.flags.Serve && b.debug {
		g.Go(func() error {
			b.traceLiveReload(gctx, listening)
			return nil
		})
	}

	queue.Submit(coord.Cycle)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// traceLiveReload logs every change event the server publishes.
func (b *builder) traceLiveReload(ctx context.Context, listening <-chan string) {
	var url string
	select {
	case url = <-listening:
	case <-ctx.Done():
		return
	}

	err := livereload.Subscribe(ctx, url, func(change livereload.Change) {
		b.logger.Debug(ctx, "Live reload event",
			"added", change.Added,
			"removed", change.Removed,
			"updated", change.Updated)
	})
	if err != nil && ctx.Err() == nil {
		b.logger.Warn(ctx, err, "Live reload subscription ended", "url", url)
	}
}

// applyEvents mirrors file additions and removals into the entry point set.
// A removed directory takes every entry point below it along.
func applyEvents(entries *entrypoints.Set, events []watcher.ChangeEvent) {
	for _, event := range events {
		switch event.Type {
		case watcher.EventAdded:
			entries.Add(event.Path)
		case watcher.EventRemoved:
			if entries.Contains(event.Path) {
				entries.Remove(event.Path)
				continue
			}
			prefix := event.Path + string(filepath.Separator)
			for _, path := range entries.Snapshot() {
				if strings.HasPrefix(path, prefix) {
					entries.Remove(path)
				}
			}
		}
	}
}
