// Package typecheck runs the TypeScript compiler in watch mode next to the
// bundler and turns its output into diagnostics. esbuild strips types
// without checking them, so this is the only place type errors surface.
package typecheck

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/conneroisu/scaffold/internal/config"
	"github.com/conneroisu/scaffold/internal/diagnostics"
	scaffolderrors "github.com/conneroisu/scaffold/internal/errors"
	"github.com/conneroisu/scaffold/internal/logging"
)

// DefaultConfigName is the compiler configuration looked up by default.
const DefaultConfigName = "tsconfig.json"

// ErrConfigNotFound is returned when no compiler configuration exists in the
// start directory or any parent.
var ErrConfigNotFound = scaffolderrors.NewConfigError(scaffolderrors.ErrCodeConfigNotFound,
	"could not find a valid compiler configuration", nil)

// FindConfig walks from start towards the filesystem root and returns the
// first file called name.
func FindConfig(start, name string) (string, error) {
	if name == "" {
		name = DefaultConfigName
	}

	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", start, err)
	}

	for {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", scaffolderrors.NewConfigError(scaffolderrors.ErrCodeConfigNotFound,
				fmt.Sprintf("could not find a valid '%s'", name), nil).WithFile(start)
		}
		dir = parent
	}
}

// Sidecar is a tsc --watch child process.
type Sidecar struct {
	dir        string
	configPath string
	command    []string
	logger     logging.Logger
}

// New resolves the compiler configuration from dir. A missing configuration
// is a fatal configuration error.
func New(cfg config.TypeCheckConfig, dir string, logger logging.Logger) (*Sidecar, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	configPath, err := FindConfig(dir, cfg.ConfigName)
	if err != nil {
		return nil, err
	}

	command := cfg.Command
	if len(command) == 0 {
		command = config.Default().TypeCheck.Command
	}

	return &Sidecar{
		dir:        dir,
		configPath: configPath,
		command:    command,
		logger:     logger.WithComponent("typecheck"),
	}, nil
}

// ConfigPath is the resolved compiler configuration.
func (s *Sidecar) ConfigPath() string {
	return s.configPath
}

// Args is the full command line of the child process.
func (s *Sidecar) Args() []string {
	args := append([]string{}, s.command...)
	return append(args,
		"--watch",
		"--noEmit",
		"--preserveWatchOutput",
		"--pretty", "false",
		"-p", s.configPath,
	)
}

// Run starts the compiler and sends its diagnostics on out until ctx is
// done or the process exits. out is closed when Run returns.
func (s *Sidecar) Run(ctx context.Context, out chan<- diagnostics.Diagnostic) error {
	defer close(out)

	args := s.Args()
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = s.dir
	cmd.Cancel = func() error {
		if err := cmd.Process.Signal(os.Interrupt); err != nil {
			return cmd.Process.Kill()
		}
		return nil
	}
	cmd.WaitDelay = 3 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return scaffolderrors.NewIOError(scaffolderrors.ErrCodeTypeCheck, "creating compiler pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return scaffolderrors.NewIOError(scaffolderrors.ErrCodeTypeCheck, "creating compiler pipe", err)
	}

	if err := cmd.Start(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return scaffolderrors.NewIOError(scaffolderrors.ErrCodeTypeCheck, "starting compiler", err)
	}
	s.logger.Debug(ctx, "Type checker started", "args", args, "pid", cmd.Process.Pid)

	go s.logStderr(ctx, stderr)

	streamErr := Stream(ctx, stdout, NewParser(s.dir), out)
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return nil
	}
	if streamErr != nil {
		return scaffolderrors.NewIOError(scaffolderrors.ErrCodeTypeCheck, "reading compiler output", streamErr)
	}
	if waitErr != nil {
		return scaffolderrors.NewBuildError(scaffolderrors.ErrCodeTypeCheck, "type checker exited", waitErr)
	}
	return scaffolderrors.NewBuildError(scaffolderrors.ErrCodeTypeCheck, "type checker exited", nil)
}

// Stream parses r line by line and sends the resulting diagnostics on out.
func Stream(ctx context.Context, r io.Reader, parser *Parser, out chan<- diagnostics.Diagnostic) error {
	send := func(diags []diagnostics.Diagnostic) error {
		for _, d := range diags {
			select {
			case out <- d:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := send(parser.Feed(scanner.Text())); err != nil {
			return nil
		}
	}
	if err := send(parser.Flush()); err != nil {
		return nil
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}

func (s *Sidecar) logStderr(ctx context.Context, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		s.logger.Debug(ctx, "Type checker stderr", "line", scanner.Text())
	}
}
