package cmd

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
)

// openBrowser hands rawURL to the platform's URL opener.
func openBrowser(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("refusing to open %q: only http and https are allowed", rawURL)
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd":
		cmd = exec.CommandContext(ctx, "xdg-open", u.String())
	case "windows":
		cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", u.String())
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", u.String())
	default:
		return fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}

	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait()

	return nil
}
