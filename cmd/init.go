package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/conneroisu/scaffold/internal/config"
)

var initCmd = &cobra.Command{
	Use:     "init [dir]",
	Aliases: []string{"i"},
	Short:   "Initialize a new scaffold project",
	Long: `Write a default .scaffold.yml together with a starter page, script,
stylesheet and tsconfig.json. Files that already exist are left alone.
If no directory is provided, initializes in the current directory.

Examples:
  scaffold init             # Initialize in the current directory
  scaffold init my-site     # Initialize in a new directory 'my-site'
  scaffold init --force     # Overwrite an existing .scaffold.yml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

var initForce bool

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing configuration file")
}

const starterPage = `<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8">
    <title>scaffold</title>
    <link rel="stylesheet" href="./style.css">
    <script type="module" src="./main.ts"></script>
  </head>
  <body>
    <main id="app"></main>
  </body>
</html>
`

const starterScript = `const app = document.getElementById("app");

if (app) {
  app.textContent = "Hello from scaffold";
}
`

const starterStyle = `body {
  font-family: system-ui, sans-serif;
  margin: 2rem;
}
`

const starterTSConfig = `{
  "compilerOptions": {
    "target": "ES2020",
    "module": "ESNext",
    "moduleResolution": "Bundler",
    "lib": ["ES2020", "DOM"],
    "strict": true,
    "noEmit": true,
    "isolatedModules": true
  },
  "include": ["src"]
}
`

func runInit(cmd *cobra.Command, args []string) error {
	projectDir := "."
	if len(args) == 1 {
		projectDir = args[0]
	}
	return initProject(cmd.OutOrStdout(), projectDir, initForce)
}

func initProject(out io.Writer, projectDir string, force bool) error {
	cfg := config.Default()

	if err := os.MkdirAll(filepath.Join(projectDir, cfg.SourceDir), 0o755); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}

	fmt.Fprintf(out, "Initializing scaffold project in %s\n", projectDir)

	configPath := filepath.Join(projectDir, config.DefaultFileName)
	if _, err := os.Stat(configPath); err == nil && !force {
		fmt.Fprintf(out, "  skip   %s (already exists)\n", config.DefaultFileName)
	} else {
		if err := config.WriteFile(cfg, configPath, force); err != nil {
			return err
		}
		fmt.Fprintf(out, "  create %s\n", config.DefaultFileName)
	}

	starters := []struct {
		path    string
		content string
	}{
		{filepath.Join(cfg.SourceDir, "index.html"), starterPage},
		{filepath.Join(cfg.SourceDir, "main.ts"), starterScript},
		{filepath.Join(cfg.SourceDir, "style.css"), starterStyle},
		{cfg.TypeCheck.ConfigName, starterTSConfig},
	}

	for _, s := range starters {
		created, err := writeIfAbsent(filepath.Join(projectDir, s.path), s.content)
		if err != nil {
			return err
		}
		if created {
			fmt.Fprintf(out, "  create %s\n", s.path)
		} else {
			fmt.Fprintf(out, "  skip   %s (already exists)\n", s.path)
		}
	}

	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. cd "+projectDir)
	fmt.Fprintln(out, "  2. scaffold --watch --serve")

	return nil
}

func writeIfAbsent(path, content string) (bool, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if os.IsExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(content); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, nil
}
