package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/conneroisu/scaffold/internal/version"
)

var (
	versionFormat string
	versionShort  bool
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display version information for scaffold including:

- Semantic version number
- Git commit hash
- Build timestamp
- Bundled esbuild version
- Go version and target platform

Examples:
  scaffold version               # Show version info
  scaffold version --short       # Show short version
  scaffold version --format json # Output as JSON`,
	Args: cobra.NoArgs,
	RunE: runVersionCommand,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().StringVarP(&versionFormat, "format", "f", "text", "Output format (text, json)")
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show short version only")
}

func runVersionCommand(cmd *cobra.Command, args []string) error {
	return writeVersion(cmd.OutOrStdout(), version.Get(), versionFormat, versionShort)
}

func writeVersion(w io.Writer, info version.BuildInfo, format string, short bool) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(info)
	case "text":
		if short {
			_, err := fmt.Fprintln(w, info.Short())
			return err
		}
		_, err := fmt.Fprintln(w, info.String())
		return err
	default:
		return fmt.Errorf("unsupported format: %s (supported: text, json)", format)
	}
}
