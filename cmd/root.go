// Package cmd provides the command-line interface for scaffold.
//
// Configuration System:
//
//	Settings are resolved from several sources with clear precedence:
//	1. Command-line flags (--config, --log-level, etc.) - highest priority
//	2. SCAFFOLD_CONFIG_FILE environment variable - custom config file path
//	3. Individual environment variables (SCAFFOLD_SERVE_PORT, etc.)
//	4. Configuration files (.scaffold.yml) - lowest priority
//
// Environment Variables:
//
//	SCAFFOLD_CONFIG_FILE: Path to custom configuration file
//	SCAFFOLD_SOURCE_DIR: Override the source directory
//	SCAFFOLD_SERVE_PORT: Override the server port
//	And the rest following the SCAFFOLD_<SECTION>_<OPTION> pattern
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string

	// configErr holds a failure to read an explicitly requested config file.
	// A missing default file is not an error.
	configErr error
)

var buildFlags = &BuildFlags{}

// rootCmd builds the project when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "scaffold",
	Short: "Bundle, watch and serve a front-end project with esbuild",
	Long: `Scaffold bundles every HTML page under the source directory with esbuild,
together with the scripts and stylesheets those pages reference.

Without flags it runs a single build and exits non-zero when the build fails.

Examples:
  scaffold                        One-shot build into the output directory
  scaffold --clean                Remove the output directory first
  scaffold --watch                Rebuild on change and type-check in the background
  scaffold --watch --serve        Development server with live reload
  scaffold --serve --open         Serve the build and open a browser
  scaffold init                   Write a starter project and .scaffold.yml`,
	SilenceUsage: true,
	Args:         cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return buildFlags.Validate()
	},
	RunE: runBuild,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .scaffold.yml, can also use SCAFFOLD_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	buildFlags.Register(rootCmd.Flags())
}

// initConfig points viper at the config file and the SCAFFOLD_ environment.
//
// Loading priority (highest to lowest):
//  1. --config flag
//  2. SCAFFOLD_CONFIG_FILE environment variable
//  3. .scaffold.yml in the current directory
func initConfig() {
	explicit := true
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("SCAFFOLD_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		explicit = false
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".scaffold")
	}

	viper.SetEnvPrefix("SCAFFOLD")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	err := viper.ReadInConfig()
	if err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		return
	}

	var notFound viper.ConfigFileNotFoundError
	if explicit || !errors.As(err, &notFound) {
		configErr = fmt.Errorf("reading config file: %w", err)
	}
}
