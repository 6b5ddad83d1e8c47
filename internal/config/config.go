// Package config provides configuration management for scaffold using Viper
// for flexible loading from files, environment variables and command-line
// flags.
//
// The configuration is read once at startup and is immutable afterwards. It
// describes where sources live, where bundles are written, the esbuild
// options shared by every build context, the local server, the watcher and
// the background type-checker.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	scaffolderrors "github.com/conneroisu/scaffold/internal/errors"
)

// DefaultFileName is the config file looked up in the working directory.
const DefaultFileName = ".scaffold.yml"

type Config struct {
	SourceDir   string           `yaml:"source_dir" mapstructure:"source_dir"`
	OutDir      string           `yaml:"out_dir" mapstructure:"out_dir"`
	EntrySuffix string           `yaml:"entry_suffix" mapstructure:"entry_suffix"`
	Build       BuildConfig      `yaml:"build" mapstructure:"build"`
	Serve       ServeConfig      `yaml:"serve" mapstructure:"serve"`
	Watch       WatchConfig      `yaml:"watch" mapstructure:"watch"`
	TypeCheck   TypeCheckConfig  `yaml:"typecheck" mapstructure:"typecheck"`
	LiveReload  LiveReloadConfig `yaml:"livereload" mapstructure:"livereload"`
	Log         LogConfig        `yaml:"log" mapstructure:"log"`
}

type BuildConfig struct {
	Sourcemap  bool     `yaml:"sourcemap" mapstructure:"sourcemap"`
	Target     []string `yaml:"target" mapstructure:"target"`
	Define     []string `yaml:"define,omitempty" mapstructure:"define"`
	AssetNames string   `yaml:"asset_names" mapstructure:"asset_names"`
	ChunkNames string   `yaml:"chunk_names" mapstructure:"chunk_names"`
	LogLevel   string   `yaml:"log_level" mapstructure:"log_level"`
	Minify     bool     `yaml:"minify" mapstructure:"minify"`
}

type ServeConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`
	Open bool   `yaml:"open" mapstructure:"open"`
}

type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce" mapstructure:"debounce"`
}

type TypeCheckConfig struct {
	Enabled    bool     `yaml:"enabled" mapstructure:"enabled"`
	ConfigName string   `yaml:"config_name" mapstructure:"config_name"`
	Command    []string `yaml:"command" mapstructure:"command"`
}

type LiveReloadConfig struct {
	Inject bool `yaml:"inject" mapstructure:"inject"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		SourceDir:   "src",
		OutDir:      "public",
		EntrySuffix: ".html",
		Build: BuildConfig{
			Sourcemap:  true,
			Target:     []string{"es2020"},
			AssetNames: "assets/[name]-[hash]",
			ChunkNames: "[ext]/[name]-[hash]",
			LogLevel:   "warning",
		},
		Watch: WatchConfig{
			Debounce: 100 * time.Millisecond,
		},
		TypeCheck: TypeCheckConfig{
			Enabled:    true,
			ConfigName: "tsconfig.json",
			Command:    []string{"npx", "--no-install", "tsc"},
		},
		LiveReload: LiveReloadConfig{
			Inject: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom decodes v on top of the defaults and validates the result.
func LoadFrom(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, scaffolderrors.NewConfigError(scaffolderrors.ErrCodeConfigInvalid, "failed to decode configuration", err)
	}

	// Flags bound to viper may carry an empty slice; keep the defaults then.
	if len(cfg.TypeCheck.Command) == 0 {
		cfg.TypeCheck.Command = Default().TypeCheck.Command
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration values for correctness.
func Validate(cfg *Config) error {
	if err := validatePaths(cfg); err != nil {
		return invalid(err)
	}

	if !strings.HasPrefix(cfg.EntrySuffix, ".") || len(cfg.EntrySuffix) < 2 {
		return invalid(fmt.Errorf("entry_suffix %q must look like an extension such as .html", cfg.EntrySuffix))
	}

	if err := validateBuildConfig(&cfg.Build); err != nil {
		return invalid(fmt.Errorf("build config: %w", err))
	}

	if cfg.Serve.Port < 0 || cfg.Serve.Port > 65535 {
		return invalid(fmt.Errorf("serve config: port %d is not in valid range 0-65535", cfg.Serve.Port))
	}

	if cfg.Watch.Debounce < 0 {
		return invalid(fmt.Errorf("watch config: debounce must not be negative"))
	}

	if cfg.TypeCheck.Enabled && cfg.TypeCheck.ConfigName == "" {
		return invalid(fmt.Errorf("typecheck config: config_name must not be empty"))
	}

	switch cfg.Log.Format {
	case "", "text", "json":
	default:
		return invalid(fmt.Errorf("log config: unknown format %q (text, json)", cfg.Log.Format))
	}

	return nil
}

func invalid(err error) error {
	return scaffolderrors.NewConfigError(scaffolderrors.ErrCodeConfigInvalid, "invalid configuration", err)
}

// validatePaths rejects output directories that --clean could not safely
// remove.
func validatePaths(cfg *Config) error {
	if cfg.SourceDir == "" {
		return fmt.Errorf("source_dir must not be empty")
	}
	if cfg.OutDir == "" {
		return fmt.Errorf("out_dir must not be empty")
	}

	out := filepath.Clean(cfg.OutDir)
	if out == "." || out == string(filepath.Separator) || out == ".." {
		return fmt.Errorf("out_dir %q would overlap the project", cfg.OutDir)
	}
	if out == filepath.Clean(cfg.SourceDir) {
		return fmt.Errorf("out_dir and source_dir must differ")
	}

	src := filepath.Clean(cfg.SourceDir)
	if within(out, src) {
		return fmt.Errorf("source_dir %q must not live inside out_dir %q", cfg.SourceDir, cfg.OutDir)
	}
	// Outputs inside the watched tree would retrigger every build.
	if within(src, out) {
		return fmt.Errorf("out_dir %q must not live inside source_dir %q", cfg.OutDir, cfg.SourceDir)
	}

	return nil
}

func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

var esbuildLogLevels = map[string]bool{
	"verbose": true,
	"debug":   true,
	"info":    true,
	"warning": true,
	"error":   true,
	"silent":  true,
}

func validateBuildConfig(build *BuildConfig) error {
	if !esbuildLogLevels[build.LogLevel] {
		return fmt.Errorf("unknown esbuild log_level %q", build.LogLevel)
	}

	for _, d := range build.Define {
		key, _, ok := strings.Cut(d, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return fmt.Errorf("define %q must have the form KEY=VALUE", d)
		}
	}

	if build.AssetNames == "" || build.ChunkNames == "" {
		return fmt.Errorf("asset_names and chunk_names must not be empty")
	}

	return nil
}

// Defines parses the KEY=VALUE define list into a map.
func (b BuildConfig) Defines() map[string]string {
	defines := make(map[string]string, len(b.Define))
	for _, d := range b.Define {
		key, value, ok := strings.Cut(d, "=")
		if !ok {
			continue
		}
		defines[strings.TrimSpace(key)] = value
	}
	return defines
}

// MarshalYAML writes the debounce as a duration string so that the file
// round-trips through viper.
func (w WatchConfig) MarshalYAML() (interface{}, error) {
	return struct {
		Debounce string `yaml:"debounce"`
	}{Debounce: w.Debounce.String()}, nil
}

// WriteFile writes cfg as YAML to path. It refuses to overwrite an existing
// file unless force is set.
func WriteFile(cfg *Config, path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return scaffolderrors.NewIOError(scaffolderrors.ErrCodeConfigInvalid, "failed to write configuration", err).WithFile(path)
	}

	return nil
}
