// Package bundler drives esbuild for a fixed set of HTML entry points.
//
// Each HTML page is an entry point. The HTML plugin bundles the scripts and
// stylesheets a page references with a nested esbuild build and rewrites the
// page to point at the hashed outputs.
package bundler

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// LiveReloadDefine is the build-time constant telling bundled code whether
// live reload is on.
const LiveReloadDefine = "_LIVE_RELOAD_"

// Options is the build configuration. It is treated as immutable once a
// Factory has been created from it.
type Options struct {
	WorkDir    string
	SourceDir  string
	OutDir     string
	Sourcemap  bool
	Target     []string
	Define     map[string]string
	AssetNames string
	ChunkNames string
	LogLevel   string
	Minify     bool

	// LiveReload is compiled into the output as _LIVE_RELOAD_. When
	// InjectLiveReload is also set every page gets the client script.
	LiveReload       bool
	InjectLiveReload bool
}

// ServeOptions configures esbuild's local server.
type ServeOptions struct {
	Host     string
	Port     int
	ServeDir string
}

var loaders = map[string]api.Loader{
	".png":   api.LoaderFile,
	".jpg":   api.LoaderFile,
	".jpeg":  api.LoaderFile,
	".gif":   api.LoaderFile,
	".svg":   api.LoaderFile,
	".webp":  api.LoaderFile,
	".avif":  api.LoaderFile,
	".ico":   api.LoaderFile,
	".woff":  api.LoaderFile,
	".woff2": api.LoaderFile,
	".ttf":   api.LoaderFile,
	".otf":   api.LoaderFile,
	".eot":   api.LoaderFile,
}

var esTargets = map[string]api.Target{
	"es5":    api.ES5,
	"es6":    api.ES2015,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

var engines = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"ios":     api.EngineIOS,
	"node":    api.EngineNode,
	"opera":   api.EngineOpera,
	"safari":  api.EngineSafari,
}

var engineTarget = regexp.MustCompile(`^([a-z]+)(\d+(?:\.\d+)*)$`)

var logLevels = map[string]api.LogLevel{
	"verbose": api.LogLevelVerbose,
	"debug":   api.LogLevelDebug,
	"info":    api.LogLevelInfo,
	"warning": api.LogLevelWarning,
	"error":   api.LogLevelError,
	"silent":  api.LogLevelSilent,
}

// ParseTarget splits a target list such as ["es2020", "chrome100"] into
// esbuild's language target and engine list.
func ParseTarget(targets []string) (api.Target, []api.Engine, error) {
	target := api.DefaultTarget
	var out []api.Engine

	for _, raw := range targets {
		t := strings.ToLower(strings.TrimSpace(raw))
		if t == "" {
			continue
		}

		if es, ok := esTargets[t]; ok {
			target = es
			continue
		}

		m := engineTarget.FindStringSubmatch(t)
		if m == nil {
			return 0, nil, fmt.Errorf("invalid target %q", raw)
		}
		name, ok := engines[m[1]]
		if !ok {
			return 0, nil, fmt.Errorf("unknown engine in target %q", raw)
		}
		out = append(out, api.Engine{Name: name, Version: m[2]})
	}

	return target, out, nil
}

// ParseLogLevel maps an esbuild log level name.
func ParseLogLevel(level string) (api.LogLevel, error) {
	if level == "" {
		return api.LogLevelWarning, nil
	}
	l, ok := logLevels[level]
	if !ok {
		return 0, fmt.Errorf("unknown esbuild log level %q", level)
	}
	return l, nil
}

// BuildOptions maps the configuration onto esbuild's options for the page
// build. Entry points are filled in per context.
func (o Options) BuildOptions() (api.BuildOptions, error) {
	target, engineList, err := ParseTarget(o.Target)
	if err != nil {
		return api.BuildOptions{}, err
	}

	logLevel, err := ParseLogLevel(o.LogLevel)
	if err != nil {
		return api.BuildOptions{}, err
	}

	opts := api.BuildOptions{
		AbsWorkingDir:     o.WorkDir,
		Bundle:            true,
		Outdir:            o.outDir(),
		Outbase:           o.sourceDir(),
		Target:            target,
		Engines:           engineList,
		Define:            o.defines(),
		Loader:            loaders,
		AssetNames:        o.AssetNames,
		ChunkNames:        o.ChunkNames,
		LogLevel:          logLevel,
		MinifyWhitespace:  o.Minify,
		MinifyIdentifiers: o.Minify,
		MinifySyntax:      o.Minify,
		Write:             true,
		Plugins: []api.Plugin{
			htmlPlugin(o),
			liveReloadPlugin(o.LiveReload),
		},
	}
	if o.Sourcemap {
		opts.Sourcemap = api.SourceMapLinked
	}

	return opts, nil
}

// assetBuildOptions are the options of the nested build that bundles the
// scripts and stylesheets referenced by one page.
func (o Options) assetBuildOptions(format api.Format, entryPoints []string) (api.BuildOptions, error) {
	opts, err := o.BuildOptions()
	if err != nil {
		return api.BuildOptions{}, err
	}

	opts.EntryPoints = entryPoints
	opts.EntryNames = o.ChunkNames
	opts.Outbase = ""
	opts.Format = format
	opts.Splitting = format == api.FormatESModule
	opts.Metafile = true
	opts.Plugins = []api.Plugin{liveReloadPlugin(o.LiveReload)}

	return opts, nil
}

func (o Options) defines() map[string]string {
	defines := make(map[string]string, len(o.Define)+1)
	for k, v := range o.Define {
		defines[k] = v
	}
	defines[LiveReloadDefine] = strconv.FormatBool(o.LiveReload)
	return defines
}

func (o Options) abs(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(o.workDir(), path)
}

func (o Options) outDir() string    { return o.abs(o.OutDir) }
func (o Options) sourceDir() string { return o.abs(o.SourceDir) }
