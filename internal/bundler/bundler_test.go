package bundler

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	scaffolderrors "github.com/conneroisu/scaffold/internal/errors"
)

func TestParseTarget(t *testing.T) {
	target, engineList, err := ParseTarget([]string{"es2020", "chrome100", "Safari15.4", " "})
	require.NoError(t, err)

	assert.Equal(t, api.ES2020, target)
	assert.Equal(t, []api.Engine{
		{Name: api.EngineChrome, Version: "100"},
		{Name: api.EngineSafari, Version: "15.4"},
	}, engineList)

	target, engineList, err = ParseTarget(nil)
	require.NoError(t, err)
	assert.Equal(t, api.DefaultTarget, target)
	assert.Empty(t, engineList)

	_, _, err = ParseTarget([]string{"netscape4"})
	assert.ErrorContains(t, err, "unknown engine")

	_, _, err = ParseTarget([]string{"> 0.5%"})
	assert.ErrorContains(t, err, "invalid target")
}

func TestParseLogLevel(t *testing.T) {
	level, err := ParseLogLevel("")
	require.NoError(t, err)
	assert.Equal(t, api.LogLevelWarning, level)

	level, err = ParseLogLevel("silent")
	require.NoError(t, err)
	assert.Equal(t, api.LogLevelSilent, level)

	_, err = ParseLogLevel("loud")
	assert.Error(t, err)
}

func TestBuildOptions(t *testing.T) {
	opts := Options{
		WorkDir:    "/work",
		SourceDir:  "src",
		OutDir:     "public",
		Sourcemap:  true,
		Target:     []string{"es2020"},
		Define:     map[string]string{"VERSION": `"1.0.0"`},
		AssetNames: "assets/[name]-[hash]",
		ChunkNames: "[ext]/[name]-[hash]",
		LogLevel:   "warning",
		LiveReload: true,
	}

	b, err := opts.BuildOptions()
	require.NoError(t, err)

	assert.True(t, b.Bundle)
	assert.True(t, b.Write)
	assert.Equal(t, "/work", b.AbsWorkingDir)
	assert.Equal(t, filepath.Join("/work", "public"), b.Outdir)
	assert.Equal(t, filepath.Join("/work", "src"), b.Outbase)
	assert.Equal(t, api.SourceMapLinked, b.Sourcemap)
	assert.Equal(t, api.ES2020, b.Target)
	assert.Equal(t, "true", b.Define[LiveReloadDefine])
	assert.Equal(t, `"1.0.0"`, b.Define["VERSION"])
	assert.Equal(t, "assets/[name]-[hash]", b.AssetNames)
	assert.Equal(t, "[ext]/[name]-[hash]", b.ChunkNames)
	assert.Empty(t, b.EntryNames, "pages keep their source layout")
	assert.Equal(t, api.LoaderFile, b.Loader[".woff2"])
	assert.Equal(t, api.LogLevelWarning, b.LogLevel)
	assert.False(t, b.MinifySyntax)
	require.Len(t, b.Plugins, 2)
	assert.Equal(t, htmlPluginName, b.Plugins[0].Name)

	_, hasDefine := opts.Define[LiveReloadDefine]
	assert.False(t, hasDefine, "options must not be mutated")

	opts.Sourcemap = false
	opts.LiveReload = false
	b, err = opts.BuildOptions()
	require.NoError(t, err)
	assert.Equal(t, api.SourceMapNone, b.Sourcemap)
	assert.Equal(t, "false", b.Define[LiveReloadDefine])

	opts.Target = []string{"bogus"}
	_, err = opts.BuildOptions()
	assert.Error(t, err)
}

func TestAssetBuildOptions(t *testing.T) {
	opts := Options{WorkDir: "/work", SourceDir: "src", OutDir: "public", ChunkNames: "[ext]/[name]-[hash]", AssetNames: "assets/[name]-[hash]"}

	b, err := opts.assetBuildOptions(api.FormatESModule, []string{"/work/src/main.ts"})
	require.NoError(t, err)
	assert.Equal(t, "[ext]/[name]-[hash]", b.EntryNames)
	assert.True(t, b.Splitting)
	assert.True(t, b.Metafile)
	assert.Empty(t, b.Outbase)
	require.Len(t, b.Plugins, 1)

	b, err = opts.assetBuildOptions(api.FormatIIFE, []string{"/work/src/legacy.js"})
	require.NoError(t, err)
	assert.False(t, b.Splitting)
}

func TestNewFactoryRejectsBadOptions(t *testing.T) {
	_, err := NewFactory(Options{Target: []string{"bogus"}})
	require.Error(t, err)
	assert.True(t, scaffolderrors.IsConfigError(err))
}

func TestOutcomeOf(t *testing.T) {
	out := outcomeOf(api.BuildResult{Warnings: []api.Message{{Text: "w"}}}, time.Second)
	assert.Equal(t, Succeeded, out.Status)
	assert.Equal(t, 1, out.Warnings)
	assert.Equal(t, time.Second, out.Duration)

	out = outcomeOf(api.BuildResult{Errors: []api.Message{{Text: "Expected \";\""}}}, 0)
	assert.Equal(t, Failed, out.Status)
	assert.Equal(t, 1, out.Errors)

	out = outcomeOf(api.BuildResult{Errors: []api.Message{{Text: canceledText}}}, 0)
	assert.Equal(t, Cancelled, out.Status)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "succeeded", Succeeded.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "cancelled", Cancelled.String())
	assert.Equal(t, "unknown", Status(9).String())
}

func TestMetafileOutput(t *testing.T) {
	meta, err := parseMetafile(`{
		"inputs": {},
		"outputs": {
			"public/js/main-AB12.js.map": {"bytes": 10, "entryPoint": "src/main.ts"},
			"public/js/main-AB12.js": {"bytes": 20, "entryPoint": "src/main.ts", "cssBundle": "public/css/main-CD34.css"},
			"public/css/main-CD34.css": {"bytes": 5}
		}
	}`)
	require.NoError(t, err)

	path, out, ok := meta.output("src/main.ts")
	require.True(t, ok)
	assert.Equal(t, "public/js/main-AB12.js", path)
	assert.Equal(t, "public/css/main-CD34.css", out.CSSBundle)

	_, _, ok = meta.output("src/other.ts")
	assert.False(t, ok)

	_, err = parseMetafile("{")
	assert.Error(t, err)
}

func TestLocalAsset(t *testing.T) {
	opts := Options{WorkDir: "/work", SourceDir: "src"}
	page := "/work/src/blog/index.html"

	tests := []struct {
		ref  string
		want string
		ok   bool
	}{
		{"./main.ts", "/work/src/blog/main.ts", true},
		{"../shared/site.css?v=1", "/work/src/shared/site.css", true},
		{"/global.css", "/work/src/global.css", true},
		{"https://cdn.example.com/lib.js", "", false},
		{"//cdn.example.com/lib.js", "", false},
		{"data:text/javascript,void 0", "", false},
		{"#anchor", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, ok := opts.localAsset(page, tt.ref)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, filepath.FromSlash(tt.want), got)
		})
	}
}

func TestCollectAssets(t *testing.T) {
	opts := Options{WorkDir: "/work", SourceDir: "src"}
	doc, err := html.Parse(strings.NewReader(`<!doctype html>
<html><head>
<link rel="stylesheet" href="style.css">
<link rel="icon" href="favicon.ico">
<link rel="preload stylesheet" href="/fonts.css">
<script src="https://cdn.example.com/x.js"></script>
<script type="module" src="main.ts"></script>
</head><body>
<script src="legacy.js"></script>
</body></html>`))
	require.NoError(t, err)

	assets := collectAssets(opts, "/work/src/index.html", doc)

	require.Len(t, assets.modules, 1)
	assert.Equal(t, filepath.FromSlash("/work/src/main.ts"), assets.modules[0].path)
	require.Len(t, assets.classic, 1)
	assert.Equal(t, filepath.FromSlash("/work/src/legacy.js"), assets.classic[0].path)
	require.Len(t, assets.styles, 2)
	assert.NotNil(t, assets.head)
	assert.Len(t, assets.files(), 4)
}

func TestRelativeURL(t *testing.T) {
	opts := Options{WorkDir: "/work"}
	assert.Equal(t, "js/main-A.js", opts.relativeURL("/work/public", "public/js/main-A.js"))
	assert.Equal(t, "../js/main-A.js", opts.relativeURL("/work/public/blog", "public/js/main-A.js"))
	assert.Equal(t, "src/main.ts", opts.metafileKey("/work/src/main.ts"))
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, contents := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	}
}

func testProject(t *testing.T, liveReload bool) (Options, string) {
	t.Helper()

	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	writeFiles(t, root, map[string]string{
		"src/index.html": `<!doctype html>
<html><head>
<link rel="stylesheet" href="/style.css">
<script type="module" src="./main.ts"></script>
</head><body><h1>hi</h1></body></html>`,
		"src/about/index.html": `<!doctype html>
<html><head><script type="module" src="../main.ts"></script></head><body></body></html>`,
		"src/main.ts": `import "./widget.css";
const live: boolean = _LIVE_RELOAD_;
console.log("live reload", live);
`,
		"src/widget.css":   `.widget { color: red; }`,
		"src/style.css":    `body { margin: 0; }`,
		"src/globals.d.ts": `declare const _LIVE_RELOAD_: boolean;`,
	})

	opts := Options{
		WorkDir:          root,
		SourceDir:        "src",
		OutDir:           "public",
		Sourcemap:        true,
		Target:           []string{"es2020"},
		AssetNames:       "assets/[name]-[hash]",
		ChunkNames:       "[ext]/[name]-[hash]",
		LogLevel:         "silent",
		LiveReload:       liveReload,
		InjectLiveReload: true,
	}
	return opts, root
}

func TestEsbuildContextBuildsPages(t *testing.T) {
	opts, root := testProject(t, false)

	factory, err := NewFactory(opts)
	require.NoError(t, err)

	entries := []string{
		filepath.Join(root, "src", "about", "index.html"),
		filepath.Join(root, "src", "index.html"),
	}
	ctx, err := factory.Create(entries)
	require.NoError(t, err)
	defer ctx.Dispose()

	assert.Equal(t, entries, ctx.EntryPoints())

	out := ctx.Rebuild()
	require.Equal(t, Succeeded, out.Status, "errors: %d", out.Errors)

	page, err := os.ReadFile(filepath.Join(root, "public", "index.html"))
	require.NoError(t, err)
	assert.Regexp(t, `src="js/main-[A-Z0-9]+\.js"`, string(page))
	assert.Regexp(t, `href="css/style-[A-Z0-9]+\.css"`, string(page))
	assert.Regexp(t, `href="css/main-[A-Z0-9]+\.css"`, string(page), "css imported by the script gets a link")
	assert.NotContains(t, string(page), "live-reload")

	about, err := os.ReadFile(filepath.Join(root, "public", "about", "index.html"))
	require.NoError(t, err)
	assert.Regexp(t, `src="\.\./js/main-[A-Z0-9]+\.js"`, string(about))

	scripts, err := filepath.Glob(filepath.Join(root, "public", "js", "main-*.js"))
	require.NoError(t, err)
	require.NotEmpty(t, scripts)
	js, err := os.ReadFile(scripts[0])
	require.NoError(t, err)
	assert.Contains(t, string(js), "false", "_LIVE_RELOAD_ is replaced")
	assert.NotContains(t, string(js), "_LIVE_RELOAD_")

	maps, err := filepath.Glob(filepath.Join(root, "public", "js", "main-*.js.map"))
	require.NoError(t, err)
	assert.NotEmpty(t, maps)
}

func TestEsbuildContextInjectsLiveReload(t *testing.T) {
	opts, root := testProject(t, true)

	factory, err := NewFactory(opts)
	require.NoError(t, err)

	ctx, err := factory.Create([]string{filepath.Join(root, "src", "index.html")})
	require.NoError(t, err)
	defer ctx.Dispose()

	out := ctx.Rebuild()
	require.Equal(t, Succeeded, out.Status)

	page, err := os.ReadFile(filepath.Join(root, "public", "index.html"))
	require.NoError(t, err)
	assert.Regexp(t, `<script type="module" src="js/scaffold_live-reload-[A-Z0-9]+\.js"></script>`, string(page))

	clients, err := filepath.Glob(filepath.Join(root, "public", "js", "scaffold_live-reload-*.js"))
	require.NoError(t, err)
	require.NotEmpty(t, clients)
	js, err := os.ReadFile(clients[0])
	require.NoError(t, err)
	assert.Contains(t, string(js), "/esbuild")
}

func TestEsbuildContextReportsFailure(t *testing.T) {
	opts, root := testProject(t, false)
	writeFiles(t, root, map[string]string{"src/main.ts": "const = ;"})

	factory, err := NewFactory(opts)
	require.NoError(t, err)

	ctx, err := factory.Create([]string{filepath.Join(root, "src", "index.html")})
	require.NoError(t, err)
	defer ctx.Dispose()

	out := ctx.Rebuild()
	assert.Equal(t, Failed, out.Status)
	assert.Positive(t, out.Errors)
}

func TestEsbuildContextDisposeTwice(t *testing.T) {
	opts, root := testProject(t, false)

	factory, err := NewFactory(opts)
	require.NoError(t, err)

	ctx, err := factory.Create([]string{filepath.Join(root, "src", "index.html")})
	require.NoError(t, err)

	require.NoError(t, ctx.Dispose())
	assert.ErrorIs(t, ctx.Dispose(), ErrDisposed)
	ctx.Cancel()
}

func TestEsbuildContextServe(t *testing.T) {
	opts, root := testProject(t, false)

	factory, err := NewFactory(opts)
	require.NoError(t, err)

	ctx, err := factory.Create([]string{filepath.Join(root, "src", "index.html")})
	require.NoError(t, err)
	defer ctx.Dispose()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "public"), 0o755))
	res, err := ctx.Serve(ServeOptions{Host: "127.0.0.1", ServeDir: filepath.Join(root, "public")})
	require.NoError(t, err)
	assert.Positive(t, res.Port)

	_, err = ctx.Serve(ServeOptions{Port: 70000})
	assert.Error(t, err)
}
