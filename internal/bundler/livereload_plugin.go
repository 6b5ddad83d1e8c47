package bundler

import (
	"regexp"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/scaffold/internal/livereload"
)

const liveReloadNamespace = "scaffold"

// liveReloadPlugin serves the client module under its import specifier.
func liveReloadPlugin(enabled bool) api.Plugin {
	return api.Plugin{
		Name: "scaffold-live-reload",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: "^" + regexp.QuoteMeta(livereload.ModuleName) + "$"},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					return api.OnResolveResult{
						Path:      "live-reload",
						Namespace: liveReloadNamespace,
					}, nil
				})

			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: liveReloadNamespace},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					contents := livereload.ClientSource(enabled)
					return api.OnLoadResult{
						Contents: &contents,
						Loader:   api.LoaderJS,
					}, nil
				})
		},
	}
}
