package bundler

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/conneroisu/scaffold/internal/livereload"
)

const htmlPluginName = "scaffold-html"

// assetRef is a local script or stylesheet referenced by a page.
type assetRef struct {
	node *html.Node
	attr string
	path string
}

// pageAssets groups a page's references by how they are bundled.
type pageAssets struct {
	modules []assetRef
	classic []assetRef
	styles  []assetRef
	head    *html.Node
	body    *html.Node
}

func htmlPlugin(opts Options) api.Plugin {
	return api.Plugin{
		Name: htmlPluginName,
		Setup: func(build api.PluginBuild) {
			build.OnLoad(api.OnLoadOptions{Filter: `\.html?$`},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					contents, watch, err := renderPage(opts, args.Path)
					if err != nil {
						return api.OnLoadResult{
							PluginName: htmlPluginName,
							Errors:     []api.Message{{Text: err.Error()}},
							WatchFiles: watch,
						}, nil
					}
					return api.OnLoadResult{
						Contents:   &contents,
						Loader:     api.LoaderCopy,
						WatchFiles: watch,
					}, nil
				})
		},
	}
}

// renderPage bundles the assets page references and returns the rewritten
// document along with the files it was built from.
func renderPage(opts Options, page string) (string, []string, error) {
	data, err := os.ReadFile(page)
	if err != nil {
		return "", nil, fmt.Errorf("reading %s: %w", page, err)
	}

	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", nil, fmt.Errorf("parsing %s: %w", page, err)
	}

	assets := collectAssets(opts, page, doc)
	watch := assets.files()

	pageOut := pageOutputDir(opts, page)

	injectClient := opts.LiveReload && opts.InjectLiveReload

	moduleEntries := entriesOf(assets.modules)
	if injectClient {
		moduleEntries = append(moduleEntries, livereload.ModuleName)
	}

	groups := []struct {
		format  api.Format
		refs    []assetRef
		entries []string
	}{
		{api.FormatESModule, assets.modules, moduleEntries},
		{api.FormatIIFE, assets.classic, entriesOf(assets.classic)},
		{api.FormatDefault, assets.styles, entriesOf(assets.styles)},
	}

	var cssBundles []string
	for _, g := range groups {
		if len(g.entries) == 0 {
			continue
		}

		meta, err := bundleAssets(opts, g.format, g.entries)
		if err != nil {
			return "", watch, fmt.Errorf("bundling assets of %s: %w", filepath.Base(page), err)
		}

		for _, ref := range g.refs {
			out, info, ok := meta.output(opts.metafileKey(ref.path))
			if !ok {
				return "", watch, fmt.Errorf("no output for %s", ref.path)
			}
			setAttr(ref.node, ref.attr, opts.relativeURL(pageOut, out))
			if info.CSSBundle != "" {
				cssBundles = append(cssBundles, opts.relativeURL(pageOut, info.CSSBundle))
			}
		}

		if g.format == api.FormatESModule && injectClient {
			out, _, ok := meta.output(liveReloadNamespace + ":live-reload")
			if !ok {
				return "", watch, fmt.Errorf("no output for %s", livereload.ModuleName)
			}
			assets.head.AppendChild(scriptNode(opts.relativeURL(pageOut, out)))
		}
	}

	for _, href := range cssBundles {
		assets.head.AppendChild(stylesheetNode(href))
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return "", watch, fmt.Errorf("rendering %s: %w", page, err)
	}

	return buf.String(), watch, nil
}

func bundleAssets(opts Options, format api.Format, entries []string) (*Metafile, error) {
	buildOpts, err := opts.assetBuildOptions(format, entries)
	if err != nil {
		return nil, err
	}

	result := api.Build(buildOpts)
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("%d error(s)", len(result.Errors))
	}

	return parseMetafile(result.Metafile)
}

func collectAssets(opts Options, page string, doc *html.Node) *pageAssets {
	assets := &pageAssets{}

	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Head:
				if assets.head == nil {
					assets.head = n
				}
			case atom.Body:
				if assets.body == nil {
					assets.body = n
				}
			case atom.Script:
				if path, ok := opts.localAsset(page, getAttr(n, "src")); ok {
					ref := assetRef{node: n, attr: "src", path: path}
					if strings.EqualFold(getAttr(n, "type"), "module") {
						assets.modules = append(assets.modules, ref)
					} else {
						assets.classic = append(assets.classic, ref)
					}
				}
			case atom.Link:
				if hasToken(getAttr(n, "rel"), "stylesheet") {
					if path, ok := opts.localAsset(page, getAttr(n, "href")); ok {
						assets.styles = append(assets.styles, assetRef{node: n, attr: "href", path: path})
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(doc)

	if assets.head == nil {
		assets.head = assets.body
	}
	if assets.head == nil {
		assets.head = doc
	}

	return assets
}

func (a *pageAssets) files() []string {
	var files []string
	for _, refs := range [][]assetRef{a.modules, a.classic, a.styles} {
		for _, ref := range refs {
			files = append(files, ref.path)
		}
	}
	return files
}

// localAsset resolves a reference to a file in the source tree. Remote and
// inline references are left alone.
func (o Options) localAsset(page, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "//") || strings.HasPrefix(ref, "#") {
		return "", false
	}

	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "" || u.Host != "" || u.Path == "" {
		return "", false
	}

	path := filepath.FromSlash(u.Path)
	if strings.HasPrefix(u.Path, "/") {
		return filepath.Join(o.sourceDir(), path), true
	}
	return filepath.Join(filepath.Dir(page), path), true
}

// pageOutputDir is the directory the page is written to.
func pageOutputDir(opts Options, page string) string {
	rel, err := filepath.Rel(opts.sourceDir(), filepath.Dir(page))
	if err != nil || strings.HasPrefix(rel, "..") {
		return opts.outDir()
	}
	return filepath.Join(opts.outDir(), rel)
}

// metafileKey is how esbuild names a file entry point in the metafile.
func (o Options) metafileKey(path string) string {
	if rel, err := filepath.Rel(o.workDir(), path); err == nil {
		return filepath.ToSlash(rel)
	}
	return filepath.ToSlash(path)
}

// relativeURL turns a metafile output path into a URL relative to dir.
func (o Options) relativeURL(dir, output string) string {
	abs := output
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(o.workDir(), filepath.FromSlash(output))
	}
	rel, err := filepath.Rel(dir, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

func (o Options) workDir() string {
	if o.WorkDir != "" {
		return o.WorkDir
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

func entriesOf(refs []assetRef) []string {
	entries := make([]string, 0, len(refs))
	seen := make(map[string]bool, len(refs))
	for _, ref := range refs {
		if !seen[ref.path] {
			seen[ref.path] = true
			entries = append(entries, ref.path)
		}
	}
	return entries
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func hasToken(list, token string) bool {
	for _, f := range strings.Fields(list) {
		if strings.EqualFold(f, token) {
			return true
		}
	}
	return false
}

func scriptNode(src string) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		Data:     "script",
		DataAtom: atom.Script,
		Attr: []html.Attribute{
			{Key: "type", Val: "module"},
			{Key: "src", Val: src},
		},
	}
}

func stylesheetNode(href string) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		Data:     "link",
		DataAtom: atom.Link,
		Attr: []html.Attribute{
			{Key: "rel", Val: "stylesheet"},
			{Key: "href", Val: href},
		},
	}
}
