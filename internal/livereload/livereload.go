// Package livereload ships the browser client that reacts to esbuild's
// change stream and mirrors its update policy in Go.
package livereload

import (
	_ "embed"
	"math/rand"
	"net/url"
	"strconv"
)

// EventPath is where esbuild's server publishes change events.
const EventPath = "/esbuild"

// ModuleName is the import specifier of the client module.
const ModuleName = "scaffold:live-reload"

//go:embed client.js
var clientSource string

const inertSource = "export function enableLiveReload() {}\n"

// ClientSource returns the client module. When live reload is disabled the
// module only exports a no-op so production output carries no client.
func ClientSource(enabled bool) string {
	if !enabled {
		return inertSource
	}
	return clientSource
}

// Change is the payload of a change event. Paths are URL paths relative to
// the serve root.
type Change struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
	Updated []string `json:"updated"`
}

// Action is what the page does in response to a change.
type Action int

const (
	Reload Action = iota
	Swap
)

func (a Action) String() string {
	switch a {
	case Swap:
		return "swap"
	default:
		return "reload"
	}
}

// Decision is the outcome of Plan. LinkIndex and Href are only set for Swap.
type Decision struct {
	Action    Action
	LinkIndex int
	Href      string
}

// Plan decides how a page at page, holding stylesheet links with the given
// hrefs, reacts to change. A change that only updates one file which
// matches a same-host link is swapped in place; everything else reloads.
func Plan(change Change, page *url.URL, links []string) Decision {
	if len(change.Added) > 0 || len(change.Removed) > 0 || len(change.Updated) != 1 {
		return Decision{Action: Reload}
	}

	updated := change.Updated[0]
	for i, href := range links {
		u, err := page.Parse(href)
		if err != nil {
			continue
		}
		if u.Host == page.Host && u.Path == updated {
			return Decision{Action: Swap, LinkIndex: i, Href: CacheBust(updated)}
		}
	}

	return Decision{Action: Reload}
}

// CacheBust appends a random query to path.
func CacheBust(path string) string {
	return path + "?" + strconv.FormatUint(rand.Uint64(), 36)
}
