//go:build property

package entrypoints

import (
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

type op struct {
	add  bool
	path string
}

func genOp() gopter.Gen {
	return gopter.CombineGens(
		gen.Bool(),
		gen.OneConstOf("a.html", "b.html", "c.html", "nested/d.html", "main.ts", "style.css"),
	).Map(func(values []interface{}) op {
		return op{add: values[0].(bool), path: values[1].(string)}
	})
}

// TestSetProperties validates membership against a reference model.
func TestSetProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(4242)
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("membership equals added-and-not-removed", prop.ForAll(
		func(ops []op) bool {
			set := New(".html")
			model := map[string]bool{}

			for _, o := range ops {
				if o.add {
					set.Add(o.path)
					if set.Matches(o.path) {
						model[o.path] = true
					}
				} else {
					set.Remove(o.path)
					delete(model, o.path)
				}
			}

			want := make([]string, 0, len(model))
			for path := range model {
				want = append(want, path)
			}
			sort.Strings(want)

			return Equal(set.Snapshot(), want)
		},
		gen.SliceOf(genOp()),
	))

	properties.Property("snapshots of an unchanged set are equal", prop.ForAll(
		func(ops []op) bool {
			set := New(".html")
			for _, o := range ops {
				if o.add {
					set.Add(o.path)
				}
			}
			return Equal(set.Snapshot(), set.Snapshot())
		},
		gen.SliceOf(genOp()),
	))

	properties.TestingRun(t)
}
