//go:build property

package typecheck

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/conneroisu/scaffold/internal/diagnostics"
)

// TestParserProperties checks position normalization for any reported
// position.
func TestParserProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(2468)
	parameters.MinSuccessfulTests = 300

	properties := gopter.NewProperties(parameters)

	properties.Property("line >= 1 and column >= 0", prop.ForAll(
		func(line, col int, category string) bool {
			p := NewParser("")
			p.Feed(fmt.Sprintf("src/a.ts(%d,%d): %s TS1005: ';' expected.", line, col, category))
			diags := p.Flush()
			if len(diags) != 1 || diags[0].Location == nil {
				return false
			}
			loc := diags[0].Location
			if loc.Line < 1 || loc.Column < 0 {
				return false
			}
			if line >= 1 && loc.Line != line {
				return false
			}
			if col >= 1 && loc.Column != col-1 {
				return false
			}
			return (diags[0].Kind == diagnostics.KindError) == (category == "error")
		},
		gen.IntRange(0, 100000),
		gen.IntRange(0, 1000),
		gen.OneConstOf("error", "warning", "message", "suggestion"),
	))

	properties.TestingRun(t)
}
