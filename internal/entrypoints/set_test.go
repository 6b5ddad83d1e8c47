package entrypoints

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddRemoveRespectSuffix(t *testing.T) {
	set := New(".html")

	assert.True(t, set.Add("src/index.html"))
	assert.False(t, set.Add("src/index.html"), "duplicate add is a no-op")
	assert.False(t, set.Add("src/main.ts"))
	assert.False(t, set.Add("src/index.html.bak"))

	assert.True(t, set.Contains("src/index.html"))
	assert.False(t, set.Contains("src/main.ts"))
	assert.Equal(t, 1, set.Len())

	assert.False(t, set.Remove("src/main.ts"))
	assert.False(t, set.Remove("src/missing.html"))
	assert.True(t, set.Remove("src/index.html"))
	assert.Equal(t, 0, set.Len())
}

func TestSnapshotIsSortedAndFresh(t *testing.T) {
	set := New(".html")
	set.Add("src/z.html")
	set.Add("src/a.html")
	set.Add("src/m/index.html")

	first := set.Snapshot()
	assert.Equal(t, []string{"src/a.html", "src/m/index.html", "src/z.html"}, first)

	second := set.Snapshot()
	assert.True(t, Equal(first, second))

	first[0] = "mutated"
	assert.Equal(t, "src/a.html", set.Snapshot()[0], "callers must not alias internal state")
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want bool
	}{
		{"both nil", nil, nil, true},
		{"nil vs empty", nil, []string{}, false},
		{"empty vs empty", []string{}, []string{}, true},
		{"same contents", []string{"a", "b"}, []string{"a", "b"}, true},
		{"different length", []string{"a"}, []string{"a", "b"}, false},
		{"different order", []string{"b", "a"}, []string{"a", "b"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
		})
	}
}

func TestConcurrentMutation(t *testing.T) {
	set := New(".html")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				path := fmt.Sprintf("src/%d-%d.html", worker, j)
				set.Add(path)
				_ = set.Snapshot()
				if j%2 == 0 {
					set.Remove(path)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8*50, set.Len())
}
