package bundler

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Metafile is the subset of esbuild's metafile the HTML plugin reads.
type Metafile struct {
	Outputs map[string]MetafileOutput `json:"outputs"`
}

// MetafileOutput is one output file. Paths are relative to the working
// directory.
type MetafileOutput struct {
	Bytes      int    `json:"bytes"`
	EntryPoint string `json:"entryPoint,omitempty"`
	CSSBundle  string `json:"cssBundle,omitempty"`
}

func parseMetafile(data string) (*Metafile, error) {
	var m Metafile
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, fmt.Errorf("parsing metafile: %w", err)
	}
	return &m, nil
}

// output finds the output produced for entry point entry, ignoring source
// maps.
func (m *Metafile) output(entry string) (string, MetafileOutput, bool) {
	for path, out := range m.Outputs {
		if out.EntryPoint == entry && !strings.HasSuffix(path, ".map") {
			return path, out, true
		}
	}
	return "", MetafileOutput{}, false
}
