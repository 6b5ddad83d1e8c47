// Package diagnostics defines the diagnostic record exchanged between the
// type-check sidecar, the watcher and the console reporter, and renders
// diagnostics the way esbuild renders its own messages.
package diagnostics

// Kind is the severity of a diagnostic.
type Kind string

const (
	KindError   Kind = "error"
	KindWarning Kind = "warning"
)

// Well-known diagnostic sources.
const (
	SourceWatcher    = "watcher"
	SourceTypeScript = "typescript"
)

// Location points at the source of a diagnostic. Line is 1-based, Column is
// 0-based.
type Location struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Length   int    `json:"length"`
	LineText string `json:"lineText"`
}

// Diagnostic is an immutable error or warning record.
type Diagnostic struct {
	Text     string    `json:"text"`
	Kind     Kind      `json:"kind"`
	ID       string    `json:"id"`
	Location *Location `json:"location,omitempty"`

	// Notes are rendered below the message. They are not part of the wire
	// record.
	Notes []string `json:"-"`
}

// IsError reports whether the diagnostic is an error.
func (d Diagnostic) IsError() bool {
	return d.Kind == KindError
}
