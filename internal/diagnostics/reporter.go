package diagnostics

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"
	"golang.org/x/term"
)

// Reporter prints diagnostics to the console. Errors go to one stream and
// warnings to another.
type Reporter struct {
	errOut  io.Writer
	warnOut io.Writer
	color   bool
	width   int
	mu      sync.Mutex
}

// NewReporter creates a reporter writing errors to errOut and warnings to
// warnOut.
func NewReporter(errOut, warnOut io.Writer, color bool) *Reporter {
	return &Reporter{
		errOut:  errOut,
		warnOut: warnOut,
		color:   color,
	}
}

// NewConsoleReporter reports errors on stderr and warnings on stdout, with
// color when stderr is a terminal.
func NewConsoleReporter() *Reporter {
	fd := int(os.Stderr.Fd())
	r := NewReporter(os.Stderr, os.Stdout, term.IsTerminal(fd))
	if width, _, err := term.GetSize(fd); err == nil {
		r.width = width
	}
	return r
}

// Report renders diags attributed to source.
func (r *Reporter) Report(source string, diags ...Diagnostic) {
	var errs, warns []api.Message
	for _, d := range diags {
		msg := toMessage(source, d)
		if d.IsError() {
			errs = append(errs, msg)
		} else {
			warns = append(warns, msg)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.write(r.errOut, errs, api.ErrorMessage)
	r.write(r.warnOut, warns, api.WarningMessage)
}

// ReportException reports a Go error as an error diagnostic. Each wrapped
// cause becomes a note.
func (r *Reporter) ReportException(source string, err error) {
	if err == nil {
		return
	}

	d := Diagnostic{
		Text: err.Error(),
		Kind: KindError,
	}
	for cause := errors.Unwrap(err); cause != nil; cause = errors.Unwrap(cause) {
		d.Notes = append(d.Notes, fmt.Sprintf("caused by: %v", cause))
	}

	r.Report(source, d)
}

func (r *Reporter) write(w io.Writer, msgs []api.Message, kind api.MessageKind) {
	if len(msgs) == 0 || w == nil {
		return
	}

	formatted := api.FormatMessages(msgs, api.FormatMessagesOptions{
		TerminalWidth: r.width,
		Kind:          kind,
		Color:         r.color,
	})
	for _, f := range formatted {
		_, _ = io.WriteString(w, strings.TrimRight(f, "\n")+"\n")
	}
}

func toMessage(source string, d Diagnostic) api.Message {
	msg := api.Message{
		ID:         d.ID,
		PluginName: source,
		Text:       d.Text,
	}

	if d.Location != nil {
		msg.Location = &api.Location{
			File:     d.Location.File,
			Line:     max(d.Location.Line, 1),
			Column:   max(d.Location.Column, 0),
			Length:   max(d.Location.Length, 0),
			LineText: d.Location.LineText,
		}
	}

	for _, note := range d.Notes {
		msg.Notes = append(msg.Notes, api.Note{Text: note})
	}

	return msg
}
