package typecheck

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/conneroisu/scaffold/internal/diagnostics"
)

// Parser turns tsc output produced with --pretty false into diagnostics.
// Lines are fed one at a time; a diagnostic is emitted once the line after
// its last continuation arrives, or on Flush.
type Parser struct {
	root     string
	patterns []diagPattern
	pending  *diagnostics.Diagnostic
	lines    map[string][]string
}

type diagPattern struct {
	regex       *regexp.Regexp
	parseFields func(matches []string) (file string, line, column int, category, code, text string)
}

// NewParser creates a parser resolving relative file names against root.
func NewParser(root string) *Parser {
	return &Parser{
		root:     root,
		patterns: buildPatterns(),
		lines:    make(map[string][]string),
	}
}

func buildPatterns() []diagPattern {
	return []diagPattern{
		{
			// src/main.ts(3,7): error TS2322: Type 'string' is not assignable to type 'number'.
			regex: regexp.MustCompile(`^(.+)\((\d+),(\d+)\): (error|warning|message|suggestion) TS(\d+): (.*)$`),
			parseFields: func(m []string) (string, int, int, string, string, string) {
				line, _ := strconv.Atoi(m[2])
				col, _ := strconv.Atoi(m[3])
				return m[1], line, col, m[4], m[5], m[6]
			},
		},
		{
			// error TS5083: Cannot read file 'tsconfig.base.json'.
			regex: regexp.MustCompile(`^(error|warning|message|suggestion) TS(\d+): (.*)$`),
			parseFields: func(m []string) (string, int, int, string, string, string) {
				return "", 0, 0, m[1], m[2], m[3]
			},
		},
	}
}

// Feed consumes one output line and returns the diagnostics it completes.
func (p *Parser) Feed(line string) []diagnostics.Diagnostic {
	line = strings.TrimRight(line, "\r\n")

	if p.pending != nil && isContinuation(line) {
		p.pending.Text += "\n" + strings.TrimSpace(line)
		return nil
	}

	done := p.Flush()

	if strings.TrimSpace(line) == "" {
		return done
	}

	for _, pattern := range p.patterns {
		m := pattern.regex.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		file, ln, col, category, code, text := pattern.parseFields(m)
		d := p.newDiagnostic(file, ln, col, category, code, text)
		p.pending = &d
		return done
	}

	// Anything else is watch status output.
	if isStatusLine(line) {
		clear(p.lines)
	}
	return done
}

// Flush returns the diagnostic still being assembled, if any.
func (p *Parser) Flush() []diagnostics.Diagnostic {
	if p.pending == nil {
		return nil
	}
	d := *p.pending
	p.pending = nil
	return []diagnostics.Diagnostic{d}
}

func (p *Parser) newDiagnostic(file string, line, col int, category, code, text string) diagnostics.Diagnostic {
	d := diagnostics.Diagnostic{
		Text: text,
		Kind: diagnostics.KindWarning,
		ID:   "ts" + code,
	}
	if category == "error" {
		d.Kind = diagnostics.KindError
	}

	if file != "" {
		line = max(line, 1)
		column := max(col-1, 0)
		lineText := p.lineText(file, line)
		d.Location = &diagnostics.Location{
			File:     file,
			Line:     line,
			Column:   column,
			Length:   tokenLength(lineText, column),
			LineText: lineText,
		}
	}

	return d
}

// lineText returns the text of line in file, or "" when it cannot be read.
func (p *Parser) lineText(file string, line int) string {
	path := file
	if !filepath.IsAbs(path) && p.root != "" {
		path = filepath.Join(p.root, path)
	}

	lines, ok := p.lines[path]
	if !ok {
		lines = readLines(path)
		p.lines[path] = lines
	}

	if line-1 < len(lines) {
		return lines[line-1]
	}
	return ""
}

// tokenLength is the length of the token starting at column. tsc does not
// print spans, so an identifier underlines as a whole and anything else as a
// single character.
func tokenLength(lineText string, column int) int {
	if column >= len(lineText) {
		return 0
	}

	n := 0
	for _, r := range lineText[column:] {
		if r != '_' && r != '$' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		n += utf8.RuneLen(r)
	}
	if n > 0 {
		return n
	}

	r, size := utf8.DecodeRuneInString(lineText[column:])
	if unicode.IsSpace(r) {
		return 0
	}
	return size
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	return lines
}

func isContinuation(line string) bool {
	return strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")
}

// isStatusLine matches tsc's watch progress messages, such as
// "12:00:00 PM - Starting compilation in watch mode..." and
// "12:00:01 PM - Found 0 errors. Watching for file changes.".
func isStatusLine(line string) bool {
	return strings.Contains(line, "Starting compilation") ||
		strings.Contains(line, "File change detected") ||
		strings.Contains(line, "Watching for file changes")
}
