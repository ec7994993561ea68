package diagnostic

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Formatter renders diagnostics for the terminal.
type Formatter struct {
	// ShowSource prefixes each diagnostic with file:line:col.
	ShowSource bool
	// ShowCodeContext prints the offending line with an underline.
	ShowCodeContext bool
}

// NewFormatter returns a formatter printing source locations only.
func NewFormatter() *Formatter {
	return &Formatter{ShowSource: true}
}

var severityColors = map[Severity]*color.Color{
	SeverityError:   color.New(color.FgRed, color.Bold),
	SeverityWarning: color.New(color.FgYellow, color.Bold),
	SeverityInfo:    color.New(color.FgCyan),
}

// Format renders d found in file with the given content.
func (f *Formatter) Format(d Diagnostic, file, content string) string {
	var b strings.Builder
	if f.ShowSource {
		fmt.Fprintf(&b, "%s:%d:%d: ", file, d.Range.Start.Line+1, d.Range.Start.Character+1)
	}
	fmt.Fprintf(&b, "%s %s", severityColors[d.Severity].Sprint(d.Severity.String()), d.Message)
	if d.Code != "" {
		fmt.Fprintf(&b, " [%s]", d.Code)
	}
	b.WriteString("\n")

	if !f.ShowCodeContext || content == "" {
		return b.String()
	}

	lines := strings.Split(content, "\n")
	if d.Range.Start.Line >= len(lines) {
		return b.String()
	}
	line := lines[d.Range.Start.Line]
	fmt.Fprintf(&b, "  → %s\n", line)

	width := 1
	if d.Range.End.Line == d.Range.Start.Line && d.Range.End.Character > d.Range.Start.Character {
		width = d.Range.End.Character - d.Range.Start.Character
	}
	fmt.Fprintf(&b, "    %s%s\n", strings.Repeat(" ", d.Range.Start.Character), strings.Repeat("~", width))
	return b.String()
}

// FormatAll renders every diagnostic of a collector.
func (f *Formatter) FormatAll(c *Collector) string {
	var b strings.Builder
	for _, d := range c.All() {
		b.WriteString(f.Format(d, c.Source(), c.Content()))
	}
	return b.String()
}
