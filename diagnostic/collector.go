package diagnostic

import (
	"sort"
)

// Collector gathers the diagnostics of one definition file.
type Collector struct {
	diagnostics []Diagnostic
	source      string // Source file path
	content     string // Source content for position calculations
}

// NewCollector creates a new diagnostic collector
func NewCollector(source, content string) *Collector {
	return &Collector{
		source:  source,
		content: content,
	}
}

// Add adds a diagnostic to the collection
func (c *Collector) Add(diag Diagnostic) {
	c.diagnostics = append(c.diagnostics, diag)
}

// AddError adds an error diagnostic
func (c *Collector) AddError(r Range, code, message string) {
	c.Add(NewDiagnostic(r, SeverityError, code, message))
}

// AddWarning adds a warning diagnostic
func (c *Collector) AddWarning(r Range, code, message string) {
	c.Add(NewDiagnostic(r, SeverityWarning, code, message))
}

// AddInfo adds an info diagnostic
func (c *Collector) AddInfo(r Range, code, message string) {
	c.Add(NewDiagnostic(r, SeverityInfo, code, message))
}

// AddAtToken adds a diagnostic positioned on token, searched after prefix.
// A token that cannot be found puts the diagnostic at the start of the file.
func (c *Collector) AddAtToken(severity Severity, prefix, token, code, message string) {
	r, _ := FindToken(c.content, prefix, token)
	c.Add(NewDiagnostic(r, severity, code, message))
}

// All returns all collected diagnostics, sorted by location
func (c *Collector) All() []Diagnostic {
	sort.SliceStable(c.diagnostics, func(i, j int) bool {
		if c.diagnostics[i].Range.Start.Line != c.diagnostics[j].Range.Start.Line {
			return c.diagnostics[i].Range.Start.Line < c.diagnostics[j].Range.Start.Line
		}
		return c.diagnostics[i].Range.Start.Character < c.diagnostics[j].Range.Start.Character
	})
	return c.diagnostics
}

// Errors returns only error-level diagnostics
func (c *Collector) Errors() []Diagnostic {
	return c.bySeverity(SeverityError)
}

// Warnings returns only warning-level diagnostics
func (c *Collector) Warnings() []Diagnostic {
	return c.bySeverity(SeverityWarning)
}

func (c *Collector) bySeverity(s Severity) []Diagnostic {
	var out []Diagnostic
	for _, d := range c.diagnostics {
		if d.Severity == s {
			out = append(out, d)
		}
	}
	return out
}

// HasErrors returns true if there are any errors
func (c *Collector) HasErrors() bool {
	return len(c.Errors()) > 0
}

// Count returns the total number of diagnostics
func (c *Collector) Count() int {
	return len(c.diagnostics)
}

// Content returns the source content
func (c *Collector) Content() string {
	return c.content
}

// Source returns the source file path
func (c *Collector) Source() string {
	return c.source
}
