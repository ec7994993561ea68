// Package diagnostic reports problems found in migration and pipeline
// definition files, positioned on the offending text where possible.
package diagnostic

import "strings"

// Severity of a diagnostic.
type Severity int

const (
	SeverityError Severity = iota + 1
	SeverityWarning
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "ERROR"
	case SeverityWarning:
		return "WARNING"
	default:
		return "INFO"
	}
}

// Position is a zero-based line and character in a file, with its byte offset.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
	Offset    int `json:"offset"`
}

// Range spans two positions.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Diagnostic is a single reported problem.
type Diagnostic struct {
	Range    Range    `json:"range"`
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
}

// NewDiagnostic creates a diagnostic.
func NewDiagnostic(r Range, severity Severity, code, message string) Diagnostic {
	return Diagnostic{Range: r, Severity: severity, Code: code, Message: message}
}

// PositionFromOffset converts a byte offset in content into a position.
// Offsets past the end are clamped.
func PositionFromOffset(content string, offset int) Position {
	offset = max(0, min(offset, len(content)))
	before := content[:offset]
	line := strings.Count(before, "\n")
	lineStart := strings.LastIndex(before, "\n") + 1
	return Position{Line: line, Character: offset - lineStart, Offset: offset}
}

// RangeFromOffsets converts a byte span into a range.
func RangeFromOffsets(content string, start, end int) Range {
	return Range{Start: PositionFromOffset(content, start), End: PositionFromOffset(content, end)}
}

// FindToken returns the range of the first occurrence of token in content
// that follows prefix, e.g. the plugin name after "plugin:". The boolean is
// false when the token does not appear.
func FindToken(content, prefix, token string) (Range, bool) {
	from := 0
	if prefix != "" {
		if i := strings.Index(content, prefix); i >= 0 {
			from = i
		}
	}
	i := strings.Index(content[from:], token)
	if i < 0 {
		i = strings.Index(content, token)
		if i < 0 {
			return Range{}, false
		}
		return RangeFromOffsets(content, i, i+len(token)), true
	}
	return RangeFromOffsets(content, from+i, from+i+len(token)), true
}
