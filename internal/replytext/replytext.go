// Package replytext separates the new text of an email reply from the quoted
// history mail clients append below it.
//
// The cut is a heuristic. A boundary is the start of any line matching one of
// an ordered list of patterns; the earliest boundary in the body wins, and a
// tie at the same offset goes to the pattern listed first. When no boundary
// is found the body is returned untouched.
package replytext

import (
	"regexp"
	"strings"
)

// Boundary is one client-specific marker that starts quoted history.
type Boundary struct {
	Name    string
	Pattern *regexp.Regexp
}

// DefaultBoundaries is the ordered list used by Extract.
var DefaultBoundaries = []Boundary{
	// Gmail/Apple: "On Mon, Jan 5, 2024 at 10:00 AM Jane <jane@x.com> wrote:",
	// sometimes wrapped onto a second line.
	{Name: "on-wrote", Pattern: regexp.MustCompile(`(?m)^[ \t]*On\s[^\n]*(?:\n[^\n]*)?\swrote:[ \t]*$`)},
	{Name: "el-escribio", Pattern: regexp.MustCompile(`(?m)^[ \t]*El\s[^\n]*(?:\n[^\n]*)?\sescribió:[ \t]*$`)},
	// Outlook style forwarded header block.
	{Name: "from-header", Pattern: regexp.MustCompile(`(?m)^[ \t]*\*?(?:From|De)\s*:\*?[ \t]+\S`)},
	{Name: "hyphen-rule", Pattern: regexp.MustCompile(`(?m)^[ \t]*-{3,}`)},
	{Name: "quote-prefix", Pattern: regexp.MustCompile(`(?m)^[ \t]*>`)},
}

var (
	quotedLine = regexp.MustCompile(`(?m)^[ \t]*>.*(?:\n|$)`)
	blankRun   = regexp.MustCompile(`\n(?:[ \t]*\n){3,}`)
)

// Extractor cuts reply bodies at the earliest of its boundaries.
type Extractor struct {
	Boundaries []Boundary
}

// New returns an extractor over the given boundaries, or DefaultBoundaries
// when none are passed.
func New(boundaries ...Boundary) *Extractor {
	if len(boundaries) == 0 {
		boundaries = DefaultBoundaries
	}
	return &Extractor{Boundaries: boundaries}
}

// Match describes where a body was cut.
type Match struct {
	Boundary string
	Offset   int
}

// Extract returns the reply text and the boundary it was cut at, if any.
func (e *Extractor) Extract(body string) (string, *Match) {
	normalized := strings.ReplaceAll(body, "\r\n", "\n")

	m := e.earliest(normalized)
	if m == nil {
		return body, nil
	}

	out := normalized[:m.Offset]
	out = quotedLine.ReplaceAllString(out, "")
	out = blankRun.ReplaceAllString(out, "\n\n")
	out = strings.TrimSpace(out)
	if out == "" {
		// Everything was quoted, most likely a top-quoted forward. Keeping
		// too much beats dropping the message.
		return body, m
	}
	return out, m
}

func (e *Extractor) earliest(body string) *Match {
	var best *Match
	for _, b := range e.Boundaries {
		loc := b.Pattern.FindStringIndex(body)
		if loc == nil {
			continue
		}
		if best == nil || loc[0] < best.Offset {
			best = &Match{Boundary: b.Name, Offset: loc[0]}
		}
	}
	return best
}

var defaultExtractor = New()

// ExtractReplyContent cuts body with DefaultBoundaries.
func ExtractReplyContent(body string) string {
	out, _ := defaultExtractor.Extract(body)
	return out
}
