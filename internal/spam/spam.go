// Package spam scores relayed messages. A high score flags a message; it
// never stops it from being stored or forwarded.
package spam

import (
	"regexp"
	"strings"
	"unicode"
)

// DefaultKeywords is the denylist. Each keyword counts at most once.
var DefaultKeywords = []string{
	"lottery",
	"click here",
	"winner",
	"you have won",
	"free money",
	"make money fast",
	"earn money from home",
	"work from home",
	"wire transfer",
	"western union",
	"bitcoin investment",
	"crypto investment",
	"viagra",
	"casino",
	"act now",
	"limited time offer",
	"100% free",
	"risk-free",
	"no credit check",
	"guaranteed income",
}

const (
	keywordWeight   = 0.3
	linkWeight      = 0.2
	uppercaseWeight = 0.2
	symbolWeight    = 0.15

	maxLinks          = 5
	uppercaseFraction = 0.3

	// Threshold is the score at which a message is flagged.
	Threshold = 0.5
)

var linkPattern = regexp.MustCompile(`(?i)https?://`)

type Result struct {
	Score   float64  `json:"score"`
	IsSpam  bool     `json:"is_spam"`
	Reasons []string `json:"reasons,omitempty"`
}

type Detector struct {
	Keywords []string
}

func New(keywords ...string) *Detector {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	lower := make([]string, len(keywords))
	for i, k := range keywords {
		lower[i] = strings.ToLower(k)
	}
	return &Detector{Keywords: lower}
}

// Detect scores subject and body together.
func (d *Detector) Detect(subject, body string) Result {
	text := subject + " " + body
	lower := strings.ToLower(text)

	var res Result
	for _, k := range d.Keywords {
		if strings.Contains(lower, k) {
			res.Score += keywordWeight
			res.Reasons = append(res.Reasons, "keyword:"+k)
		}
	}

	if n := len(linkPattern.FindAllStringIndex(text, -1)); n > maxLinks {
		res.Score += linkWeight
		res.Reasons = append(res.Reasons, "links")
	}

	if upperRatio(text) > uppercaseFraction {
		res.Score += uppercaseWeight
		res.Reasons = append(res.Reasons, "uppercase")
	}

	if strings.Contains(text, "$$$") || strings.Contains(text, "!!!") {
		res.Score += symbolWeight
		res.Reasons = append(res.Reasons, "symbols")
	}

	if res.Score > 1 {
		res.Score = 1
	}
	res.IsSpam = res.Score >= Threshold
	return res
}

// upperRatio is the share of uppercase letters among all characters.
func upperRatio(s string) float64 {
	var total, upper int
	for _, r := range s {
		total++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(upper) / float64(total)
}

var defaultDetector = New()

// DetectSpam scores with DefaultKeywords.
func DetectSpam(subject, body string) Result {
	return defaultDetector.Detect(subject, body)
}
