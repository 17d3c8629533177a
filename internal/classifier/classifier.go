package classifier

import (
	"regexp"
	"strings"

	"github.com/SteelMorgan/logstream/internal/domain"
)

// Rule maps a lower-case level root onto a normalized severity
type Rule struct {
	Root     string
	Severity domain.Severity
}

// Rules is the ordered rule table used by a Classifier
type Rules struct {
	// Tokens are matched case-sensitively as whole words (first tier)
	Tokens []string
	// Suffixed roots are matched case-insensitively when directly followed by digits, '-' or '_' (first tier)
	Suffixed []string
	// Normalize maps a matched token onto a severity by prefix, first match wins
	Normalize []Rule
	// Contains is the substring fallback (second tier), checked in order on the lower-cased line
	Contains []Rule
	// Default is returned when nothing matches
	Default domain.Severity
}

// DefaultRules returns the standard two-tier rule table
func DefaultRules() Rules {
	return Rules{
		Tokens: []string{
			"ERROR", "WARNING", "WARN", "INFO", "DEBUG", "TRACE",
			"CRIT", "FATAL", "ALERT", "EMERG", "PANIC", "NOTICE",
		},
		Suffixed: []string{
			"trace", "warn", "error", "debug", "crit", "fatal", "emerg", "alert", "panic",
		},
		Normalize: []Rule{
			{Root: "trace", Severity: domain.SeverityTrace},
			{Root: "debug", Severity: domain.SeverityDebug},
			{Root: "info", Severity: domain.SeverityInfo},
			{Root: "warn", Severity: domain.SeverityWarning},
			{Root: "error", Severity: domain.SeverityError},
			{Root: "crit", Severity: domain.SeverityError},
			{Root: "fatal", Severity: domain.SeverityError},
			{Root: "emerg", Severity: domain.SeverityError},
			{Root: "panic", Severity: domain.SeverityError},
			{Root: "alert", Severity: domain.SeverityWarning},
			{Root: "notice", Severity: domain.SeverityWarning},
		},
		Contains: []Rule{
			{Root: "error", Severity: domain.SeverityError},
			{Root: "crit", Severity: domain.SeverityError},
			{Root: "fatal", Severity: domain.SeverityError},
			{Root: "emerg", Severity: domain.SeverityError},
			{Root: "panic", Severity: domain.SeverityError},
			{Root: "warn", Severity: domain.SeverityWarning},
			{Root: "alert", Severity: domain.SeverityWarning},
			{Root: "debug", Severity: domain.SeverityDebug},
			{Root: "trace", Severity: domain.SeverityTrace},
		},
		Default: domain.SeverityInfo,
	}
}

// Classifier extracts a normalized severity from a line of text
type Classifier struct {
	rules   Rules
	pattern *regexp.Regexp
}

// New creates a classifier from a rule table
func New(rules Rules) (*Classifier, error) {
	pattern, err := regexp.Compile(buildPattern(rules))
	if err != nil {
		return nil, err
	}
	return &Classifier{rules: rules, pattern: pattern}, nil
}

// NewDefault creates a classifier with DefaultRules
func NewDefault() *Classifier {
	c, err := New(DefaultRules())
	if err != nil {
		panic(err) // the default table is static
	}
	return c
}

// wordChars is the Unicode word class; RE2's \b only knows ASCII words
const wordChars = `\p{L}\p{M}\p{N}\p{Pc}`

// buildPattern produces `(?:^|\W)(TOKENS)(?:\W|$)|((?i:roots)[\d\-_]+)` with a
// Unicode-aware \W. The matched token is in whichever group is non-empty.
func buildPattern(rules Rules) string {
	var parts []string
	if len(rules.Tokens) > 0 {
		parts = append(parts, `(?:^|[^`+wordChars+`])(`+joinQuoted(rules.Tokens)+`)(?:$|[^`+wordChars+`])`)
	}
	if len(rules.Suffixed) > 0 {
		parts = append(parts, `((?i:`+joinQuoted(rules.Suffixed)+`)[\d\-_]+)`)
	}
	if len(parts) == 0 {
		return `$^`
	}
	return strings.Join(parts, "|")
}

func joinQuoted(words []string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(quoted, "|")
}

// Classify returns the severity of line and the message, which is the line itself.
// The caller is expected to pass an already trimmed line.
func (c *Classifier) Classify(line string) (domain.Severity, string) {
	if m := c.pattern.FindStringSubmatch(line); m != nil {
		for _, token := range m[1:] {
			if token != "" {
				return c.Normalize(token), line
			}
		}
	}

	lower := strings.ToLower(line)
	for _, r := range c.rules.Contains {
		if strings.Contains(lower, r.Root) {
			return r.Severity, line
		}
	}
	return c.rules.Default, line
}

// Normalize maps a raw level token (e.g. "warn123", "NOTICE") onto a severity.
// Unknown tokens are upper-cased verbatim.
func (c *Classifier) Normalize(token string) domain.Severity {
	lower := strings.ToLower(token)
	for _, r := range c.rules.Normalize {
		if strings.HasPrefix(lower, r.Root) {
			return r.Severity
		}
	}
	return domain.Severity(strings.ToUpper(token))
}
