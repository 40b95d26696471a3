// Package sanitize removes secrets and personal data from text before it
// leaves the host.
package sanitize

import (
	"regexp"
	"sort"
	"strings"
)

type Rule struct {
	Name        string
	Pattern     *regexp.Regexp
	Replacement string
}

// Order matters: whole key blocks go first so their bodies are not
// partially matched by the token rules.
var defaultRules = []Rule{
	{
		Name:        "private_key",
		Pattern:     regexp.MustCompile(`(?s)-----BEGIN [A-Z0-9 ]*PRIVATE KEY-----.*?-----END [A-Z0-9 ]*PRIVATE KEY-----`),
		Replacement: "[REDACTED_PRIVATE_KEY]",
	},
	{
		Name: "token",
		Pattern: regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/=-]{16,}` +
			`|\bsk-[A-Za-z0-9_-]{16,}` +
			`|\bghp_[A-Za-z0-9]{20,}` +
			`|\bxox[bap]-[A-Za-z0-9-]{10,}` +
			`|\bAKIA[0-9A-Z]{16}\b`),
		Replacement: "[REDACTED_TOKEN]",
	},
	{
		Name:        "secret_assignment",
		Pattern:     regexp.MustCompile(`(?i)\b(password|passwd|pwd|secret|token|api[_-]?key|access[_-]?key|client[_-]?secret)(\s*[:=]\s*)("[^"]*"|'[^']*'|\S+)`),
		Replacement: "${1}${2}[REDACTED]",
	},
	{
		Name:        "email",
		Pattern:     regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
		Replacement: "[REDACTED_EMAIL]",
	},
	{
		Name:        "ipv4",
		Pattern:     regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\.){3}(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\b`),
		Replacement: "[REDACTED_IP]",
	},
	{
		Name: "ipv6",
		// The compressed forms need a hex group after "::" and may not touch
		// an identifier on the left, so Add::new and std::fs stay intact.
		Pattern: regexp.MustCompile(`(?i)(^|[^0-9a-z_:])(` +
			`(?:[0-9a-f]{1,4}:){7}[0-9a-f]{1,4}` +
			`|(?:[0-9a-f]{1,4}:){1,6}(?::[0-9a-f]{1,4}){1,6}` +
			`|::[0-9a-f]{1,4}(?::[0-9a-f]{1,4}){0,6}` +
			`)\b`),
		Replacement: "${1}[REDACTED_IPV6]",
	},
	{
		Name:        "mac",
		Pattern:     regexp.MustCompile(`\b(?:[0-9A-Fa-f]{2}[:-]){5}[0-9A-Fa-f]{2}\b`),
		Replacement: "[REDACTED_MAC]",
	},
}

// Sanitizer applies its rules in order. It holds no state after
// construction and is safe for concurrent use.
type Sanitizer struct {
	rules []Rule
}

// New builds a sanitizer with the built-in rules followed by the operator
// keyword list, matched case-insensitively on word boundaries.
func New(keywords []string) *Sanitizer {
	rules := make([]Rule, len(defaultRules), len(defaultRules)+1)
	copy(rules, defaultRules)
	if kw := keywordRule(keywords); kw != nil {
		rules = append(rules, *kw)
	}
	return &Sanitizer{rules: rules}
}

func keywordRule(keywords []string) *Rule {
	var quoted []string
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k != "" {
			quoted = append(quoted, regexp.QuoteMeta(k))
		}
	}
	if len(quoted) == 0 {
		return nil
	}
	// Longest first so "acme corp" wins over "acme".
	sort.SliceStable(quoted, func(i, j int) bool { return len(quoted[i]) > len(quoted[j]) })
	return &Rule{
		Name:        "keyword",
		Pattern:     regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`),
		Replacement: "[REDACTED]",
	}
}

func (s *Sanitizer) Rules() []Rule {
	return append([]Rule(nil), s.rules...)
}

// Scrub is the only way to obtain a Clean value.
func (s *Sanitizer) Scrub(text string) Clean {
	counts := make(map[string]int)
	for _, r := range s.rules {
		n := 0
		text = r.Pattern.ReplaceAllStringFunc(text, func(m string) string {
			n++
			return r.Pattern.ReplaceAllString(m, r.Replacement)
		})
		if n > 0 {
			counts[r.Name] = n
		}
	}
	return Clean{text: text, counts: counts, scrubbed: true}
}

// Clean is text that has been through Scrub.
type Clean struct {
	text     string
	counts   map[string]int
	scrubbed bool
}

func (c Clean) String() string {
	return c.text
}

// Valid reports whether c came from Scrub rather than being a zero value.
func (c Clean) Valid() bool {
	return c.scrubbed
}

// Redactions returns how many matches each rule replaced.
func (c Clean) Redactions() map[string]int {
	out := make(map[string]int, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

func (c Clean) Total() int {
	total := 0
	for _, v := range c.counts {
		total += v
	}
	return total
}
