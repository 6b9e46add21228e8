package secrets

import (
	"fmt"
	"regexp"
)

// DefaultPlaceholder replaces every redacted span.
const DefaultPlaceholder = "[REDACTED]"

// Config configures the redactor.
type Config struct {
	// Enabled controls whether redaction is active.
	Enabled bool `koanf:"enabled"`

	// Rules defines the detection rules. Empty means DefaultRules.
	Rules []Rule `koanf:"rules"`

	// Placeholder replaces each redacted span.
	Placeholder string `koanf:"placeholder"`

	// AllowList holds patterns for matches that are kept as is.
	AllowList []string `koanf:"allow_list"`

	// Gitleaks adds the gitleaks default credential rules on top of Rules.
	Gitleaks bool `koanf:"gitleaks"`
}

// Rule defines a detection rule.
type Rule struct {
	ID          string `koanf:"id"`
	Description string `koanf:"description"`
	Pattern     string `koanf:"pattern"`

	// Keywords gate the rule: it runs only if one of them occurs in the
	// text (case-insensitive).
	Keywords []string `koanf:"keywords"`

	// Severity is high, medium or low.
	Severity string `koanf:"severity"`
}

type compiledRule struct {
	Rule
	pattern  *regexp.Regexp
	keywords []*regexp.Regexp
}

// DefaultConfig enables redaction with DefaultRules.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		Placeholder: DefaultPlaceholder,
		Rules:       DefaultRules(),
		Gitleaks:    true,
	}
}

func compileRules(rules []Rule) ([]*compiledRule, error) {
	out := make([]*compiledRule, 0, len(rules))
	for i, rule := range rules {
		if rule.ID == "" {
			return nil, fmt.Errorf("rule %d: id is required", i)
		}
		if rule.Pattern == "" {
			return nil, fmt.Errorf("rule %s: pattern is required", rule.ID)
		}
		pattern, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %s: invalid pattern: %w", rule.ID, err)
		}

		c := &compiledRule{Rule: rule, pattern: pattern}
		for _, kw := range rule.Keywords {
			c.keywords = append(c.keywords, regexp.MustCompile("(?i)"+regexp.QuoteMeta(kw)))
		}
		out = append(out, c)
	}
	return out, nil
}

func compileAllowList(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("allow_list %d: invalid pattern: %w", i, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func (r *compiledRule) applies(content string) bool {
	if len(r.keywords) == 0 {
		return true
	}
	for _, kw := range r.keywords {
		if kw.MatchString(content) {
			return true
		}
	}
	return false
}
