package secrets

import (
	"regexp"
	"sort"
	"strings"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// Redactor replaces sensitive spans with a placeholder. It is immutable and
// safe for concurrent use.
type Redactor struct {
	enabled     bool
	placeholder string
	rules       []*compiledRule
	allow       []*regexp.Regexp
	detector    *detect.Detector
}

// New compiles cfg into a Redactor.
func New(cfg Config) (*Redactor, error) {
	r := &Redactor{enabled: cfg.Enabled, placeholder: cfg.Placeholder}
	if r.placeholder == "" {
		r.placeholder = DefaultPlaceholder
	}
	if !cfg.Enabled {
		return r, nil
	}

	rules := cfg.Rules
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	var err error
	if r.rules, err = compileRules(rules); err != nil {
		return nil, err
	}
	if r.allow, err = compileAllowList(cfg.AllowList); err != nil {
		return nil, err
	}
	if cfg.Gitleaks {
		if r.detector, err = newDetector(r.allow); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Enabled reports whether the redactor changes anything.
func (r *Redactor) Enabled() bool {
	return r != nil && r.enabled
}

type span struct {
	start, end int
}

// Scrub redacts content and reports what it found.
func (r *Redactor) Scrub(content string) *Result {
	res := &Result{Scrubbed: content, ByRule: map[string]int{}}
	if !r.Enabled() || content == "" {
		return res
	}

	var spans []span
	for _, rule := range r.rules {
		if !rule.applies(content) {
			continue
		}
		for _, m := range rule.pattern.FindAllStringIndex(content, -1) {
			if r.allowed(content[m[0]:m[1]]) {
				continue
			}
			res.Findings = append(res.Findings, Finding{
				RuleID:   rule.ID,
				Severity: rule.Severity,
				Start:    m[0],
				End:      m[1],
				Line:     strings.Count(content[:m[0]], "\n") + 1,
			})
			res.ByRule[rule.ID]++
			spans = append(spans, span{m[0], m[1]})
		}
	}
	if r.detector != nil {
		spans = r.detectCredentials(content, res, spans)
	}
	if len(spans) == 0 {
		return res
	}

	sort.Slice(res.Findings, func(i, j int) bool { return res.Findings[i].Start < res.Findings[j].Start })
	res.Scrubbed = r.replace(content, merge(spans))
	return res
}

// Redact returns content with sensitive spans replaced.
func (r *Redactor) Redact(content string) string {
	return r.Scrub(content).Scrubbed
}

func (r *Redactor) allowed(match string) bool {
	for _, re := range r.allow {
		if re.MatchString(match) {
			return true
		}
	}
	return false
}

func (r *Redactor) replace(content string, spans []span) string {
	var b strings.Builder
	b.Grow(len(content))
	prev := 0
	for _, s := range spans {
		b.WriteString(content[prev:s.start])
		b.WriteString(r.placeholder)
		prev = s.end
	}
	b.WriteString(content[prev:])
	return b.String()
}

// merge sorts spans and joins overlapping or adjacent ones.
func merge(spans []span) []span {
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	out := []span{spans[0]}
	for _, s := range spans[1:] {
		last := &out[len(out)-1]
		if s.start <= last.end {
			if s.end > last.end {
				last.end = s.end
			}
			continue
		}
		out = append(out, s)
	}
	return out
}
