package secrets

import (
	"fmt"
	"regexp"
	"strings"

	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
)

// gitleaksSeverity is reported for every credential gitleaks finds.
const gitleaksSeverity = "high"

// newDetector builds a gitleaks detector over its default rule set with the
// allow list merged into the global allowlists.
func newDetector(allow []*regexp.Regexp) (*detect.Detector, error) {
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("gitleaks detector: %w", err)
	}
	if len(allow) > 0 {
		applyAllowList(&detector.Config, allow)
	}
	return detector, nil
}

func applyAllowList(cfg *gitleaksConfig.Config, allow []*regexp.Regexp) {
	list := &gitleaksConfig.Allowlist{Description: "devaudit redaction allow list"}
	for _, re := range allow {
		list.Regexes = append(list.Regexes, (*gitleaksRegexp.Regexp)(re))
	}
	cfg.Allowlists = append(cfg.Allowlists, list)
}

// detectCredentials runs gitleaks over content and appends findings for
// secrets not already inside one of spans.
func (r *Redactor) detectCredentials(content string, res *Result, spans []span) []span {
	for _, f := range r.detector.DetectString(content) {
		secret := f.Secret
		if secret == "" {
			secret = f.Match
		}
		if secret == "" || r.allowed(secret) {
			continue
		}
		for off := 0; off < len(content); {
			i := strings.Index(content[off:], secret)
			if i < 0 {
				break
			}
			s := span{off + i, off + i + len(secret)}
			off = s.end
			if covered(spans, s) {
				continue
			}
			res.Findings = append(res.Findings, Finding{
				RuleID:   f.RuleID,
				Severity: gitleaksSeverity,
				Start:    s.start,
				End:      s.end,
				Line:     strings.Count(content[:s.start], "\n") + 1,
			})
			res.ByRule[f.RuleID]++
			spans = append(spans, s)
		}
	}
	return spans
}

func covered(spans []span, s span) bool {
	for _, c := range spans {
		if c.start <= s.start && s.end <= c.end {
			return true
		}
	}
	return false
}
