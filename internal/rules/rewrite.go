package rules

import (
	"net/http"
	"regexp"

	"github.com/steerhttp/steer/internal/observability"
	"github.com/steerhttp/steer/internal/pattern"
)

// RewriteResult is the outcome of rewrite resolution. Internal rewrites
// yield a new effective path for downstream lookup; external rewrites must
// be proxied by the caller, no local dispatch occurs.
type RewriteResult struct {
	Matched     bool
	Phase       Phase
	Path        string
	IsExternal  bool
	ExternalURL string
}

// schemeRe recognizes destinations carrying a URL scheme.
var schemeRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*://`)

// ResolveRewrite tests one named phase, or all phases in declared order
// when phase is PhaseAll, returning not-matched when nothing in any tested
// phase applies. First match wins within and across phases.
func (r *Resolver) ResolveRewrite(req *http.Request, set *RewriteSet, phase Phase) RewriteResult {
	if set == nil {
		return RewriteResult{}
	}

	for _, p := range phasesFor(phase) {
		if result := r.resolvePhase(req, set.phase(p), p); result.Matched {
			return result
		}
	}

	return RewriteResult{}
}

// phasesFor expands PhaseAll into the ordered phase list.
func phasesFor(phase Phase) []Phase {
	if phase == PhaseAll {
		return []Phase{PhaseBeforeFiles, PhaseAfterFiles, PhaseFallback}
	}
	return []Phase{phase}
}

// phase returns the rules of one named phase.
func (s *RewriteSet) phase(p Phase) []Rewrite {
	switch p {
	case PhaseBeforeFiles:
		return s.BeforeFiles
	case PhaseAfterFiles:
		return s.AfterFiles
	case PhaseFallback:
		return s.Fallback
	default:
		return nil
	}
}

// SplitExternal reports whether a rewrite target is an absolute external
// URL, returning it unchanged when so.
func SplitExternal(target string) (string, bool) {
	if schemeRe.MatchString(target) {
		return target, true
	}
	return "", false
}

// IsEmpty reports whether no phase carries rules.
func (s *RewriteSet) IsEmpty() bool {
	return s == nil ||
		len(s.BeforeFiles) == 0 && len(s.AfterFiles) == 0 && len(s.Fallback) == 0
}

// resolvePhase runs first-match-wins resolution over one phase's rules.
func (r *Resolver) resolvePhase(req *http.Request, rewrites []Rewrite, phase Phase) RewriteResult {
	for i := range rewrites {
		rule := &rewrites[i]

		params, captures, ok := r.matchRule(req, rule.Source, rule.BasePath, rule.Has, rule.Missing)
		if !ok {
			continue
		}

		destination := pattern.ApplyParams(rule.Destination, params, captures)

		result := RewriteResult{
			Matched: true,
			Phase:   phase,
		}
		if schemeRe.MatchString(destination) {
			result.IsExternal = true
			result.ExternalURL = destination
		} else {
			result.Path = destination
		}

		r.logger.Debug("rewrite rule matched",
			observability.String("source", rule.Source),
			observability.String("destination", destination),
			observability.String("phase", string(phase)),
			observability.Bool("external", result.IsExternal),
		)

		return result
	}

	return RewriteResult{}
}
