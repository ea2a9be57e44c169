// Package middleware matches and executes the interception function that
// runs before normal handler dispatch.
package middleware

import (
	"net/http"
	"regexp"
	"time"

	"github.com/steerhttp/steer/internal/condition"
	"github.com/steerhttp/steer/internal/observability"
	"github.com/steerhttp/steer/internal/pattern"
	"github.com/steerhttp/steer/internal/util"
)

// matchAllSource is the pattern compiled when no declaration is given:
// run on every path, subject to the built-in exclusions.
const matchAllSource = "/:path*"

// MatcherConfig is one declared middleware matcher. Regexp, when set,
// overrides the compiled source pattern with a raw regular expression.
type MatcherConfig struct {
	Source  string                `yaml:"source,omitempty" json:"source,omitempty"`
	Regexp  string                `yaml:"regexp,omitempty" json:"regexp,omitempty"`
	Has     []condition.Condition `yaml:"has,omitempty" json:"has,omitempty"`
	Missing []condition.Condition `yaml:"missing,omitempty" json:"missing,omitempty"`
}

// Matcher is a normalized middleware matcher, compiled once at
// middleware-load time and reused across requests.
type Matcher struct {
	Source  string
	Regex   *regexp.Regexp
	Has     []condition.Condition
	Missing []condition.Condition
}

// CompileMatchers builds normalized matchers from a declaration that may be
// a bare string, a string slice, a MatcherConfig slice, or nil. A nil
// declaration yields the match-everything matcher.
func CompileMatchers(declaration any, cache *pattern.Cache) ([]Matcher, error) {
	if cache == nil {
		cache = pattern.NewCache()
	}

	configs, err := normalizeDeclaration(declaration)
	if err != nil {
		return nil, err
	}

	matchers := make([]Matcher, 0, len(configs))
	for _, cfg := range configs {
		matcher, err := compileMatcher(cfg, cache)
		if err != nil {
			return nil, err
		}
		matchers = append(matchers, matcher)
	}

	return matchers, nil
}

// normalizeDeclaration expands the accepted declaration shapes into a
// uniform config list.
func normalizeDeclaration(declaration any) ([]MatcherConfig, error) {
	switch decl := declaration.(type) {
	case nil:
		return []MatcherConfig{{Source: matchAllSource}}, nil
	case string:
		return []MatcherConfig{{Source: decl}}, nil
	case []string:
		configs := make([]MatcherConfig, 0, len(decl))
		for _, source := range decl {
			configs = append(configs, MatcherConfig{Source: source})
		}
		return configs, nil
	case MatcherConfig:
		return []MatcherConfig{decl}, nil
	case []MatcherConfig:
		return decl, nil
	default:
		return nil, util.WrapError(util.ErrInvalidInput, "unsupported matcher declaration")
	}
}

// compileMatcher compiles one matcher config.
func compileMatcher(cfg MatcherConfig, cache *pattern.Cache) (Matcher, error) {
	matcher := Matcher{
		Source:  cfg.Source,
		Has:     cfg.Has,
		Missing: cfg.Missing,
	}

	if cfg.Regexp != "" {
		regex, err := regexp.Compile(cfg.Regexp)
		if err != nil {
			return Matcher{}, util.WrapError(err, "invalid matcher regexp")
		}
		matcher.Regex = regex
		return matcher, nil
	}

	source := cfg.Source
	if source == "" {
		source = matchAllSource
		matcher.Source = source
	}

	compiled, err := cache.Compile(source)
	if err != nil {
		return Matcher{}, err
	}
	matcher.Regex = compiled.Regex

	return matcher, nil
}

// Options adjust middleware matching and execution.
type Options struct {
	// DisableDefaultExclusions turns off the built-in static asset and
	// internal prefix skip list.
	DisableDefaultExclusions bool

	// BasePath is stripped from the path the handler observes. It does
	// not affect the matcher stage, which always operates on the raw
	// path.
	BasePath string

	// ContinueOnError suppresses handler errors, yielding a continue
	// result instead of a 500 response.
	ContinueOnError bool

	// Timeout, when positive, races the handler against a timer; a
	// timeout is treated identically to a handler error.
	Timeout time.Duration

	// Logger receives execution diagnostics. Nil disables logging.
	Logger observability.Logger

	// Evaluator evaluates matcher conditions. Nil means conditions are
	// compiled on every evaluation, so callers should share one.
	Evaluator *condition.Evaluator
}

// ShouldRun reports whether the interception function applies to the
// request: the built-in skip list must not apply, and at least one matcher
// must match the raw path with its conditions satisfied.
func ShouldRun(req *http.Request, matchers []Matcher, opts *Options) bool {
	path := req.URL.Path

	if (opts == nil || !opts.DisableDefaultExclusions) && skipByDefault(path) {
		return false
	}

	var evaluator *condition.Evaluator
	if opts != nil {
		evaluator = opts.Evaluator
	}
	if evaluator == nil {
		evaluator = condition.NewEvaluator()
	}

	for i := range matchers {
		m := &matchers[i]
		if !m.Regex.MatchString(path) {
			continue
		}
		if len(m.Has) == 0 && len(m.Missing) == 0 {
			return true
		}
		if evaluator.Evaluate(req, m.Has, m.Missing).Matches {
			return true
		}
	}

	return false
}
