package rules

import (
	"net/http"

	"github.com/steerhttp/steer/internal/condition"
	"github.com/steerhttp/steer/internal/observability"
	"github.com/steerhttp/steer/internal/pattern"
)

// Resolver evaluates redirect, rewrite, and header rules. It is safe for
// concurrent use: all mutable state lives in the append-only pattern and
// condition caches.
type Resolver struct {
	cache     *pattern.Cache
	evaluator *condition.Evaluator
	basePath  string
	logger    observability.Logger
}

// ResolverOption is a functional option for configuring a Resolver.
type ResolverOption func(*Resolver)

// WithBasePath sets the base path stripped from request paths before rule
// matching. Individual rules opt out via their basePath flag.
func WithBasePath(basePath string) ResolverOption {
	return func(r *Resolver) {
		r.basePath = basePath
	}
}

// WithLogger sets the resolver's logger.
func WithLogger(logger observability.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithCache sets the pattern cache shared with other components.
func WithCache(cache *pattern.Cache) ResolverOption {
	return func(r *Resolver) {
		r.cache = cache
	}
}

// NewResolver creates a new rule resolver.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		evaluator: condition.NewEvaluator(),
		logger:    observability.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cache == nil {
		r.cache = pattern.NewCache()
	}
	return r
}

// matchRule runs the shared per-rule mechanics: path match, then condition
// evaluation. No-match is a normal, cheap outcome, never an error.
func (r *Resolver) matchRule(
	req *http.Request,
	source string,
	basePathFlag *bool,
	has, missing []condition.Condition,
) (pattern.Params, map[string]string, bool) {
	opts := pattern.MatchOptions{
		BasePath:     r.basePath,
		SkipBasePath: basePathFlag != nil && !*basePathFlag,
	}

	result := r.cache.Match(req.URL.Path, source, opts)
	if !result.Matched {
		return nil, nil, false
	}

	condResult := r.evaluator.Evaluate(req, has, missing)
	if !condResult.Matches {
		return nil, nil, false
	}

	return result.Params, condResult.Captures, true
}

// requestScheme infers the scheme of the request origin.
func requestScheme(req *http.Request) string {
	if proto := req.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	if req.TLS != nil {
		return "https"
	}
	if req.URL.Scheme != "" {
		return req.URL.Scheme
	}
	return "http"
}
