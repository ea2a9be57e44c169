// Package engine composes the middleware, redirect, rewrite, and header
// stages into a single per-request routing decision.
package engine

import (
	"net/http"
	"sync/atomic"

	"github.com/steerhttp/steer/internal/condition"
	"github.com/steerhttp/steer/internal/middleware"
	"github.com/steerhttp/steer/internal/observability"
	"github.com/steerhttp/steer/internal/pattern"
	"github.com/steerhttp/steer/internal/rules"
)

// DecisionKind identifies what the engine decided for a request.
type DecisionKind int

const (
	// DecisionDispatch hands the request to normal handler dispatch,
	// possibly against a rewritten path.
	DecisionDispatch DecisionKind = iota

	// DecisionRespond terminates the request with Decision.Response.
	DecisionRespond

	// DecisionRedirect terminates the request with a Location redirect.
	DecisionRedirect

	// DecisionRewriteExternal requires the caller to proxy the request
	// to Decision.ExternalURL.
	DecisionRewriteExternal
)

// String returns a metric-friendly kind name.
func (k DecisionKind) String() string {
	switch k {
	case DecisionDispatch:
		return "dispatch"
	case DecisionRespond:
		return "respond"
	case DecisionRedirect:
		return "redirect"
	case DecisionRewriteExternal:
		return "rewrite_external"
	default:
		return "unknown"
	}
}

// Decision is the engine's verdict for one request.
type Decision struct {
	Kind DecisionKind

	// Status and Location describe a redirect.
	Status   int
	Location string

	// Response is the terminal response for DecisionRespond.
	Response *middleware.Response

	// ExternalURL is the proxy target for DecisionRewriteExternal.
	ExternalURL string

	// Path is the effective dispatch path, after any internal rewrite.
	Path string

	// Request is the request downstream handlers should observe. It
	// differs from the input when middleware replaced request headers.
	Request *http.Request

	// Headers are appended to whatever response is eventually written.
	Headers http.Header

	// Tasks holds background work launched by middleware; the caller
	// drains it after the response is written.
	Tasks *middleware.TaskGroup
}

// RuleSet is the swappable rule state the engine evaluates requests
// against.
type RuleSet struct {
	BasePath  string
	Redirects []rules.Redirect
	Rewrites  *rules.RewriteSet
	Headers   []rules.Header
	Matchers  []middleware.Matcher
}

// RouteExistsFunc reports whether a concrete route is registered for the
// given path. It gates the transition from the afterFiles rewrite phase to
// the fallback phase.
type RouteExistsFunc func(path string) bool

// Engine evaluates requests against the active rule set.
type Engine struct {
	state   atomic.Pointer[engineState]
	cache   *pattern.Cache
	metrics *observability.Metrics
	tracer  *observability.Tracer
	logger  observability.Logger
	handler middleware.Handler

	// mwOpts is the option template snapshotted into each engineState.
	// It is only written while New applies options; requests read the
	// per-state copy.
	mwOpts      middleware.Options
	routeExists RouteExistsFunc
}

// engineState pairs a rule set with the resolver and middleware options
// derived from it, so a swap replaces all of them atomically. In-flight
// requests keep reading the state they started with.
type engineState struct {
	rules    *RuleSet
	resolver *rules.Resolver
	mwOpts   middleware.Options
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger observability.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.mwOpts.Logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithTracer sets the tracer used to wrap request evaluation.
func WithTracer(t *observability.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// WithCache sets the shared pattern cache.
func WithCache(cache *pattern.Cache) Option {
	return func(e *Engine) {
		e.cache = cache
	}
}

// WithMiddleware sets the interception function and its execution options.
// The option logger, if any, is preserved.
func WithMiddleware(handler middleware.Handler, opts middleware.Options) Option {
	return func(e *Engine) {
		logger := e.mwOpts.Logger
		e.handler = handler
		e.mwOpts = opts
		if e.mwOpts.Logger == nil {
			e.mwOpts.Logger = logger
		}
	}
}

// WithRouteExists sets the registered-route probe consulted between the
// afterFiles and fallback rewrite phases. When unset, every path is
// treated as unregistered and fallback rules stay reachable.
func WithRouteExists(fn RouteExistsFunc) Option {
	return func(e *Engine) {
		e.routeExists = fn
	}
}

// New creates an engine with the given initial rule set.
func New(ruleSet *RuleSet, opts ...Option) *Engine {
	if ruleSet == nil {
		ruleSet = &RuleSet{}
	}
	e := &Engine{
		cache:  pattern.NewCache(),
		logger: observability.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.mwOpts.Evaluator == nil {
		e.mwOpts.Evaluator = condition.NewEvaluator()
	}
	e.state.Store(e.newState(ruleSet))
	return e
}

// newState compiles a resolver and middleware options snapshot for the
// rule set. The engine's option template never changes after New; only
// the per-rule-set base path varies between states.
func (e *Engine) newState(ruleSet *RuleSet) *engineState {
	mwOpts := e.mwOpts
	mwOpts.BasePath = ruleSet.BasePath
	return &engineState{
		rules:  ruleSet,
		mwOpts: mwOpts,
		resolver: rules.NewResolver(
			rules.WithBasePath(ruleSet.BasePath),
			rules.WithCache(e.cache),
			rules.WithLogger(e.logger),
		),
	}
}

// SwapRules atomically replaces the active rule set. In-flight requests
// finish against the state they started with.
func (e *Engine) SwapRules(ruleSet *RuleSet) {
	if ruleSet == nil {
		ruleSet = &RuleSet{}
	}
	e.state.Store(e.newState(ruleSet))
	e.logger.Info("rule set swapped",
		observability.Int("redirects", len(ruleSet.Redirects)),
		observability.Int("headers", len(ruleSet.Headers)),
	)
}

// Rules returns the active rule set.
func (e *Engine) Rules() *RuleSet {
	return e.state.Load().rules
}

// Process evaluates one request through the middleware, redirect, rewrite,
// and header stages and returns the resulting decision.
func (e *Engine) Process(req *http.Request) *Decision {
	if e.tracer != nil {
		ctx, span := e.tracer.StartRequestSpan(req)
		defer span.End()
		req = req.WithContext(ctx)
	}

	state := e.state.Load()
	decision := e.process(state, req)

	if e.metrics != nil {
		e.metrics.RecordDecision(decision.Kind.String())
	}
	return decision
}

func (e *Engine) process(state *engineState, req *http.Request) *Decision {
	decision := &Decision{
		Kind:    DecisionDispatch,
		Path:    req.URL.Path,
		Request: req,
	}

	// Middleware runs first on the raw path.
	if e.handler != nil && middleware.ShouldRun(req, state.rules.Matchers, &state.mwOpts) {
		if done := e.runMiddleware(state, req, decision); done {
			return decision
		}
		req = decision.Request
	}

	// Redirects outrank rewrites.
	if redirect := state.resolver.ResolveRedirect(req, state.rules.Redirects); redirect.Matched {
		decision.Kind = DecisionRedirect
		decision.Status = redirect.Status
		decision.Location = redirect.Location
		if e.metrics != nil {
			e.metrics.RecordRedirect(redirect.Status)
		}
		e.appendRuleHeaders(state, req, decision)
		return decision
	}

	if done := e.runRewrites(state, req, decision); done {
		return decision
	}

	e.appendRuleHeaders(state, req, decision)
	return decision
}

// runMiddleware executes the interception function and folds its result
// into the decision. It reports true when the decision is terminal.
func (e *Engine) runMiddleware(state *engineState, req *http.Request, decision *Decision) bool {
	result := middleware.Execute(req.Context(), req, e.handler, &state.mwOpts)

	decision.Tasks = result.Tasks
	decision.Request = result.Request
	decision.Headers = foldHeaders(decision.Headers, result.ResponseHeaders)

	if e.metrics != nil {
		e.metrics.RecordMiddleware(result.State.String())
	}

	if !result.Continue {
		decision.Kind = DecisionRespond
		decision.Response = result.Response
		return true
	}

	if result.RewriteTo != "" {
		if external, ok := rules.SplitExternal(result.RewriteTo); ok {
			decision.Kind = DecisionRewriteExternal
			decision.ExternalURL = external
			return true
		}
		decision.Path = result.RewriteTo
		decision.Request = requestWithPath(decision.Request, result.RewriteTo)
	}

	return false
}

// runRewrites walks the rewrite phases in order, consulting the
// registered-route probe between afterFiles and fallback. It reports true
// when the decision is terminal (an external rewrite).
func (e *Engine) runRewrites(state *engineState, req *http.Request, decision *Decision) bool {
	set := state.rules.Rewrites
	if set == nil || set.IsEmpty() {
		return false
	}

	current := requestWithPath(req, decision.Path)

	for _, phase := range []rules.Phase{rules.PhaseBeforeFiles, rules.PhaseAfterFiles, rules.PhaseFallback} {
		// A registered route short-circuits afterFiles and fallback.
		if phase != rules.PhaseBeforeFiles && e.routeExists != nil && e.routeExists(current.URL.Path) {
			break
		}

		result := state.resolver.ResolveRewrite(current, set, phase)
		if !result.Matched {
			continue
		}

		if e.metrics != nil {
			e.metrics.RecordRewrite(string(result.Phase), result.IsExternal)
		}

		if result.IsExternal {
			decision.Kind = DecisionRewriteExternal
			decision.ExternalURL = result.ExternalURL
			e.appendRuleHeaders(state, req, decision)
			return true
		}

		// First match across phases wins; the rewritten path is what
		// dispatch resolves, fallback never re-fires on it.
		decision.Path = result.Path
		break
	}

	if decision.Path != req.URL.Path {
		decision.Request = requestWithPath(decision.Request, decision.Path)
	}
	return false
}

// appendRuleHeaders folds matching header rules into the decision.
func (e *Engine) appendRuleHeaders(state *engineState, req *http.Request, decision *Decision) {
	result := state.resolver.ResolveHeaders(req, state.rules.Headers)
	if !result.Matched {
		return
	}
	if e.metrics != nil {
		e.metrics.RecordHeaderRules(len(result.Headers))
	}
	decision.Headers = foldHeaders(decision.Headers, rules.FoldHeaders(result))
}

// foldHeaders merges extra into base, last write wins per key.
func foldHeaders(base, extra http.Header) http.Header {
	if len(extra) == 0 {
		return base
	}
	if base == nil {
		base = http.Header{}
	}
	for key, values := range extra {
		base[key] = append([]string(nil), values...)
	}
	return base
}

// requestWithPath returns req observing the given path, cloning only when
// the path actually changes.
func requestWithPath(req *http.Request, path string) *http.Request {
	if req.URL.Path == path {
		return req
	}
	clone := req.Clone(req.Context())
	clone.URL.Path = path
	return clone
}
