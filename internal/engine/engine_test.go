package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steerhttp/steer/internal/condition"
	"github.com/steerhttp/steer/internal/middleware"
	"github.com/steerhttp/steer/internal/rules"
)

func compileMatchers(t *testing.T, declaration any) []middleware.Matcher {
	t.Helper()
	matchers, err := middleware.CompileMatchers(declaration, nil)
	require.NoError(t, err)
	return matchers
}

func TestProcessDispatchPassThrough(t *testing.T) {
	t.Parallel()

	eng := New(&RuleSet{})

	req := httptest.NewRequest(http.MethodGet, "http://example.com/page", nil)
	decision := eng.Process(req)

	assert.Equal(t, DecisionDispatch, decision.Kind)
	assert.Equal(t, "/page", decision.Path)
	assert.Same(t, req, decision.Request)
}

func TestProcessRedirect(t *testing.T) {
	t.Parallel()

	eng := New(&RuleSet{
		Redirects: []rules.Redirect{
			{Source: "/old/:id", Destination: "/new/:id", Permanent: true},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "http://example.com/old/7?ref=a", nil)
	decision := eng.Process(req)

	assert.Equal(t, DecisionRedirect, decision.Kind)
	assert.Equal(t, http.StatusPermanentRedirect, decision.Status)
	assert.Equal(t, "http://example.com/new/7?ref=a", decision.Location)
}

func TestProcessRedirectOutranksRewrite(t *testing.T) {
	t.Parallel()

	eng := New(&RuleSet{
		Redirects: []rules.Redirect{
			{Source: "/page", Destination: "/moved"},
		},
		Rewrites: &rules.RewriteSet{
			BeforeFiles: []rules.Rewrite{
				{Source: "/page", Destination: "/rewritten"},
			},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "http://example.com/page", nil)
	decision := eng.Process(req)

	assert.Equal(t, DecisionRedirect, decision.Kind)
}

func TestProcessRewriteInternal(t *testing.T) {
	t.Parallel()

	eng := New(&RuleSet{
		Rewrites: &rules.RewriteSet{
			BeforeFiles: []rules.Rewrite{
				{Source: "/assets/:file", Destination: "/static/:file"},
			},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "http://example.com/assets/logo.svg", nil)
	decision := eng.Process(req)

	assert.Equal(t, DecisionDispatch, decision.Kind)
	assert.Equal(t, "/static/logo.svg", decision.Path)
	assert.Equal(t, "/static/logo.svg", decision.Request.URL.Path)
}

func TestProcessRewriteExternal(t *testing.T) {
	t.Parallel()

	eng := New(&RuleSet{
		Rewrites: &rules.RewriteSet{
			BeforeFiles: []rules.Rewrite{
				{Source: "/cdn/:path*", Destination: "https://cdn.example.net/:path*"},
			},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "http://example.com/cdn/a/b", nil)
	decision := eng.Process(req)

	assert.Equal(t, DecisionRewriteExternal, decision.Kind)
	assert.Equal(t, "https://cdn.example.net/a/b", decision.ExternalURL)
}

func TestProcessRewritePhasesWithRouteProbe(t *testing.T) {
	t.Parallel()

	ruleSet := &RuleSet{
		Rewrites: &rules.RewriteSet{
			AfterFiles: []rules.Rewrite{
				{Source: "/:slug", Destination: "/pages/:slug"},
			},
			Fallback: []rules.Rewrite{
				{Source: "/:rest*", Destination: "/not-found"},
			},
		},
	}

	// A registered route wins over afterFiles and fallback rules.
	registered := New(ruleSet, WithRouteExists(func(path string) bool {
		return path == "/real-page"
	}))
	req := httptest.NewRequest(http.MethodGet, "http://example.com/real-page", nil)
	decision := registered.Process(req)
	assert.Equal(t, DecisionDispatch, decision.Kind)
	assert.Equal(t, "/real-page", decision.Path)

	// An unregistered path falls through to afterFiles.
	req = httptest.NewRequest(http.MethodGet, "http://example.com/ghost", nil)
	decision = registered.Process(req)
	assert.Equal(t, "/pages/ghost", decision.Path)
}

func TestProcessHeaders(t *testing.T) {
	t.Parallel()

	eng := New(&RuleSet{
		Headers: []rules.Header{
			{
				Source:  "/:rest*",
				Headers: []rules.HeaderEntry{{Key: "X-Frame-Options", Value: "DENY"}},
			},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "http://example.com/page", nil)
	decision := eng.Process(req)

	assert.Equal(t, DecisionDispatch, decision.Kind)
	assert.Equal(t, "DENY", decision.Headers.Get("X-Frame-Options"))
}

func TestProcessHeadersAccompanyRedirect(t *testing.T) {
	t.Parallel()

	eng := New(&RuleSet{
		Redirects: []rules.Redirect{
			{Source: "/old", Destination: "/new"},
		},
		Headers: []rules.Header{
			{
				Source:  "/:rest*",
				Headers: []rules.HeaderEntry{{Key: "X-Policy", Value: "strict"}},
			},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "http://example.com/old", nil)
	decision := eng.Process(req)

	assert.Equal(t, DecisionRedirect, decision.Kind)
	assert.Equal(t, "strict", decision.Headers.Get("X-Policy"))
}

func TestProcessMiddlewareRespond(t *testing.T) {
	t.Parallel()

	handler := func(_ context.Context, _ *http.Request) (*middleware.Outcome, error) {
		return middleware.Respond(&middleware.Response{
			Status: http.StatusUnauthorized,
			Body:   []byte("login required"),
		}), nil
	}

	eng := New(
		&RuleSet{Matchers: compileMatchers(t, "/private/:rest*")},
		WithMiddleware(handler, middleware.Options{}),
	)

	req := httptest.NewRequest(http.MethodGet, "http://example.com/private/area", nil)
	decision := eng.Process(req)

	assert.Equal(t, DecisionRespond, decision.Kind)
	require.NotNil(t, decision.Response)
	assert.Equal(t, http.StatusUnauthorized, decision.Response.Status)

	// Paths outside the matcher bypass the handler entirely.
	req = httptest.NewRequest(http.MethodGet, "http://example.com/public", nil)
	decision = eng.Process(req)
	assert.Equal(t, DecisionDispatch, decision.Kind)
}

func TestProcessMiddlewareRewriteFeedsRules(t *testing.T) {
	t.Parallel()

	handler := func(_ context.Context, _ *http.Request) (*middleware.Outcome, error) {
		return middleware.RewriteTo("/variant-b"), nil
	}

	eng := New(
		&RuleSet{
			Matchers: compileMatchers(t, nil),
			Rewrites: &rules.RewriteSet{
				BeforeFiles: []rules.Rewrite{
					{Source: "/variant-b", Destination: "/experiments/b"},
				},
			},
		},
		WithMiddleware(handler, middleware.Options{}),
	)

	req := httptest.NewRequest(http.MethodGet, "http://example.com/home", nil)
	decision := eng.Process(req)

	assert.Equal(t, DecisionDispatch, decision.Kind)
	assert.Equal(t, "/experiments/b", decision.Path)
}

func TestProcessMiddlewareExternalRewrite(t *testing.T) {
	t.Parallel()

	handler := func(_ context.Context, _ *http.Request) (*middleware.Outcome, error) {
		return middleware.RewriteTo("https://legacy.example.net/home"), nil
	}

	eng := New(
		&RuleSet{Matchers: compileMatchers(t, nil)},
		WithMiddleware(handler, middleware.Options{}),
	)

	req := httptest.NewRequest(http.MethodGet, "http://example.com/home", nil)
	decision := eng.Process(req)

	assert.Equal(t, DecisionRewriteExternal, decision.Kind)
	assert.Equal(t, "https://legacy.example.net/home", decision.ExternalURL)
}

func TestProcessMiddlewareHeaderReplacement(t *testing.T) {
	t.Parallel()

	handler := func(_ context.Context, _ *http.Request) (*middleware.Outcome, error) {
		return middleware.NextWithHeaders(http.Header{"X-Verified": []string{"1"}}), nil
	}

	eng := New(
		&RuleSet{Matchers: compileMatchers(t, nil)},
		WithMiddleware(handler, middleware.Options{}),
	)

	req := httptest.NewRequest(http.MethodGet, "http://example.com/home", nil)
	req.Header.Set("X-Untrusted", "1")

	decision := eng.Process(req)
	assert.Equal(t, DecisionDispatch, decision.Kind)
	assert.Equal(t, "1", decision.Request.Header.Get("X-Verified"))
	assert.Empty(t, decision.Request.Header.Get("X-Untrusted"))
}

func TestProcessMiddlewareFault(t *testing.T) {
	t.Parallel()

	handler := func(_ context.Context, _ *http.Request) (*middleware.Outcome, error) {
		return nil, errors.New("boom")
	}

	eng := New(
		&RuleSet{Matchers: compileMatchers(t, nil)},
		WithMiddleware(handler, middleware.Options{}),
	)

	req := httptest.NewRequest(http.MethodGet, "http://example.com/home", nil)
	decision := eng.Process(req)

	assert.Equal(t, DecisionRespond, decision.Kind)
	require.NotNil(t, decision.Response)
	assert.Equal(t, http.StatusInternalServerError, decision.Response.Status)
}

func TestSwapRules(t *testing.T) {
	t.Parallel()

	eng := New(&RuleSet{
		Redirects: []rules.Redirect{{Source: "/old", Destination: "/v1"}},
	})

	req := httptest.NewRequest(http.MethodGet, "http://example.com/old", nil)
	assert.Equal(t, "http://example.com/v1", eng.Process(req).Location)

	eng.SwapRules(&RuleSet{
		Redirects: []rules.Redirect{{Source: "/old", Destination: "/v2"}},
	})
	assert.Equal(t, "http://example.com/v2", eng.Process(req).Location)

	assert.Len(t, eng.Rules().Redirects, 1)
}

func TestSwapRulesUpdatesMiddlewareBasePath(t *testing.T) {
	t.Parallel()

	var observed string
	handler := func(_ context.Context, req *http.Request) (*middleware.Outcome, error) {
		observed = req.URL.Path
		return middleware.Next(), nil
	}

	eng := New(
		&RuleSet{BasePath: "/v1", Matchers: compileMatchers(t, nil)},
		WithMiddleware(handler, middleware.Options{}),
	)

	eng.Process(httptest.NewRequest(http.MethodGet, "http://example.com/v1/dashboard", nil))
	assert.Equal(t, "/dashboard", observed)

	eng.SwapRules(&RuleSet{BasePath: "/v2", Matchers: compileMatchers(t, nil)})

	eng.Process(httptest.NewRequest(http.MethodGet, "http://example.com/v2/dashboard", nil))
	assert.Equal(t, "/dashboard", observed)

	// The old base path no longer applies after the swap.
	eng.Process(httptest.NewRequest(http.MethodGet, "http://example.com/v1/dashboard", nil))
	assert.Equal(t, "/v1/dashboard", observed)
}

func TestSwapRulesConcurrentWithProcess(t *testing.T) {
	t.Parallel()

	handler := func(_ context.Context, _ *http.Request) (*middleware.Outcome, error) {
		return middleware.Next(), nil
	}

	eng := New(
		&RuleSet{BasePath: "/a", Matchers: compileMatchers(t, nil)},
		WithMiddleware(handler, middleware.Options{}),
	)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			req := httptest.NewRequest(http.MethodGet, "http://example.com/a/page", nil)
			decision := eng.Process(req)
			assert.Equal(t, DecisionDispatch, decision.Kind)
		}
	}()

	for i := 0; i < 200; i++ {
		base := "/a"
		if i%2 == 1 {
			base = "/b"
		}
		eng.SwapRules(&RuleSet{BasePath: base, Matchers: compileMatchers(t, nil)})
	}

	close(done)
	wg.Wait()
}

func TestEngineNilRuleSets(t *testing.T) {
	t.Parallel()

	eng := New(nil)
	req := httptest.NewRequest(http.MethodGet, "http://example.com/anything", nil)
	assert.Equal(t, DecisionDispatch, eng.Process(req).Kind)

	eng.SwapRules(nil)
	assert.Equal(t, DecisionDispatch, eng.Process(req).Kind)
}

func TestProcessBasePath(t *testing.T) {
	t.Parallel()

	eng := New(&RuleSet{
		BasePath: "/app",
		Redirects: []rules.Redirect{
			{Source: "/old", Destination: "/new"},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "http://example.com/app/old", nil)
	decision := eng.Process(req)
	assert.Equal(t, DecisionRedirect, decision.Kind)

	req = httptest.NewRequest(http.MethodGet, "http://example.com/old", nil)
	decision = eng.Process(req)
	assert.Equal(t, DecisionDispatch, decision.Kind)
}

func TestProcessConditionalRedirect(t *testing.T) {
	t.Parallel()

	eng := New(&RuleSet{
		Redirects: []rules.Redirect{
			{
				Source:      "/download",
				Destination: "/download/linux",
				Has: []condition.Condition{
					{Type: condition.TypeHeader, Key: "User-Agent", Value: "Linux"},
				},
			},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "http://example.com/download", nil)
	req.Header.Set("User-Agent", "Linux")
	assert.Equal(t, DecisionRedirect, eng.Process(req).Kind)

	req = httptest.NewRequest(http.MethodGet, "http://example.com/download", nil)
	req.Header.Set("User-Agent", "Darwin")
	assert.Equal(t, DecisionDispatch, eng.Process(req).Kind)
}
