package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steerhttp/steer/internal/condition"
	"github.com/steerhttp/steer/internal/pattern"
)

func TestCompileMatchersDeclarationShapes(t *testing.T) {
	t.Parallel()

	cache := pattern.NewCache()

	tests := []struct {
		name        string
		declaration any
		sources     []string
	}{
		{
			name:        "nil declaration matches everything",
			declaration: nil,
			sources:     []string{"/:path*"},
		},
		{
			name:        "single string",
			declaration: "/dashboard/:rest*",
			sources:     []string{"/dashboard/:rest*"},
		},
		{
			name:        "string list",
			declaration: []string{"/admin", "/account/:rest*"},
			sources:     []string{"/admin", "/account/:rest*"},
		},
		{
			name: "config list",
			declaration: []MatcherConfig{
				{Source: "/api/:rest*"},
				{Source: "/beta", Has: []condition.Condition{{Type: condition.TypeCookie, Key: "beta"}}},
			},
			sources: []string{"/api/:rest*", "/beta"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			matchers, err := CompileMatchers(tt.declaration, cache)
			require.NoError(t, err)

			sources := make([]string, 0, len(matchers))
			for _, m := range matchers {
				sources = append(sources, m.Source)
			}
			assert.Equal(t, tt.sources, sources)
		})
	}
}

func TestCompileMatchersErrors(t *testing.T) {
	t.Parallel()

	_, err := CompileMatchers("/bad/[unclosed", nil)
	require.Error(t, err)

	_, err = CompileMatchers([]MatcherConfig{{Regexp: "("}}, nil)
	require.Error(t, err)

	_, err = CompileMatchers(42, nil)
	require.Error(t, err)
}

func TestCompileMatchersRawRegexp(t *testing.T) {
	t.Parallel()

	matchers, err := CompileMatchers([]MatcherConfig{{Regexp: `^/v[0-9]+/`}}, nil)
	require.NoError(t, err)
	require.Len(t, matchers, 1)

	assert.True(t, matchers[0].Regex.MatchString("/v2/users"))
	assert.False(t, matchers[0].Regex.MatchString("/users"))
}

func TestShouldRun(t *testing.T) {
	t.Parallel()

	matchAll, err := CompileMatchers(nil, nil)
	require.NoError(t, err)

	scoped, err := CompileMatchers("/account/:rest*", nil)
	require.NoError(t, err)

	conditional, err := CompileMatchers([]MatcherConfig{
		{
			Source: "/:path*",
			Has:    []condition.Condition{{Type: condition.TypeCookie, Key: "session"}},
		},
	}, nil)
	require.NoError(t, err)

	tests := []struct {
		name     string
		path     string
		cookie   string
		matchers []Matcher
		opts     *Options
		expected bool
	}{
		{
			name:     "match-all on a page path",
			path:     "/dashboard",
			matchers: matchAll,
			expected: true,
		},
		{
			name:     "favicon excluded by default",
			path:     "/favicon.ico",
			matchers: matchAll,
			expected: false,
		},
		{
			name:     "internal static prefix excluded",
			path:     "/_static/chunks/main.js",
			matchers: matchAll,
			expected: false,
		},
		{
			name:     "image pipeline prefix excluded",
			path:     "/_image/logo.png",
			matchers: matchAll,
			expected: false,
		},
		{
			name:     "asset extension excluded",
			path:     "/styles/site.css",
			matchers: matchAll,
			expected: false,
		},
		{
			name:     "exclusions can be disabled",
			path:     "/favicon.ico",
			matchers: matchAll,
			opts:     &Options{DisableDefaultExclusions: true},
			expected: true,
		},
		{
			name:     "scoped matcher hits",
			path:     "/account/settings",
			matchers: scoped,
			expected: true,
		},
		{
			name:     "scoped matcher misses",
			path:     "/public",
			matchers: scoped,
			expected: false,
		},
		{
			name:     "condition satisfied",
			path:     "/home",
			cookie:   "session=abc",
			matchers: conditional,
			expected: true,
		},
		{
			name:     "condition unsatisfied",
			path:     "/home",
			matchers: conditional,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "http://example.com"+tt.path, nil)
			if tt.cookie != "" {
				req.Header.Set("Cookie", tt.cookie)
			}

			assert.Equal(t, tt.expected, ShouldRun(req, tt.matchers, tt.opts))
		})
	}
}

func TestShouldRunInjectedEvaluator(t *testing.T) {
	t.Parallel()

	matchers, err := CompileMatchers(MatcherConfig{
		Source: "/beta/:rest*",
		Has:    []condition.Condition{{Type: condition.TypeCookie, Key: "beta", Value: "on"}},
	}, pattern.NewCache())
	require.NoError(t, err)

	opts := &Options{Evaluator: condition.NewEvaluator()}

	withCookie := httptest.NewRequest(http.MethodGet, "http://example.com/beta/home", nil)
	withCookie.Header.Set("Cookie", "beta=on")
	assert.True(t, ShouldRun(withCookie, matchers, opts))

	withoutCookie := httptest.NewRequest(http.MethodGet, "http://example.com/beta/home", nil)
	assert.False(t, ShouldRun(withoutCookie, matchers, opts))
}
