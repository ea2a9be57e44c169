package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steerhttp/steer/internal/util"
)

func TestCompileNotationEquivalence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		colon string
		brack string
	}{
		{
			name:  "named parameter",
			colon: "/users/:id",
			brack: "/users/[id]",
		},
		{
			name:  "catch-all",
			colon: "/files/:path*",
			brack: "/files/[...path]",
		},
		{
			name:  "param then catch-all",
			colon: "/a/:b/:rest*",
			brack: "/a/[b]/[...rest]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			colon, err := Compile(tt.colon)
			require.NoError(t, err)
			brack, err := Compile(tt.brack)
			require.NoError(t, err)

			assert.Equal(t, colon.Regex.String(), brack.Regex.String())
			assert.Equal(t, colon.Params, brack.Params)
		})
	}
}

func TestCompileSegments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		source string
		kinds  []SegmentKind
		params []ParamDescriptor
	}{
		{
			name:   "static only",
			source: "/about/team",
			kinds:  []SegmentKind{SegmentStatic, SegmentStatic},
			params: []ParamDescriptor{},
		},
		{
			name:   "mixed static and params",
			source: "/shop/:category/:item",
			kinds:  []SegmentKind{SegmentStatic, SegmentParam, SegmentParam},
			params: []ParamDescriptor{{Name: "category"}, {Name: "item"}},
		},
		{
			name:   "optional catch-all",
			source: "/docs/[[...slug]]",
			kinds:  []SegmentKind{SegmentStatic, SegmentOptionalCatchAll},
			params: []ParamDescriptor{{Name: "slug", Array: true}},
		},
		{
			name:   "group segments are stripped from matching",
			source: "/(marketing)/about",
			kinds:  []SegmentKind{SegmentStatic},
			params: []ParamDescriptor{},
		},
		{
			name:   "root",
			source: "/",
			kinds:  []SegmentKind{},
			params: []ParamDescriptor{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			compiled, err := Compile(tt.source)
			require.NoError(t, err)

			kinds := make([]SegmentKind, 0, len(compiled.Segments))
			for _, seg := range compiled.Segments {
				kinds = append(kinds, seg.Kind)
			}
			assert.Equal(t, tt.kinds, kinds)
			assert.Equal(t, tt.params, compiled.Params)
			assert.Equal(t, tt.source, compiled.Source)
		})
	}
}

func TestCompileErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		source string
	}{
		{name: "catch-all not final", source: "/a/:rest*/b"},
		{name: "bracket catch-all not final", source: "/a/[...rest]/b"},
		{name: "optional catch-all not final", source: "/a/[[...rest]]/b"},
		{name: "unbalanced brackets", source: "/a/[id"},
		{name: "unbalanced double brackets", source: "/a/[[...id]"},
		{name: "optional without dots", source: "/a/[[id]]"},
		{name: "empty parameter name", source: "/a/[]"},
		{name: "empty catch-all name", source: "/a/:*"},
		{name: "invalid parameter name", source: "/a/[1bad]"},
		{name: "empty group", source: "/()/about"},
		{name: "stray bracket", source: "/a/b]c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Compile(tt.source)
			require.Error(t, err)
			assert.ErrorIs(t, err, util.ErrInvalidPattern)

			var patternErr *util.PatternError
			assert.ErrorAs(t, err, &patternErr)
			assert.Equal(t, tt.source, patternErr.Pattern)
		})
	}
}

func TestMatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		source  string
		path    string
		matched bool
		params  Params
	}{
		{
			name:    "static exact",
			source:  "/about",
			path:    "/about",
			matched: true,
			params:  Params{},
		},
		{
			name:    "static trailing slash normalized",
			source:  "/about",
			path:    "/about/",
			matched: true,
			params:  Params{},
		},
		{
			name:    "static no partial segment",
			source:  "/about",
			path:    "/about-us",
			matched: false,
		},
		{
			name:    "param captures one segment",
			source:  "/users/:id",
			path:    "/users/42",
			matched: true,
			params:  Params{"id": Scalar("42")},
		},
		{
			name:    "param never spans a slash",
			source:  "/users/:id",
			path:    "/users/42/posts",
			matched: false,
		},
		{
			name:    "param rejects empty segment",
			source:  "/users/:id",
			path:    "/users/",
			matched: false,
		},
		{
			name:    "catch-all multiple segments",
			source:  "/files/:path*",
			path:    "/files/a/b/c",
			matched: true,
			params:  Params{"path": Array("a", "b", "c")},
		},
		{
			name:    "catch-all zero segments",
			source:  "/files/:path*",
			path:    "/files",
			matched: true,
			params:  Params{"path": Array()},
		},
		{
			name:    "optional catch-all absent",
			source:  "/docs/[[...slug]]",
			path:    "/docs",
			matched: true,
			params:  Params{"slug": Array()},
		},
		{
			name:    "optional catch-all present",
			source:  "/docs/[[...slug]]",
			path:    "/docs/getting/started",
			matched: true,
			params:  Params{"slug": Array("getting", "started")},
		},
		{
			name:    "group stripped from matching",
			source:  "/(marketing)/about",
			path:    "/about",
			matched: true,
			params:  Params{},
		},
		{
			name:    "group source does not match literal group path",
			source:  "/(marketing)/about",
			path:    "/(marketing)/about",
			matched: false,
		},
		{
			name:    "root pattern",
			source:  "/",
			path:    "/",
			matched: true,
			params:  Params{},
		},
		{
			name:    "percent-decoded capture",
			source:  "/users/:name",
			path:    "/users/jo%20ann",
			matched: true,
			params:  Params{"name": Scalar("jo ann")},
		},
		{
			name:    "invalid percent-encoding kept raw",
			source:  "/users/:name",
			path:    "/users/50%off",
			matched: true,
			params:  Params{"name": Scalar("50%off")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			compiled, err := Compile(tt.source)
			require.NoError(t, err)

			result := compiled.Match(tt.path, MatchOptions{})
			assert.Equal(t, tt.matched, result.Matched)
			if tt.matched {
				assert.Equal(t, tt.params, result.Params)
			} else {
				assert.Nil(t, result.Params)
			}
		})
	}
}

func TestMatchBasePath(t *testing.T) {
	t.Parallel()

	compiled, err := Compile("/users/:id")
	require.NoError(t, err)

	tests := []struct {
		name    string
		path    string
		opts    MatchOptions
		matched bool
	}{
		{
			name:    "base path stripped",
			path:    "/app/users/7",
			opts:    MatchOptions{BasePath: "/app"},
			matched: true,
		},
		{
			name:    "base path required",
			path:    "/users/7",
			opts:    MatchOptions{BasePath: "/app"},
			matched: false,
		},
		{
			name:    "segment boundary enforced",
			path:    "/application/users/7",
			opts:    MatchOptions{BasePath: "/app"},
			matched: false,
		},
		{
			name:    "skip base path",
			path:    "/users/7",
			opts:    MatchOptions{BasePath: "/app", SkipBasePath: true},
			matched: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result := compiled.Match(tt.path, tt.opts)
			assert.Equal(t, tt.matched, result.Matched)
		})
	}
}

func TestCacheCompile(t *testing.T) {
	t.Parallel()

	cache := NewCache()

	first, err := cache.Compile("/users/:id")
	require.NoError(t, err)

	second, err := cache.Compile("/users/:id")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, cache.Len())

	_, err = cache.Compile("/files/:path*")
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Len())

	_, err = cache.Compile("/bad/[unclosed")
	require.Error(t, err)
	assert.Equal(t, 2, cache.Len())
}

func TestCacheMatchCompileFailure(t *testing.T) {
	t.Parallel()

	cache := NewCache()
	result := cache.Match("/a", "/bad/[unclosed", MatchOptions{})
	assert.False(t, result.Matched)
}

func TestApplyParams(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		template string
		params   Params
		captures map[string]string
		expected string
	}{
		{
			name:     "scalar substitution",
			template: "/profiles/:id",
			params:   Params{"id": Scalar("42")},
			expected: "/profiles/42",
		},
		{
			name:     "array joined with slashes",
			template: "/archive/:path*",
			params:   Params{"path": Array("2024", "06", "report")},
			expected: "/archive/2024/06/report",
		},
		{
			name:     "empty array collapses",
			template: "/archive/:path*",
			params:   Params{"path": Array()},
			expected: "/archive/",
		},
		{
			name:     "capture overrides param",
			template: "/:region/home",
			params:   Params{"region": Scalar("us")},
			captures: map[string]string{"region": "eu"},
			expected: "/eu/home",
		},
		{
			name:     "capture only",
			template: "/tenants/:tenant",
			captures: map[string]string{"tenant": "acme"},
			expected: "/tenants/acme",
		},
		{
			name:     "unknown token left untouched",
			template: "/a/:missing/b",
			params:   Params{},
			expected: "/a/:missing/b",
		},
		{
			name:     "absolute destination",
			template: "https://other.example.com/items/:id",
			params:   Params{"id": Scalar("9")},
			expected: "https://other.example.com/items/9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result := ApplyParams(tt.template, tt.params, tt.captures)
			assert.Equal(t, tt.expected, result)
		})
	}
}

// Parameters decoded from a match reconstruct the original path when fed
// back through the pattern's own template form.
func TestMatchApplyRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		source string
		path   string
	}{
		{name: "scalar", source: "/users/:id", path: "/users/42"},
		{name: "catch-all", source: "/files/:path*", path: "/files/a/b/c"},
		{name: "mixed", source: "/shop/:cat/:rest*", path: "/shop/tools/saws/bow"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			compiled, err := Compile(tt.source)
			require.NoError(t, err)

			result := compiled.Match(tt.path, MatchOptions{})
			require.True(t, result.Matched)

			assert.Equal(t, tt.path, ApplyParams(tt.source, result.Params, nil))
		})
	}
}
