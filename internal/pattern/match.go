package pattern

import (
	"strings"
)

// MatchOptions adjust how a path is matched.
type MatchOptions struct {
	// BasePath, when set, must prefix the actual path and is stripped
	// before matching.
	BasePath string

	// SkipBasePath disables base path handling for a single rule even when
	// the resolver carries a base path.
	SkipBasePath bool
}

// MatchResult is the outcome of matching one path against one pattern.
// Created per request and discarded after use.
type MatchResult struct {
	Matched bool
	Params  Params
}

// noMatch is the shared negative result.
var noMatch = MatchResult{}

// Match applies a compiled pattern to an actual path. It never fails;
// anything unexpected is a non-match.
func (c *Compiled) Match(path string, opts MatchOptions) MatchResult {
	if opts.BasePath != "" && !opts.SkipBasePath {
		stripped, ok := stripBasePath(path, opts.BasePath)
		if !ok {
			return noMatch
		}
		path = stripped
	}

	path = normalizeTrailingSlash(path)

	captures := c.Regex.FindStringSubmatch(path)
	if captures == nil {
		return noMatch
	}

	return MatchResult{
		Matched: true,
		Params:  decodeParams(c.Params, captures),
	}
}

// Match compiles pattern through the cache and matches path against it.
// A pattern that fails to compile is treated as a non-match; compile errors
// surface at configuration-load time via Compile, not here.
func (c *Cache) Match(path, pattern string, opts MatchOptions) MatchResult {
	compiled, err := c.Compile(pattern)
	if err != nil {
		return noMatch
	}
	return compiled.Match(path, opts)
}

// normalizeTrailingSlash removes a single optional trailing slash. The root
// path is left untouched.
func normalizeTrailingSlash(path string) string {
	if path == "" {
		return "/"
	}
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		return path[:len(path)-1]
	}
	return path
}

// stripBasePath removes basePath from path, requiring a segment boundary.
func stripBasePath(path, basePath string) (string, bool) {
	basePath = normalizeTrailingSlash(basePath)
	if basePath == "/" {
		return path, true
	}
	if !strings.HasPrefix(path, basePath) {
		return "", false
	}
	rest := path[len(basePath):]
	if rest == "" {
		return "/", true
	}
	if rest[0] != '/' {
		return "", false
	}
	return rest, true
}
