package middleware

import (
	"path"
	"strings"
)

// DefaultSkipPrefixes are internal path prefixes the interception function
// never runs on, regardless of declared matchers.
var DefaultSkipPrefixes = []string{
	"/_static/",
	"/_image/",
}

// DefaultSkipFiles are exact paths excluded by default.
var DefaultSkipFiles = []string{
	"/favicon.ico",
}

// defaultSkipExtensions are static asset extensions excluded by default.
// Lookup keys carry the leading dot, lowercased.
var defaultSkipExtensions = map[string]struct{}{
	".css":         {},
	".js":          {},
	".map":         {},
	".ico":         {},
	".png":         {},
	".jpg":         {},
	".jpeg":        {},
	".gif":         {},
	".svg":         {},
	".webp":        {},
	".avif":        {},
	".woff":        {},
	".woff2":       {},
	".ttf":         {},
	".otf":         {},
	".eot":         {},
	".txt":         {},
	".xml":         {},
	".json":        {},
	".webmanifest": {},
}

// skipByDefault reports whether the raw request path falls under the
// built-in exclusion list.
func skipByDefault(requestPath string) bool {
	for _, prefix := range DefaultSkipPrefixes {
		if strings.HasPrefix(requestPath, prefix) {
			return true
		}
	}

	for _, file := range DefaultSkipFiles {
		if requestPath == file {
			return true
		}
	}

	ext := strings.ToLower(path.Ext(requestPath))
	if ext == "" {
		return false
	}
	_, skip := defaultSkipExtensions[ext]
	return skip
}
