// Package rules resolves declarative redirect, rewrite, and header rules
// against incoming requests.
package rules

import (
	"github.com/steerhttp/steer/internal/condition"
)

// Redirect instructs the client to request a different URL. Read-only
// configuration, loaded once.
type Redirect struct {
	Source      string                `yaml:"source" json:"source"`
	Destination string                `yaml:"destination" json:"destination"`
	Permanent   bool                  `yaml:"permanent,omitempty" json:"permanent,omitempty"`
	Has         []condition.Condition `yaml:"has,omitempty" json:"has,omitempty"`
	Missing     []condition.Condition `yaml:"missing,omitempty" json:"missing,omitempty"`

	// BasePath, when set to false, opts this rule out of resolver-level
	// base path handling.
	BasePath *bool `yaml:"basePath,omitempty" json:"basePath,omitempty"`

	// PreserveQuery, when set to false, stops the original query string
	// from being merged into the destination.
	PreserveQuery *bool `yaml:"preserveQuery,omitempty" json:"preserveQuery,omitempty"`
}

// Rewrite changes the effective path used for internal dispatch without
// informing the client. A destination with a URL scheme is external and
// must be proxied by the caller.
type Rewrite struct {
	Source      string                `yaml:"source" json:"source"`
	Destination string                `yaml:"destination" json:"destination"`
	Has         []condition.Condition `yaml:"has,omitempty" json:"has,omitempty"`
	Missing     []condition.Condition `yaml:"missing,omitempty" json:"missing,omitempty"`
	BasePath    *bool                 `yaml:"basePath,omitempty" json:"basePath,omitempty"`
}

// RewriteSet groups rewrites into ordered phases relative to normal route
// resolution.
type RewriteSet struct {
	BeforeFiles []Rewrite `yaml:"beforeFiles,omitempty" json:"beforeFiles,omitempty"`
	AfterFiles  []Rewrite `yaml:"afterFiles,omitempty" json:"afterFiles,omitempty"`
	Fallback    []Rewrite `yaml:"fallback,omitempty" json:"fallback,omitempty"`
}

// Phase names one rewrite rule group.
type Phase string

const (
	// PhaseBeforeFiles runs before normal route resolution.
	PhaseBeforeFiles Phase = "beforeFiles"
	// PhaseAfterFiles runs after normal route resolution misses.
	PhaseAfterFiles Phase = "afterFiles"
	// PhaseFallback runs when nothing else matched.
	PhaseFallback Phase = "fallback"
	// PhaseAll tests every phase in order.
	PhaseAll Phase = "all"
)

// HeaderEntry is one header key/value pair attached by a header rule.
type HeaderEntry struct {
	Key   string `yaml:"key" json:"key"`
	Value string `yaml:"value" json:"value"`
}

// Header attaches response headers to matching requests. Unlike redirects
// and rewrites, every matching header rule contributes its entries.
type Header struct {
	Source   string                `yaml:"source" json:"source"`
	Headers  []HeaderEntry         `yaml:"headers" json:"headers"`
	Has      []condition.Condition `yaml:"has,omitempty" json:"has,omitempty"`
	Missing  []condition.Condition `yaml:"missing,omitempty" json:"missing,omitempty"`
	BasePath *bool                 `yaml:"basePath,omitempty" json:"basePath,omitempty"`
}
