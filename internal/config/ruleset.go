// Package config loads, validates, and watches the declarative rule file.
package config

import (
	"gopkg.in/yaml.v3"

	"github.com/steerhttp/steer/internal/middleware"
	"github.com/steerhttp/steer/internal/rules"
	"github.com/steerhttp/steer/internal/util"
)

// RuleSet is the top-level rule file: redirects, rewrites, header rules,
// and the middleware matcher declaration, all evaluated under an optional
// base path.
type RuleSet struct {
	BasePath   string            `yaml:"basePath,omitempty" json:"basePath,omitempty"`
	Redirects  []rules.Redirect  `yaml:"redirects,omitempty" json:"redirects,omitempty"`
	Rewrites   *rules.RewriteSet `yaml:"rewrites,omitempty" json:"rewrites,omitempty"`
	Headers    []rules.Header    `yaml:"headers,omitempty" json:"headers,omitempty"`
	Middleware *MiddlewareConfig `yaml:"middleware,omitempty" json:"middleware,omitempty"`
}

// MiddlewareConfig declares where the interception function runs.
type MiddlewareConfig struct {
	Matcher MatcherDeclaration `yaml:"matcher,omitempty" json:"matcher,omitempty"`

	// DisableDefaultExclusions turns off the built-in static asset skip
	// list.
	DisableDefaultExclusions bool `yaml:"disableDefaultExclusions,omitempty" json:"disableDefaultExclusions,omitempty"`
}

// MatcherDeclaration accepts the three matcher shapes the rule file
// allows: a single source string, a list of source strings, or a list of
// full matcher objects with conditions.
type MatcherDeclaration struct {
	Configs []middleware.MatcherConfig
}

// IsZero reports whether no matcher was declared.
func (d *MatcherDeclaration) IsZero() bool {
	return d == nil || len(d.Configs) == 0
}

// UnmarshalYAML decodes the scalar, string-list, and object-list shapes.
func (d *MatcherDeclaration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var source string
		if err := value.Decode(&source); err != nil {
			return err
		}
		d.Configs = []middleware.MatcherConfig{{Source: source}}
		return nil

	case yaml.SequenceNode:
		configs := make([]middleware.MatcherConfig, 0, len(value.Content))
		for _, item := range value.Content {
			switch item.Kind {
			case yaml.ScalarNode:
				var source string
				if err := item.Decode(&source); err != nil {
					return err
				}
				configs = append(configs, middleware.MatcherConfig{Source: source})
			case yaml.MappingNode:
				var cfg middleware.MatcherConfig
				if err := item.Decode(&cfg); err != nil {
					return err
				}
				configs = append(configs, cfg)
			default:
				return &util.ConfigError{
					Field:   "middleware.matcher",
					Message: "matcher entries must be strings or objects",
				}
			}
		}
		d.Configs = configs
		return nil

	default:
		return &util.ConfigError{
			Field:   "middleware.matcher",
			Message: "matcher must be a string or a list",
		}
	}
}

// MarshalYAML emits the most compact shape that round-trips the
// declaration.
func (d MatcherDeclaration) MarshalYAML() (any, error) {
	if len(d.Configs) == 1 && bareSource(d.Configs[0]) {
		return d.Configs[0].Source, nil
	}

	allBare := true
	for _, cfg := range d.Configs {
		if !bareSource(cfg) {
			allBare = false
			break
		}
	}
	if allBare {
		sources := make([]string, 0, len(d.Configs))
		for _, cfg := range d.Configs {
			sources = append(sources, cfg.Source)
		}
		return sources, nil
	}

	return d.Configs, nil
}

// bareSource reports whether a matcher config is only a source pattern.
func bareSource(cfg middleware.MatcherConfig) bool {
	return cfg.Regexp == "" && len(cfg.Has) == 0 && len(cfg.Missing) == 0
}
