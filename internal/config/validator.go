package config

import (
	"fmt"

	"github.com/steerhttp/steer/internal/condition"
	"github.com/steerhttp/steer/internal/middleware"
	"github.com/steerhttp/steer/internal/pattern"
	"github.com/steerhttp/steer/internal/rules"
	"github.com/steerhttp/steer/internal/util"
)

// Validate checks the rule set fail-fast: every source pattern must
// compile, every condition must carry a known type, and every rule must
// name a destination where one is required. The first problem found is
// returned.
func Validate(rs *RuleSet) error {
	if rs == nil {
		return &util.ConfigError{Message: "rule set is nil"}
	}

	cache := pattern.NewCache()

	for i := range rs.Redirects {
		r := &rs.Redirects[i]
		field := fmt.Sprintf("redirects[%d]", i)
		if err := validateRule(cache, field, r.Source, r.Destination, r.Has, r.Missing); err != nil {
			return err
		}
	}

	if rs.Rewrites != nil {
		for _, phase := range []struct {
			name  string
			rules []rules.Rewrite
		}{
			{"rewrites.beforeFiles", rs.Rewrites.BeforeFiles},
			{"rewrites.afterFiles", rs.Rewrites.AfterFiles},
			{"rewrites.fallback", rs.Rewrites.Fallback},
		} {
			for i := range phase.rules {
				r := &phase.rules[i]
				field := fmt.Sprintf("%s[%d]", phase.name, i)
				if err := validateRule(cache, field, r.Source, r.Destination, r.Has, r.Missing); err != nil {
					return err
				}
			}
		}
	}

	for i := range rs.Headers {
		h := &rs.Headers[i]
		field := fmt.Sprintf("headers[%d]", i)
		if err := validateSource(cache, field, h.Source); err != nil {
			return err
		}
		if len(h.Headers) == 0 {
			return &util.ConfigError{Field: field, Message: "header rule declares no headers"}
		}
		for j, entry := range h.Headers {
			if entry.Key == "" {
				return &util.ConfigError{
					Field:   fmt.Sprintf("%s.headers[%d]", field, j),
					Message: "header key is empty",
				}
			}
		}
		if err := validateConditions(field, h.Has, h.Missing); err != nil {
			return err
		}
	}

	if rs.Middleware != nil {
		for i, cfg := range rs.Middleware.Matcher.Configs {
			field := fmt.Sprintf("middleware.matcher[%d]", i)
			if err := validateMatcher(cache, field, cfg); err != nil {
				return err
			}
		}
	}

	return nil
}

// validateRule checks one redirect or rewrite rule.
func validateRule(cache *pattern.Cache, field, source, destination string, has, missing []condition.Condition) error {
	if err := validateSource(cache, field, source); err != nil {
		return err
	}
	if destination == "" {
		return &util.ConfigError{Field: field + ".destination", Message: "destination is empty"}
	}
	return validateConditions(field, has, missing)
}

// validateSource compiles a source pattern, surfacing compile failures as
// config errors.
func validateSource(cache *pattern.Cache, field, source string) error {
	if source == "" {
		return &util.ConfigError{Field: field + ".source", Message: "source is empty"}
	}
	if _, err := cache.Compile(source); err != nil {
		return &util.ConfigError{Field: field + ".source", Message: "invalid pattern", Cause: err}
	}
	return nil
}

// validateConditions checks condition types and keys.
func validateConditions(field string, has, missing []condition.Condition) error {
	for i, c := range has {
		if err := validateCondition(fmt.Sprintf("%s.has[%d]", field, i), c); err != nil {
			return err
		}
	}
	for i, c := range missing {
		if err := validateCondition(fmt.Sprintf("%s.missing[%d]", field, i), c); err != nil {
			return err
		}
	}
	return nil
}

func validateCondition(field string, c condition.Condition) error {
	switch c.Type {
	case condition.TypeHeader, condition.TypeCookie, condition.TypeQuery:
		if c.Key == "" {
			return &util.ConfigError{Field: field, Message: "condition key is empty"}
		}
	case condition.TypeHost:
		if c.Value == "" {
			return &util.ConfigError{Field: field, Message: "host condition requires a value"}
		}
	default:
		return &util.ConfigError{
			Field:   field,
			Message: fmt.Sprintf("unknown condition type %q", c.Type),
		}
	}
	return nil
}

// validateMatcher checks one middleware matcher declaration.
func validateMatcher(cache *pattern.Cache, field string, cfg middleware.MatcherConfig) error {
	if cfg.Regexp != "" {
		if _, err := middleware.CompileMatchers([]middleware.MatcherConfig{cfg}, cache); err != nil {
			return &util.ConfigError{Field: field + ".regexp", Message: "invalid regexp", Cause: err}
		}
		return validateConditions(field, cfg.Has, cfg.Missing)
	}
	if cfg.Source != "" {
		if err := validateSource(cache, field, cfg.Source); err != nil {
			return err
		}
	}
	return validateConditions(field, cfg.Has, cfg.Missing)
}
