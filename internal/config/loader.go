package config

import (
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/steerhttp/steer/internal/engine"
	"github.com/steerhttp/steer/internal/middleware"
	"github.com/steerhttp/steer/internal/pattern"
	"github.com/steerhttp/steer/internal/util"
)

// Load reads and validates the rule file at path.
func Load(path string) (*RuleSet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, util.WrapError(err, "opening rule file")
	}
	defer func() { _ = file.Close() }()

	return LoadFromReader(file)
}

// LoadFromReader decodes and validates a rule set from r.
func LoadFromReader(r io.Reader) (*RuleSet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, util.WrapError(err, "reading rule file")
	}

	ruleSet := &RuleSet{}
	if err := yaml.Unmarshal(data, ruleSet); err != nil {
		return nil, &util.ConfigError{Message: "parsing rule file", Cause: err}
	}

	if err := Validate(ruleSet); err != nil {
		return nil, err
	}

	return ruleSet, nil
}

// Build compiles the rule set into the engine's runtime form: every
// pattern compiled through the shared cache, every middleware matcher
// normalized.
func (rs *RuleSet) Build(cache *pattern.Cache) (*engine.RuleSet, error) {
	if cache == nil {
		cache = pattern.NewCache()
	}

	built := &engine.RuleSet{
		BasePath:  rs.BasePath,
		Redirects: rs.Redirects,
		Rewrites:  rs.Rewrites,
		Headers:   rs.Headers,
	}

	if rs.Middleware != nil {
		var declaration any
		if !rs.Middleware.Matcher.IsZero() {
			declaration = rs.Middleware.Matcher.Configs
		}
		matchers, err := middleware.CompileMatchers(declaration, cache)
		if err != nil {
			return nil, &util.ConfigError{Field: "middleware.matcher", Message: "compiling matchers", Cause: err}
		}
		built.Matchers = matchers
	}

	return built, nil
}
