package pattern

import (
	"regexp"
	"strings"
)

var paramTokenRe = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_]*)\*?`)

// ApplyParams substitutes :name and :name* tokens in a destination
// template. Array parameters are joined with "/"; condition captures
// override path parameters on name collision. Tokens with no corresponding
// value are left untouched.
func ApplyParams(template string, params Params, captures map[string]string) string {
	if !strings.Contains(template, ":") {
		return template
	}

	return paramTokenRe.ReplaceAllStringFunc(template, func(token string) string {
		name := strings.TrimSuffix(token[1:], "*")

		if captures != nil {
			if v, ok := captures[name]; ok {
				return v
			}
		}

		if p, ok := params[name]; ok {
			if p.Array {
				return strings.Join(p.Values, "/")
			}
			return p.Value
		}

		return token
	})
}
