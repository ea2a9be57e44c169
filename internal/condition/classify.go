package condition

import (
	"regexp"
	"strings"
)

// ValueKind classifies a condition value as an exact literal or a regular
// expression.
type ValueKind int

const (
	// Literal means the value is compared byte for byte.
	Literal ValueKind = iota
	// Regex means the value is evaluated as a regular expression.
	Regex
)

// regexMetachars are the characters whose presence classifies a value as a
// regular expression. A literal that happens to contain one of these is
// deliberately misclassified for compatibility; the compile-failure
// fallback below restores literal comparison for values that are not valid
// regexes.
const regexMetachars = `\^$.|?*+()[]{}`

// ClassifyValue reports whether a condition value should be evaluated as a
// regex or as an exact literal. The heuristic lives here, and only here, so
// it stays swappable and independently testable.
func ClassifyValue(value string) ValueKind {
	if strings.ContainsAny(value, regexMetachars) {
		return Regex
	}
	return Literal
}

// namedGroupRe matches the (?<name>) spelling of named capture groups,
// which configuration files may use; Go's regexp requires (?P<name>).
var namedGroupRe = regexp.MustCompile(`\(\?<([A-Za-z_][A-Za-z0-9_]*)>`)

// compiledValue is a condition value prepared for evaluation.
type compiledValue struct {
	kind    ValueKind
	literal string
	regex   *regexp.Regexp
}

// compileValue classifies and, for regex values, compiles a condition
// value. An invalid regex degrades to exact-literal comparison so a
// configuration mistake never fails the request path.
func compileValue(value string) *compiledValue {
	if ClassifyValue(value) == Literal {
		return &compiledValue{kind: Literal, literal: value}
	}

	translated := namedGroupRe.ReplaceAllString(value, `(?P<$1>`)
	regex, err := regexp.Compile(translated)
	if err != nil {
		return &compiledValue{kind: Literal, literal: value}
	}
	return &compiledValue{kind: Regex, regex: regex}
}

// match evaluates the compiled value against an actual value, returning
// whether it satisfies and any named-group captures.
func (v *compiledValue) match(actual string) (bool, map[string]string) {
	if v.kind == Literal {
		return actual == v.literal, nil
	}

	submatches := v.regex.FindStringSubmatch(actual)
	if submatches == nil {
		return false, nil
	}

	var captures map[string]string
	for i, name := range v.regex.SubexpNames() {
		if i == 0 || name == "" || i >= len(submatches) {
			continue
		}
		if captures == nil {
			captures = make(map[string]string)
		}
		captures[name] = submatches[i]
	}

	return true, captures
}
