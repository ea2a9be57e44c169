// Package condition evaluates has/missing condition lists against request
// headers, cookies, query parameters, and the host.
package condition

import (
	"net/http"
	"strings"
	"sync"
)

// Type identifies the request source a condition reads.
type Type string

const (
	// TypeHeader reads a request header.
	TypeHeader Type = "header"
	// TypeCookie reads a cookie from the raw Cookie header.
	TypeCookie Type = "cookie"
	// TypeQuery reads a query parameter.
	TypeQuery Type = "query"
	// TypeHost reads the request host.
	TypeHost Type = "host"
)

// Condition is a predicate over a request source. Value may be a literal or
// a regex with named capture groups; when empty, only presence is checked.
type Condition struct {
	Type  Type   `yaml:"type" json:"type"`
	Key   string `yaml:"key,omitempty" json:"key,omitempty"`
	Value string `yaml:"value,omitempty" json:"value,omitempty"`
}

// Result is the outcome of evaluating condition lists. Captures only
// contain named-group matches.
type Result struct {
	Matches  bool
	Captures map[string]string
}

// Evaluator evaluates conditions, caching compiled condition values. The
// cache is read-mostly and append-only; recompiling an equivalent value
// twice on a race is harmless.
type Evaluator struct {
	mu     sync.RWMutex
	values map[string]*compiledValue
}

// NewEvaluator creates a new Evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{
		values: make(map[string]*compiledValue),
	}
}

// Evaluate checks that every has condition holds and every missing
// condition holds. Has conditions are a conjunction with short-circuit on
// the first failure; missing means "absent, or present but not satisfying
// the value". Captures merge left-to-right across has conditions, later
// conditions overwriting earlier ones on key collision.
func (e *Evaluator) Evaluate(req *http.Request, has, missing []Condition) Result {
	var captures map[string]string

	for _, cond := range has {
		ok, condCaptures := e.evalHas(req, cond)
		if !ok {
			return Result{}
		}
		for k, v := range condCaptures {
			if captures == nil {
				captures = make(map[string]string)
			}
			captures[k] = v
		}
	}

	for _, cond := range missing {
		if !e.evalMissing(req, cond) {
			return Result{}
		}
	}

	return Result{Matches: true, Captures: captures}
}

// evalHas evaluates a single has condition.
func (e *Evaluator) evalHas(req *http.Request, cond Condition) (bool, map[string]string) {
	value, present := lookup(req, cond)
	if !present {
		return false, nil
	}
	if cond.Value == "" {
		return true, nil
	}
	return e.compiled(cond.Value).match(value)
}

// evalMissing evaluates a single missing condition.
func (e *Evaluator) evalMissing(req *http.Request, cond Condition) bool {
	value, present := lookup(req, cond)
	if !present {
		return true
	}
	if cond.Value == "" {
		return false
	}
	ok, _ := e.compiled(cond.Value).match(value)
	return !ok
}

// compiled returns the compiled form of a condition value.
func (e *Evaluator) compiled(value string) *compiledValue {
	e.mu.RLock()
	cv, ok := e.values[value]
	e.mu.RUnlock()
	if ok {
		return cv
	}

	cv = compileValue(value)

	e.mu.Lock()
	if existing, ok := e.values[value]; ok {
		cv = existing
	} else {
		e.values[value] = cv
	}
	e.mu.Unlock()

	return cv
}

// lookup reads the condition's source from the request, reporting the value
// and whether the source is present.
func lookup(req *http.Request, cond Condition) (string, bool) {
	switch cond.Type {
	case TypeHeader:
		values, ok := req.Header[http.CanonicalHeaderKey(cond.Key)]
		if !ok || len(values) == 0 {
			return "", false
		}
		return values[0], true

	case TypeCookie:
		cookies := ParseCookies(req.Header.Get("Cookie"))
		value, ok := cookies[cond.Key]
		return value, ok

	case TypeQuery:
		query := req.URL.Query()
		if !query.Has(cond.Key) {
			return "", false
		}
		return query.Get(cond.Key), true

	case TypeHost:
		host := req.Host
		if host == "" {
			return "", false
		}
		// Header-style hosts may carry a port.
		if idx := strings.LastIndex(host, ":"); idx != -1 && !strings.HasSuffix(host, "]") {
			host = host[:idx]
		}
		return host, true

	default:
		return "", false
	}
}

// ParseCookies parses a raw Cookie header. Keys are trimmed; everything
// after the first "=" is the value, so values may themselves contain "=".
func ParseCookies(raw string) map[string]string {
	cookies := make(map[string]string)
	if raw == "" {
		return cookies
	}

	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		cookies[strings.TrimSpace(key)] = value
	}

	return cookies
}
