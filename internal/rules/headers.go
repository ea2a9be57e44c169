package rules

import (
	"net/http"

	"github.com/steerhttp/steer/internal/observability"
	"github.com/steerhttp/steer/internal/pattern"
)

// HeaderResult is the outcome of header rule resolution. Entries preserve
// declaration order across all matching rules.
type HeaderResult struct {
	Matched bool
	Headers []HeaderEntry
}

// ResolveHeaders accumulates every matching rule's header entries in order
// rather than stopping at the first match. Entry values are templated with
// the rule's own path parameters and condition captures.
func (r *Resolver) ResolveHeaders(req *http.Request, headers []Header) HeaderResult {
	var entries []HeaderEntry

	for i := range headers {
		rule := &headers[i]

		params, captures, ok := r.matchRule(req, rule.Source, rule.BasePath, rule.Has, rule.Missing)
		if !ok {
			continue
		}

		for _, entry := range rule.Headers {
			entries = append(entries, HeaderEntry{
				Key:   entry.Key,
				Value: pattern.ApplyParams(entry.Value, params, captures),
			})
		}

		r.logger.Debug("header rule matched",
			observability.String("source", rule.Source),
			observability.Int("entries", len(rule.Headers)),
		)
	}

	return HeaderResult{
		Matched: len(entries) > 0,
		Headers: entries,
	}
}

// FoldHeaders folds several accumulated passes into one applied header set.
// Later passes override earlier same-key entries (last write wins, as with
// condition captures).
func FoldHeaders(results ...HeaderResult) http.Header {
	folded := make(http.Header)
	for _, result := range results {
		for _, entry := range result.Headers {
			folded.Set(entry.Key, entry.Value)
		}
	}
	return folded
}
