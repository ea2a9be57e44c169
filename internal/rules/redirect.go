package rules

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/steerhttp/steer/internal/observability"
	"github.com/steerhttp/steer/internal/pattern"
)

// RedirectResult is the outcome of redirect resolution.
type RedirectResult struct {
	Matched  bool
	Status   int
	Location string
}

// ResolveRedirect iterates redirect rules in declared order; the first rule
// whose pattern and conditions both match wins and remaining rules are not
// evaluated.
func (r *Resolver) ResolveRedirect(req *http.Request, redirects []Redirect) RedirectResult {
	for i := range redirects {
		rule := &redirects[i]

		params, captures, ok := r.matchRule(req, rule.Source, rule.BasePath, rule.Has, rule.Missing)
		if !ok {
			continue
		}

		status := http.StatusTemporaryRedirect
		if rule.Permanent {
			status = http.StatusPermanentRedirect
		}

		location := r.buildLocation(req, rule, params, captures)

		r.logger.Debug("redirect rule matched",
			observability.String("source", rule.Source),
			observability.String("location", location),
			observability.Int("status", status),
		)

		return RedirectResult{
			Matched:  true,
			Status:   status,
			Location: location,
		}
	}

	return RedirectResult{}
}

// buildLocation templates the destination and merges the original query
// string. Keys already present in the destination template are not
// overwritten by carried-over original query values.
func (r *Resolver) buildLocation(
	req *http.Request,
	rule *Redirect,
	params pattern.Params,
	captures map[string]string,
) string {
	destination := pattern.ApplyParams(rule.Destination, params, captures)

	dest, err := url.Parse(destination)
	if err != nil {
		return destination
	}

	// Relative destinations resolve against the request origin.
	if !dest.IsAbs() && strings.HasPrefix(destination, "/") {
		dest.Scheme = requestScheme(req)
		dest.Host = req.Host
	}

	if rule.PreserveQuery == nil || *rule.PreserveQuery {
		query := dest.Query()
		for key, values := range req.URL.Query() {
			if query.Has(key) {
				continue
			}
			for _, v := range values {
				query.Add(key, v)
			}
		}
		dest.RawQuery = query.Encode()
	}

	return dest.String()
}
