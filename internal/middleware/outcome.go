package middleware

import "net/http"

// Action identifies what the interception function decided for a request.
type Action int

const (
	// ActionNext continues the normal pipeline, optionally with a
	// replacement request-header set.
	ActionNext Action = iota

	// ActionRewrite continues the pipeline against a different target
	// path or absolute URL.
	ActionRewrite

	// ActionRespond terminates the request with the attached response.
	ActionRespond
)

// String returns a human-readable action name for logs and metrics.
func (a Action) String() string {
	switch a {
	case ActionNext:
		return "next"
	case ActionRewrite:
		return "rewrite"
	case ActionRespond:
		return "respond"
	default:
		return "unknown"
	}
}

// Response is a terminal response produced by the interception function.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Outcome is the decision an interception handler returns. Exactly one
// action applies; the zero value continues the pipeline unchanged.
type Outcome struct {
	Action Action

	// RequestHeaders, when non-nil, replaces the request header set the
	// rest of the pipeline observes. Valid with ActionNext and
	// ActionRewrite.
	RequestHeaders http.Header

	// ResponseHeaders are appended to the eventual response regardless
	// of action.
	ResponseHeaders http.Header

	// Target is the rewrite destination for ActionRewrite: a path, or
	// an absolute URL for an external rewrite.
	Target string

	// Response is the terminal response for ActionRespond.
	Response *Response

	// Background holds named task functions to launch after the outcome
	// is applied, alongside anything already started through the
	// request's task group.
	Background []BackgroundTask
}

// BackgroundTask is a named function to run detached from the request.
type BackgroundTask struct {
	Name string
	Fn   func() error
}

// Next continues the pipeline unchanged.
func Next() *Outcome {
	return &Outcome{Action: ActionNext}
}

// NextWithHeaders continues the pipeline with a replacement request
// header set.
func NextWithHeaders(replacement http.Header) *Outcome {
	return &Outcome{Action: ActionNext, RequestHeaders: replacement}
}

// RewriteTo continues the pipeline against target instead of the
// original path.
func RewriteTo(target string) *Outcome {
	return &Outcome{Action: ActionRewrite, Target: target}
}

// Respond terminates the request with the given response.
func Respond(resp *Response) *Outcome {
	return &Outcome{Action: ActionRespond, Response: resp}
}

// WithResponseHeaders attaches headers to append to the eventual
// response and returns the same outcome for chaining.
func (o *Outcome) WithResponseHeaders(h http.Header) *Outcome {
	o.ResponseHeaders = h
	return o
}

// WithBackground queues a named task to launch once the outcome is
// applied and returns the same outcome for chaining.
func (o *Outcome) WithBackground(name string, fn func() error) *Outcome {
	o.Background = append(o.Background, BackgroundTask{Name: name, Fn: fn})
	return o
}
