package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/steerhttp/steer/internal/observability"
	"github.com/steerhttp/steer/internal/util"
)

// Handler is an interception function. Returning a nil outcome with a nil
// error continues the pipeline unchanged.
type Handler func(ctx context.Context, req *http.Request) (*Outcome, error)

// State tracks where execution of the interception function stands.
type State int

const (
	// StateNotRun means the executor has not invoked the handler.
	StateNotRun State = iota

	// StateInvoking means the handler is currently running.
	StateInvoking

	// StateCompleted means the handler returned an outcome.
	StateCompleted

	// StateFaulted means the handler returned an error, panicked, or
	// timed out.
	StateFaulted
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateNotRun:
		return "not_run"
	case StateInvoking:
		return "invoking"
	case StateCompleted:
		return "completed"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Result is the uniform outcome of running the interception function,
// consumed by the dispatch pipeline.
type Result struct {
	// Continue reports whether the pipeline should keep going. False
	// means Response holds a terminal response.
	Continue bool

	// Response is the terminal response when Continue is false.
	Response *Response

	// RewriteTo is the rewrite target when the handler redirected the
	// pipeline to a different path or external URL.
	RewriteTo string

	// Request is the request the rest of the pipeline should observe.
	// It differs from the input when the handler replaced the request
	// header set.
	Request *http.Request

	// ResponseHeaders are appended to whatever response is eventually
	// written.
	ResponseHeaders http.Header

	// Tasks holds background work the handler launched; the caller
	// drains it after the response is written.
	Tasks *TaskGroup

	// State records how execution ended.
	State State
}

// faultBody matches the generic recovery response: no internal detail
// leaks to the client.
const faultBody = `{"error":"internal server error"}`

type taskGroupKey struct{}

// ContextWithTasks attaches a task group to ctx so handlers can launch
// background work via TasksFromContext.
func ContextWithTasks(ctx context.Context, tasks *TaskGroup) context.Context {
	return context.WithValue(ctx, taskGroupKey{}, tasks)
}

// TasksFromContext returns the task group attached to ctx, or nil.
func TasksFromContext(ctx context.Context) *TaskGroup {
	tasks, _ := ctx.Value(taskGroupKey{}).(*TaskGroup)
	return tasks
}

// Execute runs the interception function for req and normalizes whatever
// it does into a Result. Handler panics are recovered and treated as
// errors.
func Execute(ctx context.Context, req *http.Request, handler Handler, opts *Options) *Result {
	if opts == nil {
		opts = &Options{}
	}

	tasks := NewTaskGroup()
	result := &Result{
		Continue: true,
		Request:  req,
		Tasks:    tasks,
		State:    StateNotRun,
	}

	if handler == nil {
		return result
	}

	handlerReq := handlerView(req, opts.BasePath)
	handlerCtx := ContextWithTasks(ctx, tasks)

	result.State = StateInvoking
	outcome, err := invoke(handlerCtx, handlerReq, handler, opts.Timeout)
	if err != nil {
		result.State = StateFaulted
		return faultResult(result, err, opts)
	}
	result.State = StateCompleted

	applyOutcome(result, req, outcome)
	return result
}

// invoke runs the handler, recovering panics and racing opts.Timeout when
// set. The handler keeps running after a timeout fires; its eventual
// result is discarded.
func invoke(ctx context.Context, req *http.Request, handler Handler, timeout time.Duration) (*Outcome, error) {
	if timeout <= 0 {
		return callRecovered(ctx, req, handler)
	}

	type reply struct {
		outcome *Outcome
		err     error
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan reply, 1)
	go func() {
		outcome, err := callRecovered(ctx, req, handler)
		ch <- reply{outcome: outcome, err: err}
	}()

	select {
	case r := <-ch:
		return r.outcome, r.err
	case <-ctx.Done():
		return nil, util.WrapError(util.ErrTimeout, "middleware handler timed out")
	}
}

// callRecovered invokes the handler, converting a panic into an error.
func callRecovered(ctx context.Context, req *http.Request, handler Handler) (outcome *Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = nil
			err = &util.HandlerError{Message: "middleware handler panicked", Cause: panicError(r)}
		}
	}()
	return handler(ctx, req)
}

// panicError converts a recovered value into an error.
func panicError(recovered any) error {
	if err, ok := recovered.(error); ok {
		return err
	}
	return fmt.Errorf("%v", recovered)
}

// applyOutcome translates a handler outcome into the result the pipeline
// consumes. A nil outcome continues unchanged.
func applyOutcome(result *Result, req *http.Request, outcome *Outcome) {
	if outcome == nil {
		return
	}

	result.ResponseHeaders = outcome.ResponseHeaders

	if outcome.RequestHeaders != nil {
		replaced := req.Clone(req.Context())
		replaced.Header = outcome.RequestHeaders
		result.Request = replaced
	}

	switch outcome.Action {
	case ActionNext:
		// Continue stays true.
	case ActionRewrite:
		result.RewriteTo = outcome.Target
	case ActionRespond:
		result.Continue = false
		result.Response = outcome.Response
		if result.Response == nil {
			result.Response = &Response{Status: http.StatusOK}
		}
	}

	for _, task := range outcome.Background {
		result.Tasks.Go(task.Name, task.Fn)
	}
}

// faultResult finalizes a result after a handler error: a generic 500
// response, or a plain continue when ContinueOnError is set.
func faultResult(result *Result, err error, opts *Options) *Result {
	if opts.Logger != nil {
		opts.Logger.Error("middleware handler failed",
			observability.Error(err),
			observability.String("state", result.State.String()),
		)
	}

	if opts.ContinueOnError {
		return result
	}

	result.Continue = false
	result.Response = &Response{
		Status: http.StatusInternalServerError,
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   []byte(faultBody),
	}
	return result
}

// handlerView returns the request as the handler should observe it: the
// base path stripped from a copy, the original untouched.
func handlerView(req *http.Request, basePath string) *http.Request {
	if basePath == "" || basePath == "/" {
		return req
	}
	path := req.URL.Path
	if path != basePath && !strings.HasPrefix(path, basePath+"/") {
		return req
	}

	view := req.Clone(req.Context())
	stripped := strings.TrimPrefix(path, basePath)
	if stripped == "" {
		stripped = "/"
	}
	view.URL.Path = stripped
	return view
}
