package engine

import (
	"context"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/steerhttp/steer/internal/middleware"
	"github.com/steerhttp/steer/internal/observability"
)

// RequestIDHeader carries the per-request correlation ID.
const RequestIDHeader = "X-Request-ID"

// taskDrainTimeout bounds how long a finished request waits for
// background tasks launched by middleware.
const taskDrainTimeout = 30 * time.Second

// GinMiddleware adapts the engine to a gin pipeline: it evaluates every
// request and either terminates it (respond, redirect, external rewrite)
// or forwards it to the remaining handlers, possibly against a rewritten
// path.
func GinMiddleware(e *Engine, logger observability.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	return func(c *gin.Context) {
		req := withRequestID(c.Request)
		c.Request = req
		c.Writer.Header().Set(RequestIDHeader, observability.RequestIDFromContext(req.Context()))

		decision := e.Process(req)

		applyHeaders(c.Writer.Header(), decision.Headers)

		switch decision.Kind {
		case DecisionRespond:
			writeResponse(c, decision.Response)
			c.Abort()

		case DecisionRedirect:
			c.Redirect(decision.Status, decision.Location)
			c.Abort()

		case DecisionRewriteExternal:
			proxyExternal(c, decision.ExternalURL, logger)
			c.Abort()

		case DecisionDispatch:
			c.Request = decision.Request
			c.Next()
		}

		drainTasks(decision, logger)
	}
}

// withRequestID ensures the request context carries a correlation ID,
// reusing the inbound header when present.
func withRequestID(req *http.Request) *http.Request {
	id := req.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	return req.WithContext(observability.ContextWithRequestID(req.Context(), id))
}

// applyHeaders copies accumulated rule headers onto the response.
func applyHeaders(dst, src http.Header) {
	for key, values := range src {
		dst[key] = append([]string(nil), values...)
	}
}

// writeResponse writes a terminal middleware response.
func writeResponse(c *gin.Context, resp *middleware.Response) {
	if resp == nil {
		c.Status(http.StatusOK)
		return
	}

	header := c.Writer.Header()
	applyHeaders(header, resp.Header)

	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	c.Status(status)
	if len(resp.Body) > 0 {
		_, _ = c.Writer.Write(resp.Body)
	}
}

// proxyExternal forwards the request to an external rewrite target.
func proxyExternal(c *gin.Context, target string, logger observability.Logger) {
	parsed, err := url.Parse(target)
	if err != nil {
		logger.Error("invalid external rewrite target",
			observability.String("target", target),
			observability.Error(err),
		)
		c.AbortWithStatus(http.StatusBadGateway)
		return
	}

	proxy := &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			req.URL = parsed
			req.Host = parsed.Host
		},
		ErrorHandler: func(w http.ResponseWriter, _ *http.Request, err error) {
			logger.Error("external rewrite proxy failed",
				observability.String("target", target),
				observability.Error(err),
			)
			w.WriteHeader(http.StatusBadGateway)
		},
	}

	proxy.ServeHTTP(c.Writer, c.Request)
}

// drainTasks waits for background tasks launched during the request.
func drainTasks(decision *Decision, logger observability.Logger) {
	if decision.Tasks == nil || decision.Tasks.Len() == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), taskDrainTimeout)
	defer cancel()

	if err := decision.Tasks.Drain(ctx); err != nil {
		logger.Warn("background task drain failed",
			observability.Strings("tasks", decision.Tasks.Names()),
			observability.Error(err),
		)
	}
}
