// Package httpmw holds the middleware wrapped around the public docs
// server. httpserver.NewHandler composes it with Chain, outermost first:
// security headers, recovery, request ID, client IP, rate limiting,
// tracing, content headers, metrics and the request logger.
//
// Query strings are logged but headers and user agents are not.
package httpmw
