// Package middleware provides the HTTP middleware of the conductor server.
//
// Requests pass through, outermost first:
//  1. Recovery: turns handler panics into a 500 JSON error
//  2. CORS: answers preflights and sets CORS headers for allowed origins
//  3. RequestID: assigns the X-Request-ID used to correlate logs
//  4. Logging: logs method, path, status, bytes and latency
//  5. Tracing: extracts W3C trace context and starts a server span
//
// MetricsMiddleware is applied per route so the route label is the
// registered pattern rather than the raw path.
package middleware
