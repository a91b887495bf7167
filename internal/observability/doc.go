// Package observability builds the gateway's zap loggers and attaches
// request-scoped fields to them.
package observability
