// Package middleware provides the HTTP middleware chain: W3C Extended Log
// Format request logging and Prometheus request metrics. Both wrap the
// response writer to capture status codes and byte counts without the
// handlers knowing.
package middleware
