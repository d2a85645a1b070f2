// Package observability holds the Prometheus instruments for the chat
// pipeline and the HTTP surface.
package observability
