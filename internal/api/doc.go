// Package api wires the admin daemon's HTTP surface: routing, shared
// middleware, and the handlers that drive privileged host operations.
package api
