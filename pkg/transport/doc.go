// Package transport provides the net/http middleware shared by every route
// of the gateway: request ID assignment (X-Request-ID), panic recovery,
// structured access logging via log/slog, and the JSON error envelope
//
//	{"error":{"type":"...","message":"..."}}
//
// used for every response the gateway produces itself.
package transport
