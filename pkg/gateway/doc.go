// Package gateway turns a loaded configuration into a running
// request-admission gateway: it builds the cross-origin policy, the
// credential scheme registry, the authentication chain and the admission
// rules, mounts them on a chi router in front of a reverse proxy, and
// manages the HTTP server lifecycle.
package gateway
