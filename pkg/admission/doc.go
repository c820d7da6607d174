// Package admission decides, once per request, whether the request may
// reach the backend.
//
// The Filter runs the cross-origin policy first, then the ordered rule
// set. Rules are matched first-match-wins against the request path (and
// optionally method); a request that matches no rule requires
// authentication. Only when the matched rule requires it is the
// authentication check run, so public routes never touch credentials.
//
// Filter.Admit returns a Result describing either a complete response to
// send (preflight answer, 401, 403, 429) or the headers to attach to the
// downstream response. Middleware adapts it to net/http.
package admission
