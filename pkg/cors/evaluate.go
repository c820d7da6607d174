package cors

import (
	"net/http"
	"strings"

	"github.com/rhuss/gatehouse/pkg/debug"
)

// CORS header names.
const (
	HeaderOrigin           = "Origin"
	HeaderRequestMethod    = "Access-Control-Request-Method"
	HeaderRequestHeaders   = "Access-Control-Request-Headers"
	HeaderAllowOrigin      = "Access-Control-Allow-Origin"
	HeaderAllowMethods     = "Access-Control-Allow-Methods"
	HeaderAllowHeaders     = "Access-Control-Allow-Headers"
	HeaderAllowCredentials = "Access-Control-Allow-Credentials"
	HeaderExposeHeaders    = "Access-Control-Expose-Headers"
	HeaderMaxAge           = "Access-Control-Max-Age"
	HeaderVary             = "Vary"
)

// Reason explains a denied decision. It is for logs and metrics only and is
// never sent to the client.
type Reason string

// Denial reasons.
const (
	ReasonNone          Reason = ""
	ReasonOriginDenied  Reason = "origin_denied"
	ReasonMethodDenied  Reason = "preflight_method_denied"
	ReasonHeadersDenied Reason = "preflight_headers_denied"
)

// Decision is the outcome of evaluating one request.
type Decision struct {
	// Allow is false when the origin, or a preflight's requested method or
	// headers, are not permitted.
	Allow bool

	// Preflight is true when the request was a preflight. An allowed
	// preflight is answered directly and never reaches the next handler.
	Preflight bool

	// Reason is set when Allow is false.
	Reason Reason

	// Header holds the response headers to send. Denied decisions carry no
	// Access-Control-* headers.
	Header http.Header
}

// IsPreflight reports whether r is a CORS preflight request.
func IsPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions &&
		r.Header.Get(HeaderOrigin) != "" &&
		r.Header.Get(HeaderRequestMethod) != ""
}

// EvaluateRequest extracts the CORS inputs from r and evaluates them.
func (p *Policy) EvaluateRequest(r *http.Request) Decision {
	origin := r.Header.Get(HeaderOrigin)
	if IsPreflight(r) {
		return p.Evaluate(origin, r.Header.Get(HeaderRequestMethod),
			ParseHeaderList(r.Header.Values(HeaderRequestHeaders)), true)
	}
	return p.Evaluate(origin, r.Method, nil, false)
}

// Evaluate decides whether a request from origin may proceed. For a
// preflight, method and requestHeaders are the values the browser asks
// permission for; otherwise requestHeaders is ignored.
//
// A request without an origin is not a cross-origin request and is allowed
// without any CORS headers.
func (p *Policy) Evaluate(origin, method string, requestHeaders []string, preflight bool) Decision {
	if origin == "" {
		return Decision{Allow: true, Header: http.Header{}}
	}

	h := http.Header{}
	h.Add(HeaderVary, HeaderOrigin)
	if preflight {
		h.Add(HeaderVary, HeaderRequestMethod)
		h.Add(HeaderVary, HeaderRequestHeaders)
	}

	if !p.allowsOrigin(origin) {
		debug.Log("cors", "origin denied", "origin", origin, "preflight", preflight)
		return Decision{Preflight: preflight, Reason: ReasonOriginDenied, Header: h}
	}

	if !preflight {
		h.Set(HeaderAllowOrigin, p.allowOriginValue(origin))
		if p.credentials {
			h.Set(HeaderAllowCredentials, "true")
		}
		if p.exposeHeaders != "" {
			h.Set(HeaderExposeHeaders, p.exposeHeaders)
		}
		return Decision{Allow: true, Header: h}
	}

	if !p.anyMethod && !p.methods[method] {
		debug.Log("cors", "preflight method denied", "origin", origin, "method", method)
		return Decision{Preflight: true, Reason: ReasonMethodDenied, Header: h}
	}
	if !p.anyHeader {
		for _, name := range requestHeaders {
			if !p.headers[strings.ToLower(name)] {
				debug.Log("cors", "preflight header denied", "origin", origin, "header", name)
				return Decision{Preflight: true, Reason: ReasonHeadersDenied, Header: h}
			}
		}
	}

	h.Set(HeaderAllowOrigin, p.allowOriginValue(origin))
	if p.anyMethod && p.credentials {
		h.Set(HeaderAllowMethods, method)
	} else {
		h.Set(HeaderAllowMethods, p.allowMethods)
	}
	if p.allowHeaders != "" {
		h.Set(HeaderAllowHeaders, p.allowHeaders)
	}
	if p.credentials {
		h.Set(HeaderAllowCredentials, "true")
	}
	h.Set(HeaderMaxAge, p.maxAge)

	return Decision{Allow: true, Preflight: true, Header: h}
}

func (p *Policy) allowsOrigin(origin string) bool {
	return p.anyOrigin || p.origins[origin]
}

// allowOriginValue echoes the origin unless the policy is an anonymous
// wildcard policy.
func (p *Policy) allowOriginValue(origin string) string {
	if p.anyOrigin && !p.credentials && !p.origins[origin] {
		return Wildcard
	}
	return origin
}

// ParseHeaderList splits comma-separated header-name lists, as sent in
// Access-Control-Request-Headers, into lower-cased names.
func ParseHeaderList(values []string) []string {
	var names []string
	for _, v := range values {
		for _, name := range strings.Split(v, ",") {
			name = strings.ToLower(strings.TrimSpace(name))
			if name != "" {
				names = append(names, name)
			}
		}
	}
	return names
}
