package gateway

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/rhuss/gatehouse/pkg/admission"
	"github.com/rhuss/gatehouse/pkg/auth"
	"github.com/rhuss/gatehouse/pkg/observability"
	"github.com/rhuss/gatehouse/pkg/transport"
)

// Identity headers set on admitted requests before they reach the upstream.
// Incoming copies are always removed so callers cannot forge them.
const (
	HeaderSubject     = "X-Authenticated-Subject"
	HeaderTenantID    = "X-Tenant-ID"
	HeaderServiceTier = "X-Service-Tier"
	HeaderScopes      = "X-Authenticated-Scopes"
)

var identityHeaders = []string{HeaderSubject, HeaderTenantID, HeaderServiceTier, HeaderScopes}

// newProxy returns a reverse proxy to target. When stripCORS is set the
// upstream's own Access-Control-* headers are dropped in favour of the
// gateway's.
func newProxy(target *url.URL, stripCORS bool, logger *slog.Logger) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			// The upstream sees the path the admission rules were matched on.
			p := admission.CleanPath(pr.In.URL.Path)
			if strings.HasSuffix(pr.In.URL.Path, "/") && p != "/" {
				p += "/"
			}
			pr.Out.URL.Path = p
			pr.Out.URL.RawPath = ""
			pr.SetURL(target)
			pr.SetXForwarded()

			for _, h := range identityHeaders {
				pr.Out.Header.Del(h)
			}

			id := auth.IdentityFromContext(pr.In.Context())
			if id == nil {
				return
			}
			// Credentials were consumed by the gateway.
			pr.Out.Header.Del("Authorization")
			pr.Out.Header.Set(HeaderSubject, id.Subject)
			if t := id.TenantID(); t != "" {
				pr.Out.Header.Set(HeaderTenantID, t)
			}
			if id.ServiceTier != "" {
				pr.Out.Header.Set(HeaderServiceTier, id.ServiceTier)
			}
			if len(id.Scopes) > 0 {
				pr.Out.Header.Set(HeaderScopes, strings.Join(id.Scopes, " "))
			}
		},
		ModifyResponse: func(resp *http.Response) error {
			if !stripCORS {
				return nil
			}
			for k := range resp.Header {
				if strings.HasPrefix(k, "Access-Control-") {
					delete(resp.Header, k)
				}
			}
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			observability.UpstreamErrorsTotal.Inc()
			logger.Error("upstream request failed",
				"request_id", transport.RequestIDFromContext(r.Context()),
				"upstream", target.Host,
				"path", r.URL.Path,
				"error", err,
			)
			transport.WriteError(w, transport.ErrorTypeBadGateway, "upstream unavailable")
		},
	}
}

// notFound answers admitted requests when no upstream is configured.
func notFound(w http.ResponseWriter, r *http.Request) {
	transport.WriteError(w, transport.ErrorTypeNotFound, "no route for "+r.URL.Path)
}
