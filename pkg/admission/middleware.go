package admission

import (
	"net/http"

	"github.com/rhuss/gatehouse/pkg/auth"
)

// Middleware adapts f to net/http. Rejected and preflight requests are
// answered directly. Admitted requests get the CORS headers and, when
// authenticated, the identity in their context.
func Middleware(f *Filter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := f.Admit(r)
			if !res.Continue {
				res.Respond.Write(w)
				return
			}

			h := w.Header()
			for k, vs := range res.Header {
				h[k] = append(h[k], vs...)
			}

			if res.Identity != nil {
				r = r.WithContext(auth.SetIdentity(r.Context(), res.Identity))
			}
			next.ServeHTTP(w, r)
		})
	}
}
