// Package noop provides an authenticator that accepts every request as the
// anonymous identity. It backs the "none" auth method for development.
package noop

import (
	"context"
	"net/http"

	"github.com/rhuss/gatehouse/pkg/auth"
)

// Authenticator always votes Yes.
type Authenticator struct{}

// Authenticate returns auth.Anonymous regardless of the request.
func (a *Authenticator) Authenticate(_ context.Context, _ *http.Request) auth.AuthResult {
	return auth.AuthResult{Decision: auth.Yes, Identity: auth.Anonymous()}
}
