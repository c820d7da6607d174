package auth

import (
	"context"
	"errors"
	"net/http"
	"strconv"
)

// AuthDecision is one check's vote on a request.
type AuthDecision int

const (
	// Yes admits the request with the returned identity and ends the chain.
	Yes AuthDecision = iota

	// No rejects the request with 401 and ends the chain.
	No

	// Abstain passes the request to the next check, for example when the
	// Authorization header carries a scheme this check does not handle.
	Abstain
)

// String returns the vote in lower case, as used in logs.
func (d AuthDecision) String() string {
	switch d {
	case Yes:
		return "yes"
	case No:
		return "no"
	case Abstain:
		return "abstain"
	}
	return "AuthDecision(" + strconv.Itoa(int(d)) + ")"
}

// AuthResult is a vote plus what goes with it.
type AuthResult struct {
	Decision AuthDecision
	Identity *Identity // set when Decision is Yes
	Err      error     // reason when Decision is No; logged, never sent to the caller
}

// Identity is the caller an admitted request is forwarded as.
type Identity struct {
	// Subject is forwarded as X-Authenticated-Subject. Never empty.
	Subject string

	// ServiceTier selects the rate limit and is forwarded as X-Service-Tier.
	ServiceTier string

	// Scopes are forwarded space-separated as X-Authenticated-Scopes.
	Scopes []string

	// Metadata holds check-specific attributes. The key "tenant_id" is
	// forwarded upstream as X-Tenant-ID.
	Metadata map[string]string
}

// TenantID returns the tenant identifier from metadata, or empty string.
func (id *Identity) TenantID() string {
	if id == nil || id.Metadata == nil {
		return ""
	}
	return id.Metadata["tenant_id"]
}

// Authenticator examines request credentials and returns a three-outcome vote.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) AuthResult
}

// Challenger is implemented by authenticators that can tell the client how
// to authenticate. The returned value is sent as WWW-Authenticate on 401.
type Challenger interface {
	Challenge() string
}

// Sentinel errors.
var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("access denied")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// AuthChain asks each check in turn until one votes Yes or No.
type AuthChain struct {
	Authenticators []Authenticator

	// DefaultDecision applies when every check abstains. Yes admits the
	// caller as Anonymous.
	DefaultDecision AuthDecision
}

// Authenticate returns the first Yes or No vote, or the default decision.
func (c *AuthChain) Authenticate(ctx context.Context, r *http.Request) AuthResult {
	for _, authn := range c.Authenticators {
		result := authn.Authenticate(ctx, r)
		if result.Decision != Abstain {
			return result
		}
	}

	if c.DefaultDecision == Yes {
		return AuthResult{Decision: Yes, Identity: Anonymous()}
	}

	return AuthResult{
		Decision: No,
		Err:      ErrUnauthenticated,
	}
}

// Challenge returns the challenge of the first authenticator in the chain
// that offers one.
func (c *AuthChain) Challenge() string {
	for _, authn := range c.Authenticators {
		if ch, ok := authn.(Challenger); ok {
			if v := ch.Challenge(); v != "" {
				return v
			}
		}
	}
	return ""
}

// Anonymous returns the identity used when no credentials are checked.
func Anonymous() *Identity {
	return &Identity{Subject: "anonymous", ServiceTier: "default"}
}
