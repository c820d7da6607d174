// Package apikey provides an API key authenticator. Keys are presented as
// "Authorization: Bearer <id>.<secret>"; the id selects a stored credential
// record and the secret is checked against it by a credential.Verifier.
package apikey

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rhuss/gatehouse/pkg/auth"
	"github.com/rhuss/gatehouse/pkg/credential"
	"github.com/rhuss/gatehouse/pkg/debug"
)

// Key maps a key id to its stored credential record and identity.
type Key struct {
	ID       string
	Record   string
	Identity auth.Identity
}

// Authenticator validates API keys against a static key store.
type Authenticator struct {
	keys     map[string]Key
	verifier credential.Verifier
	dummy    string
}

// New creates an API key authenticator. Ids must be unique, non-empty and
// free of dots. When verifier also implements credential.Encoder, unknown
// ids are checked against a throwaway record so response timing does not
// reveal which ids exist.
func New(keys []Key, verifier credential.Verifier) (*Authenticator, error) {
	if verifier == nil {
		return nil, fmt.Errorf("apikey: verifier is required")
	}
	a := &Authenticator{keys: make(map[string]Key, len(keys)), verifier: verifier}
	for _, k := range keys {
		if k.ID == "" || strings.Contains(k.ID, ".") {
			return nil, fmt.Errorf("apikey: invalid key id %q", k.ID)
		}
		if _, dup := a.keys[k.ID]; dup {
			return nil, fmt.Errorf("apikey: duplicate key id %q", k.ID)
		}
		if k.Identity.Subject == "" {
			k.Identity.Subject = k.ID
		}
		a.keys[k.ID] = k
	}
	if enc, ok := verifier.(credential.Encoder); ok {
		dummy, err := enc.Encode("apikey-timing-placeholder")
		if err != nil {
			return nil, fmt.Errorf("apikey: encoding placeholder record: %w", err)
		}
		a.dummy = dummy
	}
	return a, nil
}

// Authenticate extracts the bearer token and validates it.
// Returns Yes if valid, No if an API key is present but invalid,
// Abstain if there is no bearer token or it is a JWT.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.AuthResult {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return auth.AuthResult{Decision: auth.Abstain}
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}
	if looksLikeJWT(token) {
		return auth.AuthResult{Decision: auth.Abstain}
	}

	id, secret, ok := strings.Cut(token, ".")
	if !ok || id == "" || secret == "" {
		return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	key, known := a.keys[id]
	record := key.Record
	if !known {
		record = a.dummy
	}
	if !a.verifier.Verify(secret, record) || !known {
		debug.Log("auth", "api key rejected", "key_id", id, "known", known)
		return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	// Copy identity to avoid shared state.
	identity := key.Identity
	identity.Scopes = append([]string(nil), key.Identity.Scopes...)
	identity.Metadata = copyMetadata(key.Identity.Metadata)
	identity.Metadata["key_id"] = id
	return auth.AuthResult{Decision: auth.Yes, Identity: &identity}
}

// looksLikeJWT reports whether token is a compact JWS, whose header segment
// always starts with the base64url encoding of `{"`.
func looksLikeJWT(token string) bool {
	return strings.Count(token, ".") == 2 && strings.HasPrefix(token, "eyJ")
}

func copyMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
