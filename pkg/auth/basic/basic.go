// Package basic provides an HTTP Basic authenticator backed by a user store
// of credential records.
package basic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/rhuss/gatehouse/pkg/auth"
	"github.com/rhuss/gatehouse/pkg/credential"
	"github.com/rhuss/gatehouse/pkg/debug"
)

// User is a stored account: its credential record and the identity it
// authenticates as.
type User struct {
	Username string
	Record   string
	Identity auth.Identity
}

// UserStore looks up users by name.
type UserStore interface {
	Lookup(ctx context.Context, username string) (*User, bool)
}

// PasswordUpdater is implemented by stores that can persist a re-encoded
// credential record.
type PasswordUpdater interface {
	UpdatePassword(ctx context.Context, username, record string) error
}

// ErrReadOnly is returned by stores that cannot persist records.
var ErrReadOnly = errors.New("basic: user store is read-only")

// StaticStore is an immutable in-memory UserStore.
type StaticStore struct {
	users map[string]User
}

// NewStaticStore builds a store from users. Usernames must be unique and
// non-empty.
func NewStaticStore(users []User) (*StaticStore, error) {
	s := &StaticStore{users: make(map[string]User, len(users))}
	for _, u := range users {
		if u.Username == "" {
			return nil, fmt.Errorf("basic: empty username")
		}
		if _, dup := s.users[u.Username]; dup {
			return nil, fmt.Errorf("basic: duplicate username %q", u.Username)
		}
		if u.Identity.Subject == "" {
			u.Identity.Subject = u.Username
		}
		s.users[u.Username] = u
	}
	return s, nil
}

// Lookup implements UserStore. The returned user is a copy.
func (s *StaticStore) Lookup(_ context.Context, username string) (*User, bool) {
	u, ok := s.users[username]
	if !ok {
		return nil, false
	}
	u.Identity.Scopes = append([]string(nil), u.Identity.Scopes...)
	meta := make(map[string]string, len(u.Identity.Metadata))
	for k, v := range u.Identity.Metadata {
		meta[k] = v
	}
	u.Identity.Metadata = meta
	return &u, true
}

// Authenticator validates HTTP Basic credentials.
type Authenticator struct {
	store    UserStore
	verifier credential.Verifier
	realm    string

	dummyOnce sync.Once
	dummy     string
}

// New creates a Basic authenticator. Passwords are checked by verifier;
// the authenticator never compares them itself.
func New(store UserStore, verifier credential.Verifier, realm string) (*Authenticator, error) {
	if store == nil || verifier == nil {
		return nil, fmt.Errorf("basic: store and verifier are required")
	}
	if realm == "" {
		realm = "gatehouse"
	}
	return &Authenticator{store: store, verifier: verifier, realm: realm}, nil
}

// Authenticate returns Abstain without Basic credentials, No when the user
// is unknown or the password does not match, and Yes otherwise.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) auth.AuthResult {
	username, password, ok := r.BasicAuth()
	if !ok {
		return auth.AuthResult{Decision: auth.Abstain}
	}

	user, found := a.store.Lookup(ctx, username)
	record := a.dummyRecord()
	if found {
		record = user.Record
	}

	// Unknown users still pay for a verification so timing does not reveal
	// which accounts exist.
	if !a.verifier.Verify(password, record) || !found {
		debug.Log("auth", "basic credentials rejected", "username", username, "known", found)
		return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	if u, ok := a.verifier.(interface{ NeedsUpgrade(string) bool }); ok && u.NeedsUpgrade(user.Record) {
		a.upgrade(ctx, username, password)
	}

	identity := user.Identity
	return auth.AuthResult{Decision: auth.Yes, Identity: &identity}
}

// upgrade re-encodes a verified password with the default scheme when the
// store can persist it. Failures are logged and never fail the login.
func (a *Authenticator) upgrade(ctx context.Context, username, password string) {
	pu, ok := a.store.(PasswordUpdater)
	enc, canEncode := a.verifier.(credential.Encoder)
	if !ok || !canEncode {
		debug.Log("auth", "credential record should be re-encoded", "username", username)
		return
	}
	record, err := enc.Encode(password)
	if err == nil {
		err = pu.UpdatePassword(ctx, username, record)
	}
	if err != nil {
		slog.Warn("credential upgrade failed", "username", username, "error", err)
		return
	}
	debug.Log("auth", "credential record re-encoded", "username", username)
}

// Challenge implements auth.Challenger.
func (a *Authenticator) Challenge() string {
	return "Basic realm=" + strconv.Quote(a.realm) + `, charset="UTF-8"`
}

// dummyRecord lazily encodes a throwaway record with the verifier's default
// scheme, so it costs the same to check as a real one.
func (a *Authenticator) dummyRecord() string {
	a.dummyOnce.Do(func() {
		enc, ok := a.verifier.(credential.Encoder)
		if !ok {
			return
		}
		if rec, err := enc.Encode("basic-timing-placeholder"); err == nil {
			a.dummy = rec
		}
	})
	return a.dummy
}
