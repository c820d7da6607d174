// Package auth provides the pluggable authentication checks used by the
// admission filter.
//
// Authentication uses a chain-of-responsibility pattern with three-outcome
// voting: each authenticator returns Yes (identity found), No (credentials
// invalid), or Abstain (can't handle). A configurable default voter decides
// when all authenticators abstain.
//
// Password and API key checks never compare secrets themselves; they hand
// the presented value and the stored record to a credential.Verifier.
package auth
