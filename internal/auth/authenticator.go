package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hardyscc/storage-svc/internal/sigv4"
)

var (
	// ErrMissingAuthorization is returned when a request carries no
	// Authorization header at all.
	ErrMissingAuthorization = errors.New("missing authorization header")
	// ErrUnknownAccessKey is returned when the access key is not in the
	// store. Callers must not surface it verbatim; it is collapsed into
	// a signature mismatch at the API boundary so access keys cannot be
	// enumerated.
	ErrUnknownAccessKey = errors.New("unknown access key")
	// ErrSignatureMismatch is returned when the recomputed signature
	// does not match the one the client sent.
	ErrSignatureMismatch = errors.New("signature does not match")
)

// Authenticator verifies SigV4 (and legacy V2) request signatures
// against a credential store.
type Authenticator struct {
	Store *Store
	// ClockTolerance bounds the allowed skew between the request
	// timestamp and server time. Zero disables the check.
	ClockTolerance time.Duration
	// Now is overridable for tests; nil means time.Now.
	Now func() time.Time
}

// Result carries what the API layer needs after a successful
// authentication.
type Result struct {
	Principal Principal
	Auth      sigv4.Authorization
}

// Authenticate parses the Authorization header, resolves the access
// key and, for V4 requests, recomputes and compares the signature.
// Legacy V2 requests are accepted once the access key resolves and
// the timestamp window holds; their HMAC-SHA1 signature is not
// recomputed.
func (a *Authenticator) Authenticate(r *http.Request) (Result, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return Result{}, ErrMissingAuthorization
	}

	auth, err := sigv4.ParseAuthorizationHeader(header)
	if err != nil {
		return Result{}, err
	}

	secret, principal, ok := a.Store.Lookup(auth.Credential.AccessKey)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownAccessKey, auth.Credential.AccessKey)
	}

	if err := a.checkClock(r); err != nil {
		return Result{}, err
	}

	if auth.Version == sigv4.VersionV2Legacy {
		return Result{Principal: principal, Auth: auth}, nil
	}

	expected, err := sigv4.ComputeSignature(r, auth, secret)
	if err != nil {
		return Result{}, err
	}
	if !sigv4.SignaturesEqual(expected, auth.Signature) {
		return Result{}, ErrSignatureMismatch
	}

	return Result{Principal: principal, Auth: auth}, nil
}

// checkClock validates the request timestamp when one is present. A
// missing timestamp is not rejected here; V4 signature computation
// fails on it separately.
func (a *Authenticator) checkClock(r *http.Request) error {
	if a.ClockTolerance <= 0 {
		return nil
	}
	raw := sigv4.RequestTimestamp(r)
	if raw == "" {
		return nil
	}
	ts, err := sigv4.ParseTimestamp(raw)
	if err != nil {
		return err
	}
	now := time.Now()
	if a.Now != nil {
		now = a.Now()
	}
	return sigv4.ValidateClock(ts, now, a.ClockTolerance)
}
