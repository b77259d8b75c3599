// SPDX-License-Identifier: Apache-2.0

package http

import (
	"context"
	"net/http"

	gssapi "github.com/golang-auth/go-gssnegotiate"
)

type contextKey struct {
	name string
}

func (k *contextKey) String() string { return "gssnegotiate/http context value " + k.name }

var (
	identityContextKey      = &contextKey{"identity"}
	delegatedCredContextKey = &contextKey{"delegated-cred"}
	requestIDContextKey     = &contextKey{"request-id"}
)

// Identity describes the authenticated client of a request.
type Identity struct {
	// Principal is the display name of the initiator, eg. "alice@EXAMPLE.COM"
	Principal string

	// Target is the service principal the client authenticated to
	Target string
}

func stashIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

func stashDelegatedCredential(ctx context.Context, cred gssapi.Credential) context.Context {
	return context.WithValue(ctx, delegatedCredContextKey, cred)
}

func stashRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}

// GetIdentity returns the identity stored by [Handler] in the request context.
func GetIdentity(r *http.Request) (*Identity, bool) {
	id, ok := r.Context().Value(identityContextKey).(*Identity)
	return id, ok
}

// GetDelegatedCredential returns the credential the client delegated, or nil.  It is
// released when the next handler returns.
func GetDelegatedCredential(r *http.Request) gssapi.Credential {
	cred, _ := r.Context().Value(delegatedCredContextKey).(gssapi.Credential)
	return cred
}

// GetRequestID returns the id [Handler] logged the request with.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}
