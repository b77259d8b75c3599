// SPDX-License-Identifier: Apache-2.0

package negotiate

import (
	"log/slog"
	"time"

	gssapi "github.com/golang-auth/go-gssnegotiate"
)

type options struct {
	logger       *slog.Logger
	metrics      *Metrics
	segmentLimit int
	credential   gssapi.Credential
	lifetime     time.Duration
}

// Option configures a Client or Server.
type Option func(o *options)

// WithLogger sets the logger.  Steps are logged at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics records the negotiation in m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithStatusSegmentLimit sets the cap applied to each message of a translated status, see
// WithSegmentLimit.
func WithStatusSegmentLimit(n int) Option {
	return func(o *options) {
		o.segmentLimit = n
	}
}

// WithCredential uses cred instead of the provider's default credential.  The caller
// keeps ownership of cred; Clean does not release it.
func WithCredential(cred gssapi.Credential) Option {
	return func(o *options) {
		o.credential = cred
	}
}

// WithLifetime requests a context lifetime from the provider.  Only used by a Client.
func WithLifetime(d time.Duration) Option {
	return func(o *options) {
		o.lifetime = d
	}
}

func newOptions(opts []Option) options {
	o := options{segmentLimit: DefaultSegmentLimit}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	return o
}

type wrapOptions struct {
	user    string
	hasUser bool
}

// WrapOption configures Client.Wrap.
type WrapOption func(o *wrapOptions)

// WithUser answers a security layer offer from the server: the challenge is parsed as the
// offer and the reply selects no protection, echoes the offered buffer size and carries
// user as the authorization identity.
func WithUser(user string) WrapOption {
	return func(o *wrapOptions) {
		o.user = user
		o.hasUser = true
	}
}
