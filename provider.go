// SPDX-License-Identifier: Apache-2.0

package gssapi

import (
	"errors"
	"sync"
	"time"
)

var ErrProviderNotFound = errors.New("provider not found")

var registry struct {
	sync.Mutex
	libs map[string]ProviderConstructor
}

func init() {
	registry.libs = make(map[string]ProviderConstructor)
}

// ProviderConstructor defines the function signature passed to RegisterProvider, used
// by the registration interface to create new instances of a provider.
type ProviderConstructor func() (Provider, error)

// RegisterProvider associates the supplied provider factory with the unique
// name for the provider. If a provider with name is already registered, the new
// factory function will replace the existing registration.
//
// Providers register themselves by calling RegisterProvider in their init() function
// and document the unique name used.
func RegisterProvider(name string, f ProviderConstructor) {
	registry.Lock()
	defer registry.Unlock()

	registry.libs[name] = f
}

// NewProvider instantiates a provider given its unique name by calling the provider factory
// function registered against the name.  ErrProviderNotFound is returned if name is not
// registered.
func NewProvider(name string) (p Provider, err error) {
	registry.Lock()
	f, ok := registry.libs[name]
	registry.Unlock()

	if !ok {
		return nil, ErrProviderNotFound
	}

	return f()
}

// MustNewProvider wraps NewProvider in a panic.
//
// Panics if the provider name is not registered or its constructor returns an error.
func MustNewProvider(name string) Provider {
	p, err := NewProvider(name)
	if err != nil {
		panic("GSSAPI provider " + name + ": " + err.Error())
	}

	return p
}

// RegisteredProviders returns the names of all registered providers
func RegisteredProviders() []string {
	registry.Lock()
	defer registry.Unlock()

	names := make([]string, 0, len(registry.libs))
	for name := range registry.libs {
		names = append(names, name)
	}
	return names
}

// InitSecContextOptions stores the options for InitSecContext.
type InitSecContextOptions struct {
	Credential Credential
	Flags      ContextFlag
	Lifetime   time.Duration
}

// InitSecContextOption is a function type for configuring InitSecContext options.
type InitSecContextOption func(o *InitSecContextOptions)

// WithInitiatorCredential sets the credential used by the initiator.  The default
// credential is used when none is supplied.
func WithInitiatorCredential(cred Credential) InitSecContextOption {
	return func(o *InitSecContextOptions) {
		o.Credential = cred
	}
}

// WithInitiatorFlags requests the supplied context flags.
func WithInitiatorFlags(flags ContextFlag) InitSecContextOption {
	return func(o *InitSecContextOptions) {
		o.Flags = flags
	}
}

// WithInitiatorLifetime requests a context lifetime.  Zero requests the default.
func WithInitiatorLifetime(life time.Duration) InitSecContextOption {
	return func(o *InitSecContextOptions) {
		o.Lifetime = life
	}
}

// AcceptSecContextOptions stores the options for AcceptSecContext.
type AcceptSecContextOptions struct {
	Credential Credential
}

// AcceptSecContextOption is a function type for configuring AcceptSecContext options.
type AcceptSecContextOption func(o *AcceptSecContextOptions)

// WithAcceptorCredential sets the credential used by the acceptor.  A nil credential
// accepts any identity the provider holds keys for.
func WithAcceptorCredential(cred Credential) AcceptSecContextOption {
	return func(o *AcceptSecContextOptions) {
		o.Credential = cred
	}
}

// Provider is the interface that defines the top level GSSAPI functions that
// create name, credential and security contexts
type Provider interface {
	StatusDisplayer

	// Name returns the unique name of the provider.
	Name() string

	// ImportName corresponds to the GSS_Import_name function from RFC 2743 § 2.4.5.
	// The returned name should be freed using GssName.Release().
	ImportName(name string, nameType GssNameType) (GssName, error) // RFC 2743 § 2.4.5

	// AcquireCredential corresponds to the GSS_Acquire_cred function from RFC 2743 § 2.1.1.
	// A nil name selects the default identity.
	AcquireCredential(name GssName, usage CredUsage) (Credential, error) // RFC 2743 § 2.1.1

	// InitSecContext corresponds to the GSS_Init_sec_context function from RFC 2743 § 2.2.1.
	// It returns an uninitialized context; the first token is produced by calling
	// SecContext.Continue with an empty input token.
	InitSecContext(name GssName, opts ...InitSecContextOption) (SecContext, error) // RFC 2743 § 2.2.1

	// AcceptSecContext corresponds to the GSS_Accept_sec_context function from RFC 2743 § 2.2.2.
	// Tokens from the initiator are fed to SecContext.Continue.
	AcceptSecContext(opts ...AcceptSecContextOption) (SecContext, error) // RFC 2743 § 2.2.2
}
