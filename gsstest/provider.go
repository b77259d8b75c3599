// SPDX-License-Identifier: Apache-2.0

// Package gsstest provides an in-memory gssapi.Provider for testing code that drives
// security context negotiation.
//
// Tokens are deterministic text, so a test can assert on the exact bytes exchanged.
// Every name, credential and context handle handed out is counted until it is released,
// and any provider operation can be made to fail.
package gsstest

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	gssapi "github.com/golang-auth/go-gssnegotiate"
)

// ProviderName is the name the provider is registered under.
const ProviderName = "gsstest"

// DefaultInitiator is the principal that initiates contexts unless WithInitiator is used.
const DefaultInitiator = "alice"

func init() {
	gssapi.RegisterProvider(ProviderName, func() (gssapi.Provider, error) {
		return New(), nil
	})
}

// Op names a provider operation for failure injection.
type Op int

const (
	OpImportName Op = iota
	OpAcquireCredential
	OpInitSecContext
	OpAcceptSecContext
	OpContinue
	OpInquire
	OpDisplayName
	OpDelegatedCredential
	OpWrap
	OpUnwrap
	OpDelete
	OpDisplayStatus
)

var opNames = [...]string{
	"ImportName",
	"AcquireCredential",
	"InitSecContext",
	"AcceptSecContext",
	"Continue",
	"Inquire",
	"DisplayName",
	"DelegatedCredential",
	"Wrap",
	"Unwrap",
	"Delete",
	"DisplayStatus",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Provider is a fake GSSAPI mechanism.  The same Provider may be used for both the
// initiator and the acceptor side of a negotiation.
type Provider struct {
	mu sync.Mutex

	initiator string
	rounds    int
	oneWay    bool

	failures    map[Op]error
	minorMsgs   map[uint32][]string
	outstanding int
}

// Option configures a Provider created by New.
type Option func(p *Provider)

// WithInitiator sets the principal used by initiators that have no explicit credential.
func WithInitiator(name string) Option {
	return func(p *Provider) {
		p.initiator = name
	}
}

// WithRounds sets the number of initiator tokens needed before the acceptor is satisfied.
func WithRounds(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.rounds = n
		}
	}
}

// WithOneWay makes the acceptor complete without a final reply token, so the initiator
// is established as soon as it has sent its last token.
func WithOneWay() Option {
	return func(p *Provider) {
		p.oneWay = true
	}
}

// New returns a provider.  By default one initiator token is answered by one acceptor
// token.
func New(opts ...Option) *Provider {
	p := &Provider{
		initiator: DefaultInitiator,
		rounds:    1,
		failures:  make(map[Op]error),
		minorMsgs: map[uint32][]string{
			MinorSuccess:        {"Success"},
			MinorBadToken:       {"Malformed gsstest token"},
			MinorWrongTarget:    {"Token was not addressed to this acceptor"},
			MinorNotEstablished: {"The context is not established"},
			MinorEstablished:    {"The context is already established"},
		},
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// FailOn makes every subsequent call of op return err.  A nil err clears the failure.
func (p *Provider) FailOn(op Op, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err == nil {
		delete(p.failures, op)
		return
	}
	p.failures[op] = err
}

// SetMinorMessages sets the messages DisplayStatus returns for a minor code, one per
// message context.
func (p *Provider) SetMinorMessages(code uint32, msgs ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.minorMsgs[code] = msgs
}

// Outstanding returns the number of handles that have been created and not yet released.
func (p *Provider) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.outstanding
}

func (p *Provider) failure(op Op) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.failures[op]
}

func (p *Provider) track(delta int) {
	p.mu.Lock()
	p.outstanding += delta
	p.mu.Unlock()
}

func (p *Provider) Name() string {
	return ProviderName
}

// handle counts against the provider's outstanding total until released.
type handle struct {
	p        *Provider
	released bool
}

func (p *Provider) newHandle() handle {
	p.track(1)
	return handle{p: p}
}

func (h *handle) release() bool {
	if h.released {
		return false
	}
	h.released = true
	h.p.track(-1)
	return true
}

func (p *Provider) ImportName(name string, nameType gssapi.GssNameType) (gssapi.GssName, error) {
	if err := p.failure(OpImportName); err != nil {
		return nil, err
	}

	switch nameType {
	case gssapi.GSS_NT_HOSTBASED_SERVICE, gssapi.GSS_NT_USER_NAME,
		gssapi.GSS_KRB5_NT_PRINCIPAL_NAME, gssapi.GSS_NO_OID:
	case gssapi.GSS_C_NT_ANONYMOUS:
		name = AnonymousName
	default:
		return nil, Fatal(gssapi.StatusBadNameType, MinorSuccess)
	}

	if name == "" || strings.ContainsAny(name, fieldSep) {
		return nil, Fatal(gssapi.StatusBadName, MinorSuccess)
	}

	return p.newName(name, nameType), nil
}

func (p *Provider) AcquireCredential(name gssapi.GssName, usage gssapi.CredUsage) (gssapi.Credential, error) {
	if err := p.failure(OpAcquireCredential); err != nil {
		return nil, err
	}

	var display string
	if name != nil {
		n, ok := name.(*Name)
		if !ok {
			return nil, Fatal(gssapi.StatusBadNameType, MinorSuccess)
		}
		display = n.name
	} else if usage != gssapi.CredUsageAcceptOnly {
		display = p.initiator
	}

	return p.newCredential(display, usage), nil
}

// AnonymousName is the display form of an imported anonymous name.
const AnonymousName = "WELLKNOWN/ANONYMOUS@WELLKNOWN:ANONYMOUS"

// Name is a gssapi.GssName that displays as the string it was imported from.
type Name struct {
	handle
	name string
	nt   gssapi.GssNameType
}

func (p *Provider) newName(name string, nt gssapi.GssNameType) *Name {
	return &Name{handle: p.newHandle(), name: name, nt: nt}
}

func (n *Name) Compare(other gssapi.GssName) (bool, error) {
	o, ok := other.(*Name)
	if !ok || o == nil {
		return false, Fatal(gssapi.StatusBadNameType, MinorSuccess)
	}
	return n.name == o.name, nil
}

func (n *Name) Display() (string, gssapi.GssNameType, error) {
	if err := n.p.failure(OpDisplayName); err != nil {
		return "", 0, err
	}
	if n.released {
		return "", 0, Fatal(gssapi.StatusBadName, MinorSuccess)
	}
	return n.name, n.nt, nil
}

func (n *Name) Release() error {
	n.release()
	return nil
}

// Credential is a gssapi.Credential.  Acceptor credentials without a name accept
// contexts for any target.
type Credential struct {
	handle
	name  string
	usage gssapi.CredUsage
}

func (p *Provider) newCredential(name string, usage gssapi.CredUsage) *Credential {
	return &Credential{handle: p.newHandle(), name: name, usage: usage}
}

func (c *Credential) Release() error {
	c.release()
	return nil
}

func (c *Credential) Inquire() (*gssapi.CredInfo, error) {
	if c.released {
		return nil, Fatal(gssapi.StatusNoCred, MinorSuccess)
	}
	return &gssapi.CredInfo{
		Name:     c.name,
		NameType: gssapi.GSS_KRB5_NT_PRINCIPAL_NAME,
		Usage:    c.usage,
	}, nil
}

func (c *Credential) canInitiate() bool {
	return c.usage != gssapi.CredUsageAcceptOnly
}

func (c *Credential) canAccept() bool {
	return c.usage != gssapi.CredUsageInitiateOnly
}

// ErrInjected is a convenient error for FailOn.
var ErrInjected = errors.New("gsstest: injected failure")
