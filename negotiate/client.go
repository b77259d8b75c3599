// SPDX-License-Identifier: Apache-2.0

package negotiate

import (
	"strings"
	"time"

	gssapi "github.com/golang-auth/go-gssnegotiate"
)

// Client is the initiator side of a negotiation.
type Client struct {
	session

	peerName gssapi.GssName
	flags    gssapi.ContextFlag
	cred     gssapi.Credential
	lifetime time.Duration
}

// NewClient prepares a negotiation with service, either a host-based service name
// ("HTTP@www.example.com") or a Kerberos principal ("HTTP/www.example.com@EXAMPLE.COM").
// The flags are requested from the provider when the context is created.
//
// A failure to resolve the name is returned as an *Error of kind ErrResolution.
func NewClient(p gssapi.Provider, service string, flags gssapi.ContextFlag, opts ...Option) (*Client, error) {
	const op = "client.init"
	o := newOptions(opts)

	c := &Client{
		session:  newSession(roleClient, p, o),
		flags:    flags,
		cred:     o.credential,
		lifetime: o.lifetime,
	}

	nameType := gssapi.GSS_NT_HOSTBASED_SERVICE
	if strings.Contains(service, "/") {
		nameType = gssapi.GSS_KRB5_NT_PRINCIPAL_NAME
	}

	name, err := p.ImportName(service, nameType)
	if err != nil {
		return nil, providerError(c.tr, op, ErrResolution, err)
	}
	c.peerName = name

	c.metrics.stateOpened(roleClient)
	c.logger.Debug("negotiation client initialized", "service", service, "flags", flags.String())

	return c, nil
}

// Step processes the server's challenge and returns the next token for the server.  The
// first call passes an empty challenge.
//
// On StatusComplete the context is established and Username returns the local principal.
func (c *Client) Step(challenge string) Response {
	const op = "client.step"
	start := time.Now()

	c.lastResponse = ""
	if e := c.checkStep(op); e != nil {
		return e.Response()
	}

	in, err := decodeToken(challenge)
	if err != nil {
		return c.stepFailed(protocolError(op, "invalid challenge encoding", err), start)
	}

	if c.secCtx == nil {
		ctx, err := c.p.InitSecContext(c.peerName, c.initOptions()...)
		if err != nil {
			return c.stepFailed(providerError(c.tr, op, ErrProvider, err), start)
		}
		c.secCtx = ctx
	}

	out, err := c.secCtx.Continue(in)
	if err != nil {
		return c.stepFailed(providerError(c.tr, op, ErrProvider, err), start)
	}

	if c.secCtx.ContinueNeeded() {
		return c.stepDone(out, StatusContinue, start)
	}

	if e := c.resolveUsername(op); e != nil {
		return c.stepFailed(e, start)
	}

	return c.stepDone(out, StatusComplete, start)
}

func (c *Client) initOptions() []gssapi.InitSecContextOption {
	opts := []gssapi.InitSecContextOption{gssapi.WithInitiatorFlags(c.flags)}
	if c.cred != nil {
		opts = append(opts, gssapi.WithInitiatorCredential(c.cred))
	}
	if c.lifetime > 0 {
		opts = append(opts, gssapi.WithInitiatorLifetime(c.lifetime))
	}
	return opts
}

// resolveUsername stores the display form of the context's initiator name
func (c *Client) resolveUsername(op string) *Error {
	info, err := c.secCtx.Inquire()
	if err != nil {
		return providerError(c.tr, op, ErrProvider, err)
	}
	defer c.releaseInfo(info)

	name, e := c.displayName(op, info.InitiatorName)
	if e != nil {
		return e
	}
	c.username = name

	return nil
}

// Wrap protects a message for the server, without confidentiality.
//
// With WithUser the challenge must be the server's security layer offer.  The wrapped
// message is then the reply that selects no protection for the authorization identity.
// Otherwise the decoded challenge itself is wrapped.
func (c *Client) Wrap(challenge string, opts ...WrapOption) Response {
	const op = "client.wrap"

	wo := wrapOptions{}
	for _, opt := range opts {
		opt(&wo)
	}

	c.lastResponse = ""
	if !c.Established() {
		return c.messageFailed("wrap", protocolError(op, "no established context", nil))
	}

	payload, err := decodeToken(challenge)
	if err != nil {
		return c.messageFailed("wrap", protocolError(op, "invalid challenge encoding", err))
	}

	if wo.hasUser {
		offer, err := ParseSecurityLayer(payload)
		if err != nil {
			return c.messageFailed("wrap", protocolError(op, "invalid security layer offer", err))
		}
		c.logger.Debug("security layer offer", "layers", offer.Layers.String(), "max_buf_size", offer.MaxBufSize)

		reply := SecurityLayer{Layers: LayerNone, MaxBufSize: offer.MaxBufSize, AuthzID: wo.user}
		if payload, err = reply.Marshal(); err != nil {
			return c.messageFailed("wrap", protocolError(op, "invalid security layer reply", err))
		}
	}
	if payload == nil {
		payload = []byte{}
	}

	return c.wrap(op, payload)
}

// Unwrap verifies a message from the server.  The response token is the base64 encoded
// plaintext.
func (c *Client) Unwrap(challenge string) Response {
	return c.unwrap("client.unwrap", challenge)
}

// Clean releases the context and the target name.  It always returns StatusComplete and
// may be called more than once; the Client must not be used afterwards.
func (c *Client) Clean() Response {
	c.clean()

	if c.peerName != nil {
		if err := c.peerName.Release(); err != nil {
			c.logger.Warn("releasing target name", "error", err)
		}
		c.peerName = nil
	}

	return Response{Status: StatusComplete}
}
