// SPDX-License-Identifier: Apache-2.0

package negotiate

import (
	"time"

	gssapi "github.com/golang-auth/go-gssnegotiate"
)

// Server is the acceptor side of a negotiation.
type Server struct {
	session

	serverName  gssapi.GssName
	serverCreds gssapi.Credential
	ownCreds    bool

	clientName  string
	clientCreds gssapi.Credential
	targetName  string
}

// NewServer prepares to accept a negotiation for service, a host-based service name
// ("HTTP@www.example.com").  Credentials for service are acquired from the provider
// unless WithCredential is given.
//
// With an empty service the server accepts a context for any service the provider has
// keys for, and TargetName reports the service the client chose.
func NewServer(p gssapi.Provider, service string, opts ...Option) (*Server, error) {
	const op = "server.init"
	o := newOptions(opts)

	s := &Server{
		session:     newSession(roleServer, p, o),
		serverCreds: o.credential,
	}

	if service != "" {
		name, err := p.ImportName(service, gssapi.GSS_NT_HOSTBASED_SERVICE)
		if err != nil {
			return nil, providerError(s.tr, op, ErrResolution, err)
		}
		s.serverName = name

		if s.serverCreds == nil {
			cred, err := p.AcquireCredential(name, gssapi.CredUsageAcceptOnly)
			if err != nil {
				e := providerError(s.tr, op, ErrProvider, err)
				_ = name.Release()
				return nil, e
			}
			s.serverCreds, s.ownCreds = cred, true
		}
	}

	s.metrics.stateOpened(roleServer)
	s.logger.Debug("negotiation server initialized", "service", service, "anonymous", s.serverCreds == nil)

	return s, nil
}

// Step processes a token from the client and returns the reply, if any.
//
// On StatusComplete Username returns the client principal.  In anonymous mode TargetName
// returns the service the client authenticated to.
func (s *Server) Step(challenge string) Response {
	const op = "server.step"
	start := time.Now()

	s.lastResponse = ""
	if challenge == "" {
		s.metrics.stepRejected(roleServer)
		return protocolError(op, MsgNoChallenge, nil).Response()
	}

	if e := s.checkStep(op); e != nil {
		return e.Response()
	}

	in, err := decodeToken(challenge)
	if err != nil {
		return s.stepFailed(protocolError(op, "invalid challenge encoding", err), start)
	}

	if s.secCtx == nil {
		ctx, err := s.p.AcceptSecContext(gssapi.WithAcceptorCredential(s.serverCreds))
		if err != nil {
			return s.stepFailed(providerError(s.tr, op, ErrProvider, err), start)
		}
		s.secCtx = ctx
	}

	out, err := s.secCtx.Continue(in)
	if err != nil {
		return s.stepFailed(providerError(s.tr, op, ErrProvider, err), start)
	}

	if s.secCtx.ContinueNeeded() {
		return s.stepDone(out, StatusContinue, start)
	}

	if e := s.resolveNames(op); e != nil {
		return s.stepFailed(e, start)
	}

	if e := s.captureDelegation(op); e != nil {
		return s.stepFailed(e, start)
	}

	s.logger.Debug("negotiation accepted", "client", s.clientName, "target", s.targetName)
	return s.stepDone(out, StatusComplete, start)
}

func (s *Server) resolveNames(op string) *Error {
	info, err := s.secCtx.Inquire()
	if err != nil {
		return providerError(s.tr, op, ErrProvider, err)
	}
	defer s.releaseInfo(info)

	name, e := s.displayName(op, info.InitiatorName)
	if e != nil {
		return e
	}
	s.clientName, s.username = name, name

	if s.serverCreds == nil {
		target, e := s.displayName(op, info.AcceptorName)
		if e != nil {
			return e
		}
		s.targetName = target
	}

	return nil
}

func (s *Server) captureDelegation(op string) *Error {
	d, ok := s.secCtx.(gssapi.SecContextExtDelegation)
	if !ok {
		return nil
	}

	cred, err := d.DelegatedCredential()
	if err != nil {
		return providerError(s.tr, op, ErrProvider, err)
	}
	s.clientCreds = cred

	return nil
}

// TargetName returns the service the client authenticated to.  It is only set for a
// server without credentials of its own.
func (s *Server) TargetName() string {
	return s.targetName
}

// DelegatedCredential returns the credential the client delegated, or nil.  The Server
// keeps ownership and releases it in Clean.
func (s *Server) DelegatedCredential() gssapi.Credential {
	return s.clientCreds
}

// Wrap protects a message for the client, without confidentiality.  The challenge is the
// base64 encoded message.
func (s *Server) Wrap(challenge string) Response {
	const op = "server.wrap"

	s.lastResponse = ""
	if !s.Established() {
		return s.messageFailed("wrap", protocolError(op, "no established context", nil))
	}

	payload, err := decodeToken(challenge)
	if err != nil {
		return s.messageFailed("wrap", protocolError(op, "invalid message encoding", err))
	}
	if payload == nil {
		payload = []byte{}
	}

	return s.wrap(op, payload)
}

// Unwrap verifies a message from the client.  The response token is the base64 encoded
// plaintext.
func (s *Server) Unwrap(challenge string) Response {
	return s.unwrap("server.unwrap", challenge)
}

// Clean releases the context, names and credentials held by the server.  It always
// returns StatusComplete and may be called more than once; the Server must not be used
// afterwards.
func (s *Server) Clean() Response {
	s.clean()

	if s.serverName != nil {
		if err := s.serverName.Release(); err != nil {
			s.logger.Warn("releasing service name", "error", err)
		}
		s.serverName = nil
	}

	if s.ownCreds {
		releaseCredential(s.logger, s.serverCreds)
	}
	s.serverCreds, s.ownCreds = nil, false

	releaseCredential(s.logger, s.clientCreds)
	s.clientCreds = nil

	s.clientName = ""
	s.targetName = ""

	return Response{Status: StatusComplete}
}
