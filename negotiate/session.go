// SPDX-License-Identifier: Apache-2.0

package negotiate

import (
	"encoding/base64"
	"log/slog"
	"time"

	gssapi "github.com/golang-auth/go-gssnegotiate"
)

const (
	roleClient = "client"
	roleServer = "server"
)

type phase int

const (
	phaseNew phase = iota
	phaseContinue
	phaseComplete
	phaseError
	phaseCleaned
)

// session is the state common to both roles
type session struct {
	role    string
	p       gssapi.Provider
	tr      *Translator
	logger  *slog.Logger
	metrics *Metrics

	secCtx       gssapi.SecContext
	phase        phase
	username     string
	lastResponse string
}

func newSession(role string, p gssapi.Provider, o options) session {
	return session{
		role:    role,
		p:       p,
		tr:      NewTranslator(p, WithSegmentLimit(o.segmentLimit)),
		logger:  o.logger.With("role", role),
		metrics: o.metrics,
	}
}

// Username returns the display name of the initiator once the handshake is complete.
func (s *session) Username() string {
	return s.username
}

// LastResponse returns the token produced by the most recent operation, or "" if it
// produced none.
func (s *session) LastResponse() string {
	return s.lastResponse
}

// Established reports whether the handshake has completed.
func (s *session) Established() bool {
	return s.phase == phaseComplete
}

func decodeToken(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(s)
}

// checkStep rejects a Step on a state whose negotiation has finished
func (s *session) checkStep(op string) *Error {
	switch s.phase {
	case phaseComplete:
		return protocolError(op, "context already established", nil)
	case phaseError:
		return protocolError(op, "negotiation failed, clean and restart", nil)
	case phaseCleaned:
		return protocolError(op, "state has been cleaned", nil)
	}
	return nil
}

func (s *session) stepFailed(e *Error, start time.Time) Response {
	s.phase = phaseError
	s.lastResponse = ""
	s.metrics.RecordStep(s.role, StatusError, time.Since(start))

	major, minor := gssapi.StatusCodes(e.Err)
	s.logger.Debug("negotiation step failed",
		"op", e.Op,
		"kind", e.Kind.Error(),
		"major", uint32(major),
		"minor", minor,
		"message", e.Message)

	return e.Response()
}

// stepDone records the provider's output token and the new phase
func (s *session) stepDone(out []byte, status Status, start time.Time) Response {
	if len(out) > 0 {
		s.lastResponse = base64.StdEncoding.EncodeToString(out)
	}
	if status == StatusComplete {
		s.phase = phaseComplete
	} else {
		s.phase = phaseContinue
	}

	s.metrics.RecordStep(s.role, status, time.Since(start))
	s.logger.Debug("negotiation step", "status", status.String(), "token_len", len(out))

	return Response{Status: status, Token: s.lastResponse}
}

// displayName returns the display form of a name taken from the context.
func (s *session) displayName(op string, n gssapi.GssName) (string, *Error) {
	if n == nil {
		return "", &Error{Kind: ErrResolution, Op: op, Message: "the context has no name for the peer"}
	}

	disp, _, err := n.Display()
	if err != nil {
		return "", providerError(s.tr, op, ErrResolution, err)
	}
	return disp, nil
}

func (s *session) releaseInfo(info *gssapi.SecContextInfo) {
	for _, n := range []gssapi.GssName{info.InitiatorName, info.AcceptorName} {
		if n == nil {
			continue
		}
		if err := n.Release(); err != nil {
			s.logger.Warn("releasing name", "error", err)
		}
	}
}

func (s *session) messageFailed(opName string, e *Error) Response {
	s.metrics.RecordMessageOp(opName, false)
	s.logger.Debug("message protection failed", "op", e.Op, "message", e.Message)
	return e.Response()
}

// wrap protects payload with the established context, without confidentiality.
func (s *session) wrap(op string, payload []byte) Response {
	out, _, err := s.secCtx.Wrap(payload, false, 0)
	if err != nil {
		return s.messageFailed("wrap", providerError(s.tr, op, ErrProvider, err))
	}

	s.lastResponse = base64.StdEncoding.EncodeToString(out)
	s.metrics.RecordMessageOp("wrap", true)

	return Response{Status: StatusComplete, Token: s.lastResponse}
}

// unwrap verifies a message token and returns the plaintext as the response token.
func (s *session) unwrap(op string, challenge string) Response {
	s.lastResponse = ""

	if !s.Established() {
		return s.messageFailed("unwrap", protocolError(op, "no established context", nil))
	}

	in, err := decodeToken(challenge)
	if err != nil {
		return s.messageFailed("unwrap", protocolError(op, "invalid message encoding", err))
	}
	if len(in) == 0 {
		return s.messageFailed("unwrap", protocolError(op, "empty message token", nil))
	}

	out, _, _, err := s.secCtx.Unwrap(in)
	if err != nil {
		return s.messageFailed("unwrap", providerError(s.tr, op, ErrProvider, err))
	}

	s.lastResponse = base64.StdEncoding.EncodeToString(out)
	s.metrics.RecordMessageOp("unwrap", true)

	return Response{Status: StatusComplete, Token: s.lastResponse}
}

// clean releases the context and resets the common state.  It may be called more than
// once.
func (s *session) clean() {
	if s.secCtx != nil {
		if _, err := s.secCtx.Delete(); err != nil {
			s.logger.Warn("deleting security context", "error", err)
		}
		s.secCtx = nil
	}

	if s.phase != phaseCleaned {
		s.metrics.stateClosed(s.role)
		s.logger.Debug("negotiation state cleaned")
	}

	s.username = ""
	s.lastResponse = ""
	s.phase = phaseCleaned
}

func releaseCredential(logger *slog.Logger, c gssapi.Credential) {
	if c == nil {
		return
	}
	if err := c.Release(); err != nil {
		logger.Warn("releasing credential", "error", err)
	}
}
