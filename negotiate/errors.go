// SPDX-License-Identifier: Apache-2.0

package negotiate

import (
	"errors"
	"fmt"

	gssapi "github.com/golang-auth/go-gssnegotiate"
)

// Error kinds.  Every *Error unwraps to exactly one of these.
var (
	ErrResolution = errors.New("name resolution failed")
	ErrProvider   = errors.New("security provider failure")
	ErrProtocol   = errors.New("protocol error")
	ErrAllocation = errors.New("resource allocation failed")
)

// Error describes a failed negotiation operation.
type Error struct {
	Kind    error  // one of ErrResolution, ErrProvider, ErrProtocol or ErrAllocation
	Op      string // the operation that failed, eg. "client.step"
	Message string // diagnostic text; the translated status for provider failures
	Err     error  // the underlying error, if any
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Message != "" {
		s += ": " + e.Message
	}
	return s
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Response returns the StatusError response describing e.
func (e *Error) Response() Response {
	return Response{Status: StatusError, Message: e.Message, Err: e}
}

func protocolError(op, msg string, err error) *Error {
	return &Error{Kind: ErrProtocol, Op: op, Message: msg, Err: err}
}

// providerError wraps an error returned by the provider, with the status codes it
// carries translated to a diagnostic.
func providerError(tr *Translator, op string, kind error, err error) *Error {
	if errors.Is(err, gssapi.ErrResourceExhausted) {
		kind = ErrAllocation
	}

	major, minor := gssapi.StatusCodes(err)
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: tr.Translate(uint32(major), minor),
		Err:     err,
	}
}
