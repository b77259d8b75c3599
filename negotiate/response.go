// SPDX-License-Identifier: Apache-2.0

package negotiate

// Status is the outcome of a negotiation operation.
type Status int

const (
	StatusComplete Status = iota // the operation, or the whole handshake, has finished
	StatusContinue               // the peer must reply with another token
	StatusError                  // the operation failed; see Response.Err
)

func (s Status) String() string {
	switch s {
	case StatusComplete:
		return "complete"
	case StatusContinue:
		return "continue"
	case StatusError:
		return "error"
	}
	return "unknown"
}

// Response is returned by every Client and Server operation.
type Response struct {
	Status Status

	// Token is the base64 encoded token for the peer, if one was produced.  For
	// Unwrap it is the base64 encoded plaintext.
	Token string

	// Message is the diagnostic for StatusError.
	Message string

	// Err is the *Error for StatusError.
	Err error
}

// MsgNoChallenge is the diagnostic returned by Server.Step when the client sent no token.
const MsgNoChallenge = "No challenge parameter in request from client"
