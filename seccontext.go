// SPDX-License-Identifier: Apache-2.0

package gssapi

// GSSAPI Security-Context Management, RFC 2743 § 2.2

// QoP represents quality of protection values used by Wrap and Unwrap.
// A zero value represents the default quality of protection.
type QoP uint

// SecContextInfo contains information about a security context returned by the Inquire method.
//
// InitiatorName and AcceptorName are names owned by the caller, who must release them.
type SecContextInfo struct {
	InitiatorName    GssName     // The initiator name (MN - mechanism name)
	AcceptorName     GssName     // The acceptor name (MN - mechanism name)
	Flags            ContextFlag // The protection flags available
	LocallyInitiated bool        // True if the caller initiated the security context
	FullyEstablished bool        // True once the context is fully established
	ProtectionReady  bool        // True when per-message methods can be used to protect messages
}

// SecContext represents a GSSAPI security context. A security context is created through the
// (possibly mutual) authentication of an initiator to an acceptor. Authentication is achieved
// by exchanging tokens between the parties until both agree that the process is complete.
type SecContext interface {
	// Delete clears context-specific information, implementing GSS_Delete_sec_context from
	// RFC 2743 § 2.2.3.  It should be called on any non-nil SecContext to release associated
	// resources.
	Delete() (token []byte, err error) // RFC 2743 § 2.2.3

	// Inquire returns information about the security context, implementing GSS_Inquire_context
	// from RFC 2743 § 2.2.6.
	Inquire() (info *SecContextInfo, err error) // RFC 2743 § 2.2.6

	// Wrap implements GSS_Wrap from RFC 2743 § 2.3.3.  The wrapped message will be encrypted
	// if confidentiality was requested and supported.
	//
	// Returns:
	//   - msgOut: Wrapped message
	//   - confState: Whether confidentiality was applied to msgOut
	//   - err: Error if one occurred, otherwise nil
	Wrap(msgIn []byte, confReq bool, qop QoP) (msgOut []byte, confState bool, err error) // RFC 2743 § 2.3.3

	// Unwrap implements GSS_Unwrap from RFC 2743 § 2.3.4.
	//
	// Returns:
	//   - msgOut: Unwrapped message
	//   - confState: Whether the wrapped message was confidential (encrypted)
	//   - qop: Quality of protection provided
	//   - err: Error if one occurred, otherwise nil
	Unwrap(msgIn []byte) (msgOut []byte, confState bool, qop QoP, err error) // RFC 2743 § 2.3.4

	// ContinueNeeded indicates whether more context-initialization tokens need to be exchanged
	// with the peer, equivalent to checking for GSS_S_CONTINUE_NEEDED.
	ContinueNeeded() bool

	// Continue is used by initiators and acceptors during the context-initialization loop
	// to process a token from the peer. It is equivalent to calling GSS_Init_sec_context or
	// GSS_Accept_sec_context.  Initiators pass an empty token on the first call.
	//
	// Returns:
	//   - tokOut: New token to send to the peer; zero length if no token should be sent
	//   - err: Error if one occurred, otherwise nil
	Continue(tokIn []byte) (tokOut []byte, err error)
}

// SecContextExtDelegation is implemented by acceptor contexts that can return
// credentials delegated by the initiator.
type SecContextExtDelegation interface {
	SecContext

	// DelegatedCredential returns the delegated credential, or nil if the initiator
	// did not delegate.  Ownership passes to the caller.
	DelegatedCredential() (Credential, error)
}
