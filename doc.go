// SPDX-License-Identifier: Apache-2.0

/*
Package gssapi defines the security provider interface consumed by the negotiation
engine in package negotiate.

The interface is a Go rendering of the parts of the GSSAPI (RFC 2743) that a
token-exchanging authentication handshake needs: name import and display,
credential acquisition, context initiation and acceptance, context inquiry,
per-message wrap and unwrap, and status display.

Providers register themselves with RegisterProvider and are instantiated with
NewProvider:

	p, err := gssapi.NewProvider("krb5")

Errors returned by providers are FatalStatus values.  These implement the error
interface and also carry the numeric RFC 2744 major and minor status codes,
which can be recovered with StatusCodes and turned into text with a provider's
DisplayStatus method.
*/
package gssapi
