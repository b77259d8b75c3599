// SPDX-License-Identifier: Apache-2.0

package gssapi

// GSSAPI Credential Management, RFC 2743 § 2.1

// CredUsage defines the intended usage for credentials as specified in RFC 2743 § 2.1.1.
type CredUsage int

// Credential usage values as defined in RFC 2743 § 2.1.1
const (
	// CredUsageInitiateAndAccept indicates the credential may be used for both initiating and accepting contexts
	CredUsageInitiateAndAccept CredUsage = iota
	// CredUsageInitiateOnly indicates the credential may only be used for initiating contexts
	CredUsageInitiateOnly
	// CredUsageAcceptOnly indicates the credential may only be used for accepting contexts
	CredUsageAcceptOnly
)

func (u CredUsage) String() string {
	switch u {
	case CredUsageInitiateAndAccept:
		return "initiate-and-accept"
	case CredUsageInitiateOnly:
		return "initiate"
	case CredUsageAcceptOnly:
		return "accept"
	}
	return "unknown"
}

// CredInfo contains information about a credential returned by Credential.Inquire.
type CredInfo struct {
	Name     string      // String representation of the credential name
	NameType GssNameType // Type of the credential name
	Usage    CredUsage   // Types of credentials held (accept, initiator, or both)
}

// Credential represents the CREDENTIAL HANDLE type from RFC 2743.
type Credential interface {
	// Release releases the credential when it is no longer required.
	// This method corresponds to GSS_Release_cred from RFC 2743 § 2.1.2.
	Release() error // RFC 2743 § 2.1.2

	// Inquire returns information about the credential, implementing the GSS_Inquire_cred call
	// from RFC 2743 § 2.1.3.
	Inquire() (info *CredInfo, err error) // RFC 2743 § 2.1.3
}
