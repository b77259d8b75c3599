// SPDX-License-Identifier: Apache-2.0

package gssapi

import "slices"

// Oid represents an Object Identifier as used throughout GSSAPI. Elements of the byte slice
// represent the DER encoding of the object identifier, excluding the ASN.1 header (two bytes:
// tag value 0x06 and length).
type Oid []byte

// GssNameType defines the name types in a mech-independent fashion,
// as described in RFC 2743 § 4
type GssNameType int

const (
	// Host-based name form (RFC 2743 § 4.1),      "service@host" or just "service"
	GSS_NT_HOSTBASED_SERVICE GssNameType = iota

	// User name form (RFC 2743 § 4.2),            "username" : named local user
	GSS_NT_USER_NAME

	// Anonymous name type (RFC 2743 § 4.5),        an anonymous principal
	GSS_C_NT_ANONYMOUS

	// Default name type (RFC 2743 § 4.6),          name based on mech-specific default syntax
	GSS_NO_OID

	// Kerberos principal name (RFC 1964 § 2.1.1),  "service/host@REALM" or "user@REALM"
	GSS_KRB5_NT_PRINCIPAL_NAME
)

// order here needs to match the consts above!
var nameTypes = []struct {
	name      string
	oidString string
	oid       Oid
	altOids   []Oid
}{
	{"GSS_NT_HOSTBASED_SERVICE",
		"1.2.840.113554.1.2.1.4",
		Oid{0x2a, 0x86, 0x48, 0x86, 0xf7, 0x12, 0x01, 0x02, 0x01, 0x04},
		[]Oid{{0x2B, 0x06, 0x01, 0x05, 0x06, 0x02}}}, // 1.3.6.1.5.6.2 alternate value from RFC 2078

	{"GSS_NT_USER_NAME",
		"1.2.840.113554.1.2.1.1",
		Oid{0x2a, 0x86, 0x48, 0x86, 0xf7, 0x12, 0x01, 0x02, 0x01, 0x01}, nil},

	{"GSS_C_NT_ANONYMOUS",
		"1.3.6.1.5.6.3",
		Oid{0x2b, 0x06, 0x01, 0x05, 0x06, 0x03}, nil},

	{"GSS_NO_OID", "", nil, nil},

	{"GSS_KRB5_NT_PRINCIPAL_NAME",
		"1.2.840.113554.1.2.2.1",
		Oid{0x2a, 0x86, 0x48, 0x86, 0xf7, 0x12, 0x01, 0x02, 0x02, 0x01}, nil},
}

func (nt GssNameType) valid() bool {
	return nt >= 0 && int(nt) < len(nameTypes)
}

func (nt GssNameType) Oid() Oid {
	if !nt.valid() {
		return nil
	}
	return nameTypes[nt].oid
}

func (nt GssNameType) OidString() string {
	if !nt.valid() {
		return ""
	}
	return nameTypes[nt].oidString
}

func (nt GssNameType) String() string {
	if !nt.valid() {
		return "GSS_UNKNOWN_NAME_TYPE"
	}
	return nameTypes[nt].name
}

// NameTypeFromOid returns the name type identified by oid
func NameTypeFromOid(oid Oid) (GssNameType, error) {
	for i, nt := range nameTypes {
		if nt.oid != nil && slices.Equal(nt.oid, oid) {
			return GssNameType(i), nil
		}

		for _, alt := range nt.altOids {
			if slices.Equal(alt, oid) {
				return GssNameType(i), nil
			}
		}
	}

	return 0, ErrBadNameType
}

// GssName represents GSSAPI names (types INTERNAL NAME and MN) as described in RFC 2743 § 4.
//
// Names are provider resources: every name returned by a Provider or by SecContext.Inquire
// must be released with Release when no longer needed.
type GssName interface {
	// Compare implements GSS_Compare_Name from RFC 2743 § 2.4.3.
	Compare(other GssName) (equal bool, err error) // RFC 2743 § 2.4.3

	// Display implements GSS_Display_Name from RFC 2743 § 2.4.4.
	// It returns a string representation of the name and its type.
	Display() (disp string, nt GssNameType, err error) // RFC 2743 § 2.4.4

	// Release implements GSS_Release_Name from RFC 2743 § 2.4.6.
	Release() error // RFC 2743 § 2.4.6
}
