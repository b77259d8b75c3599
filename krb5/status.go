// SPDX-License-Identifier: Apache-2.0

package krb5

import (
	"errors"
	"fmt"

	"github.com/jcmturner/gokrb5/v8/iana/errorcode"

	gssapi "github.com/golang-auth/go-gssnegotiate"
)

// MinorCode is a Kerberos mechanism (minor) status code.
type MinorCode uint32

const (
	MinorSuccess            MinorCode = iota // Success
	MinorConfigLoad                          // Cannot load the Kerberos configuration
	MinorKeytabLoad                          // Cannot load the keytab
	MinorCCacheLoad                          // Cannot load the credentials cache
	MinorLogin                               // Cannot obtain initial credentials
	MinorServiceTicket                       // Cannot obtain a service ticket
	MinorBadName                             // Malformed principal name
	MinorUnsupportedNameType                 // Unsupported name type
	MinorWrongCredUsage                      // The credential cannot be used for this operation
	MinorTokenEncoding                       // Cannot encode a context token
	MinorTokenDecoding                       // Malformed context token
	MinorUnexpectedToken                     // Unexpected context token type
	MinorAPReqVerify                         // AP-REQ verification failed
	MinorMutualFailed                        // Mutual authentication failed
	MinorContextEstablished                  // The context is already established
	MinorContextNotReady                     // The context is not established
	MinorWrapToken                           // Malformed wrap token
	MinorIntegrity                           // Message integrity check failed
	MinorSequence                            // Message out of sequence
	MinorCrypto                              // Cryptographic operation failed
)

// MinorKRBErrorBase is added to the error code of a KRB-ERROR received from a peer.
const MinorKRBErrorBase MinorCode = 0x96c73a00

var minorStrings = [...]string{
	"Success",
	"Cannot load the Kerberos configuration",
	"Cannot load the keytab",
	"Cannot load the credentials cache",
	"Cannot obtain initial credentials",
	"Cannot obtain a service ticket",
	"Malformed principal name",
	"Unsupported name type",
	"The credential cannot be used for this operation",
	"Cannot encode a context token",
	"Malformed context token",
	"Unexpected context token type",
	"AP-REQ verification failed",
	"Mutual authentication failed",
	"The context is already established",
	"The context is not established",
	"Malformed wrap token",
	"Message integrity check failed",
	"Message out of sequence",
	"Cryptographic operation failed",
}

func (m MinorCode) String() string {
	if int(m) < len(minorStrings) {
		return minorStrings[m]
	}
	if m >= MinorKRBErrorBase && m < MinorKRBErrorBase+256 {
		return "KRB-ERROR " + errorcode.Lookup(int32(m-MinorKRBErrorBase))
	}
	return fmt.Sprintf("Unknown krb5 minor status %d", uint32(m))
}

// fatal returns a FatalStatus carrying the minor code, with err as the mechanism error.
func fatal(r gssapi.RoutineError, m MinorCode, err error) error {
	mechErr := errors.New(m.String())
	if err != nil {
		mechErr = fmt.Errorf("%s: %w", m, err)
	}

	return gssapi.NewFatalStatus(r, uint32(m), mechErr)
}

// DisplayStatus implements gssapi.StatusDisplayer.  Major codes use the standard GSSAPI
// messages; minor codes are single-message Kerberos codes.
func (p *Provider) DisplayStatus(code uint32, typ gssapi.StatusType, msgCtx uint32) (string, uint32, error) {
	switch typ {
	case gssapi.StatusTypeGSS:
		return gssapi.DisplayMajorStatus(gssapi.MajorStatus(code), msgCtx)
	case gssapi.StatusTypeMech:
		if msgCtx != 0 {
			return "", 0, gssapi.NewFatalStatus(gssapi.StatusBadStatus, 0)
		}
		return MinorCode(code).String(), 0, nil
	}

	return "", 0, gssapi.NewFatalStatus(gssapi.StatusBadStatus, 0)
}
