// SPDX-License-Identifier: Apache-2.0

package krb5

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/jcmturner/gofork/encoding/asn1"
	"github.com/jcmturner/gokrb5/v8/asn1tools"
	"github.com/jcmturner/gokrb5/v8/iana/chksumtype"
	"github.com/jcmturner/gokrb5/v8/messages"
	"github.com/jcmturner/gokrb5/v8/types"

	gssapi "github.com/golang-auth/go-gssnegotiate"
)

// Kerberos context token IDs, RFC 4121 § 4.1
type tokenID uint16

const (
	tokIDAPReq    tokenID = 0x0100
	tokIDAPRep    tokenID = 0x0200
	tokIDKRBError tokenID = 0x0300
)

func (t tokenID) String() string {
	switch t {
	case tokIDAPReq:
		return "AP-REQ"
	case tokIDAPRep:
		return "AP-REP"
	case tokIDKRBError:
		return "KRB-ERROR"
	}
	return fmt.Sprintf("token ID 0x%04x", uint16(t))
}

// contextToken is a Kerberos context establishment token wrapped in the generic GSSAPI
// framing: [APPLICATION 0] { mech OID, token ID, inner Kerberos message }.
//
// Exactly one of the message fields is set, matching id.
type contextToken struct {
	id       tokenID
	apReq    *messages.APReq
	apRep    *apRep
	krbError *messages.KRBError
}

func (t *contextToken) marshal() ([]byte, error) {
	b, err := asn1.Marshal(OID())
	if err != nil {
		return nil, err
	}
	b = binary.BigEndian.AppendUint16(b, uint16(t.id))

	var inner []byte
	switch t.id {
	case tokIDAPReq:
		if t.apReq == nil {
			return nil, errors.New("missing AP-REQ")
		}
		inner, err = t.apReq.Marshal()
	case tokIDAPRep:
		if t.apRep == nil {
			return nil, errors.New("missing AP-REP")
		}
		inner, err = t.apRep.marshal()
	case tokIDKRBError:
		if t.krbError == nil {
			return nil, errors.New("missing KRB-ERROR")
		}
		inner, err = t.krbError.Marshal()
	default:
		return nil, fmt.Errorf("cannot marshal %s", t.id)
	}
	if err != nil {
		return nil, fmt.Errorf("marshalling %s: %w", t.id, err)
	}

	return asn1tools.AddASNAppTag(append(b, inner...), 0), nil
}

func (t *contextToken) unmarshal(b []byte) error {
	*t = contextToken{}

	var oid asn1.ObjectIdentifier
	r, err := asn1.UnmarshalWithParams(b, &oid, "application,explicit,tag:0")
	if err != nil {
		return fmt.Errorf("unmarshalling mech OID: %w", err)
	}
	if !oid.Equal(OID()) {
		return fmt.Errorf("token mech is %s, not %s", oid.String(), OID().String())
	}
	if len(r) < 2 {
		return errors.New("token too short")
	}

	t.id = tokenID(binary.BigEndian.Uint16(r[0:2]))
	inner := r[2:]

	switch t.id {
	case tokIDAPReq:
		var a messages.APReq
		if err := a.Unmarshal(inner); err != nil {
			return fmt.Errorf("unmarshalling AP-REQ: %w", err)
		}
		t.apReq = &a
	case tokIDAPRep:
		var a apRep
		if err := a.unmarshal(inner); err != nil {
			return fmt.Errorf("unmarshalling AP-REP: %w", err)
		}
		t.apRep = &a
	case tokIDKRBError:
		var a messages.KRBError
		if err := a.Unmarshal(inner); err != nil {
			return fmt.Errorf("unmarshalling KRB-ERROR: %w", err)
		}
		t.krbError = &a
	default:
		return fmt.Errorf("unsupported %s", t.id)
	}

	return nil
}

// krbErrorStatus converts a KRB-ERROR received from the peer to a FatalStatus.
func krbErrorStatus(e *messages.KRBError) error {
	return fatal(gssapi.StatusFailure, MinorKRBErrorBase+MinorCode(e.ErrorCode&0xff), e)
}

// RFC 4121 § 4.1.1: length of the channel binding hash carried in the checksum
const gssChksumBindLen = 16

// newAuthenticatorChksum creates the GSSAPI checksum for the authenticator.  This isn't
// really a checksum, it is a way to carry GSSAPI context flags in the AP-REQ.  Channel
// bindings are left zero.
func newAuthenticatorChksum(flags gssapi.ContextFlag) types.Checksum {
	a := make([]byte, 24)
	binary.LittleEndian.PutUint32(a[:4], gssChksumBindLen)
	binary.LittleEndian.PutUint32(a[20:24], uint32(flags))

	return types.Checksum{
		CksumType: chksumtype.GSSAPI,
		Checksum:  a,
	}
}

// chksumFlags extracts the context flags from an authenticator's GSSAPI checksum.
func chksumFlags(c types.Checksum) (gssapi.ContextFlag, error) {
	if c.CksumType != chksumtype.GSSAPI {
		return 0, fmt.Errorf("authenticator checksum type %d is not GSSAPI", c.CksumType)
	}
	if len(c.Checksum) < 24 {
		return 0, fmt.Errorf("GSSAPI checksum too short (%d bytes)", len(c.Checksum))
	}
	if binary.LittleEndian.Uint32(c.Checksum[:4]) != gssChksumBindLen {
		return 0, errors.New("bad GSSAPI checksum binding length")
	}

	return gssapi.ContextFlag(binary.LittleEndian.Uint32(c.Checksum[20:24])), nil
}
