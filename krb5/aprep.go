// SPDX-License-Identifier: Apache-2.0

package krb5

// AP-REP messages for the second leg of mutual authentication.  gokrb5 parses AP-REP
// but cannot build one, and the acceptor has to.  The field layout follows
// messages.APRep in gokrb5.

import (
	"errors"
	"fmt"
	"time"

	"github.com/jcmturner/gofork/encoding/asn1"
	"github.com/jcmturner/gokrb5/v8/asn1tools"
	"github.com/jcmturner/gokrb5/v8/crypto"
	"github.com/jcmturner/gokrb5/v8/iana"
	"github.com/jcmturner/gokrb5/v8/iana/asnAppTag"
	"github.com/jcmturner/gokrb5/v8/iana/keyusage"
	"github.com/jcmturner/gokrb5/v8/iana/msgtype"
	"github.com/jcmturner/gokrb5/v8/krberror"
	"github.com/jcmturner/gokrb5/v8/messages"
	"github.com/jcmturner/gokrb5/v8/types"
)

// apRep is KRB_AP_REP (RFC 4120 section 5.5.2).
type apRep struct {
	PVNO    int                 `asn1:"explicit,tag:0"`
	MsgType int                 `asn1:"explicit,tag:1"`
	EncPart types.EncryptedData `asn1:"explicit,tag:2"`
}

// encAPRepPart is the plaintext of apRep.EncPart.
type encAPRepPart struct {
	CTime          time.Time           `asn1:"generalized,explicit,tag:0"`
	Cusec          int                 `asn1:"explicit,tag:1"`
	Subkey         types.EncryptionKey `asn1:"optional,explicit,tag:2"`
	SequenceNumber int64               `asn1:"optional,explicit,tag:3"`
}

func appParams(tag int) string {
	return fmt.Sprintf("application,explicit,tag:%d", tag)
}

func marshalApp(v any, tag int) ([]byte, error) {
	b, err := asn1.Marshal(v)
	if err != nil {
		return nil, err
	}
	return asn1tools.AddASNAppTag(b, tag), nil
}

// newAPRep seals encPart under the ticket session key.  kvno is the key version of the
// service ticket being answered.
func newAPRep(kvno int, sessionKey types.EncryptionKey, encPart encAPRepPart) (apRep, error) {
	plain, err := encPart.marshal()
	if err != nil {
		return apRep{}, krberror.Errorf(err, krberror.EncodingError, "AP-REP enc-part")
	}

	ed, err := crypto.GetEncryptedData(plain, sessionKey, uint32(keyusage.AP_REP_ENCPART), kvno)
	if err != nil {
		return apRep{}, krberror.Errorf(err, krberror.EncryptingError, "AP-REP enc-part")
	}

	return apRep{PVNO: iana.PVNO, MsgType: msgtype.KRB_AP_REP, EncPart: ed}, nil
}

func (a *apRep) marshal() ([]byte, error) {
	return marshalApp(*a, asnAppTag.APREP)
}

// unmarshal parses an AP-REP.  A peer that failed sends a KRB-ERROR in its place, which
// is returned as the error.
func (a *apRep) unmarshal(b []byte) error {
	if _, err := asn1.UnmarshalWithParams(b, a, appParams(asnAppTag.APREP)); err != nil {
		var se asn1.StructuralError
		if errors.As(err, &se) {
			var ke messages.KRBError
			if ke.Unmarshal(b) == nil {
				return ke
			}
		}
		return krberror.Errorf(err, krberror.EncodingError, "AP-REP")
	}

	if a.MsgType != msgtype.KRB_AP_REP {
		return krberror.NewErrorf(krberror.KRBMsgError, "message type %d is not KRB_AP_REP", a.MsgType)
	}
	return nil
}

// decrypt opens the enc-part with the key the initiator used for its authenticator.
func (a *apRep) decrypt(sessionKey types.EncryptionKey) (encAPRepPart, error) {
	var part encAPRepPart

	plain, err := crypto.DecryptEncPart(a.EncPart, sessionKey, uint32(keyusage.AP_REP_ENCPART))
	if err != nil {
		return part, krberror.Errorf(err, krberror.DecryptingError, "AP-REP enc-part")
	}
	if err := part.unmarshal(plain); err != nil {
		return part, err
	}
	return part, nil
}

func (p *encAPRepPart) marshal() ([]byte, error) {
	return marshalApp(*p, asnAppTag.EncAPRepPart)
}

func (p *encAPRepPart) unmarshal(b []byte) error {
	if _, err := asn1.UnmarshalWithParams(b, p, appParams(asnAppTag.EncAPRepPart)); err != nil {
		return krberror.Errorf(err, krberror.EncodingError, "AP-REP enc-part")
	}
	return nil
}
