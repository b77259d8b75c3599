// SPDX-License-Identifier: Apache-2.0

package krb5

/*
 * Derived from github.com/jcmturner/gokrb5/gssapi/wrapToken.go
 *
 * The modified version adds sealing, and undoes the right rotation applied by
 * Windows peers.
 */

import (
	"bytes"
	"crypto/hmac"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/jcmturner/gokrb5/v8/crypto"
	"github.com/jcmturner/gokrb5/v8/iana/keyusage"
	"github.com/jcmturner/gokrb5/v8/types"
)

// RFC 4121 § 4.2.6
const (
	wrapTokenHdrLen      = 16
	wrapTokenFiller byte = 0xFF
)

var wrapTokenID = [2]byte{0x05, 0x04}

// WrapTokenFlag is the flags octet of a wrap token, RFC 4121 § 4.2.2.
type WrapTokenFlag uint8

const (
	WrapFlagSentByAcceptor WrapTokenFlag = 1 << iota
	WrapFlagSealed
	WrapFlagAcceptorSubkey
)

// WrapToken is an RFC 4121 § 4.2.6.2 wrap token.
type WrapToken struct {
	Flags          WrapTokenFlag
	EC             uint16 // "Extra count": the checksum or filler length
	RRC            uint16 // right rotation count
	SequenceNumber uint64
	Payload        []byte // plaintext before Sign or Seal, protected data after
	protected      bool
}

func (wt *WrapToken) usage() uint32 {
	if wt.Flags&WrapFlagSentByAcceptor != 0 {
		return uint32(keyusage.GSSAPI_ACCEPTOR_SEAL)
	}
	return uint32(keyusage.GSSAPI_INITIATOR_SEAL)
}

// header returns the token header with EC and RRC zeroed, as covered by the checksum
// and the encrypted copy of the header.
func (wt *WrapToken) header() []byte {
	hdr := make([]byte, wrapTokenHdrLen)
	copy(hdr, wrapTokenID[:])
	hdr[2] = byte(wt.Flags)
	hdr[3] = wrapTokenFiller
	binary.BigEndian.PutUint64(hdr[8:], wt.SequenceNumber)

	return hdr
}

// Sign appends a checksum over the payload and header, RFC 4121 § 4.2.4.
func (wt *WrapToken) Sign(key types.EncryptionKey) error {
	if wt.Payload == nil {
		return errors.New("attempt to sign a wrap token with no payload")
	}
	if wt.protected {
		return errors.New("attempt to sign a protected wrap token")
	}

	encType, err := crypto.GetEtype(key.KeyType)
	if err != nil {
		return err
	}

	sig, err := wt.checksum(key)
	if err != nil {
		return err
	}

	wt.Payload = append(wt.Payload, sig...)
	wt.EC = uint16(encType.GetHMACBitLength() / 8)
	wt.RRC = 0
	wt.protected = true

	return nil
}

// Seal encrypts the payload followed by a copy of the header, RFC 4121 § 4.2.4.
func (wt *WrapToken) Seal(key types.EncryptionKey) error {
	if wt.Payload == nil {
		return errors.New("attempt to seal a wrap token with no payload")
	}
	if wt.protected {
		return errors.New("attempt to seal a protected wrap token")
	}

	wt.Flags |= WrapFlagSealed
	wt.EC = 0

	plain := make([]byte, 0, len(wt.Payload)+wrapTokenHdrLen)
	plain = append(plain, wt.Payload...)
	plain = append(plain, wt.header()...)

	encType, err := crypto.GetEtype(key.KeyType)
	if err != nil {
		return err
	}

	_, encData, err := encType.EncryptMessage(key.KeyValue, plain, wt.usage())
	if err != nil {
		return err
	}

	wt.Payload = encData
	wt.RRC = 0
	wt.protected = true

	return nil
}

func (wt *WrapToken) checksum(key types.EncryptionKey) ([]byte, error) {
	data := make([]byte, 0, len(wt.Payload)+wrapTokenHdrLen)
	data = append(data, wt.Payload...)
	data = append(data, wt.header()...)

	encType, err := crypto.GetEtype(key.KeyType)
	if err != nil {
		return nil, err
	}

	return encType.GetChecksumHash(key.KeyValue, data, wt.usage())
}

// Marshal returns the wire form of a signed or sealed token.
func (wt *WrapToken) Marshal() ([]byte, error) {
	if !wt.protected {
		return nil, errors.New("wrap token is not signed or sealed")
	}

	token := make([]byte, wrapTokenHdrLen+len(wt.Payload))
	copy(token, wrapTokenID[:])
	token[2] = byte(wt.Flags)
	token[3] = wrapTokenFiller
	binary.BigEndian.PutUint16(token[4:6], wt.EC)
	binary.BigEndian.PutUint16(token[6:8], wt.RRC)
	binary.BigEndian.PutUint64(token[8:16], wt.SequenceNumber)
	copy(token[16:], wt.Payload)

	return token, nil
}

// Unmarshal parses a signed or sealed token.  The payload is not verified.
func (wt *WrapToken) Unmarshal(token []byte) error {
	*wt = WrapToken{}

	if len(token) < wrapTokenHdrLen {
		return errors.New("wrap token is too short")
	}

	// RFC 4121 § 4.4: 0x60 starts the generic framing of GSSAPI v1 per-message tokens
	if token[0] == 0x60 {
		return errors.New("GSS-API v1 message tokens are not supported")
	}

	if !bytes.Equal(wrapTokenID[:], token[0:2]) {
		return errors.New("bad wrap token ID")
	}
	if token[3] != wrapTokenFiller {
		return errors.New("invalid wrap token (bad filler)")
	}

	wt.Flags = WrapTokenFlag(token[2])
	wt.EC = binary.BigEndian.Uint16(token[4:6])
	wt.RRC = binary.BigEndian.Uint16(token[6:8])
	wt.SequenceNumber = binary.BigEndian.Uint64(token[8:16])

	if len(token) > wrapTokenHdrLen {
		wt.Payload = make([]byte, len(token)-wrapTokenHdrLen)
		copy(wt.Payload, token[16:])
	}

	wt.protected = true
	return nil
}

// VerifyAndDecode checks the token and replaces the payload with the plaintext.  It
// reports whether the token was sealed.
func (wt *WrapToken) VerifyAndDecode(key types.EncryptionKey, expectFromAcceptor bool) (bool, error) {
	if !wt.protected {
		return false, errors.New("wrap token is not signed or sealed")
	}
	if len(wt.Payload) == 0 {
		return false, errors.New("cannot verify an empty wrap token payload")
	}

	isFromAcceptor := wt.Flags&WrapFlagSentByAcceptor != 0
	if isFromAcceptor != expectFromAcceptor {
		return false, fmt.Errorf("wrap token from acceptor: %t, expect from acceptor: %t", isFromAcceptor, expectFromAcceptor)
	}

	if wt.RRC != 0 {
		wt.Payload = rotateLeft(wt.Payload, uint(wt.RRC))
		wt.RRC = 0
	}

	if wt.Flags&WrapFlagSealed != 0 {
		return true, wt.decrypt(key)
	}
	return false, wt.checkSig(key)
}

func (wt *WrapToken) decrypt(key types.EncryptionKey) error {
	encType, err := crypto.GetEtype(key.KeyType)
	if err != nil {
		return err
	}

	decrypted, err := encType.DecryptMessage(key.KeyValue, wt.Payload, wt.usage())
	if err != nil {
		return err
	}

	if len(decrypted) < int(wt.EC)+wrapTokenHdrLen {
		return errors.New("decrypted wrap token payload is too short")
	}

	// the encrypted copy of the header must match the clear one
	var inner WrapToken
	if err := inner.Unmarshal(decrypted[len(decrypted)-wrapTokenHdrLen:]); err != nil {
		return err
	}
	if inner.Flags != wt.Flags || inner.EC != wt.EC || inner.SequenceNumber != wt.SequenceNumber {
		return errors.New("wrap token header was modified")
	}

	wt.Payload = decrypted[:len(decrypted)-wrapTokenHdrLen-int(wt.EC)]
	wt.protected = false

	return nil
}

func (wt *WrapToken) checkSig(key types.EncryptionKey) error {
	encType, err := crypto.GetEtype(key.KeyType)
	if err != nil {
		return err
	}

	if wt.EC != uint16(encType.GetHMACBitLength()/8) {
		return errors.New("bad wrap token checksum length")
	}
	if len(wt.Payload) < int(wt.EC) {
		return errors.New("signed wrap token payload is too short")
	}

	split := len(wt.Payload) - int(wt.EC)
	tokCksum := wt.Payload[split:]

	plain := *wt
	plain.Payload = wt.Payload[:split]
	computed, err := plain.checksum(key)
	if err != nil {
		return err
	}

	if !hmac.Equal(tokCksum, computed) {
		return errors.New("invalid wrap token checksum")
	}

	wt.Payload = wt.Payload[:split]
	wt.protected = false

	return nil
}

// Ported from MIT source code (gss_krb5int_rotate_left)
func rotateLeft(buf []byte, rc uint) []byte {
	if len(buf) == 0 || rc == 0 {
		return buf
	}

	rc = rc % uint(len(buf))
	if rc == 0 {
		return buf
	}

	tmp := make([]byte, rc)
	copy(tmp, buf[0:rc])
	copy(buf, buf[rc:])
	copy(buf[uint(len(buf))-rc:], tmp)

	return buf
}
