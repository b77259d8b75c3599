// SPDX-License-Identifier: Apache-2.0

package krb5

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/jcmturner/gokrb5/v8/types"

	gssapi "github.com/golang-auth/go-gssnegotiate"
)

var errAcceptorSubkey = errors.New("acceptor subkey not negotiated during token unwrap")

func errSequence(got, want uint64) error {
	return fmt.Errorf("bad sequence number from peer, got %d, wanted %d", got, want)
}

// maxInitialSeq keeps initial sequence numbers below 2^30.  Older MIT releases treat
// sequence numbers as signed and reject initial values from 2^31.
const maxInitialSeq = 1 << 30

// initialSeq draws the first sequence number an acceptor sends in its AP-REP.
func initialSeq() (uint64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(maxInitialSeq))
	if err != nil {
		return 0, err
	}
	return n.Uint64(), nil
}

// protection holds the per-message state of an established context.
type protection struct {
	isInitiator    bool
	key            types.EncryptionKey  // initiator subkey or ticket session key
	acceptorSubkey *types.EncryptionKey // set if the acceptor asserted a subkey in the AP-REP
	flags          gssapi.ContextFlag
	ourSeq         uint64
	theirSeq       uint64
}

func (m *protection) wrap(msg []byte, conf bool) ([]byte, bool, error) {
	var flags WrapTokenFlag
	if !m.isInitiator {
		flags |= WrapFlagSentByAcceptor
	}

	key := m.key
	if m.acceptorSubkey != nil {
		key = *m.acceptorSubkey
		flags |= WrapFlagAcceptorSubkey
	}

	// Sign and Seal modify the payload in place
	payload := make([]byte, len(msg))
	copy(payload, msg)

	wt := WrapToken{
		Flags:          flags,
		SequenceNumber: m.ourSeq,
		Payload:        payload,
	}

	var err error
	if conf {
		err = wt.Seal(key)
	} else {
		err = wt.Sign(key)
	}
	if err != nil {
		return nil, false, fatal(gssapi.StatusFailure, MinorCrypto, err)
	}

	out, err := wt.Marshal()
	if err != nil {
		return nil, false, fatal(gssapi.StatusFailure, MinorWrapToken, err)
	}

	// only bump the sequence number if everything is good
	m.ourSeq++

	return out, conf, nil
}

func (m *protection) unwrap(tok []byte) ([]byte, bool, error) {
	var wt WrapToken
	if err := wt.Unmarshal(tok); err != nil {
		return nil, false, fatal(gssapi.StatusDefectiveToken, MinorWrapToken, err)
	}

	key := m.key
	if wt.Flags&WrapFlagAcceptorSubkey != 0 {
		if m.acceptorSubkey == nil {
			return nil, false, fatal(gssapi.StatusDefectiveToken, MinorWrapToken, errAcceptorSubkey)
		}
		key = *m.acceptorSubkey
	}

	sealed, err := wt.VerifyAndDecode(key, m.isInitiator)
	if err != nil {
		return nil, false, fatal(gssapi.StatusBadMIC, MinorIntegrity, err)
	}

	if err := m.checkSequence(wt.SequenceNumber); err != nil {
		return nil, false, err
	}

	if wt.Payload == nil {
		wt.Payload = []byte{}
	}
	return wt.Payload, sealed, nil
}

// checkSequence enforces in-order delivery when replay or sequence detection was
// negotiated.  Otherwise it only tracks the peer's sequence number.
func (m *protection) checkSequence(seq uint64) error {
	expected := m.theirSeq
	if seq >= expected {
		m.theirSeq = seq + 1
	}

	if m.flags&(gssapi.ContextFlagReplay|gssapi.ContextFlagSequence) == 0 || seq == expected {
		return nil
	}

	s := gssapi.NewFatalStatus(gssapi.StatusFailure, uint32(MinorSequence),
		errSequence(seq, expected))
	switch {
	case seq > expected:
		s.Supplementary = gssapi.StatusGapToken
	case seq+1 == expected:
		s.Supplementary = gssapi.StatusDuplicateToken
	default:
		s.Supplementary = gssapi.StatusUnseqToken
	}
	return s
}
