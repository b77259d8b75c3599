// SPDX-License-Identifier: Apache-2.0

package krb5

import (
	"errors"
	"log/slog"
	"time"

	ianaflags "github.com/jcmturner/gokrb5/v8/iana/flags"
	"github.com/jcmturner/gokrb5/v8/messages"
	"github.com/jcmturner/gokrb5/v8/types"

	gssapi "github.com/golang-auth/go-gssnegotiate"
)

// the subset of request flags the initiator supports
const initiatorFlags = gssapi.ContextFlagConf | gssapi.ContextFlagInteg |
	gssapi.ContextFlagMutual | gssapi.ContextFlagReplay | gssapi.ContextFlagSequence

type initiatorState int

const (
	initiatorNew initiatorState = iota
	initiatorWaitingForMutual
	initiatorEstablished
	initiatorDeleted
)

type initiator struct {
	p      *Provider
	logger *slog.Logger

	target  *krb5Name
	cred    *credential
	ownCred bool // cred was acquired by the context and is released with it

	state        initiatorState
	sessionFlags gssapi.ContextFlag
	ticket       messages.Ticket
	sessionKey   types.EncryptionKey
	clientCTime  time.Time
	clientCusec  int

	protection
}

func (p *Provider) InitSecContext(name gssapi.GssName, opts ...gssapi.InitSecContextOption) (gssapi.SecContext, error) {
	o := gssapi.InitSecContextOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	target, ok := name.(*krb5Name)
	if !ok || target == nil {
		return nil, fatal(gssapi.StatusBadName, MinorUnsupportedNameType, nil)
	}

	ctx := &initiator{
		p:            p,
		logger:       p.logger.With("role", "initiator", "target", target.String()),
		target:       target,
		sessionFlags: o.Flags & initiatorFlags,
	}

	if o.Credential != nil {
		c, ok := o.Credential.(*credential)
		if !ok || !c.canInitiate() {
			return nil, fatal(gssapi.StatusNoCred, MinorWrongCredUsage, nil)
		}
		ctx.cred = c
	}

	ctx.isInitiator = true
	ctx.flags = ctx.sessionFlags

	return ctx, nil
}

func (ctx *initiator) ContinueNeeded() bool {
	return ctx.state == initiatorNew || ctx.state == initiatorWaitingForMutual
}

func (ctx *initiator) Continue(tokIn []byte) ([]byte, error) {
	switch ctx.state {
	case initiatorNew:
		return ctx.start()
	case initiatorWaitingForMutual:
		return nil, ctx.verifyMutual(tokIn)
	case initiatorDeleted:
		return nil, fatal(gssapi.StatusNoContext, MinorContextNotReady, nil)
	}

	return nil, fatal(gssapi.StatusFailure, MinorContextEstablished, nil)
}

// start obtains a service ticket and returns the AP-REQ token.
func (ctx *initiator) start() ([]byte, error) {
	if ctx.cred == nil {
		cred, err := ctx.p.AcquireCredential(nil, gssapi.CredUsageInitiateOnly)
		if err != nil {
			return nil, err
		}
		ctx.cred = cred.(*credential)
		ctx.ownCred = true
	}

	cl := ctx.cred.cl
	tkt, key, err := cl.GetServiceTicket(ctx.target.spn())
	if err != nil {
		return nil, fatal(gssapi.StatusFailure, MinorServiceTicket, err)
	}
	ctx.ticket, ctx.sessionKey = tkt, key

	apreq, err := ctx.apReq()
	if err != nil {
		return nil, err
	}

	tok := contextToken{id: tokIDAPReq, apReq: &apreq}
	out, err := tok.marshal()
	if err != nil {
		return nil, fatal(gssapi.StatusFailure, MinorTokenEncoding, err)
	}

	ctx.key = ctx.sessionKey

	// another round is needed for mutual auth: we will receive an AP-REP from the acceptor
	if ctx.sessionFlags&gssapi.ContextFlagMutual != 0 {
		ctx.state = initiatorWaitingForMutual
	} else {
		// without an AP-REP the acceptor starts from our sequence number
		ctx.theirSeq = ctx.ourSeq
		ctx.state = initiatorEstablished
	}

	ctx.logger.Debug("sent AP-REQ", "flags", ctx.sessionFlags.String(), "len", len(out))
	return out, nil
}

// apReq creates a Kerberos AP-REQ message with the GSSAPI checksum
func (ctx *initiator) apReq() (messages.APReq, error) {
	creds := ctx.cred.cl.Credentials

	auth, err := types.NewAuthenticator(creds.Domain(), creds.CName())
	if err != nil {
		return messages.APReq{}, fatal(gssapi.StatusFailure, MinorTokenEncoding, err)
	}
	auth.Cksum = newAuthenticatorChksum(ctx.sessionFlags)

	apreq, err := messages.NewAPReq(ctx.ticket, ctx.sessionKey, auth)
	if err != nil {
		return messages.APReq{}, fatal(gssapi.StatusFailure, MinorTokenEncoding, err)
	}

	if ctx.sessionFlags&gssapi.ContextFlagMutual != 0 {
		types.SetFlag(&apreq.APOptions, ianaflags.APOptionMutualRequired)
	}

	// stash the sequence number for Wrap and the time values for mutual authentication
	ctx.ourSeq = uint64(auth.SeqNumber)
	ctx.clientCTime = auth.CTime
	ctx.clientCusec = auth.Cusec

	return apreq, nil
}

func (ctx *initiator) verifyMutual(tokIn []byte) error {
	var tok contextToken
	if err := tok.unmarshal(tokIn); err != nil {
		return fatal(gssapi.StatusDefectiveToken, MinorTokenDecoding, err)
	}

	switch tok.id {
	case tokIDKRBError:
		return krbErrorStatus(tok.krbError)
	case tokIDAPRep:
	default:
		return fatal(gssapi.StatusDefectiveToken, MinorUnexpectedToken, errors.New(tok.id.String()))
	}

	encPart, err := tok.apRep.decrypt(ctx.sessionKey)
	if err != nil {
		return fatal(gssapi.StatusDefectiveToken, MinorMutualFailed, err)
	}

	if err := ctx.completeMutual(encPart); err != nil {
		return err
	}

	ctx.logger.Debug("verified AP-REP", "acceptor_subkey", ctx.acceptorSubkey != nil)
	return nil
}

// completeMutual checks the AP-REP echoes the authenticator's time and stashes the
// acceptor's sequence number and subkey.
func (ctx *initiator) completeMutual(encPart encAPRepPart) error {
	// time.Equal can't be used as clientCTime carries a monotonic clock value
	if encPart.CTime.Unix() != ctx.clientCTime.Unix() || encPart.Cusec != ctx.clientCusec {
		return fatal(gssapi.StatusFailure, MinorMutualFailed, nil)
	}

	ctx.theirSeq = uint64(encPart.SequenceNumber)
	if encPart.Subkey.KeyType != 0 {
		subkey := encPart.Subkey
		ctx.acceptorSubkey = &subkey
	}

	ctx.state = initiatorEstablished
	return nil
}

func (ctx *initiator) Inquire() (*gssapi.SecContextInfo, error) {
	if ctx.state == initiatorDeleted {
		return nil, fatal(gssapi.StatusNoContext, MinorContextNotReady, nil)
	}

	info := &gssapi.SecContextInfo{
		AcceptorName:     newName(ctx.target.pn, ctx.target.realm),
		Flags:            ctx.sessionFlags,
		LocallyInitiated: true,
		FullyEstablished: ctx.state == initiatorEstablished,
		ProtectionReady:  ctx.state == initiatorEstablished,
	}
	if ctx.cred != nil && ctx.cred.cl != nil {
		creds := ctx.cred.cl.Credentials
		info.InitiatorName = newName(creds.CName(), creds.Domain())
	}

	return info, nil
}

func (ctx *initiator) Wrap(msgIn []byte, confReq bool, _ gssapi.QoP) ([]byte, bool, error) {
	if ctx.state != initiatorEstablished {
		return nil, false, fatal(gssapi.StatusNoContext, MinorContextNotReady, nil)
	}
	return ctx.wrap(msgIn, confReq)
}

func (ctx *initiator) Unwrap(msgIn []byte) ([]byte, bool, gssapi.QoP, error) {
	if ctx.state != initiatorEstablished {
		return nil, false, 0, fatal(gssapi.StatusNoContext, MinorContextNotReady, nil)
	}
	out, conf, err := ctx.unwrap(msgIn)
	return out, conf, 0, err
}

func (ctx *initiator) Delete() ([]byte, error) {
	if ctx.state == initiatorDeleted {
		return nil, nil
	}

	var err error
	if ctx.ownCred && ctx.cred != nil {
		err = ctx.cred.Release()
	}

	ctx.cred = nil
	ctx.sessionKey = types.EncryptionKey{}
	ctx.protection = protection{}
	ctx.state = initiatorDeleted

	return nil, err
}
