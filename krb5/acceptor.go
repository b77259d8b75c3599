// SPDX-License-Identifier: Apache-2.0

package krb5

import (
	"errors"
	"log/slog"

	ianaflags "github.com/jcmturner/gokrb5/v8/iana/flags"
	"github.com/jcmturner/gokrb5/v8/messages"
	"github.com/jcmturner/gokrb5/v8/service"
	"github.com/jcmturner/gokrb5/v8/types"

	gssapi "github.com/golang-auth/go-gssnegotiate"
)

type acceptor struct {
	p      *Provider
	logger *slog.Logger

	cred    *credential
	ownCred bool

	started     bool
	established bool
	deleted     bool

	initiatorName *krb5Name
	acceptorName  *krb5Name

	protection
}

func (p *Provider) AcceptSecContext(opts ...gssapi.AcceptSecContextOption) (gssapi.SecContext, error) {
	o := gssapi.AcceptSecContextOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	ctx := &acceptor{
		p:      p,
		logger: p.logger.With("role", "acceptor"),
	}

	if o.Credential != nil {
		c, ok := o.Credential.(*credential)
		if !ok || !c.canAccept() {
			return nil, fatal(gssapi.StatusNoCred, MinorWrongCredUsage, nil)
		}
		ctx.cred = c
	}

	return ctx, nil
}

func (ctx *acceptor) ContinueNeeded() bool {
	return !ctx.established && !ctx.deleted
}

func (ctx *acceptor) Continue(tokIn []byte) ([]byte, error) {
	switch {
	case ctx.deleted:
		return nil, fatal(gssapi.StatusNoContext, MinorContextNotReady, nil)
	case ctx.established || ctx.started:
		return nil, fatal(gssapi.StatusFailure, MinorContextEstablished, nil)
	}
	ctx.started = true

	if ctx.cred == nil {
		cred, err := ctx.p.AcquireCredential(nil, gssapi.CredUsageAcceptOnly)
		if err != nil {
			return nil, err
		}
		ctx.cred = cred.(*credential)
		ctx.ownCred = true
	}

	var tok contextToken
	if err := tok.unmarshal(tokIn); err != nil {
		return nil, fatal(gssapi.StatusDefectiveToken, MinorTokenDecoding, err)
	}
	if tok.id != tokIDAPReq {
		return nil, fatal(gssapi.StatusDefectiveToken, MinorUnexpectedToken, errors.New(tok.id.String()))
	}

	return ctx.accept(tok.apReq)
}

func (ctx *acceptor) settings() *service.Settings {
	opts := []func(*service.Settings){
		service.MaxClockSkew(ctx.p.maxSkew),
		service.DecodePAC(false),
	}

	// without a principal any service key in the keytab may decrypt the ticket
	if ctx.cred.principal != nil {
		opts = append(opts, service.KeytabPrincipal(ctx.cred.principal.spn()))
	}

	return service.NewSettings(ctx.cred.kt, opts...)
}

func (ctx *acceptor) accept(apReq *messages.APReq) ([]byte, error) {
	ok, _, err := service.VerifyAPREQ(apReq, ctx.settings())
	if err != nil {
		return nil, fatal(gssapi.StatusFailure, MinorAPReqVerify, err)
	}
	if !ok {
		return nil, fatal(gssapi.StatusFailure, MinorAPReqVerify, nil)
	}

	sessionKey := apReq.Ticket.DecryptedEncPart.Key
	if err := apReq.DecryptAuthenticator(sessionKey); err != nil {
		return nil, fatal(gssapi.StatusDefectiveToken, MinorAPReqVerify, err)
	}
	auth := apReq.Authenticator

	flags, err := chksumFlags(auth.Cksum)
	if err != nil {
		return nil, fatal(gssapi.StatusDefectiveToken, MinorAPReqVerify, err)
	}
	mutual := types.IsFlagSet(&apReq.APOptions, ianaflags.APOptionMutualRequired)
	if mutual {
		flags |= gssapi.ContextFlagMutual
	}

	// the client principal is taken from the ticket, not the authenticator
	ctx.initiatorName = newName(apReq.Ticket.DecryptedEncPart.CName, apReq.Ticket.DecryptedEncPart.CRealm)
	ctx.acceptorName = newName(apReq.Ticket.SName, apReq.Ticket.Realm)

	ctx.isInitiator = false
	ctx.flags = flags & initiatorFlags
	ctx.key = sessionKey
	if auth.SubKey.KeyType != 0 {
		ctx.key = auth.SubKey
	}
	ctx.theirSeq = uint64(auth.SeqNumber)

	var out []byte
	if mutual {
		ctx.ourSeq, err = initialSeq()
		if err != nil {
			return nil, fatal(gssapi.StatusFailure, MinorTokenEncoding, err)
		}
		out, err = ctx.apRepToken(apReq.Ticket, sessionKey, auth)
		if err != nil {
			return nil, err
		}
	} else {
		// without an AP-REP the initiator expects our sequence to start at theirs
		ctx.ourSeq = ctx.theirSeq
	}

	ctx.established = true
	ctx.logger.Debug("accepted AP-REQ",
		"initiator", ctx.initiatorName.String(),
		"acceptor", ctx.acceptorName.String(),
		"mutual", mutual,
		"flags", ctx.flags.String())

	return out, nil
}

// apRepToken builds the mutual authentication reply, echoing the authenticator's time.
func (ctx *acceptor) apRepToken(tkt messages.Ticket, sessionKey types.EncryptionKey, auth types.Authenticator) ([]byte, error) {
	rep, err := newAPRep(tkt.EncPart.KVNO, sessionKey, encAPRepPart{
		CTime:          auth.CTime,
		Cusec:          auth.Cusec,
		SequenceNumber: int64(ctx.ourSeq),
	})
	if err != nil {
		return nil, fatal(gssapi.StatusFailure, MinorTokenEncoding, err)
	}

	tok := contextToken{id: tokIDAPRep, apRep: &rep}
	out, err := tok.marshal()
	if err != nil {
		return nil, fatal(gssapi.StatusFailure, MinorTokenEncoding, err)
	}

	return out, nil
}

func (ctx *acceptor) Inquire() (*gssapi.SecContextInfo, error) {
	if ctx.deleted {
		return nil, fatal(gssapi.StatusNoContext, MinorContextNotReady, nil)
	}

	info := &gssapi.SecContextInfo{
		Flags:            ctx.flags,
		FullyEstablished: ctx.established,
		ProtectionReady:  ctx.established,
	}
	if ctx.initiatorName != nil {
		info.InitiatorName = newName(ctx.initiatorName.pn, ctx.initiatorName.realm)
	}
	if ctx.acceptorName != nil {
		info.AcceptorName = newName(ctx.acceptorName.pn, ctx.acceptorName.realm)
	}

	return info, nil
}

// DelegatedCredential implements gssapi.SecContextExtDelegation.  Credential forwarding
// is not supported, so there is never a delegated credential.
func (ctx *acceptor) DelegatedCredential() (gssapi.Credential, error) {
	if !ctx.established {
		return nil, fatal(gssapi.StatusNoContext, MinorContextNotReady, nil)
	}
	return nil, nil
}

func (ctx *acceptor) Wrap(msgIn []byte, confReq bool, _ gssapi.QoP) ([]byte, bool, error) {
	if !ctx.established || ctx.deleted {
		return nil, false, fatal(gssapi.StatusNoContext, MinorContextNotReady, nil)
	}
	return ctx.wrap(msgIn, confReq)
}

func (ctx *acceptor) Unwrap(msgIn []byte) ([]byte, bool, gssapi.QoP, error) {
	if !ctx.established || ctx.deleted {
		return nil, false, 0, fatal(gssapi.StatusNoContext, MinorContextNotReady, nil)
	}
	out, conf, err := ctx.unwrap(msgIn)
	return out, conf, 0, err
}

func (ctx *acceptor) Delete() ([]byte, error) {
	if ctx.deleted {
		return nil, nil
	}

	var err error
	if ctx.ownCred && ctx.cred != nil {
		err = ctx.cred.Release()
	}

	ctx.cred = nil
	ctx.protection = protection{}
	ctx.deleted = true

	return nil, err
}
