// SPDX-License-Identifier: Apache-2.0

package gsstest

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	gssapi "github.com/golang-auth/go-gssnegotiate"
)

const (
	fieldSep     = "|"
	initPrefix   = "gsstest-init"
	acceptPrefix = "gsstest-accept"
	wrapPrefix   = "gsstest-wrap"

	// applied to the payload of confidential wrap tokens
	confMask = 0x5a
)

const supportedFlags = gssapi.ContextFlagDeleg | gssapi.ContextFlagMutual |
	gssapi.ContextFlagReplay | gssapi.ContextFlagSequence |
	gssapi.ContextFlagConf | gssapi.ContextFlagInteg

// InitToken returns the n'th token an initiator sends.
func InitToken(n int, flags gssapi.ContextFlag, initiator, target string) []byte {
	return []byte(strings.Join([]string{
		initPrefix, strconv.Itoa(n), strconv.FormatUint(uint64(flags), 16), initiator, target,
	}, fieldSep))
}

// AcceptToken returns the acceptor's reply to the n'th initiator token.
func AcceptToken(n int, target string) []byte {
	return []byte(strings.Join([]string{acceptPrefix, strconv.Itoa(n), target}, fieldSep))
}

type initToken struct {
	n         int
	flags     gssapi.ContextFlag
	initiator string
	target    string
}

func parseInitToken(b []byte) (t initToken, err error) {
	f := strings.Split(string(b), fieldSep)
	if len(f) != 5 || f[0] != initPrefix {
		return t, fmt.Errorf("not an init token: %q", b)
	}

	if t.n, err = strconv.Atoi(f[1]); err != nil {
		return t, err
	}
	flags, err := strconv.ParseUint(f[2], 16, 32)
	if err != nil {
		return t, err
	}
	t.flags = gssapi.ContextFlag(flags)
	t.initiator, t.target = f[3], f[4]

	return t, nil
}

func parseAcceptToken(b []byte) (int, error) {
	f := strings.Split(string(b), fieldSep)
	if len(f) != 3 || f[0] != acceptPrefix {
		return 0, fmt.Errorf("not an accept token: %q", b)
	}
	return strconv.Atoi(f[1])
}

// secContext is the state shared by both roles
type secContext struct {
	handle

	initiator string
	target    string
	flags     gssapi.ContextFlag

	established bool
	deleted     bool
}

func (c *secContext) stateError() error {
	if c.deleted {
		return Fatal(gssapi.StatusNoContext, MinorNotEstablished)
	}
	if c.established {
		return Fatal(gssapi.StatusFailure, MinorEstablished)
	}
	return nil
}

func (c *secContext) ContinueNeeded() bool {
	return !c.established && !c.deleted
}

func (c *secContext) inquire(locallyInitiated bool) (*gssapi.SecContextInfo, error) {
	if err := c.p.failure(OpInquire); err != nil {
		return nil, err
	}
	if c.deleted {
		return nil, Fatal(gssapi.StatusNoContext, MinorNotEstablished)
	}

	info := &gssapi.SecContextInfo{
		Flags:            c.flags,
		LocallyInitiated: locallyInitiated,
		FullyEstablished: c.established,
		ProtectionReady:  c.established,
	}
	if c.initiator != "" {
		info.InitiatorName = c.p.newName(c.initiator, gssapi.GSS_KRB5_NT_PRINCIPAL_NAME)
	}
	if c.target != "" {
		info.AcceptorName = c.p.newName(c.target, gssapi.GSS_KRB5_NT_PRINCIPAL_NAME)
	}

	return info, nil
}

// wrap tokens carry the sender's role so a peer can't be fed its own tokens
func (c *secContext) wrap(sender byte, msg []byte, conf bool) ([]byte, bool, error) {
	if err := c.p.failure(OpWrap); err != nil {
		return nil, false, err
	}
	if !c.established || c.deleted {
		return nil, false, Fatal(gssapi.StatusNoContext, MinorNotEstablished)
	}

	confByte := byte('0')
	if conf {
		confByte = '1'
	}

	out := make([]byte, 0, len(wrapPrefix)+4+len(msg))
	out = append(out, wrapPrefix...)
	out = append(out, '|', sender, confByte, '|')
	for _, b := range msg {
		if conf {
			b ^= confMask
		}
		out = append(out, b)
	}

	return out, conf, nil
}

func (c *secContext) unwrap(peer byte, tok []byte) ([]byte, bool, gssapi.QoP, error) {
	if err := c.p.failure(OpUnwrap); err != nil {
		return nil, false, 0, err
	}
	if !c.established || c.deleted {
		return nil, false, 0, Fatal(gssapi.StatusNoContext, MinorNotEstablished)
	}

	hdrLen := len(wrapPrefix) + 4
	if len(tok) < hdrLen || !bytes.HasPrefix(tok, []byte(wrapPrefix)) || tok[hdrLen-1] != '|' {
		return nil, false, 0, Fatal(gssapi.StatusDefectiveToken, MinorBadToken)
	}

	sender, confByte := tok[len(wrapPrefix)+1], tok[len(wrapPrefix)+2]
	if sender != peer {
		return nil, false, 0, Fatal(gssapi.StatusBadMIC, MinorBadToken)
	}

	conf := confByte == '1'
	out := make([]byte, len(tok)-hdrLen)
	for i, b := range tok[hdrLen:] {
		if conf {
			b ^= confMask
		}
		out[i] = b
	}

	return out, conf, 0, nil
}

func (c *secContext) delete() ([]byte, error) {
	if c.deleted {
		return nil, nil
	}
	c.deleted = true
	c.release()

	return nil, c.p.failure(OpDelete)
}

type initiatorContext struct {
	secContext
	sent int
}

func (p *Provider) InitSecContext(name gssapi.GssName, opts ...gssapi.InitSecContextOption) (gssapi.SecContext, error) {
	if err := p.failure(OpInitSecContext); err != nil {
		return nil, err
	}

	o := gssapi.InitSecContextOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	target, ok := name.(*Name)
	if !ok || target == nil {
		return nil, Fatal(gssapi.StatusBadName, MinorSuccess)
	}

	initiator := p.initiator
	if o.Credential != nil {
		c, ok := o.Credential.(*Credential)
		if !ok || !c.canInitiate() {
			return nil, Fatal(gssapi.StatusNoCred, MinorSuccess)
		}
		initiator = c.name
	}

	ctx := &initiatorContext{secContext: secContext{
		handle:    p.newHandle(),
		initiator: initiator,
		target:    target.name,
		flags:     o.Flags & supportedFlags,
	}}
	return ctx, nil
}

func (c *initiatorContext) Continue(tok []byte) ([]byte, error) {
	if err := c.p.failure(OpContinue); err != nil {
		return nil, err
	}
	if err := c.stateError(); err != nil {
		return nil, err
	}

	if c.sent == 0 {
		if len(tok) != 0 {
			return nil, Fatal(gssapi.StatusDefectiveToken, MinorBadToken)
		}
	} else {
		n, err := parseAcceptToken(tok)
		if err != nil || n != c.sent {
			return nil, Fatal(gssapi.StatusDefectiveToken, MinorBadToken)
		}
		if c.sent == c.p.rounds {
			c.established = true
			return nil, nil
		}
	}

	c.sent++
	out := InitToken(c.sent, c.flags, c.initiator, c.target)
	if c.sent == c.p.rounds && c.p.oneWay {
		c.established = true
	}

	return out, nil
}

func (c *initiatorContext) Inquire() (*gssapi.SecContextInfo, error) {
	return c.inquire(true)
}

func (c *initiatorContext) Wrap(msg []byte, conf bool, _ gssapi.QoP) ([]byte, bool, error) {
	return c.wrap('I', msg, conf)
}

func (c *initiatorContext) Unwrap(tok []byte) ([]byte, bool, gssapi.QoP, error) {
	return c.unwrap('A', tok)
}

func (c *initiatorContext) Delete() ([]byte, error) {
	return c.delete()
}

type acceptorContext struct {
	secContext
	cred     *Credential
	received int
}

func (p *Provider) AcceptSecContext(opts ...gssapi.AcceptSecContextOption) (gssapi.SecContext, error) {
	if err := p.failure(OpAcceptSecContext); err != nil {
		return nil, err
	}

	o := gssapi.AcceptSecContextOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	ctx := &acceptorContext{secContext: secContext{handle: p.newHandle()}}
	if o.Credential != nil {
		c, ok := o.Credential.(*Credential)
		if !ok || !c.canAccept() {
			ctx.release()
			return nil, Fatal(gssapi.StatusNoCred, MinorSuccess)
		}
		ctx.cred = c
	}

	return ctx, nil
}

func (c *acceptorContext) Continue(tok []byte) ([]byte, error) {
	if err := c.p.failure(OpContinue); err != nil {
		return nil, err
	}
	if err := c.stateError(); err != nil {
		return nil, err
	}

	t, err := parseInitToken(tok)
	if err != nil || t.n != c.received+1 {
		return nil, Fatal(gssapi.StatusDefectiveToken, MinorBadToken)
	}
	if c.cred != nil && c.cred.name != "" && c.cred.name != t.target {
		return nil, Fatal(gssapi.StatusFailure, MinorWrongTarget)
	}
	c.received = t.n

	if c.received < c.p.rounds {
		return AcceptToken(t.n, t.target), nil
	}

	c.initiator, c.target = t.initiator, t.target
	c.flags = t.flags & supportedFlags
	c.established = true

	if c.p.oneWay {
		return nil, nil
	}
	return AcceptToken(t.n, t.target), nil
}

func (c *acceptorContext) Inquire() (*gssapi.SecContextInfo, error) {
	return c.inquire(false)
}

// DelegatedCredential implements gssapi.SecContextExtDelegation.  A credential is
// returned when the initiator requested delegation.
func (c *acceptorContext) DelegatedCredential() (gssapi.Credential, error) {
	if err := c.p.failure(OpDelegatedCredential); err != nil {
		return nil, err
	}
	if !c.established || c.deleted {
		return nil, Fatal(gssapi.StatusNoContext, MinorNotEstablished)
	}
	if c.flags&gssapi.ContextFlagDeleg == 0 {
		return nil, nil
	}

	return c.p.newCredential(c.initiator, gssapi.CredUsageInitiateOnly), nil
}

func (c *acceptorContext) Wrap(msg []byte, conf bool, _ gssapi.QoP) ([]byte, bool, error) {
	return c.wrap('A', msg, conf)
}

func (c *acceptorContext) Unwrap(tok []byte) ([]byte, bool, gssapi.QoP, error) {
	return c.unwrap('I', tok)
}

func (c *acceptorContext) Delete() ([]byte, error) {
	c.cred = nil
	return c.delete()
}
