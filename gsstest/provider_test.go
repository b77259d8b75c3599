// SPDX-License-Identifier: Apache-2.0

package gsstest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gssapi "github.com/golang-auth/go-gssnegotiate"
)

// handshake runs a negotiation to completion and returns both contexts.
func handshake(t *testing.T, p *Provider, flags gssapi.ContextFlag, cred gssapi.Credential) (gssapi.SecContext, gssapi.SecContext) {
	t.Helper()

	target, err := p.ImportName("host@example.com", gssapi.GSS_NT_HOSTBASED_SERVICE)
	require.NoError(t, err)
	defer target.Release() //nolint:errcheck

	ini, err := p.InitSecContext(target, gssapi.WithInitiatorFlags(flags))
	require.NoError(t, err)
	acc, err := p.AcceptSecContext(gssapi.WithAcceptorCredential(cred))
	require.NoError(t, err)

	var tok []byte
	for ini.ContinueNeeded() || acc.ContinueNeeded() {
		if ini.ContinueNeeded() {
			tok, err = ini.Continue(tok)
			require.NoError(t, err)
		}
		if acc.ContinueNeeded() {
			tok, err = acc.Continue(tok)
			require.NoError(t, err)
		}
	}

	return ini, acc
}

func TestRegistered(t *testing.T) {
	p, err := gssapi.NewProvider(ProviderName)
	require.NoError(t, err)
	assert.Equal(t, ProviderName, p.Name())
}

func TestTokens(t *testing.T) {
	assert := assert.New(t)
	p := New()

	target, err := p.ImportName("host@example.com", gssapi.GSS_NT_HOSTBASED_SERVICE)
	require.NoError(t, err)
	ini, err := p.InitSecContext(target, gssapi.WithInitiatorFlags(gssapi.ContextFlagMutual))
	require.NoError(t, err)
	acc, err := p.AcceptSecContext()
	require.NoError(t, err)

	t1, err := ini.Continue(nil)
	require.NoError(t, err)
	assert.Equal("gsstest-init|1|2|alice|host@example.com", string(t1))
	assert.True(ini.ContinueNeeded())

	t2, err := acc.Continue(t1)
	require.NoError(t, err)
	assert.Equal("gsstest-accept|1|host@example.com", string(t2))
	assert.False(acc.ContinueNeeded())

	t3, err := ini.Continue(t2)
	require.NoError(t, err)
	assert.Empty(t3)
	assert.False(ini.ContinueNeeded())

	_, err = ini.Continue(t2)
	assert.ErrorIs(err, gssapi.ErrFailure)
	_, err = acc.Continue(t1)
	assert.ErrorIs(err, gssapi.ErrFailure)
}

func TestRounds(t *testing.T) {
	var tests = []struct {
		name       string
		opts       []Option
		iniSteps   int
		accOutputs int
	}{
		{"default", nil, 2, 1},
		{"one way", []Option{WithOneWay()}, 1, 0},
		{"three rounds", []Option{WithRounds(3)}, 4, 3},
		{"three rounds one way", []Option{WithRounds(3), WithOneWay()}, 3, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.opts...)
			target, _ := p.ImportName("host@example.com", gssapi.GSS_NT_HOSTBASED_SERVICE)
			ini, _ := p.InitSecContext(target)
			acc, _ := p.AcceptSecContext()

			var tok []byte
			var err error
			iniSteps, accOutputs := 0, 0
			for ini.ContinueNeeded() {
				tok, err = ini.Continue(tok)
				require.NoError(t, err)
				iniSteps++

				if len(tok) > 0 {
					tok, err = acc.Continue(tok)
					require.NoError(t, err)
					if len(tok) > 0 {
						accOutputs++
					}
				}
			}

			assert.Equal(t, tt.iniSteps, iniSteps)
			assert.Equal(t, tt.accOutputs, accOutputs)
			assert.False(t, acc.ContinueNeeded())
		})
	}
}

func TestBadTokens(t *testing.T) {
	p := New()
	target, _ := p.ImportName("host@example.com", gssapi.GSS_NT_HOSTBASED_SERVICE)

	ini, _ := p.InitSecContext(target)
	_, err := ini.Continue([]byte("unexpected"))
	assert.ErrorIs(t, err, gssapi.ErrDefectiveToken)

	acc, _ := p.AcceptSecContext()
	_, err = acc.Continue([]byte("garbage"))
	assert.ErrorIs(t, err, gssapi.ErrDefectiveToken)
	_, minor := gssapi.StatusCodes(err)
	assert.Equal(t, MinorBadToken, minor)

	// out of order
	_, err = acc.Continue(InitToken(2, 0, "alice", "host@example.com"))
	assert.ErrorIs(t, err, gssapi.ErrDefectiveToken)
}

func TestAcceptorTarget(t *testing.T) {
	p := New()

	other, _ := p.ImportName("other@example.com", gssapi.GSS_NT_HOSTBASED_SERVICE)
	cred, err := p.AcquireCredential(other, gssapi.CredUsageAcceptOnly)
	require.NoError(t, err)

	acc, _ := p.AcceptSecContext(gssapi.WithAcceptorCredential(cred))
	_, err = acc.Continue(InitToken(1, 0, "alice", "host@example.com"))
	assert.ErrorIs(t, err, gssapi.ErrFailure)
	_, minor := gssapi.StatusCodes(err)
	assert.Equal(t, MinorWrongTarget, minor)

	initOnly, _ := p.AcquireCredential(nil, gssapi.CredUsageInitiateOnly)
	_, err = p.AcceptSecContext(gssapi.WithAcceptorCredential(initOnly))
	assert.ErrorIs(t, err, gssapi.ErrNoCred)
}

func TestInquire(t *testing.T) {
	assert := assert.New(t)
	p := New(WithInitiator("bob"))

	ini, acc := handshake(t, p, gssapi.ContextFlagMutual|gssapi.ContextFlagInteg, nil)

	for _, ctx := range []gssapi.SecContext{ini, acc} {
		info, err := ctx.Inquire()
		require.NoError(t, err)
		assert.True(info.FullyEstablished)
		assert.Equal(gssapi.ContextFlagMutual|gssapi.ContextFlagInteg, info.Flags)

		name, _, err := info.InitiatorName.Display()
		assert.NoError(err)
		assert.Equal("bob", name)
		name, _, err = info.AcceptorName.Display()
		assert.NoError(err)
		assert.Equal("host@example.com", name)

		assert.NoError(info.InitiatorName.Release())
		assert.NoError(info.AcceptorName.Release())
	}
}

func TestWrapUnwrap(t *testing.T) {
	assert := assert.New(t)
	p := New()
	ini, acc := handshake(t, p, 0, nil)

	for _, conf := range []bool{false, true} {
		tok, confState, err := ini.Wrap([]byte("hello"), conf, 0)
		require.NoError(t, err)
		assert.Equal(conf, confState)
		if conf {
			assert.NotContains(string(tok), "hello")
		} else {
			assert.Contains(string(tok), "hello")
		}

		msg, gotConf, _, err := acc.Unwrap(tok)
		require.NoError(t, err)
		assert.Equal("hello", string(msg))
		assert.Equal(conf, gotConf)

		// a context can't unwrap its own tokens
		_, _, _, err = ini.Unwrap(tok)
		assert.ErrorIs(err, gssapi.ErrBadMic)
	}

	_, _, _, err := ini.Unwrap([]byte("short"))
	assert.ErrorIs(err, gssapi.ErrDefectiveToken)
}

func TestNotEstablished(t *testing.T) {
	p := New()
	target, _ := p.ImportName("host@example.com", gssapi.GSS_NT_HOSTBASED_SERVICE)
	ini, _ := p.InitSecContext(target)

	_, _, err := ini.Wrap([]byte("x"), false, 0)
	assert.ErrorIs(t, err, gssapi.ErrNoContext)
	_, _, _, err = ini.Unwrap([]byte("x"))
	assert.ErrorIs(t, err, gssapi.ErrNoContext)
}

func TestOutstanding(t *testing.T) {
	assert := assert.New(t)
	p := New()

	name, err := p.ImportName("alice", gssapi.GSS_NT_USER_NAME)
	require.NoError(t, err)
	assert.Equal(1, p.Outstanding())

	cred, err := p.AcquireCredential(name, gssapi.CredUsageInitiateOnly)
	require.NoError(t, err)
	assert.Equal(2, p.Outstanding())

	assert.NoError(name.Release())
	assert.NoError(name.Release(), "double release")
	assert.Equal(1, p.Outstanding())

	assert.NoError(cred.Release())
	assert.Equal(0, p.Outstanding())

	ini, acc := handshake(t, p, 0, nil)
	assert.Equal(2, p.Outstanding())

	_, err = ini.Delete()
	assert.NoError(err)
	_, err = ini.Delete()
	assert.NoError(err)
	_, err = acc.Delete()
	assert.NoError(err)
	assert.Equal(0, p.Outstanding())

	_, err = ini.Inquire()
	assert.ErrorIs(err, gssapi.ErrNoContext)
	_, err = ini.Continue(nil)
	assert.ErrorIs(err, gssapi.ErrNoContext)
}

func TestDelegation(t *testing.T) {
	assert := assert.New(t)
	p := New()

	_, acc := handshake(t, p, gssapi.ContextFlagDeleg, nil)
	deleg, ok := acc.(gssapi.SecContextExtDelegation)
	require.True(t, ok)

	cred, err := deleg.DelegatedCredential()
	require.NoError(t, err)
	require.NotNil(t, cred)

	info, err := cred.Inquire()
	require.NoError(t, err)
	assert.Equal(DefaultInitiator, info.Name)
	assert.Equal(gssapi.CredUsageInitiateOnly, info.Usage)

	_, acc = handshake(t, p, 0, nil)
	cred, err = acc.(gssapi.SecContextExtDelegation).DelegatedCredential()
	assert.NoError(err)
	assert.Nil(cred)
}

func TestFailOn(t *testing.T) {
	p := New()

	p.FailOn(OpImportName, ErrInjected)
	_, err := p.ImportName("alice", gssapi.GSS_NT_USER_NAME)
	assert.ErrorIs(t, err, ErrInjected)

	p.FailOn(OpImportName, nil)
	_, err = p.ImportName("alice", gssapi.GSS_NT_USER_NAME)
	assert.NoError(t, err)

	// a failed delete still releases the handle
	_, acc := handshake(t, p, 0, nil)
	before := p.Outstanding()
	p.FailOn(OpDelete, ErrInjected)
	_, err = acc.Delete()
	assert.ErrorIs(t, err, ErrInjected)
	assert.Equal(t, before-1, p.Outstanding())
}

func TestImportNameErrors(t *testing.T) {
	p := New()

	_, err := p.ImportName("", gssapi.GSS_NT_USER_NAME)
	assert.ErrorIs(t, err, gssapi.ErrBadName)
	_, err = p.ImportName("a|b", gssapi.GSS_NT_USER_NAME)
	assert.ErrorIs(t, err, gssapi.ErrBadName)
	_, err = p.ImportName("a", gssapi.GssNameType(99))
	assert.ErrorIs(t, err, gssapi.ErrBadNameType)

	anon, err := p.ImportName("", gssapi.GSS_C_NT_ANONYMOUS)
	require.NoError(t, err)
	disp, nt, _ := anon.Display()
	assert.Equal(t, AnonymousName, disp)
	assert.Equal(t, gssapi.GSS_C_NT_ANONYMOUS, nt)
}

func TestDisplayStatus(t *testing.T) {
	assert := assert.New(t)
	p := New()
	p.SetMinorMessages(42, "first", "second")

	msg, next, err := p.DisplayStatus(42, gssapi.StatusTypeMech, 0)
	assert.NoError(err)
	assert.Equal("first", msg)
	assert.Equal(uint32(1), next)

	msg, next, err = p.DisplayStatus(42, gssapi.StatusTypeMech, next)
	assert.NoError(err)
	assert.Equal("second", msg)
	assert.Zero(next)

	_, _, err = p.DisplayStatus(42, gssapi.StatusTypeMech, 2)
	assert.ErrorIs(err, gssapi.ErrBadStatus)

	msg, _, err = p.DisplayStatus(7, gssapi.StatusTypeMech, 0)
	assert.NoError(err)
	assert.Equal("Unknown gsstest minor status 7", msg)

	major := gssapi.MakeMajorStatus(0, gssapi.StatusDefectiveToken, 0)
	msg, _, err = p.DisplayStatus(uint32(major), gssapi.StatusTypeGSS, 0)
	assert.NoError(err)
	assert.Equal(gssapi.StatusDefectiveToken.String(), msg)
}
