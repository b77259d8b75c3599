// SPDX-License-Identifier: Apache-2.0

package negotiate

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gssapi "github.com/golang-auth/go-gssnegotiate"
	"github.com/golang-auth/go-gssnegotiate/gsstest"
)

func TestLockStepHandshake(t *testing.T) {
	assert := assert.New(t)
	p := gsstest.New()
	c, s := newPair(t, p, 0, testService)

	r1 := c.Step("")
	assert.Equal(StatusContinue, r1.Status)
	assert.NotEmpty(r1.Token)
	assert.Equal(r1.Token, c.LastResponse())
	assert.Empty(c.Username())

	r2 := s.Step(r1.Token)
	assert.Equal(StatusComplete, r2.Status)
	assert.NotEmpty(r2.Token)
	assert.Equal("alice", s.Username())
	assert.Empty(s.TargetName(), "a server with credentials never reports a target")

	r3 := c.Step(r2.Token)
	assert.Equal(StatusComplete, r3.Status)
	assert.Empty(r3.Token)
	assert.Equal("alice", c.Username())
	assert.Equal(c.Username(), s.Username())

	c.Clean()
	s.Clean()
	assert.Zero(p.Outstanding())
}

func TestMultiRoundHandshake(t *testing.T) {
	for _, opts := range [][]gsstest.Option{
		{gsstest.WithOneWay()},
		{gsstest.WithRounds(3)},
		{gsstest.WithRounds(2), gsstest.WithOneWay()},
	} {
		p := gsstest.New(opts...)
		c, s := newPair(t, p, gssapi.ContextFlagMutual, testService)

		handshake(t, c, s)
		assert.Equal(t, "alice", c.Username())
		assert.Equal(t, "alice", s.Username())

		c.Clean()
		s.Clean()
		assert.Zero(t, p.Outstanding())
	}
}

func TestLastResponseOverwritten(t *testing.T) {
	assert := assert.New(t)
	c, s := newPair(t, gsstest.New(), 0, testService)

	r1 := c.Step("")
	first := c.LastResponse()
	require.Equal(t, r1.Token, first)

	r2 := s.Step(r1.Token)
	r3 := c.Step(r2.Token)
	assert.Empty(r3.Token)
	assert.Empty(c.LastResponse(), "an empty step output must not leave the previous token")

	// failures discard the previous token too
	res := c.Step(r2.Token)
	assert.Equal(StatusError, res.Status)
	assert.Empty(c.LastResponse())
	assert.NotContains(res.Token, first)
}

func TestClientCleanTwice(t *testing.T) {
	assert := assert.New(t)
	p := gsstest.New()

	c, err := NewClient(p, testService, 0)
	require.NoError(t, err)
	assert.Equal(1, p.Outstanding())

	c.Step("")
	assert.Equal(2, p.Outstanding())

	assert.Equal(StatusComplete, c.Clean().Status)
	assert.Equal(StatusComplete, c.Clean().Status)
	assert.Zero(p.Outstanding())
	assert.Empty(c.Username())
	assert.Empty(c.LastResponse())

	res := c.Step("")
	assert.ErrorIs(res.Err, ErrProtocol)
}

func TestClientCleanUnused(t *testing.T) {
	p := gsstest.New()
	c, err := NewClient(p, testService, 0)
	require.NoError(t, err)

	assert.Equal(t, StatusComplete, c.Clean().Status)
	assert.Zero(t, p.Outstanding())
}

func TestClientStepAfterTerminal(t *testing.T) {
	assert := assert.New(t)
	p := gsstest.New(gsstest.WithOneWay())

	c, err := NewClient(p, testService, 0)
	require.NoError(t, err)
	defer c.Clean()

	assert.Equal(StatusComplete, c.Step("").Status)
	res := c.Step("")
	assert.Equal(StatusError, res.Status)
	assert.ErrorIs(res.Err, ErrProtocol)
	assert.Equal("context already established", res.Message)

	c2, err := NewClient(p, testService, 0)
	require.NoError(t, err)
	defer c2.Clean()

	res = c2.Step("!!not base64!!")
	assert.Equal(StatusError, res.Status)
	assert.ErrorIs(res.Err, ErrProtocol)

	res = c2.Step("")
	assert.ErrorIs(res.Err, ErrProtocol)
	assert.Equal("negotiation failed, clean and restart", res.Message)
}

func TestNewClientResolutionFailure(t *testing.T) {
	assert := assert.New(t)
	p := gsstest.New()
	p.FailOn(gsstest.OpImportName, gsstest.Fatal(gssapi.StatusBadName, gsstest.MinorSuccess))

	c, err := NewClient(p, testService, 0)
	assert.Nil(c)
	assert.ErrorIs(err, ErrResolution)
	assert.ErrorIs(err, gssapi.ErrBadName)

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal("client.init", e.Op)
	assert.Equal("An invalid name was supplied, Success", e.Message)
	assert.Equal(StatusError, e.Response().Status)
}

func TestClientProviderFailure(t *testing.T) {
	assert := assert.New(t)
	p := gsstest.New()
	c, s := newPair(t, p, 0, testService)
	defer c.Clean()
	defer s.Clean()

	r1 := c.Step("")

	// the server's reply is corrupted in transit
	res := c.Step(b64("garbage"))
	assert.Equal(StatusError, res.Status)
	assert.ErrorIs(res.Err, ErrProvider)
	assert.ErrorIs(res.Err, gssapi.ErrDefectiveToken)
	assert.Equal("A token was invalid, Malformed gsstest token", res.Message)
	assert.NotEmpty(r1.Token)
}

func TestClientInitFailure(t *testing.T) {
	p := gsstest.New()
	p.FailOn(gsstest.OpInitSecContext, gsstest.ErrInjected)

	c, err := NewClient(p, testService, 0)
	require.NoError(t, err)
	defer c.Clean()

	res := c.Step("")
	assert.ErrorIs(t, res.Err, ErrProvider)
	assert.ErrorIs(t, res.Err, gsstest.ErrInjected)
}

func TestClientAllocationFailure(t *testing.T) {
	p := gsstest.New()
	c, err := NewClient(p, testService, 0)
	require.NoError(t, err)
	defer c.Clean()

	p.FailOn(gsstest.OpContinue, gssapi.ErrResourceExhausted)
	res := c.Step("")
	assert.Equal(t, StatusError, res.Status)
	assert.ErrorIs(t, res.Err, ErrAllocation)
	assert.NotErrorIs(t, res.Err, ErrProvider)
}

func TestClientUsernameFailure(t *testing.T) {
	for _, op := range []gsstest.Op{gsstest.OpInquire, gsstest.OpDisplayName} {
		t.Run(op.String(), func(t *testing.T) {
			p := gsstest.New()
			c, s := newPair(t, p, 0, testService)

			r1 := c.Step("")
			r2 := s.Step(r1.Token)
			require.Equal(t, StatusComplete, r2.Status)

			p.FailOn(op, gsstest.ErrInjected)
			res := c.Step(r2.Token)
			assert.Equal(t, StatusError, res.Status, "identity failures are never swallowed")
			assert.ErrorIs(t, res.Err, gsstest.ErrInjected)
			assert.False(t, c.Established())
			assert.Empty(t, c.Username())

			c.Clean()
			s.Clean()
			assert.Zero(t, p.Outstanding())
		})
	}
}

func TestClientPrincipalService(t *testing.T) {
	p := gsstest.New()
	c, err := NewClient(p, "HTTP/www.example.com@EXAMPLE.COM", gssapi.ContextFlagMutual)
	require.NoError(t, err)
	defer c.Clean()

	s, err := NewServer(p, "")
	require.NoError(t, err)
	defer s.Clean()

	handshake(t, c, s)
	assert.Equal(t, "HTTP/www.example.com@EXAMPLE.COM", s.TargetName())
}

func TestClientCredential(t *testing.T) {
	p := gsstest.New()

	name, err := p.ImportName("bob", gssapi.GSS_NT_USER_NAME)
	require.NoError(t, err)
	cred, err := p.AcquireCredential(name, gssapi.CredUsageInitiateOnly)
	require.NoError(t, err)

	c, err := NewClient(p, testService, 0, WithCredential(cred))
	require.NoError(t, err)
	s, err := NewServer(p, testService)
	require.NoError(t, err)

	handshake(t, c, s)
	assert.Equal(t, "bob", c.Username())
	assert.Equal(t, "bob", s.Username())

	c.Clean()
	s.Clean()

	// the caller's name and credential are still held
	assert.Equal(t, 2, p.Outstanding())
}

func TestClientLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	c, err := NewClient(gsstest.New(), testService, 0, WithLogger(logger))
	require.NoError(t, err)
	c.Step("")
	c.Clean()

	out := buf.String()
	assert.Contains(t, out, "role=client")
	assert.Contains(t, out, "negotiation step")
	assert.Contains(t, out, "status=continue")
}
