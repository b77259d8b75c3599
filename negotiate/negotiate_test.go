// SPDX-License-Identifier: Apache-2.0

package negotiate

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gssapi "github.com/golang-auth/go-gssnegotiate"
)

const testService = "service@host"

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func unb64(t *testing.T, s string) []byte {
	t.Helper()
	b, err := base64.StdEncoding.DecodeString(s)
	require.NoError(t, err)
	return b
}

func newPair(t *testing.T, p gssapi.Provider, flags gssapi.ContextFlag, service string, opts ...Option) (*Client, *Server) {
	t.Helper()

	c, err := NewClient(p, testService, flags, opts...)
	require.NoError(t, err)
	s, err := NewServer(p, service, opts...)
	require.NoError(t, err)

	return c, s
}

// handshake exchanges tokens until both sides have finished.
func handshake(t *testing.T, c *Client, s *Server) {
	t.Helper()

	cres := c.Step("")
	for {
		require.NotEqual(t, StatusError, cres.Status, cres.Message)
		if cres.Token == "" {
			break
		}

		sres := s.Step(cres.Token)
		require.NotEqual(t, StatusError, sres.Status, sres.Message)
		if cres.Status == StatusComplete {
			break
		}

		cres = c.Step(sres.Token)
	}

	require.True(t, c.Established())
	require.True(t, s.Established())
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "complete", StatusComplete.String())
	assert.Equal(t, "continue", StatusContinue.String())
	assert.Equal(t, "error", StatusError.String())
	assert.Equal(t, "unknown", Status(9).String())
}

func TestErrorFormat(t *testing.T) {
	cause := assert.AnError
	assert := assert.New(t)

	e := &Error{Kind: ErrProtocol, Op: "client.step", Message: "bad input", Err: cause}
	assert.Equal("client.step: protocol error: bad input", e.Error())
	assert.ErrorIs(e, ErrProtocol)
	assert.ErrorIs(e, cause)
	assert.NotErrorIs(e, ErrProvider)

	e = &Error{Kind: ErrResolution, Op: "server.init"}
	assert.Equal("server.init: name resolution failed", e.Error())
	assert.Equal([]error{ErrResolution}, e.Unwrap())

	res := e.Response()
	assert.Equal(StatusError, res.Status)
	assert.Same(e, res.Err)
}
