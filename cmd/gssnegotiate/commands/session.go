// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/golang-auth/go-gssnegotiate/internal/frame"
	"github.com/golang-auth/go-gssnegotiate/negotiate"
)

var (
	ErrPeerFailed   = errors.New("peer reported a failure")
	ErrUnexpected   = errors.New("unexpected frame from peer")
	errEarlyFinish  = errors.New("server finished before the client context was established")
	errNoClientStep = errors.New("client produced no token before the context was established")
)

// the largest protected message the server is prepared to receive
const offeredBufSize = frame.MaxBodyLen

func encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func frameStatus(r negotiate.Response) frame.Status {
	if r.Status == negotiate.StatusComplete {
		return frame.StatusComplete
	}
	return frame.StatusOK
}

// sendToken frames the decoded response token.
func sendToken(w io.Writer, s frame.Status, token string, l *slog.Logger) error {
	b, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return fmt.Errorf("decoding token: %w", err)
	}

	l.Debug("sending frame", "status", s.String(), "len", len(b))
	if len(b) > 0 {
		l.Debug("frame body\n" + frame.Dump(b))
	}
	return frame.Write(w, s, b)
}

// receive reads a frame and turns an error or bad frame from the peer into an error.
func receive(r io.Reader, l *slog.Logger) (frame.Status, []byte, error) {
	s, body, err := frame.Read(r)
	if err != nil {
		return 0, nil, err
	}

	l.Debug("received frame", "status", s.String(), "len", len(body))
	switch s {
	case frame.StatusOK, frame.StatusComplete:
		return s, body, nil
	case frame.StatusError, frame.StatusBad:
		return s, nil, fmt.Errorf("%w: %s: %s", ErrPeerFailed, s, body)
	}
	return s, nil, fmt.Errorf("%w: %s", ErrUnexpected, s)
}

// fail tells the peer why the negotiation stopped and returns err.  The peer may already
// be gone, so the write error is not reported.
func fail(w io.Writer, s frame.Status, msg string, err error) error {
	_ = frame.Write(w, s, []byte(msg))
	return err
}

// clientHandshake establishes the client context.  Every token sent is answered by one
// frame from the server; an empty complete frame ends the handshake.
func clientHandshake(rw io.ReadWriter, c *negotiate.Client, l *slog.Logger) error {
	r := c.Step("")
	for {
		if r.Status == negotiate.StatusError {
			return fail(rw, frame.StatusError, r.Message, r.Err)
		}
		if r.Token == "" {
			if r.Status == negotiate.StatusComplete {
				return nil
			}
			return fail(rw, frame.StatusError, errNoClientStep.Error(), errNoClientStep)
		}

		if err := sendToken(rw, frameStatus(r), r.Token, l); err != nil {
			return err
		}

		s, body, err := receive(rw, l)
		if err != nil {
			return err
		}
		if s == frame.StatusComplete && len(body) == 0 {
			if r.Status == negotiate.StatusComplete {
				return nil
			}
			return errEarlyFinish
		}

		r = c.Step(encode(body))
	}
}

// serverHandshake establishes the server context, replying to each client token.
func serverHandshake(rw io.ReadWriter, s *negotiate.Server, l *slog.Logger) error {
	for {
		_, body, err := receive(rw, l)
		if err != nil {
			return err
		}

		r := s.Step(encode(body))
		if r.Status == negotiate.StatusError {
			return fail(rw, frame.StatusError, r.Message, r.Err)
		}

		if err := sendToken(rw, frameStatus(r), r.Token, l); err != nil {
			return err
		}
		if r.Status == negotiate.StatusComplete {
			return nil
		}
	}
}

// clientSecurityLayer answers the server's wrapped security layer offer, selecting no
// protection and asking to act as user.
func clientSecurityLayer(rw io.ReadWriter, c *negotiate.Client, user string, l *slog.Logger) error {
	_, body, err := receive(rw, l)
	if err != nil {
		return err
	}

	offer := c.Unwrap(encode(body))
	if offer.Status == negotiate.StatusError {
		return fail(rw, frame.StatusBad, offer.Message, offer.Err)
	}

	reply := c.Wrap(offer.Token, negotiate.WithUser(user))
	if reply.Status == negotiate.StatusError {
		return fail(rw, frame.StatusError, reply.Message, reply.Err)
	}
	if err := sendToken(rw, frame.StatusOK, reply.Token, l); err != nil {
		return err
	}

	s, _, err := receive(rw, l)
	if err != nil {
		return err
	}
	if s != frame.StatusComplete {
		return fmt.Errorf("%w: %s after security layer reply", ErrUnexpected, s)
	}
	return nil
}

// serverSecurityLayer offers no protection layer and a maximum buffer size, and returns
// the authorization identity the client asked for.  An empty identity means the
// authenticated principal.
func serverSecurityLayer(rw io.ReadWriter, s *negotiate.Server, l *slog.Logger) (string, error) {
	offer, err := negotiate.SecurityLayer{Layers: negotiate.LayerNone, MaxBufSize: offeredBufSize}.Marshal()
	if err != nil {
		return "", err
	}

	w := s.Wrap(encode(offer))
	if w.Status == negotiate.StatusError {
		return "", fail(rw, frame.StatusError, w.Message, w.Err)
	}
	if err := sendToken(rw, frame.StatusOK, w.Token, l); err != nil {
		return "", err
	}

	_, body, err := receive(rw, l)
	if err != nil {
		return "", err
	}

	u := s.Unwrap(encode(body))
	if u.Status == negotiate.StatusError {
		return "", fail(rw, frame.StatusBad, u.Message, u.Err)
	}
	plain, err := base64.StdEncoding.DecodeString(u.Token)
	if err != nil {
		return "", fail(rw, frame.StatusError, "internal error", err)
	}

	choice, err := negotiate.ParseSecurityLayer(plain)
	if err != nil {
		return "", fail(rw, frame.StatusBad, err.Error(), err)
	}
	if choice.Layers != negotiate.LayerNone {
		err := fmt.Errorf("%w: security layer %q was not offered", ErrUnexpected, choice.Layers)
		return "", fail(rw, frame.StatusBad, err.Error(), err)
	}

	if err := frame.Write(rw, frame.StatusComplete, nil); err != nil {
		return "", err
	}

	if choice.AuthzID == "" {
		return s.Username(), nil
	}
	return choice.AuthzID, nil
}

// clientEcho sends each message wrapped and returns the server's unwrapped replies.
func clientEcho(rw io.ReadWriter, c *negotiate.Client, msgs []string, l *slog.Logger) ([]string, error) {
	echoes := make([]string, 0, len(msgs))

	for _, msg := range msgs {
		w := c.Wrap(encode([]byte(msg)))
		if w.Status == negotiate.StatusError {
			return echoes, fail(rw, frame.StatusError, w.Message, w.Err)
		}
		if err := sendToken(rw, frame.StatusOK, w.Token, l); err != nil {
			return echoes, err
		}

		_, body, err := receive(rw, l)
		if err != nil {
			return echoes, err
		}
		u := c.Unwrap(encode(body))
		if u.Status == negotiate.StatusError {
			return echoes, fail(rw, frame.StatusBad, u.Message, u.Err)
		}

		plain, err := base64.StdEncoding.DecodeString(u.Token)
		if err != nil {
			return echoes, err
		}
		echoes = append(echoes, string(plain))
	}

	return echoes, nil
}

// serverEcho returns each protected message to the client until the client hangs up.
func serverEcho(rw io.ReadWriter, s *negotiate.Server, l *slog.Logger) error {
	for {
		_, body, err := receive(rw, l)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		u := s.Unwrap(encode(body))
		if u.Status == negotiate.StatusError {
			return fail(rw, frame.StatusBad, u.Message, u.Err)
		}
		l.Info("message received", "wrapped_len", len(body))

		w := s.Wrap(u.Token)
		if w.Status == negotiate.StatusError {
			return fail(rw, frame.StatusError, w.Message, w.Err)
		}
		if err := sendToken(rw, frame.StatusOK, w.Token, l); err != nil {
			return err
		}
	}
}

// runClient runs a whole client session and returns the server's echoes.
func runClient(rw io.ReadWriter, c *negotiate.Client, user string, msgs []string, l *slog.Logger) ([]string, error) {
	if err := clientHandshake(rw, c, l); err != nil {
		return nil, fmt.Errorf("handshake: %w", err)
	}
	if err := clientSecurityLayer(rw, c, user, l); err != nil {
		return nil, fmt.Errorf("security layer: %w", err)
	}
	return clientEcho(rw, c, msgs, l)
}
