// SPDX-License-Identifier: Apache-2.0

// Package frame implements the framing used by the gssnegotiate TCP client and server.
// Each frame is a status byte, a 4-byte big-endian body length, then the body.
package frame

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Status is the negotiation state carried by a frame.
type Status byte

const (
	StatusOK       Status = 2 // more frames follow
	StatusBad      Status = 3 // the peer sent something unexpected
	StatusError    Status = 4 // negotiation failed; the body is the diagnostic
	StatusComplete Status = 5 // the sender has finished this phase
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusBad:
		return "bad"
	case StatusError:
		return "error"
	case StatusComplete:
		return "complete"
	}
	return fmt.Sprintf("status(%d)", byte(s))
}

const headerLen = 5

// MaxBodyLen bounds the body of a received frame.
const MaxBodyLen = 1 << 20

var ErrTooLarge = errors.New("frame: body exceeds maximum length")

// Write sends one frame.
func Write(w io.Writer, s Status, body []byte) error {
	if len(body) > MaxBodyLen {
		return ErrTooLarge
	}

	buf := make([]byte, headerLen, headerLen+len(body))
	buf[0] = byte(s)
	binary.BigEndian.PutUint32(buf[1:], uint32(len(body)))
	buf = append(buf, body...)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("frame: write: %w", err)
	}
	return nil
}

// Read receives one frame.  A peer that closes the connection between frames gives
// io.EOF; one that closes part way through gives io.ErrUnexpectedEOF.
func Read(r io.Reader) (Status, []byte, error) {
	var hdr [headerLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil, io.EOF
		}
		return 0, nil, fmt.Errorf("frame: read header: %w", err)
	}

	n := binary.BigEndian.Uint32(hdr[1:])
	if n > MaxBodyLen {
		return 0, nil, ErrTooLarge
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, fmt.Errorf("frame: read body: %w", err)
	}

	return Status(hdr[0]), body, nil
}

// Dump formats b as a hex dump for debug logs.
func Dump(b []byte) string {
	sb := &strings.Builder{}

	d := hex.Dumper(sb)
	_, _ = d.Write(b)
	_ = d.Close()

	return sb.String()
}
