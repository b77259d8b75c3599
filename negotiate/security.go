// SPDX-License-Identifier: Apache-2.0

package negotiate

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// Layer is a bitmask of the message protection layers offered by a server, RFC 4752 § 3.3.
type Layer uint8

const (
	LayerNone      Layer = 1 << iota // no security layer
	LayerIntegrity                   // integrity protected messages
	LayerPrivacy                     // confidentiality protected messages
)

func (l Layer) String() string {
	var names []string
	if l&LayerNone != 0 {
		names = append(names, "none")
	}
	if l&LayerIntegrity != 0 {
		names = append(names, "integrity")
	}
	if l&LayerPrivacy != 0 {
		names = append(names, "privacy")
	}
	return strings.Join(names, "|")
}

// MaxBufSizeLimit is the largest buffer size that fits the 3-byte wire field.
const MaxBufSizeLimit = 1<<24 - 1

// SecurityLayer is the security layer negotiation message exchanged after the context is
// established: one byte of layers, a 3-byte big-endian maximum buffer size, then an
// optional authorization identity.
type SecurityLayer struct {
	Layers     Layer
	MaxBufSize uint32
	AuthzID    string
}

var errShortSecurityLayer = errors.New("security layer message is shorter than 4 bytes")

// ParseSecurityLayer decodes a security layer message.
func ParseSecurityLayer(b []byte) (SecurityLayer, error) {
	if len(b) < 4 {
		return SecurityLayer{}, errShortSecurityLayer
	}

	return SecurityLayer{
		Layers:     Layer(b[0]),
		MaxBufSize: binary.BigEndian.Uint32(b[0:4]) & MaxBufSizeLimit,
		AuthzID:    string(b[4:]),
	}, nil
}

// Marshal encodes the message.
func (s SecurityLayer) Marshal() ([]byte, error) {
	if s.MaxBufSize > MaxBufSizeLimit {
		return nil, fmt.Errorf("maximum buffer size %d does not fit in 3 bytes", s.MaxBufSize)
	}

	b := make([]byte, 4, 4+len(s.AuthzID))
	binary.BigEndian.PutUint32(b, s.MaxBufSize)
	b[0] = byte(s.Layers)

	return append(b, s.AuthzID...), nil
}
