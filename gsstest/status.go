// SPDX-License-Identifier: Apache-2.0

package gsstest

import (
	"fmt"

	gssapi "github.com/golang-auth/go-gssnegotiate"
)

// Minor status codes reported by the provider.
const (
	MinorSuccess uint32 = iota
	MinorBadToken
	MinorWrongTarget
	MinorNotEstablished
	MinorEstablished
)

// Fatal returns a provider error with the routine error and minor code.
func Fatal(r gssapi.RoutineError, minor uint32) error {
	return gssapi.NewFatalStatus(r, minor)
}

// DisplayStatus implements gssapi.StatusDisplayer.  Minor codes display the messages set
// with SetMinorMessages.
func (p *Provider) DisplayStatus(code uint32, typ gssapi.StatusType, msgCtx uint32) (string, uint32, error) {
	if err := p.failure(OpDisplayStatus); err != nil {
		return "", 0, err
	}

	switch typ {
	case gssapi.StatusTypeGSS:
		return gssapi.DisplayMajorStatus(gssapi.MajorStatus(code), msgCtx)
	case gssapi.StatusTypeMech:
	default:
		return "", 0, Fatal(gssapi.StatusBadStatus, MinorSuccess)
	}

	p.mu.Lock()
	msgs, ok := p.minorMsgs[code]
	p.mu.Unlock()
	if !ok {
		msgs = []string{fmt.Sprintf("Unknown gsstest minor status %d", code)}
	}

	if int(msgCtx) >= len(msgs) {
		return "", 0, Fatal(gssapi.StatusBadStatus, MinorSuccess)
	}

	var next uint32
	if int(msgCtx)+1 < len(msgs) {
		next = msgCtx + 1
	}
	return msgs[msgCtx], next, nil
}
