// SPDX-License-Identifier: Apache-2.0

package gssapi

import (
	"testing"
)

func collectMajor(a *myassert, major MajorStatus) []string {
	var msgs []string
	var msgCtx uint32
	for {
		msg, next, err := DisplayMajorStatus(major, msgCtx)
		a.NoErrorFatal(err)
		msgs = append(msgs, msg)
		if next == 0 {
			return msgs
		}
		msgCtx = next
	}
}

func TestDisplayMajorStatusSingle(t *testing.T) {
	assert := NewAssert(t)

	msgs := collectMajor(assert, MakeMajorStatus(0, StatusNoCred, 0))
	assert.Equal([]string{StatusNoCred.String()}, msgs)

	msgs = collectMajor(assert, StatusComplete)
	assert.Equal([]string{"The routine completed successfully"}, msgs)
}

func TestDisplayMajorStatusSegments(t *testing.T) {
	assert := NewAssert(t)

	major := MakeMajorStatus(StatusCallInaccessibleRead, StatusDefectiveToken, StatusDuplicateToken|StatusGapToken)
	msgs := collectMajor(assert, major)
	assert.Equal([]string{
		StatusCallInaccessibleRead.String(),
		StatusDefectiveToken.String(),
		"The token was a duplicate of an earlier token",
		"An expected per-message token was not received",
	}, msgs)
}

func TestDisplayMajorStatusBadContext(t *testing.T) {
	assert := NewAssert(t)

	_, _, err := DisplayMajorStatus(MakeMajorStatus(0, StatusFailure, 0), 5)
	assert.ErrorIs(err, ErrBadStatus)
}

func TestStatusTypeString(t *testing.T) {
	assert := NewAssert(t)

	assert.Equal("GSS", StatusTypeGSS.String())
	assert.Equal("Mech", StatusTypeMech.String())
	assert.Equal("Unknown", StatusType(0).String())
}
