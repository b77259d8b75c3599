// SPDX-License-Identifier: Apache-2.0

package gssapi

// StatusType selects the namespace a status code is displayed in, see RFC 2743 § 2.4.1.
type StatusType int

const (
	StatusTypeGSS  StatusType = iota + 1 // GSS_C_GSS_CODE: a major status
	StatusTypeMech                       // GSS_C_MECH_CODE: a mechanism specific minor status
)

func (t StatusType) String() string {
	switch t {
	case StatusTypeGSS:
		return "GSS"
	case StatusTypeMech:
		return "Mech"
	}
	return "Unknown"
}

// StatusDisplayer implements GSS_Display_status from RFC 2743 § 2.4.1.
//
// A status may be described by several messages.  The first call should pass a zero msgCtx;
// the returned next value is the context for the following message, or zero when the last
// message has been returned.
type StatusDisplayer interface {
	DisplayStatus(code uint32, typ StatusType, msgCtx uint32) (msg string, next uint32, err error)
}

// DisplayMajorStatus returns one message describing a major status.  Providers can use it to
// implement the StatusTypeGSS half of StatusDisplayer.
//
// The messages are returned in the order calling error, routine error, then one message per
// supplementary bit.  A zero status has the single message "The routine completed successfully".
func DisplayMajorStatus(major MajorStatus, msgCtx uint32) (msg string, next uint32, err error) {
	segments := majorSegments(major)
	if int(msgCtx) >= len(segments) {
		return "", 0, NewFatalStatus(StatusBadStatus, 0)
	}

	if int(msgCtx)+1 < len(segments) {
		next = msgCtx + 1
	}

	return segments[msgCtx], next, nil
}

func majorSegments(major MajorStatus) []string {
	if major == StatusComplete {
		return []string{major.String()}
	}

	var segments []string
	if c := major.CallingError(); c != 0 {
		segments = append(segments, c.String())
	}
	if r := major.RoutineError(); r != 0 {
		segments = append(segments, r.String())
	}

	return append(segments, major.Supplementary().list()...)
}
