// SPDX-License-Identifier: Apache-2.0

package gssapi

import (
	"fmt"
	"strings"
)

// MajorStatus is a packed GSSAPI major status value as described in RFC 2744 § 3.9.1.
// The calling error occupies bits 24-31, the routine error bits 16-23 and the
// supplementary information bits 0-15.
type MajorStatus uint32

type CallingError uint8
type RoutineError uint8
type SupplementaryInfo uint16

const (
	callingErrorOffset = 24
	routineErrorOffset = 16

	callingErrorMask  = 0xff << callingErrorOffset
	routineErrorMask  = 0xff << routineErrorOffset
	supplementaryMask = 0xffff
)

// StatusComplete is the major status of a successful call.
const StatusComplete MajorStatus = 0

const (
	StatusCallInaccessibleRead  CallingError = iota + 1 // A required input parameter could not be read
	StatusCallInaccessibleWrite                         // A required output parameter could not be written
	StatusCallBadStructure                              // A parameter was malformed
)

const (
	StatusBadMech             RoutineError = iota + 1     // An unsupported mechanism was requested
	StatusBadName                                         // An invalid name was supplied
	StatusBadNameType                                     // A supplied name was of an unsupported type
	StatusBadBindings                                     // Incorrect channel bindings were supplied
	StatusBadStatus                                       // An invalid status code was supplied
	StatusBadMIC                                          // A token had an invalid MIC
	StatusBadSig                           = StatusBadMIC // A token had an invalid MIC
	StatusNoCred              RoutineError = iota         // No credentials were supplied, or the credentials were unavailable or inaccessible
	StatusNoContext                                       // No context has been established
	StatusDefectiveToken                                  // A token was invalid
	StatusDefectiveCredential                             // A credential was invalid
	StatusCredentialsExpired                              // The referenced credentials have expired
	StatusContextExpired                                  // The context has expired
	StatusFailure                                         // Miscellaneous failure (see text)
	StatusBadQOP                                          // The quality-of-protection requested could not be provided
	StatusUnauthorized                                    // The operation is forbidden by local security policy
	StatusUnavailable                                     // The operation or option is unavailable
	StatusDuplicateElement                                // The requested credential element already exists
	StatusNameNotMN                                       // The provided name was not a mechanism name
)

const (
	StatusContinueNeeded SupplementaryInfo = 1 << iota // The routine must be called again to complete its function
	StatusDuplicateToken                               // The token was a duplicate of an earlier token
	StatusOldToken                                     // The token's validity period has expired
	StatusUnseqToken                                   // A later token has already been processed
	StatusGapToken                                     // An expected per-message token was not received
)

// error strings from MIT Kerberos 1.19.1 (lib/gssapi/generic/disp_major_status.c)
var callingErrorStrings = [...]string{
	"A required input parameter could not be read",
	"A required input parameter could not be written",
	"A parameter was malformed",
}

var routineErrorStrings = [...]string{
	"An unsupported mechanism was requested",
	"An invalid name was supplied",
	"A supplied name was of an unsupported type",
	"Incorrect channel bindings were supplied",
	"An invalid status code was supplied",
	"A token had an invalid signature",
	"No credentials were supplied, or the credentials were unavailable or inaccessible",
	"No context has been established",
	"A token was invalid",
	"A credential was invalid",
	"The referenced credentials have expired",
	"The context has expired",
	"Unspecified GSS failure.  Minor code may provide more information",
	"The quality-of-protection requested could not be provided",
	"The operation is forbidden by the local security policy",
	"The operation or option is not available or unsupported",
	"The requested credential element already exists",
	"The provided name was not mechanism specific (MN)",
}

var supplementaryStrings = [...]string{
	"The routine must be called again to complete its function",
	"The token was a duplicate of an earlier token",
	"The token's validity period has expired",
	"A later token has already been processed",
	"An expected per-message token was not received",
}

func (c CallingError) String() string {
	if c == 0 || int(c) > len(callingErrorStrings) {
		return fmt.Sprintf("Unknown calling error %d", c)
	}
	return callingErrorStrings[c-1]
}

func (r RoutineError) String() string {
	if r == 0 || int(r) > len(routineErrorStrings) {
		return fmt.Sprintf("Unknown routine error %d", r)
	}
	return routineErrorStrings[r-1]
}

// list returns the individual messages for each bit set, lowest bit first
func (s SupplementaryInfo) list() []string {
	var strs []string
	for i, msg := range supplementaryStrings {
		if s&(1<<i) != 0 {
			strs = append(strs, msg)
		}
	}
	return strs
}

func (s SupplementaryInfo) String() string {
	return strings.Join(s.list(), ", ")
}

// MakeMajorStatus packs the three parts of a major status into a single value
func MakeMajorStatus(c CallingError, r RoutineError, s SupplementaryInfo) MajorStatus {
	return MajorStatus(uint32(c)<<callingErrorOffset | uint32(r)<<routineErrorOffset | uint32(s))
}

func (m MajorStatus) CallingError() CallingError {
	return CallingError((m & callingErrorMask) >> callingErrorOffset)
}

func (m MajorStatus) RoutineError() RoutineError {
	return RoutineError((m & routineErrorMask) >> routineErrorOffset)
}

func (m MajorStatus) Supplementary() SupplementaryInfo {
	return SupplementaryInfo(m & supplementaryMask)
}

// IsError reports whether the status carries a calling or routine error (GSS_ERROR).
func (m MajorStatus) IsError() bool {
	return m&(callingErrorMask|routineErrorMask) != 0
}

// IsContinueNeeded reports whether the supplementary continue-needed bit is set.
func (m MajorStatus) IsContinueNeeded() bool {
	return m.Supplementary()&StatusContinueNeeded != 0
}

func (m MajorStatus) String() string {
	if m == StatusComplete {
		return "The routine completed successfully"
	}

	var strs []string
	if c := m.CallingError(); c != 0 {
		strs = append(strs, c.String())
	}
	if r := m.RoutineError(); r != 0 {
		strs = append(strs, r.String())
	}
	strs = append(strs, m.Supplementary().list()...)

	return strings.Join(strs, "; ")
}
