// SPDX-License-Identifier: Apache-2.0

package gssapi

import (
	"errors"
	"strings"
)

// InfoStatus represents the supplementary (informational) part of a status, returned when an
// informational code is available but a function otherwise succeeded.
//
// The Go bindings use Go's standard error interface instead of the major and minor status codes
// specified in RFC 2743 § 1.2.1.  The numeric codes remain available through Major() and the
// Minor field of FatalStatus for callers that need to display them, see StatusCodes.
type InfoStatus struct {
	Supplementary SupplementaryInfo // The informational status bits
	MechErrors    []error           // Mechanism-specific errors
}

// FatalStatus represents a failed call.  Fatal errors may also include an embedded InfoStatus.
type FatalStatus struct {
	InfoStatus                // Embedded informational status
	CallingError CallingError // Calling error, usually zero
	RoutineError RoutineError // The fatal error code
	Minor        uint32       // Mechanism specific (minor) status code
}

// Fatal error variables that correspond to the fatal error codes defined by RFC 2743.
// These variables implement the error interface and can be used with Go's standard error handling.

var ErrBadMech = errors.New("an unsupported mechanism was requested")
var ErrBadName = errors.New("an invalid name was supplied")
var ErrBadNameType = errors.New("a supplied name was of an unsupported type")
var ErrBadBindings = errors.New("incorrect channel bindings were supplied")
var ErrBadStatus = errors.New("an invalid status code was supplied")
var ErrBadMic = errors.New("a token had an invalid signature")
var ErrBadSig = ErrBadMic // ErrBadSig is an alias for ErrBadMic for compatibility
var ErrNoCred = errors.New("no credentials were supplied, or the credentials were unavailable or inaccessible")
var ErrNoContext = errors.New("no context has been established")
var ErrDefectiveToken = errors.New("invalid token was supplied")
var ErrDefectiveCredential = errors.New("invalid credential was supplied")
var ErrCredentialsExpired = errors.New("the referenced credentials have expired")
var ErrContextExpired = errors.New("the context has expired")
var ErrFailure = errors.New("unspecified GSS failure.  Minor code may provide more information")
var ErrBadQop = errors.New("the quality-of-protection (QOP) requested could not be provided")
var ErrUnauthorized = errors.New("the operation is forbidden by local security policy")
var ErrUnavailable = errors.New("the operation or option is not available or supported")
var ErrDuplicateElement = errors.New("the requested credential element already exists")
var ErrNameNotMn = errors.New("the provided name was not mechanism specific (MN)")

// ErrResourceExhausted is carried in MechErrors by providers that could not allocate
// the resources needed to complete a call.
var ErrResourceExhausted = errors.New("insufficient resources to complete the operation")

// Informational status variables that correspond to the informational codes defined by RFC 2743.
// These are returned by InfoStatus.Unwrap() and FatalStatus.Unwrap() and can be used with
// errors.Is().

//nolint:staticcheck // ST1012 these aren't actually errors
var InfoContinueNeeded = errors.New("the routine must be called again to complete its function")

//nolint:staticcheck // ST1012 these aren't actually errors
var InfoDuplicateToken = errors.New(`the token was a duplicate of an earlier token`)

//nolint:staticcheck // ST1012 these aren't actually errors
var InfoOldToken = errors.New("the token's validity period has expired")

//nolint:staticcheck // ST1012 these aren't actually errors
var InfoUnseqToken = errors.New("a later token has already been processed")

//nolint:staticcheck // ST1012 these aren't actually errors
var InfoGapToken = errors.New("an expected per-message token was not received")

var routineSentinels = [...]error{
	ErrBadMech,
	ErrBadName,
	ErrBadNameType,
	ErrBadBindings,
	ErrBadStatus,
	ErrBadMic,
	ErrNoCred,
	ErrNoContext,
	ErrDefectiveToken,
	ErrDefectiveCredential,
	ErrCredentialsExpired,
	ErrContextExpired,
	ErrFailure,
	ErrBadQop,
	ErrUnauthorized,
	ErrUnavailable,
	ErrDuplicateElement,
	ErrNameNotMn,
}

var infoSentinels = [...]error{
	InfoContinueNeeded,
	InfoDuplicateToken,
	InfoOldToken,
	InfoUnseqToken,
	InfoGapToken,
}

// NewFatalStatus returns a FatalStatus for the routine error and minor code, carrying
// the supplied mechanism errors.
func NewFatalStatus(r RoutineError, minor uint32, mechErrs ...error) FatalStatus {
	return FatalStatus{
		InfoStatus:   InfoStatus{MechErrors: mechErrs},
		RoutineError: r,
		Minor:        minor,
	}
}

// Fatal returns the sentinel error matching the routine error code
func (s FatalStatus) Fatal() error {
	if s.RoutineError == 0 || int(s.RoutineError) > len(routineSentinels) {
		return ErrBadStatus
	}
	return routineSentinels[s.RoutineError-1]
}

// Major returns the packed RFC 2744 major status
func (s FatalStatus) Major() MajorStatus {
	return MakeMajorStatus(s.CallingError, s.RoutineError, s.Supplementary)
}

func (s InfoStatus) Unwrap() []error {
	ret := []error{}

	for i, e := range infoSentinels {
		if s.Supplementary&(1<<i) != 0 {
			ret = append(ret, e)
		}
	}

	return append(ret, s.MechErrors...)
}

func (s InfoStatus) Error() string {
	infoStrings := []string{}
	for i, e := range infoSentinels {
		if s.Supplementary&(1<<i) != 0 {
			infoStrings = append(infoStrings, e.Error())
		}
	}

	return strings.Join(infoStrings, "; ")
}

func (s FatalStatus) Unwrap() []error {
	ret := []error{}

	if s.RoutineError != 0 {
		ret = append(ret, s.Fatal())
	}

	return append(ret, s.InfoStatus.Unwrap()...)
}

func (s FatalStatus) Error() string {
	var parts []string

	if s.RoutineError != 0 {
		fatal := s.Fatal()
		// only include the spiel about maybe the minor code being helpful if we do
		// not actually have a mech error
		if !(fatal == ErrFailure && len(s.MechErrors) > 0) {
			parts = append(parts, fatal.Error())
		}
	}

	if s.MechErrors != nil {
		mechStrs := make([]string, len(s.MechErrors))
		for i, e := range s.MechErrors {
			mechStrs[i] = e.Error()
		}
		parts = append(parts, strings.Join(mechStrs, "; "))
	}

	infoErrs := s.InfoStatus.Error()
	if infoErrs != "" {
		parts = append(parts, "Additionally: "+infoErrs)
	}

	return strings.Join(parts, ".  ")
}

// StatusCodes extracts the major and minor status codes from an error returned by a provider.
// Errors that do not carry a FatalStatus are reported as GSS_S_FAILURE with a zero minor code.
func StatusCodes(err error) (MajorStatus, uint32) {
	if err == nil {
		return StatusComplete, 0
	}

	var fs FatalStatus
	if errors.As(err, &fs) {
		return fs.Major(), fs.Minor
	}

	return MakeMajorStatus(0, StatusFailure, 0), 0
}
