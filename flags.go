// SPDX-License-Identifier: Apache-2.0

package gssapi

import "strings"

type ContextFlag uint32

// GSS-API context flags assigned numbers.
const (
	ContextFlagDeleg    ContextFlag = 1 << iota // delegate credentials
	ContextFlagMutual                           // request remote peer authenticates itself
	ContextFlagReplay                           // enable replay detection for signed/sealed messages
	ContextFlagSequence                         // enable detection of out of sequence signed/sealed messages
	ContextFlagConf                             // confidentiality available
	ContextFlagInteg                            // integrity available
	ContextFlagAnon                             // do not reveal the initiator's identity to the acceptor
)

// FlagList returns the individual flags set in f, lowest first
func FlagList(f ContextFlag) (fl []ContextFlag) {
	t := ContextFlag(1)
	for i := 0; i < 32; i++ {
		if f&t != 0 {
			fl = append(fl, t)
		}

		t <<= 1
	}

	return
}

func flagName(f ContextFlag) string {
	switch f {
	case ContextFlagDeleg:
		return "Delegation"
	case ContextFlagMutual:
		return "Mutual authentication"
	case ContextFlagReplay:
		return "Message replay detection"
	case ContextFlagSequence:
		return "Out of sequence message detection"
	case ContextFlagConf:
		return "Confidentiality"
	case ContextFlagInteg:
		return "Integrity"
	case ContextFlagAnon:
		return "Anonymous"
	}

	return "Unknown"
}

func (f ContextFlag) String() string {
	names := []string{}
	for _, fl := range FlagList(f) {
		names = append(names, flagName(fl))
	}
	return strings.Join(names, ", ")
}

var flagsByName = map[string]ContextFlag{
	"deleg":    ContextFlagDeleg,
	"mutual":   ContextFlagMutual,
	"replay":   ContextFlagReplay,
	"sequence": ContextFlagSequence,
	"conf":     ContextFlagConf,
	"integ":    ContextFlagInteg,
	"anon":     ContextFlagAnon,
}

// ParseFlags converts short flag names (deleg, mutual, replay, sequence, conf, integ, anon)
// into a flag set.  Unknown names are reported in the returned slice.
func ParseFlags(names []string) (f ContextFlag, unknown []string) {
	for _, n := range names {
		fl, ok := flagsByName[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			unknown = append(unknown, n)
			continue
		}
		f |= fl
	}
	return
}
