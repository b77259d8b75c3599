// SPDX-License-Identifier: Apache-2.0

package negotiate

import (
	"fmt"
	"strings"

	gssapi "github.com/golang-auth/go-gssnegotiate"
)

// DefaultSegmentLimit is the default maximum length, in characters, of each status message.
const DefaultSegmentLimit = 512

// a displayer that never returns a zero message context must not loop forever
const maxSegments = 32

// Translator turns provider status codes into diagnostics of the form "<major>, <minor>".
// Each message segment is cut at DefaultSegmentLimit characters unless WithSegmentLimit says
// otherwise, so verbose provider messages can lose their tail.
type Translator struct {
	d     gssapi.StatusDisplayer
	limit int
}

// TranslatorOption configures a Translator.
type TranslatorOption func(t *Translator)

// WithSegmentLimit caps each status message at n characters.  Zero removes the cap.
func WithSegmentLimit(n int) TranslatorOption {
	return func(t *Translator) {
		if n >= 0 {
			t.limit = n
		}
	}
}

// NewTranslator returns a Translator that displays codes with d.
func NewTranslator(d gssapi.StatusDisplayer, opts ...TranslatorOption) *Translator {
	t := &Translator{d: d, limit: DefaultSegmentLimit}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Translate returns the diagnostic for a major and minor status pair.
func Translate(d gssapi.StatusDisplayer, major, minor uint32) string {
	return NewTranslator(d).Translate(major, minor)
}

// Translate displays every message of the major status and of the minor status.  Messages
// of the same code are joined with "; ".
func (t *Translator) Translate(major, minor uint32) string {
	return t.display(major, gssapi.StatusTypeGSS) + ", " + t.display(minor, gssapi.StatusTypeMech)
}

func (t *Translator) display(code uint32, typ gssapi.StatusType) string {
	var segments []string

	var msgCtx uint32
	for len(segments) < maxSegments {
		msg, next, err := t.d.DisplayStatus(code, typ, msgCtx)
		if err != nil {
			break
		}
		segments = append(segments, t.truncate(msg))
		if next == 0 {
			break
		}
		msgCtx = next
	}

	if len(segments) == 0 {
		return fmt.Sprintf("Unknown %s status 0x%08x", typ, code)
	}
	return strings.Join(segments, "; ")
}

func (t *Translator) truncate(s string) string {
	if t.limit == 0 || len(s) <= t.limit {
		return s
	}

	n := 0
	for i := range s {
		if n == t.limit {
			return s[:i]
		}
		n++
	}
	return s
}
