// SPDX-License-Identifier: Apache-2.0

package http

import (
	"errors"
	"net/http"
	"strings"
)

const scheme = "Negotiate"

var errMultipleChallenges = errors.New("multiple Negotiate challenges in response")

// parseAuthorization returns the token of a "Negotiate <token>" Authorization header.
func parseAuthorization(h http.Header) (token string, ok bool) {
	s, rest, _ := strings.Cut(strings.TrimSpace(h.Get("Authorization")), " ")
	if !strings.EqualFold(s, scheme) {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// negotiateChallenge finds the Negotiate challenge in the WWW-Authenticate headers of a
// response.  A header may hold several comma separated challenges, and the parameters of
// other schemes may themselves contain commas.
func negotiateChallenge(h http.Header) (token string, found bool, err error) {
	for _, v := range h.Values("WWW-Authenticate") {
		for _, c := range splitChallenges(v) {
			s, rest, _ := strings.Cut(c, " ")
			if !strings.EqualFold(s, scheme) {
				continue
			}
			if found {
				return "", false, errMultipleChallenges
			}

			token = strings.TrimSpace(rest)
			if strings.Contains(strings.TrimRight(token, "="), "=") {
				return "", false, errors.New("Negotiate challenge must not have parameters")
			}
			found = true
		}
	}
	return token, found, nil
}

// splitChallenges splits a header value at the commas that start a new challenge: those
// outside quotes and followed by an auth-scheme rather than an auth-param.
func splitChallenges(v string) []string {
	var out []string

	start, inQuotes := 0, false
	for i := 0; i < len(v); i++ {
		switch v[i] {
		case '\\':
			i++
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes && startsScheme(v[i+1:]) {
				if c := strings.TrimSpace(v[start:i]); c != "" {
					out = append(out, c)
				}
				start = i + 1
			}
		}
	}
	if c := strings.TrimSpace(v[start:]); c != "" {
		out = append(out, c)
	}

	return out
}

// startsScheme reports whether the next token of s is an auth-scheme, i.e. not "key=...".
func startsScheme(s string) bool {
	s = strings.TrimLeft(s, " ")
	end := strings.IndexAny(s, " ,")
	if end < 0 {
		end = len(s)
	}
	tok := s[:end]
	return tok != "" && !strings.Contains(tok, "=")
}
