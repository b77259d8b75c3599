// SPDX-License-Identifier: Apache-2.0

package http

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAuthorization(t *testing.T) {
	var tests = []struct {
		header string
		token  string
		ok     bool
	}{
		{"", "", false},
		{"Basic dXNlcjpwYXNz", "", false},
		{"Negotiate", "", true},
		{"Negotiate YIIB", "YIIB", true},
		{"negotiate  YIIB ", "YIIB", true},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			h := http.Header{}
			if tt.header != "" {
				h.Set("Authorization", tt.header)
			}
			token, ok := parseAuthorization(h)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.token, token)
		})
	}
}

func TestNegotiateChallenge(t *testing.T) {
	var tests = []struct {
		name    string
		headers []string
		token   string
		found   bool
		wantErr bool
	}{
		{"none", nil, "", false, false},
		{"basic only", []string{`Basic realm="Dev", charset="UTF-8"`}, "", false, false},
		{"bare", []string{"Negotiate"}, "", true, false},
		{"token with padding", []string{"Negotiate oYGbMIGYoAMKAQA="}, "oYGbMIGYoAMKAQA=", true, false},
		{"after basic", []string{`Basic realm="a, b", charset="UTF-8", Negotiate abc==`}, "abc==", true, false},
		{"before basic", []string{`Negotiate abc, Basic realm="x"`}, "abc", true, false},
		{"separate headers", []string{`Basic realm="x"`, "negotiate abc"}, "abc", true, false},
		{"two challenges", []string{"Negotiate a", "Negotiate b"}, "", false, true},
		{"parameters", []string{`Negotiate realm="x"`}, "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for _, v := range tt.headers {
				h.Add("WWW-Authenticate", v)
			}

			token, found, err := negotiateChallenge(h)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.token, token)
		})
	}
}

func TestSplitChallenges(t *testing.T) {
	got := splitChallenges(`Digest realm="x", qop="auth,auth-int", nonce="n", Negotiate, Basic realm="y\", z"`)
	assert.Equal(t, []string{
		`Digest realm="x", qop="auth,auth-int", nonce="n"`,
		"Negotiate",
		`Basic realm="y\", z"`,
	}, got)
}
