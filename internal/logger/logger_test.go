// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capture redirects log output to a buffer until the test ends
func capture(t *testing.T, lvl, form string) *bytes.Buffer {
	t.Helper()

	mu.RLock()
	origOutput, origFormat, origColor := output, format, useColor
	mu.RUnlock()
	origLevel := level.Level()

	buf := new(bytes.Buffer)
	InitWithWriter(buf, lvl, form)

	t.Cleanup(func() {
		mu.Lock()
		output, format, useColor = origOutput, origFormat, origColor
		mu.Unlock()
		level.Set(origLevel)
		reconfigure()
	})

	return buf
}

func TestLevelFiltering(t *testing.T) {
	var tests = []struct {
		level string
		want  []string
		skip  []string
	}{
		{"DEBUG", []string{"debug msg", "info msg", "warn msg", "error msg"}, nil},
		{"info", []string{"info msg", "warn msg", "error msg"}, []string{"debug msg"}},
		{"WARN", []string{"warn msg", "error msg"}, []string{"debug msg", "info msg"}},
		{"ERROR", []string{"error msg"}, []string{"debug msg", "info msg", "warn msg"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			buf := capture(t, tt.level, "text")

			Debug("debug msg")
			Info("info msg")
			Warn("warn msg")
			Error("error msg")

			out := buf.String()
			for _, s := range tt.want {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.skip {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestTextFormat(t *testing.T) {
	buf := capture(t, "INFO", "text")

	Info("negotiation step", "role", "client", "token_len", 42, "message", "two words")

	line := buf.String()
	assert.Contains(t, line, "[INFO] negotiation step")
	assert.Contains(t, line, "role=client")
	assert.Contains(t, line, "token_len=42")
	assert.Contains(t, line, `message="two words"`)
	assert.True(t, strings.HasSuffix(line, "\n"))
}

func TestJSONFormat(t *testing.T) {
	buf := capture(t, "INFO", "json")

	Info("accepted", "conn", "abc")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "accepted", rec["msg"])
	assert.Equal(t, "abc", rec["conn"])
	assert.Equal(t, "INFO", rec["level"])
}

func TestWithAndGroups(t *testing.T) {
	buf := capture(t, "INFO", "text")

	With("conn", "c1").WithGroup("krb5").Info("hello", "realm", "EXAMPLE.COM", slog.Group("peer", "name", "bob"))

	line := buf.String()
	assert.Contains(t, line, "conn=c1")
	assert.Contains(t, line, "krb5.realm=EXAMPLE.COM")
	assert.Contains(t, line, "krb5.peer.name=bob")
}

func TestSetLevelAppliesToExistingLoggers(t *testing.T) {
	buf := capture(t, "INFO", "text")

	l := Logger()
	l.Debug("hidden")
	require.NoError(t, SetLevel("DEBUG"))
	l.Debug("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestInvalidSettings(t *testing.T) {
	capture(t, "INFO", "text")

	assert.Error(t, SetLevel("LOUD"))
	assert.Equal(t, slog.LevelInfo, level.Level())

	assert.Error(t, SetFormat("xml"))
	assert.Error(t, Init(Config{Level: "LOUD"}))
}

func TestInitFile(t *testing.T) {
	capture(t, "INFO", "text")

	path := filepath.Join(t.TempDir(), "test.log")
	require.NoError(t, Init(Config{Level: "WARN", Format: "text", Output: path}))

	Info("dropped")
	Warn("kept")

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "[WARN] kept")
	assert.NotContains(t, string(b), "dropped")
	assert.NotContains(t, string(b), colorReset)

	assert.Error(t, Init(Config{Output: filepath.Join(t.TempDir(), "missing", "x.log")}))
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("warning")
	assert.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, l)
}
