// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gssapi "github.com/golang-auth/go-gssnegotiate"
	"github.com/golang-auth/go-gssnegotiate/gsstest"
	ghttp "github.com/golang-auth/go-gssnegotiate/http"
	"github.com/golang-auth/go-gssnegotiate/internal/config"
	"github.com/golang-auth/go-gssnegotiate/krb5"
	"github.com/golang-auth/go-gssnegotiate/negotiate"
)

// run executes the command line with p as the provider and no configuration file.
func run(t *testing.T, p gssapi.Provider, args ...string) (string, error) {
	t.Helper()

	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	a := &app{newProvider: func(*config.Config, *slog.Logger) (gssapi.Provider, error) {
		return p, nil
	}}
	root := newRootCmd(a)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)

	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, nil, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "gssnegotiate dev\n"), out)
	assert.Contains(t, out, "commit: none")
}

func TestTranslateCommand(t *testing.T) {
	var tests = []struct {
		name  string
		args  []string
		want  string
		error string
	}{
		{
			name: "hex",
			args: []string{"0x00060000", fmt.Sprint(uint32(krb5.MinorIntegrity))},
			want: "A token had an invalid signature, Message integrity check failed\n",
		},
		{
			name: "decimal",
			args: []string{"0", "0"},
			want: "The routine completed successfully, Success\n",
		},
		{
			name:  "bad major",
			args:  []string{"major", "0"},
			error: "invalid major status",
		},
		{
			name:  "bad minor",
			args:  []string{"0", "0x1ffffffff"},
			error: "invalid minor status",
		},
		{
			name:  "unknown provider",
			args:  []string{"0", "0", "--provider", "nope"},
			error: gssapi.ErrProviderNotFound.Error() + " (registered: gsstest, krb5)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, nil, append([]string{"translate"}, tt.args...)...)
			if tt.error != "" {
				assert.ErrorContains(t, err, tt.error)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := run(t, nil, "--log-level", "loud", "translate", "0", "0")
	assert.ErrorContains(t, err, "invalid --log-level")
}

func TestConfigFileMissing(t *testing.T) {
	_, err := run(t, nil, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "translate", "0", "0")
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestClientCommand(t *testing.T) {
	p := gsstest.New()
	addr := startServer(t, p, testService, 5*time.Second)

	out, err := run(t, p, "client", addr, "--service", testService, "-m", "hello", "-m", "a b")
	require.NoError(t, err)
	assert.Equal(t, "authenticated as alice\nhello\na b\n", out)
}

func TestClientCommandDefaultService(t *testing.T) {
	p := gsstest.New()
	// the default configuration names host@localhost for the server
	addr := startServer(t, p, config.Default().Server.Service, 5*time.Second)

	out, err := run(t, p, "client", addr)
	require.NoError(t, err)
	assert.Equal(t, "authenticated as alice\n", out)
}

func TestClientCommandErrors(t *testing.T) {
	p := gsstest.New()
	addr := startServer(t, p, testService, 5*time.Second)

	_, err := run(t, p, "client", addr, "--flags", "mutual,bogus")
	assert.ErrorContains(t, err, "unknown context flags")

	_, err = run(t, p, "client", addr, "--service", "other@example.com")
	assert.ErrorIs(t, err, ErrPeerFailed)

	_, err = run(t, p, "client")
	assert.Error(t, err)
}

func TestHTTPRouter(t *testing.T) {
	p := gsstest.New()
	m, metrics := newMetrics()

	srv := httptest.NewServer(newHTTPRouter(p, "", discard, metrics, negotiate.WithMetrics(m)))
	defer srv.Close()

	// unauthenticated requests are challenged
	resp, err := http.Get(srv.URL + "/hello")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Negotiate", resp.Header.Get("WWW-Authenticate"))

	client := ghttp.NewClient(p, &http.Client{})
	resp, err = client.Get(srv.URL + "/hello")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "Hello, alice\n")
	assert.Contains(t, string(body), "service: HTTP@127.0.0.1\n")
	assert.Regexp(t, `request: \S+`, string(body))

	// metrics are not authenticated
	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `gssnegotiate_handshakes_total{result="success",role="server"} 1`)
}

func TestHTTPRouterWithoutMetrics(t *testing.T) {
	p := gsstest.New()
	srv := httptest.NewServer(newHTTPRouter(p, "HTTP@127.0.0.1", discard, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHTTPGetCommand(t *testing.T) {
	p := gsstest.New()
	srv := httptest.NewServer(newHTTPRouter(p, "HTTP@127.0.0.1", discard, nil))
	defer srv.Close()

	out, err := run(t, p, "http-get", srv.URL+"/", "--mutual")
	require.NoError(t, err)
	assert.Contains(t, out, "Hello, alice\n")

	_, err = run(t, p, "http-get", srv.URL+"/", "--spn", "HTTP@www.example.com")
	assert.ErrorContains(t, err, "401")
}

func TestKrb5Provider(t *testing.T) {
	dir := t.TempDir()
	kc := config.Default().Kerberos
	kc.Krb5Conf = filepath.Join(dir, "krb5.conf")
	kc.Keytab = filepath.Join(dir, "krb5.keytab")
	kc.CCache = "FILE:" + filepath.Join(dir, "ccache")

	cfg := config.Default()
	cfg.Kerberos = kc
	p, err := newKrb5Provider(cfg, discard)
	require.NoError(t, err)
	assert.Equal(t, krb5.ProviderName, p.Name())

	// the keytab is only read when a credential is needed
	_, err = p.AcquireCredential(nil, gssapi.CredUsageAcceptOnly)
	assert.ErrorIs(t, err, gssapi.ErrNoCred)
	assert.ErrorContains(t, err, kc.Keytab)

	cfg.Kerberos.Login = "keytab"
	cfg.Kerberos.Principal = ""
	_, err = newKrb5Provider(cfg, discard)
	assert.ErrorContains(t, err, "needs a user name")

	cfg.Kerberos.Principal = "alice"
	_, err = newKrb5Provider(cfg, discard)
	assert.NoError(t, err)
}

func TestTimeoutConn(t *testing.T) {
	p := gsstest.New()
	addr := startServer(t, p, testService, 5*time.Second)
	conn, c := dial(t, p, addr, testService)

	tc := &timeoutConn{Conn: conn, timeout: time.Second}
	echoes, err := runClient(tc, c, "", []string{"x"}, discard)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, echoes)
}

func TestMain(m *testing.M) {
	// keep the environment from pointing the krb5 provider at real files
	for _, v := range []string{"KRB5_CONFIG", "KRB5CCNAME", "KRB5_KTNAME"} {
		os.Unsetenv(v)
	}
	os.Exit(m.Run())
}
