// SPDX-License-Identifier: Apache-2.0

// Package krb5 is a pure Go Kerberos V5 GSSAPI provider built on gokrb5.
//
// Initiators obtain service tickets from a credentials cache, a client keytab or a
// password, and send an AP-REQ carrying the RFC 4121 GSS checksum.  Acceptors verify
// AP-REQ messages against a keytab and reply with an AP-REP when the initiator requires
// mutual authentication.  Established contexts protect messages with RFC 4121 wrap tokens.
//
// The provider registers itself under the name "krb5", configured from the KRB5_CONFIG,
// KRB5CCNAME and KRB5_KTNAME environment variables.
package krb5

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jcmturner/gofork/encoding/asn1"
	"github.com/jcmturner/gokrb5/v8/client"
	"github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/credentials"
	"github.com/jcmturner/gokrb5/v8/keytab"

	gssapi "github.com/golang-auth/go-gssnegotiate"
)

// ProviderName is the name the provider is registered under.
const ProviderName = "krb5"

// DefaultMaxClockSkew is the acceptor's default tolerance for initiator clock skew.
const DefaultMaxClockSkew = 5 * time.Minute

func init() {
	gssapi.RegisterProvider(ProviderName, func() (gssapi.Provider, error) {
		return New()
	})
}

// OID returns the Kerberos V5 mechanism OID, 1.2.840.113554.1.2.2.
func OID() asn1.ObjectIdentifier {
	return asn1.ObjectIdentifier{1, 2, 840, 113554, 1, 2, 2}
}

// Provider implements gssapi.Provider for Kerberos V5.
//
// The Kerberos configuration and keytab are loaded on first use.
type Provider struct {
	mu sync.Mutex

	cfg     *config.Config
	cfgFile string
	kt      *keytab.Keytab
	ktFile  string
	ccFile  string

	// initiator login, used instead of the credentials cache when set
	user     string
	realm    string
	password string
	useKT    bool

	maxSkew time.Duration
	logger  *slog.Logger
}

// Option configures a Provider.
type Option func(p *Provider)

// WithConfig supplies a parsed krb5.conf.
func WithConfig(cfg *config.Config) Option {
	return func(p *Provider) {
		p.cfg = cfg
	}
}

// WithConfigFile sets the path of krb5.conf.
func WithConfigFile(path string) Option {
	return func(p *Provider) {
		p.cfgFile = path
	}
}

// WithKeytab supplies a parsed keytab.
func WithKeytab(kt *keytab.Keytab) Option {
	return func(p *Provider) {
		p.kt = kt
	}
}

// WithKeytabFile sets the path of the keytab.
func WithKeytabFile(path string) Option {
	return func(p *Provider) {
		p.ktFile = strings.TrimPrefix(path, "FILE:")
	}
}

// WithCCacheFile sets the path of the initiator's credentials cache.
func WithCCacheFile(path string) Option {
	return func(p *Provider) {
		p.ccFile = strings.TrimPrefix(path, "FILE:")
	}
}

// WithPassword makes initiators log in to the KDC with a password instead of using the
// credentials cache.
func WithPassword(user, realm, password string) Option {
	return func(p *Provider) {
		p.user, p.realm, p.password = user, realm, password
		p.useKT = false
	}
}

// WithClientKeytab makes initiators log in to the KDC with the key for user held in the
// provider's keytab.
func WithClientKeytab(user, realm string) Option {
	return func(p *Provider) {
		p.user, p.realm = user, realm
		p.password = ""
		p.useKT = true
	}
}

// WithMaxClockSkew sets the acceptor's tolerance for initiator clock skew.
func WithMaxClockSkew(d time.Duration) Option {
	return func(p *Provider) {
		p.maxSkew = d
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}

// New returns a provider configured from the environment and opts.
func New(opts ...Option) (*Provider, error) {
	p := &Provider{
		cfgFile: krbConfFile(),
		ktFile:  krbKTFile(),
		ccFile:  krbCCFile(),
		maxSkew: DefaultMaxClockSkew,
		logger:  slog.New(slog.DiscardHandler),
	}

	for _, o := range opts {
		o(p)
	}

	if p.useKT && p.user == "" {
		return nil, fmt.Errorf("krb5: client keytab login needs a user name")
	}

	return p, nil
}

func (p *Provider) Name() string {
	return ProviderName
}

func (p *Provider) krbConfig() (*config.Config, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cfg != nil {
		return p.cfg, nil
	}

	cfg, err := config.Load(p.cfgFile)
	if err != nil {
		return nil, fatal(gssapi.StatusFailure, MinorConfigLoad, fmt.Errorf("%s: %w", p.cfgFile, err))
	}

	p.cfg = cfg
	return cfg, nil
}

func (p *Provider) keytab() (*keytab.Keytab, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.kt != nil {
		return p.kt, nil
	}

	kt, err := keytab.Load(p.ktFile)
	if err != nil {
		return nil, fatal(gssapi.StatusNoCred, MinorKeytabLoad, fmt.Errorf("%s: %w", p.ktFile, err))
	}

	p.kt = kt
	return kt, nil
}

// newClient logs in using the configured initiator identity.  A non-empty user
// overrides the configured user name.
func (p *Provider) newClient(user string) (*client.Client, error) {
	cfg, err := p.krbConfig()
	if err != nil {
		return nil, err
	}

	if user == "" {
		user = p.user
	}
	realm := p.realm
	if realm == "" {
		realm = cfg.LibDefaults.DefaultRealm
	}

	var cl *client.Client
	switch {
	case p.password != "":
		p.logger.Debug("krb5 login with password", "user", user, "realm", realm)
		cl = client.NewWithPassword(user, realm, p.password, cfg, client.DisablePAFXFAST(true))
	case p.useKT:
		kt, err := p.keytab()
		if err != nil {
			return nil, err
		}
		p.logger.Debug("krb5 login with keytab", "user", user, "realm", realm, "keytab", p.ktFile)
		cl = client.NewWithKeytab(user, realm, kt, cfg, client.DisablePAFXFAST(true))
	default:
		ccache, err := credentials.LoadCCache(p.ccFile)
		if err != nil {
			return nil, fatal(gssapi.StatusNoCred, MinorCCacheLoad, fmt.Errorf("%s: %w", p.ccFile, err))
		}
		p.logger.Debug("krb5 login from credentials cache", "ccache", p.ccFile)
		cl, err = client.NewFromCCache(ccache, cfg, client.DisablePAFXFAST(true))
		if err != nil {
			return nil, fatal(gssapi.StatusNoCred, MinorCCacheLoad, err)
		}
	}

	if err := cl.AffirmLogin(); err != nil {
		cl.Destroy()
		return nil, fatal(gssapi.StatusNoCred, MinorLogin, err)
	}

	return cl, nil
}

func krbConfFile() string {
	cfgFile, ok := os.LookupEnv("KRB5_CONFIG")
	if !ok {
		cfgFile = "/etc/krb5.conf"
	}

	// MIT allows a list of files; only the first is read
	cfgFile, _, _ = strings.Cut(cfgFile, ":")
	return cfgFile
}

func krbCCFile() string {
	ccFile, ok := os.LookupEnv("KRB5CCNAME")
	if !ok {
		ccFile = fmt.Sprintf("/tmp/krb5cc_%d", os.Getuid())
	}

	return strings.TrimPrefix(ccFile, "FILE:")
}

func krbKTFile() string {
	ktFile, ok := os.LookupEnv("KRB5_KTNAME")
	if !ok {
		ktFile = "/etc/krb5.keytab"
	}

	return strings.TrimPrefix(ktFile, "FILE:")
}
