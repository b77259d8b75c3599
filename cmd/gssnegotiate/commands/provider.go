// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"log/slog"

	gssapi "github.com/golang-auth/go-gssnegotiate"
	"github.com/golang-auth/go-gssnegotiate/internal/config"
	"github.com/golang-auth/go-gssnegotiate/krb5"
)

// krb5Options maps the kerberos section of the configuration to provider options.
// Unset paths keep the provider's environment defaults.
func krb5Options(kc config.KerberosConfig, l *slog.Logger) []krb5.Option {
	opts := []krb5.Option{
		krb5.WithMaxClockSkew(kc.MaxClockSkew),
		krb5.WithLogger(l),
	}

	if kc.Krb5Conf != "" {
		opts = append(opts, krb5.WithConfigFile(kc.Krb5Conf))
	}
	if kc.Keytab != "" {
		opts = append(opts, krb5.WithKeytabFile(kc.Keytab))
	}
	if kc.CCache != "" {
		opts = append(opts, krb5.WithCCacheFile(kc.CCache))
	}

	switch kc.Login {
	case "password":
		opts = append(opts, krb5.WithPassword(kc.Principal, kc.Realm, kc.Password))
	case "keytab":
		opts = append(opts, krb5.WithClientKeytab(kc.Principal, kc.Realm))
	}

	return opts
}

func newKrb5Provider(cfg *config.Config, l *slog.Logger) (gssapi.Provider, error) {
	p, err := krb5.New(krb5Options(cfg.Kerberos, l)...)
	if err != nil {
		return nil, err
	}
	return p, nil
}
