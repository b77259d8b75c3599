// SPDX-License-Identifier: Apache-2.0

package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/golang-auth/go-gssnegotiate/negotiate"
)

// every key needs a default so that AutomaticEnv can find it during Unmarshal
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("kerberos.krb5_conf", "")
	v.SetDefault("kerberos.keytab", "")
	v.SetDefault("kerberos.ccache", "")
	v.SetDefault("kerberos.login", "ccache")
	v.SetDefault("kerberos.principal", "")
	v.SetDefault("kerberos.realm", "")
	v.SetDefault("kerberos.password", "")
	v.SetDefault("kerberos.max_clock_skew", 5*time.Minute)

	v.SetDefault("negotiate.status_segment_limit", negotiate.DefaultSegmentLimit)
	v.SetDefault("negotiate.flags", []string{"mutual", "integ"})
	v.SetDefault("negotiate.lifetime", time.Duration(0))

	v.SetDefault("server.listen", ":4444")
	v.SetDefault("server.service", "host@localhost")
	v.SetDefault("server.io_timeout", 30*time.Second)

	v.SetDefault("http.listen", ":8080")
	v.SetDefault("http.service", "HTTP@localhost")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", ":9090")
}

// Default returns the configuration used when there is no file and no environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	// the defaults always decode
	_ = v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks()))
	return &cfg
}
