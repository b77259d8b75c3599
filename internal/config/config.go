// SPDX-License-Identifier: Apache-2.0

// Package config loads the gssnegotiate command configuration.
//
// Precedence, highest first: GSSNEGOTIATE_* environment variables, the configuration
// file, then the defaults.  Nested keys map to variables with "." replaced by "_", so
// kerberos.max_clock_skew is GSSNEGOTIATE_KERBEROS_MAX_CLOCK_SKEW.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	gssapi "github.com/golang-auth/go-gssnegotiate"
)

const EnvPrefix = "GSSNEGOTIATE"

type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Kerberos  KerberosConfig  `mapstructure:"kerberos"`
	Negotiate NegotiateConfig `mapstructure:"negotiate"`
	Server    ServerConfig    `mapstructure:"server"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR"`
	Format string `mapstructure:"format" validate:"required,oneof=text json"`
	Output string `mapstructure:"output" validate:"required"`
}

// KerberosConfig configures the krb5 provider.  Empty paths fall back to KRB5_CONFIG,
// KRB5_KTNAME and KRB5CCNAME, then to the MIT defaults.
type KerberosConfig struct {
	Krb5Conf string `mapstructure:"krb5_conf"`
	Keytab   string `mapstructure:"keytab"`
	CCache   string `mapstructure:"ccache"`

	// Login selects how initiators get a TGT: from the credentials cache, with a
	// password, or with the principal's key from the keytab.
	Login     string `mapstructure:"login" validate:"oneof=ccache password keytab"`
	Principal string `mapstructure:"principal" validate:"required_unless=Login ccache"`
	Realm     string `mapstructure:"realm"`
	Password  string `mapstructure:"password" validate:"required_if=Login password"`

	MaxClockSkew time.Duration `mapstructure:"max_clock_skew" validate:"gte=0"`
}

type NegotiateConfig struct {
	StatusSegmentLimit int           `mapstructure:"status_segment_limit" validate:"gte=0"`
	Flags              []string      `mapstructure:"flags" validate:"dive,gssflag"`
	Lifetime           time.Duration `mapstructure:"lifetime" validate:"gte=0"`
}

// ContextFlags returns the request flags named in Flags.
func (n NegotiateConfig) ContextFlags() gssapi.ContextFlag {
	f, _ := gssapi.ParseFlags(n.Flags)
	return f
}

// ServerConfig configures the TCP server.  An empty Service accepts any service
// principal in the keytab.
type ServerConfig struct {
	Listen    string        `mapstructure:"listen" validate:"required,listenaddr"`
	Service   string        `mapstructure:"service"`
	IOTimeout time.Duration `mapstructure:"io_timeout" validate:"gt=0"`
}

type HTTPConfig struct {
	Listen  string `mapstructure:"listen" validate:"required,listenaddr"`
	Service string `mapstructure:"service"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen" validate:"required_if=Enabled true,omitempty,listenaddr"`
}

// Load reads the configuration file at path.  An empty path searches ./gssnegotiate.yaml
// and $XDG_CONFIG_HOME/gssnegotiate/gssnegotiate.yaml; finding neither is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setupViper(v, path)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	normalize(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setupViper(v *viper.Viper, path string) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		return
	}

	v.SetConfigName("gssnegotiate")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(configDir())
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "gssnegotiate")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "gssnegotiate")
}

// decodeHooks parses durations like "30s" and comma separated lists from the environment.
func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

func normalize(cfg *Config) {
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)
	cfg.Kerberos.Login = strings.ToLower(cfg.Kerberos.Login)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// RegisterValidation only fails for an empty tag or a nil func
	_ = v.RegisterValidation("gssflag", func(fl validator.FieldLevel) bool {
		_, unknown := gssapi.ParseFlags([]string{fl.Field().String()})
		return len(unknown) == 0
	})
	_ = v.RegisterValidation("listenaddr", func(fl validator.FieldLevel) bool {
		_, _, err := net.SplitHostPort(fl.Field().String())
		return err == nil
	})

	return v
}

// Validate checks the struct tag constraints of cfg.
func Validate(cfg *Config) error {
	return validate.Struct(cfg)
}
