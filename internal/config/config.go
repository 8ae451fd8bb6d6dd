// Package config loads the replica and engine settings of replicad.
package config

import (
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	ldapclient "github.com/isometry/replicad/internal/ldap"
)

// Config is the top-level configuration file.
type Config struct {
	Retry    RetryConfig     `yaml:"retry"`
	Kerberos KerberosConfig  `yaml:"kerberos"`
	Replicas []ReplicaConfig `yaml:"replicas"`
}

// RetryConfig bounds how often a change is attempted against a replica that
// reports it is down.
type RetryConfig struct {
	Attempts int `yaml:"attempts" default:"2"`
}

// KerberosConfig holds settings shared by every Kerberos replica.
type KerberosConfig struct {
	Enabled            *bool         `yaml:"enabled" default:"true"`
	Krb5Conf           string        `yaml:"krb5_conf"`
	Realm              string        `yaml:"realm"`
	PrincipalAttribute string        `yaml:"principal_attribute" default:"kerberosName"`
	LookupTimeout      time.Duration `yaml:"lookup_timeout" default:"30s"`
}

// ReplicaConfig describes one replica server.
type ReplicaConfig struct {
	Name               string        `yaml:"name"`
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	UseTLS             bool          `yaml:"use_tls"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	Timeout            time.Duration `yaml:"timeout" default:"30s"`

	AuthMethod   string `yaml:"auth_method" default:"simple"`
	BindDN       string `yaml:"bind_dn"`
	Password     string `yaml:"password"`
	PasswordFile string `yaml:"password_file"`

	Principal string `yaml:"principal"`
	Keytab    string `yaml:"keytab"`
	SPN       string `yaml:"spn"`
}

// DisplayName returns the replica name, falling back to its host.
func (r *ReplicaConfig) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Host
}

// Load reads, defaults and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes, defaults and validates a YAML configuration document.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// KerberosEnabled reports whether ticket-based binds are allowed.
func (c *Config) KerberosEnabled() bool {
	return c.Kerberos.Enabled == nil || *c.Kerberos.Enabled
}

// Validate reports every problem in the configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.Retry.Attempts < 1 {
		errs = append(errs, fmt.Errorf("retry.attempts must be at least 1, got %d", c.Retry.Attempts))
	}
	if c.Kerberos.LookupTimeout < 0 {
		errs = append(errs, errors.New("kerberos.lookup_timeout cannot be negative"))
	}
	if len(c.Replicas) == 0 {
		errs = append(errs, errors.New("at least one replica is required"))
	}

	seen := make(map[string]bool, len(c.Replicas))
	for i := range c.Replicas {
		r := &c.Replicas[i]
		name := r.DisplayName()
		if seen[name] {
			errs = append(errs, fmt.Errorf("replica %q is defined more than once", name))
		}
		seen[name] = true

		if err := r.validate(); err != nil {
			errs = append(errs, fmt.Errorf("replica %d (%s): %w", i, name, err))
		}
	}

	return errors.Join(errs...)
}

func (r *ReplicaConfig) validate() error {
	var errs []error

	if strings.TrimSpace(r.Host) == "" {
		errs = append(errs, errors.New("host is required"))
	}
	if r.Port < 0 || r.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", r.Port))
	}
	if r.Timeout <= 0 {
		errs = append(errs, errors.New("timeout must be positive"))
	}

	if r.BindDN != "" {
		if err := ldapclient.ValidateDNSyntax(r.BindDN); err != nil {
			errs = append(errs, fmt.Errorf("bind_dn: %w", err))
		}
	}

	switch ldapclient.ParseAuthMethod(r.AuthMethod) {
	case ldapclient.AuthMethodSimpleBind:
		if r.BindDN == "" {
			errs = append(errs, errors.New("bind_dn is required for simple authentication"))
		}
		if r.Password != "" && r.PasswordFile != "" {
			errs = append(errs, errors.New("password and password_file are mutually exclusive"))
		}
		if r.PasswordFile != "" {
			if _, err := os.Stat(r.PasswordFile); err != nil {
				errs = append(errs, fmt.Errorf("password_file: %w", err))
			}
		}
	case ldapclient.AuthMethodKerberos:
		if r.Principal == "" && r.BindDN == "" {
			errs = append(errs, errors.New("kerberos authentication requires principal or bind_dn"))
		}
		if r.Keytab != "" {
			if _, err := os.Stat(r.Keytab); err != nil {
				errs = append(errs, fmt.Errorf("keytab: %w", err))
			}
		}
	default:
		errs = append(errs, fmt.Errorf("unknown auth_method %q (want simple or kerberos)", r.AuthMethod))
	}

	return errors.Join(errs...)
}

// Target builds the replica target for r.
func (r *ReplicaConfig) Target() (*ldapclient.ReplicaTarget, error) {
	password := r.Password
	if r.PasswordFile != "" {
		data, err := os.ReadFile(r.PasswordFile)
		if err != nil {
			return nil, fmt.Errorf("read password file: %w", err)
		}
		password = strings.TrimRight(string(data), "\r\n")
	}

	target := &ldapclient.ReplicaTarget{
		Name:        r.DisplayName(),
		Host:        r.Host,
		Port:        r.Port,
		UseTLS:      r.UseTLS,
		Timeout:     r.Timeout,
		AuthMethod:  ldapclient.ParseAuthMethod(r.AuthMethod),
		BindDN:      r.BindDN,
		Password:    password,
		Principal:   r.Principal,
		Keytab:      r.Keytab,
		KerberosSPN: r.SPN,
	}
	if r.UseTLS {
		target.TLS = &tls.Config{
			ServerName:         r.Host,
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: r.InsecureSkipVerify, //nolint:gosec
		}
	}
	return target, nil
}

// Targets builds targets for the named replicas, or for all when names is empty.
func (c *Config) Targets(names ...string) ([]*ldapclient.ReplicaTarget, error) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	var targets []*ldapclient.ReplicaTarget
	for i := range c.Replicas {
		r := &c.Replicas[i]
		if len(names) > 0 && !want[r.DisplayName()] {
			continue
		}
		delete(want, r.DisplayName())

		t, err := r.Target()
		if err != nil {
			return nil, fmt.Errorf("replica %s: %w", r.DisplayName(), err)
		}
		targets = append(targets, t)
	}

	if len(want) > 0 {
		missing := make([]string, 0, len(want))
		for n := range want {
			missing = append(missing, n)
		}
		slices.Sort(missing)
		return nil, fmt.Errorf("unknown replica(s): %s", strings.Join(missing, ", "))
	}
	return targets, nil
}

// SessionOptions returns the session manager settings this configuration implies.
func (c *Config) SessionOptions() []ldapclient.SessionOption {
	opts := []ldapclient.SessionOption{
		ldapclient.WithKerberos(c.KerberosEnabled()),
		ldapclient.WithPrincipalAttribute(c.Kerberos.PrincipalAttribute),
		ldapclient.WithLookupTimeout(c.Kerberos.LookupTimeout),
	}
	if ts := ldapclient.NewTicketSource(c.Kerberos.Krb5Conf, c.Kerberos.Realm); ts != nil {
		opts = append(opts, ldapclient.WithTicketSource(ts))
	}
	return opts
}
