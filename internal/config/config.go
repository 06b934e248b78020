package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultListenAddr   = "0.0.0.0:9000"
	DefaultLogFormat    = "text"
	DefaultMaxBody      = int64(25 * 1024 * 1024 * 1024)
	DefaultMaxHeader    = 1 << 20 // 1 MiB
	DefaultHealthLive   = "/healthz"
	DefaultHealthReady  = "/readyz"
	DefaultMetricsPath  = "/metrics"
	DefaultTLSMode      = "self_signed"
	DefaultClockSkewSec = 900
)

var allowedTLSModes = map[string]struct{}{
	"self_signed": {},
	"manual":      {},
}

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Auth    AuthConfig    `yaml:"auth"`
	TLS     TLSConfig     `yaml:"tls"`
	Health  HealthConfig  `yaml:"health"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type ServerConfig struct {
	ListenAddress  string `yaml:"listen_address"`
	LogFormat      string `yaml:"log_format"`
	MaxBodyBytes   int64  `yaml:"max_body_bytes"`
	MaxHeaderBytes int    `yaml:"max_header_bytes"`
}

type StorageConfig struct {
	DataDir              string                            `yaml:"data_dir"`
	MaxObjectBytes       int64                             `yaml:"max_object_bytes"`
	MultipartMaintenance StorageMultipartMaintenanceConfig `yaml:"multipart_maintenance"`
}

type StorageMultipartMaintenanceConfig struct {
	Enabled              bool `yaml:"enabled"`
	StartupSweep         bool `yaml:"startup_sweep"`
	SweepIntervalSeconds int  `yaml:"sweep_interval_seconds"`
	StaleAfterSeconds    int  `yaml:"stale_after_seconds"`
	MaxRemovalsPerSweep  int  `yaml:"max_removals_per_sweep"`
}

type AuthConfig struct {
	ClockSkewToleranceSeconds int                `yaml:"clock_skew_tolerance_seconds"`
	Credentials               []CredentialConfig `yaml:"credentials"`
}

type CredentialConfig struct {
	Name      string `yaml:"name"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

type TLSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Mode    string `yaml:"mode"`

	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	SelfSigned TLSSelfSignedConfig `yaml:"self_signed"`
}

type TLSSelfSignedConfig struct {
	CommonName string `yaml:"common_name"`
	ValidDays  int    `yaml:"valid_days"`
}

type HealthConfig struct {
	Enabled   bool   `yaml:"enabled"`
	PathLive  string `yaml:"path_live"`
	PathReady string `yaml:"path_ready"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddress:  DefaultListenAddr,
			LogFormat:      DefaultLogFormat,
			MaxBodyBytes:   DefaultMaxBody,
			MaxHeaderBytes: DefaultMaxHeader,
		},
		Storage: StorageConfig{
			MaxObjectBytes: DefaultMaxBody,
			MultipartMaintenance: StorageMultipartMaintenanceConfig{
				Enabled:              true,
				StartupSweep:         true,
				SweepIntervalSeconds: 300,
				StaleAfterSeconds:    86400,
				MaxRemovalsPerSweep:  0,
			},
		},
		Auth: AuthConfig{
			ClockSkewToleranceSeconds: DefaultClockSkewSec,
		},
		TLS: TLSConfig{
			Mode: DefaultTLSMode,
			SelfSigned: TLSSelfSignedConfig{
				CommonName: "localhost",
				ValidDays:  365,
			},
		},
		Health: HealthConfig{
			Enabled:   true,
			PathLive:  DefaultHealthLive,
			PathReady: DefaultHealthReady,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    DefaultMetricsPath,
		},
	}
}

func LoadFile(path string) (Config, error) {
	cfg := Default()

	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", path, err)
	}

	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %q: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	if c.Server.ListenAddress == "" {
		errs = append(errs, errors.New("config validation: server.listen_address is required"))
	}
	if c.Server.LogFormat != "text" && c.Server.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("config validation: server.log_format must be one of [text json], got %q", c.Server.LogFormat))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("config validation: server.max_body_bytes must be > 0"))
	}
	if c.Server.MaxHeaderBytes <= 0 {
		errs = append(errs, errors.New("config validation: server.max_header_bytes must be > 0"))
	}
	if c.Storage.DataDir == "" {
		errs = append(errs, errors.New("config validation: storage.data_dir is required"))
	}
	if c.Storage.MaxObjectBytes <= 0 {
		errs = append(errs, errors.New("config validation: storage.max_object_bytes must be > 0"))
	}
	if c.Storage.MultipartMaintenance.Enabled {
		if c.Storage.MultipartMaintenance.SweepIntervalSeconds <= 0 {
			errs = append(errs, errors.New("config validation: storage.multipart_maintenance.sweep_interval_seconds must be > 0 when storage.multipart_maintenance.enabled=true"))
		}
		if c.Storage.MultipartMaintenance.StaleAfterSeconds <= 0 {
			errs = append(errs, errors.New("config validation: storage.multipart_maintenance.stale_after_seconds must be > 0 when storage.multipart_maintenance.enabled=true"))
		}
		if c.Storage.MultipartMaintenance.MaxRemovalsPerSweep < 0 {
			errs = append(errs, errors.New("config validation: storage.multipart_maintenance.max_removals_per_sweep must be >= 0 when storage.multipart_maintenance.enabled=true"))
		}
	}

	errs = append(errs, c.validateAuth()...)
	errs = append(errs, c.validateTLS()...)
	errs = append(errs, c.validateHealth()...)
	errs = append(errs, c.validateMetrics()...)

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (c Config) validateAuth() []error {
	var errs []error
	if c.Auth.ClockSkewToleranceSeconds < 0 {
		errs = append(errs, errors.New("config validation: auth.clock_skew_tolerance_seconds must be >= 0"))
	}
	if len(c.Auth.Credentials) == 0 {
		errs = append(errs, errors.New("config validation: auth.credentials must list at least one credential"))
	}
	seen := make(map[string]struct{}, len(c.Auth.Credentials))
	for i, cred := range c.Auth.Credentials {
		if cred.Name == "" {
			errs = append(errs, fmt.Errorf("config validation: auth.credentials[%d].name is required", i))
		}
		if cred.AccessKey == "" {
			errs = append(errs, fmt.Errorf("config validation: auth.credentials[%d].access_key is required", i))
		}
		if cred.SecretKey == "" {
			errs = append(errs, fmt.Errorf("config validation: auth.credentials[%d].secret_key is required", i))
		}
		if cred.AccessKey != "" {
			if _, dup := seen[cred.AccessKey]; dup {
				errs = append(errs, fmt.Errorf("config validation: auth.credentials[%d].access_key %q is duplicated", i, cred.AccessKey))
			}
			seen[cred.AccessKey] = struct{}{}
		}
	}
	return errs
}

func (c Config) validateTLS() []error {
	var errs []error
	if !c.TLS.Enabled {
		return errs
	}

	if _, ok := allowedTLSModes[c.TLS.Mode]; !ok {
		errs = append(errs, fmt.Errorf("config validation: tls.mode must be one of [self_signed manual], got %q", c.TLS.Mode))
		return errs
	}

	switch c.TLS.Mode {
	case "manual":
		if c.TLS.CertFile == "" {
			errs = append(errs, errors.New("config validation: tls.cert_file is required when tls.mode=manual"))
		}
		if c.TLS.KeyFile == "" {
			errs = append(errs, errors.New("config validation: tls.key_file is required when tls.mode=manual"))
		}
		if c.TLS.CertFile != "" {
			if statErr := validateReadableFile(c.TLS.CertFile); statErr != nil {
				errs = append(errs, fmt.Errorf("config validation: tls.cert_file: %w", statErr))
			}
		}
		if c.TLS.KeyFile != "" {
			if statErr := validateReadableFile(c.TLS.KeyFile); statErr != nil {
				errs = append(errs, fmt.Errorf("config validation: tls.key_file: %w", statErr))
			}
		}
	case "self_signed":
		if c.TLS.SelfSigned.CommonName == "" {
			errs = append(errs, errors.New("config validation: tls.self_signed.common_name is required when tls.mode=self_signed"))
		}
		if c.TLS.SelfSigned.ValidDays <= 0 {
			errs = append(errs, errors.New("config validation: tls.self_signed.valid_days must be > 0 when tls.mode=self_signed"))
		}
	}

	return errs
}

func (c Config) validateHealth() []error {
	if !c.Health.Enabled {
		return nil
	}
	var errs []error
	if !strings.HasPrefix(c.Health.PathLive, "/") {
		errs = append(errs, errors.New("config validation: health.path_live must start with '/'"))
	}
	if !strings.HasPrefix(c.Health.PathReady, "/") {
		errs = append(errs, errors.New("config validation: health.path_ready must start with '/'"))
	}
	if c.Health.PathLive == c.Health.PathReady {
		errs = append(errs, errors.New("config validation: health.path_live and health.path_ready must be different"))
	}
	return errs
}

func (c Config) validateMetrics() []error {
	if !c.Metrics.Enabled {
		return nil
	}
	var errs []error
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, errors.New("config validation: metrics.path must start with '/'"))
	}
	return errs
}

func validateReadableFile(path string) error {
	cleaned := filepath.Clean(path)
	info, err := os.Stat(cleaned)
	if err != nil {
		return fmt.Errorf("%q is not readable: %w", cleaned, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%q points to a directory", cleaned)
	}
	return nil
}
