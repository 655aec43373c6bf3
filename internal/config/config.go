package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"skillforge/internal/utils"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "SKILLFORGE_"

const DefaultServer = "http://localhost:8000"

// Config holds the client settings. Precedence, lowest first: defaults,
// YAML file, SKILLFORGE_* environment, command-line flags.
type Config struct {
	// Server is the backend base URL; endpoint paths carry the /api prefix.
	Server string `yaml:"server" env:"SERVER"`
	// Timeout bounds each HTTP request. Zero means no timeout.
	Timeout       time.Duration `yaml:"timeout" env:"TIMEOUT"`
	LogFile       string        `yaml:"log_file" env:"LOG_FILE"`
	WalletPath    string        `yaml:"wallet_path" env:"WALLET_PATH"`
	WalletKeyPath string        `yaml:"wallet_key_path" env:"WALLET_KEY_PATH"`
	// IssuerKeyPath points at the backend's PEM public key. When set, issued
	// credentials are signature-checked before display.
	IssuerKeyPath string `yaml:"issuer_key_path" env:"ISSUER_KEY_PATH"`
	NoColor       bool   `yaml:"no_color" env:"NO_COLOR"`
}

// Default returns the built-in settings rooted at dir.
func Default(dir string) Config {
	return Config{
		Server:        DefaultServer,
		LogFile:       filepath.Join(dir, "client.log"),
		WalletPath:    filepath.Join(dir, "wallet.json.enc"),
		WalletKeyPath: filepath.Join(dir, "wallet.key"),
	}
}

// DefaultPath is the config file location when --config is not given.
func DefaultPath() string {
	return filepath.Join(utils.GetAppDir(), "config.yaml")
}

// Load reads the YAML file at path over the defaults and applies environment
// overrides. A missing file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default(utils.GetAppDir())

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Server = strings.TrimRight(strings.TrimSpace(c.Server), "/")
	c.LogFile = utils.ExpandHome(c.LogFile)
	c.WalletPath = utils.ExpandHome(c.WalletPath)
	c.WalletKeyPath = utils.ExpandHome(c.WalletKeyPath)
	c.IssuerKeyPath = utils.ExpandHome(c.IssuerKeyPath)
}

// Validate rejects settings the client cannot run with.
func (c *Config) Validate() error {
	if c.Server == "" {
		return errors.New("config: server must not be empty")
	}
	if !strings.HasPrefix(c.Server, "http://") && !strings.HasPrefix(c.Server, "https://") {
		return fmt.Errorf("config: server %q must be an http(s) URL", c.Server)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("config: timeout %s must not be negative", c.Timeout)
	}
	return nil
}

// OverrideServer applies a --server flag value when one was given.
func (c *Config) OverrideServer(server string) error {
	if server == "" {
		return nil
	}
	c.Server = strings.TrimRight(strings.TrimSpace(server), "/")
	return c.Validate()
}
