// Package config wraps the viper singleton used by the CLI and builds
// the immutable Config value handed to the server. CLI code reads
// through the typed getters; server code only ever sees Config.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var v *viper.Viper

// Initialize sets up the viper configuration singleton.
// Should be called once at application startup.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	// Precedence: project .lorevault/config.yaml (walking up from CWD)
	// > ~/.config/lv/config.yaml
	configFileSet := false
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			configPath := filepath.Join(dir, ".lorevault", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
				break
			}
		}
	}
	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			configPath := filepath.Join(configDir, "lv", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	// Environment variables take precedence over the config file.
	// E.g. LV_LISTEN, LV_AUTH_SECRET, LV_ORACLE_MODEL.
	v.SetEnvPrefix("LV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Server
	v.SetDefault("listen", "127.0.0.1:8471")
	v.SetDefault("base", "")
	v.SetDefault("production", false)
	v.SetDefault("watch", false)
	v.SetDefault("shutdown-timeout", "10s")

	// Auth
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.token-ttl", "24h")
	v.SetDefault("auth.demo-ttl", "1h")

	// Oracle / librarian
	v.SetDefault("oracle.model", "claude-sonnet-4-5")
	v.SetDefault("oracle.max-tokens", 4000)
	v.SetDefault("librarian.model", "claude-haiku-4-5")
	v.SetDefault("librarian.max-tokens", 1000)

	// Optional collaborators
	v.SetDefault("codesearch.url", "")
	v.SetDefault("web.enabled", false)

	// CLI client
	v.SetDefault("server", "http://127.0.0.1:8471")
	v.SetDefault("token", "")
	v.SetDefault("tenant", "local-dev")

	_ = v.BindEnv("anthropic-api-key", "ANTHROPIC_API_KEY")

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// Config is the immutable server configuration, built once from viper
// and flags, then threaded through constructors. Tests construct one
// directly.
type Config struct {
	Listen          string
	Base            string
	Production      bool
	Watch           bool
	ShutdownTimeout time.Duration

	AuthSecret string
	TokenTTL   time.Duration
	DemoTTL    time.Duration

	AnthropicAPIKey   string
	OracleModel       string
	OracleMaxTokens   int
	LibrarianModel    string
	LibrarianMaxTok   int
	CodeSearchURL     string
	WebToolsEnabled   bool
}

// Load builds a Config from the current viper state.
func Load() Config {
	return Config{
		Listen:          GetString("listen"),
		Base:            GetString("base"),
		Production:      GetBool("production"),
		Watch:           GetBool("watch"),
		ShutdownTimeout: GetDuration("shutdown-timeout"),
		AuthSecret:      GetString("auth.secret"),
		TokenTTL:        GetDuration("auth.token-ttl"),
		DemoTTL:         GetDuration("auth.demo-ttl"),
		AnthropicAPIKey: GetString("anthropic-api-key"),
		OracleModel:     GetString("oracle.model"),
		OracleMaxTokens: GetInt("oracle.max-tokens"),
		LibrarianModel:  GetString("librarian.model"),
		LibrarianMaxTok: GetInt("librarian.max-tokens"),
		CodeSearchURL:   GetString("codesearch.url"),
		WebToolsEnabled: GetBool("web.enabled"),
	}
}

// StateDir returns the server state directory under base
// (index DB, lock file, logs).
func (c Config) StateDir() string {
	return filepath.Join(c.Base, ".lorevault")
}

// DBPath returns the index database path.
func (c Config) DBPath() string {
	return filepath.Join(c.StateDir(), "index.db")
}

// GetString retrieves a string configuration value.
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value.
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt retrieves an integer configuration value.
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration retrieves a duration configuration value.
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// Set sets a configuration value. Used by flag handling in cmd/lv.
func Set(key string, value any) {
	if v != nil {
		v.Set(key, value)
	}
}
