// Package config handles configuration loading and management for conduct.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for conduct.
type Config struct {
	LLM          LLMConfig          `mapstructure:"llm"`
	Engine       EngineConfig       `mapstructure:"engine"`
	Mission      MissionConfig      `mapstructure:"mission"`
	Store        StoreConfig        `mapstructure:"store"`
	Guard        GuardConfig        `mapstructure:"guard"`
	Capabilities CapabilitiesConfig `mapstructure:"capabilities"`
	Selector     SelectorConfig     `mapstructure:"selector"`
	Upload       UploadConfig       `mapstructure:"upload"`
	Log          LogConfig          `mapstructure:"log"`
}

// LLMConfig holds text-generation provider settings.
type LLMConfig struct {
	// Provider is "anthropic", "gemini", "router" or "none".
	Provider  string          `mapstructure:"provider"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	// RoutesPath optionally replaces the built-in routing table.
	RoutesPath string `mapstructure:"routes_path"`
	// CostTier is the router preference: cheap, mid or premium.
	CostTier string `mapstructure:"cost_tier"`
	// Timeout bounds every completion call.
	Timeout time.Duration `mapstructure:"timeout"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	Bedrock    bool   `mapstructure:"bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// GeminiConfig holds Gemini API settings.
type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// EngineConfig holds execution settings.
type EngineConfig struct {
	PoolSize      int           `mapstructure:"pool_size"`
	WorkerTimeout time.Duration `mapstructure:"worker_timeout"`
	ReportsDir    string        `mapstructure:"reports_dir"`
}

// MissionConfig holds continuous-loop settings.
type MissionConfig struct {
	MaxCycles int           `mapstructure:"max_cycles"`
	Cooldown  time.Duration `mapstructure:"cooldown"`
	// Verify corroborates the objective marker with the reasoning verifier.
	Verify bool `mapstructure:"verify"`
	// SignalsDir is watched for the stop file.
	SignalsDir string `mapstructure:"signals_dir"`
}

// StoreConfig holds session persistence settings.
type StoreConfig struct {
	// Driver is "sqlite" (pure Go), "sqlite3" (cgo), "files" or "memory".
	Driver string `mapstructure:"driver"`
	// Path is the database file. Empty uses the XDG data directory.
	Path string `mapstructure:"path"`
	// MirrorDir, when set, receives a JSON copy of every session.
	MirrorDir string `mapstructure:"mirror_dir"`
}

// GuardConfig holds restricted-target settings.
type GuardConfig struct {
	// Path is an optional deny-list YAML merged over the defaults.
	Path string `mapstructure:"path"`
}

// CapabilitiesConfig holds capability directory settings.
type CapabilitiesConfig struct {
	// CatalogPath is an optional YAML catalog merged over the built-in one.
	CatalogPath string `mapstructure:"catalog_path"`
}

// SelectorConfig holds worker selection settings.
type SelectorConfig struct {
	// RulesPath optionally replaces the built-in keyword rules.
	RulesPath string `mapstructure:"rules_path"`
}

// UploadConfig holds report upload settings for S3-compatible storage.
type UploadConfig struct {
	Bucket          string `mapstructure:"bucket"`
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Prefix          string `mapstructure:"prefix"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// Keys accepted by `conduct config set`.
var settableKeys = map[string]bool{}

func init() {
	v := viper.New()
	setDefaults(v)
	for _, k := range v.AllKeys() {
		settableKeys[k] = true
	}
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, GEMINI_API_KEY, CONDUCT_R2_*)
// 2. Project config (.conduct.yaml in current directory or parent)
// 3. User config (~/.config/conduct/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	bindEnv(v)
	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	bindEnv(v)
	return unmarshal(v)
}

func bindEnv(v *viper.Viper) {
	v.BindEnv("llm.anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("llm.gemini.api_key", "GEMINI_API_KEY")
	v.BindEnv("upload.bucket", "CONDUCT_R2_BUCKET")
	v.BindEnv("upload.endpoint", "CONDUCT_R2_ENDPOINT")
	v.BindEnv("upload.access_key_id", "CONDUCT_R2_ACCESS_KEY_ID")
	v.BindEnv("upload.secret_access_key", "CONDUCT_R2_SECRET_ACCESS_KEY")
	v.BindEnv("log.level", "CONDUCT_LOG_LEVEL")
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references in secrets.
	cfg.LLM.Anthropic.APIKey = expandEnv(cfg.LLM.Anthropic.APIKey)
	cfg.LLM.Gemini.APIKey = expandEnv(cfg.LLM.Gemini.APIKey)
	cfg.Upload.AccessKeyID = expandEnv(cfg.Upload.AccessKeyID)
	cfg.Upload.SecretAccessKey = expandEnv(cfg.Upload.SecretAccessKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	var errs []error
	switch c.LLM.Provider {
	case "anthropic", "gemini", "router", "none":
	default:
		errs = append(errs, fmt.Errorf("llm.provider: unknown provider %q", c.LLM.Provider))
	}
	switch c.Store.Driver {
	case "sqlite", "sqlite3", "files", "memory":
	default:
		errs = append(errs, fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver))
	}
	if c.Engine.PoolSize < 1 {
		errs = append(errs, fmt.Errorf("engine.pool_size: must be >= 1, got %d", c.Engine.PoolSize))
	}
	if c.Mission.MaxCycles < 1 {
		errs = append(errs, fmt.Errorf("mission.max_cycles: must be >= 1, got %d", c.Mission.MaxCycles))
	}
	return errors.Join(errs...)
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	return SaveToPath(cfg, GetUserConfigPath())
}

// SaveToPath writes the configuration to path.
func SaveToPath(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	for key, value := range cfg.settings() {
		v.Set(key, value)
	}
	return v.WriteConfig()
}

// settings flattens cfg into viper keys. Durations are written as strings.
func (c *Config) settings() map[string]any {
	return map[string]any{
		"llm.provider":              c.LLM.Provider,
		"llm.anthropic.api_key":     c.LLM.Anthropic.APIKey,
		"llm.anthropic.model":       c.LLM.Anthropic.Model,
		"llm.anthropic.bedrock":     c.LLM.Anthropic.Bedrock,
		"llm.anthropic.aws_region":  c.LLM.Anthropic.AWSRegion,
		"llm.anthropic.aws_profile": c.LLM.Anthropic.AWSProfile,
		"llm.gemini.api_key":        c.LLM.Gemini.APIKey,
		"llm.gemini.model":          c.LLM.Gemini.Model,
		"llm.routes_path":           c.LLM.RoutesPath,
		"llm.cost_tier":             c.LLM.CostTier,
		"llm.timeout":               c.LLM.Timeout.String(),
		"engine.pool_size":          c.Engine.PoolSize,
		"engine.worker_timeout":     c.Engine.WorkerTimeout.String(),
		"engine.reports_dir":        c.Engine.ReportsDir,
		"mission.max_cycles":        c.Mission.MaxCycles,
		"mission.cooldown":          c.Mission.Cooldown.String(),
		"mission.verify":            c.Mission.Verify,
		"mission.signals_dir":       c.Mission.SignalsDir,
		"store.driver":              c.Store.Driver,
		"store.path":                c.Store.Path,
		"store.mirror_dir":          c.Store.MirrorDir,
		"guard.path":                c.Guard.Path,
		"capabilities.catalog_path": c.Capabilities.CatalogPath,
		"selector.rules_path":       c.Selector.RulesPath,
		"upload.bucket":             c.Upload.Bucket,
		"upload.endpoint":           c.Upload.Endpoint,
		"upload.region":             c.Upload.Region,
		"upload.access_key_id":      c.Upload.AccessKeyID,
		"upload.secret_access_key":  c.Upload.SecretAccessKey,
		"upload.prefix":             c.Upload.Prefix,
		"log.level":                 c.Log.Level,
		"log.format":                c.Log.Format,
		"log.output":                c.Log.Output,
	}
}

// Keys returns every settable key in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(settableKeys))
	for k := range settableKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the value of key as a string. Secrets are masked.
func (c *Config) Get(key string) (string, error) {
	value, ok := c.settings()[key]
	if !ok {
		return "", fmt.Errorf("unknown config key %q", key)
	}
	s := fmt.Sprint(value)
	if secretKeys[key] && s != "" {
		s = MaskAPIKey(s)
	}
	return s, nil
}

var secretKeys = map[string]bool{
	"llm.anthropic.api_key":    true,
	"llm.gemini.api_key":       true,
	"upload.secret_access_key": true,
}

// Set updates a single key in the user config file, keeping the rest.
func Set(key string, value string) error {
	return SetAtPath(GetUserConfigPath(), key, value)
}

// SetAtPath updates a single key in the config file at path.
func SetAtPath(path, key, value string) error {
	if !settableKeys[key] {
		return fmt.Errorf("unknown config key %q", key)
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config from %s: %w", path, err)
		}
	}
	v.Set(key, value)

	cfg, err := unmarshal(v)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return SaveToPath(cfg, path)
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.anthropic.api_key", "")
	v.SetDefault("llm.anthropic.model", "")
	v.SetDefault("llm.anthropic.bedrock", false)
	v.SetDefault("llm.anthropic.aws_region", "")
	v.SetDefault("llm.anthropic.aws_profile", "")
	v.SetDefault("llm.gemini.api_key", "")
	v.SetDefault("llm.gemini.model", "")
	v.SetDefault("llm.routes_path", "")
	v.SetDefault("llm.cost_tier", "mid")
	v.SetDefault("llm.timeout", "90s")

	v.SetDefault("engine.pool_size", 1)
	v.SetDefault("engine.worker_timeout", "2m")
	v.SetDefault("engine.reports_dir", "reports")

	v.SetDefault("mission.max_cycles", 5)
	v.SetDefault("mission.cooldown", "5s")
	v.SetDefault("mission.verify", false)
	v.SetDefault("mission.signals_dir", filepath.Join(".conduct", "signals"))

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "")
	v.SetDefault("store.mirror_dir", "")

	v.SetDefault("guard.path", "")
	v.SetDefault("capabilities.catalog_path", "")
	v.SetDefault("selector.rules_path", "")

	v.SetDefault("upload.bucket", "")
	v.SetDefault("upload.endpoint", "")
	v.SetDefault("upload.region", "auto")
	v.SetDefault("upload.access_key_id", "")
	v.SetDefault("upload.secret_access_key", "")
	v.SetDefault("upload.prefix", "reports")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "")
}

// getUserConfigDir returns the XDG config directory for conduct.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "conduct")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "conduct")
	}
	return filepath.Join(home, ".config", "conduct")
}

// findProjectConfig searches for .conduct.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".conduct.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider: "anthropic",
			CostTier: "mid",
			Timeout:  90 * time.Second,
		},
		Engine: EngineConfig{
			PoolSize:      1,
			WorkerTimeout: 2 * time.Minute,
			ReportsDir:    "reports",
		},
		Mission: MissionConfig{
			MaxCycles:  5,
			Cooldown:   5 * time.Second,
			SignalsDir: filepath.Join(".conduct", "signals"),
		},
		Store: StoreConfig{
			Driver: "sqlite",
		},
		Upload: UploadConfig{
			Region: "auto",
			Prefix: "reports",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
