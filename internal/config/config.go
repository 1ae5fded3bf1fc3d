package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/jackzampolin/rollcall/internal/providers"
)

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	v         *viper.Viper
	config    *Config
	callbacks []func(*Config)
	logger    *slog.Logger
}

// NewManager creates a new config manager and loads initial config.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{
		v:         viper.New(),
		callbacks: make([]func(*Config), 0),
		logger:    slog.Default(),
	}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string) error {
	v := cm.v
	setDefaults(v, DefaultConfig())

	// Environment variables with ROLLCALL_ prefix, e.g. ROLLCALL_MATCHING_THRESHOLD
	v.SetEnvPrefix("ROLLCALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.rollcall")
	}

	// Try to read config file (not required)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// setDefaults registers every default as a leaf key so a partial config
// file only overrides the keys it names.
func setDefaults(v *viper.Viper, d *Config) {
	for name, e := range d.Extractors {
		prefix := "extractors." + name + "."
		v.SetDefault(prefix+"type", e.Type)
		v.SetDefault(prefix+"endpoint", e.Endpoint)
		v.SetDefault(prefix+"api_key", e.APIKey)
		v.SetDefault(prefix+"model", e.Model)
		v.SetDefault(prefix+"rate_limit", e.RateLimit)
		v.SetDefault(prefix+"timeout", e.Timeout)
		v.SetDefault(prefix+"max_retries", e.MaxRetries)
		v.SetDefault(prefix+"enabled", e.Enabled)
	}
	v.SetDefault("defaults.extractor", d.Defaults.Extractor)
	v.SetDefault("defaults.workers", d.Defaults.Workers)
	v.SetDefault("defaults.document_timeout", d.Defaults.DocumentTimeout)
	v.SetDefault("matching.threshold", d.Matching.Threshold)
	v.SetDefault("matching.required_fields", d.Matching.RequiredFields)
	v.SetDefault("normalize.aliases", d.Normalize.Aliases)
	v.SetDefault("compare_fields", d.CompareFields)
	v.SetDefault("roster.columns", d.Roster.Columns)
	v.SetDefault("roster.sheet", d.Roster.Sheet)
	v.SetDefault("convert.soffice_path", d.Convert.SofficePath)
	v.SetDefault("convert.timeout", d.Convert.Timeout)
	v.SetDefault("report.format", d.Report.Format)
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := cm.v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// ConfigFile returns the config file in use, or "" when running on defaults.
func (cm *Manager) ConfigFile() string {
	return cm.v.ConfigFileUsed()
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// SetLogger sets the logger used to report rejected reloads.
func (cm *Manager) SetLogger(logger *slog.Logger) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.logger = logger
}

// WatchConfig enables hot-reloading of configuration. A changed file that
// fails to parse or validate leaves the current config in place.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cm.mu.RLock()
		logger := cm.logger
		cm.mu.RUnlock()

		// viper logs read errors itself and keeps the previous values.
		var cfg *Config
		err := cm.v.ReadInConfig()
		if err == nil {
			cfg, err = cm.load()
		}
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			logger.Warn("ignoring config change", "file", e.Name, "error", err)
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envPattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// ToRegistryConfig converts the config to a format suitable for providers.Registry.
// It resolves all ${ENV_VAR} references in endpoints and API keys.
func (c *Config) ToRegistryConfig() providers.RegistryConfig {
	cfg := providers.RegistryConfig{
		Extractors: make(map[string]providers.ExtractorConfig, len(c.Extractors)),
	}

	for name, e := range c.Extractors {
		cfg.Extractors[name] = providers.ExtractorConfig{
			Type:       e.Type,
			Endpoint:   ResolveEnvVars(e.Endpoint),
			APIKey:     ResolveEnvVars(e.APIKey),
			Model:      e.Model,
			RateLimit:  e.RateLimit,
			Timeout:    e.Timeout.Std(),
			MaxRetries: e.MaxRetries,
			Enabled:    e.Enabled,
		}
	}

	return cfg
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# rollcall configuration
# Secrets and endpoints use ${ENV_VAR} syntax to reference environment variables
# Set these in your shell: export AZURE_DOCUMENT_ENDPOINT=https://... AZURE_DOCUMENT_KEY=xxx OPENAI_API_KEY=xxx

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
