package config

import (
	"fmt"
	"time"

	"github.com/jackzampolin/rollcall/internal/providers"
	"github.com/jackzampolin/rollcall/internal/types"
)

// Config holds rollcall configuration.
// Stored at: {home}/config.yaml
type Config struct {
	Extractors    map[string]ExtractorCfg `mapstructure:"extractors" yaml:"extractors" json:"extractors"`
	Defaults      DefaultsCfg             `mapstructure:"defaults" yaml:"defaults" json:"defaults"`
	Matching      MatchingCfg             `mapstructure:"matching" yaml:"matching" json:"matching"`
	Normalize     NormalizeCfg            `mapstructure:"normalize" yaml:"normalize" json:"normalize"`
	CompareFields []string                `mapstructure:"compare_fields" yaml:"compare_fields" json:"compare_fields"`
	Roster        RosterCfg               `mapstructure:"roster" yaml:"roster" json:"roster"`
	Convert       ConvertCfg              `mapstructure:"convert" yaml:"convert" json:"convert"`
	Report        ReportCfg               `mapstructure:"report" yaml:"report" json:"report"`
}

// ExtractorCfg configures a field extractor. Type is one of
// "azure-document", "openai-vision", "acroform", or "text-layer". APIKey
// and Endpoint support ${ENV_VAR} syntax; RateLimit is requests per second.
type ExtractorCfg struct {
	Type       string   `mapstructure:"type" yaml:"type" json:"type"`
	Endpoint   string   `mapstructure:"endpoint" yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	APIKey     string   `mapstructure:"api_key" yaml:"api_key,omitempty" json:"api_key,omitempty"`
	Model      string   `mapstructure:"model" yaml:"model,omitempty" json:"model,omitempty"`
	RateLimit  float64  `mapstructure:"rate_limit" yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"`
	Timeout    Duration `mapstructure:"timeout" yaml:"timeout,omitempty" json:"timeout,omitempty"`
	MaxRetries int      `mapstructure:"max_retries" yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
	Enabled    bool     `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
}

// DefaultsCfg specifies the default extractor and batch limits.
type DefaultsCfg struct {
	Extractor       string   `mapstructure:"extractor" yaml:"extractor" json:"extractor"`
	Workers         int      `mapstructure:"workers" yaml:"workers" json:"workers"`
	DocumentTimeout Duration `mapstructure:"document_timeout" yaml:"document_timeout" json:"document_timeout"`
}

// MatchingCfg controls identity matching.
type MatchingCfg struct {
	Threshold      float64  `mapstructure:"threshold" yaml:"threshold" json:"threshold"`
	RequiredFields []string `mapstructure:"required_fields" yaml:"required_fields" json:"required_fields"`
}

// NormalizeCfg extends the built-in field alias table.
type NormalizeCfg struct {
	Aliases map[string]string `mapstructure:"aliases" yaml:"aliases" json:"aliases"`
}

// RosterCfg controls roster header mapping.
type RosterCfg struct {
	Columns map[string]string `mapstructure:"columns" yaml:"columns" json:"columns"`
	Sheet   string            `mapstructure:"sheet" yaml:"sheet" json:"sheet"`
}

// ConvertCfg configures .docx conversion.
type ConvertCfg struct {
	SofficePath string   `mapstructure:"soffice_path" yaml:"soffice_path" json:"soffice_path"`
	Timeout     Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

// ReportCfg configures report files.
type ReportCfg struct {
	// Format is "csv" or "xlsx".
	Format string `mapstructure:"format" yaml:"format" json:"format"`
}

// Duration is a time.Duration that reads and writes as "2m0s" text.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Extractors: map[string]ExtractorCfg{
			"azure": {
				Type:       providers.AzureDocumentName,
				Endpoint:   "${AZURE_DOCUMENT_ENDPOINT}",
				APIKey:     "${AZURE_DOCUMENT_KEY}",
				Model:      providers.AzureDocumentModel,
				RateLimit:  1,
				Timeout:    Duration(2 * time.Minute),
				MaxRetries: 1,
				Enabled:    true,
			},
			"openai": {
				Type:       providers.OpenAIVisionName,
				APIKey:     "${OPENAI_API_KEY}",
				Model:      providers.OpenAIVisionModel,
				RateLimit:  2,
				Timeout:    Duration(2 * time.Minute),
				MaxRetries: 1,
				Enabled:    true,
			},
			"acroform": {
				Type:    providers.AcroFormName,
				Enabled: true,
			},
			"text": {
				Type:    providers.TextLayerName,
				Enabled: true,
			},
		},
		Defaults: DefaultsCfg{
			Extractor:       "azure",
			Workers:         4,
			DocumentTimeout: Duration(2 * time.Minute),
		},
		Matching: MatchingCfg{
			Threshold:      0.75,
			RequiredFields: []string{string(types.FieldFullName)},
		},
		Normalize: NormalizeCfg{Aliases: map[string]string{}},
		Roster:    RosterCfg{Columns: map[string]string{}},
		Convert: ConvertCfg{
			SofficePath: "soffice",
			Timeout:     Duration(time.Minute),
		},
		Report: ReportCfg{Format: "csv"},
	}
}

// GetExtractor returns an extractor config by name.
func (c *Config) GetExtractor(name string) (ExtractorCfg, bool) {
	cfg, ok := c.Extractors[name]
	return cfg, ok
}

// EnabledExtractors returns all enabled extractors.
func (c *Config) EnabledExtractors() map[string]ExtractorCfg {
	result := make(map[string]ExtractorCfg)
	for name, cfg := range c.Extractors {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}

// Validate checks the configuration before any document is processed.
func (c *Config) Validate() error {
	if c.Matching.Threshold < 0 || c.Matching.Threshold > 1 {
		return fmt.Errorf("matching.threshold must be within [0, 1], got %v", c.Matching.Threshold)
	}
	if c.Defaults.Workers <= 0 {
		return fmt.Errorf("defaults.workers must be positive, got %d", c.Defaults.Workers)
	}
	if c.Defaults.DocumentTimeout < 0 {
		return fmt.Errorf("defaults.document_timeout must not be negative")
	}
	if c.Defaults.Extractor != "" {
		if _, ok := c.Extractors[c.Defaults.Extractor]; !ok {
			return fmt.Errorf("defaults.extractor %q is not configured", c.Defaults.Extractor)
		}
	}
	for name, e := range c.Extractors {
		if !knownType(e.Type) {
			return fmt.Errorf("extractor %q has unknown type %q", name, e.Type)
		}
		if e.RateLimit < 0 {
			return fmt.Errorf("extractor %q rate_limit must not be negative", name)
		}
	}
	for _, name := range c.Matching.RequiredFields {
		if !types.Field(name).IsCanonical() {
			return fmt.Errorf("matching.required_fields: %q is not a canonical field", name)
		}
	}
	for _, name := range c.CompareFields {
		f := types.Field(name)
		if !f.IsCanonical() {
			return fmt.Errorf("compare_fields: %q is not a canonical field", name)
		}
		if f.IsIdentity() {
			return fmt.Errorf("compare_fields: %q is an identity field", name)
		}
	}
	switch c.Report.Format {
	case "", "csv", "xlsx":
	default:
		return fmt.Errorf("report.format must be csv or xlsx, got %q", c.Report.Format)
	}
	return nil
}

func knownType(t string) bool {
	for _, k := range providers.KnownTypes {
		if k == t {
			return true
		}
	}
	return false
}
