package providers

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Registry holds the configured extractors by name.
// It supports config-driven instantiation, hot-reload, and provides thread-safe access.
type Registry struct {
	mu         sync.RWMutex
	extractors map[string]Extractor
	configs    map[string]ExtractorConfig
	logger     *slog.Logger
}

// NewRegistry creates a new empty extractor registry.
func NewRegistry() *Registry {
	return &Registry{
		extractors: make(map[string]Extractor),
		configs:    make(map[string]ExtractorConfig),
		logger:     slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Register registers an extractor by name.
func (r *Registry) Register(name string, e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors[name] = e
	delete(r.configs, name)
	if r.logger != nil {
		r.logger.Debug("registered extractor", "name", name, "type", e.Name())
	}
}

// Unregister removes an extractor by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.extractors, name)
	delete(r.configs, name)
	if r.logger != nil {
		r.logger.Info("unregistered extractor", "name", name)
	}
}

// Get returns an extractor by name.
func (r *Registry) Get(name string) (Extractor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.extractors[name]
	if !ok {
		return nil, fmt.Errorf("extractor not found: %s", name)
	}
	return e, nil
}

// List returns all registered extractor names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.extractors))
	for name := range r.extractors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has checks if an extractor is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.extractors[name]
	return ok
}

// Extractors returns a copy of all registered extractors.
func (r *Registry) Extractors() map[string]Extractor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[string]Extractor, len(r.extractors))
	for name, e := range r.extractors {
		result[name] = e
	}
	return result
}

// RegistryConfig defines the extractors to instantiate from config.
// This mirrors the config.Config extractors section with resolved secrets.
type RegistryConfig struct {
	Extractors map[string]ExtractorConfig
}

// ExtractorConfig matches config.ExtractorCfg with a resolved API key.
type ExtractorConfig struct {
	Type       string // "azure-document", "openai-vision", "acroform", "text-layer"
	Endpoint   string
	APIKey     string // Resolved API key
	Model      string
	RateLimit  float64 // Requests per second
	Timeout    time.Duration
	MaxRetries int
	Enabled    bool
}

// RequiresAPIKey reports whether an extractor type calls a remote service.
func RequiresAPIKey(extractorType string) bool {
	switch extractorType {
	case AzureDocumentName, OpenAIVisionName:
		return true
	}
	return false
}

// KnownTypes lists the extractor types createExtractor understands.
var KnownTypes = []string{AzureDocumentName, OpenAIVisionName, AcroFormName, TextLayerName, MockExtractorName}

// NewRegistryFromConfig creates a registry with extractors based on configuration.
// Only enabled extractors with the credentials they need will be registered.
func NewRegistryFromConfig(cfg RegistryConfig) *Registry {
	r := NewRegistry()
	r.Reload(cfg)
	return r
}

// Reload updates the registry based on new configuration.
// Extractors that are no longer configured will be unregistered.
// Extractors with changed settings will be re-created.
func (r *Registry) Reload(cfg RegistryConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := make(map[string]bool)
	for name, ecfg := range cfg.Extractors {
		if !ecfg.Enabled {
			continue
		}
		if RequiresAPIKey(ecfg.Type) && ecfg.APIKey == "" {
			if r.logger != nil {
				r.logger.Debug("extractor has no API key, skipping", "name", name, "type", ecfg.Type)
			}
			continue
		}
		want[name] = true

		prev, hasPrev := r.configs[name]
		if _, registered := r.extractors[name]; registered && hasPrev && prev == ecfg {
			continue
		}

		e, err := createExtractor(ecfg)
		if err != nil {
			if r.logger != nil {
				r.logger.Warn("skipping extractor", "name", name, "error", err)
			}
			delete(want, name)
			continue
		}
		_, existed := r.extractors[name]
		r.extractors[name] = e
		r.configs[name] = ecfg
		if r.logger != nil {
			if existed {
				r.logger.Debug("updated extractor", "name", name, "type", ecfg.Type)
			} else {
				r.logger.Debug("registered extractor", "name", name, "type", ecfg.Type)
			}
		}
	}

	// Remove config-driven extractors that are no longer configured.
	for name := range r.configs {
		if !want[name] {
			delete(r.extractors, name)
			delete(r.configs, name)
			if r.logger != nil {
				r.logger.Debug("unregistered extractor", "name", name)
			}
		}
	}
}

// createExtractor creates an extractor based on its type.
func createExtractor(cfg ExtractorConfig) (Extractor, error) {
	switch cfg.Type {
	case AzureDocumentName:
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("%s extractor needs an endpoint", cfg.Type)
		}
		return NewAzureDocumentExtractor(AzureDocumentConfig{
			Endpoint:   cfg.Endpoint,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Timeout:    cfg.Timeout,
			RateLimit:  cfg.RateLimit,
			MaxRetries: cfg.MaxRetries,
		}), nil
	case OpenAIVisionName:
		return NewOpenAIVisionExtractor(OpenAIVisionConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.Endpoint,
			Model:      cfg.Model,
			Timeout:    cfg.Timeout,
			RateLimit:  cfg.RateLimit,
			MaxRetries: cfg.MaxRetries,
		}), nil
	case AcroFormName:
		return NewAcroFormExtractor(AcroFormConfig{}), nil
	case TextLayerName:
		return NewTextLayerExtractor(TextLayerConfig{}), nil
	case MockExtractorName:
		return NewMockExtractor(), nil
	default:
		return nil, fmt.Errorf("unknown extractor type %q", cfg.Type)
	}
}
