package providers

import (
	"os"
)

// TestConfig holds extractor credentials loaded from environment variables.
// This allows tests to use the same configuration pattern as production.
type TestConfig struct {
	AzureEndpoint string
	AzureAPIKey   string
	OpenAIAPIKey  string
	// SamplePDF is a real enrollment form used by live tests.
	SamplePDF string
}

// LoadTestConfig loads extractor credentials from environment variables.
// Returns a TestConfig with whatever keys are available.
func LoadTestConfig() TestConfig {
	return TestConfig{
		AzureEndpoint: os.Getenv("AZURE_DOCUMENT_ENDPOINT"),
		AzureAPIKey:   os.Getenv("AZURE_DOCUMENT_KEY"),
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		SamplePDF:     os.Getenv("ROLLCALL_SAMPLE_PDF"),
	}
}

// HasAzure returns true if the Azure endpoint and key are configured.
func (c TestConfig) HasAzure() bool {
	return c.AzureEndpoint != "" && c.AzureAPIKey != ""
}

// HasOpenAI returns true if the OpenAI API key is configured.
func (c TestConfig) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

// ToRegistryConfig converts test config to a RegistryConfig.
// Only includes remote extractors that have credentials configured.
func (c TestConfig) ToRegistryConfig() RegistryConfig {
	cfg := RegistryConfig{
		Extractors: map[string]ExtractorConfig{
			"acroform": {Type: AcroFormName, Enabled: true},
		},
	}

	if c.HasAzure() {
		cfg.Extractors["azure"] = ExtractorConfig{
			Type:      AzureDocumentName,
			Endpoint:  c.AzureEndpoint,
			APIKey:    c.AzureAPIKey,
			RateLimit: 1,
			Enabled:   true,
		}
	}

	if c.HasOpenAI() {
		cfg.Extractors["openai"] = ExtractorConfig{
			Type:      OpenAIVisionName,
			APIKey:    c.OpenAIAPIKey,
			RateLimit: 2,
			Enabled:   true,
		}
	}

	return cfg
}
