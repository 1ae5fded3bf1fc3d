package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jackzampolin/rollcall/internal/providers"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Matching.Threshold != 0.75 {
		t.Errorf("threshold = %v, want 0.75", cfg.Matching.Threshold)
	}
	if cfg.Extractors["azure"].APIKey != "${AZURE_DOCUMENT_KEY}" {
		t.Error("expected azure API key placeholder")
	}
	if diff := cmp.Diff([]string{"full_name"}, cfg.Matching.RequiredFields); diff != "" {
		t.Errorf("required fields (-want +got):\n%s", diff)
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		t.Setenv("TEST_API_KEY", "secret123")

		result := ResolveEnvVars("${TEST_API_KEY}")
		if result != "secret123" {
			t.Errorf("expected secret123, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}")
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("expands inside a larger string", func(t *testing.T) {
		t.Setenv("TEST_REGION", "eastus")

		result := ResolveEnvVars("https://${TEST_REGION}.api.cognitive.microsoft.com")
		if result != "https://eastus.api.cognitive.microsoft.com" {
			t.Errorf("unexpected expansion: %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		result := ResolveEnvVars("literal-value")
		if result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"threshold above one", func(c *Config) { c.Matching.Threshold = 1.5 }, "matching.threshold"},
		{"threshold below zero", func(c *Config) { c.Matching.Threshold = -0.1 }, "matching.threshold"},
		{"zero workers", func(c *Config) { c.Defaults.Workers = 0 }, "defaults.workers"},
		{"unknown default extractor", func(c *Config) { c.Defaults.Extractor = "nope" }, "not configured"},
		{"unknown extractor type", func(c *Config) {
			c.Extractors["x"] = ExtractorCfg{Type: "tesseract"}
		}, "unknown type"},
		{"bad required field", func(c *Config) { c.Matching.RequiredFields = []string{"shoe_size"} }, "required_fields"},
		{"identity compare field", func(c *Config) { c.CompareFields = []string{"student_id"} }, "identity field"},
		{"bad report format", func(c *Config) { c.Report.Format = "pdf" }, "report.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestNewManager(t *testing.T) {
	t.Run("loads from config file", func(t *testing.T) {
		configFile := writeConfig(t, `
defaults:
  extractor: text
  document_timeout: 30s
matching:
  threshold: 0.8
normalize:
  aliases:
    "Kid's Name": full_name
extractors:
  azure:
    endpoint: https://example.cognitiveservices.azure.com
`)

		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		cfg := mgr.Get()
		if cfg.Defaults.Extractor != "text" {
			t.Errorf("extractor = %q, want text", cfg.Defaults.Extractor)
		}
		if cfg.Defaults.DocumentTimeout.Std() != 30*time.Second {
			t.Errorf("document_timeout = %v, want 30s", cfg.Defaults.DocumentTimeout.Std())
		}
		if cfg.Matching.Threshold != 0.8 {
			t.Errorf("threshold = %v, want 0.8", cfg.Matching.Threshold)
		}
		if cfg.Normalize.Aliases["kid's name"] != "full_name" && cfg.Normalize.Aliases["Kid's Name"] != "full_name" {
			t.Errorf("alias not loaded: %v", cfg.Normalize.Aliases)
		}
		if mgr.ConfigFile() != configFile {
			t.Errorf("ConfigFile() = %q, want %q", mgr.ConfigFile(), configFile)
		}
	})

	t.Run("partial file keeps defaults", func(t *testing.T) {
		configFile := writeConfig(t, `
extractors:
  azure:
    endpoint: https://example.cognitiveservices.azure.com
`)

		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		cfg := mgr.Get()
		azure := cfg.Extractors["azure"]
		if azure.Type != providers.AzureDocumentName {
			t.Errorf("azure type = %q, want default", azure.Type)
		}
		if azure.Endpoint != "https://example.cognitiveservices.azure.com" {
			t.Errorf("azure endpoint = %q", azure.Endpoint)
		}
		if azure.Timeout.Std() != 2*time.Minute {
			t.Errorf("azure timeout = %v, want 2m", azure.Timeout.Std())
		}
		if cfg.Defaults.Workers != 4 {
			t.Errorf("workers = %d, want 4", cfg.Defaults.Workers)
		}
		if _, ok := cfg.Extractors["acroform"]; !ok {
			t.Error("default acroform extractor missing")
		}
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("ROLLCALL_MATCHING_THRESHOLD", "0.9")
		t.Setenv("ROLLCALL_DEFAULTS_WORKERS", "2")
		configFile := writeConfig(t, "report:\n  format: xlsx\n")

		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		cfg := mgr.Get()
		if cfg.Matching.Threshold != 0.9 {
			t.Errorf("threshold = %v, want 0.9", cfg.Matching.Threshold)
		}
		if cfg.Defaults.Workers != 2 {
			t.Errorf("workers = %d, want 2", cfg.Defaults.Workers)
		}
		if cfg.Report.Format != "xlsx" {
			t.Errorf("report format = %q, want xlsx", cfg.Report.Format)
		}
	})

	t.Run("malformed file", func(t *testing.T) {
		configFile := writeConfig(t, "matching: [unclosed\n")
		if _, err := NewManager(configFile); err == nil {
			t.Error("expected error for malformed config")
		}
	})
}

func TestToRegistryConfig(t *testing.T) {
	t.Setenv("TEST_AZURE_KEY", "az-key")
	t.Setenv("TEST_AZURE_ENDPOINT", "https://az.example.com")

	cfg := &Config{
		Extractors: map[string]ExtractorCfg{
			"azure": {
				Type:       providers.AzureDocumentName,
				Endpoint:   "${TEST_AZURE_ENDPOINT}",
				APIKey:     "${TEST_AZURE_KEY}",
				RateLimit:  1,
				Timeout:    Duration(time.Minute),
				MaxRetries: 2,
				Enabled:    true,
			},
			"form": {Type: providers.AcroFormName, Enabled: true},
		},
	}

	got := cfg.ToRegistryConfig()
	want := providers.RegistryConfig{
		Extractors: map[string]providers.ExtractorConfig{
			"azure": {
				Type:       providers.AzureDocumentName,
				Endpoint:   "https://az.example.com",
				APIKey:     "az-key",
				RateLimit:  1,
				Timeout:    time.Minute,
				MaxRetries: 2,
				Enabled:    true,
			},
			"form": {Type: providers.AcroFormName, Enabled: true},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ToRegistryConfig() mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# rollcall configuration") {
		t.Error("missing header comment")
	}
	if !strings.Contains(string(data), "document_timeout: 2m0s") {
		t.Errorf("durations should be written as text:\n%s", data)
	}

	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("written default config does not load: %v", err)
	}
	if err := mgr.Get().Validate(); err != nil {
		t.Errorf("written default config does not validate: %v", err)
	}
	if mgr.Get().Convert.Timeout.Std() != time.Minute {
		t.Errorf("convert timeout = %v, want 1m", mgr.Get().Convert.Timeout.Std())
	}
}

func TestManager_OnChange_Multiple(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "report:\n  format: csv\n"))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})

	mgr.mu.RLock()
	if len(mgr.callbacks) != 3 {
		t.Errorf("expected 3 callbacks, got %d", len(mgr.callbacks))
	}
	mgr.mu.RUnlock()
}

func TestManager_Get_ThreadSafe(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "report:\n  format: csv\n"))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				cfg := mgr.Get()
				_ = cfg.Matching.Threshold
			}
			done <- struct{}{}
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestManager_WatchConfig(t *testing.T) {
	configFile := writeConfig(t, "matching:\n  threshold: 0.75\n")

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	var callbackCount atomic.Int32
	var lastValue atomic.Value

	mgr.OnChange(func(cfg *Config) {
		callbackCount.Add(1)
		lastValue.Store(cfg.Matching.Threshold)
	})

	mgr.WatchConfig()

	// Give fsnotify time to set up the watcher
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(configFile, []byte("matching:\n  threshold: 0.85\n"), 0o644); err != nil {
		t.Fatalf("failed to write updated config file: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if callbackCount.Load() > 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if callbackCount.Load() == 0 {
		t.Fatal("callback was not invoked after config file change")
	}
	if got := mgr.Get().Matching.Threshold; got != 0.85 {
		t.Errorf("config not updated: threshold = %v, want 0.85", got)
	}
	if v := lastValue.Load(); v != 0.85 {
		t.Errorf("callback received %v, want 0.85", v)
	}
}

// syncBuffer is a bytes.Buffer safe for the watcher goroutine to write.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestManager_WatchConfig_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"invalid threshold", "matching:\n  threshold: 1.5\n", "threshold"},
		{"malformed yaml", "matching: [unterminated\n", "error="},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configFile := writeConfig(t, "matching:\n  threshold: 0.75\n")
			mgr, err := NewManager(configFile)
			if err != nil {
				t.Fatalf("failed to create manager: %v", err)
			}

			var logs syncBuffer
			mgr.SetLogger(slog.New(slog.NewTextHandler(&logs, nil)))

			mgr.WatchConfig()
			time.Sleep(100 * time.Millisecond)

			if err := os.WriteFile(configFile, []byte(tt.content), 0o644); err != nil {
				t.Fatalf("failed to write updated config file: %v", err)
			}

			deadline := time.Now().Add(2 * time.Second)
			for time.Now().Before(deadline) {
				if strings.Contains(logs.String(), "ignoring config change") {
					break
				}
				time.Sleep(50 * time.Millisecond)
			}

			out := logs.String()
			if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "ignoring config change") {
				t.Fatalf("expected a warning for the rejected config, got %q", out)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("warning %q does not mention %q", out, tt.want)
			}
			if got := mgr.Get().Matching.Threshold; got != 0.75 {
				t.Errorf("threshold = %v, want the previous 0.75", got)
			}
		})
	}
}
