package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/jackzampolin/rollcall/internal/types"
)

const (
	AzureDocumentName       = "azure-document"
	AzureDocumentModel      = "prebuilt-document"
	AzureDocumentAPIVersion = "2023-07-31"
)

var errAnalyzeRunning = errors.New("analysis still running")

// AzureDocumentConfig holds configuration for the Azure Form Recognizer
// (Document Intelligence) extractor.
type AzureDocumentConfig struct {
	Endpoint     string
	APIKey       string
	Model        string
	APIVersion   string
	Timeout      time.Duration
	RateLimit    float64 // Requests per second (default: 1.0)
	MaxRetries   int
	PollInterval time.Duration
	// MaxPolls bounds result polling; the request context still applies.
	MaxPolls   int
	HTTPClient *http.Client // Optional (tests)
}

// AzureDocumentExtractor implements Extractor with the Azure key/value
// analysis API: submit the PDF, poll the operation, read keyValuePairs.
type AzureDocumentExtractor struct {
	endpoint     string
	apiKey       string
	model        string
	apiVersion   string
	rateLimit    float64
	maxRetries   int
	pollInterval time.Duration
	maxPolls     int
	client       *http.Client
}

// NewAzureDocumentExtractor creates a new Azure document extractor.
func NewAzureDocumentExtractor(cfg AzureDocumentConfig) *AzureDocumentExtractor {
	if cfg.Model == "" {
		cfg.Model = AzureDocumentModel
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = AzureDocumentAPIVersion
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 1.0 // free tier allows one request per second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = 120
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &AzureDocumentExtractor{
		endpoint:     strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		apiVersion:   cfg.APIVersion,
		rateLimit:    cfg.RateLimit,
		maxRetries:   cfg.MaxRetries,
		pollInterval: cfg.PollInterval,
		maxPolls:     cfg.MaxPolls,
		client:       client,
	}
}

// Name returns the provider identifier.
func (c *AzureDocumentExtractor) Name() string {
	return AzureDocumentName
}

// RequestsPerSecond returns the configured rate limit.
func (c *AzureDocumentExtractor) RequestsPerSecond() float64 {
	return c.rateLimit
}

// MaxRetries returns the maximum retry attempts.
func (c *AzureDocumentExtractor) MaxRetries() int {
	return c.maxRetries
}

// RetryDelayBase returns the base delay between retries.
func (c *AzureDocumentExtractor) RetryDelayBase() time.Duration {
	return 2 * time.Second
}

// MaxConcurrency returns max concurrent in-flight analyses.
func (c *AzureDocumentExtractor) MaxConcurrency() int {
	return 0
}

// Extract submits the document and waits for the analysis result.
func (c *AzureDocumentExtractor) Extract(ctx context.Context, doc *Document) (*ExtractionResult, error) {
	start := time.Now()
	if len(doc.Data) == 0 {
		return nil, ErrEmptyDocument
	}

	opURL, err := c.submit(ctx, doc.Data)
	if err != nil {
		return nil, err
	}

	var result *azureAnalyzeResult
	err = retry.Do(
		func() error {
			r, err := c.poll(ctx, opURL)
			if err != nil {
				return err
			}
			result = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxPolls)),
		retry.Delay(c.pollInterval),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(func(err error) bool { return errors.Is(err, errAnalyzeRunning) }),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}

	detections := make([]types.FieldDetection, 0, len(result.KeyValuePairs))
	for _, kv := range result.KeyValuePairs {
		if kv.Key == nil {
			continue
		}
		value := ""
		if kv.Value != nil {
			value = kv.Value.Content
		}
		detections = append(detections, types.FieldDetection{
			FieldName:  kv.Key.Content,
			RawValue:   value,
			Confidence: clampConfidence(kv.Confidence),
		})
	}
	if len(detections) == 0 {
		return nil, ErrNoDetections
	}

	return &ExtractionResult{
		Detections:    detections,
		Provider:      AzureDocumentName,
		Model:         result.ModelID,
		Pages:         len(result.Pages),
		ExecutionTime: time.Since(start),
		Metadata: map[string]any{
			"api_version": result.APIVersion,
		},
	}, nil
}

// submit posts the PDF and returns the Operation-Location to poll.
func (c *AzureDocumentExtractor) submit(ctx context.Context, pdf []byte) (string, error) {
	url := fmt.Sprintf("%s/formrecognizer/documentModels/%s:analyze?api-version=%s", c.endpoint, c.model, c.apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(pdf))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/pdf")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return "", c.statusError(resp)
	}
	opURL := resp.Header.Get("Operation-Location")
	if opURL == "" {
		return "", fmt.Errorf("azure analyze response missing Operation-Location")
	}
	return opURL, nil
}

// poll fetches the operation once. A running operation returns
// errAnalyzeRunning.
func (c *AzureDocumentExtractor) poll(ctx context.Context, opURL string) (*azureAnalyzeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}

	var op azureOperation
	if err := json.NewDecoder(resp.Body).Decode(&op); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	switch op.Status {
	case "succeeded":
		if op.AnalyzeResult == nil {
			return nil, fmt.Errorf("azure analysis succeeded without a result")
		}
		return op.AnalyzeResult, nil
	case "failed", "canceled":
		msg := op.Status
		if op.Error != nil && op.Error.Message != "" {
			msg = fmt.Sprintf("%s: %s", op.Status, op.Error.Message)
		}
		return nil, fmt.Errorf("azure analysis %s", msg)
	default:
		return nil, errAnalyzeRunning
	}
}

func (c *AzureDocumentExtractor) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var errResp struct {
		Error *azureError `json:"error"`
	}
	detail := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != nil && errResp.Error.Message != "" {
		detail = errResp.Error.Message
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return rateLimited("Azure Document", resp.Header, detail)
	}
	return fmt.Errorf("Azure Document error (status %d): %s", resp.StatusCode, detail)
}

// Azure Document Intelligence API types

type azureOperation struct {
	Status        string              `json:"status"`
	AnalyzeResult *azureAnalyzeResult `json:"analyzeResult,omitempty"`
	Error         *azureError         `json:"error,omitempty"`
}

type azureAnalyzeResult struct {
	APIVersion    string              `json:"apiVersion"`
	ModelID       string              `json:"modelId"`
	Pages         []json.RawMessage   `json:"pages"`
	KeyValuePairs []azureKeyValuePair `json:"keyValuePairs"`
}

type azureKeyValuePair struct {
	Key        *azureElement `json:"key"`
	Value      *azureElement `json:"value"`
	Confidence float64       `json:"confidence"`
}

type azureElement struct {
	Content string `json:"content"`
}

type azureError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Verify interface
var _ Extractor = (*AzureDocumentExtractor)(nil)
