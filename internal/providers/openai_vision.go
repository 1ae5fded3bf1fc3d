package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	OpenAIVisionName         = "openai-vision"
	OpenAIVisionModel        = "gpt-4o-mini"

	// openAIVisionConfidence is used for fields the model returns without
	// its own confidence.
	openAIVisionConfidence = 0.5
)

const openAIVisionPrompt = `You read scanned school transportation enrollment forms.
Return ONLY a JSON object of the form:
{"fields":[{"field_name":"<label as printed on the form>","raw_value":"<value exactly as written>","confidence":<0..1>}]}
Include every labeled field you can read: student name, student id, date of birth,
school, grade, bus route, opt-in choice, address, parent or guardian name, phone,
email, and AM/PM transportation need. For checkboxes report the label and
":selected:" or ":unselected:". Leave raw_value empty when a field is blank.
Do not guess values that are not written on the form.`

// OpenAIVisionConfig holds configuration for the OpenAI vision extractor.
type OpenAIVisionConfig struct {
	APIKey     string
	BaseURL    string        // Optional override
	Model      string        // Default: gpt-4o-mini
	Timeout    time.Duration // HTTP timeout
	RateLimit  float64       // Requests per second
	MaxRetries int
	RetryDelay time.Duration
	HTTPClient *http.Client // Optional (tests)
}

// OpenAIVisionExtractor implements Extractor by sending the PDF to a
// vision-capable chat model and validating its JSON answer.
type OpenAIVisionExtractor struct {
	apiKey     string
	model      string
	rateLimit  float64
	maxRetries int
	retryDelay time.Duration
	client     openai.Client
}

// NewOpenAIVisionExtractor creates a new OpenAI vision extractor.
func NewOpenAIVisionExtractor(cfg OpenAIVisionConfig) *OpenAIVisionExtractor {
	if cfg.Model == "" {
		cfg.Model = OpenAIVisionModel
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 2.0
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	// Retries belong to the batch orchestrator, so the SDK does not retry.
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIVisionExtractor{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		rateLimit:  cfg.RateLimit,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		client:     openai.NewClient(opts...),
	}
}

// Name returns the provider identifier.
func (c *OpenAIVisionExtractor) Name() string {
	return OpenAIVisionName
}

// RequestsPerSecond returns the configured rate limit.
func (c *OpenAIVisionExtractor) RequestsPerSecond() float64 {
	return c.rateLimit
}

// MaxRetries returns the maximum retry attempts.
func (c *OpenAIVisionExtractor) MaxRetries() int {
	return c.maxRetries
}

// RetryDelayBase returns the base delay between retries.
func (c *OpenAIVisionExtractor) RetryDelayBase() time.Duration {
	return c.retryDelay
}

// MaxConcurrency returns max concurrent in-flight requests.
func (c *OpenAIVisionExtractor) MaxConcurrency() int {
	// Limits vary by account tier; use the batch worker count.
	return 0
}

// Model returns the configured model.
func (c *OpenAIVisionExtractor) Model() string {
	return c.model
}

// Extract sends the PDF as a file content part and decodes the detections.
func (c *OpenAIVisionExtractor) Extract(ctx context.Context, doc *Document) (*ExtractionResult, error) {
	start := time.Now()
	if len(doc.Data) == 0 {
		return nil, ErrEmptyDocument
	}

	fileData := "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(doc.Data)
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(openAIVisionPrompt),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart("Extract the form fields from this document."),
				openai.FileContentPart(openai.ChatCompletionContentPartFileFileParam{
					FileData: openai.String(fileData),
					Filename: openai.String(doc.ID),
				}),
			}),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
		Temperature: openai.Float(0),
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("OpenAI returned an empty response")
	}

	detections, err := decodeDetections(resp.Choices[0].Message.Content, openAIVisionConfidence)
	if err != nil {
		return nil, err
	}
	if len(detections) == 0 {
		return nil, ErrNoDetections
	}

	return &ExtractionResult{
		Detections:    detections,
		Provider:      OpenAIVisionName,
		Model:         resp.Model,
		ExecutionTime: time.Since(start),
		Metadata: map[string]any{
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
		},
	}, nil
}

func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			retryAfter := time.Duration(0)
			if apiErr.Response != nil {
				retryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
			}
			return &RateLimitError{
				Message:    fmt.Sprintf("OpenAI rate limited: %s", apiErr.Message),
				RetryAfter: retryAfter,
				StatusCode: apiErr.StatusCode,
			}
		}
		if apiErr.Message != "" {
			return fmt.Errorf("OpenAI error (status %d): %s", apiErr.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("OpenAI error (status %d)", apiErr.StatusCode)
	}
	return err
}

var _ Extractor = (*OpenAIVisionExtractor)(nil)
