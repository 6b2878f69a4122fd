package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/dapfinance/internal/domain"
	"github.com/dvloznov/dapfinance/internal/logger"
	"github.com/shopspring/decimal"
	"google.golang.org/genai"
)

const (
	// DefaultModelName is the Gemini model used when none is configured.
	DefaultModelName = "gemini-2.5-flash"

	// DefaultTimeout bounds a single model call.
	DefaultTimeout = 20 * time.Second

	temperature = 0.1
)

// ErrNotConfigured is the fallback cause when no API key was supplied.
var ErrNotConfigured = errors.New("ai: model client not configured")

// ContentGenerator is the subset of *genai.Models used here.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Categorization is the answer to a categorize call.
type Categorization struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Merchant   *string `json:"merchant"`
}

// Recategorization is the answer to a recategorize call.
type Recategorization struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// FallbackCategorization is returned whenever Categorize fails.
func FallbackCategorization() Categorization {
	return Categorization{Category: domain.CategoryOther, Confidence: 0, Merchant: nil}
}

// FallbackRecategorization is returned whenever Recategorize fails.
func FallbackRecategorization() Recategorization {
	return Recategorization{Category: domain.CategoryOther, Confidence: 0}
}

// FallbackReceipt is returned whenever ExtractReceipt fails.
func FallbackReceipt() domain.ReceiptData {
	return domain.ReceiptData{Items: []domain.ReceiptLineItem{}}
}

// GeminiClient calls Gemini for categorization and receipt extraction.
// Every method returns a Result; none of them return an error.
type GeminiClient struct {
	models  ContentGenerator
	model   string
	timeout time.Duration
}

// NewGeminiClient creates a client for the Gemini API. An empty apiKey
// yields a client whose calls always fall back.
func NewGeminiClient(ctx context.Context, apiKey, model string, timeout time.Duration) (*GeminiClient, error) {
	if apiKey == "" {
		return NewGeminiClientWithGenerator(nil, model, timeout), nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiClient: create genai client: %w", err)
	}
	return NewGeminiClientWithGenerator(client.Models, model, timeout), nil
}

// NewGeminiClientWithGenerator creates a client over an existing generator.
func NewGeminiClientWithGenerator(gen ContentGenerator, model string, timeout time.Duration) *GeminiClient {
	if model == "" {
		model = DefaultModelName
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &GeminiClient{models: gen, model: model, timeout: timeout}
}

// Model returns the model name recorded alongside extractions.
func (c *GeminiClient) Model() string {
	return c.model
}

// Categorize assigns one taxonomy category to a transaction.
func (c *GeminiClient) Categorize(ctx context.Context, description string, amount decimal.Decimal, currency, date string) Result[Categorization] {
	raw, err := c.generate(ctx, categorizeSystemPrompt(), []*genai.Part{
		{Text: categorizeUserPrompt(description, amount, currency, date)},
	})
	if err != nil {
		return c.fallbackCategorization(ctx, "Categorize", err)
	}

	var out struct {
		Category   string   `json:"category"`
		Confidence *float64 `json:"confidence"`
		Merchant   *string  `json:"merchant"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return c.fallbackCategorization(ctx, "Categorize", fmt.Errorf("unmarshal JSON: %w", err))
	}
	conf, err := checkAnswer(out.Category, out.Confidence)
	if err != nil {
		return c.fallbackCategorization(ctx, "Categorize", err)
	}

	var merchant *string
	if out.Merchant != nil {
		if m := strings.TrimSpace(*out.Merchant); m != "" {
			merchant = &m
		}
	}
	return Ok(Categorization{Category: out.Category, Confidence: conf, Merchant: merchant})
}

// Recategorize refines a category using a user note and extracted receipt
// fields. Either may be empty.
func (c *GeminiClient) Recategorize(ctx context.Context, description string, amount decimal.Decimal, note string, extracted *domain.ReceiptData) Result[Recategorization] {
	raw, err := c.generate(ctx, recategorizeSystemPrompt(), []*genai.Part{
		{Text: recategorizeUserPrompt(description, amount, note, extracted)},
	})
	if err != nil {
		return c.fallbackRecategorization(ctx, err)
	}

	var out struct {
		Category   string   `json:"category"`
		Confidence *float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return c.fallbackRecategorization(ctx, fmt.Errorf("unmarshal JSON: %w", err))
	}
	conf, err := checkAnswer(out.Category, out.Confidence)
	if err != nil {
		return c.fallbackRecategorization(ctx, err)
	}
	return Ok(Recategorization{Category: out.Category, Confidence: conf})
}

// ExtractReceipt reads structured receipt fields from an image.
func (c *GeminiClient) ExtractReceipt(ctx context.Context, image []byte, mimeType string) Result[domain.ReceiptData] {
	if len(image) == 0 {
		return c.fallbackReceipt(ctx, errors.New("empty image"))
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	raw, err := c.generate(ctx, receiptSystemPrompt, []*genai.Part{
		{Text: receiptUserPrompt},
		{InlineData: &genai.Blob{MIMEType: mimeType, Data: image}},
	})
	if err != nil {
		return c.fallbackReceipt(ctx, err)
	}

	var out domain.ReceiptData
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return c.fallbackReceipt(ctx, fmt.Errorf("unmarshal JSON: %w", err))
	}
	if out.Items == nil {
		out.Items = []domain.ReceiptLineItem{}
	}
	return Ok(out)
}

// generate runs one bounded model call and returns the cleaned JSON text.
func (c *GeminiClient) generate(ctx context.Context, system string, parts []*genai.Part) (string, error) {
	if c.models == nil {
		return "", ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	contents := []*genai.Content{{Role: "user", Parts: parts}}
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr[float32](temperature),
	}

	resp, err := c.models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if resp == nil {
		return "", errors.New("empty response from model")
	}
	text := cleanModelJSON(resp.Text())
	if text == "" {
		return "", errors.New("empty response from model")
	}
	return text, nil
}

// checkAnswer validates a category answer and returns its confidence.
func checkAnswer(category string, confidence *float64) (float64, error) {
	if !domain.IsTaxonomyCategory(category) {
		return 0, fmt.Errorf("category %q not in taxonomy", category)
	}
	if confidence == nil {
		return 0, errors.New("missing confidence")
	}
	if *confidence < 0 || *confidence > 1 {
		return 0, fmt.Errorf("confidence %v out of range", *confidence)
	}
	return *confidence, nil
}

func (c *GeminiClient) fallbackCategorization(ctx context.Context, op string, err error) Result[Categorization] {
	log := logger.FromContext(ctx)
	log.Warn().Err(err).Str("op", op).Str("model", c.model).Msg("categorization failed, using fallback")
	return FallbackOf(FallbackCategorization(), err)
}

func (c *GeminiClient) fallbackRecategorization(ctx context.Context, err error) Result[Recategorization] {
	log := logger.FromContext(ctx)
	log.Warn().Err(err).Str("op", "Recategorize").Str("model", c.model).Msg("recategorization failed, using fallback")
	return FallbackOf(FallbackRecategorization(), err)
}

func (c *GeminiClient) fallbackReceipt(ctx context.Context, err error) Result[domain.ReceiptData] {
	log := logger.FromContext(ctx)
	log.Warn().Err(err).Str("op", "ExtractReceipt").Str("model", c.model).Msg("receipt extraction failed, using fallback")
	return FallbackOf(FallbackReceipt(), err)
}
