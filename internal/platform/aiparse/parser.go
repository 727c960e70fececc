// Package aiparse turns free-form text such as "lunch 120 yesterday" into a
// transaction draft. A nil draft means the text could not be parsed; it is
// never reported as an error.
package aiparse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/household-ledger/internal/config"
	"github.com/household-ledger/internal/domain/schedule"
	"github.com/household-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
	"google.golang.org/genai"
)

// FallbackCategory is used when the model is unsure and the ledger has it.
const FallbackCategory = "其他"

// ParsedTransaction is a draft the user confirms before it is recorded.
type ParsedTransaction struct {
	Amount      decimal.Decimal        `json:"amount"`
	Type        shared.TransactionType `json:"type"`
	Category    string                 `json:"category"`
	Description string                 `json:"description"`
	Rewards     decimal.Decimal        `json:"rewards"`
	Date        *schedule.Date         `json:"date,omitempty"`
}

// Parser extracts a transaction draft restricted to categories.
type Parser interface {
	Parse(ctx context.Context, text string, categories []string) (*ParsedTransaction, error)
}

type generateFunc func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error)

// GeminiParser asks a Gemini model for a JSON answer constrained by a response schema.
type GeminiParser struct {
	generate generateFunc
	model    string
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewGeminiParser(ctx context.Context, logger *slog.Logger, cfg *config.GeminiConfig) (*GeminiParser, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	generate := func(ctx context.Context, model string, contents []*genai.Content, gc *genai.GenerateContentConfig) (string, error) {
		resp, err := client.Models.GenerateContent(ctx, model, contents, gc)
		if err != nil {
			return "", err
		}
		return resp.Text(), nil
	}
	return newGeminiParser(logger, cfg, generate), nil
}

func newGeminiParser(logger *slog.Logger, cfg *config.GeminiConfig, generate generateFunc) *GeminiParser {
	return &GeminiParser{
		generate: generate,
		model:    cfg.Model,
		timeout:  cfg.Timeout,
		logger:   logger,
		now:      time.Now,
	}
}

// Parse returns nil when the model fails or answers with something unusable.
// Only a canceled ctx is returned as an error.
func (p *GeminiParser) Parse(ctx context.Context, text string, categories []string) (*ParsedTransaction, error) {
	text = strings.TrimSpace(text)
	if text == "" || len(categories) == 0 {
		return nil, nil
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	today := schedule.DateOf(p.now())
	answer, err := p.generate(ctx, p.model, genai.Text(prompt(text, categories, today)), responseConfig(categories))
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		p.logger.Warn("Gemini request failed", "model", p.model, "error", err)
		return nil, nil
	}

	parsed, err := decodeAnswer(answer, categories)
	if err != nil {
		p.logger.Warn("Discarding unusable parse result", "model", p.model, "error", err)
		return nil, nil
	}
	return parsed, nil
}

func prompt(text string, categories []string, today schedule.Date) string {
	return fmt.Sprintf(`Analyze this financial input: %q.
Context: Today is %s.
Requirements:
1. Amount: Extract number.
2. Type: 'EXPENSE' or 'INCOME'.
3. Category: Select strictly from: [%s]. If unsure, use '%s'.
4. Description: Short summary in Traditional Chinese (NO numbers).
5. Rewards: Extract points/cashback value.
6. Date: YYYY-MM-DD format if mentioned, else null.`,
		text, today, strings.Join(categories, ", "), FallbackCategory)
}

func responseConfig(categories []string) *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"amount":      {Type: genai.TypeNumber},
				"type":        {Type: genai.TypeString, Enum: []string{string(shared.TransactionTypeIncome), string(shared.TransactionTypeExpense)}},
				"category":    {Type: genai.TypeString, Enum: categories},
				"description": {Type: genai.TypeString},
				"rewards":     {Type: genai.TypeNumber},
				"date":        {Type: genai.TypeString, Nullable: genai.Ptr(true)},
			},
			Required: []string{"amount", "type", "category", "description"},
		},
	}
}

type answerPayload struct {
	Amount      decimal.Decimal  `json:"amount"`
	Type        string           `json:"type"`
	Category    string           `json:"category"`
	Description string           `json:"description"`
	Rewards     *decimal.Decimal `json:"rewards"`
	Date        *string          `json:"date"`
}

func decodeAnswer(answer string, categories []string) (*ParsedTransaction, error) {
	if strings.TrimSpace(answer) == "" {
		return nil, errors.New("empty answer")
	}
	var raw answerPayload
	if err := json.Unmarshal([]byte(answer), &raw); err != nil {
		return nil, fmt.Errorf("answer is not valid JSON: %w", err)
	}
	if !raw.Amount.IsPositive() {
		return nil, fmt.Errorf("amount %s is not positive", raw.Amount)
	}
	tt, err := shared.ParseTransactionType(raw.Type)
	if err != nil {
		return nil, err
	}

	category := strings.TrimSpace(raw.Category)
	if !slices.Contains(categories, category) {
		if !slices.Contains(categories, FallbackCategory) {
			return nil, fmt.Errorf("category %q is not offered", category)
		}
		category = FallbackCategory
	}

	parsed := &ParsedTransaction{
		Amount:      raw.Amount,
		Type:        tt,
		Category:    category,
		Description: strings.TrimSpace(raw.Description),
		Rewards:     decimal.Zero,
	}
	if raw.Rewards != nil && raw.Rewards.IsPositive() {
		parsed.Rewards = *raw.Rewards
	}
	if raw.Date != nil && *raw.Date != "" {
		// An unreadable date is dropped; the caller defaults to today.
		if d, err := schedule.Parse(*raw.Date); err == nil {
			parsed.Date = &d
		}
	}
	return parsed, nil
}
