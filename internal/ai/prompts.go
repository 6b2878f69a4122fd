package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dvloznov/dapfinance/internal/domain"
	"github.com/shopspring/decimal"
)

func taxonomyList() string {
	return strings.Join(domain.Taxonomy, ", ")
}

func categorizeSystemPrompt() string {
	return "You are a financial transaction categorizer. Given a transaction, return JSON with:\n" +
		"- \"category\": one of: " + taxonomyList() + "\n" +
		"- \"confidence\": 0-1 float\n" +
		"- \"merchant\": cleaned merchant name or null\n\n" +
		"Return ONLY a raw JSON object. Do NOT use Markdown code fences."
}

func categorizeUserPrompt(description string, amount decimal.Decimal, currency, date string) string {
	return fmt.Sprintf("Categorize: %q, amount: %s %s, date: %s", description, amount.String(), currency, date)
}

const receiptSystemPrompt = "You extract structured data from receipt images. Return JSON with:\n" +
	"- \"merchant\": string or null\n" +
	"- \"date\": ISO date string or null\n" +
	"- \"total\": number or null\n" +
	"- \"currency\": 3-letter code or null\n" +
	"- \"items\": array of {name, amount, quantity, category}\n" +
	"- \"tax\": number or null\n" +
	"- \"tip\": number or null\n\n" +
	"Return ONLY a raw JSON object. Do NOT use Markdown code fences."

const receiptUserPrompt = "Extract all data from this receipt:"

func recategorizeSystemPrompt() string {
	return "You re-categorize financial transactions with additional context. Return JSON with:\n" +
		"- \"category\": one of: " + taxonomyList() + "\n" +
		"- \"confidence\": 0-1 float\n\n" +
		"Return ONLY a raw JSON object. Do NOT use Markdown code fences."
}

func recategorizeUserPrompt(description string, amount decimal.Decimal, note string, extracted *domain.ReceiptData) string {
	lines := []string{
		fmt.Sprintf("Description: %q", description),
		"Amount: " + amount.String(),
	}
	if note != "" {
		lines = append(lines, fmt.Sprintf("Note: %q", note))
	}
	if extracted != nil {
		if b, err := json.Marshal(extracted); err == nil {
			lines = append(lines, "Extracted data: "+string(b))
		}
	}
	return "Re-categorize with this context:\n" + strings.Join(lines, "\n")
}

// cleanModelJSON strips Markdown code fences the model may add despite
// instructions.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return s
		}
		s = strings.TrimSpace(s[idx+1:])
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
