package notionsync

import (
	"time"

	"github.com/dvloznov/dapfinance/internal/domain"
	"github.com/jomei/notionapi"
)

// Property names of the Notion transactions database.
const (
	PropDescription   = "Description"
	PropDate          = "Date"
	PropAmount        = "Amount"
	PropCurrency      = "Currency"
	PropCategory      = "Category"
	PropStatus        = "Status"
	PropAccount       = "Account"
	PropMerchant      = "Merchant"
	PropSource        = "Source"
	PropNote          = "Note"
	PropTransactionID = "Transaction ID"
	PropImportedAt    = "Imported At"
)

func richText(content string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{
				Content: content,
			},
		},
	}
}

func dateProperty(t time.Time) notionapi.DateProperty {
	d := notionapi.Date(t)
	return notionapi.DateProperty{
		Date: &notionapi.DateObject{
			Start: &d,
		},
	}
}

// TransactionToNotionProperties converts a transaction to Notion page properties.
func TransactionToNotionProperties(tx *domain.Transaction) notionapi.Properties {
	currency := tx.Currency
	if currency == "" {
		currency = domain.DefaultCurrency
	}

	props := notionapi.Properties{
		PropDescription: notionapi.TitleProperty{
			Title: richText(tx.Description),
		},
		PropAmount: notionapi.NumberProperty{
			Number: tx.Amount.InexactFloat64(),
		},
		PropCurrency: notionapi.SelectProperty{
			Select: notionapi.Option{Name: currency},
		},
		PropTransactionID: notionapi.RichTextProperty{
			RichText: richText(tx.ID),
		},
		PropImportedAt: dateProperty(tx.CreatedAt),
	}

	// Dates that never normalized stay out of the Date column.
	if d, err := time.Parse("2006-01-02", tx.Date); err == nil {
		props[PropDate] = dateProperty(d)
	}

	if tx.Category != "" {
		props[PropCategory] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: tx.Category},
		}
	}

	if tx.Status != "" {
		props[PropStatus] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(tx.Status)},
		}
	}

	if tx.Source != "" {
		props[PropSource] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: tx.Source},
		}
	}

	if tx.AccountID != "" {
		props[PropAccount] = notionapi.RichTextProperty{
			RichText: richText(tx.AccountID),
		}
	}

	if tx.Merchant != nil && *tx.Merchant != "" {
		props[PropMerchant] = notionapi.RichTextProperty{
			RichText: richText(*tx.Merchant),
		}
	}

	if tx.Note != "" {
		props[PropNote] = notionapi.RichTextProperty{
			RichText: richText(tx.Note),
		}
	}

	return props
}

// AccountToNotionProperties converts an account to Notion page properties.
func AccountToNotionProperties(acc *domain.Account) notionapi.Properties {
	props := notionapi.Properties{
		"Account ID": notionapi.TitleProperty{
			Title: richText(acc.ID),
		},
		"Current Balance": notionapi.NumberProperty{
			Number: acc.CurrentBalance.InexactFloat64(),
		},
	}

	if acc.Name != "" {
		props["Account Name"] = notionapi.RichTextProperty{
			RichText: richText(acc.Name),
		}
	}

	if acc.Institution != "" {
		props["Institution"] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: acc.Institution},
		}
	}

	if acc.Currency != "" {
		props["Currency"] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: acc.Currency},
		}
	}

	if acc.LastSyncedAt != nil {
		props["Last Synced"] = dateProperty(*acc.LastSyncedAt)
	}

	return props
}

// plainText returns the text of a title or rich text property.
// Returns empty string if not found.
func plainText(page notionapi.Page, name string) string {
	var parts []notionapi.RichText
	switch prop := page.Properties[name].(type) {
	case *notionapi.RichTextProperty:
		parts = prop.RichText
	case notionapi.RichTextProperty:
		parts = prop.RichText
	case *notionapi.TitleProperty:
		parts = prop.Title
	case notionapi.TitleProperty:
		parts = prop.Title
	}
	if len(parts) == 0 {
		return ""
	}
	if parts[0].PlainText != "" {
		return parts[0].PlainText
	}
	if parts[0].Text != nil {
		return parts[0].Text.Content
	}
	return ""
}

// extractTransactionID extracts the transaction ID from a Notion page's properties.
func extractTransactionID(page notionapi.Page) string {
	return plainText(page, PropTransactionID)
}

// extractAccountID extracts the account ID from a Notion page's properties.
func extractAccountID(page notionapi.Page) string {
	return plainText(page, "Account ID")
}
