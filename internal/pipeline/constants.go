package pipeline

// Defaults for ingestion.
const (
	// WebhookInstitution is the institution tag matched against accounts
	// when resolving the owner of a webhook transaction.
	WebhookInstitution = "wise"

	// MaxImportErrors caps the per-row messages returned for one import.
	MaxImportErrors = 100
)
