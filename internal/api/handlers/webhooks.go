package handlers

import (
	"context"
	"crypto/rsa"
	"errors"
	"io"
	"net/http"

	"github.com/dvloznov/dapfinance/internal/api/middleware"
	"github.com/dvloznov/dapfinance/internal/pipeline"
	"github.com/dvloznov/dapfinance/internal/wise"
	"github.com/rs/zerolog"
)

// WebhookIngestor stores a balance-bearing webhook event.
type WebhookIngestor interface {
	IngestWebhook(ctx context.Context, ev pipeline.WebhookEvent) (*pipeline.WebhookResult, error)
}

// WebhooksHandler handles signed provider webhooks.
type WebhooksHandler struct {
	ingestor  WebhookIngestor
	publicKey *rsa.PublicKey
	log       zerolog.Logger
}

// NewWebhooksHandler creates a new webhooks handler. Without a public key
// every delivery is rejected.
func NewWebhooksHandler(ingestor WebhookIngestor, publicKey *rsa.PublicKey, log zerolog.Logger) *WebhooksHandler {
	return &WebhooksHandler{
		ingestor:  ingestor,
		publicKey: publicKey,
		log:       log,
	}
}

// Wise handles POST /api/webhooks/wise
func (h *WebhooksHandler) Wise(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBytes))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// The signature covers the raw bytes, so it is checked before decoding.
	if err := wise.VerifySignature(h.publicKey, body, r.Header.Get(wise.SignatureHeader)); err != nil {
		switch {
		case errors.Is(err, wise.ErrMissingSignature):
			middleware.WriteError(w, http.StatusUnauthorized, "Missing signature")
		case errors.Is(err, wise.ErrNoPublicKey):
			h.log.Error().Msg("Wise webhook received but no public key is configured")
			middleware.WriteError(w, http.StatusUnauthorized, "Invalid signature")
		default:
			h.log.Warn().Err(err).Msg("Rejected Wise webhook")
			middleware.WriteError(w, http.StatusUnauthorized, "Invalid signature")
		}
		return
	}

	ev, err := wise.ParseWebhookPayload(body)
	if err != nil {
		h.log.Warn().Err(err).Msg("Malformed Wise webhook payload")
		if errors.Is(err, pipeline.ErrInvalidEvent) {
			middleware.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	result, err := h.ingestor.IngestWebhook(r.Context(), ev)
	if err != nil {
		if errors.Is(err, pipeline.ErrInvalidEvent) {
			middleware.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error().Err(err).Str("resource_id", ev.ResourceID).Msg("Webhook processing failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Webhook processing failed")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"received":      true,
		"transactionId": result.TransactionID,
		"duplicate":     result.Duplicate,
	})
}
