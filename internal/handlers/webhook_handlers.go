package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"leavedesk/internal/common"
	"leavedesk/internal/metrics"
	"leavedesk/internal/models"
	"leavedesk/internal/services"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const maxWebhookBodyBytes = 1 << 20

// WebhookHandlers handles HTTP requests for webhooks
type WebhookHandlers struct {
	webhookService services.WebhookService
	webhookSecret  string
}

func NewWebhookHandlers(webhookService services.WebhookService, webhookSecret string) *WebhookHandlers {
	return &WebhookHandlers{
		webhookService: webhookService,
		webhookSecret:  webhookSecret,
	}
}

type WebhookResponse struct {
	Success bool                    `json:"success"`
	Result  *services.WebhookResult `json:"result"`
}

// verifySignature checks the hex HMAC-SHA256 of the raw body.
func (h *WebhookHandlers) verifySignature(signature string, body []byte) bool {
	mac := hmac.New(sha256.New, []byte(h.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}

// LemonSqueezyWebhook godoc
// @Summary      Receive a LemonSqueezy webhook
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        X-Signature  header  string  true  "HMAC-SHA256 of the body"
// @Success      200  {object}  WebhookResponse
// @Failure      400  {object}  common.FailureResponse
// @Failure      401  {object}  common.FailureResponse
// @Failure      404  {object}  common.FailureResponse
// @Failure      413  {object}  common.FailureResponse
// @Router       /webhooks/lemonsqueezy [post]
func (h *WebhookHandlers) LemonSqueezyWebhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBodyBytes+1))
	if err != nil {
		return common.SendFailure(c, http.StatusBadRequest, "Failed to read request body")
	}
	if len(body) > maxWebhookBodyBytes {
		metrics.RecordWebhookEvent("unknown", "rejected")
		return common.SendFailure(c, http.StatusRequestEntityTooLarge, "Webhook body too large")
	}

	signature := c.Request().Header.Get("X-Signature")
	if signature == "" {
		metrics.RecordWebhookEvent("unknown", "rejected")
		return common.SendFailure(c, http.StatusBadRequest, "Missing webhook signature")
	}
	if !h.verifySignature(signature, body) {
		metrics.RecordWebhookEvent("unknown", "rejected")
		return common.SendFailure(c, http.StatusUnauthorized, "Invalid webhook signature")
	}

	var payload models.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.RecordWebhookEvent("unknown", "rejected")
		return common.SendFailure(c, http.StatusBadRequest, "Invalid webhook payload")
	}
	if err := c.Validate(&payload); err != nil {
		return common.SendFailure(c, http.StatusBadRequest, "Invalid webhook payload: "+validationMessage(err))
	}

	result, err := h.webhookService.HandleEvent(c.Request().Context(), &payload, body)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrSubscriptionNotFound):
			return common.SendFailure(c, http.StatusNotFound, err.Error())
		case errors.Is(err, services.ErrOrganizationUnresolved):
			return common.SendFailure(c, http.StatusUnprocessableEntity, err.Error())
		}
		log.Error().Err(err).Str("event", payload.Meta.EventName).Msg("webhook request failed")
		return common.SendInternalError(c, err, "Failed to process webhook")
	}

	return c.JSON(http.StatusOK, WebhookResponse{Success: true, Result: result})
}

func validationMessage(err error) string {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		if msg, ok := httpErr.Message.(string); ok {
			return msg
		}
	}
	return err.Error()
}
