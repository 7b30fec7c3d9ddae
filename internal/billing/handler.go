package billing

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"coursehub/internal/api"
	"coursehub/internal/logger"
	"coursehub/internal/metrics"
)

const maxPayloadBytes = 1 << 20

type Handler struct {
	verifier        *Verifier
	reconciler      *Reconciler
	signatureHeader string
}

func NewHandler(verifier *Verifier, reconciler *Reconciler, signatureHeader string) *Handler {
	if signatureHeader == "" {
		signatureHeader = "Stripe-Signature"
	}
	return &Handler{
		verifier:        verifier,
		reconciler:      reconciler,
		signatureHeader: signatureHeader,
	}
}

// Webhook godoc
// @Summary      Payment processor webhook
// @Description  Verifies the signature over the raw body, then applies the event. Unknown and undecodable signed events are acknowledged.
// @Tags         billing
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]any
// @Failure      400  {object}  api.ErrorResponse
// @Failure      500  {object}  api.ErrorResponse
// @Router       /webhooks/payments [post]
func (h *Handler) Webhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxPayloadBytes)
	payload, err := c.GetRawData()
	if err != nil {
		api.RespondBadRequest(c, "invalid_body", "Unable to read request body")
		return
	}

	ctx := c.Request.Context()

	if err := h.verifier.Verify(ctx, payload, c.GetHeader(h.signatureHeader)); err != nil {
		logger.Warn("payment webhook rejected", "error", err, "client_ip", c.ClientIP())
		metrics.RecordWebhookEvent("unverified", "rejected")
		api.RespondError(c, err)
		return
	}

	ev, err := ParseEvent(payload)
	if err != nil {
		logger.Error("verified payment event could not be decoded", "error", err, "payload_bytes", len(payload))
		metrics.RecordWebhookEvent("malformed", string(OutcomeMalformed))
		c.JSON(http.StatusOK, gin.H{"received": true, "outcome": OutcomeMalformed})
		return
	}

	outcome, err := h.reconciler.Handle(ctx, ev)
	if err != nil {
		api.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"received": true,
		"event_id": ev.EventID(),
		"outcome":  outcome,
	})
}
