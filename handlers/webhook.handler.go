package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"payments-service/domain"
	"payments-service/gateway"
	"payments-service/services"
)

// webhookEvent is the slice of the provider's payload this service reads.
type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Refund struct {
			Entity struct {
				ID        string `json:"id"`
				PaymentID string `json:"payment_id"`
				Status    string `json:"status"`
			} `json:"entity"`
		} `json:"refund"`
	} `json:"payload"`
}

type WebhookHandler struct {
	refundStatus  services.RefundStatusService
	webhookSecret string
	logger        *logrus.Logger
	Tracer        trace.Tracer
}

func NewWebhookHandler(refundStatus services.RefundStatusService, webhookSecret string, logger *logrus.Logger, tr trace.Tracer) WebhookHandler {
	return WebhookHandler{
		refundStatus:  refundStatus,
		webhookSecret: webhookSecret,
		logger:        logger,
		Tracer:        tr,
	}
}

// HandleWebhook takes the gateway's push notifications. 401 means the
// signature did not check out; 500 asks the gateway to redeliver, which is
// safe because the refund status updater is idempotent. Everything else,
// including events this service does not care about, is a 200 so the
// provider stops retrying.
func (s *WebhookHandler) HandleWebhook(c *gin.Context) {
	spanCtx, span := s.Tracer.Start(c.Request.Context(), "WebhookHandler.HandleWebhook")
	defer span.End()

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		span.SetStatus(codes.Error, "Failed to read webhook body")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid webhook"})
		return
	}

	signature := c.GetHeader("X-Razorpay-Signature")
	if !gateway.VerifyWebhookSignature(s.webhookSecret, body, signature) {
		// Logged apart from ordinary validation noise: either someone is
		// probing this endpoint or the webhook secret is misconfigured.
		s.logger.WithFields(logrus.Fields{"remote_addr": c.ClientIP()}).
			Warn("Webhook signature mismatch")
		span.SetStatus(codes.Error, "Webhook signature mismatch")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		span.SetStatus(codes.Error, "Failed to parse webhook payload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to parse webhook payload"})
		return
	}

	var outcome domain.RefundOutcome
	switch event.Event {
	case "refund.processed":
		outcome = domain.OutcomeCompleted
	case "refund.failed":
		outcome = domain.OutcomeFailed
	case "refund.created":
		s.logger.WithFields(logrus.Fields{"refund_id": event.Payload.Refund.Entity.ID}).
			Info("Refund created at gateway")
		span.SetStatus(codes.Ok, "Refund created, informational")
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	default:
		span.SetStatus(codes.Ok, "Ignored event type")
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	refundID := event.Payload.Refund.Entity.ID
	result, err := s.refundStatus.Apply(refundID, outcome, spanCtx)
	if err != nil {
		if errors.Is(err, domain.ErrReservationNotFound) {
			// Not ours; redelivery can never succeed, so do not ask for it.
			s.logger.WithFields(logrus.Fields{"refund_id": refundID}).
				Warn("Webhook for unknown refund transaction")
			span.SetStatus(codes.Ok, "Unknown refund transaction")
			c.JSON(http.StatusOK, gin.H{"status": "unknown refund"})
			return
		}
		span.SetStatus(codes.Error, err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process webhook"})
		return
	}

	span.SetStatus(codes.Ok, "Webhook processed")
	c.JSON(http.StatusOK, gin.H{"status": string(result)})
}
