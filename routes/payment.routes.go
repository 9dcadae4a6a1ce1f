package routes

import (
	"github.com/gin-gonic/gin"

	"payments-service/handlers"
)

type PaymentRouteHandler struct {
	paymentHandler      handlers.PaymentHandler
	cancellationHandler handlers.CancellationHandler
	webhookHandler      handlers.WebhookHandler
}

func NewPaymentRouteHandler(paymentHandler handlers.PaymentHandler, cancellationHandler handlers.CancellationHandler,
	webhookHandler handlers.WebhookHandler) PaymentRouteHandler {
	return PaymentRouteHandler{paymentHandler, cancellationHandler, webhookHandler}
}

func (pr *PaymentRouteHandler) PaymentRoute(rg *gin.RouterGroup) {
	router := rg.Group("/payments")
	router.Use(MiddlewareContentTypeSet)
	router.Use(handlers.ExtractTraceInfoMiddleware())
	router.POST("/orders", pr.paymentHandler.CreateOrder)
	router.POST("/verify", pr.paymentHandler.VerifyPayment)
	router.POST("/cancel/:reservationId", pr.cancellationHandler.CancelReservation)
	router.GET("/reservations", pr.paymentHandler.GetReservationsForGuest)
	router.GET("/reservations/:id", pr.paymentHandler.GetReservation)
	router.GET("/cancellations/:reservationId", pr.paymentHandler.GetCancellation)

	// The gateway signs its own requests; no Authorization header here.
	webhook := rg.Group("/webhooks")
	webhook.POST("/razorpay", pr.webhookHandler.HandleWebhook)
}

func MiddlewareContentTypeSet(c *gin.Context) {
	c.Header("Content-Type", "application/json")
	c.Next()
}
