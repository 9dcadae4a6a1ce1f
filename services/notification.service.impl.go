package services

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"payments-service/config"
	"payments-service/domain"
	"payments-service/utils"
)

type NotificationServiceImpl struct {
	cfg    *config.Config
	logger *logrus.Logger

	maxAttempts int
	retryBase   time.Duration
	send        func(data *utils.EmailData, cfg *config.Config) error
}

func NewNotificationServiceImpl(cfg *config.Config, logger *logrus.Logger) NotificationService {
	return &NotificationServiceImpl{
		cfg:         cfg,
		logger:      logger,
		maxAttempts: 3,
		retryBase:   2 * time.Second,
		send:        utils.SendEmail,
	}
}

// Dispatch sends the refund outcome mail, retrying transient transport
// errors with exponential backoff. Permanent SMTP rejections are not
// retried. The returned error is informational; callers log it and move on.
func (s *NotificationServiceImpl) Dispatch(kind NotificationKind, recipient string, reservation *domain.Reservation) error {
	if recipient == "" {
		return errors.New("no recipient address on reservation")
	}

	data := &utils.EmailData{
		Subject: s.subject(kind),
		Text:    s.body(kind, reservation),
		Email:   recipient,
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		lastErr = s.send(data, s.cfg)
		if lastErr == nil {
			return nil
		}

		var netErr net.Error
		if !errors.As(lastErr, &netErr) {
			// The server answered and said no; trying again will not help.
			return lastErr
		}
		if attempt == s.maxAttempts {
			break
		}

		backoff := time.Duration(attempt*attempt) * s.retryBase
		s.logger.WithFields(logrus.Fields{"kind": string(kind), "attempt": attempt}).
			Warn("Notification send failed, retrying: ", lastErr)
		time.Sleep(backoff)
	}
	return lastErr
}

func (s *NotificationServiceImpl) subject(kind NotificationKind) string {
	if kind == NotificationRefundSucceeded {
		return "Your refund has been processed"
	}
	return "We could not process your refund"
}

func (s *NotificationServiceImpl) body(kind NotificationKind, reservation *domain.Reservation) string {
	if kind == NotificationRefundSucceeded {
		return fmt.Sprintf(
			"Your reservation %s has been cancelled and %.2f (%d%% of the booking amount) has been refunded to your original payment method.",
			reservation.ID.Hex(), reservation.RefundAmount, reservation.RefundPercentage)
	}
	return fmt.Sprintf(
		"Your reservation %s has been cancelled, but the refund of %.2f could not be processed. Our support team has been notified; please contact us if the amount does not arrive.",
		reservation.ID.Hex(), reservation.RefundAmount)
}
