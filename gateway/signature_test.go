package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sign(secret string, message []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyPaymentSignature(t *testing.T) {
	secret := "key_secret"
	valid := sign(secret, []byte("order_1|pay_1"))

	assert.True(t, VerifyPaymentSignature(secret, "order_1", "pay_1", valid))
	assert.False(t, VerifyPaymentSignature(secret, "order_1", "pay_2", valid))
	assert.False(t, VerifyPaymentSignature(secret, "order_2", "pay_1", valid))
	assert.False(t, VerifyPaymentSignature("other_secret", "order_1", "pay_1", valid))
	assert.False(t, VerifyPaymentSignature(secret, "order_1", "pay_1", ""))
}

func TestVerifyWebhookSignature(t *testing.T) {
	secret := "webhook_secret"
	body := []byte(`{"event":"refund.processed"}`)
	valid := sign(secret, body)

	assert.True(t, VerifyWebhookSignature(secret, body, valid))
	assert.False(t, VerifyWebhookSignature(secret, []byte(`{"event":"refund.failed"}`), valid),
		"altered body must not verify against the original signature")
	assert.False(t, VerifyWebhookSignature("other_secret", body, valid))
	assert.False(t, VerifyWebhookSignature(secret, body, valid[:len(valid)-1]))
}
