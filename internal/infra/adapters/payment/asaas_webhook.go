package payment

import "crypto/subtle"

// WebhookTokenHeader carries the shared secret configured for the Asaas webhook.
const WebhookTokenHeader = "asaas-access-token"

// VerifyWebhookToken compares the received header with the configured token
// in constant time. An empty configured token disables the check.
func VerifyWebhookToken(expected, received string) bool {
	if expected == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(received)) == 1
}
