package services

import (
	"errors"
	"strings"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrProductNotFound indicates an ordered product does not exist.
	ErrProductNotFound = errors.New("order: product not found")
	// ErrOrderForbidden indicates the actor may not access the order.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderAlreadyPaid indicates a payment was requested for a paid order.
	ErrOrderAlreadyPaid = errors.New("order: already paid")
	// ErrOrderConflict indicates a duplicate or concurrent write.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrPaymentProvider wraps provider rejections whose message is safe to show.
	ErrPaymentProvider = errors.New("payment: provider error")
	// ErrWebhookSignature indicates the webhook payload could not be verified.
	ErrWebhookSignature = errors.New("webhook: signature verification failed")
	// ErrWebhookPayload indicates a verified webhook payload could not be decoded.
	ErrWebhookPayload = errors.New("webhook: malformed payload")
)

// Message returns the caller-facing part of an error wrapped as fmt.Errorf("%w: msg", sentinel).
func Message(err error, sentinel error) string {
	if err == nil {
		return ""
	}
	text := err.Error()
	if sentinel != nil {
		if trimmed, ok := strings.CutPrefix(text, sentinel.Error()+": "); ok {
			return trimmed
		}
	}
	return text
}
