package paymentwebhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"

	"github.com/google/uuid"

	pkgerrors "github.com/oakline/marketplace-backend/pkg/errors"
)

// SignatureHeader carries the gateway's HMAC over the raw body.
const SignatureHeader = "X-Payment-Signature"

// Event is the capture confirmation delivered by the gateway.
type Event struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	OrderID    uuid.UUID `json:"order_id"`
	GatewayRef string    `json:"gateway_ref"`
}

// EventTypeCaptured is the only event type this endpoint acts on.
const EventTypeCaptured = "payment.updated"

// ConstructEvent verifies the HMAC-SHA256 signature and decodes the payload.
func ConstructEvent(payload []byte, signature, secret string) (*Event, error) {
	if signature == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook signature missing")
	}
	if !verifySignature(payload, signature, secret) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature mismatch")
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode webhook payload")
	}
	if event.EventID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook event id missing")
	}
	return &event, nil
}

// Sign computes the signature the gateway attaches. Exported for tests and
// for local webhook replay tooling.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func verifySignature(payload []byte, signature, secret string) bool {
	expected := Sign(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
