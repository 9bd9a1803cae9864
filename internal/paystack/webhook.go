package paystack

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// SignatureHeader carries the HMAC of the raw webhook body.
const SignatureHeader = "X-Paystack-Signature"

// Webhook event names.
const (
	EventChargeSuccess   = "charge.success"
	EventTransferSuccess = "transfer.success"
	EventTransferFailed  = "transfer.failed"
	EventTransferReverse = "transfer.reversed"
)

// VerifyWebhookSignature checks the hex HMAC-SHA512 of payload keyed by the
// secret key. A missing signature is rejected without computing the HMAC.
func (c *Client) VerifyWebhookSignature(payload []byte, signature string) bool {
	return VerifySignature(c.cfg.SecretKey, payload, signature)
}

func VerifySignature(secret string, payload []byte, signature string) bool {
	if signature == "" || secret == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Sign computes the signature the gateway would send for payload.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Event is a decoded webhook body.
type Event struct {
	Event string    `json:"event"`
	Data  EventData `json:"data"`
}

type EventData struct {
	Reference    string `json:"reference"`
	Status       string `json:"status,omitempty"`
	TransferCode string `json:"transfer_code,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// ParseEvent decodes a webhook body. Callers must verify the signature first.
func ParseEvent(payload []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}
	if ev.Event == "" {
		return nil, fmt.Errorf("decode webhook: missing event name")
	}
	return &ev, nil
}
