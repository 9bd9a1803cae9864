// Package payouts pays sellers their share of settled sales through gateway
// transfers.
package payouts

import (
	"time"

	"github.com/imrishuroy/campus-checkout/internal/apperr"
	"github.com/imrishuroy/campus-checkout/internal/money"
)

const timeLayout = time.RFC3339Nano

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Payout is one transfer request by a store.
type Payout struct {
	Reference     string       `dynamodbav:"reference" json:"reference"` // PK
	StoreID       string       `dynamodbav:"store_id" json:"store_id"`
	StoreName     string       `dynamodbav:"store_name,omitempty" json:"store_name,omitempty"`
	Amount        money.Amount `dynamodbav:"amount" json:"amount"`
	Fee           money.Amount `dynamodbav:"fee" json:"fee"`
	Currency      string       `dynamodbav:"currency" json:"currency"`
	Status        Status       `dynamodbav:"status" json:"status"`
	PaymentMethod string       `dynamodbav:"payment_method" json:"payment_method"`
	RecipientCode string       `dynamodbav:"recipient_code" json:"recipient_code"`
	TransferCode  string       `dynamodbav:"transfer_code,omitempty" json:"transfer_code,omitempty"`
	Notes         string       `dynamodbav:"notes,omitempty" json:"notes,omitempty"`
	ProcessedAt   *time.Time   `dynamodbav:"processed_at,omitempty" json:"processed_at,omitempty"`
	CreatedAt     time.Time    `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `dynamodbav:"updated_at" json:"updated_at"`
}

func (p *Payout) transition(to Status, at time.Time) error {
	if !CanTransition(p.Status, to) {
		return apperr.InvalidTransition(string(p.Status), string(to))
	}
	p.Status = to
	p.UpdatedAt = at
	if to == StatusCompleted {
		t := at
		p.ProcessedAt = &t
	}
	return nil
}

// Balance is a store's earnings position.
type Balance struct {
	TotalSales       money.Amount `json:"total_sales"`
	PlatformFees     money.Amount `json:"platform_fees"`
	TotalPayouts     money.Amount `json:"total_payouts"`
	PendingPayouts   money.Amount `json:"pending_payouts"`
	AvailableBalance money.Amount `json:"available_balance"`
	Currency         string       `json:"currency"`
}
