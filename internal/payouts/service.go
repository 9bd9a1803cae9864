package payouts

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/imrishuroy/campus-checkout/internal/apperr"
	"github.com/imrishuroy/campus-checkout/internal/catalog"
	"github.com/imrishuroy/campus-checkout/internal/checkout"
	"github.com/imrishuroy/campus-checkout/internal/money"
	"github.com/imrishuroy/campus-checkout/internal/orders"
	"github.com/imrishuroy/campus-checkout/internal/paystack"
	"github.com/imrishuroy/campus-checkout/internal/refs"
)

// Repository persists payouts. Get returns (nil, nil) when missing.
//
// Each store has a ledger version that Create bumps atomically with the
// payout write. Create fails with ErrLedgerMoved if the version is no longer
// the one passed in, so a balance read at that version is still current.
type Repository interface {
	LedgerVersion(ctx context.Context, storeID string) (int64, error)
	Create(ctx context.Context, p *Payout, version int64) error
	Get(ctx context.Context, reference string) (*Payout, error)
	ListByStore(ctx context.Context, storeID string) ([]Payout, error)
	UpdateStatus(ctx context.Context, p *Payout, expected Status) error
}

// SalesReader reads the settled order lines of a store.
type SalesReader interface {
	ItemsByStore(ctx context.Context, storeID string) ([]orders.Item, error)
	GetOrder(ctx context.Context, orderNumber string) (*orders.Order, error)
}

// Transferer is the gateway side of payouts.
type Transferer interface {
	InitiateTransfer(ctx context.Context, in paystack.TransferRequest) paystack.TransferResult
	CreateTransferRecipient(ctx context.Context, r paystack.Recipient) paystack.RecipientResult
	Banks(ctx context.Context) paystack.BanksResult
}

const (
	createAttempts  = 5
	reserveAttempts = 5
)

type Service struct {
	repo     Repository
	sales    SalesReader
	catalog  *catalog.Accessor
	gateway  Transferer
	currency string
	nowFunc  func() time.Time
	newToken func() string
}

func NewService(repo Repository, sales SalesReader, cat *catalog.Accessor, gateway Transferer, currency string) *Service {
	if currency == "" {
		currency = money.DefaultCurrency
	}
	return &Service{
		repo:     repo,
		sales:    sales,
		catalog:  cat,
		gateway:  gateway,
		currency: currency,
		nowFunc:  time.Now,
		newToken: refs.Token,
	}
}

// Balance computes the seller's earnings from paid orders minus the
// platform share and payouts already made or in flight.
func (s *Service) Balance(ctx context.Context, sellerID string) (*Balance, error) {
	shop, err := s.catalog.ShopOf(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	return s.balance(ctx, shop.StoreID)
}

func (s *Service) balance(ctx context.Context, storeID string) (*Balance, error) {
	items, err := s.sales.ItemsByStore(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("items by store: %w", err)
	}
	paid := map[string]bool{}
	sales := money.Zero
	for _, it := range items {
		isPaid, seen := paid[it.OrderNumber]
		if !seen {
			o, err := s.sales.GetOrder(ctx, it.OrderNumber)
			if err != nil {
				return nil, fmt.Errorf("get order: %w", err)
			}
			isPaid = o != nil && o.IsPaid()
			paid[it.OrderNumber] = isPaid
		}
		if isPaid {
			sales = sales.Add(it.Total)
		}
	}

	list, err := s.repo.ListByStore(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}
	done, inFlight := money.Zero, money.Zero
	for _, p := range list {
		switch p.Status {
		case StatusCompleted:
			done = done.Add(p.Amount)
		case StatusPending, StatusProcessing:
			inFlight = inFlight.Add(p.Amount)
		}
	}

	b := &Balance{
		TotalSales:     sales,
		PlatformFees:   checkout.PlatformFee(sales),
		TotalPayouts:   done,
		PendingPayouts: inFlight,
		Currency:       s.currency,
	}
	b.AvailableBalance = money.Max(sales.Sub(b.PlatformFees).Sub(done).Sub(inFlight), money.Zero)
	return b, nil
}

// Request creates a payout for amount and starts the gateway transfer. If
// the gateway refuses, the payout is kept as failed with the reason and a
// GatewayFailure is returned alongside it.
func (s *Service) Request(ctx context.Context, sellerID string, amount money.Amount, recipientCode string) (*Payout, error) {
	if !amount.IsPositive() {
		return nil, apperr.InvalidRequest("amount must be greater than zero")
	}
	if recipientCode == "" {
		return nil, apperr.InvalidRequest("recipient_code is required")
	}
	shop, err := s.catalog.ShopOf(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	p, err := s.reserve(ctx, shop, amount, recipientCode)
	if err != nil {
		return nil, err
	}

	if err := s.move(ctx, p, StatusProcessing, ""); err != nil {
		return nil, err
	}
	out := s.gateway.InitiateTransfer(ctx, paystack.TransferRequest{
		RecipientCode: recipientCode,
		Amount:        amount,
		Reference:     p.Reference,
		Reason:        fmt.Sprintf("Payout %s for %s", p.Reference, shop.Name),
	})
	if !out.Success {
		log.Printf("[payouts] transfer failed ref=%s store=%s msg=%q", p.Reference, p.StoreID, out.Message)
		if err := s.move(ctx, p, StatusFailed, "Failed: "+out.Message); err != nil {
			return nil, err
		}
		return p, apperr.GatewayFailure("transfer failed: " + out.Message)
	}
	p.TransferCode = out.TransferCode
	if err := s.move(ctx, p, StatusProcessing, ""); err != nil {
		// a fast transfer webhook may already have finished it
		log.Printf("[payouts] record transfer code ref=%s: %v", p.Reference, err)
	}
	log.Printf("[payouts] transfer started ref=%s store=%s amount=%s code=%s", p.Reference, p.StoreID, amount, out.TransferCode)
	return p, nil
}

// reserve creates the pending payout if amount fits the available balance.
// The balance is read at a ledger version and the payout is only written if
// no other payout for the store landed in between; otherwise it re-reads.
func (s *Service) reserve(ctx context.Context, shop *catalog.Shop, amount money.Amount, recipientCode string) (*Payout, error) {
	for round := 1; ; round++ {
		version, err := s.repo.LedgerVersion(ctx, shop.StoreID)
		if err != nil {
			return nil, fmt.Errorf("ledger version: %w", err)
		}
		bal, err := s.balance(ctx, shop.StoreID)
		if err != nil {
			return nil, err
		}
		if amount.GreaterThan(bal.AvailableBalance) {
			return nil, apperr.InvalidRequest("insufficient balance: %s available", money.Format(bal.AvailableBalance, s.currency))
		}

		now := s.nowFunc().UTC()
		p := &Payout{
			StoreID:       shop.StoreID,
			StoreName:     shop.Name,
			Amount:        amount,
			Fee:           money.Zero,
			Currency:      s.currency,
			Status:        StatusPending,
			PaymentMethod: "bank_transfer",
			RecipientCode: recipientCode,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		for attempt := 1; ; attempt++ {
			p.Reference = refs.Payout(s.newToken())
			err = s.repo.Create(ctx, p, version)
			if !errors.Is(err, ErrReferenceTaken) || attempt >= createAttempts {
				break
			}
		}
		switch {
		case err == nil:
			return p, nil
		case errors.Is(err, ErrLedgerMoved) && round < reserveAttempts:
			log.Printf("[payouts] ledger moved store=%s version=%d, re-reading balance", shop.StoreID, version)
			continue
		case errors.Is(err, ErrLedgerMoved):
			return nil, apperr.Conflict("payouts for store %s are changing, try again", shop.StoreID)
		}
		return nil, fmt.Errorf("create payout: %w", err)
	}
}

// move persists a status change. Moving to the current status only
// refreshes the transfer code.
func (s *Service) move(ctx context.Context, p *Payout, to Status, note string) error {
	from := p.Status
	now := s.nowFunc().UTC()
	if from == to {
		p.UpdatedAt = now
	} else if err := p.transition(to, now); err != nil {
		return err
	}
	if note != "" {
		p.Notes = note
	}
	err := s.repo.UpdateStatus(ctx, p, from)
	if errors.Is(err, ErrStatusMismatch) {
		return apperr.Conflict("payout %s was modified concurrently", p.Reference)
	}
	return err
}

func (s *Service) List(ctx context.Context, sellerID string) ([]Payout, error) {
	shop, err := s.catalog.ShopOf(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByStore(ctx, shop.StoreID)
}

func (s *Service) payout(ctx context.Context, reference string) (*Payout, error) {
	p, err := s.repo.Get(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("get payout: %w", err)
	}
	if p == nil {
		return nil, apperr.NotFound("payout not found")
	}
	return p, nil
}

// TransferSucceeded completes a processing payout. Replays are no-ops.
func (s *Service) TransferSucceeded(ctx context.Context, reference string) error {
	p, err := s.payout(ctx, reference)
	if err != nil {
		return err
	}
	if p.Status == StatusCompleted {
		return nil
	}
	if err := s.move(ctx, p, StatusCompleted, ""); err != nil {
		return err
	}
	log.Printf("[payouts] completed ref=%s store=%s amount=%s", p.Reference, p.StoreID, p.Amount)
	return nil
}

// TransferFailed fails a payout, returning its amount to the balance.
func (s *Service) TransferFailed(ctx context.Context, reference, reason string) error {
	p, err := s.payout(ctx, reference)
	if err != nil {
		return err
	}
	if p.Status == StatusFailed {
		return nil
	}
	if err := s.move(ctx, p, StatusFailed, "Failed: "+reason); err != nil {
		return err
	}
	log.Printf("[payouts] failed ref=%s store=%s reason=%q", p.Reference, p.StoreID, reason)
	return nil
}

// AddRecipient registers a bank account with the gateway and returns the
// recipient code to use for payouts.
func (s *Service) AddRecipient(ctx context.Context, sellerID string, r paystack.Recipient) (string, error) {
	if _, err := s.catalog.ShopOf(ctx, sellerID); err != nil {
		return "", err
	}
	out := s.gateway.CreateTransferRecipient(ctx, r)
	if !out.Success {
		return "", apperr.GatewayFailure("could not register recipient: " + out.Message)
	}
	return out.RecipientCode, nil
}

func (s *Service) Banks(ctx context.Context) ([]paystack.Bank, error) {
	out := s.gateway.Banks(ctx)
	if !out.Success {
		return nil, apperr.GatewayFailure("could not list banks: " + out.Message)
	}
	return out.Banks, nil
}
