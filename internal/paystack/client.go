// Package paystack is the payment gateway client. Every call is bounded by a
// timeout and guarded by a circuit breaker; transport failures, timeouts and
// non-2xx answers come back as a Result with Success=false instead of an error.
package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/imrishuroy/campus-checkout/internal/money"
)

const (
	DefaultBaseURL = "https://api.paystack.co"
	DefaultTimeout = 15 * time.Second
)

type Config struct {
	BaseURL   string
	SecretKey string
	PublicKey string
	Currency  string
	Timeout   time.Duration
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold uint32
	// OpenFor is how long the breaker stays open before probing again.
	OpenFor time.Duration
}

// Result is the common outcome of a gateway call.
type Result struct {
	Success bool
	Message string
	Raw     json.RawMessage
}

// envelope is the Paystack response wrapper.
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type statusError struct {
	code int
	msg  string
}

func (e *statusError) Error() string { return fmt.Sprintf("gateway returned %d: %s", e.code, e.msg) }

type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Currency == "" {
		cfg.Currency = money.DefaultCurrency
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = 30 * time.Second
	}

	threshold := cfg.FailureThreshold
	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "paystack",
		Timeout: cfg.OpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		// 4xx answers are the caller's problem, not the gateway's health.
		IsSuccessful: func(err error) bool {
			var se *statusError
			if errors.As(err, &se) {
				return se.code < 500
			}
			return err == nil
		},
	})

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
	}
}

func (c *Client) PublicKey() string { return c.cfg.PublicKey }
func (c *Client) Currency() string  { return c.cfg.Currency }

// call performs one request and decodes the envelope. The returned Result is
// always non-nil; env is nil when Success is false.
func (c *Client) call(ctx context.Context, method, path string, query url.Values, body interface{}) (*envelope, Result) {
	raw, err := c.breaker.Execute(func() ([]byte, error) {
		return c.send(ctx, method, path, query, body)
	})
	if err != nil {
		msg := "Request failed: " + err.Error()
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			msg = "Payment gateway temporarily unavailable"
		}
		var se *statusError
		if errors.As(err, &se) && se.msg != "" {
			msg = se.msg
		}
		return nil, Result{Success: false, Message: msg, Raw: raw}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, Result{Success: false, Message: "invalid gateway response", Raw: raw}
	}
	if !env.Status {
		msg := env.Message
		if msg == "" {
			msg = "request was not successful"
		}
		return nil, Result{Success: false, Message: msg, Raw: raw}
	}
	return &env, Result{Success: true, Message: env.Message, Raw: raw}
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	u := c.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var env envelope
		_ = json.Unmarshal(raw, &env)
		return raw, &statusError{code: resp.StatusCode, msg: env.Message}
	}
	return raw, nil
}

// InitRequest starts a hosted checkout for Amount (major units).
type InitRequest struct {
	Email       string
	Amount      money.Amount
	Reference   string
	CallbackURL string
	Metadata    map[string]interface{}
}

type InitResult struct {
	Result
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

func (c *Client) Initialize(ctx context.Context, in InitRequest) InitResult {
	body := map[string]interface{}{
		"email":     in.Email,
		"amount":    in.Amount.Minor(),
		"reference": in.Reference,
		"currency":  c.cfg.Currency,
	}
	if in.CallbackURL != "" {
		body["callback_url"] = in.CallbackURL
	}
	if len(in.Metadata) > 0 {
		body["metadata"] = in.Metadata
	}

	env, res := c.call(ctx, http.MethodPost, "/transaction/initialize", nil, body)
	out := InitResult{Result: res, Reference: in.Reference}
	if env == nil {
		return out
	}
	var data struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.AuthorizationURL == "" {
		out.Success = false
		out.Message = "gateway response missing authorization url"
		return out
	}
	out.AuthorizationURL = data.AuthorizationURL
	out.AccessCode = data.AccessCode
	if data.Reference != "" {
		out.Reference = data.Reference
	}
	return out
}

// VerifyStatus is the normalised outcome of a verified charge.
type VerifyStatus string

const (
	VerifySuccess VerifyStatus = "success"
	VerifyFailed  VerifyStatus = "failed"
	VerifyPending VerifyStatus = "pending"
)

type VerifyResult struct {
	Result
	Status     VerifyStatus
	RawStatus  string
	PaidAmount *money.Amount
	Currency   string
}

func normaliseStatus(s string) VerifyStatus {
	switch strings.ToLower(s) {
	case "success":
		return VerifySuccess
	case "failed", "reversed":
		return VerifyFailed
	}
	// abandoned, ongoing, pending, processing, queued: the buyer may still pay
	return VerifyPending
}

func (c *Client) Verify(ctx context.Context, reference string) VerifyResult {
	env, res := c.call(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, nil)
	out := VerifyResult{Result: res}
	if env == nil {
		return out
	}
	var data struct {
		Status   string `json:"status"`
		Amount   *int64 `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		out.Success = false
		out.Message = "invalid verify response"
		return out
	}
	out.RawStatus = data.Status
	out.Status = normaliseStatus(data.Status)
	out.Currency = data.Currency
	if data.Amount != nil {
		a := money.FromMinor(*data.Amount)
		out.PaidAmount = &a
	}
	return out
}

// TransactionSummary is one row of the gateway transaction listing.
type TransactionSummary struct {
	ID        int64  `json:"id"`
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	PaidAt    string `json:"paid_at,omitempty"`
}

type ListResult struct {
	Result
	Transactions []TransactionSummary
}

func (c *Client) ListTransactions(ctx context.Context, page, perPage int) ListResult {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 50
	}
	q := url.Values{}
	q.Set("page", fmt.Sprint(page))
	q.Set("perPage", fmt.Sprint(perPage))

	env, res := c.call(ctx, http.MethodGet, "/transaction", q, nil)
	out := ListResult{Result: res}
	if env == nil {
		return out
	}
	if err := json.Unmarshal(env.Data, &out.Transactions); err != nil {
		out.Success = false
		out.Message = "invalid transaction list"
	}
	return out
}

type Recipient struct {
	Name          string
	AccountNumber string
	BankCode      string
	// Type defaults to "nuban".
	Type string
}

type RecipientResult struct {
	Result
	RecipientCode string
}

func (c *Client) CreateTransferRecipient(ctx context.Context, r Recipient) RecipientResult {
	typ := r.Type
	if typ == "" {
		typ = "nuban"
	}
	env, res := c.call(ctx, http.MethodPost, "/transferrecipient", nil, map[string]interface{}{
		"type":           typ,
		"name":           r.Name,
		"account_number": r.AccountNumber,
		"bank_code":      r.BankCode,
		"currency":       c.cfg.Currency,
	})
	out := RecipientResult{Result: res}
	if env == nil {
		return out
	}
	var data struct {
		RecipientCode string `json:"recipient_code"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.RecipientCode == "" {
		out.Success = false
		out.Message = "gateway response missing recipient code"
		return out
	}
	out.RecipientCode = data.RecipientCode
	return out
}

type TransferRequest struct {
	RecipientCode string
	Amount        money.Amount
	Reference     string
	Reason        string
}

type TransferResult struct {
	Result
	TransferCode string
	Status       string
}

// InitiateTransfer pays Amount out of the integration balance.
func (c *Client) InitiateTransfer(ctx context.Context, in TransferRequest) TransferResult {
	env, res := c.call(ctx, http.MethodPost, "/transfer", nil, map[string]interface{}{
		"source":    "balance",
		"amount":    in.Amount.Minor(),
		"recipient": in.RecipientCode,
		"reference": in.Reference,
		"reason":    in.Reason,
		"currency":  c.cfg.Currency,
	})
	out := TransferResult{Result: res}
	if env == nil {
		return out
	}
	var data struct {
		TransferCode string `json:"transfer_code"`
		Status       string `json:"status"`
	}
	_ = json.Unmarshal(env.Data, &data)
	out.TransferCode = data.TransferCode
	out.Status = data.Status
	return out
}

type Bank struct {
	Name string `json:"name"`
	Code string `json:"code"`
	Slug string `json:"slug,omitempty"`
	Type string `json:"type,omitempty"`
}

type BanksResult struct {
	Result
	Banks []Bank
}

func (c *Client) Banks(ctx context.Context) BanksResult {
	q := url.Values{}
	q.Set("currency", c.cfg.Currency)
	env, res := c.call(ctx, http.MethodGet, "/bank", q, nil)
	out := BanksResult{Result: res}
	if env == nil {
		return out
	}
	if err := json.Unmarshal(env.Data, &out.Banks); err != nil {
		out.Success = false
		out.Message = "invalid bank list"
	}
	return out
}
