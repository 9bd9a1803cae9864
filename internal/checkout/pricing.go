package checkout

import (
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/campus-checkout/internal/money"
)

var (
	platformRate   = decimal.RequireFromString("0.05")
	gatewayRate    = decimal.RequireFromString("0.0195")
	gatewayFlatFee = money.MustParse("0.50")
)

// Totals is the price breakdown of an order. Tax and shipping are not
// charged yet and are always zero.
type Totals struct {
	Subtotal     money.Amount
	TaxAmount    money.Amount
	ShippingCost money.Amount
	PlatformFee  money.Amount
	Total        money.Amount
}

// ComputeTotals prices an order from its subtotal. The platform fee is the
// marketplace's share and is not added to what the buyer pays.
func ComputeTotals(subtotal money.Amount) Totals {
	t := Totals{
		Subtotal:     subtotal,
		TaxAmount:    money.Zero,
		ShippingCost: money.Zero,
		PlatformFee:  PlatformFee(subtotal),
	}
	t.Total = t.Subtotal.Add(t.TaxAmount).Add(t.ShippingCost)
	return t
}

// PlatformFee is 5% of the subtotal.
func PlatformFee(subtotal money.Amount) money.Amount {
	return subtotal.MulRate(platformRate)
}

// GatewayFee is the processing fee passed on to the buyer: 1.95% + 0.50.
func GatewayFee(total money.Amount) money.Amount {
	return total.MulRate(gatewayRate).Add(gatewayFlatFee)
}
