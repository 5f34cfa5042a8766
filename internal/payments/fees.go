package payments

import "github.com/shopspring/decimal"

// Platform fee: 0.75% + 30p, rounded to the penny. Provider fee: GoCardless'
// published 1% + 20p, capped at £4.00 — a local estimate only; the provider
// deducts its real fee from the payout independently.
var (
	platformFeeRate  = decimal.RequireFromString("0.0075")
	platformFeeFixed = decimal.RequireFromString("0.30")
	providerFeeRate  = decimal.RequireFromString("0.01")
	providerFeeFixed = decimal.RequireFromString("0.20")
	providerFeeCap   = decimal.RequireFromString("4.00")
)

// Fees is the bookkeeping breakdown stored on the job at collection time.
type Fees struct {
	Platform         decimal.Decimal
	ProviderEstimate decimal.Decimal
	Net              decimal.Decimal
}

// ComputeFees derives the fee breakdown for a gross amount in currency units.
func ComputeFees(gross decimal.Decimal) Fees {
	platform := gross.Mul(platformFeeRate).Add(platformFeeFixed).Round(2)

	provider := gross.Mul(providerFeeRate).Add(providerFeeFixed).Round(2)
	if provider.GreaterThan(providerFeeCap) {
		provider = providerFeeCap
	}

	return Fees{
		Platform:         platform,
		ProviderEstimate: provider,
		Net:              gross.Sub(platform).Sub(provider),
	}
}
