package points

import "github.com/shopspring/decimal"

// Redemption is how far a point balance is from being redeemable.
type Redemption struct {
	Threshold int64
	Ready     bool
	Remaining int64

	// Progress is current/threshold capped at 1, rounded to 4 places.
	Progress decimal.Decimal
}

// EvaluateRedemption compares current against threshold. A threshold <= 0
// uses DefaultRedeemThreshold.
func EvaluateRedemption(current, threshold int64) Redemption {
	if threshold <= 0 {
		threshold = DefaultRedeemThreshold
	}

	r := Redemption{Threshold: threshold, Ready: current >= threshold}
	if !r.Ready {
		r.Remaining = threshold - current
	}

	progress := decimal.NewFromInt(current).Div(decimal.NewFromInt(threshold))
	if progress.GreaterThan(decimal.NewFromInt(1)) {
		progress = decimal.NewFromInt(1)
	}
	if progress.IsNegative() {
		progress = decimal.Zero
	}
	r.Progress = progress.Round(4)
	return r
}
