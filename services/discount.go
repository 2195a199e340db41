package services

import (
	"PearlDental/models"
	"time"

	"github.com/shopspring/decimal"
)

// PayableAmount computes the discounted amount owed on an item. The per-item
// discount is applied first, the global discount second; this order is a fixed
// policy and changing it changes every reproducible total in the ledger. The
// result is rounded to the nearest whole currency unit and never exceeds the
// true outstanding amount.
func PayableAmount(outstanding int64, itemPercent, globalPercent int) int64 {
	if outstanding <= 0 {
		return 0
	}
	itemPercent = clampPercent(itemPercent)
	globalPercent = clampPercent(globalPercent)

	payable := decimal.NewFromInt(outstanding).
		Mul(decimal.New(int64(100-itemPercent), -2)).
		Mul(decimal.New(int64(100-globalPercent), -2)).
		Round(0).
		IntPart()

	if payable > outstanding {
		payable = outstanding
	}
	if payable < 0 {
		payable = 0
	}
	return payable
}

// DefaultGlobalPercent returns the discount-card percentage when the card is
// active at the given time. The value is only a default for the global
// discount; the user may override it.
func DefaultGlobalPercent(card *models.DiscountCard, at time.Time) int {
	if card == nil || !card.ActiveAt(at) {
		return 0
	}
	return clampPercent(card.Percent)
}

func clampPercent(percent int) int {
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}
