package services

import (
	"PearlDental/models"
)

// PaymentLine is one (method, amount) entry in the payment editing buffer. The
// buffer is a plain ordered slice; nothing here holds hidden state.
type PaymentLine struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Amount int64  `json:"amount"`
}

// PoolFunds carries the pool balances read when editing began.
type PoolFunds struct {
	Bonus   int64
	Deposit int64
	Advance int64
}

// AvailableFor returns the largest amount the line identified by excludeLineID
// may claim for the given method: the pool balance minus whatever sibling
// lines already claim from the same pool. Instrument methods are only bounded
// by the payment ceiling. Pure function, recomputed on every edit.
func AvailableFor(method string, lines []PaymentLine, excludeLineID string, pools PoolFunds) int64 {
	if models.IsInstrumentMethod(method) {
		return models.MaxPaymentAmount
	}

	var pool int64
	switch method {
	case models.MethodBonus:
		pool = pools.Bonus
	case models.MethodDeposit:
		pool = pools.Deposit
	case models.MethodAdvance:
		pool = pools.Advance
	default:
		return 0
	}

	var claimed int64
	for _, line := range lines {
		if line.ID == excludeLineID || line.Method != method {
			continue
		}
		claimed += line.Amount
	}

	available := pool - claimed
	if available < 0 {
		return 0
	}
	if available > models.MaxPaymentAmount {
		return models.MaxPaymentAmount
	}
	return available
}
