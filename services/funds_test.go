package services_test

import (
	"testing"

	"PearlDental/models"
	"PearlDental/services"

	"github.com/stretchr/testify/assert"
)

func TestAvailableFor_PoolMinusSiblingClaims(t *testing.T) {
	pools := services.PoolFunds{Bonus: 20_000, Deposit: 5_000, Advance: 30_000}
	lines := []services.PaymentLine{
		{ID: "l1", Method: models.MethodBonus, Amount: 12_000},
		{ID: "l2", Method: models.MethodBonus, Amount: 6_000},
		{ID: "l3", Method: models.MethodCash, Amount: 50_000},
	}

	// l2 may claim what is left after l1.
	assert.Equal(t, int64(8_000), services.AvailableFor(models.MethodBonus, lines, "l2", pools))
	// l1 may claim what is left after l2.
	assert.Equal(t, int64(14_000), services.AvailableFor(models.MethodBonus, lines, "l1", pools))
	// A new line sees both siblings' claims.
	assert.Equal(t, int64(2_000), services.AvailableFor(models.MethodBonus, lines, "new", pools))
}

func TestAvailableFor_InstrumentMethodsBoundedByCeiling(t *testing.T) {
	lines := []services.PaymentLine{
		{ID: "l1", Method: models.MethodCash, Amount: 1_000_000},
	}
	pools := services.PoolFunds{}

	assert.Equal(t, models.MaxPaymentAmount, services.AvailableFor(models.MethodCash, lines, "l2", pools))
	assert.Equal(t, models.MaxPaymentAmount, services.AvailableFor(models.MethodCard, nil, "", pools))
	assert.Equal(t, models.MaxPaymentAmount, services.AvailableFor(models.MethodTransfer, nil, "", pools))
}

func TestAvailableFor_OverclaimedPoolFloorsAtZero(t *testing.T) {
	pools := services.PoolFunds{Deposit: 4_000}
	lines := []services.PaymentLine{
		{ID: "l1", Method: models.MethodDeposit, Amount: 3_000},
		{ID: "l2", Method: models.MethodDeposit, Amount: 3_000},
	}

	assert.Equal(t, int64(0), services.AvailableFor(models.MethodDeposit, lines, "l3", pools))
}

func TestAvailableFor_AdvancePool(t *testing.T) {
	pools := services.PoolFunds{Advance: 30_000}
	lines := []services.PaymentLine{
		{ID: "l1", Method: models.MethodAdvance, Amount: 20_000},
	}

	assert.Equal(t, int64(10_000), services.AvailableFor(models.MethodAdvance, lines, "l2", pools))
	assert.Equal(t, int64(30_000), services.AvailableFor(models.MethodAdvance, lines, "l1", pools))
}

func TestAvailableFor_UnknownMethod(t *testing.T) {
	assert.Equal(t, int64(0), services.AvailableFor("cheque", nil, "", services.PoolFunds{Bonus: 100}))
}
