package services_test

import (
	"context"
	"fmt"
	"testing"

	"PearlDental/models"
	"PearlDental/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingExecutor records every store call in order and can be told to fail
// a specific method.
type recordingExecutor struct {
	calls      []string
	keys       []string
	bonus      int64
	deposit    int64
	failMethod string
	nextID     int
}

func (e *recordingExecutor) newPayment(patientID, clinicID string, amount int64, method, note, key string) *models.Payment {
	e.nextID++
	return &models.Payment{
		ID:             fmt.Sprintf("p%d", e.nextID),
		PatientID:      patientID,
		ClinicID:       clinicID,
		Amount:         amount,
		Method:         method,
		Note:           note,
		IdempotencyKey: key,
	}
}

func (e *recordingExecutor) DeductBonusAndPay(_ context.Context, patientID, clinicID string, amount int64, note, key string) (*models.Payment, int64, error) {
	e.calls = append(e.calls, models.MethodBonus)
	e.keys = append(e.keys, key)
	if e.failMethod == models.MethodBonus || amount > e.bonus {
		return nil, 0, &models.InsufficientBalanceError{Pool: models.MethodBonus, Requested: amount, Available: e.bonus}
	}
	e.bonus -= amount
	return e.newPayment(patientID, clinicID, amount, models.MethodBonus, note, key), e.bonus, nil
}

func (e *recordingExecutor) DeductDepositAndPay(_ context.Context, patientID, clinicID string, amount int64, note, key string) (*models.Payment, int64, error) {
	e.calls = append(e.calls, models.MethodDeposit)
	e.keys = append(e.keys, key)
	if e.failMethod == models.MethodDeposit || amount > e.deposit {
		return nil, 0, &models.InsufficientBalanceError{Pool: models.MethodDeposit, Requested: amount, Available: e.deposit}
	}
	e.deposit -= amount
	return e.newPayment(patientID, clinicID, amount, models.MethodDeposit, note, key), e.deposit, nil
}

func (e *recordingExecutor) RecordInstrumentPayment(_ context.Context, patientID, clinicID string, amount int64, method, key, note string) (*models.Payment, error) {
	e.calls = append(e.calls, method)
	e.keys = append(e.keys, key)
	if e.failMethod == method {
		return nil, &models.StoreConflictError{Key: key, Reason: "injected failure"}
	}
	return e.newPayment(patientID, clinicID, amount, method, note, key), nil
}

func testPatient() *models.Patient {
	return &models.Patient{ID: "pat-1", ClinicID: "clinic-1", FirstName: "Ada", LastName: "Osei", Email: "ada@example.com"}
}

func TestLineProcessor_SequentialDispatch(t *testing.T) {
	executor := &recordingExecutor{bonus: 20_000, deposit: 10_000}
	processor := services.NewLineProcessor(executor)

	lines := []services.PaymentLine{
		{ID: "l1", Method: models.MethodBonus, Amount: 5_000},
		{ID: "l2", Method: models.MethodCash, Amount: 30_000},
		{ID: "l3", Method: models.MethodDeposit, Amount: 10_000},
	}

	result, err := processor.Process(context.Background(), testPatient(), lines, "checkup", "base")
	require.NoError(t, err)

	assert.Equal(t, []string{models.MethodBonus, models.MethodCash, models.MethodDeposit}, executor.calls)
	require.Len(t, result.Created, 3)
	assert.Equal(t, int64(5_000), result.Created[0].Amount)
	assert.Equal(t, int64(30_000), result.Created[1].Amount)
	require.Len(t, result.Committed, 3)
	assert.Equal(t, "l2", result.Committed[1].LineID)
	assert.Zero(t, result.AdvanceRequested)
}

func TestLineProcessor_PerLineIdempotencyKeys(t *testing.T) {
	executor := &recordingExecutor{}
	processor := services.NewLineProcessor(executor)

	lines := []services.PaymentLine{
		{ID: "l1", Method: models.MethodCash, Amount: 1_000},
		{ID: "l2", Method: models.MethodCard, Amount: 2_000},
	}

	_, err := processor.Process(context.Background(), testPatient(), lines, "", "base-key")
	require.NoError(t, err)

	assert.Equal(t, []string{"base-key:l1", "base-key:l2"}, executor.keys)
}

func TestLineProcessor_AdvanceLinesCreateNoPayment(t *testing.T) {
	executor := &recordingExecutor{}
	processor := services.NewLineProcessor(executor)

	lines := []services.PaymentLine{
		{ID: "l1", Method: models.MethodAdvance, Amount: 20_000},
		{ID: "l2", Method: models.MethodCash, Amount: 5_000},
	}

	result, err := processor.Process(context.Background(), testPatient(), lines, "", "base")
	require.NoError(t, err)

	assert.Equal(t, int64(20_000), result.AdvanceRequested)
	assert.Equal(t, []string{models.MethodCash}, executor.calls)
	require.Len(t, result.Created, 1)
}

func TestLineProcessor_StopsAtFirstFailure(t *testing.T) {
	// Line 2 fails: line 1 stays committed, line 3 is never dispatched.
	executor := &recordingExecutor{bonus: 1_000, failMethod: models.MethodBonus}
	processor := services.NewLineProcessor(executor)

	lines := []services.PaymentLine{
		{ID: "l1", Method: models.MethodCash, Amount: 5_000},
		{ID: "l2", Method: models.MethodBonus, Amount: 25_000},
		{ID: "l3", Method: models.MethodCard, Amount: 5_000},
	}

	result, err := processor.Process(context.Background(), testPatient(), lines, "", "base")

	require.Error(t, err)
	var insufficient *models.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, models.MethodBonus, insufficient.Pool)

	require.Len(t, result.Committed, 1)
	assert.Equal(t, "l1", result.Committed[0].LineID)
	assert.Equal(t, []string{models.MethodCash, models.MethodBonus}, executor.calls)
}

func TestLineProcessor_RejectsUnknownMethod(t *testing.T) {
	processor := services.NewLineProcessor(&recordingExecutor{})

	_, err := processor.Process(context.Background(), testPatient(), []services.PaymentLine{
		{ID: "l1", Method: "cheque", Amount: 1_000},
	}, "", "base")

	assert.Error(t, err)
}

func TestLineProcessor_RejectsOutOfRangeAdvance(t *testing.T) {
	processor := services.NewLineProcessor(&recordingExecutor{})

	_, err := processor.Process(context.Background(), testPatient(), []services.PaymentLine{
		{ID: "l1", Method: models.MethodAdvance, Amount: 0},
	}, "", "base")

	var outOfRange *models.AmountOutOfRangeError
	assert.ErrorAs(t, err, &outOfRange)
}
