package services_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"PearlDental/models"
	"PearlDental/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryLedger is an in-memory stand-in for the payment, balance, work, and
// patient repositories, enforcing the same caps the real store enforces.
type memoryLedger struct {
	patient  *models.Patient
	bonus    int64
	deposit  int64
	works    []*models.PerformedWork
	payments []*models.Payment
	allocs   []models.PaymentAllocation
	byKey    map[string]*models.Payment
	nextID   int

	failMethod string
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		patient: testPatient(),
		byKey:   map[string]*models.Payment{},
	}
}

func (m *memoryLedger) addWork(id uint, price int64) {
	m.works = append(m.works, &models.PerformedWork{
		ID:        id,
		PatientID: m.patient.ID,
		ClinicID:  m.patient.ClinicID,
		Price:     price,
		Quantity:  1,
	})
}

// seedPayment creates a historical payment outside any submission.
func (m *memoryLedger) seedPayment(amount int64) *models.Payment {
	payment := m.createPayment(amount, models.MethodCash, "", fmt.Sprintf("seed-%d", len(m.payments)))
	return payment
}

func (m *memoryLedger) createPayment(amount int64, method, note, key string) *models.Payment {
	m.nextID++
	payment := &models.Payment{
		ID:             fmt.Sprintf("p%d", m.nextID),
		PatientID:      m.patient.ID,
		ClinicID:       m.patient.ClinicID,
		Amount:         amount,
		Method:         method,
		Note:           note,
		IdempotencyKey: key,
	}
	m.payments = append(m.payments, payment)
	m.byKey[key] = payment
	return payment
}

func (m *memoryLedger) allocatedFor(paymentID string) int64 {
	var total int64
	for _, alloc := range m.allocs {
		if alloc.PaymentID == paymentID {
			total += alloc.Amount
		}
	}
	return total
}

func (m *memoryLedger) workByID(id uint) *models.PerformedWork {
	for _, work := range m.works {
		if work.ID == id {
			return work
		}
	}
	return nil
}

// --- services.PaymentExecutor ---

func (m *memoryLedger) DeductBonusAndPay(_ context.Context, _, _ string, amount int64, note, key string) (*models.Payment, int64, error) {
	if existing, ok := m.byKey[key]; ok {
		return existing, m.bonus, nil
	}
	if m.failMethod == models.MethodBonus {
		return nil, 0, errors.New("injected bonus failure")
	}
	if amount > m.bonus {
		return nil, 0, &models.InsufficientBalanceError{Pool: models.MethodBonus, Requested: amount, Available: m.bonus}
	}
	m.bonus -= amount
	return m.createPayment(amount, models.MethodBonus, note, key), m.bonus, nil
}

func (m *memoryLedger) DeductDepositAndPay(_ context.Context, _, _ string, amount int64, note, key string) (*models.Payment, int64, error) {
	if existing, ok := m.byKey[key]; ok {
		return existing, m.deposit, nil
	}
	if m.failMethod == models.MethodDeposit {
		return nil, 0, errors.New("injected deposit failure")
	}
	if amount > m.deposit {
		return nil, 0, &models.InsufficientBalanceError{Pool: models.MethodDeposit, Requested: amount, Available: m.deposit}
	}
	m.deposit -= amount
	return m.createPayment(amount, models.MethodDeposit, note, key), m.deposit, nil
}

func (m *memoryLedger) RecordInstrumentPayment(_ context.Context, _, _ string, amount int64, method, key, note string) (*models.Payment, error) {
	if existing, ok := m.byKey[key]; ok {
		return existing, nil
	}
	if m.failMethod == method {
		return nil, &models.StoreConflictError{Key: key, Reason: "injected failure"}
	}
	return m.createPayment(amount, method, note, key), nil
}

// --- services.LedgerStore ---

func (m *memoryLedger) AllocatePayment(_ context.Context, paymentID string, requests []models.AllocationRequest) error {
	var payment *models.Payment
	for _, p := range m.payments {
		if p.ID == paymentID {
			payment = p
			break
		}
	}
	if payment == nil {
		return models.ErrPaymentNotFound
	}

	var requested int64
	for _, req := range requests {
		requested += req.Amount
	}
	if m.allocatedFor(paymentID)+requested > payment.Amount {
		return fmt.Errorf("allocations exceed payment amount")
	}

	for _, req := range requests {
		work := m.workByID(req.WorkID)
		if work == nil {
			return models.ErrWorkNotFound
		}
		if req.Amount > work.Outstanding() {
			return fmt.Errorf("allocation exceeds outstanding")
		}
		m.allocs = append(m.allocs, models.PaymentAllocation{PaymentID: paymentID, WorkID: req.WorkID, Amount: req.Amount})
		work.CollectedAmount += req.Amount
	}
	return nil
}

func (m *memoryLedger) AllocateAdvanceToItems(_ context.Context, _ string, requests []models.AllocationRequest) (int64, error) {
	remainders := make([]int64, len(m.payments))
	var advance int64
	for i, payment := range m.payments {
		remainder := payment.Amount - m.allocatedFor(payment.ID)
		if remainder < 0 {
			remainder = 0
		}
		remainders[i] = remainder
		advance += remainder
	}

	var requested int64
	for _, req := range requests {
		requested += req.Amount
	}
	if requested > advance {
		return 0, &models.InsufficientBalanceError{Pool: models.MethodAdvance, Requested: requested, Available: advance}
	}

	var total int64
	cursor := 0
	for _, req := range requests {
		work := m.workByID(req.WorkID)
		if work == nil {
			return 0, models.ErrWorkNotFound
		}
		if req.Amount > work.Outstanding() {
			return 0, fmt.Errorf("allocation exceeds outstanding")
		}
		remaining := req.Amount
		for remaining > 0 && cursor < len(m.payments) {
			if remainders[cursor] == 0 {
				cursor++
				continue
			}
			take := remaining
			if remainders[cursor] < take {
				take = remainders[cursor]
			}
			m.allocs = append(m.allocs, models.PaymentAllocation{PaymentID: m.payments[cursor].ID, WorkID: req.WorkID, Amount: take})
			remainders[cursor] -= take
			remaining -= take
		}
		work.CollectedAmount += req.Amount
		total += req.Amount
	}
	return total, nil
}

func (m *memoryLedger) WithPatientLock(_ context.Context, _ string, fn func() error) error {
	return fn()
}

func (m *memoryLedger) ListByPatient(_ context.Context, _ string) ([]models.Payment, error) {
	payments := make([]models.Payment, 0, len(m.payments))
	for _, p := range m.payments {
		payments = append(payments, *p)
	}
	return payments, nil
}

// --- services.BalanceReader ---

func (m *memoryLedger) Snapshot(ctx context.Context, patientID string) models.BalanceSnapshot {
	advance, _ := m.GetAdvanceBalance(ctx, patientID)
	return models.BalanceSnapshot{Bonus: m.bonus, Deposit: m.deposit, Advance: advance}
}

func (m *memoryLedger) GetBonusBalance(_ context.Context, _ string) (int64, error) {
	return m.bonus, nil
}

func (m *memoryLedger) GetDepositBalance(_ context.Context, _ string) (int64, error) {
	return m.deposit, nil
}

func (m *memoryLedger) GetAdvanceBalance(_ context.Context, _ string) (int64, error) {
	var advance int64
	for _, payment := range m.payments {
		if remainder := payment.Amount - m.allocatedFor(payment.ID); remainder > 0 {
			advance += remainder
		}
	}
	return advance, nil
}

// --- services.WorkLister / services.PatientReader ---

func (m *memoryLedger) ListUnpaid(_ context.Context, _ string) ([]models.PerformedWork, error) {
	var unpaid []models.PerformedWork
	for _, work := range m.works {
		if work.Outstanding() > 0 {
			unpaid = append(unpaid, *work)
		}
	}
	return unpaid, nil
}

func (m *memoryLedger) GetByID(_ context.Context, id string) (*models.Patient, error) {
	if m.patient != nil && m.patient.ID == id {
		return m.patient, nil
	}
	return nil, nil
}

func newTestLedgerService(ledger *memoryLedger) *services.LedgerService {
	return services.NewLedgerService(ledger, ledger, ledger, ledger, nil)
}

// checkInvariants asserts the two allocation caps over the whole store.
func checkInvariants(t *testing.T, ledger *memoryLedger) {
	t.Helper()
	for _, payment := range ledger.payments {
		assert.LessOrEqual(t, ledger.allocatedFor(payment.ID), payment.Amount,
			"payment %s over-allocated", payment.ID)
	}
	for _, work := range ledger.works {
		assert.LessOrEqual(t, work.CollectedAmount, work.Price*int64(work.Quantity),
			"work %d over-collected", work.ID)
	}
}

func TestSubmit_DiscountedCashPaymentFullyAllocates(t *testing.T) {
	// Item outstanding 100,000, global discount 10%: target 90,000. Paying
	// 90,000 cash allocates everything and leaves the advance untouched.
	ledger := newMemoryLedger()
	ledger.addWork(1, 100_000)
	service := newTestLedgerService(ledger)

	result, err := service.Submit(context.Background(), services.SubmitRequest{
		PatientID:             "pat-1",
		SubmissionKey:         "sub-1",
		Lines:                 []services.PaymentLine{{ID: "l1", Method: models.MethodCash, Amount: 90_000}},
		Items:                 []services.SelectedItem{{WorkID: 1}},
		GlobalDiscountPercent: 10,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(90_000), result.Allocated)
	assert.Zero(t, result.UnallocatedToAdvance)
	assert.Zero(t, result.AdvanceAllocated)
	assert.Empty(t, result.NewSubmissionKey)

	advance, _ := ledger.GetAdvanceBalance(context.Background(), "pat-1")
	assert.Zero(t, advance)
	checkInvariants(t, ledger)
}

func TestSubmit_BonusOverdraftRejected(t *testing.T) {
	// Bonus balance 20,000, line asks for 25,000: rejected before dispatch,
	// balance unchanged, key rotated for the corrective retry.
	ledger := newMemoryLedger()
	ledger.bonus = 20_000
	ledger.addWork(1, 30_000)
	service := newTestLedgerService(ledger)

	result, err := service.Submit(context.Background(), services.SubmitRequest{
		PatientID:     "pat-1",
		SubmissionKey: "sub-1",
		Lines:         []services.PaymentLine{{ID: "l1", Method: models.MethodBonus, Amount: 25_000}},
		Items:         []services.SelectedItem{{WorkID: 1}},
	})

	var insufficient *models.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, models.MethodBonus, insufficient.Pool)

	assert.Equal(t, int64(20_000), ledger.bonus)
	assert.Empty(t, ledger.payments)
	require.NotNil(t, result)
	assert.NotEmpty(t, result.NewSubmissionKey)
	assert.NotEqual(t, "sub-1", result.NewSubmissionKey)
}

func TestSubmit_TwoItemsGreedyOrder(t *testing.T) {
	// Items 60,000 then 40,000, single cash 70,000 selected for both: first
	// item takes 60,000, second 10,000, payment fully allocated.
	ledger := newMemoryLedger()
	ledger.addWork(1, 60_000)
	ledger.addWork(2, 40_000)
	service := newTestLedgerService(ledger)

	result, err := service.Submit(context.Background(), services.SubmitRequest{
		PatientID:     "pat-1",
		SubmissionKey: "sub-1",
		Lines:         []services.PaymentLine{{ID: "l1", Method: models.MethodCash, Amount: 70_000}},
		Items:         []services.SelectedItem{{WorkID: 1}, {WorkID: 2}},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(70_000), result.Allocated)
	assert.Equal(t, int64(60_000), ledger.workByID(1).CollectedAmount)
	assert.Equal(t, int64(10_000), ledger.workByID(2).CollectedAmount)

	advance, _ := ledger.GetAdvanceBalance(context.Background(), "pat-1")
	assert.Zero(t, advance)
	checkInvariants(t, ledger)
}

func TestSubmit_NoItemsBecomesAdvance(t *testing.T) {
	// Cash 50,000 with nothing selected: payment created, zero allocations,
	// advance grows by 50,000.
	ledger := newMemoryLedger()
	service := newTestLedgerService(ledger)

	result, err := service.Submit(context.Background(), services.SubmitRequest{
		PatientID:     "pat-1",
		SubmissionKey: "sub-1",
		Lines:         []services.PaymentLine{{ID: "l1", Method: models.MethodCash, Amount: 50_000}},
	})
	require.NoError(t, err)

	assert.Zero(t, result.Allocated)
	assert.Equal(t, int64(50_000), result.UnallocatedToAdvance)
	require.Len(t, ledger.payments, 1)
	assert.Empty(t, ledger.allocs)

	advance, _ := ledger.GetAdvanceBalance(context.Background(), "pat-1")
	assert.Equal(t, int64(50_000), advance)
}

func TestSubmit_AdvanceSpentOnItem(t *testing.T) {
	// Advance 30,000 from a historical payment, item of 20,000 paid with an
	// advance line of 20,000: item fully collected from the historical
	// payment, advance drops to 10,000.
	ledger := newMemoryLedger()
	historical := ledger.seedPayment(30_000)
	ledger.addWork(1, 20_000)
	service := newTestLedgerService(ledger)

	result, err := service.Submit(context.Background(), services.SubmitRequest{
		PatientID:     "pat-1",
		SubmissionKey: "sub-1",
		Lines:         []services.PaymentLine{{ID: "l1", Method: models.MethodAdvance, Amount: 20_000}},
		Items:         []services.SelectedItem{{WorkID: 1}},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(20_000), result.AdvanceAllocated)
	assert.Equal(t, int64(20_000), ledger.workByID(1).CollectedAmount)
	assert.Equal(t, int64(20_000), ledger.allocatedFor(historical.ID))

	advance, _ := ledger.GetAdvanceBalance(context.Background(), "pat-1")
	assert.Equal(t, int64(10_000), advance)
	checkInvariants(t, ledger)
}

func TestSubmit_AdvanceOverdraftRejected(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.seedPayment(10_000)
	ledger.addWork(1, 50_000)
	service := newTestLedgerService(ledger)

	_, err := service.Submit(context.Background(), services.SubmitRequest{
		PatientID:     "pat-1",
		SubmissionKey: "sub-1",
		Lines:         []services.PaymentLine{{ID: "l1", Method: models.MethodAdvance, Amount: 25_000}},
		Items:         []services.SelectedItem{{WorkID: 1}},
	})

	var insufficient *models.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, models.MethodAdvance, insufficient.Pool)
	assert.Empty(t, ledger.allocs)
}

func TestSubmit_MixedLinesAndPools(t *testing.T) {
	// Bonus 15,000 and cash combine against two items; later lines see the
	// pool effects of earlier ones.
	ledger := newMemoryLedger()
	ledger.bonus = 15_000
	ledger.addWork(1, 25_000)
	ledger.addWork(2, 10_000)
	service := newTestLedgerService(ledger)

	result, err := service.Submit(context.Background(), services.SubmitRequest{
		PatientID:     "pat-1",
		SubmissionKey: "sub-1",
		Lines: []services.PaymentLine{
			{ID: "l1", Method: models.MethodBonus, Amount: 15_000},
			{ID: "l2", Method: models.MethodCash, Amount: 20_000},
		},
		Items: []services.SelectedItem{{WorkID: 1}, {WorkID: 2}},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(35_000), result.Allocated)
	assert.Zero(t, ledger.bonus)
	assert.Equal(t, int64(25_000), ledger.workByID(1).CollectedAmount)
	assert.Equal(t, int64(10_000), ledger.workByID(2).CollectedAmount)
	checkInvariants(t, ledger)
}

func TestSubmit_PartialFailureReportsCommittedAndRotatesKey(t *testing.T) {
	// Cash commits, then transfer fails: committed lines survive, error names
	// them, submission key rotates.
	ledger := newMemoryLedger()
	ledger.failMethod = models.MethodTransfer
	service := newTestLedgerService(ledger)

	result, err := service.Submit(context.Background(), services.SubmitRequest{
		PatientID:     "pat-1",
		SubmissionKey: "sub-1",
		Lines: []services.PaymentLine{
			{ID: "l1", Method: models.MethodCash, Amount: 10_000},
			{ID: "l2", Method: models.MethodTransfer, Amount: 5_000},
		},
	})

	var partial *models.PartialSubmissionError
	require.ErrorAs(t, err, &partial)
	require.Len(t, partial.Committed, 1)
	assert.Equal(t, "l1", partial.Committed[0].LineID)

	require.NotNil(t, result)
	require.Len(t, result.Committed, 1)
	assert.NotEmpty(t, result.NewSubmissionKey)
	assert.NotEqual(t, "sub-1", result.NewSubmissionKey)

	// The committed payment stays; nothing was reversed.
	require.Len(t, ledger.payments, 1)
	assert.Equal(t, int64(10_000), ledger.payments[0].Amount)
}

func TestSubmit_ResubmissionWithSameKeyCreatesNoDuplicate(t *testing.T) {
	ledger := newMemoryLedger()
	service := newTestLedgerService(ledger)

	req := services.SubmitRequest{
		PatientID:     "pat-1",
		SubmissionKey: "sub-1",
		Lines:         []services.PaymentLine{{ID: "l1", Method: models.MethodCash, Amount: 50_000}},
	}

	_, err := service.Submit(context.Background(), req)
	require.NoError(t, err)
	_, err = service.Submit(context.Background(), req)
	require.NoError(t, err)

	assert.Len(t, ledger.payments, 1, "replayed key must not duplicate the payment")
}

func TestSubmit_ValidationFailures(t *testing.T) {
	service := newTestLedgerService(newMemoryLedger())
	ctx := context.Background()

	_, err := service.Submit(ctx, services.SubmitRequest{SubmissionKey: "k", Lines: []services.PaymentLine{{ID: "l1", Method: models.MethodCash, Amount: 1}}})
	assert.Error(t, err, "missing patient")

	_, err = service.Submit(ctx, services.SubmitRequest{PatientID: "pat-1", Lines: []services.PaymentLine{{ID: "l1", Method: models.MethodCash, Amount: 1}}})
	assert.Error(t, err, "missing submission key")

	_, err = service.Submit(ctx, services.SubmitRequest{PatientID: "pat-1", SubmissionKey: "k"})
	assert.Error(t, err, "no lines")

	_, err = service.Submit(ctx, services.SubmitRequest{
		PatientID:     "pat-1",
		SubmissionKey: "k",
		Lines:         []services.PaymentLine{{ID: "l1", Method: models.MethodCash, Amount: models.MaxPaymentAmount + 1}},
	})
	var outOfRange *models.AmountOutOfRangeError
	assert.ErrorAs(t, err, &outOfRange, "ceiling exceeded")

	_, err = service.Submit(ctx, services.SubmitRequest{
		PatientID:     "pat-1",
		SubmissionKey: "k",
		Lines:         []services.PaymentLine{{ID: "l1", Method: models.MethodCash, Amount: 1}},
		Items:         []services.SelectedItem{{WorkID: 99}},
	})
	assert.Error(t, err, "selected item without outstanding amount")
}

func TestView_ReturnsPoolsUnpaidAndKey(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.bonus = 1_000
	ledger.deposit = 2_000
	ledger.seedPayment(3_000)
	ledger.addWork(1, 40_000)
	service := newTestLedgerService(ledger)

	view, err := service.View(context.Background(), "pat-1")
	require.NoError(t, err)

	assert.Equal(t, int64(1_000), view.Balances.Bonus)
	assert.Equal(t, int64(2_000), view.Balances.Deposit)
	assert.Equal(t, int64(3_000), view.Balances.Advance)
	require.Len(t, view.UnpaidWorks, 1)
	assert.Equal(t, int64(40_000), view.UnpaidWorks[0].Outstanding)
	assert.NotEmpty(t, view.SubmissionKey)
}
