package repositories

import (
	"PearlDental/cache"
	"PearlDental/database"
	"PearlDental/models"
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PaymentRepository owns every mutation of the patient ledger: pool deductions,
// instrument payments, and allocations. Each operation runs as one database
// transaction with FOR UPDATE row locks; whole submissions additionally
// serialize per patient through the Redis ledger lock.
type PaymentRepository struct {
	cache *cache.Cache
}

func NewPaymentRepository(cache *cache.Cache) *PaymentRepository {
	return &PaymentRepository{cache: cache}
}

// WithPatientLock runs fn while holding the patient's distributed ledger lock.
// Concurrent submissions for the same patient wait or fail here instead of
// interleaving their balance reads and writes.
func (r *PaymentRepository) WithPatientLock(ctx context.Context, patientID string, fn func() error) error {
	lockKey := fmt.Sprintf("patient_ledger_lock:%s", patientID)
	lockValue := uuid.New().String() // Generate a unique lock value
	// Retry logic for acquiring lock
	maxRetries := 3
	retryDelay := 2 * time.Second
	var locked bool
	var err error
	for i := 0; i < maxRetries; i++ {
		locked, err = database.NewLock(ctx, lockKey, lockValue, 30*time.Second)
		if err == nil && locked {
			break
		}
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}
	if !locked {
		return fmt.Errorf("failed to acquire patient ledger lock after retries: %w", err)
	}
	defer func() {
		if err := database.ReleaseLock(ctx, lockKey, lockValue); err != nil {
			log.Printf("Failed to release patient ledger lock: %v", err)
		}
	}()

	return fn()
}

// findByIdempotencyKey returns the payment previously created with this key,
// or nil when the key is unused.
func findByIdempotencyKey(tx *gorm.DB, key string) (*models.Payment, error) {
	var existing models.Payment
	err := tx.Where("idempotency_key = ?", key).First(&existing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	return &existing, nil
}

// DeductBonusAndPay atomically checks the bonus pool, decrements it, and
// records the payment. Replaying the same idempotency key returns the payment
// created the first time without touching the balance again.
func (r *PaymentRepository) DeductBonusAndPay(ctx context.Context, patientID, clinicID string, amount int64, note, idempotencyKey string) (*models.Payment, int64, error) {
	return r.deductPoolAndPay(ctx, models.MethodBonus, patientID, clinicID, amount, note, idempotencyKey)
}

// DeductDepositAndPay is the deposit-pool twin of DeductBonusAndPay.
func (r *PaymentRepository) DeductDepositAndPay(ctx context.Context, patientID, clinicID string, amount int64, note, idempotencyKey string) (*models.Payment, int64, error) {
	return r.deductPoolAndPay(ctx, models.MethodDeposit, patientID, clinicID, amount, note, idempotencyKey)
}

func (r *PaymentRepository) deductPoolAndPay(ctx context.Context, pool, patientID, clinicID string, amount int64, note, idempotencyKey string) (*models.Payment, int64, error) {
	if amount <= 0 || amount > models.MaxPaymentAmount {
		return nil, 0, &models.AmountOutOfRangeError{Amount: amount}
	}

	var payment *models.Payment
	var newBalance int64
	err := database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := findByIdempotencyKey(tx, idempotencyKey)
		if err != nil {
			return err
		}
		if existing != nil {
			// Replay of an already-accepted line: no second deduction.
			payment = existing
			var balance models.PatientBalance
			if err := tx.First(&balance, "patient_id = ?", patientID).Error; err != nil {
				return fmt.Errorf("failed to read balance on replay: %w", err)
			}
			newBalance = poolValue(balance, pool)
			return nil
		}

		var balance models.PatientBalance
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&balance, "patient_id = ?", patientID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &models.InsufficientBalanceError{Pool: pool, Requested: amount, Available: 0}
			}
			return fmt.Errorf("failed to lock patient balance: %w", err)
		}

		available := poolValue(balance, pool)
		if amount > available {
			return &models.InsufficientBalanceError{Pool: pool, Requested: amount, Available: available}
		}

		column := "bonus"
		if pool == models.MethodDeposit {
			column = "deposit"
		}
		if err := tx.Model(&models.PatientBalance{}).
			Where("patient_id = ?", patientID).
			Update(column, gorm.Expr(column+" - ?", amount)).Error; err != nil {
			return fmt.Errorf("failed to decrement %s balance: %w", pool, err)
		}

		payment = &models.Payment{
			ID:             uuid.New().String(),
			PatientID:      patientID,
			ClinicID:       clinicID,
			Amount:         amount,
			Method:         pool,
			Note:           note,
			IdempotencyKey: idempotencyKey,
		}
		if err := tx.Create(payment).Error; err != nil {
			return &models.StoreConflictError{Key: idempotencyKey, Reason: err.Error()}
		}
		newBalance = available - amount
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return payment, newBalance, nil
}

func poolValue(balance models.PatientBalance, pool string) int64 {
	if pool == models.MethodDeposit {
		return balance.Deposit
	}
	return balance.Bonus
}

// RecordInstrumentPayment persists one cash/card/transfer payment. The unique
// index on idempotency_key is the authoritative duplicate guard; a replayed key
// returns the original payment as a no-op.
func (r *PaymentRepository) RecordInstrumentPayment(ctx context.Context, patientID, clinicID string, amount int64, method, idempotencyKey, note string) (*models.Payment, error) {
	if amount <= 0 || amount > models.MaxPaymentAmount {
		return nil, &models.AmountOutOfRangeError{Amount: amount}
	}
	if !models.IsInstrumentMethod(method) {
		return nil, fmt.Errorf("method %q is not an instrument method", method)
	}

	var payment *models.Payment
	err := database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := findByIdempotencyKey(tx, idempotencyKey)
		if err != nil {
			return err
		}
		if existing != nil {
			payment = existing
			return nil
		}

		payment = &models.Payment{
			ID:             uuid.New().String(),
			PatientID:      patientID,
			ClinicID:       clinicID,
			Amount:         amount,
			Method:         method,
			Note:           note,
			IdempotencyKey: idempotencyKey,
		}
		if err := tx.Create(payment).Error; err != nil {
			return &models.StoreConflictError{Key: idempotencyKey, Reason: err.Error()}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// AllocatePayment assigns parts of one payment to performed work items. Caps
// are re-checked under row locks: the payment can never be over-allocated and
// no item can collect more than its outstanding amount.
func (r *PaymentRepository) AllocatePayment(ctx context.Context, paymentID string, requests []models.AllocationRequest) error {
	if len(requests) == 0 {
		return nil
	}

	return database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var payment models.Payment
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&payment, "id = ?", paymentID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.ErrPaymentNotFound
			}
			return fmt.Errorf("failed to lock payment: %w", err)
		}

		var allocated int64
		err = tx.Model(&models.PaymentAllocation{}).
			Where("payment_id = ?", paymentID).
			Select("COALESCE(SUM(amount), 0)").
			Scan(&allocated).Error
		if err != nil {
			return fmt.Errorf("failed to sum existing allocations: %w", err)
		}

		var requested int64
		for _, req := range requests {
			if req.Amount <= 0 {
				return &models.AmountOutOfRangeError{Amount: req.Amount}
			}
			requested += req.Amount
		}
		if allocated+requested > payment.Amount {
			return fmt.Errorf("allocations %d exceed payment amount %d", allocated+requested, payment.Amount)
		}

		for _, req := range requests {
			if err := allocateToWork(tx, payment.ID, req); err != nil {
				return err
			}
		}
		return nil
	})
}

func allocateToWork(tx *gorm.DB, paymentID string, req models.AllocationRequest) error {
	var work models.PerformedWork
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&work, "id = ?", req.WorkID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ErrWorkNotFound
		}
		return fmt.Errorf("failed to lock performed work: %w", err)
	}

	if req.Amount > work.Outstanding() {
		return fmt.Errorf("allocation %d exceeds outstanding %d on work %d", req.Amount, work.Outstanding(), work.ID)
	}

	allocation := models.PaymentAllocation{
		PaymentID: paymentID,
		WorkID:    req.WorkID,
		Amount:    req.Amount,
	}
	if err := tx.Create(&allocation).Error; err != nil {
		return fmt.Errorf("failed to create allocation: %w", err)
	}

	err = tx.Model(&models.PerformedWork{}).
		Where("id = ?", req.WorkID).
		Update("collected_amount", gorm.Expr("collected_amount + ?", req.Amount)).Error
	if err != nil {
		return fmt.Errorf("failed to update collected amount: %w", err)
	}
	return nil
}

// AllocateAdvanceToItems spends the patient's derived advance pool on work
// items. The historical payments that absorb the allocations are chosen
// oldest-unallocated-first, which keeps the result deterministic.
func (r *PaymentRepository) AllocateAdvanceToItems(ctx context.Context, patientID string, requests []models.AllocationRequest) (int64, error) {
	if len(requests) == 0 {
		return 0, nil
	}

	var totalAllocated int64
	err := database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock every payment of the patient so the derived advance cannot be
		// spent twice by concurrent transactions.
		var payments []models.Payment
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("patient_id = ?", patientID).
			Order("created_at ASC, id ASC").
			Find(&payments).Error
		if err != nil {
			return fmt.Errorf("failed to lock patient payments: %w", err)
		}

		allocatedByPayment, err := allocationSums(tx, patientID)
		if err != nil {
			return err
		}

		remainders := make([]int64, len(payments))
		var advance int64
		for i, payment := range payments {
			remainder := payment.Amount - allocatedByPayment[payment.ID]
			if remainder < 0 {
				remainder = 0
			}
			remainders[i] = remainder
			advance += remainder
		}

		var requested int64
		for _, req := range requests {
			if req.Amount <= 0 {
				return &models.AmountOutOfRangeError{Amount: req.Amount}
			}
			requested += req.Amount
		}
		if requested > advance {
			return &models.InsufficientBalanceError{Pool: models.MethodAdvance, Requested: requested, Available: advance}
		}

		cursor := 0
		for _, req := range requests {
			remaining := req.Amount
			for remaining > 0 && cursor < len(payments) {
				if remainders[cursor] == 0 {
					cursor++
					continue
				}
				take := remaining
				if remainders[cursor] < take {
					take = remainders[cursor]
				}
				if err := allocateToWork(tx, payments[cursor].ID, models.AllocationRequest{WorkID: req.WorkID, Amount: take}); err != nil {
					return err
				}
				remainders[cursor] -= take
				remaining -= take
			}
			if remaining > 0 {
				return &models.InsufficientBalanceError{Pool: models.MethodAdvance, Requested: req.Amount, Available: req.Amount - remaining}
			}
			totalAllocated += req.Amount
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return totalAllocated, nil
}

func allocationSums(tx *gorm.DB, patientID string) (map[string]int64, error) {
	type row struct {
		PaymentID string
		Total     int64
	}
	var rows []row
	err := tx.Table("payment_allocation").
		Select("payment_allocation.payment_id AS payment_id, COALESCE(SUM(payment_allocation.amount), 0) AS total").
		Joins("JOIN payment ON payment.id = payment_allocation.payment_id").
		Where("payment.patient_id = ?", patientID).
		Group("payment_allocation.payment_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sum allocations: %w", err)
	}
	sums := make(map[string]int64, len(rows))
	for _, r := range rows {
		sums[r.PaymentID] = r.Total
	}
	return sums, nil
}

// ListByPatient returns the patient's payments with their allocations, oldest
// first.
func (r *PaymentRepository) ListByPatient(ctx context.Context, patientID string) ([]models.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var payments []models.Payment
	err := database.DB.WithContext(ctx).
		Preload("Allocations").
		Where("patient_id = ?", patientID).
		Order("created_at ASC, id ASC").
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, nil
}
