package services

import (
	"PearlDental/models"
	"context"
	"fmt"
)

// PaymentExecutor is the store contract for persisting one payment line.
type PaymentExecutor interface {
	DeductBonusAndPay(ctx context.Context, patientID, clinicID string, amount int64, note, idempotencyKey string) (*models.Payment, int64, error)
	DeductDepositAndPay(ctx context.Context, patientID, clinicID string, amount int64, note, idempotencyKey string) (*models.Payment, int64, error)
	RecordInstrumentPayment(ctx context.Context, patientID, clinicID string, amount int64, method, idempotencyKey, note string) (*models.Payment, error)
}

// ProcessedLines is the outcome of running a submission's lines.
type ProcessedLines struct {
	// Created holds the new payments in creation order.
	Created []models.Payment
	// Committed mirrors Created line by line, for failure reporting.
	Committed []models.CommittedLine
	// AdvanceRequested is the total of advance lines. Advance lines create no
	// payment; they opt existing unallocated funds into this submission.
	AdvanceRequested int64
}

// PartitionByFamily splits payments into the advance-eligible family (external
// instruments, whose unallocated remainder stays in the advance pool) and the
// pool family (bonus/deposit deductions).
func PartitionByFamily(payments []models.Payment) (instrument, pool []models.Payment) {
	for _, p := range payments {
		if models.IsPoolMethod(p.Method) {
			pool = append(pool, p)
		} else {
			instrument = append(instrument, p)
		}
	}
	return instrument, pool
}

// LineProcessor turns payment lines into persisted payments, strictly in
// order. Later lines see the balance effects of earlier ones, so there is no
// parallelism here on purpose.
type LineProcessor struct {
	store PaymentExecutor
}

func NewLineProcessor(store PaymentExecutor) *LineProcessor {
	return &LineProcessor{store: store}
}

// Process executes the lines sequentially. On the first failing line it stops
// and returns everything committed so far together with the error; committed
// lines are not reversed.
func (p *LineProcessor) Process(ctx context.Context, patient *models.Patient, lines []PaymentLine, note, baseKey string) (ProcessedLines, error) {
	var result ProcessedLines

	for _, line := range lines {
		if line.Method == models.MethodAdvance {
			if line.Amount <= 0 || line.Amount > models.MaxPaymentAmount {
				return result, &models.AmountOutOfRangeError{Amount: line.Amount}
			}
			result.AdvanceRequested += line.Amount
			continue
		}

		payment, err := p.processLine(ctx, patient, line, note, LineKey(baseKey, line.ID))
		if err != nil {
			return result, err
		}
		result.Created = append(result.Created, *payment)
		result.Committed = append(result.Committed, models.CommittedLine{
			LineID:    line.ID,
			Method:    line.Method,
			Amount:    line.Amount,
			PaymentID: payment.ID,
		})
	}
	return result, nil
}

func (p *LineProcessor) processLine(ctx context.Context, patient *models.Patient, line PaymentLine, note, key string) (*models.Payment, error) {
	switch {
	case line.Method == models.MethodBonus:
		payment, _, err := p.store.DeductBonusAndPay(ctx, patient.ID, patient.ClinicID, line.Amount, note, key)
		return payment, err
	case line.Method == models.MethodDeposit:
		payment, _, err := p.store.DeductDepositAndPay(ctx, patient.ID, patient.ClinicID, line.Amount, note, key)
		return payment, err
	case models.IsInstrumentMethod(line.Method):
		return p.store.RecordInstrumentPayment(ctx, patient.ID, patient.ClinicID, line.Amount, line.Method, key, note)
	default:
		return nil, fmt.Errorf("unknown payment method %q", line.Method)
	}
}
