package services

import (
	"PearlDental/models"
	"context"
	"fmt"
	"log"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// LedgerStore is the write side of the patient ledger.
type LedgerStore interface {
	PaymentExecutor
	AllocatePayment(ctx context.Context, paymentID string, requests []models.AllocationRequest) error
	AllocateAdvanceToItems(ctx context.Context, patientID string, requests []models.AllocationRequest) (int64, error)
	WithPatientLock(ctx context.Context, patientID string, fn func() error) error
	ListByPatient(ctx context.Context, patientID string) ([]models.Payment, error)
}

// BalanceReader is the read side of the three balance pools.
type BalanceReader interface {
	Snapshot(ctx context.Context, patientID string) models.BalanceSnapshot
	GetBonusBalance(ctx context.Context, patientID string) (int64, error)
	GetDepositBalance(ctx context.Context, patientID string) (int64, error)
	GetAdvanceBalance(ctx context.Context, patientID string) (int64, error)
}

// WorkLister lists a patient's outstanding billable items in stable order.
type WorkLister interface {
	ListUnpaid(ctx context.Context, patientID string) ([]models.PerformedWork, error)
}

// PatientReader resolves patients.
type PatientReader interface {
	GetByID(ctx context.Context, id string) (*models.Patient, error)
}

// ReceiptSender delivers a payment receipt. Failures are logged, never fatal.
type ReceiptSender interface {
	SendPaymentReceipt(toEmail, patientName string, total int64, methods []string) error
}

// SelectedItem is one outstanding item the user chose to pay, with its
// per-item discount.
type SelectedItem struct {
	WorkID          uint `json:"work_id"`
	DiscountPercent int  `json:"discount_percent"`
}

// SubmitRequest is the composed payment the UI sends.
type SubmitRequest struct {
	PatientID             string         `json:"patient_id"`
	SubmissionKey         string         `json:"submission_key"`
	Lines                 []PaymentLine  `json:"lines"`
	Items                 []SelectedItem `json:"items"`
	GlobalDiscountPercent int            `json:"global_discount_percent"`
	Note                  string         `json:"note"`
}

// Validate checks the request shape. Pool and ceiling checks done here are
// advisory; the store re-validates atomically.
func (r SubmitRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.PatientID, validation.Required),
		validation.Field(&r.SubmissionKey, validation.Required),
		validation.Field(&r.Lines, validation.Required, validation.By(validateLines)),
		validation.Field(&r.Items, validation.By(validateItems)),
		validation.Field(&r.GlobalDiscountPercent, validation.Min(0), validation.Max(100)),
	)
}

func validateLines(value interface{}) error {
	lines, _ := value.([]PaymentLine)
	seen := make(map[string]bool, len(lines))
	for _, line := range lines {
		if line.ID == "" {
			return fmt.Errorf("line id is required")
		}
		if seen[line.ID] {
			return fmt.Errorf("duplicate line id %q", line.ID)
		}
		seen[line.ID] = true
		if !models.IsPoolMethod(line.Method) && !models.IsInstrumentMethod(line.Method) && line.Method != models.MethodAdvance {
			return fmt.Errorf("unknown payment method %q", line.Method)
		}
		if line.Amount <= 0 || line.Amount > models.MaxPaymentAmount {
			return &models.AmountOutOfRangeError{Amount: line.Amount}
		}
	}
	return nil
}

func validateItems(value interface{}) error {
	items, _ := value.([]SelectedItem)
	seen := make(map[uint]bool, len(items))
	for _, item := range items {
		if item.WorkID == 0 {
			return fmt.Errorf("item work id is required")
		}
		if seen[item.WorkID] {
			return fmt.Errorf("duplicate item %d", item.WorkID)
		}
		seen[item.WorkID] = true
		if item.DiscountPercent < 0 || item.DiscountPercent > 100 {
			return fmt.Errorf("item %d discount must be between 0 and 100", item.WorkID)
		}
	}
	return nil
}

// SubmitResult reports what a submission did. NewSubmissionKey is set only on
// failure, so a corrective resubmission cannot collide with committed lines.
type SubmitResult struct {
	Committed            []models.CommittedLine `json:"committed"`
	Allocated            int64                  `json:"allocated"`
	AdvanceAllocated     int64                  `json:"advance_allocated"`
	UnallocatedToAdvance int64                  `json:"unallocated_to_advance"`
	NewSubmissionKey     string                 `json:"new_submission_key,omitempty"`
}

// UnpaidItem is one outstanding item as shown in the ledger view, with its
// nominal (pre-discount) outstanding amount.
type UnpaidItem struct {
	WorkID      uint      `json:"work_id"`
	ServiceName string    `json:"service_name"`
	Date        time.Time `json:"date"`
	ToothNumber *int      `json:"tooth_number,omitempty"`
	Outstanding int64     `json:"outstanding"`
}

// LedgerView is everything the payment screen needs when it opens.
type LedgerView struct {
	Patient               *models.Patient        `json:"patient"`
	Balances              models.BalanceSnapshot `json:"balances"`
	UnpaidWorks           []UnpaidItem           `json:"unpaid_works"`
	DefaultGlobalDiscount int                    `json:"default_global_discount"`
	SubmissionKey         string                 `json:"submission_key"`
}

// LedgerService orchestrates the payment submission flow.
type LedgerService struct {
	store    LedgerStore
	balances BalanceReader
	works    WorkLister
	patients PatientReader
	receipts ReceiptSender
}

func NewLedgerService(store LedgerStore, balances BalanceReader, works WorkLister, patients PatientReader, receipts ReceiptSender) *LedgerService {
	return &LedgerService{
		store:    store,
		balances: balances,
		works:    works,
		patients: patients,
		receipts: receipts,
	}
}

// View loads the ledger screen data: balance pools, unpaid items, discount
// card default, and a fresh submission key.
func (s *LedgerService) View(ctx context.Context, patientID string) (*LedgerView, error) {
	patient, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if patient == nil {
		return nil, fmt.Errorf("patient %q not found", patientID)
	}

	snapshot := s.balances.Snapshot(ctx, patientID)

	unpaid, err := s.works.ListUnpaid(ctx, patientID)
	if err != nil {
		return nil, err
	}
	items := make([]UnpaidItem, 0, len(unpaid))
	for _, work := range unpaid {
		items = append(items, UnpaidItem{
			WorkID:      work.ID,
			ServiceName: work.ServiceName,
			Date:        work.CreatedAt,
			ToothNumber: work.ToothNumber,
			Outstanding: work.Outstanding(),
		})
	}

	return &LedgerView{
		Patient:               patient,
		Balances:              snapshot,
		UnpaidWorks:           items,
		DefaultGlobalDiscount: DefaultGlobalPercent(snapshot.DiscountCard, time.Now()),
		SubmissionKey:         NewSubmissionKey(),
	}, nil
}

// Payments returns the patient's payment history with allocations.
func (s *LedgerService) Payments(ctx context.Context, patientID string) ([]models.Payment, error) {
	return s.store.ListByPatient(ctx, patientID)
}

// Submit runs one composed payment: lines sequentially, then allocation of the
// new payments, then the advance walk. Committed lines are never reversed; on
// any failure the submission key is rotated and returned with the error.
func (s *LedgerService) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	patient, err := s.patients.GetByID(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}
	if patient == nil {
		return nil, fmt.Errorf("patient %q not found", req.PatientID)
	}

	unpaid, err := s.works.ListUnpaid(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}
	targets, err := buildTargets(unpaid, req.Items, req.GlobalDiscountPercent)
	if err != nil {
		return nil, err
	}

	// Advisory fast-fail before any line is dispatched. The store re-checks
	// each pool atomically; this only catches the obvious cases early.
	if err := s.precheckPools(ctx, req.PatientID, req.Lines); err != nil {
		return &SubmitResult{NewSubmissionKey: RotateSubmissionKey(req.SubmissionKey)}, err
	}

	processor := NewLineProcessor(s.store)
	var processed ProcessedLines
	var plan AllocationPlan
	var advanceAllocated int64

	submitErr := s.store.WithPatientLock(ctx, req.PatientID, func() error {
		var err error
		processed, err = processor.Process(ctx, patient, req.Lines, req.Note, req.SubmissionKey)
		if err != nil {
			return err
		}

		plan = BuildAllocationPlan(processed.Created, targets)
		for _, paymentPlan := range plan.PaymentPlans {
			if err := s.store.AllocatePayment(ctx, paymentPlan.PaymentID, paymentPlan.Requests); err != nil {
				return err
			}
		}

		if processed.AdvanceRequested > 0 {
			requests, _ := BuildAdvancePlan(processed.AdvanceRequested, plan.Remaining)
			if len(requests) > 0 {
				advanceAllocated, err = s.store.AllocateAdvanceToItems(ctx, req.PatientID, requests)
				if err != nil {
					return err
				}
			}
		}
		return nil
	})

	if submitErr != nil {
		result := &SubmitResult{
			Committed:        processed.Committed,
			NewSubmissionKey: RotateSubmissionKey(req.SubmissionKey),
		}
		if len(processed.Committed) > 0 {
			return result, &models.PartialSubmissionError{Committed: processed.Committed, Cause: submitErr}
		}
		return result, submitErr
	}

	var allocated int64
	for _, paymentPlan := range plan.PaymentPlans {
		for _, request := range paymentPlan.Requests {
			allocated += request.Amount
		}
	}

	s.sendReceipt(patient, processed)

	return &SubmitResult{
		Committed:            processed.Committed,
		Allocated:            allocated,
		AdvanceAllocated:     advanceAllocated,
		UnallocatedToAdvance: plan.Unallocated,
	}, nil
}

// buildTargets resolves the selected items against the aggregator's unpaid
// list, preserving its order, and computes each discounted target.
func buildTargets(unpaid []models.PerformedWork, items []SelectedItem, globalPercent int) ([]ItemTarget, error) {
	selected := make(map[uint]int, len(items))
	for _, item := range items {
		selected[item.WorkID] = item.DiscountPercent
	}

	targets := make([]ItemTarget, 0, len(items))
	for _, work := range unpaid {
		itemPercent, ok := selected[work.ID]
		if !ok {
			continue
		}
		delete(selected, work.ID)
		targets = append(targets, ItemTarget{
			WorkID: work.ID,
			Target: PayableAmount(work.Outstanding(), itemPercent, globalPercent),
		})
	}
	if len(selected) > 0 {
		for workID := range selected {
			return nil, fmt.Errorf("selected item %d has no outstanding amount", workID)
		}
	}
	return targets, nil
}

func (s *LedgerService) precheckPools(ctx context.Context, patientID string, lines []PaymentLine) error {
	var pools PoolFunds
	var err error
	unreadable := make(map[string]bool)

	pools.Bonus, err = s.balances.GetBonusBalance(ctx, patientID)
	if err != nil {
		log.Printf("Precheck: bonus read failed for patient %s: %v", patientID, err)
		unreadable[models.MethodBonus] = true
	}
	pools.Deposit, err = s.balances.GetDepositBalance(ctx, patientID)
	if err != nil {
		log.Printf("Precheck: deposit read failed for patient %s: %v", patientID, err)
		unreadable[models.MethodDeposit] = true
	}
	pools.Advance, err = s.balances.GetAdvanceBalance(ctx, patientID)
	if err != nil {
		log.Printf("Precheck: advance read failed for patient %s: %v", patientID, err)
		unreadable[models.MethodAdvance] = true
	}

	for _, line := range lines {
		if models.IsInstrumentMethod(line.Method) {
			continue
		}
		// A pool that could not be read is left to the store's own atomic
		// check instead of failing on a zero guess.
		if unreadable[line.Method] {
			continue
		}
		available := AvailableFor(line.Method, lines, line.ID, pools)
		if line.Amount > available {
			return &models.InsufficientBalanceError{
				Pool:      line.Method,
				Requested: line.Amount,
				Available: available,
			}
		}
	}
	return nil
}

func (s *LedgerService) sendReceipt(patient *models.Patient, processed ProcessedLines) {
	if s.receipts == nil || patient.Email == "" || len(processed.Committed) == 0 {
		return
	}
	var total int64
	methods := make([]string, 0, len(processed.Committed))
	for _, line := range processed.Committed {
		total += line.Amount
		methods = append(methods, line.Method)
	}
	name := patient.FirstName + " " + patient.LastName
	if err := s.receipts.SendPaymentReceipt(patient.Email, name, total, methods); err != nil {
		log.Printf("Failed to send payment receipt to %s: %v", patient.Email, err)
	}
}
