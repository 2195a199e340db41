package models

import (
	"time"
)

// Payment methods. Bonus and deposit draw from the patient's internal balance
// pools; the rest are external instruments. Advance is not a real method tag:
// advance lines consume previously unallocated payments instead of creating one.
const (
	MethodCash     = "cash"
	MethodCard     = "card"
	MethodTransfer = "transfer"
	MethodBonus    = "bonus"
	MethodDeposit  = "deposit"
	MethodAdvance  = "advance"
)

// MaxPaymentAmount is the hard ceiling for a single payment line, in minor
// currency units.
const MaxPaymentAmount int64 = 100_000_000

// IsPoolMethod reports whether the method deducts from a stored balance pool.
func IsPoolMethod(method string) bool {
	return method == MethodBonus || method == MethodDeposit
}

// IsInstrumentMethod reports whether the method is an external payment instrument.
func IsInstrumentMethod(method string) bool {
	return method == MethodCash || method == MethodCard || method == MethodTransfer
}

// Payment is a single received payment. Immutable once created; corrections are
// made with new records, never by editing or deleting a payment.
type Payment struct {
	ID             string              `gorm:"primaryKey;column:id" json:"id"`
	PatientID      string              `gorm:"column:patient_id;not null;index" json:"patient_id"`
	ClinicID       string              `gorm:"column:clinic_id;not null;index" json:"clinic_id"`
	Amount         int64               `gorm:"column:amount;not null" json:"amount"`
	Method         string              `gorm:"column:method;not null" json:"method"`
	Note           string              `gorm:"column:note" json:"note"`
	IdempotencyKey string              `gorm:"column:idempotency_key;uniqueIndex" json:"idempotency_key"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	Allocations    []PaymentAllocation `gorm:"foreignKey:PaymentID;references:ID" json:"allocations,omitempty"`
}

func (Payment) TableName() string {
	return "payment"
}

// PaymentAllocation assigns part of a payment to a performed work item. The sum
// of a payment's allocations never exceeds the payment amount; the remainder is
// the patient's advance.
type PaymentAllocation struct {
	ID        uint      `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	PaymentID string    `gorm:"column:payment_id;not null;index" json:"payment_id"`
	WorkID    uint      `gorm:"column:work_id;not null;index" json:"work_id"`
	Amount    int64     `gorm:"column:amount;not null" json:"amount"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (PaymentAllocation) TableName() string {
	return "payment_allocation"
}

// PerformedWork is a billable clinical line item. CollectedAmount only grows,
// and only through allocations.
type PerformedWork struct {
	ID              uint      `gorm:"primaryKey;autoIncrement;column:id;index" json:"id"`
	PatientID       string    `gorm:"column:patient_id;not null;index" json:"patient_id"`
	ClinicID        string    `gorm:"column:clinic_id;not null;index" json:"clinic_id"`
	DoctorID        string    `gorm:"column:doctor_id;index" json:"doctor_id"`
	ServiceName     string    `gorm:"column:service_name;not null" json:"service_name"`
	ToothNumber     *int      `gorm:"column:tooth_number" json:"tooth_number,omitempty"`
	Price           int64     `gorm:"column:price;not null" json:"price"`
	Quantity        int       `gorm:"column:quantity;not null;default:1" json:"quantity"`
	CollectedAmount int64     `gorm:"column:collected_amount;not null;default:0" json:"collected_amount"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (PerformedWork) TableName() string {
	return "performed_work"
}

// Outstanding is the amount still owed on the item.
func (w PerformedWork) Outstanding() int64 {
	out := w.Price*int64(w.Quantity) - w.CollectedAmount
	if out < 0 {
		return 0
	}
	return out
}

// PatientBalance holds the two stored balance pools. One row per patient so
// concurrent deductions serialize on a single row lock. The advance pool is
// never stored here: it is always derived from payments and allocations.
type PatientBalance struct {
	PatientID string    `gorm:"primaryKey;column:patient_id" json:"patient_id"`
	Bonus     int64     `gorm:"column:bonus;not null;default:0" json:"bonus"`
	Deposit   int64     `gorm:"column:deposit;not null;default:0" json:"deposit"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (PatientBalance) TableName() string {
	return "patient_balance"
}

// AllocationRequest asks for a specific amount to be allocated to a specific
// performed work item.
type AllocationRequest struct {
	WorkID uint  `json:"work_id"`
	Amount int64 `json:"amount"`
}

// BalanceSnapshot is the read-only view of a patient's three balance pools and
// active discount card, taken when the ledger view opens. Warning is set when a
// pool read failed and was substituted with zero; it never blocks payment entry.
type BalanceSnapshot struct {
	Bonus        int64         `json:"bonus"`
	Deposit      int64         `json:"deposit"`
	Advance      int64         `json:"advance"`
	DiscountCard *DiscountCard `json:"discount_card,omitempty"`
	Warning      string        `json:"warning,omitempty"`
}

// DiscountCard model
type DiscountCard struct {
	ID         uint      `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	PatientID  string    `gorm:"column:patient_id;not null;index" json:"patient_id"`
	CardNumber string    `gorm:"column:card_number;not null" json:"card_number"`
	Percent    int       `gorm:"column:percent;not null" json:"percent"`
	ValidFrom  time.Time `gorm:"column:valid_from;not null" json:"valid_from"`
	ValidUntil time.Time `gorm:"column:valid_until;not null" json:"valid_until"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (DiscountCard) TableName() string {
	return "discount_card"
}

// ActiveAt reports whether the card's validity window covers the given time.
func (c DiscountCard) ActiveAt(at time.Time) bool {
	return !at.Before(c.ValidFrom) && !at.After(c.ValidUntil)
}
