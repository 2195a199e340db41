package repositories

import (
	"PearlDental/cache"
	"PearlDental/database"
	"PearlDental/models"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

const (
	DiscountCardCacheExpiry = 1 * time.Hour
)

// BalanceRepository reads the patient's balance pools. Bonus and deposit come
// from the stored balance row; the advance pool is always recomputed from
// payments and allocations so a drifted cached value can never over-spend.
type BalanceRepository struct {
	cache *cache.Cache
}

func NewBalanceRepository(cache *cache.Cache) *BalanceRepository {
	return &BalanceRepository{cache: cache}
}

func (r *BalanceRepository) GetBonusBalance(ctx context.Context, patientID string) (int64, error) {
	balance, err := r.getBalanceRow(ctx, patientID)
	if err != nil {
		return 0, err
	}
	return balance.Bonus, nil
}

func (r *BalanceRepository) GetDepositBalance(ctx context.Context, patientID string) (int64, error) {
	balance, err := r.getBalanceRow(ctx, patientID)
	if err != nil {
		return 0, err
	}
	return balance.Deposit, nil
}

func (r *BalanceRepository) getBalanceRow(ctx context.Context, patientID string) (models.PatientBalance, error) {
	var balance models.PatientBalance
	err := database.DB.WithContext(ctx).First(&balance, "patient_id = ?", patientID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// No row yet means the patient has never held a pool balance.
			return models.PatientBalance{PatientID: patientID}, nil
		}
		return models.PatientBalance{}, fmt.Errorf("failed to get patient balance: %w", err)
	}
	return balance, nil
}

// paymentRemainder is one payment with the sum of its allocations.
type paymentRemainder struct {
	ID        string
	Amount    int64
	Allocated int64
}

// GetAdvanceBalance computes the derived advance pool: for every payment of the
// patient, the unallocated remainder max(0, amount - allocated), summed.
func (r *BalanceRepository) GetAdvanceBalance(ctx context.Context, patientID string) (int64, error) {
	var rows []paymentRemainder
	err := database.DB.WithContext(ctx).
		Table("payment").
		Select("payment.id AS id, payment.amount AS amount, COALESCE(SUM(payment_allocation.amount), 0) AS allocated").
		Joins("LEFT JOIN payment_allocation ON payment_allocation.payment_id = payment.id").
		Where("payment.patient_id = ?", patientID).
		Group("payment.id, payment.amount").
		Scan(&rows).Error
	if err != nil {
		return 0, fmt.Errorf("failed to compute advance balance: %w", err)
	}

	var advance int64
	for _, row := range rows {
		if remainder := row.Amount - row.Allocated; remainder > 0 {
			advance += remainder
		}
	}
	return advance, nil
}

// GetActiveDiscountCard returns the patient's discount card whose validity
// window covers now, or nil when there is none.
func (r *BalanceRepository) GetActiveDiscountCard(ctx context.Context, patientID string) (*models.DiscountCard, error) {
	cacheKey := r.getDiscountCardCacheKey(patientID)
	cached, err := r.cache.Get(ctx, cacheKey)
	if err == nil && cached != "" {
		var card models.DiscountCard
		if err := json.Unmarshal([]byte(cached), &card); err == nil && card.ActiveAt(time.Now()) {
			return &card, nil
		}
	} else if err != nil && err != redis.Nil {
		log.Printf("Failed to get discount card from cache: %v", err)
	}

	var card models.DiscountCard
	now := time.Now()
	err = database.DB.WithContext(ctx).
		Where("patient_id = ? AND valid_from <= ? AND valid_until >= ?", patientID, now, now).
		Order("valid_until DESC").
		First(&card).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get discount card: %w", err)
	}

	cardJSON, err := json.Marshal(card)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal discount card: %w", err)
	}
	if err := r.cache.Set(ctx, cacheKey, cardJSON, DiscountCardCacheExpiry); err != nil {
		log.Printf("Failed to set discount card in cache: %v", err)
	}

	return &card, nil
}

// Snapshot reads all three pools and the discount card. A failed read degrades
// to a zero balance with a warning instead of blocking payment entry.
func (r *BalanceRepository) Snapshot(ctx context.Context, patientID string) models.BalanceSnapshot {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var snapshot models.BalanceSnapshot
	var warnings []string

	bonus, err := r.GetBonusBalance(ctx, patientID)
	if err != nil {
		log.Printf("Balance snapshot: bonus read failed for patient %s: %v", patientID, err)
		warnings = append(warnings, "bonus balance unavailable, shown as zero")
	}
	snapshot.Bonus = bonus

	deposit, err := r.GetDepositBalance(ctx, patientID)
	if err != nil {
		log.Printf("Balance snapshot: deposit read failed for patient %s: %v", patientID, err)
		warnings = append(warnings, "deposit balance unavailable, shown as zero")
	}
	snapshot.Deposit = deposit

	advance, err := r.GetAdvanceBalance(ctx, patientID)
	if err != nil {
		log.Printf("Balance snapshot: advance read failed for patient %s: %v", patientID, err)
		warnings = append(warnings, "advance balance unavailable, shown as zero")
	}
	snapshot.Advance = advance

	card, err := r.GetActiveDiscountCard(ctx, patientID)
	if err != nil {
		log.Printf("Balance snapshot: discount card read failed for patient %s: %v", patientID, err)
		warnings = append(warnings, "discount card unavailable")
	}
	snapshot.DiscountCard = card

	if len(warnings) > 0 {
		snapshot.Warning = warnings[0]
		for _, w := range warnings[1:] {
			snapshot.Warning += "; " + w
		}
	}
	return snapshot
}

func (r *BalanceRepository) DeleteCardCache(ctx context.Context, patientID string) error {
	return r.cache.Delete(ctx, r.getDiscountCardCacheKey(patientID))
}

func (r *BalanceRepository) getDiscountCardCacheKey(patientID string) string {
	return fmt.Sprintf("discount_card_cache:%s", patientID)
}
