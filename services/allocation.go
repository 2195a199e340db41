package services

import (
	"PearlDental/models"
)

// ItemTarget is one selected work item with the discounted amount still to be
// collected for it in this submission. Order matters: it must match the
// unpaid-work aggregator order.
type ItemTarget struct {
	WorkID uint
	Target int64
}

// PaymentPlan lists the allocations one payment will receive.
type PaymentPlan struct {
	PaymentID string
	Requests  []models.AllocationRequest
}

// AllocationPlan is the deterministic output of the greedy walk over new
// payments and selected items.
type AllocationPlan struct {
	// PaymentPlans, in payment creation order. Payments that ended up fully
	// unallocated are omitted.
	PaymentPlans []PaymentPlan
	// Remaining holds the items' leftover targets after the new payments were
	// spent; the advance walk continues from here.
	Remaining []ItemTarget
	// Unallocated is the total of new payment funds no item absorbed. It
	// implicitly becomes advance.
	Unallocated int64
}

// BuildAllocationPlan distributes the created payments across the selected
// items: payments in creation order, items in aggregator order, each step
// allocating min(item's remaining target, payment's remaining funds). Greedy
// and single-pass, which matches the visual order the user composed and keeps
// partial payments predictable. No bin-packing.
func BuildAllocationPlan(payments []models.Payment, items []ItemTarget) AllocationPlan {
	remaining := make([]ItemTarget, len(items))
	copy(remaining, items)

	plan := AllocationPlan{}
	cursor := 0

	for _, payment := range payments {
		funds := payment.Amount
		var requests []models.AllocationRequest

		for funds > 0 && cursor < len(remaining) {
			if remaining[cursor].Target == 0 {
				cursor++
				continue
			}
			take := remaining[cursor].Target
			if funds < take {
				take = funds
			}
			requests = append(requests, models.AllocationRequest{
				WorkID: remaining[cursor].WorkID,
				Amount: take,
			})
			remaining[cursor].Target -= take
			funds -= take
		}

		if len(requests) > 0 {
			plan.PaymentPlans = append(plan.PaymentPlans, PaymentPlan{
				PaymentID: payment.ID,
				Requests:  requests,
			})
		}
		plan.Unallocated += funds
	}

	for _, item := range remaining {
		if item.Target > 0 {
			plan.Remaining = append(plan.Remaining, item)
		}
	}
	return plan
}

// BuildAdvancePlan runs the same greedy item walk against the advance budget
// the user opted into this submission. Which historical payments absorb the
// allocations is decided by the store, not here.
func BuildAdvancePlan(budget int64, items []ItemTarget) ([]models.AllocationRequest, int64) {
	var requests []models.AllocationRequest
	var used int64

	for _, item := range items {
		if budget == 0 {
			break
		}
		if item.Target <= 0 {
			continue
		}
		take := item.Target
		if budget < take {
			take = budget
		}
		requests = append(requests, models.AllocationRequest{
			WorkID: item.WorkID,
			Amount: take,
		})
		budget -= take
		used += take
	}
	return requests, used
}
