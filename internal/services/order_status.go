package services

import "github.com/nyambika/marketplace/internal/models"

var validationRank = map[string]int{
	models.ValidationPending:             0,
	models.ValidationInProgress:          1,
	models.ValidationDone:                2,
	models.ValidationConfirmedByCustomer: 3,
}

// IsValidationStatus reports whether s is a known validation status
func IsValidationStatus(s string) bool {
	_, ok := validationRank[s]
	return ok
}

// CanAdvanceValidation reports whether an order may move from one validation
// status to another. Statuses only move forward; skipping steps is reserved
// for admins.
func CanAdvanceValidation(from, to string, admin bool) bool {
	f, ok := validationRank[from]
	if !ok {
		return false
	}
	t, ok := validationRank[to]
	if !ok || t <= f {
		return false
	}
	return admin || t == f+1
}

// canSetValidation applies per-role rules on top of CanAdvanceValidation.
// Producers work the order through in_progress and done; only the customer
// confirms receipt.
func canSetValidation(role, to string) bool {
	switch role {
	case models.RoleAdmin:
		return true
	case models.RoleProducer:
		return to == models.ValidationInProgress || to == models.ValidationDone
	case models.RoleCustomer:
		return to == models.ValidationConfirmedByCustomer
	}
	return false
}

var orderStatusTransitions = map[string]map[string]bool{
	"pending":    {"confirmed": true, "processing": true, "cancelled": true},
	"confirmed":  {"processing": true, "shipped": true, "cancelled": true},
	"processing": {"shipped": true, "cancelled": true},
	"shipped":    {"delivered": true},
}

// CanTransitionOrder reports whether an order's fulfilment status may change
func CanTransitionOrder(from, to string) bool {
	return orderStatusTransitions[from][to]
}
