package processor

import "poltrona/internal/models"

// MapStatus translates a processor status into the internal vocabulary.
// known is false for values the mapping has never seen; those land on
// pending so the payment keeps being polled.
func MapStatus(raw string) (status models.PaymentStatus, known bool) {
	switch raw {
	case "approved", "authorized":
		return models.PaymentStatusApproved, true
	case "rejected", "refunded", "charged_back":
		return models.PaymentStatusRejected, true
	case "cancelled":
		return models.PaymentStatusCancelled, true
	case "pending", "in_process", "in_mediation":
		return models.PaymentStatusPending, true
	default:
		return models.PaymentStatusPending, false
	}
}
