package services

import (
	"github.com/google/uuid"
)

// NewSubmissionKey generates a fresh base idempotency key for one logical
// submission. Every payment line derives its own key from this base, so a
// network-level retry of an accepted line replays instead of duplicating.
func NewSubmissionKey() string {
	return uuid.New().String()
}

// RotateSubmissionKey replaces a failed submission's key. A user-initiated
// retry after a failure is a new logical submission and must not collide with
// lines that already committed under the old key.
func RotateSubmissionKey(old string) string {
	key := uuid.New().String()
	for key == old {
		key = uuid.New().String()
	}
	return key
}

// LineKey derives the per-line idempotency key from the submission base key.
func LineKey(baseKey, lineID string) string {
	return baseKey + ":" + lineID
}
