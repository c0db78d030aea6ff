package domain

import (
	"time"

	"github.com/google/uuid"
)

// XPReason classifies a ledger entry.
type XPReason string

const (
	XPReasonActivity XPReason = "activity"
	XPReasonBadge    XPReason = "badge"
	XPReasonBonus    XPReason = "bonus"
	XPReasonStreak   XPReason = "streak"
	XPReasonRecord   XPReason = "record"
	XPReasonLevelUp  XPReason = "level_up"
)

// XPTransaction is one entry of the append-only experience ledger. Entries
// are never mutated or deleted; a user's totalXp is always the sum of their
// amounts.
type XPTransaction struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	Amount            int64
	Reason            XPReason
	Description       string
	RelatedActivityID *uuid.UUID
	RelatedBadgeID    *string
	CreatedAt         time.Time
}
