// Package events defines the payloads published on the progression topics.
package events

import "time"

// EventProgressionCompleted and EventBadgeUnlocked are the outbox event
// types; topic routing lives with the dispatcher.
const (
	EventProgressionCompleted = "progression.completed"
	EventBadgeUnlocked        = "badge.unlocked"
)

// ProgressionCompleted is emitted once per accepted activity after the unit
// of work commits. It carries everything downstream notification needs.
type ProgressionCompleted struct {
	ActivityID        string    `json:"activity_id"`
	UserID            string    `json:"user_id"`
	Source            string    `json:"source"`
	XPGained          int64     `json:"xp_gained"`
	TotalXP           int64     `json:"total_xp"`
	Level             int       `json:"level"`
	LeveledUp         bool      `json:"leveled_up"`
	NewBadges         []string  `json:"new_badges"`
	TouchedChallenges []string  `json:"touched_challenges"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// BadgeUnlocked is emitted once per award, in the same transaction as the
// award itself.
type BadgeUnlocked struct {
	UserID     string    `json:"user_id"`
	BadgeID    string    `json:"badge_id"`
	BadgeName  string    `json:"badge_name"`
	Rarity     string    `json:"rarity"`
	XPReward   int64     `json:"xp_reward"`
	OccurredAt time.Time `json:"occurred_at"`
}
