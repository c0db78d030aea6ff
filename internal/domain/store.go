package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OutboxEvent is a domain event queued for post-commit delivery. Rows are
// written inside the unit of work and drained by the outbox dispatcher, so
// nothing leaves the service unless the transaction committed.
type OutboxEvent struct {
	AggregateType string
	AggregateID   string
	EventType     string
	PartitionKey  string
	Payload       any
}

// ParticipantChallenge pairs a participation row with its challenge.
type ParticipantChallenge struct {
	Challenge   Challenge
	Participant ChallengeParticipant
}

// Tx is the transactional view handed to the orchestrator. Implementations
// bind every call to one database transaction that holds the user's profile
// row lock, so concurrent progressions for the same user serialize and a
// failure rolls the whole unit back.
type Tx interface {
	// InsertActivity persists the activity. A dedup-key collision surfaces
	// as ErrDuplicateActivity and poisons the transaction.
	InsertActivity(ctx context.Context, a Activity) error
	ListActivities(ctx context.Context, userID uuid.UUID) ([]Activity, error)

	AppendXP(ctx context.Context, txn XPTransaction) error
	SumXP(ctx context.Context, userID uuid.UUID) (int64, error)

	SaveProfile(ctx context.Context, p Profile) error
	ClubVerified(ctx context.Context, userID uuid.UUID) (bool, error)

	HeldBadges(ctx context.Context, userID uuid.UUID) (map[string]struct{}, error)
	// InsertUserBadge reports whether the row was actually inserted; false
	// means another evaluation already holds the award.
	InsertUserBadge(ctx context.Context, b UserBadge) (bool, error)

	ListParticipations(ctx context.Context, userID uuid.UUID) ([]ParticipantChallenge, error)
	SetParticipantProgress(ctx context.Context, challengeID, userID uuid.UUID, progress float64, at time.Time) error

	InsertEvent(ctx context.Context, evt OutboxEvent) error
}

// Store is the persistence boundary of the progression engine.
type Store interface {
	// WithUserLock opens the per-user unit of work: one transaction with the
	// user's profile row created if missing and locked FOR UPDATE for its
	// whole duration.
	WithUserLock(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context, tx Tx) error) error

	FindByDedupKey(ctx context.Context, userID uuid.UUID, source Source, externalID string) (*Activity, error)
	ListActivities(ctx context.Context, userID uuid.UUID) ([]Activity, error)
	SumXP(ctx context.Context, userID uuid.UUID) (int64, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error)
	ListUserBadges(ctx context.Context, userID uuid.UUID) ([]UserBadge, error)
	ClubVerified(ctx context.Context, userID uuid.UUID) (bool, error)
	ListUserIDs(ctx context.Context) ([]uuid.UUID, error)

	CreateChallenge(ctx context.Context, c Challenge) error
	GetChallenge(ctx context.Context, id uuid.UUID) (*Challenge, error)
	ListChallenges(ctx context.Context) ([]Challenge, error)
	ListParticipants(ctx context.Context, challengeID uuid.UUID) ([]ChallengeParticipant, error)
	AddParticipant(ctx context.Context, p ChallengeParticipant) error
	RemoveParticipant(ctx context.Context, challengeID, userID uuid.UUID) error
	SetParticipantProgress(ctx context.Context, challengeID, userID uuid.UUID, progress float64, at time.Time) error
}
