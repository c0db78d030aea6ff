package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ScimanSky/swimforge-oppidum-sub001/internal/domain"
)

// unit implements domain.Tx over an open transaction holding the profile
// row lock.
type unit struct{ tx pgx.Tx }

func (u *unit) InsertActivity(ctx context.Context, a domain.Activity) error {
	return insertActivity(ctx, u.tx, a)
}

func (u *unit) ListActivities(ctx context.Context, userID uuid.UUID) ([]domain.Activity, error) {
	return listActivities(ctx, u.tx, userID)
}

func (u *unit) AppendXP(ctx context.Context, txn domain.XPTransaction) error {
	return appendXP(ctx, u.tx, txn)
}

func (u *unit) SumXP(ctx context.Context, userID uuid.UUID) (int64, error) {
	return sumXP(ctx, u.tx, userID)
}

func (u *unit) SaveProfile(ctx context.Context, p domain.Profile) error {
	return saveProfile(ctx, u.tx, p)
}

func (u *unit) ClubVerified(ctx context.Context, userID uuid.UUID) (bool, error) {
	return clubVerified(ctx, u.tx, userID)
}

func (u *unit) HeldBadges(ctx context.Context, userID uuid.UUID) (map[string]struct{}, error) {
	return heldBadges(ctx, u.tx, userID)
}

func (u *unit) InsertUserBadge(ctx context.Context, b domain.UserBadge) (bool, error) {
	return insertUserBadge(ctx, u.tx, b)
}

func (u *unit) ListParticipations(ctx context.Context, userID uuid.UUID) ([]domain.ParticipantChallenge, error) {
	return listParticipations(ctx, u.tx, userID)
}

func (u *unit) SetParticipantProgress(ctx context.Context, challengeID, userID uuid.UUID, progress float64, at time.Time) error {
	return setParticipantProgress(ctx, u.tx, challengeID, userID, progress, at)
}

func (u *unit) InsertEvent(ctx context.Context, evt domain.OutboxEvent) error {
	return insertOutbox(ctx, u.tx, evt)
}
