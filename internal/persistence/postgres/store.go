package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ScimanSky/swimforge-oppidum-sub001/internal/domain"
	"github.com/ScimanSky/swimforge-oppidum-sub001/internal/observability"
)

// Store implements domain.Store on PostgreSQL.
type Store struct{ db *DB }

// NewStore constructs the store.
func NewStore(db *DB) *Store { return &Store{db: db} }

// WithUserLock opens the per-user unit of work. The user's profile row is
// created on first contact and locked FOR UPDATE, serializing concurrent
// progressions for the same user across service instances; different users
// never contend.
func (s *Store) WithUserLock(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context, tx domain.Tx) error) (err error) {
	tx, err := s.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	if _, err = tx.Exec(ctx,
		`INSERT INTO profiles (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`,
		userID); err != nil {
		return err
	}
	var locked uuid.UUID
	if err = tx.QueryRow(ctx,
		`SELECT user_id FROM profiles WHERE user_id=$1 FOR UPDATE`,
		userID).Scan(&locked); err != nil {
		return err
	}

	if err = fn(ctx, &unit{tx: tx}); err != nil {
		return err
	}
	observability.RecordUnitCommitted(time.Now().UTC())
	return nil
}

func (s *Store) FindByDedupKey(ctx context.Context, userID uuid.UUID, source domain.Source, externalID string) (*domain.Activity, error) {
	return findByDedupKey(ctx, s.db.Pool, userID, source, externalID)
}

func (s *Store) ListActivities(ctx context.Context, userID uuid.UUID) ([]domain.Activity, error) {
	return listActivities(ctx, s.db.Pool, userID)
}

func (s *Store) SumXP(ctx context.Context, userID uuid.UUID) (int64, error) {
	return sumXP(ctx, s.db.Pool, userID)
}

func (s *Store) GetProfile(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	return getProfile(ctx, s.db.Pool, userID)
}

func (s *Store) ListUserBadges(ctx context.Context, userID uuid.UUID) ([]domain.UserBadge, error) {
	return listUserBadges(ctx, s.db.Pool, userID)
}

func (s *Store) ClubVerified(ctx context.Context, userID uuid.UUID) (bool, error) {
	return clubVerified(ctx, s.db.Pool, userID)
}

// ListUserIDs returns every user with at least one activity, the population
// touched by administrative recalculation.
func (s *Store) ListUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.Pool.Query(ctx, `SELECT DISTINCT user_id FROM activities ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) CreateChallenge(ctx context.Context, c domain.Challenge) error {
	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO challenges (`+challengeColumns+`)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		c.ID, c.Name, c.Description, string(c.Type), string(c.Objective),
		c.StartDate, c.EndDate, c.CreatorID, c.BadgeName, c.PrizeDescription, c.CreatedAt,
	)
	return err
}

func (s *Store) GetChallenge(ctx context.Context, id uuid.UUID) (*domain.Challenge, error) {
	row := s.db.Pool.QueryRow(ctx,
		`SELECT `+challengeColumns+` FROM challenges WHERE challenge_id=$1`, id)
	c, err := scanChallenge(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListChallenges(ctx context.Context) ([]domain.Challenge, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT `+challengeColumns+` FROM challenges ORDER BY start_date DESC, challenge_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) ListParticipants(ctx context.Context, challengeID uuid.UUID) ([]domain.ChallengeParticipant, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT challenge_id, user_id, joined_at, progress
         FROM challenge_participants WHERE challenge_id=$1
         ORDER BY joined_at, user_id`,
		challengeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ChallengeParticipant
	for rows.Next() {
		var p domain.ChallengeParticipant
		if err := rows.Scan(&p.ChallengeID, &p.UserID, &p.JoinedAt, &p.Progress); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AddParticipant is idempotent: joining a challenge twice leaves the
// original row (and its joinedAt) untouched.
func (s *Store) AddParticipant(ctx context.Context, p domain.ChallengeParticipant) error {
	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO challenge_participants (challenge_id, user_id, joined_at, progress)
         VALUES ($1,$2,$3,$4)
         ON CONFLICT (challenge_id, user_id) DO NOTHING`,
		p.ChallengeID, p.UserID, p.JoinedAt, p.Progress,
	)
	return err
}

func (s *Store) RemoveParticipant(ctx context.Context, challengeID, userID uuid.UUID) error {
	_, err := s.db.Pool.Exec(ctx,
		`DELETE FROM challenge_participants WHERE challenge_id=$1 AND user_id=$2`,
		challengeID, userID,
	)
	return err
}

func (s *Store) SetParticipantProgress(ctx context.Context, challengeID, userID uuid.UUID, progress float64, at time.Time) error {
	return setParticipantProgress(ctx, s.db.Pool, challengeID, userID, progress, at)
}
