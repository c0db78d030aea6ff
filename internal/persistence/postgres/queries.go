package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ScimanSky/swimforge-oppidum-sub001/internal/domain"
)

const activityColumns = `activity_id, user_id, source, external_id, activity_date,
        distance_meters, duration_seconds, stroke_type, is_open_water,
        avg_heart_rate, max_heart_rate, pool_length_meters, calories,
        swolf_score, lap_count, location, notes, xp_earned, scorer_version, created_at`

func scanActivity(row pgx.Row) (domain.Activity, error) {
	var a domain.Activity
	err := row.Scan(
		&a.ID, &a.UserID, &a.Source, &a.ExternalID, &a.ActivityDate,
		&a.DistanceMeters, &a.DurationSeconds, &a.Stroke, &a.OpenWater,
		&a.AvgHeartRate, &a.MaxHeartRate, &a.PoolLengthMeters, &a.Calories,
		&a.SwolfScore, &a.LapCount, &a.Location, &a.Notes, &a.XPEarned,
		&a.ScorerVersion, &a.CreatedAt,
	)
	return a, err
}

func listActivities(ctx context.Context, q querier, userID uuid.UUID) ([]domain.Activity, error) {
	rows, err := q.Query(ctx,
		`SELECT `+activityColumns+` FROM activities WHERE user_id=$1 ORDER BY activity_date, activity_id`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func findByDedupKey(ctx context.Context, q querier, userID uuid.UUID, source domain.Source, externalID string) (*domain.Activity, error) {
	row := q.QueryRow(ctx,
		`SELECT `+activityColumns+` FROM activities WHERE user_id=$1 AND source=$2 AND external_id=$3`,
		userID, string(source), externalID)
	a, err := scanActivity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func insertActivity(ctx context.Context, q querier, a domain.Activity) error {
	_, err := q.Exec(ctx,
		`INSERT INTO activities (`+activityColumns+`)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		a.ID, a.UserID, string(a.Source), a.ExternalID, a.ActivityDate,
		a.DistanceMeters, a.DurationSeconds, string(a.Stroke), a.OpenWater,
		a.AvgHeartRate, a.MaxHeartRate, a.PoolLengthMeters, a.Calories,
		a.SwolfScore, a.LapCount, a.Location, a.Notes, a.XPEarned,
		a.ScorerVersion, a.CreatedAt,
	)
	if err != nil && isUniqueViolation(err) {
		return domain.ErrDuplicateActivity
	}
	return err
}

func sumXP(ctx context.Context, q querier, userID uuid.UUID) (int64, error) {
	var total int64
	err := q.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM xp_transactions WHERE user_id=$1`,
		userID).Scan(&total)
	return total, err
}

func appendXP(ctx context.Context, q querier, t domain.XPTransaction) error {
	_, err := q.Exec(ctx,
		`INSERT INTO xp_transactions (transaction_id, user_id, amount, reason, description,
             related_activity_id, related_badge_id, created_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		t.ID, t.UserID, t.Amount, string(t.Reason), t.Description,
		t.RelatedActivityID, t.RelatedBadgeID, t.CreatedAt,
	)
	return err
}

const profileColumns = `user_id, total_xp, level, level_title, level_color,
        total_distance_meters, total_time_seconds, total_sessions,
        total_open_water_sessions, total_open_water_meters,
        current_streak_days, longest_streak_days, last_activity_date, updated_at`

func getProfile(ctx context.Context, q querier, userID uuid.UUID) (*domain.Profile, error) {
	row := q.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id=$1`, userID)
	var p domain.Profile
	err := row.Scan(
		&p.UserID, &p.TotalXP, &p.Level, &p.LevelTitle, &p.LevelColor,
		&p.TotalDistanceMeters, &p.TotalTimeSeconds, &p.TotalSessions,
		&p.TotalOpenWaterSessions, &p.TotalOpenWaterMeters,
		&p.CurrentStreakDays, &p.LongestStreakDays, &p.LastActivityDate, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func saveProfile(ctx context.Context, q querier, p domain.Profile) error {
	_, err := q.Exec(ctx,
		`UPDATE profiles SET total_xp=$2, level=$3, level_title=$4, level_color=$5,
             total_distance_meters=$6, total_time_seconds=$7, total_sessions=$8,
             total_open_water_sessions=$9, total_open_water_meters=$10,
             current_streak_days=$11, longest_streak_days=$12,
             last_activity_date=$13, updated_at=$14
         WHERE user_id=$1`,
		p.UserID, p.TotalXP, p.Level, p.LevelTitle, p.LevelColor,
		p.TotalDistanceMeters, p.TotalTimeSeconds, p.TotalSessions,
		p.TotalOpenWaterSessions, p.TotalOpenWaterMeters,
		p.CurrentStreakDays, p.LongestStreakDays, p.LastActivityDate, p.UpdatedAt,
	)
	return err
}

func clubVerified(ctx context.Context, q querier, userID uuid.UUID) (bool, error) {
	var verified bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM club_verifications WHERE user_id=$1)`,
		userID).Scan(&verified)
	return verified, err
}

func heldBadges(ctx context.Context, q querier, userID uuid.UUID) (map[string]struct{}, error) {
	rows, err := q.Query(ctx, `SELECT badge_id FROM user_badges WHERE user_id=$1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	held := make(map[string]struct{})
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		held[code] = struct{}{}
	}
	return held, rows.Err()
}

func listUserBadges(ctx context.Context, q querier, userID uuid.UUID) ([]domain.UserBadge, error) {
	rows, err := q.Query(ctx,
		`SELECT user_id, badge_id, earned_at FROM user_badges WHERE user_id=$1 ORDER BY earned_at, badge_id`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.UserBadge
	for rows.Next() {
		var b domain.UserBadge
		if err := rows.Scan(&b.UserID, &b.BadgeID, &b.EarnedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func insertUserBadge(ctx context.Context, q querier, b domain.UserBadge) (bool, error) {
	tag, err := q.Exec(ctx,
		`INSERT INTO user_badges (user_id, badge_id, earned_at) VALUES ($1,$2,$3)
         ON CONFLICT (user_id, badge_id) DO NOTHING`,
		b.UserID, b.BadgeID, b.EarnedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

const challengeColumns = `challenge_id, name, description, challenge_type, objective,
        start_date, end_date, creator_id, badge_name, prize_description, created_at`

func scanChallenge(row pgx.Row) (domain.Challenge, error) {
	var c domain.Challenge
	err := row.Scan(
		&c.ID, &c.Name, &c.Description, &c.Type, &c.Objective,
		&c.StartDate, &c.EndDate, &c.CreatorID, &c.BadgeName, &c.PrizeDescription, &c.CreatedAt,
	)
	return c, err
}

func listParticipations(ctx context.Context, q querier, userID uuid.UUID) ([]domain.ParticipantChallenge, error) {
	rows, err := q.Query(ctx,
		`SELECT c.challenge_id, c.name, c.description, c.challenge_type, c.objective,
                c.start_date, c.end_date, c.creator_id, c.badge_name, c.prize_description, c.created_at,
                p.joined_at, p.progress
         FROM challenge_participants p
         JOIN challenges c ON c.challenge_id = p.challenge_id
         WHERE p.user_id=$1
         ORDER BY c.start_date, c.challenge_id`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ParticipantChallenge
	for rows.Next() {
		var pc domain.ParticipantChallenge
		c := &pc.Challenge
		if err := rows.Scan(
			&c.ID, &c.Name, &c.Description, &c.Type, &c.Objective,
			&c.StartDate, &c.EndDate, &c.CreatorID, &c.BadgeName, &c.PrizeDescription, &c.CreatedAt,
			&pc.Participant.JoinedAt, &pc.Participant.Progress,
		); err != nil {
			return nil, err
		}
		pc.Participant.ChallengeID = c.ID
		pc.Participant.UserID = userID
		out = append(out, pc)
	}
	return out, rows.Err()
}

func setParticipantProgress(ctx context.Context, q querier, challengeID, userID uuid.UUID, progress float64, at time.Time) error {
	_, err := q.Exec(ctx,
		`UPDATE challenge_participants SET progress=$3, recomputed_at=$4
         WHERE challenge_id=$1 AND user_id=$2`,
		challengeID, userID, progress, at,
	)
	return err
}
