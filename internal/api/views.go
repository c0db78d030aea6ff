package api

import (
	"time"

	"github.com/ScimanSky/swimforge-oppidum-sub001/internal/domain"
)

// ActivityView exposes full details about an accepted activity.
type ActivityView struct {
	ActivityID       string    `json:"activity_id"`
	UserID           string    `json:"user_id"`
	Source           string    `json:"source"`
	ExternalID       *string   `json:"external_id,omitempty"`
	ActivityDate     time.Time `json:"activity_date"`
	DistanceMeters   int       `json:"distance_meters"`
	DurationSeconds  int       `json:"duration_seconds"`
	StrokeType       string    `json:"stroke_type"`
	IsOpenWater      bool      `json:"is_open_water"`
	AvgHeartRate     *int      `json:"avg_heart_rate,omitempty"`
	MaxHeartRate     *int      `json:"max_heart_rate,omitempty"`
	PoolLengthMeters *int      `json:"pool_length_meters,omitempty"`
	Calories         *int      `json:"calories,omitempty"`
	SwolfScore       *int      `json:"swolf_score,omitempty"`
	LapCount         *int      `json:"lap_count,omitempty"`
	Location         *string   `json:"location,omitempty"`
	Notes            *string   `json:"notes,omitempty"`
	XPEarned         int64     `json:"xp_earned"`
	ScorerVersion    string    `json:"scorer_version"`
	CreatedAt        time.Time `json:"created_at"`
}

func toActivityView(a domain.Activity) ActivityView {
	return ActivityView{
		ActivityID:       a.ID.String(),
		UserID:           a.UserID.String(),
		Source:           string(a.Source),
		ExternalID:       a.ExternalID,
		ActivityDate:     a.ActivityDate,
		DistanceMeters:   a.DistanceMeters,
		DurationSeconds:  a.DurationSeconds,
		StrokeType:       string(a.Stroke),
		IsOpenWater:      a.OpenWater,
		AvgHeartRate:     a.AvgHeartRate,
		MaxHeartRate:     a.MaxHeartRate,
		PoolLengthMeters: a.PoolLengthMeters,
		Calories:         a.Calories,
		SwolfScore:       a.SwolfScore,
		LapCount:         a.LapCount,
		Location:         a.Location,
		Notes:            a.Notes,
		XPEarned:         a.XPEarned,
		ScorerVersion:    a.ScorerVersion,
		CreatedAt:        a.CreatedAt,
	}
}

// LevelView exposes the resolved level of a totalXp value.
type LevelView struct {
	Number   int    `json:"number"`
	Title    string `json:"title"`
	Color    string `json:"color"`
	XPToNext int64  `json:"xp_to_next"`
}

func toLevelView(l domain.Level) LevelView {
	return LevelView{Number: l.Number, Title: l.Title, Color: l.Color, XPToNext: l.XPToNext}
}

// IngestResponse describes the response body for activity intake.
type IngestResponse struct {
	Activity ActivityView     `json:"activity"`
	Replay   bool             `json:"idempotent_replay"`
	Result   *ProgressionView `json:"progression,omitempty"`
}

// ProgressionView summarises everything one accepted activity changed.
type ProgressionView struct {
	XPGained          int64       `json:"xp_gained"`
	TotalXP           int64       `json:"total_xp"`
	Level             LevelView   `json:"level"`
	LeveledUp         bool        `json:"leveled_up"`
	NewBadges         []BadgeView `json:"new_badges"`
	TouchedChallenges []string    `json:"touched_challenges"`
}

func toProgressionView(r domain.ProgressionResult) ProgressionView {
	view := ProgressionView{
		XPGained:          r.XPGained,
		TotalXP:           r.TotalXP,
		Level:             toLevelView(r.Level),
		LeveledUp:         r.LeveledUp,
		NewBadges:         make([]BadgeView, 0, len(r.NewBadges)),
		TouchedChallenges: make([]string, 0, len(r.TouchedChallenges)),
	}
	for _, def := range r.NewBadges {
		view.NewBadges = append(view.NewBadges, toBadgeView(def))
	}
	for _, id := range r.TouchedChallenges {
		view.TouchedChallenges = append(view.TouchedChallenges, id.String())
	}
	return view
}

// ProfileView is the materialized per-user aggregate.
type ProfileView struct {
	UserID                 string     `json:"user_id"`
	TotalXP                int64      `json:"total_xp"`
	Level                  int        `json:"level"`
	LevelTitle             string     `json:"level_title"`
	LevelColor             string     `json:"level_color"`
	TotalDistanceMeters    int64      `json:"total_distance_meters"`
	TotalTimeSeconds       int64      `json:"total_time_seconds"`
	TotalSessions          int        `json:"total_sessions"`
	TotalOpenWaterSessions int        `json:"total_open_water_sessions"`
	TotalOpenWaterMeters   int64      `json:"total_open_water_meters"`
	CurrentStreakDays      int        `json:"current_streak_days"`
	LongestStreakDays      int        `json:"longest_streak_days"`
	LastActivityDate       *time.Time `json:"last_activity_date,omitempty"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

func toProfileView(p domain.Profile) ProfileView {
	return ProfileView{
		UserID:                 p.UserID.String(),
		TotalXP:                p.TotalXP,
		Level:                  p.Level,
		LevelTitle:             p.LevelTitle,
		LevelColor:             p.LevelColor,
		TotalDistanceMeters:    p.TotalDistanceMeters,
		TotalTimeSeconds:       p.TotalTimeSeconds,
		TotalSessions:          p.TotalSessions,
		TotalOpenWaterSessions: p.TotalOpenWaterSessions,
		TotalOpenWaterMeters:   p.TotalOpenWaterMeters,
		CurrentStreakDays:      p.CurrentStreakDays,
		LongestStreakDays:      p.LongestStreakDays,
		LastActivityDate:       p.LastActivityDate,
		UpdatedAt:              p.UpdatedAt,
	}
}

// BadgeView is one catalog definition.
type BadgeView struct {
	Code        string `json:"code"`
	Category    string `json:"category"`
	Rarity      string `json:"rarity"`
	XPReward    int64  `json:"xp_reward"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

func toBadgeView(def domain.BadgeDefinition) BadgeView {
	return BadgeView{
		Code:        def.Code,
		Category:    string(def.Category),
		Rarity:      string(def.Rarity),
		XPReward:    def.XPReward,
		Name:        def.Name,
		Description: def.Description,
		Icon:        def.Icon,
	}
}

// EarnedBadgeView joins an award with its definition.
type EarnedBadgeView struct {
	BadgeView
	EarnedAt time.Time `json:"earned_at"`
}

// BadgeProgressView reports progress toward one badge.
type BadgeProgressView struct {
	BadgeView
	Earned          bool       `json:"earned"`
	EarnedAt        *time.Time `json:"earned_at,omitempty"`
	ProgressPercent int        `json:"progress_percent"`
}

// ChallengeView exposes a challenge with its derived status.
type ChallengeView struct {
	ChallengeID      string    `json:"challenge_id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	Type             string    `json:"type"`
	Objective        string    `json:"objective"`
	StartDate        time.Time `json:"start_date"`
	EndDate          time.Time `json:"end_date"`
	CreatorID        string    `json:"creator_id"`
	BadgeName        *string   `json:"badge_name,omitempty"`
	PrizeDescription *string   `json:"prize_description,omitempty"`
	Status           string    `json:"status"`
	ParticipantCount int       `json:"participant_count,omitempty"`
	Joined           bool      `json:"joined"`
	Progress         float64   `json:"progress"`
	Position         int       `json:"position,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func toChallengeView(c domain.Challenge, status domain.ChallengeStatus) ChallengeView {
	return ChallengeView{
		ChallengeID:      c.ID.String(),
		Name:             c.Name,
		Description:      c.Description,
		Type:             string(c.Type),
		Objective:        string(c.Objective),
		StartDate:        c.StartDate,
		EndDate:          c.EndDate,
		CreatorID:        c.CreatorID.String(),
		BadgeName:        c.BadgeName,
		PrizeDescription: c.PrizeDescription,
		Status:           string(status),
		CreatedAt:        c.CreatedAt,
	}
}

// LeaderboardEntryView is one ranked leaderboard row.
type LeaderboardEntryView struct {
	Position int       `json:"position"`
	UserID   string    `json:"user_id"`
	Progress float64   `json:"progress"`
	JoinedAt time.Time `json:"joined_at"`
}

// LeaderboardResponse packages a challenge with its ranking.
type LeaderboardResponse struct {
	Challenge ChallengeView          `json:"challenge"`
	Entries   []LeaderboardEntryView `json:"entries"`
}
