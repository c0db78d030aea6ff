package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Profile is the materialized per-user aggregate. Everything in it is
// re-derivable from the user's activities and XP ledger; the stored copy is
// only a read-optimised projection and is overwritten wholesale on every
// recompute.
type Profile struct {
	UserID                 uuid.UUID
	TotalXP                int64
	Level                  int
	LevelTitle             string
	LevelColor             string
	TotalDistanceMeters    int64
	TotalTimeSeconds       int64
	TotalSessions          int
	TotalOpenWaterSessions int
	TotalOpenWaterMeters   int64
	CurrentStreakDays      int
	LongestStreakDays      int
	LastActivityDate       *time.Time
	UpdatedAt              time.Time
}

// Snapshot is the aggregate view handed to the badge evaluator. It extends
// the profile with derived metrics that are not worth persisting.
type Snapshot struct {
	Profile
	LongestSessionMeters int
	ClubVerified         bool
}

// ComputeProfile rebuilds the aggregate from the full activity set and the
// ledger sum. It is the single source of truth for both the incremental path
// (every ingest) and the administrative full-rebuild path, so the two cannot
// drift.
func ComputeProfile(userID uuid.UUID, activities []Activity, totalXP int64, levels *LevelCatalog, now time.Time) Profile {
	p := Profile{
		UserID:    userID,
		TotalXP:   totalXP,
		UpdatedAt: now.UTC(),
	}

	var last time.Time
	for _, a := range activities {
		p.TotalDistanceMeters += int64(a.DistanceMeters)
		p.TotalTimeSeconds += int64(a.DurationSeconds)
		p.TotalSessions++
		if a.OpenWater {
			p.TotalOpenWaterSessions++
			p.TotalOpenWaterMeters += int64(a.DistanceMeters)
		}
		if a.ActivityDate.After(last) {
			last = a.ActivityDate
		}
	}
	if !last.IsZero() {
		lastUTC := last.UTC()
		p.LastActivityDate = &lastUTC
	}

	p.CurrentStreakDays, p.LongestStreakDays = streaks(activities, now)

	level := levels.LevelFor(totalXP)
	p.Level = level.Number
	p.LevelTitle = level.Title
	p.LevelColor = level.Color
	return p
}

// BuildSnapshot derives the badge-evaluation view from the recomputed profile
// and the raw activities.
func BuildSnapshot(profile Profile, activities []Activity) Snapshot {
	snap := Snapshot{Profile: profile}
	for _, a := range activities {
		if a.DistanceMeters > snap.LongestSessionMeters {
			snap.LongestSessionMeters = a.DistanceMeters
		}
	}
	return snap
}

// streaks computes the current and longest runs of consecutive UTC calendar
// days containing at least one activity. The current streak only counts if
// it reaches today or yesterday relative to now.
func streaks(activities []Activity, now time.Time) (current, longest int) {
	if len(activities) == 0 {
		return 0, 0
	}

	seen := make(map[time.Time]struct{}, len(activities))
	for _, a := range activities {
		seen[a.Day()] = struct{}{}
	}
	days := make([]time.Time, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	longest = 1
	run := 1
	for i := 1; i < len(days); i++ {
		if days[i].Sub(days[i-1]) == 24*time.Hour {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}

	y, m, d := now.UTC().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	lastDay := days[len(days)-1]
	if lastDay.Equal(today) || lastDay.Equal(today.AddDate(0, 0, -1)) {
		current = run
	}
	return current, longest
}
