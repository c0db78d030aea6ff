package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// BadgeCategory groups badges for presentation and for the stable award
// ordering.
type BadgeCategory string

const (
	BadgeCategoryDistance    BadgeCategory = "distance"
	BadgeCategorySession     BadgeCategory = "session"
	BadgeCategoryConsistency BadgeCategory = "consistency"
	BadgeCategoryOpenWater   BadgeCategory = "open_water"
	BadgeCategorySpecial     BadgeCategory = "special"
	BadgeCategoryMilestone   BadgeCategory = "milestone"
	BadgeCategoryTime        BadgeCategory = "time"
	BadgeCategoryLevel       BadgeCategory = "level"
)

// categoryOrder fixes the award ordering across categories.
var categoryOrder = map[BadgeCategory]int{
	BadgeCategoryDistance:    0,
	BadgeCategorySession:     1,
	BadgeCategoryConsistency: 2,
	BadgeCategoryOpenWater:   3,
	BadgeCategoryTime:        4,
	BadgeCategoryLevel:       5,
	BadgeCategoryMilestone:   6,
	BadgeCategorySpecial:     7,
}

// Rarity is display metadata only; it never affects rule evaluation.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// BadgeMetric names the aggregate value a badge rule compares against.
type BadgeMetric string

const (
	MetricTotalDistance     BadgeMetric = "total_distance_meters"
	MetricTotalSessions     BadgeMetric = "total_sessions"
	MetricLongestSession    BadgeMetric = "longest_session_meters"
	MetricOpenWaterSessions BadgeMetric = "open_water_sessions"
	MetricOpenWaterMeters   BadgeMetric = "open_water_meters"
	MetricTotalTimeSeconds  BadgeMetric = "total_time_seconds"
	MetricLongestStreakDays BadgeMetric = "longest_streak_days"
	MetricLevel             BadgeMetric = "level"
	MetricClubVerified      BadgeMetric = "club_verified"
)

// BadgeDefinition is one entry of the static badge catalog. Rules are
// monotonic threshold comparisons: metric >= threshold.
type BadgeDefinition struct {
	Code        string
	Category    BadgeCategory
	Metric      BadgeMetric
	Threshold   int64
	Rarity      Rarity
	XPReward    int64
	Name        string
	Description string
	Icon        string
}

// UserBadge records a single award. Unique per (user, badge); awards are
// never revoked even if the underlying metric later regresses.
type UserBadge struct {
	UserID   uuid.UUID
	BadgeID  string
	EarnedAt time.Time
}

// BadgeCatalog holds the validated rule set.
type BadgeCatalog struct {
	defs []BadgeDefinition
}

// NewBadgeCatalog validates codes, thresholds, and per-metric monotonicity.
// A broken catalog is an authoring defect and aborts startup.
func NewBadgeCatalog(defs []BadgeDefinition) (*BadgeCatalog, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("badge catalog is empty")
	}
	codes := make(map[string]struct{}, len(defs))
	byMetric := make(map[BadgeMetric][]BadgeDefinition)
	for _, def := range defs {
		if def.Code == "" || def.Name == "" {
			return nil, fmt.Errorf("badge catalog: entry missing code or name: %+v", def)
		}
		if _, dup := codes[def.Code]; dup {
			return nil, fmt.Errorf("badge catalog: duplicate code %q", def.Code)
		}
		codes[def.Code] = struct{}{}
		if _, ok := categoryOrder[def.Category]; !ok {
			return nil, fmt.Errorf("badge catalog: %q has unknown category %q", def.Code, def.Category)
		}
		if def.Threshold <= 0 {
			return nil, fmt.Errorf("badge catalog: %q has non-positive threshold %d", def.Code, def.Threshold)
		}
		if def.XPReward < 0 {
			return nil, fmt.Errorf("badge catalog: %q has negative xp reward", def.Code)
		}
		byMetric[def.Metric] = append(byMetric[def.Metric], def)
	}
	for metric, group := range byMetric {
		sort.Slice(group, func(i, j int) bool { return group[i].Threshold < group[j].Threshold })
		for i := 1; i < len(group); i++ {
			if group[i].Threshold == group[i-1].Threshold && group[i].Category == group[i-1].Category {
				return nil, fmt.Errorf("badge catalog: %q and %q duplicate threshold %d on metric %s",
					group[i-1].Code, group[i].Code, group[i].Threshold, metric)
			}
		}
	}
	return &BadgeCatalog{defs: defs}, nil
}

// Definitions returns the catalog in stable (category, threshold, code) order.
func (c *BadgeCatalog) Definitions() []BadgeDefinition {
	out := make([]BadgeDefinition, len(c.defs))
	copy(out, c.defs)
	sortBadges(out)
	return out
}

// Get looks a definition up by code.
func (c *BadgeCatalog) Get(code string) (BadgeDefinition, bool) {
	for _, def := range c.defs {
		if def.Code == code {
			return def, true
		}
	}
	return BadgeDefinition{}, false
}

// Evaluate returns the badges whose rules pass against the snapshot and that
// are not already held. It is side-effect free; awarding is the caller's job.
// Results come back in stable (category, threshold ascending, code) order so
// notification presentation is deterministic.
func (c *BadgeCatalog) Evaluate(snap Snapshot, held map[string]struct{}) []BadgeDefinition {
	var unlocked []BadgeDefinition
	for _, def := range c.defs {
		if _, has := held[def.Code]; has {
			continue
		}
		if snap.metric(def.Metric) >= def.Threshold {
			unlocked = append(unlocked, def)
		}
	}
	sortBadges(unlocked)
	return unlocked
}

func sortBadges(defs []BadgeDefinition) {
	sort.Slice(defs, func(i, j int) bool {
		if categoryOrder[defs[i].Category] != categoryOrder[defs[j].Category] {
			return categoryOrder[defs[i].Category] < categoryOrder[defs[j].Category]
		}
		if defs[i].Threshold != defs[j].Threshold {
			return defs[i].Threshold < defs[j].Threshold
		}
		return defs[i].Code < defs[j].Code
	})
}

// metric extracts the rule input from the snapshot.
func (s Snapshot) metric(m BadgeMetric) int64 {
	switch m {
	case MetricTotalDistance:
		return s.TotalDistanceMeters
	case MetricTotalSessions:
		return int64(s.TotalSessions)
	case MetricLongestSession:
		return int64(s.LongestSessionMeters)
	case MetricOpenWaterSessions:
		return int64(s.TotalOpenWaterSessions)
	case MetricOpenWaterMeters:
		return s.TotalOpenWaterMeters
	case MetricTotalTimeSeconds:
		return s.TotalTimeSeconds
	case MetricLongestStreakDays:
		return int64(s.LongestStreakDays)
	case MetricLevel:
		return int64(s.Level)
	case MetricClubVerified:
		if s.ClubVerified {
			return 1
		}
		return 0
	}
	return 0
}

// ProgressPercent reports how close the snapshot is to unlocking the badge,
// capped at 100.
func (s Snapshot) ProgressPercent(def BadgeDefinition) int {
	value := s.metric(def.Metric)
	if value >= def.Threshold {
		return 100
	}
	if value <= 0 {
		return 0
	}
	return int(value * 100 / def.Threshold)
}

// DefaultBadges is the production badge catalog.
func DefaultBadges() []BadgeDefinition {
	return []BadgeDefinition{
		{Code: "dist_1km", Category: BadgeCategoryDistance, Metric: MetricTotalDistance, Threshold: 1_000, Rarity: RarityCommon, XPReward: 25, Name: "First Kilometre", Description: "Swim a cumulative 1 km", Icon: "wave-1"},
		{Code: "dist_10km", Category: BadgeCategoryDistance, Metric: MetricTotalDistance, Threshold: 10_000, Rarity: RarityCommon, XPReward: 50, Name: "Ten Clicks", Description: "Swim a cumulative 10 km", Icon: "wave-2"},
		{Code: "dist_50km", Category: BadgeCategoryDistance, Metric: MetricTotalDistance, Threshold: 50_000, Rarity: RarityUncommon, XPReward: 100, Name: "Fifty Freestyle", Description: "Swim a cumulative 50 km", Icon: "wave-3"},
		{Code: "dist_100km", Category: BadgeCategoryDistance, Metric: MetricTotalDistance, Threshold: 100_000, Rarity: RarityRare, XPReward: 200, Name: "Century Swimmer", Description: "Swim a cumulative 100 km", Icon: "wave-4"},
		{Code: "dist_500km", Category: BadgeCategoryDistance, Metric: MetricTotalDistance, Threshold: 500_000, Rarity: RarityEpic, XPReward: 500, Name: "Half Grand", Description: "Swim a cumulative 500 km", Icon: "wave-5"},
		{Code: "dist_channel", Category: BadgeCategoryDistance, Metric: MetricTotalDistance, Threshold: 1_000_000, Rarity: RarityLegendary, XPReward: 1000, Name: "Million Metre Club", Description: "Swim a cumulative 1,000 km", Icon: "trophy-channel"},

		{Code: "sessions_1", Category: BadgeCategorySession, Metric: MetricTotalSessions, Threshold: 1, Rarity: RarityCommon, XPReward: 10, Name: "First Splash", Description: "Log your first session", Icon: "splash"},
		{Code: "sessions_10", Category: BadgeCategorySession, Metric: MetricTotalSessions, Threshold: 10, Rarity: RarityCommon, XPReward: 25, Name: "Regular", Description: "Log 10 sessions", Icon: "calendar-10"},
		{Code: "sessions_50", Category: BadgeCategorySession, Metric: MetricTotalSessions, Threshold: 50, Rarity: RarityUncommon, XPReward: 75, Name: "Dedicated", Description: "Log 50 sessions", Icon: "calendar-50"},
		{Code: "sessions_100", Category: BadgeCategorySession, Metric: MetricTotalSessions, Threshold: 100, Rarity: RarityRare, XPReward: 150, Name: "Centurion", Description: "Log 100 sessions", Icon: "calendar-100"},
		{Code: "sessions_365", Category: BadgeCategorySession, Metric: MetricTotalSessions, Threshold: 365, Rarity: RarityEpic, XPReward: 400, Name: "Year of Water", Description: "Log 365 sessions", Icon: "calendar-365"},

		{Code: "streak_3", Category: BadgeCategoryConsistency, Metric: MetricLongestStreakDays, Threshold: 3, Rarity: RarityCommon, XPReward: 20, Name: "Warming Up", Description: "Swim 3 days in a row", Icon: "flame-3"},
		{Code: "streak_7", Category: BadgeCategoryConsistency, Metric: MetricLongestStreakDays, Threshold: 7, Rarity: RarityUncommon, XPReward: 50, Name: "Week Streak", Description: "Swim 7 days in a row", Icon: "flame-7"},
		{Code: "streak_30", Category: BadgeCategoryConsistency, Metric: MetricLongestStreakDays, Threshold: 30, Rarity: RarityEpic, XPReward: 300, Name: "Unstoppable", Description: "Swim 30 days in a row", Icon: "flame-30"},

		{Code: "ow_first", Category: BadgeCategoryOpenWater, Metric: MetricOpenWaterSessions, Threshold: 1, Rarity: RarityCommon, XPReward: 30, Name: "Into the Wild", Description: "Complete an open water swim", Icon: "buoy"},
		{Code: "ow_10", Category: BadgeCategoryOpenWater, Metric: MetricOpenWaterSessions, Threshold: 10, Rarity: RarityUncommon, XPReward: 80, Name: "Open Water Regular", Description: "Complete 10 open water swims", Icon: "buoy-10"},
		{Code: "ow_25km", Category: BadgeCategoryOpenWater, Metric: MetricOpenWaterMeters, Threshold: 25_000, Rarity: RarityRare, XPReward: 150, Name: "Sea Legs", Description: "Swim 25 km in open water", Icon: "sea"},

		{Code: "time_24h", Category: BadgeCategoryTime, Metric: MetricTotalTimeSeconds, Threshold: 86_400, Rarity: RarityUncommon, XPReward: 100, Name: "Full Day Under", Description: "Accumulate 24 hours of swim time", Icon: "clock-24"},
		{Code: "time_100h", Category: BadgeCategoryTime, Metric: MetricTotalTimeSeconds, Threshold: 360_000, Rarity: RarityRare, XPReward: 250, Name: "Hundred Hours", Description: "Accumulate 100 hours of swim time", Icon: "clock-100"},

		{Code: "level_5", Category: BadgeCategoryLevel, Metric: MetricLevel, Threshold: 5, Rarity: RarityCommon, XPReward: 0, Name: "Lap Regular", Description: "Reach level 5", Icon: "star-5"},
		{Code: "level_10", Category: BadgeCategoryLevel, Metric: MetricLevel, Threshold: 10, Rarity: RarityUncommon, XPReward: 0, Name: "Tide Turner", Description: "Reach level 10", Icon: "star-10"},
		{Code: "level_20", Category: BadgeCategoryLevel, Metric: MetricLevel, Threshold: 20, Rarity: RarityLegendary, XPReward: 0, Name: "Kraken Ascendant", Description: "Reach level 20", Icon: "star-20"},

		{Code: "single_5km", Category: BadgeCategoryMilestone, Metric: MetricLongestSession, Threshold: 5_000, Rarity: RarityRare, XPReward: 120, Name: "Marathon Session", Description: "Swim 5 km in one session", Icon: "medal-5k"},
		{Code: "single_10km", Category: BadgeCategoryMilestone, Metric: MetricLongestSession, Threshold: 10_000, Rarity: RarityEpic, XPReward: 300, Name: "Iron Lungs", Description: "Swim 10 km in one session", Icon: "medal-10k"},

		{Code: "club_member", Category: BadgeCategorySpecial, Metric: MetricClubVerified, Threshold: 1, Rarity: RarityRare, XPReward: 50, Name: "Club Colours", Description: "Verified member of a swim club", Icon: "club"},
	}
}
