package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ChallengeType filters which activities count toward a challenge.
type ChallengeType string

const (
	ChallengePool      ChallengeType = "pool"
	ChallengeOpenWater ChallengeType = "open_water"
	ChallengeBoth      ChallengeType = "both"
)

func (t ChallengeType) valid() bool {
	switch t {
	case ChallengePool, ChallengeOpenWater, ChallengeBoth:
		return true
	}
	return false
}

// Matches reports whether an activity's open water flag qualifies for the
// challenge type.
func (t ChallengeType) Matches(openWater bool) bool {
	switch t {
	case ChallengePool:
		return !openWater
	case ChallengeOpenWater:
		return openWater
	default:
		return true
	}
}

// Objective determines how participant progress is computed and ranked.
type Objective string

const (
	ObjectiveTotalDistance  Objective = "total_distance"
	ObjectiveTotalSessions  Objective = "total_sessions"
	ObjectiveConsistency    Objective = "consistency"
	ObjectiveAvgPace        Objective = "avg_pace"
	ObjectiveTotalTime      Objective = "total_time"
	ObjectiveLongestSession Objective = "longest_session"
)

func (o Objective) valid() bool {
	switch o {
	case ObjectiveTotalDistance, ObjectiveTotalSessions, ObjectiveConsistency,
		ObjectiveAvgPace, ObjectiveTotalTime, ObjectiveLongestSession:
		return true
	}
	return false
}

// LowerIsBetter reports whether smaller progress values rank higher. Only
// average pace works that way.
func (o Objective) LowerIsBetter() bool { return o == ObjectiveAvgPace }

// ChallengeStatus is derived from now versus the challenge window; it is
// never stored.
type ChallengeStatus string

const (
	ChallengeUpcoming  ChallengeStatus = "upcoming"
	ChallengeActive    ChallengeStatus = "active"
	ChallengeCompleted ChallengeStatus = "completed"
)

// ChallengeDuration is the set of allowed challenge windows.
type ChallengeDuration string

const (
	Duration3Days  ChallengeDuration = "3d"
	Duration1Week  ChallengeDuration = "1w"
	Duration2Weeks ChallengeDuration = "2w"
	Duration1Month ChallengeDuration = "1m"
)

// EndDate resolves the window end for a given start.
func (d ChallengeDuration) EndDate(start time.Time) (time.Time, error) {
	switch d {
	case Duration3Days:
		return start.AddDate(0, 0, 3), nil
	case Duration1Week:
		return start.AddDate(0, 0, 7), nil
	case Duration2Weeks:
		return start.AddDate(0, 0, 14), nil
	case Duration1Month:
		return start.AddDate(0, 1, 0), nil
	}
	return time.Time{}, fmt.Errorf("%w: unknown duration %q", ErrChallengeWindowInvalid, d)
}

// Challenge is a time-boxed competitive objective.
type Challenge struct {
	ID               uuid.UUID
	Name             string
	Description      string
	Type             ChallengeType
	Objective        Objective
	StartDate        time.Time
	EndDate          time.Time
	CreatorID        uuid.UUID
	BadgeName        *string
	PrizeDescription *string
	CreatedAt        time.Time
}

// Status derives the lifecycle position from now. upcoming → active →
// completed, with no stored state and no explicit transitions.
func (c Challenge) Status(now time.Time) ChallengeStatus {
	switch {
	case now.Before(c.StartDate):
		return ChallengeUpcoming
	case now.Before(c.EndDate):
		return ChallengeActive
	default:
		return ChallengeCompleted
	}
}

// NewChallengeInput carries the creation payload.
type NewChallengeInput struct {
	Name             string
	Description      string
	Type             ChallengeType
	Objective        Objective
	StartDate        time.Time
	Duration         ChallengeDuration
	BadgeName        *string
	PrizeDescription *string
}

// Validate checks the creation payload and resolves the window.
func (in NewChallengeInput) Validate() (endDate time.Time, err error) {
	if in.Name == "" {
		return time.Time{}, fmt.Errorf("%w: name is required", ErrInvalidChallenge)
	}
	if !in.Type.valid() {
		return time.Time{}, fmt.Errorf("%w: unknown challenge type %q", ErrInvalidChallenge, in.Type)
	}
	if !in.Objective.valid() {
		return time.Time{}, fmt.Errorf("%w: unknown objective %q", ErrInvalidChallenge, in.Objective)
	}
	if in.StartDate.IsZero() {
		return time.Time{}, fmt.Errorf("%w: start date is required", ErrChallengeWindowInvalid)
	}
	endDate, err = in.Duration.EndDate(in.StartDate)
	if err != nil {
		return time.Time{}, err
	}
	if !endDate.After(in.StartDate) {
		return time.Time{}, fmt.Errorf("%w: end %s not after start %s", ErrChallengeWindowInvalid, endDate, in.StartDate)
	}
	return endDate, nil
}

// ChallengeParticipant joins a user to a challenge. Progress is a
// materialized full-recompute value, never an incremented counter; deleting
// the row removes the user from the leaderboard without touching their
// activities.
type ChallengeParticipant struct {
	ChallengeID uuid.UUID
	UserID      uuid.UUID
	JoinedAt    time.Time
	Progress    float64
}

// EligibleActivities filters a participant's activities down to those that
// count: inside [max(start, joinedAt), min(now, end)] and matching the
// challenge type's open water filter.
func EligibleActivities(c Challenge, p ChallengeParticipant, activities []Activity, now time.Time) []Activity {
	from := c.StartDate
	if p.JoinedAt.After(from) {
		from = p.JoinedAt
	}
	to := c.EndDate
	if now.Before(to) {
		to = now
	}

	var out []Activity
	for _, a := range activities {
		if a.ActivityDate.Before(from) || a.ActivityDate.After(to) {
			continue
		}
		if !c.Type.Matches(a.OpenWater) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// ComputeProgress derives a participant's progress purely from their eligible
// activity set. Running it twice without new activities always produces the
// same value.
func ComputeProgress(c Challenge, p ChallengeParticipant, activities []Activity, now time.Time) float64 {
	eligible := EligibleActivities(c, p, activities, now)
	if len(eligible) == 0 {
		return 0
	}

	switch c.Objective {
	case ObjectiveTotalDistance:
		var sum float64
		for _, a := range eligible {
			sum += float64(a.DistanceMeters)
		}
		return sum
	case ObjectiveTotalSessions:
		return float64(len(eligible))
	case ObjectiveTotalTime:
		var sum float64
		for _, a := range eligible {
			sum += float64(a.DurationSeconds)
		}
		return sum
	case ObjectiveLongestSession:
		var max float64
		for _, a := range eligible {
			if d := float64(a.DistanceMeters); d > max {
				max = d
			}
		}
		return max
	case ObjectiveAvgPace:
		var sum float64
		for _, a := range eligible {
			sum += float64(a.DurationSeconds) / float64(a.DistanceMeters)
		}
		return sum / float64(len(eligible))
	case ObjectiveConsistency:
		return float64(longestDailyRun(eligible))
	}
	return 0
}

// longestDailyRun returns the longest run of consecutive UTC calendar days
// with at least one activity.
func longestDailyRun(activities []Activity) int {
	seen := make(map[time.Time]struct{}, len(activities))
	for _, a := range activities {
		seen[a.Day()] = struct{}{}
	}
	if len(seen) == 0 {
		return 0
	}
	days := make([]time.Time, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	longest, run := 1, 1
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
	return longest
}

// RankedParticipant is one leaderboard row. Position is always derived at
// read time.
type RankedParticipant struct {
	ChallengeParticipant
	Position int
}

// Rank orders participants by progress (descending, or ascending for average
// pace), breaking ties by earliest join and finally by user id for full
// determinism.
func Rank(participants []ChallengeParticipant, objective Objective) []RankedParticipant {
	sorted := make([]ChallengeParticipant, len(participants))
	copy(sorted, participants)
	asc := objective.LowerIsBetter()
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Progress != sorted[j].Progress {
			if asc {
				return sorted[i].Progress < sorted[j].Progress
			}
			return sorted[i].Progress > sorted[j].Progress
		}
		if !sorted[i].JoinedAt.Equal(sorted[j].JoinedAt) {
			return sorted[i].JoinedAt.Before(sorted[j].JoinedAt)
		}
		return sorted[i].UserID.String() < sorted[j].UserID.String()
	})

	out := make([]RankedParticipant, len(sorted))
	for i, p := range sorted {
		out[i] = RankedParticipant{ChallengeParticipant: p, Position: i + 1}
	}
	return out
}
