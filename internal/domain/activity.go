// Package domain implements the progression and rules engine: activity
// intake, the XP ledger, the level and badge catalogs, and challenge
// progress tracking.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Source identifies where an activity record originated.
type Source string

const (
	SourceGarmin Source = "garmin"
	SourceStrava Source = "strava"
	SourceManual Source = "manual"
)

func (s Source) valid() bool {
	switch s {
	case SourceGarmin, SourceStrava, SourceManual:
		return true
	}
	return false
}

// StrokeType classifies the dominant stroke of a swim session.
type StrokeType string

const (
	StrokeFreestyle    StrokeType = "freestyle"
	StrokeBackstroke   StrokeType = "backstroke"
	StrokeBreaststroke StrokeType = "breaststroke"
	StrokeButterfly    StrokeType = "butterfly"
	StrokeMixed        StrokeType = "mixed"
)

func (s StrokeType) valid() bool {
	switch s {
	case StrokeFreestyle, StrokeBackstroke, StrokeBreaststroke, StrokeButterfly, StrokeMixed:
		return true
	}
	return false
}

// DetectStroke maps a provider activity name onto a stroke type. Garmin
// localises names, so the keyword list covers the locales seen in the wild.
func DetectStroke(activityName string) StrokeType {
	name := strings.ToLower(activityName)
	switch {
	case strings.Contains(name, "stile"), strings.Contains(name, "crawl"), strings.Contains(name, "freestyle"):
		return StrokeFreestyle
	case strings.Contains(name, "dorso"), strings.Contains(name, "back"):
		return StrokeBackstroke
	case strings.Contains(name, "rana"), strings.Contains(name, "breast"):
		return StrokeBreaststroke
	case strings.Contains(name, "delfino"), strings.Contains(name, "farfalla"), strings.Contains(name, "butterfly"):
		return StrokeButterfly
	}
	return StrokeMixed
}

// Activity is the immutable workout record. It is created once by intake and
// never mutated or deleted afterwards; xpEarned is frozen at creation by the
// scorer that was active at the time.
type Activity struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	Source           Source
	ExternalID       *string
	ActivityDate     time.Time
	DistanceMeters   int
	DurationSeconds  int
	Stroke           StrokeType
	OpenWater        bool
	AvgHeartRate     *int
	MaxHeartRate     *int
	PoolLengthMeters *int
	Calories         *int
	SwolfScore       *int
	LapCount         *int
	Location         *string
	Notes            *string
	XPEarned         int64
	ScorerVersion    string
	CreatedAt        time.Time
}

// Day returns the UTC calendar day of the activity, the unit used by streak
// and consistency computations.
func (a Activity) Day() time.Time {
	y, m, d := a.ActivityDate.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IngestInput is the normalized record handed over by a provider adapter or
// the manual-entry form.
type IngestInput struct {
	Source           Source
	ExternalID       *string
	ActivityDate     time.Time
	DistanceMeters   int
	DurationSeconds  int
	Stroke           StrokeType
	OpenWater        bool
	AvgHeartRate     *int
	MaxHeartRate     *int
	PoolLengthMeters *int
	Calories         *int
	SwolfScore       *int
	LapCount         *int
	Location         *string
	Notes            *string
}

// Validate enforces the intake contract. Non-manual sources must carry the
// provider-native id that forms the dedup key.
func (in IngestInput) Validate() error {
	if !in.Source.valid() {
		return fmt.Errorf("%w: unknown source %q", ErrInvalidActivity, in.Source)
	}
	if in.Source != SourceManual && (in.ExternalID == nil || strings.TrimSpace(*in.ExternalID) == "") {
		return fmt.Errorf("%w: external id required for source %q", ErrInvalidActivity, in.Source)
	}
	if in.DistanceMeters <= 0 {
		return fmt.Errorf("%w: distance_meters must be > 0", ErrInvalidActivity)
	}
	if in.DurationSeconds <= 0 {
		return fmt.Errorf("%w: duration_seconds must be > 0", ErrInvalidActivity)
	}
	if !in.Stroke.valid() {
		return fmt.Errorf("%w: unknown stroke type %q", ErrInvalidActivity, in.Stroke)
	}
	if in.ActivityDate.IsZero() {
		return fmt.Errorf("%w: activity_date is required", ErrInvalidActivity)
	}
	return nil
}

// dedupKey reports whether the input participates in deduplication. Manual
// entries never do.
func (in IngestInput) dedupKey() (externalID string, ok bool) {
	if in.Source == SourceManual || in.ExternalID == nil {
		return "", false
	}
	return *in.ExternalID, true
}
