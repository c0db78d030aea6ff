package domain

// Scorer computes the base XP for an accepted activity. The result is frozen
// into the activity row and its ledger entry; changing the formula later must
// never rewrite history, so every scorer carries a version string that is
// recorded alongside the award.
type Scorer interface {
	Version() string
	Score(in IngestInput) int64
}

// scorerV1 is the launch formula: a flat session bonus, one point per 100 m,
// one point per 10 minutes, a stroke weight, and an open water premium.
type scorerV1 struct{}

// NewScorerV1 returns the v1 scoring strategy.
func NewScorerV1() Scorer { return scorerV1{} }

func (scorerV1) Version() string { return "v1" }

var strokeWeightV1 = map[StrokeType]int64{
	StrokeFreestyle:    0,
	StrokeBackstroke:   2,
	StrokeBreaststroke: 2,
	StrokeButterfly:    5,
	StrokeMixed:        1,
}

func (scorerV1) Score(in IngestInput) int64 {
	xp := int64(10)
	xp += int64(in.DistanceMeters) / 100
	xp += int64(in.DurationSeconds) / 600
	xp += strokeWeightV1[in.Stroke]
	if in.OpenWater {
		xp += xp / 4
	}
	return xp
}
