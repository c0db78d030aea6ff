package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ScimanSky/swimforge-oppidum-sub001/internal/events"
)

// ProgressionResult is the event set returned to the caller after one
// accepted activity has been fully processed.
type ProgressionResult struct {
	XPGained          int64
	TotalXP           int64
	Level             Level
	LeveledUp         bool
	NewBadges         []BadgeDefinition
	TouchedChallenges []uuid.UUID
}

// AwardedBadge joins an award with its catalog definition.
type AwardedBadge struct {
	Badge      UserBadge
	Definition BadgeDefinition
}

// BadgeProgress is the read-only projection of the catalog against the
// current aggregate.
type BadgeProgress struct {
	Definition      BadgeDefinition
	Earned          bool
	EarnedAt        *time.Time
	ProgressPercent int
}

// ChallengeView is a challenge decorated with the caller's participation.
type ChallengeView struct {
	Challenge        Challenge
	Status           ChallengeStatus
	ParticipantCount int
	Joined           bool
	Progress         float64
	Position         int
}

// Option configures optional Service behaviour.
type Option func(*Service)

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service is the progression orchestrator: the single entry point invoked
// once per accepted activity, plus the read and administrative operations
// exposed to collaborators.
type Service struct {
	store  Store
	levels *LevelCatalog
	badges *BadgeCatalog
	scorer Scorer
	now    func() time.Time
}

// NewService constructs the orchestrator.
func NewService(store Store, levels *LevelCatalog, badges *BadgeCatalog, scorer Scorer, opts ...Option) *Service {
	s := &Service{
		store:  store,
		levels: levels,
		badges: badges,
		scorer: scorer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest validates, deduplicates, and persists one activity, running the
// whole progression as a single unit of work. A duplicate submission is not
// an error: the previously stored activity comes back with replay=true and
// no result, and nothing is written.
func (s *Service) Ingest(ctx context.Context, userID uuid.UUID, in IngestInput) (*Activity, bool, *ProgressionResult, error) {
	if err := in.Validate(); err != nil {
		return nil, false, nil, err
	}

	// Fast path: a previously synced provider activity short-circuits before
	// any transaction is opened.
	if externalID, ok := in.dedupKey(); ok {
		existing, err := s.store.FindByDedupKey(ctx, userID, in.Source, externalID)
		if err != nil {
			return nil, false, nil, err
		}
		if existing != nil {
			return existing, true, nil, nil
		}
	}

	now := s.now().UTC()
	activity := Activity{
		ID:               uuid.New(),
		UserID:           userID,
		Source:           in.Source,
		ExternalID:       in.ExternalID,
		ActivityDate:     in.ActivityDate.UTC(),
		DistanceMeters:   in.DistanceMeters,
		DurationSeconds:  in.DurationSeconds,
		Stroke:           in.Stroke,
		OpenWater:        in.OpenWater,
		AvgHeartRate:     in.AvgHeartRate,
		MaxHeartRate:     in.MaxHeartRate,
		PoolLengthMeters: in.PoolLengthMeters,
		Calories:         in.Calories,
		SwolfScore:       in.SwolfScore,
		LapCount:         in.LapCount,
		Location:         in.Location,
		Notes:            in.Notes,
		XPEarned:         s.scorer.Score(in),
		ScorerVersion:    s.scorer.Version(),
		CreatedAt:        now,
	}

	var result *ProgressionResult
	err := s.store.WithUserLock(ctx, userID, func(ctx context.Context, tx Tx) error {
		if err := tx.InsertActivity(ctx, activity); err != nil {
			return err
		}
		r, err := s.onActivityAccepted(ctx, tx, activity)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		// A concurrent sync won the insert race; the constraint rolled this
		// unit back before any side effect, so the stored row is authoritative.
		if errors.Is(err, ErrDuplicateActivity) {
			if externalID, ok := in.dedupKey(); ok {
				existing, ferr := s.store.FindByDedupKey(ctx, userID, in.Source, externalID)
				if ferr == nil && existing != nil {
					return existing, true, nil, nil
				}
			}
		}
		return nil, false, nil, err
	}
	return &activity, false, result, nil
}

// onActivityAccepted runs progression steps 1-4 against the locked user
// state. Any failure poisons the surrounding transaction, taking the
// activity row down with it.
func (s *Service) onActivityAccepted(ctx context.Context, tx Tx, a Activity) (*ProgressionResult, error) {
	now := s.now().UTC()

	base := XPTransaction{
		ID:                uuid.New(),
		UserID:            a.UserID,
		Amount:            a.XPEarned,
		Reason:            XPReasonActivity,
		Description:       fmt.Sprintf("%s swim, %d m (%s)", a.Stroke, a.DistanceMeters, a.ScorerVersion),
		RelatedActivityID: &a.ID,
		CreatedAt:         now,
	}
	if err := tx.AppendXP(ctx, base); err != nil {
		return nil, &ProgressionError{Step: "ledger append", Cause: err}
	}

	activities, err := tx.ListActivities(ctx, a.UserID)
	if err != nil {
		return nil, &ProgressionError{Step: "activity load", Cause: err}
	}
	total, err := tx.SumXP(ctx, a.UserID)
	if err != nil {
		return nil, &ProgressionError{Step: "ledger sum", Cause: err}
	}
	entryLevel := s.levels.LevelFor(total - a.XPEarned)

	newBadges, total, err := s.evaluateAndAward(ctx, tx, a.UserID, activities, total, now)
	if err != nil {
		return nil, err
	}

	finalLevel := s.levels.LevelFor(total)
	leveledUp := finalLevel.Number > entryLevel.Number
	if leveledUp {
		levelTxn := XPTransaction{
			ID:          uuid.New(),
			UserID:      a.UserID,
			Amount:      0,
			Reason:      XPReasonLevelUp,
			Description: fmt.Sprintf("Reached level %d: %s", finalLevel.Number, finalLevel.Title),
			CreatedAt:   now,
		}
		if err := tx.AppendXP(ctx, levelTxn); err != nil {
			return nil, &ProgressionError{Step: "level-up append", Cause: err}
		}
	}

	profile := ComputeProfile(a.UserID, activities, total, s.levels, now)
	if err := tx.SaveProfile(ctx, profile); err != nil {
		return nil, &ProgressionError{Step: "profile save", Cause: err}
	}

	parts, err := tx.ListParticipations(ctx, a.UserID)
	if err != nil {
		return nil, &ProgressionError{Step: "challenge load", Cause: err}
	}
	var touched []uuid.UUID
	for _, pc := range parts {
		if pc.Challenge.Status(now) != ChallengeActive {
			continue
		}
		if !pc.Challenge.Type.Matches(a.OpenWater) {
			continue
		}
		progress := ComputeProgress(pc.Challenge, pc.Participant, activities, now)
		if err := tx.SetParticipantProgress(ctx, pc.Challenge.ID, a.UserID, progress, now); err != nil {
			return nil, &ProgressionError{Step: "challenge progress", Cause: err}
		}
		touched = append(touched, pc.Challenge.ID)
	}

	badgeCodes := make([]string, 0, len(newBadges))
	for _, def := range newBadges {
		badgeCodes = append(badgeCodes, def.Code)
	}
	challengeIDs := make([]string, 0, len(touched))
	for _, id := range touched {
		challengeIDs = append(challengeIDs, id.String())
	}
	completed := events.ProgressionCompleted{
		ActivityID:        a.ID.String(),
		UserID:            a.UserID.String(),
		Source:            string(a.Source),
		XPGained:          a.XPEarned,
		TotalXP:           total,
		Level:             finalLevel.Number,
		LeveledUp:         leveledUp,
		NewBadges:         badgeCodes,
		TouchedChallenges: challengeIDs,
		OccurredAt:        now,
	}
	evt := OutboxEvent{
		AggregateType: "progression",
		AggregateID:   a.ID.String(),
		EventType:     events.EventProgressionCompleted,
		PartitionKey:  a.UserID.String(),
		Payload:       completed,
	}
	if err := tx.InsertEvent(ctx, evt); err != nil {
		return nil, &ProgressionError{Step: "event enqueue", Cause: err}
	}

	return &ProgressionResult{
		XPGained:          a.XPEarned,
		TotalXP:           total,
		Level:             finalLevel,
		LeveledUp:         leveledUp,
		NewBadges:         newBadges,
		TouchedChallenges: touched,
	}, nil
}

// evaluateAndAward runs the badge catalog to a fixpoint: awards can raise
// totalXp, which can raise the level, which can unlock level badges. Each
// award inserts exactly one UserBadge row and one ledger entry; a row lost
// to a concurrent evaluation is skipped without XP or events.
func (s *Service) evaluateAndAward(ctx context.Context, tx Tx, userID uuid.UUID, activities []Activity, total int64, now time.Time) ([]BadgeDefinition, int64, error) {
	held, err := tx.HeldBadges(ctx, userID)
	if err != nil {
		return nil, total, &ProgressionError{Step: "badge load", Cause: err}
	}
	club, err := tx.ClubVerified(ctx, userID)
	if err != nil {
		return nil, total, &ProgressionError{Step: "badge load", Cause: err}
	}

	var awarded []BadgeDefinition
	for {
		profile := ComputeProfile(userID, activities, total, s.levels, now)
		snap := BuildSnapshot(profile, activities)
		snap.ClubVerified = club

		unlocked := s.badges.Evaluate(snap, held)
		if len(unlocked) == 0 {
			// Later iterations append out of catalog order; restore it so
			// notification presentation stays deterministic.
			sortBadges(awarded)
			return awarded, total, nil
		}

		for _, def := range unlocked {
			held[def.Code] = struct{}{}
			inserted, err := tx.InsertUserBadge(ctx, UserBadge{UserID: userID, BadgeID: def.Code, EarnedAt: now})
			if err != nil {
				return nil, total, &ProgressionError{Step: "badge award", Cause: err}
			}
			if !inserted {
				continue
			}

			badgeID := def.Code
			txn := XPTransaction{
				ID:             uuid.New(),
				UserID:         userID,
				Amount:         def.XPReward,
				Reason:         XPReasonBadge,
				Description:    fmt.Sprintf("Badge unlocked: %s", def.Name),
				RelatedBadgeID: &badgeID,
				CreatedAt:      now,
			}
			if err := tx.AppendXP(ctx, txn); err != nil {
				return nil, total, &ProgressionError{Step: "badge award", Cause: err}
			}
			total += def.XPReward

			evt := OutboxEvent{
				AggregateType: "badge",
				AggregateID:   fmt.Sprintf("%s:%s", userID, def.Code),
				EventType:     events.EventBadgeUnlocked,
				PartitionKey:  userID.String(),
				Payload: events.BadgeUnlocked{
					UserID:     userID.String(),
					BadgeID:    def.Code,
					BadgeName:  def.Name,
					Rarity:     string(def.Rarity),
					XPReward:   def.XPReward,
					OccurredAt: now,
				},
			}
			if err := tx.InsertEvent(ctx, evt); err != nil {
				return nil, total, &ProgressionError{Step: "badge award", Cause: err}
			}
			awarded = append(awarded, def)
		}
	}
}

// GetProfile returns the materialized aggregate, or the pristine level-one
// profile for a user with no history.
func (s *Service) GetProfile(ctx context.Context, userID uuid.UUID) (Profile, error) {
	p, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	if p == nil {
		return ComputeProfile(userID, nil, 0, s.levels, s.now()), nil
	}
	return *p, nil
}

// ListUserBadges returns earned badges joined with their definitions. Awards
// whose code has left the catalog are skipped rather than invented.
func (s *Service) ListUserBadges(ctx context.Context, userID uuid.UUID) ([]AwardedBadge, error) {
	held, err := s.store.ListUserBadges(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]AwardedBadge, 0, len(held))
	for _, b := range held {
		def, ok := s.badges.Get(b.BadgeID)
		if !ok {
			continue
		}
		out = append(out, AwardedBadge{Badge: b, Definition: def})
	}
	return out, nil
}

// GetBadgeProgress projects the whole catalog against a freshly derived
// aggregate: earned flag plus percent toward each threshold.
func (s *Service) GetBadgeProgress(ctx context.Context, userID uuid.UUID) ([]BadgeProgress, error) {
	activities, err := s.store.ListActivities(ctx, userID)
	if err != nil {
		return nil, err
	}
	total, err := s.store.SumXP(ctx, userID)
	if err != nil {
		return nil, err
	}
	club, err := s.store.ClubVerified(ctx, userID)
	if err != nil {
		return nil, err
	}
	held, err := s.store.ListUserBadges(ctx, userID)
	if err != nil {
		return nil, err
	}
	earnedAt := make(map[string]time.Time, len(held))
	for _, b := range held {
		earnedAt[b.BadgeID] = b.EarnedAt
	}

	profile := ComputeProfile(userID, activities, total, s.levels, s.now())
	snap := BuildSnapshot(profile, activities)
	snap.ClubVerified = club

	defs := s.badges.Definitions()
	out := make([]BadgeProgress, 0, len(defs))
	for _, def := range defs {
		bp := BadgeProgress{Definition: def, ProgressPercent: snap.ProgressPercent(def)}
		if at, ok := earnedAt[def.Code]; ok {
			bp.Earned = true
			t := at
			bp.EarnedAt = &t
			bp.ProgressPercent = 100
		}
		out = append(out, bp)
	}
	return out, nil
}

// CreateChallenge validates the window and persists the challenge.
func (s *Service) CreateChallenge(ctx context.Context, creatorID uuid.UUID, in NewChallengeInput) (*Challenge, error) {
	endDate, err := in.Validate()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	c := Challenge{
		ID:               uuid.New(),
		Name:             in.Name,
		Description:      in.Description,
		Type:             in.Type,
		Objective:        in.Objective,
		StartDate:        in.StartDate.UTC(),
		EndDate:          endDate.UTC(),
		CreatorID:        creatorID,
		BadgeName:        in.BadgeName,
		PrizeDescription: in.PrizeDescription,
		CreatedAt:        now,
	}
	if err := s.store.CreateChallenge(ctx, c); err != nil {
		return nil, err
	}
	return &c, nil
}

// JoinChallenge adds the user to a not-yet-completed challenge. Joining
// twice is a no-op.
func (s *Service) JoinChallenge(ctx context.Context, challengeID, userID uuid.UUID) error {
	c, err := s.store.GetChallenge(ctx, challengeID)
	if err != nil {
		return err
	}
	if c == nil {
		return ErrChallengeNotFound
	}
	now := s.now().UTC()
	if c.Status(now) == ChallengeCompleted {
		return fmt.Errorf("%w: challenge already completed", ErrInvalidChallenge)
	}

	p := ChallengeParticipant{ChallengeID: challengeID, UserID: userID, JoinedAt: now}
	if err := s.store.AddParticipant(ctx, p); err != nil {
		return err
	}

	activities, err := s.store.ListActivities(ctx, userID)
	if err != nil {
		return err
	}
	progress := ComputeProgress(*c, p, activities, now)
	return s.store.SetParticipantProgress(ctx, challengeID, userID, progress, now)
}

// LeaveChallenge removes the participation row. The user's activities and XP
// are untouched.
func (s *Service) LeaveChallenge(ctx context.Context, challengeID, userID uuid.UUID) error {
	c, err := s.store.GetChallenge(ctx, challengeID)
	if err != nil {
		return err
	}
	if c == nil {
		return ErrChallengeNotFound
	}
	return s.store.RemoveParticipant(ctx, challengeID, userID)
}

// Leaderboard derives the ranking for one challenge from the stored
// participant progress.
func (s *Service) Leaderboard(ctx context.Context, challengeID uuid.UUID) (*Challenge, []RankedParticipant, error) {
	c, err := s.store.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, nil, err
	}
	if c == nil {
		return nil, nil, ErrChallengeNotFound
	}
	parts, err := s.store.ListParticipants(ctx, challengeID)
	if err != nil {
		return nil, nil, err
	}
	return c, Rank(parts, c.Objective), nil
}

// ListChallenges returns every challenge with its derived status and the
// caller's participation and rank.
func (s *Service) ListChallenges(ctx context.Context, userID uuid.UUID) ([]ChallengeView, error) {
	challenges, err := s.store.ListChallenges(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()

	out := make([]ChallengeView, 0, len(challenges))
	for _, c := range challenges {
		parts, err := s.store.ListParticipants(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		view := ChallengeView{
			Challenge:        c,
			Status:           c.Status(now),
			ParticipantCount: len(parts),
		}
		for _, rp := range Rank(parts, c.Objective) {
			if rp.UserID == userID {
				view.Joined = true
				view.Progress = rp.Progress
				view.Position = rp.Position
				break
			}
		}
		out = append(out, view)
	}
	return out, nil
}

// RecomputeProgress re-derives every participant's progress for one
// challenge from raw activities. Idempotent: repeated runs produce identical
// numbers.
func (s *Service) RecomputeProgress(ctx context.Context, challengeID uuid.UUID) ([]ChallengeParticipant, error) {
	c, err := s.store.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrChallengeNotFound
	}
	parts, err := s.store.ListParticipants(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	out := make([]ChallengeParticipant, 0, len(parts))
	for _, p := range parts {
		activities, err := s.store.ListActivities(ctx, p.UserID)
		if err != nil {
			return nil, err
		}
		p.Progress = ComputeProgress(*c, p, activities, now)
		if err := s.store.SetParticipantProgress(ctx, challengeID, p.UserID, p.Progress, now); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// RecalculateAllChallengeProgress re-derives progress for every active
// challenge. Administrative and idempotent.
func (s *Service) RecalculateAllChallengeProgress(ctx context.Context) (int, error) {
	challenges, err := s.store.ListChallenges(ctx)
	if err != nil {
		return 0, err
	}
	now := s.now()

	recomputed := 0
	for _, c := range challenges {
		if c.Status(now) != ChallengeActive {
			continue
		}
		if _, err := s.RecomputeProgress(ctx, c.ID); err != nil {
			return recomputed, err
		}
		recomputed++
	}
	return recomputed, nil
}

// RecalculateAllBadges re-derives every user's aggregate from raw activities
// and awards any badges the incremental path missed. It only ever adds
// missing awards; held badges are never removed or duplicated.
func (s *Service) RecalculateAllBadges(ctx context.Context) (int, error) {
	userIDs, err := s.store.ListUserIDs(ctx)
	if err != nil {
		return 0, err
	}

	awardedTotal := 0
	for _, userID := range userIDs {
		err := s.store.WithUserLock(ctx, userID, func(ctx context.Context, tx Tx) error {
			now := s.now().UTC()
			activities, err := tx.ListActivities(ctx, userID)
			if err != nil {
				return err
			}
			total, err := tx.SumXP(ctx, userID)
			if err != nil {
				return err
			}
			entryLevel := s.levels.LevelFor(total)

			awarded, total, err := s.evaluateAndAward(ctx, tx, userID, activities, total, now)
			if err != nil {
				return err
			}
			awardedTotal += len(awarded)

			finalLevel := s.levels.LevelFor(total)
			if finalLevel.Number > entryLevel.Number {
				levelTxn := XPTransaction{
					ID:          uuid.New(),
					UserID:      userID,
					Amount:      0,
					Reason:      XPReasonLevelUp,
					Description: fmt.Sprintf("Reached level %d: %s", finalLevel.Number, finalLevel.Title),
					CreatedAt:   now,
				}
				if err := tx.AppendXP(ctx, levelTxn); err != nil {
					return err
				}
			}

			profile := ComputeProfile(userID, activities, total, s.levels, now)
			return tx.SaveProfile(ctx, profile)
		})
		if err != nil {
			return awardedTotal, err
		}
	}
	return awardedTotal, nil
}
