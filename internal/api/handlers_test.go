package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ScimanSky/swimforge-oppidum-sub001/internal/auth"
	"github.com/ScimanSky/swimforge-oppidum-sub001/internal/domain"
)

// fakeStore is a minimal in-memory domain.Store for handler tests.
type fakeStore struct {
	activities   []domain.Activity
	xp           int64
	profile      *domain.Profile
	badges       []domain.UserBadge
	challenges   map[uuid.UUID]domain.Challenge
	participants map[uuid.UUID][]domain.ChallengeParticipant

	getProfileErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		challenges:   make(map[uuid.UUID]domain.Challenge),
		participants: make(map[uuid.UUID][]domain.ChallengeParticipant),
	}
}

func (f *fakeStore) WithUserLock(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context, tx domain.Tx) error) error {
	return fn(ctx, f)
}

func (f *fakeStore) InsertActivity(_ context.Context, a domain.Activity) error {
	for _, existing := range f.activities {
		if existing.ExternalID != nil && a.ExternalID != nil &&
			existing.Source == a.Source && *existing.ExternalID == *a.ExternalID {
			return domain.ErrDuplicateActivity
		}
	}
	f.activities = append(f.activities, a)
	return nil
}

func (f *fakeStore) FindByDedupKey(_ context.Context, userID uuid.UUID, source domain.Source, externalID string) (*domain.Activity, error) {
	for _, a := range f.activities {
		if a.Source == source && a.ExternalID != nil && *a.ExternalID == externalID {
			copied := a
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListActivities(context.Context, uuid.UUID) ([]domain.Activity, error) {
	return f.activities, nil
}

func (f *fakeStore) AppendXP(_ context.Context, txn domain.XPTransaction) error {
	f.xp += txn.Amount
	return nil
}

func (f *fakeStore) SumXP(context.Context, uuid.UUID) (int64, error) { return f.xp, nil }

func (f *fakeStore) SaveProfile(_ context.Context, p domain.Profile) error {
	f.profile = &p
	return nil
}

func (f *fakeStore) GetProfile(context.Context, uuid.UUID) (*domain.Profile, error) {
	if f.getProfileErr != nil {
		return nil, f.getProfileErr
	}
	return f.profile, nil
}

func (f *fakeStore) ClubVerified(context.Context, uuid.UUID) (bool, error) { return false, nil }

func (f *fakeStore) HeldBadges(context.Context, uuid.UUID) (map[string]struct{}, error) {
	held := make(map[string]struct{})
	for _, b := range f.badges {
		held[b.BadgeID] = struct{}{}
	}
	return held, nil
}

func (f *fakeStore) InsertUserBadge(_ context.Context, b domain.UserBadge) (bool, error) {
	for _, existing := range f.badges {
		if existing.BadgeID == b.BadgeID {
			return false, nil
		}
	}
	f.badges = append(f.badges, b)
	return true, nil
}

func (f *fakeStore) ListUserBadges(context.Context, uuid.UUID) ([]domain.UserBadge, error) {
	return f.badges, nil
}

func (f *fakeStore) ListUserIDs(context.Context) ([]uuid.UUID, error) { return nil, nil }

func (f *fakeStore) CreateChallenge(_ context.Context, c domain.Challenge) error {
	f.challenges[c.ID] = c
	return nil
}

func (f *fakeStore) GetChallenge(_ context.Context, id uuid.UUID) (*domain.Challenge, error) {
	if c, ok := f.challenges[id]; ok {
		copied := c
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeStore) ListChallenges(context.Context) ([]domain.Challenge, error) {
	var out []domain.Challenge
	for _, c := range f.challenges {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeStore) ListParticipants(_ context.Context, challengeID uuid.UUID) ([]domain.ChallengeParticipant, error) {
	return f.participants[challengeID], nil
}

func (f *fakeStore) ListParticipations(context.Context, uuid.UUID) ([]domain.ParticipantChallenge, error) {
	return nil, nil
}

func (f *fakeStore) AddParticipant(_ context.Context, p domain.ChallengeParticipant) error {
	f.participants[p.ChallengeID] = append(f.participants[p.ChallengeID], p)
	return nil
}

func (f *fakeStore) RemoveParticipant(_ context.Context, challengeID, userID uuid.UUID) error {
	var kept []domain.ChallengeParticipant
	for _, p := range f.participants[challengeID] {
		if p.UserID != userID {
			kept = append(kept, p)
		}
	}
	f.participants[challengeID] = kept
	return nil
}

func (f *fakeStore) SetParticipantProgress(_ context.Context, challengeID, userID uuid.UUID, progress float64, _ time.Time) error {
	for i, p := range f.participants[challengeID] {
		if p.UserID == userID {
			f.participants[challengeID][i].Progress = progress
		}
	}
	return nil
}

func (f *fakeStore) InsertEvent(context.Context, domain.OutboxEvent) error { return nil }

func newTestHandler(store *fakeStore) *Handler {
	levels, _ := domain.NewLevelCatalog(domain.DefaultLevels())
	badges, _ := domain.NewBadgeCatalog(domain.DefaultBadges())
	service := domain.NewService(store, levels, badges, domain.NewScorerV1())
	return NewHandler(service)
}

func authed(req *http.Request, userID uuid.UUID, scopes ...string) *http.Request {
	scopeSet := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		scopeSet[s] = struct{}{}
	}
	claims := &auth.Claims{
		Subject:   userID.String(),
		Scopes:    scopeSet,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	return req.WithContext(auth.WithClaims(req.Context(), claims))
}

func TestIngestAccepted(t *testing.T) {
	handler := newTestHandler(newFakeStore())
	userID := uuid.New()

	body := `{"source":"manual","activity_date":"2026-06-10T07:00:00Z","distance_meters":2000,"duration_seconds":3600,"stroke_type":"freestyle"}`
	req := authed(httptest.NewRequest(http.MethodPost, "/v1/activities", strings.NewReader(body)), userID, auth.ScopeWrite)
	rr := httptest.NewRecorder()
	handler.activities(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp IngestResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Replay {
		t.Fatal("fresh activity must not be a replay")
	}
	if resp.Activity.XPEarned != 36 {
		t.Fatalf("expected 36 xp got %d", resp.Activity.XPEarned)
	}
	if resp.Result == nil || len(resp.Result.NewBadges) == 0 {
		t.Fatal("expected progression result with badges")
	}
}

func TestIngestReplayReturns200(t *testing.T) {
	handler := newTestHandler(newFakeStore())
	userID := uuid.New()

	body := `{"source":"garmin","external_id":"g-77","activity_date":"2026-06-10T07:00:00Z","distance_meters":1500,"duration_seconds":2400,"stroke_type":"backstroke"}`

	first := httptest.NewRecorder()
	handler.activities(first, authed(httptest.NewRequest(http.MethodPost, "/v1/activities", strings.NewReader(body)), userID, auth.ScopeWrite))
	if first.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d: %s", first.Code, first.Body.String())
	}

	second := httptest.NewRecorder()
	handler.activities(second, authed(httptest.NewRequest(http.MethodPost, "/v1/activities", strings.NewReader(body)), userID, auth.ScopeWrite))
	if second.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay got %d: %s", second.Code, second.Body.String())
	}

	var resp IngestResponse
	if err := json.Unmarshal(second.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Replay {
		t.Fatal("expected idempotent_replay true")
	}
	if resp.Result != nil {
		t.Fatal("replay must carry no progression result")
	}
}

func TestIngestValidationFailure(t *testing.T) {
	handler := newTestHandler(newFakeStore())

	body := `{"source":"manual","activity_date":"2026-06-10T07:00:00Z","distance_meters":0,"duration_seconds":3600,"stroke_type":"freestyle"}`
	req := authed(httptest.NewRequest(http.MethodPost, "/v1/activities", strings.NewReader(body)), uuid.New(), auth.ScopeWrite)
	rr := httptest.NewRecorder()
	handler.activities(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestIngestRequiresWriteScope(t *testing.T) {
	handler := newTestHandler(newFakeStore())

	req := authed(httptest.NewRequest(http.MethodPost, "/v1/activities", strings.NewReader(`{}`)), uuid.New(), auth.ScopeRead)
	rr := httptest.NewRecorder()
	handler.activities(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rr.Code)
	}
}

func TestIngestRequiresClaims(t *testing.T) {
	handler := newTestHandler(newFakeStore())

	req := httptest.NewRequest(http.MethodPost, "/v1/activities", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	handler.activities(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
}

func TestProfilePristine(t *testing.T) {
	handler := newTestHandler(newFakeStore())
	userID := uuid.New()

	req := authed(httptest.NewRequest(http.MethodGet, "/v1/profile", nil), userID, auth.ScopeRead)
	rr := httptest.NewRecorder()
	handler.profile(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp ProfileView
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Level != 1 || resp.LevelTitle != "Tadpole" {
		t.Fatalf("expected pristine level 1 Tadpole, got %d %q", resp.Level, resp.LevelTitle)
	}
}

func TestStorageOutageReturnsServiceUnavailable(t *testing.T) {
	store := newFakeStore()
	store.getProfileErr = &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	handler := newTestHandler(store)

	req := authed(httptest.NewRequest(http.MethodGet, "/v1/profile", nil), uuid.New(), auth.ScopeRead)
	rr := httptest.NewRecorder()
	handler.profile(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d: %s", rr.Code, rr.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["type"] != "storage_unavailable" {
		t.Fatalf("expected storage_unavailable got %q", resp["type"])
	}
}

func TestUnclassifiedErrorReturnsServerError(t *testing.T) {
	store := newFakeStore()
	store.getProfileErr = errors.New("profile row corrupt")
	handler := newTestHandler(store)

	req := authed(httptest.NewRequest(http.MethodGet, "/v1/profile", nil), uuid.New(), auth.ScopeRead)
	rr := httptest.NewRecorder()
	handler.profile(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCreateChallengeRejectsBadDuration(t *testing.T) {
	handler := newTestHandler(newFakeStore())

	body := `{"name":"Derby","type":"both","objective":"total_distance","start_date":"2026-06-10T00:00:00Z","duration":"6w"}`
	req := authed(httptest.NewRequest(http.MethodPost, "/v1/challenges", strings.NewReader(body)), uuid.New(), auth.ScopeWrite)
	rr := httptest.NewRecorder()
	handler.challenges(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCreateChallengeSuccess(t *testing.T) {
	store := newFakeStore()
	handler := newTestHandler(store)

	body := `{"name":"Derby","type":"both","objective":"total_distance","start_date":"2026-06-10T00:00:00Z","duration":"1w"}`
	req := authed(httptest.NewRequest(http.MethodPost, "/v1/challenges", strings.NewReader(body)), uuid.New(), auth.ScopeWrite)
	rr := httptest.NewRecorder()
	handler.challenges(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rr.Code, rr.Body.String())
	}
	if len(store.challenges) != 1 {
		t.Fatalf("expected challenge persisted, got %d", len(store.challenges))
	}
}

func TestLeaderboardNotFound(t *testing.T) {
	handler := newTestHandler(newFakeStore())

	req := authed(httptest.NewRequest(http.MethodGet, "/v1/challenges/"+uuid.NewString()+"/leaderboard", nil), uuid.New(), auth.ScopeRead)
	rr := httptest.NewRecorder()
	handler.challengeByID(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
}

func TestLeaderboardRanks(t *testing.T) {
	store := newFakeStore()
	handler := newTestHandler(store)

	challengeID := uuid.New()
	store.challenges[challengeID] = domain.Challenge{
		ID:        challengeID,
		Name:      "Derby",
		Type:      domain.ChallengeBoth,
		Objective: domain.ObjectiveTotalDistance,
		StartDate: time.Now().Add(-24 * time.Hour),
		EndDate:   time.Now().Add(24 * time.Hour),
		CreatorID: uuid.New(),
	}
	for _, progress := range []float64{2000, 6000, 4000} {
		store.participants[challengeID] = append(store.participants[challengeID], domain.ChallengeParticipant{
			ChallengeID: challengeID, UserID: uuid.New(), JoinedAt: time.Now().Add(-12 * time.Hour), Progress: progress,
		})
	}

	req := authed(httptest.NewRequest(http.MethodGet, "/v1/challenges/"+challengeID.String()+"/leaderboard", nil), uuid.New(), auth.ScopeRead)
	rr := httptest.NewRecorder()
	handler.challengeByID(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp LeaderboardResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Entries) != 3 {
		t.Fatalf("expected 3 entries got %d", len(resp.Entries))
	}
	if resp.Entries[0].Progress != 6000 || resp.Entries[0].Position != 1 {
		t.Fatalf("unexpected first entry %+v", resp.Entries[0])
	}
	if resp.Challenge.Status != string(domain.ChallengeActive) {
		t.Fatalf("expected active status got %s", resp.Challenge.Status)
	}
}

func TestJoinAndLeaveChallenge(t *testing.T) {
	store := newFakeStore()
	handler := newTestHandler(store)

	challengeID := uuid.New()
	store.challenges[challengeID] = domain.Challenge{
		ID:        challengeID,
		Name:      "Derby",
		Type:      domain.ChallengeBoth,
		Objective: domain.ObjectiveTotalDistance,
		StartDate: time.Now().Add(-24 * time.Hour),
		EndDate:   time.Now().Add(24 * time.Hour),
		CreatorID: uuid.New(),
	}
	userID := uuid.New()

	req := authed(httptest.NewRequest(http.MethodPost, "/v1/challenges/"+challengeID.String()+"/join", nil), userID, auth.ScopeWrite)
	rr := httptest.NewRecorder()
	handler.challengeByID(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("join: expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	if len(store.participants[challengeID]) != 1 {
		t.Fatalf("expected 1 participant, got %d", len(store.participants[challengeID]))
	}

	req = authed(httptest.NewRequest(http.MethodDelete, "/v1/challenges/"+challengeID.String()+"/participation", nil), userID, auth.ScopeWrite)
	rr = httptest.NewRecorder()
	handler.challengeByID(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("leave: expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	if len(store.participants[challengeID]) != 0 {
		t.Fatalf("expected participant removed, got %d", len(store.participants[challengeID]))
	}
}

func TestAdminEndpointsRequireAdminScope(t *testing.T) {
	handler := newTestHandler(newFakeStore())

	req := authed(httptest.NewRequest(http.MethodPost, "/v1/admin/recalculate/badges", nil), uuid.New(), auth.ScopeWrite)
	rr := httptest.NewRecorder()
	handler.recalculateBadges(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rr.Code)
	}

	req = authed(httptest.NewRequest(http.MethodPost, "/v1/admin/recalculate/challenges", nil), uuid.New(), auth.ScopeAdmin)
	rr = httptest.NewRecorder()
	handler.recalculateChallenges(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	handler := newTestHandler(newFakeStore())

	req := authed(httptest.NewRequest(http.MethodDelete, "/v1/activities", nil), uuid.New(), auth.ScopeWrite)
	rr := httptest.NewRecorder()
	handler.activities(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 got %d", rr.Code)
	}
}
