// Package api exposes HTTP handlers for the progression service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ScimanSky/swimforge-oppidum-sub001/internal/auth"
	"github.com/ScimanSky/swimforge-oppidum-sub001/internal/domain"
	"github.com/ScimanSky/swimforge-oppidum-sub001/internal/observability"
)

// Handler coordinates HTTP requests with the progression service.
type Handler struct {
	service *domain.Service
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/activities", h.activities)
	mux.HandleFunc("/v1/profile", h.profile)
	mux.HandleFunc("/v1/badges", h.badges)
	mux.HandleFunc("/v1/badges/progress", h.badgeProgress)
	mux.HandleFunc("/v1/challenges", h.challenges)
	mux.HandleFunc("/v1/challenges/", h.challengeByID)
	mux.HandleFunc("/v1/admin/recalculate/badges", h.recalculateBadges)
	mux.HandleFunc("/v1/admin/recalculate/challenges", h.recalculateChallenges)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// caller extracts the authenticated user, enforcing the given scope.
func caller(w http.ResponseWriter, r *http.Request, scope string) (uuid.UUID, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return uuid.Nil, false
	}
	if !claims.HasScope(scope) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return uuid.Nil, false
	}
	userID, err := claims.UserID()
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "token subject is not a user id")
		return uuid.Nil, false
	}
	return userID, true
}

func (h *Handler) activities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	userID, ok := caller(w, r, auth.ScopeWrite)
	if !ok {
		return
	}

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	activity, replay, result, err := h.service.Ingest(r.Context(), userID, req.toInput())
	if err != nil {
		if errors.Is(err, domain.ErrInvalidActivity) {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		writeServerError(w, err)
		return
	}

	resp := IngestResponse{Activity: toActivityView(*activity), Replay: replay}
	status := http.StatusAccepted
	if replay {
		status = http.StatusOK
		observability.RecordDuplicateReplayed()
	} else {
		observability.RecordActivityIngested(string(activity.Source))
		observability.RecordXPAwarded(string(domain.XPReasonActivity), activity.XPEarned)
	}
	if result != nil {
		view := toProgressionView(*result)
		resp.Result = &view
		observability.RecordBadgesAwarded(len(result.NewBadges))
	}
	writeJSON(w, status, resp)
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	userID, ok := caller(w, r, auth.ScopeRead)
	if !ok {
		return
	}

	profile, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		writeServerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileView(profile))
}

func (h *Handler) badges(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	userID, ok := caller(w, r, auth.ScopeRead)
	if !ok {
		return
	}

	earned, err := h.service.ListUserBadges(r.Context(), userID)
	if err != nil {
		writeServerError(w, err)
		return
	}

	items := make([]EarnedBadgeView, 0, len(earned))
	for _, ab := range earned {
		items = append(items, EarnedBadgeView{
			BadgeView: toBadgeView(ab.Definition),
			EarnedAt:  ab.Badge.EarnedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) badgeProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	userID, ok := caller(w, r, auth.ScopeRead)
	if !ok {
		return
	}

	progress, err := h.service.GetBadgeProgress(r.Context(), userID)
	if err != nil {
		writeServerError(w, err)
		return
	}

	items := make([]BadgeProgressView, 0, len(progress))
	for _, bp := range progress {
		items = append(items, BadgeProgressView{
			BadgeView:       toBadgeView(bp.Definition),
			Earned:          bp.Earned,
			EarnedAt:        bp.EarnedAt,
			ProgressPercent: bp.ProgressPercent,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) challenges(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createChallenge(w, r)
	case http.MethodGet:
		h.listChallenges(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) createChallenge(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r, auth.ScopeWrite)
	if !ok {
		return
	}

	var req CreateChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	challenge, err := h.service.CreateChallenge(r.Context(), userID, req.toInput())
	if err != nil {
		if errors.Is(err, domain.ErrInvalidChallenge) || errors.Is(err, domain.ErrChallengeWindowInvalid) {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		writeServerError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toChallengeView(*challenge, challenge.Status(time.Now().UTC())))
}

func (h *Handler) listChallenges(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r, auth.ScopeRead)
	if !ok {
		return
	}

	views, err := h.service.ListChallenges(r.Context(), userID)
	if err != nil {
		writeServerError(w, err)
		return
	}

	items := make([]ChallengeView, 0, len(views))
	for _, v := range views {
		view := toChallengeView(v.Challenge, v.Status)
		view.ParticipantCount = v.ParticipantCount
		view.Joined = v.Joined
		view.Progress = v.Progress
		view.Position = v.Position
		items = append(items, view)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) challengeByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/challenges/")
	parts := strings.SplitN(rest, "/", 2)
	challengeID, err := uuid.Parse(parts[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid challenge id")
		return
	}

	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch {
	case action == "leaderboard" && r.Method == http.MethodGet:
		h.leaderboard(w, r, challengeID)
	case action == "join" && r.Method == http.MethodPost:
		h.joinChallenge(w, r, challengeID)
	case action == "participation" && r.Method == http.MethodDelete:
		h.leaveChallenge(w, r, challengeID)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) joinChallenge(w http.ResponseWriter, r *http.Request, challengeID uuid.UUID) {
	userID, ok := caller(w, r, auth.ScopeWrite)
	if !ok {
		return
	}

	if err := h.service.JoinChallenge(r.Context(), challengeID, userID); err != nil {
		writeChallengeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "joined"})
}

func (h *Handler) leaveChallenge(w http.ResponseWriter, r *http.Request, challengeID uuid.UUID) {
	userID, ok := caller(w, r, auth.ScopeWrite)
	if !ok {
		return
	}

	if err := h.service.LeaveChallenge(r.Context(), challengeID, userID); err != nil {
		writeChallengeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request, challengeID uuid.UUID) {
	if _, ok := caller(w, r, auth.ScopeRead); !ok {
		return
	}

	challenge, ranked, err := h.service.Leaderboard(r.Context(), challengeID)
	if err != nil {
		writeChallengeError(w, err)
		return
	}

	resp := LeaderboardResponse{
		Challenge: toChallengeView(*challenge, challenge.Status(time.Now().UTC())),
		Entries:   make([]LeaderboardEntryView, 0, len(ranked)),
	}
	for _, rp := range ranked {
		resp.Entries = append(resp.Entries, LeaderboardEntryView{
			Position: rp.Position,
			UserID:   rp.UserID.String(),
			Progress: rp.Progress,
			JoinedAt: rp.JoinedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) recalculateBadges(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if _, ok := caller(w, r, auth.ScopeAdmin); !ok {
		return
	}

	awarded, err := h.service.RecalculateAllBadges(r.Context())
	if err != nil {
		writeServerError(w, err)
		return
	}
	observability.RecordBadgesAwarded(awarded)
	writeJSON(w, http.StatusOK, map[string]int{"badges_awarded": awarded})
}

func (h *Handler) recalculateChallenges(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if _, ok := caller(w, r, auth.ScopeAdmin); !ok {
		return
	}

	recomputed, err := h.service.RecalculateAllChallengeProgress(r.Context())
	if err != nil {
		writeServerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"challenges_recomputed": recomputed})
}

func writeChallengeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrChallengeNotFound):
		writeError(w, http.StatusNotFound, "not_found", "challenge not found")
	case errors.Is(err, domain.ErrInvalidChallenge), errors.Is(err, domain.ErrChallengeWindowInvalid):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	default:
		writeServerError(w, err)
	}
}

// IngestRequest is the payload for POST /v1/activities.
type IngestRequest struct {
	Source           string    `json:"source"`
	ExternalID       *string   `json:"external_id,omitempty"`
	ActivityDate     time.Time `json:"activity_date"`
	DistanceMeters   int       `json:"distance_meters"`
	DurationSeconds  int       `json:"duration_seconds"`
	StrokeType       string    `json:"stroke_type"`
	ActivityName     string    `json:"activity_name,omitempty"`
	IsOpenWater      bool      `json:"is_open_water"`
	AvgHeartRate     *int      `json:"avg_heart_rate,omitempty"`
	MaxHeartRate     *int      `json:"max_heart_rate,omitempty"`
	PoolLengthMeters *int      `json:"pool_length_meters,omitempty"`
	Calories         *int      `json:"calories,omitempty"`
	SwolfScore       *int      `json:"swolf_score,omitempty"`
	LapCount         *int      `json:"lap_count,omitempty"`
	Location         *string   `json:"location,omitempty"`
	Notes            *string   `json:"notes,omitempty"`
}

// toInput normalizes the request. An absent stroke type falls back to
// detection from the provider activity name.
func (r IngestRequest) toInput() domain.IngestInput {
	stroke := domain.StrokeType(r.StrokeType)
	if r.StrokeType == "" {
		stroke = domain.DetectStroke(r.ActivityName)
	}
	return domain.IngestInput{
		Source:           domain.Source(r.Source),
		ExternalID:       r.ExternalID,
		ActivityDate:     r.ActivityDate,
		DistanceMeters:   r.DistanceMeters,
		DurationSeconds:  r.DurationSeconds,
		Stroke:           stroke,
		OpenWater:        r.IsOpenWater,
		AvgHeartRate:     r.AvgHeartRate,
		MaxHeartRate:     r.MaxHeartRate,
		PoolLengthMeters: r.PoolLengthMeters,
		Calories:         r.Calories,
		SwolfScore:       r.SwolfScore,
		LapCount:         r.LapCount,
		Location:         r.Location,
		Notes:            r.Notes,
	}
}

// CreateChallengeRequest is the payload for POST /v1/challenges.
type CreateChallengeRequest struct {
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	Type             string    `json:"type"`
	Objective        string    `json:"objective"`
	StartDate        time.Time `json:"start_date"`
	Duration         string    `json:"duration"`
	BadgeName        *string   `json:"badge_name,omitempty"`
	PrizeDescription *string   `json:"prize_description,omitempty"`
}

func (r CreateChallengeRequest) toInput() domain.NewChallengeInput {
	return domain.NewChallengeInput{
		Name:             strings.TrimSpace(r.Name),
		Description:      r.Description,
		Type:             domain.ChallengeType(r.Type),
		Objective:        domain.Objective(r.Objective),
		StartDate:        r.StartDate,
		Duration:         domain.ChallengeDuration(r.Duration),
		BadgeName:        r.BadgeName,
		PrizeDescription: r.PrizeDescription,
	}
}

// writeServerError separates connection-level storage failures, which a
// client may retry against an unchanged unit of work, from everything else.
func writeServerError(w http.ResponseWriter, err error) {
	if storageUnavailable(err) {
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "storage temporarily unavailable, retry the request")
		return
	}
	writeError(w, http.StatusInternalServerError, "server_error", err.Error())
}

// storageUnavailable reports whether err is a transient connectivity failure
// rather than a programming or data error. SQLSTATE class 08 is connection
// exceptions; 57P03 and 53300 are a server still starting up or out of slots.
func storageUnavailable(err error) bool {
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "08") || pgErr.Code == "57P03" || pgErr.Code == "53300"
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
