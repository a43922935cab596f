/*
handlers.go - HTTP API handlers for the points dashboard and run control

PURPOSE:
  Exposes the points engine and the run orchestrator via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Identities:
    GET    /api/identities                 List identities with latest points
    GET    /api/identities/{id}/stats      Statistics block
    GET    /api/identities/{id}/series     Cumulative series (?days=N)
    GET    /api/identities/{id}/daily      Daily gain series (?days=N)
    POST   /api/identities/{id}/points     Record a manual reading

  Summary:
    GET    /api/summary                    Totals across identities

  Runs:
    GET    /api/runs                       Current or last run
    POST   /api/runs                       Start a run
    DELETE /api/runs                       Stop every worker
    DELETE /api/runs/{id}                  Stop one worker
    GET    /api/runs/events                Live event stream (websocket)

  Progress:
    GET    /api/progress                   Today's searches per profile
    POST   /api/progress/reset             Forget today's progress

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Engine: Read-only queries over the point history
  - Coordinator: The only writer; manual writes go through it
  - Runner: Starts and stops runs
  - Tracker: Read-only view of daily progress

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid input, unknown profile
  - 404: No data for identity, unknown worker
  - 409: Run already active, no active run
  - 500: Storage failures

SECURITY NOTE:
  NO authentication. Bind the listener to localhost.

SEE ALSO:
  - dto.go: Request/response data structures
  - events.go: Websocket event stream
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/points-engine/config"
	"github.com/warp/points-engine/points"
	"github.com/warp/points-engine/progress"
	"github.com/warp/points-engine/runner"
)

// maxWindowDays bounds the ?days= parameter.
const maxWindowDays = 3650

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine      *points.Engine
	Coordinator *runner.Coordinator
	Runner      *runner.Runner
	Tracker     *progress.Tracker
	Config      *config.Config
	Logger      *zap.Logger
}

// NewHandler creates a new handler.
func NewHandler(engine *points.Engine, coord *runner.Coordinator, r *runner.Runner, tracker *progress.Tracker, cfg *config.Config, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Engine:      engine,
		Coordinator: coord,
		Runner:      r,
		Tracker:     tracker,
		Config:      cfg,
		Logger:      logger,
	}
}

// =============================================================================
// IDENTITY HANDLERS
// =============================================================================

// ListIdentities returns configured profiles first, in order, followed by
// any other identity present in the history.
func (h *Handler) ListIdentities(w http.ResponseWriter, r *http.Request) {
	history, err := h.Engine.Store.Load(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load history", err)
		return
	}

	now := h.Engine.Now()
	dtos := make([]IdentityDTO, 0, len(h.Config.Profiles)+len(history))
	seen := make(map[points.Identity]bool, len(h.Config.Profiles))

	for _, p := range h.Config.Profiles {
		id := points.Identity(p.Name)
		seen[id] = true
		label := p.Label
		if stored := history[id].Label; stored != "" {
			label = stored
		}
		dto := h.identityDTO(id, label, history[id].Snapshots, now)
		dto.Number = p.Number
		dto.Configured = true
		dtos = append(dtos, dto)
	}
	for _, id := range history.Identities() {
		if seen[id] {
			continue
		}
		dtos = append(dtos, h.identityDTO(id, history[id].Label, history[id].Snapshots, now))
	}

	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) identityDTO(id points.Identity, label string, snaps []points.Snapshot, now time.Time) IdentityDTO {
	dto := IdentityDTO{Identity: string(id), Label: label}
	stats, ok := points.ComputeStats(snaps, now)
	if !ok {
		return dto
	}
	red := toRedemptionDTO(points.EvaluateRedemption(stats.Current, h.Config.RedeemThreshold))
	dto.HasData = true
	dto.Current = stats.Current
	dto.LastRecord = stats.LastRecord.Format(time.RFC3339)
	dto.Redemption = &red
	return dto
}

// GetStats returns the statistics block of one identity.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	id := points.Identity(chi.URLParam(r, "id"))

	stats, err := h.Engine.Stats(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toStatsDTO(stats, h.Config.RedeemThreshold))
}

// GetSeries returns the cumulative chart series.
func (h *Handler) GetSeries(w http.ResponseWriter, r *http.Request) {
	h.series(w, r, h.Engine.Series)
}

// GetDailySeries returns the daily gain chart series.
func (h *Handler) GetDailySeries(w http.ResponseWriter, r *http.Request) {
	h.series(w, r, h.Engine.DailyDeltaSeries)
}

type seriesFunc func(ctx context.Context, id points.Identity, days int) ([]points.SeriesPoint, error)

func (h *Handler) series(w http.ResponseWriter, r *http.Request, fn seriesFunc) {
	id := points.Identity(chi.URLParam(r, "id"))

	days, err := parseDays(r.URL.Query().Get("days"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid days", err)
		return
	}

	series, err := fn(r.Context(), id, days)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSeriesDTO(id, days, series))
}

// parseDays reads the window size. Empty or 0 means the default window.
func parseDays(raw string) (int, error) {
	if raw == "" {
		return points.DefaultWindowDays, nil
	}
	days, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("days must be an integer, got %q", raw)
	}
	if days < 0 || days > maxWindowDays {
		return 0, fmt.Errorf("days must be between 0 and %d, got %d", maxWindowDays, days)
	}
	if days == 0 {
		return points.DefaultWindowDays, nil
	}
	return days, nil
}

// RecordPoints records a manual reading. Unparseable input is accepted and
// reported as not recorded.
func (h *Handler) RecordPoints(w http.ResponseWriter, r *http.Request) {
	id := points.Identity(chi.URLParam(r, "id"))

	var req RecordPointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	recorded, err := h.Coordinator.RecordPoints(r.Context(), id, req.Label, req.Points)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to record points", err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]bool{"recorded": recorded})
}

// =============================================================================
// SUMMARY HANDLERS
// =============================================================================

// GetSummary returns the per-identity rows and totals.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.Engine.Summary(r.Context(), h.Config.RedeemThreshold)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to summarize history", err)
		return
	}

	writeJSON(w, http.StatusOK, toSummaryDTO(sum))
}

// =============================================================================
// RUN HANDLERS
// =============================================================================

// GetRun returns the current or most recent run.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	info, ok := h.Runner.State()
	if !ok {
		writeJSON(w, http.StatusOK, runner.RunInfo{Workers: []runner.WorkerState{}})
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// StartRun starts a run of the requested profiles, or all configured ones.
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	var req StartRunRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	profiles, err := h.resolveProfiles(req.Profiles)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unknown profile", err)
		return
	}

	// The run outlives the request.
	info, err := h.Runner.Start(context.WithoutCancel(r.Context()), runner.ProfilesFrom(profiles))
	switch {
	case errors.Is(err, runner.ErrRunInProgress):
		writeError(w, http.StatusConflict, "A run is already in progress", err)
		return
	case errors.Is(err, runner.ErrNoProfiles):
		writeError(w, http.StatusBadRequest, "No profiles configured", err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Failed to start run", err)
		return
	}

	h.Logger.Info("run started via api", zap.String("run_id", info.ID), zap.Int("profiles", len(profiles)))
	writeJSON(w, http.StatusAccepted, info)
}

// StopRun stops every worker of the active run.
func (h *Handler) StopRun(w http.ResponseWriter, r *http.Request) {
	if err := h.Runner.StopAll(); err != nil {
		writeRunError(w, err)
		return
	}

	info, _ := h.Runner.State()
	writeJSON(w, http.StatusAccepted, info)
}

// StopWorker stops one worker of the active run.
func (h *Handler) StopWorker(w http.ResponseWriter, r *http.Request) {
	id := points.Identity(chi.URLParam(r, "id"))

	if err := h.Runner.StopWorker(id); err != nil {
		writeRunError(w, err)
		return
	}

	info, _ := h.Runner.State()
	writeJSON(w, http.StatusAccepted, info)
}

func writeRunError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, runner.ErrNoActiveRun):
		writeError(w, http.StatusConflict, "No active run", err)
	case errors.Is(err, runner.ErrWorkerNotFound):
		writeError(w, http.StatusNotFound, "Worker not found", err)
	default:
		writeError(w, http.StatusInternalServerError, "Failed to stop run", err)
	}
}

// resolveProfiles maps names to configured profiles. Empty means all.
func (h *Handler) resolveProfiles(names []string) ([]config.Profile, error) {
	if len(names) == 0 {
		return h.Config.Profiles, nil
	}
	out := make([]config.Profile, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		p, ok := h.Config.Profile(name)
		if !ok {
			return nil, fmt.Errorf("profile %q is not configured", name)
		}
		out = append(out, p)
	}
	return out, nil
}

// =============================================================================
// PROGRESS HANDLERS
// =============================================================================

// GetProgress returns today's progress for every configured profile.
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	records, err := h.Tracker.Snapshot(r.Context(), h.Config.Identities())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read progress", err)
		return
	}

	dtos := make([]ProgressDTO, len(records))
	for i, rec := range records {
		p, _ := h.Config.Profile(string(rec.Identity))
		dtos[i] = ProgressDTO{
			Identity:  string(rec.Identity),
			Label:     p.Label,
			Number:    p.Number,
			Completed: rec.Completed,
			Target:    h.Config.SearchesPerProfile,
		}
		if !rec.UpdatedAt.IsZero() {
			dtos[i].UpdatedAt = rec.UpdatedAt.Format(time.RFC3339)
		}
	}

	writeJSON(w, http.StatusOK, dtos)
}

// ResetProgress forgets today's progress. Point history is untouched.
func (h *Handler) ResetProgress(w http.ResponseWriter, r *http.Request) {
	var req ProfilesRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	profiles, err := h.resolveProfiles(req.Profiles)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unknown profile", err)
		return
	}

	ids := make([]points.Identity, len(profiles))
	names := make([]string, len(profiles))
	for i, p := range profiles {
		ids[i] = points.Identity(p.Name)
		names[i] = p.Name
	}
	if err := h.Coordinator.ResetProgress(r.Context(), ids...); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset progress", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]string{"reset": names})
}

// Healthz reports liveness.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps "no data" to 404 and everything else to 500.
func writeEngineError(w http.ResponseWriter, err error) {
	if points.IsNoData(err) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "No data"})
		return
	}
	writeError(w, http.StatusInternalServerError, "Failed to load history", err)
}

// decodeOptional decodes a JSON body, treating an empty body as zero value.
func decodeOptional(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
