package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/trierg/go/internal/activerace"
	"github.com/mcdev12/trierg/go/internal/estimate"
	"github.com/mcdev12/trierg/go/internal/identity"
	"github.com/mcdev12/trierg/go/internal/interchange"
	"github.com/mcdev12/trierg/go/internal/leaderboard"
	"github.com/mcdev12/trierg/go/internal/models"
	"github.com/mcdev12/trierg/go/internal/queue"
	"github.com/mcdev12/trierg/go/internal/race"
	"github.com/mcdev12/trierg/go/internal/store"
	"github.com/mcdev12/trierg/go/internal/timefmt"
)

// ActionHandler exposes the operator actions over HTTP. Reads are served
// from the synchronizer's local cache; writes go through the synchronizer
// and settle in the background.
type ActionHandler struct {
	sync  *activerace.Synchronizer
	store store.Store
}

// NewActionHandler creates the HTTP handler for operator actions.
func NewActionHandler(s *activerace.Synchronizer, st store.Store) *ActionHandler {
	return &ActionHandler{sync: s, store: st}
}

// estimateInput carries one per-discipline estimate edit. A nil pointer
// means the field was not touched; an empty string clears the estimate.
type estimateInput struct {
	Treadmill *string `json:"treadmill"`
	SkiErg    *string `json:"ski_erg"`
	Rowing    *string `json:"rowing"`
}

func (in estimateInput) toInput() estimate.Input {
	field := func(p *string) estimate.Field {
		if p == nil {
			return estimate.Field{}
		}
		return estimate.Field{Touched: true, Value: *p}
	}
	return estimate.Input{
		Treadmill: field(in.Treadmill),
		SkiErg:    field(in.SkiErg),
		Rowing:    field(in.Rowing),
	}
}

type createPersonRequest struct {
	Name string `json:"name"`
}

type startRaceRequest struct {
	PersonID  string         `json:"person_id"`
	Estimates *estimateInput `json:"estimates,omitempty"`
}

type massStartRequest struct {
	Entries []massStartEntry `json:"entries"`
}

type massStartEntry struct {
	PersonID  string         `json:"person_id"`
	Estimates *estimateInput `json:"estimates,omitempty"`
}

type splitResponse struct {
	Discipline models.Discipline `json:"discipline"`
	TimeMs     int64             `json:"time_ms"`
	Formatted  string            `json:"formatted"`
	Completed  bool              `json:"completed"`
}

// leaderboardRow is the wire shape of one leaderboard entry. Missing splits
// are omitted rather than carried as sentinels.
type leaderboardRow struct {
	ID          string  `json:"id"`
	PersonID    string  `json:"person_id"`
	PersonName  string  `json:"person_name"`
	TreadmillMs *int64  `json:"treadmill_ms,omitempty"`
	SkiErgMs    *int64  `json:"ski_erg_ms,omitempty"`
	RowingMs    *int64  `json:"rowing_ms,omitempty"`
	TotalMs     int64   `json:"total_ms"`
	Treadmill   string  `json:"treadmill,omitempty"`
	SkiErg      string  `json:"ski_erg,omitempty"`
	Rowing      string  `json:"rowing,omitempty"`
	Total       string  `json:"total"`
	Speed       float64 `json:"treadmill_kmh,omitempty"`
	Provisional bool    `json:"provisional"`
	Tiers       [3]int  `json:"tiers"`
}

type leaderboardResponse struct {
	Sort       leaderboard.SortKey `json:"sort"`
	Descending bool                `json:"descending"`
	Rows       []leaderboardRow    `json:"rows"`
}

// HandleCreatePerson handles POST /api/persons.
func (h *ActionHandler) HandleCreatePerson(w http.ResponseWriter, r *http.Request) {
	var req createPersonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	person, err := h.sync.CreatePerson(r.Context(), req.Name)
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, person)
}

// HandleListPersons handles GET /api/persons.
func (h *ActionHandler) HandleListPersons(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sync.Cache().Persons())
}

// HandleDeletePerson handles DELETE /api/persons/{id}.
func (h *ActionHandler) HandleDeletePerson(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.sync.DeletePerson(r.Context(), id); err != nil {
		writeActionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleStartRace handles POST /api/races.
func (h *ActionHandler) HandleStartRace(w http.ResponseWriter, r *http.Request) {
	var req startRaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	personID, err := uuid.Parse(req.PersonID)
	if err != nil {
		http.Error(w, "invalid person_id", http.StatusBadRequest)
		return
	}

	var est *models.EstimatedSplits
	if req.Estimates != nil {
		est, err = estimate.Merge(nil, req.Estimates.toInput(), 0)
		if err != nil {
			writeActionError(w, err)
			return
		}
	}

	active, err := h.sync.StartRace(r.Context(), personID, est)
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, active)
}

// HandleMassStart handles POST /api/races/mass-start. Entries without
// estimates are started all the same; one failed entry does not stop the
// rest of the batch.
func (h *ActionHandler) HandleMassStart(w http.ResponseWriter, r *http.Request) {
	var req massStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Entries) == 0 {
		http.Error(w, "entries are required", http.StatusBadRequest)
		return
	}

	ids := make([]uuid.UUID, 0, len(req.Entries))
	for _, e := range req.Entries {
		id, err := uuid.Parse(e.PersonID)
		if err != nil {
			http.Error(w, "invalid person_id", http.StatusBadRequest)
			return
		}
		ids = append(ids, id)
	}

	q := queue.New(ids)
	for _, e := range req.Entries {
		if e.Estimates == nil {
			q.Skip()
			continue
		}
		est, err := estimate.Merge(nil, e.Estimates.toInput(), 0)
		if err != nil {
			writeActionError(w, err)
			return
		}
		q.Collect(est)
	}

	errs := q.Launch(r.Context(), h.sync)
	failures := make([]string, 0, len(errs))
	for _, err := range errs {
		failures = append(failures, err.Error())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"started":  len(req.Entries) - len(errs),
		"failures": failures,
	})
}

type racesResponse struct {
	Races []models.ActiveRace `json:"races"`
	// DuplicatePersonIDs names persons with more than one running race,
	// the leftover of two clients starting them concurrently. An admin
	// resolves it by stopping one.
	DuplicatePersonIDs []uuid.UUID `json:"duplicate_person_ids,omitempty"`
}

// HandleListRaces handles GET /api/races.
func (h *ActionHandler) HandleListRaces(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, racesResponse{
		Races:              h.sync.Cache().ActiveRaces(),
		DuplicatePersonIDs: h.sync.Cache().DuplicateRacePersons(),
	})
}

// deltaView is one estimate comparison on the wire: how far behind the
// estimate, negative when ahead.
type deltaView struct {
	BehindMs  int64  `json:"behind_ms"`
	Ahead     bool   `json:"ahead"`
	Formatted string `json:"formatted"`
}

func newDeltaView(d race.Delta) *deltaView {
	return &deltaView{
		BehindMs:  d.Behind.Milliseconds(),
		Ahead:     d.Ahead(),
		Formatted: timefmt.Format(d.Magnitude()),
	}
}

type raceDetailResponse struct {
	models.ActiveRace
	ElapsedMs    int64                           `json:"elapsed_ms"`
	SegmentDelta *deltaView                      `json:"segment_delta,omitempty"`
	TotalDelta   *deltaView                      `json:"total_delta,omitempty"`
	SplitDeltas  map[models.Discipline]deltaView `json:"split_deltas,omitempty"`
}

// HandleGetRace handles GET /api/races/{id}: the live race document plus
// its estimate comparisons, computed at request time.
func (h *ActionHandler) HandleGetRace(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	doc, ok := h.sync.Cache().ActiveRaceByID(id)
	if !ok {
		writeActionError(w, activerace.ErrRaceNotFound)
		return
	}

	now := h.sync.Now()
	resp := raceDetailResponse{
		ActiveRace: doc,
		ElapsedMs:  now.Sub(doc.StartTime).Milliseconds(),
	}
	if d, ok := race.CurrentSegmentDelta(doc, now); ok {
		resp.SegmentDelta = newDeltaView(d)
	}
	if d, ok := race.TotalDelta(doc, now); ok {
		resp.TotalDelta = newDeltaView(d)
	}
	for _, disc := range models.Disciplines {
		if d, ok := race.SplitDelta(doc, disc); ok {
			if resp.SplitDeltas == nil {
				resp.SplitDeltas = make(map[models.Discipline]deltaView)
			}
			resp.SplitDeltas[disc] = *newDeltaView(d)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleTakeSplit handles POST /api/races/{id}/split.
func (h *ActionHandler) HandleTakeSplit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	split, completed, err := h.sync.TakeSplit(r.Context(), id)
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, splitResponse{
		Discipline: split.Discipline,
		TimeMs:     split.Time.Milliseconds(),
		Formatted:  timefmt.Format(split.Time),
		Completed:  completed,
	})
}

// HandleUpdateEstimates handles PUT /api/races/{id}/estimates.
func (h *ActionHandler) HandleUpdateEstimates(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req estimateInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	est, err := h.sync.UpdateEstimates(r.Context(), id, req.toInput())
	if err != nil {
		writeActionError(w, err)
		return
	}
	if est == nil {
		est = &models.EstimatedSplits{}
	}
	writeJSON(w, http.StatusOK, est)
}

// HandleStopRace handles DELETE /api/races/{id}. The race is discarded
// without writing a result.
func (h *ActionHandler) HandleStopRace(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.sync.StopRace(r.Context(), id); err != nil {
		writeActionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListResults handles GET /api/results.
func (h *ActionHandler) HandleListResults(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sync.Cache().Results())
}

// HandleDeleteResult handles DELETE /api/results/{id}.
func (h *ActionHandler) HandleDeleteResult(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.sync.DeleteResult(r.Context(), id); err != nil {
		writeActionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type upsertUserRequest struct {
	ID   string      `json:"id,omitempty"`
	Name string      `json:"name"`
	Role models.Role `json:"role"`
}

// HandleListUsers handles GET /api/users. Admin only.
func (h *ActionHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	if !identity.FromContext(r.Context()).IsAdmin() {
		writeActionError(w, activerace.ErrPermissionDenied)
		return
	}
	writeJSON(w, http.StatusOK, h.sync.Cache().Users())
}

// HandleUpsertUser handles POST /api/users.
func (h *ActionHandler) HandleUpsertUser(w http.ResponseWriter, r *http.Request) {
	var req upsertUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	switch req.Role {
	case models.RoleGuest, models.RoleUser, models.RoleAdmin:
	default:
		http.Error(w, "invalid role", http.StatusBadRequest)
		return
	}

	u := models.User{Name: req.Name, Role: req.Role}
	if req.ID != "" {
		id, err := uuid.Parse(req.ID)
		if err != nil {
			http.Error(w, "invalid id", http.StatusBadRequest)
			return
		}
		u.ID = id
	}

	created, err := h.sync.UpsertUser(r.Context(), u)
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// HandleLeaderboard handles GET /api/leaderboard. Sort column and direction
// come from the sort and desc query parameters.
func (h *ActionHandler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	rk := leaderboard.NewRanker()
	if s := r.URL.Query().Get("sort"); s != "" {
		key := leaderboard.SortKey(s)
		switch key {
		case leaderboard.SortKeyTotal, leaderboard.SortKeyTreadmill,
			leaderboard.SortKeySkiErg, leaderboard.SortKeyRowing:
		default:
			http.Error(w, "invalid sort key", http.StatusBadRequest)
			return
		}
		rk.SetSort(key, r.URL.Query().Get("desc") == "true")
	}

	results := h.sync.Cache().Results()
	rows := rk.Rank(results, h.sync.Cache().ActiveRaces())
	tiers := leaderboard.ComputeTiers(results)

	out := make([]leaderboardRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, toWireRow(row, tiers))
	}
	key, desc := rk.Sort()
	writeJSON(w, http.StatusOK, leaderboardResponse{Sort: key, Descending: desc, Rows: out})
}

// HandleExportResults handles GET /api/results/export as a CSV download.
func (h *ActionHandler) HandleExportResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.store.ListResults(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list results for export")
		http.Error(w, "failed to export results", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="results.csv"`)
	if err := interchange.Export(w, results); err != nil {
		log.Error().Err(err).Msg("failed to write results export")
	}
}

// HandleImportResults handles POST /api/results/import with a CSV body.
// Rows whose result ID already exists are skipped, so re-importing the same
// file is harmless.
func (h *ActionHandler) HandleImportResults(w http.ResponseWriter, r *http.Request) {
	if !identity.FromContext(r.Context()).IsAdmin() {
		writeActionError(w, activerace.ErrPermissionDenied)
		return
	}

	stats, err := interchange.Import(r.Context(), r.Body, h.store)
	if err != nil {
		log.Error().Err(err).Msg("failed to import results")
		http.Error(w, "invalid import file", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// RegisterRoutes registers the operator action routes.
func (h *ActionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/persons", h.HandleListPersons)
	mux.HandleFunc("POST /api/persons", h.HandleCreatePerson)
	mux.HandleFunc("DELETE /api/persons/{id}", h.HandleDeletePerson)

	mux.HandleFunc("GET /api/races", h.HandleListRaces)
	mux.HandleFunc("GET /api/races/{id}", h.HandleGetRace)
	mux.HandleFunc("POST /api/races", h.HandleStartRace)
	mux.HandleFunc("POST /api/races/mass-start", h.HandleMassStart)
	mux.HandleFunc("POST /api/races/{id}/split", h.HandleTakeSplit)
	mux.HandleFunc("PUT /api/races/{id}/estimates", h.HandleUpdateEstimates)
	mux.HandleFunc("DELETE /api/races/{id}", h.HandleStopRace)

	mux.HandleFunc("GET /api/results", h.HandleListResults)
	mux.HandleFunc("DELETE /api/results/{id}", h.HandleDeleteResult)
	mux.HandleFunc("GET /api/results/export", h.HandleExportResults)
	mux.HandleFunc("POST /api/results/import", h.HandleImportResults)

	mux.HandleFunc("GET /api/users", h.HandleListUsers)
	mux.HandleFunc("POST /api/users", h.HandleUpsertUser)

	mux.HandleFunc("GET /api/leaderboard", h.HandleLeaderboard)
}

func toWireRow(row leaderboard.Row, tiers leaderboard.Tiers) leaderboardRow {
	out := leaderboardRow{
		ID:          row.ID.String(),
		PersonID:    row.PersonID.String(),
		PersonName:  row.PersonName,
		TotalMs:     row.Total.Milliseconds(),
		Total:       timefmt.Format(row.Total),
		Provisional: row.Provisional,
	}
	if row.Treadmill != leaderboard.NoTime {
		out.TreadmillMs = millisPtr(row.Treadmill)
		out.Treadmill = timefmt.Format(row.Treadmill)
		out.Speed = timefmt.TreadmillSpeed(row.Treadmill)
	}
	if row.SkiErg != leaderboard.NoTime {
		out.SkiErgMs = millisPtr(row.SkiErg)
		out.SkiErg = timefmt.Format(timefmt.PacePer500(row.SkiErg, timefmt.SkiErgDistanceM))
	}
	if row.Rowing != leaderboard.NoTime {
		out.RowingMs = millisPtr(row.Rowing)
		out.Rowing = timefmt.Format(timefmt.PacePer500(row.Rowing, timefmt.RowingDistanceM))
	}
	for i, d := range models.Disciplines {
		out.Tiers[i] = int(tiers.TierFor(d, row.SplitTime(d)))
	}
	return out
}

func millisPtr(d time.Duration) *int64 {
	ms := d.Milliseconds()
	return &ms
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// writeActionError maps domain errors onto HTTP status codes.
func writeActionError(w http.ResponseWriter, err error) {
	var ve *estimate.ValidationError
	switch {
	case errors.Is(err, activerace.ErrPermissionDenied):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, activerace.ErrDuplicateActiveRace):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, race.ErrRaceCompleted):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, activerace.ErrRaceNotFound),
		errors.Is(err, activerace.ErrPersonNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &ve), errors.Is(err, timefmt.ErrInvalidDuration):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		log.Error().Err(err).Msg("operator action failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
