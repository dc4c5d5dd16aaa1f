// Package beam covers the beam-on-loom stage: initiating a sized beam
// onto a loom and walking it through the fixed lifecycle to Beam End.
package beam

import (
	"database/sql"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"milltrack/internal/audit"
	"milltrack/internal/config"
	"milltrack/internal/handlers/common"
	"milltrack/internal/mill"
	"milltrack/internal/models"
	"milltrack/internal/response"
	"milltrack/internal/store"
	"milltrack/internal/validation"
	"milltrack/internal/websocket"
)

// Handler holds dependencies for beam-on-loom handlers.
type Handler struct {
	DB     *sql.DB
	Store  *store.Store
	Hub    *websocket.Hub
	Config *config.Config
}

// Locations handles GET /api/v1/beam/locations.
func (h *Handler) Locations(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, h.Config.Locations())
}

// AvailableBeams handles GET /api/v1/beam/available-beams/{location}:
// sized-and-dispatched beams not yet put on a loom, restricted to beams
// whose order weaves at the location.
func (h *Handler) AvailableBeams(w http.ResponseWriter, r *http.Request, location string) {
	beams := mill.BeamsForLocation(h.Store, location)
	if beams == nil {
		beams = []string{}
	}
	response.JSON(w, beams)
}

// AvailableLooms handles GET /api/v1/beam/available-looms/{location}:
// configured looms with no beam currently running.
func (h *Handler) AvailableLooms(w http.ResponseWriter, r *http.Request, location string) {
	looms := mill.LoomsForLocation(h.Store, location, h.Config.LoomsForLocation(location))
	if looms == nil {
		looms = []int{}
	}
	response.JSON(w, looms)
}

// ActiveLooms handles GET /api/v1/beam/active-looms/{location}: looms
// with a beam mid-lifecycle, the ones expecting a status update.
func (h *Handler) ActiveLooms(w http.ResponseWriter, r *http.Request, location string) {
	looms := mill.ActiveLoomsForLocation(h.Store, location, h.Config.LoomsForLocation(location))
	if looms == nil {
		looms = []int{}
	}
	response.JSON(w, looms)
}

// ListInitiations handles GET /api/v1/beam/initiate.
func (h *Handler) ListInitiations(w http.ResponseWriter, r *http.Request) {
	records := store.Load[models.InitiateBeam](h.Store, store.InitiateBeam)
	if records == nil {
		records = []models.InitiateBeam{}
	}
	response.JSON(w, records)
}

// Initiate handles POST /api/v1/beam/initiate: binds a beam to a
// (location, loom) pair. A beam is initiated once, and a loom carries
// one beam at a time.
func (h *Handler) Initiate(w http.ResponseWriter, r *http.Request) {
	var ib models.InitiateBeam
	if err := response.DecodeBody(r, &ib); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}

	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "location", ib.Location)
	validation.RequireField(ve, "beam_no", ib.BeamNo)
	validation.ValidatePositiveInt(ve, "loom_no", ib.LoomNo)
	validation.RequireField(ve, "start_datetime", ib.StartDatetime)
	validation.ValidateDatetime(ve, "start_datetime", ib.StartDatetime)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	loomKnown := false
	for _, loom := range h.Config.LoomsForLocation(ib.Location) {
		if loom == ib.LoomNo {
			loomKnown = true
			break
		}
	}
	if !loomKnown {
		response.Err(w, fmt.Sprintf("loom %d is not installed at %s", ib.LoomNo, ib.Location), 400)
		return
	}

	available := false
	for _, beam := range mill.BeamsForLocation(h.Store, ib.Location) {
		if beam == ib.BeamNo {
			available = true
			break
		}
	}
	if !available {
		response.Err(w, fmt.Sprintf("beam %s is not available for %s", ib.BeamNo, ib.Location), 400)
		return
	}

	if mill.HasActiveInitiation(h.Store, ib.Location, ib.LoomNo) {
		response.Err(w, fmt.Sprintf("loom %d at %s already has an active beam", ib.LoomNo, ib.Location), 400)
		return
	}

	ib.Timestamp = time.Now().Format(common.TimestampLayout)
	err := store.Update(h.Store, store.InitiateBeam, func(records []models.InitiateBeam) ([]models.InitiateBeam, error) {
		for _, existing := range records {
			if existing.BeamNo == ib.BeamNo {
				return nil, fmt.Errorf("beam %s already initiated", ib.BeamNo)
			}
		}
		return append(records, ib), nil
	})
	if err != nil {
		response.Err(w, err.Error(), 400)
		return
	}

	audit.LogRequest(h.DB, h.Hub, r, audit.ActionCreate, store.InitiateBeam, ib.BeamNo,
		fmt.Sprintf("Initiated beam %s on loom %d at %s", ib.BeamNo, ib.LoomNo, ib.Location))
	response.JSON(w, ib)
}

// ListEvents handles GET /api/v1/beam/status with optional beam_no and
// loom_no filters.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events := store.Load[models.BeamEvent](h.Store, store.BeamOnLoom)
	beamNo := r.URL.Query().Get("beam_no")
	loomNo := r.URL.Query().Get("loom_no")

	var filtered []models.BeamEvent
	for _, ev := range events {
		if beamNo != "" && ev.BeamNo != beamNo {
			continue
		}
		if loomNo != "" && strconv.Itoa(ev.LoomNo) != loomNo {
			continue
		}
		filtered = append(filtered, ev)
	}
	if filtered == nil {
		filtered = []models.BeamEvent{}
	}
	response.JSON(w, filtered)
}

// RecordStatus handles POST /api/v1/beam/status: appends the next
// lifecycle event for the beam on a loom. The submitted status must be
// exactly the one the lifecycle expects next.
func (h *Handler) RecordStatus(w http.ResponseWriter, r *http.Request) {
	var ev models.BeamEvent
	if err := response.DecodeBody(r, &ev); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}

	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "location", ev.Location)
	validation.ValidatePositiveInt(ve, "loom_no", ev.LoomNo)
	validation.RequireField(ve, "status", ev.Status)
	validation.RequireField(ve, "role", ev.Role)
	validation.RequireField(ve, "name", ev.Name)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	beamNo := mill.CurrentBeamForLoom(h.Store, ev.LoomNo)
	if beamNo == "" {
		response.Err(w, fmt.Sprintf("loom %d has no active beam", ev.LoomNo), 400)
		return
	}
	if ev.BeamNo != "" && ev.BeamNo != beamNo {
		response.Err(w, fmt.Sprintf("loom %d is running beam %s, not %s", ev.LoomNo, beamNo, ev.BeamNo), 400)
		return
	}
	ev.BeamNo = beamNo

	expected := mill.NextStatusForBeam(h.Store, beamNo)
	if expected == "" {
		response.Err(w, fmt.Sprintf("beam %s has already ended", beamNo), 400)
		return
	}
	if ev.Status != expected {
		response.Err(w, fmt.Sprintf("invalid status %q: beam %s expects %q next", ev.Status, beamNo, expected), 400)
		return
	}

	now := time.Now()
	if ev.Timestamp == "" {
		ev.Timestamp = now.Format(common.TimestampLayout)
	} else {
		t, err := common.ParseTimestamp(ev.Timestamp)
		if err != nil {
			response.Err(w, "timestamp "+err.Error(), 400)
			return
		}
		if t.After(now) {
			response.Err(w, "timestamp cannot be in the future", 400)
			return
		}
		// Normalized so lexicographic ordering stays consistent.
		ev.Timestamp = t.Format(common.TimestampLayout)
	}

	err := store.Update(h.Store, store.BeamOnLoom, func(events []models.BeamEvent) ([]models.BeamEvent, error) {
		return append(events, ev), nil
	})
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	audit.LogRequest(h.DB, h.Hub, r, audit.ActionCreate, store.BeamOnLoom, beamNo,
		fmt.Sprintf("Beam %s on loom %d: %s by %s (%s)", beamNo, ev.LoomNo, ev.Status, ev.Name, ev.Role))
	response.JSON(w, ev)
}

// NextStatus handles GET /api/v1/beam/next-status?loom_no=... (or
// beam_no=...): the lifecycle status the next submission must carry.
func (h *Handler) NextStatus(w http.ResponseWriter, r *http.Request) {
	if beamNo := r.URL.Query().Get("beam_no"); beamNo != "" {
		response.JSON(w, map[string]string{
			"beam_no":     beamNo,
			"next_status": mill.NextStatusForBeam(h.Store, beamNo),
		})
		return
	}
	loomStr := r.URL.Query().Get("loom_no")
	loomNo, err := strconv.Atoi(loomStr)
	if err != nil || loomNo <= 0 {
		response.Err(w, "loom_no or beam_no is required", 400)
		return
	}
	response.JSON(w, map[string]string{
		"beam_no":     mill.CurrentBeamForLoom(h.Store, loomNo),
		"next_status": mill.NextStatusForLoom(h.Store, loomNo),
	})
}

// LoomLatest handles GET /api/v1/beam/loom/{loom_no}/latest: what the
// loom is currently weaving.
func (h *Handler) LoomLatest(w http.ResponseWriter, r *http.Request, loomStr string) {
	loomNo, err := strconv.Atoi(loomStr)
	if err != nil || loomNo <= 0 {
		response.Err(w, "invalid loom number", 400)
		return
	}
	location := r.URL.Query().Get("location")
	if location == "" {
		response.Err(w, "location is required", 400)
		return
	}
	design, ok := mill.LatestLoomDesign(h.Store, location, loomNo)
	if !ok {
		response.Err(w, fmt.Sprintf("loom %d at %s has no initiated beam", loomNo, location), 404)
		return
	}
	response.JSON(w, design)
}
