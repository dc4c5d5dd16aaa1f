// Package sizing covers the second stage: sizing runs on dispatched
// warping beams and dispatch of sized beams to the weaving floor.
package sizing

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"milltrack/internal/audit"
	"milltrack/internal/handlers/common"
	"milltrack/internal/mill"
	"milltrack/internal/models"
	"milltrack/internal/response"
	"milltrack/internal/store"
	"milltrack/internal/validation"
	"milltrack/internal/websocket"
)

// Handler holds dependencies for sizing handlers.
type Handler struct {
	DB    *sql.DB
	Store *store.Store
	Hub   *websocket.Hub
}

// AvailableBeams handles GET /api/v1/sizing/available-beams: beams
// dispatched from warping and not yet sized.
func (h *Handler) AvailableBeams(w http.ResponseWriter, r *http.Request) {
	beams := mill.BeamsForSizing(h.Store)
	if beams == nil {
		beams = []string{}
	}
	response.JSON(w, beams)
}

// ListProduction handles GET /api/v1/sizing/production.
func (h *Handler) ListProduction(w http.ResponseWriter, r *http.Request) {
	records := store.Load[models.SizingProduction](h.Store, store.SizingProduction)
	if records == nil {
		records = []models.SizingProduction{}
	}
	response.JSON(w, records)
}

// CreateProduction handles POST /api/v1/sizing/production. A beam is
// sized at most once.
func (h *Handler) CreateProduction(w http.ResponseWriter, r *http.Request) {
	var p models.SizingProduction
	if err := response.DecodeBody(r, &p); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}

	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "beam_no", p.BeamNo)
	validation.RequireField(ve, "sizer_name", p.SizerName)
	validation.RequireField(ve, "status", p.Status)
	validation.ValidateEnum(ve, "status", p.Status, validation.ValidSizingStatuses)
	validation.RequireField(ve, "start_datetime", p.StartDatetime)
	validation.RequireField(ve, "end_datetime", p.EndDatetime)
	validation.ValidateDatetime(ve, "start_datetime", p.StartDatetime)
	validation.ValidateDatetime(ve, "end_datetime", p.EndDatetime)
	validation.ValidateNonNegativeFloat(ve, "rf", p.RF)
	// Moisture is a percentage reading off the sizing machine.
	validation.ValidateFloatRange(ve, "moisture", p.Moisture, 0, 100)
	validation.ValidateNonNegativeFloat(ve, "speed", p.Speed)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	start, _ := validation.ParseDatetime(p.StartDatetime)
	end, _ := validation.ParseDatetime(p.EndDatetime)
	if !end.After(start) {
		response.Err(w, "end_datetime must be after start_datetime", 400)
		return
	}

	dispatched := false
	for _, beam := range mill.BeamsForSizing(h.Store) {
		if beam == p.BeamNo {
			dispatched = true
			break
		}
	}
	if !dispatched {
		response.Err(w, fmt.Sprintf("beam %s is not awaiting sizing", p.BeamNo), 400)
		return
	}

	p.Timestamp = time.Now().Format(common.TimestampLayout)
	err := store.Update(h.Store, store.SizingProduction, func(records []models.SizingProduction) ([]models.SizingProduction, error) {
		for _, existing := range records {
			if existing.BeamNo == p.BeamNo {
				return nil, fmt.Errorf("beam %s already sized", p.BeamNo)
			}
		}
		return append(records, p), nil
	})
	if err != nil {
		response.Err(w, err.Error(), 400)
		return
	}

	audit.LogRequest(h.DB, h.Hub, r, audit.ActionCreate, store.SizingProduction, p.BeamNo,
		fmt.Sprintf("Sized beam %s (%s)", p.BeamNo, p.Status))
	response.JSON(w, p)
}

// AvailableDispatch handles GET /api/v1/sizing/available-dispatch:
// beams sized successfully and not yet dispatched to weaving.
func (h *Handler) AvailableDispatch(w http.ResponseWriter, r *http.Request) {
	beams := mill.BeamsForSizingDispatch(h.Store)
	if beams == nil {
		beams = []string{}
	}
	response.JSON(w, beams)
}

// ListDispatch handles GET /api/v1/sizing/dispatch.
func (h *Handler) ListDispatch(w http.ResponseWriter, r *http.Request) {
	records := store.Load[models.SizingDispatch](h.Store, store.SizingDispatch)
	if records == nil {
		records = []models.SizingDispatch{}
	}
	response.JSON(w, records)
}

// CreateDispatch handles POST /api/v1/sizing/dispatch. Upsert by beam
// number, same as warping dispatch.
func (h *Handler) CreateDispatch(w http.ResponseWriter, r *http.Request) {
	var d models.SizingDispatch
	if err := response.DecodeBody(r, &d); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}

	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "beam_no", d.BeamNo)
	validation.RequireField(ve, "date", d.Date)
	validation.ValidateDate(ve, "date", d.Date)
	validation.RequireField(ve, "dispatch_status", d.DispatchStatus)
	validation.ValidateEnum(ve, "dispatch_status", d.DispatchStatus, validation.ValidDispatchStatuses)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	sized := false
	for _, sp := range store.Load[models.SizingProduction](h.Store, store.SizingProduction) {
		if sp.BeamNo == d.BeamNo {
			sized = true
			break
		}
	}
	if !sized {
		response.Err(w, fmt.Sprintf("beam %s not found in sizing production", d.BeamNo), 400)
		return
	}

	d.Timestamp = time.Now().Format(common.TimestampLayout)
	action := audit.ActionCreate
	err := store.Update(h.Store, store.SizingDispatch, func(records []models.SizingDispatch) ([]models.SizingDispatch, error) {
		for i, existing := range records {
			if existing.BeamNo == d.BeamNo {
				records[i] = d
				action = audit.ActionUpdate
				return records, nil
			}
		}
		return append(records, d), nil
	})
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	audit.LogRequest(h.DB, h.Hub, r, action, store.SizingDispatch, d.BeamNo,
		fmt.Sprintf("Sizing dispatch for beam %s: %s", d.BeamNo, d.DispatchStatus))
	response.JSON(w, d)
}

// Export handles GET /api/v1/sizing/export?format=csv|xlsx.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}

	headers := []string{"Beam No", "Status", "Sizer", "Start", "End", "RF", "Moisture", "Speed", "Comments"}
	records := store.Load[models.SizingProduction](h.Store, store.SizingProduction)
	data := make([][]string, 0, len(records))
	for _, p := range records {
		data = append(data, []string{
			p.BeamNo, p.Status, p.SizerName, p.StartDatetime, p.EndDatetime,
			fmt.Sprintf("%.2f", p.RF), fmt.Sprintf("%.2f", p.Moisture),
			fmt.Sprintf("%.2f", p.Speed), p.Comments,
		})
	}

	audit.LogRequest(h.DB, h.Hub, r, audit.ActionExport, store.SizingProduction, "",
		fmt.Sprintf("Exported %d sizing records as %s", len(data), format))

	if format == "xlsx" {
		common.ExportExcel(w, "SizingProduction", headers, data)
	} else {
		common.ExportCSV(w, "sizing_production.csv", headers, data)
	}
}
