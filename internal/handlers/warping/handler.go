// Package warping covers the first stage of the pipeline: warping
// production entries and dispatch of finished beams to sizing.
package warping

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

// Handler holds dependencies for warping handlers.
type Handler struct {
	DB    *sql.DB
	Store *store.Store
	Hub   *websocket.Hub
}

// ListProduction handles GET /api/v1/warping/production.
func (h *Handler) ListProduction(w http.ResponseWriter, r *http.Request) {
	records := store.Load[models.WarpingProduction](h.Store, store.WarpingProduction)
	if records == nil {
		records = []models.WarpingProduction{}
	}
	response.JSON(w, records)
}

// CreateProduction handles POST /api/v1/warping/production. The entry
// is rejected when the beam number is already taken or the quantity
// would push the combo past its order total.
func (h *Handler) CreateProduction(w http.ResponseWriter, r *http.Request) {
	var p models.WarpingProduction
	if err := response.DecodeBody(r, &p); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}

	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "order_no", p.OrderNo)
	validation.RequireField(ve, "design_no", p.DesignNo)
	validation.RequireField(ve, "beam_no", p.BeamNo)
	validation.RequireField(ve, "machine_no", p.MachineNo)
	validation.RequireField(ve, "warper_name", p.WarperName)
	validation.RequireField(ve, "start_datetime", p.StartDatetime)
	validation.RequireField(ve, "end_datetime", p.EndDatetime)
	validation.ValidatePositiveFloat(ve, "quantity", p.Quantity)
	validation.ValidateMaxQuantity(ve, "quantity", p.Quantity)
	validation.ValidatePositiveFloat(ve, "rpm", p.RPM)
	validation.ValidatePositiveFloat(ve, "sections", p.Sections)
	validation.ValidateNonNegativeFloat(ve, "breakages", p.Breakages)
	validation.ValidateDatetime(ve, "start_datetime", p.StartDatetime)
	validation.ValidateDatetime(ve, "end_datetime", p.EndDatetime)
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
	validation.ValidateNotFuture(ve, "end_datetime", end, time.Now())
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	if _, ok := mill.OrderRow(h.Store, p.OrderNo, p.DesignNo); !ok {
		response.Err(w, fmt.Sprintf("combo %s/%s not in orderbook", p.OrderNo, p.DesignNo), 400)
		return
	}

	check := mill.ValidateQuantity(h.Store, p.OrderNo, p.DesignNo, p.Quantity)
	if !check.OK {
		response.Err(w, fmt.Sprintf("quantity exceeds order total: %.2f already warped of %.2f allowed",
			check.Existing, check.Allowed), 400)
		return
	}

	p.TotalOrderQuantity = check.Allowed
	p.WarpingTimeMinutes = mill.WarpingTimeMinutes(p.Quantity, p.RPM, p.Sections, p.Breakages)
	sessionTime := mill.SessionTimeMinutes(start, end)
	p.Efficiency = mill.WarpingEfficiency(p.WarpingTimeMinutes, sessionTime)
	p.Timestamp = time.Now().Format(common.TimestampLayout)

	err := store.Update(h.Store, store.WarpingProduction, func(records []models.WarpingProduction) ([]models.WarpingProduction, error) {
		for _, existing := range records {
			if existing.BeamNo == p.BeamNo {
				return nil, fmt.Errorf("beam %s already recorded in warping production", p.BeamNo)
			}
		}
		// Re-check under the collection lock: another entry may have
		// landed since the pre-check.
		var used float64
		for _, existing := range records {
			if existing.OrderNo == p.OrderNo && existing.DesignNo == p.DesignNo {
				used += existing.Quantity
			}
		}
		if used+p.Quantity > check.Allowed {
			return nil, fmt.Errorf("quantity exceeds order total: %.2f already warped of %.2f allowed", used, check.Allowed)
		}
		return append(records, p), nil
	})
	if err != nil {
		response.Err(w, err.Error(), 400)
		return
	}

	audit.LogRequest(h.DB, h.Hub, r, audit.ActionCreate, store.WarpingProduction, p.BeamNo,
		fmt.Sprintf("Warped beam %s for %s/%s (%.2f m)", p.BeamNo, p.OrderNo, p.DesignNo, p.Quantity))
	response.JSON(w, p)
}

// AvailableBeams handles GET /api/v1/warping/available-beams: beams
// warped but not yet dispatched to sizing.
func (h *Handler) AvailableBeams(w http.ResponseWriter, r *http.Request) {
	beams := mill.BeamsForWarpingDispatch(h.Store)
	if beams == nil {
		beams = []string{}
	}
	response.JSON(w, beams)
}

// BeamDetails handles GET /api/v1/warping/beam?beam_no=...: warping
// context for a beam shown in downstream forms.
func (h *Handler) BeamDetails(w http.ResponseWriter, r *http.Request) {
	beamNo := r.URL.Query().Get("beam_no")
	if beamNo == "" {
		response.Err(w, "beam_no is required", 400)
		return
	}
	details, ok := mill.ProductionDetails(h.Store, beamNo)
	if !ok {
		response.Err(w, "beam not found", 404)
		return
	}
	response.JSON(w, details)
}

// QuantityBalance handles GET /api/v1/warping/quantity?order_no=...&design_no=...:
// how much of the combo's order total is still unwarped.
func (h *Handler) QuantityBalance(w http.ResponseWriter, r *http.Request) {
	orderNo := r.URL.Query().Get("order_no")
	designNo := r.URL.Query().Get("design_no")
	if orderNo == "" || designNo == "" {
		response.Err(w, "order_no and design_no are required", 400)
		return
	}
	check := mill.ValidateQuantity(h.Store, orderNo, designNo, 0)
	response.JSON(w, map[string]float64{
		"allowed":   check.Allowed,
		"warped":    check.Existing,
		"remaining": check.Allowed - check.Existing,
	})
}

// ListDispatch handles GET /api/v1/warping/dispatch.
func (h *Handler) ListDispatch(w http.ResponseWriter, r *http.Request) {
	records := store.Load[models.WarpingDispatch](h.Store, store.WarpingDispatch)
	if records == nil {
		records = []models.WarpingDispatch{}
	}
	response.JSON(w, records)
}

// CreateDispatch handles POST /api/v1/warping/dispatch. One record per
// beam: a repeat submission for the same beam updates it in place.
func (h *Handler) CreateDispatch(w http.ResponseWriter, r *http.Request) {
	var d models.WarpingDispatch
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

	if _, ok := mill.ProductionDetails(h.Store, d.BeamNo); !ok {
		response.Err(w, fmt.Sprintf("beam %s not found in warping production", d.BeamNo), 400)
		return
	}

	d.Timestamp = time.Now().Format(common.TimestampLayout)
	action := audit.ActionCreate
	err := store.Update(h.Store, store.WarpingDispatch, func(records []models.WarpingDispatch) ([]models.WarpingDispatch, error) {
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

	audit.LogRequest(h.DB, h.Hub, r, action, store.WarpingDispatch, d.BeamNo,
		fmt.Sprintf("Warping dispatch for beam %s: %s", d.BeamNo, d.DispatchStatus))
	response.JSON(w, d)
}

// Export handles GET /api/v1/warping/export?format=csv|xlsx.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}

	headers := []string{"Order No", "Design No", "Beam No", "Machine No", "Quantity",
		"Warper", "Start", "End", "RPM", "Sections", "Breakages",
		"Warping Time (min)", "Efficiency (%)", "Comments"}
	records := store.Load[models.WarpingProduction](h.Store, store.WarpingProduction)
	data := make([][]string, 0, len(records))
	for _, p := range records {
		data = append(data, []string{
			p.OrderNo, p.DesignNo, p.BeamNo, p.MachineNo,
			fmt.Sprintf("%.2f", p.Quantity), p.WarperName,
			p.StartDatetime, p.EndDatetime,
			fmt.Sprintf("%.0f", p.RPM), fmt.Sprintf("%.0f", p.Sections),
			fmt.Sprintf("%.0f", p.Breakages),
			fmt.Sprintf("%.2f", p.WarpingTimeMinutes),
			fmt.Sprintf("%.2f", p.Efficiency), p.Comments,
		})
	}

	audit.LogRequest(h.DB, h.Hub, r, audit.ActionExport, store.WarpingProduction, "",
		fmt.Sprintf("Exported %d warping records as %s", len(data), format))

	if format == "xlsx" {
		common.ExportExcel(w, "WarpingProduction", headers, data)
	} else {
		common.ExportCSV(w, "warping_production.csv", headers, data)
	}
}
