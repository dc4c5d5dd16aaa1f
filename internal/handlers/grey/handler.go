// Package grey covers the final stage: grey fabric piece imports,
// dispatch of pieces, and per-shift loom production entries.
package grey

import (
	"database/sql"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

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

// Handler holds dependencies for grey production handlers.
type Handler struct {
	DB     *sql.DB
	Store  *store.Store
	Hub    *websocket.Hub
	Config *config.Config
}

// ImportColumns are the workbook headings a grey production upload must
// carry.
var ImportColumns = []string{
	"Date", "Piece No.", "Loom No.", "Design No.",
	"Grey Production (Meters)", "Grey Production (Weight)", "Remarks",
}

// AvailableBeams handles GET /api/v1/grey/available-beams: beams that
// finished QC and whose design has no grey production yet.
func (h *Handler) AvailableBeams(w http.ResponseWriter, r *http.Request) {
	beams := mill.BeamsForGreyProduction(h.Store)
	if beams == nil {
		beams = []string{}
	}
	response.JSON(w, beams)
}

// AvailableLooms handles GET /api/v1/grey/available-looms/{location}:
// looms whose current beam passed QC, ready for grey entries.
func (h *Handler) AvailableLooms(w http.ResponseWriter, r *http.Request, location string) {
	looms := mill.LoomsForGreyEntry(h.Store, location)
	if looms == nil {
		looms = []int{}
	}
	response.JSON(w, looms)
}

// ListProduction handles GET /api/v1/grey/production.
func (h *Handler) ListProduction(w http.ResponseWriter, r *http.Request) {
	records := store.Load[models.GreyProduction](h.Store, store.GreyProduction)
	if records == nil {
		records = []models.GreyProduction{}
	}
	response.JSON(w, records)
}

// Import handles POST /api/v1/grey/import: a multipart .xlsx of piece
// records. Every row must pass validation or nothing is saved.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		response.Err(w, "file is required", 400)
		return
	}
	defer file.Close()

	ve := &validation.ValidationErrors{}
	validation.ValidateUploadFilename(ve, header.Filename)
	validation.ValidateUploadSize(ve, header.Size)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	f, err := excelize.OpenReader(file)
	if err != nil {
		response.Err(w, "could not read workbook: "+err.Error(), 400)
		return
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil || len(rows) < 2 {
		response.Err(w, "workbook has no data rows", 400)
		return
	}

	colIdx := make(map[string]int)
	for i, name := range rows[0] {
		colIdx[strings.TrimSpace(name)] = i
	}
	var missing []string
	for _, col := range ImportColumns {
		if _, ok := colIdx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		response.Err(w, "missing columns: "+strings.Join(missing, ", "), 400)
		return
	}

	cell := func(row []string, col string) string {
		i := colIdx[col]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	today := time.Now()
	now := today.Format(common.TimestampLayout)
	var incoming []models.GreyProduction
	var rowErrs []string
	batch := make(map[string]struct{})

	for n, row := range rows[1:] {
		rowNo := n + 2
		fail := func(msg string) {
			rowErrs = append(rowErrs, fmt.Sprintf("row %d: %s", rowNo, msg))
		}

		pieceNo := strings.ToUpper(cell(row, "Piece No."))
		if pieceNo == "" {
			fail("piece number is empty")
			continue
		}
		if _, dup := batch[pieceNo]; dup {
			fail(fmt.Sprintf("piece %s repeated in workbook", pieceNo))
			continue
		}
		batch[pieceNo] = struct{}{}

		date := cell(row, "Date")
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			fail("date must be YYYY-MM-DD")
			continue
		}
		if parsed.After(today) {
			fail("date cannot be in the future")
			continue
		}

		loomStr := cell(row, "Loom No.")
		if !validation.IsLoomNumber(loomStr) {
			fail(fmt.Sprintf("loom number %q is not numeric", loomStr))
			continue
		}
		loomNo, _ := strconv.Atoi(loomStr)

		meters, err := strconv.ParseFloat(cell(row, "Grey Production (Meters)"), 64)
		if err != nil || meters <= 0 {
			fail("production meters must be a positive number")
			continue
		}
		weight, err := strconv.ParseFloat(cell(row, "Grey Production (Weight)"), 64)
		if err != nil || weight <= 0 {
			fail("production weight must be a positive number")
			continue
		}

		incoming = append(incoming, models.GreyProduction{
			Date:             date,
			PieceNo:          pieceNo,
			LoomNo:           loomNo,
			DesignNo:         cell(row, "Design No."),
			ProductionMeters: meters,
			ProductionWeight: weight,
			Remarks:          cell(row, "Remarks"),
			Timestamp:        now,
		})
	}
	if len(rowErrs) > 0 {
		response.Err(w, strings.Join(rowErrs, "; "), 400)
		return
	}
	if len(incoming) == 0 {
		response.Err(w, "workbook has no data rows", 400)
		return
	}

	err = store.Update(h.Store, store.GreyProduction, func(existing []models.GreyProduction) ([]models.GreyProduction, error) {
		seen := make(map[string]struct{}, len(existing))
		for _, gp := range existing {
			seen[gp.PieceNo] = struct{}{}
		}
		var dupes []string
		for _, gp := range incoming {
			if _, dup := seen[gp.PieceNo]; dup {
				dupes = append(dupes, gp.PieceNo)
			}
		}
		if len(dupes) > 0 {
			return nil, fmt.Errorf("pieces already recorded: %s", strings.Join(dupes, ", "))
		}
		return append(existing, incoming...), nil
	})
	if err != nil {
		response.Err(w, err.Error(), 400)
		return
	}

	audit.LogRequest(h.DB, h.Hub, r, audit.ActionImport, store.GreyProduction, header.Filename,
		fmt.Sprintf("Imported %d grey pieces from %s", len(incoming), header.Filename))
	response.JSON(w, map[string]interface{}{"imported": len(incoming)})
}

// ListDispatch handles GET /api/v1/grey/dispatch.
func (h *Handler) ListDispatch(w http.ResponseWriter, r *http.Request) {
	records := store.Load[models.GreyDispatch](h.Store, store.GreyDispatch)
	if records == nil {
		records = []models.GreyDispatch{}
	}
	response.JSON(w, records)
}

// Dispatch handles POST /api/v1/grey/dispatch: copies the named pieces
// from production into the dispatch register. A piece dispatches once.
func (h *Handler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PieceNos        []string `json:"piece_nos"`
		DispatchDate    string   `json:"dispatch_date"`
		DispatchRemarks string   `json:"dispatch_remarks"`
	}
	if err := response.DecodeBody(r, &req); err != nil || len(req.PieceNos) == 0 {
		response.Err(w, "piece_nos are required", 400)
		return
	}

	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "dispatch_date", req.DispatchDate)
	validation.ValidateDate(ve, "dispatch_date", req.DispatchDate)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	produced := make(map[string]models.GreyProduction)
	for _, gp := range store.Load[models.GreyProduction](h.Store, store.GreyProduction) {
		produced[gp.PieceNo] = gp
	}

	now := time.Now().Format(common.TimestampLayout)
	var outgoing []models.GreyDispatch
	for _, raw := range req.PieceNos {
		pieceNo := strings.ToUpper(strings.TrimSpace(raw))
		gp, ok := produced[pieceNo]
		if !ok {
			response.Err(w, fmt.Sprintf("piece %s not found in grey production", pieceNo), 400)
			return
		}
		gd := models.GreyDispatch{
			GreyProduction:  gp,
			DispatchDate:    req.DispatchDate,
			DispatchRemarks: req.DispatchRemarks,
		}
		gd.Timestamp = now
		outgoing = append(outgoing, gd)
	}

	err := store.Update(h.Store, store.GreyDispatch, func(records []models.GreyDispatch) ([]models.GreyDispatch, error) {
		seen := make(map[string]struct{}, len(records))
		for _, gd := range records {
			seen[gd.PieceNo] = struct{}{}
		}
		for _, gd := range outgoing {
			if _, dup := seen[gd.PieceNo]; dup {
				return nil, fmt.Errorf("piece %s already dispatched", gd.PieceNo)
			}
		}
		return append(records, outgoing...), nil
	})
	if err != nil {
		response.Err(w, err.Error(), 400)
		return
	}

	audit.LogRequest(h.DB, h.Hub, r, audit.ActionCreate, store.GreyDispatch, "",
		fmt.Sprintf("Dispatched %d grey pieces on %s", len(outgoing), req.DispatchDate))
	response.JSON(w, map[string]interface{}{"dispatched": len(outgoing)})
}

// ListLoomProduction handles GET /api/v1/grey/loom-production.
func (h *Handler) ListLoomProduction(w http.ResponseWriter, r *http.Request) {
	records := store.Load[models.LoomProduction](h.Store, store.LoomProduction)
	if records == nil {
		records = []models.LoomProduction{}
	}
	response.JSON(w, records)
}

// CreateLoomProduction handles POST /api/v1/grey/loom-production: one
// shift's reading for a loom, with efficiency and meters derived from
// the reading.
func (h *Handler) CreateLoomProduction(w http.ResponseWriter, r *http.Request) {
	var p models.LoomProduction
	if err := response.DecodeBody(r, &p); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}

	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "date", p.Date)
	validation.ValidateDate(ve, "date", p.Date)
	validation.RequireField(ve, "shift", p.Shift)
	validation.ValidateEnum(ve, "shift", p.Shift, validation.ValidShifts)
	validation.RequireField(ve, "location", p.Location)
	validation.ValidatePositiveInt(ve, "loom_no", p.LoomNo)
	validation.ValidatePositiveFloat(ve, "rpm", p.RPM)
	validation.ValidatePositiveFloat(ve, "ppi", p.PPI)
	validation.ValidateNonNegativeFloat(ve, "reading", p.Reading)
	// 0 means "use the default shift length".
	validation.ValidateIntRange(ve, "shift_hours", p.ShiftHours, 0, 24)
	validation.ValidateIntRange(ve, "shift_minutes", p.ShiftMinutes, 0, 59)
	validation.ValidateMaxLength(ve, "comments", p.Comments, validation.MaxStringLength)
	validation.RequireField(ve, "weaver_name", p.WeaverName)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	if p.ShiftHours <= 0 {
		p.ShiftHours = 12
	}
	if p.Shift == "Day" {
		p.ShiftTiming = "08:00-20:00"
	} else {
		p.ShiftTiming = "20:00-08:00"
	}
	// shift_time is recorded in hours on the production sheets.
	p.ShiftTime = mill.Round2(float64(p.ShiftHours) + float64(p.ShiftMinutes)/60)

	if design, ok := mill.LatestLoomDesign(h.Store, p.Location, p.LoomNo); ok {
		if p.DesignNo == "" {
			p.DesignNo = design.DesignNo
		}
		if p.OrderNo == "" {
			p.OrderNo = design.OrderNo
		}
		if p.Reed == "" {
			p.Reed = design.Reed
		}
	}

	p.Efficiency = mill.LoomEfficiency(p.Reading, p.RPM, float64(p.ShiftHours))
	p.ProductionMeters = mill.LoomProductionMeters(p.Reading, p.PPI)
	p.LossMeters = mill.LoomLossMeters(p.RPM, p.PPI, p.Reading)
	p.Timestamp = time.Now().Format(common.TimestampLayout)

	err := store.Update(h.Store, store.LoomProduction, func(records []models.LoomProduction) ([]models.LoomProduction, error) {
		for _, existing := range records {
			if existing.Date == p.Date && existing.Shift == p.Shift && existing.LoomNo == p.LoomNo && existing.Location == p.Location {
				return nil, fmt.Errorf("loom %d already has a %s shift entry for %s", p.LoomNo, p.Shift, p.Date)
			}
		}
		return append(records, p), nil
	})
	if err != nil {
		response.Err(w, err.Error(), 400)
		return
	}

	audit.LogRequest(h.DB, h.Hub, r, audit.ActionCreate, store.LoomProduction,
		strconv.Itoa(p.LoomNo),
		fmt.Sprintf("Loom %d %s shift %s: %.2f m at %.2f%%", p.LoomNo, p.Shift, p.Date, p.ProductionMeters, p.Efficiency))
	response.JSON(w, p)
}

// Export handles GET /api/v1/grey/export?format=csv|xlsx.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}

	headers := []string{"Date", "Piece No.", "Loom No.", "Design No.",
		"Grey Production (Meters)", "Grey Production (Weight)", "Remarks"}
	records := store.Load[models.GreyProduction](h.Store, store.GreyProduction)
	data := make([][]string, 0, len(records))
	for _, gp := range records {
		data = append(data, []string{
			gp.Date, gp.PieceNo, strconv.Itoa(gp.LoomNo), gp.DesignNo,
			fmt.Sprintf("%.2f", gp.ProductionMeters),
			fmt.Sprintf("%.2f", gp.ProductionWeight), gp.Remarks,
		})
	}

	audit.LogRequest(h.DB, h.Hub, r, audit.ActionExport, store.GreyProduction, "",
		fmt.Sprintf("Exported %d grey pieces as %s", len(data), format))

	if format == "xlsx" {
		common.ExportExcel(w, "GreyProduction", headers, data)
	} else {
		common.ExportCSV(w, "grey_production.csv", headers, data)
	}
}
