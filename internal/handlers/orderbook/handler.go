// Package orderbook manages the order master: workbook import, listing,
// export, and closing finished orders out of the live book.
package orderbook

import (
	"database/sql"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"milltrack/internal/audit"
	"milltrack/internal/handlers/common"
	"milltrack/internal/mill"
	"milltrack/internal/models"
	"milltrack/internal/response"
	"milltrack/internal/store"
	"milltrack/internal/validation"
	"milltrack/internal/websocket"
)

// Handler holds dependencies for orderbook handlers.
type Handler struct {
	DB    *sql.DB
	Store *store.Store
	Hub   *websocket.Hub
}

// RequiredColumns are the workbook headings an orderbook upload must
// carry, in export order.
var RequiredColumns = []string{
	"Office Date", "Office Order No", "Date of Office", "Temp. Order No.",
	"Order No.", "Combo No.", "Design No.", "Yarn Dyeing Plant",
	"Yarn Dyeing Date", "Yarn Dyeing Order No.", "Quality",
	"Factory Order (Meters)", "Warping Location", "Weaving Location",
	"Warp Count", "Weft Count", "Reed", "Pick", "RS on Loom", "Weave",
	"Shafts", "Warp Shades", "Weft Shades", "Party Name",
	"Party Quantity (Meters)", "Finishing Requirements", "Selvedge",
	"Delivery Date",
}

// List handles GET /api/v1/orderbook.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orders := store.Load[models.Order](h.Store, store.Orderbook)
	if orderNo := r.URL.Query().Get("order_no"); orderNo != "" {
		var filtered []models.Order
		for _, o := range orders {
			if o.OrderNo == orderNo {
				filtered = append(filtered, o)
			}
		}
		orders = filtered
	}
	if orders == nil {
		orders = []models.Order{}
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if page > 0 && limit > 0 {
		total := len(orders)
		start := (page - 1) * limit
		if start > total {
			start = total
		}
		end := start + limit
		if end > total {
			end = total
		}
		response.JSONMeta(w, orders[start:end], total, page, limit)
		return
	}
	response.JSON(w, orders)
}

// ListClosed handles GET /api/v1/orderbook/closed.
func (h *Handler) ListClosed(w http.ResponseWriter, r *http.Request) {
	closed := store.Load[models.Order](h.Store, store.OrdersClosed)
	if closed == nil {
		closed = []models.Order{}
	}
	response.JSON(w, closed)
}

// Orders handles GET /api/v1/orderbook/orders: distinct order numbers
// for the entry form dropdowns.
func (h *Handler) Orders(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, mill.OrderNumbers(h.Store))
}

// Designs handles GET /api/v1/orderbook/designs?order_no=...
func (h *Handler) Designs(w http.ResponseWriter, r *http.Request) {
	orderNo := r.URL.Query().Get("order_no")
	if orderNo == "" {
		response.Err(w, "order_no is required", 400)
		return
	}
	response.JSON(w, mill.DesignsByOrder(h.Store, orderNo))
}

// Import handles POST /api/v1/orderbook/import: a multipart .xlsx
// upload appended to the live book. The whole workbook is rejected when
// any column is missing or any row duplicates an existing combo.
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
	for _, col := range RequiredColumns {
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
	num := func(row []string, col string) float64 {
		v, _ := strconv.ParseFloat(cell(row, col), 64)
		return v
	}

	now := time.Now().Format(common.TimestampLayout)
	var incoming []models.Order
	for _, row := range rows[1:] {
		o := models.Order{
			OfficeDate:        cell(row, "Office Date"),
			OfficeOrderNo:     cell(row, "Office Order No"),
			DateOfOffice:      cell(row, "Date of Office"),
			TempOrderNo:       cell(row, "Temp. Order No."),
			OrderNo:           cell(row, "Order No."),
			ComboNo:           cell(row, "Combo No."),
			DesignNo:          cell(row, "Design No."),
			YarnDyeingPlant:   cell(row, "Yarn Dyeing Plant"),
			YarnDyeingDate:    cell(row, "Yarn Dyeing Date"),
			YarnDyeingOrderNo: cell(row, "Yarn Dyeing Order No."),
			Quality:           cell(row, "Quality"),
			FactoryOrderM:     num(row, "Factory Order (Meters)"),
			WarpingLocation:   cell(row, "Warping Location"),
			WeavingLocation:   cell(row, "Weaving Location"),
			WarpCount:         cell(row, "Warp Count"),
			WeftCount:         cell(row, "Weft Count"),
			Reed:              cell(row, "Reed"),
			Pick:              cell(row, "Pick"),
			RSOnLoom:          cell(row, "RS on Loom"),
			Weave:             cell(row, "Weave"),
			Shafts:            cell(row, "Shafts"),
			WarpShades:        cell(row, "Warp Shades"),
			WeftShades:        cell(row, "Weft Shades"),
			PartyName:         cell(row, "Party Name"),
			PartyQuantityM:    num(row, "Party Quantity (Meters)"),
			FinishingReqs:     cell(row, "Finishing Requirements"),
			Selvedge:          cell(row, "Selvedge"),
			DeliveryDate:      cell(row, "Delivery Date"),
			Timestamp:         now,
			UploadFilename:    header.Filename,
		}
		if o.OrderNo == "" && o.DesignNo == "" {
			continue
		}
		incoming = append(incoming, o)
	}
	if len(incoming) == 0 {
		response.Err(w, "workbook has no data rows", 400)
		return
	}

	err = store.Update(h.Store, store.Orderbook, func(existing []models.Order) ([]models.Order, error) {
		seen := make(map[string]struct{}, len(existing))
		for _, o := range existing {
			seen[o.OrderNo+"|"+o.DesignNo] = struct{}{}
		}
		var dupes []string
		for _, o := range incoming {
			key := o.OrderNo + "|" + o.DesignNo
			if _, dup := seen[key]; dup {
				dupes = append(dupes, fmt.Sprintf("%s/%s", o.OrderNo, o.DesignNo))
				continue
			}
			seen[key] = struct{}{}
		}
		if len(dupes) > 0 {
			return nil, fmt.Errorf("combos already in orderbook: %s", strings.Join(dupes, ", "))
		}
		return append(existing, incoming...), nil
	})
	if err != nil {
		response.Err(w, err.Error(), 400)
		return
	}

	audit.LogRequest(h.DB, h.Hub, r, audit.ActionImport, store.Orderbook, header.Filename,
		fmt.Sprintf("Imported %d orderbook rows from %s", len(incoming), header.Filename))
	response.JSON(w, map[string]interface{}{"imported": len(incoming)})
}

// Close handles POST /api/v1/orderbook/close: moves the named combos
// from the live book to orders_closed.
func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Combos []struct {
			OrderNo  string `json:"order_no"`
			DesignNo string `json:"design_no"`
		} `json:"combos"`
	}
	if err := response.DecodeBody(r, &req); err != nil || len(req.Combos) == 0 {
		response.Err(w, "combos are required", 400)
		return
	}

	want := make(map[string]struct{}, len(req.Combos))
	for _, c := range req.Combos {
		if c.OrderNo == "" || c.DesignNo == "" {
			response.Err(w, "each combo needs order_no and design_no", 400)
			return
		}
		want[c.OrderNo+"|"+c.DesignNo] = struct{}{}
	}

	var moved []models.Order
	err := store.Update(h.Store, store.Orderbook, func(orders []models.Order) ([]models.Order, error) {
		var kept []models.Order
		for _, o := range orders {
			if _, closing := want[o.OrderNo+"|"+o.DesignNo]; closing {
				moved = append(moved, o)
			} else {
				kept = append(kept, o)
			}
		}
		if len(moved) == 0 {
			return nil, fmt.Errorf("no matching combos in orderbook")
		}
		return kept, nil
	})
	if err != nil {
		response.Err(w, err.Error(), 400)
		return
	}

	err = store.Update(h.Store, store.OrdersClosed, func(closed []models.Order) ([]models.Order, error) {
		return append(closed, moved...), nil
	})
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	audit.LogRequest(h.DB, h.Hub, r, audit.ActionUpdate, store.Orderbook, "",
		fmt.Sprintf("Closed %d orderbook rows", len(moved)))
	response.JSON(w, map[string]interface{}{"closed": len(moved)})
}

// Delete handles DELETE /api/v1/orderbook: removes one combo from the
// live book outright.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	orderNo := r.URL.Query().Get("order_no")
	designNo := r.URL.Query().Get("design_no")
	if orderNo == "" || designNo == "" {
		response.Err(w, "order_no and design_no are required", 400)
		return
	}

	removed := 0
	err := store.Update(h.Store, store.Orderbook, func(orders []models.Order) ([]models.Order, error) {
		var kept []models.Order
		for _, o := range orders {
			if o.OrderNo == orderNo && o.DesignNo == designNo {
				removed++
				continue
			}
			kept = append(kept, o)
		}
		if removed == 0 {
			return nil, fmt.Errorf("combo %s/%s not found", orderNo, designNo)
		}
		return kept, nil
	})
	if err != nil {
		response.Err(w, err.Error(), 404)
		return
	}

	audit.LogRequest(h.DB, h.Hub, r, audit.ActionDelete, store.Orderbook, orderNo+"/"+designNo,
		fmt.Sprintf("Deleted combo %s/%s from orderbook", orderNo, designNo))
	response.JSON(w, map[string]interface{}{"deleted": removed})
}

// Export handles GET /api/v1/orderbook/export?format=csv|xlsx.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "xlsx"
	}

	orders := store.Load[models.Order](h.Store, store.Orderbook)
	data := make([][]string, 0, len(orders))
	for _, o := range orders {
		data = append(data, []string{
			o.OfficeDate, o.OfficeOrderNo, o.DateOfOffice, o.TempOrderNo,
			o.OrderNo, o.ComboNo, o.DesignNo, o.YarnDyeingPlant,
			o.YarnDyeingDate, o.YarnDyeingOrderNo, o.Quality,
			strconv.FormatFloat(o.FactoryOrderM, 'f', -1, 64),
			o.WarpingLocation, o.WeavingLocation, o.WarpCount, o.WeftCount,
			o.Reed, o.Pick, o.RSOnLoom, o.Weave, o.Shafts, o.WarpShades,
			o.WeftShades, o.PartyName,
			strconv.FormatFloat(o.PartyQuantityM, 'f', -1, 64),
			o.FinishingReqs, o.Selvedge, o.DeliveryDate,
		})
	}

	audit.LogRequest(h.DB, h.Hub, r, audit.ActionExport, store.Orderbook, "",
		fmt.Sprintf("Exported %d orderbook rows as %s", len(data), format))

	if format == "csv" {
		common.ExportCSV(w, "orderbook.csv", RequiredColumns, data)
	} else {
		common.ExportExcel(w, "Orderbook", RequiredColumns, data)
	}
}
