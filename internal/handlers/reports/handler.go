// Package reports serves the dashboard endpoints: delay table, per-combo
// stage statuses, and the headline summary.
package reports

import (
	"database/sql"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"milltrack/internal/config"
	"milltrack/internal/dashboard"
	"milltrack/internal/handlers/common"
	"milltrack/internal/response"
	"milltrack/internal/store"
	"milltrack/internal/websocket"
)

// Handler holds dependencies for dashboard handlers.
type Handler struct {
	DB     *sql.DB
	Store  *store.Store
	Hub    *websocket.Hub
	Config *config.Config
}

// Delayed handles GET /api/v1/dashboard/delayed: combos past the delay
// cutoff, worst first.
func (h *Handler) Delayed(w http.ResponseWriter, r *http.Request) {
	rows := dashboard.Delayed(h.Store, h.Config, time.Now())
	if rows == nil {
		rows = []dashboard.ComboStatus{}
	}
	response.JSON(w, rows)
}

// Statuses handles GET /api/v1/dashboard/statuses: every live combo
// with its stage dates and delay.
func (h *Handler) Statuses(w http.ResponseWriter, r *http.Request) {
	rows := dashboard.Statuses(h.Store, h.Config, time.Now())
	if rows == nil {
		rows = []dashboard.ComboStatus{}
	}
	response.JSON(w, rows)
}

// Summary handles GET /api/v1/dashboard/summary.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, dashboard.Summarize(h.Store, h.Config, time.Now()))
}

// ExportDelayed handles GET /api/v1/dashboard/export: the delay table
// as a spreadsheet for the morning meeting.
func (h *Handler) ExportDelayed(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "xlsx"
	}

	headers := []string{"Order No", "Design No", "Quality", "Party",
		"Office Date", "Current Stage", "Days Since Order", "Delay (Days)"}
	rows := dashboard.Delayed(h.Store, h.Config, time.Now())
	data := make([][]string, 0, len(rows))
	for _, row := range rows {
		data = append(data, []string{
			row.OrderNo, row.DesignNo, row.Quality, row.PartyName,
			row.OfficeDate, row.CurrentStage,
			strconv.Itoa(row.DaysSinceDate),
			fmt.Sprintf("%d", row.DelayDays),
		})
	}

	if format == "csv" {
		common.ExportCSV(w, "delayed_combos.csv", headers, data)
	} else {
		common.ExportExcel(w, "DelayedCombos", headers, data)
	}
}
