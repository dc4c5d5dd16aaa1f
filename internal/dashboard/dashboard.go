// Package dashboard computes the delay overview shown on the landing
// page: for every live (order, design) combo, how far the combo has
// moved down the pipeline and how late it is against the per-stage
// thresholds.
package dashboard

import (
	"sort"
	"strings"
	"time"

	"milltrack/internal/config"
	"milltrack/internal/mill"
	"milltrack/internal/models"
	"milltrack/internal/store"
)

// Stage names as shown on the dashboard, in pipeline order.
const (
	StageWarping    = "Warping"
	StageSizing     = "Sizing"
	StageBeamOnLoom = "Beam on Loom"
	StageGrey       = "Grey Production"
	StageComplete   = "Complete"
)

// StageDates holds the date each stage first touched a combo. Empty
// means the stage has not started.
type StageDates struct {
	Warping    string `json:"warping"`
	Sizing     string `json:"sizing"`
	BeamOnLoom string `json:"beam_on_loom"`
	Grey       string `json:"grey"`
}

// ComboStatus is one dashboard row.
type ComboStatus struct {
	OrderNo       string     `json:"order_no"`
	DesignNo      string     `json:"design_no"`
	Quality       string     `json:"quality"`
	PartyName     string     `json:"party_name"`
	OfficeDate    string     `json:"office_date"`
	CurrentStage  string     `json:"current_stage"`
	DaysSinceDate int        `json:"days_since_order"`
	DelayDays     int        `json:"delay_days"`
	Stages        StageDates `json:"stages"`
}

// Summary is the headline block above the delay table.
type Summary struct {
	LiveOrders         int     `json:"live_orders"`
	LiveCombos         int     `json:"live_combos"`
	DelayedCombos      int     `json:"delayed_combos"`
	ActiveBeams        int     `json:"active_beams"`
	WarpingEfficiency  float64 `json:"mean_warping_efficiency"`
	GreyProducedMeters float64 `json:"grey_produced_meters"`
}

var dateLayouts = []string{"2006-01-02", "2006-01-02 15:04:05", "02-01-2006", "02/01/2006"}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if len(s) > 10 && (s[10] == 'T' || s[10] == ' ') {
		s = s[:10]
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func comboKey(orderNo, designNo string) string {
	return orderNo + "|" + designNo
}

// keepEarliest records date under key if it is the first seen or
// earlier than the current entry. Dates are compared after parsing so
// mixed layouts still order correctly.
func keepEarliest(m map[string]time.Time, key, date string) {
	t, ok := parseDate(date)
	if !ok {
		return
	}
	if cur, seen := m[key]; !seen || t.Before(cur) {
		m[key] = t
	}
}

func formatDate(m map[string]time.Time, key string) string {
	if t, ok := m[key]; ok {
		return t.Format("2006-01-02")
	}
	return ""
}

// Statuses computes one row per live combo, in orderbook order with
// duplicates collapsed.
func Statuses(s *store.Store, cfg *config.Config, now time.Time) []ComboStatus {
	orders := store.Load[models.Order](s, store.Orderbook)

	// Earliest stage date per combo key, and the beam -> combo map used
	// to attribute sizing and loom events back to an order.
	warpDates := make(map[string]time.Time)
	sizingDates := make(map[string]time.Time)
	loomDates := make(map[string]time.Time)
	greyByDesign := make(map[string]time.Time)
	beamCombo := make(map[string]string)

	for _, wp := range store.Load[models.WarpingProduction](s, store.WarpingProduction) {
		key := comboKey(wp.OrderNo, wp.DesignNo)
		beamCombo[wp.BeamNo] = key
		keepEarliest(warpDates, key, wp.StartDatetime)
	}
	for _, sp := range store.Load[models.SizingProduction](s, store.SizingProduction) {
		if key, ok := beamCombo[sp.BeamNo]; ok {
			keepEarliest(sizingDates, key, sp.StartDatetime)
		}
	}
	for _, ev := range store.Load[models.BeamEvent](s, store.BeamOnLoom) {
		if key, ok := beamCombo[ev.BeamNo]; ok {
			keepEarliest(loomDates, key, ev.Timestamp)
		}
	}
	for _, gp := range store.Load[models.GreyProduction](s, store.GreyProduction) {
		keepEarliest(greyByDesign, gp.DesignNo, gp.Date)
	}

	seen := make(map[string]struct{})
	var rows []ComboStatus
	for _, o := range orders {
		key := comboKey(o.OrderNo, o.DesignNo)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		row := ComboStatus{
			OrderNo:    o.OrderNo,
			DesignNo:   o.DesignNo,
			Quality:    o.Quality,
			PartyName:  o.PartyName,
			OfficeDate: o.OfficeDate,
			Stages: StageDates{
				Warping:    formatDate(warpDates, key),
				Sizing:     formatDate(sizingDates, key),
				BeamOnLoom: formatDate(loomDates, key),
				Grey:       formatDate(greyByDesign, o.DesignNo),
			},
		}

		officeDate, ok := parseDate(o.OfficeDate)
		if ok {
			row.DaysSinceDate = int(now.Sub(officeDate).Hours() / 24)
		}

		stage, threshold := currentStage(row.Stages, cfg)
		row.CurrentStage = stage
		if stage != StageComplete && ok {
			if d := row.DaysSinceDate - threshold; d > 0 {
				row.DelayDays = d
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// currentStage is the first stage without a date, with its threshold in
// days. A combo with all four dates is complete and never delayed.
func currentStage(d StageDates, cfg *config.Config) (string, int) {
	switch {
	case d.Warping == "":
		return StageWarping, cfg.StageThresholds.Warping
	case d.Sizing == "":
		return StageSizing, cfg.StageThresholds.Sizing
	case d.BeamOnLoom == "":
		return StageBeamOnLoom, cfg.StageThresholds.BeamOnLoom
	case d.Grey == "":
		return StageGrey, cfg.StageThresholds.Grey
	default:
		return StageComplete, 0
	}
}

// Delayed filters and sorts the rows shown on the dashboard: combos
// delayed at least the configured cutoff, worst first.
func Delayed(s *store.Store, cfg *config.Config, now time.Time) []ComboStatus {
	var delayed []ComboStatus
	for _, row := range Statuses(s, cfg, now) {
		if row.DelayDays >= cfg.DelayCutoffDays {
			delayed = append(delayed, row)
		}
	}
	sort.SliceStable(delayed, func(i, j int) bool {
		if delayed[i].DelayDays != delayed[j].DelayDays {
			return delayed[i].DelayDays > delayed[j].DelayDays
		}
		if delayed[i].OrderNo != delayed[j].OrderNo {
			return delayed[i].OrderNo < delayed[j].OrderNo
		}
		return delayed[i].DesignNo < delayed[j].DesignNo
	})
	return delayed
}

// Summarize computes the headline numbers.
func Summarize(s *store.Store, cfg *config.Config, now time.Time) Summary {
	rows := Statuses(s, cfg, now)

	orderSet := make(map[string]struct{})
	delayed := 0
	for _, row := range rows {
		orderSet[row.OrderNo] = struct{}{}
		if row.DelayDays >= cfg.DelayCutoffDays {
			delayed++
		}
	}

	var effSum float64
	effCount := 0
	for _, wp := range store.Load[models.WarpingProduction](s, store.WarpingProduction) {
		if wp.Efficiency > 0 {
			effSum += wp.Efficiency
			effCount++
		}
	}
	meanEff := 0.0
	if effCount > 0 {
		meanEff = mill.Round2(effSum / float64(effCount))
	}

	var greyMeters float64
	for _, gp := range store.Load[models.GreyProduction](s, store.GreyProduction) {
		greyMeters += gp.ProductionMeters
	}

	return Summary{
		LiveOrders:         len(orderSet),
		LiveCombos:         len(rows),
		DelayedCombos:      delayed,
		ActiveBeams:        mill.ActiveBeams(s),
		WarpingEfficiency:  meanEff,
		GreyProducedMeters: mill.Round2(greyMeters),
	}
}
