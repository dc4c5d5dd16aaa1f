package mill

import (
	"milltrack/internal/models"
	"milltrack/internal/store"
)

// BeamDetails is the warping context for a beam, shown when the beam is
// picked in a downstream form.
type BeamDetails struct {
	OrderNo   string  `json:"order_no"`
	DesignNo  string  `json:"design_no"`
	Quantity  float64 `json:"quantity"`
	MachineNo string  `json:"machine_no"`
	Warper    string  `json:"warper_name"`
	Sections  float64 `json:"sections"`
	Breakages float64 `json:"breakages"`
}

// ProductionDetails looks up the warping record for beamNo. The second
// return is false when the beam was never warped.
func ProductionDetails(s *store.Store, beamNo string) (BeamDetails, bool) {
	for _, wp := range store.Load[models.WarpingProduction](s, store.WarpingProduction) {
		if wp.BeamNo == beamNo {
			return BeamDetails{
				OrderNo:   wp.OrderNo,
				DesignNo:  wp.DesignNo,
				Quantity:  wp.Quantity,
				MachineNo: wp.MachineNo,
				Warper:    wp.WarperName,
				Sections:  wp.Sections,
				Breakages: wp.Breakages,
			}, true
		}
	}
	return BeamDetails{}, false
}

// LoomDesign is the design running on a loom, resolved through the
// loom's latest initiation and the orderbook.
type LoomDesign struct {
	BeamNo   string `json:"beam_no"`
	DesignNo string `json:"design_no"`
	OrderNo  string `json:"order_no"`
	Reed     string `json:"reed"`
	Pick     string `json:"pick"`
}

// LatestLoomDesign resolves what a loom at a location is currently
// weaving: latest initiation for the loom, its beam's warping record,
// and the matching orderbook row for reed and pick. Missing links leave
// the corresponding fields empty.
func LatestLoomDesign(s *store.Store, location string, loomNo int) (LoomDesign, bool) {
	var latest models.InitiateBeam
	found := false
	for _, ib := range store.Load[models.InitiateBeam](s, store.InitiateBeam) {
		if ib.LoomNo != loomNo || ib.Location != location {
			continue
		}
		if !found || ib.Timestamp > latest.Timestamp {
			latest = ib
			found = true
		}
	}
	if !found {
		return LoomDesign{}, false
	}

	d := LoomDesign{BeamNo: latest.BeamNo}
	if bd, ok := ProductionDetails(s, latest.BeamNo); ok {
		d.DesignNo = bd.DesignNo
		d.OrderNo = bd.OrderNo
	}
	for _, o := range store.Load[models.Order](s, store.Orderbook) {
		if o.OrderNo == d.OrderNo && o.DesignNo == d.DesignNo {
			d.Reed = o.Reed
			d.Pick = o.Pick
			break
		}
	}
	return d, true
}

// DesignsByOrder lists the distinct design numbers on an order, sorted.
func DesignsByOrder(s *store.Store, orderNo string) []string {
	set := make(map[string]struct{})
	for _, o := range store.Load[models.Order](s, store.Orderbook) {
		if o.OrderNo == orderNo {
			set[o.DesignNo] = struct{}{}
		}
	}
	return sortedKeys(set)
}

// OrderNumbers lists the distinct order numbers in the orderbook,
// sorted.
func OrderNumbers(s *store.Store) []string {
	set := make(map[string]struct{})
	for _, o := range store.Load[models.Order](s, store.Orderbook) {
		set[o.OrderNo] = struct{}{}
	}
	return sortedKeys(set)
}

// OrderRow finds the orderbook row for an (order, design) combo.
func OrderRow(s *store.Store, orderNo, designNo string) (models.Order, bool) {
	for _, o := range store.Load[models.Order](s, store.Orderbook) {
		if o.OrderNo == orderNo && o.DesignNo == designNo {
			return o, true
		}
	}
	return models.Order{}, false
}
