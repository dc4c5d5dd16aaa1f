package mill

import (
	"math"
	"time"

	"milltrack/internal/models"
	"milltrack/internal/store"
)

// QuantityCheck is the result of reconciling a proposed warping
// quantity against the orderbook.
type QuantityCheck struct {
	Existing float64 `json:"existing"`
	Allowed  float64 `json:"allowed"`
	OK       bool    `json:"ok"`
}

// ValidateQuantity checks that the cumulative warped quantity for an
// (order, design) combo, including the proposed entry, does not exceed
// the combo's total factory order meters. The boundary is inclusive:
// warping exactly up to the order quantity is allowed.
func ValidateQuantity(s *store.Store, orderNo, designNo string, proposed float64) QuantityCheck {
	warping := store.Load[models.WarpingProduction](s, store.WarpingProduction)
	orderbook := store.Load[models.Order](s, store.Orderbook)

	var existing float64
	for _, r := range warping {
		if r.OrderNo == orderNo && r.DesignNo == designNo {
			existing += r.Quantity
		}
	}

	var allowed float64
	for _, o := range orderbook {
		if o.OrderNo == orderNo && o.DesignNo == designNo {
			allowed += o.FactoryOrderM
		}
	}

	return QuantityCheck{
		Existing: existing,
		Allowed:  allowed,
		OK:       existing+proposed <= allowed,
	}
}

// TotalOrderQuantity sums the factory order meters for an
// (order, design) combo across the live orderbook.
func TotalOrderQuantity(s *store.Store, orderNo, designNo string) float64 {
	var total float64
	for _, o := range store.Load[models.Order](s, store.Orderbook) {
		if o.OrderNo == orderNo && o.DesignNo == designNo {
			total += o.FactoryOrderM
		}
	}
	return total
}

// Round2 rounds to two decimal places, the precision every denormalized
// metric is stored at.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// SessionTimeMinutes is the wall time of a warping session.
func SessionTimeMinutes(start, end time.Time) float64 {
	return end.Sub(start).Minutes()
}

// WarpingTimeMinutes is the machine's theoretical running time for a
// session: meters per RPM across all sections, plus five minutes lost
// per breakage. The constants are specific to this mill's warping
// machines.
func WarpingTimeMinutes(quantity, rpm, sections, breakages float64) float64 {
	if rpm == 0 {
		return 0
	}
	return (quantity/rpm)*sections + breakages*5
}

// WarpingEfficiency relates theoretical to actual session time, with a
// fixed 30-minute setup allowance.
func WarpingEfficiency(warpingTime, sessionTime float64) float64 {
	if sessionTime == 0 {
		return 0
	}
	return Round2((warpingTime + 30) / sessionTime * 100)
}
