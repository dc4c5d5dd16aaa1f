// Package mill implements the production pipeline's core rules: which
// beams and looms are eligible for each stage, the beam-on-loom status
// sequence, and quantity reconciliation against the orderbook. All
// functions are total; a lookup miss yields an empty result, never an
// error.
package mill

import (
	"milltrack/internal/models"
	"milltrack/internal/store"
)

// Beam lifecycle statuses, in strict forward order. A beam mounted on a
// loom walks this sequence one step per submission; Beam End is
// terminal.
const (
	BeamStart            = "Beam Start"
	KnottingDrawingStart = "Knotting/Drawing Start"
	KnottingDrawingEnd   = "Knotting/Drawing End"
	GettingStart         = "Getting Start"
	GettingEnd           = "Getting End"
	QCStart              = "QC Start"
	QCEnd                = "QC End"
	BeamEnd              = "Beam End"
)

// StatusFlow is the fixed lifecycle sequence.
var StatusFlow = []string{
	BeamStart,
	KnottingDrawingStart,
	KnottingDrawingEnd,
	GettingStart,
	GettingEnd,
	QCStart,
	QCEnd,
	BeamEnd,
}

// NextStatus returns the only valid status after current. An empty or
// unrecognized current status maps to Beam Start; Beam End is terminal
// and returns "".
func NextStatus(current string) string {
	for i, s := range StatusFlow {
		if s == current {
			if i == len(StatusFlow)-1 {
				return ""
			}
			return StatusFlow[i+1]
		}
	}
	return BeamStart
}

// latestEventFor returns the most recent beam_on_loom event matching
// keep, by timestamp string comparison (timestamps sort lexically in
// both stored formats).
func latestEventFor(events []models.BeamEvent, keep func(models.BeamEvent) bool) (models.BeamEvent, bool) {
	var best models.BeamEvent
	found := false
	for _, e := range events {
		if !keep(e) {
			continue
		}
		if !found || e.Timestamp > best.Timestamp {
			best = e
			found = true
		}
	}
	return best, found
}

// CurrentStatusForBeam returns the beam's current lifecycle status: the
// status of its most recent event, or "" if it has none.
func CurrentStatusForBeam(s *store.Store, beamNo string) string {
	events := store.Load[models.BeamEvent](s, store.BeamOnLoom)
	e, ok := latestEventFor(events, func(e models.BeamEvent) bool { return e.BeamNo == beamNo })
	if !ok {
		return ""
	}
	return e.Status
}

// CurrentBeamForLoom returns the beam currently mounted on a loom: the
// most recently initiated beam for that loom, or "" if none exists or
// that beam has reached Beam End.
func CurrentBeamForLoom(s *store.Store, loomNo int) string {
	initiations := store.Load[models.InitiateBeam](s, store.InitiateBeam)
	var latest models.InitiateBeam
	found := false
	for _, r := range initiations {
		if r.LoomNo != loomNo {
			continue
		}
		if !found || r.Timestamp > latest.Timestamp {
			latest = r
			found = true
		}
	}
	if !found {
		return ""
	}
	if CurrentStatusForBeam(s, latest.BeamNo) == BeamEnd {
		return ""
	}
	return latest.BeamNo
}

// NextStatusForLoom computes the next valid status submission for the
// loom's current beam. Returns "" when the loom has no active beam, or
// when the beam is terminal.
func NextStatusForLoom(s *store.Store, loomNo int) string {
	beamNo := CurrentBeamForLoom(s, loomNo)
	if beamNo == "" {
		return ""
	}
	return NextStatus(CurrentStatusForBeam(s, beamNo))
}

// NextStatusForBeam computes the next valid status submission for a
// beam, independent of which loom carries it. A beam with no events yet
// starts at Beam Start; a terminal beam returns "".
func NextStatusForBeam(s *store.Store, beamNo string) string {
	return NextStatus(CurrentStatusForBeam(s, beamNo))
}

// HasActiveInitiation reports whether the (location, loom) pair carries
// an initiation whose beam has not yet reached Beam End.
func HasActiveInitiation(s *store.Store, location string, loomNo int) bool {
	initiations := store.Load[models.InitiateBeam](s, store.InitiateBeam)
	for _, r := range initiations {
		if r.Location != location || r.LoomNo != loomNo {
			continue
		}
		if CurrentStatusForBeam(s, r.BeamNo) != BeamEnd {
			return true
		}
	}
	return false
}
