package mill

import (
	"sort"
	"strings"

	"milltrack/internal/models"
	"milltrack/internal/store"
)

// DispatchYes marks a dispatch record as handed to the next stage.
const DispatchYes = "Yes"

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// BeamsForWarpingDispatch lists warped beams not yet dispatched to
// sizing.
func BeamsForWarpingDispatch(s *store.Store) []string {
	production := store.Load[models.WarpingProduction](s, store.WarpingProduction)
	dispatches := store.Load[models.WarpingDispatch](s, store.WarpingDispatch)

	dispatched := make(map[string]struct{})
	for _, d := range dispatches {
		if d.DispatchStatus == DispatchYes {
			dispatched[d.BeamNo] = struct{}{}
		}
	}

	available := make(map[string]struct{})
	for _, p := range production {
		if _, ok := dispatched[p.BeamNo]; !ok {
			available[p.BeamNo] = struct{}{}
		}
	}
	return sortedKeys(available)
}

// BeamsForSizing lists beams dispatched from warping that have not been
// sized yet. A beam is sized at most once.
func BeamsForSizing(s *store.Store) []string {
	dispatches := store.Load[models.WarpingDispatch](s, store.WarpingDispatch)
	sizing := store.Load[models.SizingProduction](s, store.SizingProduction)

	sized := make(map[string]struct{})
	for _, r := range sizing {
		sized[r.BeamNo] = struct{}{}
	}

	available := make(map[string]struct{})
	for _, d := range dispatches {
		if d.DispatchStatus != DispatchYes {
			continue
		}
		if _, ok := sized[d.BeamNo]; !ok {
			available[d.BeamNo] = struct{}{}
		}
	}
	return sortedKeys(available)
}

// BeamsForSizingDispatch lists sized beams not yet dispatched to
// weaving.
func BeamsForSizingDispatch(s *store.Store) []string {
	sizing := store.Load[models.SizingProduction](s, store.SizingProduction)
	dispatches := store.Load[models.SizingDispatch](s, store.SizingDispatch)

	dispatched := make(map[string]struct{})
	for _, d := range dispatches {
		if d.DispatchStatus == DispatchYes {
			dispatched[d.BeamNo] = struct{}{}
		}
	}

	available := make(map[string]struct{})
	for _, r := range sizing {
		if r.Status != DispatchYes {
			continue
		}
		if _, ok := dispatched[r.BeamNo]; !ok {
			available[r.BeamNo] = struct{}{}
		}
	}
	return sortedKeys(available)
}

// BeamsForLocation lists beams eligible for loom initiation at a
// weaving location: dispatched from sizing, not already initiated or on
// a loom, and admitted only when some orderbook record carries that
// Weaving Location. The location match is by location string alone, not
// the beam's own order identity, which mirrors how the mill actually
// assigns beams today.
func BeamsForLocation(s *store.Store, location string) []string {
	dispatches := store.Load[models.SizingDispatch](s, store.SizingDispatch)
	orderbook := store.Load[models.Order](s, store.Orderbook)
	events := store.Load[models.BeamEvent](s, store.BeamOnLoom)
	initiations := store.Load[models.InitiateBeam](s, store.InitiateBeam)

	dispatched := make(map[string]struct{})
	for _, d := range dispatches {
		if d.DispatchStatus == DispatchYes {
			dispatched[d.BeamNo] = struct{}{}
		}
	}

	used := make(map[string]struct{})
	for _, e := range events {
		used[e.BeamNo] = struct{}{}
	}
	for _, r := range initiations {
		used[r.BeamNo] = struct{}{}
	}

	locationKnown := false
	for _, o := range orderbook {
		if strings.TrimSpace(o.WeavingLocation) == strings.TrimSpace(location) {
			locationKnown = true
			break
		}
	}
	if !locationKnown {
		return nil
	}

	available := make(map[string]struct{})
	for b := range dispatched {
		if _, ok := used[b]; !ok {
			available[b] = struct{}{}
		}
	}
	return sortedKeys(available)
}

// LoomsForLocation lists loom numbers free for a new beam at a
// location: the configured looms minus looms whose latest beam event is
// non-terminal and looms with an active initiation there. allLooms is
// the configured set for the location.
func LoomsForLocation(s *store.Store, location string, allLooms []int) []int {
	events := store.Load[models.BeamEvent](s, store.BeamOnLoom)

	latest := make(map[int]models.BeamEvent)
	for _, e := range events {
		if prev, ok := latest[e.LoomNo]; !ok || e.Timestamp > prev.Timestamp {
			latest[e.LoomNo] = e
		}
	}

	used := make(map[int]struct{})
	for loom, e := range latest {
		if e.Status != BeamEnd {
			used[loom] = struct{}{}
		}
	}

	var available []int
	for _, loom := range allLooms {
		if _, ok := used[loom]; ok {
			continue
		}
		if HasActiveInitiation(s, location, loom) {
			continue
		}
		available = append(available, loom)
	}
	sort.Ints(available)
	return available
}

// ActiveLoomsForLocation lists looms at a location that currently carry
// a beam in a non-terminal state, i.e. looms expecting a status update.
func ActiveLoomsForLocation(s *store.Store, location string, allLooms []int) []int {
	events := store.Load[models.BeamEvent](s, store.BeamOnLoom)
	initiations := store.Load[models.InitiateBeam](s, store.InitiateBeam)

	configured := make(map[int]struct{}, len(allLooms))
	for _, l := range allLooms {
		configured[l] = struct{}{}
	}

	latest := make(map[int]models.BeamEvent)
	for _, e := range events {
		if prev, ok := latest[e.LoomNo]; !ok || e.Timestamp > prev.Timestamp {
			latest[e.LoomNo] = e
		}
	}

	active := make(map[int]struct{})
	for loom, e := range latest {
		if e.Status != BeamEnd {
			active[loom] = struct{}{}
		}
	}
	for _, r := range initiations {
		if r.Location != location {
			continue
		}
		if _, seen := latest[r.LoomNo]; seen {
			continue
		}
		if CurrentStatusForBeam(s, r.BeamNo) != BeamEnd {
			active[r.LoomNo] = struct{}{}
		}
	}

	var looms []int
	for loom := range active {
		if _, ok := configured[loom]; ok {
			looms = append(looms, loom)
		}
	}
	sort.Ints(looms)
	return looms
}

// BeamsForGreyProduction lists beams whose lifecycle reached QC End and
// whose design has no grey production recorded yet. Grey output is
// keyed per design run, so consumption is joined on design_no via the
// beam's warping record.
func BeamsForGreyProduction(s *store.Store) []string {
	events := store.Load[models.BeamEvent](s, store.BeamOnLoom)
	grey := store.Load[models.GreyProduction](s, store.GreyProduction)
	warping := store.Load[models.WarpingProduction](s, store.WarpingProduction)

	designByBeam := make(map[string]string)
	for _, w := range warping {
		designByBeam[w.BeamNo] = w.DesignNo
	}

	greyDesigns := make(map[string]struct{})
	for _, g := range grey {
		greyDesigns[g.DesignNo] = struct{}{}
	}

	completed := make(map[string]struct{})
	seen := make(map[string]struct{})
	for _, e := range events {
		seen[e.BeamNo] = struct{}{}
	}
	for beam := range seen {
		e, ok := latestEventFor(events, func(e models.BeamEvent) bool { return e.BeamNo == beam })
		if ok && e.Status == QCEnd {
			completed[beam] = struct{}{}
		}
	}

	available := make(map[string]struct{})
	for beam := range completed {
		if design, ok := designByBeam[beam]; ok {
			if _, done := greyDesigns[design]; done {
				continue
			}
		}
		available[beam] = struct{}{}
	}
	return sortedKeys(available)
}

// LoomsForGreyEntry lists looms at a location whose latest beam event
// is QC End, i.e. looms whose output is ready to be recorded.
func LoomsForGreyEntry(s *store.Store, location string) []int {
	events := store.Load[models.BeamEvent](s, store.BeamOnLoom)

	latest := make(map[int]models.BeamEvent)
	for _, e := range events {
		if prev, ok := latest[e.LoomNo]; !ok || e.Timestamp > prev.Timestamp {
			latest[e.LoomNo] = e
		}
	}

	var looms []int
	for loom, e := range latest {
		if e.Status == QCEnd && e.Location == location {
			looms = append(looms, loom)
		}
	}
	sort.Ints(looms)
	return looms
}

// ActiveBeams counts beams that appear in the event log and have not
// reached Beam End.
func ActiveBeams(s *store.Store) int {
	events := store.Load[models.BeamEvent](s, store.BeamOnLoom)
	seen := make(map[string]struct{})
	for _, e := range events {
		seen[e.BeamNo] = struct{}{}
	}
	count := 0
	for beam := range seen {
		e, ok := latestEventFor(events, func(e models.BeamEvent) bool { return e.BeamNo == beam })
		if ok && e.Status != BeamEnd {
			count++
		}
	}
	return count
}
