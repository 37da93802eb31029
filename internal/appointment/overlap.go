package appointment

import (
	"slices"
	"sort"
	"time"
)

// OverlapSet is the set of appointment ids that overlap another appointment.
type OverlapSet map[string]struct{}

// Has reports whether id is flagged.
func (s OverlapSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// IDs returns the flagged ids in sorted order.
func (s OverlapSet) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// interval is the half-open range [start, end) an appointment occupies.
type interval struct {
	id    string
	start time.Time
	end   time.Time
}

func intervals(appts []Appointment) []interval {
	ivs := make([]interval, 0, len(appts))
	for _, a := range appts {
		ivs = append(ivs, interval{id: a.ID, start: a.DateTime, end: a.End()})
	}
	sort.SliceStable(ivs, func(i, j int) bool {
		return ivs[i].start.Before(ivs[j].start)
	})
	return ivs
}

// DetectOverlaps returns the ids of appointments whose time range intersects
// at least one other appointment in appts.
//
// Ranges are half-open, so back-to-back appointments do not overlap. Every
// interval still active when another starts has begun at or before that start
// and ends after it, which means the result only contains appointments with a
// direct overlap partner. appts is not modified.
func DetectOverlaps(appts []Appointment) OverlapSet {
	result := make(OverlapSet)
	if len(appts) < 2 {
		return result
	}

	var active []interval
	for _, cur := range intervals(appts) {
		active = slices.DeleteFunc(active, func(iv interval) bool {
			return !iv.end.After(cur.start)
		})

		if len(active) > 0 {
			result[cur.id] = struct{}{}
			for _, iv := range active {
				result[iv.id] = struct{}{}
			}
		}

		active = append(active, cur)
	}

	return result
}

// Pair is two appointment ids whose ranges intersect. A starts no later than B.
type Pair struct {
	A string
	B string
}

// OverlapPairs returns every directly overlapping pair, ordered by the start
// of the later appointment.
func OverlapPairs(appts []Appointment) []Pair {
	var pairs []Pair
	var active []interval
	for _, cur := range intervals(appts) {
		active = slices.DeleteFunc(active, func(iv interval) bool {
			return !iv.end.After(cur.start)
		})
		for _, iv := range active {
			pairs = append(pairs, Pair{A: iv.id, B: cur.id})
		}
		active = append(active, cur)
	}
	return pairs
}

// Partners returns the ids that directly overlap id, given the pairs from OverlapPairs.
func Partners(pairs []Pair, id string) []string {
	var out []string
	for _, p := range pairs {
		switch id {
		case p.A:
			out = append(out, p.B)
		case p.B:
			out = append(out, p.A)
		}
	}
	return out
}
