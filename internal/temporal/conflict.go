package temporal

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/clinical-fact-validator/internal/domain"
)

// ConflictKind classifies a temporal conflict.
type ConflictKind string

const (
	ConflictOffsetMismatch     ConflictKind = "pod_timestamp_mismatch"
	ConflictImpossibleSequence ConflictKind = "impossible_sequence"
	ConflictUnlikelyDuration   ConflictKind = "unlikely_duration"
	ConflictExcessiveOffset    ConflictKind = "excessive_pod"
)

// Conflict is a physically or logically impossible relation among events.
type Conflict struct {
	Kind        ConflictKind
	Severity    domain.Severity
	First       *Event
	Second      *Event
	Description string
}

const (
	minSurgeryGap = time.Minute
	maxSurgeryGap = 30 * time.Minute
)

// Detector scans resolved events for conflicts.
type Detector struct {
	MaxDayOffset int
}

// NewDetector creates a detector flagging day offsets above maxDayOffset.
func NewDetector(maxDayOffset int) *Detector {
	return &Detector{MaxDayOffset: maxDayOffset}
}

// Detect runs every check independently and concatenates the results. One event pair
// may appear in several conflicts.
func (d *Detector) Detect(events []*Event) []Conflict {
	var conflicts []Conflict
	conflicts = append(conflicts, offsetMismatches(events)...)
	conflicts = append(conflicts, orderingViolations(events)...)
	conflicts = append(conflicts, surgeryDensity(events)...)
	conflicts = append(conflicts, d.excessiveOffsets(events)...)
	return conflicts
}

// offsetMismatches flags groups of resolved events sharing a day offset whose
// instants spread over more than one day.
func offsetMismatches(events []*Event) []Conflict {
	groups := make(map[int][]*Event)
	for _, e := range events {
		if e.DayOffset != nil && e.Resolved != nil {
			groups[*e.DayOffset] = append(groups[*e.DayOffset], e)
		}
	}
	offsets := make([]int, 0, len(groups))
	for off := range groups {
		offsets = append(offsets, off)
	}
	sort.Ints(offsets)

	var out []Conflict
	for _, off := range offsets {
		group := groups[off]
		if len(group) < 2 {
			continue
		}
		first, last := group[0], group[0]
		for _, e := range group[1:] {
			if e.Resolved.Before(*first.Resolved) {
				first = e
			}
			if e.Resolved.After(*last.Resolved) {
				last = e
			}
		}
		spread := last.Resolved.Sub(*first.Resolved)
		if spread > day {
			out = append(out, Conflict{
				Kind:        ConflictOffsetMismatch,
				Severity:    domain.SeverityCritical,
				First:       first,
				Second:      last,
				Description: fmt.Sprintf("POD %d has events with timestamps differing by %d days", off, int(spread/day)),
			})
		}
	}
	return out
}

// orderingViolations flags procedures and discharges placed before an admission.
func orderingViolations(events []*Event) []Conflict {
	var admissions, procedures, discharges []*Event
	for _, e := range events {
		if e.Resolved == nil {
			continue
		}
		switch e.Type {
		case domain.EntityAdmission:
			admissions = append(admissions, e)
		case domain.EntityProcedure:
			procedures = append(procedures, e)
		case domain.EntityDischarge:
			discharges = append(discharges, e)
		}
	}

	var out []Conflict
	for _, adm := range admissions {
		for _, p := range procedures {
			if p.Resolved.Before(*adm.Resolved) {
				out = append(out, Conflict{
					Kind:        ConflictImpossibleSequence,
					Severity:    domain.SeverityCritical,
					First:       p,
					Second:      adm,
					Description: fmt.Sprintf("Procedure %q timestamp before admission timestamp", p.Name),
				})
			}
		}
	}
	for _, adm := range admissions {
		for _, dis := range discharges {
			if dis.Resolved.Before(*adm.Resolved) {
				out = append(out, Conflict{
					Kind:        ConflictImpossibleSequence,
					Severity:    domain.SeverityCritical,
					First:       dis,
					Second:      adm,
					Description: "Discharge timestamp before admission timestamp",
				})
			}
		}
	}
	return out
}

// surgeryDensity flags consecutive surgeries resolved between one and thirty minutes
// apart. Exact duplicates fall under the one minute floor.
func surgeryDensity(events []*Event) []Conflict {
	var surgeries []*Event
	for _, e := range events {
		if e.Resolved != nil && strings.Contains(strings.ToLower(e.Name), "surgery") {
			surgeries = append(surgeries, e)
		}
	}
	sort.SliceStable(surgeries, func(i, j int) bool {
		return surgeries[i].Resolved.Before(*surgeries[j].Resolved)
	})

	var out []Conflict
	for i := 0; i+1 < len(surgeries); i++ {
		gap := surgeries[i+1].Resolved.Sub(*surgeries[i].Resolved)
		if gap > minSurgeryGap && gap < maxSurgeryGap {
			out = append(out, Conflict{
				Kind:        ConflictUnlikelyDuration,
				Severity:    domain.SeverityWarning,
				First:       surgeries[i],
				Second:      surgeries[i+1],
				Description: fmt.Sprintf("Two surgeries within %.0f minutes", gap.Minutes()),
			})
		}
	}
	return out
}

// excessiveOffsets flags day offsets above the plausible maximum, resolved or not.
func (d *Detector) excessiveOffsets(events []*Event) []Conflict {
	var out []Conflict
	for _, e := range events {
		if e.DayOffset != nil && *e.DayOffset > d.MaxDayOffset {
			out = append(out, Conflict{
				Kind:        ConflictExcessiveOffset,
				Severity:    domain.SeverityWarning,
				First:       e,
				Second:      e,
				Description: fmt.Sprintf("POD %d exceeds maximum plausible value of %d", *e.DayOffset, d.MaxDayOffset),
			})
		}
	}
	return out
}
