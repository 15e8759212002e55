package temporal

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clinical-fact-validator/internal/domain"
)

const day = 24 * time.Hour

// Timeline is the ordered set of events of one subject together with its anchor
// instant and the conflicts detected after resolution.
type Timeline struct {
	SubjectID      string
	Events         []*Event
	Anchor         *time.Time
	AnchorInferred bool
	Conflicts      []Conflict

	resolved bool
}

// Builder converts facts into a resolved, conflict-checked timeline. A Builder holds
// no per-build state and may be shared.
type Builder struct {
	detector *Detector
	logger   *logrus.Logger
}

// NewBuilder creates a timeline builder.
func NewBuilder(detector *Detector, logger *logrus.Logger) *Builder {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Builder{detector: detector, logger: logger}
}

// Build projects the facts onto a new timeline, infers the anchor when none is
// supplied, resolves every event in a single pass and detects conflicts.
func (b *Builder) Build(subjectID string, facts []domain.ClinicalFact, anchor *time.Time) *Timeline {
	tl := &Timeline{
		SubjectID: subjectID,
		Events:    make([]*Event, 0, len(facts)),
	}
	for i, fact := range facts {
		tl.Events = append(tl.Events, NewEvent(fmt.Sprintf("event_%d", i), fact))
	}

	if anchor != nil {
		tl.Anchor = copyTime(anchor)
	} else if inferred := InferAnchor(tl.Events); inferred != nil {
		tl.Anchor = inferred
		tl.AnchorInferred = true
	}
	if tl.Anchor == nil {
		b.logger.WithField("subject_id", subjectID).Debug("No anchor instant; only dated events will resolve")
	}

	tl.Resolve()
	if b.detector != nil {
		tl.Conflicts = b.detector.Detect(tl.Events)
	}

	summary := tl.Summary()
	b.logger.WithFields(logrus.Fields{
		"subject_id":         subjectID,
		"total_events":       summary.TotalEvents,
		"resolved_events":    summary.ResolvedEvents,
		"anchor_inferred":    tl.AnchorInferred,
		"conflicts":          summary.Conflicts,
		"critical_conflicts": summary.CriticalConflicts,
	}).Debug("Timeline built")

	return tl
}

// InferAnchor derives the anchor instant from events carrying both an absolute instant
// and a day offset. Each such event proposes absolute minus offset days; the most
// frequent proposal wins, ties going to the earliest. Nil when no event qualifies.
func InferAnchor(events []*Event) *time.Time {
	counts := make(map[int64]int)
	candidates := make(map[int64]time.Time)
	for _, e := range events {
		abs := e.known()
		if abs == nil || e.DayOffset == nil {
			continue
		}
		c := abs.AddDate(0, 0, -*e.DayOffset)
		key := c.UnixNano()
		counts[key]++
		candidates[key] = c
	}
	if len(counts) == 0 {
		return nil
	}

	var bestKey int64
	bestCount := 0
	for key, n := range counts {
		if n > bestCount || (n == bestCount && key < bestKey) {
			bestKey, bestCount = key, n
		}
	}
	anchor := candidates[bestKey]
	return &anchor
}

// Resolve assigns absolute instants in one pass over the events in their current
// order, then sorts them chronologically with unresolved events last. For each event
// the first applicable rule wins: an existing instant is kept, a day offset resolves
// against the anchor, a hospital day resolves against the earliest admission already
// holding an instant. Hospital days visited before their admission stay unresolved.
// Calling Resolve again has no effect.
func (t *Timeline) Resolve() {
	if t.resolved {
		return
	}
	t.resolved = true

	for _, e := range t.Events {
		switch {
		case e.Resolved != nil:
		case e.Timestamp != nil:
			e.Resolved = copyTime(e.Timestamp)
		case e.DayOffset != nil && t.Anchor != nil:
			r := t.Anchor.AddDate(0, 0, *e.DayOffset)
			e.Resolved = &r
		case e.HospitalDay != nil:
			if admitted := t.admissionInstant(); admitted != nil {
				r := admitted.AddDate(0, 0, *e.HospitalDay-1)
				e.Resolved = &r
			}
		}
	}

	sort.SliceStable(t.Events, func(i, j int) bool {
		a, b := t.Events[i].Resolved, t.Events[j].Resolved
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})
}

func (t *Timeline) admissionInstant() *time.Time {
	var earliest *time.Time
	for _, e := range t.Events {
		if e.Type != domain.EntityAdmission {
			continue
		}
		if k := e.known(); k != nil && (earliest == nil || k.Before(*earliest)) {
			earliest = k
		}
	}
	return earliest
}

// EventsByClassification returns the events of one entity type in timeline order.
func (t *Timeline) EventsByClassification(et domain.EntityType) []*Event {
	var out []*Event
	for _, e := range t.Events {
		if e.Type == et {
			out = append(out, e)
		}
	}
	return out
}

// EventsInRange returns resolved events within [start, end].
func (t *Timeline) EventsInRange(start, end time.Time) []*Event {
	var out []*Event
	for _, e := range t.Events {
		if e.Resolved != nil && !e.Resolved.Before(start) && !e.Resolved.After(end) {
			out = append(out, e)
		}
	}
	return out
}

// ResolvedCount returns the number of events holding an absolute instant.
func (t *Timeline) ResolvedCount() int {
	n := 0
	for _, e := range t.Events {
		if e.IsResolved() {
			n++
		}
	}
	return n
}

// ResolutionRate is resolved events over total events, 0 for an empty timeline.
func (t *Timeline) ResolutionRate() float64 {
	if len(t.Events) == 0 {
		return 0
	}
	return float64(t.ResolvedCount()) / float64(len(t.Events))
}

// Summary aggregates counts over the timeline.
type Summary struct {
	SubjectID         string                    `json:"subject_id"`
	TotalEvents       int                       `json:"total_events"`
	ResolvedEvents    int                       `json:"resolved_events"`
	Anchor            *time.Time                `json:"anchor,omitempty"`
	Conflicts         int                       `json:"conflicts"`
	CriticalConflicts int                       `json:"critical_conflicts"`
	EventTypes        map[domain.EntityType]int `json:"event_types"`
	Start             *time.Time                `json:"start,omitempty"`
	End               *time.Time                `json:"end,omitempty"`
}

// Summary returns event, resolution and conflict counts and the covered date range.
func (t *Timeline) Summary() Summary {
	s := Summary{
		SubjectID:      t.SubjectID,
		TotalEvents:    len(t.Events),
		ResolvedEvents: t.ResolvedCount(),
		Anchor:         t.Anchor,
		Conflicts:      len(t.Conflicts),
		EventTypes:     make(map[domain.EntityType]int),
	}
	for _, c := range t.Conflicts {
		if c.Severity == domain.SeverityCritical {
			s.CriticalConflicts++
		}
	}
	for _, e := range t.Events {
		s.EventTypes[e.Type]++
		if e.Resolved == nil {
			continue
		}
		if s.Start == nil || e.Resolved.Before(*s.Start) {
			s.Start = e.Resolved
		}
		if s.End == nil || e.Resolved.After(*s.End) {
			s.End = e.Resolved
		}
	}
	return s
}

// Distance returns the absolute temporal distance between two events: from resolved
// instants when both have one, else from day offsets, else from hospital days.
func Distance(a, b *Event) (time.Duration, bool) {
	switch {
	case a.Resolved != nil && b.Resolved != nil:
		return absDuration(b.Resolved.Sub(*a.Resolved)), true
	case a.DayOffset != nil && b.DayOffset != nil:
		return absDuration(time.Duration(*b.DayOffset-*a.DayOffset) * day), true
	case a.HospitalDay != nil && b.HospitalDay != nil:
		return absDuration(time.Duration(*b.HospitalDay-*a.HospitalDay) * day), true
	default:
		return 0, false
	}
}

// Related is a fact within reach of a target fact.
type Related struct {
	Fact     domain.ClinicalFact
	Distance time.Duration
}

// RelatedFacts returns the facts whose effective instant lies within maxDays of the
// target, closest first. The target itself is skipped by id, or by position when it
// has no id.
func RelatedFacts(target domain.ClinicalFact, facts []domain.ClinicalFact, maxDays int) []Related {
	ref := target.EffectiveTimestamp()
	if ref == nil {
		return nil
	}
	limit := time.Duration(maxDays) * day

	var out []Related
	for _, f := range facts {
		if isSameFact(f, target) {
			continue
		}
		ts := f.EffectiveTimestamp()
		if ts == nil {
			continue
		}
		if d := absDuration(ts.Sub(*ref)); d <= limit {
			out = append(out, Related{Fact: f, Distance: d})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out
}

func isSameFact(a, b domain.ClinicalFact) bool {
	if a.ID != "" || b.ID != "" {
		return a.ID == b.ID
	}
	return a.Type == b.Type && strings.EqualFold(a.Name, b.Name) && a.Text == b.Text &&
		timesEqual(a.EffectiveTimestamp(), b.EffectiveTimestamp())
}

func timesEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
