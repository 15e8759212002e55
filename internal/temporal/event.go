package temporal

import (
	"time"

	"github.com/clinical-fact-validator/internal/domain"
)

// Event is the projection of one clinical fact onto the timeline. Resolved is filled at
// most once by Timeline.Resolve.
type Event struct {
	ID             string
	Type           domain.EntityType
	Name           string
	Timestamp      *time.Time
	DayOffset      *int
	HospitalDay    *int
	RelativePhrase string
	FactIDs        []string
	Confidence     float64
	Resolved       *time.Time
}

// NewEvent converts a fact into an event. A resolved timestamp already on the fact is
// kept. When the fact only carries a free relative phrase, day offset and hospital day
// are taken from the phrase.
func NewEvent(id string, fact domain.ClinicalFact) *Event {
	e := &Event{
		ID:             id,
		Type:           fact.Type,
		Name:           fact.Name,
		Timestamp:      copyTime(fact.Timestamp),
		DayOffset:      fact.Temporal.DayOffset,
		HospitalDay:    fact.Temporal.HospitalDay,
		RelativePhrase: fact.Temporal.RelativePhrase,
		Confidence:     fact.Confidence,
		Resolved:       copyTime(fact.ResolvedTimestamp),
	}
	if fact.ID != "" {
		e.FactIDs = []string{fact.ID}
	}
	if e.DayOffset == nil && e.HospitalDay == nil && e.RelativePhrase != "" {
		m := ParseMarkers(e.RelativePhrase)
		e.DayOffset = m.DayOffset
		e.HospitalDay = m.HospitalDay
	}
	return e
}

// IsResolved reports whether the event has an absolute instant.
func (e *Event) IsResolved() bool {
	return e.Resolved != nil
}

// HasAbsoluteTime reports whether the event carries an extracted or pre-resolved instant.
func (e *Event) HasAbsoluteTime() bool {
	return e.Timestamp != nil || e.Resolved != nil
}

// HasRelativeTime reports whether the event carries any relative marker.
func (e *Event) HasRelativeTime() bool {
	return e.DayOffset != nil || e.HospitalDay != nil || e.RelativePhrase != ""
}

// known returns the resolved instant, falling back to the extracted timestamp.
func (e *Event) known() *time.Time {
	if e.Resolved != nil {
		return e.Resolved
	}
	return e.Timestamp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
