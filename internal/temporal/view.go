package temporal

import (
	"sort"

	"github.com/clinical-fact-validator/internal/domain"
)

// EventView is the JSON form of an event.
type EventView struct {
	ID             string   `json:"id"`
	Type           string   `json:"type"`
	Name           string   `json:"name"`
	Timestamp      string   `json:"timestamp,omitempty"`
	Resolved       string   `json:"resolved_timestamp,omitempty"`
	DayOffset      *int     `json:"day_offset,omitempty"`
	HospitalDay    *int     `json:"hospital_day,omitempty"`
	RelativePhrase string   `json:"relative_phrase,omitempty"`
	FactIDs        []string `json:"fact_ids,omitempty"`
	Confidence     float64  `json:"confidence"`
}

// ConflictView is the JSON form of a conflict.
type ConflictView struct {
	Kind        string `json:"kind"`
	Severity    string `json:"severity"`
	FirstEvent  string `json:"first_event"`
	SecondEvent string `json:"second_event"`
	Description string `json:"description"`
}

// TypeCount is the number of events of one classification.
type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// TimelineView is the JSON form of a timeline returned by the API, the MCP tools and
// the CLI.
type TimelineView struct {
	SubjectID         string         `json:"subject_id"`
	Anchor            string         `json:"anchor,omitempty"`
	AnchorInferred    bool           `json:"anchor_inferred,omitempty"`
	TotalEvents       int            `json:"total_events"`
	ResolvedEvents    int            `json:"resolved_events"`
	CriticalConflicts int            `json:"critical_conflicts"`
	Start             string         `json:"start,omitempty"`
	End               string         `json:"end,omitempty"`
	EventTypes        []TypeCount    `json:"event_types"`
	Events            []EventView    `json:"events"`
	Conflicts         []ConflictView `json:"conflicts"`
}

// View renders the timeline for transport.
func (t *Timeline) View() TimelineView {
	s := t.Summary()
	v := TimelineView{
		SubjectID:         t.SubjectID,
		Anchor:            domain.FormatTimestamp(t.Anchor),
		AnchorInferred:    t.AnchorInferred,
		TotalEvents:       s.TotalEvents,
		ResolvedEvents:    s.ResolvedEvents,
		CriticalConflicts: s.CriticalConflicts,
		Start:             domain.FormatTimestamp(s.Start),
		End:               domain.FormatTimestamp(s.End),
		EventTypes:        make([]TypeCount, 0, len(s.EventTypes)),
		Events:            make([]EventView, 0, len(t.Events)),
		Conflicts:         make([]ConflictView, 0, len(t.Conflicts)),
	}
	for et, n := range s.EventTypes {
		v.EventTypes = append(v.EventTypes, TypeCount{Type: string(et), Count: n})
	}
	sort.Slice(v.EventTypes, func(i, j int) bool { return v.EventTypes[i].Type < v.EventTypes[j].Type })

	for _, e := range t.Events {
		v.Events = append(v.Events, EventView{
			ID:             e.ID,
			Type:           string(e.Type),
			Name:           e.Name,
			Timestamp:      domain.FormatTimestamp(e.Timestamp),
			Resolved:       domain.FormatTimestamp(e.Resolved),
			DayOffset:      e.DayOffset,
			HospitalDay:    e.HospitalDay,
			RelativePhrase: e.RelativePhrase,
			FactIDs:        e.FactIDs,
			Confidence:     e.Confidence,
		})
	}
	for _, c := range t.Conflicts {
		v.Conflicts = append(v.Conflicts, ConflictView{
			Kind:        string(c.Kind),
			Severity:    string(c.Severity),
			FirstEvent:  c.First.ID,
			SecondEvent: c.Second.ID,
			Description: c.Description,
		})
	}
	return v
}
