package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Detail is the classification-specific payload of a clinical fact. The concrete
// variant a fact may carry is determined by its EntityType (see AllowedFor).
type Detail interface {
	// AllowedFor reports whether this variant may be attached to the entity type.
	AllowedFor(t EntityType) bool
	isDetail()
}

// AnatomyDetail locates a diagnosis, exam finding or symptom anatomically.
type AnatomyDetail struct {
	Laterality Laterality `json:"laterality,omitempty"`
	Region     string     `json:"region,omitempty"`
	Structure  string     `json:"structure,omitempty"`
	SizeMM     *float64   `json:"size_mm,omitempty"`
}

// MedicationDetail carries dosing information.
type MedicationDetail struct {
	Dose      *float64 `json:"dose,omitempty"`
	DoseUnit  string   `json:"dose_unit,omitempty"`
	Route     string   `json:"route,omitempty"`
	Frequency string   `json:"frequency,omitempty"`
}

// LabDetail carries a single lab measurement.
type LabDetail struct {
	TestName string   `json:"test_name,omitempty"`
	Value    *float64 `json:"value,omitempty"`
	Unit     string   `json:"unit,omitempty"`
}

// ProcedureDetail describes how a procedure was performed.
type ProcedureDetail struct {
	Approach        string     `json:"approach,omitempty"`
	Laterality      Laterality `json:"laterality,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
}

// ImagingDetail describes an imaging study.
type ImagingDetail struct {
	Modality string `json:"modality,omitempty"`
	Findings string `json:"findings,omitempty"`
	Anatomy  string `json:"anatomy,omitempty"`
}

func (AnatomyDetail) isDetail()    {}
func (MedicationDetail) isDetail() {}
func (LabDetail) isDetail()        {}
func (ProcedureDetail) isDetail()  {}
func (ImagingDetail) isDetail()    {}

func (AnatomyDetail) AllowedFor(t EntityType) bool {
	return t == EntityDiagnosis || t == EntityPhysicalExam || t == EntitySymptom
}

func (MedicationDetail) AllowedFor(t EntityType) bool { return t == EntityMedication }
func (LabDetail) AllowedFor(t EntityType) bool        { return t == EntityLabValue }
func (ProcedureDetail) AllowedFor(t EntityType) bool  { return t == EntityProcedure }
func (ImagingDetail) AllowedFor(t EntityType) bool    { return t == EntityImaging }

// TemporalMarkers are the relative-time references attached to a fact.
type TemporalMarkers struct {
	DayOffset      *int   // post-procedure day, relative to the anchor
	HospitalDay    *int   // relative to admission, day 1 is the admission day
	RelativePhrase string // free text such as "yesterday" or "3 days ago"
}

// IsZero reports whether no marker is set.
func (m TemporalMarkers) IsZero() bool {
	return m.DayOffset == nil && m.HospitalDay == nil && m.RelativePhrase == ""
}

// ClinicalFact is one atomic clinical assertion produced by the extraction pipeline.
type ClinicalFact struct {
	ID                string
	Type              EntityType
	Name              string
	Text              string
	Context           string
	Confidence        float64
	Timestamp         *time.Time
	ResolvedTimestamp *time.Time
	Temporal          TemporalMarkers
	Detail            Detail
	Negated           bool
	Historical        bool
	Hypothetical      bool

	// raw timestamp text that could not be parsed
	malformedTimestamp string
}

// Anatomy returns the anatomy detail if the fact carries one.
func (f ClinicalFact) Anatomy() (AnatomyDetail, bool) {
	d, ok := f.Detail.(AnatomyDetail)
	return d, ok
}

// Medication returns the medication detail if the fact carries one.
func (f ClinicalFact) Medication() (MedicationDetail, bool) {
	d, ok := f.Detail.(MedicationDetail)
	return d, ok
}

// Lab returns the lab detail if the fact carries one.
func (f ClinicalFact) Lab() (LabDetail, bool) {
	d, ok := f.Detail.(LabDetail)
	return d, ok
}

// Procedure returns the procedure detail if the fact carries one.
func (f ClinicalFact) Procedure() (ProcedureDetail, bool) {
	d, ok := f.Detail.(ProcedureDetail)
	return d, ok
}

// Imaging returns the imaging detail if the fact carries one.
func (f ClinicalFact) Imaging() (ImagingDetail, bool) {
	d, ok := f.Detail.(ImagingDetail)
	return d, ok
}

// EffectiveTimestamp prefers the resolved timestamp over the extracted one.
func (f ClinicalFact) EffectiveTimestamp() *time.Time {
	if f.ResolvedTimestamp != nil {
		return f.ResolvedTimestamp
	}
	return f.Timestamp
}

// HasAnatomicalContext reports whether an anatomical region or structure is known.
func (f ClinicalFact) HasAnatomicalContext() bool {
	a, ok := f.Anatomy()
	return ok && (a.Region != "" || a.Structure != "")
}

// IsActive reports whether the fact describes a current, affirmed condition.
func (f ClinicalFact) IsActive() bool {
	return !f.Historical && !f.Negated && !f.Hypothetical
}

// MalformedTimestamp returns the raw timestamp text that failed to parse, if any.
func (f ClinicalFact) MalformedTimestamp() string {
	return f.malformedTimestamp
}

// Clone returns a copy that shares no mutable timestamp storage with f.
func (f ClinicalFact) Clone() ClinicalFact {
	c := f
	if f.Timestamp != nil {
		ts := *f.Timestamp
		c.Timestamp = &ts
	}
	if f.ResolvedTimestamp != nil {
		ts := *f.ResolvedTimestamp
		c.ResolvedTimestamp = &ts
	}
	return c
}

// CloneFacts copies a fact slice element-wise.
func CloneFacts(facts []ClinicalFact) []ClinicalFact {
	if facts == nil {
		return nil
	}
	out := make([]ClinicalFact, len(facts))
	for i, f := range facts {
		out[i] = f.Clone()
	}
	return out
}

// Validate checks the input invariants of a fact. A fact that fails validation must
// not take part in temporal or numeric processing.
func (f ClinicalFact) Validate() error {
	if math.IsNaN(f.Confidence) || f.Confidence < 0 || f.Confidence > 1 {
		return &ValidationError{
			Field:   "confidence",
			Message: fmt.Sprintf("confidence %.3f outside [0,1]", f.Confidence),
			Value:   f.Confidence,
			Err:     ErrInvalidConfidence,
		}
	}
	if f.malformedTimestamp != "" {
		return &ValidationError{
			Field:   "timestamp",
			Message: fmt.Sprintf("cannot parse timestamp %q", f.malformedTimestamp),
			Value:   f.malformedTimestamp,
			Err:     ErrMalformedTimestamp,
		}
	}
	for _, ts := range []*time.Time{f.Timestamp, f.ResolvedTimestamp} {
		if ts != nil && (ts.Year() < minTimestampYear || ts.Year() > maxTimestampYear) {
			return &ValidationError{
				Field:   "timestamp",
				Message: fmt.Sprintf("timestamp year %d outside %d-%d", ts.Year(), minTimestampYear, maxTimestampYear),
				Value:   ts.Format(time.RFC3339),
				Err:     ErrMalformedTimestamp,
			}
		}
	}
	if f.Detail != nil && !f.Detail.AllowedFor(f.Type) {
		return &ValidationError{
			Field:   "detail",
			Message: fmt.Sprintf("%T not allowed for %s", f.Detail, f.Type),
			Value:   string(f.Type),
			Err:     ErrInvalidInput,
		}
	}
	return nil
}

const (
	minTimestampYear = 1900
	maxTimestampYear = 2200
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04",
	"01/02/2006",
}

// ParseTimestamp parses the timestamp formats accepted on the wire. Zone-less values
// are interpreted as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTimestamp, s)
}

// FormatTimestamp renders an optional instant in RFC3339, empty for nil.
func FormatTimestamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// FactRecord is the flat JSON wire form of a ClinicalFact.
type FactRecord struct {
	ID                string  `json:"id,omitempty"`
	Type              string  `json:"type"`
	Name              string  `json:"name"`
	Text              string  `json:"text,omitempty"`
	Context           string  `json:"context,omitempty"`
	Confidence        float64 `json:"confidence"`
	Timestamp         string  `json:"timestamp,omitempty"`
	ResolvedTimestamp string  `json:"resolved_timestamp,omitempty"`
	DayOffset         *int    `json:"day_offset,omitempty"`
	HospitalDay       *int    `json:"hospital_day,omitempty"`
	RelativePhrase    string  `json:"relative_phrase,omitempty"`
	Negated           bool    `json:"negated,omitempty"`
	Historical        bool    `json:"historical,omitempty"`
	Hypothetical      bool    `json:"hypothetical,omitempty"`

	// anatomy and procedure
	Laterality string   `json:"laterality,omitempty"`
	Region     string   `json:"region,omitempty"`
	Structure  string   `json:"structure,omitempty"`
	SizeMM     *float64 `json:"size_mm,omitempty"`

	// medication
	Dose      *float64 `json:"dose,omitempty"`
	DoseUnit  string   `json:"dose_unit,omitempty"`
	Route     string   `json:"route,omitempty"`
	Frequency string   `json:"frequency,omitempty"`

	// lab
	TestName string   `json:"test_name,omitempty"`
	Value    *float64 `json:"value,omitempty"`
	Unit     string   `json:"unit,omitempty"`

	// procedure
	Approach        string `json:"approach,omitempty"`
	DurationMinutes *int   `json:"duration_minutes,omitempty"`

	// imaging
	Modality string `json:"modality,omitempty"`
	Findings string `json:"findings,omitempty"`
	Anatomy  string `json:"anatomy,omitempty"`
}

// ToFact converts the wire form into a ClinicalFact. It never fails: unknown types map
// to EntityOther and unparsable timestamps are kept for Validate to report.
func (r FactRecord) ToFact() ClinicalFact {
	et, err := ParseEntityType(r.Type)
	if err != nil {
		et = EntityOther
	}
	f := ClinicalFact{
		ID:           r.ID,
		Type:         et,
		Name:         r.Name,
		Text:         r.Text,
		Context:      r.Context,
		Confidence:   r.Confidence,
		Negated:      r.Negated,
		Historical:   r.Historical,
		Hypothetical: r.Hypothetical,
		Temporal: TemporalMarkers{
			DayOffset:      r.DayOffset,
			HospitalDay:    r.HospitalDay,
			RelativePhrase: r.RelativePhrase,
		},
	}
	if r.Timestamp != "" {
		if ts, err := ParseTimestamp(r.Timestamp); err == nil {
			f.Timestamp = &ts
		} else {
			f.malformedTimestamp = r.Timestamp
		}
	}
	if r.ResolvedTimestamp != "" {
		if ts, err := ParseTimestamp(r.ResolvedTimestamp); err == nil {
			f.ResolvedTimestamp = &ts
		} else if f.malformedTimestamp == "" {
			f.malformedTimestamp = r.ResolvedTimestamp
		}
	}
	f.Detail = r.detailFor(et)
	return f
}

func (r FactRecord) detailFor(et EntityType) Detail {
	lat := Laterality(strings.ToLower(r.Laterality))
	switch et {
	case EntityDiagnosis, EntityPhysicalExam, EntitySymptom:
		if lat == "" && r.Region == "" && r.Structure == "" && r.SizeMM == nil {
			return nil
		}
		return AnatomyDetail{Laterality: lat, Region: r.Region, Structure: r.Structure, SizeMM: r.SizeMM}
	case EntityMedication:
		if r.Dose == nil && r.DoseUnit == "" && r.Route == "" && r.Frequency == "" {
			return nil
		}
		return MedicationDetail{Dose: r.Dose, DoseUnit: r.DoseUnit, Route: r.Route, Frequency: r.Frequency}
	case EntityLabValue:
		if r.TestName == "" && r.Value == nil && r.Unit == "" {
			return nil
		}
		return LabDetail{TestName: r.TestName, Value: r.Value, Unit: r.Unit}
	case EntityProcedure:
		if r.Approach == "" && lat == "" && r.DurationMinutes == nil {
			return nil
		}
		return ProcedureDetail{Approach: r.Approach, Laterality: lat, DurationMinutes: r.DurationMinutes}
	case EntityImaging:
		if r.Modality == "" && r.Findings == "" && r.Anatomy == "" {
			return nil
		}
		return ImagingDetail{Modality: r.Modality, Findings: r.Findings, Anatomy: r.Anatomy}
	default:
		return nil
	}
}

// Record converts the fact into its wire form.
func (f ClinicalFact) Record() FactRecord {
	r := FactRecord{
		ID:                f.ID,
		Type:              string(f.Type),
		Name:              f.Name,
		Text:              f.Text,
		Context:           f.Context,
		Confidence:        f.Confidence,
		Timestamp:         FormatTimestamp(f.Timestamp),
		ResolvedTimestamp: FormatTimestamp(f.ResolvedTimestamp),
		DayOffset:         f.Temporal.DayOffset,
		HospitalDay:       f.Temporal.HospitalDay,
		RelativePhrase:    f.Temporal.RelativePhrase,
		Negated:           f.Negated,
		Historical:        f.Historical,
		Hypothetical:      f.Hypothetical,
	}
	if r.Timestamp == "" && f.malformedTimestamp != "" {
		r.Timestamp = f.malformedTimestamp
	}
	switch d := f.Detail.(type) {
	case AnatomyDetail:
		r.Laterality, r.Region, r.Structure, r.SizeMM = string(d.Laterality), d.Region, d.Structure, d.SizeMM
	case MedicationDetail:
		r.Dose, r.DoseUnit, r.Route, r.Frequency = d.Dose, d.DoseUnit, d.Route, d.Frequency
	case LabDetail:
		r.TestName, r.Value, r.Unit = d.TestName, d.Value, d.Unit
	case ProcedureDetail:
		r.Approach, r.Laterality, r.DurationMinutes = d.Approach, string(d.Laterality), d.DurationMinutes
	case ImagingDetail:
		r.Modality, r.Findings, r.Anatomy = d.Modality, d.Findings, d.Anatomy
	}
	return r
}

// MarshalJSON encodes the fact in its wire form.
func (f ClinicalFact) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Record())
}

// UnmarshalJSON decodes the wire form.
func (f *ClinicalFact) UnmarshalJSON(data []byte) error {
	var r FactRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	*f = r.ToFact()
	return nil
}

// FactsFromRecords converts a batch of wire records.
func FactsFromRecords(records []FactRecord) []ClinicalFact {
	facts := make([]ClinicalFact, len(records))
	for i, r := range records {
		facts[i] = r.ToFact()
	}
	return facts
}
