// Package assessments covers the clinical observation records attached
// to a patient case: adverse events, performance status, lifestyle,
// family history, comorbidities, vitals, risk assessments and tumor
// markers. They share a flat shape (case, date, domain attributes) and
// the common lifecycle of the other case children.
package assessments

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/onconova/onconova/internal/domain/terminology"
	"github.com/onconova/onconova/internal/platform/anonymize"
)

var (
	// ErrNotFound is returned when an assessment record does not exist.
	ErrNotFound = errors.New("assessment record not found")
	// ErrInvalid wraps model validation failures.
	ErrInvalid = errors.New("validation failed")
)

// Entity kinds as recorded in the history log.
const (
	AdverseEventKind      = "adverse-event"
	PerformanceStatusKind = "performance-status"
	LifestyleKind         = "lifestyle"
	FamilyHistoryKind     = "family-history"
	ComorbiditiesKind     = "comorbidities"
	VitalsKind            = "vitals"
	RiskAssessmentKind    = "risk-assessment"
	TumorMarkerKind       = "tumor-marker"
)

// AdverseEvent is a CTCAE-graded treatment toxicity.
type AdverseEvent struct {
	ID          uuid.UUID        `json:"id"`
	Description string           `json:"description"`
	CaseID      uuid.UUID        `json:"caseId"`
	Date        time.Time        `json:"date"`
	Event       *terminology.Ref `json:"event,omitempty"`
	Grade       *int             `json:"grade,omitempty"`
	Outcome     string           `json:"outcome,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	CreatedBy string    `json:"createdBy"`
	UpdatedBy []string  `json:"updatedBy"`
}

func (a *AdverseEvent) Validate() error {
	if a.Date.IsZero() {
		return errors.New("event date is required")
	}
	if a.Grade != nil && (*a.Grade < 1 || *a.Grade > 5) {
		return fmt.Errorf("grade %d outside CTCAE range 1-5", *a.Grade)
	}
	return nil
}

func (a *AdverseEvent) Describe() string {
	name := "Adverse event"
	if a.Event != nil {
		if a.Event.Display != "" {
			name = a.Event.Display
		} else if a.Event.Code != "" {
			name = a.Event.Code
		}
	}
	if a.Grade != nil {
		return fmt.Sprintf("%s (grade %d)", name, *a.Grade)
	}
	return name
}

func (a *AdverseEvent) Anonymize(anon *anonymize.Anonymizer, key string) {
	a.Date = anon.Date(key, a.Date)
}

// PerformanceStatus is an ECOG or Karnofsky functional assessment.
type PerformanceStatus struct {
	ID          uuid.UUID `json:"id"`
	Description string    `json:"description"`
	CaseID      uuid.UUID `json:"caseId"`
	Date        time.Time `json:"date"`
	ECOGScore   *int      `json:"ecogScore,omitempty"`
	Karnofsky   *int      `json:"karnofskyScore,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	CreatedBy string    `json:"createdBy"`
	UpdatedBy []string  `json:"updatedBy"`
}

func (p *PerformanceStatus) Validate() error {
	if p.Date.IsZero() {
		return errors.New("assessment date is required")
	}
	if p.ECOGScore == nil && p.Karnofsky == nil {
		return errors.New("an ECOG or Karnofsky score is required")
	}
	if p.ECOGScore != nil && (*p.ECOGScore < 0 || *p.ECOGScore > 5) {
		return fmt.Errorf("ECOG score %d outside range 0-5", *p.ECOGScore)
	}
	if p.Karnofsky != nil && (*p.Karnofsky < 0 || *p.Karnofsky > 100) {
		return fmt.Errorf("Karnofsky score %d outside range 0-100", *p.Karnofsky)
	}
	return nil
}

func (p *PerformanceStatus) Describe() string {
	if p.ECOGScore != nil {
		return fmt.Sprintf("Performance status ECOG %d", *p.ECOGScore)
	}
	if p.Karnofsky != nil {
		return fmt.Sprintf("Performance status Karnofsky %d", *p.Karnofsky)
	}
	return "Performance status"
}

func (p *PerformanceStatus) Anonymize(anon *anonymize.Anonymizer, key string) {
	p.Date = anon.Date(key, p.Date)
}

// Lifestyle captures smoking, alcohol and exposure history.
type Lifestyle struct {
	ID                 uuid.UUID         `json:"id"`
	Description        string            `json:"description"`
	CaseID             uuid.UUID         `json:"caseId"`
	Date               time.Time         `json:"date"`
	SmokingStatus      string            `json:"smokingStatus,omitempty"`
	AlcoholConsumption string            `json:"alcoholConsumption,omitempty"`
	Exposures          []terminology.Ref `json:"exposures,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	CreatedBy string    `json:"createdBy"`
	UpdatedBy []string  `json:"updatedBy"`
}

func (l *Lifestyle) Validate() error {
	if l.Date.IsZero() {
		return errors.New("record date is required")
	}
	return nil
}

func (l *Lifestyle) Describe() string {
	return "Lifestyle record"
}

func (l *Lifestyle) ExposureCodes() []string {
	codes := make([]string, 0, len(l.Exposures))
	for _, e := range l.Exposures {
		codes = append(codes, e.Code)
	}
	return codes
}

func (l *Lifestyle) Anonymize(anon *anonymize.Anonymizer, key string) {
	l.Date = anon.Date(key, l.Date)
}

// FamilyHistory is one relative's oncological condition.
type FamilyHistory struct {
	ID           uuid.UUID        `json:"id"`
	Description  string           `json:"description"`
	CaseID       uuid.UUID        `json:"caseId"`
	Date         time.Time        `json:"date"`
	Relationship string           `json:"relationship,omitempty"`
	Condition    *terminology.Ref `json:"condition,omitempty"`
	OnsetAge     *int             `json:"onsetAge,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	CreatedBy string    `json:"createdBy"`
	UpdatedBy []string  `json:"updatedBy"`
}

func (f *FamilyHistory) Validate() error {
	if f.Date.IsZero() {
		return errors.New("record date is required")
	}
	if f.OnsetAge != nil && *f.OnsetAge < 0 {
		return errors.New("onset age must not be negative")
	}
	return nil
}

func (f *FamilyHistory) Describe() string {
	if f.Condition != nil && f.Condition.Display != "" {
		if f.Relationship != "" {
			return fmt.Sprintf("Family history: %s (%s)", f.Condition.Display, f.Relationship)
		}
		return "Family history: " + f.Condition.Display
	}
	return "Family history"
}

func (f *FamilyHistory) Anonymize(anon *anonymize.Anonymizer, key string) {
	f.Date = anon.Date(key, f.Date)
}

// Comorbidities is the panel of concurrent conditions with an optional
// Charlson index.
type Comorbidities struct {
	ID            uuid.UUID         `json:"id"`
	Description   string            `json:"description"`
	CaseID        uuid.UUID         `json:"caseId"`
	Date          time.Time         `json:"date"`
	Conditions    []terminology.Ref `json:"conditions,omitempty"`
	CharlsonIndex *int              `json:"charlsonIndex,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	CreatedBy string    `json:"createdBy"`
	UpdatedBy []string  `json:"updatedBy"`
}

func (c *Comorbidities) Validate() error {
	if c.Date.IsZero() {
		return errors.New("record date is required")
	}
	if c.CharlsonIndex != nil && *c.CharlsonIndex < 0 {
		return errors.New("charlson index must not be negative")
	}
	return nil
}

func (c *Comorbidities) Describe() string {
	return fmt.Sprintf("Comorbidities panel (%d conditions)", len(c.Conditions))
}

func (c *Comorbidities) ConditionCodes() []string {
	codes := make([]string, 0, len(c.Conditions))
	for _, cond := range c.Conditions {
		codes = append(codes, cond.Code)
	}
	return codes
}

func (c *Comorbidities) Anonymize(anon *anonymize.Anonymizer, key string) {
	c.Date = anon.Date(key, c.Date)
}

// Vitals is an anthropometric and blood-pressure measurement set.
type Vitals struct {
	ID          uuid.UUID `json:"id"`
	Description string    `json:"description"`
	CaseID      uuid.UUID `json:"caseId"`
	Date        time.Time `json:"date"`
	HeightCm    *float64  `json:"heightCm,omitempty"`
	WeightKg    *float64  `json:"weightKg,omitempty"`
	Systolic    *float64  `json:"bloodPressureSystolic,omitempty"`
	Diastolic   *float64  `json:"bloodPressureDiastolic,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	CreatedBy string    `json:"createdBy"`
	UpdatedBy []string  `json:"updatedBy"`
}

func (v *Vitals) Validate() error {
	if v.Date.IsZero() {
		return errors.New("record date is required")
	}
	for _, m := range []*float64{v.HeightCm, v.WeightKg, v.Systolic, v.Diastolic} {
		if m != nil && *m <= 0 {
			return errors.New("vital measurements must be positive")
		}
	}
	return nil
}

func (v *Vitals) Describe() string {
	return "Vitals record"
}

// BodyMassIndex derives kg/m2 when both measurements are present.
func (v *Vitals) BodyMassIndex() *float64 {
	if v.HeightCm == nil || v.WeightKg == nil || *v.HeightCm == 0 {
		return nil
	}
	meters := *v.HeightCm / 100
	bmi := *v.WeightKg / (meters * meters)
	return &bmi
}

func (v *Vitals) Anonymize(anon *anonymize.Anonymizer, key string) {
	v.Date = anon.Date(key, v.Date)
}

// RiskAssessment is a methodology-scored risk classification.
type RiskAssessment struct {
	ID             uuid.UUID        `json:"id"`
	Description    string           `json:"description"`
	CaseID         uuid.UUID        `json:"caseId"`
	Date           time.Time        `json:"date"`
	Methodology    *terminology.Ref `json:"methodology,omitempty"`
	Classification string           `json:"riskClassification,omitempty"`
	Score          *float64         `json:"score,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	CreatedBy string    `json:"createdBy"`
	UpdatedBy []string  `json:"updatedBy"`
}

func (r *RiskAssessment) Validate() error {
	if r.Date.IsZero() {
		return errors.New("assessment date is required")
	}
	if r.Classification == "" && r.Score == nil {
		return errors.New("a risk classification or score is required")
	}
	return nil
}

func (r *RiskAssessment) Describe() string {
	if r.Classification != "" {
		return "Risk assessment: " + r.Classification
	}
	return "Risk assessment"
}

func (r *RiskAssessment) Anonymize(anon *anonymize.Anonymizer, key string) {
	r.Date = anon.Date(key, r.Date)
}

// TumorMarker is a single analyte measurement from a collection.
type TumorMarker struct {
	ID          uuid.UUID       `json:"id"`
	Description string          `json:"description"`
	CaseID      uuid.UUID       `json:"caseId"`
	Date        time.Time       `json:"date"`
	Analyte     terminology.Ref `json:"analyte"`
	Value       *float64        `json:"value,omitempty"`
	Unit        string          `json:"unit,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	CreatedBy string    `json:"createdBy"`
	UpdatedBy []string  `json:"updatedBy"`
}

func (t *TumorMarker) Validate() error {
	if t.Date.IsZero() {
		return errors.New("collection date is required")
	}
	if t.Analyte.Code == "" {
		return errors.New("analyte is required")
	}
	if t.Value != nil && t.Unit == "" {
		return errors.New("a measured value requires a unit")
	}
	return nil
}

func (t *TumorMarker) Describe() string {
	name := t.Analyte.Code
	if t.Analyte.Display != "" {
		name = t.Analyte.Display
	}
	if t.Value != nil {
		return fmt.Sprintf("%s %g %s", name, *t.Value, t.Unit)
	}
	return name
}

func (t *TumorMarker) Anonymize(anon *anonymize.Anonymizer, key string) {
	t.Date = anon.Date(key, t.Date)
}
