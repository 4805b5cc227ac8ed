package therapy

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/onconova/onconova/internal/domain/terminology"
	"github.com/onconova/onconova/internal/platform/anonymize"
	"github.com/onconova/onconova/pkg/measures"
)

var (
	// ErrNotFound is returned when a treatment record does not exist.
	ErrNotFound = errors.New("treatment not found")
	// ErrInvalid wraps model validation failures.
	ErrInvalid = errors.New("validation failed")
)

// History kinds.
const (
	SystemicTherapyKind   = "systemic-therapy"
	SurgeryKind           = "surgery"
	RadiotherapyKind      = "radiotherapy"
	TreatmentResponseKind = "treatment-response"
	TherapyLineKind       = "therapy-line"
)

// Intent of a treatment or a therapy line.
type Intent string

const (
	IntentCurative   Intent = "curative"
	IntentPalliative Intent = "palliative"
)

func (i Intent) Valid() bool {
	return i == IntentCurative || i == IntentPalliative
}

// TherapyCategory classifies an antineoplastic agent.
type TherapyCategory string

const (
	CategoryImmunotherapy      TherapyCategory = "immunotherapy"
	CategoryHormoneTherapy     TherapyCategory = "hormone-therapy"
	CategoryMetabolic          TherapyCategory = "metabolic"
	CategoryAntimetastatic     TherapyCategory = "antimetastatic"
	CategoryTargeted           TherapyCategory = "targeted"
	CategoryChemotherapy       TherapyCategory = "chemotherapy"
	CategoryRadiopharmaceutical TherapyCategory = "radiopharmaceutical"
	CategoryUnclassified       TherapyCategory = "unclassified"
)

func (c TherapyCategory) Valid() bool {
	switch c {
	case CategoryImmunotherapy, CategoryHormoneTherapy, CategoryMetabolic,
		CategoryAntimetastatic, CategoryTargeted, CategoryChemotherapy,
		CategoryRadiopharmaceutical, CategoryUnclassified:
		return true
	}
	return false
}

// Period is a closed-open date range. End is open while the treatment
// is ongoing.
type Period struct {
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"`
}

func (p Period) Validate() error {
	if p.Start.IsZero() {
		return errors.New("period start is required")
	}
	if p.End != nil && p.End.Before(p.Start) {
		return errors.New("period end precedes start")
	}
	return nil
}

// Medication is one agent administered within a systemic therapy.
type Medication struct {
	ID       uuid.UUID       `json:"id"`
	Drug     terminology.Ref `json:"drug"`
	Category TherapyCategory `json:"therapyCategory"`
	Route    *terminology.Ref `json:"route,omitempty"`
	OffLabel bool            `json:"offLabel"`
	WithinSOC bool           `json:"withinSoc"`
	Dosages  []measures.Quantity `json:"dosages,omitempty"`
}

func (m *Medication) Validate() error {
	if m.Drug.Code == "" {
		return errors.New("medication drug is required")
	}
	if m.Category == "" {
		m.Category = CategoryUnclassified
	}
	if !m.Category.Valid() {
		return fmt.Errorf("invalid therapy category %q", m.Category)
	}
	// Dosages are a disjoint set: at most one entry per dimensional
	// form, so a mass dose and a mass-per-area dose may coexist but
	// two mass doses may not.
	forms := map[string]bool{}
	for _, q := range m.Dosages {
		meas, err := measures.Classify(q.Unit)
		if err != nil {
			return fmt.Errorf("dosage unit %q is not recognized", q.Unit)
		}
		if forms[meas.Name] {
			return fmt.Errorf("duplicate %s dosage for drug %s", meas.Name, m.Drug.Code)
		}
		forms[meas.Name] = true
	}
	return nil
}

// SystemicTherapy is a drug-based treatment over a period.
type SystemicTherapy struct {
	ID          uuid.UUID   `json:"id"`
	Description string      `json:"description"`
	CaseID      uuid.UUID   `json:"caseId"`
	Period      Period      `json:"period"`
	Cycles      *int        `json:"cycles,omitempty"`
	Intent      Intent      `json:"intent"`
	Role        *terminology.Ref `json:"role,omitempty"`
	TerminationReason *terminology.Ref `json:"terminationReason,omitempty"`
	TherapyLineID     *uuid.UUID       `json:"therapyLineId,omitempty"`
	TargetedEntityIDs []uuid.UUID      `json:"targetedEntityIds"`
	Medications       []Medication     `json:"medications"`

	DrugCombination []string `json:"drugCombination"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	CreatedBy string    `json:"createdBy"`
	UpdatedBy []string  `json:"updatedBy"`
}

func (t *SystemicTherapy) Validate() error {
	if err := t.Period.Validate(); err != nil {
		return err
	}
	if !t.Intent.Valid() {
		return fmt.Errorf("invalid intent %q", t.Intent)
	}
	if len(t.Medications) == 0 {
		return errors.New("at least one medication is required")
	}
	for i := range t.Medications {
		if err := t.Medications[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Combination returns the sorted tuple of drug codes across the
// therapy's medications.
func (t *SystemicTherapy) Combination() []string {
	codes := make([]string, 0, len(t.Medications))
	for _, m := range t.Medications {
		codes = append(codes, m.Drug.Code)
	}
	sort.Strings(codes)
	return codes
}

// Categories returns the distinct therapy categories of the therapy's
// medications.
func (t *SystemicTherapy) Categories() []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range t.Medications {
		c := string(m.Category)
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

func (t *SystemicTherapy) Describe() string {
	names := make([]string, 0, len(t.Medications))
	for _, m := range t.Medications {
		if m.Drug.Display != "" {
			names = append(names, m.Drug.Display)
		} else {
			names = append(names, m.Drug.Code)
		}
	}
	if len(names) == 0 {
		return "Systemic therapy"
	}
	return "Systemic therapy with " + strings.Join(names, " + ")
}

// Anonymize shifts the therapy period, keyed by the case key.
func (t *SystemicTherapy) Anonymize(anon *anonymize.Anonymizer, key string) {
	t.Period.Start, t.Period.End = anon.Period(key, t.Period.Start, t.Period.End)
}

// Surgery is a single-date surgical treatment.
type Surgery struct {
	ID          uuid.UUID        `json:"id"`
	Description string           `json:"description"`
	CaseID      uuid.UUID        `json:"caseId"`
	Date        time.Time        `json:"date"`
	Procedure   *terminology.Ref `json:"procedure,omitempty"`
	Intent      Intent           `json:"intent"`
	Bodysite    *terminology.Ref `json:"bodysite,omitempty"`
	Outcome     string           `json:"outcome,omitempty"`
	TherapyLineID *uuid.UUID     `json:"therapyLineId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	CreatedBy string    `json:"createdBy"`
	UpdatedBy []string  `json:"updatedBy"`
}

func (s *Surgery) Validate() error {
	if s.Date.IsZero() {
		return errors.New("surgery date is required")
	}
	if !s.Intent.Valid() {
		return fmt.Errorf("invalid intent %q", s.Intent)
	}
	return nil
}

func (s *Surgery) Describe() string {
	if s.Procedure != nil && s.Procedure.Display != "" {
		return s.Procedure.Display
	}
	return "Surgery"
}

func (s *Surgery) Anonymize(anon *anonymize.Anonymizer, key string) {
	s.Date = anon.Date(key, s.Date)
}

// Radiotherapy is a radiation treatment over a period.
type Radiotherapy struct {
	ID          uuid.UUID       `json:"id"`
	Description string          `json:"description"`
	CaseID      uuid.UUID       `json:"caseId"`
	Period      Period          `json:"period"`
	Intent      Intent          `json:"intent"`
	Dosages     json.RawMessage `json:"dosages,omitempty"`
	Settings    json.RawMessage `json:"settings,omitempty"`
	TargetedEntityIDs []uuid.UUID `json:"targetedEntityIds"`
	TherapyLineID     *uuid.UUID  `json:"therapyLineId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	CreatedBy string    `json:"createdBy"`
	UpdatedBy []string  `json:"updatedBy"`
}

func (r *Radiotherapy) Validate() error {
	if err := r.Period.Validate(); err != nil {
		return err
	}
	if !r.Intent.Valid() {
		return fmt.Errorf("invalid intent %q", r.Intent)
	}
	return nil
}

func (r *Radiotherapy) Describe() string {
	return "Radiotherapy"
}

func (r *Radiotherapy) Anonymize(anon *anonymize.Anonymizer, key string) {
	r.Period.Start, r.Period.End = anon.Period(key, r.Period.Start, r.Period.End)
}

// TreatmentResponse is a RECIST response assessment.
type TreatmentResponse struct {
	ID          uuid.UUID       `json:"id"`
	Description string          `json:"description"`
	CaseID      uuid.UUID       `json:"caseId"`
	Date        time.Time       `json:"date"`
	Recist      terminology.Ref `json:"recist"`
	Methodology *terminology.Ref `json:"methodology,omitempty"`
	AssessedEntityIDs []uuid.UUID `json:"assessedEntityIds"`
	AssessedBodysites []string    `json:"assessedBodysites"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	CreatedBy string    `json:"createdBy"`
	UpdatedBy []string  `json:"updatedBy"`
}

func (r *TreatmentResponse) Validate() error {
	if r.Date.IsZero() {
		return errors.New("assessment date is required")
	}
	if r.Recist.Code == "" {
		return errors.New("recist classification is required")
	}
	return nil
}

// progressionCodes is the RECIST family signalling disease progression.
var progressionCodes = map[string]bool{
	"PD":   true,
	"iUPD": true,
	"iCPD": true,
}

// IsProgression reports whether the assessment signals progression.
func (r *TreatmentResponse) IsProgression() bool {
	return progressionCodes[r.Recist.Code]
}

func (r *TreatmentResponse) Describe() string {
	if r.Recist.Display != "" {
		return "Treatment response: " + r.Recist.Display
	}
	return "Treatment response: " + r.Recist.Code
}

func (r *TreatmentResponse) Anonymize(anon *anonymize.Anonymizer, key string) {
	r.Date = anon.Date(key, r.Date)
}

// TherapyLine is an aggregate over a maximal run of same-intent
// treatments. Lines are derived, not authored.
type TherapyLine struct {
	ID      uuid.UUID `json:"id"`
	CaseID  uuid.UUID `json:"caseId"`
	Ordinal int       `json:"ordinal"`
	Intent  Intent    `json:"intent"`
	Label   string    `json:"label"`

	PeriodStart *time.Time `json:"periodStart,omitempty"`
	PeriodEnd   *time.Time `json:"periodEnd,omitempty"`

	ProgressionFreeSurvival *float64 `json:"progressionFreeSurvival,omitempty"`
	TherapyClassification   string   `json:"therapyClassification,omitempty"`
	DrugCombinations        [][]string `json:"drugCombinations,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	CreatedBy string    `json:"createdBy"`
	UpdatedBy []string  `json:"updatedBy"`
}

// LineLabel renders the conventional short label of a line.
func LineLabel(intent Intent, ordinal int) string {
	if intent == IntentCurative {
		return fmt.Sprintf("CLoT%d", ordinal)
	}
	return fmt.Sprintf("PLoT%d", ordinal)
}

// Anonymize shifts the line period, keyed by the case key.
func (l *TherapyLine) Anonymize(anon *anonymize.Anonymizer, key string) {
	if l.PeriodStart != nil {
		start := anon.Date(key, *l.PeriodStart)
		l.PeriodStart = &start
	}
	l.PeriodEnd = anon.DatePtr(key, l.PeriodEnd)
}
