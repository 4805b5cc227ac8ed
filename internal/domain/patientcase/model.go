package patientcase

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/onconova/onconova/internal/domain/terminology"
	"github.com/onconova/onconova/internal/platform/anonymize"
)

var (
	// ErrNotFound is returned when a case or entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned on pseudoidentifier or clinical
	// identifier collisions.
	ErrConflict = errors.New("conflict")
	// ErrInvalid wraps model validation failures.
	ErrInvalid = errors.New("validation failed")
)

// VitalStatus of a patient case.
type VitalStatus string

const (
	StatusAlive    VitalStatus = "alive"
	StatusDeceased VitalStatus = "deceased"
	StatusUnknown  VitalStatus = "unknown"
)

// EntityKind under which case events are recorded.
const EntityKind = "patient-case"

// Case is the root aggregate all clinical entities belong to.
type Case struct {
	ID                 uuid.UUID        `json:"id"`
	Description        string           `json:"description"`
	Pseudoidentifier   string           `json:"pseudoidentifier"`
	ClinicalCenter     string           `json:"clinicalCenter"`
	ClinicalIdentifier *string          `json:"clinicalIdentifier,omitempty"`
	DateOfBirth        time.Time        `json:"dateOfBirth"`
	VitalStatus        VitalStatus      `json:"vitalStatus"`
	DateOfDeath        *time.Time       `json:"dateOfDeath,omitempty"`
	CauseOfDeath       *terminology.Ref `json:"causeOfDeath,omitempty"`
	EndOfRecords       *time.Time       `json:"endOfRecords,omitempty"`

	Age            any      `json:"age,omitempty"`
	AgeAtDiagnosis any      `json:"ageAtDiagnosis,omitempty"`
	Contributors   []string `json:"contributors,omitempty"`
	CompletionRate float64  `json:"dataCompletionRate"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	CreatedBy string    `json:"createdBy"`
	UpdatedBy []string  `json:"updatedBy"`
}

// Describe renders the stable human-readable description.
func (c *Case) Describe() string {
	return fmt.Sprintf("Patient case %s", c.Pseudoidentifier)
}

// Validate enforces the vital-status invariants.
func (c *Case) Validate() error {
	if c.ClinicalCenter == "" {
		return errors.New("clinical center is required")
	}
	if c.DateOfBirth.IsZero() {
		return errors.New("date of birth is required")
	}
	switch c.VitalStatus {
	case StatusAlive:
		if c.DateOfDeath != nil || c.CauseOfDeath != nil || c.EndOfRecords != nil {
			return errors.New("an alive case cannot carry death or end-of-records data")
		}
	case StatusDeceased:
		if c.DateOfDeath == nil {
			return errors.New("a deceased case requires a date of death")
		}
		if c.EndOfRecords != nil {
			return errors.New("a deceased case cannot carry end-of-records data")
		}
	case StatusUnknown:
		if c.EndOfRecords == nil {
			return errors.New("a case with unknown vital status requires an end of records date")
		}
		if c.DateOfDeath != nil || c.CauseOfDeath != nil {
			return errors.New("a case with unknown vital status cannot carry death data")
		}
	default:
		return fmt.Errorf("invalid vital status %q", c.VitalStatus)
	}
	return nil
}

// referenceDate is the endpoint for age computation: death, end of
// records, or today.
func (c *Case) referenceDate(now time.Time) time.Time {
	if c.DateOfDeath != nil {
		return *c.DateOfDeath
	}
	if c.EndOfRecords != nil {
		return *c.EndOfRecords
	}
	return now
}

// AgeYears computes the full years between birth and the reference date.
func (c *Case) AgeYears(now time.Time) int {
	return yearsBetween(c.DateOfBirth, c.referenceDate(now))
}

func yearsBetween(from, to time.Time) int {
	years := to.Year() - from.Year()
	if to.Month() < from.Month() || (to.Month() == from.Month() && to.Day() < from.Day()) {
		years--
	}
	if years < 0 {
		years = 0
	}
	return years
}

// Anonymize redacts and shifts the case's identifying fields in place,
// keyed by the pseudoidentifier.
func (c *Case) Anonymize(anon *anonymize.Anonymizer) {
	key := c.Pseudoidentifier
	if c.ClinicalIdentifier != nil {
		redacted := anonymize.Redacted
		c.ClinicalIdentifier = &redacted
	}
	c.DateOfBirth = time.Date(anonymize.YearOnly(c.DateOfBirth), time.January, 1, 0, 0, 0, 0, time.UTC)
	c.DateOfDeath = anon.DatePtr(key, c.DateOfDeath)
	c.EndOfRecords = anon.DatePtr(key, c.EndOfRecords)
	if age, ok := c.Age.(int); ok {
		c.Age = anonymize.BinAge(age)
	}
	if age, ok := c.AgeAtDiagnosis.(int); ok {
		c.AgeAtDiagnosis = anonymize.BinAge(age)
	}
}

// Relationship of a neoplastic entity to the disease course.
type Relationship string

const (
	RelationshipPrimary    Relationship = "primary"
	RelationshipMetastatic Relationship = "metastatic"
	RelationshipRecurrence Relationship = "recurrence"
)

// NeoplasticEntityKind is the history kind for neoplastic entities.
const NeoplasticEntityKind = "neoplastic-entity"

// NeoplasticEntity is one tumor entity of a case.
type NeoplasticEntity struct {
	ID               uuid.UUID        `json:"id"`
	Description      string           `json:"description"`
	CaseID           uuid.UUID        `json:"caseId"`
	Relationship     Relationship     `json:"relationship"`
	Topography       *terminology.Ref `json:"topography,omitempty"`
	Morphology       *terminology.Ref `json:"morphology,omitempty"`
	AssertionDate    time.Time        `json:"assertionDate"`
	RelatedPrimaryID *uuid.UUID       `json:"relatedPrimaryId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	CreatedBy string    `json:"createdBy"`
	UpdatedBy []string  `json:"updatedBy"`
}

func (e *NeoplasticEntity) Describe() string {
	label := string(e.Relationship)
	if e.Topography != nil && e.Topography.Display != "" {
		return fmt.Sprintf("%s neoplasm of %s", titleCase(label), e.Topography.Display)
	}
	return fmt.Sprintf("%s neoplasm", titleCase(label))
}

func (e *NeoplasticEntity) Validate() error {
	switch e.Relationship {
	case RelationshipPrimary:
		if e.RelatedPrimaryID != nil {
			return errors.New("a primary entity cannot reference a related primary")
		}
	case RelationshipMetastatic, RelationshipRecurrence:
	default:
		return fmt.Errorf("invalid relationship %q", e.Relationship)
	}
	if e.AssertionDate.IsZero() {
		return errors.New("assertion date is required")
	}
	return nil
}

// Anonymize shifts the assertion date, keyed by the case key.
func (e *NeoplasticEntity) Anonymize(anon *anonymize.Anonymizer, key string) {
	e.AssertionDate = anon.Date(key, e.AssertionDate)
}

func titleCase(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
