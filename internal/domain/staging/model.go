package staging

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/onconova/onconova/internal/platform/anonymize"
)

var (
	// ErrNotFound is returned when a staging does not exist.
	ErrNotFound = errors.New("staging not found")
	// ErrDomainMismatch is returned when a payload's discriminator
	// differs from the stored parent row.
	ErrDomainMismatch = errors.New("staging domain mismatch")
	// ErrInvalid wraps model validation failures.
	ErrInvalid = errors.New("validation failed")
)

// Domain is the polymorphic discriminator of a staging.
type Domain string

const (
	DomainTNM              Domain = "tnm"
	DomainFIGO             Domain = "figo"
	DomainBinet            Domain = "binet"
	DomainRai              Domain = "rai"
	DomainBreslow          Domain = "breslow"
	DomainClark            Domain = "clark"
	DomainISS              Domain = "iss"
	DomainRISS             Domain = "riss"
	DomainGleason          Domain = "gleason"
	DomainINSS             Domain = "inss"
	DomainINRGSS           Domain = "inrgss"
	DomainWilms            Domain = "wilms"
	DomainRhabdomyosarcoma Domain = "rhabdomyosarcoma"
	DomainLymphoma         Domain = "lymphoma"
)

// Valid reports whether the domain is a known discriminator.
func (d Domain) Valid() bool {
	switch d {
	case DomainTNM, DomainFIGO, DomainBinet, DomainRai, DomainBreslow, DomainClark,
		DomainISS, DomainRISS, DomainGleason, DomainINSS, DomainINRGSS,
		DomainWilms, DomainRhabdomyosarcoma, DomainLymphoma:
		return true
	}
	return false
}

// History kinds. Parent and child events share the parent's entity id;
// the kind tells them apart.
const (
	EntityKind = "staging"
)

// ChildKind returns the history kind of the domain's child stream.
func ChildKind(d Domain) string {
	switch d {
	case DomainTNM:
		return EntityKind + "/tnm"
	case DomainFIGO:
		return EntityKind + "/figo"
	case DomainGleason:
		return EntityKind + "/gleason"
	case DomainBreslow:
		return EntityKind + "/breslow"
	}
	return EntityKind + "/generic"
}

// TNMDetails is the AJCC TNM child variant.
type TNMDetails struct {
	T            string `json:"t,omitempty"`
	N            string `json:"n,omitempty"`
	M            string `json:"m,omitempty"`
	StageGroup   string `json:"stageGroup,omitempty"`
	Edition      string `json:"edition,omitempty"`
	IsPathologic bool   `json:"isPathologic"`
}

// FIGODetails is the gynecologic FIGO child variant.
type FIGODetails struct {
	Stage       string `json:"stage"`
	Methodology string `json:"methodology,omitempty"`
}

// GleasonDetails is the prostate Gleason child variant: a pair of
// pattern grades rather than a stage string.
type GleasonDetails struct {
	PrimaryPattern   int `json:"primaryPattern"`
	SecondaryPattern int `json:"secondaryPattern"`
}

// Score is the conventional sum of the two patterns.
func (d *GleasonDetails) Score() int {
	return d.PrimaryPattern + d.SecondaryPattern
}

func (d *GleasonDetails) validate() error {
	if d.PrimaryPattern < 1 || d.PrimaryPattern > 5 {
		return fmt.Errorf("gleason primary pattern %d out of range 1-5", d.PrimaryPattern)
	}
	if d.SecondaryPattern < 1 || d.SecondaryPattern > 5 {
		return fmt.Errorf("gleason secondary pattern %d out of range 1-5", d.SecondaryPattern)
	}
	return nil
}

// BreslowDetails is the melanoma Breslow child variant: a tumor
// thickness measurement, not a stage string.
type BreslowDetails struct {
	ThicknessMM float64 `json:"thicknessMm"`
	Ulceration  bool    `json:"ulceration"`
}

func (d *BreslowDetails) validate() error {
	if d.ThicknessMM <= 0 {
		return fmt.Errorf("breslow thickness %g must be positive", d.ThicknessMM)
	}
	return nil
}

// GenericDetails covers the remaining staging systems, whose payload
// is a single stage value plus methodology.
type GenericDetails struct {
	Stage       string `json:"stage"`
	Methodology string `json:"methodology,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// Staging is the polymorphic staging aggregate: a parent row carrying
// the discriminator plus exactly one child variant.
type Staging struct {
	ID          uuid.UUID `json:"id"`
	Description string    `json:"description"`
	CaseID      uuid.UUID `json:"caseId"`
	Date        time.Time `json:"date"`
	Domain      Domain    `json:"stagingDomain"`

	TNM     *TNMDetails     `json:"tnm,omitempty"`
	FIGO    *FIGODetails    `json:"figo,omitempty"`
	Gleason *GleasonDetails `json:"gleason,omitempty"`
	Breslow *BreslowDetails `json:"breslow,omitempty"`
	Generic *GenericDetails `json:"generic,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	CreatedBy string    `json:"createdBy"`
	UpdatedBy []string  `json:"updatedBy"`
}

// Validate enforces the one-child-per-parent invariant against the
// discriminator.
func (s *Staging) Validate() error {
	if !s.Domain.Valid() {
		return fmt.Errorf("invalid staging domain %q", s.Domain)
	}
	if s.Date.IsZero() {
		return errors.New("staging date is required")
	}
	variants := 0
	if s.TNM != nil {
		variants++
	}
	if s.FIGO != nil {
		variants++
	}
	if s.Gleason != nil {
		variants++
	}
	if s.Breslow != nil {
		variants++
	}
	if s.Generic != nil {
		variants++
	}
	if variants != 1 {
		return errors.New("exactly one staging variant must be set")
	}
	switch s.Domain {
	case DomainTNM:
		if s.TNM == nil {
			return fmt.Errorf("%w: domain %s requires the tnm variant", ErrDomainMismatch, s.Domain)
		}
	case DomainFIGO:
		if s.FIGO == nil {
			return fmt.Errorf("%w: domain %s requires the figo variant", ErrDomainMismatch, s.Domain)
		}
	case DomainGleason:
		if s.Gleason == nil {
			return fmt.Errorf("%w: domain %s requires the gleason variant", ErrDomainMismatch, s.Domain)
		}
		return s.Gleason.validate()
	case DomainBreslow:
		if s.Breslow == nil {
			return fmt.Errorf("%w: domain %s requires the breslow variant", ErrDomainMismatch, s.Domain)
		}
		return s.Breslow.validate()
	default:
		if s.Generic == nil {
			return fmt.Errorf("%w: domain %s requires the generic variant", ErrDomainMismatch, s.Domain)
		}
	}
	return nil
}

// ChildSnapshot returns the populated variant for history recording.
func (s *Staging) ChildSnapshot() any {
	switch {
	case s.TNM != nil:
		return s.TNM
	case s.FIGO != nil:
		return s.FIGO
	case s.Gleason != nil:
		return s.Gleason
	case s.Breslow != nil:
		return s.Breslow
	default:
		return s.Generic
	}
}

func (s *Staging) Describe() string {
	switch s.Domain {
	case DomainTNM:
		if s.TNM != nil {
			parts := []string{}
			for _, v := range []string{s.TNM.T, s.TNM.N, s.TNM.M} {
				if v != "" {
					parts = append(parts, v)
				}
			}
			if len(parts) > 0 {
				return "TNM staging " + strings.Join(parts, " ")
			}
		}
		return "TNM staging"
	case DomainFIGO:
		if s.FIGO != nil && s.FIGO.Stage != "" {
			return "FIGO stage " + s.FIGO.Stage
		}
		return "FIGO staging"
	case DomainGleason:
		if s.Gleason != nil {
			return fmt.Sprintf("Gleason score %d (%d+%d)",
				s.Gleason.Score(), s.Gleason.PrimaryPattern, s.Gleason.SecondaryPattern)
		}
		return "Gleason grading"
	case DomainBreslow:
		if s.Breslow != nil {
			return fmt.Sprintf("Breslow thickness %g mm", s.Breslow.ThicknessMM)
		}
		return "Breslow depth"
	default:
		if s.Generic != nil && s.Generic.Stage != "" {
			return fmt.Sprintf("%s stage %s", strings.ToUpper(string(s.Domain[:1]))+string(s.Domain[1:]), s.Generic.Stage)
		}
		return string(s.Domain) + " staging"
	}
}

// Anonymize shifts the staging date, keyed by the case key.
func (s *Staging) Anonymize(anon *anonymize.Anonymizer, key string) {
	s.Date = anon.Date(key, s.Date)
}
