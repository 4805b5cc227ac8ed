package genomics

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"encoding/json"

	"github.com/google/uuid"

	"github.com/onconova/onconova/internal/domain/terminology"
	"github.com/onconova/onconova/internal/platform/anonymize"
)

var (
	// ErrNotFound is returned when a variant or signature does not exist.
	ErrNotFound = errors.New("genomic record not found")
	// ErrCategoryMismatch is returned when a payload's discriminator
	// differs from the stored parent row.
	ErrCategoryMismatch = errors.New("signature category mismatch")
	// ErrInvalid wraps model validation failures.
	ErrInvalid = errors.New("validation failed")
)

// History kinds.
const (
	VariantKind        = "genomic-variant"
	SignatureKind      = "genomic-signature"
	SignatureValueKind = SignatureKind + "/value"
)

// Variant is a genomic variant finding tied to a case.
type Variant struct {
	ID          uuid.UUID         `json:"id"`
	Description string            `json:"description"`
	CaseID      uuid.UUID         `json:"caseId"`
	Date        time.Time         `json:"date"`
	Genes       []terminology.Ref `json:"genes"`
	HGVS        []string          `json:"hgvsExpressions"`

	Pathogenicity       string          `json:"pathogenicity,omitempty"`
	GenePanel           string          `json:"genePanel,omitempty"`
	ClinicalAnnotations json.RawMessage `json:"clinicalAnnotations,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	CreatedBy string    `json:"createdBy"`
	UpdatedBy []string  `json:"updatedBy"`
}

func (v *Variant) Validate() error {
	if v.Date.IsZero() {
		return errors.New("variant date is required")
	}
	if len(v.Genes) == 0 {
		return errors.New("at least one gene is required")
	}
	for _, g := range v.Genes {
		if g.Code == "" {
			return errors.New("gene code is required")
		}
	}
	return nil
}

// GeneCodes returns the bare codes for storage and rule matching.
func (v *Variant) GeneCodes() []string {
	codes := make([]string, 0, len(v.Genes))
	for _, g := range v.Genes {
		codes = append(codes, g.Code)
	}
	return codes
}

func (v *Variant) Describe() string {
	if len(v.Genes) == 0 {
		return "Genomic variant"
	}
	names := make([]string, 0, len(v.Genes))
	for _, g := range v.Genes {
		if g.Display != "" {
			names = append(names, g.Display)
		} else {
			names = append(names, g.Code)
		}
	}
	desc := strings.Join(names, ", ") + " variant"
	if len(v.HGVS) > 0 {
		desc += " (" + v.HGVS[0] + ")"
	}
	return desc
}

// Anonymize shifts the variant date, keyed by the case key.
func (v *Variant) Anonymize(anon *anonymize.Anonymizer, key string) {
	v.Date = anon.Date(key, v.Date)
}

// SignatureCategory is the polymorphic discriminator of a genomic
// signature.
type SignatureCategory string

const (
	CategoryTumorMutationalBurden            SignatureCategory = "tumor-mutational-burden"
	CategoryMicrosatelliteInstability        SignatureCategory = "microsatellite-instability"
	CategoryLossOfHeterozygosity             SignatureCategory = "loss-of-heterozygosity"
	CategoryHomologousRecombinationDeficiency SignatureCategory = "homologous-recombination-deficiency"
	CategoryTumorNeoantigenBurden            SignatureCategory = "tumor-neoantigen-burden"
	CategoryAneuploidScore                   SignatureCategory = "aneuploid-score"
)

func (c SignatureCategory) Valid() bool {
	switch c {
	case CategoryTumorMutationalBurden, CategoryMicrosatelliteInstability,
		CategoryLossOfHeterozygosity, CategoryHomologousRecombinationDeficiency,
		CategoryTumorNeoantigenBurden, CategoryAneuploidScore:
		return true
	}
	return false
}

var categoryNames = map[SignatureCategory]string{
	CategoryTumorMutationalBurden:             "Tumor mutational burden",
	CategoryMicrosatelliteInstability:         "Microsatellite instability",
	CategoryLossOfHeterozygosity:              "Loss of heterozygosity",
	CategoryHomologousRecombinationDeficiency: "Homologous recombination deficiency",
	CategoryTumorNeoantigenBurden:             "Tumor neoantigen burden",
	CategoryAneuploidScore:                    "Aneuploid score",
}

// SignatureValue is the measured child row shared by all categories.
type SignatureValue struct {
	Value  *float64 `json:"value,omitempty"`
	Unit   string   `json:"unit,omitempty"`
	Status string   `json:"status,omitempty"`
}

// Signature is the polymorphic genomic signature aggregate.
type Signature struct {
	ID          uuid.UUID         `json:"id"`
	Description string            `json:"description"`
	CaseID      uuid.UUID         `json:"caseId"`
	Date        time.Time         `json:"date"`
	Category    SignatureCategory `json:"category"`
	Result      *SignatureValue   `json:"result"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	CreatedBy string    `json:"createdBy"`
	UpdatedBy []string  `json:"updatedBy"`
}

func (s *Signature) Validate() error {
	if !s.Category.Valid() {
		return fmt.Errorf("invalid signature category %q", s.Category)
	}
	if s.Date.IsZero() {
		return errors.New("signature date is required")
	}
	if s.Result == nil {
		return errors.New("signature result is required")
	}
	if s.Result.Value == nil && s.Result.Status == "" {
		return errors.New("signature result needs a value or a status")
	}
	return nil
}

func (s *Signature) Describe() string {
	name := categoryNames[s.Category]
	if name == "" {
		name = string(s.Category)
	}
	if s.Result != nil {
		if s.Result.Value != nil {
			if s.Result.Unit != "" {
				return fmt.Sprintf("%s %g %s", name, *s.Result.Value, s.Result.Unit)
			}
			return fmt.Sprintf("%s %g", name, *s.Result.Value)
		}
		if s.Result.Status != "" {
			return name + " " + s.Result.Status
		}
	}
	return name
}

// Anonymize shifts the signature date, keyed by the case key.
func (s *Signature) Anonymize(anon *anonymize.Anonymizer, key string) {
	s.Date = anon.Date(key, s.Date)
}
