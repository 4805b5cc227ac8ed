// Package tumorboard tracks tumor board reviews of a case. A review is
// polymorphic: an unspecified board carries only the parent row, a
// molecular board adds the reviewed variants and its recommendations.
package tumorboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/onconova/onconova/internal/platform/anonymize"
)

var (
	// ErrNotFound is returned when a tumor board does not exist.
	ErrNotFound = errors.New("tumor board not found")
	// ErrCategoryMismatch is returned when a payload's discriminator
	// differs from the stored parent row.
	ErrCategoryMismatch = errors.New("tumor board category mismatch")
	// ErrInvalid wraps model validation failures.
	ErrInvalid = errors.New("validation failed")
)

// Category is the polymorphic discriminator of a tumor board.
type Category string

const (
	CategoryUnspecified Category = "unspecified"
	CategoryMolecular   Category = "molecular"
)

func (c Category) Valid() bool {
	return c == CategoryUnspecified || c == CategoryMolecular
}

// History kinds. The molecular child stream shares the parent's entity
// id.
const (
	EntityKind        = "tumor-board"
	MolecularChildKind = EntityKind + "/molecular"
)

// MolecularDetails is the molecular board child variant.
type MolecularDetails struct {
	ReviewedVariantIDs []uuid.UUID     `json:"reviewedVariantIds"`
	Recommendations    json.RawMessage `json:"recommendations,omitempty"`
}

// TumorBoard is the polymorphic review aggregate.
type TumorBoard struct {
	ID          uuid.UUID `json:"id"`
	Description string    `json:"description"`
	CaseID      uuid.UUID `json:"caseId"`
	Date        time.Time `json:"date"`
	Category    Category  `json:"category"`

	Molecular *MolecularDetails `json:"molecular,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	CreatedBy string    `json:"createdBy"`
	UpdatedBy []string  `json:"updatedBy"`
}

// Validate enforces the child-matches-discriminator invariant.
func (b *TumorBoard) Validate() error {
	if !b.Category.Valid() {
		return fmt.Errorf("invalid tumor board category %q", b.Category)
	}
	if b.Date.IsZero() {
		return errors.New("board date is required")
	}
	if b.Category == CategoryMolecular && b.Molecular == nil {
		return fmt.Errorf("%w: category %s requires the molecular variant", ErrCategoryMismatch, b.Category)
	}
	if b.Category == CategoryUnspecified && b.Molecular != nil {
		return fmt.Errorf("%w: category %s carries no molecular variant", ErrCategoryMismatch, b.Category)
	}
	return nil
}

func (b *TumorBoard) Describe() string {
	if b.Category == CategoryMolecular {
		if b.Molecular != nil {
			return fmt.Sprintf("Molecular tumor board (%d variants reviewed)", len(b.Molecular.ReviewedVariantIDs))
		}
		return "Molecular tumor board"
	}
	return "Tumor board"
}

// Anonymize shifts the board date, keyed by the case key.
func (b *TumorBoard) Anonymize(anon *anonymize.Anonymizer, key string) {
	b.Date = anon.Date(key, b.Date)
}
