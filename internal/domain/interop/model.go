// Package interop builds and ingests case bundles: a self-contained
// JSON projection of one patient case with every clinical child
// entity, used to move cases between deployments.
package interop

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/onconova/onconova/internal/domain/assessments"
	"github.com/onconova/onconova/internal/domain/genomics"
	"github.com/onconova/onconova/internal/domain/patientcase"
	"github.com/onconova/onconova/internal/domain/staging"
	"github.com/onconova/onconova/internal/domain/therapy"
	"github.com/onconova/onconova/internal/domain/tumorboard"
)

// BundleVersion tags the bundle layout.
const BundleVersion = "1.0"

var (
	// ErrConflict signals a pseudoidentifier or clinical-identifier
	// collision the caller must resolve.
	ErrConflict = errors.New("bundle conflict")
	// ErrInvalidBundle signals a malformed or incomplete bundle.
	ErrInvalidBundle = errors.New("invalid bundle")
)

// Conflict policies accepted on import.
const (
	ConflictOverwrite = "overwrite"
	ConflictReassign  = "reassign"
)

// Bundle is the exported form of a case. Therapy lines are omitted on
// purpose: they are derived and recomputed after import.
type Bundle struct {
	Version string            `json:"version"`
	Case    *patientcase.Case `json:"case"`

	NeoplasticEntities []*patientcase.NeoplasticEntity `json:"neoplasticEntities"`
	Stagings           []*staging.Staging              `json:"stagings"`
	GenomicVariants    []*genomics.Variant             `json:"genomicVariants"`
	GenomicSignatures  []*genomics.Signature           `json:"genomicSignatures"`
	SystemicTherapies  []*therapy.SystemicTherapy      `json:"systemicTherapies"`
	Surgeries          []*therapy.Surgery              `json:"surgeries"`
	Radiotherapies     []*therapy.Radiotherapy         `json:"radiotherapies"`
	TreatmentResponses []*therapy.TreatmentResponse    `json:"treatmentResponses"`
	AdverseEvents      []*assessments.AdverseEvent     `json:"adverseEvents"`
	PerformanceStatus  []*assessments.PerformanceStatus `json:"performanceStatus"`
	Lifestyles         []*assessments.Lifestyle        `json:"lifestyles"`
	FamilyHistories    []*assessments.FamilyHistory    `json:"familyHistories"`
	Comorbidities      []*assessments.Comorbidities    `json:"comorbidities"`
	Vitals             []*assessments.Vitals           `json:"vitals"`
	RiskAssessments    []*assessments.RiskAssessment   `json:"riskAssessments"`
	TumorMarkers       []*assessments.TumorMarker      `json:"tumorMarkers"`
	TumorBoards        []*tumorboard.TumorBoard        `json:"tumorBoards"`

	Completion map[string]bool `json:"completion"`
}

// Validate checks the minimum an importable bundle must carry.
func (b *Bundle) Validate() error {
	if b.Case == nil {
		return fmt.Errorf("%w: missing case", ErrInvalidBundle)
	}
	if b.Case.Pseudoidentifier == "" {
		return fmt.Errorf("%w: case has no pseudoidentifier", ErrInvalidBundle)
	}
	return nil
}

// Checksum is the MD5 of the bundle's canonical JSON form. Struct
// fields marshal in declaration order and maps sort their keys, so the
// digest is stable for identical content.
func (b *Bundle) Checksum() (string, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return "", err
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}
