// Package research holds the research artifacts layered on top of the
// clinical records: projects, their data-manager grants, case cohorts
// and exportable datasets.
package research

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/onconova/onconova/internal/rules"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	// ErrInvalid wraps model validation failures.
	ErrInvalid = errors.New("validation failed")
)

// Entity kinds used for history events.
const (
	ProjectKind = "project"
	GrantKind   = "project-grant"
	CohortKind  = "cohort"
	DatasetKind = "dataset"
)

// Project statuses.
const (
	StatusPlanned   = "planned"
	StatusOngoing   = "ongoing"
	StatusCompleted = "completed"
	StatusAborted   = "aborted"
)

// Project is a research undertaking that owns datasets and grants.
type Project struct {
	ID              uuid.UUID      `json:"id"`
	Title           string         `json:"title"`
	Summary         *string        `json:"summary,omitempty"`
	Leader          string         `json:"leader"`
	Members         []string       `json:"members"`
	ClinicalCenters []string       `json:"clinicalCenters"`
	EthicsApproval  *string        `json:"ethicsApprovalNumber,omitempty"`
	Status          string         `json:"status"`
	DataConstraints map[string]any `json:"dataConstraints"`
	Description     string         `json:"description,omitempty"`
	CreatedBy       string         `json:"createdBy,omitempty"`
	UpdatedBy       []string       `json:"updatedBy,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

func (p *Project) Validate() error {
	if p.Title == "" {
		return fmt.Errorf("title is required")
	}
	if p.Leader == "" {
		return fmt.Errorf("leader is required")
	}
	if p.Status == "" {
		p.Status = StatusPlanned
	}
	switch p.Status {
	case StatusPlanned, StatusOngoing, StatusCompleted, StatusAborted:
	default:
		return fmt.Errorf("unknown project status %q", p.Status)
	}
	return nil
}

func (p *Project) Describe() string {
	return fmt.Sprintf("%s (%s)", p.Title, p.Status)
}

// Grant authorizes a project member to manage cases for the validity
// period. Periods are closed-open: valid on ValidFrom, expired on
// ValidUntil.
type Grant struct {
	ID         uuid.UUID `json:"id"`
	ProjectID  uuid.UUID `json:"projectId"`
	Member     string    `json:"member"`
	ValidFrom  time.Time `json:"validFrom"`
	ValidUntil time.Time `json:"validUntil"`
	Revoked    bool      `json:"revoked"`
	IsValid    bool      `json:"isValid"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (g *Grant) Validate() error {
	if g.Member == "" {
		return fmt.Errorf("member is required")
	}
	if g.ProjectID == uuid.Nil {
		return fmt.Errorf("project is required")
	}
	if !g.ValidUntil.After(g.ValidFrom) {
		return fmt.Errorf("validity period must end after it starts")
	}
	return nil
}

// ValidAt reports whether the grant authorizes its member at the given
// instant.
func (g *Grant) ValidAt(at time.Time) bool {
	return !g.Revoked && !at.Before(g.ValidFrom) && at.Before(g.ValidUntil)
}

func (g *Grant) Describe() string {
	return fmt.Sprintf("Data-manager grant for %s", g.Member)
}

// Cohort selects patient cases through rule trees plus manual
// additions. A non-empty frozen set pins the membership and bypasses
// rule evaluation entirely.
type Cohort struct {
	ID              uuid.UUID   `json:"id"`
	Name            string      `json:"name"`
	ProjectID       *uuid.UUID  `json:"projectId,omitempty"`
	IncludeRules    *rules.Rule `json:"includeRules,omitempty"`
	ExcludeRules    *rules.Rule `json:"excludeRules,omitempty"`
	ManualAdditions []uuid.UUID `json:"manualAdditions"`
	FrozenSet       []uuid.UUID `json:"frozenSet"`
	Description     string      `json:"description,omitempty"`
	CreatedBy       string      `json:"createdBy,omitempty"`
	UpdatedBy       []string    `json:"updatedBy,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`

	// Derived on single reads.
	Cases     []uuid.UUID `json:"cases,omitempty"`
	CaseCount int         `json:"caseCount"`
}

func (c *Cohort) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.IncludeRules != nil {
		if err := rules.Validate(*c.IncludeRules); err != nil {
			return fmt.Errorf("include rules: %w", err)
		}
	}
	if c.ExcludeRules != nil {
		if err := rules.Validate(*c.ExcludeRules); err != nil {
			return fmt.Errorf("exclude rules: %w", err)
		}
	}
	return nil
}

func (c *Cohort) Describe() string {
	return fmt.Sprintf("Cohort %s", c.Name)
}

// Frozen reports whether the membership is pinned.
func (c *Cohort) Frozen() bool {
	return len(c.FrozenSet) > 0
}

// DatasetRule selects which fields of one entity a dataset exports.
type DatasetRule struct {
	Entity string   `json:"entity"`
	Fields []string `json:"fields,omitempty"`
}

// Dataset is a named, project-owned selection of fields exported for a
// cohort.
type Dataset struct {
	ID          uuid.UUID     `json:"id"`
	Name        string        `json:"name"`
	Summary     *string       `json:"summary,omitempty"`
	ProjectID   uuid.UUID     `json:"projectId"`
	Rules       []DatasetRule `json:"rules"`
	Description string        `json:"description,omitempty"`
	CreatedBy   string        `json:"createdBy,omitempty"`
	UpdatedBy   []string      `json:"updatedBy,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`

	// Derived from export events.
	LastExport   *time.Time `json:"lastExport,omitempty"`
	TotalExports int        `json:"totalExports"`
}

func (d *Dataset) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("name is required")
	}
	if d.ProjectID == uuid.Nil {
		return fmt.Errorf("project is required")
	}
	for i, rule := range d.Rules {
		if rule.Entity == "" {
			return fmt.Errorf("rule %d: entity is required", i)
		}
		if _, ok := rules.Entities[rule.Entity]; !ok {
			return fmt.Errorf("rule %d: unknown entity %q", i, rule.Entity)
		}
	}
	return nil
}

func (d *Dataset) Describe() string {
	return fmt.Sprintf("Dataset %s", d.Name)
}

// rulesJSON serializes dataset rules for storage, defaulting to an
// empty list.
func rulesJSON(list []DatasetRule) ([]byte, error) {
	if list == nil {
		list = []DatasetRule{}
	}
	return json.Marshal(list)
}
