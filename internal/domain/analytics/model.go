// Package analytics serves the dashboard aggregates and the per-cohort
// survival analyses. Everything here is read-only and computed on
// demand from the curated records.
package analytics

import (
	"errors"

	"github.com/onconova/onconova/pkg/stats"
)

var (
	ErrNotFound     = errors.New("analysis target not found")
	ErrUnknownTrait = errors.New("unknown distribution trait")
)

// DashboardStats is the landing-page counter set.
type DashboardStats struct {
	Cases           int `json:"cases"`
	NeoplasticEntities int `json:"neoplasticEntities"`
	GenomicVariants int `json:"genomicVariants"`
	Projects        int `json:"projects"`
	Cohorts         int `json:"cohorts"`
	Datasets        int `json:"datasets"`
	Users           int `json:"users"`
}

// SiteCount is one primary tumor site with its case count.
type SiteCount struct {
	Site  string `json:"site"`
	Count int    `json:"count"`
}

// MonthCount is the number of cases registered in one calendar month.
type MonthCount struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// TraitCount is one value of a categorical case trait with its count.
type TraitCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// GeneCount is one mutated gene with the number of cohort cases
// carrying at least one variant in it.
type GeneCount struct {
	Gene      string  `json:"gene"`
	Cases     int     `json:"cases"`
	Frequency float64 `json:"frequency"`
}

// SurvivalCurve is a labeled Kaplan-Meier estimate.
type SurvivalCurve struct {
	Label          string                `json:"label"`
	Subjects       int                   `json:"subjects"`
	Events         int                   `json:"events"`
	MedianSurvival *float64              `json:"medianSurvival,omitempty"`
	Points         []stats.SurvivalPoint `json:"points"`
}

// OthersBucket collects the long tail of a top-N grouping.
const OthersBucket = "Others"
