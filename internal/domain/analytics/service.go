package analytics

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/onconova/onconova/internal/domain/research"
	"github.com/onconova/onconova/internal/domain/therapy"
	"github.com/onconova/onconova/pkg/pagination"
	"github.com/onconova/onconova/pkg/stats"
)

// daysPerMonth matches the survival month used by therapy-line
// inference.
const daysPerMonth = 30.4375

// linePageSize bounds per-case therapy line listings during cohort
// analyses.
const linePageSize = 1000

// defaultTopN bounds grouped survival analyses and the oncoplot.
const defaultTopN = 10

// CohortSource resolves a cohort to its member case ids; the research
// service provides it.
type CohortSource interface {
	GetCohort(ctx context.Context, id uuid.UUID) (*research.Cohort, error)
}

// LineSource lists the decorated therapy lines of a case; the therapy
// service provides it.
type LineSource interface {
	ListLines(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*therapy.TherapyLine, int, error)
}

type Service struct {
	repo    Repository
	cohorts CohortSource
	lines   LineSource
}

func NewService(repo Repository, cohorts CohortSource, lines LineSource) *Service {
	return &Service{repo: repo, cohorts: cohorts, lines: lines}
}

func (s *Service) DashboardStats(ctx context.Context) (*DashboardStats, error) {
	return s.repo.DashboardCounts(ctx)
}

func (s *Service) PrimarySiteStats(ctx context.Context) ([]SiteCount, error) {
	return s.repo.PrimarySiteCounts(ctx, 25)
}

func (s *Service) CasesOverTime(ctx context.Context) ([]MonthCount, error) {
	points, err := s.repo.CasesOverTime(ctx)
	if err != nil {
		return nil, err
	}
	// Cumulative growth curve.
	total := 0
	for i := range points {
		total += points[i].Count
		points[i].Count = total
	}
	return points, nil
}

// CohortOverallSurvival estimates overall survival from diagnosis for
// the cohort members.
func (s *Service) CohortOverallSurvival(ctx context.Context, cohortID uuid.UUID) (*SurvivalCurve, error) {
	caseIDs, err := s.cohortCases(ctx, cohortID)
	if err != nil {
		return nil, err
	}
	observations, err := s.repo.SurvivalObservations(ctx, caseIDs)
	if err != nil {
		return nil, err
	}
	return buildCurve("Overall survival", observations), nil
}

// CohortProgressionFreeSurvival estimates one curve per therapy-line
// label across the cohort. Lines without a progression event are
// censored at their period length.
func (s *Service) CohortProgressionFreeSurvival(ctx context.Context, cohortID uuid.UUID) ([]*SurvivalCurve, error) {
	lines, err := s.cohortLines(ctx, cohortID)
	if err != nil {
		return nil, err
	}
	groups := map[string][]stats.Observation{}
	for _, l := range lines {
		if o, ok := pfsObservation(l); ok {
			groups[l.Label] = append(groups[l.Label], o)
		}
	}
	return sortedCurves(groups), nil
}

// CohortPFSByCombination groups the lines carrying the given label by
// drug combination, keeping the topN most frequent combinations and
// collapsing the rest into Others.
func (s *Service) CohortPFSByCombination(ctx context.Context, cohortID uuid.UUID, label string, topN int) ([]*SurvivalCurve, error) {
	return s.groupedPFS(ctx, cohortID, label, topN, func(l *therapy.TherapyLine) []string {
		keys := make([]string, 0, len(l.DrugCombinations))
		for _, combo := range l.DrugCombinations {
			if len(combo) > 0 {
				keys = append(keys, strings.Join(combo, " + "))
			}
		}
		return keys
	})
}

// CohortPFSByClassification groups the lines carrying the given label
// by therapy classification.
func (s *Service) CohortPFSByClassification(ctx context.Context, cohortID uuid.UUID, label string, topN int) ([]*SurvivalCurve, error) {
	return s.groupedPFS(ctx, cohortID, label, topN, func(l *therapy.TherapyLine) []string {
		if l.TherapyClassification == "" {
			return nil
		}
		return []string{l.TherapyClassification}
	})
}

func (s *Service) CohortDistribution(ctx context.Context, cohortID uuid.UUID, trait string) ([]TraitCount, error) {
	caseIDs, err := s.cohortCases(ctx, cohortID)
	if err != nil {
		return nil, err
	}
	return s.repo.TraitCounts(ctx, trait, caseIDs)
}

// CohortOncoplot ranks the most frequently mutated genes across the
// cohort.
func (s *Service) CohortOncoplot(ctx context.Context, cohortID uuid.UUID, topN int) ([]GeneCount, error) {
	if topN <= 0 {
		topN = defaultTopN
	}
	caseIDs, err := s.cohortCases(ctx, cohortID)
	if err != nil {
		return nil, err
	}
	return s.repo.GeneVariantCounts(ctx, caseIDs, topN)
}

func (s *Service) cohortCases(ctx context.Context, cohortID uuid.UUID) ([]uuid.UUID, error) {
	cohort, err := s.cohorts.GetCohort(ctx, cohortID)
	if err != nil {
		return nil, err
	}
	return cohort.Cases, nil
}

func (s *Service) cohortLines(ctx context.Context, cohortID uuid.UUID) ([]*therapy.TherapyLine, error) {
	caseIDs, err := s.cohortCases(ctx, cohortID)
	if err != nil {
		return nil, err
	}
	var out []*therapy.TherapyLine
	for _, caseID := range caseIDs {
		lines, _, err := s.lines.ListLines(ctx, caseID, pagination.Params{Limit: linePageSize})
		if err != nil {
			return nil, err
		}
		out = append(out, lines...)
	}
	return out, nil
}

// groupedPFS buckets the lines with the given label by the keys the
// classifier yields, keeps the topN buckets by subject count and
// collapses the remainder into Others.
func (s *Service) groupedPFS(ctx context.Context, cohortID uuid.UUID, label string, topN int,
	classify func(*therapy.TherapyLine) []string) ([]*SurvivalCurve, error) {
	if topN <= 0 {
		topN = defaultTopN
	}
	lines, err := s.cohortLines(ctx, cohortID)
	if err != nil {
		return nil, err
	}
	groups := map[string][]stats.Observation{}
	for _, l := range lines {
		if l.Label != label {
			continue
		}
		o, ok := pfsObservation(l)
		if !ok {
			continue
		}
		for _, key := range classify(l) {
			groups[key] = append(groups[key], o)
		}
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(groups[keys[i]]) != len(groups[keys[j]]) {
			return len(groups[keys[i]]) > len(groups[keys[j]])
		}
		return keys[i] < keys[j]
	})
	if len(keys) > topN {
		var others []stats.Observation
		for _, key := range keys[topN:] {
			others = append(others, groups[key]...)
			delete(groups, key)
		}
		groups[OthersBucket] = others
		keys = append(keys[:topN], OthersBucket)
	}

	curves := make([]*SurvivalCurve, 0, len(keys))
	for _, key := range keys {
		curves = append(curves, buildCurve(key, groups[key]))
	}
	return curves, nil
}

// pfsObservation turns a therapy line into a survival observation. A
// recorded progression-free survival is an event; a finished line
// without one is censored at its period length.
func pfsObservation(l *therapy.TherapyLine) (stats.Observation, bool) {
	if l.ProgressionFreeSurvival != nil {
		return stats.Observation{Time: *l.ProgressionFreeSurvival, Event: true}, true
	}
	if l.PeriodStart != nil && l.PeriodEnd != nil {
		months := l.PeriodEnd.Sub(*l.PeriodStart).Hours() / 24 / daysPerMonth
		return stats.Observation{Time: months, Event: false}, true
	}
	return stats.Observation{}, false
}

func buildCurve(label string, observations []stats.Observation) *SurvivalCurve {
	curve := &SurvivalCurve{
		Label:    label,
		Subjects: len(observations),
		Points:   stats.KaplanMeier(observations),
	}
	for _, o := range observations {
		if o.Event {
			curve.Events++
		}
	}
	if median, ok := stats.MedianSurvival(curve.Points); ok {
		curve.MedianSurvival = &median
	}
	return curve
}

func sortedCurves(groups map[string][]stats.Observation) []*SurvivalCurve {
	labels := make([]string, 0, len(groups))
	for label := range groups {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	curves := make([]*SurvivalCurve, 0, len(labels))
	for _, label := range labels {
		curves = append(curves, buildCurve(label, groups[label]))
	}
	return curves
}
