package analytics

import (
	"context"

	"github.com/google/uuid"

	"github.com/onconova/onconova/pkg/stats"
)

// Repository runs the aggregate queries the analyses are built from.
type Repository interface {
	DashboardCounts(ctx context.Context) (*DashboardStats, error)
	PrimarySiteCounts(ctx context.Context, limit int) ([]SiteCount, error)
	CasesOverTime(ctx context.Context) ([]MonthCount, error)

	// SurvivalObservations returns, per case, the months between the
	// earliest neoplastic-entity assertion and the end of follow-up,
	// flagged as an event for deceased cases. Cases without an
	// assertion date are omitted.
	SurvivalObservations(ctx context.Context, caseIDs []uuid.UUID) ([]stats.Observation, error)

	TraitCounts(ctx context.Context, trait string, caseIDs []uuid.UUID) ([]TraitCount, error)
	GeneVariantCounts(ctx context.Context, caseIDs []uuid.UUID, limit int) ([]GeneCount, error)
}
