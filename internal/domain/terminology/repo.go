package terminology

import "context"

// Repository defines the persistence interface for coded concepts.
type Repository interface {
	Upsert(ctx context.Context, concept *Concept) error
	Get(ctx context.Context, system, code string) (*Concept, error)
	Search(ctx context.Context, system, query string, codes []string, limit, offset int) ([]*Concept, int, error)
	Descendants(ctx context.Context, system, code string) ([]*Concept, error)
	Count(ctx context.Context, system string) (int, error)
	DeleteSystem(ctx context.Context, system string) (int, error)
	PruneDangling(ctx context.Context, system, version string) (int, error)
}
