package terminology

import (
	"context"
	"fmt"
	"sort"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Names lists the known terminology names, sorted.
func (s *Service) Names() []string {
	names := make([]string, 0, len(Terminologies))
	for name := range Terminologies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Service) Get(ctx context.Context, name, code string) (*Concept, error) {
	system, ok := SystemForName(name)
	if !ok {
		return nil, fmt.Errorf("unknown terminology %q: %w", name, ErrNotFound)
	}
	return s.repo.Get(ctx, system, code)
}

func (s *Service) Search(ctx context.Context, name, query string, codes []string, limit, offset int) ([]*Concept, int, error) {
	system, ok := SystemForName(name)
	if !ok {
		return nil, 0, fmt.Errorf("unknown terminology %q: %w", name, ErrNotFound)
	}
	return s.repo.Search(ctx, system, query, codes, limit, offset)
}

// Descendants returns a concept and its transitive children, ancestor
// included.
func (s *Service) Descendants(ctx context.Context, name, code string) ([]*Concept, error) {
	system, ok := SystemForName(name)
	if !ok {
		return nil, fmt.Errorf("unknown terminology %q: %w", name, ErrNotFound)
	}
	return s.repo.Descendants(ctx, system, code)
}
