package terminology

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
)

// memRepo is an in-memory Repository for tests.
type memRepo struct {
	concepts []*Concept
	nextID   int64
}

func (m *memRepo) Upsert(ctx context.Context, concept *Concept) error {
	for _, c := range m.concepts {
		if c.System == concept.System && c.Code == concept.Code {
			*c = *concept
			concept.ID = c.ID
			return nil
		}
	}
	m.nextID++
	concept.ID = m.nextID
	stored := *concept
	m.concepts = append(m.concepts, &stored)
	return nil
}

func (m *memRepo) Get(ctx context.Context, system, code string) (*Concept, error) {
	for _, c := range m.concepts {
		if c.System == system && c.Code == code {
			return c, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepo) Search(ctx context.Context, system, query string, codes []string, limit, offset int) ([]*Concept, int, error) {
	type ranked struct {
		concept *Concept
		rank    int
	}
	var matches []ranked
	q := strings.ToLower(query)
	for _, c := range m.concepts {
		if c.System != system {
			continue
		}
		if len(codes) > 0 && !contains(codes, c.Code) {
			continue
		}
		rank := 0
		if q != "" {
			if strings.Contains(strings.ToLower(c.Code), q) {
				rank += 10
			}
			if strings.Contains(strings.ToLower(c.Display), q) {
				rank += 5
			}
			for _, s := range c.Synonyms {
				if strings.Contains(strings.ToLower(s), q) {
					rank++
					break
				}
			}
			if rank == 0 {
				continue
			}
			rank -= strings.Index(strings.ToLower(c.Display), q) + 1
			rank -= len(c.Display)
		}
		matches = append(matches, ranked{c, rank})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].rank != matches[j].rank {
			return matches[i].rank > matches[j].rank
		}
		return matches[i].concept.Code < matches[j].concept.Code
	})
	total := len(matches)
	if offset > len(matches) {
		offset = len(matches)
	}
	matches = matches[offset:]
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]*Concept, len(matches))
	for i, r := range matches {
		out[i] = r.concept
	}
	return out, total, nil
}

func (m *memRepo) Descendants(ctx context.Context, system, code string) ([]*Concept, error) {
	root, err := m.Get(ctx, system, code)
	if err != nil {
		return nil, err
	}
	result := []*Concept{root}
	frontier := []int64{root.ID}
	for len(frontier) > 0 {
		var next []int64
		for _, c := range m.concepts {
			if c.ParentID != nil && containsID(frontier, *c.ParentID) {
				result = append(result, c)
				next = append(next, c.ID)
			}
		}
		frontier = next
	}
	return result, nil
}

func (m *memRepo) Count(ctx context.Context, system string) (int, error) {
	n := 0
	for _, c := range m.concepts {
		if c.System == system {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) DeleteSystem(ctx context.Context, system string) (int, error) {
	kept := m.concepts[:0]
	deleted := 0
	for _, c := range m.concepts {
		if c.System == system {
			deleted++
		} else {
			kept = append(kept, c)
		}
	}
	m.concepts = kept
	return deleted, nil
}

func (m *memRepo) PruneDangling(ctx context.Context, system, version string) (int, error) {
	kept := m.concepts[:0]
	pruned := 0
	for _, c := range m.concepts {
		if c.System == system && c.Version != version {
			pruned++
		} else {
			kept = append(kept, c)
		}
	}
	m.concepts = kept
	return pruned, nil
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func containsID(values []int64, v int64) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func seedRepo(t *testing.T) *memRepo {
	t.Helper()
	repo := &memRepo{}
	id1 := int64(0)
	concepts := []*Concept{
		{System: SystemICDO3Topography, Code: "C34", Display: "Lung"},
		{System: SystemICDO3Topography, Code: "C34.1", Display: "Upper lobe, lung"},
		{System: SystemICDO3Topography, Code: "C34.3", Display: "Lower lobe, lung", Synonyms: []string{"lower lung lobe"}},
		{System: SystemICDO3Topography, Code: "C50", Display: "Breast"},
	}
	for i, c := range concepts {
		if err := repo.Upsert(context.Background(), c); err != nil {
			t.Fatal(err)
		}
		if i == 0 {
			id1 = c.ID
		}
		if strings.HasPrefix(c.Code, "C34.") {
			parent := id1
			repo.concepts[i].ParentID = &parent
		}
	}
	return repo
}

func TestServiceGet(t *testing.T) {
	svc := NewService(seedRepo(t))
	c, err := svc.Get(context.Background(), "icd-o-3-topography", "C34")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if c.Display != "Lung" {
		t.Errorf("Display = %q, want Lung", c.Display)
	}

	if _, err := svc.Get(context.Background(), "icd-o-3-topography", "C99"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Get(context.Background(), "klingon", "C34"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown terminology: expected ErrNotFound, got %v", err)
	}
}

func TestServiceSearchRanking(t *testing.T) {
	svc := NewService(seedRepo(t))
	concepts, total, err := svc.Search(context.Background(), "icd-o-3-topography", "lung", nil, 20, 0)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}
	// "Lung" wins: display hit at position 1 with the shortest display.
	if concepts[0].Code != "C34" {
		t.Errorf("top result = %s, want C34", concepts[0].Code)
	}
}

func TestServiceSearchByCodes(t *testing.T) {
	svc := NewService(seedRepo(t))
	concepts, total, err := svc.Search(context.Background(), "icd-o-3-topography", "", []string{"C50", "C34"}, 20, 0)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if total != 2 || len(concepts) != 2 {
		t.Errorf("got %d results, want 2", total)
	}
}

func TestServiceDescendants(t *testing.T) {
	svc := NewService(seedRepo(t))
	concepts, err := svc.Descendants(context.Background(), "icd-o-3-topography", "C34")
	if err != nil {
		t.Fatalf("Descendants error: %v", err)
	}
	if len(concepts) != 3 {
		t.Fatalf("got %d descendants, want 3 (ancestor inclusive)", len(concepts))
	}
	if concepts[0].Code != "C34" {
		t.Errorf("first result = %s, want the ancestor itself", concepts[0].Code)
	}
}
