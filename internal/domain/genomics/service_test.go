package genomics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/onconova/onconova/internal/domain/history"
	"github.com/onconova/onconova/internal/domain/patientcase"
	"github.com/onconova/onconova/internal/domain/terminology"
	"github.com/onconova/onconova/internal/platform/anonymize"
	"github.com/onconova/onconova/internal/platform/auth"
	"github.com/onconova/onconova/pkg/pagination"
)

// -- in-memory repositories --

type memVariantRepo struct {
	variants map[uuid.UUID]*Variant
}

func newMemVariantRepo() *memVariantRepo {
	return &memVariantRepo{variants: map[uuid.UUID]*Variant{}}
}

func (m *memVariantRepo) Create(ctx context.Context, v *Variant) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	v.CreatedAt = time.Now()
	v.UpdatedAt = v.CreatedAt
	stored := *v
	m.variants[v.ID] = &stored
	return nil
}

func (m *memVariantRepo) GetByID(ctx context.Context, id uuid.UUID) (*Variant, error) {
	v, ok := m.variants[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *v
	return &copied, nil
}

func (m *memVariantRepo) Update(ctx context.Context, v *Variant) error {
	if _, ok := m.variants[v.ID]; !ok {
		return ErrNotFound
	}
	v.UpdatedAt = time.Now()
	stored := *v
	m.variants[v.ID] = &stored
	return nil
}

func (m *memVariantRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.variants[id]; !ok {
		return ErrNotFound
	}
	delete(m.variants, id)
	return nil
}

func (m *memVariantRepo) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*Variant, int, error) {
	var out []*Variant
	for _, v := range m.variants {
		if v.CaseID == caseID {
			copied := *v
			out = append(out, &copied)
		}
	}
	return out, len(out), nil
}

func (m *memVariantRepo) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*Variant, error) {
	var out []*Variant
	for _, id := range ids {
		if v, ok := m.variants[id]; ok {
			copied := *v
			out = append(out, &copied)
		}
	}
	return out, nil
}

type memSignatureRepo struct {
	signatures map[uuid.UUID]*Signature
}

func newMemSignatureRepo() *memSignatureRepo {
	return &memSignatureRepo{signatures: map[uuid.UUID]*Signature{}}
}

func cloneSignature(s *Signature) *Signature {
	copied := *s
	if s.Result != nil {
		result := *s.Result
		copied.Result = &result
	}
	return &copied
}

func (m *memSignatureRepo) Create(ctx context.Context, s *Signature) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	m.signatures[s.ID] = cloneSignature(s)
	return nil
}

func (m *memSignatureRepo) GetByID(ctx context.Context, id uuid.UUID) (*Signature, error) {
	s, ok := m.signatures[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSignature(s), nil
}

func (m *memSignatureRepo) Update(ctx context.Context, s *Signature) error {
	if _, ok := m.signatures[s.ID]; !ok {
		return ErrNotFound
	}
	s.UpdatedAt = time.Now()
	m.signatures[s.ID] = cloneSignature(s)
	return nil
}

func (m *memSignatureRepo) UpdateResult(ctx context.Context, id uuid.UUID, result *SignatureValue) error {
	s, ok := m.signatures[id]
	if !ok {
		return ErrNotFound
	}
	copied := *result
	s.Result = &copied
	return nil
}

func (m *memSignatureRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.signatures[id]; !ok {
		return ErrNotFound
	}
	delete(m.signatures, id)
	return nil
}

func (m *memSignatureRepo) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*Signature, int, error) {
	var out []*Signature
	for _, s := range m.signatures {
		if s.CaseID == caseID {
			out = append(out, cloneSignature(s))
		}
	}
	return out, len(out), nil
}

type memCaseSource struct {
	cases map[uuid.UUID]*patientcase.Case
}

func (m *memCaseSource) GetByID(ctx context.Context, id uuid.UUID) (*patientcase.Case, error) {
	c, ok := m.cases[id]
	if !ok {
		return nil, patientcase.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

type memEventRepo struct {
	events []*history.Event
	nextID int64
}

func (m *memEventRepo) Insert(ctx context.Context, e *history.Event) error {
	m.nextID++
	e.ID = m.nextID
	stored := *e
	m.events = append(m.events, &stored)
	return nil
}

func (m *memEventRepo) Get(ctx context.Context, id int64) (*history.Event, error) {
	for _, e := range m.events {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, history.ErrNotFound
}

func (m *memEventRepo) ListByEntity(ctx context.Context, entityID uuid.UUID, limit, offset int) ([]*history.Event, int, error) {
	var out []*history.Event
	for _, e := range m.events {
		if e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, len(out), nil
}

func (m *memEventRepo) List(ctx context.Context, limit, offset int) ([]*history.Event, int, error) {
	return m.events, len(m.events), nil
}

func (m *memEventRepo) Contributors(ctx context.Context, entityIDs []uuid.UUID) ([]string, error) {
	return nil, nil
}

func (m *memEventRepo) CountByLabel(ctx context.Context, entityID uuid.UUID, label history.Label) (int, error) {
	n := 0
	for _, e := range m.events {
		if e.EntityID == entityID && e.Label == label {
			n++
		}
	}
	return n, nil
}

func (m *memEventRepo) LastByLabel(ctx context.Context, entityID uuid.UUID, label history.Label) (*history.Event, error) {
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].EntityID == entityID && m.events[i].Label == label {
			return m.events[i], nil
		}
	}
	return nil, history.ErrNotFound
}

func newTestService() (*Service, *memEventRepo, uuid.UUID) {
	variants := newMemVariantRepo()
	signatures := newMemSignatureRepo()
	events := &memEventRepo{}
	caseID := uuid.New()
	cases := &memCaseSource{cases: map[uuid.UUID]*patientcase.Case{
		caseID: {ID: caseID, Pseudoidentifier: "U.1234.567.89"},
	}}
	svc := NewService(nil, variants, signatures, cases, events, anonymize.New("test-secret-key-0123456789abcdef"))
	return svc, events, caseID
}

func authedContext(username string, level int) context.Context {
	return auth.WithIdentity(context.Background(), auth.Identity{Username: username, AccessLevel: level})
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func f64(v float64) *float64 { return &v }

// -- tests --

func TestCreateVariantValidatesGenes(t *testing.T) {
	svc, _, caseID := newTestService()
	ctx := authedContext("curator", 3)

	v := &Variant{CaseID: caseID, Date: date(2023, time.March, 1)}
	if err := svc.CreateVariant(ctx, v); err == nil {
		t.Error("expected error for variant without genes")
	}

	v.Genes = []terminology.Ref{{Code: "1097", System: terminology.SystemHGNC, Display: "BRAF"}}
	v.HGVS = []string{"p.V600E"}
	if err := svc.CreateVariant(ctx, v); err != nil {
		t.Fatalf("CreateVariant error: %v", err)
	}
	if v.Description != "BRAF variant (p.V600E)" {
		t.Errorf("description = %q", v.Description)
	}
}

func TestCreateSignatureRecordsParentAndValueEvents(t *testing.T) {
	svc, events, caseID := newTestService()
	ctx := authedContext("curator", 3)

	sig := &Signature{
		CaseID:   caseID,
		Date:     date(2023, time.March, 1),
		Category: CategoryTumorMutationalBurden,
		Result:   &SignatureValue{Value: f64(12.5), Unit: "mutations/Mb"},
	}
	if err := svc.CreateSignature(ctx, sig); err != nil {
		t.Fatalf("CreateSignature error: %v", err)
	}
	if len(events.events) != 2 {
		t.Fatalf("got %d events, want 2", len(events.events))
	}
	kinds := map[string]bool{}
	for _, e := range events.events {
		kinds[e.EntityKind] = true
	}
	if !kinds[SignatureKind] || !kinds[SignatureValueKind] {
		t.Errorf("event kinds = %v", kinds)
	}
}

func TestSignatureValidation(t *testing.T) {
	svc, _, caseID := newTestService()
	ctx := authedContext("curator", 3)

	tests := []struct {
		name string
		sig  Signature
	}{
		{"unknown category", Signature{CaseID: caseID, Date: date(2023, time.March, 1),
			Category: "ploidy", Result: &SignatureValue{Value: f64(1)}}},
		{"missing result", Signature{CaseID: caseID, Date: date(2023, time.March, 1),
			Category: CategoryAneuploidScore}},
		{"empty result", Signature{CaseID: caseID, Date: date(2023, time.March, 1),
			Category: CategoryAneuploidScore, Result: &SignatureValue{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := tt.sig
			if err := svc.CreateSignature(ctx, &sig); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	// Status without a numeric value is a valid result.
	sig := &Signature{
		CaseID:   caseID,
		Date:     date(2023, time.March, 1),
		Category: CategoryMicrosatelliteInstability,
		Result:   &SignatureValue{Status: "MSI-high"},
	}
	if err := svc.CreateSignature(ctx, sig); err != nil {
		t.Fatalf("CreateSignature error: %v", err)
	}
	if sig.Description != "Microsatellite instability MSI-high" {
		t.Errorf("description = %q", sig.Description)
	}
}

func TestUpdateSignatureRejectsCategoryChange(t *testing.T) {
	svc, _, caseID := newTestService()
	ctx := authedContext("curator", 3)

	sig := &Signature{
		CaseID:   caseID,
		Date:     date(2023, time.March, 1),
		Category: CategoryTumorMutationalBurden,
		Result:   &SignatureValue{Value: f64(12.5)},
	}
	if err := svc.CreateSignature(ctx, sig); err != nil {
		t.Fatalf("CreateSignature error: %v", err)
	}

	update := &Signature{
		ID:       sig.ID,
		Date:     sig.Date,
		Category: CategoryAneuploidScore,
		Result:   &SignatureValue{Value: f64(3)},
	}
	if err := svc.UpdateSignature(ctx, update); !errors.Is(err, ErrCategoryMismatch) {
		t.Errorf("err = %v, want ErrCategoryMismatch", err)
	}
}

func TestRevertSignatureValueEvent(t *testing.T) {
	svc, events, caseID := newTestService()
	ctx := authedContext("curator", 3)

	sig := &Signature{
		CaseID:   caseID,
		Date:     date(2023, time.March, 1),
		Category: CategoryTumorMutationalBurden,
		Result:   &SignatureValue{Value: f64(12.5), Unit: "mutations/Mb"},
	}
	if err := svc.CreateSignature(ctx, sig); err != nil {
		t.Fatalf("CreateSignature error: %v", err)
	}

	update := &Signature{
		ID:       sig.ID,
		Date:     sig.Date,
		Category: sig.Category,
		Result:   &SignatureValue{Value: f64(30), Unit: "mutations/Mb"},
	}
	if err := svc.UpdateSignature(ctx, update); err != nil {
		t.Fatalf("UpdateSignature error: %v", err)
	}

	var valueCreate *history.Event
	for _, e := range events.events {
		if e.EntityKind == SignatureValueKind && e.Label == history.LabelCreate {
			valueCreate = e
		}
	}
	if valueCreate == nil {
		t.Fatal("no value create event recorded")
	}

	reverter := NewSignatureReverter(svc)
	if _, _, err := reverter.Revert(ctx, valueCreate); err != nil {
		t.Fatalf("Revert error: %v", err)
	}

	restored, err := svc.GetSignature(ctx, sig.ID, false)
	if err != nil {
		t.Fatalf("GetSignature error: %v", err)
	}
	if restored.Result == nil || restored.Result.Value == nil || *restored.Result.Value != 12.5 {
		t.Errorf("restored value = %+v, want 12.5", restored.Result)
	}
}

func TestGetVariantAnonymizesDate(t *testing.T) {
	svc, _, caseID := newTestService()
	ctx := authedContext("curator", 3)

	original := date(2023, time.March, 1)
	v := &Variant{
		CaseID: caseID,
		Date:   original,
		Genes:  []terminology.Ref{{Code: "1097", System: terminology.SystemHGNC}},
	}
	if err := svc.CreateVariant(ctx, v); err != nil {
		t.Fatalf("CreateVariant error: %v", err)
	}

	anon := anonymize.New("test-secret-key-0123456789abcdef")
	want := anon.Date("U.1234.567.89", original)

	got, err := svc.GetVariant(ctx, v.ID, true)
	if err != nil {
		t.Fatalf("GetVariant error: %v", err)
	}
	if !got.Date.Equal(want) {
		t.Errorf("anonymized date = %v, want %v", got.Date, want)
	}
}
