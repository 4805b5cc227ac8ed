package research

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/onconova/onconova/internal/domain/history"
	"github.com/onconova/onconova/internal/platform/auth"
	"github.com/onconova/onconova/internal/rules"
	"github.com/onconova/onconova/pkg/pagination"
)

type memProjectRepo struct {
	records map[uuid.UUID]*Project
}

func (m *memProjectRepo) Create(ctx context.Context, p *Project) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	copied := *p
	m.records[p.ID] = &copied
	return nil
}

func (m *memProjectRepo) GetByID(ctx context.Context, id uuid.UUID) (*Project, error) {
	p, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *memProjectRepo) Update(ctx context.Context, p *Project) error {
	if _, ok := m.records[p.ID]; !ok {
		return ErrNotFound
	}
	copied := *p
	m.records[p.ID] = &copied
	return nil
}

func (m *memProjectRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *memProjectRepo) List(ctx context.Context, p pagination.Params) ([]*Project, int, error) {
	var out []*Project
	for _, proj := range m.records {
		copied := *proj
		out = append(out, &copied)
	}
	return out, len(out), nil
}

func (m *memProjectRepo) TitleExists(ctx context.Context, title string, excludeID uuid.UUID) (bool, error) {
	for _, p := range m.records {
		if p.Title == title && p.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

type memGrantRepo struct {
	records map[uuid.UUID]*Grant
}

func (m *memGrantRepo) Create(ctx context.Context, g *Grant) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	g.CreatedAt = time.Now()
	copied := *g
	m.records[g.ID] = &copied
	return nil
}

func (m *memGrantRepo) GetByID(ctx context.Context, id uuid.UUID) (*Grant, error) {
	g, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *g
	return &copied, nil
}

func (m *memGrantRepo) Update(ctx context.Context, g *Grant) error {
	if _, ok := m.records[g.ID]; !ok {
		return ErrNotFound
	}
	copied := *g
	m.records[g.ID] = &copied
	return nil
}

func (m *memGrantRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *memGrantRepo) ListByProject(ctx context.Context, projectID uuid.UUID, p pagination.Params) ([]*Grant, int, error) {
	var out []*Grant
	for _, g := range m.records {
		if g.ProjectID == projectID {
			copied := *g
			out = append(out, &copied)
		}
	}
	return out, len(out), nil
}

func (m *memGrantRepo) HasActiveGrant(ctx context.Context, member string, at time.Time) (bool, error) {
	for _, g := range m.records {
		if g.Member == member && g.ValidAt(at) {
			return true, nil
		}
	}
	return false, nil
}

type memCohortRepo struct {
	records  map[uuid.UUID]*Cohort
	selectFn func(rules.Rule) []uuid.UUID
	selects  int
}

func cloneCohort(c *Cohort) *Cohort {
	copied := *c
	copied.ManualAdditions = append([]uuid.UUID{}, c.ManualAdditions...)
	copied.FrozenSet = append([]uuid.UUID{}, c.FrozenSet...)
	return &copied
}

func (m *memCohortRepo) Create(ctx context.Context, c *Cohort) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	m.records[c.ID] = cloneCohort(c)
	return nil
}

func (m *memCohortRepo) GetByID(ctx context.Context, id uuid.UUID) (*Cohort, error) {
	c, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneCohort(c), nil
}

func (m *memCohortRepo) Update(ctx context.Context, c *Cohort) error {
	if _, ok := m.records[c.ID]; !ok {
		return ErrNotFound
	}
	m.records[c.ID] = cloneCohort(c)
	return nil
}

func (m *memCohortRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *memCohortRepo) List(ctx context.Context, p pagination.Params) ([]*Cohort, int, error) {
	var out []*Cohort
	for _, c := range m.records {
		out = append(out, cloneCohort(c))
	}
	return out, len(out), nil
}

func (m *memCohortRepo) SelectCaseIDs(ctx context.Context, rule rules.Rule) ([]uuid.UUID, error) {
	m.selects++
	if m.selectFn == nil {
		return nil, nil
	}
	return m.selectFn(rule), nil
}

type memDatasetRepo struct {
	records map[uuid.UUID]*Dataset
}

func (m *memDatasetRepo) Create(ctx context.Context, d *Dataset) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	copied := *d
	m.records[d.ID] = &copied
	return nil
}

func (m *memDatasetRepo) GetByID(ctx context.Context, id uuid.UUID) (*Dataset, error) {
	d, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *d
	return &copied, nil
}

func (m *memDatasetRepo) Update(ctx context.Context, d *Dataset) error {
	if _, ok := m.records[d.ID]; !ok {
		return ErrNotFound
	}
	copied := *d
	m.records[d.ID] = &copied
	return nil
}

func (m *memDatasetRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *memDatasetRepo) ListByProject(ctx context.Context, projectID uuid.UUID, p pagination.Params) ([]*Dataset, int, error) {
	var out []*Dataset
	for _, d := range m.records {
		if d.ProjectID == projectID {
			copied := *d
			out = append(out, &copied)
		}
	}
	return out, len(out), nil
}

type memEventRepo struct {
	events []*history.Event
	nextID int64
}

func (m *memEventRepo) Insert(ctx context.Context, e *history.Event) error {
	m.nextID++
	e.ID = m.nextID
	e.CreatedAt = time.Now()
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

type testEnv struct {
	svc      *Service
	projects *memProjectRepo
	grants   *memGrantRepo
	cohorts  *memCohortRepo
	datasets *memDatasetRepo
	events   *memEventRepo
}

func newTestEnv() *testEnv {
	env := &testEnv{
		projects: &memProjectRepo{records: map[uuid.UUID]*Project{}},
		grants:   &memGrantRepo{records: map[uuid.UUID]*Grant{}},
		cohorts:  &memCohortRepo{records: map[uuid.UUID]*Cohort{}},
		datasets: &memDatasetRepo{records: map[uuid.UUID]*Dataset{}},
		events:   &memEventRepo{},
	}
	env.svc = NewService(nil, env.projects, env.grants, env.cohorts, env.datasets, env.events)
	return env
}

func authedContext(username string, level int) context.Context {
	return auth.WithIdentity(context.Background(), auth.Identity{Username: username, AccessLevel: level})
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func strPtr(s string) *string { return &s }

func sampleProject() *Project {
	return &Project{
		Title:   "Lung adenocarcinoma outcomes",
		Summary: strPtr("Real-world outcomes of EGFR-mutated NSCLC"),
		Leader:  "pi-lung",
		Members: []string{"curator"},
	}
}

func TestCreateProjectRecordsEvent(t *testing.T) {
	env := newTestEnv()
	ctx := authedContext("pi-lung", 3)

	project := sampleProject()
	if err := env.svc.CreateProject(ctx, project); err != nil {
		t.Fatalf("create project: %v", err)
	}
	if project.Status != StatusPlanned {
		t.Errorf("status not defaulted: %q", project.Status)
	}
	if project.CreatedBy != "pi-lung" {
		t.Errorf("created by = %q", project.CreatedBy)
	}
	if len(env.events.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(env.events.events))
	}
	event := env.events.events[0]
	if event.EntityKind != ProjectKind || event.Label != history.LabelCreate {
		t.Errorf("unexpected event %s/%s", event.EntityKind, event.Label)
	}
}

func TestCreateProjectDuplicateTitle(t *testing.T) {
	env := newTestEnv()
	ctx := authedContext("pi-lung", 3)

	if err := env.svc.CreateProject(ctx, sampleProject()); err != nil {
		t.Fatalf("create project: %v", err)
	}
	err := env.svc.CreateProject(ctx, sampleProject())
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestGrantValidity(t *testing.T) {
	from := date(2025, time.March, 1)
	until := date(2025, time.June, 1)
	grant := Grant{ValidFrom: from, ValidUntil: until}

	tests := []struct {
		name    string
		at      time.Time
		revoked bool
		want    bool
	}{
		{"before period", date(2025, time.February, 28), false, false},
		{"first day is valid", from, false, true},
		{"inside period", date(2025, time.April, 15), false, true},
		{"end day is expired", until, false, false},
		{"after period", date(2025, time.July, 1), false, false},
		{"revoked inside period", date(2025, time.April, 15), true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := grant
			g.Revoked = tt.revoked
			if got := g.ValidAt(tt.at); got != tt.want {
				t.Errorf("ValidAt(%s) = %v, want %v", tt.at.Format("2006-01-02"), got, tt.want)
			}
		})
	}
}

func TestHasActiveGrant(t *testing.T) {
	env := newTestEnv()
	ctx := authedContext("pi-lung", 3)

	project := sampleProject()
	if err := env.svc.CreateProject(ctx, project); err != nil {
		t.Fatalf("create project: %v", err)
	}
	now := time.Now().UTC()
	grant := &Grant{
		ProjectID:  project.ID,
		Member:     "curator",
		ValidFrom:  now.AddDate(0, 0, -7),
		ValidUntil: now.AddDate(0, 0, 7),
	}
	if err := env.svc.CreateGrant(ctx, grant); err != nil {
		t.Fatalf("create grant: %v", err)
	}
	if !grant.IsValid {
		t.Error("freshly created in-period grant should be valid")
	}

	active, err := env.svc.HasActiveGrant(context.Background(), "curator")
	if err != nil {
		t.Fatalf("has active grant: %v", err)
	}
	if !active {
		t.Error("expected active grant for curator")
	}
	active, err = env.svc.HasActiveGrant(context.Background(), "stranger")
	if err != nil {
		t.Fatalf("has active grant: %v", err)
	}
	if active {
		t.Error("stranger should have no grant")
	}

	if _, err := env.svc.RevokeGrant(ctx, grant.ID); err != nil {
		t.Fatalf("revoke grant: %v", err)
	}
	active, err = env.svc.HasActiveGrant(context.Background(), "curator")
	if err != nil {
		t.Fatalf("has active grant: %v", err)
	}
	if active {
		t.Error("revoked grant must not authorize")
	}
}

func includeLeaf() *rules.Rule {
	return &rules.Rule{
		Entity:   "PatientCase",
		Field:    "vitalStatus",
		Operator: rules.OpEnumIn,
		Value:    []byte(`["alive"]`),
	}
}

func excludeLeaf() *rules.Rule {
	return &rules.Rule{
		Entity:   "PatientCase",
		Field:    "clinicalCenter",
		Operator: rules.OpExact,
		Value:    []byte(`"External Center"`),
	}
}

func TestResolveCohortCases(t *testing.T) {
	env := newTestEnv()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	env.cohorts.selectFn = func(rule rules.Rule) []uuid.UUID {
		if rule.Field == "vitalStatus" {
			return []uuid.UUID{a, b}
		}
		return []uuid.UUID{b}
	}

	cohort := &Cohort{
		Name:            "responders",
		IncludeRules:    includeLeaf(),
		ExcludeRules:    excludeLeaf(),
		ManualAdditions: []uuid.UUID{c, a},
	}
	cases, err := env.svc.ResolveCases(context.Background(), cohort)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := []uuid.UUID{a, c}
	if len(cases) != len(want) {
		t.Fatalf("cases = %v, want %v", cases, want)
	}
	for i := range want {
		if cases[i] != want[i] {
			t.Fatalf("cases = %v, want %v", cases, want)
		}
	}
}

func TestResolveExcludesManualAdditions(t *testing.T) {
	env := newTestEnv()
	excluded := uuid.New()
	env.cohorts.selectFn = func(rule rules.Rule) []uuid.UUID {
		if rule.Field == "vitalStatus" {
			return nil
		}
		return []uuid.UUID{excluded}
	}

	cohort := &Cohort{
		Name:            "manual only",
		IncludeRules:    includeLeaf(),
		ExcludeRules:    excludeLeaf(),
		ManualAdditions: []uuid.UUID{excluded},
	}
	cases, err := env.svc.ResolveCases(context.Background(), cohort)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(cases) != 0 {
		t.Errorf("exclusion must also drop manual additions, got %v", cases)
	}
}

func TestFrozenCohortBypassesRules(t *testing.T) {
	env := newTestEnv()
	frozen := []uuid.UUID{uuid.New(), uuid.New()}
	env.cohorts.selectFn = func(rules.Rule) []uuid.UUID {
		return []uuid.UUID{uuid.New()}
	}

	cohort := &Cohort{
		Name:         "locked",
		IncludeRules: includeLeaf(),
		FrozenSet:    frozen,
	}
	cases, err := env.svc.ResolveCases(context.Background(), cohort)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if env.cohorts.selects != 0 {
		t.Errorf("frozen cohort must not evaluate rules, ran %d selections", env.cohorts.selects)
	}
	if len(cases) != len(frozen) || cases[0] != frozen[0] || cases[1] != frozen[1] {
		t.Errorf("cases = %v, want frozen set %v", cases, frozen)
	}
}

func TestFreezeCohortPinsMembership(t *testing.T) {
	env := newTestEnv()
	ctx := authedContext("analyst", 2)
	member := uuid.New()
	env.cohorts.selectFn = func(rule rules.Rule) []uuid.UUID {
		if rule.Field == "vitalStatus" {
			return []uuid.UUID{member}
		}
		return nil
	}

	cohort := &Cohort{Name: "to freeze", IncludeRules: includeLeaf()}
	if err := env.svc.CreateCohort(ctx, cohort); err != nil {
		t.Fatalf("create cohort: %v", err)
	}
	frozen, err := env.svc.FreezeCohort(ctx, cohort.ID)
	if err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if len(frozen.FrozenSet) != 1 || frozen.FrozenSet[0] != member {
		t.Fatalf("frozen set = %v", frozen.FrozenSet)
	}

	// Later rule evaluations are irrelevant once frozen.
	env.cohorts.selectFn = func(rules.Rule) []uuid.UUID { return nil }
	got, err := env.svc.GetCohort(ctx, cohort.ID)
	if err != nil {
		t.Fatalf("get cohort: %v", err)
	}
	if got.CaseCount != 1 || got.Cases[0] != member {
		t.Errorf("cases = %v after freezing", got.Cases)
	}
}

func TestCohortValidateRejectsBadRules(t *testing.T) {
	cohort := &Cohort{
		Name: "broken",
		IncludeRules: &rules.Rule{
			Entity:   "Starship",
			Field:    "warp",
			Operator: rules.OpExact,
			Value:    []byte(`"9"`),
		},
	}
	if err := cohort.Validate(); err == nil {
		t.Fatal("expected validation error for unknown entity")
	}
}

func TestDatasetExportDerivedFields(t *testing.T) {
	env := newTestEnv()
	ctx := authedContext("analyst", 2)

	project := sampleProject()
	if err := env.svc.CreateProject(authedContext("pi-lung", 3), project); err != nil {
		t.Fatalf("create project: %v", err)
	}
	cohort := &Cohort{Name: "export target"}
	if err := env.svc.CreateCohort(ctx, cohort); err != nil {
		t.Fatalf("create cohort: %v", err)
	}
	dataset := &Dataset{
		Name:      "baseline table",
		ProjectID: project.ID,
		Rules:     []DatasetRule{{Entity: "PatientCase", Fields: []string{"pseudoidentifier", "vitalStatus"}}},
	}
	if err := env.svc.CreateDataset(ctx, dataset); err != nil {
		t.Fatalf("create dataset: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := env.svc.RecordDatasetExport(ctx, dataset.ID, &cohort.ID); err != nil {
			t.Fatalf("export %d: %v", i, err)
		}
	}
	got, err := env.svc.GetDataset(ctx, dataset.ID)
	if err != nil {
		t.Fatalf("get dataset: %v", err)
	}
	if got.TotalExports != 2 {
		t.Errorf("total exports = %d, want 2", got.TotalExports)
	}
	if got.LastExport == nil {
		t.Error("last export not derived")
	}

	last := env.events.events[len(env.events.events)-1]
	if last.EntityKind != DatasetKind || last.Label != history.LabelExport {
		t.Fatalf("unexpected last event %s/%s", last.EntityKind, last.Label)
	}
	if last.Context["cohort"] != cohort.ID.String() {
		t.Errorf("export context cohort = %v", last.Context["cohort"])
	}
}

func TestDatasetValidateRejectsUnknownEntity(t *testing.T) {
	dataset := &Dataset{
		Name:      "bad",
		ProjectID: uuid.New(),
		Rules:     []DatasetRule{{Entity: "Starship"}},
	}
	if err := dataset.Validate(); err == nil {
		t.Fatal("expected validation error for unknown rule entity")
	}
}

func TestRevertProjectRestoresSnapshot(t *testing.T) {
	env := newTestEnv()
	ctx := authedContext("pi-lung", 3)

	project := sampleProject()
	if err := env.svc.CreateProject(ctx, project); err != nil {
		t.Fatalf("create project: %v", err)
	}
	createEvent := env.events.events[0]

	updated := *project
	updated.Status = StatusAborted
	if err := env.svc.UpdateProject(authedContext("admin", 4), &updated); err != nil {
		t.Fatalf("update project: %v", err)
	}

	reverter := NewReverter(env.svc)
	id, description, err := reverter.Revert(authedContext("reviewer", 3), createEvent)
	if err != nil {
		t.Fatalf("revert: %v", err)
	}
	if id != project.ID {
		t.Errorf("reverted id = %s", id)
	}
	if description == "" {
		t.Error("empty description")
	}
	restored, err := env.svc.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if restored.Status != StatusPlanned {
		t.Errorf("status = %q after revert, want planned", restored.Status)
	}
	found := false
	for _, u := range restored.UpdatedBy {
		if u == "reviewer" {
			found = true
		}
	}
	if !found {
		t.Errorf("updated by = %v, missing reviewer", restored.UpdatedBy)
	}
}

func TestRevertUnknownKind(t *testing.T) {
	env := newTestEnv()
	reverter := NewReverter(env.svc)
	event := &history.Event{EntityKind: "patient-case", EntityID: uuid.New(), Snapshot: []byte(`{}`)}
	if _, _, err := reverter.Revert(context.Background(), event); err != history.ErrNotFound {
		t.Fatalf("expected history.ErrNotFound, got %v", err)
	}
}

func TestUpdateGrantPreservesProject(t *testing.T) {
	env := newTestEnv()
	ctx := authedContext("pi-lung", 3)

	project := sampleProject()
	if err := env.svc.CreateProject(ctx, project); err != nil {
		t.Fatalf("create project: %v", err)
	}
	grant := &Grant{
		ProjectID:  project.ID,
		Member:     "curator",
		ValidFrom:  date(2025, time.January, 1),
		ValidUntil: date(2025, time.December, 31),
	}
	if err := env.svc.CreateGrant(ctx, grant); err != nil {
		t.Fatalf("create grant: %v", err)
	}

	modified := *grant
	modified.ProjectID = uuid.New()
	modified.ValidUntil = date(2026, time.June, 30)
	if err := env.svc.UpdateGrant(ctx, &modified); err != nil {
		t.Fatalf("update grant: %v", err)
	}
	if modified.ProjectID != project.ID {
		t.Errorf("project id changed to %s on update", modified.ProjectID)
	}
	stored, err := env.svc.GetGrant(ctx, grant.ID)
	if err != nil {
		t.Fatalf("get grant: %v", err)
	}
	if !stored.ValidUntil.Equal(date(2026, time.June, 30)) {
		t.Errorf("valid until = %s", stored.ValidUntil)
	}
}
