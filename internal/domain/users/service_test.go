package users

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/onconova/onconova/internal/platform/auth"
	"github.com/onconova/onconova/pkg/pagination"
)

type memUserRepo struct {
	records map[uuid.UUID]*User
}

func (m *memUserRepo) Create(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	copied := *u
	m.records[u.ID] = &copied
	return nil
}

func (m *memUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	u, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *memUserRepo) GetByUsername(ctx context.Context, username string) (*User, error) {
	for _, u := range m.records {
		if u.Username == username {
			copied := *u
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memUserRepo) SetAccessLevel(ctx context.Context, id uuid.UUID, level int) error {
	u, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	u.AccessLevel = level
	return nil
}

func (m *memUserRepo) List(ctx context.Context, filters UserFilters, p pagination.Params) ([]*User, int, error) {
	var out []*User
	for _, u := range m.records {
		copied := *u
		out = append(out, &copied)
	}
	return out, len(out), nil
}

type memGrantChecker struct {
	granted map[string]bool
}

func (m *memGrantChecker) HasActiveGrant(ctx context.Context, username string) (bool, error) {
	return m.granted[username], nil
}

func newTestService(granted map[string]bool) (*Service, *memUserRepo) {
	repo := &memUserRepo{records: map[uuid.UUID]*User{}}
	svc := NewService(nil, repo, &memGrantChecker{granted: granted})
	return svc, repo
}

func seedUser(t *testing.T, repo *memUserRepo, username string, level int) uuid.UUID {
	t.Helper()
	u := &User{Username: username, AccessLevel: level}
	if err := repo.Create(context.Background(), u); err != nil {
		t.Fatalf("seed %s: %v", username, err)
	}
	return u.ID
}

func TestRoleMapping(t *testing.T) {
	tests := []struct {
		level int
		role  string
	}{
		{0, "Member"},
		{1, "Project Manager"},
		{2, "Data Analyst"},
		{3, "Platform Manager"},
		{4, "System Administrator"},
	}
	svc, repo := newTestService(nil)
	for _, tt := range tests {
		id := seedUser(t, repo, tt.role, tt.level)
		u, err := svc.GetUser(context.Background(), id)
		if err != nil {
			t.Fatalf("get level %d: %v", tt.level, err)
		}
		if u.Role != tt.role {
			t.Errorf("level %d role = %q, want %q", tt.level, u.Role, tt.role)
		}
	}
}

func TestCapabilityThresholds(t *testing.T) {
	svc, repo := newTestService(nil)

	member := seedUser(t, repo, "member", 1)
	u, err := svc.GetUser(context.Background(), member)
	if err != nil {
		t.Fatalf("get member: %v", err)
	}
	if !u.Capabilities[string(auth.CapViewCases)] {
		t.Error("level 1 should view cases")
	}
	if u.Capabilities[string(auth.CapManageCohorts)] {
		t.Error("level 1 should not manage cohorts")
	}
	if u.Capabilities[string(auth.CapManageCases)] {
		t.Error("level 1 without grant should not manage cases")
	}

	manager := seedUser(t, repo, "manager", 3)
	u, err = svc.GetUser(context.Background(), manager)
	if err != nil {
		t.Fatalf("get manager: %v", err)
	}
	if !u.Capabilities[string(auth.CapManageCases)] {
		t.Error("level 3 should manage cases")
	}
	if u.Capabilities[string(auth.CapSystemAdmin)] {
		t.Error("level 3 is not a system admin")
	}
}

func TestActiveGrantDerivesManageCases(t *testing.T) {
	svc, repo := newTestService(map[string]bool{"curator": true})

	curator := seedUser(t, repo, "curator", 1)
	u, err := svc.GetUser(context.Background(), curator)
	if err != nil {
		t.Fatalf("get curator: %v", err)
	}
	if !u.ActiveGrant {
		t.Error("grant status not derived")
	}
	if !u.Capabilities[string(auth.CapManageCases)] {
		t.Error("active grant should confer manage cases")
	}
	if u.Capabilities[string(auth.CapManageCohorts)] {
		t.Error("grant must not raise unrelated capabilities")
	}
}

func TestSetAccessLevelBounds(t *testing.T) {
	svc, repo := newTestService(nil)
	id := seedUser(t, repo, "member", 1)

	if _, err := svc.SetAccessLevel(context.Background(), id, 5); err == nil {
		t.Error("level 5 accepted")
	}
	if _, err := svc.SetAccessLevel(context.Background(), id, -1); err == nil {
		t.Error("level -1 accepted")
	}
	u, err := svc.SetAccessLevel(context.Background(), id, 2)
	if err != nil {
		t.Fatalf("set level 2: %v", err)
	}
	if u.AccessLevel != 2 || u.Role != "Data Analyst" {
		t.Errorf("user = level %d role %q", u.AccessLevel, u.Role)
	}
}
