package authz

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

type stubPrincipalStore struct {
	active      bool
	activeErr   error
	domainRoles []RoleContext
	legacyRoles []RoleContext
	departments []string
	rolesErr    error
}

func (s *stubPrincipalStore) UserActive(ctx context.Context, userID string) (bool, error) {
	return s.active, s.activeErr
}

func (s *stubPrincipalStore) ActiveDomainRoles(ctx context.Context, userID string) ([]RoleContext, error) {
	return s.domainRoles, s.rolesErr
}

func (s *stubPrincipalStore) ActiveLegacyRoles(ctx context.Context, userID string) ([]RoleContext, error) {
	return s.legacyRoles, nil
}

func (s *stubPrincipalStore) ActiveDepartments(ctx context.Context, userID string) ([]string, error) {
	return s.departments, nil
}

func TestBuildPrincipalNotFound(t *testing.T) {
	b := NewContextBuilder(&stubPrincipalStore{active: false})
	if _, err := b.Build(context.Background(), "ghost", nil); !errors.Is(err, ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound, got %v", err)
	}
}

func TestBuildPrincipalEmptyID(t *testing.T) {
	b := NewContextBuilder(&stubPrincipalStore{active: true})
	if _, err := b.Build(context.Background(), "", nil); !errors.Is(err, ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound, got %v", err)
	}
}

func TestBuildPrincipalMergesBothCatalogs(t *testing.T) {
	store := &stubPrincipalStore{
		active: true,
		domainRoles: []RoleContext{
			{Name: "case-manager"},
			{Name: "reviewer"},
		},
		legacyRoles: []RoleContext{
			{Name: "reviewer"},
			{Name: "intake-clerk"},
		},
		departments: []string{"fraud", "fraud", "claims"},
	}
	b := NewContextBuilder(store)

	p, err := b.Build(context.Background(), "alice", nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	wantRoles := []string{BaseRole, "case-manager", "intake-clerk", "reviewer"}
	if !reflect.DeepEqual(p.Roles, wantRoles) {
		t.Fatalf("roles = %v, want %v", p.Roles, wantRoles)
	}
	wantDepts := []string{"claims", "fraud"}
	if !reflect.DeepEqual(p.Departments, wantDepts) {
		t.Fatalf("departments = %v, want %v", p.Departments, wantDepts)
	}
	if !p.HasRole(BaseRole) {
		t.Fatal("expected base role on every resolved principal")
	}
}

func TestBuildPrincipalQueueTags(t *testing.T) {
	store := &stubPrincipalStore{
		active: true,
		domainRoles: []RoleContext{
			{Name: "dispatcher", Metadata: map[string]any{"queue": "intake"}},
		},
		legacyRoles: []RoleContext{
			{Name: "supervisor", Metadata: map[string]any{"queues": []any{"escalations", "intake"}}},
		},
	}
	b := NewContextBuilder(store)

	p, err := b.Build(context.Background(), "bob", nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := []string{"escalations", "intake"}
	if !reflect.DeepEqual(p.Queues, want) {
		t.Fatalf("queues = %v, want %v", p.Queues, want)
	}
}

func TestBuildPrincipalReservedKeysProtected(t *testing.T) {
	store := &stubPrincipalStore{active: true}
	b := NewContextBuilder(store)

	custom := map[string]any{
		AttrRoles:  []string{"admin"},
		AttrQueues: []string{"everything"},
		"region":   "emea",
	}
	p, err := b.Build(context.Background(), "carol", custom)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if p.HasRole("admin") {
		t.Fatal("caller-supplied roles must not reach the role set")
	}
	if _, ok := p.Custom[AttrRoles]; ok {
		t.Fatal("reserved key leaked into custom attributes")
	}
	if p.Custom["region"] != "emea" {
		t.Fatalf("custom attribute lost: %v", p.Custom)
	}

	attrs := p.Attributes()
	if got, ok := attrs[AttrRoles].([]string); !ok || len(got) != 1 || got[0] != BaseRole {
		t.Fatalf("attribute roles = %v, want only base role", attrs[AttrRoles])
	}
}

func TestBuildPrincipalStoreError(t *testing.T) {
	wantErr := errors.New("roles: connection reset")
	b := NewContextBuilder(&stubPrincipalStore{active: true, rolesErr: wantErr})
	if _, err := b.Build(context.Background(), "dave", nil); !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}
