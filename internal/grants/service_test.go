package grants

import (
	"context"
	"reflect"
	"testing"
	"time"
)

type memoryStore struct {
	issued []Grant
}

func (m *memoryStore) Issue(ctx context.Context, grant Grant) (Grant, error) {
	grant.IsActive = true
	m.issued = append(m.issued, grant)
	return grant, nil
}

func (m *memoryStore) Revoke(ctx context.Context, userID, resourceType, resourceID string) error {
	for i := range m.issued {
		g := &m.issued[i]
		if g.UserID == userID && g.ResourceType == resourceType && g.ResourceID == resourceID {
			g.IsActive = false
		}
	}
	return nil
}

func (m *memoryStore) ListForUser(ctx context.Context, userID string) ([]Grant, error) {
	var out []Grant
	for _, g := range m.issued {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	return out, nil
}

func TestIssueValidation(t *testing.T) {
	svc := NewService(&memoryStore{})

	cases := []struct {
		name  string
		grant Grant
	}{
		{"missing user", Grant{ResourceType: "case", ResourceID: "42", Actions: []string{"read"}}},
		{"missing resource id", Grant{UserID: "alice", ResourceType: "case", Actions: []string{"read"}}},
		{"no actions", Grant{UserID: "alice", ResourceType: "case", ResourceID: "42"}},
		{"blank actions", Grant{UserID: "alice", ResourceType: "case", ResourceID: "42", Actions: []string{"  ", ""}}},
	}
	for _, tc := range cases {
		if _, err := svc.Issue(context.Background(), tc.grant); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestIssueDedupesActions(t *testing.T) {
	store := &memoryStore{}
	svc := NewService(store)

	g, err := svc.Issue(context.Background(), Grant{
		UserID: "alice", ResourceType: "case", ResourceID: "42",
		Actions: []string{"read", "read", " update "},
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	want := []string{"read", "update"}
	if !reflect.DeepEqual(g.Actions, want) {
		t.Fatalf("actions = %v, want %v", g.Actions, want)
	}
}

func TestIssueRejectsPastExpiry(t *testing.T) {
	svc := NewService(&memoryStore{})
	past := time.Now().Add(-time.Minute)
	_, err := svc.Issue(context.Background(), Grant{
		UserID: "alice", ResourceType: "case", ResourceID: "42",
		Actions: []string{"read"}, ExpiresAt: &past,
	})
	if err == nil {
		t.Fatal("expected error for expiry in the past")
	}
}

func TestRevoke(t *testing.T) {
	store := &memoryStore{}
	svc := NewService(store)

	if _, err := svc.Issue(context.Background(), Grant{
		UserID: "alice", ResourceType: "case", ResourceID: "42", Actions: []string{"read"},
	}); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := svc.Revoke(context.Background(), "alice", "case", "42"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	list, err := svc.ListForUser(context.Background(), "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].IsActive {
		t.Fatalf("grants = %+v, want one inactive row", list)
	}
}
