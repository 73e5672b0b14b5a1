package classroom

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/classdeck/backend/internal/store"
)

func TestNewAccessCodeShapesCode(t *testing.T) {
	code, err := NewAccessCode()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(code) != accessCodeLength {
		t.Fatalf("expected %d characters, got %q", accessCodeLength, code)
	}
	for _, r := range code {
		if !strings.ContainsRune(accessCodeAlphabet, r) {
			t.Fatalf("character %q outside the code alphabet", r)
		}
	}
}

func TestEnsureAccessCodesFillsMissingPairs(t *testing.T) {
	class := &Class{
		Name: "5B",
		Students: []Student{
			{ID: "s1", Name: "Ada"},
			{ID: "s2", Name: "Grace"},
		},
		AccessCodes: map[string]AccessCodePair{
			"s1": {Parent: "KEEPME", Student: ""},
		},
	}

	added, err := EnsureAccessCodes(class)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !added {
		t.Fatalf("expected new codes to be added")
	}
	if class.AccessCodes["s1"].Parent != "KEEPME" {
		t.Fatalf("existing code must be preserved, got %q", class.AccessCodes["s1"].Parent)
	}
	if class.AccessCodes["s1"].Student == "" {
		t.Fatalf("missing student code must be filled")
	}
	pair := class.AccessCodes["s2"]
	if pair.Parent == "" || pair.Student == "" {
		t.Fatalf("expected a full pair for s2, got %+v", pair)
	}

	// A second pass finds nothing to add.
	added, err = EnsureAccessCodes(class)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if added {
		t.Fatalf("second pass must be a no-op")
	}
}

func TestEnsureAccessCodesSkipsStudentsWithoutID(t *testing.T) {
	class := &Class{Students: []Student{{Name: "No ID"}}}
	added, err := EnsureAccessCodes(class)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if added || len(class.AccessCodes) != 0 {
		t.Fatalf("students without an id must not get codes, got %+v", class.AccessCodes)
	}
}

func TestResolveAccessCodeFindsRoles(t *testing.T) {
	fake := newFakeStore()
	class := &Class{
		Name:  "5B",
		Owner: "t1",
		Students: []Student{
			{ID: "s1", Name: "Ada"},
		},
		AccessCodes: map[string]AccessCodePair{
			"s1": {Parent: "PAR234", Student: "STU789"},
		},
	}
	fields, _, err := classFields(class, nil)
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}
	fake.seed(store.CollectionClasses, store.Record{ID: "r1", Fields: fields})
	reconciler := mustReconciler(t, fake)

	identity, err := reconciler.ResolveAccessCode(context.Background(), "t1", "par234")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity.Role != PortalRoleParent {
		t.Fatalf("expected parent role, got %s", identity.Role)
	}
	if identity.StudentID != "s1" || identity.ClassID.String() != "r1" {
		t.Fatalf("unexpected identity: %+v", identity)
	}

	identity, err = reconciler.ResolveAccessCode(context.Background(), "t1", "  STU789  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity.Role != PortalRoleStudent {
		t.Fatalf("expected student role, got %s", identity.Role)
	}
}

func TestResolveAccessCodeUnknown(t *testing.T) {
	reconciler := mustReconciler(t, newFakeStore())

	_, err := reconciler.ResolveAccessCode(context.Background(), "t1", "NOSUCH")
	if !errors.Is(err, ErrAccessCodeNotFound) {
		t.Fatalf("expected ErrAccessCodeNotFound, got %v", err)
	}
	if _, err := reconciler.ResolveAccessCode(context.Background(), "t1", "   "); !errors.Is(err, ErrAccessCodeNotFound) {
		t.Fatalf("blank code must not resolve, got %v", err)
	}
}
