package stores

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oarkflow/clubauthz"
)

func TestSQLOverrideStore(t *testing.T) {
	db := openTestDB(t)
	store := NewSQLOverrideStore(db)
	ctx := context.Background()

	if err := store.SetOverride(ctx, clubauthz.Override{MemberID: "m1", TicketTypeID: "tt-b", Allow: true, Reason: "comp"}); err != nil {
		t.Fatalf("set override: %v", err)
	}
	if err := store.SetOverride(ctx, clubauthz.Override{MemberID: "m1", TicketTypeID: "tt-a", Allow: false, Reason: "banned"}); err != nil {
		t.Fatalf("set override: %v", err)
	}
	// replace the tt-b override
	if err := store.SetOverride(ctx, clubauthz.Override{MemberID: "m1", TicketTypeID: "tt-b", Allow: false, Reason: "revoked"}); err != nil {
		t.Fatalf("replace override: %v", err)
	}

	list, err := store.ListOverrides(ctx, "m1")
	if err != nil {
		t.Fatalf("list overrides: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 overrides, got %d", len(list))
	}
	if list[0].TicketTypeID != "tt-a" || list[1].TicketTypeID != "tt-b" {
		t.Fatalf("unexpected order: %+v", list)
	}
	if list[1].Allow || list[1].Reason != "revoked" {
		t.Fatalf("expected replaced override, got %+v", list[1])
	}
	if list[0].ID == "" || list[0].CreatedAt.IsZero() {
		t.Fatalf("expected generated id and timestamp, got %+v", list[0])
	}

	if err := store.DeleteOverride(ctx, "m1", "tt-a"); err != nil {
		t.Fatalf("delete override: %v", err)
	}
	if _, err := store.GetOverride(ctx, "m1", "tt-a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.DeleteOverride(ctx, "m1", "tt-a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if err := store.SetOverride(ctx, clubauthz.Override{MemberID: "m1"}); err == nil {
		t.Fatalf("expected error for missing ticket type")
	}
}

func TestSQLScopedRoleStore(t *testing.T) {
	db := openTestDB(t)
	store := NewSQLScopedRoleStore(db)
	ctx := context.Background()
	ref := clubauthz.ObjectRef{Type: clubauthz.ObjectActivityGroup, ID: "g1"}
	joined := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	if err := store.JoinScopedRole(ctx, "m1", ref, clubauthz.ScopedCoordinator, joined); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := store.JoinScopedRole(ctx, "m1", ref, clubauthz.ScopedMember, joined); err != nil {
		t.Fatalf("join: %v", err)
	}
	holdings, err := store.ListScopedRoles(ctx, "m1", ref)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !clubauthz.HoldsActiveRole(holdings, "m1", ref, clubauthz.ScopedCoordinator) {
		t.Fatalf("expected active coordinator holding, got %+v", holdings)
	}

	if err := store.LeaveScopedRole(ctx, "m1", ref, clubauthz.ScopedCoordinator, joined.Add(24*time.Hour)); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if err := store.LeaveScopedRole(ctx, "m1", ref, clubauthz.ScopedCoordinator, joined.Add(48*time.Hour)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound leaving twice, got %v", err)
	}
	holdings, _ = store.ListScopedRoles(ctx, "m1", ref)
	if clubauthz.HoldsActiveRole(holdings, "m1", ref, clubauthz.ScopedCoordinator) {
		t.Fatalf("coordinator should be inactive after leaving")
	}
	if !clubauthz.HoldsActiveRole(holdings, "m1", ref, clubauthz.ScopedMember) {
		t.Fatalf("member holding should remain active")
	}

	// rejoin reactivates
	if err := store.JoinScopedRole(ctx, "m1", ref, clubauthz.ScopedCoordinator, joined.Add(72*time.Hour)); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	holdings, _ = store.ListScopedRoles(ctx, "m1", ref)
	if !clubauthz.HoldsActiveRole(holdings, "m1", ref, clubauthz.ScopedCoordinator) {
		t.Fatalf("expected coordinator active after rejoin")
	}

	other, _ := store.ListScopedRoles(ctx, "m1", clubauthz.ObjectRef{Type: clubauthz.ObjectActivityGroup, ID: "g2"})
	if len(other) != 0 {
		t.Fatalf("holdings leaked across objects: %+v", other)
	}
	if err := store.JoinScopedRole(ctx, "m1", clubauthz.ObjectRef{Type: "planet", ID: "x"}, clubauthz.ScopedOwner, joined); err == nil {
		t.Fatalf("expected error for invalid reference")
	}
}
