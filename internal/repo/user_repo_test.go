package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sfreeley/puzzle-post/internal/domain"
)

func TestCreateUser_AssignsIDAndRejectsDuplicates(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	u := &domain.User{Username: "agatha", Email: "agatha@example.com"}
	if err := CreateUser(ctx, db, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.ID == "" || u.CreatedAt.IsZero() {
		t.Fatalf("expected ID and CreatedAt to be set: %+v", u)
	}

	dupName := &domain.User{Username: "agatha", Email: "other@example.com"}
	if err := CreateUser(ctx, db, dupName); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for username, got %v", err)
	}
	dupMail := &domain.User{Username: "other", Email: "agatha@example.com"}
	if err := CreateUser(ctx, db, dupMail); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for email, got %v", err)
	}

	got, err := GetUser(ctx, db, u.ID)
	if err != nil || got.Username != "agatha" {
		t.Fatalf("GetUser: got %+v err=%v", got, err)
	}
	got, err = GetUserByUsername(ctx, db, "agatha")
	if err != nil || got.ID != u.ID {
		t.Fatalf("GetUserByUsername: got %+v err=%v", got, err)
	}
	if _, err := GetUser(ctx, db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetUsersByIDs(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	seedUsers(t, db, "a", "b", "c")

	got, err := GetUsersByIDs(ctx, db, []string{"a", "c", "zzz"})
	if err != nil {
		t.Fatalf("GetUsersByIDs: %v", err)
	}
	if len(got) != 2 || got["a"].Username != "user_a" || got["c"].Username != "user_c" {
		t.Fatalf("unexpected users: %+v", got)
	}

	empty, err := GetUsersByIDs(ctx, db, nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty map, got %+v err=%v", empty, err)
	}
}

func TestTouchInbox(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	seedUsers(t, db, "a")

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := TouchInbox(ctx, db, "a", now); err != nil {
		t.Fatalf("TouchInbox: %v", err)
	}
	u, err := GetUser(ctx, db, "a")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.LastMessageReadTime == nil || !u.LastMessageReadTime.Equal(now) {
		t.Fatalf("watermark not stored: %v", u.LastMessageReadTime)
	}
	if u.LastSeen == nil || !u.LastSeen.Equal(now) {
		t.Fatalf("last_seen not stored: %v", u.LastSeen)
	}

	if err := TouchInbox(ctx, db, "missing", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCategories_UpsertAndList(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	first, err := UpsertCategories(ctx, db, []string{"Beaches", "Animals", "Beaches", ""})
	if err != nil {
		t.Fatalf("UpsertCategories: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected 2 distinct categories, got %+v", first)
	}

	again, err := UpsertCategories(ctx, db, []string{"Animals"})
	if err != nil {
		t.Fatalf("UpsertCategories again: %v", err)
	}
	if len(again) != 1 || again[0].ID != first[1].ID {
		t.Fatalf("existing category should be reused: %+v vs %+v", again, first)
	}

	all, err := ListCategories(ctx, db)
	if err != nil {
		t.Fatalf("ListCategories: %v", err)
	}
	if len(all) != 2 || all[0].Name != "Animals" || all[1].Name != "Beaches" {
		t.Fatalf("expected name order, got %+v", all)
	}
}
