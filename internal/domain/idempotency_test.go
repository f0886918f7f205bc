package domain

import (
	"testing"
	"time"
)

func TestIdempotency_UniquePerUserScopeKey(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	if !db.Migrator().HasIndex(&Idempotency{}, "ux_user_scope_key") {
		t.Fatalf("expected composite index ux_user_scope_key")
	}

	now := time.Now().UTC()
	rec := &Idempotency{ID: "i1", UserID: "u1", Scope: "p1", Key: "k1", ResourceID: "m1", Status: 201, ExpiresAt: now.Add(time.Hour)}
	if err := db.Create(rec).Error; err != nil {
		t.Fatalf("insert: %v", err)
	}

	var got Idempotency
	if err := db.First(&got, "id = ?", "i1").Error; err != nil {
		t.Fatalf("readback: %v", err)
	}
	if got.Scope != "p1" || got.ResourceID != "m1" || got.CreatedAt.IsZero() {
		t.Fatalf("unexpected row: %+v", got)
	}

	dup := &Idempotency{ID: "i2", UserID: "u1", Scope: "p1", Key: "k1", ResourceID: "m2", Status: 201, ExpiresAt: now.Add(time.Hour)}
	if err := db.Create(dup).Error; err == nil {
		t.Fatalf("expected unique violation on (user_id, scope, key)")
	}

	// Same key in another scope is fine.
	other := &Idempotency{ID: "i3", UserID: "u1", Scope: "p2", Key: "k1", ResourceID: "m3", Status: 201, ExpiresAt: now.Add(time.Hour)}
	if err := db.Create(other).Error; err != nil {
		t.Fatalf("insert other scope: %v", err)
	}
}
