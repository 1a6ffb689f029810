package testutil

import (
	"context"
	"testing"

	"github.com/HerbHall/ipscope/internal/services"
	"github.com/HerbHall/ipscope/internal/store"
)

// NewStore creates an in-memory SQLiteStore for testing.
// The store is automatically closed when the test completes.
func NewStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("testutil.NewStore: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// NewInventoryStore creates an in-memory store with the inventory and scan
// history schemas applied.
func NewInventoryStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	db := NewStore(t)
	ctx := context.Background()
	if err := db.Migrate(ctx, "inventory", services.InventoryMigrations()); err != nil {
		t.Fatalf("inventory migrations: %v", err)
	}
	if err := db.Migrate(ctx, "recon", services.ScanMigrations()); err != nil {
		t.Fatalf("recon migrations: %v", err)
	}
	return db
}
