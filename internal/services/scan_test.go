package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/HerbHall/ipscope/internal/services"
	"github.com/HerbHall/ipscope/internal/testutil"
	"github.com/HerbHall/ipscope/pkg/models"
)

func newScanRepo(t *testing.T) services.ScanRepository {
	t.Helper()
	return services.NewSQLiteScanRepository(testutil.NewInventoryStore(t).DB())
}

func TestSQLiteScanRepository_CreateAndGet(t *testing.T) {
	repo := newScanRepo(t)
	ctx := context.Background()

	scan := &models.ScanRecord{SubnetID: "sn-1", CIDR: "192.168.1.0/24", Method: "exec", Total: 254}
	if err := repo.Create(ctx, scan); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if scan.ID == "" {
		t.Error("Create did not generate an ID")
	}
	if scan.StartedAt == "" {
		t.Error("StartedAt not set by Create")
	}

	got, err := repo.Get(ctx, scan.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.CIDR != "192.168.1.0/24" || got.Method != "exec" || got.Total != 254 {
		t.Errorf("got %+v", got)
	}
	if got.Status != services.ScanStatusRunning {
		t.Errorf("Status = %q, want running", got.Status)
	}
	if got.EndedAt != "" {
		t.Errorf("EndedAt = %q, want empty for a running scan", got.EndedAt)
	}
}

func TestSQLiteScanRepository_Complete(t *testing.T) {
	repo := newScanRepo(t)
	ctx := context.Background()

	scan := &models.ScanRecord{SubnetID: "sn-1", CIDR: "10.0.0.0/30", Method: "tcp", Total: 2}
	if err := repo.Create(ctx, scan); err != nil {
		t.Fatalf("Create: %v", err)
	}

	scan.Online, scan.Registered, scan.New = 2, 1, 1
	if err := repo.Complete(ctx, scan); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	got, err := repo.Get(ctx, scan.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != services.ScanStatusCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	if got.Online != 2 || got.Registered != 1 || got.New != 1 {
		t.Errorf("counts = %d/%d/%d, want 2/1/1", got.Online, got.Registered, got.New)
	}
	if got.EndedAt == "" {
		t.Error("EndedAt not set by Complete")
	}
}

func TestSQLiteScanRepository_CompleteFailed(t *testing.T) {
	repo := newScanRepo(t)
	ctx := context.Background()

	scan := &models.ScanRecord{CIDR: "10.0.0.0/24"}
	if err := repo.Create(ctx, scan); err != nil {
		t.Fatalf("Create: %v", err)
	}
	scan.Status = services.ScanStatusFailed
	scan.ErrorMsg = "subnet deleted"
	if err := repo.Complete(ctx, scan); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	got, _ := repo.Get(ctx, scan.ID)
	if got.Status != services.ScanStatusFailed || got.ErrorMsg != "subnet deleted" {
		t.Errorf("got %q/%q, want failed/subnet deleted", got.Status, got.ErrorMsg)
	}
}

func TestSQLiteScanRepository_CompleteNotFound(t *testing.T) {
	repo := newScanRepo(t)
	err := repo.Complete(context.Background(), &models.ScanRecord{ID: "missing"})
	if !errors.Is(err, services.ErrNotFound) {
		t.Errorf("Complete missing = %v, want ErrNotFound", err)
	}
}

func TestSQLiteScanRepository_GetNotFound(t *testing.T) {
	repo := newScanRepo(t)
	if _, err := repo.Get(context.Background(), "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
}

func TestSQLiteScanRepository_ListNewestFirst(t *testing.T) {
	repo := newScanRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, subnet := range []string{"sn-a", "sn-b", "sn-a"} {
		scan := &models.ScanRecord{
			SubnetID:  subnet,
			CIDR:      "10.0.0.0/24",
			StartedAt: base.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
		}
		if err := repo.Create(ctx, scan); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}

	all, err := repo.List(ctx, "", services.ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if all.Total != 3 || len(all.Items) != 3 {
		t.Fatalf("List = %d/%d, want 3/3", len(all.Items), all.Total)
	}
	if all.Items[0].StartedAt < all.Items[2].StartedAt {
		t.Errorf("List not newest first: %s before %s", all.Items[0].StartedAt, all.Items[2].StartedAt)
	}

	filtered, err := repo.List(ctx, "sn-a", services.ListOptions{Limit: 1})
	if err != nil {
		t.Fatalf("List sn-a: %v", err)
	}
	if filtered.Total != 2 || len(filtered.Items) != 1 {
		t.Errorf("List sn-a = %d/%d, want 1/2", len(filtered.Items), filtered.Total)
	}
}
