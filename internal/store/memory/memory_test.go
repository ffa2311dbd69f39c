package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"cigarmanager/backend/internal/domain"
	"cigarmanager/backend/internal/store"
)

func TestCreateProductAssignsSequentialIDs(t *testing.T) {
	s := New()
	ctx := context.Background()

	first, err := s.CreateProduct(ctx, domain.Product{Brand: "Cohiba", Name: "Robustos"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	second, err := s.CreateProduct(ctx, domain.Product{Brand: "Montecristo", Name: "No. 2"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if first.ID != 1 || second.ID != 2 {
		t.Fatalf("expected ids 1 and 2, got %d and %d", first.ID, second.ID)
	}
}

func TestCreateProductRejectsBlankNames(t *testing.T) {
	s := New()

	_, err := s.CreateProduct(context.Background(), domain.Product{Brand: "  ", Name: "Robustos"})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestListProductsFilters(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	cubans, err := s.ListProducts(ctx, domain.ProductFilter{Country: "Cuba"})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(cubans) == 0 {
		t.Fatalf("expected seeded cuban products")
	}
	for _, p := range cubans {
		if p.Country != "Cuba" {
			t.Fatalf("filter leaked product from %s", p.Country)
		}
	}

	all, err := s.ListProducts(ctx, domain.ProductFilter{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) <= len(cubans) {
		t.Fatalf("expected unfiltered list to be larger")
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].ID >= all[i].ID {
			t.Fatalf("expected products sorted by id")
		}
	}
}

func TestPutProductKeepsIDAndBumpsCounter(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.PutProduct(ctx, domain.Product{ID: 42, Brand: "Davidoff", Name: "Grand Cru No. 3"}); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	created, err := s.CreateProduct(ctx, domain.Product{Brand: "Oliva", Name: "Serie V Melanio"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.ID != 43 {
		t.Fatalf("expected next id 43 after put of 42, got %d", created.ID)
	}
}

func TestResetAllStockZeroesEveryProduct(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	if err := s.ResetAllStock(ctx); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	products, err := s.ListProducts(ctx, domain.ProductFilter{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	for _, p := range products {
		if p.Stock != 0 {
			t.Fatalf("expected stock 0 for %s, got %d", p.Name, p.Stock)
		}
	}
}

func TestAppendSaleStampsTimestamp(t *testing.T) {
	s := New()

	before := time.Now().UnixMilli()
	sale, err := s.AppendSale(context.Background(), domain.Sale{Date: time.Now().UTC(), Total: 10})
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	after := time.Now().UnixMilli()

	if sale.ID != 1 {
		t.Fatalf("expected sale id 1, got %d", sale.ID)
	}
	if sale.Timestamp < before || sale.Timestamp > after {
		t.Fatalf("expected write-time timestamp, got %d", sale.Timestamp)
	}
}

func TestListSalesByRangeBoundsAreInclusive(t *testing.T) {
	s := New()
	ctx := context.Background()

	for i, ts := range []int64{1000, 2000, 3000} {
		err := s.PutSale(ctx, domain.Sale{ID: int64(i + 1), Timestamp: ts, Date: time.UnixMilli(ts).UTC()})
		if err != nil {
			t.Fatalf("put sale failed: %v", err)
		}
	}

	got, err := s.ListSalesByRange(ctx, 1000, 2000)
	if err != nil {
		t.Fatalf("range failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 sales in [1000,2000], got %d", len(got))
	}
	if got[0].Timestamp != 1000 || got[1].Timestamp != 2000 {
		t.Fatalf("expected boundary sales included and ordered, got %+v", got)
	}
}

func TestGetLastSalePicksLatestTimestamp(t *testing.T) {
	s := New()
	ctx := context.Background()

	_ = s.PutSale(ctx, domain.Sale{ID: 1, Timestamp: 5000})
	_ = s.PutSale(ctx, domain.Sale{ID: 2, Timestamp: 9000})
	_ = s.PutSale(ctx, domain.Sale{ID: 3, Timestamp: 7000})

	last, err := s.GetLastSale(ctx)
	if err != nil {
		t.Fatalf("get last failed: %v", err)
	}
	if last.ID != 2 {
		t.Fatalf("expected sale 2 as last, got %d", last.ID)
	}
}

func TestGetLastSaleEmptyLedger(t *testing.T) {
	s := New()

	_, err := s.GetLastSale(context.Background())
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty ledger, got %v", err)
	}
}

func TestAuditLogsAreNewestFirstAndLimited(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		err := s.CreateAuditLog(ctx, domain.AuditLog{
			Action:    "product_update",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("create audit log failed: %v", err)
		}
	}

	logs, err := s.ListAuditLogs(ctx, base, base.Add(time.Hour), 3)
	if err != nil {
		t.Fatalf("list audit logs failed: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("expected limit of 3, got %d", len(logs))
	}
	if !logs[0].CreatedAt.After(logs[1].CreatedAt) {
		t.Fatalf("expected newest first ordering")
	}
}

func TestCreateUserRejectsDuplicates(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.CreateUser(ctx, domain.UserAccount{Username: "caviste", Password: "x", Role: domain.RoleSeller, Active: true})
	if err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	err = s.CreateUser(ctx, domain.UserAccount{Username: "caviste", Password: "y", Role: domain.RoleSeller, Active: true})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation on duplicate user, got %v", err)
	}
}
