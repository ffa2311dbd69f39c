package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"cigarmanager/backend/internal/domain"
)

func TestAppendSaleRoundTrip(t *testing.T) {
	databaseURL := os.Getenv("CIGARMANAGER_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set CIGARMANAGER_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	name := fmt.Sprintf("Robustos IT %d", stamp)

	product, err := s.CreateProduct(ctx, domain.Product{
		Brand:   "Cohiba",
		Name:    name,
		Country: "Cuba",
		Force:   4,
		Stock:   10,
		Price:   28.50,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	t.Cleanup(func() {
		_ = s.DeleteProduct(ctx, product.ID)
	})

	sale, err := s.AppendSale(ctx, domain.Sale{
		Date:  time.Now().UTC(),
		Total: 57.00,
		Items: []domain.SaleLineItem{
			{ProductID: product.ID, ProductName: product.Name, ProductBrand: product.Brand, Quantity: 2, Price: 28.50, Subtotal: 57.00},
		},
	})
	if err != nil {
		t.Fatalf("append sale: %v", err)
	}
	t.Cleanup(func() {
		_ = s.DeleteSale(ctx, sale.ID)
	})

	if sale.Timestamp == 0 {
		t.Fatalf("expected write-time timestamp on sale")
	}

	loaded, err := s.GetSaleByID(ctx, sale.ID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if loaded.Total != 57.00 {
		t.Fatalf("expected total 57.00, got %g", loaded.Total)
	}
	if len(loaded.Items) != 1 || loaded.Items[0].ProductID != product.ID {
		t.Fatalf("unexpected sale items: %+v", loaded.Items)
	}

	ranged, err := s.ListSalesByRange(ctx, sale.Timestamp, sale.Timestamp)
	if err != nil {
		t.Fatalf("list sales by range: %v", err)
	}
	found := false
	for _, got := range ranged {
		if got.ID == sale.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected sale within inclusive timestamp bounds")
	}
}
