package analysis

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"cigarmanager/backend/internal/domain"
)

func fixedConfig() Config {
	cfg := DefaultConfig()
	cfg.PeriodDays = 30
	cfg.Now = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	return cfg
}

func saleOf(id int64, daysAgo int, cfg Config, items ...domain.SaleLineItem) domain.Sale {
	date := cfg.Now.AddDate(0, 0, -daysAgo)
	total := 0.0
	for _, item := range items {
		total += item.Subtotal
	}
	return domain.Sale{ID: id, Date: date, Timestamp: date.UnixMilli(), Items: items, Total: total}
}

func line(productID int64, qty int, price float64) domain.SaleLineItem {
	return domain.SaleLineItem{ProductID: productID, Quantity: qty, Price: price, Subtotal: float64(qty) * price}
}

func TestComputeIsReproducible(t *testing.T) {
	cfg := fixedConfig()
	products := []domain.Product{
		{ID: 1, Brand: "Cohiba", Name: "Robustos", Country: "Cuba", Stock: 4, Price: 12},
		{ID: 2, Brand: "Villiger", Name: "Export Pressé", Country: "Suisse", Stock: 30, Price: 2.5},
		{ID: 3, Brand: "Davidoff", Name: "Grand Cru No. 3", Country: "", Stock: 0, Price: 14},
	}
	sales := []domain.Sale{
		saleOf(1, 3, cfg, line(1, 6, 12), line(2, 1, 2.5)),
		saleOf(2, 10, cfg, line(1, 2, 12)),
	}

	first, err := json.Marshal(Compute(products, sales, cfg))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	second, err := json.Marshal(Compute(products, sales, cfg))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("expected identical reports for identical inputs")
	}
}

func TestComputeRotationRatio(t *testing.T) {
	cfg := fixedConfig()
	products := []domain.Product{
		{ID: 1, Brand: "Cohiba", Name: "Robustos", Country: "Cuba", Stock: 4, Price: 12},
	}
	sales := []domain.Sale{saleOf(1, 2, cfg, line(1, 6, 12))}

	report := Compute(products, sales, cfg)
	if len(report.Products) != 1 {
		t.Fatalf("expected 1 product stat, got %d", len(report.Products))
	}
	stat := report.Products[0]

	// 6 sold of 10 eligible over a 30-day period: ratio 0.6.
	if diff := stat.MonthlyRotationRatio - 0.6; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected ratio 0.6, got %g", stat.MonthlyRotationRatio)
	}
	if stat.QuantitySold != 6 || stat.Revenue != 72 {
		t.Fatalf("unexpected stat: %+v", stat)
	}
	if stat.DaysSinceLastSale != 2 {
		t.Fatalf("expected 2 days since last sale, got %d", stat.DaysSinceLastSale)
	}
}

func TestComputeUnsoldProductLandsInNoneBucket(t *testing.T) {
	cfg := fixedConfig()
	products := []domain.Product{
		{ID: 1, Brand: "Davidoff", Name: "Grand Cru No. 3", Country: "République Dominicaine", Stock: 5, Price: 14},
	}

	report := Compute(products, nil, cfg)
	if len(report.Rotation.None) != 1 {
		t.Fatalf("expected unsold product in none bucket, got %+v", report.Rotation)
	}
	stat := report.Rotation.None[0]
	if stat.MonthlyRotationRatio != 0 {
		t.Fatalf("expected zero ratio, got %g", stat.MonthlyRotationRatio)
	}
	if stat.AveragePrice != 14 {
		t.Fatalf("expected average price to fall back to list price, got %g", stat.AveragePrice)
	}
	if stat.DaysSinceLastSale != cfg.PeriodDays {
		t.Fatalf("expected days-since-sale to cap at period, got %d", stat.DaysSinceLastSale)
	}
}

func TestRestockExcludesDeadProducts(t *testing.T) {
	cfg := fixedConfig()
	products := []domain.Product{
		{ID: 1, Brand: "Cohiba", Name: "Robustos", Country: "Cuba", Stock: 0, Price: 12},
		{ID: 2, Brand: "Oliva", Name: "Serie V Melanio", Country: "Nicaragua", Stock: 3, Price: 9},
	}
	sales := []domain.Sale{saleOf(1, 5, cfg, line(2, 2, 9))}

	report := Compute(products, sales, cfg)
	for _, scored := range report.Restock.Products {
		if scored.ProductID == 1 {
			t.Fatalf("expected zero-stock never-sold product excluded from restock scoring")
		}
	}
	if len(report.Restock.Products) != 1 {
		t.Fatalf("expected 1 scored product, got %d", len(report.Restock.Products))
	}
}

func TestRestockPrioritizesFastMoverOverWellStockedSlowMover(t *testing.T) {
	cfg := fixedConfig()
	products := []domain.Product{
		{ID: 1, Brand: "Cohiba", Name: "Robustos", Country: "Cuba", Stock: 2, Price: 10},
		{ID: 2, Brand: "Villiger", Name: "Export Pressé", Country: "Suisse", Stock: 30, Price: 10},
	}
	sales := []domain.Sale{
		saleOf(1, 3, cfg, line(1, 20, 10)),
		saleOf(2, 8, cfg, line(2, 1, 10)),
	}

	report := Compute(products, sales, cfg)
	if len(report.Restock.Products) != 2 {
		t.Fatalf("expected 2 scored products, got %d", len(report.Restock.Products))
	}
	if report.Restock.Products[0].ProductID != 1 {
		t.Fatalf("expected fast mover ranked first, got product %d", report.Restock.Products[0].ProductID)
	}
	if len(report.Restock.Priorities.HighPriority) != 1 || report.Restock.Priorities.HighPriority[0].ProductID != 1 {
		t.Fatalf("expected fast mover in high priority, got %+v", report.Restock.Priorities)
	}
	if len(report.Restock.Priorities.NoRestock) != 1 || report.Restock.Priorities.NoRestock[0].ProductID != 2 {
		t.Fatalf("expected well-stocked slow mover in no-restock, got %+v", report.Restock.Priorities)
	}
}

func TestRecommendedQuantityFloor(t *testing.T) {
	cfg := fixedConfig()
	stat := domain.ProductSalesStat{QuantitySold: 0, Stock: 1}

	if qty := recommendedQuantity(stat, cfg); qty != 5 {
		t.Fatalf("expected floor quantity 5 for no sales history, got %d", qty)
	}
}

func TestMarginScoreCapsAtOne(t *testing.T) {
	cfg := fixedConfig()
	products := []domain.Product{
		{ID: 1, Brand: "Arturo Fuente", Name: "Opus X Reserva", Country: "République Dominicaine", Stock: 2, Price: 80},
	}
	sales := []domain.Sale{saleOf(1, 1, cfg, line(1, 1, 80))}

	report := Compute(products, sales, cfg)
	if len(report.Restock.Products) != 1 {
		t.Fatalf("expected 1 scored product, got %d", len(report.Restock.Products))
	}
	if score := report.Restock.Products[0].Scores.Margin; score != 1 {
		t.Fatalf("expected margin score capped at 1, got %g", score)
	}
}

func TestEmptyCountryScoresZeroOnPopularity(t *testing.T) {
	cfg := fixedConfig()
	products := []domain.Product{
		{ID: 1, Brand: "Cohiba", Name: "Robustos", Country: "Cuba", Stock: 4, Price: 10},
		{ID: 2, Brand: "Maison X", Name: "Sans Origine", Country: "", Stock: 4, Price: 10},
	}
	sales := []domain.Sale{
		saleOf(1, 2, cfg, line(1, 3, 10), line(2, 3, 10)),
	}

	report := Compute(products, sales, cfg)

	var unknownSeen bool
	for _, group := range report.Countries {
		if group.Name == "Unknown" {
			unknownSeen = true
		}
	}
	if !unknownSeen {
		t.Fatalf("expected empty country grouped under Unknown")
	}

	for _, scored := range report.Restock.Products {
		if scored.ProductID == 2 && scored.Scores.Country != 0 {
			t.Fatalf("expected empty-country product to score 0 on country popularity, got %g", scored.Scores.Country)
		}
	}
}

func TestPriceTiersKeepFixedOrder(t *testing.T) {
	cfg := fixedConfig()
	products := []domain.Product{
		{ID: 1, Brand: "Villiger", Name: "Export Pressé", Stock: 10, Price: 2.5},
		{ID: 2, Brand: "Cohiba", Name: "Robustos", Stock: 5, Price: 12},
		{ID: 3, Brand: "Padrón", Name: "1964 Anniversary", Stock: 3, Price: 18},
		{ID: 4, Brand: "Arturo Fuente", Name: "Opus X Reserva", Stock: 2, Price: 40},
	}

	report := Compute(products, nil, cfg)
	want := []string{"economic", "standard", "premium", "luxury"}
	if len(report.PriceTiers) != len(want) {
		t.Fatalf("expected %d tiers, got %d", len(want), len(report.PriceTiers))
	}
	for i, key := range want {
		if report.PriceTiers[i].Key != key {
			t.Fatalf("expected tier %q at index %d, got %q", key, i, report.PriceTiers[i].Key)
		}
		if report.PriceTiers[i].ProductCount != 1 {
			t.Fatalf("expected 1 product in tier %q, got %d", key, report.PriceTiers[i].ProductCount)
		}
	}
}

func TestRestockDaysForHighRotationNearStockout(t *testing.T) {
	cfg := fixedConfig()
	stat := domain.ProductSalesStat{
		Stock:                2,
		QuantitySold:         20,
		MonthlyRotationRatio: 0.9,
	}

	// 2 in stock at 20 sold over 30 days: stockout in 3 days, restock now.
	if days := restockDays(stat, 0.8, cfg); days != 0 {
		t.Fatalf("expected immediate restock, got %g", days)
	}
}

func TestCacheKeyChangesWhenProductRenamed(t *testing.T) {
	cfg := fixedConfig()
	products := []domain.Product{
		{ID: 1, Brand: "Cohiba", Name: "Robustos", Country: "Cuba", Stock: 4, Price: 12},
	}

	before := buildCacheKey(products, nil, cfg)
	products[0].Name = "Siglo II"
	after := buildCacheKey(products, nil, cfg)
	if before == after {
		t.Fatalf("expected a renamed product to produce a different cache key")
	}
}
