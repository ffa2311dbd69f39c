package analysis

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"cigarmanager/backend/internal/cache"
	"cigarmanager/backend/internal/domain"
)

const unknownGroup = "Unknown"

type RotationThresholds struct {
	High   float64
	Medium float64
}

type ScoreWeights struct {
	StockRotation     float64
	ProfitMargin      float64
	CountryPopularity float64
	BrandPopularity   float64
}

// PriceTierBounds are the upper bounds of the economic/standard/premium
// tiers; everything above PremiumMax is luxury. The margin proxy score
// maps a price linearly onto [0, PremiumMax].
type PriceTierBounds struct {
	EconomicMax float64
	StandardMax float64
	PremiumMax  float64
}

type Config struct {
	PeriodDays int
	Thresholds RotationThresholds
	Weights    ScoreWeights
	PriceTiers PriceTierBounds

	// Now pins the clock for reproducible reports. Zero means wall clock.
	Now time.Time
}

func DefaultConfig() Config {
	return Config{
		PeriodDays: 90,
		Thresholds: RotationThresholds{High: 0.7, Medium: 0.3},
		Weights: ScoreWeights{
			StockRotation:     0.5,
			ProfitMargin:      0.3,
			CountryPopularity: 0.1,
			BrandPopularity:   0.1,
		},
		PriceTiers: PriceTierBounds{EconomicMax: 8, StandardMax: 15, PremiumMax: 25},
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.PeriodDays <= 0 {
		c.PeriodDays = def.PeriodDays
	}
	if c.Thresholds.High == 0 && c.Thresholds.Medium == 0 {
		c.Thresholds = def.Thresholds
	}
	if c.Weights == (ScoreWeights{}) {
		c.Weights = def.Weights
	}
	if c.PriceTiers == (PriceTierBounds{}) {
		c.PriceTiers = def.PriceTiers
	}
	return c
}

type Engine struct {
	cache    cache.AnalysisCache
	cacheTTL time.Duration
}

func NewEngine(cacheStore cache.AnalysisCache, cacheTTL time.Duration) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopAnalysisCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Engine{cache: cacheStore, cacheTTL: cacheTTL}
}

// Analyze runs the rotation/restock computation, consulting the cache
// first. The cache only accelerates repeated identical requests; Compute
// stays the single source of truth.
func (e *Engine) Analyze(ctx context.Context, products []domain.Product, sales []domain.Sale, cfg Config) *domain.RotationReport {
	cfg = cfg.withDefaults()

	key := buildCacheKey(products, sales, cfg)
	if cached, ok, err := e.cache.Get(ctx, key); err == nil && ok {
		return cached
	}

	report := Compute(products, sales, cfg)
	_ = e.cache.Set(ctx, key, report, e.cacheTTL)
	return report
}

// Compute is the pure analyzer: same inputs and config always produce
// the same report.
func Compute(products []domain.Product, sales []domain.Sale, cfg Config) *domain.RotationReport {
	cfg = cfg.withDefaults()
	now := cfg.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	stats := salesStatistics(products, sales, cfg, now)
	buckets, summary := rotationBuckets(stats, cfg)
	countries, countryByName := popularityGroups(stats, cfg, func(s domain.ProductSalesStat) string { return s.Country })
	brands, brandByName := popularityGroups(stats, cfg, func(s domain.ProductSalesStat) string { return s.Brand })
	tiers := priceTiers(stats, cfg)
	restock := restockRecommendations(stats, cfg, countries, countryByName, brands, brandByName)

	return &domain.RotationReport{
		GeneratedAt: now,
		PeriodDays:  cfg.PeriodDays,
		PeriodStart: now.AddDate(0, 0, -cfg.PeriodDays),
		PeriodEnd:   now,
		Products:    stats,
		Rotation:    buckets,
		Summary:     summary,
		Countries:   countries,
		Brands:      brands,
		PriceTiers:  tiers,
		Restock:     restock,
	}
}

func salesStatistics(products []domain.Product, sales []domain.Sale, cfg Config, now time.Time) []domain.ProductSalesStat {
	index := make(map[int64]int, len(products))
	stats := make([]domain.ProductSalesStat, 0, len(products))
	for _, p := range products {
		index[p.ID] = len(stats)
		stats = append(stats, domain.ProductSalesStat{
			ProductID: p.ID,
			Name:      p.Name,
			Brand:     p.Brand,
			Country:   p.Country,
			Price:     p.Price,
			Stock:     p.Stock,
		})
	}

	lastSold := make(map[int64]time.Time, len(products))
	for _, sale := range sales {
		for _, item := range sale.Items {
			pos, ok := index[item.ProductID]
			if !ok {
				continue
			}
			stats[pos].QuantitySold += item.Quantity
			stats[pos].Revenue += item.Subtotal
			stats[pos].SalesCount++
			if prev, seen := lastSold[item.ProductID]; !seen || sale.Date.After(prev) {
				lastSold[item.ProductID] = sale.Date
			}
		}
	}

	monthly := 30.0 / float64(cfg.PeriodDays)
	for i := range stats {
		stat := &stats[i]

		eligible := stat.Stock + stat.QuantitySold
		if eligible == 0 {
			stat.MonthlyRotationRatio = 0
		} else {
			stat.MonthlyRotationRatio = float64(stat.QuantitySold) / float64(eligible) * monthly
		}

		if stat.QuantitySold == 0 {
			stat.AveragePrice = stat.Price
		} else {
			stat.AveragePrice = stat.Revenue / float64(stat.QuantitySold)
		}

		if at, ok := lastSold[stat.ProductID]; ok {
			stat.LastSold = at.UTC().Format(time.RFC3339)
			stat.DaysSinceLastSale = int(math.Floor(now.Sub(at).Hours() / 24))
		} else {
			stat.DaysSinceLastSale = cfg.PeriodDays
		}
	}
	return stats
}

func rotationBuckets(stats []domain.ProductSalesStat, cfg Config) (domain.RotationBuckets, domain.RotationSummary) {
	buckets := domain.RotationBuckets{
		High:   []domain.ProductSalesStat{},
		Medium: []domain.ProductSalesStat{},
		Low:    []domain.ProductSalesStat{},
		None:   []domain.ProductSalesStat{},
	}
	summary := domain.RotationSummary{}

	ratioSum := 0.0
	for _, stat := range stats {
		summary.TotalProducts++
		summary.TotalStock += stat.Stock
		summary.TotalSold += stat.QuantitySold
		ratioSum += stat.MonthlyRotationRatio

		switch {
		case stat.QuantitySold == 0:
			buckets.None = append(buckets.None, stat)
		case stat.MonthlyRotationRatio >= cfg.Thresholds.High:
			buckets.High = append(buckets.High, stat)
		case stat.MonthlyRotationRatio >= cfg.Thresholds.Medium:
			buckets.Medium = append(buckets.Medium, stat)
		default:
			buckets.Low = append(buckets.Low, stat)
		}
	}

	if summary.TotalProducts > 0 {
		summary.AverageRotation = ratioSum / float64(summary.TotalProducts)
	}
	if eligible := summary.TotalStock + summary.TotalSold; eligible > 0 {
		summary.OverallRotation = float64(summary.TotalSold) / float64(eligible) * (30.0 / float64(cfg.PeriodDays))
	}
	return buckets, summary
}

// popularityGroups rolls product stats up by the given key (country or
// brand). Products with an empty key land in the "Unknown" group; note
// that restock scoring looks groups up by the raw key, so those products
// deliberately score 0 on this component.
func popularityGroups(stats []domain.ProductSalesStat, cfg Config, keyOf func(domain.ProductSalesStat) string) ([]domain.GroupStat, map[string]*domain.GroupStat) {
	byName := make(map[string]*domain.GroupStat)
	order := make([]string, 0)

	for _, stat := range stats {
		name := keyOf(stat)
		if name == "" {
			name = unknownGroup
		}
		group, exists := byName[name]
		if !exists {
			group = &domain.GroupStat{Name: name}
			byName[name] = group
			order = append(order, name)
		}
		group.QuantitySold += stat.QuantitySold
		group.Revenue += stat.Revenue
		group.ProductCount++
		if stat.Stock > 0 {
			group.InStockCount++
			group.StockValue += float64(stat.Stock) * stat.Price
		}
	}

	monthly := 30.0 / float64(cfg.PeriodDays)
	sorted := make([]domain.GroupStat, 0, len(order))
	for _, name := range order {
		group := byName[name]
		if group.QuantitySold > 0 {
			group.AveragePrice = group.Revenue / float64(group.QuantitySold)
		}
		group.MonthlySales = float64(group.QuantitySold) * monthly
		group.MonthlyRevenue = group.Revenue * monthly
		sorted = append(sorted, *group)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].QuantitySold > sorted[j].QuantitySold
	})
	return sorted, byName
}

func priceTiers(stats []domain.ProductSalesStat, cfg Config) []domain.PriceTierStat {
	keys := []string{"economic", "standard", "premium", "luxury"}
	tiers := make(map[string]*domain.PriceTierStat, len(keys))
	for _, key := range keys {
		tiers[key] = &domain.PriceTierStat{Key: key}
	}

	for _, stat := range stats {
		var key string
		switch {
		case stat.Price <= cfg.PriceTiers.EconomicMax:
			key = "economic"
		case stat.Price <= cfg.PriceTiers.StandardMax:
			key = "standard"
		case stat.Price <= cfg.PriceTiers.PremiumMax:
			key = "premium"
		default:
			key = "luxury"
		}
		tier := tiers[key]
		tier.ProductCount++
		tier.QuantitySold += stat.QuantitySold
		tier.Revenue += stat.Revenue
		if stat.Stock > 0 {
			tier.InStockCount++
			tier.StockValue += float64(stat.Stock) * stat.Price
		}
	}

	totalSold := 0
	totalStockValue := 0.0
	for _, key := range keys {
		totalSold += tiers[key].QuantitySold
		totalStockValue += tiers[key].StockValue
	}

	monthly := 30.0 / float64(cfg.PeriodDays)
	result := make([]domain.PriceTierStat, 0, len(keys))
	for _, key := range keys {
		tier := tiers[key]
		if tier.QuantitySold > 0 {
			tier.AveragePrice = tier.Revenue / float64(tier.QuantitySold)
		}
		tier.MonthlySales = float64(tier.QuantitySold) * monthly
		tier.MonthlyRevenue = tier.Revenue * monthly
		if totalSold > 0 {
			tier.SalesPercentage = float64(tier.QuantitySold) / float64(totalSold) * 100
		}
		if totalStockValue > 0 {
			tier.StockPercentage = tier.StockValue / totalStockValue * 100
		}
		result = append(result, *tier)
	}
	return result
}

func restockRecommendations(
	stats []domain.ProductSalesStat,
	cfg Config,
	countries []domain.GroupStat,
	countryByName map[string]*domain.GroupStat,
	brands []domain.GroupStat,
	brandByName map[string]*domain.GroupStat,
) domain.RestockReport {
	maxCountrySales := 0
	if len(countries) > 0 {
		maxCountrySales = countries[0].QuantitySold
	}
	maxBrandSales := 0
	if len(brands) > 0 {
		maxBrandSales = brands[0].QuantitySold
	}

	priceRange := cfg.PriceTiers.PremiumMax

	scored := make([]domain.ScoredProduct, 0, len(stats))
	for _, stat := range stats {
		// Nothing in stock and never sold: nothing to recommend.
		if stat.Stock == 0 && stat.QuantitySold == 0 {
			continue
		}

		rotationScore := math.Min(1, stat.MonthlyRotationRatio*2)
		marginScore := math.Min(1, stat.Price/priceRange)
		countryScore := popularityScore(countryByName, stat.Country, maxCountrySales)
		brandScore := popularityScore(brandByName, stat.Brand, maxBrandSales)

		weighted := rotationScore*cfg.Weights.StockRotation +
			marginScore*cfg.Weights.ProfitMargin +
			countryScore*cfg.Weights.CountryPopularity +
			brandScore*cfg.Weights.BrandPopularity

		scored = append(scored, domain.ScoredProduct{
			ProductSalesStat: stat,
			Scores: domain.RestockScores{
				Rotation: rotationScore,
				Margin:   marginScore,
				Country:  countryScore,
				Brand:    brandScore,
				Weighted: weighted,
			},
			Recommendation: domain.RestockAdvice{
				RestockDays: restockDays(stat, weighted, cfg),
				Quantity:    recommendedQuantity(stat, cfg),
			},
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Scores.Weighted > scored[j].Scores.Weighted
	})

	priorities := domain.RestockPriorities{
		HighPriority:   []domain.ScoredProduct{},
		MediumPriority: []domain.ScoredProduct{},
		LowPriority:    []domain.ScoredProduct{},
		NoRestock:      []domain.ScoredProduct{},
	}
	for i := range scored {
		product := &scored[i]
		switch {
		case product.Stock > product.Recommendation.Quantity:
			product.Priority = domain.PriorityNoRestock
			priorities.NoRestock = append(priorities.NoRestock, *product)
		case product.Scores.Weighted >= 0.7:
			product.Priority = domain.PriorityHigh
			priorities.HighPriority = append(priorities.HighPriority, *product)
		case product.Scores.Weighted >= 0.4:
			product.Priority = domain.PriorityMedium
			priorities.MediumPriority = append(priorities.MediumPriority, *product)
		default:
			product.Priority = domain.PriorityLow
			priorities.LowPriority = append(priorities.LowPriority, *product)
		}
	}

	return domain.RestockReport{Priorities: priorities, Products: scored}
}

func popularityScore(byName map[string]*domain.GroupStat, rawKey string, maxSales int) float64 {
	if maxSales <= 0 {
		return 0
	}
	sold := 0
	if group, ok := byName[rawKey]; ok {
		sold = group.QuantitySold
	}
	return math.Min(1, float64(sold)/float64(maxSales))
}

// restockDays suggests how long reordering can wait. High-rotation
// products get a stockout projection; the rest decay from the 30-day
// baseline with their score.
func restockDays(stat domain.ProductSalesStat, score float64, cfg Config) float64 {
	const baseline = 30.0

	if stat.MonthlyRotationRatio > cfg.Thresholds.High {
		daysBeforeStockout := float64(stat.Stock) / (float64(stat.QuantitySold) / float64(cfg.PeriodDays))
		if daysBeforeStockout < 15 {
			return 0
		}
		return math.Min(daysBeforeStockout-15, baseline*(1-score))
	}

	return baseline * (1 - score*0.7)
}

func recommendedQuantity(stat domain.ProductSalesStat, cfg Config) int {
	monthlySales := float64(stat.QuantitySold) * (30.0 / float64(cfg.PeriodDays))

	coverage := 2.0
	if stat.MonthlyRotationRatio >= cfg.Thresholds.High {
		coverage = 3
	} else if stat.MonthlyRotationRatio <= cfg.Thresholds.Medium {
		coverage = 1.5
	}

	qty := int(math.Ceil(monthlySales * coverage))
	if qty <= 0 {
		// No sales history: suggest a minimal opening stock.
		return 5
	}
	return qty
}

func buildCacheKey(products []domain.Product, sales []domain.Sale, cfg Config) string {
	var b strings.Builder
	fmt.Fprintf(&b, "d:%d|t:%g:%g|w:%g:%g:%g:%g|p:%g:%g:%g",
		cfg.PeriodDays,
		cfg.Thresholds.High, cfg.Thresholds.Medium,
		cfg.Weights.StockRotation, cfg.Weights.ProfitMargin, cfg.Weights.CountryPopularity, cfg.Weights.BrandPopularity,
		cfg.PriceTiers.EconomicMax, cfg.PriceTiers.StandardMax, cfg.PriceTiers.PremiumMax)
	for _, p := range products {
		fmt.Fprintf(&b, "|P%d:%d:%g:%s:%s:%s", p.ID, p.Stock, p.Price, p.Name, p.Brand, p.Country)
	}
	for _, s := range sales {
		fmt.Fprintf(&b, "|S%d:%d:%d", s.ID, s.Timestamp, len(s.Items))
	}

	hash := sha1.Sum([]byte(b.String()))
	return "cigar:analysis:" + hex.EncodeToString(hash[:])
}
