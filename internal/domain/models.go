package domain

import (
	"strconv"
	"strings"
	"time"
)

// FlexInt tolerates the loose numeric JSON the legacy clients send:
// numbers, numeric strings, null or garbage all decode, with anything
// unparseable or negative coerced to 0.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	*f = FlexInt(coerceInt(string(data)))
	return nil
}

// FlexFloat is the float counterpart of FlexInt.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	*f = FlexFloat(coerceFloat(string(data)))
	return nil
}

func coerceFloat(raw string) float64 {
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, `"`)
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return 0
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil || val < 0 {
		return 0
	}
	return val
}

func coerceInt(raw string) int {
	return int(coerceFloat(raw))
}

type Product struct {
	ID       int64   `json:"id"`
	Brand    string  `json:"brand"`
	Name     string  `json:"name"`
	Country  string  `json:"country"`
	Vitole   string  `json:"vitole"`
	Cape     string  `json:"cape"`
	SousCape string  `json:"sousCape"`
	Tripe    string  `json:"tripe"`
	Force    int     `json:"force"`
	Stock    int     `json:"stock"`
	Price    float64 `json:"price"`
	Supplier string  `json:"supplier"`
}

// ProductInput carries product fields submitted by a client. The numeric
// fields use the flexible decoders so malformed input lands as the
// documented defaults instead of a decode error.
type ProductInput struct {
	Brand    string    `json:"brand"`
	Name     string    `json:"name"`
	Country  string    `json:"country"`
	Vitole   string    `json:"vitole"`
	Cape     string    `json:"cape"`
	SousCape string    `json:"sousCape"`
	Tripe    string    `json:"tripe"`
	Force    FlexInt   `json:"force"`
	Stock    FlexInt   `json:"stock"`
	Price    FlexFloat `json:"price"`
	Supplier string    `json:"supplier"`
}

// Normalize applies the write-time coercion rules: stock and price are
// non-negative, force stays in 1..5 with 3 as the default.
func (p Product) Normalize() Product {
	if p.Stock < 0 {
		p.Stock = 0
	}
	if p.Price < 0 {
		p.Price = 0
	}
	if p.Force < 1 || p.Force > 5 {
		p.Force = 3
	}
	return p
}

type Sale struct {
	ID        int64          `json:"id"`
	Date      time.Time      `json:"date"`
	Timestamp int64          `json:"timestamp"`
	Items     []SaleLineItem `json:"items"`
	Total     float64        `json:"total"`
}

// SaleLineItem snapshots the product at sale time. ProductID is a weak
// reference: the product may be edited or deleted afterwards without
// touching historical sales.
type SaleLineItem struct {
	ProductID    int64   `json:"productId"`
	ProductName  string  `json:"productName"`
	ProductBrand string  `json:"productBrand"`
	Quantity     int     `json:"quantity"`
	Price        float64 `json:"price"`
	Subtotal     float64 `json:"subtotal"`
}

// CartLine is one entry of the transient cart handed to sale validation.
// Carts are never persisted.
type CartLine struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type SaleLineRequest struct {
	ProductID FlexInt `json:"productId"`
	Quantity  FlexInt `json:"quantity"`
}

type SaleRequest struct {
	Date  string            `json:"date,omitempty"`
	Items []SaleLineRequest `json:"items"`
}

type StockUpdateRequest struct {
	Stock FlexInt `json:"stock"`
}

// ExportEnvelope is the JSON backup format.
type ExportEnvelope struct {
	Products   []Product `json:"products"`
	Sales      []Sale    `json:"sales"`
	ExportDate string    `json:"exportDate"`
}

// ImportRequest mirrors ExportEnvelope with pointer slices so a missing
// collection can be told apart from an empty one. Both must be present.
type ImportRequest struct {
	Products *[]Product `json:"products"`
	Sales    *[]Sale    `json:"sales"`
}

type ProductFilter struct {
	Brand    string
	Country  string
	Supplier string
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type SellerCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type SellerUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

// ProductSalesStat aggregates one product's sales over the analysis window.
type ProductSalesStat struct {
	ProductID            int64   `json:"productId"`
	Name                 string  `json:"name"`
	Brand                string  `json:"brand"`
	Country              string  `json:"country"`
	Price                float64 `json:"price"`
	Stock                int     `json:"stock"`
	QuantitySold         int     `json:"quantitySold"`
	Revenue              float64 `json:"revenue"`
	SalesCount           int     `json:"salesCount"`
	LastSold             string  `json:"lastSold,omitempty"`
	MonthlyRotationRatio float64 `json:"monthlyRotationRatio"`
	AveragePrice         float64 `json:"averagePrice"`
	DaysSinceLastSale    int     `json:"daysSinceLastSale"`
}

type RotationBuckets struct {
	High   []ProductSalesStat `json:"high"`
	Medium []ProductSalesStat `json:"medium"`
	Low    []ProductSalesStat `json:"low"`
	None   []ProductSalesStat `json:"none"`
}

type RotationSummary struct {
	TotalProducts   int     `json:"totalProducts"`
	TotalStock      int     `json:"totalStock"`
	TotalSold       int     `json:"totalSold"`
	AverageRotation float64 `json:"averageRotation"`
	OverallRotation float64 `json:"overallRotation"`
}

// GroupStat is a popularity rollup keyed by country or brand.
type GroupStat struct {
	Name           string  `json:"name"`
	QuantitySold   int     `json:"quantitySold"`
	Revenue        float64 `json:"revenue"`
	ProductCount   int     `json:"productCount"`
	AveragePrice   float64 `json:"averagePrice"`
	InStockCount   int     `json:"inStockCount"`
	StockValue     float64 `json:"stockValue"`
	MonthlySales   float64 `json:"monthlySales"`
	MonthlyRevenue float64 `json:"monthlyRevenue"`
}

type PriceTierStat struct {
	Key             string  `json:"key"`
	QuantitySold    int     `json:"quantitySold"`
	Revenue         float64 `json:"revenue"`
	ProductCount    int     `json:"productCount"`
	InStockCount    int     `json:"inStockCount"`
	StockValue      float64 `json:"stockValue"`
	AveragePrice    float64 `json:"averagePrice"`
	MonthlySales    float64 `json:"monthlySales"`
	MonthlyRevenue  float64 `json:"monthlyRevenue"`
	SalesPercentage float64 `json:"salesPercentage"`
	StockPercentage float64 `json:"stockPercentage"`
}

type RestockScores struct {
	Rotation float64 `json:"rotation"`
	Margin   float64 `json:"margin"`
	Country  float64 `json:"country"`
	Brand    float64 `json:"brand"`
	Weighted float64 `json:"weighted"`
}

type RestockAdvice struct {
	RestockDays float64 `json:"restockDays"`
	Quantity    int     `json:"quantity"`
}

type ScoredProduct struct {
	ProductSalesStat
	Scores         RestockScores `json:"scores"`
	Recommendation RestockAdvice `json:"recommendation"`
	Priority       string        `json:"priority"`
}

type RestockPriorities struct {
	HighPriority   []ScoredProduct `json:"highPriority"`
	MediumPriority []ScoredProduct `json:"mediumPriority"`
	LowPriority    []ScoredProduct `json:"lowPriority"`
	NoRestock      []ScoredProduct `json:"noRestock"`
}

type RestockReport struct {
	Priorities RestockPriorities `json:"priorities"`
	Products   []ScoredProduct   `json:"products"`
}

// RotationReport is the full analyzer output. Given identical inputs and
// config it is byte-identical across runs.
type RotationReport struct {
	GeneratedAt time.Time          `json:"generatedAt"`
	PeriodDays  int                `json:"periodDays"`
	PeriodStart time.Time          `json:"periodStart"`
	PeriodEnd   time.Time          `json:"periodEnd"`
	Products    []ProductSalesStat `json:"products"`
	Rotation    RotationBuckets    `json:"rotation"`
	Summary     RotationSummary    `json:"summary"`
	Countries   []GroupStat        `json:"countries"`
	Brands      []GroupStat        `json:"brands"`
	PriceTiers  []PriceTierStat    `json:"priceTiers"`
	Restock     RestockReport      `json:"restock"`
}

const (
	RoleAdmin  = "admin"
	RoleSeller = "seller"
)

const (
	StockPolicyAllow  = "allow"
	StockPolicyReject = "reject"
	StockPolicyClamp  = "clamp"
)

const (
	RotationNone   = "none"
	RotationLow    = "low"
	RotationMedium = "medium"
	RotationHigh   = "high"
)

const (
	PriorityNoRestock = "noRestock"
	PriorityHigh      = "highPriority"
	PriorityMedium    = "mediumPriority"
	PriorityLow       = "lowPriority"
)
