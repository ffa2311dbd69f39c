package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"cigarmanager/backend/internal/analysis"
	"cigarmanager/backend/internal/domain"
	"cigarmanager/backend/internal/store"
	"cigarmanager/backend/internal/xid"
)

// ErrForbidden marks operations the acting role is not allowed to perform.
var ErrForbidden = errors.New("admin role required")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo        store.Repository
	analyzer    *analysis.Engine
	stockPolicy string
	analysisCfg analysis.Config
}

// New wires the coordinator. stockPolicy controls what a sale-time stock
// decrement does when the quantity exceeds the available stock:
// "allow" writes the negative value (legacy behavior, the default),
// "reject" fails the whole sale before anything is written, and
// "clamp" floors the resulting stock at zero.
func New(repo store.Repository, analyzer *analysis.Engine, stockPolicy string) *Service {
	switch stockPolicy {
	case domain.StockPolicyAllow, domain.StockPolicyReject, domain.StockPolicyClamp:
	default:
		stockPolicy = domain.StockPolicyAllow
	}

	return &Service{
		repo:        repo,
		analyzer:    analyzer,
		stockPolicy: stockPolicy,
		analysisCfg: analysis.DefaultConfig(),
	}
}

func (s *Service) SetAnalysisConfig(cfg analysis.Config) {
	s.analysisCfg = cfg
}

func (s *Service) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, filter)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	product, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductInput) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	product, err := productFromInput(req)
	if err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", fmt.Sprintf("%d", created.ID), fmt.Sprintf("brand=%s,name=%s,stock=%d,price=%.2f", created.Brand, created.Name, created.Stock, created.Price))
	return *created, nil
}

// UpdateProduct is a full-record replace: every stored field takes the
// submitted value after coercion.
func (s *Service) UpdateProduct(ctx context.Context, id int64, req domain.ProductInput) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	product, err := productFromInput(req)
	if err != nil {
		return domain.Product{}, err
	}
	product.ID = id

	updated, err := s.repo.UpdateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", fmt.Sprintf("%d", updated.ID), fmt.Sprintf("brand=%s,name=%s,stock=%d,price=%.2f", updated.Brand, updated.Name, updated.Stock, updated.Price))
	return *updated, nil
}

func (s *Service) UpdateProductStock(ctx context.Context, id int64, stock int) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	if stock < 0 {
		stock = 0
	}
	updated, err := s.repo.UpdateProductStock(ctx, id, stock)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_stock_update", "product", fmt.Sprintf("%d", updated.ID), fmt.Sprintf("stock=%d", updated.Stock))
	return *updated, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "product_delete", "product", fmt.Sprintf("%d", id), "")
	return nil
}

func (s *Service) DeleteAllProducts(ctx context.Context) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteAllProducts(ctx); err != nil {
		return err
	}
	s.logAudit(ctx, "product_delete_all", "product", "*", "")
	return nil
}

func (s *Service) ResetAllStock(ctx context.Context) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.ResetAllStock(ctx); err != nil {
		return err
	}
	s.logAudit(ctx, "stock_reset_all", "product", "*", "")
	return nil
}

// ValidateSale turns a cart into a committed sale. The sale record is
// the durability boundary: once appended it is never rolled back, even
// if a subsequent stock decrement fails. Such a failure is returned to
// the caller alongside the committed sale.
func (s *Service) ValidateSale(ctx context.Context, cart []domain.CartLine, date time.Time) (domain.Sale, error) {
	if len(cart) == 0 {
		return domain.Sale{}, store.ErrEmptyCart
	}

	// Clients may submit several lines for the same product. Merge them
	// first so pricing and the single stock write per product cover the
	// whole cart instead of just the last line.
	merged := make([]domain.CartLine, 0, len(cart))
	position := make(map[int64]int, len(cart))
	for _, line := range cart {
		if line.Quantity < 1 {
			return domain.Sale{}, fmt.Errorf("%w: quantity must be at least 1", store.ErrValidation)
		}
		if at, ok := position[line.ProductID]; ok {
			merged[at].Quantity += line.Quantity
			continue
		}
		position[line.ProductID] = len(merged)
		merged = append(merged, line)
	}

	type pendingLine struct {
		product domain.Product
		qty     int
	}

	lines := make([]pendingLine, 0, len(merged))
	items := make([]domain.SaleLineItem, 0, len(merged))
	total := 0.0
	for _, line := range merged {
		product, err := s.repo.GetProductByID(ctx, line.ProductID)
		if err != nil {
			return domain.Sale{}, err
		}
		if s.stockPolicy == domain.StockPolicyReject && line.Quantity > product.Stock {
			return domain.Sale{}, fmt.Errorf("%w: product %d has %d in stock, cart wants %d", store.ErrInsufficientStock, product.ID, product.Stock, line.Quantity)
		}

		subtotal := float64(line.Quantity) * product.Price
		items = append(items, domain.SaleLineItem{
			ProductID:    product.ID,
			ProductName:  product.Name,
			ProductBrand: product.Brand,
			Quantity:     line.Quantity,
			Price:        product.Price,
			Subtotal:     subtotal,
		})
		total += subtotal
		lines = append(lines, pendingLine{product: *product, qty: line.Quantity})
	}

	if date.IsZero() {
		date = time.Now().UTC()
	}

	created, err := s.repo.AppendSale(ctx, domain.Sale{
		Date:  date,
		Items: items,
		Total: total,
	})
	if err != nil {
		return domain.Sale{}, err
	}

	for _, line := range lines {
		newStock := line.product.Stock - line.qty
		if s.stockPolicy == domain.StockPolicyClamp && newStock < 0 {
			newStock = 0
		}
		if _, err := s.repo.UpdateProductStock(ctx, line.product.ID, newStock); err != nil {
			log.Printf("[service] WARN: sale %d committed but stock decrement failed for product %d: %v", created.ID, line.product.ID, err)
			return *created, fmt.Errorf("sale %d recorded but stock update for product %d failed: %w", created.ID, line.product.ID, err)
		}
	}

	s.logAudit(ctx, "sale_commit", "sale", fmt.Sprintf("%d", created.ID), fmt.Sprintf("items=%d,total=%.2f", len(created.Items), created.Total))
	return *created, nil
}

func (s *Service) GetSale(ctx context.Context, id int64) (domain.Sale, error) {
	sale, err := s.repo.GetSaleByID(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx)
}

// ListSalesByRange filters on the write-time timestamp, both bounds
// inclusive. Callers wanting whole calendar days must widen the end
// bound themselves.
func (s *Service) ListSalesByRange(ctx context.Context, startMillis int64, endMillis int64) ([]domain.Sale, error) {
	return s.repo.ListSalesByRange(ctx, startMillis, endMillis)
}

func (s *Service) GetLastSale(ctx context.Context) (domain.Sale, error) {
	sale, err := s.repo.GetLastSale(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) DeleteSale(ctx context.Context, id int64) error {
	if err := s.repo.DeleteSale(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "sale_delete", "sale", fmt.Sprintf("%d", id), "")
	return nil
}

func (s *Service) DeleteAllSales(ctx context.Context) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteAllSales(ctx); err != nil {
		return err
	}
	s.logAudit(ctx, "sale_delete_all", "sale", "*", "")
	return nil
}

// ReturnToStock reverses a committed sale: each referenced product that
// still exists gets its line quantity back, then the sale is deleted.
// Lines whose product was deleted in the meantime are skipped.
func (s *Service) ReturnToStock(ctx context.Context, saleID int64) error {
	sale, err := s.repo.GetSaleByID(ctx, saleID)
	if err != nil {
		return err
	}

	for _, item := range sale.Items {
		product, err := s.repo.GetProductByID(ctx, item.ProductID)
		if errors.Is(err, store.ErrNotFound) {
			log.Printf("[service] WARN: sale %d references deleted product %d, stock not restored", sale.ID, item.ProductID)
			continue
		}
		if err != nil {
			return err
		}
		if _, err := s.repo.UpdateProductStock(ctx, product.ID, product.Stock+item.Quantity); err != nil {
			return err
		}
	}

	if err := s.repo.DeleteSale(ctx, sale.ID); err != nil {
		return err
	}

	s.logAudit(ctx, "sale_return", "sale", fmt.Sprintf("%d", sale.ID), fmt.Sprintf("items=%d,total=%.2f", len(sale.Items), sale.Total))
	return nil
}

// CancelLastSale reverses the most recently written sale.
func (s *Service) CancelLastSale(ctx context.Context) (domain.Sale, error) {
	last, err := s.repo.GetLastSale(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	if err := s.ReturnToStock(ctx, last.ID); err != nil {
		return domain.Sale{}, err
	}
	return *last, nil
}

func (s *Service) ExportAllData(ctx context.Context) (domain.ExportEnvelope, error) {
	products, err := s.repo.ListProducts(ctx, domain.ProductFilter{})
	if err != nil {
		return domain.ExportEnvelope{}, err
	}
	sales, err := s.repo.ListSales(ctx)
	if err != nil {
		return domain.ExportEnvelope{}, err
	}

	return domain.ExportEnvelope{
		Products:   products,
		Sales:      sales,
		ExportDate: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// ImportAllData replaces the whole store with the submitted snapshot:
// wipe both collections, then re-insert keeping the snapshot IDs. Not a
// merge.
func (s *Service) ImportAllData(ctx context.Context, req domain.ImportRequest) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	if req.Products == nil || req.Sales == nil {
		return fmt.Errorf("%w: products and sales arrays are both required", store.ErrValidation)
	}

	if err := s.repo.DeleteAllProducts(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteAllSales(ctx); err != nil {
		return err
	}

	for _, product := range *req.Products {
		if err := s.repo.PutProduct(ctx, product.Normalize()); err != nil {
			return err
		}
	}
	for _, sale := range *req.Sales {
		if err := s.repo.PutSale(ctx, sale); err != nil {
			return err
		}
	}

	s.logAudit(ctx, "data_import", "data", "*", fmt.Sprintf("products=%d,sales=%d", len(*req.Products), len(*req.Sales)))
	return nil
}

// AnalyzeRotation builds the sales window ending now and hands it to the
// analyzer. periodDays <= 0 keeps the configured default.
func (s *Service) AnalyzeRotation(ctx context.Context, periodDays int) (*domain.RotationReport, error) {
	cfg := s.analysisCfg
	if periodDays > 0 {
		cfg.PeriodDays = periodDays
	}

	now := cfg.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	products, err := s.repo.ListProducts(ctx, domain.ProductFilter{})
	if err != nil {
		return nil, err
	}

	endMillis := now.UnixMilli()
	startMillis := now.AddDate(0, 0, -cfg.PeriodDays).UnixMilli()
	sales, err := s.repo.ListSalesByRange(ctx, startMillis, endMillis)
	if err != nil {
		return nil, err
	}

	return s.analyzer.Analyze(ctx, products, sales, cfg), nil
}

func (s *Service) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return ErrForbidden
	}
	return nil
}

func productFromInput(req domain.ProductInput) (domain.Product, error) {
	brand := strings.TrimSpace(req.Brand)
	name := strings.TrimSpace(req.Name)
	if brand == "" || name == "" {
		return domain.Product{}, fmt.Errorf("%w: brand and name are required", store.ErrValidation)
	}

	product := domain.Product{
		Brand:    brand,
		Name:     name,
		Country:  strings.TrimSpace(req.Country),
		Vitole:   strings.TrimSpace(req.Vitole),
		Cape:     strings.TrimSpace(req.Cape),
		SousCape: strings.TrimSpace(req.SousCape),
		Tripe:    strings.TrimSpace(req.Tripe),
		Force:    int(req.Force),
		Stock:    int(req.Stock),
		Price:    float64(req.Price),
		Supplier: strings.TrimSpace(req.Supplier),
	}
	return product.Normalize(), nil
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, _ := ActorFromContext(ctx)
	entry := domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
		log.Printf("[service] WARN: failed to write audit log action=%s: %v", action, err)
	}
}
