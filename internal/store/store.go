package store

import (
	"context"
	"errors"
	"time"

	"cigarmanager/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("invalid input")
	ErrEmptyCart         = errors.New("empty cart")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Repository is the persistence contract shared by the in-memory and
// postgres backends. Storage failures other than the sentinel errors
// above are surfaced verbatim.
type Repository interface {
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
	GetProductByID(ctx context.Context, id int64) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProductStock(ctx context.Context, id int64, stock int) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	DeleteAllProducts(ctx context.Context) error
	ResetAllStock(ctx context.Context) error
	PutProduct(ctx context.Context, product domain.Product) error

	AppendSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSaleByID(ctx context.Context, id int64) (*domain.Sale, error)
	ListSales(ctx context.Context) ([]domain.Sale, error)
	ListSalesByRange(ctx context.Context, startMillis int64, endMillis int64) ([]domain.Sale, error)
	GetLastSale(ctx context.Context) (*domain.Sale, error)
	DeleteSale(ctx context.Context, id int64) error
	DeleteAllSales(ctx context.Context) error
	PutSale(ctx context.Context, sale domain.Sale) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
