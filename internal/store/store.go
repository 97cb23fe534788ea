package store

import (
	"context"
	"errors"
	"time"

	"balcao/backend/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Product sort fields accepted by ListProducts. The service layer rejects
// anything outside this set before the store is reached.
const (
	SortProductName      = "name"
	SortProductPrice     = "price"
	SortProductCategory  = "category"
	SortProductCreatedAt = "created_at"
)

// ProductFilter is an immutable predicate specification. A zero field means
// "no constraint". Values are passed by value into a single store call so no
// query-builder state is ever shared between requests.
type ProductFilter struct {
	Search    string
	Category  string
	Available *bool
	Featured  *bool
}

type ProductSort struct {
	Field string
	Desc  bool
}

// SaleFilter predicates conjoin; date bounds are inclusive.
type SaleFilter struct {
	From          *time.Time
	To            *time.Time
	Status        string
	PaymentMethod string
	CustomerID    string
}

type Repository interface {
	ListProducts(ctx context.Context, filter ProductFilter, sort ProductSort, offset int, limit int) ([]domain.Product, int64, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)

	// ListSales joins the customer summary onto every row; items are not
	// expanded at list granularity.
	ListSales(ctx context.Context, filter SaleFilter, offset int, limit int) ([]domain.Sale, int64, error)
	// GetSaleByID expands customer, items and the per-item product snapshot.
	GetSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	// InsertSale writes the sale header only. Items arrive through
	// InsertSaleItems; DeleteSale is the compensation path when the second
	// write fails.
	InsertSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	InsertSaleItems(ctx context.Context, saleID string, items []domain.SaleItem) ([]domain.SaleItem, error)
	DeleteSale(ctx context.Context, id string) error
	UpdateSaleStatus(ctx context.Context, id string, status string) (*domain.Sale, error)

	// GetSalesTotals answers a stats window in one round trip: count and
	// revenue sum over sales created in [from, to], cancelled excluded.
	GetSalesTotals(ctx context.Context, from time.Time, to time.Time) (domain.SalesTotals, error)
	// ListSalesBetween returns expanded sales created in [from, to],
	// cancelled excluded, oldest first.
	ListSalesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
