package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"balcao/backend/internal/cache"
	"balcao/backend/internal/domain"
	"balcao/backend/internal/store"
	"balcao/backend/internal/xid"
)

// ErrValidation marks input rejected before any store I/O.
var ErrValidation = errors.New("validation failed")

// CompositeWriteError reports a sale whose header write succeeded but whose
// item write failed. Compensated says whether the header delete went through.
type CompositeWriteError struct {
	SaleID          string
	Cause           error
	Compensated     bool
	CompensationErr error
}

func (e *CompositeWriteError) Error() string {
	if e.Compensated {
		return fmt.Sprintf("sale %s: item write failed (header compensated): %v", e.SaleID, e.Cause)
	}
	return fmt.Sprintf("sale %s: item write failed and compensation failed (partial state): %v", e.SaleID, e.Cause)
}

func (e *CompositeWriteError) Unwrap() error { return e.Cause }

type Service struct {
	repo       store.Repository
	statsCache cache.StatsCache
	statsTTL   time.Duration
}

func New(repo store.Repository, statsCache cache.StatsCache, statsTTL time.Duration) *Service {
	if statsCache == nil {
		statsCache = cache.NoopStatsCache{}
	}
	if statsTTL <= 0 {
		statsTTL = 20 * time.Second
	}

	return &Service{
		repo:       repo,
		statsCache: statsCache,
		statsTTL:   statsTTL,
	}
}

const (
	defaultPageSize  = 20
	defaultViewLimit = 10
	maxViewLimit     = 50
)

var productSortFields = map[string]bool{
	store.SortProductName:      true,
	store.SortProductPrice:     true,
	store.SortProductCategory:  true,
	store.SortProductCreatedAt: true,
}

type ProductListQuery struct {
	Search    string
	Category  string
	Available *bool
	Page      int
	Limit     int
	SortField string
	SortDesc  bool
}

func (s *Service) ListProducts(ctx context.Context, q ProductListQuery) (domain.ProductListResponse, error) {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Limit == 0 {
		q.Limit = defaultPageSize
	}
	if q.SortField == "" {
		q.SortField = store.SortProductName
	}

	if q.Page < 1 {
		return domain.ProductListResponse{}, fmt.Errorf("%w: page must be >= 1", ErrValidation)
	}
	if q.Limit < 1 {
		return domain.ProductListResponse{}, fmt.Errorf("%w: limit must be >= 1", ErrValidation)
	}
	if !productSortFields[q.SortField] {
		return domain.ProductListResponse{}, fmt.Errorf("%w: unknown sort field %q", ErrValidation, q.SortField)
	}

	filter := store.ProductFilter{
		Search:    strings.TrimSpace(q.Search),
		Category:  strings.TrimSpace(q.Category),
		Available: q.Available,
	}
	sort := store.ProductSort{Field: q.SortField, Desc: q.SortDesc}
	offset := (q.Page - 1) * q.Limit

	products, total, err := s.repo.ListProducts(ctx, filter, sort, offset, q.Limit)
	if err != nil {
		return domain.ProductListResponse{}, err
	}

	return domain.ProductListResponse{
		Products:   products,
		Pagination: paginate(q.Page, q.Limit, total),
	}, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, fmt.Errorf("%w: product id required", ErrValidation)
	}

	product, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) ListProductsByCategory(ctx context.Context, category string, page int, limit int) (domain.ProductListResponse, error) {
	if strings.TrimSpace(category) == "" {
		return domain.ProductListResponse{}, fmt.Errorf("%w: category required", ErrValidation)
	}
	return s.ListProducts(ctx, ProductListQuery{
		Category: category,
		Page:     page,
		Limit:    limit,
	})
}

func (s *Service) FeaturedProducts(ctx context.Context, limit int) ([]domain.Product, error) {
	return s.highlightView(ctx, store.ProductFilter{Featured: boolPtr(true)}, limit)
}

func (s *Service) AvailableProducts(ctx context.Context, limit int) ([]domain.Product, error) {
	return s.highlightView(ctx, store.ProductFilter{Available: boolPtr(true)}, limit)
}

func (s *Service) highlightView(ctx context.Context, filter store.ProductFilter, limit int) ([]domain.Product, error) {
	if limit < 1 {
		limit = defaultViewLimit
	}
	if limit > maxViewLimit {
		limit = maxViewLimit
	}

	sort := store.ProductSort{Field: store.SortProductCreatedAt, Desc: true}
	products, _, err := s.repo.ListProducts(ctx, filter, sort, 0, limit)
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)

	if req.Name == "" {
		return domain.Product{}, fmt.Errorf("%w: name required", ErrValidation)
	}
	if req.Category == "" {
		return domain.Product{}, fmt.Errorf("%w: category required", ErrValidation)
	}
	if err := validatePricing(req.PriceCents, req.DiscountPriceCents); err != nil {
		return domain.Product{}, err
	}

	available := true
	if req.Available != nil {
		available = *req.Available
	}

	product := domain.Product{
		ID:                 xid.New("prod"),
		Name:               req.Name,
		Description:        strings.TrimSpace(req.Description),
		PriceCents:         req.PriceCents,
		DiscountPriceCents: req.DiscountPriceCents,
		Category:           req.Category,
		ImageURL:           strings.TrimSpace(req.ImageURL),
		Available:          available,
		Featured:           req.Featured,
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, fmt.Errorf("%w: product id required", ErrValidation)
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, fmt.Errorf("%w: name must not be empty", ErrValidation)
		}
		updated.Name = name
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		if category == "" {
			return domain.Product{}, fmt.Errorf("%w: category must not be empty", ErrValidation)
		}
		updated.Category = category
	}
	if req.PriceCents != nil {
		updated.PriceCents = *req.PriceCents
	}
	if req.DiscountPriceCents != nil {
		updated.DiscountPriceCents = req.DiscountPriceCents
	}
	if req.ImageURL != nil {
		updated.ImageURL = strings.TrimSpace(*req.ImageURL)
	}
	if req.Available != nil {
		updated.Available = *req.Available
	}
	if req.Featured != nil {
		updated.Featured = *req.Featured
	}

	if err := validatePricing(updated.PriceCents, updated.DiscountPriceCents); err != nil {
		return domain.Product{}, err
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: product id required", ErrValidation)
	}
	return s.repo.DeleteProduct(ctx, id)
}

func validatePricing(priceCents int64, discountCents *int64) error {
	if priceCents < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrValidation)
	}
	if discountCents != nil {
		if *discountCents < 0 {
			return fmt.Errorf("%w: discount price must not be negative", ErrValidation)
		}
		if *discountCents >= priceCents {
			return fmt.Errorf("%w: discount price must be lower than price", ErrValidation)
		}
	}
	return nil
}

type SaleListQuery struct {
	From          *time.Time
	To            *time.Time
	Status        string
	PaymentMethod string
	CustomerID    string
	Page          int
	Limit         int
}

func (s *Service) ListSales(ctx context.Context, q SaleListQuery) (domain.SaleListResponse, error) {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Limit == 0 {
		q.Limit = defaultPageSize
	}

	if q.Page < 1 {
		return domain.SaleListResponse{}, fmt.Errorf("%w: page must be >= 1", ErrValidation)
	}
	if q.Limit < 1 {
		return domain.SaleListResponse{}, fmt.Errorf("%w: limit must be >= 1", ErrValidation)
	}
	if q.From != nil && q.To != nil && q.From.After(*q.To) {
		return domain.SaleListResponse{}, fmt.Errorf("%w: start date after end date", ErrValidation)
	}
	if q.Status != "" && !isSaleStatus(q.Status) {
		return domain.SaleListResponse{}, fmt.Errorf("%w: unknown status %q", ErrValidation, q.Status)
	}
	if q.PaymentMethod != "" && !isPaymentMethod(q.PaymentMethod) {
		return domain.SaleListResponse{}, fmt.Errorf("%w: unknown payment method %q", ErrValidation, q.PaymentMethod)
	}

	filter := store.SaleFilter{
		From:          q.From,
		To:            q.To,
		Status:        q.Status,
		PaymentMethod: q.PaymentMethod,
		CustomerID:    strings.TrimSpace(q.CustomerID),
	}
	offset := (q.Page - 1) * q.Limit

	sales, total, err := s.repo.ListSales(ctx, filter, offset, q.Limit)
	if err != nil {
		return domain.SaleListResponse{}, err
	}

	return domain.SaleListResponse{
		Sales:      sales,
		Pagination: paginate(q.Page, q.Limit, total),
	}, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Sale{}, fmt.Errorf("%w: sale id required", ErrValidation)
	}

	sale, err := s.repo.GetSaleByID(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

// Lifecycle: pending may move to completed or cancelled, both terminal.
func (s *Service) UpdateSaleStatus(ctx context.Context, id string, status string) (domain.Sale, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Sale{}, fmt.Errorf("%w: sale id required", ErrValidation)
	}
	if !isSaleStatus(status) {
		return domain.Sale{}, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}

	existing, err := s.repo.GetSaleByID(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	if existing.Status != domain.SaleStatusPending || status == domain.SaleStatusPending {
		return domain.Sale{}, fmt.Errorf("%w: cannot transition sale from %s to %s", ErrValidation, existing.Status, status)
	}

	updated, err := s.repo.UpdateSaleStatus(ctx, id, status)
	if err != nil {
		return domain.Sale{}, err
	}
	return *updated, nil
}

// CreateSale writes the header then the items; an item-write failure deletes
// the header again and returns a *CompositeWriteError.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)
	req.CustomerID = strings.TrimSpace(req.CustomerID)

	if !isPaymentMethod(req.PaymentMethod) {
		return domain.Sale{}, fmt.Errorf("%w: unknown payment method %q", ErrValidation, req.PaymentMethod)
	}
	if len(req.Items) == 0 {
		return domain.Sale{}, fmt.Errorf("%w: at least one item required", ErrValidation)
	}
	for i, item := range req.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return domain.Sale{}, fmt.Errorf("%w: item %d: product id required", ErrValidation, i)
		}
		if item.Quantity < 1 {
			return domain.Sale{}, fmt.Errorf("%w: item %d: quantity must be >= 1", ErrValidation, i)
		}
		if item.UnitPriceCents < 0 {
			return domain.Sale{}, fmt.Errorf("%w: item %d: unit price must not be negative", ErrValidation, i)
		}
	}

	if req.CustomerID != "" {
		if _, err := s.repo.GetCustomerByID(ctx, req.CustomerID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.Sale{}, fmt.Errorf("%w: customer %s not found", ErrValidation, req.CustomerID)
			}
			return domain.Sale{}, err
		}
	}

	snapshots := make(map[string]domain.Product, len(req.Items))
	for _, item := range req.Items {
		if _, seen := snapshots[item.ProductID]; seen {
			continue
		}
		product, err := s.repo.GetProductByID(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.Sale{}, fmt.Errorf("%w: product %s not found", ErrValidation, item.ProductID)
			}
			return domain.Sale{}, err
		}
		snapshots[item.ProductID] = *product
	}

	saleID := xid.New("sale")
	items := make([]domain.SaleItem, 0, len(req.Items))
	totalCents := int64(0)
	for _, item := range req.Items {
		product := snapshots[item.ProductID]
		subtotal := int64(item.Quantity) * item.UnitPriceCents
		items = append(items, domain.SaleItem{
			ID:              xid.New("item"),
			SaleID:          saleID,
			ProductID:       item.ProductID,
			ProductName:     product.Name,
			ProductCategory: product.Category,
			Quantity:        item.Quantity,
			UnitPriceCents:  item.UnitPriceCents,
			SubtotalCents:   subtotal,
		})
		totalCents += subtotal
	}

	header := domain.Sale{
		ID:            saleID,
		CustomerID:    req.CustomerID,
		Status:        domain.SaleStatusPending,
		PaymentMethod: req.PaymentMethod,
		TotalCents:    totalCents,
		CreatedAt:     time.Now().UTC(),
	}

	created, err := s.repo.InsertSale(ctx, header)
	if err != nil {
		return domain.Sale{}, err
	}

	if _, err := s.repo.InsertSaleItems(ctx, created.ID, items); err != nil {
		composite := &CompositeWriteError{SaleID: created.ID, Cause: err}
		if delErr := s.repo.DeleteSale(ctx, created.ID); delErr != nil {
			composite.CompensationErr = delErr
			log.Printf("[service] ERROR: compensation failed for sale %s: %v", created.ID, delErr)
		} else {
			composite.Compensated = true
		}
		return domain.Sale{}, composite
	}

	full, err := s.repo.GetSaleByID(ctx, created.ID)
	if err != nil {
		return domain.Sale{}, err
	}
	return *full, nil
}

// SalesStats windows end now: "day" is the current UTC calendar day,
// week/month/year are trailing 7/30/365 days, never calendar months.
func (s *Service) SalesStats(ctx context.Context, period string) (domain.SalesStats, error) {
	from, to, err := statsWindow(period, time.Now().UTC())
	if err != nil {
		return domain.SalesStats{}, err
	}

	cacheKey := "sales-stats:" + period
	if cached, ok, err := s.statsCache.Get(ctx, cacheKey); err == nil && ok {
		return *cached, nil
	}

	totals, err := s.repo.GetSalesTotals(ctx, from, to)
	if err != nil {
		return domain.SalesStats{}, err
	}

	stats := domain.SalesStats{
		Period:     period,
		From:       from,
		To:         to,
		Count:      totals.Count,
		TotalCents: totals.TotalCents,
	}
	if totals.Count > 0 {
		stats.AverageCents = int64(math.Round(float64(totals.TotalCents) / float64(totals.Count)))
	}

	if err := s.statsCache.Set(ctx, cacheKey, &stats, s.statsTTL); err != nil {
		log.Printf("[service] WARN: failed to cache sales stats for %s: %v", period, err)
	}

	return stats, nil
}

func statsWindow(period string, now time.Time) (time.Time, time.Time, error) {
	switch period {
	case domain.StatsPeriodDay:
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return start, now, nil
	case domain.StatsPeriodWeek:
		return now.Add(-7 * 24 * time.Hour), now, nil
	case domain.StatsPeriodMonth:
		return now.Add(-30 * 24 * time.Hour), now, nil
	case domain.StatsPeriodYear:
		return now.Add(-365 * 24 * time.Hour), now, nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("%w: unknown stats period %q", ErrValidation, period)
	}
}

// SalesReport folds non-cancelled sales in the inclusive range into
// per-payment-method buckets.
func (s *Service) SalesReport(ctx context.Context, from time.Time, to time.Time) (domain.SalesReport, error) {
	if from.IsZero() || to.IsZero() {
		return domain.SalesReport{}, fmt.Errorf("%w: start and end dates required", ErrValidation)
	}
	if from.After(to) {
		return domain.SalesReport{}, fmt.Errorf("%w: start date after end date", ErrValidation)
	}

	sales, err := s.repo.ListSalesBetween(ctx, from, to)
	if err != nil {
		return domain.SalesReport{}, err
	}

	report := domain.SalesReport{
		From:      from,
		To:        to,
		ByPayment: make(map[string]domain.PaymentBreakdown, 4),
		Sales:     sales,
	}
	for _, sale := range sales {
		report.Count++
		report.TotalCents += sale.TotalCents
		breakdown := report.ByPayment[sale.PaymentMethod]
		breakdown.Count++
		breakdown.TotalCents += sale.TotalCents
		report.ByPayment[sale.PaymentMethod] = breakdown
	}
	return report, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func paginate(page int, limit int, total int64) domain.Pagination {
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return domain.Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
	}
}

func isSaleStatus(status string) bool {
	switch status {
	case domain.SaleStatusPending, domain.SaleStatusCompleted, domain.SaleStatusCancelled:
		return true
	}
	return false
}

func isPaymentMethod(method string) bool {
	switch method {
	case domain.PaymentCash, domain.PaymentCard, domain.PaymentPix:
		return true
	}
	return false
}

func boolPtr(v bool) *bool { return &v }
