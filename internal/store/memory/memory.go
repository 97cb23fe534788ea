package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"balcao/backend/internal/domain"
	"balcao/backend/internal/store"
	"balcao/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	customers       map[string]domain.Customer
	salesByID       map[string]*domain.Sale
	itemsBySaleID   map[string][]domain.SaleItem
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD
// environment variables, with hardcoded dev defaults and a warning when
// unset. Production deployments use PostgreSQL (DATABASE_URL set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"staff", staffPwd, "staff"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		customers:       make(map[string]domain.Customer),
		salesByID:       make(map[string]*domain.Sale),
		itemsBySaleID:   make(map[string][]domain.SaleItem),
		usersByUsername: seedUsers(),
	}
}

func NewSeeded() *Store {
	now := time.Now().UTC()
	discount := int64(1490)
	products := []domain.Product{
		{ID: "prod-pao-01", Name: "Pão Francês", Description: "Pãozinho assado na hora", PriceCents: 90, Category: "bakery", Available: true, Featured: true, CreatedAt: now.Add(-40 * 24 * time.Hour), UpdatedAt: now},
		{ID: "prod-cafe-01", Name: "Café Coado", Description: "Café passado, xícara grande", PriceCents: 650, Category: "beverage", Available: true, Featured: true, CreatedAt: now.Add(-35 * 24 * time.Hour), UpdatedAt: now},
		{ID: "prod-coxinha-01", Name: "Coxinha de Frango", Description: "Coxinha tradicional", PriceCents: 850, Category: "snack", Available: true, CreatedAt: now.Add(-30 * 24 * time.Hour), UpdatedAt: now},
		{ID: "prod-pastel-01", Name: "Pastel de Queijo", Description: "Pastel frito de queijo", PriceCents: 900, Category: "snack", Available: true, CreatedAt: now.Add(-28 * 24 * time.Hour), UpdatedAt: now},
		{ID: "prod-suco-01", Name: "Suco de Laranja", Description: "Suco natural 500ml", PriceCents: 1200, DiscountPriceCents: &discount, Category: "beverage", Available: true, CreatedAt: now.Add(-20 * 24 * time.Hour), UpdatedAt: now},
		{ID: "prod-prato-01", Name: "Prato Feito", Description: "Arroz, feijão, bife e salada", PriceCents: 2800, Category: "meal", Available: true, Featured: true, CreatedAt: now.Add(-15 * 24 * time.Hour), UpdatedAt: now},
		{ID: "prod-pudim-01", Name: "Pudim de Leite", Description: "Fatia de pudim caseiro", PriceCents: 1100, Category: "dessert", Available: false, CreatedAt: now.Add(-10 * 24 * time.Hour), UpdatedAt: now},
	}

	customers := []domain.Customer{
		{ID: "cust-ana-01", Name: "Ana Ribeiro", Email: "ana@example.com", Phone: "+55 11 91234-0001"},
		{ID: "cust-joao-01", Name: "João Souza", Email: "joao@example.com", Phone: "+55 11 91234-0002"},
		{ID: "cust-mari-01", Name: "Mariana Lima", Email: "mariana@example.com", Phone: "+55 11 91234-0003"},
	}

	s := New()
	for _, p := range products {
		s.products[p.ID] = p
	}
	for _, c := range customers {
		s.customers[c.ID] = c
	}
	return s
}

func (s *Store) ListProducts(_ context.Context, filter store.ProductFilter, sort store.ProductSort, offset int, limit int) ([]domain.Product, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !productMatches(p, filter) {
			continue
		}
		matched = append(matched, p)
	}

	sortProducts(matched, sort)

	total := int64(len(matched))
	if offset >= len(matched) {
		return []domain.Product{}, total, nil
	}
	end := offset + limit
	if limit < 1 || end > len(matched) {
		end = len(matched)
	}
	page := make([]domain.Product, end-offset)
	copy(page, matched[offset:end])
	return page, total, nil
}

func productMatches(p domain.Product, filter store.ProductFilter) bool {
	if filter.Category != "" && p.Category != filter.Category {
		return false
	}
	if filter.Available != nil && p.Available != *filter.Available {
		return false
	}
	if filter.Featured != nil && p.Featured != *filter.Featured {
		return false
	}
	if filter.Search != "" {
		needle := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(p.Name), needle) &&
			!strings.Contains(strings.ToLower(p.Description), needle) {
			return false
		}
	}
	return true
}

func sortProducts(products []domain.Product, sort store.ProductSort) {
	slices.SortStableFunc(products, func(a, b domain.Product) int {
		var cmp int
		switch sort.Field {
		case store.SortProductPrice:
			cmp = cmpInt64(a.PriceCents, b.PriceCents)
		case store.SortProductCategory:
			cmp = cmpString(a.Category, b.Category)
		case store.SortProductCreatedAt:
			cmp = a.CreatedAt.Compare(b.CreatedAt)
		default:
			cmp = cmpString(a.Name, b.Name)
		}
		if cmp == 0 {
			cmp = cmpString(a.ID, b.ID)
		}
		if sort.Desc {
			return -cmp
		}
		return cmp
	})
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := product
	return &copied, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrConflict
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()

	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *Store) GetCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customers[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := customer
	return &copied, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return cmpString(a.Name, b.Name)
	})
	return customers, nil
}

func (s *Store) ListSales(_ context.Context, filter store.SaleFilter, offset int, limit int) ([]domain.Sale, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if !saleMatches(*sale, filter) {
			continue
		}
		matched = append(matched, s.saleSummaryLocked(*sale))
	}

	slices.SortFunc(matched, func(a, b domain.Sale) int {
		if cmp := b.CreatedAt.Compare(a.CreatedAt); cmp != 0 {
			return cmp
		}
		return cmpString(a.ID, b.ID)
	})

	total := int64(len(matched))
	if offset >= len(matched) {
		return []domain.Sale{}, total, nil
	}
	end := offset + limit
	if limit < 1 || end > len(matched) {
		end = len(matched)
	}
	page := make([]domain.Sale, end-offset)
	copy(page, matched[offset:end])
	return page, total, nil
}

func saleMatches(sale domain.Sale, filter store.SaleFilter) bool {
	if filter.Status != "" && sale.Status != filter.Status {
		return false
	}
	if filter.PaymentMethod != "" && sale.PaymentMethod != filter.PaymentMethod {
		return false
	}
	if filter.CustomerID != "" && sale.CustomerID != filter.CustomerID {
		return false
	}
	if filter.From != nil && sale.CreatedAt.Before(*filter.From) {
		return false
	}
	if filter.To != nil && sale.CreatedAt.After(*filter.To) {
		return false
	}
	return true
}

// saleSummaryLocked copies a sale without items, attaching the customer
// summary. Callers hold at least the read lock.
func (s *Store) saleSummaryLocked(sale domain.Sale) domain.Sale {
	copied := sale
	copied.Items = nil
	if customer, ok := s.customers[sale.CustomerID]; ok {
		c := customer
		copied.Customer = &c
	}
	return copied
}

func (s *Store) GetSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}

	copied := s.saleSummaryLocked(*sale)
	items := s.itemsBySaleID[id]
	copied.Items = make([]domain.SaleItem, len(items))
	copy(copied.Items, items)
	return &copied, nil
}

func (s *Store) InsertSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if _, exists := s.salesByID[sale.ID]; exists {
		return nil, store.ErrConflict
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	sale.Items = nil
	sale.Customer = nil

	stored := sale
	s.salesByID[sale.ID] = &stored
	created := sale
	return &created, nil
}

func (s *Store) InsertSaleItems(_ context.Context, saleID string, items []domain.SaleItem) ([]domain.SaleItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.salesByID[saleID]; !exists {
		return nil, store.ErrNotFound
	}

	stored := make([]domain.SaleItem, 0, len(items))
	for _, item := range items {
		if item.ID == "" {
			item.ID = xid.New("item")
		}
		item.SaleID = saleID
		stored = append(stored, item)
	}
	s.itemsBySaleID[saleID] = append(s.itemsBySaleID[saleID], stored...)

	result := make([]domain.SaleItem, len(stored))
	copy(result, stored)
	return result, nil
}

func (s *Store) DeleteSale(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.salesByID[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.salesByID, id)
	delete(s.itemsBySaleID, id)
	return nil
}

func (s *Store) UpdateSaleStatus(_ context.Context, id string, status string) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	sale.Status = status

	copied := s.saleSummaryLocked(*sale)
	items := s.itemsBySaleID[id]
	copied.Items = make([]domain.SaleItem, len(items))
	copy(copied.Items, items)
	return &copied, nil
}

func (s *Store) GetSalesTotals(_ context.Context, from time.Time, to time.Time) (domain.SalesTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var totals domain.SalesTotals
	for _, sale := range s.salesByID {
		if sale.Status == domain.SaleStatusCancelled {
			continue
		}
		if sale.CreatedAt.Before(from) || sale.CreatedAt.After(to) {
			continue
		}
		totals.Count++
		totals.TotalCents += sale.TotalCents
	}
	return totals, nil
}

func (s *Store) ListSalesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.salesByID))
	for id, sale := range s.salesByID {
		if sale.Status == domain.SaleStatusCancelled {
			continue
		}
		if sale.CreatedAt.Before(from) || sale.CreatedAt.After(to) {
			continue
		}
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(ids))
	for _, id := range ids {
		sale, err := s.GetSaleByID(ctx, id)
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if cmp := a.CreatedAt.Compare(b.CreatedAt); cmp != 0 {
			return cmp
		}
		return cmpString(a.ID, b.ID)
	})
	return sales, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrConflict
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
