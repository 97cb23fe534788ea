package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"balcao/backend/internal/domain"
	"balcao/backend/internal/store"
	"balcao/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// productSortColumns whitelists ORDER BY targets. The service validates sort
// fields before calling; the map guards against drift all the same.
var productSortColumns = map[string]string{
	store.SortProductName:      "name",
	store.SortProductPrice:     "price_cents",
	store.SortProductCategory:  "category",
	store.SortProductCreatedAt: "created_at",
}

// productWhere renders the filter as a conjunction of predicates with
// positional args starting at $1.
func productWhere(filter store.ProductFilter) (string, []any) {
	clauses := make([]string, 0, 4)
	args := make([]any, 0, 4)

	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := len(args)
		clauses = append(clauses, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", n, n))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		clauses = append(clauses, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.Available != nil {
		args = append(args, *filter.Available)
		clauses = append(clauses, fmt.Sprintf("available = $%d", len(args)))
	}
	if filter.Featured != nil {
		args = append(args, *filter.Featured)
		clauses = append(clauses, fmt.Sprintf("featured = $%d", len(args)))
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (s *Store) ListProducts(ctx context.Context, filter store.ProductFilter, sort store.ProductSort, offset int, limit int) ([]domain.Product, int64, error) {
	where, args := productWhere(filter)

	var total int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM products"+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("products: count: %w", err)
	}

	column, ok := productSortColumns[sort.Field]
	if !ok {
		column = "name"
	}
	direction := "ASC"
	if sort.Desc {
		direction = "DESC"
	}

	query := fmt.Sprintf(`
		SELECT id, name, description, price_cents, discount_price_cents,
			category, image_url, available, featured, created_at, updated_at
		FROM products%s
		ORDER BY %s %s, id ASC
		LIMIT $%d OFFSET $%d
	`, where, column, direction, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("products: list: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, limit)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("products: list: %w", err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("products: list: %w", err)
	}

	return products, total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	var description sql.NullString
	var discount sql.NullInt64
	var imageURL sql.NullString

	err := row.Scan(&p.ID, &p.Name, &description, &p.PriceCents, &discount,
		&p.Category, &imageURL, &p.Available, &p.Featured, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Product{}, err
	}
	if description.Valid {
		p.Description = description.String
	}
	if discount.Valid {
		d := discount.Int64
		p.DiscountPriceCents = &d
	}
	if imageURL.Valid {
		p.ImageURL = imageURL.String
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, price_cents, discount_price_cents,
			category, image_url, available, featured, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id)

	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("products: get: %w", err)
	}
	return &product, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (
			id, name, description, price_cents, discount_price_cents,
			category, image_url, available, featured, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, product.ID, product.Name, nullIfEmpty(product.Description), product.PriceCents,
		nullInt64(product.DiscountPriceCents), product.Category, nullIfEmpty(product.ImageURL),
		product.Available, product.Featured, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, fmt.Errorf("products: create: %w", err)
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, description = $3, price_cents = $4, discount_price_cents = $5,
			category = $6, image_url = $7, available = $8, featured = $9, updated_at = $10
		WHERE id = $1
	`, product.ID, product.Name, nullIfEmpty(product.Description), product.PriceCents,
		nullInt64(product.DiscountPriceCents), product.Category, nullIfEmpty(product.ImageURL),
		product.Available, product.Featured, product.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("products: update: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("products: update: %w", err)
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("products: delete: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("products: delete: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, phone
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Email, &c.Phone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("customers: get: %w", err)
	}
	return &c, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, phone
		FROM customers
		ORDER BY name, id
	`)
	if err != nil {
		return nil, fmt.Errorf("customers: list: %w", err)
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone); err != nil {
			return nil, fmt.Errorf("customers: list: %w", err)
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("customers: list: %w", err)
	}
	return customers, nil
}

func saleWhere(filter store.SaleFilter) (string, []any) {
	clauses := make([]string, 0, 5)
	args := make([]any, 0, 5)

	if filter.From != nil {
		args = append(args, *filter.From)
		clauses = append(clauses, fmt.Sprintf("s.created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		clauses = append(clauses, fmt.Sprintf("s.created_at <= $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		clauses = append(clauses, fmt.Sprintf("s.status = $%d", len(args)))
	}
	if filter.PaymentMethod != "" {
		args = append(args, filter.PaymentMethod)
		clauses = append(clauses, fmt.Sprintf("s.payment_method = $%d", len(args)))
	}
	if filter.CustomerID != "" {
		args = append(args, filter.CustomerID)
		clauses = append(clauses, fmt.Sprintf("s.customer_id = $%d", len(args)))
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (s *Store) ListSales(ctx context.Context, filter store.SaleFilter, offset int, limit int) ([]domain.Sale, int64, error) {
	where, args := saleWhere(filter)

	var total int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sales s"+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("sales: count: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT s.id, s.customer_id, s.status, s.payment_method, s.total_cents, s.created_at,
			c.id, c.name, c.email, c.phone
		FROM sales s
		LEFT JOIN customers c ON c.id = s.customer_id%s
		ORDER BY s.created_at DESC, s.id ASC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("sales: list: %w", err)
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		sale, err := scanSaleWithCustomer(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("sales: list: %w", err)
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sales: list: %w", err)
	}

	return sales, total, nil
}

func scanSaleWithCustomer(row rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	var customerID sql.NullString
	var cID, cName, cEmail, cPhone sql.NullString

	err := row.Scan(&sale.ID, &customerID, &sale.Status, &sale.PaymentMethod,
		&sale.TotalCents, &sale.CreatedAt, &cID, &cName, &cEmail, &cPhone)
	if err != nil {
		return domain.Sale{}, err
	}
	if customerID.Valid {
		sale.CustomerID = customerID.String
	}
	if cID.Valid {
		sale.Customer = &domain.Customer{
			ID:    cID.String,
			Name:  cName.String,
			Email: cEmail.String,
			Phone: cPhone.String,
		}
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	return sale, nil
}

func (s *Store) GetSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.customer_id, s.status, s.payment_method, s.total_cents, s.created_at,
			c.id, c.name, c.email, c.phone
		FROM sales s
		LEFT JOIN customers c ON c.id = s.customer_id
		WHERE s.id = $1
	`, id)

	sale, err := scanSaleWithCustomer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("sales: get: %w", err)
	}

	items, err := s.saleItems(ctx, []string{sale.ID})
	if err != nil {
		return nil, err
	}
	sale.Items = items[sale.ID]
	if sale.Items == nil {
		sale.Items = []domain.SaleItem{}
	}
	return &sale, nil
}

// saleItems loads items for a set of sales in one query, keyed by sale id.
func (s *Store) saleItems(ctx context.Context, saleIDs []string) (map[string][]domain.SaleItem, error) {
	result := make(map[string][]domain.SaleItem, len(saleIDs))
	if len(saleIDs) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, product_id, product_name, product_category,
			quantity, unit_price_cents, subtotal_cents
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, id
	`, saleIDs)
	if err != nil {
		return nil, fmt.Errorf("sale_items: list: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.SaleItem
		err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.ProductName,
			&item.ProductCategory, &item.Quantity, &item.UnitPriceCents, &item.SubtotalCents)
		if err != nil {
			return nil, fmt.Errorf("sale_items: list: %w", err)
		}
		result[item.SaleID] = append(result[item.SaleID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sale_items: list: %w", err)
	}
	return result, nil
}

func (s *Store) InsertSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sales (id, customer_id, status, payment_method, total_cents, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, sale.ID, nullIfEmpty(sale.CustomerID), sale.Status, sale.PaymentMethod,
		sale.TotalCents, sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, fmt.Errorf("sales: insert: %w", err)
	}

	created := sale
	created.Items = nil
	created.Customer = nil
	return &created, nil
}

func (s *Store) InsertSaleItems(ctx context.Context, saleID string, items []domain.SaleItem) ([]domain.SaleItem, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("sale_items: insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stored := make([]domain.SaleItem, 0, len(items))
	for _, item := range items {
		if item.ID == "" {
			item.ID = xid.New("item")
		}
		item.SaleID = saleID
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (
				id, sale_id, product_id, product_name, product_category,
				quantity, unit_price_cents, subtotal_cents
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, item.ID, item.SaleID, item.ProductID, item.ProductName, item.ProductCategory,
			item.Quantity, item.UnitPriceCents, item.SubtotalCents)
		if err != nil {
			return nil, fmt.Errorf("sale_items: insert: %w", err)
		}
		stored = append(stored, item)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sale_items: insert: %w", err)
	}
	return stored, nil
}

func (s *Store) DeleteSale(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("sales: delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, id); err != nil {
		return fmt.Errorf("sales: delete: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("sales: delete: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sales: delete: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sales: delete: %w", err)
	}
	return nil
}

func (s *Store) UpdateSaleStatus(ctx context.Context, id string, status string) (*domain.Sale, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sales
		SET status = $2
		WHERE id = $1
	`, id, status)
	if err != nil {
		return nil, fmt.Errorf("sales: update status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("sales: update status: %w", err)
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetSaleByID(ctx, id)
}

func (s *Store) GetSalesTotals(ctx context.Context, from time.Time, to time.Time) (domain.SalesTotals, error) {
	var totals domain.SalesTotals
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::bigint, COALESCE(SUM(total_cents),0)::bigint
		FROM sales
		WHERE created_at >= $1
			AND created_at <= $2
			AND status <> $3
	`, from, to, domain.SaleStatusCancelled).Scan(&totals.Count, &totals.TotalCents)
	if err != nil {
		return domain.SalesTotals{}, fmt.Errorf("sales: totals: %w", err)
	}
	return totals, nil
}

func (s *Store) ListSalesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.customer_id, s.status, s.payment_method, s.total_cents, s.created_at,
			c.id, c.name, c.email, c.phone
		FROM sales s
		LEFT JOIN customers c ON c.id = s.customer_id
		WHERE s.created_at >= $1
			AND s.created_at <= $2
			AND s.status <> $3
		ORDER BY s.created_at ASC, s.id ASC
	`, from, to, domain.SaleStatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("sales: range: %w", err)
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 128)
	ids := make([]string, 0, 128)
	for rows.Next() {
		sale, err := scanSaleWithCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("sales: range: %w", err)
		}
		sales = append(sales, sale)
		ids = append(ids, sale.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sales: range: %w", err)
	}

	items, err := s.saleItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Items = items[sales[i].ID]
		if sales[i].Items == nil {
			sales[i].Items = []domain.SaleItem{}
		}
	}
	return sales, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("users: create: %w", err)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("users: list: %w", err)
		}
		u.CreatedAt = u.CreatedAt.UTC()
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET password = $2
		WHERE username = $1
	`, username, password)
	if err != nil {
		return fmt.Errorf("users: update password: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("users: update password: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullInt64(val *int64) any {
	if val == nil {
		return nil
	}
	return *val
}
