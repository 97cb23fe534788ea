package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"balcao/backend/internal/domain"
	"balcao/backend/internal/store"
)

func TestSaleWriteDeleteRoundTrip(t *testing.T) {
	databaseURL := os.Getenv("BALCAO_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set BALCAO_TEST_DATABASE_URL to run postgres integration test")
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
	productID := fmt.Sprintf("prod-it-%d", stamp)
	saleID := fmt.Sprintf("sale-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, category, price_cents, available, featured, created_at, updated_at)
		VALUES ($1, 'Produto IT', 'snack', 1200, true, false, now(), now())
	`, productID); err != nil {
		t.Fatalf("insert product: %v", err)
	}

	createdAt := time.Now().UTC().Truncate(time.Microsecond)
	header := domain.Sale{
		ID:            saleID,
		Status:        domain.SaleStatusPending,
		PaymentMethod: domain.PaymentPix,
		TotalCents:    2400,
		CreatedAt:     createdAt,
	}
	if _, err := s.InsertSale(ctx, header); err != nil {
		t.Fatalf("insert sale: %v", err)
	}

	items := []domain.SaleItem{{
		SaleID:          saleID,
		ProductID:       productID,
		ProductName:     "Produto IT",
		ProductCategory: "snack",
		Quantity:        2,
		UnitPriceCents:  1200,
		SubtotalCents:   2400,
	}}
	if _, err := s.InsertSaleItems(ctx, saleID, items); err != nil {
		t.Fatalf("insert sale items: %v", err)
	}

	sale, err := s.GetSaleByID(ctx, saleID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if sale.TotalCents != 2400 {
		t.Fatalf("expected total 2400, got %d", sale.TotalCents)
	}
	if len(sale.Items) != 1 || sale.Items[0].SubtotalCents != 2400 {
		t.Fatalf("unexpected items: %+v", sale.Items)
	}
	if sale.Items[0].ProductName != "Produto IT" {
		t.Fatalf("expected product snapshot on item, got %q", sale.Items[0].ProductName)
	}

	totals, err := s.GetSalesTotals(ctx, createdAt.Add(-time.Minute), createdAt.Add(time.Minute))
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals.Count < 1 || totals.TotalCents < 2400 {
		t.Fatalf("expected totals to include the inserted sale, got %+v", totals)
	}

	if err := s.DeleteSale(ctx, saleID); err != nil {
		t.Fatalf("delete sale: %v", err)
	}
	if _, err := s.GetSaleByID(ctx, saleID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	var orphaned int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sale_items WHERE sale_id = $1
	`, saleID).Scan(&orphaned); err != nil {
		t.Fatalf("query orphaned items: %v", err)
	}
	if orphaned != 0 {
		t.Fatalf("expected no orphaned items after delete, got %d", orphaned)
	}
}
