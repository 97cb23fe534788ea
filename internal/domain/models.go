package domain

import "time"

// Money is carried as int64 cents everywhere. Multiplication and summation
// stay exact; no float arithmetic touches a money field.

type Product struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Description        string    `json:"description"`
	PriceCents         int64     `json:"price_cents"`
	DiscountPriceCents *int64    `json:"discount_price_cents,omitempty"`
	Category           string    `json:"category"`
	ImageURL           string    `json:"image_url,omitempty"`
	Available          bool      `json:"available"`
	Featured           bool      `json:"featured"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type ProductCreateRequest struct {
	Name               string `json:"name"`
	Description        string `json:"description"`
	PriceCents         int64  `json:"price_cents"`
	DiscountPriceCents *int64 `json:"discount_price_cents,omitempty"`
	Category           string `json:"category"`
	ImageURL           string `json:"image_url,omitempty"`
	Available          *bool  `json:"available,omitempty"`
	Featured           bool   `json:"featured"`
}

type ProductUpdateRequest struct {
	Name               *string `json:"name,omitempty"`
	Description        *string `json:"description,omitempty"`
	PriceCents         *int64  `json:"price_cents,omitempty"`
	DiscountPriceCents *int64  `json:"discount_price_cents,omitempty"`
	Category           *string `json:"category,omitempty"`
	ImageURL           *string `json:"image_url,omitempty"`
	Available          *bool   `json:"available,omitempty"`
	Featured           *bool   `json:"featured,omitempty"`
}

type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type Sale struct {
	ID            string     `json:"id"`
	CustomerID    string     `json:"customer_id,omitempty"`
	Customer      *Customer  `json:"customer,omitempty"`
	Status        string     `json:"status"`
	PaymentMethod string     `json:"payment_method"`
	TotalCents    int64      `json:"total_cents"`
	CreatedAt     time.Time  `json:"created_at"`
	Items         []SaleItem `json:"items,omitempty"`
}

// SaleItem captures the unit price at sale time. Later catalog price changes
// never reflow into recorded items.
type SaleItem struct {
	ID              string `json:"id"`
	SaleID          string `json:"sale_id"`
	ProductID       string `json:"product_id"`
	ProductName     string `json:"product_name,omitempty"`
	ProductCategory string `json:"product_category,omitempty"`
	Quantity        int    `json:"quantity"`
	UnitPriceCents  int64  `json:"unit_price_cents"`
	SubtotalCents   int64  `json:"subtotal_cents"`
}

type SaleItemRequest struct {
	ProductID      string `json:"product_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type SaleCreateRequest struct {
	CustomerID    string            `json:"customer_id,omitempty"`
	PaymentMethod string            `json:"payment_method"`
	Items         []SaleItemRequest `json:"items"`
}

type SaleStatusUpdateRequest struct {
	Status string `json:"status"`
}

// Pagination is the one envelope metadata shape shared by every list
// operation.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

type ProductListResponse struct {
	Products   []Product  `json:"products"`
	Pagination Pagination `json:"pagination"`
}

type SaleListResponse struct {
	Sales      []Sale     `json:"sales"`
	Pagination Pagination `json:"pagination"`
}

// SalesTotals is the single-round-trip aggregate the store returns for a
// stats window: row count and revenue sum over non-cancelled sales.
type SalesTotals struct {
	Count      int64
	TotalCents int64
}

type SalesStats struct {
	Period       string    `json:"period"`
	From         time.Time `json:"from"`
	To           time.Time `json:"to"`
	Count        int64     `json:"count"`
	TotalCents   int64     `json:"total_cents"`
	AverageCents int64     `json:"average_cents"`
}

type PaymentBreakdown struct {
	Count      int64 `json:"count"`
	TotalCents int64 `json:"total_cents"`
}

type SalesReport struct {
	From       time.Time                   `json:"from"`
	To         time.Time                   `json:"to"`
	Count      int64                       `json:"count"`
	TotalCents int64                       `json:"total_cents"`
	ByPayment  map[string]PaymentBreakdown `json:"by_payment"`
	Sales      []Sale                      `json:"sales"`
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

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	SaleStatusPending   = "pending"
	SaleStatusCompleted = "completed"
	SaleStatusCancelled = "cancelled"
)

const (
	PaymentCash = "cash"
	PaymentCard = "card"
	PaymentPix  = "pix"
)

const (
	StatsPeriodDay   = "day"
	StatsPeriodWeek  = "week"
	StatsPeriodMonth = "month"
	StatsPeriodYear  = "year"
)
