package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type SaleStatus string

const (
	SaleStatusPending SaleStatus = "pending"
	SaleStatusSent    SaleStatus = "sent"
	SaleStatusFailed  SaleStatus = "failed"
)

func (s SaleStatus) Valid() bool {
	switch s {
	case SaleStatusPending, SaleStatusSent, SaleStatusFailed:
		return true
	}
	return false
}

// Bakery is a customer. LastUsedAt is zero until the first sale.
type Bakery struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Phone      string    `json:"phone"`
	Address    string    `json:"address,omitempty"`
	LastUsedAt time.Time `json:"last_used_at"`
	CreatedAt  time.Time `json:"created_at"`
}

type BakeryPatch struct {
	Name       *string    `json:"name,omitempty"`
	Phone      *string    `json:"phone,omitempty"`
	Address    *string    `json:"address,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

func (p BakeryPatch) Apply(b Bakery) Bakery {
	if p.Name != nil {
		b.Name = *p.Name
	}
	if p.Phone != nil {
		b.Phone = *p.Phone
	}
	if p.Address != nil {
		b.Address = *p.Address
	}
	if p.LastUsedAt != nil {
		b.LastUsedAt = *p.LastUsedAt
	}
	return b
}

type Item struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	SKU       string          `json:"sku,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type ItemPatch struct {
	Name      *string          `json:"name,omitempty"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
	SKU       *string          `json:"sku,omitempty"`
}

func (p ItemPatch) Apply(item Item) Item {
	if p.Name != nil {
		item.Name = *p.Name
	}
	if p.UnitPrice != nil {
		item.UnitPrice = *p.UnitPrice
	}
	if p.SKU != nil {
		item.SKU = *p.SKU
	}
	return item
}

// SaleItem is a priced line captured when the sale was made.
type SaleItem struct {
	ItemID    string          `json:"item_id"`
	Name      string          `json:"name"`
	Qty       int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Amount    decimal.Decimal `json:"amount"`
}

type BakerySnapshot struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type Sale struct {
	ID             string          `json:"id"`
	BakeryID       string          `json:"bakery_id"`
	BakerySnapshot BakerySnapshot  `json:"bakery_snapshot"`
	Items          []SaleItem      `json:"items"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	CreatedAt      time.Time       `json:"created_at"`
	Status         SaleStatus      `json:"status"`
	InvoiceNumber  string          `json:"invoice_number"`
	InvoiceID      string          `json:"invoice_id,omitempty"`
}

// TotalQty sums line quantities.
func (s Sale) TotalQty() int {
	qty := 0
	for _, item := range s.Items {
		qty += item.Qty
	}
	return qty
}

// SalePatch covers the only mutable fields of a recorded sale.
type SalePatch struct {
	Status    *SaleStatus `json:"status,omitempty"`
	InvoiceID *string     `json:"invoice_id,omitempty"`
}

func (p SalePatch) Apply(sale Sale) Sale {
	if p.Status != nil {
		sale.Status = *p.Status
	}
	if p.InvoiceID != nil {
		sale.InvoiceID = *p.InvoiceID
	}
	return sale
}

type Admin struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type UserAccount struct {
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

type BakeryCreateRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type ItemCreateRequest struct {
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	SKU       string          `json:"sku"`
}

type SaleLine struct {
	ItemID string `json:"item_id"`
	Qty    int    `json:"qty"`
}

type SaleCreateRequest struct {
	BakeryID string     `json:"bakery_id"`
	Lines    []SaleLine `json:"lines"`
}

type SaleStatusRequest struct {
	Status SaleStatus `json:"status"`
}

// SaleUpdateRequest carries the only sale fields that change after creation.
type SaleUpdateRequest struct {
	Status    *SaleStatus `json:"status,omitempty"`
	InvoiceID *string     `json:"invoice_id,omitempty"`
}

type AdminSaveRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type SaleFilter struct {
	Date   string
	Bakery string
}

type TodayStats struct {
	TotalRevenue   decimal.Decimal `json:"total_revenue"`
	TotalQty       int             `json:"total_qty"`
	UniqueBakeries int             `json:"unique_bakeries"`
}

type ItemQty struct {
	Name string `json:"name"`
	Qty  int    `json:"qty"`
}

type DailySummary struct {
	Date     string          `json:"date"`
	Revenue  decimal.Decimal `json:"revenue"`
	Qty      int             `json:"qty"`
	Bakeries int             `json:"bakeries"`
}

type MonthlySummary struct {
	Month   string          `json:"month"`
	Revenue decimal.Decimal `json:"revenue"`
	Qty     int             `json:"qty"`
	Days    int             `json:"days"`
}

type SalesTotals struct {
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	TotalQty     int             `json:"total_qty"`
	Sales        int             `json:"sales"`
}

type Dashboard struct {
	Today          TodayStats `json:"today"`
	TopItems       []ItemQty  `json:"top_items"`
	RecentBakeries []Bakery   `json:"recent_bakeries"`
}

type InvoiceShare struct {
	InvoiceNumber string `json:"invoice_number"`
	Message       string `json:"message"`
	Link          string `json:"link"`
}

type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SessionResponse struct {
	AccessToken string `json:"access_token"`
	Email       string `json:"email"`
	ExpiresAt   string `json:"expires_at"`
}

type SessionEventType string

const (
	SessionSignedIn  SessionEventType = "signed_in"
	SessionSignedOut SessionEventType = "signed_out"
)

type SessionEvent struct {
	Type  SessionEventType
	Email string
	At    time.Time
}

// Actor is the authenticated user attached to a request context.
type Actor struct {
	Email   string
	TokenID string
}
