package invoice

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"snackkit/backend/internal/domain"
)

func sampleSale() domain.Sale {
	return domain.Sale{
		ID:             "sale-1",
		BakeryID:       "b-1",
		BakerySnapshot: domain.BakerySnapshot{Name: "Anand Bakers", Phone: "+91 98765-43210"},
		Items: []domain.SaleItem{
			{ItemID: "i-1", Name: "Banana Chips", Qty: 3, UnitPrice: decimal.RequireFromString("45"), Amount: decimal.RequireFromString("135")},
			{ItemID: "i-2", Name: "Mixture", Qty: 2, UnitPrice: decimal.RequireFromString("55.5"), Amount: decimal.RequireFromString("111")},
		},
		TotalAmount:   decimal.RequireFromString("246"),
		CreatedAt:     time.Date(2026, 3, 4, 20, 0, 0, 0, time.UTC),
		Status:        domain.SaleStatusPending,
		InvoiceNumber: "INV-1007",
	}
}

func TestRenderFormatsInvoice(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	r := Renderer{Title: "Snack Kit Invoice", Currency: "₹", Location: ist}

	want := strings.Join([]string{
		"*Snack Kit Invoice*",
		"Invoice #: INV-1007",
		"Date: 5/3/2026",
		"Bakery: Anand Bakers",
		"",
		"*Items:*",
		"Banana Chips",
		"  Qty: 3 × ₹45.00 = ₹135.00",
		"Mixture",
		"  Qty: 2 × ₹55.50 = ₹111.00",
		"",
		"*Total: ₹246.00*",
	}, "\n")
	assert.Equal(t, want, r.Render(sampleSale()))
}

func TestRenderDefaultsTitleAndUTC(t *testing.T) {
	out := Renderer{}.Render(sampleSale())
	assert.True(t, strings.HasPrefix(out, "*Snack Kit Invoice*\n"))
	assert.Contains(t, out, "Date: 4/3/2026")
}

func TestShareLinkEncodesText(t *testing.T) {
	link := ShareLink("", "+91 98765-43210", "Total: ₹10 & more")
	assert.Equal(t, "https://wa.me/919876543210?text=Total%3A%20%E2%82%B910%20%26%20more", link)
}
