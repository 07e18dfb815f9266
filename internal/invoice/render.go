package invoice

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"

	"snackkit/backend/internal/domain"
)

const (
	DefaultTitle    = "Snack Kit Invoice"
	DefaultCurrency = "₹"
	DefaultShareURL = "https://wa.me/"
)

// Renderer formats a sale as a plain-text message. It does not know where
// the message ends up.
type Renderer struct {
	Title    string
	Currency string
	Location *time.Location
}

func (r Renderer) Render(sale domain.Sale) string {
	title := r.Title
	if title == "" {
		title = DefaultTitle
	}
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	created := sale.CreatedAt.In(loc)

	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n", title)
	fmt.Fprintf(&b, "Invoice #: %s\n", sale.InvoiceNumber)
	fmt.Fprintf(&b, "Date: %d/%d/%d\n", created.Day(), int(created.Month()), created.Year())
	fmt.Fprintf(&b, "Bakery: %s\n", sale.BakerySnapshot.Name)
	b.WriteString("\n*Items:*\n")
	for _, item := range sale.Items {
		fmt.Fprintf(&b, "%s\n", item.Name)
		fmt.Fprintf(&b, "  Qty: %d × %s%s = %s%s\n",
			item.Qty,
			r.Currency, item.UnitPrice.StringFixed(2),
			r.Currency, item.Amount.StringFixed(2),
		)
	}
	fmt.Fprintf(&b, "\n*Total: %s%s*", r.Currency, sale.TotalAmount.StringFixed(2))
	return b.String()
}

// ShareLink builds a deep link that hands text to a chat client for phone.
// Non-digit characters are stripped from the phone number.
func ShareLink(baseURL string, phone string, text string) string {
	if baseURL == "" {
		baseURL = DefaultShareURL
	}
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, phone)
	encoded := strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
	return baseURL + digits + "?text=" + encoded
}
