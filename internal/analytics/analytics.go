// Package analytics derives read-only summaries from sale and bakery
// collections. Every function is pure: callers pass the clock and the
// location used to decide calendar days.
package analytics

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"snackkit/backend/internal/domain"
)

const (
	DefaultTopItems       = 5
	DefaultRecentBakeries = 5

	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
)

func DayKey(t time.Time, loc *time.Location) string {
	return t.In(orUTC(loc)).Format(dayLayout)
}

func MonthKey(t time.Time, loc *time.Location) string {
	return t.In(orUTC(loc)).Format(monthLayout)
}

// TodaySales keeps the sales created on now's calendar day in loc.
func TodaySales(sales []domain.Sale, now time.Time, loc *time.Location) []domain.Sale {
	today := DayKey(now, loc)
	out := make([]domain.Sale, 0, len(sales))
	for _, sale := range sales {
		if DayKey(sale.CreatedAt, loc) == today {
			out = append(out, sale)
		}
	}
	return out
}

func TodayStats(sales []domain.Sale, now time.Time, loc *time.Location) domain.TodayStats {
	today := TodaySales(sales, now, loc)
	stats := domain.TodayStats{TotalRevenue: decimal.Zero}
	bakeries := make(map[string]struct{}, len(today))
	for _, sale := range today {
		stats.TotalRevenue = stats.TotalRevenue.Add(sale.TotalAmount)
		stats.TotalQty += sale.TotalQty()
		bakeries[sale.BakeryID] = struct{}{}
	}
	stats.UniqueBakeries = len(bakeries)
	return stats
}

// TopItems sums quantity per item name and returns the n largest. Names
// with equal totals keep the order in which they were first seen.
func TopItems(sales []domain.Sale, n int) []domain.ItemQty {
	if n <= 0 {
		n = DefaultTopItems
	}

	totals := make(map[string]int)
	order := make([]string, 0)
	for _, sale := range sales {
		for _, item := range sale.Items {
			if _, seen := totals[item.Name]; !seen {
				order = append(order, item.Name)
			}
			totals[item.Name] += item.Qty
		}
	}

	ranked := make([]domain.ItemQty, 0, len(order))
	for _, name := range order {
		ranked = append(ranked, domain.ItemQty{Name: name, Qty: totals[name]})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Qty > ranked[j].Qty
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func TopItemsToday(sales []domain.Sale, now time.Time, loc *time.Location, n int) []domain.ItemQty {
	return TopItems(TodaySales(sales, now, loc), n)
}

// RecentlyUsedBakeries orders by LastUsedAt descending. Bakeries that never
// had a sale go last.
func RecentlyUsedBakeries(bakeries []domain.Bakery, n int) []domain.Bakery {
	if n <= 0 {
		n = DefaultRecentBakeries
	}

	ranked := make([]domain.Bakery, len(bakeries))
	copy(ranked, bakeries)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i].LastUsedAt, ranked[j].LastUsedAt
		if a.IsZero() != b.IsZero() {
			return b.IsZero()
		}
		return a.After(b)
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func GroupByDay(sales []domain.Sale, loc *time.Location) []domain.DailySummary {
	type bucket struct {
		summary  domain.DailySummary
		bakeries map[string]struct{}
	}

	buckets := make(map[string]*bucket)
	for _, sale := range sales {
		key := DayKey(sale.CreatedAt, loc)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{
				summary:  domain.DailySummary{Date: key, Revenue: decimal.Zero},
				bakeries: make(map[string]struct{}),
			}
			buckets[key] = b
		}
		b.summary.Revenue = b.summary.Revenue.Add(sale.TotalAmount)
		b.summary.Qty += sale.TotalQty()
		b.bakeries[sale.BakeryID] = struct{}{}
	}

	out := make([]domain.DailySummary, 0, len(buckets))
	for _, b := range buckets {
		b.summary.Bakeries = len(b.bakeries)
		out = append(out, b.summary)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Date > out[j].Date
	})
	return out
}

func GroupByMonth(sales []domain.Sale, loc *time.Location) []domain.MonthlySummary {
	type bucket struct {
		summary domain.MonthlySummary
		days    map[string]struct{}
	}

	buckets := make(map[string]*bucket)
	for _, sale := range sales {
		key := MonthKey(sale.CreatedAt, loc)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{
				summary: domain.MonthlySummary{Month: key, Revenue: decimal.Zero},
				days:    make(map[string]struct{}),
			}
			buckets[key] = b
		}
		b.summary.Revenue = b.summary.Revenue.Add(sale.TotalAmount)
		b.summary.Qty += sale.TotalQty()
		b.days[DayKey(sale.CreatedAt, loc)] = struct{}{}
	}

	out := make([]domain.MonthlySummary, 0, len(buckets))
	for _, b := range buckets {
		b.summary.Days = len(b.days)
		out = append(out, b.summary)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Month > out[j].Month
	})
	return out
}

func Totals(sales []domain.Sale) domain.SalesTotals {
	totals := domain.SalesTotals{TotalRevenue: decimal.Zero, Sales: len(sales)}
	for _, sale := range sales {
		totals.TotalRevenue = totals.TotalRevenue.Add(sale.TotalAmount)
		totals.TotalQty += sale.TotalQty()
	}
	return totals
}

// FilterSales applies the history filters and returns the match newest
// first. Date is a YYYY-MM-DD day in loc; Bakery is a case-insensitive
// substring of the snapshot name. Empty filters match everything.
func FilterSales(sales []domain.Sale, filter domain.SaleFilter, loc *time.Location) []domain.Sale {
	date := strings.TrimSpace(filter.Date)
	bakery := strings.ToLower(strings.TrimSpace(filter.Bakery))

	out := make([]domain.Sale, 0, len(sales))
	for _, sale := range sales {
		if date != "" && DayKey(sale.CreatedAt, loc) != date {
			continue
		}
		if bakery != "" && !strings.Contains(strings.ToLower(sale.BakerySnapshot.Name), bakery) {
			continue
		}
		out = append(out, sale)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// SearchBakeries matches q against name (case-insensitive) or phone.
func SearchBakeries(bakeries []domain.Bakery, q string) []domain.Bakery {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return bakeries
	}
	out := make([]domain.Bakery, 0, len(bakeries))
	for _, b := range bakeries {
		if strings.Contains(strings.ToLower(b.Name), q) || strings.Contains(b.Phone, q) {
			out = append(out, b)
		}
	}
	return out
}

func SearchItems(items []domain.Item, q string) []domain.Item {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return items
	}
	out := make([]domain.Item, 0, len(items))
	for _, item := range items {
		if strings.Contains(strings.ToLower(item.Name), q) {
			out = append(out, item)
		}
	}
	return out
}

func orUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
