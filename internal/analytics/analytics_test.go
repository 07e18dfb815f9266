package analytics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snackkit/backend/internal/domain"
)

var ist = time.FixedZone("IST", 5*3600+1800)

func line(name string, qty int, price int64) domain.SaleItem {
	unit := decimal.NewFromInt(price)
	return domain.SaleItem{ItemID: "id-" + name, Name: name, Qty: qty, UnitPrice: unit, Amount: unit.Mul(decimal.NewFromInt(int64(qty)))}
}

func sale(id, bakeryID, bakeryName string, at time.Time, items ...domain.SaleItem) domain.Sale {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Amount)
	}
	return domain.Sale{
		ID:             id,
		BakeryID:       bakeryID,
		BakerySnapshot: domain.BakerySnapshot{Name: bakeryName},
		Items:          items,
		TotalAmount:    total,
		CreatedAt:      at,
		Status:         domain.SaleStatusPending,
	}
}

func TestTodayStatsEmpty(t *testing.T) {
	stats := TodayStats(nil, time.Now(), ist)
	assert.True(t, stats.TotalRevenue.IsZero())
	assert.Equal(t, 0, stats.TotalQty)
	assert.Equal(t, 0, stats.UniqueBakeries)
}

func TestTodayStatsUsesLocalCalendarDay(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, ist)
	sales := []domain.Sale{
		sale("s1", "b1", "Anand", time.Date(2026, 5, 10, 9, 0, 0, 0, ist), line("A", 2, 10)),
		sale("s2", "b2", "Sree", time.Date(2026, 5, 10, 23, 30, 0, 0, ist), line("B", 1, 40)),
		sale("s3", "b1", "Anand", time.Date(2026, 5, 10, 10, 0, 0, 0, ist), line("A", 3, 10)),
		// 20:00 UTC on the 9th is 01:30 IST on the 10th.
		sale("s4", "b3", "Kumar", time.Date(2026, 5, 9, 20, 0, 0, 0, time.UTC), line("C", 1, 5)),
		sale("s5", "b3", "Kumar", time.Date(2026, 5, 9, 12, 0, 0, 0, ist), line("C", 9, 5)),
	}

	stats := TodayStats(sales, now, ist)
	assert.True(t, stats.TotalRevenue.Equal(decimal.NewFromInt(95)))
	assert.Equal(t, 7, stats.TotalQty)
	assert.Equal(t, 3, stats.UniqueBakeries)
}

func TestTopItemsTieKeepsFirstSeenOrder(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, ist)
	sales := []domain.Sale{
		sale("s1", "b1", "Anand", now, line("A", 3, 10)),
		sale("s2", "b1", "Anand", now, line("B", 5, 10), line("A", 2, 10)),
	}

	top := TopItemsToday(sales, now, ist, 2)
	assert.Equal(t, []domain.ItemQty{{Name: "A", Qty: 5}, {Name: "B", Qty: 5}}, top)
}

func TestTopItemsDefaultsToFive(t *testing.T) {
	now := time.Now()
	s := sale("s1", "b1", "Anand", now,
		line("A", 1, 1), line("B", 2, 1), line("C", 3, 1), line("D", 4, 1), line("E", 5, 1), line("F", 6, 1))

	top := TopItems([]domain.Sale{s}, 0)
	require.Len(t, top, 5)
	assert.Equal(t, "F", top[0].Name)
	assert.Equal(t, "B", top[4].Name)
}

func TestRecentlyUsedBakeries(t *testing.T) {
	bakeries := []domain.Bakery{
		{ID: "never"},
		{ID: "b500", LastUsedAt: time.UnixMilli(500)},
		{ID: "b300", LastUsedAt: time.UnixMilli(300)},
	}

	top := RecentlyUsedBakeries(bakeries, 1)
	require.Len(t, top, 1)
	assert.Equal(t, "b500", top[0].ID)

	all := RecentlyUsedBakeries(bakeries, 0)
	assert.Equal(t, "b500", all[0].ID)
	assert.Equal(t, "b300", all[1].ID)
	assert.Equal(t, "never", all[2].ID)
	assert.Equal(t, "never", bakeries[0].ID, "input must not be reordered")
}

func TestGroupByDayAndMonth(t *testing.T) {
	sales := []domain.Sale{
		sale("s1", "b1", "Anand", time.Date(2026, 4, 30, 10, 0, 0, 0, ist), line("A", 2, 10)),
		sale("s2", "b2", "Sree", time.Date(2026, 5, 1, 10, 0, 0, 0, ist), line("A", 1, 10)),
		sale("s3", "b1", "Anand", time.Date(2026, 5, 1, 18, 0, 0, 0, ist), line("B", 4, 25)),
		sale("s4", "b1", "Anand", time.Date(2026, 5, 3, 8, 0, 0, 0, ist), line("B", 1, 25)),
	}

	days := GroupByDay(sales, ist)
	require.Len(t, days, 3)
	assert.Equal(t, "2026-05-03", days[0].Date)
	assert.Equal(t, "2026-05-01", days[1].Date)
	assert.True(t, days[1].Revenue.Equal(decimal.NewFromInt(110)))
	assert.Equal(t, 5, days[1].Qty)
	assert.Equal(t, 2, days[1].Bakeries)
	assert.Equal(t, "2026-04-30", days[2].Date)

	months := GroupByMonth(sales, ist)
	require.Len(t, months, 2)
	assert.Equal(t, "2026-05", months[0].Month)
	assert.Equal(t, 2, months[0].Days)
	assert.Equal(t, 6, months[0].Qty)
	assert.True(t, months[0].Revenue.Equal(decimal.NewFromInt(135)))
	assert.Equal(t, "2026-04", months[1].Month)
	assert.Equal(t, 1, months[1].Days)
}

func TestTotals(t *testing.T) {
	sales := []domain.Sale{
		sale("s1", "b1", "Anand", time.Now(), line("A", 2, 10)),
		sale("s2", "b2", "Sree", time.Now(), line("B", 3, 5), line("C", 1, 7)),
	}

	totals := Totals(sales)
	assert.Equal(t, 2, totals.Sales)
	assert.Equal(t, 6, totals.TotalQty)
	assert.True(t, totals.TotalRevenue.Equal(decimal.NewFromInt(42)))
}

func TestFilterSales(t *testing.T) {
	sales := []domain.Sale{
		sale("s1", "b1", "Anand Bakers", time.Date(2026, 5, 1, 9, 0, 0, 0, ist), line("A", 1, 1)),
		sale("s2", "b2", "Sree Bakery", time.Date(2026, 5, 1, 11, 0, 0, 0, ist), line("A", 1, 1)),
		sale("s3", "b1", "Anand Bakers", time.Date(2026, 5, 2, 9, 0, 0, 0, ist), line("A", 1, 1)),
	}

	all := FilterSales(sales, domain.SaleFilter{}, ist)
	require.Len(t, all, 3)
	assert.Equal(t, "s3", all[0].ID)

	byDate := FilterSales(sales, domain.SaleFilter{Date: "2026-05-01"}, ist)
	require.Len(t, byDate, 2)
	assert.Equal(t, "s2", byDate[0].ID)

	byBoth := FilterSales(sales, domain.SaleFilter{Date: "2026-05-01", Bakery: "anand"}, ist)
	require.Len(t, byBoth, 1)
	assert.Equal(t, "s1", byBoth[0].ID)
}

func TestSearch(t *testing.T) {
	bakeries := []domain.Bakery{
		{ID: "b1", Name: "Anand Bakers", Phone: "9876543210"},
		{ID: "b2", Name: "Sree Bakery", Phone: "9000011111"},
	}
	assert.Len(t, SearchBakeries(bakeries, ""), 2)
	assert.Equal(t, "b2", SearchBakeries(bakeries, "SREE")[0].ID)
	assert.Equal(t, "b1", SearchBakeries(bakeries, "98765")[0].ID)

	items := []domain.Item{{ID: "i1", Name: "Banana Chips"}, {ID: "i2", Name: "Mixture"}}
	found := SearchItems(items, "chips")
	require.Len(t, found, 1)
	assert.Equal(t, "i1", found[0].ID)
}
