package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"snackkit/backend/internal/analytics"
	"snackkit/backend/internal/cache"
	"snackkit/backend/internal/domain"
	"snackkit/backend/internal/invoice"
	"snackkit/backend/internal/logger"
	"snackkit/backend/internal/store"
	"snackkit/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const adminID = "admin"

type Options struct {
	Cache        cache.ReportCache
	CacheTTL     time.Duration
	Logger       *slog.Logger
	Location     *time.Location
	Renderer     invoice.Renderer
	ShareBaseURL string
	Now          func() time.Time
}

type Service struct {
	repo      store.Repository
	sequencer invoice.Sequencer
	cache     cache.ReportCache
	cacheTTL  time.Duration
	log       *slog.Logger
	loc       *time.Location
	renderer  invoice.Renderer
	shareURL  string
	now       func() time.Time
}

func New(repo store.Repository, sequencer invoice.Sequencer, opts Options) *Service {
	if opts.Cache == nil {
		opts.Cache = cache.NoopReportCache{}
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Renderer.Location == nil {
		opts.Renderer.Location = opts.Location
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		repo:      repo,
		sequencer: sequencer,
		cache:     opts.Cache,
		cacheTTL:  opts.CacheTTL,
		log:       opts.Logger.With(slog.String("component", "service")),
		loc:       opts.Location,
		renderer:  opts.Renderer,
		shareURL:  opts.ShareBaseURL,
		now:       opts.Now,
	}
}

func (s *Service) Location() *time.Location {
	return s.loc
}

func (s *Service) ListBakeries(ctx context.Context, query string) ([]domain.Bakery, error) {
	bakeries, err := s.repo.ListBakeries(ctx)
	if err != nil {
		return nil, err
	}
	return analytics.SearchBakeries(bakeries, query), nil
}

func (s *Service) RecentBakeries(ctx context.Context, limit int) ([]domain.Bakery, error) {
	bakeries, err := s.repo.ListBakeries(ctx)
	if err != nil {
		return nil, err
	}
	return analytics.RecentlyUsedBakeries(bakeries, limit), nil
}

func (s *Service) GetBakery(ctx context.Context, id string) (domain.Bakery, error) {
	bakery, err := s.repo.GetBakery(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Bakery{}, err
	}
	return *bakery, nil
}

func (s *Service) CreateBakery(ctx context.Context, req domain.BakeryCreateRequest) (domain.Bakery, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Address = strings.TrimSpace(req.Address)
	if req.Name == "" || req.Phone == "" {
		return domain.Bakery{}, fmt.Errorf("%w: bakery name and phone are required", store.ErrValidation)
	}

	bakery := domain.Bakery{
		ID:        xid.New("bakery"),
		Name:      req.Name,
		Phone:     req.Phone,
		Address:   req.Address,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.CreateBakery(ctx, bakery); err != nil {
		return domain.Bakery{}, err
	}
	return bakery, nil
}

func (s *Service) UpdateBakery(ctx context.Context, id string, patch domain.BakeryPatch) (domain.Bakery, error) {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return domain.Bakery{}, fmt.Errorf("%w: bakery name is required", store.ErrValidation)
		}
		patch.Name = &name
	}
	if patch.Phone != nil {
		phone := strings.TrimSpace(*patch.Phone)
		if phone == "" {
			return domain.Bakery{}, fmt.Errorf("%w: bakery phone is required", store.ErrValidation)
		}
		patch.Phone = &phone
	}
	// lastUsedAt only moves when a sale is recorded.
	patch.LastUsedAt = nil

	if err := s.repo.UpdateBakery(ctx, id, patch); err != nil {
		return domain.Bakery{}, err
	}
	return s.GetBakery(ctx, id)
}

// DeleteBakery leaves recorded sales untouched; they carry their own
// snapshot of the bakery.
func (s *Service) DeleteBakery(ctx context.Context, id string) error {
	return s.repo.DeleteBakery(ctx, strings.TrimSpace(id))
}

func (s *Service) ListItems(ctx context.Context, query string) ([]domain.Item, error) {
	items, err := s.repo.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	return analytics.SearchItems(items, query), nil
}

func (s *Service) GetItem(ctx context.Context, id string) (domain.Item, error) {
	item, err := s.repo.GetItem(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Item{}, err
	}
	return *item, nil
}

func (s *Service) CreateItem(ctx context.Context, req domain.ItemCreateRequest) (domain.Item, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.SKU = strings.TrimSpace(req.SKU)
	if req.Name == "" {
		return domain.Item{}, fmt.Errorf("%w: item name is required", store.ErrValidation)
	}
	if err := validateUnitPrice(req.UnitPrice); err != nil {
		return domain.Item{}, err
	}

	item := domain.Item{
		ID:        xid.New("item"),
		Name:      req.Name,
		UnitPrice: req.UnitPrice,
		SKU:       req.SKU,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.CreateItem(ctx, item); err != nil {
		return domain.Item{}, err
	}
	return item, nil
}

// UpdateItem never touches recorded sales; they keep the price they were
// sold at.
func (s *Service) UpdateItem(ctx context.Context, id string, patch domain.ItemPatch) (domain.Item, error) {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return domain.Item{}, fmt.Errorf("%w: item name is required", store.ErrValidation)
		}
		patch.Name = &name
	}
	if patch.UnitPrice != nil {
		if err := validateUnitPrice(*patch.UnitPrice); err != nil {
			return domain.Item{}, err
		}
	}

	if err := s.repo.UpdateItem(ctx, id, patch); err != nil {
		return domain.Item{}, err
	}
	return s.GetItem(ctx, id)
}

// maxUnitPrice matches the widest value a NUMERIC(12,2) column holds.
var maxUnitPrice = decimal.RequireFromString("9999999999.99")

// validateUnitPrice keeps prices storable without rounding on every backend:
// non-negative, at most two decimal places.
func validateUnitPrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return fmt.Errorf("%w: unit price must not be negative", store.ErrValidation)
	}
	if !price.Equal(price.Round(2)) {
		return fmt.Errorf("%w: unit price allows at most two decimal places", store.ErrValidation)
	}
	if price.GreaterThan(maxUnitPrice) {
		return fmt.Errorf("%w: unit price is too large", store.ErrValidation)
	}
	return nil
}

func (s *Service) DeleteItem(ctx context.Context, id string) error {
	return s.repo.DeleteItem(ctx, strings.TrimSpace(id))
}

func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	sales, err := s.repo.ListSales(ctx)
	if err != nil {
		return nil, err
	}
	return analytics.FilterSales(sales, filter, s.loc), nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

// CreateSale resolves the bakery and items, builds the sale, then mints the
// invoice number and persists it as pending. The bakery timestamp and the
// analytics cache are updated afterwards on a best-effort basis.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	if len(req.Lines) == 0 {
		return domain.Sale{}, fmt.Errorf("%w: at least one line item is required", store.ErrValidation)
	}

	bakery, err := s.repo.GetBakery(ctx, strings.TrimSpace(req.BakeryID))
	if err != nil {
		return domain.Sale{}, err
	}

	selections := make([]Selection, 0, len(req.Lines))
	resolved := make(map[string]domain.Item, len(req.Lines))
	for _, line := range req.Lines {
		itemID := strings.TrimSpace(line.ItemID)
		item, ok := resolved[itemID]
		if !ok {
			found, err := s.repo.GetItem(ctx, itemID)
			if errors.Is(err, store.ErrNotFound) {
				return domain.Sale{}, fmt.Errorf("%w: unknown item %q", store.ErrValidation, itemID)
			}
			if err != nil {
				return domain.Sale{}, err
			}
			item = *found
			resolved[itemID] = item
		}
		selections = append(selections, Selection{Item: item, Qty: line.Qty})
	}

	now := s.now().UTC()
	sale, err := BuildSale(*bakery, selections, now)
	if err != nil {
		return domain.Sale{}, err
	}

	number, err := s.sequencer.NextInvoiceNumber(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	sale.ID = xid.New("sale")
	sale.InvoiceNumber = number

	if err := s.repo.CreateSale(ctx, sale); err != nil {
		return domain.Sale{}, err
	}

	if err := s.repo.UpdateBakery(ctx, bakery.ID, domain.BakeryPatch{LastUsedAt: &now}); err != nil {
		s.log.WarnContext(ctx, "failed to update bakery last used time",
			slog.String("bakery_id", bakery.ID),
			slog.String("sale_id", sale.ID),
			slog.Any("error", err))
	}
	s.invalidateReports(ctx)

	actor, _ := ActorFromContext(ctx)
	s.log.InfoContext(ctx, "sale recorded",
		slog.String("sale_id", sale.ID),
		slog.String("invoice_number", sale.InvoiceNumber),
		slog.String("total", sale.TotalAmount.StringFixed(2)),
		slog.String("actor", actor.Email))

	return sale, nil
}

func (s *Service) UpdateSaleStatus(ctx context.Context, id string, status domain.SaleStatus) (domain.Sale, error) {
	return s.UpdateSale(ctx, id, domain.SaleUpdateRequest{Status: &status})
}

// UpdateSale patches delivery status and the external invoice id. Every
// other sale field is fixed at creation.
func (s *Service) UpdateSale(ctx context.Context, id string, req domain.SaleUpdateRequest) (domain.Sale, error) {
	if req.Status == nil && req.InvoiceID == nil {
		return domain.Sale{}, fmt.Errorf("%w: status or invoice_id is required", store.ErrValidation)
	}
	if req.Status != nil && !req.Status.Valid() {
		return domain.Sale{}, fmt.Errorf("%w: unknown sale status %q", store.ErrValidation, *req.Status)
	}
	if req.InvoiceID != nil {
		invoiceID := strings.TrimSpace(*req.InvoiceID)
		req.InvoiceID = &invoiceID
	}

	id = strings.TrimSpace(id)
	if _, err := s.repo.GetSale(ctx, id); err != nil {
		return domain.Sale{}, err
	}
	if err := s.repo.UpdateSale(ctx, id, domain.SalePatch{Status: req.Status, InvoiceID: req.InvoiceID}); err != nil {
		return domain.Sale{}, err
	}
	return s.GetSale(ctx, id)
}

func (s *Service) RenderInvoice(ctx context.Context, saleID string) (string, error) {
	sale, err := s.GetSale(ctx, saleID)
	if err != nil {
		return "", err
	}
	return s.renderer.Render(sale), nil
}

func (s *Service) ShareInvoice(ctx context.Context, saleID string) (domain.InvoiceShare, error) {
	sale, err := s.GetSale(ctx, saleID)
	if err != nil {
		return domain.InvoiceShare{}, err
	}
	message := s.renderer.Render(sale)
	return domain.InvoiceShare{
		InvoiceNumber: sale.InvoiceNumber,
		Message:       message,
		Link:          invoice.ShareLink(s.shareURL, sale.BakerySnapshot.Phone, message),
	}, nil
}

func (s *Service) Dashboard(ctx context.Context) (domain.Dashboard, error) {
	sales, err := s.repo.ListSales(ctx)
	if err != nil {
		return domain.Dashboard{}, err
	}
	bakeries, err := s.repo.ListBakeries(ctx)
	if err != nil {
		return domain.Dashboard{}, err
	}

	now := s.now()
	return domain.Dashboard{
		Today:          analytics.TodayStats(sales, now, s.loc),
		TopItems:       analytics.TopItemsToday(sales, now, s.loc, analytics.DefaultTopItems),
		RecentBakeries: analytics.RecentlyUsedBakeries(bakeries, analytics.DefaultRecentBakeries),
	}, nil
}

func (s *Service) DailyReport(ctx context.Context) ([]domain.DailySummary, error) {
	return cachedReport(ctx, s, cache.KeyDailyReport, func(sales []domain.Sale) []domain.DailySummary {
		return analytics.GroupByDay(sales, s.loc)
	})
}

func (s *Service) MonthlyReport(ctx context.Context) ([]domain.MonthlySummary, error) {
	return cachedReport(ctx, s, cache.KeyMonthlyReport, func(sales []domain.Sale) []domain.MonthlySummary {
		return analytics.GroupByMonth(sales, s.loc)
	})
}

func (s *Service) Summary(ctx context.Context) (domain.SalesTotals, error) {
	return cachedReport(ctx, s, cache.KeySummary, analytics.Totals)
}

func (s *Service) GetAdmin(ctx context.Context) (domain.Admin, error) {
	admin, err := s.repo.GetAdmin(ctx)
	if err != nil {
		return domain.Admin{}, err
	}
	return *admin, nil
}

func (s *Service) SaveAdmin(ctx context.Context, req domain.AdminSaveRequest) (domain.Admin, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" || req.Phone == "" || req.Email == "" {
		return domain.Admin{}, fmt.Errorf("%w: admin name, phone and email are required", store.ErrValidation)
	}

	admin := domain.Admin{
		ID:        adminID,
		Name:      req.Name,
		Phone:     req.Phone,
		Email:     req.Email,
		CreatedAt: s.now().UTC(),
	}
	existing, err := s.repo.GetAdmin(ctx)
	switch {
	case err == nil:
		admin.ID = existing.ID
		admin.CreatedAt = existing.CreatedAt
	case !errors.Is(err, store.ErrNotFound):
		return domain.Admin{}, err
	}

	if err := s.repo.SaveAdmin(ctx, admin); err != nil {
		return domain.Admin{}, err
	}
	return admin, nil
}

func cachedReport[T any](ctx context.Context, s *Service, key string, build func([]domain.Sale) T) (T, error) {
	var report T
	hit, err := s.cache.Get(ctx, key, &report)
	if err != nil {
		s.log.WarnContext(ctx, "analytics cache read failed", slog.String("key", key), slog.Any("error", err))
	}
	if hit && err == nil {
		return report, nil
	}

	sales, err := s.repo.ListSales(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	report = build(sales)

	if err := s.cache.Set(ctx, key, report, s.cacheTTL); err != nil {
		s.log.WarnContext(ctx, "analytics cache write failed", slog.String("key", key), slog.Any("error", err))
	}
	return report, nil
}

func (s *Service) invalidateReports(ctx context.Context) {
	if err := s.cache.Delete(ctx, cache.ReportKeys...); err != nil {
		s.log.WarnContext(ctx, "analytics cache invalidation failed", slog.Any("error", err))
	}
}

// Selection is one picked item with the quantity asked for.
type Selection struct {
	Item domain.Item
	Qty  int
}

// MaxLineQty bounds a single line, merged or not.
const MaxLineQty = 100000

// BuildSale prices the selections against their items and returns a pending
// sale without id or invoice number. Repeated items are merged into the
// first line that named them.
func BuildSale(bakery domain.Bakery, selections []Selection, now time.Time) (domain.Sale, error) {
	if len(selections) == 0 {
		return domain.Sale{}, fmt.Errorf("%w: at least one line item is required", store.ErrValidation)
	}

	lines := make([]domain.SaleItem, 0, len(selections))
	index := make(map[string]int, len(selections))
	for _, sel := range selections {
		if sel.Qty < 1 || sel.Qty > MaxLineQty {
			return domain.Sale{}, fmt.Errorf("%w: quantity for %q must be between 1 and %d", store.ErrValidation, sel.Item.Name, MaxLineQty)
		}
		if sel.Item.ID == "" {
			return domain.Sale{}, fmt.Errorf("%w: line item without id", store.ErrValidation)
		}
		if i, ok := index[sel.Item.ID]; ok {
			if lines[i].Qty+sel.Qty > MaxLineQty {
				return domain.Sale{}, fmt.Errorf("%w: quantity for %q must be between 1 and %d", store.ErrValidation, sel.Item.Name, MaxLineQty)
			}
			lines[i].Qty += sel.Qty
			continue
		}
		index[sel.Item.ID] = len(lines)
		lines = append(lines, domain.SaleItem{
			ItemID:    sel.Item.ID,
			Name:      sel.Item.Name,
			Qty:       sel.Qty,
			UnitPrice: sel.Item.UnitPrice,
		})
	}

	total := decimal.Zero
	for i := range lines {
		lines[i].Amount = lines[i].UnitPrice.Mul(decimal.NewFromInt(int64(lines[i].Qty)))
		total = total.Add(lines[i].Amount)
	}

	return domain.Sale{
		BakeryID:       bakery.ID,
		BakerySnapshot: domain.BakerySnapshot{Name: bakery.Name, Phone: bakery.Phone},
		Items:          lines,
		TotalAmount:    total,
		CreatedAt:      now,
		Status:         domain.SaleStatusPending,
	}, nil
}
