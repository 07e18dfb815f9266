package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"snackkit/backend/internal/domain"
	"snackkit/backend/internal/invoice"
	"snackkit/backend/internal/store"
)

//go:embed schema.sql
var schemaSQL string

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var (
	bakeryColumns = []string{"id", "name", "phone", "address", "last_used_at", "created_at"}
	itemColumns   = []string{"id", "name", "unit_price", "sku", "created_at"}
	saleColumns   = []string{"id", "bakery_id", "bakery_snapshot", "items", "total_amount", "status", "invoice_number", "invoice_id", "created_at"}
)

type Store struct {
	db *sql.DB
}

var (
	_ store.Repository  = (*Store)(nil)
	_ invoice.Sequencer = (*Store)(nil)
)

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

// NewWithDB wraps an already opened handle.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates missing tables. It never alters existing ones.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return persistence("ensure schema", err)
	}
	return nil
}

func (s *Store) ListBakeries(ctx context.Context) ([]domain.Bakery, error) {
	query, args, err := psql.Select(bakeryColumns...).
		From("bakeries").
		OrderBy("last_used_at DESC NULLS LAST", "created_at DESC").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence("list bakeries", err)
	}
	defer rows.Close()

	bakeries := make([]domain.Bakery, 0, 32)
	for rows.Next() {
		bakery, err := scanBakery(rows)
		if err != nil {
			return nil, persistence("scan bakery", err)
		}
		bakeries = append(bakeries, bakery)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("list bakeries", err)
	}
	return bakeries, nil
}

func (s *Store) GetBakery(ctx context.Context, id string) (*domain.Bakery, error) {
	query, args, err := psql.Select(bakeryColumns...).
		From("bakeries").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}

	bakery, err := scanBakery(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, persistence("get bakery", err)
	}
	return &bakery, nil
}

func (s *Store) CreateBakery(ctx context.Context, bakery domain.Bakery) error {
	if bakery.ID == "" || strings.TrimSpace(bakery.Name) == "" || strings.TrimSpace(bakery.Phone) == "" {
		return store.ErrValidation
	}
	if bakery.CreatedAt.IsZero() {
		bakery.CreatedAt = time.Now().UTC()
	}

	query, args, err := psql.Insert("bakeries").
		Columns(bakeryColumns...).
		Values(bakery.ID, bakery.Name, bakery.Phone, bakery.Address, nullTime(bakery.LastUsedAt), bakery.CreatedAt).
		ToSql()
	if err != nil {
		return err
	}
	return s.insert(ctx, "create bakery", query, args)
}

func (s *Store) UpdateBakery(ctx context.Context, id string, patch domain.BakeryPatch) error {
	set := map[string]any{}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.Phone != nil {
		set["phone"] = *patch.Phone
	}
	if patch.Address != nil {
		set["address"] = *patch.Address
	}
	if patch.LastUsedAt != nil {
		set["last_used_at"] = nullTime(*patch.LastUsedAt)
	}
	return s.update(ctx, "bakeries", id, set)
}

func (s *Store) DeleteBakery(ctx context.Context, id string) error {
	return s.delete(ctx, "bakeries", id)
}

func (s *Store) ListItems(ctx context.Context) ([]domain.Item, error) {
	query, args, err := psql.Select(itemColumns...).
		From("items").
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence("list items", err)
	}
	defer rows.Close()

	items := make([]domain.Item, 0, 64)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, persistence("scan item", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("list items", err)
	}
	return items, nil
}

func (s *Store) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	query, args, err := psql.Select(itemColumns...).
		From("items").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}

	item, err := scanItem(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, persistence("get item", err)
	}
	return &item, nil
}

func (s *Store) CreateItem(ctx context.Context, item domain.Item) error {
	if item.ID == "" || strings.TrimSpace(item.Name) == "" || item.UnitPrice.IsNegative() {
		return store.ErrValidation
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	query, args, err := psql.Insert("items").
		Columns(itemColumns...).
		Values(item.ID, item.Name, item.UnitPrice, item.SKU, item.CreatedAt).
		ToSql()
	if err != nil {
		return err
	}
	return s.insert(ctx, "create item", query, args)
}

func (s *Store) UpdateItem(ctx context.Context, id string, patch domain.ItemPatch) error {
	set := map[string]any{}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.UnitPrice != nil {
		set["unit_price"] = *patch.UnitPrice
	}
	if patch.SKU != nil {
		set["sku"] = *patch.SKU
	}
	return s.update(ctx, "items", id, set)
}

func (s *Store) DeleteItem(ctx context.Context, id string) error {
	return s.delete(ctx, "items", id)
}

func (s *Store) ListSales(ctx context.Context) ([]domain.Sale, error) {
	query, args, err := psql.Select(saleColumns...).
		From("sales").
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence("list sales", err)
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 128)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, persistence("scan sale", err)
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("list sales", err)
	}
	return sales, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	query, args, err := psql.Select(saleColumns...).
		From("sales").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}

	sale, err := scanSale(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, persistence("get sale", err)
	}
	return &sale, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) error {
	if sale.ID == "" || sale.BakeryID == "" || len(sale.Items) == 0 {
		return store.ErrValidation
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	snapshot, err := json.Marshal(sale.BakerySnapshot)
	if err != nil {
		return persistence("encode bakery snapshot", err)
	}
	items, err := json.Marshal(sale.Items)
	if err != nil {
		return persistence("encode sale items", err)
	}

	query, args, err := psql.Insert("sales").
		Columns(saleColumns...).
		Values(
			sale.ID, sale.BakeryID, string(snapshot), string(items), sale.TotalAmount,
			string(sale.Status), sale.InvoiceNumber, sale.InvoiceID, sale.CreatedAt,
		).
		ToSql()
	if err != nil {
		return err
	}
	return s.insert(ctx, "create sale", query, args)
}

func (s *Store) UpdateSale(ctx context.Context, id string, patch domain.SalePatch) error {
	set := map[string]any{}
	if patch.Status != nil {
		set["status"] = string(*patch.Status)
	}
	if patch.InvoiceID != nil {
		set["invoice_id"] = *patch.InvoiceID
	}
	return s.update(ctx, "sales", id, set)
}

func (s *Store) GetAdmin(ctx context.Context) (*domain.Admin, error) {
	query, args, err := psql.Select("id", "name", "phone", "email", "created_at").
		From("admin").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}

	var admin domain.Admin
	err = s.db.QueryRowContext(ctx, query, args...).
		Scan(&admin.ID, &admin.Name, &admin.Phone, &admin.Email, &admin.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, persistence("get admin", err)
	}
	admin.CreatedAt = admin.CreatedAt.UTC()
	return &admin, nil
}

func (s *Store) SaveAdmin(ctx context.Context, admin domain.Admin) error {
	if admin.ID == "" {
		return store.ErrValidation
	}
	if admin.CreatedAt.IsZero() {
		admin.CreatedAt = time.Now().UTC()
	}

	query, args, err := psql.Insert("admin").
		Columns("singleton", "id", "name", "phone", "email", "created_at").
		Values(true, admin.ID, admin.Name, admin.Phone, admin.Email, admin.CreatedAt).
		Suffix("ON CONFLICT (singleton) DO UPDATE SET id = EXCLUDED.id, name = EXCLUDED.name, phone = EXCLUDED.phone, email = EXCLUDED.email").
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return persistence("save admin", err)
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Email == "" || user.PasswordHash == "" {
		return store.ErrValidation
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	query, args, err := psql.Insert("users").
		Columns("email", "password_hash", "created_at").
		Values(user.Email, user.PasswordHash, user.CreatedAt).
		ToSql()
	if err != nil {
		return err
	}
	return s.insert(ctx, "create user", query, args)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error) {
	query, args, err := psql.Select("email", "password_hash", "created_at").
		From("users").
		Where(sq.Eq{"email": strings.ToLower(strings.TrimSpace(email))}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var user domain.UserAccount
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, persistence("get user", err)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

// NextInvoiceNumber seeds and increments the counter row in one statement,
// so concurrent callers serialize on the row lock.
func (s *Store) NextInvoiceNumber(ctx context.Context) (string, error) {
	query, args, err := psql.Insert("invoice_counter").
		Columns("id", "counter").
		Values(1, invoice.StartValue+1).
		Suffix("ON CONFLICT (id) DO UPDATE SET counter = invoice_counter.counter + 1 RETURNING counter").
		ToSql()
	if err != nil {
		return "", err
	}

	var counter int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&counter); err != nil {
		return "", persistence("next invoice number", err)
	}
	return invoice.Format(counter), nil
}

func (s *Store) insert(ctx context.Context, op string, query string, args []any) error {
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return persistence(op, err)
	}
	return nil
}

func (s *Store) update(ctx context.Context, table string, id string, set map[string]any) error {
	if len(set) == 0 {
		return nil
	}
	query, args, err := psql.Update(table).
		SetMap(set).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return persistence("update "+table, err)
	}
	return nil
}

func (s *Store) delete(ctx context.Context, table string, id string) error {
	query, args, err := psql.Delete(table).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return persistence("delete "+table, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBakery(row rowScanner) (domain.Bakery, error) {
	var (
		bakery   domain.Bakery
		lastUsed sql.NullTime
	)
	if err := row.Scan(&bakery.ID, &bakery.Name, &bakery.Phone, &bakery.Address, &lastUsed, &bakery.CreatedAt); err != nil {
		return domain.Bakery{}, err
	}
	if lastUsed.Valid {
		bakery.LastUsedAt = lastUsed.Time.UTC()
	}
	bakery.CreatedAt = bakery.CreatedAt.UTC()
	return bakery, nil
}

func scanItem(row rowScanner) (domain.Item, error) {
	var item domain.Item
	if err := row.Scan(&item.ID, &item.Name, &item.UnitPrice, &item.SKU, &item.CreatedAt); err != nil {
		return domain.Item{}, err
	}
	item.CreatedAt = item.CreatedAt.UTC()
	return item, nil
}

func scanSale(row rowScanner) (domain.Sale, error) {
	var (
		sale     domain.Sale
		snapshot []byte
		items    []byte
		status   string
	)
	if err := row.Scan(
		&sale.ID, &sale.BakeryID, &snapshot, &items, &sale.TotalAmount,
		&status, &sale.InvoiceNumber, &sale.InvoiceID, &sale.CreatedAt,
	); err != nil {
		return domain.Sale{}, err
	}
	if err := json.Unmarshal(snapshot, &sale.BakerySnapshot); err != nil {
		return domain.Sale{}, fmt.Errorf("decode bakery snapshot: %w", err)
	}
	if err := json.Unmarshal(items, &sale.Items); err != nil {
		return domain.Sale{}, fmt.Errorf("decode sale items: %w", err)
	}
	sale.Status = domain.SaleStatus(status)
	sale.CreatedAt = sale.CreatedAt.UTC()
	return sale, nil
}

func persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", store.ErrPersistence, op, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullTime(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return val
}
