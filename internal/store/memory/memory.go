package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"snackkit/backend/internal/domain"
	"snackkit/backend/internal/invoice"
	"snackkit/backend/internal/store"
)

const (
	keyBakeries       = "snack_kit_bakeries"
	keyItems          = "snack_kit_items"
	keySales          = "snack_kit_sales"
	keyAdmin          = "snack_kit_admin"
	keyUsers          = "snack_kit_users"
	keyInvoiceCounter = "snack_kit_invoice_counter"
)

// Store keeps every record kind as one JSON document in a Blobs space.
// Each call reads the document, mutates it and writes it back under a
// single lock, so listing order is insertion order.
type Store struct {
	mu    sync.Mutex
	blobs Blobs
}

var (
	_ store.Repository  = (*Store)(nil)
	_ invoice.Sequencer = (*Store)(nil)
)

func New(blobs Blobs) *Store {
	if blobs == nil {
		blobs = NewMapBlobs()
	}
	return &Store{blobs: blobs}
}

// NewSeeded returns an in-process store with a small snack catalogue for
// dev/demo mode.
func NewSeeded() *Store {
	s := New(NewMapBlobs())
	now := time.Now().UTC()
	items := []domain.Item{
		{ID: "item-banana-chips", Name: "Banana Chips 200g", UnitPrice: decimal.RequireFromString("45"), SKU: "SNK-BAN-200", CreatedAt: now},
		{ID: "item-mixture", Name: "Kerala Mixture 250g", UnitPrice: decimal.RequireFromString("55"), SKU: "SNK-MIX-250", CreatedAt: now},
		{ID: "item-murukku", Name: "Murukku 200g", UnitPrice: decimal.RequireFromString("40"), SKU: "SNK-MUR-200", CreatedAt: now},
		{ID: "item-pakkavada", Name: "Pakkavada 150g", UnitPrice: decimal.RequireFromString("35"), SKU: "SNK-PAK-150", CreatedAt: now},
		{ID: "item-achappam", Name: "Achappam 12pc", UnitPrice: decimal.RequireFromString("60"), SKU: "SNK-ACH-12", CreatedAt: now},
	}
	for _, item := range items {
		_ = s.CreateItem(context.Background(), item)
	}
	return s
}

func (s *Store) ListBakeries(_ context.Context) ([]domain.Bakery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return loadList[domain.Bakery](s.blobs, keyBakeries)
}

func (s *Store) GetBakery(_ context.Context, id string) (*domain.Bakery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bakeries, err := loadList[domain.Bakery](s.blobs, keyBakeries)
	if err != nil {
		return nil, err
	}
	for _, b := range bakeries {
		if b.ID == id {
			found := b
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateBakery(_ context.Context, bakery domain.Bakery) error {
	if bakery.ID == "" || strings.TrimSpace(bakery.Name) == "" || strings.TrimSpace(bakery.Phone) == "" {
		return store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bakeries, err := loadList[domain.Bakery](s.blobs, keyBakeries)
	if err != nil {
		return err
	}
	for _, b := range bakeries {
		if b.ID == bakery.ID {
			return store.ErrConflict
		}
	}
	return saveList(s.blobs, keyBakeries, append(bakeries, bakery))
}

func (s *Store) UpdateBakery(_ context.Context, id string, patch domain.BakeryPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bakeries, err := loadList[domain.Bakery](s.blobs, keyBakeries)
	if err != nil {
		return err
	}
	for i := range bakeries {
		if bakeries[i].ID == id {
			bakeries[i] = patch.Apply(bakeries[i])
			return saveList(s.blobs, keyBakeries, bakeries)
		}
	}
	return nil
}

func (s *Store) DeleteBakery(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bakeries, err := loadList[domain.Bakery](s.blobs, keyBakeries)
	if err != nil {
		return err
	}
	kept, removed := removeByID(bakeries, id, func(b domain.Bakery) string { return b.ID })
	if !removed {
		return nil
	}
	return saveList(s.blobs, keyBakeries, kept)
}

func (s *Store) ListItems(_ context.Context) ([]domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return loadList[domain.Item](s.blobs, keyItems)
}

func (s *Store) GetItem(_ context.Context, id string) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := loadList[domain.Item](s.blobs, keyItems)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if item.ID == id {
			found := item
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateItem(_ context.Context, item domain.Item) error {
	if item.ID == "" || strings.TrimSpace(item.Name) == "" || item.UnitPrice.IsNegative() {
		return store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := loadList[domain.Item](s.blobs, keyItems)
	if err != nil {
		return err
	}
	for _, existing := range items {
		if existing.ID == item.ID {
			return store.ErrConflict
		}
	}
	return saveList(s.blobs, keyItems, append(items, item))
}

func (s *Store) UpdateItem(_ context.Context, id string, patch domain.ItemPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := loadList[domain.Item](s.blobs, keyItems)
	if err != nil {
		return err
	}
	for i := range items {
		if items[i].ID == id {
			items[i] = patch.Apply(items[i])
			return saveList(s.blobs, keyItems, items)
		}
	}
	return nil
}

func (s *Store) DeleteItem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := loadList[domain.Item](s.blobs, keyItems)
	if err != nil {
		return err
	}
	kept, removed := removeByID(items, id, func(item domain.Item) string { return item.ID })
	if !removed {
		return nil
	}
	return saveList(s.blobs, keyItems, kept)
}

func (s *Store) ListSales(_ context.Context) ([]domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return loadList[domain.Sale](s.blobs, keySales)
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sales, err := loadList[domain.Sale](s.blobs, keySales)
	if err != nil {
		return nil, err
	}
	for _, sale := range sales {
		if sale.ID == id {
			found := sale
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) error {
	if sale.ID == "" || sale.BakeryID == "" || len(sale.Items) == 0 {
		return store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sales, err := loadList[domain.Sale](s.blobs, keySales)
	if err != nil {
		return err
	}
	for _, existing := range sales {
		if existing.ID == sale.ID {
			return store.ErrConflict
		}
	}
	return saveList(s.blobs, keySales, append(sales, sale))
}

func (s *Store) UpdateSale(_ context.Context, id string, patch domain.SalePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sales, err := loadList[domain.Sale](s.blobs, keySales)
	if err != nil {
		return err
	}
	for i := range sales {
		if sales[i].ID == id {
			sales[i] = patch.Apply(sales[i])
			return saveList(s.blobs, keySales, sales)
		}
	}
	return nil
}

func (s *Store) GetAdmin(_ context.Context) (*domain.Admin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.blobs.Load(keyAdmin)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %v", store.ErrPersistence, keyAdmin, err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, store.ErrNotFound
	}
	var admin domain.Admin
	if err := json.Unmarshal(raw, &admin); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", store.ErrPersistence, keyAdmin, err)
	}
	return &admin, nil
}

func (s *Store) SaveAdmin(_ context.Context, admin domain.Admin) error {
	if admin.ID == "" {
		return store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(admin)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", store.ErrPersistence, keyAdmin, err)
	}
	if err := s.blobs.Save(keyAdmin, raw); err != nil {
		return fmt.Errorf("%w: save %s: %v", store.ErrPersistence, keyAdmin, err)
	}
	return nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	email := strings.ToLower(strings.TrimSpace(user.Email))
	if email == "" || user.PasswordHash == "" {
		return store.ErrValidation
	}
	user.Email = email

	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := loadList[domain.UserAccount](s.blobs, keyUsers)
	if err != nil {
		return err
	}
	for _, existing := range users {
		if existing.Email == email {
			return store.ErrConflict
		}
	}
	return saveList(s.blobs, keyUsers, append(users, user))
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.UserAccount, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := loadList[domain.UserAccount](s.blobs, keyUsers)
	if err != nil {
		return nil, err
	}
	for _, user := range users {
		if user.Email == email {
			found := user
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

// NextInvoiceNumber advances the persisted counter under the store lock.
func (s *Store) NextInvoiceNumber(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := invoice.StartValue
	raw, err := s.blobs.Load(keyInvoiceCounter)
	if err != nil {
		return "", fmt.Errorf("%w: load %s: %v", store.ErrPersistence, keyInvoiceCounter, err)
	}
	if len(raw) > 0 {
		parsed, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
		if err != nil {
			return "", fmt.Errorf("%w: decode %s: %v", store.ErrPersistence, keyInvoiceCounter, err)
		}
		current = parsed
	}

	next := current + 1
	if err := s.blobs.Save(keyInvoiceCounter, []byte(strconv.FormatInt(next, 10))); err != nil {
		return "", fmt.Errorf("%w: save %s: %v", store.ErrPersistence, keyInvoiceCounter, err)
	}
	return invoice.Format(next), nil
}

func loadList[T any](blobs Blobs, key string) ([]T, error) {
	raw, err := blobs.Load(key)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %v", store.ErrPersistence, key, err)
	}
	list := make([]T, 0)
	if len(raw) == 0 {
		return list, nil
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", store.ErrPersistence, key, err)
	}
	if list == nil {
		list = make([]T, 0)
	}
	return list, nil
}

func saveList[T any](blobs Blobs, key string, list []T) error {
	raw, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", store.ErrPersistence, key, err)
	}
	if err := blobs.Save(key, raw); err != nil {
		return fmt.Errorf("%w: save %s: %v", store.ErrPersistence, key, err)
	}
	return nil
}

func removeByID[T any](list []T, id string, idOf func(T) string) ([]T, bool) {
	kept := make([]T, 0, len(list))
	removed := false
	for _, entry := range list {
		if idOf(entry) == id {
			removed = true
			continue
		}
		kept = append(kept, entry)
	}
	return kept, removed
}
