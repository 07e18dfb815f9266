package store

import (
	"context"
	"errors"

	"snackkit/backend/internal/domain"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrValidation  = errors.New("validation failed")
	ErrConflict    = errors.New("record already exists")
	ErrPersistence = errors.New("persistence failure")
)

// Repository is the record store shared by the local and the relational
// backend. Update and delete calls on an unknown id are no-ops. Listing
// order is backend specific: insertion order for the local store, recency
// for postgres.
type Repository interface {
	ListBakeries(ctx context.Context) ([]domain.Bakery, error)
	GetBakery(ctx context.Context, id string) (*domain.Bakery, error)
	CreateBakery(ctx context.Context, bakery domain.Bakery) error
	UpdateBakery(ctx context.Context, id string, patch domain.BakeryPatch) error
	DeleteBakery(ctx context.Context, id string) error

	ListItems(ctx context.Context) ([]domain.Item, error)
	GetItem(ctx context.Context, id string) (*domain.Item, error)
	CreateItem(ctx context.Context, item domain.Item) error
	UpdateItem(ctx context.Context, id string, patch domain.ItemPatch) error
	DeleteItem(ctx context.Context, id string) error

	ListSales(ctx context.Context) ([]domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	CreateSale(ctx context.Context, sale domain.Sale) error
	UpdateSale(ctx context.Context, id string, patch domain.SalePatch) error

	GetAdmin(ctx context.Context) (*domain.Admin, error)
	SaveAdmin(ctx context.Context, admin domain.Admin) error

	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
}
