package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"pdv/backend/internal/domain"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInactive            = errors.New("inactive")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInsufficientPayment = errors.New("insufficient payment")
	ErrEmptyCart           = errors.New("empty cart")
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrInvalidTransaction  = errors.New("invalid transaction")
)

// StockError reports a product whose stock cannot cover a request.
type StockError struct {
	ProductID string
	Name      string
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *StockError) Error() string {
	label := e.ProductID
	if e.Name != "" {
		label = fmt.Sprintf("%s (%s)", e.Name, e.ProductID)
	}
	return fmt.Sprintf("insufficient stock for %s: requested %s, available %s", label, e.Requested, e.Available)
}

func (e *StockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// PaymentError reports a tendered amount below the amount due.
type PaymentError struct {
	Required decimal.Decimal
	Received decimal.Decimal
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("insufficient payment: total %s, received %s", e.Required.StringFixed(2), e.Received.StringFixed(2))
}

func (e *PaymentError) Is(target error) bool {
	return target == ErrInsufficientPayment
}

func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func Inactivef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInactive, fmt.Sprintf(format, args...))
}

func InvalidQuantityf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuantity, fmt.Sprintf(format, args...))
}

// ProductCatalog is the read side of the product collaborator. It returns
// value copies, never live handles.
type ProductCatalog interface {
	GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
}

type SupplierLookup interface {
	GetSupplier(ctx context.Context, id string) (*domain.Supplier, error)
}

type SaleRepository interface {
	// CreateCheckout persists the sale, decrements stock and appends one exit
	// movement per line as a single unit of work.
	CreateCheckout(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	// CancelSale returns cancelled=false without error when the sale was
	// already cancelled.
	CancelSale(ctx context.Context, id string, operatorID string, at time.Time) (*domain.Sale, bool, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error)
}

type LedgerRepository interface {
	RecordMovement(ctx context.Context, cmd domain.MovementCommand) (*domain.StockMovement, error)
	ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.StockMovement, error)
	// SumMovements totals the unsigned quantity of one movement type per
	// product since the given instant.
	SumMovements(ctx context.Context, movementType domain.MovementType, since time.Time) (map[string]decimal.Decimal, error)
	CountMovements(ctx context.Context, from time.Time, to time.Time) (map[domain.MovementType]int, error)
	SumMovementCost(ctx context.Context, movementType domain.MovementType, since time.Time) (decimal.Decimal, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUser(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type Repository interface {
	ProductCatalog
	SupplierLookup
	SaleRepository
	LedgerRepository
	UserStore
}
