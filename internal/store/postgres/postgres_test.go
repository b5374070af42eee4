package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"pdv/backend/internal/domain"
	"pdv/backend/internal/store"
)

var _ store.Repository = (*Store)(nil)

var productCols = []string{
	"id", "barcode", "name", "price", "cost_price", "stock_quantity", "min_stock_level", "reorder_point",
	"max_stock", "requires_weighing", "bulk_discount_enabled", "bulk_min_quantity", "bulk_discount_percentage",
	"active", "supplier_id", "last_purchase_at", "last_sale_at",
}

var saleCols = []string{
	"id", "customer_id", "operator_id", "subtotal", "discount", "bulk_discount", "final_amount",
	"payment_method", "amount_received", "change_amount", "status", "created_at", "cancelled_at", "cancelled_by",
}

const lockProductSQL = `FROM products WHERE id = \$1 FOR UPDATE`

func productRow(id string, stock string, cost any) *pgxmock.Rows {
	return pgxmock.NewRows(productCols).AddRow(
		id, "789"+id, "Produto "+id, "10.00", cost, stock, "0", "0",
		nil, false, false, "0", "0",
		true, "", nil, nil,
	)
}

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	s := NewWithDB(mock)
	s.now = func() time.Time { return time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC) }
	return s, mock
}

func TestRecordMovementCommitsProductUpdateAndMovement(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectQuery(lockProductSQL).WithArgs("p-a").WillReturnRows(productRow("p-a", "10.000", "4.00"))
	mock.ExpectExec("UPDATE products").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO stock_movements").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	movement, err := s.RecordMovement(context.Background(), domain.MovementCommand{
		ProductID:  "p-a",
		Type:       domain.MovementEntry,
		Quantity:   decimal.NewFromInt(5),
		UnitCost:   decimal.NewNullDecimal(decimal.RequireFromString("4.00")),
		OperatorID: "admin",
	})
	require.NoError(t, err)
	require.True(t, movement.PreviousQuantity.Equal(decimal.NewFromInt(10)))
	require.True(t, movement.NewQuantity.Equal(decimal.NewFromInt(15)))
	require.True(t, movement.TotalCost.Decimal.Equal(decimal.RequireFromString("20")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordMovementRollsBackExitAboveStock(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectQuery(lockProductSQL).WithArgs("p-b").WillReturnRows(productRow("p-b", "1.000", nil))
	mock.ExpectRollback()

	_, err := s.RecordMovement(context.Background(), domain.MovementCommand{
		ProductID: "p-b",
		Type:      domain.MovementExit,
		Quantity:  decimal.NewFromInt(2),
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCheckoutRollsBackWhenSecondLineFails(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectQuery(lockProductSQL).WithArgs("p-a").WillReturnRows(productRow("p-a", "10.000", nil))
	mock.ExpectQuery(lockProductSQL).WithArgs("p-b").WillReturnRows(productRow("p-b", "1.000", nil))
	mock.ExpectQuery(lockProductSQL).WithArgs("p-c").WillReturnRows(productRow("p-c", "10.000", nil))
	mock.ExpectRollback()

	_, err := s.CreateCheckout(context.Background(), domain.Sale{
		OperatorID: "kasir1",
		Items: []domain.SaleItem{
			{ProductID: "p-a", Quantity: decimal.NewFromInt(2)},
			{ProductID: "p-b", Quantity: decimal.NewFromInt(3)},
			{ProductID: "p-c", Quantity: decimal.NewFromInt(1)},
		},
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	var stockErr *store.StockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, "p-b", stockErr.ProductID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCheckoutWritesSaleItemsStockAndMovements(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectQuery(lockProductSQL).WithArgs("p-a").WillReturnRows(productRow("p-a", "10.000", "6.00"))
	mock.ExpectQuery(lockProductSQL).WithArgs("p-b").WillReturnRows(productRow("p-b", "5.000", nil))
	mock.ExpectExec("INSERT INTO sales").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO sale_items").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO sale_items").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE products").WithArgs("p-a", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE products").WithArgs("p-b", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO stock_movements").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO stock_movements").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	sale, err := s.CreateCheckout(context.Background(), domain.Sale{
		OperatorID:    "kasir1",
		PaymentMethod: domain.PaymentCash,
		Items: []domain.SaleItem{
			{ProductID: "p-b", Quantity: decimal.NewFromInt(1)},
			{ProductID: "p-a", Quantity: decimal.NewFromInt(2)},
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, sale.ID)
	require.Equal(t, domain.SaleStatusCompleted, sale.Status)
	for _, item := range sale.Items {
		require.Equal(t, sale.ID, item.SaleID)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCheckoutRollsBackWhenSecondStockWriteFails(t *testing.T) {
	s, mock := newMockStore(t)
	writeErr := errors.New("conn reset by peer")

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectQuery(lockProductSQL).WithArgs("p-a").WillReturnRows(productRow("p-a", "10.000", "6.00"))
	mock.ExpectQuery(lockProductSQL).WithArgs("p-b").WillReturnRows(productRow("p-b", "5.000", nil))
	mock.ExpectExec("INSERT INTO sales").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO sale_items").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO sale_items").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE products").WithArgs("p-a", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE products").WithArgs("p-b", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).WillReturnError(writeErr)
	mock.ExpectRollback()

	sale, err := s.CreateCheckout(context.Background(), domain.Sale{
		OperatorID:    "kasir1",
		PaymentMethod: domain.PaymentCash,
		Items: []domain.SaleItem{
			{ProductID: "p-a", Quantity: decimal.NewFromInt(2)},
			{ProductID: "p-b", Quantity: decimal.NewFromInt(1)},
		},
	})
	require.ErrorIs(t, err, writeErr)
	require.Nil(t, sale)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelSaleAlreadyCancelledIsNoOp(t *testing.T) {
	s, mock := newMockStore(t)
	created := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	cancelled := created.Add(time.Hour)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectQuery(`FROM sales WHERE id = \$1 FOR UPDATE`).WithArgs("sale-1").WillReturnRows(
		pgxmock.NewRows(saleCols).AddRow(
			"sale-1", "", "kasir1", "100.00", "0.00", "5.00", "95.00",
			"cash", "100.00", "5.00", "cancelled", created, cancelled, "admin",
		),
	)
	mock.ExpectQuery("FROM sale_items").WillReturnRows(pgxmock.NewRows([]string{
		"id", "sale_id", "product_id", "product_name", "barcode", "quantity", "weight", "requires_weighing",
		"unit_price", "gross_total", "discount", "bulk_discount", "net_total",
	}))
	mock.ExpectRollback()

	sale, ok, err := s.CancelSale(context.Background(), "sale-1", "admin", cancelled.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, domain.SaleStatusCancelled, sale.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelSaleMissing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectQuery(`FROM sales WHERE id = \$1 FOR UPDATE`).WithArgs("sale-x").WillReturnRows(pgxmock.NewRows(saleCols))
	mock.ExpectRollback()

	_, _, err := s.CancelSale(context.Background(), "sale-x", "admin", time.Now())
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMovementAggregatesQueries(t *testing.T) {
	s, mock := newMockStore(t)
	since := time.Date(2026, 9, 16, 0, 0, 0, 0, time.UTC)
	until := since.Add(24 * time.Hour)

	mock.ExpectQuery(`SUM\(total_cost\)`).WithArgs("exit", since).
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow("36.00"))
	mock.ExpectQuery("COUNT").WithArgs(since, until).
		WillReturnRows(pgxmock.NewRows([]string{"movement_type", "count"}).AddRow("exit", 3).AddRow("entry", 1))

	total, err := s.SumMovementCost(context.Background(), domain.MovementExit, since)
	require.NoError(t, err)
	require.True(t, total.Equal(decimal.NewFromInt(36)))

	counts, err := s.CountMovements(context.Background(), since, until)
	require.NoError(t, err)
	require.Equal(t, 3, counts[domain.MovementExit])
	require.Equal(t, 1, counts[domain.MovementEntry])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserErrorsMapToSentinels(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO app_users").WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectExec("UPDATE app_users").WithArgs("ghost", "hash").WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.CreateUser(context.Background(), domain.UserAccount{Username: "kasir1", Password: "hash"})
	require.ErrorIs(t, err, store.ErrInvalidTransaction)

	err = s.UpdateUserPassword(context.Background(), "ghost", "hash")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserNormalizesUsername(t *testing.T) {
	s, mock := newMockStore(t)
	created := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM app_users").WithArgs("kasir1").WillReturnRows(
		pgxmock.NewRows([]string{"username", "password", "role", "active", "created_at"}).
			AddRow("kasir1", "hash", domain.RoleCashier, true, created),
	)
	mock.ExpectQuery("FROM app_users").WithArgs("ghost").WillReturnError(pgx.ErrNoRows)

	user, err := s.GetUser(context.Background(), " KASIR1 ")
	require.NoError(t, err)
	require.Equal(t, "kasir1", user.Username)
	require.Equal(t, domain.RoleCashier, user.Role)
	require.True(t, user.CreatedAt.Equal(created))

	_, err = s.GetUser(context.Background(), "ghost")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConditionsNumberPlaceholders(t *testing.T) {
	where := newConditions()
	where.add("product_id = $%d", "p-a")
	where.add("movement_type = $%d", "exit")

	require.Equal(t, " WHERE product_id = $1 AND movement_type = $2", where.sql())
	require.Equal(t, " LIMIT $3 OFFSET $4", where.page(20, 10))
	require.Equal(t, []any{"p-a", "exit", 10, 20}, where.args)

	empty := newConditions()
	require.Equal(t, "", empty.sql())
	require.Equal(t, "", empty.page(0, 0))
}

func TestUniqueProductIDsSorted(t *testing.T) {
	ids := uniqueProductIDs([]domain.SaleItem{{ProductID: "p-c"}, {ProductID: "p-a"}, {ProductID: "p-c"}, {ProductID: ""}})
	require.Equal(t, []string{"p-a", "p-c"}, ids)
}
