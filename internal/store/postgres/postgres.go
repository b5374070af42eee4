package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"pdv/backend/internal/domain"
	"pdv/backend/internal/ledger"
	"pdv/backend/internal/store"
	"pdv/backend/internal/xid"
)

const (
	saleReason   = "Venda"
	cancelReason = "Cancelamento de venda"
)

// DB matches the methods from *pgxpool.Pool that the store uses, so tests can
// substitute pgxmock.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// querier is satisfied by both DB and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

type Store struct {
	db   DB
	pool *pgxpool.Pool
	now  func() time.Time
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 30
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}

	s := NewWithDB(pool)
	s.pool = pool
	return s, nil
}

func NewWithDB(db DB) *Store {
	return &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

const productColumns = `id, barcode, name, price, cost_price, stock_quantity, min_stock_level, reorder_point,
	max_stock, requires_weighing, bulk_discount_enabled, bulk_min_quantity, bulk_discount_percentage,
	active, COALESCE(supplier_id, ''), last_purchase_at, last_sale_at`

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	var lastPurchase, lastSale pgtype.Timestamptz
	err := row.Scan(
		&p.ID, &p.Barcode, &p.Name, &p.Price, &p.CostPrice, &p.StockQuantity, &p.MinStockLevel, &p.ReorderPoint,
		&p.MaxStock, &p.RequiresWeighing, &p.BulkDiscountEnabled, &p.BulkMinQuantity, &p.BulkDiscountPercentage,
		&p.Active, &p.SupplierID, &lastPurchase, &lastSale,
	)
	if err != nil {
		return domain.Product{}, err
	}
	p.LastPurchaseAt = timePtr(lastPurchase)
	p.LastSaleAt = timePtr(lastSale)
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE barcode = $1`, barcode))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.NotFoundf("product with barcode %s", barcode)
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.NotFoundf("product %s", id)
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetSupplier(ctx context.Context, id string) (*domain.Supplier, error) {
	var sup domain.Supplier
	err := s.db.QueryRow(ctx, `
		SELECT id, name, COALESCE(company_name, ''), COALESCE(document, ''), COALESCE(email, ''),
			COALESCE(phone, ''), COALESCE(contact_person, ''), active
		FROM suppliers
		WHERE id = $1
	`, id).Scan(&sup.ID, &sup.Name, &sup.CompanyName, &sup.Document, &sup.Email, &sup.Phone, &sup.ContactPerson, &sup.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.NotFoundf("supplier %s", id)
		}
		return nil, err
	}
	return &sup, nil
}

// lockProducts takes row locks in id order so concurrent checkouts touching
// the same products cannot deadlock.
func lockProducts(ctx context.Context, tx pgx.Tx, ids []string) (map[string]domain.Product, error) {
	locked := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		p, err := scanProduct(tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, store.NotFoundf("product %s", id)
			}
			return nil, err
		}
		locked[id] = p
	}
	return locked, nil
}

func (s *Store) CreateCheckout(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrEmptyCart
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = s.now()
	}
	sale.Status = domain.SaleStatusCompleted
	sale.Items = append([]domain.SaleItem(nil), sale.Items...)

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids := uniqueProductIDs(sale.Items)
	working, err := lockProducts(ctx, tx, ids)
	if err != nil {
		return nil, err
	}

	movements := make([]domain.StockMovement, 0, len(sale.Items))
	for i := range sale.Items {
		item := &sale.Items[i]
		product, ok := working[item.ProductID]
		if !ok {
			return nil, store.NotFoundf("product %q", item.ProductID)
		}
		if !product.Active {
			return nil, store.Inactivef("product %s", product.Name)
		}

		quantity := item.EffectiveQuantity()
		result, err := ledger.Apply(product, domain.MovementExit, quantity)
		if err != nil {
			return nil, err
		}
		cmd := domain.MovementCommand{
			ProductID:  product.ID,
			Type:       domain.MovementExit,
			Quantity:   quantity,
			UnitCost:   product.CostPrice,
			Reason:     saleReason,
			OperatorID: sale.OperatorID,
			SaleID:     sale.ID,
			At:         sale.CreatedAt,
		}
		movements = append(movements, ledger.Build(xid.New("mov"), cmd, product.StockQuantity, result))

		product.StockQuantity = result.NewQuantity
		ledger.Stamp(&product, domain.MovementExit, sale.CreatedAt)
		working[product.ID] = product

		if item.ID == "" {
			item.ID = xid.New("item")
		}
		item.SaleID = sale.ID
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO sales (
			id, customer_id, operator_id, subtotal, discount, bulk_discount, final_amount,
			payment_method, amount_received, change_amount, status, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, sale.ID, nullIfEmpty(sale.CustomerID), sale.OperatorID, sale.Subtotal, sale.Discount, sale.BulkDiscount, sale.FinalAmount,
		string(sale.PaymentMethod), sale.AmountReceived, sale.ChangeAmount, string(sale.Status), sale.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}

	for _, item := range sale.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO sale_items (
				id, sale_id, product_id, product_name, barcode, quantity, weight, requires_weighing,
				unit_price, gross_total, discount, bulk_discount, net_total
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		`, item.ID, item.SaleID, item.ProductID, item.ProductName, item.Barcode, item.Quantity, item.Weight, item.RequiresWeighing,
			item.UnitPrice, item.GrossTotal, item.Discount, item.BulkDiscount, item.NetTotal); err != nil {
			return nil, err
		}
	}

	for _, id := range ids {
		if err := updateProductStock(ctx, tx, working[id]); err != nil {
			return nil, err
		}
	}
	for _, m := range movements {
		if err := insertMovement(ctx, tx, m); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) CancelSale(ctx context.Context, id string, operatorID string, at time.Time) (*domain.Sale, bool, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sale, err := loadSale(ctx, tx, id, true)
	if err != nil {
		return nil, false, err
	}
	if sale.Status == domain.SaleStatusCancelled {
		return sale, false, nil
	}

	returned := make([]domain.SaleItem, 0, len(sale.Items))
	for _, item := range sale.Items {
		if item.EffectiveQuantity().IsPositive() {
			returned = append(returned, item)
		}
	}
	ids := uniqueProductIDs(returned)
	working, err := lockProducts(ctx, tx, ids)
	if err != nil {
		return nil, false, err
	}

	for _, item := range returned {
		product := working[item.ProductID]
		quantity := item.EffectiveQuantity()
		result, err := ledger.Apply(product, domain.MovementReturn, quantity)
		if err != nil {
			return nil, false, err
		}
		cmd := domain.MovementCommand{
			ProductID:  product.ID,
			Type:       domain.MovementReturn,
			Quantity:   quantity,
			UnitCost:   product.CostPrice,
			Reason:     cancelReason,
			OperatorID: operatorID,
			SaleID:     sale.ID,
			At:         at,
		}
		if err := insertMovement(ctx, tx, ledger.Build(xid.New("mov"), cmd, product.StockQuantity, result)); err != nil {
			return nil, false, err
		}
		product.StockQuantity = result.NewQuantity
		working[product.ID] = product
	}
	for _, pid := range ids {
		if err := updateProductStock(ctx, tx, working[pid]); err != nil {
			return nil, false, err
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE sales
		SET status = $2, cancelled_at = $3, cancelled_by = $4
		WHERE id = $1
	`, sale.ID, string(domain.SaleStatusCancelled), at, operatorID); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}

	cancelledAt := at
	sale.Status = domain.SaleStatusCancelled
	sale.CancelledAt = &cancelledAt
	sale.CancelledBy = operatorID
	return sale, true, nil
}

const saleColumns = `id, COALESCE(customer_id, ''), operator_id, subtotal, discount, bulk_discount, final_amount,
	payment_method, amount_received, change_amount, status, created_at, cancelled_at, COALESCE(cancelled_by, '')`

func scanSale(row rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	var method, status string
	var cancelledAt pgtype.Timestamptz
	err := row.Scan(
		&sale.ID, &sale.CustomerID, &sale.OperatorID, &sale.Subtotal, &sale.Discount, &sale.BulkDiscount, &sale.FinalAmount,
		&method, &sale.AmountReceived, &sale.ChangeAmount, &status, &sale.CreatedAt, &cancelledAt, &sale.CancelledBy,
	)
	if err != nil {
		return domain.Sale{}, err
	}
	sale.PaymentMethod = domain.PaymentMethod(method)
	sale.Status = domain.SaleStatus(status)
	sale.CreatedAt = sale.CreatedAt.UTC()
	sale.CancelledAt = timePtr(cancelledAt)
	sale.Items = []domain.SaleItem{}
	return sale, nil
}

func loadSale(ctx context.Context, q querier, id string, forUpdate bool) (*domain.Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sales WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	sale, err := scanSale(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.NotFoundf("sale %s", id)
		}
		return nil, err
	}

	items, err := loadSaleItems(ctx, q, []string{id})
	if err != nil {
		return nil, err
	}
	sale.Items = items[id]
	if sale.Items == nil {
		sale.Items = []domain.SaleItem{}
	}
	return &sale, nil
}

func loadSaleItems(ctx context.Context, q querier, saleIDs []string) (map[string][]domain.SaleItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, sale_id, product_id, product_name, barcode, quantity, weight, requires_weighing,
			unit_price, gross_total, discount, bulk_discount, net_total
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, line_no
	`, saleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make(map[string][]domain.SaleItem, len(saleIDs))
	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(
			&item.ID, &item.SaleID, &item.ProductID, &item.ProductName, &item.Barcode, &item.Quantity, &item.Weight, &item.RequiresWeighing,
			&item.UnitPrice, &item.GrossTotal, &item.Discount, &item.BulkDiscount, &item.NetTotal,
		); err != nil {
			return nil, err
		}
		items[item.SaleID] = append(items[item.SaleID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return loadSale(ctx, s.db, id, false)
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	where := newConditions()
	if filter.From != nil {
		where.add("created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		where.add("created_at < $%d", *filter.To)
	}
	if filter.OperatorID != "" {
		where.add("operator_id = $%d", filter.OperatorID)
	}
	if filter.Status != "" {
		where.add("status = $%d", string(filter.Status))
	}

	query := `SELECT ` + saleColumns + ` FROM sales` + where.sql() + ` ORDER BY created_at DESC, id DESC` + where.page(filter.Offset, filter.Limit)
	rows, err := s.db.Query(ctx, query, where.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	ids := make([]string, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
		ids = append(ids, sale.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()
	if len(sales) == 0 {
		return sales, nil
	}

	items, err := loadSaleItems(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		if lines, ok := items[sales[i].ID]; ok {
			sales[i].Items = lines
		}
	}
	return sales, nil
}

func (s *Store) RecordMovement(ctx context.Context, cmd domain.MovementCommand) (*domain.StockMovement, error) {
	if cmd.At.IsZero() {
		cmd.At = s.now()
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	locked, err := lockProducts(ctx, tx, []string{cmd.ProductID})
	if err != nil {
		return nil, err
	}
	product := locked[cmd.ProductID]

	result, err := ledger.Apply(product, cmd.Type, cmd.Quantity)
	if err != nil {
		return nil, err
	}
	movement := ledger.Build(xid.New("mov"), cmd, product.StockQuantity, result)

	product.StockQuantity = result.NewQuantity
	ledger.Stamp(&product, cmd.Type, cmd.At)
	if err := updateProductStock(ctx, tx, product); err != nil {
		return nil, err
	}
	if err := insertMovement(ctx, tx, movement); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &movement, nil
}

func (s *Store) ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.StockMovement, error) {
	where := newConditions()
	if filter.ProductID != "" {
		where.add("product_id = $%d", filter.ProductID)
	}
	if filter.Type != "" {
		where.add("movement_type = $%d", string(filter.Type))
	}
	if filter.From != nil {
		where.add("created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		where.add("created_at < $%d", *filter.To)
	}

	query := `
		SELECT id, product_id, movement_type, quantity, previous_quantity, new_quantity, unit_cost, total_cost,
			COALESCE(reason, ''), COALESCE(notes, ''), operator_id, COALESCE(sale_id, ''), COALESCE(supplier_id, ''), created_at
		FROM stock_movements` + where.sql() + `
		ORDER BY created_at DESC, id DESC` + where.page(filter.Offset, filter.Limit)
	rows, err := s.db.Query(ctx, query, where.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.StockMovement, 0, 64)
	for rows.Next() {
		var m domain.StockMovement
		var movementType string
		if err := rows.Scan(
			&m.ID, &m.ProductID, &movementType, &m.Quantity, &m.PreviousQuantity, &m.NewQuantity, &m.UnitCost, &m.TotalCost,
			&m.Reason, &m.Notes, &m.OperatorID, &m.SaleID, &m.SupplierID, &m.CreatedAt,
		); err != nil {
			return nil, err
		}
		m.Type = domain.MovementType(movementType)
		m.CreatedAt = m.CreatedAt.UTC()
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (s *Store) SumMovements(ctx context.Context, movementType domain.MovementType, since time.Time) (map[string]decimal.Decimal, error) {
	rows, err := s.db.Query(ctx, `
		SELECT product_id, COALESCE(SUM(ABS(quantity)), 0)
		FROM stock_movements
		WHERE movement_type = $1 AND created_at >= $2
		GROUP BY product_id
	`, string(movementType), since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sums := make(map[string]decimal.Decimal)
	for rows.Next() {
		var productID string
		var total decimal.Decimal
		if err := rows.Scan(&productID, &total); err != nil {
			return nil, err
		}
		sums[productID] = total
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sums, nil
}

func (s *Store) CountMovements(ctx context.Context, from time.Time, to time.Time) (map[domain.MovementType]int, error) {
	rows, err := s.db.Query(ctx, `
		SELECT movement_type, COUNT(*)
		FROM stock_movements
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY movement_type
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.MovementType]int)
	for rows.Next() {
		var movementType string
		var count int
		if err := rows.Scan(&movementType, &count); err != nil {
			return nil, err
		}
		counts[domain.MovementType(movementType)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

func (s *Store) SumMovementCost(ctx context.Context, movementType domain.MovementType, since time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(total_cost), 0)
		FROM stock_movements
		WHERE movement_type = $1 AND created_at >= $2
	`, string(movementType), since).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, true, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidTransaction
		}
		return err
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRow(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username))).Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.NotFoundf("user %q", username)
		}
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.Query(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func updateProductStock(ctx context.Context, tx pgx.Tx, p domain.Product) error {
	_, err := tx.Exec(ctx, `
		UPDATE products
		SET stock_quantity = $2, last_purchase_at = $3, last_sale_at = $4, updated_at = now()
		WHERE id = $1
	`, p.ID, p.StockQuantity, nullTime(p.LastPurchaseAt), nullTime(p.LastSaleAt))
	return err
}

func insertMovement(ctx context.Context, tx pgx.Tx, m domain.StockMovement) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO stock_movements (
			id, product_id, movement_type, quantity, previous_quantity, new_quantity, unit_cost, total_cost,
			reason, notes, operator_id, sale_id, supplier_id, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, m.ID, m.ProductID, string(m.Type), m.Quantity, m.PreviousQuantity, m.NewQuantity, m.UnitCost, m.TotalCost,
		nullIfEmpty(m.Reason), nullIfEmpty(m.Notes), m.OperatorID, nullIfEmpty(m.SaleID), nullIfEmpty(m.SupplierID), m.CreatedAt)
	return err
}

// conditions accumulates WHERE clauses with positional arguments.
type conditions struct {
	clauses []string
	args    []any
}

func newConditions() *conditions {
	return &conditions{}
}

func (c *conditions) add(clause string, arg any) {
	c.args = append(c.args, arg)
	c.clauses = append(c.clauses, fmt.Sprintf(clause, len(c.args)))
}

func (c *conditions) sql() string {
	if len(c.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.clauses, " AND ")
}

func (c *conditions) page(offset int, limit int) string {
	out := ""
	if limit > 0 {
		c.args = append(c.args, limit)
		out += fmt.Sprintf(" LIMIT $%d", len(c.args))
	}
	if offset > 0 {
		c.args = append(c.args, offset)
		out += fmt.Sprintf(" OFFSET $%d", len(c.args))
	}
	return out
}

func uniqueProductIDs(items []domain.SaleItem) []string {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.ProductID == "" {
			continue
		}
		set[item.ProductID] = struct{}{}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func timePtr(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time.UTC()
	return &t
}
