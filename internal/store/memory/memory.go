package memory

import (
	"context"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"pdv/backend/internal/domain"
	"pdv/backend/internal/ledger"
	"pdv/backend/internal/store"
	"pdv/backend/internal/xid"
)

const (
	saleReason   = "Venda"
	cancelReason = "Cancelamento de venda"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	barcodes        map[string]string
	suppliersByID   map[string]domain.Supplier
	salesByID       map[string]*domain.Sale
	movements       []domain.StockMovement
	usersByUsername map[string]domain.UserAccount
	now             func() time.Time
}

func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		barcodes:        make(map[string]string),
		suppliersByID:   make(map[string]domain.Supplier),
		salesByID:       make(map[string]*domain.Sale),
		movements:       make([]domain.StockMovement, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD;
// hardcoded dev defaults are used with a warning when they are unset. The
// postgres store never uses these.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		slog.Warn("memory store is using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			panic("memory store: hash seed password for " + u.username + ": " + err.Error())
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func dec(raw string) decimal.Decimal {
	return decimal.RequireFromString(raw)
}

func cost(raw string) decimal.NullDecimal {
	return decimal.NewNullDecimal(dec(raw))
}

// NewSeeded returns a store with a small demo catalog and the seed users.
func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()

	s.PutSupplier(domain.Supplier{ID: "sup-laticinios", Name: "Laticinios Serra Azul", CompanyName: "Serra Azul Alimentos Ltda", Active: true})
	s.PutSupplier(domain.Supplier{ID: "sup-bebidas", Name: "Distribuidora Rio Claro", CompanyName: "Rio Claro Bebidas Ltda", Active: true})

	for _, p := range []domain.Product{
		{ID: "prd-refri-2l", Barcode: "7894900011517", Name: "Refrigerante Cola 2L", Price: dec("8.50"), CostPrice: cost("5.20"), StockQuantity: dec("120"), MinStockLevel: dec("24"), ReorderPoint: dec("36"), MaxStock: decimal.NewNullDecimal(dec("300")), BulkDiscountEnabled: true, BulkMinQuantity: dec("6"), BulkDiscountPercentage: dec("5"), Active: true, SupplierID: "sup-bebidas"},
		{ID: "prd-agua-500", Barcode: "7896064200018", Name: "Agua Mineral 500ml", Price: dec("2.50"), CostPrice: cost("1.10"), StockQuantity: dec("240"), MinStockLevel: dec("48"), ReorderPoint: dec("72"), BulkDiscountEnabled: true, BulkMinQuantity: dec("12"), BulkDiscountPercentage: dec("10"), Active: true, SupplierID: "sup-bebidas"},
		{ID: "prd-queijo-minas", Barcode: "2000000000017", Name: "Queijo Minas Frescal", Price: dec("32.90"), CostPrice: cost("21.00"), StockQuantity: dec("15.500"), MinStockLevel: dec("5"), ReorderPoint: dec("8"), RequiresWeighing: true, Active: true, SupplierID: "sup-laticinios"},
		{ID: "prd-presunto", Barcode: "2000000000024", Name: "Presunto Fatiado", Price: dec("39.90"), CostPrice: cost("26.50"), StockQuantity: dec("3.200"), MinStockLevel: dec("4"), ReorderPoint: dec("6"), RequiresWeighing: true, Active: true, SupplierID: "sup-laticinios"},
		{ID: "prd-leite-1l", Barcode: "7891000315507", Name: "Leite Integral 1L", Price: dec("5.79"), CostPrice: cost("4.10"), StockQuantity: dec("60"), MinStockLevel: dec("30"), ReorderPoint: dec("40"), Active: true, SupplierID: "sup-laticinios"},
		{ID: "prd-pao-forma", Barcode: "7896002360118", Name: "Pao de Forma", Price: dec("9.49"), StockQuantity: dec("18"), MinStockLevel: dec("10"), ReorderPoint: dec("12"), Active: true},
		{ID: "prd-cafe-500", Barcode: "7896005800017", Name: "Cafe Torrado 500g", Price: dec("18.90"), CostPrice: cost("13.40"), StockQuantity: dec("0"), MinStockLevel: dec("12"), ReorderPoint: dec("20"), Active: true},
		{ID: "prd-biscoito-old", Barcode: "7896004000012", Name: "Biscoito Descontinuado", Price: dec("3.99"), StockQuantity: dec("10"), Active: false},
	} {
		s.PutProduct(p)
	}
	return s
}

// PutProduct inserts or replaces a catalog entry. The product catalog is
// owned elsewhere; this exists for seeding and tests.
func (s *Store) PutProduct(product domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.products[product.ID]; ok && existing.Barcode != product.Barcode {
		delete(s.barcodes, existing.Barcode)
	}
	s.products[product.ID] = product
	if product.Barcode != "" {
		s.barcodes[product.Barcode] = product.ID
	}
}

func (s *Store) PutSupplier(supplier domain.Supplier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suppliersByID[supplier.ID] = supplier
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Name == b.Name {
			return strings.Compare(a.ID, b.ID)
		}
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) GetProductByBarcode(_ context.Context, barcode string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.barcodes[barcode]
	if !ok {
		return nil, store.NotFoundf("product with barcode %s", barcode)
	}
	product := s.products[id]
	return &product, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.NotFoundf("product %s", id)
	}
	return &product, nil
}

func (s *Store) GetSupplier(_ context.Context, id string) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	supplier, ok := s.suppliersByID[id]
	if !ok {
		return nil, store.NotFoundf("supplier %s", id)
	}
	return &supplier, nil
}

// CreateCheckout validates every line against current stock before touching
// anything, so a failing line leaves products, movements and sales as they
// were.
func (s *Store) CreateCheckout(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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

	working := make(map[string]domain.Product, len(sale.Items))
	pending := make([]domain.StockMovement, 0, len(sale.Items))
	items := make([]domain.SaleItem, 0, len(sale.Items))
	for _, item := range sale.Items {
		product, ok := working[item.ProductID]
		if !ok {
			product, ok = s.products[item.ProductID]
			if !ok {
				return nil, store.NotFoundf("product %s", item.ProductID)
			}
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
		pending = append(pending, ledger.Build(xid.New("mov"), cmd, product.StockQuantity, result))

		product.StockQuantity = result.NewQuantity
		ledger.Stamp(&product, domain.MovementExit, sale.CreatedAt)
		working[product.ID] = product

		if item.ID == "" {
			item.ID = xid.New("item")
		}
		item.SaleID = sale.ID
		items = append(items, item)
	}
	sale.Items = items

	for id, product := range working {
		s.products[id] = product
	}
	s.movements = append(s.movements, pending...)
	stored := cloneSale(&sale)
	s.salesByID[sale.ID] = stored

	return cloneSale(stored), nil
}

func (s *Store) CancelSale(_ context.Context, id string, operatorID string, at time.Time) (*domain.Sale, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, false, store.NotFoundf("sale %s", id)
	}
	if sale.Status == domain.SaleStatusCancelled {
		return cloneSale(sale), false, nil
	}

	working := make(map[string]domain.Product, len(sale.Items))
	pending := make([]domain.StockMovement, 0, len(sale.Items))
	for _, item := range sale.Items {
		quantity := item.EffectiveQuantity()
		if !quantity.IsPositive() {
			continue
		}
		product, ok := working[item.ProductID]
		if !ok {
			product, ok = s.products[item.ProductID]
			if !ok {
				return nil, false, store.NotFoundf("product %s", item.ProductID)
			}
		}
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
		pending = append(pending, ledger.Build(xid.New("mov"), cmd, product.StockQuantity, result))
		product.StockQuantity = result.NewQuantity
		working[product.ID] = product
	}

	for pid, product := range working {
		s.products[pid] = product
	}
	s.movements = append(s.movements, pending...)
	cancelledAt := at
	sale.Status = domain.SaleStatusCancelled
	sale.CancelledAt = &cancelledAt
	sale.CancelledBy = operatorID

	return cloneSale(sale), true, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.NotFoundf("sale %s", id)
	}
	return cloneSale(sale), nil
}

// ListSales returns matching sales newest first.
func (s *Store) ListSales(_ context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if filter.From != nil && sale.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !sale.CreatedAt.Before(*filter.To) {
			continue
		}
		if filter.OperatorID != "" && sale.OperatorID != filter.OperatorID {
			continue
		}
		if filter.Status != "" && sale.Status != filter.Status {
			continue
		}
		sales = append(sales, *cloneSale(sale))
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return page(sales, filter.Offset, filter.Limit), nil
}

func (s *Store) RecordMovement(_ context.Context, cmd domain.MovementCommand) (*domain.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[cmd.ProductID]
	if !ok {
		return nil, store.NotFoundf("product %s", cmd.ProductID)
	}
	if cmd.At.IsZero() {
		cmd.At = s.now()
	}

	result, err := ledger.Apply(product, cmd.Type, cmd.Quantity)
	if err != nil {
		return nil, err
	}
	movement := ledger.Build(xid.New("mov"), cmd, product.StockQuantity, result)

	product.StockQuantity = result.NewQuantity
	ledger.Stamp(&product, cmd.Type, cmd.At)
	s.products[product.ID] = product
	s.movements = append(s.movements, movement)

	return &movement, nil
}

// ListMovements returns matching movements newest first.
func (s *Store) ListMovements(_ context.Context, filter domain.MovementFilter) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	movements := make([]domain.StockMovement, 0)
	for i := len(s.movements) - 1; i >= 0; i-- {
		m := s.movements[i]
		if filter.ProductID != "" && m.ProductID != filter.ProductID {
			continue
		}
		if filter.Type != "" && m.Type != filter.Type {
			continue
		}
		if filter.From != nil && m.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !m.CreatedAt.Before(*filter.To) {
			continue
		}
		movements = append(movements, m)
	}
	slices.SortStableFunc(movements, func(a, b domain.StockMovement) int {
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return 1
		}
		return 0
	})
	return page(movements, filter.Offset, filter.Limit), nil
}

func (s *Store) SumMovements(_ context.Context, movementType domain.MovementType, since time.Time) (map[string]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sums := make(map[string]decimal.Decimal)
	for _, m := range s.movements {
		if m.Type != movementType || m.CreatedAt.Before(since) {
			continue
		}
		sums[m.ProductID] = sums[m.ProductID].Add(m.Quantity.Abs())
	}
	return sums, nil
}

func (s *Store) CountMovements(_ context.Context, from time.Time, to time.Time) (map[domain.MovementType]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[domain.MovementType]int)
	for _, m := range s.movements {
		if m.CreatedAt.Before(from) || !m.CreatedAt.Before(to) {
			continue
		}
		counts[m.Type]++
	}
	return counts, nil
}

func (s *Store) SumMovementCost(_ context.Context, movementType domain.MovementType, since time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, m := range s.movements {
		if m.Type != movementType || m.CreatedAt.Before(since) || !m.TotalCost.Valid {
			continue
		}
		total = total.Add(m.TotalCost.Decimal)
	}
	return total, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidTransaction
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) GetUser(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return nil, store.NotFoundf("user %q", username)
	}
	return &user, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func page[T any](items []T, offset int, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func cloneSale(src *domain.Sale) *domain.Sale {
	if src == nil {
		return nil
	}
	dup := *src
	dupItems := make([]domain.SaleItem, len(src.Items))
	copy(dupItems, src.Items)
	dup.Items = dupItems
	if src.CancelledAt != nil {
		at := *src.CancelledAt
		dup.CancelledAt = &at
	}
	return &dup
}
