package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID                     string              `json:"id"`
	Barcode                string              `json:"barcode"`
	Name                   string              `json:"name"`
	Price                  decimal.Decimal     `json:"price"`
	CostPrice              decimal.NullDecimal `json:"cost_price"`
	StockQuantity          decimal.Decimal     `json:"stock_quantity"`
	MinStockLevel          decimal.Decimal     `json:"min_stock_level"`
	ReorderPoint           decimal.Decimal     `json:"reorder_point"`
	MaxStock               decimal.NullDecimal `json:"max_stock"`
	RequiresWeighing       bool                `json:"requires_weighing"`
	BulkDiscountEnabled    bool                `json:"bulk_discount_enabled"`
	BulkMinQuantity        decimal.Decimal     `json:"bulk_min_quantity"`
	BulkDiscountPercentage decimal.Decimal     `json:"bulk_discount_percentage"`
	Active                 bool                `json:"active"`
	SupplierID             string              `json:"supplier_id,omitempty"`
	LastPurchaseAt         *time.Time          `json:"last_purchase_at,omitempty"`
	LastSaleAt             *time.Time          `json:"last_sale_at,omitempty"`
}

// SoldQuantity is the quantity that leaves the shelf for a line of this
// product: the weight for weighed goods, the unit count otherwise.
func (p Product) SoldQuantity(quantity decimal.Decimal, weight decimal.NullDecimal) decimal.Decimal {
	if p.RequiresWeighing {
		if weight.Valid {
			return weight.Decimal
		}
		return decimal.Zero
	}
	return quantity
}

type Supplier struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	CompanyName   string `json:"company_name,omitempty"`
	Document      string `json:"document,omitempty"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	ContactPerson string `json:"contact_person,omitempty"`
	Active        bool   `json:"active"`
}

type CartItem struct {
	ProductID            string              `json:"product_id"`
	Name                 string              `json:"product_name"`
	Barcode              string              `json:"product_barcode"`
	UnitPrice            decimal.Decimal     `json:"unit_price"`
	Quantity             decimal.Decimal     `json:"quantity"`
	Weight               decimal.NullDecimal `json:"weight"`
	RequiresWeighing     bool                `json:"requires_weighing"`
	GrossTotal           decimal.Decimal     `json:"original_total"`
	Discount             decimal.Decimal     `json:"discount_applied"`
	BulkDiscount         decimal.Decimal     `json:"bulk_discount_applied"`
	NetTotal             decimal.Decimal     `json:"final_total"`
	HasPromotion         bool                `json:"has_promotion"`
	PromotionDescription string              `json:"promotion_description,omitempty"`
}

// EffectiveQuantity is the weight for weighed lines and the unit count
// otherwise.
func (i CartItem) EffectiveQuantity() decimal.Decimal {
	if i.RequiresWeighing {
		if i.Weight.Valid {
			return i.Weight.Decimal
		}
		return decimal.Zero
	}
	return i.Quantity
}

type Cart struct {
	OperatorID    string          `json:"operator_id"`
	Items         []CartItem      `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TotalDiscount decimal.Decimal `json:"total_discount"`
	BulkDiscount  decimal.Decimal `json:"bulk_discount"`
	FinalTotal    decimal.Decimal `json:"final_total"`
	TotalItems    int             `json:"total_items"`
	TotalQuantity decimal.Decimal `json:"total_quantity"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (c Cart) Clone() Cart {
	cloned := c
	cloned.Items = make([]CartItem, len(c.Items))
	copy(cloned.Items, c.Items)
	return cloned
}

type PaymentMethod string

const (
	PaymentCash       PaymentMethod = "cash"
	PaymentDebitCard  PaymentMethod = "debit_card"
	PaymentCreditCard PaymentMethod = "credit_card"
	PaymentPix        PaymentMethod = "pix"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentDebitCard, PaymentCreditCard, PaymentPix:
		return true
	}
	return false
}

type SaleStatus string

const (
	SaleStatusPending   SaleStatus = "pending"
	SaleStatusCompleted SaleStatus = "completed"
	SaleStatusCancelled SaleStatus = "cancelled"
)

type Sale struct {
	ID             string          `json:"id"`
	CustomerID     string          `json:"customer_id,omitempty"`
	OperatorID     string          `json:"operator_id"`
	Subtotal       decimal.Decimal `json:"subtotal_amount"`
	Discount       decimal.Decimal `json:"discount_amount"`
	BulkDiscount   decimal.Decimal `json:"bulk_discount_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
	PaymentMethod  PaymentMethod   `json:"payment_method"`
	AmountReceived decimal.Decimal `json:"amount_received"`
	ChangeAmount   decimal.Decimal `json:"change_amount"`
	Status         SaleStatus      `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	CancelledAt    *time.Time      `json:"cancelled_at,omitempty"`
	CancelledBy    string          `json:"cancelled_by,omitempty"`
	Items          []SaleItem      `json:"items"`
}

type SaleItem struct {
	ID               string              `json:"id"`
	SaleID           string              `json:"sale_id"`
	ProductID        string              `json:"product_id"`
	ProductName      string              `json:"product_name"`
	Barcode          string              `json:"product_barcode"`
	Quantity         decimal.Decimal     `json:"quantity"`
	Weight           decimal.NullDecimal `json:"weight"`
	RequiresWeighing bool                `json:"requires_weighing"`
	UnitPrice        decimal.Decimal     `json:"unit_price"`
	GrossTotal       decimal.Decimal     `json:"original_total_price"`
	Discount         decimal.Decimal     `json:"discount_applied"`
	BulkDiscount     decimal.Decimal     `json:"bulk_discount_applied"`
	NetTotal         decimal.Decimal     `json:"final_total_price"`
}

func (i SaleItem) EffectiveQuantity() decimal.Decimal {
	if i.RequiresWeighing {
		if i.Weight.Valid {
			return i.Weight.Decimal
		}
		return decimal.Zero
	}
	return i.Quantity
}

type MovementType string

const (
	MovementEntry      MovementType = "entry"
	MovementExit       MovementType = "exit"
	MovementAdjustment MovementType = "adjustment"
	MovementLoss       MovementType = "loss"
	MovementReturn     MovementType = "return"
	MovementTransfer   MovementType = "transfer"
)

var MovementTypes = []MovementType{
	MovementEntry,
	MovementExit,
	MovementAdjustment,
	MovementLoss,
	MovementReturn,
	MovementTransfer,
}

func (t MovementType) Valid() bool {
	for _, known := range MovementTypes {
		if t == known {
			return true
		}
	}
	return false
}

type StockMovement struct {
	ID               string              `json:"id"`
	ProductID        string              `json:"product_id"`
	Type             MovementType        `json:"movement_type"`
	Quantity         decimal.Decimal     `json:"quantity"`
	PreviousQuantity decimal.Decimal     `json:"previous_quantity"`
	NewQuantity      decimal.Decimal     `json:"new_quantity"`
	UnitCost         decimal.NullDecimal `json:"unit_cost"`
	TotalCost        decimal.NullDecimal `json:"total_cost"`
	Reason           string              `json:"reason,omitempty"`
	Notes            string              `json:"notes,omitempty"`
	OperatorID       string              `json:"operator_id"`
	SaleID           string              `json:"sale_id,omitempty"`
	SupplierID       string              `json:"supplier_id,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
}

// MovementCommand is a request to change one product's stock. For
// adjustments Quantity is the target absolute quantity.
type MovementCommand struct {
	ProductID  string
	Type       MovementType
	Quantity   decimal.Decimal
	UnitCost   decimal.NullDecimal
	Reason     string
	Notes      string
	OperatorID string
	SaleID     string
	SupplierID string
	At         time.Time
}

type MovementFilter struct {
	ProductID string
	Type      MovementType
	From      *time.Time
	To        *time.Time
	Offset    int
	Limit     int
}

type SaleFilter struct {
	From       *time.Time
	To         *time.Time
	OperatorID string
	Status     SaleStatus
	Offset     int
	Limit      int
}

type SalesSummary struct {
	From          *time.Time      `json:"from,omitempty"`
	To            *time.Time      `json:"to,omitempty"`
	TotalSales    int             `json:"total_sales"`
	TotalRevenue  decimal.Decimal `json:"total_revenue"`
	TotalItems    decimal.Decimal `json:"total_items"`
	TotalDiscount decimal.Decimal `json:"total_discount"`
	AverageTicket decimal.Decimal `json:"average_ticket"`
}

type AlertLevel string

const (
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

type LowStockAlert struct {
	ProductID       string          `json:"product_id"`
	ProductName     string          `json:"product_name"`
	CurrentQuantity decimal.Decimal `json:"current_quantity"`
	MinStock        decimal.Decimal `json:"min_stock"`
	ReorderPoint    decimal.Decimal `json:"reorder_point"`
	AlertLevel      AlertLevel      `json:"alert_level"`
	DepletionDays   *int            `json:"days_without_stock"`
}

type StockValuation struct {
	TotalProducts    int             `json:"total_products"`
	ValuedProducts   int             `json:"valued_products"`
	TotalStockValue  decimal.Decimal `json:"total_stock_value"`
	TotalRetailValue decimal.Decimal `json:"total_retail_value"`
	PotentialMargin  decimal.Decimal `json:"potential_margin"`
	GeneratedAt      time.Time       `json:"generated_at"`
}

type MovementCounts struct {
	From   time.Time            `json:"from"`
	To     time.Time            `json:"to"`
	Total  int                  `json:"total"`
	ByType map[MovementType]int `json:"by_type"`
}

type StockStatus string

const (
	StockOutOfStock StockStatus = "out_of_stock"
	StockLow        StockStatus = "low_stock"
	StockOverstock  StockStatus = "overstock"
	StockOK         StockStatus = "ok"
)

type StockReportItem struct {
	ProductID    string              `json:"product_id"`
	ProductName  string              `json:"product_name"`
	Barcode      string              `json:"barcode"`
	SupplierID   string              `json:"supplier_id,omitempty"`
	CurrentStock decimal.Decimal     `json:"current_stock"`
	MinStock     decimal.Decimal     `json:"min_stock"`
	MaxStock     decimal.NullDecimal `json:"max_stock"`
	ReorderPoint decimal.Decimal     `json:"reorder_point"`
	CostPrice    decimal.NullDecimal `json:"cost_price"`
	SalePrice    decimal.Decimal     `json:"sale_price"`
	StockValue   decimal.Decimal     `json:"stock_value"`
	Status       StockStatus         `json:"status"`
}

type StockReportSummary struct {
	TotalProducts       int             `json:"total_products"`
	TotalStockValue     decimal.Decimal `json:"total_stock_value"`
	LowStockItems       int             `json:"low_stock_items"`
	OutOfStockItems     int             `json:"out_of_stock_items"`
	OverstockedItems    int             `json:"overstocked_items"`
	TotalMovementsToday int             `json:"total_movements_today"`
	TotalMovementsWeek  int             `json:"total_movements_week"`
	Turnover30Days      decimal.Decimal `json:"turnover_30_days"`
}

type StockReport struct {
	Summary     StockReportSummary `json:"summary"`
	Items       []StockReportItem  `json:"items"`
	Alerts      []LowStockAlert    `json:"alerts"`
	GeneratedAt time.Time          `json:"generated_at"`
}

type Receipt struct {
	SaleID         string          `json:"sale_id"`
	Date           string          `json:"date"`
	Operator       string          `json:"operator"`
	Items          []ReceiptLine   `json:"items"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	TotalDiscount  decimal.Decimal `json:"total_discount"`
	FinalTotal     decimal.Decimal `json:"final_total"`
	PaymentMethod  PaymentMethod   `json:"payment_method"`
	AmountReceived decimal.Decimal `json:"amount_received"`
	Change         decimal.Decimal `json:"change"`
}

type ReceiptLine struct {
	Name      string              `json:"name"`
	Quantity  decimal.Decimal     `json:"quantity"`
	Weight    decimal.NullDecimal `json:"weight"`
	UnitPrice decimal.Decimal     `json:"unit_price"`
	Total     decimal.Decimal     `json:"total"`
	Discount  decimal.Decimal     `json:"discount"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	RoleCashier = "cashier"
	RoleAdmin   = "admin"
)
