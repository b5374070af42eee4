package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type BarcodeInput struct {
	Barcode  string              `json:"barcode" validate:"required,min=8,max=50"`
	Quantity decimal.Decimal     `json:"quantity"`
	Weight   decimal.NullDecimal `json:"weight"`
}

type CartOperationKind string

const (
	CartOpUpdate CartOperationKind = "update"
	CartOpRemove CartOperationKind = "remove"
	CartOpClear  CartOperationKind = "clear"
)

type CartOperation struct {
	Operation CartOperationKind `json:"operation" validate:"required,oneof=update remove clear"`
	ProductID string            `json:"product_id"`
	Quantity  *decimal.Decimal  `json:"quantity,omitempty"`
	Weight    *decimal.Decimal  `json:"weight,omitempty"`
}

type AddToCartResponse struct {
	Message string  `json:"message"`
	Product Product `json:"product"`
	Cart    Cart    `json:"cart"`
}

type PaymentRequest struct {
	PaymentMethod  PaymentMethod   `json:"payment_method" validate:"required,oneof=cash debit_card credit_card pix"`
	AmountReceived decimal.Decimal `json:"amount_received"`
	CustomerID     string          `json:"customer_id,omitempty"`
}

type PaymentResponse struct {
	SaleID         string          `json:"sale_id"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
	AmountReceived decimal.Decimal `json:"amount_received"`
	ChangeAmount   decimal.Decimal `json:"change_amount"`
	PaymentMethod  PaymentMethod   `json:"payment_method"`
	Receipt        Receipt         `json:"receipt_data"`
	ReceiptText    string          `json:"receipt_text"`
}

type CancelSaleResponse struct {
	SaleID    string `json:"sale_id"`
	Cancelled bool   `json:"cancelled"`
	Message   string `json:"message"`
}

type MovementRequest struct {
	ProductID    string              `json:"product_id" validate:"required"`
	MovementType MovementType        `json:"movement_type" validate:"required,oneof=entry exit adjustment loss return transfer"`
	Quantity     decimal.Decimal     `json:"quantity"`
	UnitCost     decimal.NullDecimal `json:"unit_cost"`
	Reason       string              `json:"reason,omitempty" validate:"max=200"`
	Notes        string              `json:"notes,omitempty" validate:"max=1000"`
	SupplierID   string              `json:"supplier_id,omitempty"`
	SaleID       string              `json:"sale_id,omitempty"`
}

type StockEntryRequest struct {
	ProductID  string          `json:"product_id" validate:"required"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	SupplierID string          `json:"supplier_id,omitempty"`
	Reason     string          `json:"reason,omitempty" validate:"max=200"`
	Notes      string          `json:"notes,omitempty" validate:"max=1000"`
}

type StockAdjustmentRequest struct {
	ProductID   string          `json:"product_id" validate:"required"`
	NewQuantity decimal.Decimal `json:"new_quantity"`
	Reason      string          `json:"reason,omitempty" validate:"max=200"`
	Notes       string          `json:"notes,omitempty" validate:"max=1000"`
}

type MovementListResponse struct {
	Movements []StockMovement `json:"movements"`
	Offset    int             `json:"offset"`
	Limit     int             `json:"limit"`
}

type SaleListItem struct {
	ID            string          `json:"id"`
	FinalAmount   decimal.Decimal `json:"final_amount"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Status        SaleStatus      `json:"status"`
	TotalItems    int             `json:"total_items"`
	OperatorID    string          `json:"operator_id"`
	CreatedAt     time.Time       `json:"created_at"`
}

type CashierCreateRequest struct {
	Username string `json:"username" validate:"required,min=4,max=64"`
	Password string `json:"password" validate:"required,min=6,max=128"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
