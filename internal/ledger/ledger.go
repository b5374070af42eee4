// Package ledger holds the stock movement rules shared by every store
// implementation, plus the derived stock indicators used for alerting and
// reporting.
//
// Stock never goes below zero: exits, losses and transfers that would take a
// product negative are rejected, and adjustments to a negative target are
// refused. No path clamps.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"pdv/backend/internal/domain"
	"pdv/backend/internal/store"
)

const (
	quantityPlaces = 3
	moneyPlaces    = 2
	// SalesWindow is the trailing window used for depletion estimates.
	SalesWindow = 30 * 24 * time.Hour
)

var half = decimal.NewFromFloat(0.5)

type Result struct {
	// Quantity is the stored movement quantity: unsigned for every type but
	// adjustment, which stores the signed delta target - previous.
	Quantity    decimal.Decimal
	NewQuantity decimal.Decimal
}

// Apply computes the effect of a movement on a product holding previous.
func Apply(product domain.Product, movementType domain.MovementType, quantity decimal.Decimal) (Result, error) {
	previous := product.StockQuantity
	quantity = quantity.Round(quantityPlaces)

	switch movementType {
	case domain.MovementEntry, domain.MovementReturn:
		if !quantity.IsPositive() {
			return Result{}, store.InvalidQuantityf("%s quantity must be positive, got %s", movementType, quantity)
		}
		return Result{Quantity: quantity, NewQuantity: previous.Add(quantity)}, nil
	case domain.MovementExit, domain.MovementLoss, domain.MovementTransfer:
		if !quantity.IsPositive() {
			return Result{}, store.InvalidQuantityf("%s quantity must be positive, got %s", movementType, quantity)
		}
		next := previous.Sub(quantity)
		if next.IsNegative() {
			return Result{}, &store.StockError{
				ProductID: product.ID,
				Name:      product.Name,
				Requested: quantity,
				Available: previous,
			}
		}
		return Result{Quantity: quantity, NewQuantity: next}, nil
	case domain.MovementAdjustment:
		if quantity.IsNegative() {
			return Result{}, store.InvalidQuantityf("adjustment target must not be negative, got %s", quantity)
		}
		return Result{Quantity: quantity.Sub(previous), NewQuantity: quantity}, nil
	default:
		return Result{}, store.ErrInvalidTransaction
	}
}

// TotalCost is unit cost times the absolute stored quantity, absent when no
// unit cost was supplied.
func TotalCost(unitCost decimal.NullDecimal, quantity decimal.Decimal) decimal.NullDecimal {
	if !unitCost.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(unitCost.Decimal.Mul(quantity.Abs()).Round(moneyPlaces))
}

// Stamp updates the product's purchase/sale timestamps for a movement.
func Stamp(product *domain.Product, movementType domain.MovementType, at time.Time) {
	switch movementType {
	case domain.MovementEntry:
		stamped := at
		product.LastPurchaseAt = &stamped
	case domain.MovementExit:
		stamped := at
		product.LastSaleAt = &stamped
	}
}

// Build assembles the movement row for an applied command.
func Build(id string, cmd domain.MovementCommand, previous decimal.Decimal, result Result) domain.StockMovement {
	return domain.StockMovement{
		ID:               id,
		ProductID:        cmd.ProductID,
		Type:             cmd.Type,
		Quantity:         result.Quantity,
		PreviousQuantity: previous,
		NewQuantity:      result.NewQuantity,
		UnitCost:         cmd.UnitCost,
		TotalCost:        TotalCost(cmd.UnitCost, result.Quantity),
		Reason:           cmd.Reason,
		Notes:            cmd.Notes,
		OperatorID:       cmd.OperatorID,
		SaleID:           cmd.SaleID,
		SupplierID:       cmd.SupplierID,
		CreatedAt:        cmd.At,
	}
}

func IsLow(product domain.Product) bool {
	return product.Active && product.StockQuantity.LessThanOrEqual(product.MinStockLevel)
}

func AlertLevelFor(product domain.Product) domain.AlertLevel {
	if product.StockQuantity.IsZero() {
		return domain.AlertCritical
	}
	if product.StockQuantity.LessThanOrEqual(product.MinStockLevel.Mul(half)) {
		return domain.AlertCritical
	}
	return domain.AlertWarning
}

// DepletionDays estimates whole days of stock left from the units sold in
// the trailing window. It is nil when nothing was sold in that window.
func DepletionDays(stock decimal.Decimal, soldInWindow decimal.Decimal) *int {
	if !stock.IsPositive() {
		days := 0
		return &days
	}
	if !soldInWindow.IsPositive() {
		return nil
	}
	windowDays := decimal.NewFromInt(int64(SalesWindow / (24 * time.Hour)))
	daily := soldInWindow.Div(windowDays)
	days := int(stock.Div(daily).Floor().IntPart())
	return &days
}

func Alert(product domain.Product, soldInWindow decimal.Decimal) domain.LowStockAlert {
	return domain.LowStockAlert{
		ProductID:       product.ID,
		ProductName:     product.Name,
		CurrentQuantity: product.StockQuantity,
		MinStock:        product.MinStockLevel,
		ReorderPoint:    product.ReorderPoint,
		AlertLevel:      AlertLevelFor(product),
		DepletionDays:   DepletionDays(product.StockQuantity, soldInWindow),
	}
}

func StatusFor(product domain.Product) domain.StockStatus {
	switch {
	case product.StockQuantity.IsZero():
		return domain.StockOutOfStock
	case product.MinStockLevel.IsPositive() && product.StockQuantity.LessThanOrEqual(product.MinStockLevel):
		return domain.StockLow
	case product.MaxStock.Valid && product.MaxStock.Decimal.IsPositive() && product.StockQuantity.GreaterThanOrEqual(product.MaxStock.Decimal):
		return domain.StockOverstock
	default:
		return domain.StockOK
	}
}

// StockValue is stock times cost price; products without a cost price are
// worth zero here.
func StockValue(product domain.Product) decimal.Decimal {
	if !product.CostPrice.Valid {
		return decimal.Zero
	}
	return product.StockQuantity.Mul(product.CostPrice.Decimal).Round(moneyPlaces)
}

func Valuation(products []domain.Product, at time.Time) domain.StockValuation {
	valuation := domain.StockValuation{
		TotalStockValue:  decimal.Zero,
		TotalRetailValue: decimal.Zero,
		PotentialMargin:  decimal.Zero,
		GeneratedAt:      at,
	}
	valuedRetail := decimal.Zero
	for _, product := range products {
		if !product.Active {
			continue
		}
		retail := product.StockQuantity.Mul(product.Price).Round(moneyPlaces)
		valuation.TotalProducts++
		valuation.TotalRetailValue = valuation.TotalRetailValue.Add(retail)
		if !product.CostPrice.Valid {
			continue
		}
		valuation.ValuedProducts++
		valuation.TotalStockValue = valuation.TotalStockValue.Add(StockValue(product))
		valuedRetail = valuedRetail.Add(retail)
	}
	// Margin only covers products whose cost is known.
	valuation.PotentialMargin = valuedRetail.Sub(valuation.TotalStockValue)
	return valuation
}

// Turnover is the cost of goods that left over the window divided by the
// current stock value, rounded to two places.
func Turnover(exitCost decimal.Decimal, stockValue decimal.Decimal) decimal.Decimal {
	if !stockValue.IsPositive() {
		return decimal.Zero
	}
	return exitCost.Div(stockValue).Round(2)
}
