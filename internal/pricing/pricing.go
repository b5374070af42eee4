// Package pricing computes line totals for the point-of-sale cart.
//
// Everything here is pure: no lookups, no clocks, no state. Input validation
// (non-positive quantities or weights) belongs to the caller.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"pdv/backend/internal/domain"
)

const moneyPlaces = 2

var hundred = decimal.NewFromInt(100)

type Input struct {
	UnitPrice              decimal.Decimal
	Quantity               decimal.Decimal
	Weight                 decimal.NullDecimal
	RequiresWeighing       bool
	BulkDiscountEnabled    bool
	BulkMinQuantity        decimal.Decimal
	BulkDiscountPercentage decimal.Decimal
	ManualDiscount         decimal.Decimal
}

type Line struct {
	GrossTotal           decimal.Decimal
	BulkDiscount         decimal.Decimal
	Discount             decimal.Decimal
	NetTotal             decimal.Decimal
	EffectiveQuantity    decimal.Decimal
	HasPromotion         bool
	PromotionDescription string
}

// InputFor builds the pricing input for a product line.
func InputFor(product domain.Product, quantity decimal.Decimal, weight decimal.NullDecimal) Input {
	return Input{
		UnitPrice:              product.Price,
		Quantity:               quantity,
		Weight:                 weight,
		RequiresWeighing:       product.RequiresWeighing,
		BulkDiscountEnabled:    product.BulkDiscountEnabled,
		BulkMinQuantity:        product.BulkMinQuantity,
		BulkDiscountPercentage: product.BulkDiscountPercentage,
	}
}

func Compute(in Input) Line {
	gross := in.Quantity.Mul(in.UnitPrice)
	if in.RequiresWeighing && in.Weight.Valid {
		gross = in.Weight.Decimal.Mul(in.UnitPrice)
	}
	gross = gross.Round(moneyPlaces)

	effective := in.Quantity
	if in.RequiresWeighing {
		effective = decimal.Zero
		if in.Weight.Valid {
			effective = in.Weight.Decimal
		}
	}

	bulk := decimal.Zero
	if qualifiesForBulk(in, effective) {
		bulk = gross.Mul(in.BulkDiscountPercentage).Div(hundred).Round(moneyPlaces)
	}

	manual := in.ManualDiscount.Round(moneyPlaces)
	line := Line{
		GrossTotal:        gross,
		BulkDiscount:      bulk,
		Discount:          manual,
		NetTotal:          gross.Sub(bulk).Sub(manual),
		EffectiveQuantity: effective,
	}
	if bulk.IsPositive() {
		line.HasPromotion = true
		line.PromotionDescription = PromotionDescription(in.BulkMinQuantity, in.BulkDiscountPercentage)
	}
	return line
}

// qualifiesForBulk never grants a discount to an empty line, whatever the
// configured threshold.
func qualifiesForBulk(in Input, effective decimal.Decimal) bool {
	if !in.BulkDiscountEnabled || !in.BulkDiscountPercentage.IsPositive() {
		return false
	}
	if !effective.IsPositive() {
		return false
	}
	return effective.GreaterThanOrEqual(in.BulkMinQuantity)
}

func PromotionDescription(minQuantity decimal.Decimal, percentage decimal.Decimal) string {
	return fmt.Sprintf("%s+ unidades = %s%% OFF", minQuantity.String(), percentage.String())
}

// Apply prices a cart item in place from its product.
func Apply(item *domain.CartItem, product domain.Product) {
	line := Compute(InputFor(product, item.Quantity, item.Weight))
	item.UnitPrice = product.Price
	item.RequiresWeighing = product.RequiresWeighing
	item.GrossTotal = line.GrossTotal
	item.BulkDiscount = line.BulkDiscount
	item.Discount = line.Discount
	item.NetTotal = line.NetTotal
	item.HasPromotion = line.HasPromotion
	item.PromotionDescription = line.PromotionDescription
}

type Totals struct {
	Subtotal      decimal.Decimal
	TotalDiscount decimal.Decimal
	BulkDiscount  decimal.Decimal
	FinalTotal    decimal.Decimal
	TotalItems    int
	TotalQuantity decimal.Decimal
}

func Sum(items []domain.CartItem) Totals {
	totals := Totals{
		Subtotal:      decimal.Zero,
		TotalDiscount: decimal.Zero,
		BulkDiscount:  decimal.Zero,
		FinalTotal:    decimal.Zero,
		TotalQuantity: decimal.Zero,
		TotalItems:    len(items),
	}
	for _, item := range items {
		totals.Subtotal = totals.Subtotal.Add(item.GrossTotal)
		totals.TotalDiscount = totals.TotalDiscount.Add(item.Discount)
		totals.BulkDiscount = totals.BulkDiscount.Add(item.BulkDiscount)
		totals.FinalTotal = totals.FinalTotal.Add(item.NetTotal)
		totals.TotalQuantity = totals.TotalQuantity.Add(item.Quantity)
	}
	return totals
}
