// Package cart holds the per-operator shopping carts of the point of sale.
//
// The functions in this file mutate a cart value and never touch the store;
// Store serializes them per operator.
package cart

import (
	"github.com/shopspring/decimal"

	"pdv/backend/internal/domain"
	"pdv/backend/internal/pricing"
)

const AnonymousOperator = "anonymous"

func New(operator string) domain.Cart {
	c := domain.Cart{OperatorID: OperatorKey(operator), Items: []domain.CartItem{}}
	Recalculate(&c)
	return c
}

func OperatorKey(operator string) string {
	if operator == "" {
		return AnonymousOperator
	}
	return operator
}

// Recalculate rebuilds every aggregate from the current lines.
func Recalculate(c *domain.Cart) {
	if c.Items == nil {
		c.Items = []domain.CartItem{}
	}
	totals := pricing.Sum(c.Items)
	c.Subtotal = totals.Subtotal
	c.TotalDiscount = totals.TotalDiscount
	c.BulkDiscount = totals.BulkDiscount
	c.FinalTotal = totals.FinalTotal
	c.TotalItems = totals.TotalItems
	c.TotalQuantity = totals.TotalQuantity
}

func Find(c *domain.Cart, productID string) (int, bool) {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i, true
		}
	}
	return -1, false
}

// Merged returns the line the cart would hold for product after adding
// quantity and weight, without modifying the cart.
func Merged(c *domain.Cart, product domain.Product, quantity decimal.Decimal, weight decimal.NullDecimal) domain.CartItem {
	idx, ok := Find(c, product.ID)
	if !ok {
		item := domain.CartItem{
			ProductID: product.ID,
			Name:      product.Name,
			Barcode:   product.Barcode,
			Quantity:  quantity,
		}
		if product.RequiresWeighing {
			item.Weight = weight
		}
		pricing.Apply(&item, product)
		return item
	}

	item := c.Items[idx]
	item.Name = product.Name
	item.Barcode = product.Barcode
	item.Quantity = item.Quantity.Add(quantity)
	if product.RequiresWeighing {
		total := decimal.Zero
		if item.Weight.Valid {
			total = item.Weight.Decimal
		}
		if weight.Valid {
			total = total.Add(weight.Decimal)
		}
		item.Weight = decimal.NewNullDecimal(total)
	} else {
		item.Weight = decimal.NullDecimal{}
	}
	pricing.Apply(&item, product)
	return item
}

// Add merges a scan into the cart: a repeated product grows its existing
// line instead of opening a new one.
func Add(c *domain.Cart, product domain.Product, quantity decimal.Decimal, weight decimal.NullDecimal) domain.CartItem {
	item := Merged(c, product, quantity, weight)
	if idx, ok := Find(c, product.ID); ok {
		c.Items[idx] = item
	} else {
		c.Items = append(c.Items, item)
	}
	Recalculate(c)
	return item
}

// Update replaces the quantity and/or weight of an existing line and reprices
// it. Weight is kept only for weighed products. It reports false when the
// product has no line.
func Update(c *domain.Cart, product domain.Product, quantity *decimal.Decimal, weight *decimal.Decimal) bool {
	idx, ok := Find(c, product.ID)
	if !ok {
		return false
	}
	item := c.Items[idx]
	if quantity != nil {
		item.Quantity = *quantity
	}
	switch {
	case !product.RequiresWeighing:
		item.Weight = decimal.NullDecimal{}
	case weight != nil:
		item.Weight = decimal.NewNullDecimal(*weight)
	}
	pricing.Apply(&item, product)
	c.Items[idx] = item
	Recalculate(c)
	return true
}

func Remove(c *domain.Cart, productID string) bool {
	idx, ok := Find(c, productID)
	if !ok {
		return false
	}
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	Recalculate(c)
	return true
}

func Clear(c *domain.Cart) {
	c.Items = []domain.CartItem{}
	Recalculate(c)
}
