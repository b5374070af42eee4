package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"pdv/backend/internal/cart"
	"pdv/backend/internal/domain"
	"pdv/backend/internal/store"
)

const quantityPlaces = 3

func (s *Service) GetCart(ctx context.Context) domain.Cart {
	return s.carts.Snapshot(ctx, s.operator(ctx))
}

// AddByBarcode scans a product into the caller's cart. Stock is checked
// against the line as it would be after merging with an earlier scan.
func (s *Service) AddByBarcode(ctx context.Context, in domain.BarcodeInput) (domain.AddToCartResponse, error) {
	barcode := strings.TrimSpace(in.Barcode)
	if barcode == "" {
		return domain.AddToCartResponse{}, fmt.Errorf("%w: barcode is required", store.ErrInvalidTransaction)
	}

	quantity := in.Quantity.Round(quantityPlaces)
	if in.Quantity.IsZero() {
		quantity = decimal.NewFromInt(1)
	}
	if !quantity.IsPositive() {
		return domain.AddToCartResponse{}, store.InvalidQuantityf("quantity must be positive, got %s", in.Quantity)
	}
	weight := in.Weight
	if weight.Valid {
		weight.Decimal = weight.Decimal.Round(quantityPlaces)
		if !weight.Decimal.IsPositive() {
			return domain.AddToCartResponse{}, store.InvalidQuantityf("weight must be positive, got %s", in.Weight.Decimal)
		}
	}

	product, err := s.repo.GetProductByBarcode(ctx, barcode)
	if err != nil {
		return domain.AddToCartResponse{}, err
	}
	if !product.Active {
		return domain.AddToCartResponse{}, store.Inactivef("product %s", product.Name)
	}
	if product.RequiresWeighing && !weight.Valid {
		return domain.AddToCartResponse{}, store.InvalidQuantityf("product %s is sold by weight", product.Name)
	}

	operator := s.operator(ctx)
	updated, err := s.carts.Update(ctx, operator, func(c *domain.Cart) error {
		merged := cart.Merged(c, *product, quantity, weight)
		requested := merged.EffectiveQuantity()
		if product.StockQuantity.LessThan(requested) {
			return &store.StockError{
				ProductID: product.ID,
				Name:      product.Name,
				Requested: requested,
				Available: product.StockQuantity,
			}
		}
		cart.Add(c, *product, quantity, weight)
		return nil
	})
	if err != nil {
		return domain.AddToCartResponse{}, err
	}

	s.logger.Debug("cart item added",
		slog.String("operator", operator),
		slog.String("product_id", product.ID),
		slog.String("quantity", quantity.String()),
	)

	return domain.AddToCartResponse{
		Message: fmt.Sprintf("%s adicionado ao carrinho", product.Name),
		Product: *product,
		Cart:    updated,
	}, nil
}

// UpdateCart applies a clear, remove or update operation. A product id with
// no line in the cart leaves the cart unchanged.
func (s *Service) UpdateCart(ctx context.Context, op domain.CartOperation) (domain.Cart, error) {
	operator := s.operator(ctx)

	switch op.Operation {
	case domain.CartOpClear:
		cleared := s.carts.Reset(ctx, operator)
		s.logAudit(ctx, "cart_clear", "cart", operator)
		return cleared, nil
	case domain.CartOpRemove:
		productID := strings.TrimSpace(op.ProductID)
		if productID == "" {
			return domain.Cart{}, fmt.Errorf("%w: product_id is required", store.ErrInvalidTransaction)
		}
		return s.carts.Update(ctx, operator, func(c *domain.Cart) error {
			cart.Remove(c, productID)
			return nil
		})
	case domain.CartOpUpdate:
		return s.updateLine(ctx, operator, op)
	default:
		return domain.Cart{}, fmt.Errorf("%w: unknown cart operation %q", store.ErrInvalidTransaction, op.Operation)
	}
}

func (s *Service) updateLine(ctx context.Context, operator string, op domain.CartOperation) (domain.Cart, error) {
	productID := strings.TrimSpace(op.ProductID)
	if productID == "" {
		return domain.Cart{}, fmt.Errorf("%w: product_id is required", store.ErrInvalidTransaction)
	}
	if op.Quantity == nil && op.Weight == nil {
		return domain.Cart{}, store.InvalidQuantityf("quantity or weight is required")
	}

	var quantity, weight *decimal.Decimal
	if op.Quantity != nil {
		q := op.Quantity.Round(quantityPlaces)
		if !q.IsPositive() {
			return domain.Cart{}, store.InvalidQuantityf("quantity must be positive, got %s", op.Quantity)
		}
		quantity = &q
	}
	if op.Weight != nil {
		w := op.Weight.Round(quantityPlaces)
		if !w.IsPositive() {
			return domain.Cart{}, store.InvalidQuantityf("weight must be positive, got %s", op.Weight)
		}
		weight = &w
	}

	return s.carts.Update(ctx, operator, func(c *domain.Cart) error {
		idx, ok := cart.Find(c, productID)
		if !ok {
			return nil
		}

		product, err := s.repo.GetProductByID(ctx, productID)
		if err != nil {
			return err
		}
		if !product.Active {
			return store.Inactivef("product %s", product.Name)
		}

		next := c.Items[idx]
		if quantity != nil {
			next.Quantity = *quantity
		}
		if weight != nil && product.RequiresWeighing {
			next.Weight = decimal.NewNullDecimal(*weight)
		}
		next.RequiresWeighing = product.RequiresWeighing
		requested := next.EffectiveQuantity()
		if product.StockQuantity.LessThan(requested) {
			return &store.StockError{
				ProductID: product.ID,
				Name:      product.Name,
				Requested: requested,
				Available: product.StockQuantity,
			}
		}

		cart.Update(c, *product, quantity, weight)
		return nil
	})
}
