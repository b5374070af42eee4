package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"pdv/backend/internal/cart"
	"pdv/backend/internal/domain"
	"pdv/backend/internal/receipt"
	"pdv/backend/internal/store"
)

const moneyPlaces = 2

// Checkout turns the caller's cart into a completed sale. The cart lock is
// held for the whole call and the cart is emptied only once the sale, its
// stock decrements and its exit movements have been committed together.
func (s *Service) Checkout(ctx context.Context, req domain.PaymentRequest) (domain.PaymentResponse, error) {
	operator := s.operator(ctx)
	received := req.AmountReceived.Round(moneyPlaces)

	var committed *domain.Sale
	_, err := s.carts.Update(ctx, operator, func(c *domain.Cart) error {
		if len(c.Items) == 0 {
			return store.ErrEmptyCart
		}
		if received.LessThan(c.FinalTotal) {
			return &store.PaymentError{Required: c.FinalTotal, Received: received}
		}
		if !req.PaymentMethod.Valid() {
			return fmt.Errorf("%w: unsupported payment method %q", store.ErrInvalidTransaction, req.PaymentMethod)
		}

		pending := saleFromCart(*c, operator, req, received)
		pending.CreatedAt = s.now()
		sale, err := s.repo.CreateCheckout(ctx, pending)
		if err != nil {
			return err
		}
		committed = sale
		cart.Clear(c)
		return nil
	})
	if err != nil {
		return domain.PaymentResponse{}, err
	}

	rec := receipt.Build(*committed)
	s.logAudit(ctx, "sale_checkout", "sale", committed.ID,
		slog.String("final_amount", committed.FinalAmount.StringFixed(moneyPlaces)),
		slog.String("payment_method", string(committed.PaymentMethod)),
		slog.Int("items", len(committed.Items)),
	)
	s.publish(ctx, "sale.completed", committed.ID, func(ctx context.Context) error {
		return s.publisher.SaleCompleted(ctx, *committed)
	})
	s.notifyLowStock(ctx, saleProductIDs(committed.Items)...)

	return domain.PaymentResponse{
		SaleID:         committed.ID,
		FinalAmount:    committed.FinalAmount,
		AmountReceived: committed.AmountReceived,
		ChangeAmount:   committed.ChangeAmount,
		PaymentMethod:  committed.PaymentMethod,
		Receipt:        rec,
		ReceiptText:    receipt.Text(rec),
	}, nil
}

// CancelSale puts every line of a completed sale back into stock. Cancelling
// a sale twice reports Cancelled=false and changes nothing.
func (s *Service) CancelSale(ctx context.Context, saleID string) (domain.CancelSaleResponse, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.CancelSaleResponse{}, err
	}
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.CancelSaleResponse{}, fmt.Errorf("%w: sale id is required", store.ErrInvalidTransaction)
	}

	sale, cancelled, err := s.repo.CancelSale(ctx, saleID, s.operator(ctx), s.now())
	if err != nil {
		return domain.CancelSaleResponse{}, err
	}
	if !cancelled {
		return domain.CancelSaleResponse{
			SaleID:    sale.ID,
			Cancelled: false,
			Message:   "Venda ja estava cancelada",
		}, nil
	}

	s.logAudit(ctx, "sale_cancel", "sale", sale.ID,
		slog.String("final_amount", sale.FinalAmount.StringFixed(moneyPlaces)),
	)
	s.publish(ctx, "sale.cancelled", sale.ID, func(ctx context.Context) error {
		return s.publisher.SaleCancelled(ctx, *sale)
	})

	return domain.CancelSaleResponse{
		SaleID:    sale.ID,
		Cancelled: true,
		Message:   "Venda cancelada com sucesso",
	}, nil
}

func saleFromCart(c domain.Cart, operator string, req domain.PaymentRequest, received decimal.Decimal) domain.Sale {
	items := make([]domain.SaleItem, 0, len(c.Items))
	for _, line := range c.Items {
		items = append(items, domain.SaleItem{
			ProductID:        line.ProductID,
			ProductName:      line.Name,
			Barcode:          line.Barcode,
			Quantity:         line.Quantity,
			Weight:           line.Weight,
			RequiresWeighing: line.RequiresWeighing,
			UnitPrice:        line.UnitPrice,
			GrossTotal:       line.GrossTotal,
			Discount:         line.Discount,
			BulkDiscount:     line.BulkDiscount,
			NetTotal:         line.NetTotal,
		})
	}

	return domain.Sale{
		CustomerID:     strings.TrimSpace(req.CustomerID),
		OperatorID:     operator,
		Subtotal:       c.Subtotal,
		Discount:       c.TotalDiscount,
		BulkDiscount:   c.BulkDiscount,
		FinalAmount:    c.FinalTotal,
		PaymentMethod:  req.PaymentMethod,
		AmountReceived: received,
		ChangeAmount:   received.Sub(c.FinalTotal),
		Status:         domain.SaleStatusCompleted,
		Items:          items,
	}
}

func saleProductIDs(items []domain.SaleItem) []string {
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}
