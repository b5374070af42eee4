package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pdv/backend/internal/domain"
	"pdv/backend/internal/store"
)

const (
	defaultSaleLimit = 50
	maxSaleLimit     = 200
)

func (s *Service) GetSale(ctx context.Context, saleID string) (domain.Sale, error) {
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.Sale{}, fmt.Errorf("%w: sale id is required", store.ErrInvalidTransaction)
	}
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

// ListSales returns sale headers newest first.
func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.SaleListItem, error) {
	if filter.Status != "" {
		switch filter.Status {
		case domain.SaleStatusPending, domain.SaleStatusCompleted, domain.SaleStatusCancelled:
		default:
			return nil, fmt.Errorf("%w: unknown sale status %q", store.ErrInvalidTransaction, filter.Status)
		}
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return nil, fmt.Errorf("%w: from must be before to", store.ErrInvalidTransaction)
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	filter.Limit = clampLimit(filter.Limit, defaultSaleLimit, maxSaleLimit)

	sales, err := s.repo.ListSales(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := make([]domain.SaleListItem, 0, len(sales))
	for _, sale := range sales {
		items = append(items, domain.SaleListItem{
			ID:            sale.ID,
			FinalAmount:   sale.FinalAmount,
			PaymentMethod: sale.PaymentMethod,
			Status:        sale.Status,
			TotalItems:    len(sale.Items),
			OperatorID:    sale.OperatorID,
			CreatedAt:     sale.CreatedAt,
		})
	}
	return items, nil
}

// SalesSummary aggregates completed sales in [from, to). Either bound may
// be nil.
func (s *Service) SalesSummary(ctx context.Context, from *time.Time, to *time.Time) (domain.SalesSummary, error) {
	if from != nil && to != nil && !from.Before(*to) {
		return domain.SalesSummary{}, fmt.Errorf("%w: from must be before to", store.ErrInvalidTransaction)
	}

	sales, err := s.repo.ListSales(ctx, domain.SaleFilter{
		From:   from,
		To:     to,
		Status: domain.SaleStatusCompleted,
	})
	if err != nil {
		return domain.SalesSummary{}, err
	}

	summary := domain.SalesSummary{
		From:          from,
		To:            to,
		TotalSales:    len(sales),
		TotalRevenue:  decimal.Zero,
		TotalItems:    decimal.Zero,
		TotalDiscount: decimal.Zero,
		AverageTicket: decimal.Zero,
	}
	for _, sale := range sales {
		summary.TotalRevenue = summary.TotalRevenue.Add(sale.FinalAmount)
		summary.TotalDiscount = summary.TotalDiscount.Add(sale.Discount).Add(sale.BulkDiscount)
		for _, item := range sale.Items {
			summary.TotalItems = summary.TotalItems.Add(item.EffectiveQuantity())
		}
	}
	if summary.TotalSales > 0 {
		summary.AverageTicket = summary.TotalRevenue.Div(decimal.NewFromInt(int64(summary.TotalSales))).Round(moneyPlaces)
	}
	return summary, nil
}
