package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"pdv/backend/internal/domain"
	"pdv/backend/internal/ledger"
	"pdv/backend/internal/store"
)

const (
	defaultEntryReason      = "Entrada de estoque"
	defaultAdjustmentReason = "Ajuste de estoque"

	defaultMovementLimit = 50
	maxMovementLimit     = 500
)

// RecordMovement applies an arbitrary stock movement. For adjustments the
// quantity is the target stock level.
func (s *Service) RecordMovement(ctx context.Context, req domain.MovementRequest) (domain.StockMovement, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.StockMovement{}, err
	}
	if !req.MovementType.Valid() {
		return domain.StockMovement{}, fmt.Errorf("%w: unknown movement type %q", store.ErrInvalidTransaction, req.MovementType)
	}
	if req.UnitCost.Valid && req.UnitCost.Decimal.IsNegative() {
		return domain.StockMovement{}, fmt.Errorf("%w: unit cost must not be negative", store.ErrInvalidTransaction)
	}

	return s.record(ctx, domain.MovementCommand{
		ProductID:  strings.TrimSpace(req.ProductID),
		Type:       req.MovementType,
		Quantity:   req.Quantity,
		UnitCost:   req.UnitCost,
		Reason:     strings.TrimSpace(req.Reason),
		Notes:      strings.TrimSpace(req.Notes),
		SupplierID: strings.TrimSpace(req.SupplierID),
		SaleID:     strings.TrimSpace(req.SaleID),
	})
}

// StockEntry receives goods from a supplier.
func (s *Service) StockEntry(ctx context.Context, req domain.StockEntryRequest) (domain.StockMovement, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.StockMovement{}, err
	}
	if req.UnitCost.IsNegative() {
		return domain.StockMovement{}, fmt.Errorf("%w: unit cost must not be negative", store.ErrInvalidTransaction)
	}
	unitCost := decimal.NullDecimal{}
	if req.UnitCost.IsPositive() {
		unitCost = decimal.NewNullDecimal(req.UnitCost.Round(moneyPlaces))
	}

	return s.record(ctx, domain.MovementCommand{
		ProductID:  strings.TrimSpace(req.ProductID),
		Type:       domain.MovementEntry,
		Quantity:   req.Quantity,
		UnitCost:   unitCost,
		Reason:     defaultString(req.Reason, defaultEntryReason),
		Notes:      strings.TrimSpace(req.Notes),
		SupplierID: strings.TrimSpace(req.SupplierID),
	})
}

// StockAdjustment sets a product's stock to an absolute count, typically
// after a physical inventory.
func (s *Service) StockAdjustment(ctx context.Context, req domain.StockAdjustmentRequest) (domain.StockMovement, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.StockMovement{}, err
	}
	return s.record(ctx, domain.MovementCommand{
		ProductID: strings.TrimSpace(req.ProductID),
		Type:      domain.MovementAdjustment,
		Quantity:  req.NewQuantity,
		Reason:    defaultString(req.Reason, defaultAdjustmentReason),
		Notes:     strings.TrimSpace(req.Notes),
	})
}

func (s *Service) record(ctx context.Context, cmd domain.MovementCommand) (domain.StockMovement, error) {
	if cmd.ProductID == "" {
		return domain.StockMovement{}, fmt.Errorf("%w: product_id is required", store.ErrInvalidTransaction)
	}
	if cmd.SupplierID != "" {
		if err := s.checkSupplier(ctx, cmd); err != nil {
			return domain.StockMovement{}, err
		}
	}
	cmd.OperatorID = s.operator(ctx)
	cmd.At = s.now()

	movement, err := s.repo.RecordMovement(ctx, cmd)
	if err != nil {
		return domain.StockMovement{}, err
	}

	s.logAudit(ctx, "stock_movement", "product", movement.ProductID,
		slog.String("movement_id", movement.ID),
		slog.String("movement_type", string(movement.Type)),
		slog.String("quantity", movement.Quantity.String()),
		slog.String("previous_quantity", movement.PreviousQuantity.String()),
		slog.String("new_quantity", movement.NewQuantity.String()),
	)
	s.publish(ctx, "stock.movement", movement.ID, func(ctx context.Context) error {
		return s.publisher.StockMovementRecorded(ctx, *movement)
	})
	if movement.NewQuantity.LessThan(movement.PreviousQuantity) {
		s.notifyLowStock(ctx, movement.ProductID)
	}

	return *movement, nil
}

// checkSupplier validates the supplier reference of goods coming in.
func (s *Service) checkSupplier(ctx context.Context, cmd domain.MovementCommand) error {
	if cmd.Type != domain.MovementEntry && cmd.Type != domain.MovementReturn {
		return fmt.Errorf("%w: supplier only applies to entry and return movements", store.ErrInvalidTransaction)
	}
	supplier, err := s.repo.GetSupplier(ctx, cmd.SupplierID)
	if err != nil {
		return err
	}
	if !supplier.Active {
		return store.Inactivef("supplier %s", supplier.Name)
	}
	return nil
}

func (s *Service) ListMovements(ctx context.Context, filter domain.MovementFilter) (domain.MovementListResponse, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return domain.MovementListResponse{}, fmt.Errorf("%w: unknown movement type %q", store.ErrInvalidTransaction, filter.Type)
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return domain.MovementListResponse{}, fmt.Errorf("%w: from must be before to", store.ErrInvalidTransaction)
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	filter.Limit = clampLimit(filter.Limit, defaultMovementLimit, maxMovementLimit)
	filter.ProductID = strings.TrimSpace(filter.ProductID)

	movements, err := s.repo.ListMovements(ctx, filter)
	if err != nil {
		return domain.MovementListResponse{}, err
	}
	return domain.MovementListResponse{
		Movements: movements,
		Offset:    filter.Offset,
		Limit:     filter.Limit,
	}, nil
}

// LowStockAlerts lists active products at or below their minimum, lowest
// stock first.
func (s *Service) LowStockAlerts(ctx context.Context) ([]domain.LowStockAlert, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	sold, err := s.repo.SumMovements(ctx, domain.MovementExit, s.now().Add(-ledger.SalesWindow))
	if err != nil {
		return nil, err
	}
	return lowStockAlerts(products, sold), nil
}

func lowStockAlerts(products []domain.Product, sold map[string]decimal.Decimal) []domain.LowStockAlert {
	alerts := make([]domain.LowStockAlert, 0)
	for _, product := range products {
		if !ledger.IsLow(product) {
			continue
		}
		alerts = append(alerts, ledger.Alert(product, sold[product.ID]))
	}
	slices.SortStableFunc(alerts, func(a, b domain.LowStockAlert) int {
		if c := a.CurrentQuantity.Cmp(b.CurrentQuantity); c != 0 {
			return c
		}
		return strings.Compare(a.ProductName, b.ProductName)
	})
	return alerts
}

// notifyLowStock publishes an alert for each given product that is now at or
// below its minimum. Lookup failures are logged and skipped.
func (s *Service) notifyLowStock(ctx context.Context, productIDs ...string) {
	var sold map[string]decimal.Decimal
	for _, id := range productIDs {
		product, err := s.repo.GetProductByID(ctx, id)
		if err != nil {
			s.logger.Warn("low stock check failed", slog.String("product_id", id), slog.Any("error", err))
			continue
		}
		if !ledger.IsLow(*product) {
			continue
		}
		if sold == nil {
			sold, err = s.repo.SumMovements(ctx, domain.MovementExit, s.now().Add(-ledger.SalesWindow))
			if err != nil {
				s.logger.Warn("low stock check failed", slog.String("product_id", id), slog.Any("error", err))
				return
			}
		}

		alert := ledger.Alert(*product, sold[product.ID])
		s.logger.Warn("product stock is low",
			slog.String("product_id", alert.ProductID),
			slog.String("current_quantity", alert.CurrentQuantity.String()),
			slog.String("alert_level", string(alert.AlertLevel)),
		)
		s.publish(ctx, "stock.low", alert.ProductID, func(ctx context.Context) error {
			return s.publisher.StockLow(ctx, alert)
		})
	}
}

func (s *Service) Valuation(ctx context.Context) (domain.StockValuation, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return domain.StockValuation{}, err
	}
	return ledger.Valuation(products, s.now()), nil
}

// MovementCounts counts movements per type in [from, to). A zero to means
// now and a zero from means thirty days before to.
func (s *Service) MovementCounts(ctx context.Context, from time.Time, to time.Time) (domain.MovementCounts, error) {
	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() {
		from = to.Add(-ledger.SalesWindow)
	}
	if !from.Before(to) {
		return domain.MovementCounts{}, fmt.Errorf("%w: from must be before to", store.ErrInvalidTransaction)
	}

	counts, err := s.repo.CountMovements(ctx, from, to)
	if err != nil {
		return domain.MovementCounts{}, err
	}
	return movementCounts(from, to, counts), nil
}

func movementCounts(from time.Time, to time.Time, counts map[domain.MovementType]int) domain.MovementCounts {
	result := domain.MovementCounts{
		From:   from,
		To:     to,
		ByType: make(map[domain.MovementType]int, len(domain.MovementTypes)),
	}
	for _, movementType := range domain.MovementTypes {
		result.ByType[movementType] = counts[movementType]
		result.Total += counts[movementType]
	}
	return result
}

// StockReport gathers the per-product stock rows and the summary figures.
// The independent reads run concurrently.
func (s *Service) StockReport(ctx context.Context) (domain.StockReport, error) {
	now := s.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	windowStart := now.Add(-ledger.SalesWindow)

	weekStart := now.AddDate(0, 0, -7)
	end := now.Add(time.Nanosecond)

	var (
		products []domain.Product
		sold     map[string]decimal.Decimal
		today    map[domain.MovementType]int
		week     map[domain.MovementType]int
		exitCost decimal.Decimal
	)
	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		products, err = s.repo.ListProducts(groupCtx)
		return err
	})
	g.Go(func() (err error) {
		sold, err = s.repo.SumMovements(groupCtx, domain.MovementExit, windowStart)
		return err
	})
	g.Go(func() (err error) {
		today, err = s.repo.CountMovements(groupCtx, dayStart, end)
		return err
	})
	g.Go(func() (err error) {
		week, err = s.repo.CountMovements(groupCtx, weekStart, end)
		return err
	})
	g.Go(func() (err error) {
		exitCost, err = s.repo.SumMovementCost(groupCtx, domain.MovementExit, windowStart)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.StockReport{}, err
	}

	report := domain.StockReport{
		Items:       make([]domain.StockReportItem, 0, len(products)),
		GeneratedAt: now,
		Summary: domain.StockReportSummary{
			TotalStockValue:     decimal.Zero,
			TotalMovementsToday: movementCounts(dayStart, end, today).Total,
			TotalMovementsWeek:  movementCounts(weekStart, end, week).Total,
		},
	}
	for _, product := range products {
		if !product.Active {
			continue
		}
		status := ledger.StatusFor(product)
		value := ledger.StockValue(product)
		report.Items = append(report.Items, domain.StockReportItem{
			ProductID:    product.ID,
			ProductName:  product.Name,
			Barcode:      product.Barcode,
			SupplierID:   product.SupplierID,
			CurrentStock: product.StockQuantity,
			MinStock:     product.MinStockLevel,
			MaxStock:     product.MaxStock,
			ReorderPoint: product.ReorderPoint,
			CostPrice:    product.CostPrice,
			SalePrice:    product.Price,
			StockValue:   value,
			Status:       status,
		})

		report.Summary.TotalProducts++
		report.Summary.TotalStockValue = report.Summary.TotalStockValue.Add(value)
		switch status {
		case domain.StockOutOfStock:
			report.Summary.OutOfStockItems++
		case domain.StockLow:
			report.Summary.LowStockItems++
		case domain.StockOverstock:
			report.Summary.OverstockedItems++
		}
	}
	report.Summary.Turnover30Days = ledger.Turnover(exitCost, report.Summary.TotalStockValue)
	report.Alerts = lowStockAlerts(products, sold)

	return report, nil
}
