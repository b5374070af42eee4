package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"pdv/backend/internal/domain"
	"pdv/backend/internal/store"
)

func d(raw string) decimal.Decimal {
	return decimal.RequireFromString(raw)
}

func productWithStock(stock string) domain.Product {
	return domain.Product{ID: "p-1", Name: "Arroz 5kg", StockQuantity: d(stock), Active: true}
}

func TestApplyEntryAndReturnAdd(t *testing.T) {
	for _, movementType := range []domain.MovementType{domain.MovementEntry, domain.MovementReturn} {
		result, err := Apply(productWithStock("10"), movementType, d("4"))
		require.NoError(t, err)
		require.True(t, result.Quantity.Equal(d("4")))
		require.True(t, result.NewQuantity.Equal(d("14")), "%s new quantity %s", movementType, result.NewQuantity)
	}
}

func TestApplyExitRejectsBelowZero(t *testing.T) {
	for _, movementType := range []domain.MovementType{domain.MovementExit, domain.MovementLoss, domain.MovementTransfer} {
		_, err := Apply(productWithStock("3"), movementType, d("5"))
		require.Error(t, err)
		require.True(t, errors.Is(err, store.ErrInsufficientStock), "%s: %v", movementType, err)

		var stockErr *store.StockError
		require.True(t, errors.As(err, &stockErr))
		require.Equal(t, "p-1", stockErr.ProductID)
		require.True(t, stockErr.Requested.Equal(d("5")))
		require.True(t, stockErr.Available.Equal(d("3")))
	}
}

func TestApplyExitToExactlyZero(t *testing.T) {
	result, err := Apply(productWithStock("2.5"), domain.MovementExit, d("2.5"))
	require.NoError(t, err)
	require.True(t, result.NewQuantity.IsZero())
}

func TestApplyAdjustmentStoresSignedDelta(t *testing.T) {
	result, err := Apply(productWithStock("10"), domain.MovementAdjustment, d("7"))
	require.NoError(t, err)
	require.True(t, result.Quantity.Equal(d("-3")), "quantity %s", result.Quantity)
	require.True(t, result.NewQuantity.Equal(d("7")))

	result, err = Apply(productWithStock("10"), domain.MovementAdjustment, d("12"))
	require.NoError(t, err)
	require.True(t, result.Quantity.Equal(d("2")))

	_, err = Apply(productWithStock("10"), domain.MovementAdjustment, d("-1"))
	require.ErrorIs(t, err, store.ErrInvalidQuantity)
}

func TestApplyRejectsNonPositiveQuantities(t *testing.T) {
	_, err := Apply(productWithStock("10"), domain.MovementEntry, decimal.Zero)
	require.ErrorIs(t, err, store.ErrInvalidQuantity)

	_, err = Apply(productWithStock("10"), domain.MovementExit, d("-2"))
	require.ErrorIs(t, err, store.ErrInvalidQuantity)

	_, err = Apply(productWithStock("10"), domain.MovementType("teleport"), d("1"))
	require.ErrorIs(t, err, store.ErrInvalidTransaction)
}

func TestBuildComputesTotalCostFromAbsoluteQuantity(t *testing.T) {
	cmd := domain.MovementCommand{
		ProductID: "p-1",
		Type:      domain.MovementAdjustment,
		Quantity:  d("7"),
		UnitCost:  decimal.NewNullDecimal(d("2.50")),
	}
	result, err := Apply(productWithStock("10"), cmd.Type, cmd.Quantity)
	require.NoError(t, err)

	movement := Build("mov-1", cmd, d("10"), result)
	require.True(t, movement.TotalCost.Valid)
	require.True(t, movement.TotalCost.Decimal.Equal(d("7.50")))
	require.True(t, movement.PreviousQuantity.Equal(d("10")))
	require.True(t, movement.NewQuantity.Equal(d("7")))

	require.False(t, TotalCost(decimal.NullDecimal{}, d("3")).Valid)
}

func TestStampSetsPurchaseAndSaleTimestamps(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	product := productWithStock("1")

	Stamp(&product, domain.MovementEntry, at)
	require.NotNil(t, product.LastPurchaseAt)
	require.Nil(t, product.LastSaleAt)

	Stamp(&product, domain.MovementExit, at.Add(time.Hour))
	require.NotNil(t, product.LastSaleAt)
	require.Equal(t, at.Add(time.Hour), *product.LastSaleAt)

	Stamp(&product, domain.MovementLoss, at.Add(2*time.Hour))
	require.Equal(t, at.Add(time.Hour), *product.LastSaleAt)
}

func TestAlertLevels(t *testing.T) {
	product := productWithStock("0")
	product.MinStockLevel = d("10")
	require.Equal(t, domain.AlertCritical, AlertLevelFor(product))

	product.StockQuantity = d("5")
	require.Equal(t, domain.AlertCritical, AlertLevelFor(product))

	product.StockQuantity = d("6")
	require.Equal(t, domain.AlertWarning, AlertLevelFor(product))
	require.True(t, IsLow(product))

	product.StockQuantity = d("11")
	require.False(t, IsLow(product))
}

func TestDepletionDays(t *testing.T) {
	require.Equal(t, 0, *DepletionDays(decimal.Zero, d("30")))
	require.Nil(t, DepletionDays(d("5"), decimal.Zero))

	days := DepletionDays(d("10"), d("60"))
	require.NotNil(t, days)
	require.Equal(t, 5, *days)

	days = DepletionDays(d("10"), d("45"))
	require.Equal(t, 6, *days)
}

func TestStatusFor(t *testing.T) {
	product := productWithStock("0")
	product.MinStockLevel = d("5")
	require.Equal(t, domain.StockOutOfStock, StatusFor(product))

	product.StockQuantity = d("5")
	require.Equal(t, domain.StockLow, StatusFor(product))

	product.StockQuantity = d("50")
	product.MaxStock = decimal.NewNullDecimal(d("40"))
	require.Equal(t, domain.StockOverstock, StatusFor(product))

	product.StockQuantity = d("20")
	require.Equal(t, domain.StockOK, StatusFor(product))
}

func TestValuationSkipsUnknownCost(t *testing.T) {
	withCost := productWithStock("10")
	withCost.Price = d("5.00")
	withCost.CostPrice = decimal.NewNullDecimal(d("3.20"))

	withoutCost := productWithStock("4")
	withoutCost.ID = "p-2"
	withoutCost.Price = d("2.00")

	inactive := productWithStock("100")
	inactive.ID = "p-3"
	inactive.Active = false
	inactive.CostPrice = decimal.NewNullDecimal(d("1"))

	valuation := Valuation([]domain.Product{withCost, withoutCost, inactive}, time.Now())
	require.Equal(t, 2, valuation.TotalProducts)
	require.Equal(t, 1, valuation.ValuedProducts)
	require.True(t, valuation.TotalStockValue.Equal(d("32.00")), "value %s", valuation.TotalStockValue)
	require.True(t, valuation.TotalRetailValue.Equal(d("58.00")))
	require.True(t, valuation.PotentialMargin.Equal(d("18.00")))
}

func TestTurnover(t *testing.T) {
	require.True(t, Turnover(d("50"), d("200")).Equal(d("0.25")))
	require.True(t, Turnover(d("50"), decimal.Zero).IsZero())
}
