package cart

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"pdv/backend/internal/domain"
)

func d(raw string) decimal.Decimal {
	return decimal.RequireFromString(raw)
}

func soda() domain.Product {
	return domain.Product{
		ID:                     "p-soda",
		Barcode:                "7891000100103",
		Name:                   "Refrigerante 2L",
		Price:                  d("8.50"),
		StockQuantity:          d("100"),
		BulkDiscountEnabled:    true,
		BulkMinQuantity:        d("6"),
		BulkDiscountPercentage: d("5"),
		Active:                 true,
	}
}

func cheese() domain.Product {
	return domain.Product{
		ID:               "p-cheese",
		Barcode:          "2000000000017",
		Name:             "Queijo Minas",
		Price:            d("32.90"),
		StockQuantity:    d("10"),
		RequiresWeighing: true,
		Active:           true,
	}
}

func TestAddMergesRepeatedScan(t *testing.T) {
	c := New("kasir1")
	Add(&c, soda(), d("1"), decimal.NullDecimal{})
	Add(&c, soda(), d("2"), decimal.NullDecimal{})

	require.Len(t, c.Items, 1)
	require.True(t, c.Items[0].Quantity.Equal(d("3")))
	require.True(t, c.Items[0].GrossTotal.Equal(d("25.50")))
	require.Equal(t, 1, c.TotalItems)
	require.True(t, c.TotalQuantity.Equal(d("3")))
}

func TestAddCrossesBulkThresholdOnMerge(t *testing.T) {
	c := New("kasir1")
	Add(&c, soda(), d("5"), decimal.NullDecimal{})
	require.True(t, c.BulkDiscount.IsZero())

	Add(&c, soda(), d("1"), decimal.NullDecimal{})
	require.True(t, c.BulkDiscount.Equal(d("2.55")), "bulk %s", c.BulkDiscount)
	require.True(t, c.FinalTotal.Equal(d("48.45")), "final %s", c.FinalTotal)
	require.True(t, c.Items[0].HasPromotion)
	require.Equal(t, "6+ unidades = 5% OFF", c.Items[0].PromotionDescription)
}

func TestAddMergesWeightForWeighedProducts(t *testing.T) {
	c := New("kasir1")
	Add(&c, cheese(), d("1"), decimal.NewNullDecimal(d("0.25")))
	Add(&c, cheese(), d("1"), decimal.NewNullDecimal(d("0.25")))

	require.Len(t, c.Items, 1)
	require.True(t, c.Items[0].Weight.Valid)
	require.True(t, c.Items[0].Weight.Decimal.Equal(d("0.5")))
	require.True(t, c.Items[0].GrossTotal.Equal(d("16.45")), "gross %s", c.Items[0].GrossTotal)
	require.True(t, c.Items[0].EffectiveQuantity().Equal(d("0.5")))
}

func TestRecalculateIsIdempotent(t *testing.T) {
	c := New("kasir1")
	Add(&c, soda(), d("6"), decimal.NullDecimal{})
	Add(&c, cheese(), d("1"), decimal.NewNullDecimal(d("0.5")))

	Recalculate(&c)
	first := c.Clone()
	Recalculate(&c)

	require.Equal(t, first.TotalItems, c.TotalItems)
	require.True(t, first.Subtotal.Equal(c.Subtotal))
	require.True(t, first.BulkDiscount.Equal(c.BulkDiscount))
	require.True(t, first.FinalTotal.Equal(c.FinalTotal))
	require.True(t, first.TotalQuantity.Equal(c.TotalQuantity))
	require.True(t, c.Subtotal.Equal(d("67.45")), "subtotal %s", c.Subtotal)
	require.True(t, c.FinalTotal.Equal(d("64.90")), "final %s", c.FinalTotal)
}

func TestUpdateRepricesLine(t *testing.T) {
	c := New("kasir1")
	Add(&c, soda(), d("2"), decimal.NullDecimal{})

	qty := d("6")
	require.True(t, Update(&c, soda(), &qty, nil))
	require.True(t, c.Items[0].BulkDiscount.Equal(d("2.55")))
	require.True(t, c.FinalTotal.Equal(d("48.45")))
}

func TestUpdateKeepsWeightOnlyForWeighedProducts(t *testing.T) {
	c := New("kasir1")
	Add(&c, soda(), d("2"), decimal.NullDecimal{})
	Add(&c, cheese(), d("1"), decimal.NewNullDecimal(d("0.5")))

	weight := d("0.75")
	require.True(t, Update(&c, soda(), nil, &weight))
	require.False(t, c.Items[0].Weight.Valid)
	require.True(t, c.Items[0].NetTotal.Equal(d("17.00")), "total %s", c.Items[0].NetTotal)

	require.True(t, Update(&c, cheese(), nil, &weight))
	require.True(t, c.Items[1].Weight.Valid)
	require.True(t, c.Items[1].Weight.Decimal.Equal(d("0.75")))
}

func TestUpdateAndRemoveUnknownProductAreNoOps(t *testing.T) {
	c := New("kasir1")
	Add(&c, soda(), d("2"), decimal.NullDecimal{})
	before := c.Clone()

	qty := d("9")
	require.False(t, Update(&c, cheese(), &qty, nil))
	require.False(t, Remove(&c, "p-missing"))
	require.Equal(t, before.Items, c.Items)
	require.True(t, before.FinalTotal.Equal(c.FinalTotal))
}

func TestRemoveAndClear(t *testing.T) {
	c := New("kasir1")
	Add(&c, soda(), d("2"), decimal.NullDecimal{})
	Add(&c, cheese(), d("1"), decimal.NewNullDecimal(d("0.5")))

	require.True(t, Remove(&c, "p-soda"))
	require.Len(t, c.Items, 1)
	require.True(t, c.FinalTotal.Equal(d("16.45")))

	Clear(&c)
	require.Empty(t, c.Items)
	require.True(t, c.FinalTotal.IsZero())
	require.Equal(t, 0, c.TotalItems)
}

func TestOperatorKeyDefaultsToAnonymous(t *testing.T) {
	require.Equal(t, AnonymousOperator, OperatorKey(""))
	require.Equal(t, "kasir1", OperatorKey("kasir1"))
	require.Equal(t, AnonymousOperator, New("").OperatorID)
}
