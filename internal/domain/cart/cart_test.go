package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caixa/internal/core/apperror"
	"caixa/internal/core/id"
	"caixa/internal/core/types"
)

func line(qty int64, price string) Line {
	productID := id.New()
	return Line{
		LineKey:   id.New(),
		ProductID: &productID,
		Quantity:  types.NewQuantityFromInt(qty),
		UnitPrice: types.MustMoney(price),
	}
}

func TestAggregate_EmptyCart(t *testing.T) {
	_, err := Aggregate(Cart{})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestAggregate_Totals(t *testing.T) {
	l1 := line(2, "10.00") // 20.00
	l2 := line(1, "5.50")  // 5.50
	l2.Discount = types.MustMoney("0.50") // 5.00
	l3 := line(3, "1.00") // 3.00
	l3.Addition = types.MustMoney("0.30") // 3.30

	totals, err := Aggregate(Cart{
		Lines:         []Line{l1, l2, l3},
		OrderDiscount: types.MustMoney("2.00"),
	})
	require.NoError(t, err)

	assert.True(t, totals.Subtotal.Equal(types.MustMoney("28.30")), "subtotal %s", totals.Subtotal)
	assert.True(t, totals.ItemDiscountTotal.Equal(types.MustMoney("0.50")))
	assert.True(t, totals.OrderDiscountTotal.Equal(types.MustMoney("2.00")))
	assert.True(t, totals.GrandTotal.Equal(types.MustMoney("26.30")), "grand %s", totals.GrandTotal)
	assert.Equal(t, AdjustmentDiscount, totals.AdjustmentKind)
	assert.True(t, totals.AdjustmentAmount.IsZero())
}

func TestAggregate_FractionalQuantity(t *testing.T) {
	l := Line{
		LineKey:     id.New(),
		Description: "cheese by weight",
		Quantity:    types.NewQuantityFromFloat64(0.25),
		UnitPrice:   types.MustMoney("40.00"),
	}

	totals, err := Aggregate(Cart{Lines: []Line{l}})
	require.NoError(t, err)
	assert.True(t, totals.GrandTotal.Equal(types.MustMoney("10.00")), "grand %s", totals.GrandTotal)
}

func TestAggregate_TermAdjustment(t *testing.T) {
	tests := []struct {
		name       string
		adjustment string
		wantKind   AdjustmentKind
		wantAmount string
		wantGrand  string
	}{
		{"discount", "1.50", AdjustmentDiscount, "1.50", "18.50"},
		{"surcharge", "-1.50", AdjustmentSurcharge, "1.50", "21.50"},
		{"none", "0", AdjustmentDiscount, "0", "20.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			totals, err := Aggregate(Cart{
				Lines:          []Line{line(2, "10.00")},
				TermAdjustment: types.MustMoney(tt.adjustment),
			})
			require.NoError(t, err)

			assert.Equal(t, tt.wantKind, totals.AdjustmentKind)
			assert.True(t, totals.AdjustmentAmount.Equal(types.MustMoney(tt.wantAmount)),
				"amount %s", totals.AdjustmentAmount)
			assert.False(t, totals.AdjustmentAmount.IsNegative(),
				"persisted magnitude must be non-negative")
			assert.True(t, totals.GrandTotal.Equal(types.MustMoney(tt.wantGrand)),
				"grand %s", totals.GrandTotal)
		})
	}
}

func TestAggregate_LineValidation(t *testing.T) {
	valid := line(1, "10.00")

	zeroQty := line(0, "10.00")

	negativePrice := line(1, "-1.00")

	noKey := line(1, "10.00")
	noKey.LineKey = id.Nil()

	overDiscounted := line(1, "10.00")
	overDiscounted.Discount = types.MustMoney("15.00")

	productless := Line{
		LineKey:   id.New(),
		Quantity:  types.NewQuantityFromInt(1),
		UnitPrice: types.MustMoney("10.00"),
	}

	tests := []struct {
		name string
		cart Cart
	}{
		{"zero quantity", Cart{Lines: []Line{valid, zeroQty}}},
		{"negative price", Cart{Lines: []Line{negativePrice}}},
		{"missing line key", Cart{Lines: []Line{noKey}}},
		{"discount exceeds line", Cart{Lines: []Line{overDiscounted}}},
		{"productless without description", Cart{Lines: []Line{productless}}},
		{"order discount exceeds subtotal", Cart{
			Lines:         []Line{valid},
			OrderDiscount: types.MustMoney("100.00"),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Aggregate(tt.cart)
			require.Error(t, err)
			assert.True(t, apperror.IsCode(err, apperror.CodeValidation), "got %v", err)
		})
	}
}

func TestAggregate_DuplicateLineKeys(t *testing.T) {
	l1 := line(1, "10.00")
	l2 := line(2, "5.00")
	l2.LineKey = l1.LineKey

	_, err := Aggregate(Cart{Lines: []Line{l1, l2}})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation), "got %v", err)

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, l1.LineKey.String(), appErr.Details["lineKey"])
}
