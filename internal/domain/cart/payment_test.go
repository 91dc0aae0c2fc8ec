package cart

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caixa/internal/core/apperror"
	"caixa/internal/core/types"
)

func TestNewCashPayment_Change(t *testing.T) {
	p := NewCashPayment(types.MustMoney("50.00"), types.MustMoney("42.30"))

	require.Equal(t, PaymentCash, p.Kind)
	require.NotNil(t, p.Cash)
	assert.True(t, p.Cash.Change.Equal(types.MustMoney("7.70")), "change %s", p.Cash.Change)
	assert.NoError(t, p.Validate(types.MustMoney("42.30")))
}

func TestPayment_Validate_Cash(t *testing.T) {
	total := types.MustMoney("42.30")

	short := NewCashPayment(types.MustMoney("40.00"), total)
	err := short.Validate(total)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))

	wrongChange := Payment{
		Kind: PaymentCash,
		Cash: &CashPayment{
			Tendered: types.MustMoney("50.00"),
			Change:   types.MustMoney("5.00"),
		},
	}
	err = wrongChange.Validate(total)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestPayment_Validate_Mixed(t *testing.T) {
	total := types.MustMoney("100.00")

	ok := Payment{
		Kind: PaymentMixed,
		Mixed: &MixedPayment{Allocations: []Allocation{
			{Method: MethodCash, Amount: types.MustMoney("40.00")},
			{Method: MethodCreditCard, Amount: types.MustMoney("60.00"), Installments: 3},
		}},
	}
	assert.NoError(t, ok.Validate(total))

	short := Payment{
		Kind: PaymentMixed,
		Mixed: &MixedPayment{Allocations: []Allocation{
			{Method: MethodCash, Amount: types.MustMoney("40.00")},
		}},
	}
	err := short.Validate(total)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))

	empty := Payment{Kind: PaymentMixed, Mixed: &MixedPayment{}}
	assert.Error(t, empty.Validate(total))
}

func TestPayment_Validate_Installment(t *testing.T) {
	p := Payment{
		Kind: PaymentInstallment,
		Installment: &InstallmentPayment{
			Method:         MethodCreditCard,
			Installments:   3,
			PerInstallment: types.MustMoney("33.34"),
		},
	}
	assert.NoError(t, p.Validate(types.MustMoney("100.00")))

	p.Installment.Installments = 0
	assert.Error(t, p.Validate(types.MustMoney("100.00")))
}

func TestPayment_JSONEnvelope(t *testing.T) {
	p := Payment{
		Kind: PaymentMixed,
		Mixed: &MixedPayment{Allocations: []Allocation{
			{Method: MethodPix, Amount: types.MustMoney("25.00")},
			{Method: MethodDebitCard, Amount: types.MustMoney("75.00")},
		}},
	}

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"mixed"`)

	var decoded Payment
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, PaymentMixed, decoded.Kind)
	require.NotNil(t, decoded.Mixed)
	require.Len(t, decoded.Mixed.Allocations, 2)
	assert.Equal(t, MethodPix, decoded.Mixed.Allocations[0].Method)
	assert.True(t, decoded.Mixed.Allocations[1].Amount.Equal(types.MustMoney("75.00")))

	var bad Payment
	err = json.Unmarshal([]byte(`{"kind":"barter"}`), &bad)
	assert.Error(t, err)
}
