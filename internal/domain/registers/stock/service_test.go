package stock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caixa/internal/core/apperror"
	"caixa/internal/core/entity"
	"caixa/internal/core/id"
	"caixa/internal/core/types"
	"caixa/internal/domain/catalogs/product"
)

type fakeRepo struct {
	movements []entity.StockMovement
	balances  map[id.ID]entity.StockBalance

	applyErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{balances: make(map[id.ID]entity.StockBalance)}
}

func (r *fakeRepo) ApplyMovements(ctx context.Context, movements []entity.StockMovement) error {
	if r.applyErr != nil {
		return r.applyErr
	}
	r.movements = append(r.movements, movements...)
	for _, m := range movements {
		b := r.balances[m.ProductID]
		b.ProductID = m.ProductID
		b.Quantity += m.SignedQuantity()
		if b.Quantity < 0 {
			b.Quantity = 0
		}
		r.balances[m.ProductID] = b
	}
	return nil
}

func (r *fakeRepo) GetMovementsByRecorder(ctx context.Context, recorderID id.ID) ([]entity.StockMovement, error) {
	var out []entity.StockMovement
	for _, m := range r.movements {
		if m.RecorderID == recorderID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeRepo) GetBalance(ctx context.Context, productID id.ID) (entity.StockBalance, error) {
	b, ok := r.balances[productID]
	if !ok {
		return entity.StockBalance{}, apperror.NewNotFound("stock balance", productID.String())
	}
	return b, nil
}

func (r *fakeRepo) GetBalances(ctx context.Context, filter BalanceFilter) ([]entity.StockBalance, error) {
	var out []entity.StockBalance
	for _, b := range r.balances {
		out = append(out, b)
	}
	return out, nil
}

func (r *fakeRepo) GetMovementHistory(ctx context.Context, productID id.ID, filter MovementFilter) ([]entity.StockMovement, error) {
	var out []entity.StockMovement
	for _, m := range r.movements {
		if m.ProductID == productID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeRepo) RecalculateBalances(ctx context.Context, productID *id.ID) error {
	return nil
}

type fakeProducts struct {
	products map[id.ID]*product.Product
	recipes  map[id.ID][]product.RecipeItem
}

func newFakeProducts() *fakeProducts {
	return &fakeProducts{
		products: make(map[id.ID]*product.Product),
		recipes:  make(map[id.ID][]product.RecipeItem),
	}
}

func (f *fakeProducts) GetByID(ctx context.Context, productID id.ID) (*product.Product, error) {
	p, ok := f.products[productID]
	if !ok {
		return nil, apperror.NewNotFound("product", productID.String())
	}
	return p, nil
}

func (f *fakeProducts) GetRecipe(ctx context.Context, productID id.ID) ([]product.RecipeItem, error) {
	return f.recipes[productID], nil
}

func (f *fakeProducts) addGoods(name string) *product.Product {
	p := product.NewProduct("P-"+name, name, product.KindGoods)
	p.TracksStock = true
	f.products[p.ID] = p
	return p
}

func TestApplySale_DirectSale(t *testing.T) {
	repo := newFakeRepo()
	products := newFakeProducts()
	svc := NewService(repo, products)

	p := products.addGoods("soda")
	saleID := id.New()
	itemID := id.New()

	warnings := svc.ApplySale(context.Background(), saleID, time.Now(), []SaleLine{
		{SaleItemID: itemID, ProductID: &p.ID, Quantity: types.NewQuantityFromInt(3)},
	})

	assert.Empty(t, warnings)
	require.Len(t, repo.movements, 1)
	m := repo.movements[0]
	assert.Equal(t, entity.MovementDirectSale, m.Kind)
	assert.Equal(t, entity.RecordTypeExpense, m.RecordType)
	assert.Equal(t, p.ID, m.ProductID)
	assert.Equal(t, types.NewQuantityFromInt(3), m.Quantity)
	require.NotNil(t, m.SaleItemID)
	assert.Equal(t, itemID, *m.SaleItemID)
}

func TestApplySale_RecipeBreakdown(t *testing.T) {
	repo := newFakeRepo()
	products := newFakeProducts()
	svc := NewService(repo, products)

	bun := products.addGoods("bun")
	patty := products.addGoods("patty")

	burger := product.NewProduct("P-burger", "burger", product.KindGoods)
	burger.HasRecipe = true
	products.products[burger.ID] = burger
	products.recipes[burger.ID] = []product.RecipeItem{
		{ProductID: burger.ID, IngredientID: bun.ID, Quantity: types.NewQuantityFromInt(2)},
		{ProductID: burger.ID, IngredientID: patty.ID, Quantity: types.NewQuantityFromInt(1)},
	}

	saleID := id.New()
	warnings := svc.ApplySale(context.Background(), saleID, time.Now(), []SaleLine{
		{SaleItemID: id.New(), ProductID: &burger.ID, Quantity: types.NewQuantityFromInt(2)},
	})

	assert.Empty(t, warnings)
	require.Len(t, repo.movements, 2)

	byProduct := map[id.ID]entity.StockMovement{}
	for _, m := range repo.movements {
		assert.Equal(t, entity.MovementRecipeConsumption, m.Kind)
		byProduct[m.ProductID] = m
	}
	assert.Equal(t, types.NewQuantityFromInt(4), byProduct[bun.ID].Quantity, "2 buns x 2 burgers")
	assert.Equal(t, types.NewQuantityFromInt(1*2), byProduct[patty.ID].Quantity)

	_, burgerTouched := byProduct[burger.ID]
	assert.False(t, burgerTouched, "recipe product's own stock is not decremented")
}

func TestApplySale_FractionalRecipe(t *testing.T) {
	repo := newFakeRepo()
	products := newFakeProducts()
	svc := NewService(repo, products)

	flour := products.addGoods("flour")

	cake := product.NewProduct("P-cake", "cake", product.KindGoods)
	cake.HasRecipe = true
	products.products[cake.ID] = cake
	products.recipes[cake.ID] = []product.RecipeItem{
		{ProductID: cake.ID, IngredientID: flour.ID, Quantity: types.NewQuantityFromFloat64(0.25)},
	}

	warnings := svc.ApplySale(context.Background(), id.New(), time.Now(), []SaleLine{
		{SaleItemID: id.New(), ProductID: &cake.ID, Quantity: types.NewQuantityFromInt(3)},
	})

	assert.Empty(t, warnings)
	require.Len(t, repo.movements, 1)
	assert.Equal(t, types.NewQuantityFromFloat64(0.75), repo.movements[0].Quantity)
}

func TestApplySale_SkipsServicesAndProductless(t *testing.T) {
	repo := newFakeRepo()
	products := newFakeProducts()
	svc := NewService(repo, products)

	service := product.NewProduct("S-1", "delivery", product.KindService)
	products.products[service.ID] = service

	warnings := svc.ApplySale(context.Background(), id.New(), time.Now(), []SaleLine{
		{SaleItemID: id.New(), ProductID: nil, Quantity: types.NewQuantityFromInt(1)},
		{SaleItemID: id.New(), ProductID: &service.ID, Quantity: types.NewQuantityFromInt(1)},
	})

	assert.Empty(t, warnings)
	assert.Empty(t, repo.movements)
}

func TestApplySale_Idempotent(t *testing.T) {
	repo := newFakeRepo()
	products := newFakeProducts()
	svc := NewService(repo, products)

	p := products.addGoods("soda")
	saleID := id.New()
	lines := []SaleLine{
		{SaleItemID: id.New(), ProductID: &p.ID, Quantity: types.NewQuantityFromInt(2)},
	}

	svc.ApplySale(context.Background(), saleID, time.Now(), lines)
	svc.ApplySale(context.Background(), saleID, time.Now(), lines)

	assert.Len(t, repo.movements, 1, "re-applying the same sale must not duplicate movements")
	assert.Equal(t, types.Quantity(0), repo.balances[p.ID].Quantity,
		"balance decremented once and floored at zero")
}

func TestApplySale_FailuresAreNonFatal(t *testing.T) {
	repo := newFakeRepo()
	repo.applyErr = errors.New("disk on fire")
	products := newFakeProducts()
	svc := NewService(repo, products)

	p := products.addGoods("soda")
	missing := id.New()

	warnings := svc.ApplySale(context.Background(), id.New(), time.Now(), []SaleLine{
		{SaleItemID: id.New(), ProductID: &missing, Quantity: types.NewQuantityFromInt(1)},
		{SaleItemID: id.New(), ProductID: &p.ID, Quantity: types.NewQuantityFromInt(1)},
	})

	// Missing product and failed write both surface as warnings only.
	require.Len(t, warnings, 2)
	assert.Empty(t, repo.movements)
}

func TestApplyReturn_CreditsOwnProduct(t *testing.T) {
	repo := newFakeRepo()
	products := newFakeProducts()
	svc := NewService(repo, products)

	bun := products.addGoods("bun")

	burger := product.NewProduct("P-burger", "burger", product.KindGoods)
	burger.HasRecipe = true
	products.products[burger.ID] = burger
	products.recipes[burger.ID] = []product.RecipeItem{
		{ProductID: burger.ID, IngredientID: bun.ID, Quantity: types.NewQuantityFromInt(2)},
	}

	returnID := id.New()
	warnings := svc.ApplyReturn(context.Background(), returnID, time.Now(), []ReturnLine{
		{ReturnItemID: id.New(), ProductID: burger.ID, Quantity: types.NewQuantityFromInt(1)},
	})

	assert.Empty(t, warnings)
	require.Len(t, repo.movements, 1)
	m := repo.movements[0]
	assert.Equal(t, entity.MovementReturnCredit, m.Kind)
	assert.Equal(t, entity.RecordTypeReceipt, m.RecordType)
	assert.Equal(t, burger.ID, m.ProductID, "credit targets the finished product, never ingredients")
	assert.Equal(t, types.NewQuantityFromInt(1), repo.balances[burger.ID].Quantity)
	assert.Equal(t, types.Quantity(0), repo.balances[bun.ID].Quantity)
}

func TestCheckAvailability(t *testing.T) {
	repo := newFakeRepo()
	products := newFakeProducts()
	svc := NewService(repo, products)

	p := products.addGoods("soda")
	repo.balances[p.ID] = entity.StockBalance{ProductID: p.ID, Quantity: types.NewQuantityFromInt(2)}

	err := svc.CheckAvailability(context.Background(), []SaleLine{
		{ProductID: &p.ID, Quantity: types.NewQuantityFromInt(2)},
	})
	assert.NoError(t, err)

	err = svc.CheckAvailability(context.Background(), []SaleLine{
		{ProductID: &p.ID, Quantity: types.NewQuantityFromInt(3)},
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInsufficientStock))
}
