package numerator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caixa/internal/core/apperror"
	"caixa/internal/core/id"
)

// Mock objects
type mockRow struct {
	val int64
	err error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*int64); ok {
			*ptr = m.val
		}
	}
	return nil
}

// mockQuerier simulates a sequence row: every call increments the stored
// value by the increment argument (or 1 when the query carries none).
type mockQuerier struct {
	mu           sync.Mutex
	currentValue int64
	noRow        bool
	calls        int
}

func (m *mockQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.noRow {
		return &mockRow{err: pgx.ErrNoRows}
	}

	var increment int64 = 1
	// Cached strategy passes (key string, increment int64).
	if len(args) == 2 {
		if val, ok := args[1].(int64); ok {
			increment = val
		}
	}

	m.currentValue += increment
	return &mockRow{val: m.currentValue}
}

func TestReservoir_Reserve_Sequential(t *testing.T) {
	q := &mockQuerier{}
	res := NewReservoir(q)
	ctx := context.Background()
	companyID := id.New()

	first, err := res.Reserve(ctx, companyID, 1, 65)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)

	second, err := res.Reserve(ctx, companyID, 1, 65)
	require.NoError(t, err)
	assert.Equal(t, int64(2), second)
}

func TestReservoir_Reserve_MissingSeries(t *testing.T) {
	q := &mockQuerier{noRow: true}
	res := NewReservoir(q)

	_, err := res.Reserve(context.Background(), id.New(), 7, 65)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeConfiguration),
		"missing sequence row must surface as a configuration error, got %v", err)
}

func TestReservoir_Reserve_ConcurrentDistinct(t *testing.T) {
	q := &mockQuerier{}
	res := NewReservoir(q)
	companyID := id.New()

	const workers = 20
	results := make(chan int64, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			num, err := res.Reserve(context.Background(), companyID, 1, 65)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			results <- num
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]bool, workers)
	for num := range results {
		assert.False(t, seen[num], "number %d reserved twice", num)
		seen[num] = true
	}

	// Contiguous block: no gaps between the numbers handed out.
	require.Len(t, seen, workers)
	for n := int64(1); n <= workers; n++ {
		assert.True(t, seen[n], "number %d missing from reserved block", n)
	}
}

func TestGetNextNumber_Strict(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	ctx := context.Background()
	cfg := DefaultConfig("RET")
	year := time.Now().Year()

	num, err := svc.GetNextNumber(ctx, cfg, nil, time.Now())
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("RET-%d-00001", year), num)

	num, err = svc.GetNextNumber(ctx, cfg, nil, time.Now())
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("RET-%d-00002", year), num)
}

func TestGetNextNumber_Cached(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	ctx := context.Background()
	cfg := DefaultConfig("HLD")
	year := time.Now().Year()

	opts := &Options{
		Strategy:  StrategyCached,
		RangeSize: 10,
	}

	// First call allocates 1..10 from the DB and returns 1.
	num, err := svc.GetNextNumber(ctx, cfg, opts, time.Now())
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("HLD-%d-00001", year), num)
	assert.Equal(t, int64(10), q.currentValue)

	// Second call is served from memory, DB untouched.
	num, err = svc.GetNextNumber(ctx, cfg, opts, time.Now())
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("HLD-%d-00002", year), num)
	assert.Equal(t, int64(10), q.currentValue)

	// Exhaust the range, the next call refills from the DB.
	for i := 0; i < 8; i++ {
		_, _ = svc.GetNextNumber(ctx, cfg, opts, time.Now())
	}

	num, err = svc.GetNextNumber(ctx, cfg, opts, time.Now())
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("HLD-%d-00011", year), num)
	assert.Equal(t, int64(20), q.currentValue)
}
