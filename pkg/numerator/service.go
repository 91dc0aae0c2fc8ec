// Package numerator provides document numbering.
//
// Two facilities live here: a Reservoir that hands out gap-free fiscal
// document numbers backed by a per-series sequence row, and a Service
// that allocates internal document numbers (returns, held sales) where
// gaps after a restart are acceptable.
package numerator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"caixa/internal/core/apperror"
	"caixa/internal/core/id"
)

// Querier interface for database operations.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

///////////////
// Reservoir //
///////////////

// Reservoir issues fiscal document numbers from fiscal_sequences.
//
// Each (company, series, model) triple owns one sequence row. A reserved
// number is never handed out twice: the increment is a single atomic
// UPDATE ... RETURNING, and callers persist the number before submitting
// the document to the fiscal authority. A rejected submission keeps its
// number; re-emission reuses it instead of reserving a new one.
type Reservoir struct {
	querier Querier
}

// NewReservoir creates a reservoir over the given querier.
func NewReservoir(querier Querier) *Reservoir {
	return &Reservoir{querier: querier}
}

// Reserve atomically increments and returns the next number for the
// series. The sequence row must be provisioned when the company's series
// is registered; a missing row means the terminal is misconfigured and
// yields a CONFIGURATION_ERROR, never an implicit new sequence.
func (r *Reservoir) Reserve(ctx context.Context, companyID id.ID, series int, model int) (int64, error) {
	var num int64

	err := r.querier.QueryRow(ctx, `
        UPDATE fiscal_sequences
        SET current_val = current_val + 1, updated_at = now()
        WHERE company_id = $1 AND series = $2 AND model = $3
        RETURNING current_val
	`, companyID, series, model).Scan(&num)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperror.NewConfiguration(
				fmt.Sprintf("no fiscal sequence for series %d model %d", series, model)).
				WithDetail("companyId", companyID.String()).
				WithDetail("series", series).
				WithDetail("model", model)
		}
		return 0, apperror.NewPersistence("reserve fiscal number", err)
	}

	return num, nil
}

// Current returns the last issued number for the series without
// reserving. Used by monitoring and the series registration flow.
func (r *Reservoir) Current(ctx context.Context, companyID id.ID, series int, model int) (int64, error) {
	var num int64

	err := r.querier.QueryRow(ctx, `
        SELECT current_val FROM fiscal_sequences
        WHERE company_id = $1 AND series = $2 AND model = $3
	`, companyID, series, model).Scan(&num)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperror.NewConfiguration(
				fmt.Sprintf("no fiscal sequence for series %d model %d", series, model))
		}
		return 0, apperror.NewPersistence("read fiscal sequence", err)
	}

	return num, nil
}

//////////////////////
// Internal numbers //
//////////////////////

// Strategy defines the numbering generation strategy.
type Strategy int

const (
	// StrategyStrict uses UPSERT ... RETURNING for every number.
	// Sequential without gaps, one round-trip per number.
	StrategyStrict Strategy = iota

	// StrategyCached allocates ranges of numbers in memory.
	// Much faster, but may produce gaps if the application restarts.
	// Suitable for internal documents (returns, held sales).
	StrategyCached
)

// Options configuration for number generation.
type Options struct {
	// Strategy to use for number generation
	Strategy Strategy
	// RangeSize is the number of IDs to allocate at once in Cached strategy.
	// Default is 50.
	RangeSize int64
}

// DefaultOptions returns standard options (Strict).
func DefaultOptions() *Options {
	return &Options{
		Strategy: StrategyStrict,
	}
}

type cachedRange struct {
	current int64
	max     int64
}

// Service provides internal document numbering over sys_sequences.
type Service struct {
	querier Querier

	cacheMu sync.Mutex
	ranges  map[string]*cachedRange
}

// New creates a new numerator service.
func New(querier Querier) *Service {
	return &Service{
		querier: querier,
		ranges:  make(map[string]*cachedRange),
	}
}

// Config holds numbering configuration.
type Config struct {
	// Prefix added to all numbers (e.g., "RET", "HLD")
	Prefix string

	// IncludeYear adds year to the number
	IncludeYear bool

	// PadWidth is the minimum number width (default 5)
	PadWidth int

	// ResetPeriod: "year", "month", "never"
	ResetPeriod string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(prefix string) Config {
	return Config{
		Prefix:      prefix,
		IncludeYear: true,
		PadWidth:    5,
		ResetPeriod: "year",
	}
}

// GetNextNumber generates the next document number.
// Pattern: PREFIX-YEAR-XXXXX (e.g., RET-2026-00001)
func (s *Service) GetNextNumber(ctx context.Context, cfg Config, opts *Options, period time.Time) (string, error) {
	if s == nil {
		return "", fmt.Errorf("numerator service is not initialized")
	}

	if opts == nil {
		opts = DefaultOptions()
	}

	key := s.buildKey(cfg, period)
	var num int64
	var err error

	switch opts.Strategy {
	case StrategyCached:
		num, err = s.getNextCached(ctx, key, opts)
	case StrategyStrict:
		fallthrough
	default:
		num, err = s.getNextStrict(ctx, key)
	}

	if err != nil {
		return "", err
	}

	return s.formatNumber(cfg, period, num), nil
}

// getNextStrict fetches the next number directly from DB using UPSERT + RETURNING.
func (s *Service) getNextStrict(ctx context.Context, key string) (int64, error) {
	var num int64

	err := s.querier.QueryRow(ctx, `
        INSERT INTO sys_sequences (key, current_val)
        VALUES ($1, 1)
        ON CONFLICT (key) DO UPDATE SET current_val = sys_sequences.current_val + 1
        RETURNING current_val
	`, key).Scan(&num)

	if err != nil {
		return 0, fmt.Errorf("strict next: %w", err)
	}
	return num, nil
}

// getNextCached fetches next number from memory, refilling from DB if needed.
func (s *Service) getNextCached(ctx context.Context, key string, opts *Options) (int64, error) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	rng, exists := s.ranges[key]
	if !exists {
		rng = &cachedRange{}
		s.ranges[key] = rng
	}

	// allocate new range if needed
	if rng.current >= rng.max {
		size := opts.RangeSize
		if size <= 0 {
			size = 50 // default
		}

		// current_val tracks the last allocated number, so bumping it by
		// size reserves the half-open range (old, old+size].
		var newMax int64
		err := s.querier.QueryRow(ctx, `
            INSERT INTO sys_sequences (key, current_val)
            VALUES ($1, $2)
            ON CONFLICT (key) DO UPDATE SET current_val = sys_sequences.current_val + $2
            RETURNING current_val
		`, key, size).Scan(&newMax)

		if err != nil {
			return 0, fmt.Errorf("reserve range: %w", err)
		}

		rng.current = newMax - size
		rng.max = newMax
	}

	rng.current++
	return rng.current, nil
}

// SetNextNumber sets the next number value (for migration purposes).
func (s *Service) SetNextNumber(ctx context.Context, cfg Config, period time.Time, value int64) error {
	key := s.buildKey(cfg, period)

	var result int64
	err := s.querier.QueryRow(ctx, `
		INSERT INTO sys_sequences (key, current_val)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET current_val = $2
		RETURNING current_val
	`, key, value).Scan(&result)

	s.cacheMu.Lock()
	delete(s.ranges, key)
	s.cacheMu.Unlock()

	return err
}

// buildKey creates the sequence key based on config and period.
func (s *Service) buildKey(cfg Config, period time.Time) string {
	switch cfg.ResetPeriod {
	case "month":
		return fmt.Sprintf("%s_%s", cfg.Prefix, period.Format("2006_01"))
	case "year":
		return fmt.Sprintf("%s_%s", cfg.Prefix, period.Format("2006"))
	default:
		return cfg.Prefix
	}
}

// formatNumber creates the final number string.
func (s *Service) formatNumber(cfg Config, period time.Time, num int64) string {
	padWidth := cfg.PadWidth
	if padWidth == 0 {
		padWidth = 5
	}

	if cfg.IncludeYear {
		return fmt.Sprintf("%s-%s-%0*d", cfg.Prefix, period.Format("2006"), padWidth, num)
	}
	return fmt.Sprintf("%s-%0*d", cfg.Prefix, padWidth, num)
}
