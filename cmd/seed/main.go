// Package main provides a CLI tool for seeding the database with initial data.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"caixa/internal/core/id"
	"caixa/internal/infrastructure/storage/postgres"
	"caixa/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	poolCfg := postgres.DefaultPoolConfig(dbURL)
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	log.Info("connected to database")

	companyID, err := seedCompany(ctx, pool, log)
	if err != nil {
		log.Fatalw("failed to seed company", "error", err)
	}

	if err := seedManager(ctx, pool, log, companyID); err != nil {
		log.Fatalw("failed to seed manager operator", "error", err)
	}

	if err := seedFiscalSequences(ctx, pool, log, companyID); err != nil {
		log.Fatalw("failed to seed fiscal sequences", "error", err)
	}

	if os.Getenv("SEED_DEMO_DATA") == "true" {
		if err := seedDemoData(ctx, pool, log); err != nil {
			log.Fatalw("failed to seed demo data", "error", err)
		}
	}

	log.Info("seeding completed successfully")
}

// seedCompany creates the issuing company the terminal sells for.
func seedCompany(ctx context.Context, pool *postgres.Pool, log *logger.Logger) (id.ID, error) {
	cnpj := os.Getenv("SEED_COMPANY_CNPJ")
	if cnpj == "" {
		cnpj = "12345678000190"
	}

	name := os.Getenv("SEED_COMPANY_NAME")
	if name == "" {
		name = "Loja Demo LTDA"
	}

	var existingID id.ID
	err := pool.Pool.QueryRow(ctx,
		`SELECT id FROM cat_companies WHERE cnpj = $1 AND NOT deletion_mark`,
		cnpj,
	).Scan(&existingID)
	if err == nil {
		log.Infow("company already exists", "cnpj", cnpj, "company_id", existingID)
		return existingID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return id.Nil(), fmt.Errorf("check company exists: %w", err)
	}

	companyID := id.New()
	_, err = pool.Pool.Exec(ctx, `
		INSERT INTO cat_companies (
			id, code, name, cnpj, trade_name, state_registration, crt,
			city_code, state_code, environment, fiscal_enabled,
			no_product_tax, no_product_description, version, deletion_mark, attributes
		)
		VALUES ($1, 'CO-001', $2, $3, $2, 'ISENTO', '1', '3550308', '35',
		        'homologation', false, '{}', 'Venda avulsa', 1, false, '{}')
	`, companyID, name, cnpj)
	if err != nil {
		return id.Nil(), fmt.Errorf("insert company: %w", err)
	}

	log.Infow("company created", "company_id", companyID, "cnpj", cnpj)
	return companyID, nil
}

// seedManager creates the initial manager operator.
func seedManager(ctx context.Context, pool *postgres.Pool, log *logger.Logger, companyID id.ID) error {
	login := os.Getenv("MANAGER_LOGIN")
	if login == "" {
		login = "gerente"
	}

	pin := os.Getenv("MANAGER_PIN")
	if pin == "" {
		pin = "123456"
	}

	var existingID id.ID
	err := pool.Pool.QueryRow(ctx,
		`SELECT id FROM operators WHERE login = $1`, login,
	).Scan(&existingID)
	if err == nil {
		log.Infow("manager already exists", "login", login, "operator_id", existingID)
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("check manager exists: %w", err)
	}

	pinHash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash pin: %w", err)
	}

	operatorID := id.New()
	_, err = pool.Pool.Exec(ctx, `
		INSERT INTO operators (
			id, company_id, login, name, pin_hash, receipt_series,
			is_manager, is_active, version
		)
		VALUES ($1, $2, $3, 'Gerente', $4, 1, true, true, 1)
	`, operatorID, companyID, login, string(pinHash))
	if err != nil {
		return fmt.Errorf("insert manager: %w", err)
	}

	log.Infow("manager operator created", "login", login, "operator_id", operatorID)
	return nil
}

// seedFiscalSequences provisions the sequence rows for the default
// receipt series. Reservation fails loudly without them.
func seedFiscalSequences(ctx context.Context, pool *postgres.Pool, log *logger.Logger, companyID id.ID) error {
	// NFC-e (65) for receipts, NF-e (55) for correctives, series 1.
	for _, model := range []int{55, 65} {
		_, err := pool.Pool.Exec(ctx, `
			INSERT INTO fiscal_sequences (company_id, series, model, current_val)
			VALUES ($1, 1, $2, 0)
			ON CONFLICT (company_id, series, model) DO NOTHING
		`, companyID, model)
		if err != nil {
			return fmt.Errorf("provision sequence model %d: %w", model, err)
		}
	}

	log.Infow("fiscal sequences provisioned", "company_id", companyID, "series", 1)
	return nil
}

func seedDemoData(ctx context.Context, pool *postgres.Pool, log *logger.Logger) error {
	log.Info("seeding demo data...")

	// 1. Products
	products := []struct {
		code    string
		name    string
		kind    string
		barcode string
		price   string
		unit    string
		tracks  bool
	}{
		{"PRD-00001", "Pão francês", "simple", "7890000000017", "1.50", "UN", true},
		{"PRD-00002", "Café coado 200ml", "simple", "7890000000024", "4.00", "UN", false},
		{"PRD-00003", "Queijo mussarela", "simple", "7890000000031", "38.90", "KG", true},
		{"PRD-00004", "Presunto cozido", "simple", "7890000000048", "29.90", "KG", true},
		{"PRD-00005", "Refrigerante lata", "simple", "7890000000055", "5.50", "UN", true},
	}

	productIDs := make(map[string]id.ID)
	for _, p := range products {
		pid := id.New()
		tag, err := pool.Pool.Exec(ctx, `
			INSERT INTO cat_products (id, code, name, kind, barcode, price, unit, tracks_stock, stock, has_recipe, tax, version, deletion_mark, attributes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, false, '{}', 1, false, '{}')
			ON CONFLICT DO NOTHING
		`, pid, p.code, p.name, p.kind, p.barcode, p.price, p.unit, p.tracks)
		if err != nil {
			log.Warnw("failed to seed product", "name", p.name, "error", err)
			continue
		}
		if tag.RowsAffected() == 0 {
			if err := pool.Pool.QueryRow(ctx,
				`SELECT id FROM cat_products WHERE code = $1 AND NOT deletion_mark`, p.code,
			).Scan(&pid); err != nil {
				log.Warnw("failed to fetch existing product", "code", p.code, "error", err)
				continue
			}
		}
		productIDs[p.code] = pid
	}

	// 2. A kit product with a recipe: sold as one item, stock moves on
	// the ingredients.
	kitID := id.New()
	tag, err := pool.Pool.Exec(ctx, `
		INSERT INTO cat_products (id, code, name, kind, barcode, price, unit, tracks_stock, stock, has_recipe, tax, version, deletion_mark, attributes)
		VALUES ($1, 'PRD-00006', 'Misto quente', 'kit', '7890000000062', '12.00', 'UN', false, 0, true, '{}', 1, false, '{}')
		ON CONFLICT DO NOTHING
	`, kitID)
	if err != nil {
		log.Warnw("failed to seed kit product", "error", err)
	} else {
		if tag.RowsAffected() == 0 {
			if err := pool.Pool.QueryRow(ctx,
				`SELECT id FROM cat_products WHERE code = 'PRD-00006' AND NOT deletion_mark`,
			).Scan(&kitID); err != nil {
				log.Warnw("failed to fetch kit product", "error", err)
			}
		}
		recipe := []struct {
			ingredient string
			quantity   string
		}{
			{"PRD-00001", "1"},
			{"PRD-00003", "0.050"},
			{"PRD-00004", "0.050"},
		}
		for _, r := range recipe {
			ingID, ok := productIDs[r.ingredient]
			if !ok {
				continue
			}
			_, err := pool.Pool.Exec(ctx, `
				INSERT INTO cat_product_recipes (product_id, ingredient_id, quantity)
				VALUES ($1, $2, $3)
				ON CONFLICT (product_id, ingredient_id) DO NOTHING
			`, kitID, ingID, r.quantity)
			if err != nil {
				log.Warnw("failed to seed recipe item", "ingredient", r.ingredient, "error", err)
			}
		}
	}

	// 3. A customer for identified sales
	custID := id.New()
	_, err = pool.Pool.Exec(ctx, `
		INSERT INTO cat_customers (id, code, name, tax_id, version, deletion_mark, attributes)
		VALUES ($1, 'CL-00001', 'Maria da Silva', '12345678909', 1, false, '{}')
		ON CONFLICT DO NOTHING
	`, custID)
	if err != nil {
		log.Warnw("failed to seed customer", "error", err)
	}

	// 4. Opening stock balances
	for _, code := range []string{"PRD-00001", "PRD-00003", "PRD-00004", "PRD-00005"} {
		pid, ok := productIDs[code]
		if !ok {
			continue
		}
		_, err := pool.Pool.Exec(ctx, `
			INSERT INTO reg_stock_balances (product_id, quantity)
			VALUES ($1, 100)
			ON CONFLICT (product_id) DO NOTHING
		`, pid)
		if err != nil {
			log.Warnw("failed to seed stock balance", "code", code, "error", err)
		}
	}

	log.Info("demo data seeded successfully")
	return nil
}
