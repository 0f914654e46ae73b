package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

const (
	opTimeout = 5 * time.Second
)

type productRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт PostgreSQL-реализацию каталога товаров.
func NewProductRepository(store *Store) *productRepository {
	return &productRepository{db: store.DB()}
}

// ReadProduct возвращает свежий снапшот товара с отметкой времени чтения.
func (r *productRepository) ReadProduct(ctx context.Context, id string) (domain.ProductSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var p domain.ProductSnapshot
	err := r.db.QueryRowContext(ctx, `
		SELECT id, unit_price_minor, stock_quantity
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.UnitPriceMinor, &p.StockQuantity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ProductSnapshot{}, domain.ErrProductNotFound
		}
		return domain.ProductSnapshot{}, fmt.Errorf("select product: %w", err)
	}
	p.ReadAt = time.Now().UTC()
	return p, nil
}

// AdjustStock применяет внешнее изменение стока, не опуская его ниже нуля.
func (r *productRepository) AdjustStock(ctx context.Context, productID string, delta int32) (int32, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var newQty int32
	err := r.db.QueryRowContext(ctx, `
		UPDATE products
		SET stock_quantity = GREATEST(stock_quantity + $2, 0),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING stock_quantity
	`, productID, delta).Scan(&newQty)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrProductNotFound
		}
		return 0, fmt.Errorf("adjust stock: %w", err)
	}
	return newQty, nil
}

// Upsert сохраняет или перезаписывает товар каталога.
func (r *productRepository) Upsert(ctx context.Context, p domain.ProductSnapshot) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (id, unit_price_minor, stock_quantity, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE
		SET unit_price_minor = EXCLUDED.unit_price_minor,
		    stock_quantity = EXCLUDED.stock_quantity,
		    updated_at = NOW()
	`, p.ID, p.UnitPriceMinor, p.StockQuantity)
	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.ProductReader = (*productRepository)(nil)
var _ domain.StockAdjuster = (*productRepository)(nil)
