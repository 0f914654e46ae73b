package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

type customerRepository struct {
	db *sql.DB
}

// NewCustomerRepository создаёт PostgreSQL-реализацию справочника клиентов.
func NewCustomerRepository(store *Store) *customerRepository {
	return &customerRepository{db: store.DB()}
}

// ReadCustomer возвращает свежий снапшот клиента с отметкой времени чтения.
func (r *customerRepository) ReadCustomer(ctx context.Context, id string) (domain.CustomerSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var c domain.CustomerSnapshot
	err := r.db.QueryRowContext(ctx, `
		SELECT id, credit_limit_minor, outstanding_dues_minor
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.CreditLimitMinor, &c.OutstandingDuesMinor)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CustomerSnapshot{}, domain.ErrCustomerNotFound
		}
		return domain.CustomerSnapshot{}, fmt.Errorf("select customer: %w", err)
	}
	c.ReadAt = time.Now().UTC()
	return c, nil
}

// Upsert сохраняет или перезаписывает клиента.
func (r *customerRepository) Upsert(ctx context.Context, c domain.CustomerSnapshot) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO customers (id, credit_limit_minor, outstanding_dues_minor, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE
		SET credit_limit_minor = EXCLUDED.credit_limit_minor,
		    outstanding_dues_minor = EXCLUDED.outstanding_dues_minor,
		    updated_at = NOW()
	`, c.ID, c.CreditLimitMinor, c.OutstandingDuesMinor)
	if err != nil {
		return fmt.Errorf("upsert customer: %w", err)
	}
	return nil
}

// SettleDues уменьшает задолженность клиента при погашении долга.
// Долг не опускается ниже нуля.
func (r *customerRepository) SettleDues(ctx context.Context, id string, amountMinor int64) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE customers
		SET outstanding_dues_minor = GREATEST(outstanding_dues_minor - $2, 0),
		    updated_at = NOW()
		WHERE id = $1
	`, id, amountMinor)
	if err != nil {
		return fmt.Errorf("settle dues: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for settle dues: %w", err)
	}
	if affected == 0 {
		return domain.ErrCustomerNotFound
	}
	return nil
}

var _ domain.CustomerReader = (*customerRepository)(nil)
