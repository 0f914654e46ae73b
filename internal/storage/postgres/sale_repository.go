package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

type saleRepository struct {
	db *sql.DB
}

// NewSaleRepository создаёт PostgreSQL-реализацию SaleRepository.
func NewSaleRepository(store *Store) domain.SaleRepository {
	return &saleRepository{db: store.DB()}
}

// CommitSale фиксирует продажу в одной транзакции: чек с позициями,
// условное списание стока по каждой строке и увеличение долга клиента
// для отложенной оплаты. Списание защищено предикатом по остатку, так
// что гонка с другим терминалом оставляет нули затронутых строк и
// транзакция откатывается со StockConflictError. Повторный чек даёт
// ErrDuplicateReceipt по первичному ключу.
func (r *saleRepository) CommitSale(ctx context.Context, sale domain.Sale) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (
			receipt_id, customer_id, subtotal_minor, discount_minor, tax_minor,
			grand_total_minor, tender, payment_status, tendered_minor, change_minor, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		sale.ReceiptID, nullableString(sale.CustomerID), sale.SubtotalMinor, sale.DiscountMinor,
		sale.TaxMinor, sale.GrandTotalMinor, string(sale.Tender), string(sale.PaymentStatus),
		sale.TenderedMinor, sale.ChangeMinor, sale.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			err = domain.ErrDuplicateReceipt
			return err
		}
		return fmt.Errorf("insert sale: %w", err)
	}

	conflicts := make([]domain.StockShortfall, 0)
	for i, line := range sale.Lines {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO sale_lines (
				receipt_id, position, product_id, quantity,
				unit_price_minor, discount_minor, total_minor
			) VALUES ($1,$2,$3,$4,$5,$6,$7)
		`,
			sale.ReceiptID, i, line.ProductID, line.Quantity,
			line.UnitPriceMinor, line.DiscountMinor, line.TotalMinor,
		); err != nil {
			return fmt.Errorf("insert sale line: %w", err)
		}

		var res sql.Result
		res, err = tx.ExecContext(ctx, `
			UPDATE products
			SET stock_quantity = stock_quantity - $2,
			    updated_at = NOW()
			WHERE id = $1
			  AND stock_quantity >= $2
		`, line.ProductID, line.Quantity)
		if err != nil {
			return fmt.Errorf("decrement stock: %w", err)
		}

		var affected int64
		affected, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected for stock decrement: %w", err)
		}
		if affected == 0 {
			shortfall, shortfallErr := r.loadShortfallTx(ctx, tx, line)
			if shortfallErr != nil {
				err = shortfallErr
				return err
			}
			conflicts = append(conflicts, shortfall)
		}
	}
	if len(conflicts) > 0 {
		err = &domain.StockConflictError{Conflicts: conflicts}
		return err
	}

	if sale.Tender == domain.TenderDeferred {
		var res sql.Result
		res, err = tx.ExecContext(ctx, `
			UPDATE customers
			SET outstanding_dues_minor = outstanding_dues_minor + $2,
			    updated_at = NOW()
			WHERE id = $1
		`, sale.CustomerID, sale.GrandTotalMinor)
		if err != nil {
			return fmt.Errorf("add customer dues: %w", err)
		}
		var affected int64
		affected, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected for dues: %w", err)
		}
		if affected == 0 {
			err = domain.ErrCustomerNotFound
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit sale: %w", err)
	}

	return nil
}

// Get возвращает продажу по номеру чека вместе с позициями.
func (r *saleRepository) Get(ctx context.Context, receiptID string) (domain.Sale, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	sale, err := r.scanSale(r.db.QueryRowContext(ctx, `
		SELECT receipt_id, customer_id, subtotal_minor, discount_minor, tax_minor,
		       grand_total_minor, tender, payment_status, tendered_minor, change_minor, created_at
		FROM sales
		WHERE receipt_id = $1
	`, receiptID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Sale{}, domain.ErrSaleNotFound
		}
		return domain.Sale{}, fmt.Errorf("select sale: %w", err)
	}

	lines, err := r.loadLines(ctx, sale.ReceiptID)
	if err != nil {
		return domain.Sale{}, err
	}
	sale.Lines = lines

	return sale, nil
}

// ListRecent возвращает последние продажи, новые первыми.
func (r *saleRepository) ListRecent(ctx context.Context, limit int) ([]domain.Sale, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT receipt_id, customer_id, subtotal_minor, discount_minor, tax_minor,
		       grand_total_minor, tender, payment_status, tendered_minor, change_minor, created_at
		FROM sales
		ORDER BY created_at DESC, receipt_id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		sale, err := r.scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sale row: %w", err)
		}
		lines, err := r.loadLines(ctx, sale.ReceiptID)
		if err != nil {
			return nil, err
		}
		sale.Lines = lines
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sale rows: %w", err)
	}

	return sales, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *saleRepository) scanSale(row rowScanner) (domain.Sale, error) {
	var (
		sale          domain.Sale
		customerID    sql.NullString
		tender        string
		paymentStatus string
	)
	if err := row.Scan(
		&sale.ReceiptID, &customerID, &sale.SubtotalMinor, &sale.DiscountMinor, &sale.TaxMinor,
		&sale.GrandTotalMinor, &tender, &paymentStatus, &sale.TenderedMinor, &sale.ChangeMinor,
		&sale.CreatedAt,
	); err != nil {
		return domain.Sale{}, err
	}
	if customerID.Valid {
		sale.CustomerID = customerID.String
	}
	sale.Tender = domain.TenderMethod(tender)
	sale.PaymentStatus = domain.PaymentStatus(paymentStatus)
	return sale, nil
}

func (r *saleRepository) loadLines(ctx context.Context, receiptID string) ([]domain.SaleLine, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, quantity, unit_price_minor, discount_minor, total_minor
		FROM sale_lines
		WHERE receipt_id = $1
		ORDER BY position ASC
	`, receiptID)
	if err != nil {
		return nil, fmt.Errorf("load sale lines: %w", err)
	}
	defer rows.Close()

	lines := make([]domain.SaleLine, 0)
	for rows.Next() {
		var line domain.SaleLine
		if err := rows.Scan(&line.ProductID, &line.Quantity, &line.UnitPriceMinor, &line.DiscountMinor, &line.TotalMinor); err != nil {
			return nil, fmt.Errorf("scan sale line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sale lines: %w", err)
	}

	return lines, nil
}

func (r *saleRepository) loadShortfallTx(ctx context.Context, tx *sql.Tx, line domain.SaleLine) (domain.StockShortfall, error) {
	var available int32
	err := tx.QueryRowContext(ctx, `SELECT stock_quantity FROM products WHERE id = $1`, line.ProductID).Scan(&available)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			available = 0
		} else {
			return domain.StockShortfall{}, fmt.Errorf("check product stock: %w", err)
		}
	}
	if available < 0 {
		available = 0
	}
	return domain.StockShortfall{
		ProductID: line.ProductID,
		Requested: line.Quantity,
		Available: available,
	}, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ domain.SaleRepository = (*saleRepository)(nil)
