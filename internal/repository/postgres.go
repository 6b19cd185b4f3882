// Package repository implements PostgreSQL persistence for invoices and
// scenario progress.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/taxops/einvoicing-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrInvoiceNotFound is returned when no invoice exists for a reference.
var (
	ErrInvoiceNotFound = errors.New("invoice not found")
	// ErrInvoiceSubmitted is returned on attempts to mutate an invoice after
	// a successful submission. Submitted invoices are immutable.
	ErrInvoiceSubmitted = errors.New("invoice already submitted")
	// ErrProgressNotFound is returned when a (user, scenario) pair has no
	// progress record yet.
	ErrProgressNotFound = errors.New("scenario progress not found")
)

// PostgresRepository provides access to the PostgreSQL data store.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates the repository and brings the schema up to
// date through embedded migrations.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close closes the connection pool.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// withRetry re-runs fn on serialization failures, deadlocks and transient
// connection errors. Used around the submission-outcome write, which must not
// be lost after the authority has accepted an invoice.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// SaveInvoice upserts an invoice header and replaces its lines. Submitted
// invoices are immutable: the upsert refuses them with ErrInvoiceSubmitted.
func (r *PostgresRepository) SaveInvoice(ctx context.Context, userID int64, inv *model.Invoice) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var status string
	err = tx.QueryRow(ctx,
		`SELECT status FROM invoices WHERE reference = $1 FOR UPDATE`,
		inv.Reference,
	).Scan(&status)
	switch {
	case err == nil:
		if model.InvoiceStatus(status) == model.InvoiceStatusSubmitted {
			return fmt.Errorf("%w: %s", ErrInvoiceSubmitted, inv.Reference)
		}
	case errors.Is(err, pgx.ErrNoRows):
		// first save
	default:
		return fmt.Errorf("select invoice for update: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO invoices (
		    reference, user_id, invoice_type, invoice_date,
		    seller_ntn, seller_name, seller_prov, seller_addr,
		    buyer_ntn, buyer_name, buyer_prov, buyer_addr, buyer_type,
		    scenario_id, status,
		    item_count, excl_tax_total, tax_total, grand_total, created_at
		 ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		 ON CONFLICT (reference) DO UPDATE SET
		    invoice_type = EXCLUDED.invoice_type,
		    invoice_date = EXCLUDED.invoice_date,
		    seller_ntn = EXCLUDED.seller_ntn,
		    seller_name = EXCLUDED.seller_name,
		    seller_prov = EXCLUDED.seller_prov,
		    seller_addr = EXCLUDED.seller_addr,
		    buyer_ntn = EXCLUDED.buyer_ntn,
		    buyer_name = EXCLUDED.buyer_name,
		    buyer_prov = EXCLUDED.buyer_prov,
		    buyer_addr = EXCLUDED.buyer_addr,
		    buyer_type = EXCLUDED.buyer_type,
		    scenario_id = EXCLUDED.scenario_id,
		    status = EXCLUDED.status,
		    item_count = EXCLUDED.item_count,
		    excl_tax_total = EXCLUDED.excl_tax_total,
		    tax_total = EXCLUDED.tax_total,
		    grand_total = EXCLUDED.grand_total`,
		inv.Reference, userID, inv.InvoiceType, inv.InvoiceDate,
		inv.SellerNTN, inv.SellerName, inv.SellerProv, inv.SellerAddr,
		inv.BuyerNTN, inv.BuyerName, inv.BuyerProv, inv.BuyerAddr, inv.BuyerType,
		inv.ScenarioID, string(inv.Status),
		inv.Totals.ItemCount, inv.Totals.ExclTaxTotal, inv.Totals.TaxTotal, inv.Totals.GrandTotal,
		inv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert invoice: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM invoice_lines WHERE invoice_ref = $1`, inv.Reference); err != nil {
		return fmt.Errorf("delete invoice lines: %w", err)
	}

	for i, line := range inv.Lines {
		_, err := tx.Exec(ctx,
			`INSERT INTO invoice_lines (
			    invoice_ref, line_no, hs_code, description, quantity, unit_price,
			    unit_code, tax_rate, excl_tax, tax_amount, total_amount,
			    retail_price, sale_note, third_schedule
			 ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
			inv.Reference, i+1, line.HSCode, line.Description, line.Quantity, line.UnitPrice,
			line.UnitCode, line.TaxRate, line.ExclTaxValue, line.TaxAmount, line.TotalAmount,
			line.RetailPrice, line.SaleNote, line.ThirdSchedule,
		)
		if err != nil {
			return fmt.Errorf("insert invoice line %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetInvoice loads an invoice with its lines by reference.
func (r *PostgresRepository) GetInvoice(ctx context.Context, reference string) (*model.Invoice, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT reference, invoice_type, invoice_date,
		        seller_ntn, seller_name, seller_prov, seller_addr,
		        buyer_ntn, buyer_name, buyer_prov, buyer_addr, buyer_type,
		        scenario_id, status, authority_ref,
		        item_count, excl_tax_total, tax_total, grand_total,
		        created_at, submitted_at
		 FROM invoices WHERE reference = $1`,
		reference,
	)

	var (
		inv    model.Invoice
		status string
	)
	err := row.Scan(
		&inv.Reference, &inv.InvoiceType, &inv.InvoiceDate,
		&inv.SellerNTN, &inv.SellerName, &inv.SellerProv, &inv.SellerAddr,
		&inv.BuyerNTN, &inv.BuyerName, &inv.BuyerProv, &inv.BuyerAddr, &inv.BuyerType,
		&inv.ScenarioID, &status, &inv.AuthorityRef,
		&inv.Totals.ItemCount, &inv.Totals.ExclTaxTotal, &inv.Totals.TaxTotal, &inv.Totals.GrandTotal,
		&inv.CreatedAt, &inv.SubmittedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	inv.Status = model.InvoiceStatus(status)

	rows, err := r.pool.Query(ctx,
		`SELECT hs_code, description, quantity, unit_price, unit_code, tax_rate,
		        excl_tax, tax_amount, total_amount, retail_price, sale_note, third_schedule
		 FROM invoice_lines WHERE invoice_ref = $1 ORDER BY line_no`,
		reference,
	)
	if err != nil {
		return nil, fmt.Errorf("select invoice lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var line model.InvoiceLine
		if err := rows.Scan(
			&line.HSCode, &line.Description, &line.Quantity, &line.UnitPrice, &line.UnitCode, &line.TaxRate,
			&line.ExclTaxValue, &line.TaxAmount, &line.TotalAmount, &line.RetailPrice, &line.SaleNote, &line.ThirdSchedule,
		); err != nil {
			return nil, fmt.Errorf("scan invoice line: %w", err)
		}
		inv.Lines = append(inv.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &inv, nil
}

// ListInvoices returns invoice headers for a user, newest first, optionally
// filtered by status.
func (r *PostgresRepository) ListInvoices(ctx context.Context, userID int64, status model.InvoiceStatus, limit, offset int) ([]model.Invoice, error) {
	query := `SELECT reference, invoice_type, invoice_date, buyer_name, scenario_id, status,
	                 authority_ref, item_count, excl_tax_total, tax_total, grand_total,
	                 created_at, submitted_at
	          FROM invoices WHERE user_id = $1`
	args := []any{userID}

	if status != "" {
		query += ` AND status = $2`
		args = append(args, string(status))
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select invoices: %w", err)
	}
	defer rows.Close()

	var invoices []model.Invoice
	for rows.Next() {
		var (
			inv  model.Invoice
			stat string
		)
		if err := rows.Scan(
			&inv.Reference, &inv.InvoiceType, &inv.InvoiceDate, &inv.BuyerName, &inv.ScenarioID, &stat,
			&inv.AuthorityRef, &inv.Totals.ItemCount, &inv.Totals.ExclTaxTotal, &inv.Totals.TaxTotal, &inv.Totals.GrandTotal,
			&inv.CreatedAt, &inv.SubmittedAt,
		); err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		inv.Status = model.InvoiceStatus(stat)
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return invoices, nil
}

// SaveSubmissionOutcome records the terminal state of a submission: status,
// authority reference and the raw response body, keyed by invoice reference.
// Retries transient database failures; losing this write after the authority
// has accepted the invoice would invite a duplicate resubmission.
func (r *PostgresRepository) SaveSubmissionOutcome(ctx context.Context, reference string, status model.InvoiceStatus, authorityRef string, rawResponse []byte, submittedAt time.Time) error {
	return r.withRetry(ctx, func() error {
		cmdTag, err := r.pool.Exec(ctx,
			`UPDATE invoices
			 SET status = $2, authority_ref = $3, raw_response = $4, submitted_at = $5
			 WHERE reference = $1`,
			reference, string(status), authorityRef, rawResponse, submittedAt,
		)
		if err != nil {
			return fmt.Errorf("update submission outcome: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", ErrInvoiceNotFound, reference)
		}
		return nil
	})
}

// GetScenarioProgress returns the progress record for one (user, scenario)
// pair.
func (r *PostgresRepository) GetScenarioProgress(ctx context.Context, userID int64, scenarioID string) (*model.ScenarioProgress, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT user_id, scenario_id, status, attempts, last_response, last_attempt_at, completed_at
		 FROM scenario_progress WHERE user_id = $1 AND scenario_id = $2`,
		userID, scenarioID,
	)

	var (
		p      model.ScenarioProgress
		status string
	)
	if err := row.Scan(&p.UserID, &p.ScenarioID, &status, &p.Attempts, &p.LastResponse, &p.LastAttemptAt, &p.CompletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProgressNotFound
		}
		return nil, fmt.Errorf("get scenario progress: %w", err)
	}
	p.Status = model.ScenarioStatus(status)

	return &p, nil
}

// UpsertScenarioProgress writes the progress record for a (user, scenario)
// pair, creating it on the first attempt.
func (r *PostgresRepository) UpsertScenarioProgress(ctx context.Context, p *model.ScenarioProgress) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO scenario_progress (user_id, scenario_id, status, attempts, last_response, last_attempt_at, completed_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (user_id, scenario_id) DO UPDATE SET
		    status = EXCLUDED.status,
		    attempts = EXCLUDED.attempts,
		    last_response = EXCLUDED.last_response,
		    last_attempt_at = EXCLUDED.last_attempt_at,
		    completed_at = EXCLUDED.completed_at`,
		p.UserID, p.ScenarioID, string(p.Status), p.Attempts, p.LastResponse, p.LastAttemptAt, p.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert scenario progress: %w", err)
	}
	return nil
}

// ListScenarioProgress returns every scenario record for a user.
func (r *PostgresRepository) ListScenarioProgress(ctx context.Context, userID int64) ([]model.ScenarioProgress, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, scenario_id, status, attempts, last_response, last_attempt_at, completed_at
		 FROM scenario_progress WHERE user_id = $1 ORDER BY scenario_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select scenario progress: %w", err)
	}
	defer rows.Close()

	var res []model.ScenarioProgress
	for rows.Next() {
		var (
			p      model.ScenarioProgress
			status string
		)
		if err := rows.Scan(&p.UserID, &p.ScenarioID, &status, &p.Attempts, &p.LastResponse, &p.LastAttemptAt, &p.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan scenario progress: %w", err)
		}
		p.Status = model.ScenarioStatus(status)
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
